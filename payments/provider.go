package payments

import "context"

// StatusFetcher re-derives payment truth from the provider.
type StatusFetcher interface {
	FetchSubscription(ctx context.Context, id string) (Subscription, error)
	FetchPayment(ctx context.Context, id string) (Payment, error)
	FetchOrder(ctx context.Context, id string) (Order, error)
	FetchOrderPayments(ctx context.Context, orderID string) ([]Payment, error)
}

// Checkout creates provider-side orders and subscriptions carrying correlation notes.
type Checkout interface {
	CreateOrder(ctx context.Context, p OrderParams) (Order, error)
	CreateSubscription(ctx context.Context, p SubscriptionParams) (Subscription, error)
}

// Provider is the full payment-provider capability.
type Provider interface {
	StatusFetcher
	Checkout
}
