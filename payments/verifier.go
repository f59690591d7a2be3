package payments

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// RefKind is the structural class of a transaction reference.
type RefKind string

const (
	RefSubscription RefKind = "subscription"
	RefOrder        RefKind = "order"
	RefPayment      RefKind = "payment"
)

// ClassifyRef maps a reference to its kind by prefix. Unprefixed references are
// treated as payments, the strictest check.
func ClassifyRef(ref string) RefKind {
	switch {
	case strings.HasPrefix(ref, "sub_"):
		return RefSubscription
	case strings.HasPrefix(ref, "order_"):
		return RefOrder
	default:
		return RefPayment
	}
}

// Verification is the verifier outcome. Reason is safe to show to the user.
type Verification struct {
	Verified bool
	Kind     RefKind
	Ref      string
	Status   string
	Reason   string
	// Amount and Currency are the captured payment's, for order and payment refs.
	Amount   int64
	Currency string
	// OrderID is the order the verified payment belongs to, if any.
	OrderID string
	// ProviderPlanID is the provider's recurring plan for subscription refs.
	ProviderPlanID string
	// Notes are the correlation notes of the verified entity. For payments
	// inside an order, the order's notes win over the payment's.
	Notes Notes
}

// Verifier confirms client-reported transactions with the provider.
type Verifier struct {
	fetcher StatusFetcher
	log     logrus.FieldLogger
	timeout time.Duration
}

// NewVerifier builds a Verifier. A zero timeout means 10s per provider call.
func NewVerifier(f StatusFetcher, log logrus.FieldLogger, timeout time.Duration) *Verifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Verifier{fetcher: f, log: log, timeout: timeout}
}

// Verify queries the provider using only the opaque reference. Lookup errors
// reject the transaction.
func (v *Verifier) Verify(ctx context.Context, ref string) Verification {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Verification{Reason: "Missing transaction reference"}
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	kind := ClassifyRef(ref)
	out := Verification{Kind: kind, Ref: ref}
	var err error
	switch kind {
	case RefSubscription:
		var sub Subscription
		sub, err = v.fetcher.FetchSubscription(ctx, ref)
		if err == nil {
			out.Status, out.Notes, out.ProviderPlanID = sub.Status, sub.Notes, sub.PlanID
			out.Verified = sub.Status == SubscriptionActive || sub.Status == SubscriptionAuthenticated
		}
	case RefOrder:
		err = v.verifyOrder(ctx, ref, &out)
	default:
		var p Payment
		p, err = v.fetcher.FetchPayment(ctx, ref)
		if err == nil {
			out.Status, out.Notes = p.Status, p.Notes
			out.Verified = p.Status == PaymentCaptured
			out.Amount, out.Currency = p.Amount, p.Currency
			if p.OrderID != "" {
				err = v.withOrder(ctx, p.OrderID, &out)
			}
		}
	}

	if err != nil {
		v.log.WithError(err).WithFields(logrus.Fields{"ref": ref, "kind": kind}).Warn("payment status lookup failed")
		out.Verified = false
		out.Reason = "Could not verify payment with provider"
		return out
	}
	if !out.Verified {
		out.Reason = "Payment status: " + out.Status
	}
	return out
}

func (v *Verifier) verifyOrder(ctx context.Context, id string, out *Verification) error {
	if err := v.withOrder(ctx, id, out); err != nil {
		return err
	}
	pays, err := v.fetcher.FetchOrderPayments(ctx, id)
	if err != nil {
		return err
	}
	for _, p := range pays {
		out.Status = p.Status
		if p.Status == PaymentCaptured {
			out.Verified = true
			out.Amount, out.Currency = p.Amount, p.Currency
			break
		}
	}
	return nil
}

// withOrder loads the order and lays its notes over the payment's. The order
// is created server-side, so its plan_id is the one that was priced.
func (v *Verifier) withOrder(ctx context.Context, id string, out *Verification) error {
	o, err := v.fetcher.FetchOrder(ctx, id)
	if err != nil {
		return err
	}
	out.OrderID = id
	out.Notes = out.Notes.With(o.Notes)
	if out.Status == "" {
		out.Status = o.Status
		if out.Status == "" {
			out.Status = "created"
		}
	}
	return nil
}
