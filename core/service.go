// Package core reconciles user entitlements from client activations and
// payment-provider webhooks.
package core

import (
	"context"
	"strings"
	"time"

	"github.com/PaulFidika/entitlekit/entitlements"
	"github.com/PaulFidika/entitlekit/identity"
	"github.com/PaulFidika/entitlekit/payments"
	"github.com/sirupsen/logrus"
)

// Config holds the service settings that are not collaborators.
type Config struct {
	WebhookSecret string

	// ProviderPlans maps a paid plan to the provider's recurring plan id.
	ProviderPlans map[entitlements.Plan]string
	// OrderPrices maps a paid plan to the one-time order price in minor units.
	OrderPrices map[entitlements.Plan]int64
	Currency    string
	// SubscriptionCycles is the billing cycle count for new subscriptions.
	SubscriptionCycles int
	// CreatedVia is stamped into correlation notes for orders and subscriptions.
	CreatedVia string

	StoreTimeout    time.Duration
	ProviderTimeout time.Duration
	SweepBatch      int
}

func (c *Config) defaults() {
	if c.Currency == "" {
		c.Currency = "INR"
	}
	if c.SubscriptionCycles <= 0 {
		c.SubscriptionCycles = 12
	}
	if c.CreatedVia == "" {
		c.CreatedVia = "entitlekit"
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 10 * time.Second
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = 500
	}
}

// Service is the entitlement reconciliation core. It is safe for concurrent use.
type Service struct {
	cfg      Config
	store    entitlements.Store
	guard    *entitlements.Guard
	verifier *payments.Verifier
	checkout payments.Checkout
	events   EventLogger
	log      logrus.FieldLogger
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(l logrus.FieldLogger) Option { return func(s *Service) { s.log = l } }

func WithEventLogger(e EventLogger) Option { return func(s *Service) { s.events = e } }

// WithClock overrides the time source used for every date computation.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(cfg Config, store entitlements.Store, provider payments.Provider, opts ...Option) *Service {
	cfg.defaults()
	s := &Service{
		cfg:      cfg,
		store:    store,
		guard:    entitlements.NewGuard(store),
		checkout: provider,
		log:      logrus.StandardLogger(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.events == nil {
		s.events = LogrusEventLogger{Log: s.log}
	}
	s.verifier = payments.NewVerifier(provider, s.log, cfg.ProviderTimeout)
	return s
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

func (s *Service) clock() time.Time { return s.now().UTC() }

// Entitlement returns the stored record for key. Email-shaped keys are
// normalized before lookup.
func (s *Service) Entitlement(ctx context.Context, key string) (entitlements.Record, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return entitlements.Record{}, newError(KindValidation, "user key is required", nil)
	}
	if strings.Contains(key, "@") {
		key = identity.NormalizeEmail(key)
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	rec, err := s.store.Get(sctx, key)
	if err != nil {
		return entitlements.Record{}, newError(KindStoreUnavailable, "entitlement store unavailable", err)
	}
	if rec == nil {
		return entitlements.Record{}, newError(KindNotFound, "no entitlement for this user", nil)
	}
	return *rec, nil
}

// apply merges patch through the store and emits a transition event.
func (s *Service) apply(ctx context.Context, source string, prev *entitlements.Record, patch entitlements.Record) (entitlements.Record, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	rec, err := s.store.Upsert(sctx, patch)
	if err != nil {
		return entitlements.Record{}, newError(KindStoreUnavailable, "could not save entitlement", err)
	}
	s.events.LogTransition(ctx, source, prev, rec)
	return rec, nil
}

func (s *Service) get(ctx context.Context, key string) (*entitlements.Record, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	rec, err := s.store.Get(sctx, key)
	if err != nil {
		return nil, newError(KindStoreUnavailable, "entitlement store unavailable", err)
	}
	return rec, nil
}
