package core

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/PaulFidika/entitlekit/entitlements"
	"github.com/PaulFidika/entitlekit/payments"
	memorystore "github.com/PaulFidika/entitlekit/storage/memory"
	"github.com/sirupsen/logrus"
)

const testSecret = "whsec_test"

var errStoreDown = errors.New("store down")

type fakeProvider struct {
	mu        sync.Mutex
	subs      map[string]payments.Subscription
	pays      map[string]payments.Payment
	orders    map[string]payments.Order
	orderPays map[string][]payments.Payment
	err       error

	createdOrders []payments.OrderParams
	createdSubs   []payments.SubscriptionParams
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		subs:      map[string]payments.Subscription{},
		pays:      map[string]payments.Payment{},
		orders:    map[string]payments.Order{},
		orderPays: map[string][]payments.Payment{},
	}
}

func (f *fakeProvider) FetchSubscription(_ context.Context, id string) (payments.Subscription, error) {
	if f.err != nil {
		return payments.Subscription{}, f.err
	}
	s, ok := f.subs[id]
	if !ok {
		return payments.Subscription{}, errors.New("not found")
	}
	return s, nil
}

func (f *fakeProvider) FetchPayment(_ context.Context, id string) (payments.Payment, error) {
	if f.err != nil {
		return payments.Payment{}, f.err
	}
	p, ok := f.pays[id]
	if !ok {
		return payments.Payment{}, errors.New("not found")
	}
	return p, nil
}

func (f *fakeProvider) FetchOrder(_ context.Context, id string) (payments.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return payments.Order{}, f.err
	}
	o, ok := f.orders[id]
	if !ok {
		return payments.Order{}, errors.New("not found")
	}
	return o, nil
}

func (f *fakeProvider) FetchOrderPayments(_ context.Context, id string) ([]payments.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.orderPays[id], nil
}

func (f *fakeProvider) CreateOrder(_ context.Context, p payments.OrderParams) (payments.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return payments.Order{}, f.err
	}
	f.createdOrders = append(f.createdOrders, p)
	o := payments.Order{ID: "order_new", Amount: p.Amount, Currency: p.Currency, Receipt: p.Receipt, Status: "created", Notes: p.Notes}
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeProvider) CreateSubscription(_ context.Context, p payments.SubscriptionParams) (payments.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return payments.Subscription{}, f.err
	}
	f.createdSubs = append(f.createdSubs, p)
	return payments.Subscription{ID: "sub_new", PlanID: p.PlanID, Status: "created", ShortURL: "https://rzp.io/i/x", Notes: p.Notes}, nil
}

// countingStore wraps the memory store, counts every call and optionally fails them.
type countingStore struct {
	*memorystore.EntitlementStore
	mu    sync.Mutex
	calls int
	err   error
}

func (s *countingStore) hit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func (s *countingStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *countingStore) Exists(ctx context.Context, f entitlements.Field, v string) (bool, error) {
	if err := s.hit(); err != nil {
		return false, err
	}
	return s.EntitlementStore.Exists(ctx, f, v)
}

func (s *countingStore) Get(ctx context.Context, key string) (*entitlements.Record, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	return s.EntitlementStore.Get(ctx, key)
}

func (s *countingStore) Find(ctx context.Context, f entitlements.Field, v string) (*entitlements.Record, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	return s.EntitlementStore.Find(ctx, f, v)
}

func (s *countingStore) Upsert(ctx context.Context, patch entitlements.Record) (entitlements.Record, error) {
	if err := s.hit(); err != nil {
		return entitlements.Record{}, err
	}
	return s.EntitlementStore.Upsert(ctx, patch)
}

func (s *countingStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]entitlements.Record, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	return s.EntitlementStore.ListExpired(ctx, now, limit)
}

func (s *countingStore) Expire(ctx context.Context, key string, now time.Time) (*entitlements.Record, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	return s.EntitlementStore.Expire(ctx, key, now)
}

func (s *countingStore) ClaimTransaction(ctx context.Context, c entitlements.Claim) (entitlements.Claim, bool, error) {
	if err := s.hit(); err != nil {
		return entitlements.Claim{}, false, err
	}
	return s.EntitlementStore.ClaimTransaction(ctx, c)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	svc      *Service
	store    *countingStore
	provider *fakeProvider
	clock    *testClock
}

func newHarness() *harness {
	log := logrus.New()
	log.SetOutput(io.Discard)
	h := &harness{
		store:    &countingStore{EntitlementStore: memorystore.NewEntitlementStore()},
		provider: newFakeProvider(),
		clock:    &testClock{t: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)},
	}
	cfg := Config{
		WebhookSecret: testSecret,
		ProviderPlans: map[entitlements.Plan]string{
			entitlements.PlanMonthly: "plan_monthly",
			entitlements.PlanAnnual:  "plan_annual",
		},
		OrderPrices: map[entitlements.Plan]int64{
			entitlements.PlanMonthly:    49900,
			entitlements.PlanSemiannual: 249900,
			entitlements.PlanAnnual:     449900,
		},
	}
	h.svc = NewService(cfg, h.store, h.provider, WithLogger(log), WithClock(h.clock.Now))
	return h
}
