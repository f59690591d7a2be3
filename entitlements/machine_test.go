package entitlements

import (
	"testing"
	"time"

	"github.com/PaulFidika/entitlekit/identity"
)

var t0 = time.Date(2026, 3, 4, 23, 59, 30, 0, time.UTC)

func TestDurationCoversEveryPlan(t *testing.T) {
	want := map[Plan]time.Duration{
		PlanTrial:         14 * day,
		PlanTrialExtended: 30 * day,
		PlanMonthly:       30 * day,
		PlanSemiannual:    180 * day,
		PlanAnnual:        365 * day,
	}
	for _, p := range AllPlans {
		d, ok := Duration(p)
		if !ok {
			t.Fatalf("plan %q has no duration", p)
		}
		if d != want[p] {
			t.Fatalf("Duration(%q) = %v, want %v", p, d, want[p])
		}
	}
	if _, ok := Duration("lifetime"); ok {
		t.Fatal("unknown plan must not have a duration")
	}
}

func TestActivateDurationIndependentOfTimeOfDay(t *testing.T) {
	for _, p := range AllPlans {
		for _, hour := range []int{0, 7, 13, 23} {
			now := time.Date(2026, 1, 31, hour, 17, 0, 0, time.UTC)
			r := Activate(Activation{Plan: p, Signals: identity.Signals{Key: "a@x.com"}}, now)
			d, _ := Duration(p)
			if got := r.EndDate.Sub(r.StartDate); got != d {
				t.Fatalf("%s at %02d:17: window %v, want %v", p, hour, got, d)
			}
		}
	}
}

func TestActivateTrial(t *testing.T) {
	s := identity.NewSignals("a@x.com", "+91 98765 43210", "")
	r := Merge(nil, Activate(Activation{Plan: PlanTrial, Signals: s, PhoneRaw: "+91 98765 43210"}, t0))
	if r.PlanID != PlanTrial || r.Status != StatusActive {
		t.Fatalf("plan/status = %s/%s", r.PlanID, r.Status)
	}
	if !r.EndDate.Equal(t0.Add(14 * day)) {
		t.Fatalf("end = %v", r.EndDate)
	}
	if r.UserPhoneNormalized != "9876543210" {
		t.Fatalf("phone = %q", r.UserPhoneNormalized)
	}
	if r.TransactionRef != TransactionTrial || r.AffiliateID != AffiliateDirect {
		t.Fatalf("ref/affiliate = %q/%q", r.TransactionRef, r.AffiliateID)
	}
	if StateOf(&r) != StateTrialing {
		t.Fatalf("state = %s", StateOf(&r))
	}
}

func TestReconcileIdempotent(t *testing.T) {
	prev := Merge(nil, Activate(Activation{Plan: PlanTrial, Signals: identity.Signals{Key: "a@x.com"}}, t0))
	ch := ProviderChange{
		Kind:           ChangeActivate,
		Key:            "a@x.com",
		Email:          "A@x.com",
		Plan:           PlanAnnual,
		TransactionRef: "sub_123",
		PeriodStart:    t0.Add(time.Hour),
	}
	p1, ok := Reconcile(&prev, ch, t0.Add(2*time.Hour))
	if !ok {
		t.Fatal("expected change")
	}
	once := Merge(&prev, p1)
	p2, _ := Reconcile(&once, ch, t0.Add(3*time.Hour))
	twice := Merge(&once, p2)

	if !twice.LastUpdated.After(once.LastUpdated) {
		t.Fatal("LastUpdated should move on every write")
	}
	once.LastUpdated, twice.LastUpdated = time.Time{}, time.Time{}
	if once != twice {
		t.Fatalf("second application changed record:\nonce:  %+v\ntwice: %+v", once, twice)
	}
	if once.Status != StatusActive || once.PlanID != PlanAnnual {
		t.Fatalf("status/plan = %s/%s", once.Status, once.PlanID)
	}
	if !once.EndDate.Equal(ch.PeriodStart.Add(365 * day)) {
		t.Fatalf("end = %v", once.EndDate)
	}
}

func TestReconcileWithoutTimestampsIsIdempotent(t *testing.T) {
	ch := ProviderChange{Kind: ChangeActivate, Key: "b@x.com", TransactionRef: "order_9"}
	p1, _ := Reconcile(nil, ch, t0)
	once := Merge(nil, p1)
	p2, _ := Reconcile(&once, ch, t0.Add(time.Minute))
	twice := Merge(&once, p2)
	if !once.StartDate.Equal(twice.StartDate) || !once.EndDate.Equal(twice.EndDate) {
		t.Fatalf("window moved: %v-%v then %v-%v", once.StartDate, once.EndDate, twice.StartDate, twice.EndDate)
	}
	if once.PlanID != PlanMonthly {
		t.Fatalf("plan fallback = %s", once.PlanID)
	}
}

func TestCancelledIsNotTerminal(t *testing.T) {
	prev := Merge(nil, Activate(Activation{Plan: PlanMonthly, Signals: identity.Signals{Key: "c@x.com"}, TransactionRef: "sub_1"}, t0))

	cancel, ok := Reconcile(&prev, ProviderChange{Kind: ChangeCancel, Key: "c@x.com", TransactionRef: "sub_1"}, t0.Add(day))
	if !ok {
		t.Fatal("expected cancel change")
	}
	cancelled := Merge(&prev, cancel)
	if cancelled.Status != StatusCancelled || StateOf(&cancelled) != StateCancelled {
		t.Fatalf("status = %s", cancelled.Status)
	}
	if !cancelled.EndDate.Equal(prev.EndDate) {
		t.Fatal("cancellation must not move the stored window")
	}

	paid, _ := Reconcile(&cancelled, ProviderChange{Kind: ChangeActivate, Key: "c@x.com", TransactionRef: "order_2", PeriodStart: t0.Add(2 * day)}, t0.Add(2*day))
	again := Merge(&cancelled, paid)
	if again.Status != StatusActive {
		t.Fatalf("status after order.paid = %s", again.Status)
	}
	if again.PlanID != PlanMonthly {
		t.Fatalf("plan = %s", again.PlanID)
	}
}

func TestReconcileIgnoresPeriodsStartedBeforeCancellation(t *testing.T) {
	cancelled := Record{
		Key: "c@x.com", PlanID: PlanMonthly, Status: StatusCancelled,
		StartDate: t0, EndDate: t0.Add(30 * day), LastUpdated: t0.Add(day),
	}
	late := ProviderChange{Kind: ChangeActivate, Key: "c@x.com", TransactionRef: "sub_1", PeriodStart: t0}
	if _, ok := Reconcile(&cancelled, late, t0.Add(2*day)); ok {
		t.Fatal("a period that began before the cancellation must not reactivate")
	}
	late.PeriodStart = t0.Add(day)
	if _, ok := Reconcile(&cancelled, late, t0.Add(2*day)); ok {
		t.Fatal("a period starting at the cancellation instant must not reactivate")
	}

	// Without a provider timestamp the event cannot be ordered and still applies.
	late.PeriodStart = time.Time{}
	if p, ok := Reconcile(&cancelled, late, t0.Add(2*day)); !ok || p.Status != StatusActive {
		t.Fatalf("untimed activation = %+v, %v", p, ok)
	}
}

func TestReconcileNoop(t *testing.T) {
	if _, ok := Reconcile(nil, ProviderChange{Kind: ChangeNone, Key: "k"}, t0); ok {
		t.Fatal("ChangeNone must not mutate")
	}
	if _, ok := Reconcile(nil, ProviderChange{Kind: ChangeActivate}, t0); ok {
		t.Fatal("missing key must not mutate")
	}
}

func TestReconcileIgnoresTrialPlanFromNotes(t *testing.T) {
	p, _ := Reconcile(nil, ProviderChange{Kind: ChangeActivate, Key: "d@x.com", Plan: PlanTrial, PeriodStart: t0}, t0)
	if p.PlanID != PlanMonthly {
		t.Fatalf("plan = %s", p.PlanID)
	}
}

func TestMergeKeepsUnrelatedFields(t *testing.T) {
	prev := Record{
		Key: "e@x.com", PlanID: PlanTrial, Status: StatusActive,
		UserName: "Eve", UserPhoneNormalized: "9876543210", DeviceFingerprint: "dev-1",
		AffiliateID: "aff-7", StartDate: t0, EndDate: t0.Add(14 * day),
	}
	out := Merge(&prev, Record{Key: "e@x.com", Status: StatusCancelled, LastUpdated: t0.Add(time.Hour)})
	if out.UserName != "Eve" || out.DeviceFingerprint != "dev-1" || out.AffiliateID != "aff-7" || out.UserPhoneNormalized != "9876543210" {
		t.Fatalf("merge cleared fields: %+v", out)
	}
	if out.Status != StatusCancelled || out.PlanID != PlanTrial {
		t.Fatalf("status/plan = %s/%s", out.Status, out.PlanID)
	}
}

func TestExpire(t *testing.T) {
	r := Merge(nil, Activate(Activation{Plan: PlanTrial, Signals: identity.Signals{Key: "f@x.com"}}, t0))
	if _, ok := Expire(r, t0.Add(13*day)); ok {
		t.Fatal("unexpired record must not expire")
	}
	p, ok := Expire(r, t0.Add(14*day))
	if !ok {
		t.Fatal("expected expiry at end date")
	}
	out := Merge(&r, p)
	if out.Status != StatusInactive || StateOf(&out) != StatePendingPayment {
		t.Fatalf("status = %s, state = %s", out.Status, StateOf(&out))
	}
	if _, ok := Expire(out, t0.Add(20*day)); ok {
		t.Fatal("inactive record must not expire twice")
	}
	if out.Active(t0.Add(14 * day)) {
		t.Fatal("expired record must not grant access")
	}
}
