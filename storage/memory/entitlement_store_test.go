package memorystore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/PaulFidika/entitlekit/entitlements"
)

func TestUpsertMerges(t *testing.T) {
	ctx := context.Background()
	s := NewEntitlementStore()
	now := time.Now().UTC()

	if _, err := s.Upsert(ctx, entitlements.Record{Key: "a@x.com", PlanID: entitlements.PlanTrial, Status: entitlements.StatusActive, UserName: "Ann", DeviceFingerprint: "dev-1", EndDate: now.Add(time.Hour)}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	out, err := s.Upsert(ctx, entitlements.Record{Key: "a@x.com", Status: entitlements.StatusCancelled})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if out.UserName != "Ann" || out.DeviceFingerprint != "dev-1" || out.Status != entitlements.StatusCancelled {
		t.Fatalf("merge lost fields: %+v", out)
	}
	if out.AffiliateID != entitlements.AffiliateDirect {
		t.Fatalf("affiliate default = %q", out.AffiliateID)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d", s.Len())
	}
}

func TestFindAndExists(t *testing.T) {
	ctx := context.Background()
	s := NewEntitlementStore()
	_, _ = s.Upsert(ctx, entitlements.Record{Key: "a@x.com", UserEmail: "a@x.com", UserPhoneNormalized: "9876543210", TransactionRef: "sub_1"})

	for _, tc := range []struct {
		field entitlements.Field
		value string
		want  bool
	}{
		{entitlements.FieldKey, "a@x.com", true},
		{entitlements.FieldEmail, "a@x.com", true},
		{entitlements.FieldPhone, "9876543210", true},
		{entitlements.FieldTransaction, "sub_1", true},
		{entitlements.FieldDevice, "dev-1", false},
		{entitlements.FieldDevice, "", false},
		{entitlements.FieldKey, "b@x.com", false},
	} {
		got, err := s.Exists(ctx, tc.field, tc.value)
		if err != nil {
			t.Fatalf("Exists: %v", err)
		}
		if got != tc.want {
			t.Errorf("Exists(%s, %q) = %v, want %v", tc.field, tc.value, got, tc.want)
		}
	}
}

func TestListExpired(t *testing.T) {
	ctx := context.Background()
	s := NewEntitlementStore()
	now := time.Now().UTC()
	_, _ = s.Upsert(ctx, entitlements.Record{Key: "old", Status: entitlements.StatusActive, EndDate: now.Add(-time.Hour)})
	_, _ = s.Upsert(ctx, entitlements.Record{Key: "older", Status: entitlements.StatusActive, EndDate: now.Add(-2 * time.Hour)})
	_, _ = s.Upsert(ctx, entitlements.Record{Key: "fresh", Status: entitlements.StatusActive, EndDate: now.Add(time.Hour)})
	_, _ = s.Upsert(ctx, entitlements.Record{Key: "gone", Status: entitlements.StatusCancelled, EndDate: now.Add(-time.Hour)})

	got, err := s.ListExpired(ctx, now, 0)
	if err != nil {
		t.Fatalf("ListExpired: %v", err)
	}
	if len(got) != 2 || got[0].Key != "older" || got[1].Key != "old" {
		t.Fatalf("unexpected expired set: %+v", got)
	}
	if got, _ := s.ListExpired(ctx, now, 1); len(got) != 1 {
		t.Fatalf("limit not applied: %d", len(got))
	}
}

func TestConcurrentUpsertsSameKey(t *testing.T) {
	ctx := context.Background()
	s := NewEntitlementStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Upsert(ctx, entitlements.Record{Key: "a@x.com", Status: entitlements.StatusActive, UserName: "Ann"})
		}()
	}
	wg.Wait()
	if s.Len() != 1 {
		t.Fatalf("expected one record per key, got %d", s.Len())
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewEntitlementStore().Get(ctx, "a"); err == nil {
		t.Fatal("expected context error")
	}
}

func TestExpireRechecksUnderLock(t *testing.T) {
	ctx := context.Background()
	s := NewEntitlementStore()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	_, _ = s.Upsert(ctx, entitlements.Record{Key: "due", Status: entitlements.StatusActive, EndDate: now.Add(-time.Hour)})
	_, _ = s.Upsert(ctx, entitlements.Record{Key: "renewed", Status: entitlements.StatusActive, EndDate: now.Add(-time.Hour)})

	// A renewal lands after the sweep listed both records.
	_, _ = s.Upsert(ctx, entitlements.Record{Key: "renewed", EndDate: now.Add(30 * 24 * time.Hour)})

	out, err := s.Expire(ctx, "due", now)
	if err != nil || out == nil || out.Status != entitlements.StatusInactive {
		t.Fatalf("Expire(due) = %+v, %v", out, err)
	}
	out, err = s.Expire(ctx, "renewed", now)
	if err != nil || out != nil {
		t.Fatalf("Expire(renewed) = %+v, %v", out, err)
	}
	if got, _ := s.Get(ctx, "renewed"); got.Status != entitlements.StatusActive {
		t.Fatalf("renewed record = %+v", got)
	}
	if out, _ := s.Expire(ctx, "missing", now); out != nil {
		t.Fatalf("Expire(missing) = %+v", out)
	}
}

func TestClaimTransactionFirstWins(t *testing.T) {
	ctx := context.Background()
	s := NewEntitlementStore()
	first := entitlements.Claim{Ref: "pay_1", Key: "a@x.com", Plan: entitlements.PlanMonthly}

	var wg sync.WaitGroup
	fresh := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := s.ClaimTransaction(ctx, first)
			if err != nil {
				t.Error(err)
			}
			fresh <- created
		}()
	}
	wg.Wait()
	close(fresh)
	n := 0
	for created := range fresh {
		if created {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("%d concurrent claims created", n)
	}

	got, created, err := s.ClaimTransaction(ctx, entitlements.Claim{Ref: "pay_1", Key: "b@x.com"})
	if err != nil || created || got.Key != "a@x.com" {
		t.Fatalf("second claim = %+v, %v, %v", got, created, err)
	}
	if _, _, err := s.ClaimTransaction(ctx, entitlements.Claim{Key: "a@x.com"}); err == nil {
		t.Fatalf("expected error for empty ref")
	}
}
