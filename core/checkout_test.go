package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PaulFidika/entitlekit/entitlements"
	"github.com/PaulFidika/entitlekit/payments"
)

func TestCreateOrderUsesConfiguredPrice(t *testing.T) {
	h := newHarness()
	order, err := h.svc.CreateOrder(context.Background(), CheckoutRequest{
		PlanID: "annual", Email: "Buyer@Example.com", Name: "Buyer", Phone: "9000000001",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID != "order_new" || len(h.provider.createdOrders) != 1 {
		t.Fatalf("order = %+v", order)
	}
	p := h.provider.createdOrders[0]
	if p.Amount != 449900 || p.Currency != "INR" {
		t.Fatalf("amount/currency = %d/%s", p.Amount, p.Currency)
	}
	if !strings.HasPrefix(p.Receipt, "rcpt_") || len(p.Receipt) > 40 {
		t.Fatalf("receipt = %q", p.Receipt)
	}
	want := map[string]string{
		payments.NoteUserKey:     "buyer@example.com",
		payments.NoteUserEmail:   "buyer@example.com",
		payments.NotePlanID:      "annual",
		payments.NoteAffiliateID: entitlements.AffiliateDirect,
		payments.NoteUserName:    "Buyer",
		payments.NoteUserPhone:   "9000000001",
		payments.NoteCreatedVia:  "entitlekit",
	}
	for k, v := range want {
		if p.Notes[k] != v {
			t.Fatalf("note %s = %q, want %q", k, p.Notes[k], v)
		}
	}
	if _, ok := p.Notes[payments.NoteDeviceID]; ok {
		t.Fatalf("empty device id should not be sent")
	}
}

func TestCreateOrderValidation(t *testing.T) {
	h := newHarness()
	for _, req := range []CheckoutRequest{
		{Email: "a@example.com"},
		{PlanID: "trial", Email: "a@example.com"},
		{PlanID: "monthly"},
		{PlanID: "weekly", Email: "a@example.com"},
	} {
		if _, err := h.svc.CreateOrder(context.Background(), req); KindOf(err) != KindValidation {
			t.Fatalf("%+v: kind = %v", req, KindOf(err))
		}
	}
	if len(h.provider.createdOrders) != 0 {
		t.Fatalf("provider called on invalid request")
	}
}

func TestCreateSubscriptionDefaultsToMonthly(t *testing.T) {
	h := newHarness()
	sub, err := h.svc.CreateSubscription(context.Background(), CheckoutRequest{Email: "a@example.com", AffiliateID: "aff1"})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if sub.ID != "sub_new" {
		t.Fatalf("sub = %+v", sub)
	}
	p := h.provider.createdSubs[0]
	if p.PlanID != "plan_monthly" || p.TotalCount != 12 || !p.CustomerNotify {
		t.Fatalf("params = %+v", p)
	}
	if p.Notes[payments.NotePlanID] != "monthly" || p.Notes[payments.NoteUTMSource] != "aff1" {
		t.Fatalf("notes = %v", p.Notes)
	}

	if _, err := h.svc.CreateSubscription(context.Background(), CheckoutRequest{PlanID: "semiannual", Email: "a@example.com"}); KindOf(err) != KindValidation {
		t.Fatalf("unmapped plan: kind = %v", KindOf(err))
	}
}

func TestCreateOrderProviderFailure(t *testing.T) {
	h := newHarness()
	h.provider.err = errors.New("bad gateway")
	_, err := h.svc.CreateOrder(context.Background(), CheckoutRequest{PlanID: "monthly", Email: "a@example.com"})
	if KindOf(err) != KindProvider {
		t.Fatalf("kind = %v", KindOf(err))
	}
}
