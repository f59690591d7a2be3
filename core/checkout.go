package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/PaulFidika/entitlekit/entitlements"
	"github.com/PaulFidika/entitlekit/identity"
	"github.com/PaulFidika/entitlekit/payments"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CheckoutRequest starts a provider-side purchase. The identity fields are
// embedded as correlation notes so webhooks can find the buyer later.
type CheckoutRequest struct {
	PlanID      string `json:"planId"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	DeviceID    string `json:"deviceId"`
	AffiliateID string `json:"affiliateId"`
	UTMSource   string `json:"utmSource"`
	Description string `json:"description"`
}

func (s *Service) checkoutPlan(req CheckoutRequest, fallback entitlements.Plan) (entitlements.Plan, string, error) {
	plan := fallback
	if strings.TrimSpace(req.PlanID) != "" {
		p, ok := entitlements.ParsePlan(req.PlanID)
		if !ok {
			return "", "", newError(KindValidation, "unknown plan", nil)
		}
		plan = p
	}
	if plan.IsTrial() {
		return "", "", newError(KindValidation, "trial plans cannot be purchased", nil)
	}
	email := identity.NormalizeEmail(req.Email)
	if !strings.Contains(email, "@") {
		return "", "", newError(KindValidation, "a valid email is required", nil)
	}
	return plan, email, nil
}

func (s *Service) correlationNotes(req CheckoutRequest, plan entitlements.Plan, email string) payments.Notes {
	affiliate := strings.TrimSpace(req.AffiliateID)
	if affiliate == "" {
		affiliate = strings.TrimSpace(req.UTMSource)
	}
	if affiliate == "" {
		affiliate = entitlements.AffiliateDirect
	}
	n := payments.Notes{
		payments.NoteUserKey:     email,
		payments.NoteUserEmail:   email,
		payments.NotePlanID:      string(plan),
		payments.NoteAffiliateID: affiliate,
		payments.NoteUTMSource:   affiliate,
		payments.NoteCreatedVia:  s.cfg.CreatedVia,
	}
	optional := map[string]string{
		payments.NoteUserName:    req.Name,
		payments.NoteUserPhone:   req.Phone,
		payments.NoteDeviceID:    req.DeviceID,
		payments.NoteDescription: req.Description,
	}
	for k, v := range optional {
		if v = strings.TrimSpace(v); v != "" {
			n[k] = v
		}
	}
	return n
}

// CreateOrder opens a one-time provider order priced from configuration.
func (s *Service) CreateOrder(ctx context.Context, req CheckoutRequest) (payments.Order, error) {
	plan, email, err := s.checkoutPlan(req, "")
	if err != nil {
		return payments.Order{}, err
	}
	if plan == "" {
		return payments.Order{}, newError(KindValidation, "planId is required", nil)
	}
	price, ok := s.cfg.OrderPrices[plan]
	if !ok || price <= 0 {
		return payments.Order{}, newError(KindValidation, fmt.Sprintf("plan %s is not sold as a one-time order", plan), nil)
	}
	if s.checkout == nil {
		return payments.Order{}, newError(KindProvider, "payment provider not configured", nil)
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	order, err := s.checkout.CreateOrder(pctx, payments.OrderParams{
		Amount:   price,
		Currency: s.cfg.Currency,
		Receipt:  receipt(),
		Notes:    s.correlationNotes(req, plan, email),
	})
	if err != nil {
		s.log.WithError(err).WithField("plan_id", plan).Error("order creation failed")
		return payments.Order{}, newError(KindProvider, "order creation failed", err)
	}
	s.log.WithFields(logrus.Fields{"order_id": order.ID, "user_key": email, "plan_id": plan}).Info("order created")
	return order, nil
}

// CreateSubscription opens a recurring provider subscription. The plan
// defaults to monthly.
func (s *Service) CreateSubscription(ctx context.Context, req CheckoutRequest) (payments.Subscription, error) {
	plan, email, err := s.checkoutPlan(req, entitlements.PlanMonthly)
	if err != nil {
		return payments.Subscription{}, err
	}
	providerPlan := s.cfg.ProviderPlans[plan]
	if providerPlan == "" {
		return payments.Subscription{}, newError(KindValidation, fmt.Sprintf("plan %s has no recurring billing plan", plan), nil)
	}
	if s.checkout == nil {
		return payments.Subscription{}, newError(KindProvider, "payment provider not configured", nil)
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	sub, err := s.checkout.CreateSubscription(pctx, payments.SubscriptionParams{
		PlanID:         providerPlan,
		TotalCount:     s.cfg.SubscriptionCycles,
		CustomerNotify: true,
		Notes:          s.correlationNotes(req, plan, email),
	})
	if err != nil {
		s.log.WithError(err).WithField("plan_id", plan).Error("subscription creation failed")
		return payments.Subscription{}, newError(KindProvider, "subscription creation failed", err)
	}
	s.log.WithFields(logrus.Fields{"subscription_id": sub.ID, "user_key": email, "plan_id": plan}).Info("subscription created")
	return sub, nil
}

// receipt returns a provider receipt id; the provider caps receipts at 40 chars.
func receipt() string {
	return "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
