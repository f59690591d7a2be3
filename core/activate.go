package core

import (
	"context"
	"strings"

	"github.com/PaulFidika/entitlekit/entitlements"
	"github.com/PaulFidika/entitlekit/identity"
	"github.com/PaulFidika/entitlekit/metrics"
	"github.com/PaulFidika/entitlekit/payments"
	"github.com/sirupsen/logrus"
)

// ActivationRequest is a client-originated plan activation.
type ActivationRequest struct {
	PlanID        string `json:"planId"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	DeviceID      string `json:"deviceId"`
	TransactionID string `json:"transactionId"`
	AffiliateID   string `json:"affiliateId"`
}

// Activate grants a plan. Trial plans pass the abuse guard; paid plans must
// reference a transaction the provider reports as completed.
func (s *Service) Activate(ctx context.Context, req ActivationRequest) (rec entitlements.Record, err error) {
	plan, ok := entitlements.ParsePlan(req.PlanID)
	defer func() {
		label := string(plan)
		if !ok {
			label = "unknown"
		}
		outcome := "ok"
		if err != nil {
			outcome = KindOf(err).String()
		}
		metrics.ActivationsTotal.WithLabelValues(label, outcome).Inc()
	}()

	if !ok {
		return rec, newError(KindValidation, "unknown plan", nil)
	}
	sig := identity.NewSignals(req.Email, req.Phone, req.DeviceID)
	if !strings.Contains(sig.Key, "@") {
		return rec, newError(KindValidation, "a valid email is required", nil)
	}
	log := s.log.WithFields(logrus.Fields{"user_key": sig.Key, "plan_id": plan})

	ref := strings.TrimSpace(req.TransactionID)
	if plan.IsTrial() {
		if err := s.checkTrial(ctx, sig, log); err != nil {
			return rec, err
		}
	} else if err := s.checkPayment(ctx, sig.Key, plan, ref, log); err != nil {
		return rec, err
	}

	prev, err := s.get(ctx, sig.Key)
	if err != nil {
		return rec, err
	}
	patch := entitlements.Activate(entitlements.Activation{
		Plan:           plan,
		Signals:        sig,
		Name:           strings.TrimSpace(req.Name),
		PhoneRaw:       strings.TrimSpace(req.Phone),
		AffiliateID:    strings.TrimSpace(req.AffiliateID),
		TransactionRef: ref,
	}, s.clock())
	if !plan.IsTrial() {
		var redeemed bool
		patch, redeemed, err = s.claim(ctx, prev, patch, log)
		if err != nil {
			return rec, err
		}
		if redeemed {
			return *prev, nil
		}
	}
	return s.apply(ctx, "activation", prev, patch)
}

func (s *Service) checkTrial(ctx context.Context, sig identity.Signals, log logrus.FieldLogger) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	v, err := s.guard.CheckTrialEligibility(sctx, sig)
	if err != nil {
		log.WithError(err).Error("trial eligibility check failed")
		return newError(KindStoreUnavailable, "could not verify trial eligibility", err)
	}
	if !v.Eligible {
		metrics.TrialBlocksTotal.WithLabelValues(string(v.Signal)).Inc()
		log.WithField("signal", v.Signal).Info("trial refused")
		return newError(KindAbuseBlocked, v.Reason, nil)
	}
	return nil
}

func (s *Service) checkPayment(ctx context.Context, key string, plan entitlements.Plan, ref string, log logrus.FieldLogger) error {
	if ref == "" {
		return newError(KindValidation, "transactionId is required for paid plans", nil)
	}
	v := s.verifier.Verify(ctx, ref)
	if !v.Verified {
		log.WithFields(logrus.Fields{"ref": ref, "reason": v.Reason}).Info("payment not verified")
		return newError(KindPaymentUnverified, v.Reason, nil)
	}
	if err := s.checkFunds(plan, v); err != nil {
		log.WithFields(logrus.Fields{"ref": ref, "reason": ReasonOf(err), "amount": v.Amount, "noted_plan": v.Notes.Get(payments.NotePlanID)}).Warn("payment does not fund plan")
		return err
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	owner, err := s.store.Find(sctx, entitlements.FieldTransaction, ref)
	if err != nil {
		return newError(KindStoreUnavailable, "entitlement store unavailable", err)
	}
	if owner != nil && owner.Key != key {
		log.WithFields(logrus.Fields{"ref": ref, "owner": owner.Key}).Warn("transaction already linked to another user")
		return newError(KindPaymentUnverified, "transaction is already linked to another account", nil)
	}
	return nil
}

// checkFunds binds a verified transaction to the requested plan. Subscriptions
// must run on that plan's provider plan; one-time payments must carry at
// least that plan's order price.
func (s *Service) checkFunds(plan entitlements.Plan, v payments.Verification) error {
	if noted, ok := entitlements.ParsePlan(v.Notes.Get(payments.NotePlanID)); ok && !noted.IsTrial() && noted != plan {
		return newError(KindPaymentUnverified, "transaction was issued for a different plan", nil)
	}
	if v.Kind == payments.RefSubscription {
		if want := s.cfg.ProviderPlans[plan]; want != "" && v.ProviderPlanID != want {
			return newError(KindPaymentUnverified, "transaction was issued for a different plan", nil)
		}
		return nil
	}
	price := s.cfg.OrderPrices[plan]
	if price <= 0 {
		return newError(KindPaymentUnverified, "this plan cannot be bought with a one-time payment", nil)
	}
	if v.Amount < price || (v.Currency != "" && !strings.EqualFold(v.Currency, s.cfg.Currency)) {
		return newError(KindPaymentUnverified, "payment amount does not cover this plan", nil)
	}
	return nil
}

// claim records the reference against the user in the transaction ledger.
// A reference redeemed before keeps the window it funded the first time: if
// the record already reaches that far the activation is a replay and
// redeemed is true.
func (s *Service) claim(ctx context.Context, prev *entitlements.Record, patch entitlements.Record, log logrus.FieldLogger) (entitlements.Record, bool, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	c, created, err := s.store.ClaimTransaction(sctx, entitlements.Claim{
		Ref:       patch.TransactionRef,
		Key:       patch.Key,
		Plan:      patch.PlanID,
		StartDate: patch.StartDate,
		EndDate:   patch.EndDate,
		ClaimedAt: patch.LastUpdated,
	})
	if err != nil {
		return patch, false, newError(KindStoreUnavailable, "could not record transaction", err)
	}
	if c.Key != patch.Key {
		log.WithFields(logrus.Fields{"ref": c.Ref, "owner": c.Key}).Warn("transaction already redeemed by another user")
		return patch, false, newError(KindPaymentUnverified, "transaction is already linked to another account", nil)
	}
	if created {
		return patch, false, nil
	}
	if prev != nil && !prev.EndDate.Before(c.EndDate) {
		log.WithFields(logrus.Fields{"ref": c.Ref, "end_date": prev.EndDate}).Info("transaction already redeemed")
		return patch, true, nil
	}
	// The claim exists but its window never reached the record.
	patch.PlanID, patch.StartDate, patch.EndDate = c.Plan, c.StartDate, c.EndDate
	return patch, false, nil
}
