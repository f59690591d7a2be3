package core

import (
	"context"
	"errors"
	"strings"

	"github.com/PaulFidika/entitlekit/entitlements"
	"github.com/PaulFidika/entitlekit/identity"
	"github.com/PaulFidika/entitlekit/webhook"
	"github.com/sirupsen/logrus"
)

// WebhookOutcome describes what a delivery did. Ignored deliveries are
// acknowledged without touching the store.
type WebhookOutcome struct {
	EventType string
	Applied   bool
	Key       string
	Status    entitlements.Status
	Ignored   string
}

// HandleWebhook authenticates body against signature, classifies the event
// and applies it to the correlated record.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (WebhookOutcome, error) {
	if err := webhook.Authenticate(body, signature, s.cfg.WebhookSecret); err != nil {
		return WebhookOutcome{}, newError(KindAuthenticationFailed, "invalid signature", err)
	}

	ev, err := webhook.Decode(body)
	if err != nil {
		if errors.Is(err, webhook.ErrMalformed) {
			s.log.WithError(err).Warn("webhook payload not understood")
			return WebhookOutcome{EventType: "malformed", Ignored: "malformed payload"}, nil
		}
		return WebhookOutcome{}, err
	}
	out := WebhookOutcome{EventType: ev.Type()}
	log := s.log.WithField("event", ev.Type())

	kind := changeKind(ev.Action())
	if kind == entitlements.ChangeNone {
		log.Debug("webhook event ignored")
		out.Ignored = "unhandled event type"
		return out, nil
	}

	c := ev.Correlation()
	prev, key, err := s.resolve(ctx, c)
	if err != nil {
		return out, err
	}
	if key == "" {
		log.Warn("webhook event carries no user key or email")
		out.Ignored = "no correlation"
		return out, nil
	}
	log = log.WithFields(logrus.Fields{"user_key": key, "ref": c.Ref})

	plan, _ := entitlements.ParsePlan(c.PlanID)
	patch, ok := entitlements.Reconcile(prev, entitlements.ProviderChange{
		Kind:              kind,
		Key:               key,
		Email:             c.Email,
		Name:              c.Name,
		PhoneRaw:          c.Phone,
		DeviceFingerprint: c.DeviceID,
		AffiliateID:       c.AffiliateID,
		Plan:              plan,
		TransactionRef:    c.Ref,
		PeriodStart:       c.PeriodStart,
	}, s.clock())
	if !ok {
		out.Ignored = "no transition"
		return out, nil
	}
	rec, err := s.apply(ctx, "webhook:"+ev.Type(), prev, patch)
	if err != nil {
		log.WithError(err).Error("webhook apply failed")
		return out, err
	}
	out.Applied, out.Key, out.Status = true, rec.Key, rec.Status
	return out, nil
}

// resolve finds the record an event targets: the embedded user key, then an
// existing record with the event's email, then the canonical email itself.
func (s *Service) resolve(ctx context.Context, c webhook.Correlation) (*entitlements.Record, string, error) {
	if key := strings.TrimSpace(c.Key); key != "" {
		prev, err := s.get(ctx, key)
		return prev, key, err
	}
	email := identity.NormalizeEmail(c.Email)
	if email == "" {
		return nil, "", nil
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	prev, err := s.store.Find(sctx, entitlements.FieldEmail, email)
	if err != nil {
		return nil, "", newError(KindStoreUnavailable, "entitlement store unavailable", err)
	}
	if prev != nil {
		return prev, prev.Key, nil
	}
	return nil, email, nil
}

func changeKind(a webhook.Action) entitlements.ChangeKind {
	switch a {
	case webhook.ActionActivate:
		return entitlements.ChangeActivate
	case webhook.ActionCancel:
		return entitlements.ChangeCancel
	}
	return entitlements.ChangeNone
}
