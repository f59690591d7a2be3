package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PaulFidika/entitlekit/payments"
)

// ErrMalformed marks payloads that cannot be decoded into a known event variant.
var ErrMalformed = errors.New("webhook: malformed payload")

// Action is the target transition an event asks for.
type Action int

const (
	ActionNone Action = iota
	ActionActivate
	ActionCancel
)

func (a Action) String() string {
	switch a {
	case ActionActivate:
		return "activate"
	case ActionCancel:
		return "cancel"
	}
	return "none"
}

var subscriptionActions = map[string]Action{
	"subscription.activated": ActionActivate,
	"subscription.charged":   ActionActivate,
	"subscription.completed": ActionActivate,
	"subscription.cancelled": ActionCancel,
	"subscription.halted":    ActionCancel,
}

const eventOrderPaid = "order.paid"

// Correlation is the identity and plan metadata an event carries back from
// order or subscription creation.
type Correlation struct {
	Key         string
	Email       string
	Name        string
	Phone       string
	DeviceID    string
	AffiliateID string
	PlanID      string
	Ref         string
	PeriodStart time.Time
}

// Event is one of SubscriptionEvent, OrderPaidEvent or UnrecognizedEvent.
type Event interface {
	Type() string
	Action() Action
	Correlation() Correlation
}

type SubscriptionEvent struct {
	Name         string
	Subscription payments.Subscription
	Payment      *payments.Payment
	CreatedAt    time.Time
}

func (e SubscriptionEvent) Type() string   { return e.Name }
func (e SubscriptionEvent) Action() Action { return subscriptionActions[e.Name] }

func (e SubscriptionEvent) Correlation() Correlation {
	var pn payments.Notes
	var pay payments.Payment
	if e.Payment != nil {
		pay = *e.Payment
		pn = pay.Notes
	}
	sn := e.Subscription.Notes
	c := correlate(sn, pn)
	c.Ref = e.Subscription.ID
	if c.Email == "" {
		c.Email = pay.Email
	}
	if c.Phone == "" {
		c.Phone = pay.Contact
	}
	c.PeriodStart = firstTime(payments.Unix(e.Subscription.CurrentStart), payments.Unix(pay.CreatedAt), e.CreatedAt)
	return c
}

type OrderPaidEvent struct {
	Payment   payments.Payment
	Order     *payments.Order
	CreatedAt time.Time
}

func (e OrderPaidEvent) Type() string   { return eventOrderPaid }
func (e OrderPaidEvent) Action() Action { return ActionActivate }

func (e OrderPaidEvent) Correlation() Correlation {
	var on payments.Notes
	var orderID string
	if e.Order != nil {
		on = e.Order.Notes
		orderID = e.Order.ID
	}
	c := correlate(e.Payment.Notes, on)
	switch {
	case e.Payment.OrderID != "":
		c.Ref = e.Payment.OrderID
	case orderID != "":
		c.Ref = orderID
	default:
		c.Ref = e.Payment.ID
	}
	if c.Email == "" {
		c.Email = e.Payment.Email
	}
	if c.Phone == "" {
		c.Phone = e.Payment.Contact
	}
	c.PeriodStart = firstTime(payments.Unix(e.Payment.CreatedAt), e.CreatedAt)
	return c
}

// UnrecognizedEvent is acknowledged without any state change.
type UnrecognizedEvent struct {
	Name string
}

func (e UnrecognizedEvent) Type() string             { return e.Name }
func (e UnrecognizedEvent) Action() Action           { return ActionNone }
func (e UnrecognizedEvent) Correlation() Correlation { return Correlation{} }

type entityWrapper[T any] struct {
	Entity T `json:"entity"`
}

type envelope struct {
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Subscription *entityWrapper[payments.Subscription] `json:"subscription"`
		Payment      *entityWrapper[payments.Payment]      `json:"payment"`
		Order        *entityWrapper[payments.Order]        `json:"order"`
	} `json:"payload"`
}

// Decode parses an authenticated body into an event variant.
func Decode(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformed)
	}
	created := payments.Unix(env.CreatedAt)

	if _, ok := subscriptionActions[env.Event]; ok {
		if env.Payload.Subscription == nil || env.Payload.Subscription.Entity.ID == "" {
			return nil, fmt.Errorf("%w: %s without subscription entity", ErrMalformed, env.Event)
		}
		ev := SubscriptionEvent{Name: env.Event, Subscription: env.Payload.Subscription.Entity, CreatedAt: created}
		if env.Payload.Payment != nil {
			p := env.Payload.Payment.Entity
			ev.Payment = &p
		}
		return ev, nil
	}
	if env.Event == eventOrderPaid {
		if env.Payload.Payment == nil || env.Payload.Payment.Entity.ID == "" {
			return nil, fmt.Errorf("%w: %s without payment entity", ErrMalformed, env.Event)
		}
		ev := OrderPaidEvent{Payment: env.Payload.Payment.Entity, CreatedAt: created}
		if env.Payload.Order != nil {
			o := env.Payload.Order.Entity
			ev.Order = &o
		}
		return ev, nil
	}
	return UnrecognizedEvent{Name: env.Event}, nil
}

func correlate(primary, fallback payments.Notes) Correlation {
	get := func(keys ...string) string {
		if v := primary.Get(keys...); v != "" {
			return v
		}
		return fallback.Get(keys...)
	}
	return Correlation{
		Key:         get(payments.NoteUserKey),
		Email:       get(payments.NoteUserEmail),
		Name:        get(payments.NoteUserName),
		Phone:       get(payments.NoteUserPhone),
		DeviceID:    get(payments.NoteDeviceID),
		AffiliateID: get(payments.NoteAffiliateID, payments.NoteUTMSource),
		PlanID:      get(payments.NotePlanID),
	}
}

func firstTime(ts ...time.Time) time.Time {
	for _, t := range ts {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}
