package payments

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Correlation note keys embedded at order and subscription creation.
const (
	NoteUserKey     = "user_key"
	NoteUserEmail   = "user_email"
	NoteUserName    = "user_name"
	NoteUserPhone   = "user_phone"
	NotePlanID      = "plan_id"
	NoteAffiliateID = "affiliate_id"
	NoteUTMSource   = "utm_source"
	NoteDeviceID    = "device_id"
	NoteCreatedVia  = "created_via"
	NoteDescription = "description"
)

// Notes is provider-side key/value metadata. The provider encodes empty notes
// as a JSON array, so both [] and {} decode.
type Notes map[string]string

func (n *Notes) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) || b[0] == '[' {
		*n = Notes{}
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode notes: %w", err)
	}
	out := make(Notes, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			out[k] = t
		case nil:
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	*n = out
	return nil
}

// Get returns the first non-empty value among keys.
func (n Notes) Get(keys ...string) string {
	for _, k := range keys {
		if v := n[k]; v != "" {
			return v
		}
	}
	return ""
}

// With returns a copy of n where every non-empty value in over wins.
func (n Notes) With(over Notes) Notes {
	out := make(Notes, len(n)+len(over))
	for k, v := range n {
		out[k] = v
	}
	for k, v := range over {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Provider status values.
const (
	SubscriptionActive        = "active"
	SubscriptionAuthenticated = "authenticated"
	PaymentCaptured           = "captured"
)

// Subscription is the provider subscription entity.
type Subscription struct {
	ID           string `json:"id"`
	PlanID       string `json:"plan_id"`
	CustomerID   string `json:"customer_id,omitempty"`
	Status       string `json:"status"`
	CurrentStart int64  `json:"current_start,omitempty"`
	CurrentEnd   int64  `json:"current_end,omitempty"`
	ShortURL     string `json:"short_url,omitempty"`
	Notes        Notes  `json:"notes"`
}

// Payment is the provider payment entity.
type Payment struct {
	ID         string `json:"id"`
	OrderID    string `json:"order_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
	Status     string `json:"status"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Email      string `json:"email,omitempty"`
	Contact    string `json:"contact,omitempty"`
	CreatedAt  int64  `json:"created_at,omitempty"`
	Notes      Notes  `json:"notes"`
}

// Order is the provider one-time order entity.
type Order struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Receipt   string `json:"receipt,omitempty"`
	Status    string `json:"status,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
	Notes     Notes  `json:"notes"`
}

// Unix converts a provider timestamp; zero stays zero.
func Unix(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// OrderParams creates a one-time order. Amount is in the currency's minor unit.
type OrderParams struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    Notes
}

// SubscriptionParams creates a recurring subscription on a provider plan.
type SubscriptionParams struct {
	PlanID         string
	TotalCount     int
	CustomerNotify bool
	Notes          Notes
}
