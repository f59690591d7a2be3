package entitlements

import (
	"context"
	"time"
)

// Field names an exact-match lookup column of the entitlement collection.
type Field string

const (
	FieldKey         Field = "user_key"
	FieldEmail       Field = "user_email"
	FieldPhone       Field = "user_phone_normalized"
	FieldDevice      Field = "device_fingerprint"
	FieldTransaction Field = "transaction_ref"
)

// Lookup answers "does at least one record match" queries.
type Lookup interface {
	Exists(ctx context.Context, field Field, value string) (bool, error)
}

// Claim binds a paid transaction reference to the user it was redeemed for
// and the window it funded.
type Claim struct {
	Ref       string
	Key       string
	Plan      Plan
	StartDate time.Time
	EndDate   time.Time
	ClaimedAt time.Time
}

// Store is the document-per-user entitlement collection.
//
// Upsert applies Merge atomically against the stored document and returns
// the resulting record. Get and Find return (nil, nil) when nothing matches.
type Store interface {
	Lookup
	Get(ctx context.Context, key string) (*Record, error)
	Find(ctx context.Context, field Field, value string) (*Record, error)
	Upsert(ctx context.Context, patch Record) (Record, error)
	// ListExpired returns active or trialing records whose EndDate is not after now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Record, error)
	// Expire moves key to inactive if, at write time, it is still active or
	// trialing with an EndDate not after now. It returns the updated record,
	// or nil when the record was renewed, cancelled or removed meanwhile.
	Expire(ctx context.Context, key string, now time.Time) (*Record, error)
	// ClaimTransaction stores c unless c.Ref is already claimed. It returns
	// the stored claim and whether this call created it.
	ClaimTransaction(ctx context.Context, c Claim) (Claim, bool, error)
}
