package entitlements

import (
	"time"

	"github.com/PaulFidika/entitlekit/identity"
)

// Activation is a client-originated request that already passed the abuse
// guard (trial plans) or payment verification (paid plans).
type Activation struct {
	Plan           Plan
	Signals        identity.Signals
	Name           string
	PhoneRaw       string
	AffiliateID    string
	TransactionRef string
}

// Activate computes the record patch for a successful client activation.
// Trial variants are stored as active; access gating treats them alike.
func Activate(a Activation, now time.Time) Record {
	d, _ := Duration(a.Plan)
	ref := a.TransactionRef
	if a.Plan.IsTrial() {
		ref = TransactionTrial
	}
	return Record{
		Key:                 a.Signals.Key,
		PlanID:              a.Plan,
		Status:              StatusActive,
		UserEmail:           a.Signals.Key,
		UserName:            a.Name,
		UserPhoneRaw:        a.PhoneRaw,
		UserPhoneNormalized: a.Signals.PhoneNormalized,
		DeviceFingerprint:   a.Signals.DeviceFingerprint,
		AffiliateID:         a.AffiliateID,
		TransactionRef:      ref,
		StartDate:           now,
		EndDate:             now.Add(d),
		LastUpdated:         now,
	}
}

// ChangeKind is the target transition derived from a provider event.
type ChangeKind int

const (
	ChangeNone ChangeKind = iota
	ChangeActivate
	ChangeCancel
)

// ProviderChange is a classified, authenticated webhook event resolved to a
// target record key.
type ProviderChange struct {
	Kind ChangeKind
	Key  string

	Email             string
	Name              string
	PhoneRaw          string
	DeviceFingerprint string
	AffiliateID       string

	// Plan is the plan recorded in the correlation metadata at order or
	// subscription creation. It may be empty.
	Plan           Plan
	TransactionRef string
	// PeriodStart is the provider-reported start of the funded period.
	PeriodStart time.Time
}

// Reconcile computes the record patch for a provider change. Each change
// carries the full target state, so applying it twice yields the same record
// apart from LastUpdated. ok is false for changes that must not mutate state.
func Reconcile(prev *Record, ch ProviderChange, now time.Time) (patch Record, ok bool) {
	if ch.Key == "" {
		return Record{}, false
	}
	var status Status
	switch ch.Kind {
	case ChangeActivate:
		status = StatusActive
	case ChangeCancel:
		status = StatusCancelled
	default:
		return Record{}, false
	}
	// A cancellation yields only to periods that began after it was stored.
	if status == StatusActive && prev != nil && prev.Status == StatusCancelled &&
		!ch.PeriodStart.IsZero() && !ch.PeriodStart.After(prev.LastUpdated) {
		return Record{}, false
	}

	patch = Record{
		Key:                 ch.Key,
		Status:              status,
		UserEmail:           identity.NormalizeEmail(ch.Email),
		UserName:            ch.Name,
		UserPhoneRaw:        ch.PhoneRaw,
		UserPhoneNormalized: identity.NormalizePhone(ch.PhoneRaw),
		DeviceFingerprint:   ch.DeviceFingerprint,
		AffiliateID:         ch.AffiliateID,
		TransactionRef:      ch.TransactionRef,
		LastUpdated:         now,
	}

	// A cancellation ends access through Status; the funded window stays as stored.
	if status == StatusCancelled && prev != nil {
		return patch, true
	}

	plan := paidPlan(prev, ch.Plan)
	start := ch.PeriodStart
	if start.IsZero() && prev != nil {
		start = prev.StartDate
	}
	if start.IsZero() {
		start = now
	}
	d, _ := Duration(plan)
	patch.PlanID = plan
	patch.StartDate = start
	patch.EndDate = start.Add(d)
	return patch, true
}

// paidPlan picks the plan whose duration a provider event funds: the plan from
// the correlation metadata, then the stored paid plan, then monthly.
func paidPlan(prev *Record, fromNotes Plan) Plan {
	if fromNotes.Valid() && !fromNotes.IsTrial() {
		return fromNotes
	}
	if prev != nil && prev.PlanID.Valid() && !prev.PlanID.IsTrial() {
		return prev.PlanID
	}
	return PlanMonthly
}

// Expire returns the patch that moves an elapsed active record to inactive.
func Expire(r Record, now time.Time) (Record, bool) {
	if r.Status != StatusActive && r.Status != StatusTrialing {
		return Record{}, false
	}
	if r.EndDate.After(now) {
		return Record{}, false
	}
	return Record{Key: r.Key, Status: StatusInactive, LastUpdated: now}, true
}

// Merge applies patch over prev. Empty strings and zero times in patch leave
// the stored value untouched; a missing affiliate defaults to AffiliateDirect.
func Merge(prev *Record, patch Record) Record {
	var out Record
	if prev != nil {
		out = *prev
	}
	setString(&out.Key, patch.Key)
	setString((*string)(&out.PlanID), string(patch.PlanID))
	setString((*string)(&out.Status), string(patch.Status))
	setString(&out.UserEmail, patch.UserEmail)
	setString(&out.UserName, patch.UserName)
	setString(&out.UserPhoneRaw, patch.UserPhoneRaw)
	setString(&out.UserPhoneNormalized, patch.UserPhoneNormalized)
	setString(&out.DeviceFingerprint, patch.DeviceFingerprint)
	setString(&out.AffiliateID, patch.AffiliateID)
	setString(&out.TransactionRef, patch.TransactionRef)
	setTime(&out.StartDate, patch.StartDate)
	setTime(&out.EndDate, patch.EndDate)
	setTime(&out.LastUpdated, patch.LastUpdated)
	if out.AffiliateID == "" {
		out.AffiliateID = AffiliateDirect
	}
	return out
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setTime(dst *time.Time, v time.Time) {
	if !v.IsZero() {
		*dst = v
	}
}
