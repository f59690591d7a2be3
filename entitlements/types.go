package entitlements

import "time"

// Plan identifies a billing tier.
type Plan string

const (
	PlanTrial         Plan = "trial"
	PlanTrialExtended Plan = "trial_extended"
	PlanMonthly       Plan = "monthly"
	PlanSemiannual    Plan = "semiannual"
	PlanAnnual        Plan = "annual"
)

// AllPlans lists every plan; Duration must cover each of them.
var AllPlans = []Plan{PlanTrial, PlanTrialExtended, PlanMonthly, PlanSemiannual, PlanAnnual}

const day = 24 * time.Hour

// Duration returns the entitlement window length for a plan.
// ok is false for unknown plans.
func Duration(p Plan) (d time.Duration, ok bool) {
	switch p {
	case PlanTrial:
		return 14 * day, true
	case PlanTrialExtended:
		return 30 * day, true
	case PlanMonthly:
		return 30 * day, true
	case PlanSemiannual:
		return 180 * day, true
	case PlanAnnual:
		return 365 * day, true
	}
	return 0, false
}

// ParsePlan validates a client- or provider-supplied plan id.
func ParsePlan(s string) (Plan, bool) {
	p := Plan(s)
	_, ok := Duration(p)
	return p, ok
}

func (p Plan) Valid() bool {
	_, ok := Duration(p)
	return ok
}

// IsTrial reports whether p is a free-trial variant.
func (p Plan) IsTrial() bool { return p == PlanTrial || p == PlanTrialExtended }

// Status is the persisted access status of a record.
type Status string

const (
	StatusTrialing  Status = "trialing"
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusCancelled Status = "cancelled"
)

const (
	// AffiliateDirect is stored when no affiliate referred the user.
	AffiliateDirect = "direct"
	// TransactionTrial is the TransactionRef of records funded by a free trial.
	TransactionTrial = "TRIAL"
)

// Record is the single authoritative entitlement document for a user.
type Record struct {
	Key                 string    `json:"user_key"`
	PlanID              Plan      `json:"plan_id"`
	Status              Status    `json:"status"`
	UserEmail           string    `json:"user_email"`
	UserName            string    `json:"user_name"`
	UserPhoneRaw        string    `json:"user_phone_raw"`
	UserPhoneNormalized string    `json:"user_phone_normalized"`
	DeviceFingerprint   string    `json:"device_fingerprint,omitempty"`
	AffiliateID         string    `json:"affiliate_id"`
	TransactionRef      string    `json:"transaction_ref"`
	StartDate           time.Time `json:"start_date"`
	EndDate             time.Time `json:"end_date"`
	LastUpdated         time.Time `json:"last_updated"`
}

// Active reports whether the record currently grants access.
func (r *Record) Active(now time.Time) bool {
	if r == nil {
		return false
	}
	if r.Status != StatusActive && r.Status != StatusTrialing {
		return false
	}
	return now.Before(r.EndDate)
}

// State is the conceptual lifecycle position of a user.
type State string

const (
	StateAbsent         State = "absent"
	StateTrialing       State = "trialing"
	StatePendingPayment State = "pending_payment"
	StateActive         State = "active"
	StateCancelled      State = "cancelled"
)

// StateOf derives the lifecycle state of a (possibly missing) record.
func StateOf(r *Record) State {
	switch {
	case r == nil:
		return StateAbsent
	case r.Status == StatusCancelled:
		return StateCancelled
	case r.Status == StatusActive && r.PlanID.IsTrial(), r.Status == StatusTrialing:
		return StateTrialing
	case r.Status == StatusActive:
		return StateActive
	default:
		return StatePendingPayment
	}
}
