package entitlements

import (
	"context"
	"fmt"

	"github.com/PaulFidika/entitlekit/identity"
)

// Verdict is the outcome of a trial eligibility check.
type Verdict struct {
	Eligible bool
	// Signal is the identity field that matched an existing record when blocked.
	Signal Field
	Reason string
}

var (
	eligible      = Verdict{Eligible: true}
	blockedEmail  = Verdict{Signal: FieldKey, Reason: "a free trial has already been used with this email"}
	blockedPhone  = Verdict{Signal: FieldPhone, Reason: "a free trial has already been used with this phone number"}
	blockedDevice = Verdict{Signal: FieldDevice, Reason: "a free trial has already been used on this device"}
)

// Guard denies free trials to identities that already appear in any record.
type Guard struct {
	lookup Lookup
}

func NewGuard(l Lookup) *Guard { return &Guard{lookup: l} }

// CheckTrialEligibility runs the key, phone and device checks in that order and
// stops at the first match. An error means the lookup failed and the trial
// must be refused.
func (g *Guard) CheckTrialEligibility(ctx context.Context, s identity.Signals) (Verdict, error) {
	if s.Key == "" {
		return Verdict{}, fmt.Errorf("trial eligibility: empty user key")
	}
	checks := []struct {
		field   Field
		value   string
		skip    bool
		blocked Verdict
	}{
		{FieldKey, s.Key, false, blockedEmail},
		{FieldPhone, s.PhoneNormalized, !identity.HasFullPhone(s.PhoneNormalized), blockedPhone},
		{FieldDevice, s.DeviceFingerprint, s.DeviceFingerprint == "", blockedDevice},
	}
	for _, c := range checks {
		if c.skip {
			continue
		}
		found, err := g.lookup.Exists(ctx, c.field, c.value)
		if err != nil {
			return Verdict{}, fmt.Errorf("trial eligibility: %s lookup: %w", c.field, err)
		}
		if found {
			return c.blocked, nil
		}
	}
	return eligible, nil
}
