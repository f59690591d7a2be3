package identity

import "strings"

// phoneDigits is the number of trailing digits kept from a phone number.
// Country-code prefixes beyond this are dropped so "+91-98765 43210" and
// "9876543210" compare equal.
const phoneDigits = 10

// NormalizePhone strips every non-digit and keeps the last 10 digits.
// Returns "" for empty input.
func NormalizePhone(raw string) string {
	if raw == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > phoneDigits {
		out = out[len(out)-phoneDigits:]
	}
	return out
}

// NormalizeEmail trims and lower-cases an email so it can be used as a record key.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// HasFullPhone reports whether a normalized phone carries enough digits to be
// used as an abuse signal.
func HasFullPhone(normalized string) bool {
	return len(normalized) >= phoneDigits
}
