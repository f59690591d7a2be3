package identity

import "strings"

// Signals are the normalized identity keys used to detect repeat trials.
type Signals struct {
	Key               string // canonical email or identity-provider UID
	PhoneNormalized   string
	DeviceFingerprint string
}

// NewSignals normalizes raw client-supplied identifiers.
func NewSignals(email, phone, device string) Signals {
	return Signals{
		Key:               NormalizeEmail(email),
		PhoneNormalized:   NormalizePhone(phone),
		DeviceFingerprint: strings.TrimSpace(device),
	}
}
