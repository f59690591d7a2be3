package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Razorpay-Signature"

// ErrForged is returned for every delivery that cannot be proven authentic.
var ErrForged = errors.New("webhook: invalid signature")

// Sign returns the expected signature of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate checks signature against the raw, unparsed body. A missing
// secret or signature fails, as does any panic during hashing.
func Authenticate(body []byte, signature, secret string) (err error) {
	defer func() {
		if recover() != nil {
			err = ErrForged
		}
	}()
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return ErrForged
	}
	expected := Sign(body, secret)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return ErrForged
	}
	return nil
}
