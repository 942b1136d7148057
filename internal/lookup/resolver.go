package lookup

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Resolver maps short human-facing machine codes to device identifiers.
//
// Codes are printed on the machines (and embedded in their QR labels), so
// input is normalised before lookup: surrounding whitespace is stripped and
// letters are uppercased. When a shared secret is configured, requests
// carrying a signature are verified against HMAC-SHA256 of the normalised
// code; a request without a signature is still served, which keeps plain
// printed codes usable alongside signed QR links.
type Resolver struct {
	secret string
	codes  map[string]string
}

// NewResolver creates a resolver over a code-to-deviceID table. The map is
// copied with normalised keys, so later mutation of the argument has no
// effect.
func NewResolver(secret string, codes map[string]string) *Resolver {
	normalised := make(map[string]string, len(codes))
	for code, deviceID := range codes {
		normalised[Normalize(code)] = deviceID
	}
	return &Resolver{secret: secret, codes: normalised}
}

// Normalize trims surrounding whitespace and uppercases a machine code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Resolve returns the device ID for a machine code.
//
// Returns:
//   - ErrInvalidCode when the code is blank after normalisation
//   - ErrBadSignature when a signature is present but does not verify
//   - ErrUnknownCode when the code maps to nothing
func (r *Resolver) Resolve(code, sig string) (string, error) {
	normalised := Normalize(code)
	if normalised == "" {
		return "", ErrInvalidCode
	}

	if sig != "" && r.secret != "" && !r.verify(normalised, sig) {
		return "", ErrBadSignature
	}

	deviceID, ok := r.codes[normalised]
	if !ok {
		return "", ErrUnknownCode
	}
	return deviceID, nil
}

// verify checks a hex-encoded HMAC-SHA256 signature over the normalised
// code, in constant time.
func (r *Resolver) verify(normalised, sig string) bool {
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(r.secret))
	mac.Write([]byte(normalised))
	return hmac.Equal(mac.Sum(nil), want)
}

// Sign produces the hex HMAC-SHA256 signature for a code under the
// resolver's secret. Used when generating QR links; returns an empty string
// when no secret is configured.
func (r *Resolver) Sign(code string) string {
	if r.secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(r.secret))
	mac.Write([]byte(Normalize(code)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Count returns the number of configured codes.
func (r *Resolver) Count() int {
	return len(r.codes)
}
