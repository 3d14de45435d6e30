package poswebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ValidSignature accepts either the hex HMAC-SHA256 of the body keyed by the
// shared secret or the shared secret itself. Both comparisons are constant time.
func ValidSignature(payload []byte, secret, header string) bool {
	header = strings.TrimSpace(header)
	if header == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	digestOK := hmac.Equal([]byte(expected), []byte(strings.ToLower(header)))
	secretOK := hmac.Equal([]byte(secret), []byte(header))
	return digestOK || secretOK
}
