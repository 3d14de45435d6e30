package poswebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestValidSignature(t *testing.T) {
	body := []byte(`{"orderId":"pos-1","status":"Delivered"}`)
	digest := sign(body, "s3cret")

	cases := map[string]struct {
		secret string
		header string
		want   bool
	}{
		"hex digest":           {secret: "s3cret", header: digest, want: true},
		"upper-case digest":    {secret: "s3cret", header: strings.ToUpper(digest), want: true},
		"raw shared secret":    {secret: "s3cret", header: "s3cret", want: true},
		"wrong secret":         {secret: "other", header: digest, want: false},
		"empty header":         {secret: "s3cret", header: "", want: false},
		"no configured secret": {secret: "", header: "", want: false},
		"extended digest":      {secret: "s3cret", header: digest + "00", want: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := ValidSignature(body, tc.secret, tc.header); got != tc.want {
				t.Fatalf("expected %v got %v", tc.want, got)
			}
		})
	}
}
