// Package signature signs and verifies webhook bodies with base64(HMAC-SHA256(body, secret)).
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

var (
	ErrMissingSecret    = errors.New("signature secret is not configured")
	ErrMissingSignature = errors.New("signature header is missing")
	ErrMismatch         = errors.New("signature mismatch")
)

func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time. The header value is decoded before the
// comparison so that both sides have the digest length.
func Verify(body []byte, header, secret string) error {
	if secret == "" {
		return ErrMissingSecret
	}

	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}

	got, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return ErrMismatch
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrMismatch
	}

	return nil
}
