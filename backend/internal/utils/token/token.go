// Package token mints opaque random secrets and does expiry arithmetic for them.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultLength is the number of random bytes behind refresh and verification tokens.
const DefaultLength = 32

func randomBytes(byteLength int) ([]byte, error) {
	if byteLength <= 0 {
		byteLength = DefaultLength
	}
	b := make([]byte, byteLength)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}

// Random returns byteLength random bytes, hex encoded.
func Random(byteLength int) (string, error) {
	b, err := randomBytes(byteLength)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RandomURLSafe returns byteLength random bytes, base64url encoded without padding.
func RandomURLSafe(byteLength int) (string, error) {
	b, err := randomBytes(byteLength)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func ExpiryFromNow(ttl time.Duration) time.Time {
	return time.Now().Add(ttl)
}

// IsExpired is strict: a token expiring exactly now is still valid.
func IsExpired(expires time.Time) bool {
	return IsExpiredAt(expires, time.Now())
}

func IsExpiredAt(expires, now time.Time) bool {
	return now.After(expires)
}
