// Package password hashes and verifies user passwords with bcrypt and
// enforces the signup password policy.
package password

import (
	"errors"
	"net/http"
	"sync"
	"unicode"
	"unicode/utf8"

	internal_errors "github.com/gallery-dev/gallery/shared/errors"
	"golang.org/x/crypto/bcrypt"
)

const MinLength = 8

var (
	ErrTooShort = &internal_errors.ErrorWithStatusCode{Message: "Password must be at least 8 characters long", StatusCode: http.StatusBadRequest}
	ErrNoUpper  = &internal_errors.ErrorWithStatusCode{Message: "Password must contain an uppercase letter", StatusCode: http.StatusBadRequest}
	ErrNoLower  = &internal_errors.ErrorWithStatusCode{Message: "Password must contain a lowercase letter", StatusCode: http.StatusBadRequest}
	ErrNoDigit  = &internal_errors.ErrorWithStatusCode{Message: "Password must contain a digit", StatusCode: http.StatusBadRequest}
	ErrTooLong  = &internal_errors.ErrorWithStatusCode{Message: "Password must be at most 72 bytes long", StatusCode: http.StatusBadRequest}
	dummySecret = "gallery-timing-equalizer"
)

// CheckStrength returns nil for an acceptable password, otherwise the first
// failing rule in the order: length, uppercase, lowercase, digit.
func CheckStrength(plaintext string) error {
	if utf8.RuneCountInString(plaintext) < MinLength {
		return ErrTooShort
	}
	var upper, lower, digit bool
	for _, r := range plaintext {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper {
		return ErrNoUpper
	}
	if !lower {
		return ErrNoLower
	}
	if !digit {
		return ErrNoDigit
	}
	return nil
}

type Hasher struct {
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

func New(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns a salted bcrypt hash. bcrypt rejects inputs longer than 72 bytes,
// which surfaces as a validation error.
func (h *Hasher) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrTooLong
		}
		return "", err
	}
	return string(hash), nil
}

// Verify never errors: any mismatch or malformed hash is simply false.
func (h *Hasher) Verify(plaintext, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// Equalize burns one comparison against a fixed hash so that lookups of
// unknown accounts take as long as a real password check.
func (h *Hasher) Equalize(plaintext string) {
	h.dummyOnce.Do(func() {
		h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(dummySecret), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(plaintext))
}
