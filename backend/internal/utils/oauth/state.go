package oauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/gallery-dev/gallery/backend/internal/utils/token"
)

const stateNonceLength = 24

// StateTTL is how long a user has to finish the provider consent screen.
const StateTTL = 10 * time.Minute

// StateSigner issues and checks self-contained state values of the form
// nonce.issuedAt.signature, so the callback can be verified without server-side storage.
// Binding the state to a browser is the caller's job (see the oauthState cookie).
type StateSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewStateSigner(key string) *StateSigner {
	return &StateSigner{key: []byte(key), ttl: StateTTL, now: time.Now}
}

func (s *StateSigner) New() (string, error) {
	nonce, err := token.RandomURLSafe(stateNonceLength)
	if err != nil {
		return "", err
	}
	return s.sign(nonce + "." + strconv.FormatInt(s.now().Unix(), 10)), nil
}

// Verify accepts a state signed with this key and issued within the last StateTTL.
func (s *StateSigner) Verify(state string) bool {
	parts := strings.Split(state, ".")
	if len(parts) != 3 || parts[0] == "" {
		return false
	}
	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(s.sign(payload)), []byte(state)) {
		return false
	}

	issuedUnix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return false
	}
	age := s.now().Sub(time.Unix(issuedUnix, 0))
	return age >= -time.Minute && age <= s.ttl
}

func (s *StateSigner) sign(payload string) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(payload))
	return payload + "." + base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
