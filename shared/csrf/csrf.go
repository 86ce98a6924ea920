// Package csrf implements the double-submit check: a value the server put in an
// HttpOnly cookie must come back unchanged in the request itself.
package csrf

import "crypto/subtle"

// ValidateToken compares the cookie value with the one echoed by the request.
func ValidateToken(cookieToken, requestToken string) bool {
	if cookieToken == "" || requestToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieToken), []byte(requestToken)) == 1
}
