package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gallery-dev/gallery/shared/domain"
	"github.com/gallery-dev/gallery/shared/utils"
)

// AccessTokenDecoder rebuilds the caller from a signed access token.
type AccessTokenDecoder interface {
	UserFromToken(jwtStr string) (*domain.UserSummary, error)
}

type key int

const UserClaimsKey key = 0

const AccessTokenCookie = "accessToken"

type Auth struct {
	tokens AccessTokenDecoder
}

func NewAuth(tokens AccessTokenDecoder) *Auth {
	return &Auth{tokens: tokens}
}

// NeedAuth rejects requests without a valid access token.
func (a *Auth) NeedAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := accessToken(r)
			if tokenString == "" {
				http.Error(w, "Please sign-in", http.StatusUnauthorized)
				return
			}

			user, err := a.tokens.UserFromToken(tokenString)
			if err != nil {
				utils.WriteErrorAndStatusCode(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), UserClaimsKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth fills the context when the token is valid and lets everything else through.
func (a *Auth) OptionalAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := accessToken(r)
			if tokenString == "" {
				next.ServeHTTP(w, r)
				return
			}
			user, err := a.tokens.UserFromToken(tokenString)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), UserClaimsKey, user)))
		})
	}
}

// accessToken prefers the cookie set for browsers and falls back to a bearer header.
func accessToken(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); found {
		return strings.TrimSpace(token)
	}
	return ""
}

// GetUserFromContext returns nil when the route was not behind auth.
func GetUserFromContext(r *http.Request) *domain.UserSummary {
	user, ok := r.Context().Value(UserClaimsKey).(*domain.UserSummary)
	if !ok {
		return nil
	}
	return user
}
