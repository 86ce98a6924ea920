package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gallery-dev/gallery/backend/internal/utils/oauth"
	"github.com/gallery-dev/gallery/shared/domain"
	mw "github.com/gallery-dev/gallery/shared/middleware"
	"github.com/gallery-dev/gallery/shared/utils"
)

const (
	refreshTokenCookie = "refreshToken"
	// The refresh token only travels to the auth endpoints.
	refreshCookiePath = "/v1/auth"

	oauthStateCookie = "oauthState"
	oauthStatePath   = "/v1/auth/oauth"
)

func (h *Handler) cookie(name, value, path string, expires time.Time) *http.Cookie {
	maxAge := int(time.Until(expires).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.Public.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

// setSessionCookies always refreshes the access cookie; the refresh cookie is
// only touched when the session carries a new refresh token.
func (h *Handler) setSessionCookies(w http.ResponseWriter, s domain.Session) {
	http.SetCookie(w, h.cookie(mw.AccessTokenCookie, s.AccessToken, "/", s.AccessExpires))
	if s.RefreshToken != "" {
		http.SetCookie(w, h.cookie(refreshTokenCookie, s.RefreshToken, refreshCookiePath, s.RefreshExpires))
	}
}

// setOAuthStateCookie pins the state to the browser that started the flow.
func (h *Handler) setOAuthStateCookie(w http.ResponseWriter, state string) {
	http.SetCookie(w, h.cookie(oauthStateCookie, state, oauthStatePath, time.Now().Add(oauth.StateTTL)))
}

// takeOAuthStateCookie returns the pinned state and expires the cookie; a state is good for one callback.
func (h *Handler) takeOAuthStateCookie(w http.ResponseWriter, r *http.Request) string {
	var state string
	if c, err := r.Cookie(oauthStateCookie); err == nil {
		state = c.Value
	}
	http.SetCookie(w, h.cookie(oauthStateCookie, "", oauthStatePath, time.Time{}))
	return state
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, h.cookie(mw.AccessTokenCookie, "", "/", time.Time{}))
	http.SetCookie(w, h.cookie(refreshTokenCookie, "", refreshCookiePath, time.Time{}))
}

// clientInfo is recorded on refresh tokens so users can tell their sessions apart.
func (h *Handler) clientInfo(r *http.Request) domain.ClientInfo {
	info := domain.ClientInfo{DeviceInfo: r.UserAgent()}
	if len(info.DeviceInfo) > 255 {
		info.DeviceInfo = strings.ToValidUTF8(info.DeviceInfo[:255], "")
	}
	if ip, err := utils.GetIP(r, h.cfg.Public.TrustProxyHeaders); err == nil {
		info.IP = ip
	}
	return info
}
