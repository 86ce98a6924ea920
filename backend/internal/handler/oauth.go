package handler

import (
	stderrors "errors"
	"net/http"
	"net/url"

	"github.com/gallery-dev/gallery/backend/internal/service"
	"github.com/gallery-dev/gallery/shared/csrf"
	"github.com/gallery-dev/gallery/shared/domain"
	"github.com/gallery-dev/gallery/shared/errors"
	"github.com/gallery-dev/gallery/shared/logger"
	"github.com/gallery-dev/gallery/shared/utils"
)

func (h *Handler) OAuthRedirect(w http.ResponseWriter, r *http.Request) {
	redirectURL, state, err := h.auth.OAuthRedirectURL()
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	h.setOAuthStateCookie(w, state)
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// OAuthCallback is reached by the browser, so every outcome is a redirect back to the frontend.
func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	cb := domain.OAuthCallback{
		Code:  query.Get("code"),
		State: query.Get("state"),
		Error: query.Get("error"),
	}

	// A callback that would sign someone in must come from the browser that asked for it.
	pinnedState := h.takeOAuthStateCookie(w, r)
	if cb.Error == "" && !csrf.ValidateToken(pinnedState, cb.State) {
		logger.Log.Warn("oauth callback state not bound to this browser", "has_cookie", pinnedState != "")
		h.redirectLoginError(w, r, service.ErrOAuthInvalidState)
		return
	}

	result, err := h.auth.HandleOAuthCallback(r.Context(), cb, h.clientInfo(r))
	if err != nil {
		h.redirectLoginError(w, r, err)
		return
	}

	session, err := h.sessions.Issue(result.User, result.RefreshToken, result.RefreshExpires)
	if err != nil {
		h.redirectLoginError(w, r, err)
		return
	}
	h.setSessionCookies(w, session)

	destination := "/"
	if result.IsNewUser {
		destination = "/onboarding"
	}
	http.Redirect(w, r, h.frontendURL(destination, nil), http.StatusFound)
}

func (h *Handler) redirectLoginError(w http.ResponseWriter, r *http.Request, err error) {
	message := "OAuth failed"
	var tagged *errors.ErrorWithStatusCode
	if stderrors.As(err, &tagged) {
		message = tagged.Message
	}
	if !errors.IsExpected(err) {
		logger.Log.Error("oauth callback failed", "error", err)
	}
	http.Redirect(w, r, h.frontendURL("/login", url.Values{"error": {message}}), http.StatusFound)
}

func (h *Handler) frontendURL(path string, query url.Values) string {
	u, err := url.Parse(h.cfg.Public.FrontendURL)
	if err != nil {
		return path
	}
	u = u.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}
