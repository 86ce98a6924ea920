package handler

import (
	"net/http"

	"github.com/gallery-dev/gallery/shared/api"
	"github.com/gallery-dev/gallery/shared/domain"
	"github.com/gallery-dev/gallery/shared/errors"
	"github.com/gallery-dev/gallery/shared/logger"
	mw "github.com/gallery-dev/gallery/shared/middleware"
	"github.com/gallery-dev/gallery/shared/utils"
)

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body api.RegisterRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	creds := domain.Credentials{Email: body.Email, Password: body.Password}
	if err := h.auth.Register(r.Context(), creds, body.Name); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSONStatus(w, http.StatusCreated, api.MessageResponse{Message: "Check your inbox to confirm your email"})
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body api.VerifyEmailRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	if err := h.auth.VerifyEmail(r.Context(), body.Token); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, api.MessageResponse{Message: "Email confirmed. You can log in now"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body api.LoginRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	creds := domain.Credentials{Email: body.Email, Password: body.Password}
	result, err := h.auth.Login(r.Context(), creds, h.clientInfo(r))
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	session, err := h.sessions.Issue(result.User, result.RefreshToken, result.RefreshExpires)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	h.setSessionCookies(w, session)
	writeJSON(w, sessionResponse("You logged in", session, result.User))
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := h.refreshToken(r)
	if refreshToken == "" {
		http.Error(w, "Please sign-in", http.StatusUnauthorized)
		return
	}

	result, err := h.auth.Refresh(r.Context(), refreshToken, h.clientInfo(r))
	if err != nil {
		if errors.StatusCode(err) == http.StatusUnauthorized {
			h.clearSessionCookies(w)
		}
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	var session domain.Session
	if result.RefreshToken != "" {
		session, err = h.sessions.Issue(result.User, result.RefreshToken, result.RefreshExpires)
	} else {
		session, err = h.sessions.IssueAccess(result.User)
	}
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	h.setSessionCookies(w, session)
	writeJSON(w, sessionResponse("Session refreshed", session, result.User))
}

// Logout always clears the cookies. An unknown or already revoked token is not an error for the client.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if user := mw.GetUserFromContext(r); user != nil {
		logger.Log.Info("user logging out", "user_id", user.Id)
	}

	if refreshToken := h.refreshToken(r); refreshToken != "" {
		if err := h.auth.Logout(r.Context(), refreshToken); err != nil && !errors.IsExpected(err) {
			utils.WriteErrorAndStatusCode(w, err)
			return
		}
	}

	h.clearSessionCookies(w)
	writeJSON(w, api.MessageResponse{Message: "You logged out"})
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	user := mw.GetUserFromContext(r)
	if user == nil {
		http.Error(w, "Please sign-in", http.StatusUnauthorized)
		return
	}

	if err := h.auth.LogoutAll(r.Context(), user.Id); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	h.clearSessionCookies(w)
	writeJSON(w, api.MessageResponse{Message: "You logged out everywhere"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims := mw.GetUserFromContext(r)
	if claims == nil {
		http.Error(w, "Please sign-in", http.StatusUnauthorized)
		return
	}

	user, err := h.auth.User(r.Context(), claims.Id)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, api.MeResponse{
		Id:        user.Id,
		Email:     user.Email,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	})
}

// refreshToken reads the cookie first, then the JSON body used by non-browser clients.
func (h *Handler) refreshToken(r *http.Request) string {
	if c, err := r.Cookie(refreshTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if r.Body == nil || r.ContentLength == 0 {
		return ""
	}
	var body api.RefreshRequest
	if err := utils.Decode(r.Body, &body); err != nil {
		logger.Log.Debug("refresh token body ignored", "error", err)
		return ""
	}
	return body.RefreshToken
}

func sessionResponse(message string, s domain.Session, user domain.UserSummary) api.SessionResponse {
	return api.SessionResponse{
		Message:         message,
		AccessToken:     s.AccessToken,
		AccessExpiresAt: s.AccessExpires,
		RefreshToken:    s.RefreshToken,
		User:            user,
	}
}
