package handler

import (
	"net/http"

	"github.com/gallery-dev/gallery/shared/api"
	"github.com/gallery-dev/gallery/shared/utils"
)

// PasswordReset answers the same way whether or not the account exists.
func (h *Handler) PasswordReset(w http.ResponseWriter, r *http.Request) {
	var body api.PasswordResetRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	if err := h.auth.RequestPasswordReset(r.Context(), body.Email); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, api.MessageResponse{Message: "If the account exists, a reset link is on its way"})
}

func (h *Handler) PasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var body api.PasswordResetConfirmRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	if err := h.auth.ResetPassword(r.Context(), body.Token, body.Password); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	h.clearSessionCookies(w)
	writeJSON(w, api.MessageResponse{Message: "Password changed. Log in with the new password"})
}
