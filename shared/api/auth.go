package api

import (
	"time"

	"github.com/gallery-dev/gallery/shared/domain"
)

// Request DTOs

type RegisterRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name"`
}

type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest serves refresh and logout for clients that do not keep cookies.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required"`
}

type PasswordResetConfirmRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Response DTOs

type MessageResponse struct {
	Message string `json:"message"`
}

// SessionResponse mirrors the session cookies for non-cookie clients.
type SessionResponse struct {
	Message         string             `json:"message"`
	AccessToken     string             `json:"access_token"`
	AccessExpiresAt time.Time          `json:"access_expires_at"`
	RefreshToken    string             `json:"refresh_token,omitempty"`
	User            domain.UserSummary `json:"user"`
}

type MeResponse struct {
	Id        domain.UserId `json:"id"`
	Email     domain.Email  `json:"email"`
	Name      string        `json:"name"`
	AvatarURL string        `json:"avatar_url,omitempty"`
	Role      domain.Role   `json:"role"`
	CreatedAt time.Time     `json:"created_at"`
}
