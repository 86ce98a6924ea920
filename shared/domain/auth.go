package domain

import "time"

type Credentials struct {
	Email    Email
	Password Password
}

// ClientInfo describes where a session was opened from. Both fields are optional.
type ClientInfo struct {
	DeviceInfo string
	IP         string
}

type RefreshToken struct {
	Id         RefreshTokenId
	Token      string
	UserId     UserId
	Expires    time.Time
	Revoked    bool
	DeviceInfo string
	IP         string
	CreatedAt  time.Time
}

type VerificationTokenType string

const (
	EmailVerificationToken VerificationTokenType = "email_verification"
	PasswordResetToken     VerificationTokenType = "password_reset"
)

type VerificationToken struct {
	Token     string
	Type      VerificationTokenType
	UserId    UserId
	Expires   time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Session is what a client receives after a successful login, refresh or OAuth callback.
// RefreshToken is empty when the refresh token was not (re)issued.
type Session struct {
	AccessToken    string
	AccessExpires  time.Time
	RefreshToken   string
	RefreshExpires time.Time
}

type LoginResult struct {
	User           UserSummary
	RefreshToken   string
	RefreshExpires time.Time
}

// RefreshResult carries a new refresh token only when rotation is enabled.
type RefreshResult struct {
	User           UserSummary
	RefreshToken   string
	RefreshExpires time.Time
}

type OAuthResult struct {
	User           UserSummary
	RefreshToken   string
	RefreshExpires time.Time
	IsNewUser      bool
}

type OAuthCallback struct {
	Code  string
	State string
	// Error is set when the provider reports a denial or cancellation.
	Error string
}

type OAuthProfile struct {
	ProviderId string
	Email      Email
	Name       string
	Picture    string
}
