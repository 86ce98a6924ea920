package service

import (
	"context"
	"time"

	"github.com/gallery-dev/gallery/shared/domain"
)

type ConfirmedUserStore interface {
	SaveUser(ctx context.Context, user domain.User) (domain.UserId, error)
	UserByEmail(ctx context.Context, email domain.Email) (domain.User, error)
	UserById(ctx context.Context, id domain.UserId) (domain.User, error)
	UpdateUserAvatar(ctx context.Context, id domain.UserId, avatarURL string) error
}

type PendingUserStore interface {
	SavePendingUser(ctx context.Context, p domain.PendingUser) error
	PendingUserByEmail(ctx context.Context, email domain.Email) (domain.PendingUser, error)
	PendingUserByToken(ctx context.Context, token string) (domain.PendingUser, error)
	DeletePendingUser(ctx context.Context, email domain.Email) error
	// ConfirmPendingUser creates the user and deletes the pending row atomically.
	ConfirmPendingUser(ctx context.Context, p domain.PendingUser) (domain.User, error)
}

type RefreshTokenStore interface {
	SaveRefreshToken(ctx context.Context, t domain.RefreshToken) (domain.RefreshTokenId, error)
	RefreshTokenWithUser(ctx context.Context, token string) (domain.RefreshToken, domain.User, error)
	RevokeRefreshToken(ctx context.Context, id domain.RefreshTokenId) error
	RevokeAllRefreshTokens(ctx context.Context, userId domain.UserId) (int64, error)
	RotateRefreshToken(ctx context.Context, oldId domain.RefreshTokenId, next domain.RefreshToken) (domain.RefreshTokenId, error)
}

type VerificationTokenStore interface {
	SaveVerificationToken(ctx context.Context, t domain.VerificationToken) error
	VerificationToken(ctx context.Context, token string) (domain.VerificationToken, error)
	MarkVerificationTokenUsed(ctx context.Context, token string, at time.Time) error
	// ResetPassword consumes the token, stores the hash and revokes the owner's
	// refresh tokens atomically.
	ResetPassword(ctx context.Context, token string, passHash string, at time.Time) error
}

// AccountStore is everything the auth flows persist.
type AccountStore interface {
	ConfirmedUserStore
	PendingUserStore
	RefreshTokenStore
	VerificationTokenStore
}

// SweepStore deletes rows whose expiry is before now.
type SweepStore interface {
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredPendingUsers(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error)
}

type Email interface {
	Send(recipientEmail, subject, htmlBody string) error
	IsCorrect(email domain.Email) error
}

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
	// Equalize burns the same time as Verify when there is no hash to compare against.
	Equalize(plaintext string)
}

type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
	Profile(ctx context.Context, accessToken string) (domain.OAuthProfile, error)
}

type OAuthState interface {
	New() (string, error)
	Verify(state string) bool
}

type AccessTokenIssuer interface {
	NewToken(user domain.UserSummary) (string, error)
	TTL() time.Duration
}
