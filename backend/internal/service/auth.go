package service

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gallery-dev/gallery/backend/internal/utils/password"
	"github.com/gallery-dev/gallery/backend/internal/utils/token"
	"github.com/gallery-dev/gallery/shared/config"
	"github.com/gallery-dev/gallery/shared/domain"
	"github.com/gallery-dev/gallery/shared/errors"
	"github.com/gallery-dev/gallery/shared/logger"
)

type AuthService interface {
	Register(ctx context.Context, creds domain.Credentials, name string) error
	VerifyEmail(ctx context.Context, verificationToken string) error
	Login(ctx context.Context, creds domain.Credentials, client domain.ClientInfo) (domain.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string, client domain.ClientInfo) (domain.RefreshResult, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userId domain.UserId) error
	User(ctx context.Context, userId domain.UserId) (domain.User, error)

	OAuthRedirectURL() (redirectURL string, state string, err error)
	HandleOAuthCallback(ctx context.Context, cb domain.OAuthCallback, client domain.ClientInfo) (domain.OAuthResult, error)

	RequestPasswordReset(ctx context.Context, email domain.Email) error
	ResetPassword(ctx context.Context, resetToken string, newPassword domain.Password) error
}

var (
	ErrEmailRegistered = &errors.ErrorWithStatusCode{Message: "Email already registered", StatusCode: http.StatusConflict}
	ErrAlreadyPending  = &errors.ErrorWithStatusCode{Message: "Verification already sent, check your inbox", StatusCode: http.StatusConflict}

	ErrInvalidToken = &errors.ErrorWithStatusCode{Message: "Invalid token", StatusCode: http.StatusBadRequest}
	ErrTokenExpired = &errors.ErrorWithStatusCode{Message: "Token expired, please register again", StatusCode: http.StatusBadRequest}

	// Unknown email and wrong password share one message.
	ErrInvalidCredentials = &errors.ErrorWithStatusCode{Message: "Email or password incorrect", StatusCode: http.StatusUnauthorized}
	ErrAccountDisabled    = &errors.ErrorWithStatusCode{Message: "Account disabled", StatusCode: http.StatusForbidden}

	ErrInvalidRefreshToken = &errors.ErrorWithStatusCode{Message: "Invalid refresh token", StatusCode: http.StatusUnauthorized}
	ErrRefreshTokenRevoked = &errors.ErrorWithStatusCode{Message: "Refresh token revoked", StatusCode: http.StatusUnauthorized}
	ErrRefreshTokenExpired = &errors.ErrorWithStatusCode{Message: "Refresh token expired", StatusCode: http.StatusUnauthorized}
)

type Auth struct {
	store    AccountStore
	hasher   PasswordHasher
	email    Email
	provider IdentityProvider
	state    OAuthState
	cfg      *config.Public

	now           func() time.Time
	pendingEmails sync.WaitGroup
}

func NewAuth(store AccountStore, hasher PasswordHasher, email Email, provider IdentityProvider, state OAuthState, cfg *config.Public) *Auth {
	return &Auth{
		store:    store,
		hasher:   hasher,
		email:    email,
		provider: provider,
		state:    state,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Register creates a pending user and mails the verification link.
// Email delivery is best effort: once the pending row exists the call succeeds.
func (a *Auth) Register(ctx context.Context, creds domain.Credentials, name string) (err error) {
	defer func() { registrations.WithLabelValues(outcome(err)).Inc() }()

	email := strings.TrimSpace(creds.Email)
	if err := a.email.IsCorrect(email); err != nil {
		return err
	}
	if err := password.CheckStrength(creds.Password); err != nil {
		return err
	}

	if _, err := a.store.UserByEmail(ctx, email); err == nil {
		return ErrEmailRegistered
	} else if !errors.IsNotFound(err) {
		return err
	}

	pending, err := a.store.PendingUserByEmail(ctx, email)
	switch {
	case err == nil:
		if !token.IsExpiredAt(pending.Expires, a.now()) {
			return ErrAlreadyPending
		}
		if err := a.store.DeletePendingUser(ctx, email); err != nil && !errors.IsNotFound(err) {
			return err
		}
	case !errors.IsNotFound(err):
		return err
	}

	passHash, err := a.hasher.Hash(creds.Password)
	if err != nil {
		if !errors.IsExpected(err) {
			logger.Log.Error("failed to hash password", "error", err)
		}
		return err
	}
	verificationToken, err := token.Random(token.DefaultLength)
	if err != nil {
		return err
	}

	pending = domain.PendingUser{
		Email:    email,
		PassHash: passHash,
		Name:     normalizeName(name),
		Token:    verificationToken,
		Expires:  a.now().Add(a.cfg.VerificationTokenTTL),
	}
	if err := a.store.SavePendingUser(ctx, pending); err != nil {
		// A concurrent registration for the same email won the insert.
		if errors.IsConflict(err) {
			return ErrAlreadyPending
		}
		return err
	}

	link := emailLink(a.cfg.FrontendURL, "verify-email", verificationToken)
	a.dispatchEmail(email, "Please confirm your email address", verificationBody(pending.Name, link, a.cfg.VerificationTokenTTL))
	logger.Log.Info("pending user registered", "email", email, "expires", pending.Expires)
	return nil
}

// VerifyEmail promotes a pending user exactly once. It never logs the user in.
func (a *Auth) VerifyEmail(ctx context.Context, verificationToken string) error {
	if verificationToken == "" {
		return ErrInvalidToken
	}
	pending, err := a.store.PendingUserByToken(ctx, verificationToken)
	if err != nil {
		if errors.IsNotFound(err) {
			return ErrInvalidToken
		}
		return err
	}

	if token.IsExpiredAt(pending.Expires, a.now()) {
		if err := a.store.DeletePendingUser(ctx, pending.Email); err != nil && !errors.IsNotFound(err) {
			return err
		}
		return ErrTokenExpired
	}

	user, err := a.store.ConfirmPendingUser(ctx, pending)
	if err != nil {
		switch {
		case errors.IsNotFound(err):
			// Consumed by a concurrent verification.
			return ErrInvalidToken
		case errors.IsConflict(err):
			// The email got an account through OAuth meanwhile.
			if err := a.store.DeletePendingUser(ctx, pending.Email); err != nil && !errors.IsNotFound(err) {
				logger.Log.Warn("failed to drop superseded pending user", "email", pending.Email, "error", err)
			}
			return ErrEmailRegistered
		}
		return err
	}

	logger.Log.Info("user confirmed", "user_id", user.Id, "email", user.Email)
	return nil
}

// Login checks credentials and opens a new refresh-token session.
func (a *Auth) Login(ctx context.Context, creds domain.Credentials, client domain.ClientInfo) (result domain.LoginResult, err error) {
	defer func() { logins.WithLabelValues(outcome(err)).Inc() }()

	email := strings.TrimSpace(creds.Email)
	user, err := a.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.IsNotFound(err) {
			a.hasher.Equalize(creds.Password)
			return domain.LoginResult{}, ErrInvalidCredentials
		}
		return domain.LoginResult{}, err
	}
	if !user.Active {
		return domain.LoginResult{}, ErrAccountDisabled
	}
	if !a.hasher.Verify(creds.Password, user.PassHash) {
		return domain.LoginResult{}, ErrInvalidCredentials
	}

	rt, err := a.openSession(ctx, user.Id, client)
	if err != nil {
		return domain.LoginResult{}, err
	}

	logger.Log.Info("user logged in", "user_id", user.Id, "ip", client.IP)
	return domain.LoginResult{User: user.Summary(), RefreshToken: rt.Token, RefreshExpires: rt.Expires}, nil
}

// Refresh validates a refresh token. Without rotation the same token stays valid
// until it expires or is revoked; with rotation it is exchanged for a new one and a
// replayed revoked token revokes every session of its owner.
func (a *Auth) Refresh(ctx context.Context, refreshToken string, client domain.ClientInfo) (result domain.RefreshResult, err error) {
	defer func() { refreshes.WithLabelValues(outcome(err)).Inc() }()

	if refreshToken == "" {
		return domain.RefreshResult{}, ErrInvalidRefreshToken
	}
	rt, user, err := a.store.RefreshTokenWithUser(ctx, refreshToken)
	if err != nil {
		if errors.IsNotFound(err) {
			return domain.RefreshResult{}, ErrInvalidRefreshToken
		}
		return domain.RefreshResult{}, err
	}

	if rt.Revoked {
		if a.cfg.RotateRefreshTokens {
			a.revokeAllOnReuse(ctx, rt)
		}
		return domain.RefreshResult{}, ErrRefreshTokenRevoked
	}
	if token.IsExpiredAt(rt.Expires, a.now()) {
		return domain.RefreshResult{}, ErrRefreshTokenExpired
	}
	if !user.Active {
		return domain.RefreshResult{}, ErrAccountDisabled
	}

	result = domain.RefreshResult{User: user.Summary()}
	if !a.cfg.RotateRefreshTokens {
		return result, nil
	}

	next, err := a.newRefreshToken(user.Id, client)
	if err != nil {
		return domain.RefreshResult{}, err
	}
	if _, err := a.store.RotateRefreshToken(ctx, rt.Id, next); err != nil {
		if errors.IsNotFound(err) {
			// Revoked between lookup and rotation.
			return domain.RefreshResult{}, ErrRefreshTokenRevoked
		}
		return domain.RefreshResult{}, err
	}
	result.RefreshToken = next.Token
	result.RefreshExpires = next.Expires
	return result, nil
}

func (a *Auth) revokeAllOnReuse(ctx context.Context, rt domain.RefreshToken) {
	n, err := a.store.RevokeAllRefreshTokens(ctx, rt.UserId)
	if err != nil {
		logger.Log.Error("failed to revoke sessions after refresh token reuse", "user_id", rt.UserId, "error", err)
		return
	}
	refreshReuse.Inc()
	logger.Log.Warn("revoked refresh token reused, all sessions revoked", "user_id", rt.UserId, "token_id", rt.Id, "revoked", n)
}

// Logout revokes one refresh token. Revoking an already revoked token succeeds;
// an unknown token is reported so the caller can treat it as a no-op.
func (a *Auth) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return ErrInvalidRefreshToken
	}
	rt, _, err := a.store.RefreshTokenWithUser(ctx, refreshToken)
	if err != nil {
		if errors.IsNotFound(err) {
			return ErrInvalidRefreshToken
		}
		return err
	}
	if rt.Revoked {
		return nil
	}
	if err := a.store.RevokeRefreshToken(ctx, rt.Id); err != nil && !errors.IsNotFound(err) {
		return err
	}
	logger.Log.Info("user logged out", "user_id", rt.UserId, "token_id", rt.Id)
	return nil
}

// LogoutAll revokes every refresh token of the user regardless of state.
func (a *Auth) LogoutAll(ctx context.Context, userId domain.UserId) error {
	n, err := a.store.RevokeAllRefreshTokens(ctx, userId)
	if err != nil {
		return err
	}
	logger.Log.Info("all sessions revoked", "user_id", userId, "revoked", n)
	return nil
}

func (a *Auth) User(ctx context.Context, userId domain.UserId) (domain.User, error) {
	return a.store.UserById(ctx, userId)
}

func (a *Auth) newRefreshToken(userId domain.UserId, client domain.ClientInfo) (domain.RefreshToken, error) {
	value, err := token.Random(token.DefaultLength)
	if err != nil {
		return domain.RefreshToken{}, err
	}
	return domain.RefreshToken{
		Token:      value,
		UserId:     userId,
		Expires:    a.now().Add(a.cfg.RefreshTokenTTL),
		DeviceInfo: client.DeviceInfo,
		IP:         client.IP,
	}, nil
}

func (a *Auth) openSession(ctx context.Context, userId domain.UserId, client domain.ClientInfo) (domain.RefreshToken, error) {
	rt, err := a.newRefreshToken(userId, client)
	if err != nil {
		return domain.RefreshToken{}, err
	}
	id, err := a.store.SaveRefreshToken(ctx, rt)
	if err != nil {
		return domain.RefreshToken{}, err
	}
	rt.Id = id
	return rt, nil
}
