package service

import (
	"context"
	"net/http"
	"strings"

	"github.com/gallery-dev/gallery/backend/internal/utils/token"
	"github.com/gallery-dev/gallery/shared/domain"
	"github.com/gallery-dev/gallery/shared/errors"
	"github.com/gallery-dev/gallery/shared/logger"
)

var (
	ErrOAuthCancelled     = &errors.ErrorWithStatusCode{Message: "OAuth login cancelled", StatusCode: http.StatusBadRequest}
	ErrOAuthInvalidState  = &errors.ErrorWithStatusCode{Message: "OAuth failed", StatusCode: http.StatusBadRequest}
	ErrOAuthTokenExchange = &errors.ErrorWithStatusCode{Message: "OAuth failed: token exchange failed", StatusCode: http.StatusBadGateway}
	ErrOAuthProfileFetch  = &errors.ErrorWithStatusCode{Message: "OAuth failed: profile fetch failed", StatusCode: http.StatusBadGateway}
)

// OAuthRedirectURL builds the provider authorization URL with a signed state.
// The state is returned too so the caller can pin it to the browser.
func (a *Auth) OAuthRedirectURL() (redirectURL string, state string, err error) {
	state, err = a.state.New()
	if err != nil {
		return "", "", err
	}
	return a.provider.AuthCodeURL(state), state, nil
}

// HandleOAuthCallback maps a provider identity onto a confirmed user, creating one
// on first sight, and opens a session like Login. Provider details are logged only.
func (a *Auth) HandleOAuthCallback(ctx context.Context, cb domain.OAuthCallback, client domain.ClientInfo) (result domain.OAuthResult, err error) {
	defer func() { oauthCallbacks.WithLabelValues(outcome(err)).Inc() }()

	if cb.Error != "" {
		logger.Log.Info("oauth callback reported an error", "provider_error", cb.Error)
		return domain.OAuthResult{}, ErrOAuthCancelled
	}
	if cb.Code == "" || !a.state.Verify(cb.State) {
		logger.Log.Warn("oauth callback with missing code or invalid state", "ip", client.IP)
		return domain.OAuthResult{}, ErrOAuthInvalidState
	}

	profile, err := a.fetchProfile(ctx, cb.Code)
	if err != nil {
		return domain.OAuthResult{}, err
	}

	user, isNew, err := a.reconcile(ctx, profile)
	if err != nil {
		return domain.OAuthResult{}, err
	}
	if !user.Active {
		return domain.OAuthResult{}, ErrAccountDisabled
	}

	// A failure here leaves a user without a session, which a new login repairs.
	rt, err := a.openSession(ctx, user.Id, client)
	if err != nil {
		return domain.OAuthResult{}, err
	}

	logger.Log.Info("user logged in with oauth", "user_id", user.Id, "new_user", isNew, "ip", client.IP)
	return domain.OAuthResult{
		User:           user.Summary(),
		RefreshToken:   rt.Token,
		RefreshExpires: rt.Expires,
		IsNewUser:      isNew,
	}, nil
}

func (a *Auth) fetchProfile(ctx context.Context, code string) (domain.OAuthProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.OAuthTimeout)
	defer cancel()

	accessToken, err := a.provider.Exchange(ctx, code)
	if err != nil {
		logger.Log.Error("oauth token exchange failed", "error", err)
		return domain.OAuthProfile{}, ErrOAuthTokenExchange
	}
	profile, err := a.provider.Profile(ctx, accessToken)
	if err != nil {
		logger.Log.Error("oauth profile fetch failed", "error", err)
		return domain.OAuthProfile{}, ErrOAuthProfileFetch
	}

	profile.Email = strings.TrimSpace(profile.Email)
	if err := a.email.IsCorrect(profile.Email); err != nil {
		logger.Log.Error("oauth profile has an unusable email", "provider_id", profile.ProviderId)
		return domain.OAuthProfile{}, ErrOAuthProfileFetch
	}
	return profile, nil
}

// reconcile finds the user by email or creates it with an unusable password.
func (a *Auth) reconcile(ctx context.Context, profile domain.OAuthProfile) (domain.User, bool, error) {
	user, err := a.store.UserByEmail(ctx, profile.Email)
	if err == nil {
		a.backfillAvatar(ctx, user, profile.Picture)
		return user, false, nil
	}
	if !errors.IsNotFound(err) {
		return domain.User{}, false, err
	}

	unusable, err := token.Random(token.DefaultLength)
	if err != nil {
		return domain.User{}, false, err
	}
	passHash, err := a.hasher.Hash(unusable)
	if err != nil {
		return domain.User{}, false, err
	}

	user = domain.User{
		Email:     profile.Email,
		PassHash:  passHash,
		Name:      normalizeName(profile.Name),
		AvatarURL: profile.Picture,
		Role:      domain.RoleStandard,
		Active:    true,
	}
	id, err := a.store.SaveUser(ctx, user)
	if err != nil {
		if errors.IsConflict(err) {
			// Lost a race with a concurrent first login for the same email.
			existing, err := a.store.UserByEmail(ctx, profile.Email)
			if err != nil {
				return domain.User{}, false, err
			}
			return existing, false, nil
		}
		return domain.User{}, false, err
	}
	user.Id = id
	return user, true, nil
}

// backfillAvatar stores the provider picture only when the user has none.
func (a *Auth) backfillAvatar(ctx context.Context, user domain.User, picture string) {
	if user.AvatarURL != "" || picture == "" {
		return
	}
	if err := a.store.UpdateUserAvatar(ctx, user.Id, picture); err != nil {
		logger.Log.Warn("failed to backfill avatar", "user_id", user.Id, "error", err)
	}
}
