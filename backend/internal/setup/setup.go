package setup

import (
	"context"

	"github.com/gallery-dev/gallery/backend/internal/handler"
	"github.com/gallery-dev/gallery/backend/internal/service"
	"github.com/gallery-dev/gallery/backend/internal/storage/pg"
	"github.com/gallery-dev/gallery/backend/internal/utils/email"
	"github.com/gallery-dev/gallery/backend/internal/utils/oauth"
	"github.com/gallery-dev/gallery/backend/internal/utils/password"
	"github.com/gallery-dev/gallery/shared/config"
	"github.com/gallery-dev/gallery/shared/jwt"
	"github.com/gallery-dev/gallery/shared/logger"
	"github.com/gallery-dev/gallery/shared/middleware"
)

// Dependencies holds everything main and the router need.
type Dependencies struct {
	Config         *config.Config
	Storage        *pg.Storage
	Auth           *service.Auth
	Sweeper        *service.TokenSweeper
	Handler        *handler.Handler
	AuthMiddleware *middleware.Auth
}

// SetupDependencies connects to Postgres, applies migrations and wires the auth stack.
func SetupDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	storage, err := pg.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(ctx); err != nil {
		storage.Cleanup()
		return nil, err
	}

	mailer := email.New(&cfg.Private.Email)
	provider := oauth.New(cfg.Private.OAuth, cfg.Public.OAuthTimeout)
	state := oauth.NewStateSigner(cfg.Private.OAuth.StateKey)
	hasher := password.New(cfg.Public.BcryptCost)
	jwtService := jwt.New(cfg.JwtKey(), cfg.JwtTTL())

	auth := service.NewAuth(storage, hasher, mailer, provider, state, &cfg.Public)
	sessions := service.NewSessions(jwtService)
	sweeper := service.NewTokenSweeper(storage)

	h := handler.New(auth, sessions, storage, cfg)
	authMiddleware := middleware.NewAuth(jwtService)

	logger.Log.Info("dependencies initialized",
		"rotate_refresh_tokens", cfg.Public.RotateRefreshTokens,
		"access_token_ttl", cfg.Public.AccessTokenTTL,
		"refresh_token_ttl", cfg.Public.RefreshTokenTTL)

	return &Dependencies{
		Config:         cfg,
		Storage:        storage,
		Auth:           auth,
		Sweeper:        sweeper,
		Handler:        h,
		AuthMiddleware: authMiddleware,
	}, nil
}
