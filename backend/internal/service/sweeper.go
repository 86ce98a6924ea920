package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gallery-dev/gallery/shared/logger"
)

// TokenSweeper deletes expired refresh tokens, pending users and verification tokens.
type TokenSweeper struct {
	store SweepStore
	now   func() time.Time

	mu        sync.Mutex
	lastStats CleanupStats
}

// CleanupStats describes the last sweep.
type CleanupStats struct {
	RunAt                     time.Time
	RefreshTokensDeleted      int64
	PendingUsersDeleted       int64
	VerificationTokensDeleted int64
	DurationMs                int64
	Errors                    []string
}

func NewTokenSweeper(store SweepStore) *TokenSweeper {
	return &TokenSweeper{store: store, now: time.Now}
}

// StartBackgroundCleanup sweeps every interval until ctx is cancelled.
func (s *TokenSweeper) StartBackgroundCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	logger.Log.Info("started token sweeper", "interval", interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.RunCleanup(ctx); err != nil {
					logger.Log.Error("token sweep failed", "error", err)
					continue
				}
				stats := s.LastCleanupStats()
				logger.Log.Info("token sweep completed",
					"refresh_tokens", stats.RefreshTokensDeleted,
					"pending_users", stats.PendingUsersDeleted,
					"verification_tokens", stats.VerificationTokensDeleted,
					"duration_ms", stats.DurationMs,
				)
			case <-ctx.Done():
				logger.Log.Info("token sweeper shutting down")
				return
			}
		}
	}()
}

// RunCleanup runs one sweep. Each table is swept even if another fails.
func (s *TokenSweeper) RunCleanup(ctx context.Context) error {
	start := time.Now()
	now := s.now()
	stats := CleanupStats{RunAt: now, Errors: []string{}}

	var errs []error
	sweep := func(kind string, fn func(context.Context, time.Time) (int64, error), into *int64) {
		n, err := fn(ctx, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", kind, err))
			stats.Errors = append(stats.Errors, kind+": "+err.Error())
			return
		}
		*into = n
		tokensSwept.WithLabelValues(kind).Add(float64(n))
	}
	sweep("refresh_tokens", s.store.DeleteExpiredRefreshTokens, &stats.RefreshTokensDeleted)
	sweep("pending_users", s.store.DeleteExpiredPendingUsers, &stats.PendingUsersDeleted)
	sweep("verification_tokens", s.store.DeleteExpiredVerificationTokens, &stats.VerificationTokensDeleted)

	stats.DurationMs = time.Since(start).Milliseconds()
	s.mu.Lock()
	s.lastStats = stats
	s.mu.Unlock()

	return errors.Join(errs...)
}

func (s *TokenSweeper) LastCleanupStats() CleanupStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStats
}
