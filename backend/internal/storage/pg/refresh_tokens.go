package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gallery-dev/gallery/shared/domain"
	sharedpg "github.com/gallery-dev/gallery/shared/storage/pg"
)

// =========================================================================
// Public Methods (satisfy service.RefreshTokenStore)
// =========================================================================

func (s *Storage) SaveRefreshToken(ctx context.Context, t domain.RefreshToken) (domain.RefreshTokenId, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return s.saveRefreshToken(ctx, s.db, t)
}

// RefreshTokenWithUser looks a token up by value together with its owner.
func (s *Storage) RefreshTokenWithUser(ctx context.Context, token string) (domain.RefreshToken, domain.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var (
		t domain.RefreshToken
		u domain.User
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT t.id, t.token, t.user_id, t.expires_at, t.revoked, t.device_info, t.ip, t.created_at,
               u.id, u.email, u.password_hash, u.name, u.avatar_url, u.role, u.active, u.created_at
        FROM refresh_tokens t
        JOIN users u ON u.id = t.user_id
        WHERE t.token = $1`,
		token,
	).Scan(
		&t.Id, &t.Token, &t.UserId, &t.Expires, &t.Revoked, &t.DeviceInfo, &t.IP, &t.CreatedAt,
		&u.Id, &u.Email, &u.PassHash, &u.Name, &u.AvatarURL, &u.Role, &u.Active, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RefreshToken{}, domain.User{}, notFound("Refresh token")
		}
		return domain.RefreshToken{}, domain.User{}, fmt.Errorf("failed to query refresh token: %w", err)
	}
	return t, u, nil
}

// RevokeRefreshToken is idempotent: revoking a revoked token succeeds.
func (s *Storage) RevokeRefreshToken(ctx context.Context, id domain.RefreshTokenId) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, "UPDATE refresh_tokens SET revoked = TRUE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return affected(res, "Refresh token")
}

// RevokeAllRefreshTokens revokes every token of the user regardless of state.
func (s *Storage) RevokeAllRefreshTokens(ctx context.Context, userId domain.UserId) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return s.revokeAllRefreshTokens(ctx, s.db, userId)
}

// RotateRefreshToken revokes the old token and stores its replacement atomically.
// Only a token that is still unrevoked can be rotated; otherwise the result is a 404
// and nothing is stored.
func (s *Storage) RotateRefreshToken(ctx context.Context, oldId domain.RefreshTokenId, next domain.RefreshToken) (domain.RefreshTokenId, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var id domain.RefreshTokenId
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE refresh_tokens SET revoked = TRUE WHERE id = $1 AND revoked = FALSE", oldId)
		if err != nil {
			return fmt.Errorf("failed to revoke rotated refresh token: %w", err)
		}
		if err := affected(res, "Active refresh token"); err != nil {
			return err
		}
		id, err = s.saveRefreshToken(ctx, tx, next)
		return err
	})
	if err != nil {
		return -1, err
	}
	return id, nil
}

func (s *Storage) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE expires_at < $1", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	return res.RowsAffected()
}

// =========================================================================
// Internal Methods
// =========================================================================

func (s *Storage) saveRefreshToken(ctx context.Context, q Querier, t domain.RefreshToken) (domain.RefreshTokenId, error) {
	var id domain.RefreshTokenId
	err := q.QueryRowContext(ctx, `
        INSERT INTO refresh_tokens(token, user_id, expires_at, device_info, ip)
        VALUES($1, $2, $3, $4, $5) RETURNING id`,
		t.Token, t.UserId, t.Expires.UTC(), t.DeviceInfo, t.IP,
	).Scan(&id)
	if err != nil {
		if sharedpg.IsUniqueViolation(err) {
			return -1, conflict("Refresh token already exists")
		}
		return -1, fmt.Errorf("failed to insert refresh token: %w", err)
	}
	return id, nil
}

func (s *Storage) revokeAllRefreshTokens(ctx context.Context, q Querier, userId domain.UserId) (int64, error) {
	res, err := q.ExecContext(ctx, "UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1", userId)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return res.RowsAffected()
}
