package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gallery-dev/gallery/shared/domain"
)

// =========================================================================
// Public Methods (satisfy service.VerificationTokenStore)
// =========================================================================

func (s *Storage) SaveVerificationToken(ctx context.Context, t domain.VerificationToken) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO verification_tokens(token, type, user_id, expires_at)
        VALUES($1, $2, $3, $4)`,
		t.Token, t.Type, t.UserId, t.Expires.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert verification token: %w", err)
	}
	return nil
}

func (s *Storage) VerificationToken(ctx context.Context, token string) (domain.VerificationToken, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var (
		t      domain.VerificationToken
		usedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT token, type, user_id, expires_at, used_at, created_at
        FROM verification_tokens WHERE token = $1`,
		token,
	).Scan(&t.Token, &t.Type, &t.UserId, &t.Expires, &usedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.VerificationToken{}, notFound("Verification token")
		}
		return domain.VerificationToken{}, fmt.Errorf("failed to query verification token: %w", err)
	}
	if usedAt.Valid {
		t.UsedAt = &usedAt.Time
	}
	return t, nil
}

// MarkVerificationTokenUsed consumes a token once; a used or missing token is a 404.
func (s *Storage) MarkVerificationTokenUsed(ctx context.Context, token string, at time.Time) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := s.markVerificationTokenUsed(ctx, s.db, token, "", at)
	return err
}

// ResetPassword consumes a password reset token, stores the new hash and revokes all
// refresh tokens of the owner in one transaction.
func (s *Storage) ResetPassword(ctx context.Context, token string, passHash string, at time.Time) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		userId, err := s.markVerificationTokenUsed(ctx, tx, token, domain.PasswordResetToken, at)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, "UPDATE users SET password_hash = $1 WHERE id = $2", passHash, userId)
		if err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		if err := affected(res, "User"); err != nil {
			return err
		}

		_, err = s.revokeAllRefreshTokens(ctx, tx, userId)
		return err
	})
}

func (s *Storage) DeleteExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, "DELETE FROM verification_tokens WHERE expires_at < $1", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired verification tokens: %w", err)
	}
	return res.RowsAffected()
}

// =========================================================================
// Internal Methods
// =========================================================================

// markVerificationTokenUsed sets used_at on an unused token and returns its owner.
// An empty typ matches any token type.
func (s *Storage) markVerificationTokenUsed(ctx context.Context, q Querier, token string, typ domain.VerificationTokenType, at time.Time) (domain.UserId, error) {
	query := "UPDATE verification_tokens SET used_at = $1 WHERE token = $2 AND used_at IS NULL"
	args := []interface{}{at.UTC(), token}
	if typ != "" {
		query += " AND type = $3"
		args = append(args, typ)
	}
	query += " RETURNING user_id"

	var userId domain.UserId
	if err := q.QueryRowContext(ctx, query, args...).Scan(&userId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, notFound("Verification token")
		}
		return 0, fmt.Errorf("failed to mark verification token used: %w", err)
	}
	return userId, nil
}
