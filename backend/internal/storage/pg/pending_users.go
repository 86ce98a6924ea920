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

const pendingColumns = "email, password_hash, name, token, expires_at, created_at"

// =========================================================================
// Public Methods (satisfy service.PendingUserStore)
// =========================================================================

// SavePendingUser inserts a registration awaiting confirmation. An email or token
// that is already pending is a 409.
func (s *Storage) SavePendingUser(ctx context.Context, p domain.PendingUser) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO pending_users(email, password_hash, name, token, expires_at)
        VALUES($1, $2, $3, $4, $5)`,
		p.Email, p.PassHash, p.Name, p.Token, p.Expires.UTC(),
	)
	if err != nil {
		if sharedpg.IsUniqueViolation(err) {
			return conflict("Verification already sent")
		}
		return fmt.Errorf("failed to insert pending user: %w", err)
	}
	return nil
}

func (s *Storage) PendingUserByEmail(ctx context.Context, email domain.Email) (domain.PendingUser, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return scanPendingUser(s.db.QueryRowContext(ctx, "SELECT "+pendingColumns+" FROM pending_users WHERE email = $1", email))
}

func (s *Storage) PendingUserByToken(ctx context.Context, token string) (domain.PendingUser, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return scanPendingUser(s.db.QueryRowContext(ctx, "SELECT "+pendingColumns+" FROM pending_users WHERE token = $1", token))
}

func (s *Storage) DeletePendingUser(ctx context.Context, email domain.Email) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return s.deletePendingUser(ctx, s.db, email, "")
}

// ConfirmPendingUser promotes a pending registration: the user row is inserted and the
// pending row deleted in one transaction. If the pending row is already gone the
// promotion is rolled back with a 404.
func (s *Storage) ConfirmPendingUser(ctx context.Context, p domain.PendingUser) (domain.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	user := domain.User{
		Email:    p.Email,
		PassHash: p.PassHash,
		Name:     p.Name,
		Role:     domain.RoleStandard,
		Active:   true,
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.deletePendingUser(ctx, tx, p.Email, p.Token); err != nil {
			return err
		}
		id, err := s.saveUser(ctx, tx, user)
		if err != nil {
			return err
		}
		user.Id = id
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (s *Storage) DeleteExpiredPendingUsers(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, "DELETE FROM pending_users WHERE expires_at < $1", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired pending users: %w", err)
	}
	return res.RowsAffected()
}

// =========================================================================
// Internal Methods
// =========================================================================

// deletePendingUser removes the row for email; a non-empty token must match too.
func (s *Storage) deletePendingUser(ctx context.Context, q Querier, email domain.Email, token string) error {
	var (
		res sql.Result
		err error
	)
	if token == "" {
		res, err = q.ExecContext(ctx, "DELETE FROM pending_users WHERE email = $1", email)
	} else {
		res, err = q.ExecContext(ctx, "DELETE FROM pending_users WHERE email = $1 AND token = $2", email, token)
	}
	if err != nil {
		return fmt.Errorf("failed to delete pending user: %w", err)
	}
	return affected(res, "Pending user")
}

func scanPendingUser(row *sql.Row) (domain.PendingUser, error) {
	var p domain.PendingUser
	err := row.Scan(&p.Email, &p.PassHash, &p.Name, &p.Token, &p.Expires, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PendingUser{}, notFound("Pending user")
		}
		return domain.PendingUser{}, fmt.Errorf("failed to query pending user: %w", err)
	}
	return p, nil
}
