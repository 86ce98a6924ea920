package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gallery-dev/gallery/shared/domain"
	sharedpg "github.com/gallery-dev/gallery/shared/storage/pg"
)

const userColumns = "id, email, password_hash, name, avatar_url, role, active, created_at"

// =========================================================================
// Public Methods (satisfy service.ConfirmedUserStore)
// =========================================================================

// SaveUser inserts a confirmed user. A taken email is a 409.
func (s *Storage) SaveUser(ctx context.Context, user domain.User) (domain.UserId, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return s.saveUser(ctx, s.db, user)
}

func (s *Storage) UserByEmail(ctx context.Context, email domain.Email) (domain.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return s.scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email))
}

func (s *Storage) UserById(ctx context.Context, id domain.UserId) (domain.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return s.scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

// UpdateUserAvatar sets the avatar only if none is stored yet.
func (s *Storage) UpdateUserAvatar(ctx context.Context, id domain.UserId, avatarURL string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET avatar_url = $1 WHERE id = $2 AND avatar_url = ''", avatarURL, id)
	if err != nil {
		return fmt.Errorf("failed to update user avatar: %w", err)
	}
	return nil
}

// =========================================================================
// Internal Methods
// =========================================================================

func (s *Storage) saveUser(ctx context.Context, q Querier, user domain.User) (domain.UserId, error) {
	role := user.Role
	if role == "" {
		role = domain.RoleStandard
	}
	var id domain.UserId
	err := q.QueryRowContext(ctx, `
        INSERT INTO users(email, password_hash, name, avatar_url, role, active)
        VALUES($1, $2, $3, $4, $5, $6) RETURNING id`,
		user.Email, user.PassHash, user.Name, user.AvatarURL, role, user.Active,
	).Scan(&id)
	if err != nil {
		if sharedpg.IsUniqueViolation(err) {
			return -1, conflict("Email already registered")
		}
		return -1, fmt.Errorf("failed to insert user: %w", err)
	}
	return id, nil
}

func (s *Storage) scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.Id, &u.Email, &u.PassHash, &u.Name, &u.AvatarURL, &u.Role, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, notFound("User")
		}
		return domain.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}
