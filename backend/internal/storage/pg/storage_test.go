package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gallery-dev/gallery/shared/domain"
	internal_errors "github.com/gallery-dev/gallery/shared/errors"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewFromDB(db), mock
}

var userRowColumns = []string{"id", "email", "password_hash", "name", "avatar_url", "role", "active", "created_at"}

func TestUserByEmail(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery("SELECT .+ FROM users WHERE email = \\$1").
			WithArgs("a@x.com").
			WillReturnRows(sqlmock.NewRows(userRowColumns).
				AddRow(7, "a@x.com", "hash", "Ann", "", "standard", true, created))

		u, err := s.UserByEmail(ctx, "a@x.com")

		require.NoError(t, err)
		assert.Equal(t, domain.User{Id: 7, Email: "a@x.com", PassHash: "hash", Name: "Ann", Role: domain.RoleStandard, Active: true, CreatedAt: created}, u)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery("SELECT .+ FROM users").WillReturnRows(sqlmock.NewRows(userRowColumns))

		_, err := s.UserByEmail(ctx, "missing@x.com")

		assert.True(t, internal_errors.IsNotFound(err))
	})

	t.Run("driver error", func(t *testing.T) {
		s, mock := newMock(t)
		boom := errors.New("connection reset")
		mock.ExpectQuery("SELECT .+ FROM users").WillReturnError(boom)

		_, err := s.UserByEmail(ctx, "a@x.com")

		assert.ErrorIs(t, err, boom)
		assert.False(t, internal_errors.IsExpected(err))
	})
}

func TestSaveUser(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults role to standard", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery("INSERT INTO users").
			WithArgs("a@x.com", "hash", "", "", domain.RoleStandard, true).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

		id, err := s.SaveUser(ctx, domain.User{Email: "a@x.com", PassHash: "hash", Active: true})

		require.NoError(t, err)
		assert.Equal(t, domain.UserId(3), id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})

		_, err := s.SaveUser(ctx, domain.User{Email: "a@x.com", PassHash: "hash"})

		assert.True(t, internal_errors.IsConflict(err))
	})
}

func TestUpdateUserAvatar_OnlyWhenEmpty(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("UPDATE users SET avatar_url = \\$1 WHERE id = \\$2 AND avatar_url = ''").
		WithArgs("https://img/a.png", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.UpdateUserAvatar(context.Background(), 4, "https://img/a.png"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePendingUser_Conflict(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("INSERT INTO pending_users").WillReturnError(&pq.Error{Code: "23505"})

	err := s.SavePendingUser(context.Background(), domain.PendingUser{Email: "a@x.com", Token: "t", Expires: time.Now()})

	require.Error(t, err)
	assert.True(t, internal_errors.IsConflict(err))
	assert.Equal(t, "Verification already sent", err.Error())
}

func TestConfirmPendingUser(t *testing.T) {
	ctx := context.Background()
	pending := domain.PendingUser{Email: "a@x.com", PassHash: "hash", Name: "Ann", Token: "tok"}

	t.Run("promotes in one transaction", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM pending_users WHERE email = \\$1 AND token = \\$2").
			WithArgs("a@x.com", "tok").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO users").
			WithArgs("a@x.com", "hash", "Ann", "", domain.RoleStandard, true).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
		mock.ExpectCommit()

		u, err := s.ConfirmPendingUser(ctx, pending)

		require.NoError(t, err)
		assert.Equal(t, domain.UserId(11), u.Id)
		assert.Equal(t, "a@x.com", u.Email)
		assert.Equal(t, domain.RoleStandard, u.Role)
		assert.True(t, u.Active)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already consumed rolls back", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM pending_users").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := s.ConfirmPendingUser(ctx, pending)

		assert.True(t, internal_errors.IsNotFound(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("email taken meanwhile rolls back", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM pending_users").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		_, err := s.ConfirmPendingUser(ctx, pending)

		assert.True(t, internal_errors.IsConflict(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRefreshTokenWithUser(t *testing.T) {
	ctx := context.Background()
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{
		"id", "token", "user_id", "expires_at", "revoked", "device_info", "ip", "created_at",
		"id", "email", "password_hash", "name", "avatar_url", "role", "active", "created_at",
	}

	t.Run("found", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery("FROM refresh_tokens t\\s+JOIN users u").
			WithArgs("rt").
			WillReturnRows(sqlmock.NewRows(cols).AddRow(
				5, "rt", 7, expires, false, "curl", "10.0.0.1", created,
				7, "a@x.com", "hash", "", "", "admin", true, created))

		tok, u, err := s.RefreshTokenWithUser(ctx, "rt")

		require.NoError(t, err)
		assert.Equal(t, domain.RefreshTokenId(5), tok.Id)
		assert.Equal(t, expires, tok.Expires)
		assert.Equal(t, "curl", tok.DeviceInfo)
		assert.Equal(t, domain.RoleAdmin, u.Role)
		assert.Equal(t, tok.UserId, u.Id)
	})

	t.Run("not found", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery("FROM refresh_tokens").WillReturnRows(sqlmock.NewRows(cols))

		_, _, err := s.RefreshTokenWithUser(ctx, "nope")

		assert.True(t, internal_errors.IsNotFound(err))
	})
}

func TestRevokeRefreshToken(t *testing.T) {
	ctx := context.Background()

	t.Run("revoking twice succeeds", func(t *testing.T) {
		s, mock := newMock(t)
		for range 2 {
			mock.ExpectExec("UPDATE refresh_tokens SET revoked = TRUE WHERE id = \\$1").
				WithArgs(int64(5)).
				WillReturnResult(sqlmock.NewResult(0, 1))
		}

		require.NoError(t, s.RevokeRefreshToken(ctx, 5))
		require.NoError(t, s.RevokeRefreshToken(ctx, 5))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing token", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec("UPDATE refresh_tokens").WillReturnResult(sqlmock.NewResult(0, 0))

		assert.True(t, internal_errors.IsNotFound(s.RevokeRefreshToken(ctx, 5)))
	})

	t.Run("revoke all", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec("UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = \\$1").
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 3))

		n, err := s.RevokeAllRefreshTokens(ctx, 7)

		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})
}

func TestRotateRefreshToken(t *testing.T) {
	ctx := context.Background()
	next := domain.RefreshToken{Token: "new", UserId: 7, Expires: time.Now().Add(time.Hour)}

	t.Run("revokes old and stores new", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE refresh_tokens SET revoked = TRUE WHERE id = \\$1 AND revoked = FALSE").
			WithArgs(int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO refresh_tokens").
			WithArgs("new", int64(7), sqlmock.AnyArg(), "", "").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(6))
		mock.ExpectCommit()

		id, err := s.RotateRefreshToken(ctx, 5, next)

		require.NoError(t, err)
		assert.Equal(t, domain.RefreshTokenId(6), id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race stores nothing", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE refresh_tokens").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := s.RotateRefreshToken(ctx, 5, next)

		assert.True(t, internal_errors.IsNotFound(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestVerificationToken(t *testing.T) {
	ctx := context.Background()
	cols := []string{"token", "type", "user_id", "expires_at", "used_at", "created_at"}
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("unused", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery("FROM verification_tokens WHERE token = \\$1").
			WillReturnRows(sqlmock.NewRows(cols).AddRow("vt", "password_reset", 7, now, nil, now))

		vt, err := s.VerificationToken(ctx, "vt")

		require.NoError(t, err)
		assert.Equal(t, domain.PasswordResetToken, vt.Type)
		assert.Nil(t, vt.UsedAt)
	})

	t.Run("used", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery("FROM verification_tokens").
			WillReturnRows(sqlmock.NewRows(cols).AddRow("vt", "email_verification", 7, now, now, now))

		vt, err := s.VerificationToken(ctx, "vt")

		require.NoError(t, err)
		require.NotNil(t, vt.UsedAt)
		assert.Equal(t, now, *vt.UsedAt)
	})

	t.Run("mark used twice", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery("UPDATE verification_tokens SET used_at = \\$1 WHERE token = \\$2 AND used_at IS NULL RETURNING user_id").
			WithArgs(sqlmock.AnyArg(), "vt").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(7))
		mock.ExpectQuery("UPDATE verification_tokens").WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

		require.NoError(t, s.MarkVerificationTokenUsed(ctx, "vt", now))
		assert.True(t, internal_errors.IsNotFound(s.MarkVerificationTokenUsed(ctx, "vt", now)))
	})
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("consumes token, updates hash, revokes sessions", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE verification_tokens SET used_at = \\$1 WHERE token = \\$2 AND used_at IS NULL AND type = \\$3 RETURNING user_id").
			WithArgs(sqlmock.AnyArg(), "vt", domain.PasswordResetToken).
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(7))
		mock.ExpectExec("UPDATE users SET password_hash = \\$1 WHERE id = \\$2").
			WithArgs("newhash", int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = \\$1").
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		require.NoError(t, s.ResetPassword(ctx, "vt", "newhash", now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("used token rolls back", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE verification_tokens").WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
		mock.ExpectRollback()

		err := s.ResetPassword(ctx, "vt", "newhash", now)

		assert.True(t, internal_errors.IsNotFound(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDeleteExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s, mock := newMock(t)
	mock.ExpectExec("DELETE FROM refresh_tokens WHERE expires_at < \\$1").WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("DELETE FROM pending_users WHERE expires_at < \\$1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM verification_tokens WHERE expires_at < \\$1").WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := s.DeleteExpiredRefreshTokens(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	n, err = s.DeleteExpiredPendingUsers(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = s.DeleteExpiredVerificationTokens(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueriesAreBounded(t *testing.T) {
	// Arrange
	old := queryTimeout
	queryTimeout = 20 * time.Millisecond
	t.Cleanup(func() { queryTimeout = old })

	s, mock := newMock(t)
	mock.ExpectExec("DELETE FROM refresh_tokens").
		WillDelayFor(time.Second).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Act
	start := time.Now()
	_, err := s.DeleteExpiredRefreshTokens(context.Background(), time.Now())

	// Assert
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
