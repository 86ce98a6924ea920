package pg

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gallery-dev/gallery/backend/internal/storage/pg/migrations"
	"github.com/gallery-dev/gallery/shared/config"
	internal_errors "github.com/gallery-dev/gallery/shared/errors"
	"github.com/gallery-dev/gallery/shared/logger"
	sharedpg "github.com/gallery-dev/gallery/shared/storage/pg"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier = sharedpg.Querier

// Storage is the account store: confirmed users, pending users, refresh tokens
// and verification tokens.
type Storage struct {
	db *sql.DB
}

func New(ctx context.Context, cfg *config.Config) (*Storage, error) {
	logger.Log.Info("connecting to database", "host", cfg.Private.Pg.Host, "dbname", cfg.Private.Pg.Dbname)
	db, err := sharedpg.Connect(ctx, cfg, sharedpg.DefaultConnectionConfig())
	if err != nil {
		return nil, err
	}
	logger.Log.Info("successfully connected to database")
	return &Storage{db: db}, nil
}

// NewFromDB wraps an already opened pool.
func NewFromDB(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, s.db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	logger.Log.Info("database schema is up to date", "version", version)
	return nil
}

// Ping backs the readiness probe.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) Cleanup() error {
	return s.db.Close()
}

func (s *Storage) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return sharedpg.WithTx(ctx, s.db, fn)
}

// queryTimeout bounds every public store call so a stuck database cannot hold
// request goroutines. A var so tests can shorten it.
var queryTimeout = 5 * time.Second

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, queryTimeout)
}

func notFound(what string) error {
	return &internal_errors.ErrorWithStatusCode{Message: what + " not found", StatusCode: http.StatusNotFound}
}

func conflict(message string) error {
	return &internal_errors.ErrorWithStatusCode{Message: message, StatusCode: http.StatusConflict}
}

// affected turns "0 rows" into a 404 for what.
func affected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows for %s: %w", what, err)
	}
	if n == 0 {
		return notFound(what)
	}
	return nil
}
