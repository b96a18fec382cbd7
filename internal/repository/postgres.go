package repository

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// PostgresStore implements Store on top of a sqlx connection pool.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Connect opens and pings a Postgres pool.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("repository.Connect: %w", err)
	}
	return db, nil
}

// WithTx begins a transaction, hands it to fn, and commits on success.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository.WithTx: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("repository.WithTx: commit: %w", err)
	}
	return nil
}

// Ping checks connectivity for health endpoints.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// pgTx implements Tx over a *sqlx.Tx.
type pgTx struct {
	tx *sqlx.Tx
}

// Migrate executes the embedded *.sql files sorted by name.  The files use
// IF NOT EXISTS so re-running is harmless.
func Migrate(ctx context.Context, db *sqlx.DB, logger *slog.Logger) error {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("repository.Migrate: read dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := migrationFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("repository.Migrate: read %q: %w", f, err)
		}
		if _, err = db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("repository.Migrate: exec %q: %w", f, err)
		}
		logger.Info("migration applied", "file", f)
	}
	return nil
}
