// Package diagstore keeps operator-side records of failed upstream calls.
// Rows hold the backend, status and raw response body of the failure; images
// and detection results are never written.
package diagstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Kinds of failure recorded.
const (
	KindUpstream  = "upstream"
	KindParse     = "parse"
	KindConfig    = "config"
	KindTransport = "transport"
)

type Failure struct {
	ID         int64
	RequestID  string
	Backend    string
	Kind       string
	StatusCode int
	Body       string
	CreatedAt  time.Time
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the SQLite database at dbPath and brings its
// schema up to date.
func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("failed to run migrations: %w (also failed to close db: %v)", err, cerr)
		}
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// runMigrations applies every pending up migration. The migrate instance is
// not closed because its driver would close db with it.
func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	drv, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *Store) Record(ctx context.Context, f Failure) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO upstream_failures (request_id, backend, kind, status_code, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, f.RequestID, f.Backend, f.Kind, f.StatusCode, f.Body, f.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return nil
}

// CountSince returns how many failures were recorded at or after since.
func (s *Store) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM upstream_failures WHERE created_at >= ?
	`, since.UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count failures: %w", err)
	}
	return n, nil
}

// Recent returns up to limit failures, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Failure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, backend, kind, status_code, body, created_at
		FROM upstream_failures
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var failures []Failure
	for rows.Next() {
		var f Failure
		var createdMs int64
		if err := rows.Scan(&f.ID, &f.RequestID, &f.Backend, &f.Kind, &f.StatusCode, &f.Body, &createdMs); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		f.CreatedAt = time.UnixMilli(createdMs).UTC()
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate failures: %w", err)
	}
	return failures, nil
}

// Prune deletes failures recorded before cutoff and reports how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM upstream_failures WHERE created_at < ?
	`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune failures: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
