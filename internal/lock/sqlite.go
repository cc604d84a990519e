package lock

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// OpenDatabase opens the SQLite database and runs migrations
func OpenDatabase(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// busy_timeout is applied to every pooled connection; executors in other
	// processes release the lock through the same file.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set dialect: %w", err)
	}

	// Suppress goose logging
	goose.SetLogger(goose.NopLogger())

	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// SQLiteLocker keeps the lock as a row in a local SQLite database. Every
// process sharing the database file shares the lock.
type SQLiteLocker struct {
	db    *sql.DB
	key   string
	owner string
	now   func() time.Time
}

// NewSQLiteLocker creates a locker for key on an open database
func NewSQLiteLocker(db *sql.DB, key string) *SQLiteLocker {
	return &SQLiteLocker{
		db:    db,
		key:   key,
		owner: Owner(),
		now:   time.Now,
	}
}

// OpenSQLiteLocker opens the database at path and returns a locker for key
func OpenSQLiteLocker(path, key string) (*SQLiteLocker, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteLocker(db, key), nil
}

// SetClock replaces the time source. Used by tests.
func (l *SQLiteLocker) SetClock(now func() time.Time) {
	l.now = now
}

// Acquire inserts the lock row, or takes over an expired one, in a single
// statement so two processes can never both succeed.
func (l *SQLiteLocker) Acquire(ctx context.Context, holder string, ttl time.Duration) (bool, string, error) {
	now := l.now()
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO locks (key, holder, owner, acquired_at, expires_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			holder = excluded.holder,
			owner = excluded.owner,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
		WHERE locks.expires_at <= excluded.acquired_at
	`, l.key, holder, l.owner, now.UnixMilli(), now.Add(ttl).UnixMilli())
	if err != nil {
		return false, "", fmt.Errorf("failed to acquire lock: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return true, holder, nil
	}

	var current string
	err = l.db.QueryRowContext(ctx, "SELECT holder FROM locks WHERE key = ?", l.key).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, "", fmt.Errorf("failed to read lock holder: %w", err)
	}
	return current == holder, current, nil
}

// Release deletes the lock row if holder owns it
func (l *SQLiteLocker) Release(ctx context.Context, holder string) error {
	res, err := l.db.ExecContext(ctx, "DELETE FROM locks WHERE key = ? AND holder = ?", l.key, holder)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Current returns the unexpired lock row, if any
func (l *SQLiteLocker) Current(ctx context.Context) (*Info, error) {
	var info Info
	var expiresAt int64
	err := l.db.QueryRowContext(ctx,
		"SELECT holder, owner, expires_at FROM locks WHERE key = ? AND expires_at > ?",
		l.key, l.now().UnixMilli(),
	).Scan(&info.Holder, &info.Owner, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lock: %w", err)
	}
	info.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return &info, nil
}

// Close closes the database
func (l *SQLiteLocker) Close() error {
	return l.db.Close()
}
