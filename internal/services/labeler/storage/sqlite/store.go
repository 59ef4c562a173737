// Package sqlite implements labeler persistence over SQLite.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/imigueldiaz/pride-labeler/internal/platform/storage/sqlitemigrate"
	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/storage"
	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed label assertion and retry queue persistence.
//
// A single SQLite file backs both the assertion ledger and the pending
// queue so a write and its retry bookkeeping share the same durability
// boundary.
type Store struct {
	sqlDB *sql.DB
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// unavailable wraps a storage failure so callers can detect it as retryable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(storage.ErrUnavailable, err))
}

// Open opens a labeler SQLite store and applies bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

var _ storage.LabelStore = (*Store)(nil)
var _ storage.PendingStore = (*Store)(nil)
