// Package cursorfile persists the stream cursor to a local file.
package cursorfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/storage"
)

// Store reads and writes a single cursor value in a text file, surviving
// process restarts. Saves go through a temp file and rename so a crash
// mid-write never corrupts the last good value.
type Store struct {
	path string
}

// New returns a cursor store backed by the file at path.
func New(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("cursor path is required")
	}
	return &Store{path: filepath.Clean(path)}, nil
}

// LoadCursor returns the saved cursor. A missing file reports found=false
// without error.
func (s *Store) LoadCursor(ctx context.Context) (uint64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	if s == nil {
		return 0, false, fmt.Errorf("cursor store is not configured")
	}

	content, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read cursor file: %w", err)
	}

	cursor, err := strconv.ParseUint(strings.TrimSpace(string(content)), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse cursor file %s: %w", s.path, err)
	}
	return cursor, true, nil
}

// SaveCursor durably records the position.
func (s *Store) SaveCursor(ctx context.Context, cursor uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("cursor store is not configured")
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cursor dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create cursor temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(strconv.FormatUint(cursor, 10)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write cursor temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync cursor temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close cursor temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace cursor file: %w", err)
	}
	return nil
}

var _ storage.CursorStore = (*Store)(nil)
