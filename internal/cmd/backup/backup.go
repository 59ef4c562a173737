// Package backup exports and restores the assertion ledger as JSON
// snapshots.
package backup

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	entrypoint "github.com/imigueldiaz/pride-labeler/internal/platform/cmd"
	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/storage"
	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/storage/sqlite"
)

// Modes supported by the backup command.
const (
	ModeExport = "export"
	ModeImport = "import"
)

// Config holds backup command configuration.
type Config struct {
	DBPath string `env:"PRIDE_LABELER_DB_PATH" envDefault:"data/labeler.db"`
	Mode   string
	File   string
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The labeler SQLite database path")
	fs.StringVar(&cfg.Mode, "mode", ModeExport, "Either export or import")
	fs.StringVar(&cfg.File, "file", "", "The snapshot file path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Snapshot is the serialized ledger, ordered by sequence.
type Snapshot struct {
	ExportedAt time.Time       `json:"exportedAt"`
	Assertions []assertionJSON `json:"assertions"`
}

type assertionJSON struct {
	Seq uint64    `json:"seq"`
	URI string    `json:"uri"`
	Val string    `json:"val"`
	Neg bool      `json:"neg"`
	Src string    `json:"src"`
	Cts time.Time `json:"cts"`
}

// Run executes one export or import pass against the configured database.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceBackup, func(ctx context.Context) error {
		if strings.TrimSpace(cfg.File) == "" {
			return fmt.Errorf("snapshot file path is required")
		}

		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open labeler sqlite store: %w", err)
		}
		defer store.Close()

		switch strings.TrimSpace(cfg.Mode) {
		case ModeExport:
			return runExport(ctx, store, cfg.File, out)
		case ModeImport:
			return runImport(ctx, store, cfg.File, out)
		default:
			return fmt.Errorf("unknown mode %q, want %s or %s", cfg.Mode, ModeExport, ModeImport)
		}
	})
}

func runExport(ctx context.Context, store *sqlite.Store, path string, out io.Writer) error {
	assertions, err := store.ListAssertions(ctx)
	if err != nil {
		return fmt.Errorf("list assertions: %w", err)
	}

	snapshot := Snapshot{
		ExportedAt: time.Now().UTC(),
		Assertions: make([]assertionJSON, 0, len(assertions)),
	}
	for _, a := range assertions {
		snapshot.Assertions = append(snapshot.Assertions, assertionJSON{
			Seq: a.Seq,
			URI: a.URI,
			Val: a.Val,
			Neg: a.Neg,
			Src: a.Src,
			Cts: a.CreatedAt,
		})
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	fmt.Fprintf(out, "exported %d assertions to %s\n", len(snapshot.Assertions), path)
	return nil
}

func runImport(ctx context.Context, store *sqlite.Store, path string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	assertions := make([]storage.Assertion, 0, len(snapshot.Assertions))
	for _, a := range snapshot.Assertions {
		assertions = append(assertions, storage.Assertion{
			Seq:       a.Seq,
			URI:       a.URI,
			Val:       a.Val,
			Neg:       a.Neg,
			Src:       a.Src,
			CreatedAt: a.Cts,
		})
	}
	if err := store.ImportAssertions(ctx, assertions); err != nil {
		return fmt.Errorf("import assertions: %w", err)
	}
	fmt.Fprintf(out, "imported %d assertions from %s\n", len(assertions), path)
	return nil
}
