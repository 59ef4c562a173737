// Package labeler parses labeler command flags and launches the runtime.
package labeler

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/imigueldiaz/pride-labeler/internal/platform/cmd"
	labelerapp "github.com/imigueldiaz/pride-labeler/internal/services/labeler/app"
	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/ingest"
)

// Config holds labeler command configuration.
type Config struct {
	DID        string `env:"PRIDE_LABELER_DID"`
	SigningKey string `env:"PRIDE_LABELER_SIGNING_KEY"`

	Port        int    `env:"PRIDE_LABELER_PORT" envDefault:"3000"`
	MetricsPort int    `env:"PRIDE_LABELER_METRICS_PORT" envDefault:"4102"`
	DBPath      string `env:"PRIDE_LABELER_DB_PATH" envDefault:"data/labeler.db"`
	CursorPath  string `env:"PRIDE_LABELER_CURSOR_PATH" envDefault:"cursor.txt"`

	JetstreamURL string `env:"PRIDE_LABELER_JETSTREAM_URL"`
	Collection   string `env:"PRIDE_LABELER_COLLECTION"`
	LabelLimit   int    `env:"PRIDE_LABELER_LABEL_LIMIT" envDefault:"0"`

	CursorInterval time.Duration `env:"PRIDE_LABELER_CURSOR_INTERVAL" envDefault:"60s"`
	SweepInterval  time.Duration `env:"PRIDE_LABELER_SWEEP_INTERVAL" envDefault:"30s"`
	MaxAttempts    int           `env:"PRIDE_LABELER_MAX_ATTEMPTS" envDefault:"5"`
	RetryBackoff   time.Duration `env:"PRIDE_LABELER_RETRY_BACKOFF" envDefault:"1m"`
	RetryMaxDelay  time.Duration `env:"PRIDE_LABELER_RETRY_MAX_DELAY" envDefault:"15m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.JetstreamURL == "" {
		cfg.JetstreamURL = ingest.DefaultEndpoint
	}
	if cfg.Collection == "" {
		cfg.Collection = ingest.DefaultCollection
	}
	fs.StringVar(&cfg.DID, "did", cfg.DID, "The labeler's DID")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The labeler HTTP server port")
	fs.IntVar(&cfg.MetricsPort, "metrics-port", cfg.MetricsPort, "The prometheus metrics port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The labeler SQLite database path")
	fs.StringVar(&cfg.CursorPath, "cursor-path", cfg.CursorPath, "The stream cursor checkpoint file")
	fs.StringVar(&cfg.JetstreamURL, "jetstream-url", cfg.JetstreamURL, "The jetstream subscribe endpoint")
	fs.StringVar(&cfg.Collection, "collection", cfg.Collection, "The watched record collection")
	fs.IntVar(&cfg.LabelLimit, "label-limit", cfg.LabelLimit, "Maximum active labels per subject (0 = unlimited)")
	fs.DurationVar(&cfg.CursorInterval, "cursor-interval", cfg.CursorInterval, "Cursor checkpoint flush interval")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "Pending assertion sweep interval")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum replay attempts before abandoning")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base replay backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum replay delay")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the labeler runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceLabeler, func(ctx context.Context) error {
		return labelerapp.Run(ctx, labelerapp.RuntimeConfig{
			DID:            cfg.DID,
			SigningKey:     cfg.SigningKey,
			Port:           cfg.Port,
			MetricsPort:    cfg.MetricsPort,
			DBPath:         cfg.DBPath,
			CursorPath:     cfg.CursorPath,
			JetstreamURL:   cfg.JetstreamURL,
			Collection:     cfg.Collection,
			LabelLimit:     cfg.LabelLimit,
			CursorInterval: cfg.CursorInterval,
			SweepInterval:  cfg.SweepInterval,
			MaxAttempts:    cfg.MaxAttempts,
			RetryBackoff:   cfg.RetryBackoff,
			RetryMaxDelay:  cfg.RetryMaxDelay,
		})
	})
}
