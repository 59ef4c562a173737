// Package app wires the labeler runtime: storage, orchestrator, retry
// sweeper, stream ingestion, and the HTTP surfaces.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/imigueldiaz/pride-labeler/internal/platform/errors"
	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/api/xrpc"
	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/domain"
	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/ingest"
	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/metrics"
	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/retry"
	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/storage/cursorfile"
	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/storage/sqlite"
)

const (
	defaultPort        = 3000
	defaultMetricsPort = 4102
	defaultDBPath      = "data/labeler.db"
	defaultCursorPath  = "cursor.txt"

	httpShutdownTimeout = 5 * time.Second
)

// RuntimeConfig controls labeler startup, dependencies, and loop cadence.
type RuntimeConfig struct {
	// DID is the labeler's own identity. Required.
	DID string
	// SigningKey is the key material handed to the signing collaborator.
	// Required, even though the built-in signer does not use it.
	SigningKey string

	Port        int
	MetricsPort int
	DBPath      string
	CursorPath  string

	JetstreamURL string
	Collection   string
	LabelLimit   int

	CursorInterval time.Duration
	SweepInterval  time.Duration
	MaxAttempts    int
	RetryBackoff   time.Duration
	RetryMaxDelay  time.Duration

	// Signer overrides the label signer. Defaults to unsigned labels.
	Signer xrpc.Signer
}

func (c RuntimeConfig) normalized() RuntimeConfig {
	if c.Port <= 0 {
		c.Port = defaultPort
	}
	if c.MetricsPort <= 0 {
		c.MetricsPort = defaultMetricsPort
	}
	if strings.TrimSpace(c.DBPath) == "" {
		c.DBPath = defaultDBPath
	}
	if strings.TrimSpace(c.CursorPath) == "" {
		c.CursorPath = defaultCursorPath
	}
	if c.Signer == nil {
		c.Signer = xrpc.NopSigner{}
	}
	return c
}

func (c RuntimeConfig) validate() error {
	if strings.TrimSpace(c.DID) == "" {
		return errors.New(errors.CodeConfigMissingDID, "labeler did is required")
	}
	if strings.TrimSpace(c.SigningKey) == "" {
		return errors.New(errors.CodeConfigMissingSigningKey, "signing key is required")
	}
	return nil
}

// Run starts the labeler and blocks on the ingestion pipeline until context
// cancellation. The pipeline flushes the cursor synchronously on the way
// out; HTTP surfaces get a bounded drain.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	cfg = cfg.normalized()

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create labeler storage dir: %w", err)
		}
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open labeler sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close labeler sqlite store: %v", closeErr)
		}
	}()

	cursors, err := cursorfile.New(cfg.CursorPath)
	if err != nil {
		return fmt.Errorf("open cursor store: %w", err)
	}

	observer := metrics.New()

	service, err := domain.NewService(domain.Config{
		Ledger:     store,
		Pending:    store,
		IssuerDID:  cfg.DID,
		LabelLimit: cfg.LabelLimit,
		Observer:   observer,
	})
	if err != nil {
		return err
	}

	sweeper, err := retry.New(store, store, retry.Config{
		SweepInterval: cfg.SweepInterval,
		MaxAttempts:   cfg.MaxAttempts,
		Backoff:       cfg.RetryBackoff,
		MaxDelay:      cfg.RetryMaxDelay,
	}, observer)
	if err != nil {
		return fmt.Errorf("build retry sweeper: %w", err)
	}

	pipeline, err := ingest.New(service, cursors, ingest.Config{
		Endpoint:       cfg.JetstreamURL,
		Collection:     cfg.Collection,
		LabelerDID:     cfg.DID,
		CursorInterval: cfg.CursorInterval,
	}, observer)
	if err != nil {
		return fmt.Errorf("build ingestion pipeline: %w", err)
	}

	router, err := xrpc.NewRouter(service, cfg.Signer, "pride-labeler")
	if err != nil {
		return fmt.Errorf("build xrpc router: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on labeler port %d: %w", cfg.Port, err)
	}
	httpServer := &http.Server{Handler: router}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(listener)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown labeler http server: %v", err)
		}
		<-serveErr
	}()
	log.Printf("labeler server listening at %v", listener.Addr())

	go func() {
		if err := observer.Serve(ctx, fmt.Sprintf(":%d", cfg.MetricsPort)); err != nil {
			log.Printf("metrics server: %v", err)
		}
	}()

	go func() {
		if err := sweeper.Run(ctx); err != nil {
			log.Printf("retry sweeper: %v", err)
		}
	}()

	return pipeline.Run(ctx)
}
