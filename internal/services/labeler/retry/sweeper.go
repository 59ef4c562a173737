// Package retry replays failed ledger writes from the pending queue.
package retry

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/storage"
)

const (
	defaultSweepInterval = 30 * time.Second
	defaultEntryDelay    = 250 * time.Millisecond
	defaultBatchLimit    = 50
	defaultMaxAttempts   = 5
	defaultBackoff       = time.Minute
	defaultMaxDelay      = 15 * time.Minute
)

// Ledger is the write path the sweeper replays into.
type Ledger interface {
	AppendAssertion(ctx context.Context, a storage.Assertion) (storage.Assertion, error)
}

// Observer receives replay outcomes, typically backed by metrics counters.
type Observer interface {
	ReplaySucceeded()
	ReplayFailed()
	ReplayAbandoned()
}

// NopObserver discards all outcomes.
type NopObserver struct{}

func (NopObserver) ReplaySucceeded() {}
func (NopObserver) ReplayFailed()    {}
func (NopObserver) ReplayAbandoned() {}

// Config controls sweep cadence and retry policy.
type Config struct {
	// SweepInterval is the pause between sweep passes.
	SweepInterval time.Duration
	// EntryDelay spaces out replays within a pass to bound ledger load.
	EntryDelay time.Duration
	// BatchLimit caps entries fetched per pass.
	BatchLimit int
	// MaxAttempts is the replay count after which an entry is abandoned.
	MaxAttempts int
	// Backoff is the base delay before the first re-attempt, doubled per
	// failure up to MaxDelay.
	Backoff  time.Duration
	MaxDelay time.Duration
}

func (c Config) normalized() Config {
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	// A negative EntryDelay disables the pause entirely.
	if c.EntryDelay == 0 {
		c.EntryDelay = defaultEntryDelay
	} else if c.EntryDelay < 0 {
		c.EntryDelay = 0
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = defaultBatchLimit
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.Backoff <= 0 {
		c.Backoff = defaultBackoff
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	return c
}

// Sweeper drains due pending assertions back into the ledger on a fixed
// interval. Entries that exhaust their attempts are marked dead and kept
// for operator inspection.
type Sweeper struct {
	ledger   Ledger
	pending  storage.PendingStore
	cfg      Config
	observer Observer
	clock    func() time.Time
}

// New builds a sweeper with normalized config defaults.
func New(ledger Ledger, pending storage.PendingStore, cfg Config, observer Observer) (*Sweeper, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if pending == nil {
		return nil, fmt.Errorf("pending store is required")
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Sweeper{
		ledger:   ledger,
		pending:  pending,
		cfg:      cfg.normalized(),
		observer: observer,
		clock:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run sweeps on the configured interval until context cancellation.
func (s *Sweeper) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				log.Printf("retry sweep: %v", err)
			}
		}
	}
}

// Sweep runs one replay pass over the due pending entries.
func (s *Sweeper) Sweep(ctx context.Context) error {
	now := s.clock()
	due, err := s.pending.ListDuePending(ctx, now, s.cfg.BatchLimit)
	if err != nil {
		return fmt.Errorf("list due pending assertions: %w", err)
	}

	for i, entry := range due {
		if i > 0 && s.cfg.EntryDelay > 0 {
			if err := sleepCtx(ctx, s.cfg.EntryDelay); err != nil {
				return err
			}
		}
		if err := s.replay(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sweeper) replay(ctx context.Context, entry storage.PendingAssertion) error {
	_, appendErr := s.ledger.AppendAssertion(ctx, storage.Assertion{
		URI: entry.URI,
		Val: entry.Val,
		Neg: entry.Neg,
		Src: entry.Src,
	})
	if appendErr == nil {
		if err := s.pending.RemovePending(ctx, entry.ID); err != nil {
			return fmt.Errorf("remove replayed pending %d: %w", entry.ID, err)
		}
		s.observer.ReplaySucceeded()
		return nil
	}

	attempts := entry.AttemptCount + 1
	if attempts >= s.cfg.MaxAttempts {
		if err := s.pending.MarkPendingDead(ctx, entry.ID, appendErr.Error()); err != nil {
			return fmt.Errorf("mark pending %d dead: %w", entry.ID, err)
		}
		log.Printf("abandoning pending assertion %d (%s, %s, neg=%v) after %d attempts: %v",
			entry.ID, entry.URI, entry.Val, entry.Neg, attempts, appendErr)
		s.observer.ReplayAbandoned()
		return nil
	}

	nextAttemptAt := s.clock().Add(s.backoffDelay(attempts))
	if err := s.pending.MarkPendingFailed(ctx, entry.ID, nextAttemptAt, appendErr.Error()); err != nil {
		return fmt.Errorf("reschedule pending %d: %w", entry.ID, err)
	}
	s.observer.ReplayFailed()
	return nil
}

func (s *Sweeper) backoffDelay(attempts int) time.Duration {
	delay := s.cfg.Backoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= s.cfg.MaxDelay {
			return s.cfg.MaxDelay
		}
	}
	if delay > s.cfg.MaxDelay {
		return s.cfg.MaxDelay
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
