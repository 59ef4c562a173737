package retry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/storage"
	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/storage/sqlite"
)

type scriptedLedger struct {
	failures int
	appends  []storage.Assertion
}

func (l *scriptedLedger) AppendAssertion(_ context.Context, a storage.Assertion) (storage.Assertion, error) {
	if l.failures > 0 {
		l.failures--
		return storage.Assertion{}, storage.ErrUnavailable
	}
	a.Seq = uint64(len(l.appends) + 1)
	l.appends = append(l.appends, a)
	return a, nil
}

func openPendingStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "retry-test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func enqueue(t *testing.T, store *sqlite.Store, val string, at time.Time) storage.PendingAssertion {
	t.Helper()
	entry, err := store.EnqueuePending(context.Background(), storage.PendingAssertion{
		URI:           "did:plc:subject",
		Val:           val,
		Src:           "did:plc:labeler",
		Status:        storage.PendingStatusPending,
		NextAttemptAt: at,
	})
	if err != nil {
		t.Fatalf("enqueue pending %s: %v", val, err)
	}
	return entry
}

func newTestSweeper(t *testing.T, ledger Ledger, pending storage.PendingStore, cfg Config, now time.Time) *Sweeper {
	t.Helper()
	sweeper, err := New(ledger, pending, cfg, nil)
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	sweeper.clock = func() time.Time { return now }
	return sweeper
}

func TestSweepReplaysDueEntries(t *testing.T) {
	store := openPendingStore(t)
	ledger := &scriptedLedger{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	enqueue(t, store, "alpha", now.Add(-time.Minute))
	enqueue(t, store, "beta", now.Add(-time.Minute))

	sweeper := newTestSweeper(t, ledger, store, Config{EntryDelay: -1}, now)
	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if len(ledger.appends) != 2 {
		t.Fatalf("replayed appends = %d, want 2", len(ledger.appends))
	}
	due, err := store.ListDuePending(context.Background(), now.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("list due after sweep: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("due entries after sweep = %d, want 0", len(due))
	}
}

func TestSweepSkipsEntriesNotYetDue(t *testing.T) {
	store := openPendingStore(t)
	ledger := &scriptedLedger{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	enqueue(t, store, "alpha", now.Add(time.Hour))

	sweeper := newTestSweeper(t, ledger, store, Config{EntryDelay: -1}, now)
	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(ledger.appends) != 0 {
		t.Fatalf("replayed appends = %d, want 0 before due time", len(ledger.appends))
	}
}

func TestSweepReschedulesFailureWithBackoff(t *testing.T) {
	store := openPendingStore(t)
	ledger := &scriptedLedger{failures: 1}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entry := enqueue(t, store, "alpha", now.Add(-time.Minute))

	cfg := Config{EntryDelay: -1, MaxAttempts: 3, Backoff: time.Minute, MaxDelay: 4 * time.Minute}
	sweeper := newTestSweeper(t, ledger, store, cfg, now)
	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("first sweep: %v", err)
	}

	// The entry is rescheduled one backoff out, so it is not due yet.
	due, err := store.ListDuePending(context.Background(), now.Add(30*time.Second), 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("due entries before backoff elapsed = %d, want 0", len(due))
	}

	due, err = store.ListDuePending(context.Background(), now.Add(2*time.Minute), 10)
	if err != nil {
		t.Fatalf("list due after backoff: %v", err)
	}
	if len(due) != 1 || due[0].ID != entry.ID || due[0].AttemptCount != 1 {
		t.Fatalf("due = %+v, want entry %d with one attempt", due, entry.ID)
	}

	// The store healed, so the next pass lands the write.
	sweeper.clock = func() time.Time { return now.Add(2 * time.Minute) }
	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(ledger.appends) != 1 || ledger.appends[0].Val != "alpha" {
		t.Fatalf("appends = %+v, want single alpha", ledger.appends)
	}
}

func TestSweepAbandonsAfterMaxAttempts(t *testing.T) {
	store := openPendingStore(t)
	ledger := &scriptedLedger{failures: 10}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entry := enqueue(t, store, "alpha", now.Add(-time.Minute))

	cfg := Config{EntryDelay: -1, MaxAttempts: 2, Backoff: time.Minute, MaxDelay: 4 * time.Minute}
	sweeper := newTestSweeper(t, ledger, store, cfg, now)
	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("first sweep: %v", err)
	}

	sweeper.clock = func() time.Time { return now.Add(10 * time.Minute) }
	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("second sweep: %v", err)
	}

	// Two failed attempts hit the cap, so the entry is dead, not retried.
	due, err := store.ListDuePending(context.Background(), now.Add(24*time.Hour), 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("due entries after abandonment = %d, want 0", len(due))
	}

	dead, err := store.ListDeadPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("list dead: %v", err)
	}
	if len(dead) != 1 || dead[0].ID != entry.ID {
		t.Fatalf("dead = %+v, want entry %d", dead, entry.ID)
	}
	if dead[0].LastError == "" {
		t.Fatal("dead entry must record the last error")
	}
}

func TestBackoffDelayDoublesUpToCap(t *testing.T) {
	sweeper, err := New(&scriptedLedger{}, openPendingStore(t), Config{
		Backoff:  time.Minute,
		MaxDelay: 5 * time.Minute,
	}, nil)
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}

	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 5 * time.Minute},
		{10, 5 * time.Minute},
	}
	for _, tc := range cases {
		if got := sweeper.backoffDelay(tc.attempts); got != tc.want {
			t.Fatalf("backoffDelay(%d) = %v, want %v", tc.attempts, got, tc.want)
		}
	}
}
