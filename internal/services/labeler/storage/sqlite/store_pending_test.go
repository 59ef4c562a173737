package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/storage"
)

func TestPendingEnqueueListAndRemove(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	entry, err := store.EnqueuePending(context.Background(), storage.PendingAssertion{
		URI:       "did:plc:subject-1",
		Val:       "alpha",
		Src:       "did:plc:labeler",
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("enqueue pending: %v", err)
	}
	if entry.ID == 0 {
		t.Fatal("expected assigned pending id")
	}
	if entry.Status != storage.PendingStatusPending {
		t.Fatalf("status = %q, want %q", entry.Status, storage.PendingStatusPending)
	}

	due, err := store.ListDuePending(context.Background(), now, 10)
	if err != nil {
		t.Fatalf("list due pending: %v", err)
	}
	if len(due) != 1 || due[0].ID != entry.ID {
		t.Fatalf("due = %v, want the enqueued entry", due)
	}

	if err := store.RemovePending(context.Background(), entry.ID); err != nil {
		t.Fatalf("remove pending: %v", err)
	}
	if err := store.RemovePending(context.Background(), entry.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for second remove, got %v", err)
	}
}

func TestPendingFailedReschedulesUntilDead(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	entry, err := store.EnqueuePending(context.Background(), storage.PendingAssertion{
		URI:       "did:plc:subject-1",
		Val:       "alpha",
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("enqueue pending: %v", err)
	}

	if err := store.MarkPendingFailed(context.Background(), entry.ID, now.Add(time.Minute), "write timeout"); err != nil {
		t.Fatalf("mark pending failed: %v", err)
	}

	// Not due until the rescheduled time.
	due, err := store.ListDuePending(context.Background(), now, 10)
	if err != nil {
		t.Fatalf("list due pending: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("due before reschedule = %d entries, want 0", len(due))
	}

	due, err = store.ListDuePending(context.Background(), now.Add(2*time.Minute), 10)
	if err != nil {
		t.Fatalf("list due pending after reschedule: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("due after reschedule = %d entries, want 1", len(due))
	}
	if due[0].AttemptCount != 1 {
		t.Fatalf("attempt count = %d, want 1", due[0].AttemptCount)
	}
	if due[0].LastError != "write timeout" {
		t.Fatalf("last error = %q, want %q", due[0].LastError, "write timeout")
	}

	if err := store.MarkPendingDead(context.Background(), entry.ID, "write timeout"); err != nil {
		t.Fatalf("mark pending dead: %v", err)
	}

	due, err = store.ListDuePending(context.Background(), now.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("list due pending after dead: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("dead entry still due: %v", due)
	}

	dead, err := store.ListDeadPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("list dead pending: %v", err)
	}
	if len(dead) != 1 || dead[0].ID != entry.ID {
		t.Fatalf("dead = %v, want the abandoned entry", dead)
	}
	if dead[0].AttemptCount != 2 {
		t.Fatalf("dead attempt count = %d, want 2", dead[0].AttemptCount)
	}
}

func TestMarkPendingOnMissingEntryReturnsNotFound(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	if err := store.MarkPendingFailed(context.Background(), 404, now, "x"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing entry, got %v", err)
	}
	if err := store.MarkPendingDead(context.Background(), 404, "x"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing entry, got %v", err)
	}
}
