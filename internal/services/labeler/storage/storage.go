// Package storage defines persistence contracts for labeler state.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrUnavailable indicates the backing store rejected a write for a
// transient reason. Callers must treat it as retryable, not fatal.
var ErrUnavailable = errors.New("storage unavailable")

// Assertion is one immutable ledger entry stating that a label value is
// asserted (or negated) for a subject. Seq is assigned at write time from a
// single monotonic counter and breaks ties between equal timestamps.
type Assertion struct {
	Seq       uint64
	URI       string
	Val       string
	Neg       bool
	Src       string
	CreatedAt time.Time
}

// Pending assertion statuses.
const (
	PendingStatusPending = "pending"
	PendingStatusDead    = "dead"
)

// PendingAssertion is a ledger write that failed and awaits replay. Entries
// that exhaust their attempts are marked dead and kept for inspection.
type PendingAssertion struct {
	ID            int64
	URI           string
	Val           string
	Neg           bool
	Src           string
	Status        string
	AttemptCount  int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LabelStore persists label assertions and resolves the active set.
type LabelStore interface {
	// AppendAssertion writes one assertion, assigning Seq and CreatedAt.
	// Writing a (URI, Val, Neg) triple that already exists refreshes the
	// existing row instead of growing the ledger.
	AppendAssertion(ctx context.Context, a Assertion) (Assertion, error)
	// ResolveActive returns the winning assertion per label value for uri,
	// keeping only the values whose latest assertion by (CreatedAt, Seq) is
	// not negated. Sorted by value.
	ResolveActive(ctx context.Context, uri string) ([]Assertion, error)
	// ResolveAll applies the same resolution per distinct subject, sorted
	// by (uri, value).
	ResolveAll(ctx context.Context) ([]Assertion, error)
	// ListAssertions returns every stored assertion ordered by Seq.
	ListAssertions(ctx context.Context) ([]Assertion, error)
}

// PendingStore persists failed assertion writes for later replay.
type PendingStore interface {
	EnqueuePending(ctx context.Context, p PendingAssertion) (PendingAssertion, error)
	// ListDuePending returns pending entries whose next attempt is due,
	// oldest first.
	ListDuePending(ctx context.Context, now time.Time, limit int) ([]PendingAssertion, error)
	// RemovePending deletes a replayed entry.
	RemovePending(ctx context.Context, id int64) error
	// MarkPendingFailed records a failed replay attempt and reschedules it.
	MarkPendingFailed(ctx context.Context, id int64, nextAttemptAt time.Time, lastError string) error
	// MarkPendingDead stops retrying an entry but keeps it queryable.
	MarkPendingDead(ctx context.Context, id int64, lastError string) error
	// ListDeadPending returns abandoned entries for operator inspection.
	ListDeadPending(ctx context.Context, limit int) ([]PendingAssertion, error)
}

// CursorStore persists the upstream stream position across restarts.
type CursorStore interface {
	// LoadCursor returns the saved cursor knowing absence is not an error.
	LoadCursor(ctx context.Context) (cursor uint64, found bool, err error)
	// SaveCursor durably records the position.
	SaveCursor(ctx context.Context, cursor uint64) error
}
