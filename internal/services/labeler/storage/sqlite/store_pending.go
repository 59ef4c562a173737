package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/storage"
)

// EnqueuePending stores one failed assertion write for later replay.
func (s *Store) EnqueuePending(ctx context.Context, p storage.PendingAssertion) (storage.PendingAssertion, error) {
	if err := ctx.Err(); err != nil {
		return storage.PendingAssertion{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.PendingAssertion{}, fmt.Errorf("storage is not configured")
	}

	p.URI = strings.TrimSpace(p.URI)
	p.Val = strings.TrimSpace(p.Val)
	p.Src = strings.TrimSpace(p.Src)
	p.LastError = strings.TrimSpace(p.LastError)
	if p.URI == "" {
		return storage.PendingAssertion{}, fmt.Errorf("subject uri is required")
	}
	if p.Val == "" {
		return storage.PendingAssertion{}, fmt.Errorf("label value is required")
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.NextAttemptAt.IsZero() {
		p.NextAttemptAt = p.CreatedAt
	}
	p.Status = storage.PendingStatusPending
	p.AttemptCount = 0
	p.UpdatedAt = p.CreatedAt

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO pending_assertions (
	uri,
	val,
	neg,
	src,
	status,
	attempt_count,
	next_attempt_at,
	last_error,
	created_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		p.URI,
		p.Val,
		boolToInt(p.Neg),
		p.Src,
		p.Status,
		p.AttemptCount,
		toMillis(p.NextAttemptAt),
		p.LastError,
		toMillis(p.CreatedAt),
		toMillis(p.UpdatedAt),
	)
	if err != nil {
		return storage.PendingAssertion{}, fmt.Errorf("enqueue pending assertion: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return storage.PendingAssertion{}, fmt.Errorf("pending assertion id: %w", err)
	}
	p.ID = id
	return p, nil
}

// ListDuePending returns pending entries whose next attempt is due, oldest
// first. Dead entries are never returned here.
func (s *Store) ListDuePending(ctx context.Context, now time.Time, limit int) ([]storage.PendingAssertion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, uri, val, neg, src, status, attempt_count, next_attempt_at, last_error, created_at, updated_at
FROM pending_assertions
WHERE status = ? AND next_attempt_at <= ?
ORDER BY next_attempt_at ASC, id ASC
LIMIT ?
`,
		storage.PendingStatusPending,
		toMillis(now),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due pending: %w", err)
	}
	defer rows.Close()
	return scanPendingRows(rows)
}

// RemovePending deletes a successfully replayed entry.
func (s *Store) RemovePending(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM pending_assertions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove pending assertion: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove pending rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkPendingFailed records a failed replay attempt and reschedules it.
func (s *Store) MarkPendingFailed(ctx context.Context, id int64, nextAttemptAt time.Time, lastError string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if nextAttemptAt.IsZero() {
		return fmt.Errorf("next attempt at is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE pending_assertions
SET
	attempt_count = attempt_count + 1,
	next_attempt_at = ?,
	last_error = ?,
	updated_at = ?
WHERE id = ?
AND status = ?
`,
		toMillis(nextAttemptAt),
		strings.TrimSpace(lastError),
		toMillis(time.Now().UTC()),
		id,
		storage.PendingStatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark pending failed: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark pending failed rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkPendingDead stops retrying an entry but keeps it for inspection.
func (s *Store) MarkPendingDead(ctx context.Context, id int64, lastError string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE pending_assertions
SET
	status = ?,
	attempt_count = attempt_count + 1,
	last_error = ?,
	updated_at = ?
WHERE id = ?
AND status = ?
`,
		storage.PendingStatusDead,
		strings.TrimSpace(lastError),
		toMillis(time.Now().UTC()),
		id,
		storage.PendingStatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark pending dead: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark pending dead rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListDeadPending returns abandoned entries, newest first.
func (s *Store) ListDeadPending(ctx context.Context, limit int) ([]storage.PendingAssertion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, uri, val, neg, src, status, attempt_count, next_attempt_at, last_error, created_at, updated_at
FROM pending_assertions
WHERE status = ?
ORDER BY updated_at DESC, id DESC
LIMIT ?
`,
		storage.PendingStatusDead,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list dead pending: %w", err)
	}
	defer rows.Close()
	return scanPendingRows(rows)
}

type pendingRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanPendingRows(rows pendingRows) ([]storage.PendingAssertion, error) {
	var entries []storage.PendingAssertion
	for rows.Next() {
		var p storage.PendingAssertion
		var neg int
		var nextAttemptAt, createdAt, updatedAt int64
		if err := rows.Scan(
			&p.ID,
			&p.URI,
			&p.Val,
			&neg,
			&p.Src,
			&p.Status,
			&p.AttemptCount,
			&nextAttemptAt,
			&p.LastError,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pending assertion: %w", err)
		}
		p.Neg = neg != 0
		p.NextAttemptAt = fromMillis(nextAttemptAt)
		p.CreatedAt = fromMillis(createdAt)
		p.UpdatedAt = fromMillis(updatedAt)
		entries = append(entries, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending assertions: %w", err)
	}
	return entries, nil
}
