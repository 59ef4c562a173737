package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/storage"
)

// AppendAssertion writes one assertion, drawing a fresh sequence number from
// the shared counter. A (uri, val, neg) triple that already exists is
// refreshed in place with the new sequence and timestamp, so repeated
// identical writes never grow the ledger beyond one row per triple.
func (s *Store) AppendAssertion(ctx context.Context, a storage.Assertion) (storage.Assertion, error) {
	if err := ctx.Err(); err != nil {
		return storage.Assertion{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Assertion{}, fmt.Errorf("storage is not configured")
	}

	a.URI = strings.TrimSpace(a.URI)
	a.Val = strings.TrimSpace(a.Val)
	a.Src = strings.TrimSpace(a.Src)
	if a.URI == "" {
		return storage.Assertion{}, fmt.Errorf("subject uri is required")
	}
	if a.Val == "" {
		return storage.Assertion{}, fmt.Errorf("label value is required")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.CreatedAt = a.CreatedAt.UTC()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Assertion{}, unavailable("begin append transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `UPDATE label_sequence SET next_seq = next_seq + 1 WHERE id = 1`); err != nil {
		return storage.Assertion{}, unavailable("advance label sequence", err)
	}
	var seq uint64
	if err := tx.QueryRowContext(ctx, `SELECT next_seq - 1 FROM label_sequence WHERE id = 1`).Scan(&seq); err != nil {
		return storage.Assertion{}, unavailable("read label sequence", err)
	}
	a.Seq = seq

	if _, err := tx.ExecContext(ctx, `
INSERT INTO label_assertions (seq, uri, val, neg, src, cts)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (uri, val, neg) DO UPDATE SET
	seq = excluded.seq,
	src = excluded.src,
	cts = excluded.cts
`,
		a.Seq,
		a.URI,
		a.Val,
		boolToInt(a.Neg),
		a.Src,
		toMillis(a.CreatedAt),
	); err != nil {
		return storage.Assertion{}, unavailable("append assertion", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.Assertion{}, unavailable("commit assertion", err)
	}
	return a, nil
}

// ResolveActive returns the winning non-negated assertion per label value
// for uri. Latest is decided by (cts, seq) so equal timestamps fall back to
// write order.
func (s *Store) ResolveActive(ctx context.Context, uri string) ([]storage.Assertion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, fmt.Errorf("subject uri is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT seq, uri, val, neg, src, cts FROM (
	SELECT
		seq,
		uri,
		val,
		neg,
		src,
		cts,
		ROW_NUMBER() OVER (PARTITION BY val ORDER BY cts DESC, seq DESC) AS rn
	FROM label_assertions
	WHERE uri = ?
)
WHERE rn = 1 AND neg = 0
ORDER BY val
`, uri)
	if err != nil {
		return nil, fmt.Errorf("resolve active labels: %w", err)
	}
	defer rows.Close()

	return scanAssertionRows(rows)
}

// ResolveAll applies the active-label resolution per distinct subject.
// Subjects whose labels are all negated are absent from the result.
func (s *Store) ResolveAll(ctx context.Context) ([]storage.Assertion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT seq, uri, val, neg, src, cts FROM (
	SELECT
		seq,
		uri,
		val,
		neg,
		src,
		cts,
		ROW_NUMBER() OVER (PARTITION BY uri, val ORDER BY cts DESC, seq DESC) AS rn
	FROM label_assertions
)
WHERE rn = 1 AND neg = 0
ORDER BY uri, val
`)
	if err != nil {
		return nil, fmt.Errorf("resolve all labels: %w", err)
	}
	defer rows.Close()

	return scanAssertionRows(rows)
}

// ListAssertions returns the full ledger ordered by sequence, for backup and
// inspection.
func (s *Store) ListAssertions(ctx context.Context) ([]storage.Assertion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT seq, uri, val, neg, src, cts
FROM label_assertions
ORDER BY seq ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list assertions: %w", err)
	}
	defer rows.Close()

	return scanAssertionRows(rows)
}

type assertionRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanAssertionRows(rows assertionRows) ([]storage.Assertion, error) {
	var assertions []storage.Assertion
	for rows.Next() {
		var a storage.Assertion
		var neg int
		var cts int64
		if err := rows.Scan(&a.Seq, &a.URI, &a.Val, &neg, &a.Src, &cts); err != nil {
			return nil, fmt.Errorf("scan assertion: %w", err)
		}
		a.Neg = neg != 0
		a.CreatedAt = fromMillis(cts)
		assertions = append(assertions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assertions: %w", err)
	}
	return assertions, nil
}

// ImportAssertions restores a ledger snapshot, preserving the original
// sequence numbers and timestamps, and advances the sequence counter past
// the highest imported value.
func (s *Store) ImportAssertions(ctx context.Context, assertions []storage.Assertion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin import transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var maxSeq uint64
	for _, a := range assertions {
		if strings.TrimSpace(a.URI) == "" || strings.TrimSpace(a.Val) == "" {
			return fmt.Errorf("import assertion %d: subject uri and label value are required", a.Seq)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO label_assertions (seq, uri, val, neg, src, cts)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (uri, val, neg) DO UPDATE SET
	seq = excluded.seq,
	src = excluded.src,
	cts = excluded.cts
`,
			a.Seq,
			strings.TrimSpace(a.URI),
			strings.TrimSpace(a.Val),
			boolToInt(a.Neg),
			strings.TrimSpace(a.Src),
			toMillis(a.CreatedAt),
		); err != nil {
			return unavailable(fmt.Sprintf("import assertion %d", a.Seq), err)
		}
		if a.Seq > maxSeq {
			maxSeq = a.Seq
		}
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE label_sequence SET next_seq = MAX(next_seq, ? + 1) WHERE id = 1
`, maxSeq); err != nil {
		return unavailable("advance label sequence after import", err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit import", err)
	}
	return nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
