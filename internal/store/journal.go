package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/ordersync/internal/engine"
	"github.com/roach88/ordersync/internal/order"
)

// Entry is one journaled change.
type Entry struct {
	Seq         int64           `json:"seq"`
	OrderID     int64           `json:"order_id"`
	Source      engine.Source   `json:"source"`
	From        order.Status    `json:"from,omitempty"`
	To          order.Status    `json:"to"`
	Revision    int64           `json:"revision"`
	Fingerprint string          `json:"fingerprint"`
	Total       decimal.Decimal `json:"total"`
	RecordedAt  time.Time       `json:"recorded_at"`
}

// EntryFromChange builds the journal entry for an engine change.
func EntryFromChange(c engine.Change, at time.Time) Entry {
	return Entry{
		Seq:         c.Seq,
		OrderID:     c.Order.ID,
		Source:      c.Source,
		From:        c.Previous,
		To:          c.Order.Status,
		Revision:    c.Order.Revision,
		Fingerprint: order.Fingerprint(c.Order),
		Total:       c.Order.Total,
		RecordedAt:  at.UTC(),
	}
}

// Record appends e. Returns inserted=false when an entry with the same seq
// already exists.
func (s *Store) Record(ctx context.Context, e Entry) (inserted bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transitions
		(seq, order_id, source, from_status, to_status, revision, fingerprint, total, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		e.Seq,
		e.OrderID,
		string(e.Source),
		string(e.From),
		string(e.To),
		e.Revision,
		e.Fingerprint,
		e.Total.String(),
		e.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("record transition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record transition: %w", err)
	}
	return n == 1, nil
}

// Timeline returns every entry for orderID in seq order. Returns an empty
// slice (not nil) when there are none.
func (s *Store) Timeline(ctx context.Context, orderID int64) ([]Entry, error) {
	return s.query(ctx, `
		SELECT seq, order_id, source, from_status, to_status, revision, fingerprint, total, recorded_at
		FROM transitions
		WHERE order_id = ?
		ORDER BY seq ASC
	`, orderID)
}

// Recent returns the newest limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return s.query(ctx, `
		SELECT seq, order_id, source, from_status, to_status, revision, fingerprint, total, recorded_at
		FROM transitions
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
}

// Replay calls fn for every entry in seq order, stopping at the first
// error.
func (s *Store) Replay(ctx context.Context, fn func(Entry) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, order_id, source, from_status, to_status, revision, fingerprint, total, recorded_at
		FROM transitions
		ORDER BY seq ASC
	`)
	if err != nil {
		return fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate transitions: %w", err)
	}
	return nil
}

// LastSeq returns the highest journaled seq, or 0 for an empty journal.
// The engine clock resumes after it.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM transitions`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq.Int64, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                 Entry
		source, from, to  string
		total, recordedAt string
	)
	if err := rows.Scan(&e.Seq, &e.OrderID, &source, &from, &to, &e.Revision, &e.Fingerprint, &total, &recordedAt); err != nil {
		return Entry{}, fmt.Errorf("scan transition: %w", err)
	}
	e.Source = engine.Source(source)
	e.From = order.Status(from)
	e.To = order.Status(to)

	var err error
	if e.Total, err = decimal.NewFromString(total); err != nil {
		return Entry{}, fmt.Errorf("transition %d total: %w", e.Seq, err)
	}
	if e.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
		return Entry{}, fmt.Errorf("transition %d recorded_at: %w", e.Seq, err)
	}
	return e, nil
}
