package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrLabelConflict = errors.New("label enrolled under another name")

// SeedEnrollment upserts a name -> label table into identities in one
// transaction.  Rows for names not in enrollment are left alone.  A name that
// moves to a new label takes it over; a label held by another name is an
// error and nothing is written.
func SeedEnrollment(ctx context.Context, w *Worker, enrollment map[string]int) (int, error) {
	names := make([]string, 0, len(enrollment))
	for n := range enrollment {
		if strings.TrimSpace(n) != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	now := time.Now().UTC().UnixMilli()
	err := w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, name := range names {
			if err := UpsertIdentity(ctx, tx, strings.TrimSpace(name), enrollment[name], now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// UpsertIdentity must be called inside an existing transaction.
func UpsertIdentity(ctx context.Context, tx *sql.Tx, name string, label int, nowMs int64) error {
	var holder string
	err := tx.QueryRowContext(ctx, `SELECT name FROM identities WHERE label = ?;`, label).Scan(&holder)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("lookup label %d: %w", label, err)
	case holder != name:
		return fmt.Errorf("%w: label %d is %q", ErrLabelConflict, label, holder)
	}

	var current int
	err = tx.QueryRowContext(ctx, `SELECT label FROM identities WHERE name = ?;`, name).Scan(&current)
	if err == sql.ErrNoRows {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO identities(label, name, enrolled_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?);
`, label, name, nowMs, nowMs); err != nil {
			return fmt.Errorf("insert identity %s: %w", name, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup identity %s: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE identities
SET label         = ?,
    updated_at_ms = ?
WHERE name = ?;
`, label, nowMs, name); err != nil {
		return fmt.Errorf("update identity %s: %w", name, err)
	}
	return nil
}
