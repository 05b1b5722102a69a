package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/facegate/internal/db"
	"github.com/BrandonDHaskell/facegate/internal/facegate/store"
	"github.com/BrandonDHaskell/facegate/internal/facegate/types"
)

type IdentityStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewIdentityStore(db *sql.DB, writer *dbpkg.Worker) *IdentityStore {
	return &IdentityStore{db: db, writer: writer}
}

func (s *IdentityStore) Enrollment(ctx context.Context) (types.Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, label FROM identities;`)
	if err != nil {
		return nil, fmt.Errorf("Enrollment query: %w", err)
	}
	defer rows.Close()

	out := make(types.Enrollment)
	for rows.Next() {
		var name string
		var label int
		if err := rows.Scan(&name, &label); err != nil {
			return nil, fmt.Errorf("Enrollment scan: %w", err)
		}
		out[name] = label
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Enrollment rows: %w", err)
	}
	if len(out) == 0 {
		return nil, store.ErrEnrollmentNotFound
	}
	return out, nil
}

// Enroll adds name under label, or moves an existing name to label.
func (s *IdentityStore) Enroll(ctx context.Context, name string, label int, t time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.ErrBlankName
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	ms := t.UTC().UnixMilli()

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return dbpkg.UpsertIdentity(ctx, tx, name, label, ms)
	})
	if errors.Is(err, dbpkg.ErrLabelConflict) {
		return fmt.Errorf("%w: %v", store.ErrLabelTaken, err)
	}
	return err
}

func (s *IdentityStore) Remove(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM identities WHERE name = ?;`, name)
		if err != nil {
			return fmt.Errorf("Remove delete: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("Remove rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", store.ErrIdentityNotFound, name)
		}
		return nil
	})
}

func (s *IdentityStore) List(ctx context.Context) ([]store.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT label, name, enrolled_at_ms
FROM identities
ORDER BY label;
`)
	if err != nil {
		return nil, fmt.Errorf("List query: %w", err)
	}
	defer rows.Close()

	var out []store.Identity
	for rows.Next() {
		var id store.Identity
		var enrolledMs int64
		if err := rows.Scan(&id.Label, &id.Name, &enrolledMs); err != nil {
			return nil, fmt.Errorf("List scan: %w", err)
		}
		id.EnrolledAt = time.UnixMilli(enrolledMs).UTC()
		out = append(out, id)
	}
	return out, rows.Err()
}
