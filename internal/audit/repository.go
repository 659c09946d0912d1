package audit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refeitorio/refeitorio/internal/platform/db"
)

// ErrEmptyAction is returned when an entry carries no action text.
var ErrEmptyAction = errors.New("audit: action required")

// Insert appends an entry using q, which may be a pool or an open transaction
// so the entry commits or rolls back with the surrounding write.
func Insert(ctx context.Context, q db.DBTX, e Entry) error {
	if e.Action == "" {
		return ErrEmptyAction
	}
	if e.Actor == "" {
		e.Actor = DefaultActor
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	var at *time.Time
	if !e.At.IsZero() {
		at = &e.At
	}
	_, err := q.Exec(ctx,
		`INSERT INTO audit_entries (at, actor, action, severity, detail) VALUES (COALESCE($1, NOW()), $2, $3, $4, $5)`,
		at, e.Actor, e.Action, string(e.Severity), e.Detail,
	)
	return err
}

// Repository reads and prunes the audit log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append writes an entry outside of any transaction.
func (r *Repository) Append(ctx context.Context, e Entry) error {
	return Insert(ctx, r.pool, e)
}

// Recent returns up to limit entries, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, at, actor, action, severity, detail
		FROM audit_entries
		ORDER BY at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var severity string
		if err := rows.Scan(&e.ID, &e.At, &e.Actor, &e.Action, &severity, &e.Detail); err != nil {
			return nil, err
		}
		e.Severity = Severity(severity)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteBefore removes entries dated before cutoff and reports how many went.
func (r *Repository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_entries WHERE at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
