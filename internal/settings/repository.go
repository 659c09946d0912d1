package settings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refeitorio/refeitorio/internal/audit"
	"github.com/refeitorio/refeitorio/internal/platform/db"
)

// Repository is the persistence contract for configuration entries.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, key string) (Entry, error)
	List(ctx context.Context) ([]Entry, error)
	// SetValue updates an existing key and reports whether it existed.
	SetValue(ctx context.Context, key, value string) (bool, error)
	InsertMissing(ctx context.Context, entries []Entry) error
	AppendAudit(ctx context.Context, e audit.Entry) error
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) Get(ctx context.Context, key string) (Entry, error) {
	var e Entry
	var kind string
	err := r.db.QueryRow(ctx,
		`SELECT key, value, description, kind, updated_at FROM config_entries WHERE key = $1`, key,
	).Scan(&e.Key, &e.Value, &e.Description, &kind, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	e.Kind = Kind(kind)
	return e, nil
}

func (r *repository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT key, value, description, kind, updated_at FROM config_entries ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind string
		if err := rows.Scan(&e.Key, &e.Value, &e.Description, &kind, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) SetValue(ctx context.Context, key, value string) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE config_entries SET value = $2, updated_at = NOW() WHERE key = $1`, key, value)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repository) InsertMissing(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if _, err := r.db.Exec(ctx, `
			INSERT INTO config_entries (key, value, description, kind)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (key) DO NOTHING`,
			e.Key, e.Value, e.Description, string(e.Kind),
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) AppendAudit(ctx context.Context, e audit.Entry) error {
	return audit.Insert(ctx, r.db, e)
}
