package audit

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultRecentLimit = 100
	maxRecentLimit     = 500
	// DefaultRetentionDays mirrors the purge window used by operators.
	DefaultRetentionDays = 30
)

// Store provides the persistence needed by Service.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service exposes the audit log to handlers and jobs.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService builds the audit service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Record appends an entry outside of any business transaction.
func (s *Service) Record(ctx context.Context, e Entry) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("audit: store not configured")
	}
	return s.store.Append(ctx, e)
}

// Recent lists the latest entries, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("audit: store not configured")
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	return s.store.Recent(ctx, limit)
}

// Purge deletes entries whose date is older than days ago. Entries from the
// cutoff day itself are kept.
func (s *Service) Purge(ctx context.Context, days int) (int64, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("audit: store not configured")
	}
	if days <= 0 {
		days = DefaultRetentionDays
	}
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	cutoff := today.AddDate(0, 0, -days)
	removed, err := s.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: purge: %w", err)
	}
	return removed, nil
}
