package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/refeitorio/refeitorio/internal/audit"
	"github.com/refeitorio/refeitorio/internal/meals"
)

// ErrInvalidValue is returned when an update carries a malformed value for a
// known key.
var ErrInvalidValue = errors.New("settings: invalid value")

// Invalidator is notified after configuration changes so derived caches can
// be dropped.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service reads and updates configuration. It is the configuration provider
// injected into pricing and the blocking engine.
type Service struct {
	repo        Repository
	logger      *slog.Logger
	validate    *validator.Validate
	invalidator Invalidator
}

// NewService builds a settings service. invalidator may be nil.
func NewService(repo Repository, logger *slog.Logger, invalidator Invalidator) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, validate: validator.New(), invalidator: invalidator}
}

// Seed inserts the default entries that are not present yet.
func (s *Service) Seed(ctx context.Context) error {
	if err := s.repo.InsertMissing(ctx, Defaults); err != nil {
		return fmt.Errorf("settings: seed: %w", err)
	}
	return nil
}

// Entries lists every configuration row.
func (s *Service) Entries(ctx context.Context) ([]Entry, error) {
	return s.repo.List(ctx)
}

// All returns the configuration as a key to value map.
func (s *Service) All(ctx context.Context) (map[string]string, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("settings: list: %w", err)
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		out[e.Key] = e.Value
	}
	return out, nil
}

// Update replaces the values of existing keys in one transaction. Keys that
// do not exist are ignored, whatever their value; no entry is created for
// them. A malformed value for an existing key rolls the whole update back.
func (s *Service) Update(ctx context.Context, values map[string]string) ([]string, error) {
	if err := s.validate.Var(values, "required,min=1"); err != nil {
		return nil, fmt.Errorf("%w: no values supplied", ErrInvalidValue)
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var updated []string
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		updated = updated[:0]
		for _, key := range keys {
			if _, err := repo.Get(ctx, key); errors.Is(err, ErrNotFound) {
				continue
			} else if err != nil {
				return err
			}
			value := strings.TrimSpace(values[key])
			if err := checkValue(key, value); err != nil {
				return err
			}
			ok, err := repo.SetValue(ctx, key, value)
			if err != nil {
				return err
			}
			if ok {
				updated = append(updated, key)
			}
		}
		return repo.AppendAudit(ctx, audit.Entry{
			Action:   "Configuration updated",
			Severity: audit.SeveritySuccess,
			Detail:   strings.Join(updated, ","),
		})
	})
	if errors.Is(err, ErrInvalidValue) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("settings: update: %w", err)
	}

	if s.invalidator != nil {
		if err := s.invalidator.Bump(ctx); err != nil {
			s.logger.Warn("invalidate report cache", slog.Any("error", err))
		}
	}
	return updated, nil
}

// Threshold returns the number of pending absences that blocks a student.
func (s *Service) Threshold(ctx context.Context) (int, error) {
	entry, err := s.repo.Get(ctx, KeyBlockThreshold)
	if errors.Is(err, ErrNotFound) {
		return DefaultBlockThreshold, nil
	}
	if err != nil {
		return 0, fmt.Errorf("settings: threshold: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(entry.Value))
	if err != nil {
		s.logger.Warn("block threshold is not an integer", slog.String("value", entry.Value))
		return DefaultBlockThreshold, nil
	}
	return n, nil
}

// PriceOf returns the current price of meal. Meals without a price key use
// the lunch price; a missing row falls back to DefaultPrice.
func (s *Service) PriceOf(ctx context.Context, meal meals.Meal) (decimal.Decimal, error) {
	entry, err := s.repo.Get(ctx, meal.ConfigKey())
	if errors.Is(err, ErrNotFound) {
		return DefaultPrice, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("settings: price: %w", err)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(entry.Value))
	if err != nil {
		s.logger.Warn("meal price is not a number", slog.String("key", entry.Key), slog.String("value", entry.Value))
		return DefaultPrice, nil
	}
	return price, nil
}

// MealPrices lists the configured price of every known meal.
func (s *Service) MealPrices(ctx context.Context) ([]MealPrice, error) {
	out := make([]MealPrice, 0, len(meals.Ordered))
	for _, m := range meals.Ordered {
		price, err := s.PriceOf(ctx, m)
		if err != nil {
			return nil, err
		}
		out = append(out, MealPrice{Meal: m.Name(), Key: m.ConfigKey(), Price: price})
	}
	return out, nil
}

func checkValue(key, value string) error {
	value = strings.TrimSpace(value)
	switch {
	case key == KeyBlockThreshold:
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("%w: %s must be a positive integer", ErrInvalidValue, key)
		}
	case strings.HasPrefix(key, "price_"):
		price, err := decimal.NewFromString(value)
		if err != nil || price.IsNegative() {
			return fmt.Errorf("%w: %s must be a non-negative amount", ErrInvalidValue, key)
		}
	}
	return nil
}
