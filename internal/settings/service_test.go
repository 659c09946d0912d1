package settings

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/refeitorio/refeitorio/internal/audit"
	"github.com/refeitorio/refeitorio/internal/meals"
)

type memoryRepo struct {
	entries map[string]Entry
	audits  []audit.Entry
	getErr  error
	failSet bool
}

func newMemoryRepo(entries ...Entry) *memoryRepo {
	r := &memoryRepo{entries: make(map[string]Entry)}
	for _, e := range entries {
		r.entries[e.Key] = e
	}
	return r
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	snapshot := make(map[string]Entry, len(r.entries))
	for k, v := range r.entries {
		snapshot[k] = v
	}
	audits := len(r.audits)
	if err := fn(ctx, r); err != nil {
		r.entries = snapshot
		r.audits = r.audits[:audits]
		return err
	}
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, key string) (Entry, error) {
	if r.getErr != nil {
		return Entry{}, r.getErr
	}
	e, ok := r.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (r *memoryRepo) List(ctx context.Context) ([]Entry, error) {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *memoryRepo) SetValue(ctx context.Context, key, value string) (bool, error) {
	if r.failSet {
		return false, errors.New("write failed")
	}
	e, ok := r.entries[key]
	if !ok {
		return false, nil
	}
	e.Value = value
	r.entries[key] = e
	return true, nil
}

func (r *memoryRepo) InsertMissing(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if _, ok := r.entries[e.Key]; !ok {
			r.entries[e.Key] = e
		}
	}
	return nil
}

func (r *memoryRepo) AppendAudit(ctx context.Context, e audit.Entry) error {
	r.audits = append(r.audits, e)
	return nil
}

type countingInvalidator struct{ bumps int }

func (c *countingInvalidator) Bump(ctx context.Context) error {
	c.bumps++
	return nil
}

func seeded(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	require.NoError(t, svc.Seed(context.Background()))
	return svc, repo
}

func TestThresholdDefaultsWhenUnset(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	n, err := svc.Threshold(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestThresholdReadsConfiguredValue(t *testing.T) {
	svc := NewService(newMemoryRepo(Entry{Key: KeyBlockThreshold, Value: "5"}), nil, nil)
	n, err := svc.Threshold(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, n)
}

func TestThresholdPropagatesStorageError(t *testing.T) {
	repo := newMemoryRepo()
	repo.getErr = errors.New("connection reset")
	svc := NewService(repo, nil, nil)
	_, err := svc.Threshold(context.Background())
	require.Error(t, err)
}

func TestPriceOfUsesMealKey(t *testing.T) {
	svc, _ := seeded(t)
	price, err := svc.PriceOf(context.Background(), meals.MorningSnack)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("3.50").Equal(price))
}

func TestPriceOfUnknownMealUsesLunch(t *testing.T) {
	svc, _ := seeded(t)
	price, err := svc.PriceOf(context.Background(), meals.Unknown)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("8.00").Equal(price))
}

func TestPriceOfWithoutRowsFallsBackToDefault(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	price, err := svc.PriceOf(context.Background(), meals.Dinner)
	require.NoError(t, err)
	require.True(t, DefaultPrice.Equal(price))
}

func TestUpdateIgnoresUnknownKeys(t *testing.T) {
	repo := newMemoryRepo()
	inv := &countingInvalidator{}
	svc := NewService(repo, nil, inv)
	require.NoError(t, svc.Seed(context.Background()))

	updated, err := svc.Update(context.Background(), map[string]string{
		"price_lunch": "9.25",
		"favourite":   "pizza",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"price_lunch"}, updated)

	_, exists := repo.entries["favourite"]
	require.False(t, exists)
	require.Equal(t, "9.25", repo.entries["price_lunch"].Value)
	require.Len(t, repo.audits, 1)
	require.Equal(t, audit.SeveritySuccess, repo.audits[0].Severity)
	require.Equal(t, 1, inv.bumps)
}

func TestUpdateRejectsMalformedValues(t *testing.T) {
	svc, repo := seeded(t)

	_, err := svc.Update(context.Background(), map[string]string{KeyBlockThreshold: "zero"})
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = svc.Update(context.Background(), map[string]string{"price_dinner": "-1"})
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = svc.Update(context.Background(), map[string]string{})
	require.ErrorIs(t, err, ErrInvalidValue)

	require.Equal(t, "3", repo.entries[KeyBlockThreshold].Value)
	require.Empty(t, repo.audits)
}

func TestUpdateSkipsUnknownKeysBeforeValidating(t *testing.T) {
	svc, repo := seeded(t)

	updated, err := svc.Update(context.Background(), map[string]string{
		KeyBlockThreshold: "4",
		"price_brunch":    "free",
		"favourite":       "",
	})
	require.NoError(t, err)
	require.Equal(t, []string{KeyBlockThreshold}, updated)

	threshold, err := svc.Threshold(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, threshold)
	_, exists := repo.entries["price_brunch"]
	require.False(t, exists)
	require.Len(t, repo.audits, 1)
}

func TestUpdateRollsBackOnFailure(t *testing.T) {
	svc, repo := seeded(t)
	repo.failSet = true
	_, err := svc.Update(context.Background(), map[string]string{"price_lunch": "10"})
	require.Error(t, err)
	require.Equal(t, "8.00", repo.entries["price_lunch"].Value)
	require.Empty(t, repo.audits)
}

func TestMealPricesListsKnownMeals(t *testing.T) {
	svc, _ := seeded(t)
	prices, err := svc.MealPrices(context.Background())
	require.NoError(t, err)
	require.Len(t, prices, 5)
	require.Equal(t, "Lanche da Manhã", prices[0].Meal)
	require.Equal(t, "Ceia", prices[4].Meal)
	require.True(t, decimal.RequireFromString("4.00").Equal(prices[4].Price))
}
