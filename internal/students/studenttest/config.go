package studenttest

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/refeitorio/refeitorio/internal/meals"
)

// Config is a fixed threshold and price table implementing students.Policy
// and students.Pricer.
type Config struct {
	Limit  int
	Prices map[meals.Meal]decimal.Decimal
}

// NewConfig returns a Config with the given threshold and the seeded default
// prices.
func NewConfig(threshold int) *Config {
	return &Config{
		Limit: threshold,
		Prices: map[meals.Meal]decimal.Decimal{
			meals.MorningSnack:   decimal.RequireFromString("3.50"),
			meals.Lunch:          decimal.RequireFromString("8.00"),
			meals.AfternoonSnack: decimal.RequireFromString("3.50"),
			meals.Dinner:         decimal.RequireFromString("8.00"),
			meals.LateSnack:      decimal.RequireFromString("4.00"),
		},
	}
}

func (c *Config) Threshold(ctx context.Context) (int, error) {
	return c.Limit, nil
}

func (c *Config) PriceOf(ctx context.Context, meal meals.Meal) (decimal.Decimal, error) {
	if p, ok := c.Prices[meal]; ok {
		return p, nil
	}
	return c.Prices[meals.Lunch], nil
}
