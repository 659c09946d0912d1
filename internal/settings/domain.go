// Package settings stores the business configuration of the cafeteria: the
// block threshold and the price of each meal.
package settings

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Kind groups configuration entries.
type Kind string

const (
	KindGeneral Kind = "general"
	KindMeal    Kind = "meal"
)

// Configuration keys.
const (
	KeyBlockThreshold = "block_threshold"
)

const (
	// DefaultBlockThreshold applies when block_threshold is unset.
	DefaultBlockThreshold = 3
)

// DefaultPrice applies when no price row exists at all.
var DefaultPrice = decimal.NewFromFloat(5.0)

// ErrNotFound indicates a missing configuration key.
var ErrNotFound = errors.New("settings: key not found")

// Entry is one configuration row.
type Entry struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	Kind        Kind      `json:"kind"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Defaults are seeded on startup when missing.
var Defaults = []Entry{
	{Key: KeyBlockThreshold, Value: "3", Description: "Absences before a student is blocked", Kind: KindGeneral},
	{Key: "price_morning_snack", Value: "3.50", Description: "Morning snack price", Kind: KindMeal},
	{Key: "price_lunch", Value: "8.00", Description: "Lunch price", Kind: KindMeal},
	{Key: "price_afternoon_snack", Value: "3.50", Description: "Afternoon snack price", Kind: KindMeal},
	{Key: "price_dinner", Value: "8.00", Description: "Dinner price", Kind: KindMeal},
	{Key: "price_late_snack", Value: "4.00", Description: "Late snack price", Kind: KindMeal},
}

// MealPrice pairs a meal with its configured price.
type MealPrice struct {
	Meal  string          `json:"meal"`
	Key   string          `json:"key"`
	Price decimal.Decimal `json:"price"`
}
