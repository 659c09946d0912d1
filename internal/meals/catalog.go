// Package meals maps the free-form meal names found in attendance sheets to a
// closed set of cafeteria meals.
package meals

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Meal enumerates the meals served by the cafeteria.
type Meal int

const (
	Unknown Meal = iota
	MorningSnack
	Lunch
	AfternoonSnack
	Dinner
	LateSnack
)

// UnknownRank sorts unmatched meal names after every known meal of the same day.
const UnknownRank = 999

// Ordered lists the known meals in serving order.
var Ordered = []Meal{MorningSnack, Lunch, AfternoonSnack, Dinner, LateSnack}

// keywords are tested in order against the folded meal name; first match wins.
var keywords = []struct {
	meal  Meal
	words []string
}{
	{MorningSnack, []string{"manha"}},
	{Lunch, []string{"almoco"}},
	{AfternoonSnack, []string{"tarde"}},
	{Dinner, []string{"jantar"}},
	{LateSnack, []string{"ceia"}},
}

var displayNames = map[Meal]string{
	MorningSnack:   "Lanche da Manhã",
	Lunch:          "Almoço",
	AfternoonSnack: "Lanche da Tarde",
	Dinner:         "Jantar",
	LateSnack:      "Ceia",
}

var configKeys = map[Meal]string{
	MorningSnack:   "price_morning_snack",
	Lunch:          "price_lunch",
	AfternoonSnack: "price_afternoon_snack",
	Dinner:         "price_dinner",
	LateSnack:      "price_late_snack",
}

// priced maps the exact sheet spellings that carry their own price. Any
// other spelling, including accent or case variants, is priced as lunch.
var priced = map[string]Meal{
	"Lanche da Manhã": MorningSnack,
	"Lanche da manhã": MorningSnack,
	"Almoço":          Lunch,
	"Almoco":          Lunch,
	"Lanche da Tarde": AfternoonSnack,
	"Lanche da tarde": AfternoonSnack,
	"Jantar":          Dinner,
	"Ceia":            LateSnack,
}

// Rank returns the serving position used to order same-day events.
func (m Meal) Rank() int {
	if m >= MorningSnack && m <= LateSnack {
		return int(m)
	}
	return UnknownRank
}

// Name returns the canonical display name, or "" for Unknown.
func (m Meal) Name() string {
	return displayNames[m]
}

// ConfigKey returns the configuration key holding the meal price. Unknown
// meals are priced as lunch.
func (m Meal) ConfigKey() string {
	if key, ok := configKeys[m]; ok {
		return key
	}
	return configKeys[Lunch]
}

// ID is a canonicalized meal. Unknown meals keep the raw name as identifier.
type ID struct {
	Meal Meal
	Raw  string
}

// String returns the canonical name for known meals and the raw input otherwise.
func (id ID) String() string {
	if id.Meal == Unknown {
		return id.Raw
	}
	return id.Meal.Name()
}

// Rank returns the tie-break rank of the meal.
func (id ID) Rank() int {
	return id.Meal.Rank()
}

// Canonicalize resolves a raw meal name such as "LANCHE DA MANHÃ" or
// "Lanche da manha" to its meal.
func Canonicalize(raw string) ID {
	return ID{Meal: match(raw), Raw: raw}
}

// Rank returns 1..5 for known meals and UnknownRank otherwise.
func Rank(raw string) int {
	return match(raw).Rank()
}

// PricedMeal returns the meal whose price applies to the raw sheet value.
// Matching is exact after trimming; unmatched values yield Unknown, which
// ConfigKey prices as lunch.
func PricedMeal(raw string) Meal {
	if m, ok := priced[strings.TrimSpace(raw)]; ok {
		return m
	}
	return Unknown
}

// PriceKey returns the configuration key holding the price of the raw meal.
func PriceKey(raw string) string {
	return PricedMeal(raw).ConfigKey()
}

func match(raw string) Meal {
	folded := fold(raw)
	if folded == "" {
		return Unknown
	}
	for _, group := range keywords {
		for _, word := range group.words {
			if strings.Contains(folded, word) {
				return group.meal
			}
		}
	}
	return Unknown
}

// fold lower-cases, trims and strips combining marks so "Almoço" and
// "almoco" compare equal.
func fold(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, lowered)
	if err != nil {
		return lowered
	}
	return out
}
