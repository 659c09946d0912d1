// Package reports derives read-only snapshots of the student ledger.
package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/refeitorio/refeitorio/internal/settings"
	"github.com/refeitorio/refeitorio/internal/students"
)

// TopLimit bounds the ranking in the overall report.
const TopLimit = 10

// MealDay is the per-meal breakdown of one day, keyed by stored meal name.
type MealDay struct {
	Presences int             `json:"presences"`
	Absences  int             `json:"absences"`
	Value     decimal.Decimal `json:"value"`
}

// Daily is the snapshot of one day.
type Daily struct {
	Day           time.Time          `json:"day"`
	Presences     int                `json:"presences"`
	Absences      int                `json:"absences"`
	AbsenceValue  decimal.Decimal    `json:"absence_value"`
	Meals         map[string]MealDay `json:"meals"`
	TotalStudents int                `json:"total_students"`
	Blocked       int                `json:"blocked"`
	TotalDebt     decimal.Decimal    `json:"total_debt"`
}

// MealUsage totals absences recorded for a meal name.
type MealUsage struct {
	Absences int             `json:"absences"`
	Value    decimal.Decimal `json:"value"`
}

// StudentLine is a student projected for rankings and lists.
type StudentLine struct {
	ID           int64           `json:"id"`
	EnrollmentID string          `json:"enrollment_id"`
	Name         string          `json:"name"`
	Program      string          `json:"program"`
	Absences     int             `json:"absences"`
	Debt         decimal.Decimal `json:"debt"`
	LastAbsence  *time.Time      `json:"last_absence,omitempty"`
	Remaining    int             `json:"remaining,omitempty"`
}

// Overall is the all-time snapshot.
type Overall struct {
	TotalStudents   int                  `json:"total_students"`
	TotalAbsences   int                  `json:"total_absences"`
	AverageAbsences float64              `json:"average_absences"`
	TotalDebt       decimal.Decimal      `json:"total_debt"`
	WithAbsences    int                  `json:"with_absences"`
	WithDebt        int                  `json:"with_debt"`
	Blocked         int                  `json:"blocked"`
	Threshold       int                  `json:"threshold"`
	AtRisk          int                  `json:"at_risk"`
	Top             []StudentLine        `json:"top"`
	Meals           map[string]MealUsage `json:"meals"`
}

// MealValues pairs the configured prices with recorded usage.
type MealValues struct {
	Prices []settings.MealPrice `json:"prices"`
	Usage  map[string]MealUsage `json:"usage"`
}

// Dashboard is the landing page summary.
type Dashboard struct {
	TotalStudents     int             `json:"total_students"`
	Blocked           int             `json:"blocked"`
	TotalDebt         decimal.Decimal `json:"total_debt"`
	TotalAbsences     int             `json:"total_absences"`
	AtRisk            int             `json:"at_risk"`
	PresencesToday    int             `json:"presences_today"`
	AbsencesToday     int             `json:"absences_today"`
	AbsenceValueToday decimal.Decimal `json:"absence_value_today"`
}

func emptyDaily(day time.Time) Daily {
	return Daily{Day: day, Meals: map[string]MealDay{}}
}

func emptyOverall() Overall {
	return Overall{
		Threshold: settings.DefaultBlockThreshold,
		Top:       []StudentLine{},
		Meals:     map[string]MealUsage{},
	}
}

func line(s students.Student) StudentLine {
	l := StudentLine{
		ID:           s.ID,
		EnrollmentID: s.EnrollmentID,
		Name:         s.Name,
		Program:      s.Program,
		Absences:     s.PendingAbsences,
		Debt:         s.Debt,
	}
	if s.LastAbsence != nil {
		day := s.LastAbsence.Day
		l.LastAbsence = &day
	}
	return l
}

// atRisk reports whether s is one absence away from the threshold.
func atRisk(s students.Student, threshold int) bool {
	return !s.Blocked && s.PendingAbsences >= threshold-1 && s.PendingAbsences < threshold
}
