// Package students holds the student ledger: attendance records, pending
// absences, debt, blocking and payments.
package students

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind distinguishes attended from missed meals.
type Kind string

const (
	KindPresent Kind = "present"
	KindAbsent  Kind = "absent"
)

// Status tracks whether an absence still counts towards the debt.
type Status string

const (
	StatusPending Status = "pending"
	StatusSettled Status = "settled"
)

// Status labels exposed on listings.
const (
	LabelActive  = "active"
	LabelBlocked = "BLOCKED"
)

// DefaultPaymentReason is stored when a payment carries no reason.
const DefaultPaymentReason = "Debt payment"

// Student is a person enrolled in the cafeteria programme.
type Student struct {
	ID              int64           `json:"id"`
	EnrollmentID    string          `json:"enrollment_id"`
	Name            string          `json:"name"`
	Program         string          `json:"program"`
	PendingAbsences int             `json:"pending_absences"`
	Debt            decimal.Decimal `json:"debt"`
	LastAbsence     *LastAbsence    `json:"last_absence,omitempty"`
	Blocked         bool            `json:"blocked"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Status returns the listing label for the student.
func (s Student) Status() string {
	if s.Blocked {
		return LabelBlocked
	}
	return LabelActive
}

// LastAbsence is the most recent accrued absence.
type LastAbsence struct {
	Day    time.Time       `json:"day"`
	Meal   string          `json:"meal"`
	Amount decimal.Decimal `json:"amount"`
}

// NewStudent carries the data needed to register a student.
type NewStudent struct {
	EnrollmentID string `validate:"required"`
	Name         string
	Program      string
}

// AttendanceRecord is one scheduled meal for one student on one day. Meal
// keeps the raw name from the source sheet.
type AttendanceRecord struct {
	ID         int64           `json:"id"`
	StudentID  int64           `json:"student_id"`
	Day        time.Time       `json:"day"`
	Meal       string          `json:"meal"`
	Kind       Kind            `json:"kind"`
	Status     Status          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Payment settles every pending absence of a student.
type Payment struct {
	ID              int64           `json:"id"`
	StudentID       int64           `json:"student_id"`
	PaidOn          time.Time       `json:"paid_on"`
	Amount          decimal.Decimal `json:"amount"`
	Reason          string          `json:"reason"`
	AbsencesCleared int             `json:"absences_cleared"`
	CreatedAt       time.Time       `json:"created_at"`
}

// PaymentRequest is the input of Service.Pay.
type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"max=200"`
}

// PendingAbsence is an unpaid absence with its canonical meal name.
type PendingAbsence struct {
	Day     time.Time       `json:"day"`
	Meal    string          `json:"meal"`
	RawMeal string          `json:"raw_meal"`
	Amount  decimal.Decimal `json:"amount"`
}

// StudentDetail is the full view of a student.
type StudentDetail struct {
	Student           Student            `json:"student"`
	Status            string             `json:"status"`
	Pending           []PendingAbsence   `json:"pending"`
	LastAbsence       *PendingAbsence    `json:"last_absence,omitempty"`
	History           []AttendanceRecord `json:"history"`
	Payments          []Payment          `json:"payments"`
	Threshold         int                `json:"threshold"`
	RemainingAbsences int                `json:"remaining_absences"`
}

// Summary is a listing row.
type Summary struct {
	Student
	StatusLabel string `json:"status"`
}

// Filter narrows student listings. Zero values disable a criterion.
type Filter struct {
	Blocked     *bool
	WithDebt    bool
	WithAbsence bool
	MinAbsences int
	MaxAbsences int
	// OrderByAbsences sorts by pending absences descending instead of name.
	OrderByAbsences bool
	Limit           int
}

// MealTotal aggregates absences per stored meal name.
type MealTotal struct {
	Meal   string          `json:"meal"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}
