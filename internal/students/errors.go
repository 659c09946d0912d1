package students

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates an unknown student.
	ErrNotFound = errors.New("students: not found")
	// ErrInvalidAmount rejects payments that are zero or negative.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNoDebtOwed rejects payments for students without debt.
	ErrNoDebtOwed = errors.New("student has no debt")
	// ErrAmountMismatch rejects payments that differ from the debt.
	ErrAmountMismatch = errors.New("amount does not match debt")
	// ErrDuplicateRecord is returned when a record for the same student, day
	// and meal already exists.
	ErrDuplicateRecord = errors.New("students: duplicate attendance record")
	// ErrConcurrentUpdate is returned when another transaction changed the
	// same student first; the caller may retry.
	ErrConcurrentUpdate = errors.New("students: concurrent update, retry")
)

// AmountMismatchError reports the exact amount owed.
type AmountMismatchError struct {
	Owed decimal.Decimal
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("amount due is R$ %s", e.Owed.StringFixed(2))
}

func (e *AmountMismatchError) Unwrap() error { return ErrAmountMismatch }

// IsValidation reports whether err is a payment validation failure that
// left the ledger untouched.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) || errors.Is(err, ErrNoDebtOwed) || errors.Is(err, ErrAmountMismatch)
}
