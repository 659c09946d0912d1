// Package attendance imports meal attendance sheets into the student ledger.
package attendance

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingColumn aborts an import before any row is processed.
	ErrMissingColumn = errors.New("attendance: missing column")
	// ErrImportFailed wraps any storage failure during a batch. The batch is
	// rolled back when it is returned.
	ErrImportFailed = errors.New("attendance: import failed")
	// ErrEmptyFile is returned for uploads without content.
	ErrEmptyFile = errors.New("attendance: empty file")
)

// MissingColumnError names the required column absent from the header.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("column %q not found", e.Column)
}

func (e *MissingColumnError) Unwrap() error { return ErrMissingColumn }

// Row is one parsed line of an attendance sheet.
type Row struct {
	Line         int       `json:"line"`
	Day          time.Time `json:"day"`
	EnrollmentID string    `json:"enrollment_id" validate:"required"`
	Name         string    `json:"name"`
	Program      string    `json:"program"`
	Meal         string    `json:"meal" validate:"required"`
	Marker       string    `json:"marker"`
	Present      bool      `json:"present"`
	Rank         int       `json:"rank"`
}

// RowError reports a line that could not be parsed. It never aborts the batch.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// RowResult is either a parsed row or the reason it was rejected.
type RowResult struct {
	Row Row
	Err *RowError
}

// Summary describes an applied import.
type Summary struct {
	BatchID     string   `json:"batch_id"`
	NewStudents int      `json:"new_students"`
	Absences    int      `json:"absences"`
	Presences   int      `json:"presences"`
	Skipped     int      `json:"skipped"`
	RowErrors   int      `json:"row_errors"`
	Blocked     []string `json:"blocked"`
}

// Message renders the summary for operators.
func (s Summary) Message() string {
	msg := fmt.Sprintf("Import OK! %d new students, %d absences.", s.NewStudents, s.Absences)
	if len(s.Blocked) > 0 {
		msg += fmt.Sprintf(" %d blocked.", len(s.Blocked))
	}
	return msg
}
