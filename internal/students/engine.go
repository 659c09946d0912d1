package students

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/refeitorio/refeitorio/internal/audit"
	"github.com/refeitorio/refeitorio/internal/meals"
)

// Policy provides the block threshold in force at evaluation time.
type Policy interface {
	Threshold(ctx context.Context) (int, error)
}

// Pricer prices a meal.
type Pricer interface {
	PriceOf(ctx context.Context, meal meals.Meal) (decimal.Decimal, error)
}

// Engine applies absence accrual and blocking to a student.
type Engine struct {
	policy Policy
	pricer Pricer
}

// NewEngine builds an Engine.
func NewEngine(policy Policy, pricer Pricer) *Engine {
	return &Engine{policy: policy, pricer: pricer}
}

// RecordPresence stores an attended meal. It has no financial effect.
func (e *Engine) RecordPresence(ctx context.Context, st Store, student Student, day time.Time, rawMeal string) (AttendanceRecord, error) {
	rec, err := st.InsertRecord(ctx, AttendanceRecord{
		StudentID: student.ID,
		Day:       day,
		Meal:      rawMeal,
		Kind:      KindPresent,
		Status:    StatusSettled,
		Amount:    decimal.Zero,
	})
	if err != nil {
		return AttendanceRecord{}, fmt.Errorf("students: record presence: %w", err)
	}
	return rec, nil
}

// RecordAbsence stores a pending absence priced by the raw meal spelling and
// accrues it on student. It reports whether the student became blocked.
func (e *Engine) RecordAbsence(ctx context.Context, st Store, student *Student, day time.Time, rawMeal string) (bool, error) {
	price, err := e.pricer.PriceOf(ctx, meals.PricedMeal(rawMeal))
	if err != nil {
		return false, fmt.Errorf("students: price absence: %w", err)
	}
	rec, err := st.InsertRecord(ctx, AttendanceRecord{
		StudentID: student.ID,
		Day:       day,
		Meal:      rawMeal,
		Kind:      KindAbsent,
		Status:    StatusPending,
		Amount:    price,
	})
	if err != nil {
		return false, fmt.Errorf("students: record absence: %w", err)
	}
	return e.Accrue(ctx, st, student, rec)
}

// Accrue applies one absence to student and persists the result. The debt
// is replaced by the absence amount while the counter accumulates.
func (e *Engine) Accrue(ctx context.Context, st Store, student *Student, rec AttendanceRecord) (bool, error) {
	student.PendingAbsences++
	student.LastAbsence = &LastAbsence{
		Day:    rec.Day,
		Meal:   meals.Canonicalize(rec.Meal).String(),
		Amount: rec.Amount,
	}
	student.Debt = rec.Amount

	blocked, err := e.evaluate(ctx, st, student)
	if err != nil {
		return false, err
	}
	if err := st.SaveStudent(ctx, *student); err != nil {
		return false, fmt.Errorf("students: save student: %w", err)
	}
	return blocked, nil
}

// evaluate blocks student when the pending count reaches the threshold.
func (e *Engine) evaluate(ctx context.Context, st Store, student *Student) (bool, error) {
	if student.Blocked {
		return false, nil
	}
	threshold, err := e.policy.Threshold(ctx)
	if err != nil {
		return false, fmt.Errorf("students: threshold: %w", err)
	}
	if student.PendingAbsences < threshold {
		return false, nil
	}
	student.Blocked = true
	if err := st.AppendAudit(ctx, audit.Entry{
		Action:   fmt.Sprintf("Student %s BLOCKED with %d absences", student.Name, student.PendingAbsences),
		Severity: audit.SeverityAlert,
	}); err != nil {
		return false, fmt.Errorf("students: audit block: %w", err)
	}
	return true, nil
}
