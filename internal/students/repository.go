package students

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/refeitorio/refeitorio/internal/audit"
	"github.com/refeitorio/refeitorio/internal/platform/db"
)

// Store is the storage contract of the ledger. Every method runs against the
// connection or transaction the Store was obtained from.
type Store interface {
	GetStudent(ctx context.Context, id int64) (Student, error)
	// LockStudent loads the student and holds a row lock until the
	// surrounding transaction ends.
	LockStudent(ctx context.Context, id int64) (Student, error)
	FindByEnrollment(ctx context.Context, enrollmentID string) (Student, error)
	CreateStudent(ctx context.Context, in NewStudent) (Student, error)
	ListStudents(ctx context.Context, f Filter) ([]Student, error)
	SaveStudent(ctx context.Context, s Student) error

	FindRecord(ctx context.Context, studentID int64, day time.Time, meal string) (AttendanceRecord, bool, error)
	InsertRecord(ctx context.Context, rec AttendanceRecord) (AttendanceRecord, error)
	PendingAbsences(ctx context.Context, studentID int64) ([]AttendanceRecord, error)
	History(ctx context.Context, studentID int64) ([]AttendanceRecord, error)
	SettlePending(ctx context.Context, studentID int64) (int, error)

	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	Payments(ctx context.Context, studentID int64) ([]Payment, error)

	AppendAudit(ctx context.Context, e audit.Entry) error
}

// Reader serves the read-only aggregate queries behind reports.
type Reader interface {
	RecordsOn(ctx context.Context, day time.Time) ([]AttendanceRecord, error)
	AbsenceTotals(ctx context.Context) ([]MealTotal, error)
}

// Repository is a Store that can open transactions.
type Repository interface {
	Store
	Reader
	WithTx(ctx context.Context, fn func(context.Context, Store) error) error
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
	if db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %w", ErrConcurrentUpdate, err)
	}
	return err
}

const studentColumns = `id, enrollment_id, name, program, pending_absences, debt,
	last_absence_date, last_absence_meal, last_absence_amount, blocked, created_at, updated_at`

func scanStudent(row pgx.Row) (Student, error) {
	var (
		s          Student
		lastDay    *time.Time
		lastMeal   *string
		lastAmount decimal.Decimal
	)
	err := row.Scan(&s.ID, &s.EnrollmentID, &s.Name, &s.Program, &s.PendingAbsences, &s.Debt,
		&lastDay, &lastMeal, &lastAmount, &s.Blocked, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Student{}, ErrNotFound
	}
	if err != nil {
		return Student{}, err
	}
	if lastDay != nil {
		la := &LastAbsence{Day: *lastDay, Amount: lastAmount}
		if lastMeal != nil {
			la.Meal = *lastMeal
		}
		s.LastAbsence = la
	}
	return s, nil
}

func (r *repository) GetStudent(ctx context.Context, id int64) (Student, error) {
	return scanStudent(r.db.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
}

func (r *repository) LockStudent(ctx context.Context, id int64) (Student, error) {
	return scanStudent(r.db.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1 FOR UPDATE`, id))
}

func (r *repository) FindByEnrollment(ctx context.Context, enrollmentID string) (Student, error) {
	return scanStudent(r.db.QueryRow(ctx,
		`SELECT `+studentColumns+` FROM students WHERE enrollment_id = $1 FOR UPDATE`, enrollmentID))
}

func (r *repository) CreateStudent(ctx context.Context, in NewStudent) (Student, error) {
	s, err := scanStudent(r.db.QueryRow(ctx, `
		INSERT INTO students (enrollment_id, name, program)
		VALUES ($1, $2, $3)
		RETURNING `+studentColumns, in.EnrollmentID, in.Name, in.Program))
	if db.IsUniqueViolation(err) {
		return Student{}, fmt.Errorf("students: enrollment %s already registered: %w", in.EnrollmentID, err)
	}
	return s, err
}

func (r *repository) ListStudents(ctx context.Context, f Filter) ([]Student, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Blocked != nil {
		where = append(where, "blocked = "+arg(*f.Blocked))
	}
	if f.WithDebt {
		where = append(where, "debt > 0")
	}
	if f.WithAbsence {
		where = append(where, "pending_absences > 0")
	}
	if f.MinAbsences > 0 {
		where = append(where, "pending_absences >= "+arg(f.MinAbsences))
	}
	if f.MaxAbsences > 0 {
		where = append(where, "pending_absences <= "+arg(f.MaxAbsences))
	}

	query := `SELECT ` + studentColumns + ` FROM students`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.OrderByAbsences {
		query += " ORDER BY pending_absences DESC, name"
	} else {
		query += " ORDER BY name, id"
	}
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repository) SaveStudent(ctx context.Context, s Student) error {
	var (
		lastDay    *time.Time
		lastMeal   *string
		lastAmount = decimal.Zero
	)
	if s.LastAbsence != nil {
		lastDay = &s.LastAbsence.Day
		lastMeal = &s.LastAbsence.Meal
		lastAmount = s.LastAbsence.Amount
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE students SET
			name = $2, program = $3, pending_absences = $4, debt = $5,
			last_absence_date = $6, last_absence_meal = $7, last_absence_amount = $8,
			blocked = $9, updated_at = NOW()
		WHERE id = $1`,
		s.ID, s.Name, s.Program, s.PendingAbsences, s.Debt,
		lastDay, lastMeal, lastAmount, s.Blocked)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const recordColumns = `id, student_id, day, meal, kind, status, amount, recorded_at`

func scanRecord(row pgx.Row) (AttendanceRecord, error) {
	var (
		rec          AttendanceRecord
		kind, status string
	)
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.Day, &rec.Meal, &kind, &status, &rec.Amount, &rec.RecordedAt); err != nil {
		return AttendanceRecord{}, err
	}
	rec.Kind = Kind(kind)
	rec.Status = Status(status)
	return rec, nil
}

func (r *repository) FindRecord(ctx context.Context, studentID int64, day time.Time, meal string) (AttendanceRecord, bool, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM attendance_records WHERE student_id = $1 AND day = $2 AND meal = $3`,
		studentID, day, meal))
	if errors.Is(err, pgx.ErrNoRows) {
		return AttendanceRecord{}, false, nil
	}
	if err != nil {
		return AttendanceRecord{}, false, err
	}
	return rec, true, nil
}

func (r *repository) InsertRecord(ctx context.Context, rec AttendanceRecord) (AttendanceRecord, error) {
	out, err := scanRecord(r.db.QueryRow(ctx, `
		INSERT INTO attendance_records (student_id, day, meal, kind, status, amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+recordColumns,
		rec.StudentID, rec.Day, rec.Meal, string(rec.Kind), string(rec.Status), rec.Amount))
	if db.IsUniqueViolation(err) {
		return AttendanceRecord{}, ErrDuplicateRecord
	}
	return out, err
}

func (r *repository) queryRecords(ctx context.Context, query string, args ...any) ([]AttendanceRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repository) PendingAbsences(ctx context.Context, studentID int64) ([]AttendanceRecord, error) {
	return r.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE student_id = $1 AND kind = 'absent' AND status = 'pending'
		ORDER BY day, id`, studentID)
}

func (r *repository) History(ctx context.Context, studentID int64) ([]AttendanceRecord, error) {
	return r.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE student_id = $1
		ORDER BY day DESC, id DESC`, studentID)
}

func (r *repository) SettlePending(ctx context.Context, studentID int64) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE attendance_records SET status = 'settled'
		WHERE student_id = $1 AND kind = 'absent' AND status = 'pending'`, studentID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repository) RecordsOn(ctx context.Context, day time.Time) ([]AttendanceRecord, error) {
	return r.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE day = $1
		ORDER BY id`, day)
}

func (r *repository) AbsenceTotals(ctx context.Context) ([]MealTotal, error) {
	rows, err := r.db.Query(ctx, `
		SELECT meal, COUNT(*), COALESCE(SUM(amount), 0)
		FROM attendance_records
		WHERE kind = 'absent'
		GROUP BY meal
		ORDER BY meal`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MealTotal
	for rows.Next() {
		var t MealTotal
		if err := rows.Scan(&t.Meal, &t.Count, &t.Amount); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO payments (student_id, paid_on, amount, reason, absences_cleared)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		p.StudentID, p.PaidOn, p.Amount, p.Reason, p.AbsencesCleared,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}

func (r *repository) Payments(ctx context.Context, studentID int64) ([]Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, student_id, paid_on, amount, reason, absences_cleared, created_at
		FROM payments WHERE student_id = $1
		ORDER BY paid_on DESC, id DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.StudentID, &p.PaidOn, &p.Amount, &p.Reason, &p.AbsencesCleared, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) AppendAudit(ctx context.Context, e audit.Entry) error {
	return audit.Insert(ctx, r.db, e)
}
