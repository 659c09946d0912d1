package students

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/refeitorio/refeitorio/internal/audit"
	"github.com/refeitorio/refeitorio/internal/meals"
)

// Tolerance is the largest accepted difference between a payment and the debt.
var Tolerance = decimal.New(1, -2)

// ErrInvalidReason rejects payment reasons that are too long.
var ErrInvalidReason = errors.New("payment reason too long")

// Invalidator drops cached views after the ledger changes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Observer receives committed ledger events.
type Observer interface {
	PaymentSettled(absences int)
}

// Service exposes student queries and payments.
type Service struct {
	repo        Repository
	policy      Policy
	logger      *slog.Logger
	validate    *validator.Validate
	invalidator Invalidator
	observer    Observer
	now         func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithInvalidator registers the cache invalidated after payments.
func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) { s.invalidator = inv }
}

// WithObserver registers the metrics sink.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithClock overrides the clock used to date payments.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds a Service.
func NewService(repo Repository, policy Policy, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, policy: policy, logger: logger, validate: validator.New(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every student with its status label, ordered by name.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	list, err := s.repo.ListStudents(ctx, Filter{})
	if err != nil {
		return nil, fmt.Errorf("students: list: %w", err)
	}
	out := make([]Summary, 0, len(list))
	for _, st := range list {
		out = append(out, Summary{Student: st, StatusLabel: st.Status()})
	}
	return out, nil
}

// Get returns the full detail of a student.
func (s *Service) Get(ctx context.Context, id int64) (StudentDetail, error) {
	st, err := s.repo.GetStudent(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return StudentDetail{}, err
		}
		return StudentDetail{}, fmt.Errorf("students: get: %w", err)
	}
	records, err := s.repo.PendingAbsences(ctx, id)
	if err != nil {
		return StudentDetail{}, fmt.Errorf("students: pending absences: %w", err)
	}
	history, err := s.repo.History(ctx, id)
	if err != nil {
		return StudentDetail{}, fmt.Errorf("students: history: %w", err)
	}
	payments, err := s.repo.Payments(ctx, id)
	if err != nil {
		return StudentDetail{}, fmt.Errorf("students: payments: %w", err)
	}
	threshold, err := s.policy.Threshold(ctx)
	if err != nil {
		return StudentDetail{}, fmt.Errorf("students: threshold: %w", err)
	}

	pending := newestFirst(records)
	detail := StudentDetail{
		Student:           st,
		Status:            st.Status(),
		Pending:           pending,
		History:           history,
		Payments:          payments,
		Threshold:         threshold,
		RemainingAbsences: max(0, threshold-len(pending)),
	}
	if len(pending) > 0 {
		last := pending[0]
		detail.LastAbsence = &last
	}
	if detail.History == nil {
		detail.History = []AttendanceRecord{}
	}
	if detail.Payments == nil {
		detail.Payments = []Payment{}
	}
	return detail, nil
}

// newestFirst orders pending absences by day and meal rank, latest first.
func newestFirst(records []AttendanceRecord) []PendingAbsence {
	out := make([]PendingAbsence, 0, len(records))
	for _, rec := range records {
		out = append(out, PendingAbsence{
			Day:     rec.Day,
			Meal:    meals.Canonicalize(rec.Meal).String(),
			RawMeal: rec.Meal,
			Amount:  rec.Amount,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.After(out[j].Day)
		}
		return meals.Rank(out[i].RawMeal) > meals.Rank(out[j].RawMeal)
	})
	return out
}

// Pay settles every pending absence of the student. The amount must match
// the outstanding debt within Tolerance; rejected payments change nothing.
func (s *Service) Pay(ctx context.Context, studentID int64, req PaymentRequest) (Payment, error) {
	if !req.Amount.IsPositive() {
		return Payment{}, ErrInvalidAmount
	}
	if err := s.validate.Struct(req); err != nil {
		return Payment{}, ErrInvalidReason
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = DefaultPaymentReason
	}

	var payment Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, st Store) error {
		student, err := st.LockStudent(ctx, studentID)
		if err != nil {
			return err
		}
		if !student.Debt.IsPositive() {
			return ErrNoDebtOwed
		}
		if req.Amount.Sub(student.Debt).Abs().GreaterThan(Tolerance) {
			return &AmountMismatchError{Owed: student.Debt}
		}

		cleared, err := st.SettlePending(ctx, student.ID)
		if err != nil {
			return fmt.Errorf("settle pending: %w", err)
		}
		payment, err = st.InsertPayment(ctx, Payment{
			StudentID:       student.ID,
			PaidOn:          s.now(),
			Amount:          req.Amount,
			Reason:          reason,
			AbsencesCleared: cleared,
		})
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		student.Blocked = false
		student.Debt = decimal.Zero
		student.PendingAbsences = 0
		student.LastAbsence = nil
		if err := st.SaveStudent(ctx, student); err != nil {
			return fmt.Errorf("reset student: %w", err)
		}
		return st.AppendAudit(ctx, audit.Entry{
			Action: fmt.Sprintf("Student %s paid R$ %s and cleared %d absences",
				student.Name, req.Amount.StringFixed(2), cleared),
			Severity: audit.SeverityPayment,
			Detail:   reason,
		})
	})
	if err != nil {
		if IsValidation(err) || errors.Is(err, ErrNotFound) {
			return Payment{}, err
		}
		return Payment{}, fmt.Errorf("students: pay: %w", err)
	}

	s.logger.Info("payment registered",
		slog.Int64("student_id", studentID),
		slog.String("amount", payment.Amount.StringFixed(2)),
		slog.Int("absences_cleared", payment.AbsencesCleared))
	if s.observer != nil {
		s.observer.PaymentSettled(payment.AbsencesCleared)
	}
	if s.invalidator != nil {
		if err := s.invalidator.Bump(ctx); err != nil {
			s.logger.Warn("invalidate report cache", slog.Any("error", err))
		}
	}
	return payment, nil
}
