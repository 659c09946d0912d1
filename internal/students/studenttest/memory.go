// Package studenttest provides an in-memory students.Repository for tests.
package studenttest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/refeitorio/refeitorio/internal/audit"
	"github.com/refeitorio/refeitorio/internal/students"
)

// Memory is a students.Repository backed by maps. WithTx takes a snapshot
// and restores it when the callback fails.
type Memory struct {
	mu       sync.Mutex
	nextID   int64
	students map[int64]students.Student
	records  []students.AttendanceRecord
	payments []students.Payment
	audits   []audit.Entry

	// Fail, when set, is consulted before every write with the operation
	// name; a non-nil result is returned instead of performing it.
	Fail func(op string) error
}

// New returns an empty repository.
func New() *Memory {
	return &Memory{students: make(map[int64]students.Student)}
}

type snapshot struct {
	nextID   int64
	students map[int64]students.Student
	records  []students.AttendanceRecord
	payments []students.Payment
	audits   []audit.Entry
}

func (m *Memory) snapshot() snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := snapshot{
		nextID:   m.nextID,
		students: make(map[int64]students.Student, len(m.students)),
		records:  append([]students.AttendanceRecord(nil), m.records...),
		payments: append([]students.Payment(nil), m.payments...),
		audits:   append([]audit.Entry(nil), m.audits...),
	}
	for k, v := range m.students {
		s.students[k] = v
	}
	return s
}

func (m *Memory) restore(s snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID = s.nextID
	m.students = s.students
	m.records = s.records
	m.payments = s.payments
	m.audits = s.audits
}

// WithTx implements students.Repository.
func (m *Memory) WithTx(ctx context.Context, fn func(context.Context, students.Store) error) error {
	snap := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *Memory) fail(op string) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(op)
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

// Seed stores s as-is, assigning an id when missing.
func (m *Memory) Seed(s students.Student) students.Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = m.id()
	} else if s.ID > m.nextID {
		m.nextID = s.ID
	}
	m.students[s.ID] = s
	return s
}

// Student returns the stored student, ignoring errors.
func (m *Memory) Student(id int64) students.Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.students[id]
}

// Records returns every stored attendance record in insertion order.
func (m *Memory) Records() []students.AttendanceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]students.AttendanceRecord(nil), m.records...)
}

// AllPayments returns every stored payment.
func (m *Memory) AllPayments() []students.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]students.Payment(nil), m.payments...)
}

// Audits returns the appended audit entries in insertion order.
func (m *Memory) Audits() []audit.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Entry(nil), m.audits...)
}

func (m *Memory) GetStudent(ctx context.Context, id int64) (students.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return students.Student{}, students.ErrNotFound
	}
	return s, nil
}

func (m *Memory) LockStudent(ctx context.Context, id int64) (students.Student, error) {
	return m.GetStudent(ctx, id)
}

func (m *Memory) FindByEnrollment(ctx context.Context, enrollmentID string) (students.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.students {
		if s.EnrollmentID == enrollmentID {
			return s, nil
		}
	}
	return students.Student{}, students.ErrNotFound
}

func (m *Memory) CreateStudent(ctx context.Context, in students.NewStudent) (students.Student, error) {
	if err := m.fail("CreateStudent"); err != nil {
		return students.Student{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.students {
		if s.EnrollmentID == in.EnrollmentID {
			return students.Student{}, fmt.Errorf("enrollment %s already registered", in.EnrollmentID)
		}
	}
	now := time.Now()
	s := students.Student{
		ID:           m.id(),
		EnrollmentID: in.EnrollmentID,
		Name:         in.Name,
		Program:      in.Program,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.students[s.ID] = s
	return s, nil
}

func (m *Memory) ListStudents(ctx context.Context, f students.Filter) ([]students.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []students.Student
	for _, s := range m.students {
		switch {
		case f.Blocked != nil && s.Blocked != *f.Blocked:
			continue
		case f.WithDebt && !s.Debt.IsPositive():
			continue
		case f.WithAbsence && s.PendingAbsences <= 0:
			continue
		case f.MinAbsences > 0 && s.PendingAbsences < f.MinAbsences:
			continue
		case f.MaxAbsences > 0 && s.PendingAbsences > f.MaxAbsences:
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if f.OrderByAbsences && out[i].PendingAbsences != out[j].PendingAbsences {
			return out[i].PendingAbsences > out[j].PendingAbsences
		}
		if out[i].Name != out[j].Name {
			return strings.Compare(out[i].Name, out[j].Name) < 0
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) SaveStudent(ctx context.Context, s students.Student) error {
	if err := m.fail("SaveStudent"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[s.ID]; !ok {
		return students.ErrNotFound
	}
	s.UpdatedAt = time.Now()
	m.students[s.ID] = s
	return nil
}

func (m *Memory) FindRecord(ctx context.Context, studentID int64, day time.Time, meal string) (students.AttendanceRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.StudentID == studentID && sameDay(r.Day, day) && r.Meal == meal {
			return r, true, nil
		}
	}
	return students.AttendanceRecord{}, false, nil
}

func (m *Memory) InsertRecord(ctx context.Context, rec students.AttendanceRecord) (students.AttendanceRecord, error) {
	if err := m.fail("InsertRecord"); err != nil {
		return students.AttendanceRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.StudentID == rec.StudentID && sameDay(r.Day, rec.Day) && r.Meal == rec.Meal {
			return students.AttendanceRecord{}, students.ErrDuplicateRecord
		}
	}
	rec.ID = m.id()
	rec.RecordedAt = time.Now()
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *Memory) PendingAbsences(ctx context.Context, studentID int64) ([]students.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []students.AttendanceRecord
	for _, r := range m.records {
		if r.StudentID == studentID && r.Kind == students.KindAbsent && r.Status == students.StatusPending {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) History(ctx context.Context, studentID int64) ([]students.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []students.AttendanceRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].StudentID == studentID {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

func (m *Memory) SettlePending(ctx context.Context, studentID int64) (int, error) {
	if err := m.fail("SettlePending"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i, r := range m.records {
		if r.StudentID == studentID && r.Kind == students.KindAbsent && r.Status == students.StatusPending {
			m.records[i].Status = students.StatusSettled
			n++
		}
	}
	return n, nil
}

func (m *Memory) RecordsOn(ctx context.Context, day time.Time) ([]students.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []students.AttendanceRecord
	for _, r := range m.records {
		if sameDay(r.Day, day) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) AbsenceTotals(ctx context.Context) ([]students.MealTotal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	index := map[string]int{}
	var out []students.MealTotal
	for _, r := range m.records {
		if r.Kind != students.KindAbsent {
			continue
		}
		i, ok := index[r.Meal]
		if !ok {
			i = len(out)
			index[r.Meal] = i
			out = append(out, students.MealTotal{Meal: r.Meal})
		}
		out[i].Count++
		out[i].Amount = out[i].Amount.Add(r.Amount)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Meal < out[j].Meal })
	return out, nil
}

func (m *Memory) InsertPayment(ctx context.Context, p students.Payment) (students.Payment, error) {
	if err := m.fail("InsertPayment"); err != nil {
		return students.Payment{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id()
	p.CreatedAt = time.Now()
	m.payments = append(m.payments, p)
	return p, nil
}

func (m *Memory) Payments(ctx context.Context, studentID int64) ([]students.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []students.Payment
	for _, p := range m.payments {
		if p.StudentID == studentID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) AppendAudit(ctx context.Context, e audit.Entry) error {
	if err := m.fail("AppendAudit"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, e)
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

var _ students.Repository = (*Memory)(nil)
