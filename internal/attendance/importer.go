package attendance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/google/uuid"

	"github.com/refeitorio/refeitorio/internal/audit"
	"github.com/refeitorio/refeitorio/internal/students"
)

// Invalidator drops cached views after an import.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Observer receives committed import counts.
type Observer interface {
	RowsImported(outcome string, n int)
	StudentsBlocked(n int)
}

// Importer applies parsed sheets to the ledger in a single transaction.
type Importer struct {
	repo        students.Repository
	engine      *students.Engine
	parser      *Parser
	logger      *slog.Logger
	invalidator Invalidator
	observer    Observer
}

// Option customises an Importer.
type Option func(*Importer)

// WithInvalidator registers the cache bumped after a successful import.
func WithInvalidator(inv Invalidator) Option {
	return func(im *Importer) { im.invalidator = inv }
}

// WithObserver registers the metrics sink.
func WithObserver(o Observer) Option {
	return func(im *Importer) { im.observer = o }
}

// WithParser replaces the default parser.
func WithParser(p *Parser) Option {
	return func(im *Importer) { im.parser = p }
}

// NewImporter builds an Importer.
func NewImporter(repo students.Repository, engine *students.Engine, logger *slog.Logger, opts ...Option) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	im := &Importer{repo: repo, engine: engine, parser: NewParser(nil), logger: logger}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// ImportFile imports the sheet at path and removes the file afterwards,
// whatever the outcome.
func (im *Importer) ImportFile(ctx context.Context, path string) (Summary, error) {
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			im.logger.Warn("remove uploaded sheet", slog.String("path", path), slog.Any("error", err))
		}
	}()
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("attendance: open sheet: %w", err)
	}
	defer f.Close()
	return im.ImportReader(ctx, f)
}

// ImportReader parses r and imports its rows.
func (im *Importer) ImportReader(ctx context.Context, r io.Reader) (Summary, error) {
	results, err := im.parser.Parse(r)
	if err != nil {
		return Summary{}, err
	}
	return im.Import(ctx, results)
}

// Import applies parsed rows ordered by day and meal rank. Rejected rows are
// logged and counted. Any storage failure rolls back the whole batch and is
// reported as ErrImportFailed.
func (im *Importer) Import(ctx context.Context, results []RowResult) (Summary, error) {
	summary := Summary{BatchID: uuid.NewString(), Blocked: []string{}}

	rows := make([]Row, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			summary.RowErrors++
			im.logger.Warn("skip attendance row",
				slog.String("batch_id", summary.BatchID),
				slog.Int("line", res.Err.Line),
				slog.Any("error", res.Err.Err))
			continue
		}
		rows = append(rows, res.Row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Day.Equal(rows[j].Day) {
			return rows[i].Day.Before(rows[j].Day)
		}
		return rows[i].Rank < rows[j].Rank
	})

	err := im.repo.WithTx(ctx, func(ctx context.Context, st students.Store) error {
		applied := Summary{BatchID: summary.BatchID, RowErrors: summary.RowErrors, Blocked: []string{}}
		for _, row := range rows {
			if err := im.apply(ctx, st, row, &applied); err != nil {
				return fmt.Errorf("line %d: %w", row.Line, err)
			}
		}
		if err := st.AppendAudit(ctx, audit.Entry{
			Action:   applied.Message(),
			Severity: audit.SeveritySuccess,
			Detail:   "batch " + applied.BatchID,
		}); err != nil {
			return err
		}
		summary = applied
		return nil
	})
	if err != nil {
		im.logger.Error("attendance import rolled back",
			slog.String("batch_id", summary.BatchID), slog.Any("error", err))
		return Summary{}, fmt.Errorf("%w: %w", ErrImportFailed, err)
	}

	im.logger.Info("attendance imported",
		slog.String("batch_id", summary.BatchID),
		slog.Int("new_students", summary.NewStudents),
		slog.Int("absences", summary.Absences),
		slog.Int("presences", summary.Presences),
		slog.Int("skipped", summary.Skipped),
		slog.Int("row_errors", summary.RowErrors),
		slog.Int("blocked", len(summary.Blocked)))
	im.observe(summary)
	if im.invalidator != nil {
		if err := im.invalidator.Bump(ctx); err != nil {
			im.logger.Warn("invalidate report cache", slog.Any("error", err))
		}
	}
	return summary, nil
}

func (im *Importer) apply(ctx context.Context, st students.Store, row Row, sum *Summary) error {
	student, err := st.FindByEnrollment(ctx, row.EnrollmentID)
	if errors.Is(err, students.ErrNotFound) {
		student, err = st.CreateStudent(ctx, students.NewStudent{
			EnrollmentID: row.EnrollmentID,
			Name:         row.Name,
			Program:      row.Program,
		})
		if err != nil {
			return err
		}
		sum.NewStudents++
	} else if err != nil {
		return err
	}

	if student.Blocked {
		sum.Skipped++
		return nil
	}
	_, exists, err := st.FindRecord(ctx, student.ID, row.Day, row.Meal)
	if err != nil {
		return err
	}
	if exists {
		sum.Skipped++
		return nil
	}

	if row.Present {
		if _, err := im.engine.RecordPresence(ctx, st, student, row.Day, row.Meal); err != nil {
			return err
		}
		sum.Presences++
		return nil
	}
	blocked, err := im.engine.RecordAbsence(ctx, st, &student, row.Day, row.Meal)
	if err != nil {
		return err
	}
	sum.Absences++
	if blocked {
		sum.Blocked = append(sum.Blocked, student.Name)
	}
	return nil
}

func (im *Importer) observe(s Summary) {
	if im.observer == nil {
		return
	}
	im.observer.RowsImported("absence", s.Absences)
	im.observer.RowsImported("presence", s.Presences)
	im.observer.RowsImported("skipped", s.Skipped)
	im.observer.RowsImported("error", s.RowErrors)
	im.observer.StudentsBlocked(len(s.Blocked))
}
