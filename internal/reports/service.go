package reports

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/refeitorio/refeitorio/internal/platform/cache"
	"github.com/refeitorio/refeitorio/internal/settings"
	"github.com/refeitorio/refeitorio/internal/students"
)

// Source is the ledger data the reports are derived from.
type Source interface {
	ListStudents(ctx context.Context, f students.Filter) ([]students.Student, error)
	RecordsOn(ctx context.Context, day time.Time) ([]students.AttendanceRecord, error)
	AbsenceTotals(ctx context.Context) ([]students.MealTotal, error)
}

// Config provides the threshold and configured prices.
type Config interface {
	Threshold(ctx context.Context) (int, error)
	MealPrices(ctx context.Context) ([]settings.MealPrice, error)
}

// Service computes reports. Every method logs failures and returns a zero
// value instead of an error.
type Service struct {
	source Source
	config Config
	cache  *cache.Versioned
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a Service. A nil cache computes every report directly.
func NewService(source Source, config Config, c *cache.Versioned, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, config: config, cache: c, logger: logger, now: time.Now}
}

// Daily returns the snapshot of day; the zero time means today.
func (s *Service) Daily(ctx context.Context, day time.Time) Daily {
	if day.IsZero() {
		day = s.today()
	}
	var out Daily
	if err := s.load(ctx, &out, func(ctx context.Context) (any, error) {
		return s.buildDaily(ctx, day)
	}, "daily", day.Format(time.DateOnly)); err != nil {
		s.logger.Error("daily report", slog.String("day", day.Format(time.DateOnly)), slog.Any("error", err))
		return emptyDaily(day)
	}
	return out
}

// Overall returns the all-time snapshot.
func (s *Service) Overall(ctx context.Context) Overall {
	var out Overall
	if err := s.load(ctx, &out, func(ctx context.Context) (any, error) {
		return s.buildOverall(ctx)
	}, "overall"); err != nil {
		s.logger.Error("overall report", slog.Any("error", err))
		return emptyOverall()
	}
	return out
}

// Blocked lists blocked students by name.
func (s *Service) Blocked(ctx context.Context) []StudentLine {
	out := []StudentLine{}
	if err := s.load(ctx, &out, func(ctx context.Context) (any, error) {
		blocked := true
		list, err := s.source.ListStudents(ctx, students.Filter{Blocked: &blocked})
		if err != nil {
			return nil, err
		}
		lines := make([]StudentLine, 0, len(list))
		for _, st := range list {
			lines = append(lines, line(st))
		}
		return lines, nil
	}, "blocked"); err != nil {
		s.logger.Error("blocked report", slog.Any("error", err))
		return []StudentLine{}
	}
	return out
}

// AtRisk lists students one absence short of being blocked.
func (s *Service) AtRisk(ctx context.Context) []StudentLine {
	out := []StudentLine{}
	if err := s.load(ctx, &out, func(ctx context.Context) (any, error) {
		threshold, err := s.config.Threshold(ctx)
		if err != nil {
			return nil, err
		}
		blocked := false
		list, err := s.source.ListStudents(ctx, students.Filter{Blocked: &blocked, OrderByAbsences: true})
		if err != nil {
			return nil, err
		}
		lines := []StudentLine{}
		for _, st := range list {
			if !atRisk(st, threshold) {
				continue
			}
			l := line(st)
			l.Remaining = threshold - st.PendingAbsences
			lines = append(lines, l)
		}
		return lines, nil
	}, "at-risk"); err != nil {
		s.logger.Error("at-risk report", slog.Any("error", err))
		return []StudentLine{}
	}
	return out
}

// MealValues returns configured prices and recorded absence usage per meal.
func (s *Service) MealValues(ctx context.Context) MealValues {
	var out MealValues
	if err := s.load(ctx, &out, func(ctx context.Context) (any, error) {
		prices, err := s.config.MealPrices(ctx)
		if err != nil {
			return nil, err
		}
		usage, err := s.usage(ctx)
		if err != nil {
			return nil, err
		}
		return MealValues{Prices: prices, Usage: usage}, nil
	}, "meal-values"); err != nil {
		s.logger.Error("meal values report", slog.Any("error", err))
		return MealValues{Prices: []settings.MealPrice{}, Usage: map[string]MealUsage{}}
	}
	return out
}

// Dashboard returns the landing page totals.
func (s *Service) Dashboard(ctx context.Context) Dashboard {
	today := s.today()
	var out Dashboard
	if err := s.load(ctx, &out, func(ctx context.Context) (any, error) {
		return s.buildDashboard(ctx, today)
	}, "dashboard", today.Format(time.DateOnly)); err != nil {
		s.logger.Error("dashboard report", slog.Any("error", err))
		return Dashboard{}
	}
	return out
}

// Warm precomputes the reports most likely to be requested next.
func (s *Service) Warm(ctx context.Context) {
	s.Dashboard(ctx)
	s.Overall(ctx)
	s.Daily(ctx, time.Time{})
}

func (s *Service) buildDaily(ctx context.Context, day time.Time) (Daily, error) {
	out := emptyDaily(day)
	records, err := s.source.RecordsOn(ctx, day)
	if err != nil {
		return Daily{}, err
	}
	for _, rec := range records {
		meal := out.Meals[rec.Meal]
		switch rec.Kind {
		case students.KindPresent:
			out.Presences++
			meal.Presences++
		case students.KindAbsent:
			out.Absences++
			out.AbsenceValue = out.AbsenceValue.Add(rec.Amount)
			meal.Absences++
			meal.Value = meal.Value.Add(rec.Amount)
		}
		out.Meals[rec.Meal] = meal
	}
	all, err := s.source.ListStudents(ctx, students.Filter{})
	if err != nil {
		return Daily{}, err
	}
	out.TotalStudents = len(all)
	for _, st := range all {
		if st.Blocked {
			out.Blocked++
		}
		out.TotalDebt = out.TotalDebt.Add(st.Debt)
	}
	return out, nil
}

func (s *Service) buildOverall(ctx context.Context) (Overall, error) {
	out := emptyOverall()
	threshold, err := s.config.Threshold(ctx)
	if err != nil {
		return Overall{}, err
	}
	out.Threshold = threshold

	all, err := s.source.ListStudents(ctx, students.Filter{})
	if err != nil {
		return Overall{}, err
	}
	out.TotalStudents = len(all)
	for _, st := range all {
		out.TotalAbsences += st.PendingAbsences
		out.TotalDebt = out.TotalDebt.Add(st.Debt)
		if st.PendingAbsences > 0 {
			out.WithAbsences++
		}
		if st.Debt.IsPositive() {
			out.WithDebt++
		}
		if st.Blocked {
			out.Blocked++
		}
		if atRisk(st, threshold) {
			out.AtRisk++
		}
	}
	if out.TotalStudents > 0 {
		out.AverageAbsences = float64(out.TotalAbsences) / float64(out.TotalStudents)
	}

	top, err := s.source.ListStudents(ctx, students.Filter{OrderByAbsences: true, Limit: TopLimit})
	if err != nil {
		return Overall{}, err
	}
	for _, st := range top {
		out.Top = append(out.Top, line(st))
	}

	if out.Meals, err = s.usage(ctx); err != nil {
		return Overall{}, err
	}
	return out, nil
}

func (s *Service) buildDashboard(ctx context.Context, today time.Time) (Dashboard, error) {
	var out Dashboard
	threshold, err := s.config.Threshold(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	all, err := s.source.ListStudents(ctx, students.Filter{})
	if err != nil {
		return Dashboard{}, err
	}
	out.TotalStudents = len(all)
	for _, st := range all {
		out.TotalAbsences += st.PendingAbsences
		out.TotalDebt = out.TotalDebt.Add(st.Debt)
		if st.Blocked {
			out.Blocked++
		}
		if atRisk(st, threshold) {
			out.AtRisk++
		}
	}
	records, err := s.source.RecordsOn(ctx, today)
	if err != nil {
		return Dashboard{}, err
	}
	for _, rec := range records {
		switch rec.Kind {
		case students.KindPresent:
			out.PresencesToday++
		case students.KindAbsent:
			out.AbsencesToday++
			out.AbsenceValueToday = out.AbsenceValueToday.Add(rec.Amount)
		}
	}
	return out, nil
}

func (s *Service) usage(ctx context.Context) (map[string]MealUsage, error) {
	totals, err := s.source.AbsenceTotals(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]MealUsage, len(totals))
	for _, t := range totals {
		out[t.Meal] = MealUsage{Absences: t.Count, Value: t.Amount}
	}
	return out, nil
}

// load serves dest from the cache, collapsing concurrent builds of the same
// key into one.
func (s *Service) load(ctx context.Context, dest any, build func(context.Context) (any, error), parts ...string) error {
	key, err := s.cache.Key(ctx, append([]string{"reports"}, parts...)...)
	c := s.cache
	if err != nil {
		s.logger.Warn("report cache unavailable", slog.Any("error", err))
		key = strings.Join(parts, ":")
		c = nil
	}
	ch := s.group.DoChan(key, func() (any, error) {
		var raw json.RawMessage
		err := c.FetchJSON(ctx, key, &raw, build)
		if errors.Is(err, cache.ErrDegraded) {
			s.logger.Warn("report served without cache", slog.String("key", key), slog.Any("error", err))
			return raw, nil
		}
		if err != nil {
			return nil, err
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.(json.RawMessage), dest)
	}
}

func (s *Service) today() time.Time {
	y, m, d := s.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
