package perf

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"

	"github.com/refeitorio/refeitorio/internal/attendance"
	"github.com/refeitorio/refeitorio/internal/meals"
	"github.com/refeitorio/refeitorio/internal/settings"
	"github.com/refeitorio/refeitorio/internal/students"
	"github.com/refeitorio/refeitorio/internal/students/studenttest"
)

const sheetHeader = "Dia,Identificação,Usuário,Curso/Departamento,Refeição,Comparecimento\n"

// reportConfig adds the price listing reports need on top of the test pricing.
type reportConfig struct {
	*studenttest.Config
}

func (c reportConfig) MealPrices(ctx context.Context) ([]settings.MealPrice, error) {
	out := make([]settings.MealPrice, 0, len(meals.Ordered))
	for _, m := range meals.Ordered {
		price, _ := c.PriceOf(ctx, m)
		out = append(out, settings.MealPrice{Meal: m.Name(), Key: m.ConfigKey(), Price: price})
	}
	return out, nil
}

// sheet builds an attendance export: every student eats lunch on each day,
// with every third student absent.
func sheet(studentsN, days int) string {
	var b strings.Builder
	b.WriteString(sheetHeader)
	for d := 1; d <= days; d++ {
		for s := 0; s < studentsN; s++ {
			marker := "Sim"
			if s%3 == 0 {
				marker = "Não"
			}
			fmt.Fprintf(&b, "%02d/03/2024,%07d,Student %d,Info,Almoço,%s\n", d, 2024000+s, s, marker)
		}
	}
	return b.String()
}

func seededLedger(t *testing.T, studentsN, days int) (*studenttest.Memory, *studenttest.Config) {
	t.Helper()
	repo := studenttest.New()
	cfg := studenttest.NewConfig(1000)
	cfg.Prices[meals.Lunch] = decimal.RequireFromString("8.00")
	im := attendance.NewImporter(repo, students.NewEngine(cfg, cfg), nil)
	if _, err := im.ImportReader(context.Background(), strings.NewReader(sheet(studentsN, days))); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	return repo, cfg
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	return sorted[index]
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}
