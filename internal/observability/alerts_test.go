package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	jobmetrics "github.com/refeitorio/refeitorio/internal/jobs"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertSpec struct {
	Groups []alertGroup `yaml:"groups"`
}

var seriesName = regexp.MustCompile(`refeitorio_[a-z_]+`)

func loadAlertGroup(t *testing.T) *alertGroup {
	t.Helper()
	path := filepath.Join("..", "..", "deploy", "prometheus", "alerts", "refeitorio.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read alert file: %v", err)
	}

	var spec alertSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		t.Fatalf("failed to unmarshal alert file: %v", err)
	}
	for i := range spec.Groups {
		if spec.Groups[i].Name == "refeitorio" {
			return &spec.Groups[i]
		}
	}
	t.Fatal("refeitorio alert group missing")
	return nil
}

func TestAlertRules(t *testing.T) {
	group := loadAlertGroup(t)

	expected := map[string]struct {
		severity string
		runbook  string
		hold     string
		selector string
	}{
		"HighErrorRate":   {"critical", "docs/runbook.md#high-error-rate", "10m", `code=~"5.."`},
		"WarmupFailing":   {"warning", "docs/runbook.md#job-failing", "15m", `job="reports:warmup"`},
		"BlockingSpike":   {"warning", "docs/runbook.md#blocking-spike", "5m", "refeitorio_students_blocked_total"},
		"AuditPurgeStale": {"warning", "docs/runbook.md#job-failing", "1h", `job="audit:purge"`},
	}

	if len(group.Rules) != len(expected) {
		t.Fatalf("expected %d rules, got %d", len(expected), len(group.Rules))
	}

	for _, rule := range group.Rules {
		want, ok := expected[rule.Alert]
		if !ok {
			t.Fatalf("unexpected rule %q", rule.Alert)
		}
		if rule.Labels["severity"] != want.severity {
			t.Fatalf("rule %s severity mismatch: %s", rule.Alert, rule.Labels["severity"])
		}
		if rule.Annotations["runbook"] != want.runbook {
			t.Fatalf("rule %s runbook mismatch: %s", rule.Alert, rule.Annotations["runbook"])
		}
		if rule.Annotations["summary"] == "" || rule.Annotations["description"] == "" {
			t.Fatalf("rule %s must include summary and description annotations", rule.Alert)
		}
		if !strings.Contains(rule.Expr, "refeitorio_") {
			t.Fatalf("rule %s must query refeitorio metrics: %s", rule.Alert, rule.Expr)
		}
		if rule.For != want.hold {
			t.Fatalf("rule %s hold duration mismatch: %q", rule.Alert, rule.For)
		}
		if !strings.Contains(rule.Expr, want.selector) {
			t.Fatalf("rule %s must select %s: %s", rule.Alert, want.selector, rule.Expr)
		}
	}
}

func TestAlertRulesQueryExportedSeries(t *testing.T) {
	group := loadAlertGroup(t)

	metrics := NewMetrics()
	metrics.StudentsBlocked(1)
	metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	_ = jobs.Track("audit:purge").End(nil)
	_ = jobs.Track("reports:warmup").End(errors.New("redis down"))

	body := scrape(t, metrics)
	for _, rule := range group.Rules {
		for _, name := range seriesName.FindAllString(rule.Expr, -1) {
			if !strings.Contains(body, name) {
				t.Fatalf("rule %s queries %s, which is not exported", rule.Alert, name)
			}
		}
	}
}

func TestAlertRunbookAnchorsExist(t *testing.T) {
	group := loadAlertGroup(t)
	runbook, err := os.ReadFile(filepath.Join("..", "..", "docs", "runbook.md"))
	if err != nil {
		t.Fatalf("failed to read runbook: %v", err)
	}
	for _, rule := range group.Rules {
		_, anchor, ok := strings.Cut(rule.Annotations["runbook"], "#")
		if !ok {
			t.Fatalf("rule %s runbook has no anchor", rule.Alert)
		}
		if !strings.Contains(string(runbook), "\n## "+anchor+"\n") {
			t.Fatalf("runbook has no section for %s (%s)", anchor, rule.Alert)
		}
	}
}
