package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refeitorio/refeitorio/internal/attendance"
	"github.com/refeitorio/refeitorio/internal/settings"
)

type fakeImporter struct {
	body    string
	summary attendance.Summary
	err     error
}

func (f *fakeImporter) ImportReader(ctx context.Context, r io.Reader) (attendance.Summary, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return attendance.Summary{}, err
	}
	f.body = string(data)
	return f.summary, f.err
}

type fakeSettings struct {
	entries []settings.Entry
	got     map[string]string
}

func (f *fakeSettings) Entries(ctx context.Context) ([]settings.Entry, error) {
	return f.entries, nil
}

func (f *fakeSettings) Update(ctx context.Context, values map[string]string) ([]string, error) {
	f.got = values
	var updated []string
	for k := range values {
		if k == "block_threshold" {
			updated = append(updated, k)
		}
	}
	return updated, nil
}

type fakePurger struct {
	days int
}

func (f *fakePurger) Purge(ctx context.Context, days int) (int64, error) {
	f.days = days
	return 5, nil
}

type fakeQueue struct {
	jobs []string
	days int
}

func (f *fakeQueue) EnqueueAuditPurge(ctx context.Context, days int) (string, error) {
	f.jobs = append(f.jobs, "audit-purge")
	f.days = days
	return "task-1", nil
}

func (f *fakeQueue) EnqueueReportsWarmup(ctx context.Context) (string, error) {
	f.jobs = append(f.jobs, "reports-warmup")
	return "task-2", nil
}

func run(t *testing.T, backend *Backend, args ...string) (string, error) {
	t.Helper()
	released := false
	cmd := NewRootCommand(func(ctx context.Context) (*Backend, func(), error) {
		return backend, func() { released = true }, nil
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	if err == nil && backend != nil {
		assert.True(t, released, "backend must be released")
	}
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(nil)
	assert.Equal(t, "refeitorioctl", cmd.Use)
	for _, path := range [][]string{{"import"}, {"config", "show"}, {"config", "set"}, {"audit", "purge"}, {"enqueue"}} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}
}

func TestInvalidFormatRejected(t *testing.T) {
	_, err := run(t, &Backend{}, "--format", "yaml", "config", "show")
	require.ErrorContains(t, err, "invalid format")
}

func TestImportReadsFileAndKeepsIt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheet.csv")
	require.NoError(t, os.WriteFile(path, []byte("Dia,Identificação\n"), 0o600))
	importer := &fakeImporter{summary: attendance.Summary{BatchID: "b1", NewStudents: 2, Absences: 3, Blocked: []string{"A1"}}}

	out, err := run(t, &Backend{Importer: importer}, "import", "-v", path)
	require.NoError(t, err)
	assert.Equal(t, "Dia,Identificação\n", importer.body)
	assert.Contains(t, out, "Import OK! 2 new students, 3 absences. 1 blocked.")
	assert.Contains(t, out, "blocked: A1")
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestImportPropagatesFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheet.csv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	_, err := run(t, &Backend{Importer: &fakeImporter{err: attendance.ErrImportFailed}}, "import", path)
	require.ErrorIs(t, err, attendance.ErrImportFailed)
}

func TestImportMissingFile(t *testing.T) {
	_, err := run(t, &Backend{Importer: &fakeImporter{}}, "import", filepath.Join(t.TempDir(), "missing.csv"))
	require.ErrorContains(t, err, "open sheet")
}

func TestConfigShowJSON(t *testing.T) {
	store := &fakeSettings{entries: []settings.Entry{{Key: "block_threshold", Value: "3"}}}
	out, err := run(t, &Backend{Settings: store}, "--format", "json", "config", "show")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   []settings.Entry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "3", resp.Data[0].Value)
}

func TestConfigShowText(t *testing.T) {
	store := &fakeSettings{entries: []settings.Entry{{Key: "price_lunch", Value: "8.00", Description: "Lunch price"}}}
	out, err := run(t, &Backend{Settings: store}, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "price_lunch")
	assert.Contains(t, out, "Lunch price")
}

func TestConfigSetParsesAssignments(t *testing.T) {
	store := &fakeSettings{}
	out, err := run(t, &Backend{Settings: store}, "config", "set", "block_threshold=4", "unknown = x")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"block_threshold": "4", "unknown": "x"}, store.got)
	assert.Contains(t, out, "updated: block_threshold")
}

func TestConfigSetRejectsMalformedAssignment(t *testing.T) {
	_, err := run(t, &Backend{Settings: &fakeSettings{}}, "config", "set", "block_threshold")
	require.ErrorContains(t, err, "want key=value")
}

func TestAuditPurgeUsesConfiguredRetention(t *testing.T) {
	purger := &fakePurger{}
	out, err := run(t, &Backend{Audit: purger, RetentionDays: 30}, "audit", "purge")
	require.NoError(t, err)
	assert.Equal(t, 30, purger.days)
	assert.Contains(t, out, "removed 5 entries older than 30 days")

	_, err = run(t, &Backend{Audit: purger, RetentionDays: 30}, "audit", "purge", "--days", "7")
	require.NoError(t, err)
	assert.Equal(t, 7, purger.days)
}

func TestEnqueueJobs(t *testing.T) {
	q := &fakeQueue{}
	_, err := run(t, &Backend{Queue: q}, "enqueue", "audit-purge", "--days", "10")
	require.NoError(t, err)
	out, err := run(t, &Backend{Queue: q}, "enqueue", "reports-warmup")
	require.NoError(t, err)
	assert.Equal(t, []string{"audit-purge", "reports-warmup"}, q.jobs)
	assert.Equal(t, 10, q.days)
	assert.Contains(t, out, "task-2")

	_, err = run(t, &Backend{Queue: q}, "enqueue", "bogus")
	require.ErrorContains(t, err, "unknown job")
}

func TestEnqueueWithoutQueue(t *testing.T) {
	_, err := run(t, &Backend{}, "enqueue", "reports-warmup")
	require.ErrorContains(t, err, "job queue not configured")
}

func TestConnectFailure(t *testing.T) {
	cmd := NewRootCommand(func(ctx context.Context) (*Backend, func(), error) {
		return nil, nil, errors.New("db down")
	})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"config", "show"})
	require.ErrorContains(t, cmd.Execute(), "connect: db down")
}
