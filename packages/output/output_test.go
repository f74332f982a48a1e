package output

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitrun/packages/model"
	"github.com/abdul-hamid-achik/hitrun/packages/store"
)

func seedReport(t *testing.T) (*store.Memory, int64) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()

	env := &model.Environment{Name: "staging", BaseURL: "http://api"}
	require.NoError(t, st.CreateEnvironment(ctx, env))
	mod := &model.Module{Name: "users"}
	require.NoError(t, st.CreateModule(ctx, mod))
	ok := &model.TestCase{ModuleID: mod.ID, Name: "list users", Method: "GET", Path: "/users"}
	require.NoError(t, st.CreateTestCase(ctx, ok))
	bad := &model.TestCase{ModuleID: mod.ID, Method: "POST", Path: "/users"}
	require.NoError(t, st.CreateTestCase(ctx, bad))
	down := &model.TestCase{ModuleID: mod.ID, Name: "health", Method: "GET", Path: "/health"}
	require.NoError(t, st.CreateTestCase(ctx, down))

	started := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	finished := started.Add(2 * time.Second)
	moduleID := mod.ID
	exec := &model.Execution{
		Name:          "Module: users",
		Scope:         model.ScopeModule,
		ModuleID:      &moduleID,
		EnvironmentID: env.ID,
		Executor:      "ci",
		Status:        model.StatusRunning,
		Progress:      model.Progress{Total: 3},
		StartedAt:     started,
	}
	require.NoError(t, st.CreateExecution(ctx, exec))

	require.NoError(t, st.AddDetail(ctx, &model.ExecutionDetail{
		ExecutionID: exec.ID, TestCaseID: ok.ID, Status: model.DetailSuccess, DurationMs: 40,
		Response:   map[string]any{"status_code": 200},
		Assertions: &model.Outcome{Passed: true, Results: []*model.AssertionResult{{Passed: true, Type: model.AssertStatusCode, Operator: model.OpEquals, Expected: 200, Actual: 200}}},
	}))
	require.NoError(t, st.AddDetail(ctx, &model.ExecutionDetail{
		ExecutionID: exec.ID, TestCaseID: bad.ID, Status: model.DetailFailed, DurationMs: 120,
		Response:   map[string]any{"status_code": 422},
		Assertions: &model.Outcome{Passed: false, Results: []*model.AssertionResult{{Passed: false, Type: model.AssertStatusCode, Operator: model.OpEquals, Expected: 201, Actual: 422}}},
	}))
	require.NoError(t, st.AddDetail(ctx, &model.ExecutionDetail{
		ExecutionID: exec.ID, TestCaseID: down.ID, Status: model.DetailFailed, DurationMs: 30000,
		Response: map[string]any{"error": "transport failure: context deadline exceeded"},
	}))
	require.NoError(t, st.AddLog(ctx, &model.ExecutionLog{ExecutionID: exec.ID, Level: model.LevelWarn, Message: "skipping failed case health"}))

	status := model.StatusSuccess
	passed, failed := 1, 2
	require.NoError(t, st.UpdateExecution(ctx, exec.ID, model.ExecutionUpdate{
		Status: &status, Passed: &passed, Failed: &failed,
		Progress: &model.Progress{Current: 3, Total: 3}, FinishedAt: &finished,
	}))
	return st, exec.ID
}

func TestLoad(t *testing.T) {
	st, id := seedReport(t)

	r, err := Load(context.Background(), st, id)
	require.NoError(t, err)

	assert.Equal(t, "staging", r.Environment)
	assert.Len(t, r.Details, 3)
	assert.Len(t, r.Logs, 1)
	assert.Equal(t, "list users", r.CaseName(r.Details[0].TestCaseID))
	assert.Equal(t, "POST /users", r.CaseName(r.Details[1].TestCaseID))
	assert.Equal(t, "case 999", r.CaseName(999))
	assert.Equal(t, 3, r.Latency.Count)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(context.Background(), store.NewMemory(), 42)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestNewLatencyStats(t *testing.T) {
	assert.Equal(t, LatencyStats{}, NewLatencyStats(nil))

	var details []*model.ExecutionDetail
	for i := int64(1); i <= 100; i++ {
		details = append(details, &model.ExecutionDetail{DurationMs: i})
	}
	stats := NewLatencyStats(details)

	assert.Equal(t, 100, stats.Count)
	assert.InDelta(t, float64(time.Millisecond), float64(stats.Min), float64(10*time.Microsecond))
	assert.InDelta(t, float64(50*time.Millisecond), float64(stats.P50), float64(time.Millisecond))
	assert.InDelta(t, float64(99*time.Millisecond), float64(stats.P99), float64(time.Millisecond))
	assert.InDelta(t, float64(100*time.Millisecond), float64(stats.Max), float64(time.Millisecond))
	assert.True(t, stats.P50 <= stats.P90 && stats.P90 <= stats.P95 && stats.P95 <= stats.P99)
}

func TestNewLatencyStats_ClampsZeroAndHuge(t *testing.T) {
	stats := NewLatencyStats([]*model.ExecutionDetail{{DurationMs: 0}, {DurationMs: 10 * 60 * 1000}})
	assert.Equal(t, 2, stats.Count)
	assert.LessOrEqual(t, stats.Max, 61*time.Second)
}

func TestConsoleFormatter(t *testing.T) {
	st, id := seedReport(t)
	r, err := Load(context.Background(), st, id)
	require.NoError(t, err)

	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithNoColor(true), WithVerbose(true))
	require.NoError(t, f.Format(r))

	out := buf.String()
	assert.Contains(t, out, "Execution #")
	assert.Contains(t, out, "Module: users")
	assert.Contains(t, out, "Environment: staging")
	assert.Contains(t, out, "✓ list users (40ms)")
	assert.Contains(t, out, "✗ POST /users (120ms)")
	assert.Contains(t, out, "Expected: 201")
	assert.Contains(t, out, "Actual:   422")
	assert.Contains(t, out, "x health (transport failure: context deadline exceeded)")
	assert.Contains(t, out, "skipping failed case health")
	assert.Contains(t, out, "1 passed, 2 failed, 3 total")
	assert.Contains(t, out, "Status:  success")
	assert.Contains(t, out, "Latency: p50")
	assert.Contains(t, out, "Time:    2000ms")
}

func TestConsoleFormatter_Executions(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithNoColor(true))
	f.FormatExecutions([]*model.Execution{
		{ID: 2, Scope: model.ScopeAll, Status: model.StatusFailed, Name: "All cases", Progress: model.Progress{Total: 4}},
		{ID: 1, Scope: model.ScopeSingle, Status: model.StatusSuccess, Passed: 1, Name: "Single case: ping", Progress: model.Progress{Total: 1}},
	})

	out := buf.String()
	assert.Contains(t, out, "#2")
	assert.Contains(t, out, "0/4 passed")
	assert.Contains(t, out, "Single case: ping")
}

func TestJSONFormatter(t *testing.T) {
	st, id := seedReport(t)
	r, err := Load(context.Background(), st, id)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewJSONFormatter(JSONWithWriter(&buf)).Format(r))

	var out JSONOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, JSONSummary{Total: 3, Passed: 1, Failed: 2, Status: "success", Environment: "staging"}, out.Summary)
	require.Len(t, out.Cases, 3)
	assert.True(t, out.Cases[0].Passed)
	assert.Equal(t, "POST /users", out.Cases[1].Name)
	require.Len(t, out.Cases[1].Assertions, 1)
	assert.Equal(t, "transport failure: context deadline exceeded", out.Cases[2].Error)
	assert.Nil(t, out.Cases[2].Response)
	assert.Equal(t, 2000.0, out.Duration)
	assert.Equal(t, 3, out.Latency.Count)
	require.Len(t, out.Logs, 1)
	assert.Equal(t, "warn", out.Logs[0].Level)
}

func TestJUnitFormatter(t *testing.T) {
	st, id := seedReport(t)
	r, err := Load(context.Background(), st, id)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewJUnitFormatter(JUnitWithWriter(&buf)).Format(r))
	assert.Contains(t, buf.String(), `<?xml version="1.0" encoding="UTF-8"?>`)

	var suites JUnitTestSuites
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &suites))
	assert.Equal(t, 3, suites.Tests)
	assert.Equal(t, 1, suites.Failures)
	assert.Equal(t, 1, suites.Errors)
	require.Len(t, suites.TestSuites, 1)
	cases := suites.TestSuites[0].TestCases
	require.Len(t, cases, 3)
	assert.Equal(t, "module.staging", cases[0].ClassName)
	assert.Nil(t, cases[0].Failure)
	require.NotNil(t, cases[1].Failure)
	assert.Contains(t, cases[1].Failure.Content, "status_code equals: expected 201, got 422")
	require.NotNil(t, cases[2].Error)
	assert.Equal(t, "TransportError", cases[2].Error.Type)

	suite := suites.TestSuites[0]
	assert.Contains(t, suite.Properties, JUnitProperty{Name: "executor", Value: "ci"})
	assert.Contains(t, suite.Properties, JUnitProperty{Name: "environment", Value: "staging"})
	assert.Contains(t, suite.SystemOut, "[warn] skipping failed case health")
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	for _, format := range []string{"", "console", "json", "junit"} {
		f, err := New(format, &buf, false)
		require.NoError(t, err)
		assert.NotNil(t, f)
	}
	_, err := New("tap", &buf, false)
	assert.Error(t, err)
}
