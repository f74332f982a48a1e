package notify

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitrun/packages/model"
)

type recordingNotifier struct {
	mu        sync.Mutex
	summaries []*RunSummary
	err       error
}

func (r *recordingNotifier) Notify(s *RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, s)
	return r.err
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.summaries)
}

func finishedExecution(status model.Status, passed, failed int) *model.Execution {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)
	return &model.Execution{
		ID:         7,
		Name:       "Module: users",
		Scope:      model.ScopeModule,
		Status:     status,
		Progress:   model.Progress{Current: passed + failed, Total: passed + failed},
		Passed:     passed,
		Failed:     failed,
		StartedAt:  started,
		FinishedAt: &finished,
	}
}

func TestParseNotifyOn(t *testing.T) {
	p, err := ParseNotifyOn("")
	require.NoError(t, err)
	assert.Equal(t, NotifyFailure, p)

	p, err = ParseNotifyOn("recovery")
	require.NoError(t, err)
	assert.Equal(t, NotifyRecovery, p)

	_, err = ParseNotifyOn("sometimes")
	assert.Error(t, err)
}

func TestNewRunSummary(t *testing.T) {
	exec := finishedExecution(model.StatusSuccess, 1, 2)
	details := []*model.ExecutionDetail{
		{TestCaseID: 1, Status: model.DetailSuccess},
		{TestCaseID: 2, Status: model.DetailFailed, Assertions: &model.Outcome{Results: []*model.AssertionResult{
			{Passed: true, Type: model.AssertStatusCode},
			{Passed: false, Type: model.AssertStatusCode, Operator: model.OpEquals, Expected: 200, Actual: 500},
			{Passed: false, Type: "cookie", Message: "unsupported assertion type: cookie"},
		}}},
		{TestCaseID: 3, Status: model.DetailFailed, Response: map[string]any{"error": "connection refused"}},
	}

	s := NewRunSummary(exec, details, map[int64]string{2: "get user"}, "staging")

	assert.Equal(t, int64(7), s.ExecutionID)
	assert.Equal(t, 3, s.TotalCases)
	assert.Equal(t, 1, s.PassedCases)
	assert.Equal(t, 2, s.FailedCases)
	assert.Equal(t, 1500*time.Millisecond, s.Duration)
	assert.Equal(t, "staging", s.Environment)
	assert.True(t, s.Failed())

	require.Len(t, s.FailedResults, 2)
	assert.Equal(t, "get user", s.FailedResults[0].Name)
	assert.Equal(t, []string{"status_code equals 200, got 500", "unsupported assertion type: cookie"}, s.FailedResults[0].Errors)
	assert.Equal(t, "case 3", s.FailedResults[1].Name)
	assert.Equal(t, []string{"connection refused"}, s.FailedResults[1].Errors)
}

func TestManager_Policies(t *testing.T) {
	pass := func() *RunSummary { return NewRunSummary(finishedExecution(model.StatusSuccess, 2, 0), nil, nil, "") }
	fail := func() *RunSummary { return NewRunSummary(finishedExecution(model.StatusSuccess, 1, 1), nil, nil, "") }

	tests := []struct {
		name     string
		policy   NotifyOn
		runs     []*RunSummary
		expected int
	}{
		{"always", NotifyAlways, []*RunSummary{pass(), fail()}, 2},
		{"failure", NotifyFailure, []*RunSummary{pass(), fail(), pass()}, 1},
		{"success", NotifySuccess, []*RunSummary{pass(), fail(), pass()}, 2},
		{"recovery", NotifyRecovery, []*RunSummary{pass(), fail(), pass(), pass()}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingNotifier{}
			m := NewManager(tt.policy, rec)
			for _, s := range tt.runs {
				require.NoError(t, m.Notify(s))
			}
			assert.Equal(t, tt.expected, rec.count())
		})
	}
}

func TestManager_RecoveryFlag(t *testing.T) {
	rec := &recordingNotifier{}
	m := NewManager(NotifyRecovery, rec)

	require.NoError(t, m.Notify(NewRunSummary(finishedExecution(model.StatusFailed, 0, 0), nil, nil, "")))
	recovered := NewRunSummary(finishedExecution(model.StatusSuccess, 1, 0), nil, nil, "")
	require.NoError(t, m.Notify(recovered))

	assert.True(t, recovered.IsRecovery)
	assert.Equal(t, 2, rec.count())
}

func TestManager_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: boom}
	m := NewManager(NotifyAlways, bad)
	m.AddNotifier(ok)

	err := m.Notify(NewRunSummary(finishedExecution(model.StatusSuccess, 1, 0), nil, nil, ""))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, ok.count(), "later notifiers still run")
	assert.Equal(t, 2, m.Len())
}

func TestSlackNotifier(t *testing.T) {
	var got slackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, WithSlackChannel("#qa"), WithSlackHTTPClient(srv.Client()))
	assert.Equal(t, "slack", n.Name())

	details := []*model.ExecutionDetail{{TestCaseID: 4, Status: model.DetailFailed, Response: map[string]any{"error": "timeout"}}}
	require.NoError(t, n.Notify(NewRunSummary(finishedExecution(model.StatusSuccess, 0, 1), details, map[int64]string{4: "login"}, "")))

	assert.Equal(t, "#qa", got.Channel)
	assert.Equal(t, "hitrun", got.Username)
	assert.Equal(t, ":x: Module: users: 1 case(s) failed", got.Text)
	require.GreaterOrEqual(t, len(got.Blocks), 3)
	assert.Equal(t, "header", got.Blocks[0].Type)
	assert.Equal(t, got.Text, got.Blocks[0].Text.Text)
	require.NotEmpty(t, got.Blocks[1].Fields)
	assert.Equal(t, "*Execution*\n#7 (module)", got.Blocks[1].Fields[0].Text)

	failures := got.Blocks[2].Text.Text
	assert.Contains(t, failures, "`login` (id 4)")
	assert.Contains(t, failures, "timeout")
	assert.Equal(t, "context", got.Blocks[len(got.Blocks)-1].Type)
}

func TestSlackNotifier_TruncatesFailures(t *testing.T) {
	var got slackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
	}))
	defer srv.Close()

	var details []*model.ExecutionDetail
	for i := int64(1); i <= 13; i++ {
		details = append(details, &model.ExecutionDetail{TestCaseID: i, Status: model.DetailFailed})
	}
	n := NewSlackNotifier(srv.URL)
	require.NoError(t, n.Notify(NewRunSummary(finishedExecution(model.StatusSuccess, 0, 13), details, nil, "")))

	var text string
	for _, b := range got.Blocks {
		if b.Text != nil {
			text += b.Text.Text
		}
	}
	assert.Contains(t, text, "`case 10` (id 10)")
	assert.NotContains(t, text, "`case 11`")
	assert.Contains(t, text, "...and 3 more")
}

func TestHeadline(t *testing.T) {
	tests := []struct {
		name    string
		summary *RunSummary
		title   string
		verdict verdict
	}{
		{"passed", &RunSummary{Name: "all", Status: model.StatusSuccess}, "all passed", verdictPassed},
		{"recovered", &RunSummary{Name: "all", Status: model.StatusSuccess, IsRecovery: true}, "all recovered", verdictRecovered},
		{"case failures", &RunSummary{Name: "all", Status: model.StatusSuccess, FailedCases: 2}, "all: 2 case(s) failed", verdictFailed},
		{"execution failed", &RunSummary{Name: "all", Status: model.StatusFailed}, "all failed", verdictFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, v := headline(tt.summary)
			assert.Equal(t, tt.title, title)
			assert.Equal(t, tt.verdict, v)
		})
	}
}

func TestSlackNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL)
	err := n.Notify(NewRunSummary(finishedExecution(model.StatusSuccess, 1, 0), nil, nil, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_payload")
}

func TestTeamsNotifier(t *testing.T) {
	var got teamsMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewTeamsNotifier(srv.URL, WithTeamsHTTPClient(srv.Client()))
	assert.Equal(t, "teams", n.Name())

	exec := finishedExecution(model.StatusFailed, 0, 0)
	exec.ErrorMessage = "no test cases to execute"
	require.NoError(t, n.Notify(NewRunSummary(exec, nil, nil, "prod")))

	assert.Equal(t, "message", got.Type)
	require.Len(t, got.Attachments, 1)
	blocks := got.Attachments[0].Content.Body
	require.NotEmpty(t, blocks)
	assert.Equal(t, "Module: users failed", blocks[0].Text)
	assert.Equal(t, "attention", blocks[0].Color)

	var texts []string
	for _, b := range blocks {
		texts = append(texts, b.Text)
	}
	assert.Contains(t, texts, "**Environment:** prod")
	assert.Contains(t, texts, "**Error:** no test cases to execute")
}
