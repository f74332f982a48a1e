package model

import (
	"strings"
	"time"
)

type Environment struct {
	ID      int64             `json:"id" yaml:"id"`
	Name    string            `json:"name" yaml:"name"`
	BaseURL string            `json:"base_url" yaml:"base_url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

type Module struct {
	ID          int64       `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Variables   []*Variable `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// Variable is a module-scoped value, optionally refreshed from responses
// through its extractor.
type Variable struct {
	ID        int64      `json:"id,omitempty" yaml:"id,omitempty"`
	ModuleID  int64      `json:"module_id,omitempty" yaml:"module_id,omitempty"`
	Name      string     `json:"name" yaml:"name"`
	Value     string     `json:"value" yaml:"value"`
	Extractor *Extractor `json:"extractor,omitempty" yaml:"extractor,omitempty"`
}

// DisplayValue returns the value in its ${...} delimited form. A value that
// already opens with "${" or already closes with "}" is shown as is. It is
// only an identity convention; substitution always uses Value.
func (v *Variable) DisplayValue() string {
	if strings.HasPrefix(v.Value, "${") || strings.HasSuffix(v.Value, "}") {
		return v.Value
	}
	return "${" + v.Value + "}"
}

type TestCase struct {
	ID          int64             `json:"id" yaml:"id"`
	ModuleID    int64             `json:"module_id" yaml:"module_id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Method      string            `json:"method" yaml:"method"`
	Path        string            `json:"path" yaml:"path"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Params      map[string]any    `json:"params,omitempty" yaml:"params,omitempty"`
	Body        any               `json:"body,omitempty" yaml:"body,omitempty"`
	Assertions  []*Assertion      `json:"assertions,omitempty" yaml:"assertions,omitempty"`
}

// DisplayName is used in execution logs.
func (tc *TestCase) DisplayName() string {
	if tc.Name != "" {
		return tc.Name
	}
	return strings.ToUpper(tc.Method) + " " + tc.Path
}

type Scope string

const (
	ScopeSingle Scope = "single"
	ScopeModule Scope = "module"
	ScopeAll    Scope = "all"
	ScopeBatch  Scope = "batch"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Execution is one run of the engine. Status for module, all and batch
// scopes only says whether the loop completed; Passed and Failed carry the
// per-case tally.
type Execution struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Scope         Scope      `json:"scope"`
	CaseID        *int64     `json:"case_id,omitempty"`
	ModuleID      *int64     `json:"module_id,omitempty"`
	CaseIDs       []int64    `json:"case_ids,omitempty"`
	EnvironmentID int64      `json:"environment_id"`
	Executor      string     `json:"executor"`
	Status        Status     `json:"status"`
	Progress      Progress   `json:"progress"`
	Passed        int        `json:"passed"`
	Failed        int        `json:"failed"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Duration returns the wall time of a finished execution, or zero.
func (e *Execution) Duration() time.Duration {
	if e.FinishedAt == nil {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// ExecutionUpdate carries the mutable parts of an Execution. Nil fields are
// left untouched.
type ExecutionUpdate struct {
	Status       *Status
	Progress     *Progress
	Passed       *int
	Failed       *int
	ErrorMessage *string
	FinishedAt   *time.Time
}

type DetailStatus string

const (
	DetailSuccess DetailStatus = "success"
	DetailFailed  DetailStatus = "failed"
)

type ExecutionDetail struct {
	ID          int64          `json:"id"`
	ExecutionID int64          `json:"execution_id"`
	TestCaseID  int64          `json:"test_case_id"`
	Status      DetailStatus   `json:"status"`
	Request     map[string]any `json:"request,omitempty"`
	Response    map[string]any `json:"response,omitempty"`
	Assertions  *Outcome       `json:"assertions,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
	CreatedAt   time.Time      `json:"created_at"`
}

type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

type ExecutionLog struct {
	ID          int64     `json:"id"`
	ExecutionID int64     `json:"execution_id"`
	Level       LogLevel  `json:"level"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}
