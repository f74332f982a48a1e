// Package notify sends notifications about finished hitrun executions.
package notify

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/hitrun/packages/model"
)

// NotifyOn specifies when to send notifications
type NotifyOn string

const (
	// NotifyAlways sends notifications for every run
	NotifyAlways NotifyOn = "always"
	// NotifyFailure sends notifications only when cases fail
	NotifyFailure NotifyOn = "failure"
	// NotifySuccess sends notifications only when every case passes
	NotifySuccess NotifyOn = "success"
	// NotifyRecovery sends notifications on failure and when a run recovers
	NotifyRecovery NotifyOn = "recovery"
)

// ParseNotifyOn validates a policy name. An empty name means failure.
func ParseNotifyOn(s string) (NotifyOn, error) {
	switch NotifyOn(s) {
	case "":
		return NotifyFailure, nil
	case NotifyAlways, NotifyFailure, NotifySuccess, NotifyRecovery:
		return NotifyOn(s), nil
	}
	return "", fmt.Errorf("unknown notify policy %q", s)
}

// RunSummary represents the summary of an execution for notifications
type RunSummary struct {
	ExecutionID   int64         `json:"execution_id"`
	Name          string        `json:"name"`
	Scope         model.Scope   `json:"scope"`
	Status        model.Status  `json:"status"`
	TotalCases    int           `json:"total_cases"`
	PassedCases   int           `json:"passed_cases"`
	FailedCases   int           `json:"failed_cases"`
	Duration      time.Duration `json:"duration"`
	Environment   string        `json:"environment,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	FailedResults []FailedCase  `json:"failed_results,omitempty"`
	IsRecovery    bool          `json:"is_recovery,omitempty"`
}

// FailedCase represents a failed case for notifications
type FailedCase struct {
	CaseID int64    `json:"case_id"`
	Name   string   `json:"name"`
	Errors []string `json:"errors,omitempty"`
}

// Failed reports whether the run should be treated as a failure: either the
// execution itself failed or at least one case did.
func (s *RunSummary) Failed() bool {
	return s.Status == model.StatusFailed || s.FailedCases > 0
}

// NewRunSummary builds a summary from a finished execution and its details.
// names maps test case ids to display names; missing entries fall back to
// "case <id>".
func NewRunSummary(exec *model.Execution, details []*model.ExecutionDetail, names map[int64]string, environment string) *RunSummary {
	s := &RunSummary{
		ExecutionID:  exec.ID,
		Name:         exec.Name,
		Scope:        exec.Scope,
		Status:       exec.Status,
		TotalCases:   exec.Progress.Total,
		PassedCases:  exec.Passed,
		FailedCases:  exec.Failed,
		Duration:     exec.Duration(),
		Environment:  environment,
		ErrorMessage: exec.ErrorMessage,
	}

	for _, d := range details {
		if d.Status != model.DetailFailed {
			continue
		}
		name := names[d.TestCaseID]
		if name == "" {
			name = fmt.Sprintf("case %d", d.TestCaseID)
		}
		s.FailedResults = append(s.FailedResults, FailedCase{
			CaseID: d.TestCaseID,
			Name:   name,
			Errors: detailErrors(d),
		})
	}

	return s
}

func detailErrors(d *model.ExecutionDetail) []string {
	var errs []string
	if msg, ok := d.Response["error"].(string); ok && msg != "" {
		errs = append(errs, msg)
	}
	if d.Assertions == nil {
		return errs
	}
	for _, r := range d.Assertions.Results {
		if r.Passed {
			continue
		}
		if r.Message != "" {
			errs = append(errs, r.Message)
			continue
		}
		errs = append(errs, fmt.Sprintf("%s %s %v, got %v", r.Type, r.Operator, r.Expected, r.Actual))
	}
	return errs
}

// Notifier is the interface for notification services
type Notifier interface {
	// Notify sends a notification about an execution
	Notify(summary *RunSummary) error

	// Name returns the name of the notifier
	Name() string
}

// Manager manages multiple notifiers. It is safe for concurrent use; the
// recovery policy tracks the last outcome per execution name.
type Manager struct {
	mu        sync.Mutex
	notifiers []Notifier
	notifyOn  NotifyOn
	lastState map[string]bool // true if last run was successful
}

// NewManager creates a new notification manager
func NewManager(notifyOn NotifyOn, notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
		notifyOn:  notifyOn,
		lastState: make(map[string]bool),
	}
}

// AddNotifier adds a notifier to the manager
func (m *Manager) AddNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

// Len returns the number of registered notifiers.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notifiers)
}

// Notify sends notifications based on the configured policy
func (m *Manager) Notify(summary *RunSummary) error {
	m.mu.Lock()
	shouldNotify := false
	currentSuccess := !summary.Failed()
	lastSuccess, seen := m.lastState[summary.Name]

	switch m.notifyOn {
	case NotifyAlways:
		shouldNotify = true
	case NotifyFailure:
		shouldNotify = !currentSuccess
	case NotifySuccess:
		shouldNotify = currentSuccess
	case NotifyRecovery:
		if seen && !lastSuccess && currentSuccess {
			shouldNotify = true
			summary.IsRecovery = true
		}
		if !currentSuccess {
			shouldNotify = true
		}
	}

	m.lastState[summary.Name] = currentSuccess
	notifiers := append([]Notifier(nil), m.notifiers...)
	m.mu.Unlock()

	if !shouldNotify {
		return nil
	}

	var errs []error
	for _, n := range notifiers {
		if err := n.Notify(summary); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}

	return errors.Join(errs...)
}
