package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/hitrun/packages/core/runner"
	"github.com/abdul-hamid-achik/hitrun/packages/model"
)

// Kind is how a task decides when to fire.
type Kind string

const (
	KindOnce      Kind = "once"
	KindRecurring Kind = "recurring"
	KindCron      Kind = "cron"
)

// TaskType is what a task runs.
type TaskType string

const (
	TaskSingle TaskType = "single"
	TaskModule TaskType = "module"
	TaskAll    TaskType = "all"
)

func (t TaskType) valid() bool {
	return t == TaskSingle || t == TaskModule || t == TaskAll
}

// Descriptor is the durable description of a task. It is what a Registry
// persists and what Restore re-registers.
type Descriptor struct {
	TaskID          string     `json:"task_id" yaml:"task_id"`
	Kind            Kind       `json:"kind" yaml:"kind"`
	TaskType        TaskType   `json:"task_type" yaml:"task_type"`
	TargetID        int64      `json:"target_id,omitempty" yaml:"target_id,omitempty"`
	EnvironmentID   int64      `json:"environment_id" yaml:"environment_id"`
	Executor        string     `json:"executor,omitempty" yaml:"executor,omitempty"`
	FireAt          *time.Time `json:"fire_at,omitempty" yaml:"fire_at,omitempty"`
	IntervalMinutes int        `json:"interval_minutes,omitempty" yaml:"interval_minutes,omitempty"`
	Expression      string     `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// Check validates d without consulting the store: the id, kind, task type
// and the kind's own timing field. Elapsed fire times are not checked.
func (d Descriptor) Check() error {
	if d.TaskID == "" {
		return fmt.Errorf("%w: task id is required", ErrSchedule)
	}
	if !d.TaskType.valid() {
		return fmt.Errorf("%w: unknown task type %q", ErrSchedule, d.TaskType)
	}
	if d.TaskType != TaskAll && d.TargetID <= 0 {
		return fmt.Errorf("%w: task %s needs a target id", ErrSchedule, d.TaskID)
	}
	switch d.Kind {
	case KindOnce:
		if d.FireAt == nil {
			return fmt.Errorf("%w: one-shot task without fire time", ErrSchedule)
		}
		if d.TaskType == TaskAll {
			return fmt.Errorf("%w: one-shot tasks run a single case or a module", ErrSchedule)
		}
	case KindRecurring:
		if d.IntervalMinutes < 1 {
			return fmt.Errorf("%w: interval must be at least 1 minute, got %d", ErrSchedule, d.IntervalMinutes)
		}
	case KindCron:
		return ParseCron(d.Expression)
	default:
		return fmt.Errorf("%w: unknown task kind %q", ErrSchedule, d.Kind)
	}
	return nil
}

// Target converts the descriptor into an engine target.
func (d Descriptor) Target() runner.Target {
	t := runner.Target{EnvironmentID: d.EnvironmentID, Executor: d.Executor}
	switch d.TaskType {
	case TaskSingle:
		t.Scope = model.ScopeSingle
		t.CaseID = d.TargetID
	case TaskModule:
		t.Scope = model.ScopeModule
		t.ModuleID = d.TargetID
	case TaskAll:
		t.Scope = model.ScopeAll
	}
	return t
}

// Task is a registered unit of work and its live handle.
type Task struct {
	Descriptor

	cancel context.CancelFunc
	done   chan struct{}

	mu              sync.Mutex
	cancelled       bool
	runs            int
	lastExecutionID int64
	nextRun         time.Time
}

func newTask(d Descriptor) *Task {
	return &Task{Descriptor: d, done: make(chan struct{})}
}

// Done is closed once the task's unit has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *Task) setNextRun(at time.Time) {
	t.mu.Lock()
	t.nextRun = at
	t.mu.Unlock()
}

func (t *Task) recordRun(exec *model.Execution) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs++
	t.nextRun = time.Time{}
	if exec != nil {
		t.lastExecutionID = exec.ID
	}
}

func (t *Task) markCancelled() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
}

// Info is a point-in-time view of a task.
type Info struct {
	TaskID          string     `json:"task_id"`
	Kind            Kind       `json:"kind"`
	TaskType        TaskType   `json:"task_type"`
	TargetID        int64      `json:"target_id,omitempty"`
	EnvironmentID   int64      `json:"environment_id"`
	Status          string     `json:"status"`
	Cancelled       bool       `json:"cancelled"`
	Runs            int        `json:"runs"`
	LastExecutionID int64      `json:"last_execution_id,omitempty"`
	NextRun         *time.Time `json:"next_run,omitempty"`
}

const (
	StatusScheduled = "scheduled"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Info snapshots the task. Status is running until the unit exits.
func (t *Task) Info() Info {
	t.mu.Lock()
	defer t.mu.Unlock()

	info := Info{
		TaskID:          t.TaskID,
		Kind:            t.Kind,
		TaskType:        t.TaskType,
		TargetID:        t.TargetID,
		EnvironmentID:   t.EnvironmentID,
		Status:          StatusRunning,
		Cancelled:       t.cancelled,
		Runs:            t.runs,
		LastExecutionID: t.lastExecutionID,
	}
	if t.finished() {
		info.Status = StatusCompleted
	}
	if !t.nextRun.IsZero() {
		next := t.nextRun
		info.NextRun = &next
	}
	return info
}

// Ack acknowledges a scheduling or cancellation request.
type Ack struct {
	TaskID          string     `json:"task_id"`
	Status          string     `json:"status"`
	Kind            Kind       `json:"kind,omitempty"`
	TaskType        TaskType   `json:"task_type,omitempty"`
	TargetID        int64      `json:"target_id,omitempty"`
	EnvironmentID   int64      `json:"environment_id,omitempty"`
	FireAt          *time.Time `json:"schedule_time,omitempty"`
	IntervalMinutes int        `json:"interval_minutes,omitempty"`
	Expression      string     `json:"expression,omitempty"`
	NextRun         *time.Time `json:"next_run,omitempty"`
}

func scheduledAck(d Descriptor, next time.Time) *Ack {
	ack := &Ack{
		TaskID:          d.TaskID,
		Status:          StatusScheduled,
		Kind:            d.Kind,
		TaskType:        d.TaskType,
		TargetID:        d.TargetID,
		EnvironmentID:   d.EnvironmentID,
		FireAt:          d.FireAt,
		IntervalMinutes: d.IntervalMinutes,
		Expression:      d.Expression,
	}
	if !next.IsZero() {
		ack.NextRun = &next
	}
	return ack
}
