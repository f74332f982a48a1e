package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/abdul-hamid-achik/hitrun/packages/core/runner"
	"github.com/abdul-hamid-achik/hitrun/packages/logging"
	"github.com/abdul-hamid-achik/hitrun/packages/model"
)

// DefaultExecutor is recorded on executions started by the scheduler.
const DefaultExecutor = "scheduler"

var (
	// ErrSchedule is returned for malformed or already elapsed schedules.
	ErrSchedule = errors.New("invalid schedule")
	// ErrDuplicateTask is returned when a task id is already registered.
	ErrDuplicateTask = errors.New("task already exists")
	// ErrTaskNotFound is returned for unknown task ids.
	ErrTaskNotFound = errors.New("task not found")
)

// Runner is the part of the engine the scheduler drives.
type Runner interface {
	Validate(ctx context.Context, target runner.Target) error
	Execute(ctx context.Context, target runner.Target) (*model.Execution, error)
}

// OnceSpec schedules a single case or a module at FireAt.
type OnceSpec struct {
	TaskID        string
	TaskType      TaskType
	TargetID      int64
	EnvironmentID int64
	FireAt        time.Time
	Executor      string
}

// RecurringSpec schedules a case, a module or every case each
// IntervalMinutes. TargetID is ignored for TaskAll.
type RecurringSpec struct {
	TaskID          string
	TaskType        TaskType
	TargetID        int64
	EnvironmentID   int64
	IntervalMinutes int
	Executor        string
}

// CronSpec schedules a case, a module or every case on a standard cron
// expression ("*/5 * * * *", "@hourly", "@every 10m").
type CronSpec struct {
	TaskID        string
	TaskType      TaskType
	TargetID      int64
	EnvironmentID int64
	Expression    string
	Executor      string
}

// Scheduler runs tasks in background goroutines until they complete, are
// cancelled or the scheduler shuts down.
type Scheduler struct {
	runner   Runner
	registry Registry
	now      func() time.Time
	unit     time.Duration
	onRun    func(taskID string, exec *model.Execution, err error)

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

type Option func(*Scheduler)

// WithRegistry replaces the default MemoryRegistry.
func WithRegistry(r Registry) Option {
	return func(s *Scheduler) {
		s.registry = r
	}
}

// WithClock sets the time source used to validate fire times and compute
// delays.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithIntervalUnit sets the length of one interval unit (a minute by default).
func WithIntervalUnit(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.unit = d
		}
	}
}

// WithOnRun registers a callback invoked after every fired execution.
func WithOnRun(fn func(taskID string, exec *model.Execution, err error)) Option {
	return func(s *Scheduler) {
		s.onRun = fn
	}
}

func New(r Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:   r,
		registry: NewMemoryRegistry(),
		now:      time.Now,
		unit:     time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.base, s.stop = context.WithCancel(context.Background())
	return s
}

func (s *Scheduler) Registry() Registry {
	return s.registry
}

// ScheduleOnce registers a task that runs its target once at spec.FireAt and
// then unregisters itself, whether the run succeeded or not.
func (s *Scheduler) ScheduleOnce(ctx context.Context, spec OnceSpec) (*Ack, error) {
	fireAt := spec.FireAt
	d := Descriptor{
		TaskID:        spec.TaskID,
		Kind:          KindOnce,
		TaskType:      spec.TaskType,
		TargetID:      spec.TargetID,
		EnvironmentID: spec.EnvironmentID,
		Executor:      executorOrDefault(spec.Executor),
		FireAt:        &fireAt,
	}
	if spec.TaskType == TaskAll {
		return nil, fmt.Errorf("%w: one-shot tasks run a single case or a module", ErrSchedule)
	}
	if err := s.validate(ctx, d); err != nil {
		return nil, err
	}
	if !fireAt.After(s.now()) {
		return nil, fmt.Errorf("%w: fire time %s is not in the future", ErrSchedule, fireAt.Format(time.RFC3339))
	}
	return s.register(ctx, d)
}

// ScheduleRecurring registers a task that runs its target every
// spec.IntervalMinutes until cancelled. The first run happens one full
// interval after registration.
func (s *Scheduler) ScheduleRecurring(ctx context.Context, spec RecurringSpec) (*Ack, error) {
	d := Descriptor{
		TaskID:          spec.TaskID,
		Kind:            KindRecurring,
		TaskType:        spec.TaskType,
		TargetID:        spec.TargetID,
		EnvironmentID:   spec.EnvironmentID,
		Executor:        executorOrDefault(spec.Executor),
		IntervalMinutes: spec.IntervalMinutes,
	}
	if spec.IntervalMinutes < 1 {
		return nil, fmt.Errorf("%w: interval must be at least 1 minute, got %d", ErrSchedule, spec.IntervalMinutes)
	}
	if err := s.validate(ctx, d); err != nil {
		return nil, err
	}
	return s.register(ctx, d)
}

// ScheduleCron registers a task that runs its target at every activation of
// spec.Expression until cancelled.
func (s *Scheduler) ScheduleCron(ctx context.Context, spec CronSpec) (*Ack, error) {
	d := Descriptor{
		TaskID:        spec.TaskID,
		Kind:          KindCron,
		TaskType:      spec.TaskType,
		TargetID:      spec.TargetID,
		EnvironmentID: spec.EnvironmentID,
		Executor:      executorOrDefault(spec.Executor),
		Expression:    spec.Expression,
	}
	if _, err := parseCron(spec.Expression); err != nil {
		return nil, err
	}
	if err := s.validate(ctx, d); err != nil {
		return nil, err
	}
	return s.register(ctx, d)
}

// ParseCron reports whether expr is a valid standard cron expression.
func ParseCron(expr string) error {
	_, err := parseCron(expr)
	return err
}

func parseCron(expr string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: cron expression %q: %w", ErrSchedule, expr, err)
	}
	return sched, nil
}

func executorOrDefault(executor string) string {
	if executor == "" {
		return DefaultExecutor
	}
	return executor
}

func (s *Scheduler) validate(ctx context.Context, d Descriptor) error {
	if d.TaskID == "" {
		return fmt.Errorf("%w: task id is required", ErrSchedule)
	}
	if !d.TaskType.valid() {
		return fmt.Errorf("%w: unknown task type %q", ErrSchedule, d.TaskType)
	}
	return s.runner.Validate(ctx, d.Target())
}

// register adds the task and spawns its unit. The descriptor must already be
// validated.
func (s *Scheduler) register(ctx context.Context, d Descriptor) (*Ack, error) {
	t := newTask(d)
	unitCtx, cancel := context.WithCancel(s.base)
	t.cancel = cancel

	if err := s.registry.Add(ctx, t); err != nil {
		cancel()
		return nil, err
	}

	var next time.Time
	switch d.Kind {
	case KindOnce:
		next = *d.FireAt
		s.spawn(t, func() { s.runOnce(unitCtx, t) })
	case KindRecurring:
		next = s.now().Add(time.Duration(d.IntervalMinutes) * s.unit)
		s.spawn(t, func() { s.runRecurring(unitCtx, t) })
	case KindCron:
		sched, err := parseCron(d.Expression)
		if err != nil {
			cancel()
			_ = s.registry.Remove(ctx, t)
			return nil, err
		}
		next = sched.Next(s.now())
		s.spawn(t, func() { s.runCron(unitCtx, t, sched) })
	}
	t.setNextRun(next)

	logging.Info("scheduler", "task %s scheduled (%s %s, next run %s)", d.TaskID, d.Kind, d.TaskType, next.Format(time.RFC3339))
	return scheduledAck(d, next), nil
}

func (s *Scheduler) spawn(t *Task, unit func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(t.done)
		unit()
	}()
}

func (s *Scheduler) runOnce(ctx context.Context, t *Task) {
	defer func() {
		// Cancel owns removal of cancelled tasks.
		if ctx.Err() == nil {
			_ = s.registry.Remove(context.Background(), t)
		}
		t.cancel()
	}()

	timer := time.NewTimer(t.FireAt.Sub(s.now()))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	s.fire(ctx, t)
}

func (s *Scheduler) runRecurring(ctx context.Context, t *Task) {
	interval := time.Duration(t.IntervalMinutes) * s.unit
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.fire(ctx, t)
		if ctx.Err() != nil {
			return
		}
		t.setNextRun(s.now().Add(interval))
	}
}

func (s *Scheduler) runCron(ctx context.Context, t *Task, sched cron.Schedule) {
	for {
		next := sched.Next(s.now())
		t.setNextRun(next)

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.fire(ctx, t)
		if ctx.Err() != nil {
			return
		}
	}
}

// fire runs the task's target once. Failures are logged, never returned.
func (s *Scheduler) fire(ctx context.Context, t *Task) {
	logging.Debug("scheduler", "task %s firing", t.TaskID)

	exec, err := s.runner.Execute(ctx, t.Target())
	t.recordRun(exec)

	switch {
	case err != nil && ctx.Err() != nil:
		logging.Info("scheduler", "task %s cancelled during its run", t.TaskID)
	case err != nil:
		logging.Error("scheduler", err, "task %s run failed", t.TaskID)
	default:
		logging.Info("scheduler", "task %s produced execution %d (%s)", t.TaskID, exec.ID, exec.Status)
	}

	if s.onRun != nil {
		s.onRun(t.TaskID, exec, err)
	}
}

// Cancel stops the task, waits for its unit to exit and unregisters it.
func (s *Scheduler) Cancel(ctx context.Context, taskID string) (*Ack, error) {
	t, err := s.registry.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	t.markCancelled()

	select {
	case <-t.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := s.registry.Remove(ctx, t); err != nil && !errors.Is(err, ErrTaskNotFound) {
		return nil, err
	}

	logging.Info("scheduler", "task %s cancelled", taskID)
	return &Ack{TaskID: taskID, Status: StatusCancelled}, nil
}

// List snapshots every registered task.
func (s *Scheduler) List(ctx context.Context) ([]Info, error) {
	tasks, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(tasks))
	for _, t := range tasks {
		infos = append(infos, t.Info())
	}
	return infos, nil
}

// Restore re-registers the descriptors persisted by the registry. One-shot
// tasks whose fire time has passed and tasks whose target no longer exists
// are dropped with a warning. It returns the number of restored tasks.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	descriptors, err := s.registry.Load(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, d := range descriptors {
		if _, err := s.registry.Get(ctx, d.TaskID); err == nil {
			continue
		}
		if _, err := s.Schedule(ctx, d); err != nil {
			logging.Warn("scheduler", "dropping task %s: %v", d.TaskID, err)
			if perr := s.registry.Purge(ctx, d.TaskID); perr != nil {
				return restored, perr
			}
			continue
		}
		restored++
	}
	return restored, nil
}

// Schedule registers d through the ScheduleOnce, ScheduleRecurring or
// ScheduleCron path its Kind selects.
func (s *Scheduler) Schedule(ctx context.Context, d Descriptor) (*Ack, error) {
	switch d.Kind {
	case KindOnce:
		if d.FireAt == nil {
			return nil, fmt.Errorf("%w: one-shot task without fire time", ErrSchedule)
		}
		return s.ScheduleOnce(ctx, OnceSpec{
			TaskID: d.TaskID, TaskType: d.TaskType, TargetID: d.TargetID,
			EnvironmentID: d.EnvironmentID, FireAt: *d.FireAt, Executor: d.Executor,
		})
	case KindRecurring:
		return s.ScheduleRecurring(ctx, RecurringSpec{
			TaskID: d.TaskID, TaskType: d.TaskType, TargetID: d.TargetID,
			EnvironmentID: d.EnvironmentID, IntervalMinutes: d.IntervalMinutes, Executor: d.Executor,
		})
	case KindCron:
		return s.ScheduleCron(ctx, CronSpec{
			TaskID: d.TaskID, TaskType: d.TaskType, TargetID: d.TargetID,
			EnvironmentID: d.EnvironmentID, Expression: d.Expression, Executor: d.Executor,
		})
	}
	return nil, fmt.Errorf("%w: unknown task kind %q", ErrSchedule, d.Kind)
}

// Shutdown cancels every unit and waits for them to exit. Registered
// descriptors stay in durable registries so Restore can pick them up.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
