package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/hitrun/packages/assertions"
	"github.com/abdul-hamid-achik/hitrun/packages/capture"
	"github.com/abdul-hamid-achik/hitrun/packages/http"
	"github.com/abdul-hamid-achik/hitrun/packages/logging"
	"github.com/abdul-hamid-achik/hitrun/packages/model"
	"github.com/abdul-hamid-achik/hitrun/packages/store"
)

const (
	// DefaultTimeout bounds each outbound request. Requests are never retried.
	DefaultTimeout = 30 * time.Second
	// MaxBatchSize is the largest explicit case list a batch accepts
	MaxBatchSize = 100
	// MaxAllCases caps how many cases an "all" execution runs
	MaxAllCases = 1000
	// DefaultExecutor is recorded when the caller names none
	DefaultExecutor = "system"
)

var (
	// ErrTransport marks a case whose request could not be completed or
	// whose JSON response could not be decoded.
	ErrTransport = errors.New("transport failure")
	// ErrInvalidArgument is returned for malformed targets.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Transport dispatches a built request.
type Transport interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Target names what an execution runs. Which id fields are read depends on
// Scope.
type Target struct {
	Scope         model.Scope
	CaseID        int64
	ModuleID      int64
	CaseIDs       []int64
	EnvironmentID int64
	Executor      string
	Name          string
}

type Engine struct {
	store     store.Store
	transport Transport
	timeout   time.Duration
	onFinish  func(*model.Execution)
	now       func() time.Time

	mu   sync.Mutex
	runs map[int64]*Run
	wg   sync.WaitGroup
}

type Option func(*Engine)

// WithTransport replaces the default HTTP client.
func WithTransport(t Transport) Option {
	return func(e *Engine) {
		e.transport = t
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithOnFinish registers a hook called with the final record of every
// execution.
func WithOnFinish(fn func(*model.Execution)) Option {
	return func(e *Engine) {
		e.onFinish = fn
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:   s,
		timeout: DefaultTimeout,
		now:     time.Now,
		runs:    make(map[int64]*Run),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.transport == nil {
		e.transport = http.NewClient(http.WithTimeout(e.timeout))
	}
	return e
}

// Run is the handle of one started execution.
type Run struct {
	executionID int64
	done        chan struct{}
	cancel      context.CancelFunc

	execution *model.Execution
	err       error
}

func (r *Run) ExecutionID() int64 {
	return r.executionID
}

// Done is closed when the execution reaches a terminal status.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Cancel aborts the in-flight request and stops the run before its next
// case. The execution ends failed.
func (r *Run) Cancel() {
	r.cancel()
}

// Wait blocks until the run finishes or ctx is done.
func (r *Run) Wait(ctx context.Context) (*model.Execution, error) {
	select {
	case <-r.done:
		return r.execution, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// plan is a validated target with everything loaded that must exist before
// an execution record is created.
type plan struct {
	target      Target
	environment *model.Environment
	cases       []*model.TestCase
	caseIDs     []int64
	name        string
}

func (p *plan) total() int {
	if p.target.Scope == model.ScopeBatch {
		return len(p.caseIDs)
	}
	return len(p.cases)
}

// Validate checks that the target is well formed and that its environment,
// case or module exist. It creates nothing.
func (e *Engine) Validate(ctx context.Context, target Target) error {
	_, err := e.prepare(ctx, target)
	return err
}

func (e *Engine) prepare(ctx context.Context, target Target) (*plan, error) {
	p := &plan{target: target}

	switch target.Scope {
	case model.ScopeSingle:
		tc, err := e.store.GetTestCase(ctx, target.CaseID)
		if err != nil {
			return nil, err
		}
		p.cases = []*model.TestCase{tc}
		p.name = "Single case: " + tc.DisplayName()
	case model.ScopeModule:
		mod, err := e.store.GetModule(ctx, target.ModuleID)
		if err != nil {
			return nil, err
		}
		moduleID := mod.ID
		if p.cases, err = e.store.ListTestCases(ctx, store.CaseFilter{ModuleID: &moduleID}); err != nil {
			return nil, fmt.Errorf("listing cases of module %d: %w", moduleID, err)
		}
		p.name = "Module: " + mod.Name
	case model.ScopeAll:
		cases, err := e.store.ListTestCases(ctx, store.CaseFilter{Limit: MaxAllCases})
		if err != nil {
			return nil, fmt.Errorf("listing cases: %w", err)
		}
		p.cases = cases
		p.name = "All cases"
	case model.ScopeBatch:
		if len(target.CaseIDs) == 0 || len(target.CaseIDs) > MaxBatchSize {
			return nil, fmt.Errorf("%w: batch needs 1 to %d case ids, got %d", ErrInvalidArgument, MaxBatchSize, len(target.CaseIDs))
		}
		p.caseIDs = append([]int64(nil), target.CaseIDs...)
		p.name = fmt.Sprintf("Batch: %d cases", len(p.caseIDs))
	default:
		return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidArgument, target.Scope)
	}

	environment, err := e.store.GetEnvironment(ctx, target.EnvironmentID)
	if err != nil {
		return nil, err
	}
	p.environment = environment

	if target.Name != "" {
		p.name = target.Name
	}
	return p, nil
}

// Start validates target, creates its execution and runs it in the
// background. Missing cases, modules or environments are reported before
// any execution exists.
func (e *Engine) Start(ctx context.Context, target Target) (*Run, error) {
	p, err := e.prepare(ctx, target)
	if err != nil {
		return nil, err
	}

	executor := target.Executor
	if executor == "" {
		executor = DefaultExecutor
	}

	exec := &model.Execution{
		Name:          p.name,
		Scope:         target.Scope,
		EnvironmentID: p.environment.ID,
		Executor:      executor,
		Status:        model.StatusRunning,
		Progress:      model.Progress{Current: 0, Total: p.total()},
		StartedAt:     e.now(),
	}
	switch target.Scope {
	case model.ScopeSingle:
		caseID := target.CaseID
		exec.CaseID = &caseID
		exec.Progress.Current = 1
	case model.ScopeModule:
		moduleID := target.ModuleID
		exec.ModuleID = &moduleID
	case model.ScopeBatch:
		exec.CaseIDs = p.caseIDs
	}

	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("creating execution: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		executionID: exec.ID,
		done:        make(chan struct{}),
		cancel:      cancel,
	}

	e.mu.Lock()
	e.runs[exec.ID] = run
	e.mu.Unlock()
	e.wg.Add(1)

	logging.Info("runner", "execution %d started: %s (%d cases)", exec.ID, exec.Name, p.total())

	go e.run(runCtx, run, p)

	return run, nil
}

// Execute starts target and waits for it to finish.
func (e *Engine) Execute(ctx context.Context, target Target) (*model.Execution, error) {
	run, err := e.Start(ctx, target)
	if err != nil {
		return nil, err
	}
	<-run.Done()
	return run.execution, run.err
}

func (e *Engine) ExecuteSingle(ctx context.Context, caseID, environmentID int64, executor string) (*model.Execution, error) {
	return e.Execute(ctx, Target{Scope: model.ScopeSingle, CaseID: caseID, EnvironmentID: environmentID, Executor: executor})
}

func (e *Engine) ExecuteModule(ctx context.Context, moduleID, environmentID int64, executor string) (*model.Execution, error) {
	return e.Execute(ctx, Target{Scope: model.ScopeModule, ModuleID: moduleID, EnvironmentID: environmentID, Executor: executor})
}

func (e *Engine) ExecuteAll(ctx context.Context, environmentID int64, executor string) (*model.Execution, error) {
	return e.Execute(ctx, Target{Scope: model.ScopeAll, EnvironmentID: environmentID, Executor: executor})
}

func (e *Engine) ExecuteBatch(ctx context.Context, caseIDs []int64, environmentID int64, executor string) (*model.Execution, error) {
	return e.Execute(ctx, Target{Scope: model.ScopeBatch, CaseIDs: caseIDs, EnvironmentID: environmentID, Executor: executor})
}

// Cancel cancels the running execution with the given id. It reports false
// when no such run is in progress.
func (e *Engine) Cancel(executionID int64) bool {
	e.mu.Lock()
	run, ok := e.runs[executionID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	run.Cancel()
	return true
}

// Running returns the ids of executions still in progress.
func (e *Engine) Running() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]int64, 0, len(e.runs))
	for id := range e.runs {
		ids = append(ids, id)
	}
	return ids
}

// Wait blocks until every started run has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

type tally struct {
	passed, failed int
}

func (e *Engine) run(ctx context.Context, run *Run, p *plan) {
	defer e.wg.Done()
	defer close(run.done)
	defer run.cancel()
	defer func() {
		e.mu.Lock()
		delete(e.runs, run.executionID)
		e.mu.Unlock()
	}()

	// records about a cancelled run must still be written
	bctx := context.WithoutCancel(ctx)
	id := run.executionID
	builder := NewBuilder(e.store)
	total := p.total()

	var (
		t       tally
		loopErr error
		caseErr error
	)

	if total == 0 {
		e.log(bctx, id, model.LevelError, "no test cases to execute")
		loopErr = errors.New("no test cases to execute")
	}

	for i := 0; i < total && loopErr == nil; i++ {
		if err := ctx.Err(); err != nil {
			loopErr = err
			break
		}

		tc, err := e.caseAt(ctx, p, i)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				loopErr = err
				break
			}
			t.failed++
			e.log(bctx, id, model.LevelError, "test case %d not found", p.caseIDs[i])
			e.log(bctx, id, model.LevelWarn, "skipping failed case %d", p.caseIDs[i])
		} else {
			passed, err := e.runOne(ctx, bctx, id, builder, p.environment, tc)
			switch {
			case err != nil:
				t.failed++
				caseErr = err
				if p.target.Scope != model.ScopeSingle {
					e.log(bctx, id, model.LevelWarn, "skipping failed case %s", tc.DisplayName())
				}
			case passed:
				t.passed++
			default:
				t.failed++
			}
		}

		progress := model.Progress{Current: i + 1, Total: total}
		if err := e.store.UpdateExecution(bctx, id, model.ExecutionUpdate{Progress: &progress}); err != nil {
			loopErr = fmt.Errorf("updating progress: %w", err)
			break
		}
	}

	if loopErr == nil && ctx.Err() != nil {
		loopErr = ctx.Err()
	}

	status := model.StatusSuccess
	var message string
	switch {
	case loopErr != nil:
		status = model.StatusFailed
		message = loopErr.Error()
		if errors.Is(loopErr, context.Canceled) {
			message = "execution cancelled"
		}
		if total > 0 {
			e.log(bctx, id, model.LevelError, "execution failed: %s", message)
		}
	case p.target.Scope == model.ScopeSingle && caseErr != nil:
		status = model.StatusFailed
		message = caseErr.Error()
	}

	finished := e.now()
	update := model.ExecutionUpdate{
		Status:     &status,
		Passed:     &t.passed,
		Failed:     &t.failed,
		FinishedAt: &finished,
	}
	if message != "" {
		update.ErrorMessage = &message
	}
	if p.target.Scope == model.ScopeSingle {
		update.Progress = &model.Progress{Current: 1, Total: 1}
	}
	if err := e.store.UpdateExecution(bctx, id, update); err != nil {
		logging.Error("runner", err, "finalizing execution %d", id)
		run.err = fmt.Errorf("finalizing execution %d: %w", id, err)
	}

	exec, err := e.store.GetExecution(bctx, id)
	if err != nil {
		logging.Error("runner", err, "loading execution %d", id)
		if run.err == nil {
			run.err = err
		}
		return
	}
	run.execution = exec

	logging.Info("runner", "execution %d finished: %s (%d passed, %d failed)", id, exec.Status, exec.Passed, exec.Failed)

	if e.onFinish != nil {
		e.onFinish(exec)
	}
}

func (e *Engine) caseAt(ctx context.Context, p *plan, i int) (*model.TestCase, error) {
	if p.target.Scope != model.ScopeBatch {
		return p.cases[i], nil
	}
	return e.store.GetTestCase(ctx, p.caseIDs[i])
}

// runOne executes a single case. It returns whether all assertions passed;
// an error means no response could be evaluated.
func (e *Engine) runOne(ctx, bctx context.Context, executionID int64, builder *Builder, environment *model.Environment, tc *model.TestCase) (bool, error) {
	name := tc.DisplayName()
	e.log(bctx, executionID, model.LevelInfo, "starting case %s", name)

	req, err := builder.Build(ctx, environment, tc)
	if err != nil {
		e.recordFailure(bctx, executionID, tc, nil, err, 0)
		return false, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := e.now()
	resp, err := e.transport.Do(reqCtx, req)
	var facts *http.Facts
	if err == nil {
		facts, err = resp.Facts()
	}
	elapsed := e.now().Sub(start)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrTransport, err)
		e.recordFailure(bctx, executionID, tc, req, err, elapsed)
		return false, err
	}

	outcome := assertions.EvaluateAll(facts, tc.Assertions)

	vars, err := builder.Variables(ctx, tc.ModuleID)
	if err == nil {
		builder.Absorb(capture.ExtractAll(facts, vars))
	}

	status := model.DetailFailed
	if outcome.Passed {
		status = model.DetailSuccess
	}
	detail := &model.ExecutionDetail{
		ExecutionID: executionID,
		TestCaseID:  tc.ID,
		Status:      status,
		Request:     req.Snapshot(),
		Response:    facts.Snapshot(),
		Assertions:  outcome,
		DurationMs:  elapsed.Milliseconds(),
	}
	if err := e.store.AddDetail(bctx, detail); err != nil {
		logging.Error("runner", err, "recording detail of case %s", name)
		return false, fmt.Errorf("recording detail: %w", err)
	}

	e.log(bctx, executionID, model.LevelInfo, "case %s completed", name)
	return outcome.Passed, nil
}

func (e *Engine) recordFailure(ctx context.Context, executionID int64, tc *model.TestCase, req *http.Request, cause error, elapsed time.Duration) {
	var snapshot map[string]any
	if req != nil {
		snapshot = req.Snapshot()
	}
	detail := &model.ExecutionDetail{
		ExecutionID: executionID,
		TestCaseID:  tc.ID,
		Status:      model.DetailFailed,
		Request:     snapshot,
		Response:    map[string]any{"error": cause.Error()},
		DurationMs:  elapsed.Milliseconds(),
	}
	if err := e.store.AddDetail(ctx, detail); err != nil {
		logging.Error("runner", err, "recording failed detail of case %s", tc.DisplayName())
	}
	e.log(ctx, executionID, model.LevelError, "case %s failed: %v", tc.DisplayName(), cause)
}

func (e *Engine) log(ctx context.Context, executionID int64, level model.LogLevel, format string, args ...any) {
	entry := &model.ExecutionLog{
		ExecutionID: executionID,
		Level:       level,
		Message:     fmt.Sprintf(format, args...),
	}
	if err := e.store.AddLog(ctx, entry); err != nil {
		logging.Error("runner", err, "writing execution log for %d", executionID)
	}
}
