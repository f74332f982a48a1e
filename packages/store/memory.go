package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/hitrun/packages/model"
)

// Memory implements Store with in-process maps.
type Memory struct {
	mu           sync.RWMutex
	nextID       int64
	environments map[int64]*model.Environment
	modules      map[int64]*model.Module
	variables    map[int64]*model.Variable
	cases        map[int64]*model.TestCase
	executions   map[int64]*model.Execution
	details      map[int64][]*model.ExecutionDetail
	logs         map[int64][]*model.ExecutionLog
	now          func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		environments: make(map[int64]*model.Environment),
		modules:      make(map[int64]*model.Module),
		variables:    make(map[int64]*model.Variable),
		cases:        make(map[int64]*model.TestCase),
		executions:   make(map[int64]*model.Execution),
		details:      make(map[int64][]*model.ExecutionDetail),
		logs:         make(map[int64][]*model.ExecutionLog),
		now:          time.Now,
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) CreateEnvironment(ctx context.Context, env *model.Environment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	env.ID = m.id()
	cp := *env
	m.environments[env.ID] = &cp
	return nil
}

func (m *Memory) GetEnvironment(ctx context.Context, id int64) (*model.Environment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	env, ok := m.environments[id]
	if !ok {
		return nil, notFound("environment", id)
	}
	cp := *env
	return &cp, nil
}

func (m *Memory) ListEnvironments(ctx context.Context) ([]*model.Environment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Environment, 0, len(m.environments))
	for _, env := range m.environments {
		cp := *env
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateEnvironment(ctx context.Context, env *model.Environment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.environments[env.ID]; !ok {
		return notFound("environment", env.ID)
	}
	cp := *env
	m.environments[env.ID] = &cp
	return nil
}

func (m *Memory) DeleteEnvironment(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.environments[id]; !ok {
		return notFound("environment", id)
	}
	delete(m.environments, id)
	return nil
}

func (m *Memory) CreateModule(ctx context.Context, mod *model.Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod.ID = m.id()
	cp := *mod
	cp.Variables = nil
	m.modules[mod.ID] = &cp
	for _, v := range mod.Variables {
		v.ModuleID = mod.ID
		v.ID = m.id()
		vcp := *v
		m.variables[v.ID] = &vcp
	}
	return nil
}

func (m *Memory) GetModule(ctx context.Context, id int64) (*model.Module, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mod, ok := m.modules[id]
	if !ok {
		return nil, notFound("module", id)
	}
	cp := *mod
	cp.Variables = m.moduleVariables(id)
	return &cp, nil
}

func (m *Memory) ListModules(ctx context.Context) ([]*model.Module, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Module, 0, len(m.modules))
	for _, mod := range m.modules {
		cp := *mod
		cp.Variables = m.moduleVariables(mod.ID)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateModule(ctx context.Context, mod *model.Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.modules[mod.ID]
	if !ok {
		return notFound("module", mod.ID)
	}
	existing.Name = mod.Name
	existing.Description = mod.Description
	return nil
}

// DeleteModule removes the module together with its variables and cases.
func (m *Memory) DeleteModule(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.modules[id]; !ok {
		return notFound("module", id)
	}
	delete(m.modules, id)
	for vid, v := range m.variables {
		if v.ModuleID == id {
			delete(m.variables, vid)
		}
	}
	for cid, tc := range m.cases {
		if tc.ModuleID == id {
			delete(m.cases, cid)
		}
	}
	return nil
}

func (m *Memory) moduleVariables(moduleID int64) []*model.Variable {
	var out []*model.Variable
	for _, v := range m.variables {
		if v.ModuleID == moduleID {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) CreateVariable(ctx context.Context, v *model.Variable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.modules[v.ModuleID]; !ok {
		return notFound("module", v.ModuleID)
	}
	v.ID = m.id()
	cp := *v
	m.variables[v.ID] = &cp
	return nil
}

func (m *Memory) ListVariables(ctx context.Context, moduleID int64) ([]*model.Variable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.moduleVariables(moduleID), nil
}

func (m *Memory) DeleteVariable(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.variables[id]; !ok {
		return notFound("variable", id)
	}
	delete(m.variables, id)
	return nil
}

func (m *Memory) CreateTestCase(ctx context.Context, tc *model.TestCase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.modules[tc.ModuleID]; !ok {
		return notFound("module", tc.ModuleID)
	}
	tc.ID = m.id()
	cp := *tc
	m.cases[tc.ID] = &cp
	return nil
}

func (m *Memory) GetTestCase(ctx context.Context, id int64) (*model.TestCase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tc, ok := m.cases[id]
	if !ok {
		return nil, notFound("test case", id)
	}
	cp := *tc
	return &cp, nil
}

func (m *Memory) ListTestCases(ctx context.Context, filter CaseFilter) ([]*model.TestCase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.TestCase, 0)
	for _, tc := range m.cases {
		if filter.ModuleID != nil && tc.ModuleID != *filter.ModuleID {
			continue
		}
		cp := *tc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) UpdateTestCase(ctx context.Context, tc *model.TestCase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cases[tc.ID]; !ok {
		return notFound("test case", tc.ID)
	}
	cp := *tc
	m.cases[tc.ID] = &cp
	return nil
}

func (m *Memory) DeleteTestCase(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cases[id]; !ok {
		return notFound("test case", id)
	}
	delete(m.cases, id)
	return nil
}

func (m *Memory) CreateExecution(ctx context.Context, exec *model.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	exec.ID = m.id()
	if exec.Status == "" {
		exec.Status = model.StatusPending
	}
	if exec.StartedAt.IsZero() {
		exec.StartedAt = now
	}
	exec.CreatedAt = now
	exec.UpdatedAt = now
	cp := *exec
	m.executions[exec.ID] = &cp
	return nil
}

func (m *Memory) GetExecution(ctx context.Context, id int64) (*model.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exec, ok := m.executions[id]
	if !ok {
		return nil, notFound("execution", id)
	}
	cp := *exec
	return &cp, nil
}

// ListExecutions returns the newest executions first.
func (m *Memory) ListExecutions(ctx context.Context, limit int) ([]*model.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Execution, 0, len(m.executions))
	for _, exec := range m.executions {
		cp := *exec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) UpdateExecution(ctx context.Context, id int64, update model.ExecutionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.executions[id]
	if !ok {
		return notFound("execution", id)
	}
	if update.Status != nil {
		exec.Status = *update.Status
	}
	if update.Progress != nil {
		exec.Progress = *update.Progress
	}
	if update.Passed != nil {
		exec.Passed = *update.Passed
	}
	if update.Failed != nil {
		exec.Failed = *update.Failed
	}
	if update.ErrorMessage != nil {
		exec.ErrorMessage = *update.ErrorMessage
	}
	if update.FinishedAt != nil {
		t := *update.FinishedAt
		exec.FinishedAt = &t
	}
	exec.UpdatedAt = m.now()
	return nil
}

func (m *Memory) AddDetail(ctx context.Context, detail *model.ExecutionDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.executions[detail.ExecutionID]; !ok {
		return notFound("execution", detail.ExecutionID)
	}
	detail.ID = m.id()
	detail.CreatedAt = m.now()
	cp := *detail
	m.details[detail.ExecutionID] = append(m.details[detail.ExecutionID], &cp)
	return nil
}

func (m *Memory) ListDetails(ctx context.Context, executionID int64) ([]*model.ExecutionDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.details[executionID]
	out := make([]*model.ExecutionDetail, 0, len(src))
	for _, d := range src {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) AddLog(ctx context.Context, entry *model.ExecutionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.executions[entry.ExecutionID]; !ok {
		return notFound("execution", entry.ExecutionID)
	}
	entry.ID = m.id()
	entry.CreatedAt = m.now()
	cp := *entry
	m.logs[entry.ExecutionID] = append(m.logs[entry.ExecutionID], &cp)
	return nil
}

func (m *Memory) ListLogs(ctx context.Context, executionID int64) ([]*model.ExecutionLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.logs[executionID]
	out := make([]*model.ExecutionLog, 0, len(src))
	for _, l := range src {
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}
