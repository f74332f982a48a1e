package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/hitrun/packages/model"
)

// ErrNotFound is wrapped by every lookup that finds no record.
var ErrNotFound = errors.New("not found")

// CaseFilter narrows ListTestCases. Results are ordered by id.
type CaseFilter struct {
	ModuleID *int64
	Limit    int
}

// Store is the typed record store. Create methods assign ID and timestamps
// on the record passed in.
type Store interface {
	CreateEnvironment(ctx context.Context, env *model.Environment) error
	GetEnvironment(ctx context.Context, id int64) (*model.Environment, error)
	ListEnvironments(ctx context.Context) ([]*model.Environment, error)
	UpdateEnvironment(ctx context.Context, env *model.Environment) error
	DeleteEnvironment(ctx context.Context, id int64) error

	CreateModule(ctx context.Context, mod *model.Module) error
	GetModule(ctx context.Context, id int64) (*model.Module, error)
	ListModules(ctx context.Context) ([]*model.Module, error)
	UpdateModule(ctx context.Context, mod *model.Module) error
	DeleteModule(ctx context.Context, id int64) error

	CreateVariable(ctx context.Context, v *model.Variable) error
	ListVariables(ctx context.Context, moduleID int64) ([]*model.Variable, error)
	DeleteVariable(ctx context.Context, id int64) error

	CreateTestCase(ctx context.Context, tc *model.TestCase) error
	GetTestCase(ctx context.Context, id int64) (*model.TestCase, error)
	ListTestCases(ctx context.Context, filter CaseFilter) ([]*model.TestCase, error)
	UpdateTestCase(ctx context.Context, tc *model.TestCase) error
	DeleteTestCase(ctx context.Context, id int64) error

	CreateExecution(ctx context.Context, exec *model.Execution) error
	GetExecution(ctx context.Context, id int64) (*model.Execution, error)
	ListExecutions(ctx context.Context, limit int) ([]*model.Execution, error)
	UpdateExecution(ctx context.Context, id int64, update model.ExecutionUpdate) error

	AddDetail(ctx context.Context, detail *model.ExecutionDetail) error
	ListDetails(ctx context.Context, executionID int64) ([]*model.ExecutionDetail, error)

	AddLog(ctx context.Context, entry *model.ExecutionLog) error
	ListLogs(ctx context.Context, executionID int64) ([]*model.ExecutionLog, error)

	Close() error
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
}
