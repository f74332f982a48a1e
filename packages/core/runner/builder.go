package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/hitrun/packages/core/env"
	"github.com/abdul-hamid-achik/hitrun/packages/http"
	"github.com/abdul-hamid-achik/hitrun/packages/logging"
	"github.com/abdul-hamid-achik/hitrun/packages/model"
)

// VariableLister loads the declared variables of a module.
type VariableLister interface {
	ListVariables(ctx context.Context, moduleID int64) ([]*model.Variable, error)
}

// Builder turns test cases into requests. One Builder lives for one
// execution: module variables are loaded once per module and extracted
// values accumulate across cases.
type Builder struct {
	source     VariableLister
	resolver   *env.Resolver
	moduleVars map[int64][]*model.Variable
}

func NewBuilder(source VariableLister) *Builder {
	resolver := env.NewResolver()
	resolver.SetWarnFunc(func(format string, args ...any) {
		logging.Debug("builder", format, args...)
	})
	return &Builder{
		source:     source,
		resolver:   resolver,
		moduleVars: make(map[int64][]*model.Variable),
	}
}

// Variables returns the declared variables of a module, loading them on
// first use.
func (b *Builder) Variables(ctx context.Context, moduleID int64) ([]*model.Variable, error) {
	if vars, ok := b.moduleVars[moduleID]; ok {
		return vars, nil
	}
	var vars []*model.Variable
	if b.source != nil {
		loaded, err := b.source.ListVariables(ctx, moduleID)
		if err != nil {
			return nil, fmt.Errorf("loading variables of module %d: %w", moduleID, err)
		}
		vars = loaded
	}
	b.moduleVars[moduleID] = vars
	return vars, nil
}

// Absorb merges extracted values; later values win.
func (b *Builder) Absorb(values map[string]string) {
	if len(values) == 0 {
		return
	}
	b.resolver.SetCaptures(values)
}

// Extracted returns a copy of the values absorbed so far.
func (b *Builder) Extracted() map[string]string {
	return b.resolver.Captures()
}

// Build composes the request for tc. Extracted values take precedence over
// the module's declared variables; case headers override environment
// headers.
func (b *Builder) Build(ctx context.Context, environment *model.Environment, tc *model.TestCase) (*http.Request, error) {
	vars, err := b.Variables(ctx, tc.ModuleID)
	if err != nil {
		return nil, err
	}

	declared := make(map[string]string, len(vars))
	for _, v := range vars {
		declared[v.Name] = v.Value
	}
	b.resolver.ReplaceVariables(declared)

	req := http.NewRequest(strings.ToUpper(tc.Method), b.resolver.Resolve(environment.BaseURL+tc.Path))

	for k, v := range mergeHeaders(environment.Headers, tc.Headers) {
		req.SetHeader(k, b.resolver.Resolve(v))
	}

	if len(tc.Params) > 0 {
		if params, ok := b.resolver.ResolveValue(tc.Params).(map[string]any); ok {
			req.Params = params
		}
	}

	if tc.Body != nil {
		body := b.resolver.ResolveValue(tc.Body)
		if ct, ok := req.Header("Content-Type"); ok && ct == http.ContentTypeJSON {
			req.SetJSON(body)
		} else {
			req.SetRaw(body)
		}
	}

	return req, nil
}

// mergeHeaders overlays override on base. Names are compared
// case-insensitively and the override's spelling is kept.
func mergeHeaders(base, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		for existing := range merged {
			if existing != k && strings.EqualFold(existing, k) {
				delete(merged, existing)
			}
		}
		merged[k] = v
	}
	return merged
}
