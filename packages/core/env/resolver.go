package env

import (
	"maps"
	"regexp"
	"sync"
)

var variablePattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// WarnFunc receives printf-style warnings.
type WarnFunc func(format string, args ...any)

// ResolveString replaces every ${name} in input with vars[name]. Unknown
// names are left as-is.
func ResolveString(input string, vars map[string]string) string {
	if len(vars) == 0 {
		return input
	}
	return variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[2 : len(match)-1]
		if val, ok := vars[name]; ok {
			return val
		}
		return match
	})
}

// ResolveValue returns a structurally identical copy of v with every string
// leaf resolved through ResolveString.
func ResolveValue(v any, vars map[string]string) any {
	switch val := v.(type) {
	case string:
		return ResolveString(val, vars)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = ResolveValue(item, vars)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, item := range val {
			out[k] = ResolveString(item, vars)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = ResolveValue(item, vars)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = ResolveString(item, vars)
		}
		return out
	default:
		return v
	}
}

// Markers returns the names of all ${...} markers in input, in order.
func Markers(input string) []string {
	matches := variablePattern.FindAllStringSubmatch(input, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// Resolver holds the variables visible to one execution: declared variables
// plus values captured from earlier responses. Captures win on collision.
type Resolver struct {
	mu        sync.RWMutex
	variables map[string]string
	captures  map[string]string
	warn      WarnFunc
}

func NewResolver() *Resolver {
	return &Resolver{
		variables: map[string]string{},
		captures:  map[string]string{},
	}
}

// SetWarnFunc installs fn to be told about markers left unresolved.
func (r *Resolver) SetWarnFunc(fn WarnFunc) {
	r.mu.Lock()
	r.warn = fn
	r.mu.Unlock()
}

// ReplaceVariables swaps the declared variable set. Captures are kept.
func (r *Resolver) ReplaceVariables(vars map[string]string) {
	r.mu.Lock()
	r.variables = maps.Clone(vars)
	if r.variables == nil {
		r.variables = map[string]string{}
	}
	r.mu.Unlock()
}

func (r *Resolver) SetVariable(name, value string) {
	r.mu.Lock()
	r.variables[name] = value
	r.mu.Unlock()
}

// SetCaptures merges captured values, later keys overwriting earlier ones.
func (r *Resolver) SetCaptures(values map[string]string) {
	r.mu.Lock()
	maps.Copy(r.captures, values)
	r.mu.Unlock()
}

// Captures returns a copy of the captured values.
func (r *Resolver) Captures() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.captures)
}

// Effective returns the merged variable set used for substitution.
func (r *Resolver) Effective() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.variables)+len(r.captures))
	maps.Copy(out, r.variables)
	maps.Copy(out, r.captures)
	return out
}

// Resolve substitutes input and reports each marker still unresolved.
func (r *Resolver) Resolve(input string) string {
	vars := r.Effective()
	out := ResolveString(input, vars)

	r.mu.RLock()
	warn := r.warn
	r.mu.RUnlock()
	if warn == nil {
		return out
	}
	for _, name := range Markers(out) {
		if _, ok := vars[name]; !ok {
			warn("unresolved variable: %s", name)
		}
	}
	return out
}

func (r *Resolver) ResolveValue(v any) any {
	return ResolveValue(v, r.Effective())
}
