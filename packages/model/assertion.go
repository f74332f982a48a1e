package model

import (
	"fmt"
	"strings"
)

type AssertionType string

const (
	AssertStatusCode      AssertionType = "status_code"
	AssertResponseBody    AssertionType = "response_body"
	AssertResponseHeaders AssertionType = "response_headers"
	AssertResponseTime    AssertionType = "response_time"
)

// Known reports whether the evaluator supports this assertion type.
func (t AssertionType) Known() bool {
	switch t {
	case AssertStatusCode, AssertResponseBody, AssertResponseHeaders, AssertResponseTime:
		return true
	}
	return false
}

type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpContains           Operator = "contains"
	OpNotContains        Operator = "not_contains"
	OpGreaterThan        Operator = "greater_than"
	OpLessThan           Operator = "less_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
)

var knownOperators = map[Operator]bool{
	OpEquals:             true,
	OpNotEquals:          true,
	OpContains:           true,
	OpNotContains:        true,
	OpGreaterThan:        true,
	OpLessThan:           true,
	OpGreaterThanOrEqual: true,
	OpLessThanOrEqual:    true,
}

// Assertion is one expectation about a response. Expression applies to
// response_body, HeaderName to response_headers.
type Assertion struct {
	Type       AssertionType `json:"type" yaml:"type"`
	Operator   Operator      `json:"operator,omitempty" yaml:"operator,omitempty"`
	Expected   any           `json:"expected" yaml:"expected"`
	Expression string        `json:"expression,omitempty" yaml:"expression,omitempty"`
	HeaderName string        `json:"header_name,omitempty" yaml:"header_name,omitempty"`
}

// EffectiveOperator returns the operator, defaulting to equals.
func (a *Assertion) EffectiveOperator() Operator {
	if a.Operator == "" {
		return OpEquals
	}
	return a.Operator
}

// Validate checks the type-specific fields.
func (a *Assertion) Validate() error {
	if !a.Type.Known() {
		return fmt.Errorf("unsupported assertion type %q", a.Type)
	}
	if !knownOperators[a.EffectiveOperator()] {
		return fmt.Errorf("unsupported operator %q", a.Operator)
	}
	switch a.Type {
	case AssertResponseBody:
		if !strings.HasPrefix(a.Expression, "$.") {
			return fmt.Errorf("response_body assertion needs an expression starting with $., got %q", a.Expression)
		}
	case AssertResponseHeaders:
		if a.HeaderName == "" {
			return fmt.Errorf("response_headers assertion needs header_name")
		}
	}
	return nil
}

// AssertionResult is the verdict of a single assertion.
type AssertionResult struct {
	Passed   bool          `json:"passed"`
	Type     AssertionType `json:"type"`
	Operator Operator      `json:"operator,omitempty"`
	Expected any           `json:"expected,omitempty"`
	Actual   any           `json:"actual,omitempty"`
	Message  string        `json:"message,omitempty"`
}

// Outcome aggregates the results of all assertions of a case.
type Outcome struct {
	Passed  bool               `json:"passed"`
	Results []*AssertionResult `json:"results"`
}

type ExtractorSource string

const (
	SourceBody    ExtractorSource = "body"
	SourceHeaders ExtractorSource = "headers"
)

// Normalize maps the long source names used by older catalogs.
func (s ExtractorSource) Normalize() ExtractorSource {
	switch s {
	case "response_body":
		return SourceBody
	case "response_headers":
		return SourceHeaders
	}
	return s
}

// Extractor pulls a value out of a response into a variable.
type Extractor struct {
	Source     ExtractorSource `json:"source" yaml:"source"`
	Expression string          `json:"expression" yaml:"expression"`
}

func (e *Extractor) Validate() error {
	switch e.Source.Normalize() {
	case SourceBody:
		if !strings.HasPrefix(e.Expression, "$.") {
			return fmt.Errorf("body extractor expression must start with $., got %q", e.Expression)
		}
	case SourceHeaders:
		if e.Expression == "" {
			return fmt.Errorf("headers extractor needs a header name")
		}
	default:
		return fmt.Errorf("unsupported extractor source %q", e.Source)
	}
	return nil
}
