package assertions

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/hitrun/packages/capture"
	"github.com/abdul-hamid-achik/hitrun/packages/http"
	"github.com/abdul-hamid-achik/hitrun/packages/model"
)

// check reports whether actual satisfies the operator against expected, and
// explains a failure.
type check func(actual, expected any) (bool, string)

var checks = map[model.Operator]check{
	model.OpEquals:             looseEquals,
	model.OpNotEquals:          negate(looseEquals, "expected not to equal %v"),
	model.OpContains:           containsText,
	model.OpNotContains:        negate(containsText, "expected not to contain %v"),
	model.OpGreaterThan:        numeric(">", func(a, b float64) bool { return a > b }),
	model.OpGreaterThanOrEqual: numeric(">=", func(a, b float64) bool { return a >= b }),
	model.OpLessThan:           numeric("<", func(a, b float64) bool { return a < b }),
	model.OpLessThanOrEqual:    numeric("<=", func(a, b float64) bool { return a <= b }),
}

// Evaluator checks assertions against the facts of one response.
type Evaluator struct {
	facts     *http.Facts
	extractor *capture.Extractor
}

func NewEvaluator(facts *http.Facts) *Evaluator {
	return &Evaluator{
		facts:     facts,
		extractor: capture.NewExtractor(facts),
	}
}

// Evaluate never panics; a failure inside a check is reported as a failed
// result.
func (e *Evaluator) Evaluate(a *model.Assertion) (result *model.AssertionResult) {
	op := a.EffectiveOperator()
	result = &model.AssertionResult{Type: a.Type, Operator: op, Expected: a.Expected}
	defer func() {
		if r := recover(); r != nil {
			result.Passed = false
			result.Message = fmt.Sprintf("assertion check failed: %v", r)
		}
	}()

	actual, err := e.actual(a)
	if err != nil {
		result.Message = err.Error()
		return result
	}
	result.Actual = actual

	fn, ok := checks[op]
	if !ok {
		result.Message = fmt.Sprintf("unknown operator: %s", op)
		return result
	}
	result.Passed, result.Message = fn(actual, a.Expected)
	return result
}

// actual resolves the observed value an assertion targets. A missing body
// path or header yields nil, which only passes against a nil expectation.
func (e *Evaluator) actual(a *model.Assertion) (any, error) {
	switch a.Type {
	case model.AssertStatusCode:
		return e.facts.StatusCode, nil
	case model.AssertResponseTime:
		return e.facts.DurationMs, nil
	case model.AssertResponseHeaders:
		if v, ok := e.facts.Header(a.HeaderName); ok {
			return v, nil
		}
		return nil, nil
	case model.AssertResponseBody:
		if a.Expression == "" {
			return nil, nil
		}
		v, ok := e.extractor.Extract(&model.Extractor{Source: model.SourceBody, Expression: a.Expression})
		if !ok {
			return nil, nil
		}
		return v, nil
	}
	return nil, fmt.Errorf("unsupported assertion type: %s", a.Type)
}

func negate(fn check, format string) check {
	return func(actual, expected any) (bool, string) {
		if ok, _ := fn(actual, expected); ok {
			return false, fmt.Sprintf(format, expected)
		}
		return true, ""
	}
}

// looseEquals matches deeply equal values, numerically equal values and
// values with the same printed form, so "200" equals 200.
func looseEquals(actual, expected any) (bool, string) {
	if reflect.DeepEqual(actual, expected) {
		return true, ""
	}
	if actual != nil && expected != nil {
		if a, aok := integerText(actual); aok {
			if b, bok := integerText(expected); bok {
				if a == b {
					return true, ""
				}
				return false, fmt.Sprintf("expected %v, got %v", expected, actual)
			}
		}
		a, aok := toFloat64(actual)
		b, bok := toFloat64(expected)
		if (aok && bok && a == b) || fmt.Sprint(actual) == fmt.Sprint(expected) {
			return true, ""
		}
	}
	return false, fmt.Sprintf("expected %v, got %v", expected, actual)
}

func containsText(actual, expected any) (bool, string) {
	if strings.Contains(fmt.Sprint(actual), fmt.Sprint(expected)) {
		return true, ""
	}
	return false, fmt.Sprintf("expected '%v' to contain '%v'", actual, expected)
}

// numeric builds an ordering check. Either side failing to convert to a
// number is a failure, never an error.
func numeric(symbol string, cmp func(a, b float64) bool) check {
	return func(actual, expected any) (bool, string) {
		a, aok := toFloat64(actual)
		b, bok := toFloat64(expected)
		if !aok || !bok {
			return false, fmt.Sprintf("cannot compare non-numeric values: %v %s %v", actual, symbol, expected)
		}
		if cmp(a, b) {
			return true, ""
		}
		return false, fmt.Sprintf("expected %v %s %v", actual, symbol, expected)
	}
}

// integerText returns the decimal form of integer values so large ids
// compare exactly instead of through float64.
func integerText(v any) (string, bool) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), true
	case int32:
		return strconv.FormatInt(int64(n), 10), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case json.Number:
		return integerText(n.String())
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return strconv.FormatInt(i, 10), true
		}
	}
	return "", false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// EvaluateAll checks every assertion independently. The outcome passes only
// when all results pass; an empty list passes.
func EvaluateAll(facts *http.Facts, assertions []*model.Assertion) *model.Outcome {
	e := NewEvaluator(facts)
	outcome := &model.Outcome{Passed: true, Results: make([]*model.AssertionResult, 0, len(assertions))}
	for _, a := range assertions {
		if a == nil {
			continue
		}
		r := e.Evaluate(a)
		outcome.Results = append(outcome.Results, r)
		outcome.Passed = outcome.Passed && r.Passed
	}
	return outcome
}
