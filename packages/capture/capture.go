package capture

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/hitrun/packages/http"
	"github.com/abdul-hamid-achik/hitrun/packages/model"
)

const bodyPathPrefix = "$."

type Extractor struct {
	facts *http.Facts
}

func NewExtractor(facts *http.Facts) *Extractor {
	return &Extractor{facts: facts}
}

// Extract returns the stringified value selected by spec. A miss of any
// kind, including a malformed spec, reports false.
func (e *Extractor) Extract(spec *model.Extractor) (value string, ok bool) {
	if e.facts == nil || spec == nil {
		return "", false
	}
	defer func() {
		if r := recover(); r != nil {
			value, ok = "", false
		}
	}()

	raw, found := e.Value(spec.Source, spec.Expression)
	if !found {
		return "", false
	}
	return Stringify(raw)
}

// Value returns the raw selected value without stringifying it.
func (e *Extractor) Value(source model.ExtractorSource, expression string) (any, bool) {
	switch source.Normalize() {
	case model.SourceBody:
		return e.extractFromBody(expression)
	case model.SourceHeaders:
		return e.facts.Header(expression)
	default:
		return nil, false
	}
}

func (e *Extractor) extractFromBody(expression string) (any, bool) {
	if !strings.HasPrefix(expression, bodyPathPrefix) {
		return nil, false
	}
	path := strings.TrimPrefix(expression, bodyPathPrefix)

	current := e.facts.Body
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := obj[key]
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// Stringify renders an extracted value: strings verbatim, integers exactly,
// other numbers in their shortest decimal form, booleans as true/false, objects and arrays as JSON.
// null is not a value.
func Stringify(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case json.Number:
		if _, err := val.Int64(); err == nil {
			return val.String(), true
		}
		f, err := val.Float64()
		if err != nil {
			return val.String(), true
		}
		return strconv.FormatFloat(f, 'f', -1, 64), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
}

// Extract is shorthand for NewExtractor(facts).Extract(spec).
func Extract(facts *http.Facts, spec *model.Extractor) (string, bool) {
	return NewExtractor(facts).Extract(spec)
}

// ExtractAll runs the extractor of every variable that has one and returns
// the hits keyed by variable name.
func ExtractAll(facts *http.Facts, variables []*model.Variable) map[string]string {
	extractor := NewExtractor(facts)
	results := make(map[string]string)

	for _, v := range variables {
		if v == nil || v.Extractor == nil {
			continue
		}
		if value, ok := extractor.Extract(v.Extractor); ok {
			results[v.Name] = value
		}
	}

	return results
}
