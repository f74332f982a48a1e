package capture

import (
	"encoding/json"
	"testing"

	"github.com/abdul-hamid-achik/hitrun/packages/http"
	"github.com/abdul-hamid-achik/hitrun/packages/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createFacts(body any, headers map[string]string) *http.Facts {
	if headers == nil {
		headers = map[string]string{}
	}
	return &http.Facts{StatusCode: 200, Headers: headers, Body: body, DurationMs: 12}
}

func TestExtract_Body(t *testing.T) {
	facts := createFacts(map[string]any{
		"data": map[string]any{
			"id":     42.0,
			"ratio":  0.25,
			"token":  "abc",
			"active": true,
			"tags":   []any{"a", "b"},
			"owner":  map[string]any{"name": "neo"},
			"empty":  nil,
		},
	}, nil)

	tests := []struct {
		name       string
		expression string
		expected   string
		ok         bool
	}{
		{"string", "$.data.token", "abc", true},
		{"integer number", "$.data.id", "42", true},
		{"fraction", "$.data.ratio", "0.25", true},
		{"boolean", "$.data.active", "true", true},
		{"array as json", "$.data.tags", `["a","b"]`, true},
		{"object as json", "$.data.owner", `{"name":"neo"}`, true},
		{"null is a miss", "$.data.empty", "", false},
		{"missing key", "$.data.nope", "", false},
		{"walk through scalar", "$.data.token.length", "", false},
		{"array index unsupported", "$.data.tags.0", "", false},
		{"missing prefix", "data.token", "", false},
		{"bare dollar", "$", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, ok := Extract(facts, &model.Extractor{Source: model.SourceBody, Expression: tt.expression})
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, value)
		})
	}
}

func TestExtract_BodyNotObject(t *testing.T) {
	value, ok := Extract(createFacts("plain text", nil), &model.Extractor{Source: model.SourceBody, Expression: "$.a"})
	assert.False(t, ok)
	assert.Empty(t, value)

	_, ok = Extract(createFacts([]any{1.0}, nil), &model.Extractor{Source: model.SourceBody, Expression: "$.a"})
	assert.False(t, ok)
}

func TestExtract_Headers(t *testing.T) {
	facts := createFacts(nil, map[string]string{"X-Auth-Token": "secret"})

	value, ok := Extract(facts, &model.Extractor{Source: model.SourceHeaders, Expression: "x-auth-token"})
	assert.True(t, ok)
	assert.Equal(t, "secret", value)

	_, ok = Extract(facts, &model.Extractor{Source: model.SourceHeaders, Expression: "X-Missing"})
	assert.False(t, ok)
}

func TestExtract_SourceAliases(t *testing.T) {
	facts := createFacts(map[string]any{"id": "7"}, map[string]string{"Location": "/x"})

	value, ok := Extract(facts, &model.Extractor{Source: "response_body", Expression: "$.id"})
	assert.True(t, ok)
	assert.Equal(t, "7", value)

	value, ok = Extract(facts, &model.Extractor{Source: "response_headers", Expression: "location"})
	assert.True(t, ok)
	assert.Equal(t, "/x", value)
}

func TestExtract_UnknownSource(t *testing.T) {
	_, ok := Extract(createFacts(map[string]any{"a": "b"}, nil), &model.Extractor{Source: "cookies", Expression: "$.a"})
	assert.False(t, ok)
}

func TestExtract_NilInputs(t *testing.T) {
	_, ok := Extract(nil, &model.Extractor{Source: model.SourceBody, Expression: "$.a"})
	assert.False(t, ok)

	_, ok = Extract(createFacts(nil, nil), nil)
	assert.False(t, ok)
}

func TestExtractAll(t *testing.T) {
	facts := createFacts(map[string]any{"token": "t1", "user": map[string]any{"id": 9.0}}, nil)
	variables := []*model.Variable{
		{Name: "token", Value: "${token}", Extractor: &model.Extractor{Source: model.SourceBody, Expression: "$.token"}},
		{Name: "user_id", Extractor: &model.Extractor{Source: model.SourceBody, Expression: "$.user.id"}},
		{Name: "missing", Extractor: &model.Extractor{Source: model.SourceBody, Expression: "$.nope"}},
		{Name: "static", Value: "fixed"},
	}

	results := ExtractAll(facts, variables)

	assert.Equal(t, map[string]string{"token": "t1", "user_id": "9"}, results)
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in       any
		expected string
		ok       bool
	}{
		{"x", "x", true},
		{1e21, "1000000000000000000000", true},
		{-3.5, "-3.5", true},
		{false, "false", true},
		{[]any{}, "[]", true},
		{json.Number("1234567890123456789"), "1234567890123456789", true},
		{nil, "", false},
	}

	for _, tt := range tests {
		got, ok := Stringify(tt.in)
		assert.Equal(t, tt.ok, ok)
		assert.Equal(t, tt.expected, got)
	}
}

func TestExtract_LargeIntegerFromResponse(t *testing.T) {
	resp := &http.Response{
		StatusCode: 201,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(`{"data":{"id":1234567890123456789,"score":1.5e3}}`),
	}
	facts, err := resp.Facts()
	require.NoError(t, err)

	results := ExtractAll(facts, []*model.Variable{
		{Name: "id", Extractor: &model.Extractor{Source: model.SourceBody, Expression: "$.data.id"}},
		{Name: "score", Extractor: &model.Extractor{Source: model.SourceBody, Expression: "$.data.score"}},
	})
	assert.Equal(t, map[string]string{"id": "1234567890123456789", "score": "1500"}, results)
}
