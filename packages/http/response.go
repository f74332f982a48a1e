package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned by Facts when a response claims a JSON content
// type but its body does not parse.
var ErrInvalidJSON = errors.New("invalid JSON response body")

type Response struct {
	StatusCode int
	Status     string
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

// Facts is the decoded view of a response that assertions and extractors
// read from. Body is a JSON tree (map[string]any, []any, json.Number, bool,
// string or nil) when the response is JSON, otherwise the raw text.
type Facts struct {
	StatusCode int
	Headers    map[string]string
	Body       any
	DurationMs float64
}

func (r *Response) BodyString() string {
	return string(r.Body)
}

func (r *Response) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (r *Response) ContentType() string {
	return r.Header("Content-Type")
}

// IsJSON reports whether the content type starts with application/json.
func (r *Response) IsJSON() bool {
	ct := strings.ToLower(strings.TrimSpace(r.ContentType()))
	return strings.HasPrefix(ct, ContentTypeJSON)
}

func (r *Response) DurationMs() float64 {
	return float64(r.Duration.Microseconds()) / 1000
}

// BodyJSON decodes the body into a generic JSON tree. Numbers keep their
// literal text as json.Number so large integer ids survive extraction.
func (r *Response) BodyJSON() (any, error) {
	if !gjson.ValidBytes(r.Body) {
		return nil, ErrInvalidJSON
	}
	return jsonTree(gjson.ParseBytes(r.Body)), nil
}

func jsonTree(res gjson.Result) any {
	switch {
	case res.IsObject():
		obj := map[string]any{}
		res.ForEach(func(k, v gjson.Result) bool {
			obj[k.String()] = jsonTree(v)
			return true
		})
		return obj
	case res.IsArray():
		arr := []any{}
		res.ForEach(func(_, v gjson.Result) bool {
			arr = append(arr, jsonTree(v))
			return true
		})
		return arr
	}
	switch res.Type {
	case gjson.Number:
		return json.Number(res.Raw)
	case gjson.String:
		return res.Str
	case gjson.True:
		return true
	case gjson.False:
		return false
	}
	return nil
}

// Facts decodes the response. JSON bodies that fail to parse are an error.
func (r *Response) Facts() (*Facts, error) {
	facts := &Facts{
		StatusCode: r.StatusCode,
		Headers:    r.Headers,
		DurationMs: r.DurationMs(),
	}
	if facts.Headers == nil {
		facts.Headers = map[string]string{}
	}

	if r.IsJSON() {
		body, err := r.BodyJSON()
		if err != nil {
			return nil, fmt.Errorf("%w (status %d)", err, r.StatusCode)
		}
		facts.Body = body
		return facts, nil
	}

	facts.Body = r.BodyString()
	return facts, nil
}

// Header returns the first header value matching key case-insensitively.
func (f *Facts) Header(key string) (string, bool) {
	for k, v := range f.Headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// Snapshot describes the response as it is recorded on an execution detail.
func (f *Facts) Snapshot() map[string]any {
	headers := make(map[string]any, len(f.Headers))
	for k, v := range f.Headers {
		headers[k] = v
	}
	return map[string]any{
		"status_code": f.StatusCode,
		"headers":     headers,
		"body":        f.Body,
		"duration_ms": f.DurationMs,
	}
}
