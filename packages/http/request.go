package http

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// BodyKind selects how Request.Body is put on the wire.
type BodyKind int

const (
	BodyNone BodyKind = iota
	// BodyJSON encodes Body as a JSON document.
	BodyJSON
	// BodyRaw sends strings verbatim, form-encodes maps and JSON-encodes
	// anything else.
	BodyRaw
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

type Request struct {
	Method   string
	URL      string
	Headers  map[string]string
	Params   map[string]any
	Body     any
	BodyKind BodyKind
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method:  method,
		URL:     requestURL,
		Headers: make(map[string]string),
		Params:  make(map[string]any),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

func (r *Request) SetJSON(body any) *Request {
	r.Body = body
	r.BodyKind = BodyJSON
	return r
}

func (r *Request) SetRaw(body any) *Request {
	r.Body = body
	r.BodyKind = BodyRaw
	return r
}

func (r *Request) SetQueryParam(key string, value any) *Request {
	r.Params[key] = value
	return r
}

// Header returns the value of the first header whose name matches key
// case-insensitively.
func (r *Request) Header(key string) (string, bool) {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// BuildURL appends Params to URL. List values become repeated keys.
func (r *Request) BuildURL() (string, error) {
	if len(r.Params) == 0 {
		return r.URL, nil
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %v", err)
	}

	q := u.Query()
	for k, v := range r.Params {
		switch list := v.(type) {
		case []any:
			for _, item := range list {
				q.Add(k, FormatParam(item))
			}
		case []string:
			for _, item := range list {
				q.Add(k, item)
			}
		default:
			q.Set(k, FormatParam(v))
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// EncodeBody returns the wire payload and the content type implied by it.
// A nil payload means no body.
func (r *Request) EncodeBody() ([]byte, string, error) {
	if r.Body == nil || r.BodyKind == BodyNone {
		return nil, "", nil
	}

	if r.BodyKind == BodyJSON {
		data, err := json.Marshal(r.Body)
		if err != nil {
			return nil, "", fmt.Errorf("encoding JSON body: %w", err)
		}
		return data, ContentTypeJSON, nil
	}

	switch body := r.Body.(type) {
	case string:
		return []byte(body), "", nil
	case []byte:
		return body, "", nil
	case map[string]any:
		return []byte(formValues(body).Encode()), ContentTypeForm, nil
	case map[string]string:
		values := url.Values{}
		for k, v := range body {
			values.Set(k, v)
		}
		return []byte(values.Encode()), ContentTypeForm, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("encoding raw body: %w", err)
		}
		return data, "", nil
	}
}

func formValues(m map[string]any) url.Values {
	values := url.Values{}
	for k, v := range m {
		if list, ok := v.([]any); ok {
			for _, item := range list {
				values.Add(k, FormatParam(item))
			}
			continue
		}
		values.Set(k, FormatParam(v))
	}
	return values
}

// FormatParam renders a decoded value as a query or form value.
func FormatParam(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Snapshot describes the request as it is recorded on an execution detail.
func (r *Request) Snapshot() map[string]any {
	headers := make(map[string]any, len(r.Headers))
	keys := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		headers[k] = r.Headers[k]
	}

	snap := map[string]any{
		"method":  r.Method,
		"url":     r.URL,
		"headers": headers,
		"params":  r.Params,
	}
	switch r.BodyKind {
	case BodyJSON:
		snap["json"] = r.Body
	case BodyRaw:
		snap["data"] = r.Body
	}
	return snap
}
