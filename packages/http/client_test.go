package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_DoGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/test", r.URL.Path)
		assert.Equal(t, []string{"a", "b"}, r.URL.Query()["tag"])
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message": "hello"}`))
	}))
	defer server.Close()

	req := NewRequest("GET", server.URL+"/test").
		SetQueryParam("tag", []any{"a", "b"}).
		SetQueryParam("limit", float64(5))

	resp, err := NewClient().Do(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header("content-type"))
	assert.Contains(t, resp.BodyString(), "hello")
}

func TestClient_DoJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"test","n":1}`, string(body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	req := NewRequest("POST", server.URL).
		SetHeader("Content-Type", "application/json").
		SetJSON(map[string]any{"name": "test", "n": 1})

	resp, err := NewClient().Do(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)
}

func TestClient_DoRawBody(t *testing.T) {
	tests := []struct {
		name        string
		body        any
		contentType string
		expected    string
	}{
		{"string verbatim", "plain text", "", "plain text"},
		{"map form encoded", map[string]any{"a": "1", "b": true}, ContentTypeForm, "a=1&b=true"},
		{"list as JSON text", []any{1.0, "x"}, "", `[1,"x"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				if tt.contentType == ContentTypeForm {
					got, err := url.ParseQuery(string(body))
					require.NoError(t, err)
					want, _ := url.ParseQuery(tt.expected)
					assert.Equal(t, want, got)
				} else {
					assert.Equal(t, tt.expected, string(body))
				}
				if tt.contentType != "" {
					assert.Equal(t, tt.contentType, r.Header.Get("Content-Type"))
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			req := NewRequest("POST", server.URL).SetRaw(tt.body)
			_, err := NewClient().Do(context.Background(), req)
			require.NoError(t, err)
		})
	}
}

func TestClient_RawBodyKeepsCallerContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req := NewRequest("POST", server.URL).
		SetHeader("content-type", "text/plain").
		SetRaw(map[string]any{"a": "1"})
	_, err := NewClient().Do(context.Background(), req)
	require.NoError(t, err)
}

func TestClient_WithTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(WithTimeout(50 * time.Millisecond))
	_, err := client.Do(context.Background(), NewRequest("GET", server.URL))

	assert.Error(t, err)
}

func TestClient_ContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := NewClient().Do(ctx, NewRequest("GET", server.URL))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_WithDefaultHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "override", r.Header.Get("X-Env"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(
		WithDefaultHeader("Authorization", "test-token"),
		WithDefaultHeader("X-Env", "default"),
	)
	req := NewRequest("GET", server.URL).SetHeader("X-Env", "override")
	resp, err := client.Do(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestClient_NoFollowRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer server.Close()

	client := NewClient(WithFollowRedirects(false))
	resp, err := client.Do(context.Background(), NewRequest("GET", server.URL))

	require.NoError(t, err)
	assert.Equal(t, 302, resp.StatusCode)
}

func TestClient_WithRateLimit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(WithRateLimit(20))
	start := time.Now()
	for i := 0; i < 25; i++ {
		_, err := client.Do(context.Background(), NewRequest("GET", server.URL))
		require.NoError(t, err)
	}

	assert.Equal(t, int32(25), hits.Load())
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestClient_MaxBodyBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer server.Close()

	_, err := NewClient(WithMaxBodyBytes(32)).Do(context.Background(), NewRequest("GET", server.URL))
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	resp, err := NewClient(WithMaxBodyBytes(64)).Do(context.Background(), NewRequest("GET", server.URL))
	require.NoError(t, err)
	assert.Len(t, resp.Body, 64)
}

func TestClient_UserAgentAndRepeatedHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Add("X-Trace", "a")
		w.Header().Add("X-Trace", "b")
	}))
	defer server.Close()

	resp, err := NewClient().Do(context.Background(), NewRequest("GET", server.URL))
	require.NoError(t, err)
	assert.Equal(t, "a, b", resp.Header("x-trace"))
}

func TestClient_InvalidURLNotSent(t *testing.T) {
	_, err := NewClient().Do(context.Background(), NewRequest("GET", "/relative/only"))
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
		errMsg  string
	}{
		{"valid http", "http://example.com/path", false, ""},
		{"valid https", "https://example.com", false, ""},
		{"ftp scheme", "ftp://example.com", true, "unsupported URL scheme"},
		{"no scheme", "example.com/path", true, "unsupported URL scheme"},
		{"no host", "http://", true, "must have a host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequest_Snapshot(t *testing.T) {
	req := NewRequest("POST", "http://api.test/users").
		SetHeader("Content-Type", "application/json").
		SetJSON(map[string]any{"name": "neo"})

	snap := req.Snapshot()

	assert.Equal(t, "POST", snap["method"])
	assert.Equal(t, "http://api.test/users", snap["url"])
	assert.Equal(t, map[string]any{"name": "neo"}, snap["json"])
	assert.NotContains(t, snap, "data")

	raw := NewRequest("POST", "http://api.test").SetRaw("x=1").Snapshot()
	assert.Equal(t, "x=1", raw["data"])
}

func TestFormatParam(t *testing.T) {
	assert.Equal(t, "", FormatParam(nil))
	assert.Equal(t, "3", FormatParam(3.0))
	assert.Equal(t, "2.5", FormatParam(2.5))
	assert.Equal(t, "true", FormatParam(true))
	assert.Equal(t, `{"a":1}`, FormatParam(map[string]any{"a": 1}))
}

func TestResponse_IsJSON(t *testing.T) {
	tests := []struct {
		contentType string
		expected    bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"Application/JSON", true},
		{"text/plain", false},
		{"text/json", false},
		{"", false},
	}

	for _, tt := range tests {
		resp := &Response{Headers: map[string]string{"Content-Type": tt.contentType}}
		assert.Equal(t, tt.expected, resp.IsJSON(), "Content-Type: %s", tt.contentType)
	}
}

func TestResponse_Facts(t *testing.T) {
	t.Run("json body decoded", func(t *testing.T) {
		resp := &Response{
			StatusCode: 200,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       []byte(`{"data":{"id":7,"ok":true,"tags":["a"]}}`),
			Duration:   1500 * time.Microsecond,
		}

		facts, err := resp.Facts()

		require.NoError(t, err)
		assert.Equal(t, 200, facts.StatusCode)
		assert.Equal(t, 1.5, facts.DurationMs)
		assert.Equal(t, map[string]any{
			"data": map[string]any{"id": json.Number("7"), "ok": true, "tags": []any{"a"}},
		}, facts.Body)
	})

	t.Run("large integers keep every digit", func(t *testing.T) {
		resp := &Response{
			Headers: map[string]string{"Content-Type": "application/json"},
			Body:    []byte(`{"id":1234567890123456789,"ratio":0.25,"none":null,"items":[]}`),
		}
		facts, err := resp.Facts()
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"id":    json.Number("1234567890123456789"),
			"ratio": json.Number("0.25"),
			"none":  nil,
			"items": []any{},
		}, facts.Body)
	})

	t.Run("text body kept raw", func(t *testing.T) {
		resp := &Response{StatusCode: 204, Body: []byte("done")}
		facts, err := resp.Facts()
		require.NoError(t, err)
		assert.Equal(t, "done", facts.Body)
	})

	t.Run("invalid json is an error", func(t *testing.T) {
		resp := &Response{
			StatusCode: 500,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       []byte("<html>oops</html>"),
		}
		_, err := resp.Facts()
		assert.ErrorIs(t, err, ErrInvalidJSON)
	})

	t.Run("header lookup is case-insensitive", func(t *testing.T) {
		facts, err := (&Response{Headers: map[string]string{"X-Request-Id": "abc"}}).Facts()
		require.NoError(t, err)
		v, ok := facts.Header("x-request-id")
		assert.True(t, ok)
		assert.Equal(t, "abc", v)
	})
}
