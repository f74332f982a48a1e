package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/abdul-hamid-achik/hitrun/packages/logging"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRedirects is the maximum number of redirects to follow
	DefaultMaxRedirects = 10
	// DefaultMaxBodyBytes caps how much of a response body is read
	DefaultMaxBodyBytes = 10 << 20
	// DefaultUserAgent is sent when neither the case nor the client sets one
	DefaultUserAgent = "hitrun"

	maxIdleConns        = 100
	maxIdleConnsPerHost = 10
	idleConnTimeout     = 90 * time.Second
)

var (
	// ErrInvalidURL is wrapped by ValidateURL failures.
	ErrInvalidURL = errors.New("invalid URL")
	// ErrBodyTooLarge is returned when a response body exceeds the client's
	// limit.
	ErrBodyTooLarge = errors.New("response body too large")
)

// Client sends the requests built for test cases. It is safe for concurrent
// use; the rate limit, when set, is shared by every caller.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter

	timeout      time.Duration
	follow       bool
	maxRedirects int
	insecure     bool
	proxy        string
	maxBody      int64
	headers      map[string]string
}

type ClientOption func(*Client)

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:      DefaultTimeout,
		follow:       true,
		maxRedirects: DefaultMaxRedirects,
		maxBody:      DefaultMaxBodyBytes,
		headers:      map[string]string{"User-Agent": DefaultUserAgent},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.http = &http.Client{
		Transport:     c.transport(),
		Timeout:       c.timeout,
		CheckRedirect: c.checkRedirect,
	}
	return c
}

func (c *Client) transport() *http.Transport {
	t := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
	}
	if c.insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if c.proxy != "" {
		u, err := neturl.Parse(c.proxy)
		if err != nil {
			logging.Warn("http", "ignoring invalid proxy %q: %v", c.proxy, err)
		} else {
			t.Proxy = http.ProxyURL(u)
		}
	}
	return t
}

func (c *Client) checkRedirect(_ *http.Request, via []*http.Request) error {
	if !c.follow || len(via) >= c.maxRedirects {
		return http.ErrUseLastResponse
	}
	return nil
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithFollowRedirects(follow bool) ClientOption {
	return func(c *Client) {
		c.follow = follow
	}
}

func WithMaxRedirects(max int) ClientOption {
	return func(c *Client) {
		c.maxRedirects = max
	}
}

// WithDefaultHeader sets a header sent with every request unless the request
// sets the same header itself.
func WithDefaultHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithValidateSSL enables or disables SSL certificate validation
func WithValidateSSL(validate bool) ClientOption {
	return func(c *Client) {
		c.insecure = !validate
	}
}

// WithProxy sets the proxy URL for all requests
func WithProxy(proxyURL string) ClientOption {
	return func(c *Client) {
		c.proxy = proxyURL
	}
}

// WithMaxBodyBytes caps the response body size. A non-positive n removes
// the cap.
func WithMaxBodyBytes(n int64) ClientOption {
	return func(c *Client) {
		c.maxBody = n
	}
}

// WithRateLimit caps outbound requests per second across every caller of the
// client. A non-positive rps leaves the client unlimited.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Timeout returns the per-request timeout applied by the client.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Do sends req and reads the whole response. The request is aborted when ctx
// is cancelled. Requests are never retried.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := c.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limit: %w", err)
		}
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := c.readBody(httpResp.Body)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    flattenHeaders(httpResp.Header),
		Body:       body,
		Duration:   elapsed,
	}, nil
}

// prepare turns req into a net/http request. Request headers win over
// client defaults; the encoder's content type applies only when neither
// sets one.
func (c *Client) prepare(ctx context.Context, req *Request) (*http.Request, error) {
	if err := ValidateURL(req.URL); err != nil {
		return nil, err
	}
	target, err := req.BuildURL()
	if err != nil {
		return nil, err
	}
	payload, contentType, err := req.EncodeBody()
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}

	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	return httpReq, nil
}

func (c *Client) readBody(r io.Reader) ([]byte, error) {
	if c.maxBody <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, c.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, c.maxBody)
	}
	return body, nil
}

// flattenHeaders joins repeated header values with ", ".
func flattenHeaders(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for k, v := range h {
		headers[k] = strings.Join(v, ", ")
	}
	return headers
}

// ValidateURL checks that a URL is well-formed and uses an allowed scheme
func ValidateURL(rawURL string) error {
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported URL scheme %q (only http and https are allowed)", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: URL must have a host", ErrInvalidURL)
	}
	return nil
}
