// Package device talks to the REST API of a Commodore 64 Ultimate.
package device

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antibyte/c64mcp/pkg/configuration"
	"github.com/antibyte/c64mcp/pkg/logger"
)

const (
	defaultURL     = "http://192.168.200.157"
	defaultTimeout = 30 * time.Second

	// DefaultReadLength is used by the read_memory tool when no length is given
	DefaultReadLength = 256
)

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrAddressRange   = errors.New("memory range exceeds 64K address space")
	ErrShortRead      = errors.New("device returned fewer bytes than requested")
	ErrInvalidData    = errors.New("invalid upload data")
)

// StatusError is returned for every non-2xx answer of the device
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP Error %d (%s %s)", e.StatusCode, e.Method, e.Path)
	}
	return fmt.Sprintf("HTTP Error %d (%s %s): %s", e.StatusCode, e.Method, e.Path, e.Body)
}

// Client is a thin wrapper around the /v1 REST endpoints. It is safe for
// concurrent use.
type Client struct {
	baseURL    string
	password   string
	httpClient *http.Client
	retries    int
	retryDelay time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithPassword sends the X-Password header on every request
func WithPassword(password string) Option {
	return func(c *Client) { c.password = password }
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry retries GET requests on transport errors and 5xx answers
func WithRetry(count int, delay time.Duration) Option {
	return func(c *Client) {
		if count < 0 {
			count = 0
		}
		c.retries = count
		c.retryDelay = delay
	}
}

// New creates a client for the device at baseURL
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = defaultURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid device url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid device url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(u.String(), "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromConfig creates a client from the [Device] section
func NewFromConfig() (*Client, error) {
	return New(
		configuration.GetString("Device", "url", defaultURL),
		WithPassword(configuration.GetString("Device", "password", "")),
		WithHTTPClient(&http.Client{Timeout: configuration.GetDuration("Device", "timeout", defaultTimeout)}),
		WithRetry(
			configuration.GetInt("Device", "retry_count", 2),
			configuration.GetDuration("Device", "retry_delay", 250*time.Millisecond),
		),
	)
}

// BaseURL returns the device address the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request describes one REST call
type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

func (c *Client) do(ctx context.Context, req request) ([]byte, error) {
	attempts := 1
	if req.method == http.MethodGet {
		attempts += c.retries
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			logger.DeviceWarn("Retrying %s %s (attempt %d/%d): %v", req.method, req.path, attempt, attempts, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		body, err := c.once(ctx, req)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < 500 {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, req request) ([]byte, error) {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var reader io.Reader
	if req.body != nil {
		reader = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, reader)
	if err != nil {
		return nil, err
	}
	if req.body != nil {
		contentType := req.contentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		httpReq.Header.Set("Content-Type", contentType)
	}
	if c.password != "" {
		httpReq.Header.Set("X-Password", c.password)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		logger.DeviceError("%s %s failed: %v", req.method, req.path, err)
		return nil, fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response of %s %s: %w", req.method, req.path, err)
	}
	logger.DeviceDebug("%s %s -> %d (%d bytes, %v)", req.method, req.path, resp.StatusCode, len(body), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method:     req.method,
			Path:       req.path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, request{method: http.MethodGet, path: path, query: query})
}

func (c *Client) put(ctx context.Context, path string, query url.Values) (string, error) {
	body, err := c.do(ctx, request{method: http.MethodPut, path: path, query: query})
	return string(body), err
}

func (c *Client) post(ctx context.Context, path string, query url.Values, data []byte) (string, error) {
	body, err := c.do(ctx, request{method: http.MethodPost, path: path, query: query, body: data})
	return string(body), err
}

// FormatAddress renders a 16-bit address the way the device expects it
func FormatAddress(addr uint16) string {
	return fmt.Sprintf("%04X", addr)
}

// ParseAddress accepts "0801", "$0801", "0x0801" and "d020"
func ParseAddress(s string) (uint16, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "$")
	if len(trimmed) > 2 && (trimmed[:2] == "0x" || trimmed[:2] == "0X") {
		trimmed = trimmed[2:]
	}
	if trimmed == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	v, err := strconv.ParseUint(trimmed, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return uint16(v), nil
}

// DecodeUpload decodes pure base64 or a data URL ("data:...;base64,...")
func DecodeUpload(data string) ([]byte, error) {
	if strings.HasPrefix(data, "data:") {
		comma := strings.IndexByte(data, ',')
		if comma < 0 {
			return nil, fmt.Errorf("%w: data url without payload", ErrInvalidData)
		}
		data = data[comma+1:]
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return decoded, nil
}

// escapePath escapes each segment of a device file path
func escapePath(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
