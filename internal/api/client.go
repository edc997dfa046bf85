// Package api is the typed client for the medcare backend. Every endpoint the
// app uses is modelled as a method returning explicit records.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medcare-vn/medcare-mobile/internal/observability/metrics"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

const (
	defaultBaseURL = "http://10.0.2.2:5199"
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 300
)

var (
	// ErrUnauthorized is returned when no session token is available or the
	// backend rejects it with 401/403.
	ErrUnauthorized = errors.New("api: unauthorized")
	// ErrNotFound matches 404 responses.
	ErrNotFound = errors.New("api: not found")
	// ErrTransport wraps failures where no HTTP response was received.
	ErrTransport = errors.New("api: transport failure")
)

// StatusError describes a non-2xx response.
type StatusError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api: %s returned %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("api: %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// TokenSource yields the bearer token for authenticated calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type authMode int

const (
	authNone authMode = iota
	authOptional
	authRequired
)

// Client wraps REST calls against the medcare backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	metrics    *metrics.ClientMetrics
	logger     *logging.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMetrics records request counts and latency.
func WithMetrics(m *metrics.ClientMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient constructs a backend client. tokens may be nil for anonymous use.
func NewClient(baseURL string, tokens TokenSource, logger *logging.Logger, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend origin the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func idQuery(key string, id int64) url.Values {
	return url.Values{key: []string{strconv.FormatInt(id, 10)}}
}

func (c *Client) bearer(ctx context.Context, mode authMode) (string, error) {
	if mode == authNone {
		return "", nil
	}
	if c.tokens == nil {
		if mode == authRequired {
			return "", ErrUnauthorized
		}
		return "", nil
	}
	token, err := c.tokens.Token(ctx)
	if err != nil || token == "" {
		if mode == authRequired {
			if err == nil {
				return "", ErrUnauthorized
			}
			return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		return "", nil
	}
	return token, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, auth authMode, body interface{}, out interface{}) error {
	var (
		bodyReader  io.Reader
		contentType string
	)
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, auth, contentType, bodyReader, out)
}

// doForm posts fields as multipart/form-data, the encoding the backend
// expects for uploads.
func (c *Client) doForm(ctx context.Context, path string, auth authMode, fields map[string]string, out interface{}) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return fmt.Errorf("encode form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("encode form: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, auth, mw.FormDataContentType(), &buf, out)
}

func (c *Client) do(ctx context.Context, method, path string, auth authMode, contentType string, body io.Reader, out interface{}) error {
	endpoint := c.baseURL + path
	label := endpointLabel(path)

	token, err := c.bearer(ctx, auth)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(label, "transport_error", time.Since(start).Seconds())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	c.metrics.ObserveRequest(label, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(respBody)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		c.logger.Warn("medcare API non-2xx response", "status", resp.StatusCode, "path", label, "body", msg)
		return &StatusError{StatusCode: resp.StatusCode, Endpoint: label, Body: msg}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func endpointLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return strings.TrimPrefix(path, "/api/")
}
