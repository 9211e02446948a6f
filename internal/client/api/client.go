package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/dinegate/internal/core/domain"
	"github.com/yndnr/dinegate/internal/telemetry/logger"
)

// DefaultBaseURL is the gateway address used when none is configured.
const DefaultBaseURL = "http://localhost:8080/api"

// Client talks to the backend.
type Client struct {
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	logger    logger.Logger

	// health probes bypass the gate
	probe *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTransport sets the round tripper, normally the authorization gate.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.http.Transport = rt }
}

// WithProbeTransport sets the round tripper of health probes. It must not
// be the gate.
func WithProbeTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.probe.Transport = rt }
}

// WithTimeout sets the per-call timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithRateLimit throttles outgoing calls. A zero limit disables throttling.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	c := &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		http:      &http.Client{Timeout: 10 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(20), 10),
		userAgent: "dinegate-cli/1.0",
		probe:     &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.OrDefault(c.logger).With("component", "api")
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// envelope is the backend response wrapper.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// ok reports whether the envelope code signals success. Some endpoints
// omit the code entirely.
func (e envelope) ok() bool {
	return e.Code == 0 || e.Code == http.StatusOK
}

// StatusError is a failed backend call.
type StatusError struct {
	Status  int    // HTTP status
	Code    int    // envelope code, if any
	Message string // envelope msg, if any
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d (code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.Status)
}

// Unwrap maps the status onto the domain error taxonomy.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return domain.ErrAuthorizationExpired
	case e.Status == http.StatusForbidden:
		return domain.ErrForbidden
	case e.Status >= 500:
		return domain.ErrUnreachable
	}
	return nil
}

// Get performs a GET and decodes the envelope data into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post performs a POST with a JSON body and decodes the envelope data into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var raw []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		raw = data
	}

	status, payload, err := c.Call(ctx, method, path, raw)
	if err != nil {
		return err
	}
	return decode(status, payload, out)
}

// Call sends a raw request and returns the status and body unparsed.
// Transport failures are reported as domain.ErrUnreachable.
func (c *Client) Call(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log := c.logger.WithContext(ctx)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("backend unreachable", "method", method, "path", path, "error", err)
		return 0, nil, domain.ErrUnreachable.WithDetails(c.baseURL).WithCause(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, domain.ErrBadResponse.WithCause(err)
	}

	log.Debug("backend call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"elapsed", time.Since(start))
	return resp.StatusCode, payload, nil
}

func (c *Client) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// decode unwraps the envelope, turning failures into *StatusError.
func decode(status int, payload []byte, out any) error {
	var env envelope
	parseErr := json.Unmarshal(payload, &env)
	if parseErr != nil && json.Valid(payload) {
		// Valid JSON that is not an envelope, e.g. a bare array.
		env, parseErr = envelope{}, nil
	}

	if status < 200 || status >= 300 {
		se := &StatusError{Status: status}
		if parseErr == nil {
			se.Code, se.Message = env.Code, env.Msg
		}
		return se
	}
	if parseErr != nil {
		return domain.ErrBadResponse.WithCause(parseErr)
	}
	if !env.ok() {
		return &StatusError{Status: status, Code: env.Code, Message: env.Msg}
	}

	if out == nil {
		return nil
	}
	// Bodies without an envelope carry the payload at top level.
	data := env.Data
	if len(data) == 0 || string(data) == "null" {
		data = payload
	}
	if err := json.Unmarshal(data, out); err != nil {
		return domain.ErrBadResponse.WithCause(err)
	}
	return nil
}

// IsStatus reports whether err is a *StatusError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}
