package gate

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/dinegate/internal/auth/signal"
	"github.com/yndnr/dinegate/internal/telemetry/logger"
	"github.com/yndnr/dinegate/internal/telemetry/metric"
)

// HeaderRequestID carries a per-call id for log correlation.
const HeaderRequestID = "X-Request-ID"

// ExpiredMessage is the user-facing message attached to AuthorizationExpired.
const ExpiredMessage = "Your session has expired, please sign in again."

// Store is the view of the credential store the gate needs.
type Store interface {
	IsValid() bool
	HasCredential() bool
	Credential() string
	Clear(ctx context.Context) error
}

// Navigator reports and changes the current view.
type Navigator interface {
	CurrentPath() string
	Navigate(path string) error
}

// Transport is an http.RoundTripper enforcing the session rules on every call.
type Transport struct {
	base    http.RoundTripper
	store   Store
	bus     *signal.Bus
	public  PublicPaths
	nav     Navigator
	metrics *metric.Registry
	logger  logger.Logger

	loginPath     string
	redirectDelay time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// Option configures a Transport.
type Option func(*Transport)

// WithBase sets the underlying transport. Default: http.DefaultTransport.
func WithBase(rt http.RoundTripper) Option {
	return func(t *Transport) { t.base = rt }
}

// WithPublicPaths replaces the public allow-list.
func WithPublicPaths(paths []string) Option {
	return func(t *Transport) { t.public = PublicPaths(paths) }
}

// WithNavigator enables the delayed redirect to login after a 401.
func WithNavigator(nav Navigator) Option {
	return func(t *Transport) { t.nav = nav }
}

// WithLoginPath sets the login view path. Default: /auth/login.
func WithLoginPath(path string) Option {
	return func(t *Transport) { t.loginPath = path }
}

// WithRedirectDelay sets the delay before redirecting after a 401. Default: 1s.
func WithRedirectDelay(d time.Duration) Option {
	return func(t *Transport) { t.redirectDelay = d }
}

// WithMetrics records gate outcomes.
func WithMetrics(m *metric.Registry) Option {
	return func(t *Transport) { t.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// New creates a gate over store, emitting signals on bus.
func New(store Store, bus *signal.Bus, opts ...Option) *Transport {
	t := &Transport{
		base:          http.DefaultTransport,
		store:         store,
		bus:           bus,
		public:        PublicPaths(DefaultPublicPaths),
		loginPath:     "/auth/login",
		redirectDelay: time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logger.OrDefault(t.logger).With("component", "gate")
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	if out.Header.Get(HeaderRequestID) == "" {
		id := logger.RequestIDFromContext(req.Context())
		if id == "" {
			id = ulid.Make().String()
		}
		out.Header.Set(HeaderRequestID, id)
	}
	path := out.URL.Path
	log := t.logger.With("path", path, "request_id", out.Header.Get(HeaderRequestID))

	// A stale credential is signalled on every path, public ones included.
	valid := t.store.IsValid()
	stale := !valid && t.store.HasCredential()
	if stale {
		log.Info("credential expired before dispatch")
		t.bus.EmitCredentialExpired()
	}

	switch {
	case t.public.Match(path):
		out.Header.Del("Authorization")
		t.metrics.GateOutcome(metric.OutcomePublic)
	case valid:
		out.Header.Set("Authorization", "Bearer "+t.store.Credential())
		t.metrics.GateOutcome(metric.OutcomeAttached)
	case stale:
		t.metrics.GateOutcome(metric.OutcomeStale)
	default:
		t.metrics.GateOutcome(metric.OutcomeAnonymous)
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		log.Debug("call failed", "error", err)
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		t.metrics.GateStatus(resp.StatusCode)
		t.unauthorized(req.Context(), path, log)
	case http.StatusForbidden:
		t.metrics.GateStatus(resp.StatusCode)
		log.Warn("server refused access")
		t.bus.EmitAuthorizationForbidden(signal.Event{
			Reason:  signal.ReasonForbidden,
			Message: "You do not have permission to perform this action.",
			Path:    path,
		})
	}
	return resp, nil
}

func (t *Transport) unauthorized(ctx context.Context, path string, log logger.Logger) {
	log.Warn("server rejected credential")

	if err := t.store.Clear(context.WithoutCancel(ctx)); err != nil {
		log.Warn("clear after 401 failed", "error", err)
	}

	t.bus.EmitAuthorizationExpired(signal.Event{
		Reason:  signal.ReasonTokenExpired,
		Message: ExpiredMessage,
		Path:    path,
	})

	t.scheduleRedirect()
}

func (t *Transport) scheduleRedirect() {
	if t.nav == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.redirectDelay, t.redirect)
}

func (t *Transport) redirect() {
	t.mu.Lock()
	closed := t.closed
	t.timer = nil
	t.mu.Unlock()

	if closed || t.nav.CurrentPath() == t.loginPath {
		return
	}
	if err := t.nav.Navigate(t.loginPath); err != nil {
		t.logger.Warn("redirect to login failed", "error", err)
	}
}

// RedirectPending reports whether a post-401 redirect is scheduled.
func (t *Transport) RedirectPending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

// Close cancels any pending redirect. Calls already in flight finish normally.
func (t *Transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
