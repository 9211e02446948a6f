package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yndnr/dinegate/internal/auth/credential"
	"github.com/yndnr/dinegate/internal/auth/signal"
	"github.com/yndnr/dinegate/internal/core/domain"
	"github.com/yndnr/dinegate/internal/telemetry/logger"
	"github.com/yndnr/dinegate/internal/telemetry/metric"
)

// User-facing messages.
const (
	MsgExpired   = "Your session has expired, please sign in again."
	MsgLoggedOut = "You have signed out."
	MsgContinued = "Session continued."
	MsgForbidden = "You do not have permission to access this resource."
)

// Decision is the user's answer to the expiry warning.
type Decision int

const (
	Continue Decision = iota
	LogOut
)

// Prompter asks the user whether to keep the session. It blocks until the
// user answers or ctx is done.
type Prompter interface {
	ConfirmContinue(ctx context.Context, remaining time.Duration) (Decision, error)
}

// Notifier shows short messages to the user.
type Notifier interface {
	Notify(n domain.Notice)
}

// Navigator reports and changes the current view.
type Navigator interface {
	CurrentPath() string
	Navigate(path string) error
}

// Authenticator exchanges credentials for a grant with the backend.
type Authenticator interface {
	Login(ctx context.Context, creds domain.Credentials) (domain.Grant, error)
}

// Config holds lifecycle timings.
type Config struct {
	// PollInterval is the expiry poll period. Default: 60s.
	PollInterval time.Duration
	// WarningThreshold is how close to expiry the warning is issued. Default: 15m.
	WarningThreshold time.Duration
	// LoginPath is the login view. Default: /auth/login.
	LoginPath string
}

// DefaultConfig returns the default timings.
func DefaultConfig() Config {
	return Config{
		PollInterval:     60 * time.Second,
		WarningThreshold: 15 * time.Minute,
		LoginPath:        "/auth/login",
	}
}

// Manager owns the session lifecycle. Create it with New and release it
// with Close.
type Manager struct {
	cfg     Config
	store   *credential.Store
	auth    Authenticator
	prompt  Prompter
	notify  Notifier
	nav     Navigator
	metrics *metric.Registry
	logger  logger.Logger
	now     func() time.Time

	mu            sync.Mutex
	state         State
	poll          *task
	cancelWarning context.CancelFunc
	// warnSeq identifies the open warning; a new login bumps it so a
	// prompt that returns afterwards no longer owns the session.
	warnSeq uint64
	subs          []*signal.Subscription
	observers     []func(from, to State)
	closed        bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithAuthenticator sets the backend used by Login.
func WithAuthenticator(a Authenticator) Option {
	return func(m *Manager) { m.auth = a }
}

// WithPrompter sets the expiry warning prompt.
func WithPrompter(p Prompter) Option {
	return func(m *Manager) { m.prompt = p }
}

// WithNotifier sets the notice sink.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notify = n }
}

// WithNavigator sets the view navigator.
func WithNavigator(n Navigator) Option {
	return func(m *Manager) { m.nav = n }
}

// WithMetrics records lifecycle metrics.
func WithMetrics(r *metric.Registry) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides the time source used for default grant expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a manager and subscribes it to the session signals on bus.
func New(store *credential.Store, bus *signal.Bus, cfg Config, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = def.WarningThreshold
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = def.LoginPath
	}

	m := &Manager{
		cfg:    cfg,
		store:  store,
		prompt: continuePrompter{},
		notify: nopNotifier{},
		nav:    nopNavigator{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logger.OrDefault(m.logger).With("component", "lifecycle")

	m.subs = []*signal.Subscription{
		bus.OnCredentialExpired(func() {
			m.Expire(context.Background(), CauseStale)
		}),
		bus.OnAuthorizationExpired(m.onAuthorizationExpired),
		bus.OnAuthorizationForbidden(m.onAuthorizationForbidden),
	}
	return m
}

// Initialize restores a persisted session. It reports whether a valid
// session is now active. A restored but expired session goes through
// expiry handling.
func (m *Manager) Initialize(ctx context.Context) bool {
	if m.isClosed() {
		return false
	}
	if !m.store.Restore(ctx) {
		m.logger.Debug("no persisted session")
		return false
	}
	if !m.store.IsValid() {
		m.logger.Info("persisted session already expired")
		m.Expire(ctx, CauseExpired)
		return false
	}
	m.activate()
	return true
}

// Login authenticates against the backend and installs the session.
func (m *Manager) Login(ctx context.Context, creds domain.Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	if m.isClosed() {
		return domain.ErrInvalidArgument.WithDetails("session manager is closed")
	}
	if m.auth == nil {
		return domain.ErrInvalidArgument.WithDetails("no authenticator configured")
	}

	grant, err := m.auth.Login(ctx, creds)
	if err != nil {
		m.metrics.Login(false)
		m.logger.Info("login failed", "account", creds.Account, "error", err)
		return err
	}
	if grant.ExpiresAt.IsZero() {
		grant.ExpiresAt = m.now().Add(domain.DefaultGrantLifetime)
	}

	m.mu.Lock()
	m.warnSeq++
	if m.cancelWarning != nil {
		m.cancelWarning()
		m.cancelWarning = nil
	}
	m.mu.Unlock()

	if err := m.store.Save(ctx, grant); err != nil {
		m.metrics.Login(false)
		return err
	}

	m.metrics.Login(true)
	m.logger.Info("logged in", "user_id", grant.Identity.ID, "role", grant.Identity.Role.String())
	m.activate()
	m.notify.Notify(domain.Notice{Level: domain.NoticeSuccess, Message: "Signed in as " + grant.Identity.DisplayName() + "."})
	return nil
}

// Logout ends the session at the user's request and navigates to login.
func (m *Manager) Logout(ctx context.Context, reason string) error {
	if reason == "" {
		reason = CauseUser
	}
	_, err := m.terminate(ctx, reason, domain.Notice{Level: domain.NoticeInfo, Message: MsgLoggedOut}, false)
	return err
}

// Expire runs expiry handling: Expired, then cleared and Unauthenticated
// on the login view. Repeated or concurrent calls collapse into one.
func (m *Manager) Expire(ctx context.Context, cause string) {
	if _, err := m.terminate(ctx, cause, domain.Notice{Level: domain.NoticeWarning, Message: MsgExpired}, true); err != nil {
		m.logger.Warn("expiry cleanup incomplete", "error", err)
	}
}

// Check runs one poll tick. When the warning threshold is crossed for the
// first time it blocks on the Prompter until the user decides.
func (m *Manager) Check(ctx context.Context) {
	m.mu.Lock()
	if m.closed || !m.state.Active() {
		m.mu.Unlock()
		return
	}
	if !m.store.IsValid() {
		m.mu.Unlock()
		m.Expire(ctx, CauseExpired)
		return
	}

	remaining := m.store.TimeRemaining()
	if remaining >= m.cfg.WarningThreshold || !m.store.MarkWarningIssued() {
		m.mu.Unlock()
		return
	}

	fire := m.setLocked(WarningPending)
	warnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), remaining)
	m.cancelWarning = cancel
	m.warnSeq++
	seq := m.warnSeq
	m.mu.Unlock()
	fire()

	m.metrics.Warning()
	m.logger.Info("session expiring soon", "remaining", remaining.Round(time.Second))

	decision, err := m.prompt.ConfirmContinue(warnCtx, remaining)
	cancel()

	m.mu.Lock()
	if m.closed || m.state != WarningPending || m.warnSeq != seq {
		// Resolved elsewhere while the prompt was open.
		m.mu.Unlock()
		return
	}
	m.cancelWarning = nil

	if err != nil || decision != Continue {
		m.mu.Unlock()
		cause := CauseDeclined
		if errors.Is(err, context.DeadlineExceeded) || !m.store.IsValid() {
			cause = CauseExpired
		}
		m.Expire(ctx, cause)
		return
	}

	fire = m.setLocked(Authenticated)
	m.mu.Unlock()
	fire()
	m.notify.Notify(domain.Notice{Level: domain.NoticeSuccess, Message: MsgContinued})
}

// OnVisible is called when the host regains foreground visibility. The
// poll task is re-armed and a check runs immediately.
func (m *Manager) OnVisible(ctx context.Context) {
	m.mu.Lock()
	if m.closed || !m.state.Active() {
		m.mu.Unlock()
		return
	}
	m.poll.Stop()
	m.poll = startTask(m.cfg.PollInterval, m.Check)
	m.mu.Unlock()

	m.Check(ctx)
}

// Close cancels the poll task and any open warning, and releases every
// signal subscription. Safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.poll.Stop()
	m.poll = nil
	if m.cancelWarning != nil {
		m.cancelWarning()
		m.cancelWarning = nil
	}
	subs := m.subs
	m.subs = nil
	m.observers = nil
	m.mu.Unlock()

	for _, s := range subs {
		s.Release()
	}
	m.logger.Debug("session manager closed")
}

// OnStateChange registers fn to run after every state transition.
func (m *Manager) OnStateChange(fn func(from, to State)) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// IsAuthenticated reports whether the store holds a valid session.
func (m *Manager) IsAuthenticated() bool {
	return m.store.IsValid()
}

// CurrentIdentity returns the identity of the valid session, if any.
func (m *Manager) CurrentIdentity() (domain.Identity, bool) {
	return m.store.Identity()
}

// TimeRemaining returns the time until expiry, clamped to zero.
func (m *Manager) TimeRemaining() time.Duration {
	return m.store.TimeRemaining()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// activate enters Authenticated and (re)starts the poll task.
func (m *Manager) activate() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.poll.Stop()
	m.poll = startTask(m.cfg.PollInterval, m.Check)
	fire := m.setLocked(Authenticated)
	m.mu.Unlock()
	fire()
}

// terminate ends the session. viaExpired routes through the Expired
// state. It reports whether there was anything to end.
func (m *Manager) terminate(ctx context.Context, cause string, notice domain.Notice, viaExpired bool) (bool, error) {
	m.mu.Lock()
	if m.state == Expired || (!m.state.Active() && !m.store.HasCredential()) {
		m.mu.Unlock()
		return false, nil
	}

	m.poll.Stop()
	m.poll = nil
	if m.cancelWarning != nil {
		m.cancelWarning()
		m.cancelWarning = nil
	}
	var fire func()
	if viaExpired {
		fire = m.setLocked(Expired)
	} else {
		fire = m.setLocked(Unauthenticated)
	}
	m.mu.Unlock()
	fire()

	err := m.store.Clear(context.WithoutCancel(ctx))
	m.metrics.Logout(cause)
	m.logger.Info("session ended", "cause", cause)

	if !notice.Empty() {
		m.notify.Notify(notice)
	}
	if m.nav.CurrentPath() != m.cfg.LoginPath {
		if navErr := m.nav.Navigate(m.cfg.LoginPath); navErr != nil {
			m.logger.Warn("navigate to login failed", "error", navErr)
		}
	}

	if viaExpired {
		m.mu.Lock()
		fire = func() {}
		if m.state == Expired {
			fire = m.setLocked(Unauthenticated)
		}
		m.mu.Unlock()
		fire()
	}
	return true, err
}

func (m *Manager) onAuthorizationExpired(ev signal.Event) {
	msg := ev.Message
	if msg == "" {
		msg = MsgExpired
	}
	notice := domain.Notice{Level: domain.NoticeError, Message: msg}

	ended, err := m.terminate(context.Background(), CauseUnauthorized, notice, true)
	if err != nil {
		m.logger.Warn("expiry cleanup incomplete", "error", err)
	}
	if !ended {
		m.notify.Notify(notice)
	}
}

func (m *Manager) onAuthorizationForbidden(ev signal.Event) {
	msg := ev.Message
	if msg == "" {
		msg = MsgForbidden
	}
	m.notify.Notify(domain.Notice{Level: domain.NoticeError, Message: msg})
}

// setLocked changes state and returns a func that publishes the change.
// Call it after releasing m.mu.
func (m *Manager) setLocked(to State) func() {
	from := m.state
	if from == to {
		return func() {}
	}
	m.state = to
	observers := append([]func(State, State)(nil), m.observers...)
	return func() {
		m.metrics.State(int(to))
		m.logger.Debug("state changed", "from", from.String(), "to", to.String())
		for _, fn := range observers {
			fn(from, to)
		}
	}
}

type continuePrompter struct{}

func (continuePrompter) ConfirmContinue(context.Context, time.Duration) (Decision, error) {
	return Continue, nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(domain.Notice) {}

type nopNavigator struct{}

func (nopNavigator) CurrentPath() string  { return "" }
func (nopNavigator) Navigate(string) error { return nil }
