package gate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/dinegate/internal/auth/credential"
	"github.com/yndnr/dinegate/internal/auth/signal"
	"github.com/yndnr/dinegate/internal/core/domain"
	"github.com/yndnr/dinegate/internal/storage"
	"github.com/yndnr/dinegate/internal/telemetry/logger"
	"github.com/yndnr/dinegate/internal/telemetry/metric"
)

var t0 = time.UnixMilli(1_700_000_000_000)

type fakeNav struct {
	mu       sync.Mutex
	path     string
	visited  []string
	navigate chan string
}

func newFakeNav(path string) *fakeNav {
	return &fakeNav{path: path, navigate: make(chan string, 4)}
}

func (n *fakeNav) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

func (n *fakeNav) Navigate(path string) error {
	n.mu.Lock()
	n.path = path
	n.visited = append(n.visited, path)
	n.mu.Unlock()
	n.navigate <- path
	return nil
}

// backend records the Authorization header of each call and answers
// with the status configured for the path.
type backend struct {
	mu      sync.Mutex
	auth    map[string]string
	status  map[string]int
	srv     *httptest.Server
	lastRID string
}

func newBackend(t *testing.T) *backend {
	b := &backend{auth: map[string]string{}, status: map[string]int{}}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.auth[r.URL.Path] = r.Header.Get("Authorization")
		b.lastRID = r.Header.Get(HeaderRequestID)
		code := b.status[r.URL.Path]
		b.mu.Unlock()
		if code == 0 {
			code = http.StatusOK
		}
		w.WriteHeader(code)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) authFor(path string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.auth[path]
}

type fixture struct {
	store   *credential.Store
	local   *storage.Memory
	bus     *signal.Bus
	gate    *Transport
	client  *http.Client
	nav     *fakeNav
	metrics *metric.Registry
	now     *time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	now := t0
	local := storage.NewMemory()
	store := credential.NewStore(local,
		credential.WithClock(func() time.Time { return now }),
		credential.WithLogger(logger.NewNop()))
	bus := signal.New()
	nav := newFakeNav("/customer/orders")
	metrics := metric.NewRegistry()

	base := []Option{
		WithNavigator(nav),
		WithRedirectDelay(10 * time.Millisecond),
		WithMetrics(metrics),
		WithLogger(logger.NewNop()),
	}
	g := New(store, bus, append(base, opts...)...)
	t.Cleanup(g.Close)

	return &fixture{
		store:   store,
		local:   local,
		bus:     bus,
		gate:    g,
		client:  &http.Client{Transport: g},
		nav:     nav,
		metrics: metrics,
		now:     &now,
	}
}

func (f *fixture) login(t *testing.T, ttl time.Duration) {
	t.Helper()
	err := f.store.Save(context.Background(), domain.Grant{
		Identity:   domain.Identity{ID: 1, Username: "alice", Role: domain.RoleCustomer},
		Credential: "tok-1",
		ExpiresAt:  f.now.Add(ttl),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := f.client.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp
}

func TestTransport_AttachesCredentialToProtectedCalls(t *testing.T) {
	b := newBackend(t)
	f := newFixture(t)
	f.login(t, time.Hour)

	f.get(t, b.srv.URL+"/api/orders")

	if got := b.authFor("/api/orders"); got != "Bearer tok-1" {
		t.Errorf("Authorization = %q, want Bearer tok-1", got)
	}
	b.mu.Lock()
	rid := b.lastRID
	b.mu.Unlock()
	if rid == "" {
		t.Error("missing request id")
	}
	if got := testutil.ToFloat64(f.metrics.GateRequests.WithLabelValues(metric.OutcomeAttached)); got != 1 {
		t.Errorf("attached counter = %v, want 1", got)
	}
}

func TestTransport_RequestIDFromContext(t *testing.T) {
	b := newBackend(t)
	f := newFixture(t)

	ctx := logger.WithRequestID(context.Background(), "trace-42")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.srv.URL+"/api/orders", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastRID != "trace-42" {
		t.Errorf("request id = %q, want trace-42", b.lastRID)
	}
}

func TestTransport_PublicPathsNeverCarryCredential(t *testing.T) {
	b := newBackend(t)
	f := newFixture(t)
	f.login(t, time.Hour)

	for _, path := range []string{"/api/users/login", "/api/dishes", "/api/merchants/12", "/api/categories/3"} {
		f.get(t, b.srv.URL+path)
		if got := b.authFor(path); got != "" {
			t.Errorf("%s carried Authorization %q", path, got)
		}
	}
}

func TestTransport_AnonymousCallsPassThrough(t *testing.T) {
	b := newBackend(t)
	f := newFixture(t)

	fired := 0
	f.bus.OnCredentialExpired(func() { fired++ })

	resp := f.get(t, b.srv.URL+"/api/orders")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if b.authFor("/api/orders") != "" {
		t.Error("anonymous call carried Authorization")
	}
	if fired != 0 {
		t.Error("CredentialExpired must not fire without a credential")
	}
}

// A stale credential is withheld and CredentialExpired fires before the
// call reaches the server.
func TestTransport_StaleCredentialSignalsBeforeDispatch(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		record("server:" + r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	f := newFixture(t)
	f.login(t, time.Minute)
	*f.now = f.now.Add(2 * time.Minute)

	f.bus.OnCredentialExpired(func() { record("expired") })

	f.get(t, srv.URL+"/api/orders")

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "expired" || order[1] != "server:" {
		t.Errorf("order = %v, want [expired server:]", order)
	}
}

func TestTransport_StaleCredentialOnPublicPath(t *testing.T) {
	b := newBackend(t)
	f := newFixture(t)
	f.login(t, time.Minute)
	*f.now = f.now.Add(2 * time.Minute)

	fired := 0
	f.bus.OnCredentialExpired(func() { fired++ })

	f.get(t, b.srv.URL+"/api/dishes")
	if fired != 1 {
		t.Errorf("expired signals = %d, want 1", fired)
	}
	if got := b.authFor("/api/dishes"); got != "" {
		t.Errorf("public path Authorization = %q, want none", got)
	}
}

// Scenario: server rejects a locally valid credential.
func TestTransport_UnauthorizedClearsAndRedirects(t *testing.T) {
	b := newBackend(t)
	b.status["/api/orders"] = http.StatusUnauthorized
	f := newFixture(t)
	f.login(t, time.Hour)

	var events []signal.Event
	f.bus.OnAuthorizationExpired(func(ev signal.Event) {
		if f.store.HasCredential() {
			t.Error("store must be cleared before the signal fires")
		}
		events = append(events, ev)
	})

	resp := f.get(t, b.srv.URL+"/api/orders")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 returned to caller", resp.StatusCode)
	}

	if len(events) != 1 || events[0].Reason != signal.ReasonTokenExpired || events[0].Message != ExpiredMessage {
		t.Fatalf("events = %+v", events)
	}
	if f.store.IsValid() || f.local.Len() != 0 {
		t.Error("store not cleared after 401")
	}

	select {
	case path := <-f.nav.navigate:
		if path != "/auth/login" {
			t.Errorf("navigated to %q", path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no redirect after 401")
	}
}

func TestTransport_UnauthorizedOnLoginViewDoesNotRedirect(t *testing.T) {
	b := newBackend(t)
	b.status["/api/orders"] = http.StatusUnauthorized
	f := newFixture(t)
	f.nav.path = "/auth/login"

	f.get(t, b.srv.URL+"/api/orders")

	select {
	case path := <-f.nav.navigate:
		t.Errorf("unexpected navigation to %q", path)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTransport_CloseCancelsPendingRedirect(t *testing.T) {
	b := newBackend(t)
	b.status["/api/orders"] = http.StatusUnauthorized
	f := newFixture(t, WithRedirectDelay(time.Hour))
	f.login(t, time.Hour)

	f.get(t, b.srv.URL+"/api/orders")
	if !f.gate.RedirectPending() {
		t.Fatal("expected a pending redirect")
	}

	f.gate.Close()
	if f.gate.RedirectPending() {
		t.Error("Close must cancel the pending redirect")
	}
}

func TestTransport_ForbiddenKeepsSession(t *testing.T) {
	b := newBackend(t)
	b.status["/api/admin"] = http.StatusForbidden
	f := newFixture(t)
	f.login(t, time.Hour)

	var forbidden []signal.Event
	expired := 0
	f.bus.OnAuthorizationForbidden(func(ev signal.Event) { forbidden = append(forbidden, ev) })
	f.bus.OnAuthorizationExpired(func(signal.Event) { expired++ })

	resp := f.get(t, b.srv.URL+"/api/admin")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if len(forbidden) != 1 || forbidden[0].Reason != signal.ReasonForbidden {
		t.Errorf("forbidden events = %+v", forbidden)
	}
	if expired != 0 {
		t.Error("403 must not signal expiry")
	}
	if !f.store.IsValid() {
		t.Error("403 must not touch the session")
	}
	if f.gate.RedirectPending() {
		t.Error("403 must not schedule a redirect")
	}
}

type errTransport struct{}

func (errTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestTransport_NetworkErrorLeavesSession(t *testing.T) {
	f := newFixture(t, WithBase(errTransport{}))
	f.login(t, time.Hour)

	if _, err := f.client.Get("http://backend.invalid/api/orders"); err == nil {
		t.Fatal("expected transport error")
	}
	if !f.store.IsValid() {
		t.Error("network failure must not touch the session")
	}
}

func TestTransport_DoesNotMutateCallerRequest(t *testing.T) {
	b := newBackend(t)
	f := newFixture(t)
	f.login(t, time.Hour)

	req, _ := http.NewRequest(http.MethodGet, b.srv.URL+"/api/orders", nil)
	resp, err := f.gate.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if req.Header.Get("Authorization") != "" || req.Header.Get(HeaderRequestID) != "" {
		t.Error("caller request was modified")
	}
}

func TestPublicPaths_Match(t *testing.T) {
	p := PublicPaths(DefaultPublicPaths)
	tests := []struct {
		path string
		want bool
	}{
		{"/api/users/login", true},
		{"/api/users/register", true},
		{"/api/users/check/username", true},
		{"/api/merchants/active", true},
		{"/api/merchants/7/dishes", true},
		{"/api/dishes", true},
		{"/api/categories/1", true},
		{"/api/orders", false},
		{"/api/users/7", false},
		{"/api/cart", false},
	}
	for _, tt := range tests {
		if got := p.Match(tt.path); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	if PublicPaths([]string{""}).Match("/anything") {
		t.Error("empty fragment must not match")
	}
}
