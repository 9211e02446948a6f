package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yndnr/dinegate/internal/core/domain"
	"github.com/yndnr/dinegate/internal/telemetry/logger"
)

// mockBackend serves canned responses per path, like the real gateway.
type mockBackend struct {
	t        *testing.T
	handlers map[string]http.HandlerFunc
	srv      *httptest.Server
}

func newMockBackend(t *testing.T) *mockBackend {
	m := &mockBackend{t: t, handlers: map[string]http.HandlerFunc{}}
	m.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := m.handlers[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h(w, r)
	}))
	t.Cleanup(m.srv.Close)
	return m
}

func (m *mockBackend) handle(method, path string, status int, body string) {
	m.handlers[method+" "+path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

func (m *mockBackend) client(opts ...Option) *Client {
	base := []Option{WithLogger(logger.NewNop()), WithRateLimit(0, 0)}
	return New(m.srv.URL+"/api", append(base, opts...)...)
}

func TestClient_LoginEnvelope(t *testing.T) {
	expires := time.UnixMilli(1_800_000_000_000)

	tests := []struct {
		name       string
		body       string
		wantExpiry time.Time
	}{
		{
			name:       "nested with expiresAt and userInfo",
			body:       `{"code":200,"msg":"ok","data":{"token":"t1","expiresAt":1800000000000,"userInfo":{"id":4,"username":"dan","role":2}}}`,
			wantExpiry: expires,
		},
		{
			name:       "nested with expires and user",
			body:       `{"code":200,"msg":"ok","data":{"token":"t1","expires":"1800000000000","user":{"id":4,"username":"dan","role":2}}}`,
			wantExpiry: expires,
		},
		{
			name:       "bare body",
			body:       `{"token":"t1","expiresAt":1800000000000,"userInfo":{"id":4,"username":"dan","role":2}}`,
			wantExpiry: expires,
		},
		{
			name: "no expiry",
			body: `{"code":200,"data":{"token":"t1","userInfo":{"id":4,"username":"dan","role":2}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockBackend(t)
			m.handle(http.MethodPost, "/api/users/login", http.StatusOK, tt.body)

			grant, err := m.client().Login(context.Background(), domain.Credentials{Account: "dan", Password: "pw"})
			if err != nil {
				t.Fatalf("Login() = %v", err)
			}
			if grant.Credential != "t1" || grant.Identity.ID != 4 || grant.Identity.Role != domain.RoleMerchant {
				t.Errorf("grant = %+v", grant)
			}
			if !grant.ExpiresAt.Equal(tt.wantExpiry) {
				t.Errorf("ExpiresAt = %v, want %v", grant.ExpiresAt, tt.wantExpiry)
			}
		})
	}
}

func TestClient_LoginSendsCredentials(t *testing.T) {
	m := newMockBackend(t)
	var got domain.Credentials
	m.handlers["POST /api/users/login"] = func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"code":200,"data":{"token":"t","userInfo":{"id":1}}}`)
	}

	if _, err := m.client().Login(context.Background(), domain.Credentials{Account: "13900139001", Password: "secret"}); err != nil {
		t.Fatal(err)
	}
	if got.Account != "13900139001" || got.Password != "secret" {
		t.Errorf("server received %+v", got)
	}
}

func TestClient_LoginFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"rejected in envelope", http.StatusOK, `{"code":401,"msg":"wrong password"}`, domain.ErrBadCredentials},
		{"rejected by status", http.StatusBadRequest, `{"code":400,"msg":"bad request"}`, domain.ErrBadCredentials},
		{"no token", http.StatusOK, `{"code":200,"data":{"userInfo":{"id":1}}}`, domain.ErrBadResponse},
		{"no user", http.StatusOK, `{"code":200,"data":{"token":"t"}}`, domain.ErrBadResponse},
		{"server error", http.StatusInternalServerError, `oops`, domain.ErrUnreachable},
		{"garbage", http.StatusOK, `<html>`, domain.ErrBadResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockBackend(t)
			m.handle(http.MethodPost, "/api/users/login", tt.status, tt.body)

			_, err := m.client().Login(context.Background(), domain.Credentials{Account: "a", Password: "b"})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Login() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_LoginValidatesInput(t *testing.T) {
	c := New("http://127.0.0.1:1", WithLogger(logger.NewNop()))
	if _, err := c.Login(context.Background(), domain.Credentials{Account: "a"}); !errors.Is(err, domain.ErrMissingArgument) {
		t.Errorf("Login() = %v", err)
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, WithLogger(logger.NewNop()), WithTimeout(time.Second))
	_, err := c.GetUser(context.Background(), 1)
	if !errors.Is(err, domain.ErrUnreachable) {
		t.Errorf("GetUser() = %v, want ErrUnreachable", err)
	}
}

func TestClient_StatusErrors(t *testing.T) {
	m := newMockBackend(t)
	m.handle(http.MethodGet, "/api/users/1", http.StatusUnauthorized, `{"code":401,"msg":"token expired"}`)
	m.handle(http.MethodGet, "/api/users/2", http.StatusForbidden, ``)

	c := m.client()

	_, err := c.GetUser(context.Background(), 1)
	if !errors.Is(err, domain.ErrAuthorizationExpired) || !IsStatus(err, http.StatusUnauthorized) {
		t.Errorf("401: %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Message != "token expired" {
		t.Errorf("401 message lost: %v", err)
	}

	_, err = c.GetUser(context.Background(), 2)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("403: %v", err)
	}
}

func TestClient_Exists(t *testing.T) {
	m := newMockBackend(t)
	m.handlers["GET /api/users/check/username"] = func(w http.ResponseWriter, r *http.Request) {
		taken := r.URL.Query().Get("username") == "alice"
		json.NewEncoder(w).Encode(map[string]any{"code": 200, "data": taken})
	}
	c := m.client()

	taken, err := c.Exists(context.Background(), CheckUsername, "alice")
	if err != nil || !taken {
		t.Errorf("Exists(alice) = %v, %v", taken, err)
	}
	taken, err = c.Exists(context.Background(), CheckUsername, "zed")
	if err != nil || taken {
		t.Errorf("Exists(zed) = %v, %v", taken, err)
	}

	if _, err := c.Exists(context.Background(), CheckField("address"), "x"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("unknown field: %v", err)
	}
}

func TestClient_Register(t *testing.T) {
	m := newMockBackend(t)
	var got Registration
	m.handlers["POST /api/users/register"] = func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"code":200,"data":{"id":77,"username":"erin","role":1}}`)
	}

	id, err := m.client().Register(context.Background(), Registration{Username: "erin", Password: "pw", Role: domain.RoleCustomer})
	if err != nil {
		t.Fatal(err)
	}
	if id.ID != 77 || got.Username != "erin" {
		t.Errorf("identity = %+v, sent %+v", id, got)
	}

	_, err = m.client().Register(context.Background(), Registration{Username: "x", Password: "y", Role: domain.RoleAdmin})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("admin registration: %v", err)
	}
}

func TestClient_Health(t *testing.T) {
	m := newMockBackend(t)
	m.handle(http.MethodGet, "/api/health", http.StatusOK, `{"status":"UP"}`)

	if h := m.client().Health(context.Background()); !h.Healthy || h.Status != 200 {
		t.Errorf("Health() = %+v", h)
	}

	down := newMockBackend(t)
	down.handle(http.MethodGet, "/api/health", http.StatusServiceUnavailable, ``)
	if h := down.client().Health(context.Background()); h.Healthy || h.Error == "" {
		t.Errorf("Health() = %+v", h)
	}
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	m := newMockBackend(t)
	m.handle(http.MethodGet, "/api/dishes", http.StatusOK, `{"code":200,"data":[]}`)
	c := m.client(WithRateLimit(0.001, 1))

	var out []any
	if err := c.Get(context.Background(), "/dishes", nil, &out); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Get(ctx, "/dishes", nil, &out); err == nil {
		t.Error("second call should be throttled")
	}
}

func TestNew_NormalizesBaseURL(t *testing.T) {
	tests := map[string]string{
		"":                        DefaultBaseURL,
		"localhost:9000/api/":     "http://localhost:9000/api",
		"https://api.example/api": "https://api.example/api",
	}
	for in, want := range tests {
		if got := New(in).BaseURL(); got != want {
			t.Errorf("New(%q).BaseURL() = %q, want %q", in, got, want)
		}
	}
}

func TestMillis_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{`1700000000000`, 1_700_000_000_000},
		{`"1700000000000"`, 1_700_000_000_000},
		{`"2023-11-14T22:13:20Z"`, 1_700_000_000_000},
		{`null`, 0},
		{`""`, 0},
	}
	for _, tt := range tests {
		var m Millis
		if err := json.Unmarshal([]byte(tt.in), &m); err != nil {
			t.Errorf("Unmarshal(%s) error = %v", tt.in, err)
			continue
		}
		if int64(m) != tt.want {
			t.Errorf("Unmarshal(%s) = %d, want %d", tt.in, m, tt.want)
		}
	}

	var m Millis
	if err := json.Unmarshal([]byte(`"tomorrow"`), &m); err == nil {
		t.Error("expected error for unparseable string")
	}
	if !Millis(0).Time().IsZero() {
		t.Error("zero Millis should be the zero time")
	}
}
