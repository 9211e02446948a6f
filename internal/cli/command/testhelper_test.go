package command

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/dinegate/internal/cli/connection"
	"github.com/yndnr/dinegate/internal/telemetry/logger"
)

// mockServer is a backend with per-path handlers.
type mockServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
}

// newMockServer creates a backend that answers login, health and order
// requests the way the real API does.
func newMockServer(t *testing.T) *mockServer {
	t.Helper()
	m := &mockServer{handlers: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		var (
			best    string
			handler http.HandlerFunc
		)
		for pattern, h := range m.handlers {
			if strings.HasPrefix(r.URL.Path, pattern) && len(pattern) > len(best) {
				best, handler = pattern, h
			}
		}
		m.mu.Unlock()

		if handler == nil {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(m.Close)

	m.handle("/api/users/login", func(w http.ResponseWriter, r *http.Request) {
		var creds struct {
			Account  string `json:"account"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "pw" {
			envelopeResponse(w, http.StatusOK, 400, "wrong password", nil)
			return
		}
		envelopeResponse(w, http.StatusOK, 200, "ok", map[string]any{
			"token":     "tok-" + creds.Account,
			"expiresAt": time.Now().Add(2 * time.Hour).UnixMilli(),
			"userInfo":  map[string]any{"id": 7, "username": creds.Account, "nickname": "Alice", "role": 1},
		})
	})
	m.handle("/api/health", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "UP"})
	})
	return m
}

// handle registers a handler for a path prefix. The longest prefix wins.
func (m *mockServer) handle(pattern string, handler http.HandlerFunc) {
	m.mu.Lock()
	m.handlers[pattern] = handler
	m.mu.Unlock()
}

// jsonResponse writes a JSON response.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// envelopeResponse writes the backend's {code, msg, data} wrapper.
func envelopeResponse(w http.ResponseWriter, status, code int, msg string, data any) {
	jsonResponse(w, status, map[string]any{"code": code, "msg": msg, "data": data})
}

// cliEnv is an isolated home for CLI runs: its own config path and data
// directory, pointed at one backend.
type cliEnv struct {
	t      *testing.T
	server *mockServer
	dir    string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	return &cliEnv{t: t, server: newMockServer(t), dir: t.TempDir()}
}

func (e *cliEnv) configPath() string {
	return filepath.Join(e.dir, "cli.yaml")
}

// result holds the output of one CLI run.
type result struct {
	stdout string
	stderr string
	err    error
}

// run executes the CLI with args after the environment's global flags.
func (e *cliEnv) run(args ...string) result {
	return e.runContext(context.Background(), "", args...)
}

// runContext executes the CLI with stdin and a caller-controlled context.
func (e *cliEnv) runContext(ctx context.Context, stdin string, args ...string) result {
	e.t.Helper()

	var out, errOut bytes.Buffer
	app := App()
	app.Reader = strings.NewReader(stdin)
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Metadata = map[string]any{
		metaOptions: connection.Options{Logger: logger.NewNop()},
	}

	full := []string{
		"dinegate-cli",
		"--config", e.configPath(),
		"--server", e.server.URL + "/api",
		"--storage", "badger",
		"--data-dir", filepath.Join(e.dir, "data"),
	}
	full = append(full, args...)

	err := app.RunContext(ctx, full)
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

// login signs alice in and fails the test on error.
func (e *cliEnv) login() {
	e.t.Helper()
	if r := e.run("login", "-a", "alice", "-p", "pw"); r.err != nil {
		e.t.Fatalf("login error = %v\nstderr: %s", r.err, r.stderr)
	}
}
