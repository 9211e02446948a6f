package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/dinegate/internal/auth/lifecycle"
	"github.com/yndnr/dinegate/internal/cli/config"
	"github.com/yndnr/dinegate/internal/cli/connection"
	"github.com/yndnr/dinegate/internal/client/health"
	"github.com/yndnr/dinegate/internal/core/domain"
	"github.com/yndnr/dinegate/internal/infra/confloader"
	"github.com/yndnr/dinegate/internal/infra/shutdown"
	"github.com/yndnr/dinegate/internal/telemetry/logger"
)

const watchShutdownTimeout = 5 * time.Second

// WatchCommand keeps the session open in the foreground: the expiry poll
// runs, the continue prompt is answered on stdin and backend health is
// tracked until interrupted.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Keep the session open and prompt before it expires",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address (e.g., 127.0.0.1:9464)",
			},
			&cli.BoolFlag{
				Name:  "no-health",
				Usage: "Do not probe the backend",
			},
			&cli.BoolFlag{
				Name:  "exit-on-end",
				Usage: "Exit once the session ends (non-zero when it expired)",
			},
		},
		Action: watchAction,
	}
}

func watchAction(c *cli.Context) error {
	out := stdout(c)

	if sharedManager(c) != nil {
		return domain.ErrInvalidArgument.WithDetails("watch is not available inside the shell")
	}

	m, release, err := openSession(c, func(o *connection.Options) {
		o.HealthChange = func(st health.Status) { printHealth(out, st) }
	})
	if err != nil {
		return err
	}

	h := shutdown.NewHandler(watchShutdownTimeout)
	h.OnShutdown(func(context.Context) error {
		release()
		return nil
	})

	var expired atomic.Bool
	printState(out, m.Session.State(), m)
	m.Session.OnStateChange(func(from, to lifecycle.State) {
		printState(out, to, m)
		if to == lifecycle.Expired {
			expired.Store(true)
		}
		// Unauthenticated follows the store clear, so nothing is left behind.
		if c.Bool("exit-on-end") && from != to && to == lifecycle.Unauthenticated {
			h.Trigger()
		}
	})

	if !c.Bool("no-health") {
		m.Health.Start(c.Context)
	}

	if addr := c.String("metrics-addr"); addr != "" {
		srv, err := serveMetrics(addr, m)
		if err != nil {
			release()
			return err
		}
		fmt.Fprintf(stderr(c), "Serving metrics on http://%s/metrics\n", srv.Addr)
		h.OnShutdown(srv.Shutdown)
	}

	if stop, err := watchConfig(c); err != nil {
		logger.Default().Warn("config reload disabled", "error", err)
	} else {
		h.OnShutdown(func(context.Context) error { return stop() })
	}

	stopVisible := shutdown.Notify(c.Context, func(os.Signal) {
		m.Session.OnVisible(c.Context)
	}, visibilitySignals()...)
	h.OnShutdown(func(context.Context) error {
		stopVisible()
		return nil
	})

	err = h.Wait(c.Context)
	if c.Bool("exit-on-end") && expired.Load() {
		return errors.Join(domain.ErrSessionExpired, err)
	}
	return err
}

func printState(w io.Writer, st lifecycle.State, m *connection.Manager) {
	if id, ok := m.Session.CurrentIdentity(); ok && st.Active() {
		fmt.Fprintf(w, "session %s: %s, %s left\n", st, id.DisplayName(), m.Session.TimeRemaining().Round(time.Second))
		return
	}
	fmt.Fprintf(w, "session %s\n", st)
}

func printHealth(w io.Writer, st health.Status) {
	if st.Healthy {
		fmt.Fprintf(w, "backend %s reachable\n", st.BaseURL)
		return
	}
	fmt.Fprintf(w, "backend %s unavailable: %s\n", st.BaseURL, st.LastError)
}

// serveMetrics starts the metrics listener. The returned server's Addr
// holds the bound address.
func serveMetrics(addr string, m *connection.Manager) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Metrics.Handler())

	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Default().Error("metrics server failed", "error", err)
		}
	}()
	return srv, nil
}

// watchConfig reapplies the log level whenever the config file changes.
func watchConfig(c *cli.Context) (stop func() error, err error) {
	path := c.String("config")
	if _, err := os.Stat(path); err != nil {
		return func() error { return nil }, nil
	}

	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(logger.Default()))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return nil, err
	}

	overrides, _ := c.App.Metadata[metaOverrides].(map[string]any)
	w.OnChange(func(string) {
		cfg, err := config.Load(path, overrides)
		if err != nil {
			logger.Default().Warn("config reload failed", "path", path, "error", err)
			return
		}
		logger.SetLevel(cfg.Log.Level)
		logger.Default().Info("config reloaded", "path", path, "log_level", logger.GetLevel())
	})
	w.StartAsync()
	return w.Stop, nil
}
