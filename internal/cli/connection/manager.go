package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/yndnr/dinegate/internal/auth/credential"
	"github.com/yndnr/dinegate/internal/auth/gate"
	"github.com/yndnr/dinegate/internal/auth/lifecycle"
	"github.com/yndnr/dinegate/internal/auth/navguard"
	"github.com/yndnr/dinegate/internal/auth/signal"
	"github.com/yndnr/dinegate/internal/cli/config"
	"github.com/yndnr/dinegate/internal/client/api"
	"github.com/yndnr/dinegate/internal/client/health"
	"github.com/yndnr/dinegate/internal/infra/buildinfo"
	"github.com/yndnr/dinegate/internal/infra/tlsroots"
	"github.com/yndnr/dinegate/internal/storage"
	"github.com/yndnr/dinegate/internal/telemetry/logger"
	"github.com/yndnr/dinegate/internal/telemetry/metric"
)

// Options tune Open. The zero value uses the process's stdio.
type Options struct {
	In     io.Reader
	Out    io.Writer
	Logger logger.Logger

	// Base is the round tripper under the gate. Default: http.DefaultTransport.
	Base http.RoundTripper
	// Now overrides the clock of the store and lifecycle manager.
	Now func() time.Time
	// HealthChange runs on the first probe and whenever backend health flips.
	HealthChange func(health.Status)
}

// Manager owns every component of one CLI session.
type Manager struct {
	Config   *config.Config
	Local    storage.LocalStore
	Store    *credential.Store
	Bus      *signal.Bus
	Gate     *gate.Transport
	API      *api.Client
	Session  *lifecycle.Manager
	Guard    *navguard.Guard
	Metrics  *metric.Registry
	Health   *health.Monitor
	Terminal *Terminal

	certs  *tlsroots.Watcher
	logger logger.Logger
}

// Open wires the components described by cfg and restores any persisted
// session. The caller must Close the manager.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Manager, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	log := logger.OrDefault(opts.Logger)

	base := opts.Base
	var certs *tlsroots.Watcher
	if base == nil && cfg.TLSOptions().Enabled() {
		tlsCfg, w, err := tlsroots.ClientConfig(cfg.TLSOptions(), log)
		if err != nil {
			return nil, fmt.Errorf("load backend TLS material: %w", err)
		}
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = tlsCfg
		base, certs = tr, w
	}

	local, err := storage.Open(cfg.StorageOptions(), log)
	if err != nil {
		if certs != nil {
			certs.Stop()
		}
		return nil, fmt.Errorf("open local storage: %w", err)
	}
	if certs != nil {
		certs.StartAsync()
	}

	m := &Manager{
		Config:   cfg,
		Local:    local,
		Bus:      signal.New(),
		Metrics:  metric.NewRegistry(),
		Terminal: NewTerminal(opts.In, opts.Out, local),
		certs:    certs,
		logger:   log.With("component", "connection"),
	}

	storeOpts := []credential.Option{credential.WithLogger(log)}
	if opts.Now != nil {
		storeOpts = append(storeOpts, credential.WithClock(opts.Now))
	}
	m.Store = credential.NewStore(local, storeOpts...)

	gateOpts := []gate.Option{
		gate.WithNavigator(m.Terminal),
		gate.WithPublicPaths(cfg.Auth.PublicPaths),
		gate.WithLoginPath(cfg.Auth.LoginPath),
		gate.WithRedirectDelay(cfg.Auth.RedirectDelay),
		gate.WithMetrics(m.Metrics),
		gate.WithLogger(log),
	}
	if base != nil {
		gateOpts = append(gateOpts, gate.WithBase(base))
	}
	m.Gate = gate.New(m.Store, m.Bus, gateOpts...)

	apiOpts := []api.Option{
		api.WithTransport(m.Gate),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRateLimit(cfg.API.RateLimit, cfg.API.Burst),
		api.WithUserAgent(buildinfo.UserAgent()),
		api.WithLogger(log),
	}
	if base != nil {
		apiOpts = append(apiOpts, api.WithProbeTransport(base))
	}
	m.API = api.New(cfg.API.BaseURL, apiOpts...)

	lcOpts := []lifecycle.Option{
		lifecycle.WithAuthenticator(m.API),
		lifecycle.WithPrompter(m.Terminal),
		lifecycle.WithNotifier(m.Terminal),
		lifecycle.WithNavigator(m.Terminal),
		lifecycle.WithMetrics(m.Metrics),
		lifecycle.WithLogger(log),
	}
	if opts.Now != nil {
		lcOpts = append(lcOpts, lifecycle.WithClock(opts.Now))
	}
	m.Session = lifecycle.New(m.Store, m.Bus, lifecycle.Config{
		PollInterval:     cfg.Auth.PollInterval,
		WarningThreshold: cfg.Auth.WarningThreshold,
		LoginPath:        cfg.Auth.LoginPath,
	}, lcOpts...)

	m.Guard = navguard.New(m.Session,
		navguard.WithLoginPath(cfg.Auth.LoginPath),
		navguard.WithLogger(log),
	)

	healthOpts := []health.Option{
		health.WithInterval(cfg.Health.Interval),
		health.WithMetrics(m.Metrics),
		health.WithLogger(log),
	}
	if opts.HealthChange != nil {
		healthOpts = append(healthOpts, health.OnChange(opts.HealthChange))
	}
	m.Health = health.NewMonitor(m.API, healthOpts...)

	restored := m.Session.Initialize(ctx)
	m.logger.Debug("session manager ready", "restored", restored, "engine", cfg.Storage.Engine)
	return m, nil
}

// Close stops background work and closes local storage. Safe to call
// more than once.
func (m *Manager) Close() error {
	m.Health.Stop()
	m.Session.Close()
	m.Gate.Close()
	if m.certs != nil {
		m.certs.Stop()
	}

	if err := m.Local.Close(); err != nil && !errors.Is(err, storage.ErrClosed) {
		return fmt.Errorf("close local storage: %w", err)
	}
	return nil
}
