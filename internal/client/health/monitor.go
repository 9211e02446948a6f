package health

import (
	"context"
	"sync"
	"time"

	"github.com/yndnr/dinegate/internal/client/api"
	"github.com/yndnr/dinegate/internal/telemetry/logger"
	"github.com/yndnr/dinegate/internal/telemetry/metric"
)

// Prober performs one backend health probe.
type Prober interface {
	Health(ctx context.Context) api.Health
	BaseURL() string
}

// Status is the monitor's latest view of the backend.
type Status struct {
	Healthy   bool
	LastCheck time.Time
	LastError string
	BaseURL   string
}

// Monitor probes the backend periodically and reports status changes.
type Monitor struct {
	prober   Prober
	interval time.Duration
	metrics  *metric.Registry
	logger   logger.Logger
	onChange func(Status)

	mu      sync.Mutex
	status  Status
	checked bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the probe period. Default: 60s.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithMetrics records probe results.
func WithMetrics(r *metric.Registry) Option {
	return func(m *Monitor) { m.metrics = r }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// OnChange registers fn to run when health flips.
func OnChange(fn func(Status)) Option {
	return func(m *Monitor) { m.onChange = fn }
}

// NewMonitor creates a monitor over prober.
func NewMonitor(prober Prober, opts ...Option) *Monitor {
	m := &Monitor{
		prober:   prober,
		interval: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.interval <= 0 {
		m.interval = 60 * time.Second
	}
	m.logger = logger.OrDefault(m.logger).With("component", "health")
	m.status.BaseURL = prober.BaseURL()
	return m
}

// Check probes once and returns the new status.
func (m *Monitor) Check(ctx context.Context) Status {
	h := m.prober.Health(ctx)

	m.mu.Lock()
	prev, first := m.status.Healthy, !m.checked
	m.checked = true
	m.status.Healthy = h.Healthy
	m.status.LastCheck = h.Checked
	m.status.LastError = h.Error
	st := m.status
	m.mu.Unlock()

	m.metrics.Health(h.Healthy)

	switch {
	case first && h.Healthy:
		m.logger.Info("backend reachable", "base_url", st.BaseURL)
	case first:
		m.logger.Warn("backend unavailable", "base_url", st.BaseURL, "error", h.Error)
	case prev != h.Healthy && h.Healthy:
		m.logger.Info("backend recovered", "base_url", st.BaseURL)
	case prev != h.Healthy:
		m.logger.Warn("backend connection lost", "base_url", st.BaseURL, "error", h.Error)
	}

	if (first || prev != h.Healthy) && m.onChange != nil {
		m.onChange(st)
	}
	return st
}

// Start runs an initial probe, then probes every interval until Stop.
// Calling Start again restarts the loop.
func (m *Monitor) Start(ctx context.Context) Status {
	st := m.Check(ctx)

	m.Stop()

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	m.mu.Lock()
	m.cancel, m.done = cancel, done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				probeCtx, probeCancel := context.WithTimeout(loopCtx, m.interval)
				m.Check(probeCtx)
				probeCancel()
			case <-loopCtx.Done():
				return
			}
		}
	}()
	return st
}

// Stop ends the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Status returns the latest status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}
