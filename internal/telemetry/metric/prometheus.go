package metric

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dinegate"

// Gate outcomes recorded per outgoing call.
const (
	OutcomeAttached  = "attached"  // bearer credential attached
	OutcomePublic    = "public"    // public endpoint, never attached
	OutcomeAnonymous = "anonymous" // no credential present
	OutcomeStale     = "stale"     // stale credential withheld, expiry signalled
)

// Registry holds all client metrics on a private prometheus registry.
type Registry struct {
	registry *prometheus.Registry

	GateRequests  *prometheus.CounterVec
	GateResponses *prometheus.CounterVec
	Logins        *prometheus.CounterVec
	Logouts       *prometheus.CounterVec
	Warnings      prometheus.Counter
	SessionState  prometheus.Gauge
	HealthUp      prometheus.Gauge
}

// NewRegistry creates and registers all metrics.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		GateRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "requests_total",
			Help:      "Outgoing calls seen by the authorization gate, by outcome.",
		}, []string{"outcome"}),
		GateResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "responses_total",
			Help:      "Responses seen by the authorization gate, by status code.",
		}, []string{"code"}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "logins_total",
			Help:      "Login attempts, by result.",
		}, []string{"result"}),
		Logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "logouts_total",
			Help:      "Session terminations, by cause.",
		}, []string{"cause"}),
		Warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "expiry_warnings_total",
			Help:      "Expiry-imminent warnings issued.",
		}),
		SessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "state",
			Help:      "Current lifecycle state (0 unauthenticated, 1 authenticated, 2 warning pending, 3 expired).",
		}),
		HealthUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "up",
			Help:      "1 if the last backend health probe succeeded.",
		}),
	}

	r.registry.MustRegister(
		r.GateRequests,
		r.GateResponses,
		r.Logins,
		r.Logouts,
		r.Warnings,
		r.SessionState,
		r.HealthUp,
	)
	return r
}

// Gatherer exposes the underlying registry for scraping.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// GateOutcome records the dispatch decision for one outgoing call.
func (r *Registry) GateOutcome(outcome string) {
	if r == nil {
		return
	}
	r.GateRequests.WithLabelValues(outcome).Inc()
}

// GateStatus records an authorization-relevant response status.
func (r *Registry) GateStatus(code int) {
	if r == nil {
		return
	}
	r.GateResponses.WithLabelValues(strconv.Itoa(code)).Inc()
}

// Login records a login attempt.
func (r *Registry) Login(ok bool) {
	if r == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	r.Logins.WithLabelValues(result).Inc()
}

// Logout records a session termination and its cause.
func (r *Registry) Logout(cause string) {
	if r == nil {
		return
	}
	r.Logouts.WithLabelValues(cause).Inc()
}

// Warning records an issued expiry warning.
func (r *Registry) Warning() {
	if r == nil {
		return
	}
	r.Warnings.Inc()
}

// State records the current lifecycle state ordinal.
func (r *Registry) State(state int) {
	if r == nil {
		return
	}
	r.SessionState.Set(float64(state))
}

// Health records the result of a backend probe.
func (r *Registry) Health(up bool) {
	if r == nil {
		return
	}
	if up {
		r.HealthUp.Set(1)
	} else {
		r.HealthUp.Set(0)
	}
}
