package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation labels for boundary crossings
const (
	OpEval      = "eval"
	OpSetGlobal = "set_global"
	OpGetGlobal = "get_global"
	OpCall      = "call"
)

// Status labels for boundary crossings
const (
	StatusOK       = "ok"
	StatusThrown   = "thrown"
	StatusTimeout  = "timeout"
	StatusMarshal  = "marshal"
	StatusDisposed = "disposed"
	StatusCanceled = "canceled"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	RuntimesActive prometheus.Gauge
	RuntimesTotal  prometheus.Counter
	ContextsActive prometheus.Gauge
	ContextsTotal  prometheus.Counter

	Evals        *prometheus.CounterVec
	EvalDuration *prometheus.HistogramVec

	ProgramCacheHits   prometheus.Counter
	ProgramCacheMisses prometheus.Counter

	Installs     *prometheus.CounterVec
	InstallState prometheus.Gauge

	snapshot Snapshot
	mu       sync.Mutex
}

// Snapshot holds running totals for human-facing summaries
type Snapshot struct {
	Evals    int64
	Failures int64
	Timeouts int64
	Total    time.Duration
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default returns the process collector, registered on the default registry
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetrics creates a metrics collector registered on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RuntimesActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jscsandbox_runtimes_active",
			Help: "Number of live sandbox runtimes",
		}),
		RuntimesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "jscsandbox_runtimes_total",
			Help: "Total number of sandbox runtimes created",
		}),
		ContextsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jscsandbox_contexts_active",
			Help: "Number of live execution contexts",
		}),
		ContextsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "jscsandbox_contexts_total",
			Help: "Total number of execution contexts created",
		}),
		Evals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jscsandbox_evals_total",
				Help: "Total number of boundary crossings by operation and outcome",
			},
			[]string{"op", "status"},
		),
		EvalDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jscsandbox_eval_duration_seconds",
				Help:    "Boundary crossing duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"op"},
		),
		ProgramCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "jscsandbox_program_cache_hits_total",
			Help: "Compiled program cache hits",
		}),
		ProgramCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "jscsandbox_program_cache_misses_total",
			Help: "Compiled program cache misses",
		}),
		Installs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jscsandbox_installs_total",
				Help: "Installation handshake attempts by outcome",
			},
			[]string{"outcome"},
		),
		InstallState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jscsandbox_install_state",
			Help: "Installation state (0 uninstalled, 1 installing, 2 installed, 3 failed)",
		}),
	}
}

// RecordEval records one boundary crossing
func (m *Metrics) RecordEval(op, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Evals.WithLabelValues(op, status).Inc()
	m.EvalDuration.WithLabelValues(op).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Evals++
	m.snapshot.Total += duration
	if status != StatusOK {
		m.snapshot.Failures++
	}
	if status == StatusTimeout {
		m.snapshot.Timeouts++
	}
	m.mu.Unlock()
}

// RuntimeCreated records a new runtime
func (m *Metrics) RuntimeCreated() {
	if m == nil {
		return
	}
	m.RuntimesActive.Inc()
	m.RuntimesTotal.Inc()
}

// RuntimeDisposed records a runtime teardown
func (m *Metrics) RuntimeDisposed() {
	if m == nil {
		return
	}
	m.RuntimesActive.Dec()
}

// ContextCreated records a new context
func (m *Metrics) ContextCreated() {
	if m == nil {
		return
	}
	m.ContextsActive.Inc()
	m.ContextsTotal.Inc()
}

// ContextsDisposed records n context teardowns
func (m *Metrics) ContextsDisposed(n int) {
	if m == nil || n == 0 {
		return
	}
	m.ContextsActive.Sub(float64(n))
}

// ProgramCache records a compiled program lookup
func (m *Metrics) ProgramCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.ProgramCacheHits.Inc()
		return
	}
	m.ProgramCacheMisses.Inc()
}

// RecordInstall records a finished installation attempt
func (m *Metrics) RecordInstall(outcome string) {
	if m == nil {
		return
	}
	m.Installs.WithLabelValues(outcome).Inc()
}

// SetInstallState publishes the installation state
func (m *Metrics) SetInstallState(state int) {
	if m == nil {
		return
	}
	m.InstallState.Set(float64(state))
}

// GetSnapshot returns running totals
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}
