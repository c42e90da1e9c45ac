// Package telemetry exposes Prometheus metrics for the auth front end.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dgellow/stylefront/internal/authstate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures the metrics.
type Config struct {
	// Namespace prefixes every metric name. Defaults to "stylefront".
	Namespace string

	// Registry receives the collectors. Defaults to a fresh registry so
	// several instances can coexist in tests.
	Registry *prometheus.Registry

	// Buckets are the histogram buckets for durations.
	Buckets []float64
}

// Option configures Metrics.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithRegistry sets the registry the collectors are registered with.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// Metrics implements authstate.Observer and sessionapi.CallObserver.
type Metrics struct {
	registry  *prometheus.Registry
	namespace string

	transitions  *prometheus.CounterVec
	phaseEntered *prometheus.CounterVec
	exchanges    *prometheus.CounterVec
	apiCalls     *prometheus.CounterVec
	apiDuration  *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New(opts ...Option) *Metrics {
	cfg := Config{
		Namespace: "stylefront",
		Buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	factory := promauto.With(cfg.Registry)
	return &Metrics{
		registry:  cfg.Registry,
		namespace: cfg.Namespace,

		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "authstate",
			Name:      "transitions_total",
			Help:      "Auth state transitions by cause",
		}, []string{"cause"}),

		phaseEntered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "authstate",
			Name:      "phase_entered_total",
			Help:      "Transitions that moved a page into a phase",
		}, []string{"phase"}),

		exchanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "authstate",
			Name:      "exchanges_total",
			Help:      "Finished session exchanges by result",
		}, []string{"result"}),

		apiCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "sessionapi",
			Name:      "calls_total",
			Help:      "Backend session calls by operation and outcome",
		}, []string{"op", "outcome"}),

		apiDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "sessionapi",
			Name:      "call_duration_seconds",
			Help:      "Backend session call latency",
			Buckets:   cfg.Buckets,
		}, []string{"op"}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   cfg.Buckets,
		}, []string{"route", "method"}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TrackPages exports the number of tracked browsers and pages. stats is
// called on every scrape.
func (m *Metrics) TrackPages(stats func() (browsers, pages int)) {
	factory := promauto.With(m.registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "browser",
		Name:      "browsers",
		Help:      "Browsers currently tracked",
	}, func() float64 {
		b, _ := stats()
		return float64(b)
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "browser",
		Name:      "pages",
		Help:      "Pages currently open",
	}, func() float64 {
		_, p := stats()
		return float64(p)
	})
}

// Transition records one auth state transition.
func (m *Metrics) Transition(t authstate.Transition) {
	m.transitions.WithLabelValues(string(t.Cause)).Inc()

	if from, to := t.From.Phase(), t.To.Phase(); from != to {
		m.phaseEntered.WithLabelValues(to.String()).Inc()
	}

	switch t.Cause {
	case authstate.CauseExchangeSuccess:
		m.exchanges.WithLabelValues("success").Inc()
	case authstate.CauseExchangeFailure:
		m.exchanges.WithLabelValues("failure").Inc()
	}
}

// ObserveCall records one backend session call.
func (m *Metrics) ObserveCall(op, outcome string, elapsed time.Duration) {
	m.apiCalls.WithLabelValues(op, outcome).Inc()
	m.apiDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency under a fixed route label,
// so path parameters never explode the label space.
func (m *Metrics) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
			m.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
