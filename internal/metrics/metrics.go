// Package metrics exposes Prometheus metrics for qualification runs and the
// HTTP server.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/lead-qualifier/internal/model"
)

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithRegistry sets the registry metrics are registered on and served from.
func WithRegistry(r *prometheus.Registry) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// WithProcessCollectors adds the Go runtime and process collectors.
func WithProcessCollectors() Option {
	return func(m *Manager) { m.process = true }
}

// Manager owns the qualifier's metrics. A nil *Manager is valid and records
// nothing.
type Manager struct {
	namespace string
	registry  *prometheus.Registry
	process   bool

	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	runCost      prometheus.Counter
	lastRun      prometheus.Gauge
	cases        *prometheus.CounterVec
	ops          *prometheus.CounterVec
	feedback     *prometheus.CounterVec
	calibrations *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates a Manager on a fresh registry unless one is given.
func New(opts ...Option) *Manager {
	m := &Manager{
		namespace: "leads",
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.init()
	return m
}

func (m *Manager) init() {
	auto := promauto.With(m.registry)
	if m.process {
		m.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	m.runs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "runs_total",
		Help:      "Qualification runs by mode and final status.",
	}, []string{"mode", "status"})

	m.runDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of qualification runs.",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
	})

	m.runCost = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "run_cost_usd_total",
		Help:      "Estimated collaborator spend across runs.",
	})

	m.lastRun = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last run finished.",
	})

	m.cases = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "case_files_total",
		Help:      "Case files written by status and drop reason.",
	}, []string{"status", "reason"})

	m.ops = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "ops_total",
		Help:      "Budgeted collaborator operations by kind.",
	}, []string{"kind"})

	m.feedback = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "feedback_total",
		Help:      "Grades received by grade.",
	}, []string{"grade"})

	m.calibrations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "calibration_changes_total",
		Help:      "Prior adjustments by source type and action.",
	}, []string{"source_type", "action"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"})

	m.httpDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRun records a finished run.
func (m *Manager) ObserveRun(run *model.Run) {
	if m == nil || run == nil {
		return
	}
	m.runs.WithLabelValues(string(run.Mode), string(run.Status)).Inc()
	m.runCost.Add(run.CostUSD)
	for kind, n := range run.OpsByKind {
		m.ops.WithLabelValues(kind).Add(float64(n))
	}
	end := time.Now()
	if run.CompletedAt != nil {
		end = *run.CompletedAt
	}
	m.runDuration.Observe(end.Sub(run.StartedAt).Seconds())
	m.lastRun.Set(float64(end.Unix()))
}

// ObserveCases records written case files.
func (m *Manager) ObserveCases(cfs []model.CaseFile) {
	if m == nil {
		return
	}
	for _, cf := range cfs {
		m.cases.WithLabelValues(string(cf.Status), reasonLabel(cf.DropReason)).Inc()
	}
}

// ObserveFeedback records a received grade.
func (m *Manager) ObserveFeedback(g model.Grade) {
	if m == nil {
		return
	}
	m.feedback.WithLabelValues(string(g)).Inc()
}

// ObserveCalibration records one prior adjustment.
func (m *Manager) ObserveCalibration(sourceType, action string) {
	if m == nil {
		return
	}
	m.calibrations.WithLabelValues(sourceType, action).Inc()
}

// ObserveHTTP records one served request.
func (m *Manager) ObserveHTTP(route, method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// reasonLabel strips the free-text suffix of low-quality reasons so the
// label set stays bounded.
func reasonLabel(reason string) string {
	head, _, _ := strings.Cut(reason, ":")
	return head
}
