package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Task outcomes recorded by the worker pool.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomePanic = "panic"
)

// Metrics holds every collector exported by the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	// RequestTotal counts HTTP requests by method, path and status.
	RequestTotal *prometheus.CounterVec
	// RequestDuration is the latency of HTTP requests.
	RequestDuration *prometheus.HistogramVec

	TasksSubmitted prometheus.Counter
	TasksCompleted *prometheus.CounterVec
	TaskDuration   prometheus.Histogram
	QueueDepth     prometheus.Gauge
	BusyWorkers    prometheus.Gauge

	// EngineCalls counts engine invocations by operation kind and status.
	EngineCalls    *prometheus.CounterVec
	EngineDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	// engine calls run for seconds, not milliseconds
	slowBuckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

	return &Metrics{
		Registry: reg,
		RequestTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stackrabbit_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stackrabbit_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: slowBuckets,
			},
			[]string{"method", "path"},
		),
		TasksSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "stackrabbit_pool_tasks_submitted_total",
			Help: "Tasks accepted by the worker pool",
		}),
		TasksCompleted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stackrabbit_pool_tasks_completed_total",
				Help: "Tasks finished by the worker pool, by outcome",
			},
			[]string{"outcome"},
		),
		TaskDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stackrabbit_pool_task_duration_seconds",
			Help:    "Time a task spent executing on a worker",
			Buckets: slowBuckets,
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "stackrabbit_pool_queue_depth",
			Help: "Tasks waiting for a worker",
		}),
		BusyWorkers: f.NewGauge(prometheus.GaugeOpts{
			Name: "stackrabbit_pool_busy_workers",
			Help: "Workers currently executing a task",
		}),
		EngineCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stackrabbit_engine_calls_total",
				Help: "Engine invocations by operation kind and status",
			},
			[]string{"kind", "status"},
		),
		EngineDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stackrabbit_engine_call_duration_seconds",
				Help:    "Engine invocation latency in seconds",
				Buckets: slowBuckets,
			},
			[]string{"kind"},
		),
	}
}

func (m *Metrics) ObserveRequest(method, path, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.RequestTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(dur.Seconds())
}

// TaskSubmitted runs before the task becomes visible to workers, so the
// depth gauge is raised before TaskStarted lowers it.
func (m *Metrics) TaskSubmitted() {
	if m == nil {
		return
	}
	m.TasksSubmitted.Inc()
	m.QueueDepth.Inc()
}

func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.BusyWorkers.Inc()
	m.QueueDepth.Dec()
}

func (m *Metrics) TaskFinished(outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.BusyWorkers.Dec()
	m.TasksCompleted.WithLabelValues(outcome).Inc()
	m.TaskDuration.Observe(dur.Seconds())
}

func (m *Metrics) ObserveEngine(kind, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.EngineCalls.WithLabelValues(kind, status).Inc()
	m.EngineDuration.WithLabelValues(kind).Observe(dur.Seconds())
}
