// Package metrics exposes Prometheus collectors for executions and queue
// processing. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/programme-lv/sandbox/api"
)

const namespace = "sandbox"

// Job outcomes.
const (
	JobCompleted = "completed"
	JobRetried   = "retried"
	JobFailed    = "failed"
	JobInvalid   = "invalid"
	JobDuplicate = "duplicate"
)

type Metrics struct {
	executions     *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	memory         *prometheus.HistogramVec
	jobs           *prometheus.CounterVec
	activeWorkers  prometheus.Gauge
	validationErrs prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		executions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Total number of code executions",
		}, []string{"language", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_ms",
			Help:      "Execution duration in milliseconds",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"language"}),
		memory: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memory_usage_kb",
			Help:      "Peak memory usage per execution in KiB",
			Buckets:   []float64{1024, 4096, 16384, 65536, 131072, 262144, 524288},
		}, []string{"language"}),
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_jobs_total",
			Help:      "Queue deliveries by processing outcome",
		}, []string{"outcome"}),
		activeWorkers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workers",
			Help:      "Number of workers currently processing jobs",
		}),
		validationErrs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_errors_total",
			Help:      "Requests rejected before execution",
		}),
	}
}

// RegisterActiveBoxes exports the number of live scratch directories.
func RegisterActiveBoxes(reg prometheus.Registerer, active func() int64) {
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_boxes",
		Help:      "Scratch directories currently in use",
	}, func() float64 { return float64(active()) })
}

func (m *Metrics) ObserveExecution(language string, status api.Status, elapsed time.Duration, memKiB int64) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(language, string(status)).Inc()
	m.duration.WithLabelValues(language).Observe(float64(elapsed.Milliseconds()))
	if memKiB > 0 {
		m.memory.WithLabelValues(language).Observe(float64(memKiB))
	}
}

func (m *Metrics) ObserveJob(outcome string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ValidationError() {
	if m == nil {
		return
	}
	m.validationErrs.Inc()
}

// WorkerBusy marks one worker busy and returns the func that marks it idle.
func (m *Metrics) WorkerBusy() func() {
	if m == nil {
		return func() {}
	}
	m.activeWorkers.Inc()
	return m.activeWorkers.Dec
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
