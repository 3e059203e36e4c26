package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "riskreview"

// Metrics holds every Prometheus collector the service exports. All methods
// are nil-safe so components can run without metrics wired.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	jobsFinished  *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	workersBusy   prometheus.Gauge
	chunkOutcomes *prometheus.CounterVec
	chunkLatency  prometheus.Histogram
	chunkRetries  prometheus.Counter
	risksEmitted  *prometheus.CounterVec
	risksDeduped  prometheus.Counter

	modelCalls   *prometheus.CounterVec
	modelLatency *prometheus.HistogramVec

	submissions *prometheus.CounterVec
	feedback    *prometheus.CounterVec
}

func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{registry: registry}

	m.apiRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})
	m.apiLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	m.apiInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "http_inflight_requests",
		Help: "Requests currently being served.",
	})

	m.jobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "review_jobs_finished_total",
		Help: "Review jobs reaching a terminal state, by status and error kind.",
	}, []string{"status", "error_kind"})
	m.jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "review_job_duration_seconds",
		Help:    "Wall-clock time from claim to terminal state.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"status"})
	m.workersBusy = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "review_workers_busy",
		Help: "Worker goroutines currently running a job.",
	})
	m.chunkOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "review_chunk_outcomes_total",
		Help: "Per-chunk extraction outcomes after retries.",
	}, []string{"outcome"})
	m.chunkLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "review_chunk_duration_seconds",
		Help:    "Time spent on one chunk including retrieval and retries.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})
	m.chunkRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "review_chunk_retries_total",
		Help: "Extraction attempts beyond the first.",
	})
	m.risksEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "review_risks_emitted_total",
		Help: "Persisted risks by severity.",
	}, []string{"level"})
	m.risksDeduped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "review_risks_deduplicated_total",
		Help: "Candidate risks dropped as near-duplicates of earlier findings.",
	})

	m.modelCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "model_calls_total",
		Help: "Calls to the embedding and reasoning model endpoints.",
	}, []string{"operation", "status"})
	m.modelLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "model_call_duration_seconds",
		Help:    "Model call latency including client retries.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"operation"})

	m.submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "review_submissions_total",
		Help: "Submission attempts by outcome.",
	}, []string{"outcome"})
	m.feedback = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "risk_feedback_total",
		Help: "Administrator verdicts recorded.",
	}, []string{"admin_status"})

	for _, c := range []prometheus.Collector{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.jobsFinished, m.jobDuration, m.workersBusy,
		m.chunkOutcomes, m.chunkLatency, m.chunkRetries,
		m.risksEmitted, m.risksDeduped,
		m.modelCalls, m.modelLatency,
		m.submissions, m.feedback,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RegisterRuntimeCollectors adds Go runtime and process collectors.
func (m *Metrics) RegisterRuntimeCollectors() error {
	if m == nil {
		return nil
	}
	if err := m.registry.Register(collectors.NewGoCollector()); err != nil {
		return err
	}
	return m.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ApiInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) ApiInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

func (m *Metrics) ObserveAPI(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ObserveJobFinished(status, errorKind string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(status, errorKind).Inc()
	if d > 0 {
		m.jobDuration.WithLabelValues(status).Observe(d.Seconds())
	}
}

func (m *Metrics) WorkerBusy(delta float64) {
	if m != nil {
		m.workersBusy.Add(delta)
	}
}

func (m *Metrics) ObserveChunk(outcome string, attempts int, d time.Duration) {
	if m == nil {
		return
	}
	m.chunkOutcomes.WithLabelValues(outcome).Inc()
	m.chunkLatency.Observe(d.Seconds())
	if attempts > 1 {
		m.chunkRetries.Add(float64(attempts - 1))
	}
}

func (m *Metrics) ObserveRisks(byLevel map[string]int, deduped int) {
	if m == nil {
		return
	}
	for level, n := range byLevel {
		m.risksEmitted.WithLabelValues(level).Add(float64(n))
	}
	if deduped > 0 {
		m.risksDeduped.Add(float64(deduped))
	}
}

// ObserveModelCall satisfies openai.Observer.
func (m *Metrics) ObserveModelCall(operation, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(operation, status).Inc()
	m.modelLatency.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) ObserveSubmission(outcome string) {
	if m != nil {
		m.submissions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveFeedback(adminStatus string) {
	if m != nil {
		m.feedback.WithLabelValues(adminStatus).Inc()
	}
}
