package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "predictor"

// Metrics holds the engine's Prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	CacheRequests    *prometheus.CounterVec
	CacheEvictions   prometheus.Counter
	Predictions      *prometheus.CounterVec
	ValueBets        *prometheus.CounterVec
	SourceFallbacks  *prometheus.CounterVec
	TrainingDuration *prometheus.HistogramVec
	TrainingFailures *prometheus.CounterVec
	ModelsLoaded     prometheus.Gauge
	SchemaMismatches *prometheus.CounterVec
	AlertsSent       prometheus.Counter
}

// New creates and registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Result cache lookups by result (hit, miss, shared).",
		}, []string{"result"}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Expired result cache entries removed.",
		}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions computed by target.",
		}, []string{"target"}),
		ValueBets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "value_bets_total",
			Help:      "Value bets emitted by target and tier.",
		}, []string{"target", "tier"}),
		SourceFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fallbacks_total",
			Help:      "Live provider calls answered by synthetic data.",
		}, []string{"op"}),
		TrainingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_duration_seconds",
			Help:      "Model fit duration by target.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"}),
		TrainingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_failures_total",
			Help:      "Training runs that did not produce a model, by target and reason.",
		}, []string{"target", "reason"}),
		ModelsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "models_loaded",
			Help:      "Number of targets with an installed model.",
		}),
		SchemaMismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_mismatches_total",
			Help:      "Inference attempts rejected because of a feature schema mismatch.",
		}, []string{"target"}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_sent_total",
			Help:      "Value bet alerts delivered to the notifier.",
		}),
	}

	reg.MustRegister(
		m.CacheRequests,
		m.CacheEvictions,
		m.Predictions,
		m.ValueBets,
		m.SourceFallbacks,
		m.TrainingDuration,
		m.TrainingFailures,
		m.ModelsLoaded,
		m.SchemaMismatches,
		m.AlertsSent,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
