package manager

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	modelLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ollamad",
			Subsystem: "model",
			Name:      "loads_total",
			Help:      "Model loads by outcome",
		},
		[]string{"result"},
	)

	modelLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ollamad",
			Subsystem: "model",
			Name:      "load_duration_seconds",
			Help:      "Time spent loading model weights",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	modelUnloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ollamad",
			Subsystem: "model",
			Name:      "unloads_total",
			Help:      "Model unloads by reason (unload, evicted, idle, removed, shutdown)",
		},
		[]string{"reason"},
	)

	modelsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ollamad",
			Subsystem: "model",
			Name:      "loaded",
			Help:      "Currently loaded model instances",
		},
	)

	catalogModels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ollamad",
			Subsystem: "catalog",
			Name:      "models",
			Help:      "Models known to the registry after the last reconcile",
		},
	)

	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ollamad",
			Subsystem: "generation",
			Name:      "total",
			Help:      "Generations by kind (generate, chat) and done reason",
		},
		[]string{"kind", "done_reason"},
	)

	generatedTokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ollamad",
			Subsystem: "generation",
			Name:      "tokens_total",
			Help:      "Tokens sampled across all generations",
		},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ollamad",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of generations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		modelLoadsTotal, modelLoadDuration, modelUnloadsTotal, modelsLoaded, catalogModels,
		generationsTotal, generatedTokensTotal, generationDuration,
	)
}
