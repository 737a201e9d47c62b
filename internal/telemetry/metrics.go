package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики движка выполнения.
var (
	// ExecutionsTotal — количество executions по итоговому состоянию.
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Name:      "executions_total",
		Help:      "Number of workflow executions by terminal state.",
	}, []string{"state"})

	// StepsTotal — количество выполненных шагов по действию и статусу.
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Name:      "steps_total",
		Help:      "Number of executed steps by action and status.",
	}, []string{"action", "status"})

	// StepRetriesTotal — количество повторных попыток шагов.
	StepRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Name:      "step_retries_total",
		Help:      "Number of step retry attempts.",
	})

	// HealedResolutionsTotal — количество элементов, разрешённых
	// fallback-локатором.
	HealedResolutionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Name:      "healed_resolutions_total",
		Help:      "Number of elements resolved via fallback locators.",
	})

	// StepDurationSeconds — длительность шагов по действию.
	StepDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wayfinder",
		Name:      "step_duration_seconds",
		Help:      "Step execution duration in seconds.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"action"})

	// ActiveExecutions — количество выполняющихся executions.
	ActiveExecutions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wayfinder",
		Name:      "active_executions",
		Help:      "Number of currently active executions.",
	})
)

// Метрики HTTP API.
var (
	// HTTPRequestsTotal — количество API запросов по методу и статусу.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Name:      "http_requests_total",
		Help:      "Number of API requests by method and status code.",
	}, []string{"method", "status"})

	// HTTPRequestDuration — длительность API запросов по методу.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wayfinder",
		Name:      "http_request_duration_seconds",
		Help:      "API request duration in seconds.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"method"})
)
