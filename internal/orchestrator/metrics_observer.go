package orchestrator

import (
	"context"

	"github.com/shaiso/Wayfinder/internal/telemetry"
)

// MetricsObserver обновляет Prometheus метрики по событиям движка.
type MetricsObserver struct{}

// NewMetricsObserver создаёт MetricsObserver.
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// HandleEvent реализует Observer.
func (m *MetricsObserver) HandleEvent(_ context.Context, event Event) {
	switch event.Type {
	case EventWorkflowStarted:
		telemetry.ActiveExecutions.Inc()

	case EventWorkflowCompleted:
		telemetry.ActiveExecutions.Dec()
		telemetry.ExecutionsTotal.WithLabelValues("completed").Inc()

	case EventWorkflowFailed:
		telemetry.ActiveExecutions.Dec()
		telemetry.ExecutionsTotal.WithLabelValues("failed").Inc()

	case EventWorkflowCancelled:
		telemetry.ActiveExecutions.Dec()
		telemetry.ExecutionsTotal.WithLabelValues("cancelled").Inc()

	case EventStepCompleted:
		action := eventAction(event)
		telemetry.StepsTotal.WithLabelValues(action, "completed").Inc()
		if ms, ok := event.Fields["elapsed_ms"].(int64); ok {
			telemetry.StepDurationSeconds.WithLabelValues(action).Observe(float64(ms) / 1000)
		}
		if healed, ok := event.Fields["healed"].(bool); ok && healed {
			telemetry.HealedResolutionsTotal.Inc()
		}

	case EventStepFailed:
		telemetry.StepsTotal.WithLabelValues(eventAction(event), "failed").Inc()

	case EventStepRetrying:
		telemetry.StepRetriesTotal.Inc()
	}
}

func eventAction(event Event) string {
	if action, ok := event.Fields["action"].(string); ok {
		return action
	}
	return "unknown"
}
