package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType — тип события жизненного цикла execution.
type EventType string

// События жизненного цикла.
const (
	EventWorkflowStarted   EventType = "workflow.started"
	EventWorkflowPaused    EventType = "workflow.paused"
	EventWorkflowResumed   EventType = "workflow.resumed"
	EventWorkflowCompleted EventType = "workflow.completed"
	EventWorkflowFailed    EventType = "workflow.failed"
	EventWorkflowCancelled EventType = "workflow.cancelled"

	EventStepStarted   EventType = "step.started"
	EventStepCompleted EventType = "step.completed"
	EventStepFailed    EventType = "step.failed"
	EventStepRetrying  EventType = "step.retrying"

	EventCheckpointCreated EventType = "checkpoint.created"
)

// Event — событие жизненного цикла execution.
type Event struct {
	// Type — тип события.
	Type EventType `json:"type"`

	// ExecutionID — идентификатор execution.
	ExecutionID uuid.UUID `json:"execution_id"`

	// WorkflowID — идентификатор workflow.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// StepID — идентификатор шага (для step.* событий).
	StepID string `json:"step_id,omitempty"`

	// At — время события.
	At time.Time `json:"at"`

	// Fields — дополнительные поля события.
	Fields map[string]any `json:"fields,omitempty"`
}

// Observer получает события жизненного цикла.
//
// Вызывается синхронно из цикла выполнения: реализация обязана
// возвращаться быстро, долгую доставку выносить в свою горутину.
// Ошибка наблюдателя не прерывает выполнение.
type Observer interface {
	HandleEvent(ctx context.Context, event Event)
}

// ObserverFunc адаптирует функцию к интерфейсу Observer.
type ObserverFunc func(ctx context.Context, event Event)

// HandleEvent вызывает функцию.
func (f ObserverFunc) HandleEvent(ctx context.Context, event Event) {
	f(ctx, event)
}

// MultiObserver рассылает событие нескольким наблюдателям по порядку.
type MultiObserver []Observer

// HandleEvent рассылает событие всем наблюдателям.
func (m MultiObserver) HandleEvent(ctx context.Context, event Event) {
	for _, o := range m {
		if o != nil {
			o.HandleEvent(ctx, event)
		}
	}
}

// NopObserver игнорирует все события.
type NopObserver struct{}

// HandleEvent ничего не делает.
func (NopObserver) HandleEvent(context.Context, Event) {}
