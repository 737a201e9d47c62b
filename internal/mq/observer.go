package mq

import (
	"context"
	"log/slog"

	"github.com/shaiso/Wayfinder/internal/orchestrator"
)

// defaultEventBuffer — размер буфера событий наблюдателя.
const defaultEventBuffer = 256

// EventObserver публикует события движка в RabbitMQ.
//
// Реализует orchestrator.Observer. Вызывается синхронно из цикла
// выполнения, поэтому события буферизуются и публикуются отдельной
// горутиной; при переполнении буфера событие отбрасывается с warn.
// Терминальные workflow события дополнительно публикуются как
// execution.finished для scheduler'а.
type EventObserver struct {
	publisher *Publisher
	logger    *slog.Logger
	events    chan orchestrator.Event
}

// NewEventObserver создаёт EventObserver и запускает горутину доставки.
// Останавливается отменой ctx.
func NewEventObserver(ctx context.Context, publisher *Publisher, logger *slog.Logger) *EventObserver {
	o := &EventObserver{
		publisher: publisher,
		logger:    logger,
		events:    make(chan orchestrator.Event, defaultEventBuffer),
	}

	go o.deliver(ctx)

	return o
}

// HandleEvent реализует orchestrator.Observer.
func (o *EventObserver) HandleEvent(_ context.Context, event orchestrator.Event) {
	select {
	case o.events <- event:
	default:
		o.logger.Warn("event buffer full, dropping event",
			"type", event.Type,
			"execution_id", event.ExecutionID,
		)
	}
}

// deliver — горутина доставки событий.
func (o *EventObserver) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-o.events:
			o.publish(ctx, event)
		}
	}
}

// publish публикует одно событие.
func (o *EventObserver) publish(ctx context.Context, event orchestrator.Event) {
	if err := o.publisher.PublishLifecycleEvent(ctx, string(event.Type), event); err != nil {
		o.logger.Warn("publish lifecycle event failed",
			"type", event.Type,
			"execution_id", event.ExecutionID,
			"error", err,
		)
	}

	state := terminalState(event.Type)
	if state == "" {
		return
	}

	payload := ExecutionFinishedPayload{
		ExecutionID: event.ExecutionID,
		WorkflowID:  event.WorkflowID,
		State:       state,
	}
	if errMsg, ok := event.Fields["error"].(string); ok {
		payload.Error = errMsg
	}
	if steps, ok := event.Fields["steps_executed"].(int); ok {
		payload.StepsExecuted = steps
	}

	if err := o.publisher.PublishExecutionFinished(ctx, payload); err != nil {
		o.logger.Warn("publish execution finished failed",
			"execution_id", event.ExecutionID,
			"error", err,
		)
	}
}

// terminalState отображает терминальные события на состояние execution.
func terminalState(eventType orchestrator.EventType) string {
	switch eventType {
	case orchestrator.EventWorkflowCompleted:
		return "COMPLETED"
	case orchestrator.EventWorkflowFailed:
		return "FAILED"
	case orchestrator.EventWorkflowCancelled:
		return "CANCELLED"
	}
	return ""
}
