package domain

import (
	"time"

	"github.com/google/uuid"
)

// Execution — запись о запуске workflow.
//
// Execution создаётся когда:
//   - Пользователь запускает workflow вручную (через API/CLI)
//   - Scheduler создаёт запуск по расписанию
//
// Живое состояние запуска (переменные, прогресс, checkpoints) находится
// в engine.ExecutionContext; Execution — это персистентная проекция
// для хранения и выдачи через API.
type Execution struct {
	// ID — уникальный идентификатор execution.
	ID uuid.UUID `json:"id"`

	// WorkflowID — ссылка на выполняемый workflow.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// Version — версия workflow, которая выполняется.
	Version int `json:"version"`

	// State — текущее состояние выполнения.
	State ExecutionState `json:"state"`

	// Inputs — начальные значения переменных, переданные при запуске.
	Inputs map[string]Value `json:"inputs,omitempty"`

	// ContextSnapshot — сериализованный ExecutionContext (JSON).
	// Обновляется при паузе, checkpoint'ах и завершении.
	ContextSnapshot []byte `json:"-"`

	// Error — текст ошибки, если execution завершился с FAILED.
	Error string `json:"error,omitempty"`

	// IdempotencyKey — ключ идемпотентности для scheduled запусков.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания execution.
	CreatedAt time.Time `json:"created_at"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если execution ещё не завершён.
func (e *Execution) Duration() time.Duration {
	if e.StartedAt == nil || e.FinishedAt == nil {
		return 0
	}
	return e.FinishedAt.Sub(*e.StartedAt)
}

// IsFinished возвращает true, если execution завершён.
func (e *Execution) IsFinished() bool {
	return e.State.IsTerminal()
}

// MarkRunning переводит execution в состояние RUNNING.
func (e *Execution) MarkRunning() {
	now := time.Now()
	e.State = StateRunning
	if e.StartedAt == nil {
		e.StartedAt = &now
	}
}

// MarkCompleted переводит execution в состояние COMPLETED.
func (e *Execution) MarkCompleted() {
	now := time.Now()
	e.State = StateCompleted
	e.FinishedAt = &now
}

// MarkFailed переводит execution в состояние FAILED с ошибкой.
func (e *Execution) MarkFailed(err string) {
	now := time.Now()
	e.State = StateFailed
	e.FinishedAt = &now
	e.Error = err
}

// MarkCancelled переводит execution в состояние CANCELLED.
func (e *Execution) MarkCancelled() {
	now := time.Now()
	e.State = StateCancelled
	e.FinishedAt = &now
}

// ControlSignal — сигнал управления потоком, возвращаемый вложенным шагом.
type ControlSignal string

// Сигналы управления потоком.
const (
	// SignalNone — обычное завершение шага.
	SignalNone ControlSignal = ""

	// SignalBreak — немедленно прервать ближайший loop.
	SignalBreak ControlSignal = "break"

	// SignalContinue — перейти к следующей итерации ближайшего loop.
	SignalContinue ControlSignal = "continue"

	// SignalReturn — завершить выполнение workflow досрочно.
	SignalReturn ControlSignal = "return"
)

// StepResult — результат выполнения одного шага.
type StepResult struct {
	// StepID — идентификатор шага.
	StepID string `json:"step_id"`

	// Action — выполненное действие.
	Action string `json:"action"`

	// Target — цель действия (после подстановки переменных).
	Target string `json:"target,omitempty"`

	// Success — признак успешного выполнения.
	Success bool `json:"success"`

	// Result — полезный результат шага (извлечённые данные,
	// итог валидации и т.д.).
	Result any `json:"result,omitempty"`

	// Error — текст ошибки для шагов, записанных через continue_on_error.
	Error string `json:"error,omitempty"`

	// Healed — true, если цель была разрешена fallback-локатором.
	Healed bool `json:"healed,omitempty"`

	// Signal — сигнал управления потоком (break/continue/return).
	Signal ControlSignal `json:"signal,omitempty"`

	// ExecutionTimeMs — время выполнения шага в миллисекундах.
	ExecutionTimeMs int64 `json:"execution_time_ms"`

	// Timestamp — время завершения шага.
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionError — запись об ошибке для post-mortem диагностики.
//
// Все ошибки шагов (включая поглощённые retry и continue_on_error)
// накапливаются в ExecutionContext.Errors.
type ExecutionError struct {
	// StepID — идентификатор шага, где произошла ошибка.
	StepID string `json:"step_id"`

	// Type — класс ошибки: validation, step_execution,
	// element_not_resolvable, checkpoint.
	Type string `json:"type"`

	// Message — текст ошибки.
	Message string `json:"message"`

	// Attempt — номер попытки, на которой произошла ошибка (с 1).
	Attempt int `json:"attempt,omitempty"`

	// Timestamp — время возникновения ошибки.
	Timestamp time.Time `json:"timestamp"`
}
