package orchestrator

import "errors"

// Ошибки движка выполнения.
var (
	// ErrExecutionNotFound — execution не найден среди активных.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionAlreadyActive — execution с таким ID уже выполняется.
	ErrExecutionAlreadyActive = errors.New("execution already active")

	// ErrExecutionNotPaused — операция требует состояния PAUSED.
	ErrExecutionNotPaused = errors.New("execution is not paused")

	// ErrExecutionCancelled — выполнение отменено.
	ErrExecutionCancelled = errors.New("execution cancelled")

	// ErrWorkflowInvalid — workflow не прошёл валидацию.
	ErrWorkflowInvalid = errors.New("workflow validation failed")

	// ErrMissingDriver — для выполнения не передан драйвер.
	ErrMissingDriver = errors.New("execution requires a driver")
)
