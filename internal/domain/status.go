package domain

// ExecutionState — состояние выполнения execution.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ FAILED
//	        RUNNING ⇄ PAUSED
//	        RUNNING, PAUSED → CANCELLED
type ExecutionState string

const (
	// StatePending — execution создан, но ещё не начал выполняться.
	StatePending ExecutionState = "PENDING"

	// StateRunning — execution в процессе выполнения.
	StateRunning ExecutionState = "RUNNING"

	// StatePaused — выполнение приостановлено; может быть возобновлено.
	StatePaused ExecutionState = "PAUSED"

	// StateCancelled — выполнение остановлено пользователем.
	StateCancelled ExecutionState = "CANCELLED"

	// StateCompleted — все шаги выполнены успешно.
	StateCompleted ExecutionState = "COMPLETED"

	// StateFailed — выполнение прервано ошибкой.
	StateFailed ExecutionState = "FAILED"
)

// IsTerminal возвращает true, если состояние финальное.
func (s ExecutionState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// allowedTransitions — допустимые переходы состояний.
// Состояние меняется только внутри цикла оркестратора
// и явных Pause/Resume/Stop — любой другой переход отклоняется.
var allowedTransitions = map[ExecutionState][]ExecutionState{
	StatePending: {StateRunning, StateCancelled},
	StateRunning: {StatePaused, StateCancelled, StateCompleted, StateFailed},
	StatePaused:  {StateRunning, StateCancelled},
}

// CanTransitionTo проверяет допустимость перехода в состояние next.
func (s ExecutionState) CanTransitionTo(next ExecutionState) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
