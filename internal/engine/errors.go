package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Ошибки валидации workflow.
var (
	// ErrEmptySteps — workflow не содержит шагов.
	ErrEmptySteps = errors.New("workflow has no steps")

	// ErrEmptyStepID — шаг не имеет ID после нормализации.
	ErrEmptyStepID = errors.New("step has empty ID")

	// ErrDuplicateStepID — несколько шагов с одинаковым ID.
	ErrDuplicateStepID = errors.New("duplicate step ID")

	// ErrUnknownStepType — неизвестная категория шага.
	ErrUnknownStepType = errors.New("unknown step type")

	// ErrUnknownAction — действие не поддерживается категорией.
	ErrUnknownAction = errors.New("unknown action for step type")

	// ErrMissingTarget — действию требуется target, а он не задан.
	ErrMissingTarget = errors.New("step requires a target")

	// ErrInvalidDefinition — определение не разобралось из JSON.
	ErrInvalidDefinition = errors.New("invalid workflow definition")
)

// Ошибки состояния выполнения.
var (
	// ErrCheckpointNotFound — checkpoint с таким id не существует.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrUnknownVariable — обращение к необъявленной переменной.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrInvalidTransition — недопустимый переход состояния execution.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidExpression — выражение условия не разобралось.
	ErrInvalidExpression = errors.New("invalid condition expression")
)

// IssueSeverity — важность найденной проблемы валидации.
type IssueSeverity string

// Уровни важности.
const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// ValidationIssue — одна проблема, найденная валидацией.
//
// Валидация исчерпывающая: собираются все проблемы сразу,
// а не первая встреченная — так автор workflow получает
// полную диагностику за один проход.
type ValidationIssue struct {
	// StepID — ID шага (пустой для проблем уровня workflow).
	StepID string `json:"step_id,omitempty"`

	// Field — поле, вызвавшее проблему.
	Field string `json:"field,omitempty"`

	// Message — описание проблемы.
	Message string `json:"message"`

	// Severity — error или warning.
	Severity IssueSeverity `json:"severity"`

	// Err — базовая sentinel ошибка (для errors.Is).
	Err error `json:"-"`
}

// String возвращает человекочитаемое описание проблемы.
func (i ValidationIssue) String() string {
	if i.StepID != "" {
		return fmt.Sprintf("step %s: %s", i.StepID, i.Message)
	}
	return i.Message
}

// ValidationError — итоговая ошибка валидации workflow.
// Несёт полный список проблем уровня error.
type ValidationError struct {
	Issues []ValidationIssue
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return "workflow validation failed: " + e.Issues[0].String()
	}
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("workflow validation failed (%d issues): %s",
		len(e.Issues), strings.Join(parts, "; "))
}

// Unwrap позволяет errors.Is находить базовые sentinel ошибки.
func (e *ValidationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Issues))
	for _, issue := range e.Issues {
		if issue.Err != nil {
			errs = append(errs, issue.Err)
		}
	}
	return errs
}

// StepExecutionError — ошибка выполнения шага.
//
// Несёт исходную причину, ID шага и затраченное время —
// оркестратор использует её для классификации retry,
// API и логи — для диагностики.
type StepExecutionError struct {
	// StepID — идентификатор упавшего шага.
	StepID string

	// Action — действие шага.
	Action string

	// Elapsed — время, затраченное до ошибки.
	Elapsed time.Duration

	// Err — исходная причина.
	Err error
}

// Error реализует интерфейс error.
func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %s (%s) failed after %s: %v",
		e.StepID, e.Action, e.Elapsed.Round(time.Millisecond), e.Err)
}

// Unwrap возвращает исходную причину.
func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

// NewStepExecutionError создаёт StepExecutionError.
func NewStepExecutionError(stepID, action string, elapsed time.Duration, err error) *StepExecutionError {
	return &StepExecutionError{
		StepID:  stepID,
		Action:  action,
		Elapsed: elapsed,
		Err:     err,
	}
}
