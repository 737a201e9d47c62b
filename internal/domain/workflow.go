package domain

import (
	"time"

	"github.com/google/uuid"
)

// StepType — категория шага workflow.
type StepType string

// Поддерживаемые категории шагов.
const (
	// StepTypeNavigation — навигация по страницам (goto, back, forward, refresh, close).
	StepTypeNavigation StepType = "navigation"

	// StepTypeInteraction — взаимодействие с элементами (click, type, select, ...).
	StepTypeInteraction StepType = "interaction"

	// StepTypeExtraction — извлечение данных со страницы (getText, getAttribute, ...).
	StepTypeExtraction StepType = "extraction"

	// StepTypeValidation — проверки состояния страницы (checkExists, checkText, ...).
	StepTypeValidation StepType = "validation"

	// StepTypeControl — управление потоком выполнения (if, loop, parallel, ...).
	StepTypeControl StepType = "control"

	// StepTypeVariable — операции над переменными (set, increment, append, delete).
	StepTypeVariable StepType = "variable"

	// StepTypeWait — явные ожидания (duration, selector, url, loadState).
	StepTypeWait StepType = "wait"
)

// Workflow — определение рабочего процесса.
//
// Workflow — это "сценарий" автоматизации: упорядоченный список шагов,
// объявленные переменные и настройки выполнения.
// После успешного парсинга определение считается неизменяемым —
// каждый запуск (Execution) работает со своей копией состояния.
type Workflow struct {
	// ID — уникальный идентификатор workflow.
	ID uuid.UUID `json:"id"`

	// Name — человекочитаемое имя workflow.
	Name string `json:"name"`

	// Description — описание назначения workflow.
	Description string `json:"description,omitempty"`

	// Steps — упорядоченный список шагов верхнего уровня.
	Steps []Step `json:"steps"`

	// Variables — объявленные переменные и их начальные значения.
	Variables map[string]Value `json:"variables,omitempty"`

	// Settings — настройки выполнения по умолчанию.
	Settings Settings `json:"settings"`

	// CreatedAt — время создания определения.
	CreatedAt time.Time `json:"created_at"`
}

// Settings — настройки выполнения workflow.
type Settings struct {
	// TimeoutMs — таймаут шага по умолчанию в миллисекундах.
	TimeoutMs int `json:"timeout_ms,omitempty"`

	// RetryAttempts — количество повторных попыток по умолчанию.
	RetryAttempts int `json:"retry_attempts,omitempty"`

	// ContinueOnError — продолжать ли выполнение после ошибки шага
	// (если сам шаг не переопределяет это поведение).
	ContinueOnError bool `json:"continue_on_error,omitempty"`

	// MaxLoopIterations — жёсткий лимит итераций для loop шагов.
	MaxLoopIterations int `json:"max_loop_iterations,omitempty"`

	// MaxConcurrency — лимит параллельности для parallel шагов.
	MaxConcurrency int `json:"max_concurrency,omitempty"`
}

// Step — определение шага в workflow.
type Step struct {
	// ID — уникальный идентификатор шага в рамках workflow.
	// Если не задан, парсер присваивает "step_<n>".
	ID string `json:"id"`

	// Type — категория шага.
	Type StepType `json:"type"`

	// Action — конкретное действие внутри категории (goto, click, getText, ...).
	Action string `json:"action"`

	// Target — локатор элемента или URL (в зависимости от категории).
	// Поддерживает подстановку переменных вида {{name}}.
	Target string `json:"target,omitempty"`

	// Value — значение для действия (текст для type, ожидаемое значение
	// для validation, значение переменной и т.д.).
	Value any `json:"value,omitempty"`

	// TimeoutMs — таймаут шага в миллисекундах.
	// Переопределяет Settings.TimeoutMs.
	TimeoutMs int `json:"timeout_ms,omitempty"`

	// Retry — политика повторных попыток для этого шага.
	Retry *RetryOptions `json:"retry,omitempty"`

	// Condition — условие выполнения (для control шагов if/loop
	// и validation checkCondition).
	Condition *Condition `json:"condition,omitempty"`

	// ContinueOnError — при ошибке записать её и продолжить выполнение.
	ContinueOnError bool `json:"continue_on_error,omitempty"`

	// StoreAs — имя переменной для сохранения результата шага.
	StoreAs string `json:"store_as,omitempty"`

	// Options — дополнительная конфигурация, зависящая от категории:
	// для navigation: wait_until, wait_for;
	// for interaction: hints (описание элемента), typing_delay_ms, defer_change;
	// для extraction: attribute, transform (пайплайн пост-обработки);
	// для control: loop_type, count, items, iteration_variable, max_concurrency,
	// delay_ms, min_delay_ms, max_delay_ms.
	Options map[string]any `json:"options,omitempty"`

	// Then — вложенные шаги ветки "then" (только для control if).
	Then []Step `json:"then,omitempty"`

	// Else — вложенные шаги ветки "else" (только для control if).
	Else []Step `json:"else,omitempty"`

	// Body — тело цикла или список подшагов parallel (control loop/parallel).
	Body []Step `json:"body,omitempty"`
}

// HasNestedSteps возвращает true, если шаг содержит вложенные шаги.
func (s *Step) HasNestedSteps() bool {
	return len(s.Then) > 0 || len(s.Else) > 0 || len(s.Body) > 0
}

// EffectiveTimeout возвращает таймаут шага с учётом настроек workflow.
func (s *Step) EffectiveTimeout(settings Settings) time.Duration {
	if s.TimeoutMs > 0 {
		return time.Duration(s.TimeoutMs) * time.Millisecond
	}
	if settings.TimeoutMs > 0 {
		return time.Duration(settings.TimeoutMs) * time.Millisecond
	}
	return 30 * time.Second
}

// RetryOptions — политика повторных попыток шага.
type RetryOptions struct {
	// MaxRetries — максимальное количество повторных попыток
	// (не считая первую).
	MaxRetries int `json:"max_retries,omitempty"`

	// RetryDelayMs — начальная задержка перед повтором в миллисекундах.
	RetryDelayMs int `json:"retry_delay_ms,omitempty"`

	// Backoff — стратегия задержки: "fixed" (по умолчанию), "exponential".
	Backoff string `json:"backoff,omitempty"`

	// MaxDelayMs — максимальная задержка в миллисекундах.
	MaxDelayMs int `json:"max_delay_ms,omitempty"`
}

// Condition — декларативное условие для if/loop/checkCondition.
//
// Поддерживаемые формы (проверяются в этом порядке):
//   - Literal — фиксированное булево значение
//   - Expression — выражение над переменными ("attempts < 3 && !done"),
//     вычисляется ограниченным evaluator'ом без выполнения произвольного кода
//   - Variable + Operator + Value — структурное сравнение
//   - Variable — истинность переменной
type Condition struct {
	// Literal — фиксированное булево значение.
	Literal *bool `json:"literal,omitempty"`

	// Variable — имя переменной.
	Variable string `json:"variable,omitempty"`

	// Operator — оператор сравнения: equals, notEquals, contains, startsWith,
	// endsWith, regex, greaterThan, lessThan.
	Operator string `json:"operator,omitempty"`

	// Value — значение для сравнения.
	Value any `json:"value,omitempty"`

	// Expression — выражение над переменными.
	Expression string `json:"expression,omitempty"`
}
