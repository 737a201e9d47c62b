package engine

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Wayfinder/internal/domain"
)

// ExecutionContext — изменяемое состояние одного запуска workflow.
//
// Контекст принадлежит ровно одному выполнению: мутируют его только
// оркестратор и шаг, выполняющийся в данный момент. Доступ
// потокобезопасен — подшаги parallel пишут переменные конкурентно.
//
// Переход состояния execution происходит исключительно через
// TransitionTo: прямых мутаций State снаружи нет, таблица
// допустимых переходов — в domain.ExecutionState.
type ExecutionContext struct {
	mu sync.RWMutex

	// executionID — уникальный идентификатор запуска.
	executionID uuid.UUID

	// workflowID — идентификатор выполняемого workflow.
	workflowID uuid.UUID

	// variables — типизированные переменные запуска.
	variables map[string]domain.Value

	// currentStepIndex — индекс текущего шага верхнего уровня.
	// Монотонно растёт, кроме восстановления из checkpoint.
	currentStepIndex int

	// totalSteps — количество шагов верхнего уровня.
	totalSteps int

	// state — состояние выполнения.
	state domain.ExecutionState

	// results — результаты выполненных шагов в порядке выполнения.
	results []domain.StepResult

	// errors — накопленные ошибки для post-mortem диагностики.
	errors []domain.ExecutionError

	// checkpoints — созданные снимки состояния.
	checkpoints []domain.Checkpoint

	// startedAt — время создания контекста.
	startedAt time.Time

	// updatedAt — время последней мутации.
	updatedAt time.Time
}

// NewExecutionContext создаёт контекст для запуска workflow.
// executionID задаётся вызывающей стороной: API создаёт запись
// execution до старта и должен знать идентификатор заранее.
// initial — начальные значения переменных (объявленные в workflow
// плюс переданные при запуске).
func NewExecutionContext(executionID, workflowID uuid.UUID, totalSteps int, initial map[string]domain.Value) *ExecutionContext {
	now := time.Now().UTC()
	return &ExecutionContext{
		executionID: executionID,
		workflowID:  workflowID,
		variables:   domain.CloneVariables(initial),
		totalSteps:  totalSteps,
		state:       domain.StatePending,
		startedAt:   now,
		updatedAt:   now,
	}
}

// ExecutionID возвращает идентификатор запуска.
func (c *ExecutionContext) ExecutionID() uuid.UUID {
	return c.executionID
}

// WorkflowID возвращает идентификатор workflow.
func (c *ExecutionContext) WorkflowID() uuid.UUID {
	return c.workflowID
}

// State возвращает текущее состояние выполнения.
func (c *ExecutionContext) State() domain.ExecutionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// TransitionTo переводит execution в состояние next.
// Недопустимый переход — ошибка ErrInvalidTransition.
func (c *ExecutionContext) TransitionTo(next domain.ExecutionState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, c.state, next)
	}
	c.state = next
	c.updatedAt = time.Now().UTC()
	return nil
}

// GetVariable возвращает значение переменной.
func (c *ExecutionContext) GetVariable(name string) (domain.Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.variables[name]
	return v, ok
}

// GetVariableOr возвращает значение переменной либо default.
func (c *ExecutionContext) GetVariableOr(name string, def domain.Value) domain.Value {
	if v, ok := c.GetVariable(name); ok {
		return v
	}
	return def
}

// SetVariable устанавливает значение переменной.
func (c *ExecutionContext) SetVariable(name string, value domain.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.variables == nil {
		c.variables = make(map[string]domain.Value)
	}
	c.variables[name] = value
	c.updatedAt = time.Now().UTC()
}

// DeleteVariable удаляет переменную.
func (c *ExecutionContext) DeleteVariable(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.variables, name)
	c.updatedAt = time.Now().UTC()
}

// AllVariables возвращает копию всех переменных.
func (c *ExecutionContext) AllVariables() map[string]domain.Value {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.CloneVariables(c.variables)
}

// Lookup возвращает Lookup-функцию для подстановки и условий.
func (c *ExecutionContext) Lookup() Lookup {
	return func(name string) (domain.Value, bool) {
		return c.GetVariable(name)
	}
}

// CurrentStepIndex возвращает индекс текущего шага.
func (c *ExecutionContext) CurrentStepIndex() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentStepIndex
}

// AdvanceStep переводит указатель на следующий шаг.
func (c *ExecutionContext) AdvanceStep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentStepIndex < c.totalSteps {
		c.currentStepIndex++
	}
	c.updatedAt = time.Now().UTC()
}

// RecordResult добавляет результат шага.
func (c *ExecutionContext) RecordResult(result domain.StepResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
	c.updatedAt = time.Now().UTC()
}

// Results возвращает копию результатов в порядке выполнения.
func (c *ExecutionContext) Results() []domain.StepResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.StepResult, len(c.results))
	copy(out, c.results)
	return out
}

// RecordError добавляет ошибку в журнал диагностики.
func (c *ExecutionContext) RecordError(e domain.ExecutionError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, e)
	c.updatedAt = time.Now().UTC()
}

// Errors возвращает копию журнала ошибок.
func (c *ExecutionContext) Errors() []domain.ExecutionError {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.ExecutionError, len(c.errors))
	copy(out, c.errors)
	return out
}

// HasErrors возвращает true, если журнал ошибок непуст.
func (c *ExecutionContext) HasErrors() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.errors) > 0
}

// IsComplete возвращает true для состояния COMPLETED.
func (c *ExecutionContext) IsComplete() bool {
	return c.State() == domain.StateCompleted
}

// IsPaused возвращает true для состояния PAUSED.
func (c *ExecutionContext) IsPaused() bool {
	return c.State() == domain.StatePaused
}

// IsCancelled возвращает true для состояния CANCELLED.
func (c *ExecutionContext) IsCancelled() bool {
	return c.State() == domain.StateCancelled
}

// Progress — прогресс выполнения.
type Progress struct {
	// Current — индекс текущего шага.
	Current int `json:"current"`

	// Total — количество шагов верхнего уровня.
	Total int `json:"total"`

	// Percentage — процент завершения [0, 100].
	Percentage float64 `json:"percentage"`
}

// Progress возвращает текущий прогресс выполнения.
func (c *ExecutionContext) Progress() Progress {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pct := 0.0
	if c.totalSteps > 0 {
		pct = float64(c.currentStepIndex) / float64(c.totalSteps) * 100
	}
	return Progress{
		Current:    c.currentStepIndex,
		Total:      c.totalSteps,
		Percentage: pct,
	}
}

// CreateCheckpoint создаёт снимок переменных и позиции выполнения.
// Непустой names ограничивает снимок именованным подмножеством
// переменных; отсутствующие имена пропускаются. Снимок неизменяем:
// переменные копируются глубоко.
func (c *ExecutionContext) CreateCheckpoint(description string, names ...string) domain.Checkpoint {
	c.mu.Lock()
	defer c.mu.Unlock()

	vars := c.variables
	if len(names) > 0 {
		vars = make(map[string]domain.Value, len(names))
		for _, name := range names {
			if v, ok := c.variables[name]; ok {
				vars[name] = v
			}
		}
	}

	cp := domain.NewCheckpoint(c.currentStepIndex, vars, description)
	c.checkpoints = append(c.checkpoints, cp)
	c.updatedAt = time.Now().UTC()
	return cp
}

// Checkpoints возвращает копию списка снимков.
func (c *ExecutionContext) Checkpoints() []domain.Checkpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Checkpoint, len(c.checkpoints))
	copy(out, c.checkpoints)
	return out
}

// RestoreFromCheckpoint атомарно возвращает currentStepIndex
// и variables к состоянию снимка. Мутации переменных, сделанные
// после создания снимка, отбрасываются.
//
// Возвращает ErrCheckpointNotFound для неизвестного id; состояние
// контекста при этом не меняется.
func (c *ExecutionContext) RestoreFromCheckpoint(id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.checkpoints {
		if c.checkpoints[i].ID == id {
			c.variables = domain.CloneVariables(c.checkpoints[i].Variables)
			c.currentStepIndex = c.checkpoints[i].StepIndex
			c.updatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
}

// AddCheckpoint регистрирует снимок, сохранённый внешним хранилищем.
// Используется при восстановлении после рестарта процесса.
func (c *ExecutionContext) AddCheckpoint(cp domain.Checkpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkpoints = append(c.checkpoints, cp)
}

// contextSnapshot — сериализуемая форма ExecutionContext.
// Раскладка полей стабильна: Serialize/Deserialize обязаны
// давать точный round-trip.
type contextSnapshot struct {
	ExecutionID      uuid.UUID               `json:"execution_id"`
	WorkflowID       uuid.UUID               `json:"workflow_id"`
	Variables        map[string]domain.Value `json:"variables"`
	CurrentStepIndex int                     `json:"current_step_index"`
	TotalSteps       int                     `json:"total_steps"`
	State            domain.ExecutionState   `json:"state"`
	Results          []domain.StepResult     `json:"results"`
	Errors           []domain.ExecutionError `json:"errors"`
	Checkpoints      []domain.Checkpoint     `json:"checkpoints"`
	StartedAt        time.Time               `json:"started_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// Serialize сериализует контекст в JSON для внешнего хранения
// и восстановления после сбоя.
func (c *ExecutionContext) Serialize() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return json.Marshal(contextSnapshot{
		ExecutionID:      c.executionID,
		WorkflowID:       c.workflowID,
		Variables:        c.variables,
		CurrentStepIndex: c.currentStepIndex,
		TotalSteps:       c.totalSteps,
		State:            c.state,
		Results:          c.results,
		Errors:           c.errors,
		Checkpoints:      c.checkpoints,
		StartedAt:        c.startedAt,
		UpdatedAt:        c.updatedAt,
	})
}

// Deserialize восстанавливает контекст из JSON-снимка.
func Deserialize(data []byte) (*ExecutionContext, error) {
	var snap contextSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("deserialize execution context: %w", err)
	}

	return &ExecutionContext{
		executionID:      snap.ExecutionID,
		workflowID:       snap.WorkflowID,
		variables:        snap.Variables,
		currentStepIndex: snap.CurrentStepIndex,
		totalSteps:       snap.TotalSteps,
		state:            snap.State,
		results:          snap.Results,
		errors:           snap.Errors,
		checkpoints:      snap.Checkpoints,
		startedAt:        snap.StartedAt,
		updatedAt:        snap.UpdatedAt,
	}, nil
}
