package domain

import (
	"time"

	"github.com/google/uuid"
)

// Checkpoint — именованный снимок прогресса execution.
//
// Checkpoint неизменяем после создания. Восстановление атомарно
// возвращает currentStepIndex и variables к состоянию снимка,
// отбрасывая мутации переменных, сделанные после него.
//
// Снимок сериализуем в JSON — вызывающая сторона может сохранить его
// во внешнее хранилище и позже передать в RestoreFromCheckpoint.
type Checkpoint struct {
	// ID — уникальный идентификатор checkpoint.
	ID uuid.UUID `json:"id"`

	// StepIndex — индекс шага на момент создания снимка.
	StepIndex int `json:"step_index"`

	// Variables — глубокая копия переменных на момент создания.
	Variables map[string]Value `json:"variables"`

	// Description — описание, переданное при создании.
	Description string `json:"description,omitempty"`

	// CreatedAt — время создания снимка.
	CreatedAt time.Time `json:"created_at"`
}

// NewCheckpoint создаёт checkpoint со снимком переменных.
// Переменные копируются глубоко: последующие мутации живого
// состояния не затрагивают снимок.
func NewCheckpoint(stepIndex int, vars map[string]Value, description string) Checkpoint {
	return Checkpoint{
		ID:          uuid.New(),
		StepIndex:   stepIndex,
		Variables:   CloneVariables(vars),
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}
