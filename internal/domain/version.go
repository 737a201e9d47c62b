package domain

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowInfo — запись каталога workflows (без определения).
type WorkflowInfo struct {
	// ID — уникальный идентификатор workflow.
	ID uuid.UUID `json:"id"`

	// Name — уникальное имя workflow.
	Name string `json:"name"`

	// Description — описание назначения workflow.
	Description string `json:"description,omitempty"`

	// IsActive — доступен ли workflow для запуска.
	IsActive bool `json:"is_active"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// WorkflowVersion — одна версия определения workflow.
//
// Определения иммутабельны: каждое изменение создаёт новую версию,
// executions ссылаются на конкретную версию.
type WorkflowVersion struct {
	// WorkflowID — ссылка на workflow.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// Version — номер версии (с 1, монотонно растёт).
	Version int `json:"version"`

	// Workflow — полное определение этой версии.
	Workflow Workflow `json:"workflow"`

	// CreatedAt — время создания версии.
	CreatedAt time.Time `json:"created_at"`
}
