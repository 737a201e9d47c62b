package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Wayfinder/internal/domain"
	"github.com/shaiso/Wayfinder/internal/engine"
)

// Workflow DTOs

// CreateWorkflowRequest — запрос на создание workflow.
type CreateWorkflowRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateWorkflowRequest — запрос на обновление workflow.
type UpdateWorkflowRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// WorkflowResponse — ответ с workflow.
type WorkflowResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// WorkflowFromDomain конвертирует domain.WorkflowInfo в WorkflowResponse.
func WorkflowFromDomain(w domain.WorkflowInfo) WorkflowResponse {
	return WorkflowResponse{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		IsActive:    w.IsActive,
		CreatedAt:   w.CreatedAt,
	}
}

// WorkflowVersion DTOs

// CreateWorkflowVersionRequest — запрос на создание версии workflow.
// Definition — полное определение workflow в формате Wayfinder JSON.
type CreateWorkflowVersionRequest struct {
	Definition domain.Workflow `json:"definition"`
}

// ValidationIssueDTO — одна проблема валидации определения.
type ValidationIssueDTO struct {
	Severity string `json:"severity"`
	StepID   string `json:"step_id,omitempty"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
}

// IssuesFromValidation конвертирует результаты engine.Validate.
func IssuesFromValidation(issues []engine.ValidationIssue) []ValidationIssueDTO {
	out := make([]ValidationIssueDTO, len(issues))
	for i, issue := range issues {
		out[i] = ValidationIssueDTO{
			Severity: string(issue.Severity),
			StepID:   issue.StepID,
			Field:    issue.Field,
			Message:  issue.Message,
		}
	}
	return out
}

// WorkflowVersionResponse — ответ с версией workflow.
type WorkflowVersionResponse struct {
	WorkflowID uuid.UUID       `json:"workflow_id"`
	Version    int             `json:"version"`
	Definition domain.Workflow `json:"definition"`
	CreatedAt  time.Time       `json:"created_at"`

	// Warnings — некритичные замечания валидации, полученные
	// при создании версии.
	Warnings []ValidationIssueDTO `json:"warnings,omitempty"`
}

// WorkflowVersionFromDomain конвертирует domain.WorkflowVersion.
func WorkflowVersionFromDomain(v domain.WorkflowVersion) WorkflowVersionResponse {
	return WorkflowVersionResponse{
		WorkflowID: v.WorkflowID,
		Version:    v.Version,
		Definition: v.Workflow,
		CreatedAt:  v.CreatedAt,
	}
}

// Execution DTOs

// CreateExecutionRequest — запрос на запуск workflow.
type CreateExecutionRequest struct {
	Inputs         map[string]domain.Value `json:"inputs,omitempty"`
	Version        *int                    `json:"version,omitempty"`
	IdempotencyKey string                  `json:"idempotency_key,omitempty"`
}

// ProgressResponse — прогресс активного execution.
type ProgressResponse struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// ExecutionResponse — ответ с execution.
type ExecutionResponse struct {
	ID             uuid.UUID               `json:"id"`
	WorkflowID     uuid.UUID               `json:"workflow_id"`
	Version        int                     `json:"version"`
	State          string                  `json:"state"`
	Inputs         map[string]domain.Value `json:"inputs,omitempty"`
	Error          string                  `json:"error,omitempty"`
	IdempotencyKey string                  `json:"idempotency_key,omitempty"`
	StartedAt      *time.Time              `json:"started_at,omitempty"`
	FinishedAt     *time.Time              `json:"finished_at,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`

	// Progress — заполняется для активных executions.
	Progress *ProgressResponse `json:"progress,omitempty"`
}

// ExecutionFromDomain конвертирует domain.Execution в ExecutionResponse.
func ExecutionFromDomain(e domain.Execution) ExecutionResponse {
	return ExecutionResponse{
		ID:             e.ID,
		WorkflowID:     e.WorkflowID,
		Version:        e.Version,
		State:          string(e.State),
		Inputs:         e.Inputs,
		Error:          e.Error,
		IdempotencyKey: e.IdempotencyKey,
		StartedAt:      e.StartedAt,
		FinishedAt:     e.FinishedAt,
		CreatedAt:      e.CreatedAt,
	}
}

// Checkpoint DTOs

// CheckpointResponse — ответ с checkpoint.
type CheckpointResponse struct {
	ID          uuid.UUID `json:"id"`
	StepIndex   int       `json:"step_index"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CheckpointFromDomain конвертирует domain.Checkpoint.
// Снимок переменных не выдаётся: он восстанавливается движком,
// а не читается клиентами.
func CheckpointFromDomain(cp domain.Checkpoint) CheckpointResponse {
	return CheckpointResponse{
		ID:          cp.ID,
		StepIndex:   cp.StepIndex,
		Description: cp.Description,
		CreatedAt:   cp.CreatedAt,
	}
}

// Schedule DTOs

// CreateScheduleRequest — запрос на создание schedule.
type CreateScheduleRequest struct {
	Name        string                  `json:"name"`
	CronExpr    string                  `json:"cron_expr,omitempty"`
	IntervalSec int                     `json:"interval_sec,omitempty"`
	Timezone    string                  `json:"timezone,omitempty"`
	Enabled     bool                    `json:"enabled"`
	Inputs      map[string]domain.Value `json:"inputs,omitempty"`
}

// UpdateScheduleRequest — запрос на обновление schedule.
type UpdateScheduleRequest struct {
	Name        *string                  `json:"name,omitempty"`
	CronExpr    *string                  `json:"cron_expr,omitempty"`
	IntervalSec *int                     `json:"interval_sec,omitempty"`
	Timezone    *string                  `json:"timezone,omitempty"`
	Enabled     *bool                    `json:"enabled,omitempty"`
	Inputs      *map[string]domain.Value `json:"inputs,omitempty"`
}

// ScheduleResponse — ответ со schedule.
type ScheduleResponse struct {
	ID                 uuid.UUID               `json:"id"`
	WorkflowID         uuid.UUID               `json:"workflow_id"`
	Name               string                  `json:"name,omitempty"`
	CronExpr           string                  `json:"cron_expr,omitempty"`
	IntervalSec        int                     `json:"interval_sec,omitempty"`
	Timezone           string                  `json:"timezone"`
	Enabled            bool                    `json:"enabled"`
	NextDueAt          *time.Time              `json:"next_due_at,omitempty"`
	LastRunAt          *time.Time              `json:"last_run_at,omitempty"`
	LastExecutionID    *uuid.UUID              `json:"last_execution_id,omitempty"`
	LastExecutionState string                  `json:"last_execution_state,omitempty"`
	Inputs             map[string]domain.Value `json:"inputs,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s *domain.Schedule) ScheduleResponse {
	if s == nil {
		return ScheduleResponse{}
	}
	return ScheduleResponse{
		ID:                 s.ID,
		WorkflowID:         s.WorkflowID,
		Name:               s.Name,
		CronExpr:           s.CronExpr,
		IntervalSec:        s.IntervalSec,
		Timezone:           s.Timezone,
		Enabled:            s.Enabled,
		NextDueAt:          s.NextDueAt,
		LastRunAt:          s.LastRunAt,
		LastExecutionID:    s.LastExecutionID,
		LastExecutionState: string(s.LastExecutionState),
		Inputs:             s.Inputs,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}
