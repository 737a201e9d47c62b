package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/Wayfinder/internal/domain"
	"github.com/shaiso/Wayfinder/internal/engine"
	"github.com/shaiso/Wayfinder/internal/orchestrator"
	"github.com/shaiso/Wayfinder/internal/repo"
)

// ListExecutions возвращает список executions с фильтрацией.
// GET /api/v1/executions?workflow_id=...&state=...&limit=...&offset=...
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	filter := repo.ExecutionFilter{}

	if workflowIDStr := r.URL.Query().Get("workflow_id"); workflowIDStr != "" {
		workflowID, err := uuid.Parse(workflowIDStr)
		if err != nil {
			BadRequest(w, "invalid workflow_id")
			return
		}
		filter.WorkflowID = &workflowID
	}

	if state := r.URL.Query().Get("state"); state != "" {
		s := domain.ExecutionState(state)
		filter.State = &s
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		filter.Limit = int(mustParseInt(limitStr, 50))
	} else {
		filter.Limit = 50
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		filter.Offset = int(mustParseInt(offsetStr, 0))
	}

	executions, err := h.executionRepo.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ExecutionResponse, len(executions))
	for i, e := range executions {
		result[i] = ExecutionFromDomain(e)
	}

	List(w, result, len(result))
}

// StartExecution запускает workflow.
// Создаёт запись execution и отдаёт выполнение оркестратору
// в фоновой горутине; ответ не ждёт завершения.
// POST /api/v1/workflows/{id}/executions
func (h *Handler) StartExecution(w http.ResponseWriter, r *http.Request) {
	workflowID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	var req CreateExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	info, err := h.workflowRepo.GetByID(r.Context(), workflowID)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}
	if !info.IsActive {
		InvalidState(w, "workflow is not active")
		return
	}

	var version *domain.WorkflowVersion
	if req.Version != nil {
		version, err = h.workflowRepo.GetVersion(r.Context(), workflowID, *req.Version)
		if HandleRepoError(w, h.logger, err, "workflow version not found") {
			return
		}
	} else {
		version, err = h.workflowRepo.GetLatestVersion(r.Context(), workflowID)
		if HandleRepoError(w, h.logger, err, "workflow has no versions") {
			return
		}
	}

	if req.IdempotencyKey != "" {
		existing, err := h.executionRepo.GetByIdempotencyKey(r.Context(), req.IdempotencyKey)
		if err == nil && existing != nil {
			Success(w, ExecutionFromDomain(*existing))
			return
		}
	}

	exec := &domain.Execution{
		ID:             uuid.New(),
		WorkflowID:     workflowID,
		Version:        version.Version,
		State:          domain.StatePending,
		Inputs:         req.Inputs,
		IdempotencyKey: req.IdempotencyKey,
	}

	if err := h.executionRepo.Create(r.Context(), exec); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	go h.runExecution(exec.ID, &version.Workflow, req.Inputs, nil)

	Created(w, ExecutionFromDomain(*exec))
}

// runExecution выполняет workflow до терминального состояния.
// Вызывается в отдельной горутине; контекст запроса не используется —
// execution живёт дольше HTTP-запроса.
func (h *Handler) runExecution(executionID uuid.UUID, wf *domain.Workflow, inputs map[string]domain.Value, snapshot []byte) {
	ctx := context.Background()

	_, err := h.engine.Execute(ctx, wf, orchestrator.ExecuteOptions{
		Driver:      h.newDriver(),
		ExecutionID: executionID,
		Inputs:      inputs,
		Snapshot:    snapshot,
	})
	if err == nil || errors.Is(err, orchestrator.ErrExecutionCancelled) {
		return
	}

	h.logger.Error("execution failed", "execution_id", executionID, "error", err)

	// Оркестратор персистирует состояние и снимок; текст ошибки
	// доводится до записи отдельно.
	exec, gerr := h.executionRepo.GetByID(ctx, executionID)
	if gerr != nil || exec.State != domain.StateFailed {
		return
	}
	exec.Error = err.Error()
	if uerr := h.executionRepo.Update(ctx, exec); uerr != nil {
		h.logger.Error("update execution error text failed",
			"execution_id", executionID, "error", uerr)
	}
}

// GetExecution возвращает execution по ID.
// Для активного execution добавляется прогресс из оркестратора.
// GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid execution id")
		return
	}

	exec, err := h.executionRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "execution not found") {
		return
	}

	resp := ExecutionFromDomain(*exec)
	if progress, ok := h.engine.Progress(id); ok {
		resp.Progress = &ProgressResponse{
			Current:    progress.Current,
			Total:      progress.Total,
			Percentage: progress.Percentage,
		}
	}

	Success(w, resp)
}

// PauseExecution запрашивает паузу execution.
// Пауза вступает в силу на ближайшей границе шага.
// POST /api/v1/executions/{id}/pause
func (h *Handler) PauseExecution(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid execution id")
		return
	}

	if err := h.engine.Pause(id); err != nil {
		_, gerr := h.executionRepo.GetByID(r.Context(), id)
		if HandleRepoError(w, h.logger, gerr, "execution not found") {
			return
		}
		InvalidState(w, "execution is not running")
		return
	}

	exec, err := h.executionRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "execution not found") {
		return
	}

	Success(w, ExecutionFromDomain(*exec))
}

// ResumeExecution возобновляет приостановленный execution.
// Активная пауза снимается на месте; execution, приостановленный
// до рестарта сервера, перезапускается из персистированного снимка.
// POST /api/v1/executions/{id}/resume
func (h *Handler) ResumeExecution(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid execution id")
		return
	}

	switch err := h.engine.Resume(id); {
	case err == nil:

	case errors.Is(err, orchestrator.ErrExecutionNotPaused):
		InvalidState(w, "execution is not paused")
		return

	case errors.Is(err, orchestrator.ErrExecutionNotFound):
		exec, gerr := h.executionRepo.GetByID(r.Context(), id)
		if HandleRepoError(w, h.logger, gerr, "execution not found") {
			return
		}
		if exec.State != domain.StatePaused || exec.ContextSnapshot == nil {
			InvalidState(w, "execution is not paused")
			return
		}

		version, gerr := h.workflowRepo.GetVersion(r.Context(), exec.WorkflowID, exec.Version)
		if HandleRepoError(w, h.logger, gerr, "workflow version not found") {
			return
		}

		go h.runExecution(exec.ID, &version.Workflow, nil, exec.ContextSnapshot)

	default:
		InternalError(w, h.logger, err)
		return
	}

	exec, err := h.executionRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "execution not found") {
		return
	}

	Success(w, ExecutionFromDomain(*exec))
}

// CancelExecution отменяет execution.
// Активный запуск отменяется через оркестратор; запись, не имеющая
// живого запуска (PENDING или персистированная пауза), помечается
// CANCELLED напрямую.
// POST /api/v1/executions/{id}/cancel
func (h *Handler) CancelExecution(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid execution id")
		return
	}

	if err := h.engine.Cancel(id); err == nil {
		exec, gerr := h.executionRepo.GetByID(r.Context(), id)
		if HandleRepoError(w, h.logger, gerr, "execution not found") {
			return
		}
		Success(w, ExecutionFromDomain(*exec))
		return
	}

	exec, err := h.executionRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "execution not found") {
		return
	}

	if exec.IsFinished() {
		InvalidState(w, "execution is already finished")
		return
	}

	exec.MarkCancelled()
	if err := h.executionRepo.Update(r.Context(), exec); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, ExecutionFromDomain(*exec))
}

// ListCheckpoints возвращает checkpoints execution.
// GET /api/v1/executions/{id}/checkpoints
func (h *Handler) ListCheckpoints(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid execution id")
		return
	}

	_, err = h.executionRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "execution not found") {
		return
	}

	checkpoints, err := h.checkpointRepo.ListByExecution(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]CheckpointResponse, len(checkpoints))
	for i, cp := range checkpoints {
		result[i] = CheckpointFromDomain(cp)
	}

	List(w, result, len(result))
}

// RestoreCheckpoint откатывает приостановленный execution к checkpoint.
// POST /api/v1/executions/{id}/checkpoints/{checkpoint_id}/restore
func (h *Handler) RestoreCheckpoint(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid execution id")
		return
	}

	checkpointID, err := uuid.Parse(r.PathValue("checkpoint_id"))
	if err != nil {
		BadRequest(w, "invalid checkpoint id")
		return
	}

	switch err := h.engine.RestoreCheckpoint(id, checkpointID); {
	case err == nil:

	case errors.Is(err, orchestrator.ErrExecutionNotFound):
		_, gerr := h.executionRepo.GetByID(r.Context(), id)
		if HandleRepoError(w, h.logger, gerr, "execution not found") {
			return
		}
		InvalidState(w, "execution is not active")
		return

	case errors.Is(err, orchestrator.ErrExecutionNotPaused):
		InvalidState(w, "execution is not paused")
		return

	case errors.Is(err, engine.ErrCheckpointNotFound):
		NotFound(w, "checkpoint not found")
		return

	default:
		InternalError(w, h.logger, err)
		return
	}

	exec, err := h.executionRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "execution not found") {
		return
	}

	Success(w, ExecutionFromDomain(*exec))
}

// mustParseInt парсит строку в int с дефолтным значением.
func mustParseInt(s string, defaultVal int64) int64 {
	if n, err := json.Number(s).Int64(); err == nil {
		return n
	}
	return defaultVal
}
