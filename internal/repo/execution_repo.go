package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Wayfinder/internal/domain"
)

// ExecutionRepo — репозиторий для работы с executions.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

// Create создаёт новый execution.
// Конфликт idempotency_key возвращает ErrAlreadyExists.
func (r *ExecutionRepo) Create(ctx context.Context, exec *domain.Execution) error {
	inputsJSON, err := json.Marshal(exec.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}

	query := `
		INSERT INTO executions (id, workflow_id, version, state, inputs,
		                        idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		exec.ID,
		exec.WorkflowID,
		exec.Version,
		exec.State,
		inputsJSON,
		nullString(exec.IdempotencyKey),
		exec.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// GetByID возвращает execution по ID.
func (r *ExecutionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	query := `
		SELECT id, workflow_id, version, state, inputs, context_snapshot,
		       error, idempotency_key, started_at, finished_at, created_at
		FROM executions
		WHERE id = $1
	`
	return r.scanExecution(r.pool.QueryRow(ctx, query, id))
}

// GetByIdempotencyKey возвращает execution по ключу идемпотентности.
func (r *ExecutionRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Execution, error) {
	query := `
		SELECT id, workflow_id, version, state, inputs, context_snapshot,
		       error, idempotency_key, started_at, finished_at, created_at
		FROM executions
		WHERE idempotency_key = $1
	`
	return r.scanExecution(r.pool.QueryRow(ctx, query, key))
}

// ExecutionFilter — фильтр для списка executions.
type ExecutionFilter struct {
	WorkflowID *uuid.UUID
	State      *domain.ExecutionState
	Limit      int
	Offset     int
}

// List возвращает список executions с фильтрацией.
func (r *ExecutionRepo) List(ctx context.Context, filter ExecutionFilter) ([]domain.Execution, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, workflow_id, version, state, inputs, context_snapshot,
		       error, idempotency_key, started_at, finished_at, created_at
		FROM executions
		WHERE ($1::uuid IS NULL OR workflow_id = $1)
		  AND ($2::text IS NULL OR state = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullUUID(filter.WorkflowID),
		nullState(filter.State),
		limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var executions []domain.Execution
	for rows.Next() {
		exec, err := r.scanExecutionFromRows(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *exec)
	}
	return executions, rows.Err()
}

// Update обновляет изменяемые поля execution.
func (r *ExecutionRepo) Update(ctx context.Context, exec *domain.Execution) error {
	query := `
		UPDATE executions
		SET state = $2, context_snapshot = $3, error = $4,
		    started_at = $5, finished_at = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		exec.ID,
		exec.State,
		exec.ContextSnapshot,
		nullString(exec.Error),
		exec.StartedAt,
		exec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveSnapshot сохраняет состояние и снимок контекста execution.
// Реализует orchestrator.ExecutionStore.
func (r *ExecutionRepo) SaveSnapshot(ctx context.Context, executionID uuid.UUID, state domain.ExecutionState, snapshot []byte) error {
	query := `
		UPDATE executions
		SET state = $2,
		    context_snapshot = $3,
		    started_at = COALESCE(started_at, NOW()),
		    finished_at = CASE WHEN $2 IN ('COMPLETED', 'FAILED', 'CANCELLED')
		                       THEN NOW() ELSE finished_at END
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, executionID, state, snapshot)
	if err != nil {
		return fmt.Errorf("save execution snapshot: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ExecutionRepo) scanExecution(row pgx.Row) (*domain.Execution, error) {
	var exec domain.Execution
	var inputsJSON []byte
	var errMsg, idemKey *string

	err := row.Scan(
		&exec.ID,
		&exec.WorkflowID,
		&exec.Version,
		&exec.State,
		&inputsJSON,
		&exec.ContextSnapshot,
		&errMsg,
		&idemKey,
		&exec.StartedAt,
		&exec.FinishedAt,
		&exec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	if errMsg != nil {
		exec.Error = *errMsg
	}
	if idemKey != nil {
		exec.IdempotencyKey = *idemKey
	}
	if len(inputsJSON) > 0 {
		if err := json.Unmarshal(inputsJSON, &exec.Inputs); err != nil {
			return nil, fmt.Errorf("unmarshal inputs: %w", err)
		}
	}
	return &exec, nil
}

func (r *ExecutionRepo) scanExecutionFromRows(rows pgx.Rows) (*domain.Execution, error) {
	return r.scanExecution(rows)
}

// nullString возвращает nil для пустой строки.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для nil указателя.
func nullUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}

// nullState возвращает nil для nil указателя.
func nullState(state *domain.ExecutionState) any {
	if state == nil {
		return nil
	}
	return string(*state)
}

// nullInt возвращает nil для нулевого int.
func nullInt(i int) *int {
	if i == 0 {
		return nil
	}
	return &i
}
