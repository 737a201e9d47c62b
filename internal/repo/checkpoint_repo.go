package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Wayfinder/internal/domain"
)

// CheckpointRepo — репозиторий для работы с checkpoints.
//
// Checkpoints хранятся отдельно от снимков контекста: снимок —
// последнее состояние execution, checkpoint — именованная точка
// отката внутри него.
type CheckpointRepo struct {
	pool *pgxpool.Pool
}

// NewCheckpointRepo создаёт новый CheckpointRepo.
func NewCheckpointRepo(pool *pgxpool.Pool) *CheckpointRepo {
	return &CheckpointRepo{pool: pool}
}

// Create сохраняет checkpoint.
func (r *CheckpointRepo) Create(ctx context.Context, executionID uuid.UUID, cp *domain.Checkpoint) error {
	varsJSON, err := json.Marshal(cp.Variables)
	if err != nil {
		return fmt.Errorf("marshal checkpoint variables: %w", err)
	}

	query := `
		INSERT INTO checkpoints (id, execution_id, step_index, variables, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		cp.ID,
		executionID,
		cp.StepIndex,
		varsJSON,
		nullString(cp.Description),
		cp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// GetByID возвращает checkpoint по ID.
func (r *CheckpointRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Checkpoint, error) {
	query := `
		SELECT id, step_index, variables, description, created_at
		FROM checkpoints
		WHERE id = $1
	`
	return r.scanCheckpoint(r.pool.QueryRow(ctx, query, id))
}

// ListByExecution возвращает checkpoints execution в порядке создания.
func (r *CheckpointRepo) ListByExecution(ctx context.Context, executionID uuid.UUID) ([]domain.Checkpoint, error) {
	query := `
		SELECT id, step_index, variables, description, created_at
		FROM checkpoints
		WHERE execution_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []domain.Checkpoint
	for rows.Next() {
		cp, err := r.scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, *cp)
	}
	return checkpoints, rows.Err()
}

// DeleteByExecution удаляет все checkpoints execution.
func (r *CheckpointRepo) DeleteByExecution(ctx context.Context, executionID uuid.UUID) error {
	query := `DELETE FROM checkpoints WHERE execution_id = $1`
	if _, err := r.pool.Exec(ctx, query, executionID); err != nil {
		return fmt.Errorf("delete checkpoints: %w", err)
	}
	return nil
}

func (r *CheckpointRepo) scanCheckpoint(row pgx.Row) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	var varsJSON []byte
	var description *string

	err := row.Scan(&cp.ID, &cp.StepIndex, &varsJSON, &description, &cp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}

	if description != nil {
		cp.Description = *description
	}
	if len(varsJSON) > 0 {
		if err := json.Unmarshal(varsJSON, &cp.Variables); err != nil {
			return nil, fmt.Errorf("unmarshal checkpoint variables: %w", err)
		}
	}
	return &cp, nil
}
