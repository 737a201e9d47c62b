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

// WorkflowRepo — репозиторий для работы с workflows и workflow_versions.
type WorkflowRepo struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepo создаёт новый WorkflowRepo.
func NewWorkflowRepo(pool *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{pool: pool}
}

// --- Workflow CRUD ---

// Create создаёт новый workflow.
func (r *WorkflowRepo) Create(ctx context.Context, info *domain.WorkflowInfo) error {
	query := `
		INSERT INTO workflows (id, name, description, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		info.ID,
		info.Name,
		info.Description,
		info.IsActive,
		info.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// GetByID возвращает workflow по ID.
func (r *WorkflowRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowInfo, error) {
	query := `
		SELECT id, name, description, is_active, created_at
		FROM workflows
		WHERE id = $1
	`
	var info domain.WorkflowInfo
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&info.ID,
		&info.Name,
		&info.Description,
		&info.IsActive,
		&info.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow by id: %w", err)
	}
	return &info, nil
}

// GetByName возвращает workflow по имени.
func (r *WorkflowRepo) GetByName(ctx context.Context, name string) (*domain.WorkflowInfo, error) {
	query := `
		SELECT id, name, description, is_active, created_at
		FROM workflows
		WHERE name = $1
	`
	var info domain.WorkflowInfo
	err := r.pool.QueryRow(ctx, query, name).Scan(
		&info.ID,
		&info.Name,
		&info.Description,
		&info.IsActive,
		&info.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow by name: %w", err)
	}
	return &info, nil
}

// List возвращает список всех workflows.
func (r *WorkflowRepo) List(ctx context.Context) ([]domain.WorkflowInfo, error) {
	query := `
		SELECT id, name, description, is_active, created_at
		FROM workflows
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var infos []domain.WorkflowInfo
	for rows.Next() {
		var info domain.WorkflowInfo
		if err := rows.Scan(
			&info.ID,
			&info.Name,
			&info.Description,
			&info.IsActive,
			&info.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Update обновляет workflow.
func (r *WorkflowRepo) Update(ctx context.Context, info *domain.WorkflowInfo) error {
	query := `
		UPDATE workflows
		SET name = $2, description = $3, is_active = $4
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, info.ID, info.Name, info.Description, info.IsActive)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет workflow (каскадно удалит versions, executions, schedules).
func (r *WorkflowRepo) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM workflows WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- WorkflowVersion CRUD ---

// CreateVersion создаёт новую версию определения workflow.
// Номер версии автоматически инкрементируется.
func (r *WorkflowRepo) CreateVersion(ctx context.Context, workflowID uuid.UUID, wf *domain.Workflow) (*domain.WorkflowVersion, error) {
	defJSON, err := json.Marshal(wf)
	if err != nil {
		return nil, fmt.Errorf("marshal definition: %w", err)
	}

	// Получаем следующий номер версии
	var nextVersion int
	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1
		FROM workflow_versions
		WHERE workflow_id = $1
	`, workflowID).Scan(&nextVersion)
	if err != nil {
		return nil, fmt.Errorf("get next version: %w", err)
	}

	var version domain.WorkflowVersion
	err = r.pool.QueryRow(ctx, `
		INSERT INTO workflow_versions (workflow_id, version, definition, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING workflow_id, version, definition, created_at
	`, workflowID, nextVersion, defJSON).Scan(
		&version.WorkflowID,
		&version.Version,
		&defJSON,
		&version.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert workflow version: %w", err)
	}

	if err := json.Unmarshal(defJSON, &version.Workflow); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}

	return &version, nil
}

// GetVersion возвращает конкретную версию определения.
func (r *WorkflowRepo) GetVersion(ctx context.Context, workflowID uuid.UUID, version int) (*domain.WorkflowVersion, error) {
	query := `
		SELECT workflow_id, version, definition, created_at
		FROM workflow_versions
		WHERE workflow_id = $1 AND version = $2
	`
	return r.scanVersion(r.pool.QueryRow(ctx, query, workflowID, version))
}

// GetLatestVersion возвращает последнюю версию определения.
func (r *WorkflowRepo) GetLatestVersion(ctx context.Context, workflowID uuid.UUID) (*domain.WorkflowVersion, error) {
	query := `
		SELECT workflow_id, version, definition, created_at
		FROM workflow_versions
		WHERE workflow_id = $1
		ORDER BY version DESC
		LIMIT 1
	`
	return r.scanVersion(r.pool.QueryRow(ctx, query, workflowID))
}

// ListVersions возвращает все версии определения workflow.
func (r *WorkflowRepo) ListVersions(ctx context.Context, workflowID uuid.UUID) ([]domain.WorkflowVersion, error) {
	query := `
		SELECT workflow_id, version, definition, created_at
		FROM workflow_versions
		WHERE workflow_id = $1
		ORDER BY version DESC
	`
	rows, err := r.pool.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list workflow versions: %w", err)
	}
	defer rows.Close()

	var versions []domain.WorkflowVersion
	for rows.Next() {
		var v domain.WorkflowVersion
		var defJSON []byte
		if err := rows.Scan(&v.WorkflowID, &v.Version, &defJSON, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow version: %w", err)
		}
		if err := json.Unmarshal(defJSON, &v.Workflow); err != nil {
			return nil, fmt.Errorf("unmarshal definition: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (r *WorkflowRepo) scanVersion(row pgx.Row) (*domain.WorkflowVersion, error) {
	var v domain.WorkflowVersion
	var defJSON []byte
	err := row.Scan(&v.WorkflowID, &v.Version, &defJSON, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow version: %w", err)
	}
	if err := json.Unmarshal(defJSON, &v.Workflow); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return &v, nil
}
