package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/shaiso/Wayfinder/internal/domain"
)

// StateStore — персистентность состояния выполнения для оркестратора.
//
// Объединяет снимки контекста (executions) и checkpoints
// в один store, передаваемый в orchestrator.Config.
type StateStore struct {
	executions  *ExecutionRepo
	checkpoints *CheckpointRepo
}

// NewStateStore создаёт StateStore.
func NewStateStore(executions *ExecutionRepo, checkpoints *CheckpointRepo) *StateStore {
	return &StateStore{executions: executions, checkpoints: checkpoints}
}

// SaveSnapshot сохраняет снимок контекста выполнения.
func (s *StateStore) SaveSnapshot(ctx context.Context, executionID uuid.UUID, state domain.ExecutionState, snapshot []byte) error {
	return s.executions.SaveSnapshot(ctx, executionID, state, snapshot)
}

// SaveCheckpoint сохраняет созданный checkpoint.
func (s *StateStore) SaveCheckpoint(ctx context.Context, executionID uuid.UUID, cp domain.Checkpoint) error {
	return s.checkpoints.Create(ctx, executionID, &cp)
}
