package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Wayfinder/internal/domain"
	"github.com/shaiso/Wayfinder/internal/mq"
	"github.com/shaiso/Wayfinder/internal/repo"
)

// Scheduler — планировщик, обрабатывающий due schedules.
type Scheduler struct {
	scheduleRepo  *repo.ScheduleRepo
	executionRepo *repo.ExecutionRepo
	workflowRepo  *repo.WorkflowRepo
	logger        *slog.Logger
	batchSize     int
}

// Config — конфигурация Scheduler.
type Config struct {
	ScheduleRepo  *repo.ScheduleRepo
	ExecutionRepo *repo.ExecutionRepo
	WorkflowRepo  *repo.WorkflowRepo
	Logger        *slog.Logger
	BatchSize     int // количество schedules за один тик (default: 100)
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		scheduleRepo:  cfg.ScheduleRepo,
		executionRepo: cfg.ExecutionRepo,
		workflowRepo:  cfg.WorkflowRepo,
		logger:        logger,
		batchSize:     batchSize,
	}
}

// Tick выполняет один тик планировщика.
//
// 1. Находит due schedules (enabled=true, next_due_at <= now)
// 2. Для каждого schedule создаёт execution в состоянии PENDING
// 3. Обновляет next_due_at
//
// Ошибки одного schedule не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()

	// 1. Находим due schedules
	schedules, err := s.scheduleRepo.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}

	if len(schedules) == 0 {
		return nil
	}

	s.logger.Debug("found due schedules", "count", len(schedules))

	// 2. Обрабатываем каждый schedule
	var processed, created int
	for i := range schedules {
		sched := &schedules[i]

		execCreated, err := s.processSchedule(ctx, sched, now)
		if err != nil {
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
			// Продолжаем обработку остальных
			continue
		}

		processed++
		if execCreated {
			created++
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", len(schedules),
		"processed", processed,
		"executions_created", created,
	)

	return nil
}

// processSchedule обрабатывает один schedule.
// Возвращает true, если execution был создан (не был дубликатом).
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) (bool, error) {
	// 1. Проверяем, что workflow существует и имеет версии
	version, err := s.workflowRepo.GetLatestVersion(ctx, sched.WorkflowID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.logger.Warn("workflow not found for schedule, skipping",
				"schedule_id", sched.ID,
				"workflow_id", sched.WorkflowID,
			)
			// Не возвращаем ошибку — просто пропускаем
			return false, nil
		}
		return false, fmt.Errorf("get latest workflow version: %w", err)
	}

	// 2. Ключ идемпотентности привязан к schedule и конкретному сроку:
	// для одного срока создаётся только один execution
	idempKey := sched.IdempotencyKey(*sched.NextDueAt)

	var execCreated bool
	var executionID uuid.UUID

	exec := &domain.Execution{
		ID:             uuid.New(),
		WorkflowID:     sched.WorkflowID,
		Version:        version.Version,
		State:          domain.StatePending,
		Inputs:         sched.Inputs,
		IdempotencyKey: idempKey,
		CreatedAt:      now,
	}

	switch err := s.executionRepo.Create(ctx, exec); {
	case err == nil:
		s.logger.Info("created execution from schedule",
			"execution_id", exec.ID,
			"schedule_id", sched.ID,
			"schedule_name", sched.Name,
			"workflow_id", sched.WorkflowID,
			"version", version.Version,
		)
		executionID = exec.ID
		execCreated = true

	case errors.Is(err, repo.ErrAlreadyExists):
		// Execution уже создан для этого срока (idempotency)
		existing, err := s.executionRepo.GetByIdempotencyKey(ctx, idempKey)
		if err != nil {
			return false, fmt.Errorf("get existing execution: %w", err)
		}
		s.logger.Debug("execution already exists (idempotency)",
			"schedule_id", sched.ID,
			"execution_id", existing.ID,
			"idempotency_key", idempKey,
		)
		executionID = existing.ID

	default:
		return false, fmt.Errorf("create execution: %w", err)
	}

	// 3. Вычисляем следующее время выполнения
	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		s.logger.Error("failed to calculate next due, leaving schedule untouched",
			"schedule_id", sched.ID,
			"error", err,
		)
		return execCreated, nil
	}

	// 4. Фиксируем запуск и следующий срок
	if err := s.scheduleRepo.MarkTriggered(ctx, sched.ID, executionID, now, &nextDue); err != nil {
		return execCreated, fmt.Errorf("mark schedule triggered: %w", err)
	}

	return execCreated, nil
}

// HandleExecutionFinished — обработчик событий execution.finished.
// Подключается консьюмером к очереди executions.finished и проставляет
// исход последнего запуска в schedule.
func (s *Scheduler) HandleExecutionFinished(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.ExecutionFinishedPayload](&delivery.Message)
	if err != nil {
		return fmt.Errorf("parse execution.finished payload: %w", err)
	}

	if err := s.scheduleRepo.RecordOutcome(ctx, payload.ExecutionID, domain.ExecutionState(payload.State)); err != nil {
		return err
	}

	s.logger.Debug("recorded schedule outcome",
		"execution_id", payload.ExecutionID,
		"state", payload.State,
	)
	return nil
}
