package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Wayfinder/internal/domain"
	"github.com/shaiso/Wayfinder/internal/driver"
	"github.com/shaiso/Wayfinder/internal/engine"
	"github.com/shaiso/Wayfinder/internal/selector"
	"github.com/shaiso/Wayfinder/internal/steps"
	"github.com/shaiso/Wayfinder/internal/telemetry"
	"github.com/shaiso/Wayfinder/internal/timing"
)

// ExecutionStore сохраняет снимки контекста выполнения.
//
// Снимок пишется при паузе, checkpoint'ах и достижении терминального
// состояния. nil store означает выполнение без персистентности.
type ExecutionStore interface {
	SaveSnapshot(ctx context.Context, executionID uuid.UUID, state domain.ExecutionState, snapshot []byte) error
}

// CheckpointStore — опциональное расширение ExecutionStore: store,
// реализующий его, дополнительно получает каждый созданный checkpoint.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, executionID uuid.UUID, cp domain.Checkpoint) error
}

// Orchestrator — движок выполнения workflow.
//
// Ведёт реестр активных executions (executionID → состояние),
// выполняет шаги через реестр обработчиков с политикой retry,
// наблюдает паузу и отмену на границах шагов.
type Orchestrator struct {
	registry *steps.Registry
	resolver *selector.Resolver
	store    ExecutionStore
	observer Observer
	logger   *slog.Logger

	active map[uuid.UUID]*runState
	mu     sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Registry — реестр обработчиков шагов (nil — стандартный).
	Registry *steps.Registry

	// Resolver — self-healing разрешение элементов (nil — по умолчанию).
	Resolver *selector.Resolver

	// Store — персистентность снимков контекста (опционально).
	Store ExecutionStore

	// Observer — получатель событий жизненного цикла (опционально).
	Observer Observer

	// Logger — логгер (nil — slog.Default()).
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	registry := cfg.Registry
	if registry == nil {
		registry = steps.DefaultRegistry()
	}

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = selector.NewResolver(selector.Config{Logger: cfg.Logger})
	}

	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		registry: registry,
		resolver: resolver,
		store:    cfg.Store,
		observer: observer,
		logger:   logger,
		active:   make(map[uuid.UUID]*runState),
	}
}

// ExecuteOptions — параметры запуска execution.
type ExecuteOptions struct {
	// Driver — драйвер управляемой поверхности. Обязателен.
	Driver driver.Driver

	// ExecutionID — заранее присвоенный идентификатор запуска.
	// При uuid.Nil генерируется новый.
	ExecutionID uuid.UUID

	// Inputs — начальные значения переменных поверх defaults workflow.
	Inputs map[string]domain.Value

	// Snapshot — сериализованный контекст для возобновления
	// персистированного execution. При nil создаётся новый контекст.
	Snapshot []byte

	// Timing — адаптивный расчёт таймаутов (nil — новый экземпляр).
	Timing *timing.Adaptive
}

// Execute выполняет workflow до терминального состояния.
//
// Блокируется до COMPLETED, FAILED или CANCELLED; пауза удерживает
// вызов до Resume. Возвращает итоговый контекст выполнения; ошибка
// описывает причину FAILED/CANCELLED.
func (o *Orchestrator) Execute(ctx context.Context, wf *domain.Workflow, opts ExecuteOptions) (*engine.ExecutionContext, error) {
	if opts.Driver == nil {
		return nil, ErrMissingDriver
	}
	if err := validateWorkflow(wf); err != nil {
		return nil, err
	}

	ec, err := o.buildContext(wf, opts)
	if err != nil {
		return nil, err
	}

	adaptive := opts.Timing
	if adaptive == nil {
		adaptive = timing.New()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	run := newRunState(wf, ec, opts.Driver, adaptive)
	run.cancelFunc = cancel

	if err := o.addRun(run); err != nil {
		return ec, err
	}
	defer o.removeRun(run.executionID())

	logger := telemetry.WithWorkflowID(
		telemetry.WithExecutionID(o.logger, ec.ExecutionID()), wf.ID,
	).With("workflow_name", wf.Name)

	// Snapshot паузы возобновляется как RUNNING.
	if st := ec.State(); st == domain.StatePending || st == domain.StatePaused {
		if err := ec.TransitionTo(domain.StateRunning); err != nil {
			return ec, err
		}
	}

	logger.Info("execution started", "total_steps", len(wf.Steps))
	o.emit(runCtx, ec, EventWorkflowStarted, "", map[string]any{
		"workflow_name": wf.Name,
		"total_steps":   len(wf.Steps),
	})

	runErr := o.runLoop(runCtx, run, logger)

	switch {
	case runErr == nil:
		if err := ec.TransitionTo(domain.StateCompleted); err != nil {
			return ec, err
		}
		logger.Info("execution completed",
			"steps_executed", len(ec.Results()),
			"errors", len(ec.Errors()),
		)
		o.emit(ctx, ec, EventWorkflowCompleted, "", map[string]any{
			"steps_executed": len(ec.Results()),
		})

	case runCtx.Err() != nil || ec.IsCancelled():
		if !ec.IsCancelled() {
			if err := ec.TransitionTo(domain.StateCancelled); err != nil {
				return ec, err
			}
		}
		logger.Info("execution cancelled", "step_index", ec.CurrentStepIndex())
		o.emit(context.WithoutCancel(ctx), ec, EventWorkflowCancelled, "", nil)
		runErr = fmt.Errorf("%w: %v", ErrExecutionCancelled, runErr)

	default:
		if err := ec.TransitionTo(domain.StateFailed); err != nil {
			return ec, err
		}
		logger.Error("execution failed",
			"step_index", ec.CurrentStepIndex(),
			"error", runErr,
		)
		o.emit(ctx, ec, EventWorkflowFailed, "", map[string]any{
			"error": runErr.Error(),
		})
	}

	o.persist(context.WithoutCancel(ctx), ec)
	return ec, runErr
}

// Pause запрашивает паузу execution.
// Пауза вступает в силу на ближайшей границе шага.
func (o *Orchestrator) Pause(executionID uuid.UUID) error {
	run := o.getRun(executionID)
	if run == nil {
		return ErrExecutionNotFound
	}
	run.requestPause()
	return nil
}

// Resume возобновляет приостановленный execution.
func (o *Orchestrator) Resume(executionID uuid.UUID) error {
	run := o.getRun(executionID)
	if run == nil {
		return ErrExecutionNotFound
	}
	if !run.resume() {
		return ErrExecutionNotPaused
	}
	return nil
}

// Cancel отменяет execution. Текущий шаг получает отмену контекста.
func (o *Orchestrator) Cancel(executionID uuid.UUID) error {
	run := o.getRun(executionID)
	if run == nil {
		return ErrExecutionNotFound
	}
	run.cancel()
	return nil
}

// RestoreCheckpoint откатывает приостановленный execution к checkpoint.
func (o *Orchestrator) RestoreCheckpoint(executionID, checkpointID uuid.UUID) error {
	run := o.getRun(executionID)
	if run == nil {
		return ErrExecutionNotFound
	}
	if !run.exec.IsPaused() {
		return ErrExecutionNotPaused
	}
	return run.exec.RestoreFromCheckpoint(checkpointID)
}

// Progress возвращает прогресс активного execution.
func (o *Orchestrator) Progress(executionID uuid.UUID) (engine.Progress, bool) {
	run := o.getRun(executionID)
	if run == nil {
		return engine.Progress{}, false
	}
	return run.exec.Progress(), true
}

// ActiveCount возвращает количество активных executions.
func (o *Orchestrator) ActiveCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.active)
}

// runLoop — основной цикл выполнения шагов верхнего уровня.
//
// Пауза и отмена наблюдаются только в начале каждой итерации:
// текущий шаг всегда дорабатывает до конца.
func (o *Orchestrator) runLoop(ctx context.Context, run *runState, logger *slog.Logger) error {
	ec := run.exec
	wfSteps := run.workflow.Steps

	for {
		idx := ec.CurrentStepIndex()
		if idx >= len(wfSteps) {
			return nil
		}

		if err := o.checkpointBoundary(ctx, run, logger); err != nil {
			return err
		}

		step := &wfSteps[idx]
		result, err := o.DispatchStep(ctx, step, ec)
		if err != nil {
			if step.ContinueOnError || run.workflow.Settings.ContinueOnError {
				logger.Warn("step failed, continuing",
					"step_id", step.ID,
					"error", err,
				)
				ec.AdvanceStep()
				continue
			}
			return err
		}

		if result.Signal == domain.SignalReturn {
			logger.Info("early return", "step_id", step.ID)
			return nil
		}
		// break/continue вне цикла не имеют эффекта
		if result.Signal != domain.SignalNone {
			logger.Warn("control signal outside loop ignored",
				"step_id", step.ID,
				"signal", result.Signal,
			)
		}

		ec.AdvanceStep()
	}
}

// checkpointBoundary — граница шага: здесь наблюдаются отмена и пауза.
func (o *Orchestrator) checkpointBoundary(ctx context.Context, run *runState, logger *slog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !run.pausePending() {
		return nil
	}

	ec := run.exec
	resumeCh := run.beginPause()
	if err := ec.TransitionTo(domain.StatePaused); err != nil {
		return err
	}

	logger.Info("execution paused", "step_index", ec.CurrentStepIndex())
	o.emit(ctx, ec, EventWorkflowPaused, "", map[string]any{
		"step_index": ec.CurrentStepIndex(),
	})
	o.persist(ctx, ec)

	select {
	case <-resumeCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ec.TransitionTo(domain.StateRunning); err != nil {
		return err
	}

	logger.Info("execution resumed", "step_index", ec.CurrentStepIndex())
	o.emit(ctx, ec, EventWorkflowResumed, "", map[string]any{
		"step_index": ec.CurrentStepIndex(),
	})
	return nil
}

// buildContext создаёт контекст выполнения: новый либо из снимка.
func (o *Orchestrator) buildContext(wf *domain.Workflow, opts ExecuteOptions) (*engine.ExecutionContext, error) {
	if opts.Snapshot != nil {
		ec, err := engine.Deserialize(opts.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("restore context snapshot: %w", err)
		}
		return ec, nil
	}

	vars := domain.CloneVariables(wf.Variables)
	if vars == nil {
		vars = make(map[string]domain.Value)
	}
	for name, v := range opts.Inputs {
		vars[name] = v.Clone()
	}

	executionID := opts.ExecutionID
	if executionID == uuid.Nil {
		executionID = uuid.New()
	}

	return engine.NewExecutionContext(executionID, wf.ID, len(wf.Steps), vars), nil
}

// persist сохраняет снимок контекста, если настроен store.
func (o *Orchestrator) persist(ctx context.Context, ec *engine.ExecutionContext) {
	if o.store == nil {
		return
	}

	snapshot, err := ec.Serialize()
	if err != nil {
		o.logger.Error("serialize context failed",
			"execution_id", ec.ExecutionID(),
			"error", err,
		)
		return
	}

	if err := o.store.SaveSnapshot(ctx, ec.ExecutionID(), ec.State(), snapshot); err != nil {
		o.logger.Error("persist context failed",
			"execution_id", ec.ExecutionID(),
			"error", err,
		)
	}
}

// emit отправляет событие наблюдателю.
func (o *Orchestrator) emit(ctx context.Context, ec *engine.ExecutionContext, eventType EventType, stepID string, fields map[string]any) {
	o.observer.HandleEvent(ctx, Event{
		Type:        eventType,
		ExecutionID: ec.ExecutionID(),
		WorkflowID:  ec.WorkflowID(),
		StepID:      stepID,
		At:          time.Now().UTC(),
		Fields:      fields,
	})
}

// getRun возвращает активный runState.
func (o *Orchestrator) getRun(executionID uuid.UUID) *runState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.active[executionID]
}

// addRun регистрирует execution в активных.
func (o *Orchestrator) addRun(run *runState) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.active[run.executionID()]; exists {
		return ErrExecutionAlreadyActive
	}
	o.active[run.executionID()] = run
	return nil
}

// removeRun удаляет execution из активных.
func (o *Orchestrator) removeRun(executionID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, executionID)
}

// validateWorkflow проверяет workflow перед выполнением.
func validateWorkflow(wf *domain.Workflow) error {
	issues := engine.Validate(wf)

	fatal := make([]engine.ValidationIssue, 0, len(issues))
	for _, issue := range issues {
		if issue.Severity == engine.SeverityError {
			fatal = append(fatal, issue)
		}
	}
	if len(fatal) > 0 {
		return fmt.Errorf("%w: %v", ErrWorkflowInvalid, &engine.ValidationError{Issues: fatal})
	}
	return nil
}
