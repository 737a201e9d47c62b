package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shaiso/Wayfinder/internal/domain"
	"github.com/shaiso/Wayfinder/internal/driver"
	"github.com/shaiso/Wayfinder/internal/engine"
	"github.com/shaiso/Wayfinder/internal/selector"
	"github.com/shaiso/Wayfinder/internal/steps"
	"github.com/shaiso/Wayfinder/internal/telemetry"
)

// Значения retry по умолчанию.
const (
	defaultRetryDelay = time.Second
	defaultMaxDelay   = 30 * time.Second
)

// DispatchStep выполняет один шаг с полной политикой retry.
//
// Через этот метод проходят и шаги верхнего уровня, и вложенные шаги
// control обработчиков — единственная точка диспетчеризации.
// При transient ошибке шаг повторяется с backoff задержкой; лимит
// попыток действует на step ID в пределах всего execution, чтобы
// шаг внутри цикла не умножал свои попытки на каждой итерации.
func (o *Orchestrator) DispatchStep(ctx context.Context, step *domain.Step, ec *engine.ExecutionContext) (*domain.StepResult, error) {
	run := o.getRun(ec.ExecutionID())
	if run == nil {
		return nil, ErrExecutionNotFound
	}

	handler, err := o.registry.Get(step.Type)
	if err != nil {
		return nil, err
	}
	if err := handler.Validate(step); err != nil {
		return nil, fmt.Errorf("step %s: %w", step.ID, err)
	}

	maxRetries := retryBudget(step, run.workflow.Settings)
	logger := telemetry.WithStepID(
		telemetry.WithExecutionID(o.logger, ec.ExecutionID()), step.ID,
	).With("action", step.Action)

	for {
		attempt := run.usedRetries(step.ID) + 1

		o.emit(ctx, ec, EventStepStarted, step.ID, map[string]any{
			"action":  step.Action,
			"attempt": attempt,
		})

		result, execErr := o.executeOnce(ctx, run, handler, step, ec)
		if execErr == nil {
			o.recordSuccess(ctx, run, step, ec, result, logger)
			return result, nil
		}

		ec.RecordError(domain.ExecutionError{
			StepID:    step.ID,
			Type:      classifyError(execErr),
			Message:   execErr.Error(),
			Attempt:   attempt,
			Timestamp: time.Now().UTC(),
		})

		retryable := isTransient(execErr) && ctx.Err() == nil
		if !retryable || run.usedRetries(step.ID) >= maxRetries {
			result.Success = false
			result.Error = execErr.Error()
			ec.RecordResult(*result)

			logger.Error("step failed",
				"attempt", attempt,
				"error_type", classifyError(execErr),
				"error", execErr,
			)
			o.emit(ctx, ec, EventStepFailed, step.ID, map[string]any{
				"action":     step.Action,
				"attempt":    attempt,
				"error_type": classifyError(execErr),
				"error":      execErr.Error(),
			})
			return result, engine.NewStepExecutionError(step.ID, step.Action,
				time.Duration(result.ExecutionTimeMs)*time.Millisecond, execErr)
		}

		used := run.consumeRetry(step.ID)
		delay := retryDelay(used, step.Retry)

		logger.Warn("step failed, retrying",
			"attempt", attempt,
			"error_type", classifyError(execErr),
			"delay", delay,
			"error", execErr,
		)
		o.emit(ctx, ec, EventStepRetrying, step.ID, map[string]any{
			"attempt": attempt,
			"delay":   delay.String(),
		})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		// Пауза наблюдаема и между повторными попытками
		if err := o.checkpointBoundary(ctx, run, logger); err != nil {
			return nil, err
		}
	}
}

// executeOnce выполняет одну попытку шага и строит его StepResult.
func (o *Orchestrator) executeOnce(ctx context.Context, run *runState, handler steps.Handler, step *domain.Step, ec *engine.ExecutionContext) (*domain.StepResult, error) {
	stepCtx := ctx
	// Шаги с вложенными телами не ограничиваются собственным таймаутом:
	// их длительность определяют вложенные шаги
	if step.Type != domain.StepTypeControl {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, step.EffectiveTimeout(run.workflow.Settings))
		defer cancel()
	}

	req := &steps.Request{
		Step:     step,
		Exec:     ec,
		Settings: run.workflow.Settings,
		Driver:   run.driver,
		Resolver: o.resolver,
		Timing:   run.timing,
		Dispatch: o,
		Logger:   o.logger,
	}

	start := time.Now()
	resp, err := handler.Execute(stepCtx, req)
	elapsed := time.Since(start)

	result := &domain.StepResult{
		StepID:          step.ID,
		Action:          step.Action,
		ExecutionTimeMs: elapsed.Milliseconds(),
		Timestamp:       time.Now().UTC(),
	}

	if err != nil {
		if stepCtx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("%w: %v", driver.ErrTimeout, err)
		}
		return result, err
	}

	result.Success = true
	result.Result = resp.Result
	result.Target = resp.Target
	result.Healed = resp.Healed
	result.Signal = resp.Signal
	return result, nil
}

// recordSuccess фиксирует успешный результат: переменная store_as,
// запись в контекст, события.
func (o *Orchestrator) recordSuccess(ctx context.Context, run *runState, step *domain.Step, ec *engine.ExecutionContext, result *domain.StepResult, logger *slog.Logger) {
	if step.StoreAs != "" && result.Result != nil {
		ec.SetVariable(step.StoreAs, domain.FromAny(result.Result))
	}

	ec.RecordResult(*result)

	if result.Healed {
		logger.Info("element resolved via fallback locator", "target", result.Target)
	}
	logger.Debug("step completed",
		"elapsed_ms", result.ExecutionTimeMs,
		"healed", result.Healed,
	)

	fields := map[string]any{
		"action":     step.Action,
		"elapsed_ms": result.ExecutionTimeMs,
	}
	if result.Healed {
		fields["healed"] = true
	}
	o.emit(ctx, ec, EventStepCompleted, step.ID, fields)

	if step.Type == domain.StepTypeControl && step.Action == "checkpoint" {
		o.emit(ctx, ec, EventCheckpointCreated, step.ID, nil)
		if cs, ok := o.store.(CheckpointStore); ok {
			cps := ec.Checkpoints()
			if len(cps) > 0 {
				if err := cs.SaveCheckpoint(ctx, ec.ExecutionID(), cps[len(cps)-1]); err != nil {
					logger.Error("persist checkpoint failed", "error", err)
				}
			}
		}
		o.persist(ctx, ec)
	}
}

// retryBudget возвращает лимит повторных попыток шага.
func retryBudget(step *domain.Step, settings domain.Settings) int {
	if step.Retry != nil {
		return step.Retry.MaxRetries
	}
	return settings.RetryAttempts
}

// retryDelay вычисляет задержку перед повтором.
func retryDelay(attempt int, policy *domain.RetryOptions) time.Duration {
	if policy == nil {
		return defaultRetryDelay
	}

	initialDelay := time.Duration(policy.RetryDelayMs) * time.Millisecond
	if initialDelay <= 0 {
		initialDelay = defaultRetryDelay
	}

	maxDelay := time.Duration(policy.MaxDelayMs) * time.Millisecond
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	delay := initialDelay
	if policy.Backoff == "exponential" {
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay > maxDelay {
				break
			}
		}
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// isTransient определяет, имеет ли смысл повторять шаг.
//
// Transient: таймауты, сетевые сбои, неразрешённые элементы, ошибки
// загрузки страницы. Не повторяются проваленные валидации, ошибки
// определения шага и неизвестные переменные.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, steps.ErrValidationFailed),
		errors.Is(err, steps.ErrInvalidStep),
		errors.Is(err, steps.ErrStepCancelled),
		errors.Is(err, engine.ErrUnknownVariable),
		errors.Is(err, driver.ErrUnsupportedAction),
		errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, driver.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrNotFound),
		errors.Is(err, driver.ErrNotInteractable),
		errors.Is(err, selector.ErrElementNotResolvable):
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"network", "connection", "page load", "timeout"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// classifyError возвращает класс ошибки для записей ExecutionError.
func classifyError(err error) string {
	switch {
	case errors.Is(err, steps.ErrValidationFailed):
		return "validation"
	case errors.Is(err, selector.ErrElementNotResolvable),
		errors.Is(err, driver.ErrNotFound):
		return "element_not_resolvable"
	case errors.Is(err, driver.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, steps.ErrInvalidStep):
		return "invalid_step"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "network"), strings.Contains(msg, "connection"):
		return "network"
	case strings.Contains(msg, "page load"):
		return "page_load"
	}
	return "step_execution"
}
