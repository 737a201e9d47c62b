package steps

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shaiso/Wayfinder/internal/domain"
	"github.com/shaiso/Wayfinder/internal/driver"
)

// WaitHandler — обработчик шагов ожидания.
//
// Таймаут ожидания проходит через адаптивный расчёт: базовое значение
// масштабируется по истории реального поведения страницы.
type WaitHandler struct{}

// NewWaitHandler создаёт WaitHandler.
func NewWaitHandler() *WaitHandler {
	return &WaitHandler{}
}

// Type возвращает категорию шага.
func (h *WaitHandler) Type() domain.StepType {
	return domain.StepTypeWait
}

// Validate проверяет определение шага ожидания.
func (h *WaitHandler) Validate(step *domain.Step) error {
	if err := requireAction(step, "duration", "selector", "url", "loadState"); err != nil {
		return err
	}
	switch step.Action {
	case "duration":
		if step.Value == nil {
			return fmt.Errorf("%w: duration requires a value in milliseconds", ErrInvalidStep)
		}
	case "selector", "url":
		return requireTarget(step)
	}
	return nil
}

// Execute выполняет ожидание.
func (h *WaitHandler) Execute(ctx context.Context, req *Request) (*Response, error) {
	if req.Step.Action == "duration" {
		return h.waitDuration(ctx, req)
	}

	if req.Driver == nil {
		return nil, ErrMissingDriver
	}

	cond := driver.WaitCondition{}
	switch req.Step.Action {
	case "selector":
		cond.Kind = "selector"
		cond.Selector = req.SubstitutedTarget()
	case "url":
		cond.Kind = "url"
		cond.URLPattern = req.SubstitutedTarget()
	case "loadState":
		cond.Kind = "load_state"
		cond.LoadState = req.Step.Target
		if cond.LoadState == "" {
			cond.LoadState = "load"
		}
	}

	timeout := req.Step.EffectiveTimeout(req.Settings)
	if req.Timing != nil {
		timeout = req.Timing.Calculate("wait_"+req.Step.Action, timeout).Timeout
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := req.Driver.WaitFor(waitCtx, cond)
	if req.Timing != nil {
		req.Timing.Record("wait_"+req.Step.Action, time.Since(start), err == nil)
	}
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", req.Step.Action, err)
	}

	return &Response{
		Target: req.SubstitutedTarget(),
		Result: map[string]any{"waited_ms": time.Since(start).Milliseconds()},
	}, nil
}

// waitDuration — фиксированная пауза из value (миллисекунды).
func (h *WaitHandler) waitDuration(ctx context.Context, req *Request) (*Response, error) {
	var ms int
	switch v := req.SubstitutedValue().(type) {
	case float64:
		ms = int(v)
	case int:
		ms = v
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid duration %q", ErrInvalidStep, v)
		}
		ms = n
	default:
		return nil, fmt.Errorf("%w: duration requires a numeric value", ErrInvalidStep)
	}
	if ms <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidStep)
	}

	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return &Response{Result: map[string]any{"waited_ms": ms}}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
	}
}
