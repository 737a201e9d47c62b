package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Wayfinder/internal/domain"
	"github.com/shaiso/Wayfinder/internal/driver"
	"github.com/shaiso/Wayfinder/internal/timing"
)

// Ключи options навигации.
const (
	optWaitUntil = "wait_until"
	optWaitFor   = "wait_for"
)

// NavigationHandler — обработчик навигационных шагов.
//
// Действия:
//   - goto — переход по URL (с подстановкой переменных в target);
//     поддерживает wait_until и необязательное пост-навигационное
//     условие ожидания wait_for
//   - back, forward, refresh, close — без target
type NavigationHandler struct{}

// NewNavigationHandler создаёт NavigationHandler.
func NewNavigationHandler() *NavigationHandler {
	return &NavigationHandler{}
}

// Type возвращает категорию шага.
func (h *NavigationHandler) Type() domain.StepType {
	return domain.StepTypeNavigation
}

// Validate проверяет определение навигационного шага.
func (h *NavigationHandler) Validate(step *domain.Step) error {
	if err := requireAction(step, "goto", "back", "forward", "refresh", "close"); err != nil {
		return err
	}
	if step.Action == "goto" {
		return requireTarget(step)
	}
	return nil
}

// Execute выполняет навигацию.
func (h *NavigationHandler) Execute(ctx context.Context, req *Request) (*Response, error) {
	if req.Driver == nil {
		return nil, ErrMissingDriver
	}

	if req.Step.Action != "goto" {
		// back/forward/refresh/close — действия уровня страницы
		outcome, err := req.Driver.Act(ctx, nil, req.Step.Action, driver.ActionOptions{})
		if err != nil {
			return nil, err
		}
		return &Response{Result: outcome.Detail}, nil
	}

	url := req.SubstitutedTarget()

	start := time.Now()
	result, err := req.Driver.Navigate(ctx, url, driver.NavigateOptions{
		WaitUntil: OptionString(req.Step.Options, optWaitUntil),
	})
	if req.Timing != nil {
		req.Timing.Record("navigate", time.Since(start), err == nil)
	}
	if err != nil {
		return nil, fmt.Errorf("navigate to %s: %w", url, err)
	}

	// Необязательное пост-навигационное условие ожидания
	if waitFor := OptionMap(req.Step.Options, optWaitFor); waitFor != nil {
		if err := h.waitAfterNavigation(ctx, req, waitFor); err != nil {
			return nil, fmt.Errorf("post-navigation wait: %w", err)
		}
	}

	return &Response{
		Target: url,
		Result: map[string]any{
			"status":    result.Status,
			"final_url": result.FinalURL,
		},
	}, nil
}

// waitAfterNavigation выполняет пост-навигационное ожидание:
// селектор, шаблон URL или load-state.
func (h *NavigationHandler) waitAfterNavigation(ctx context.Context, req *Request, waitFor map[string]any) error {
	cond := driver.WaitCondition{
		Kind:       stringField(waitFor, "kind"),
		Selector:   stringField(waitFor, "selector"),
		URLPattern: stringField(waitFor, "url"),
		LoadState:  stringField(waitFor, "load_state"),
	}

	// Вид условия выводится из заполненных полей, если не задан явно
	if cond.Kind == "" {
		switch {
		case cond.Selector != "":
			cond.Kind = "selector"
		case cond.URLPattern != "":
			cond.Kind = "url"
		default:
			cond.Kind = "load_state"
		}
	}

	timeout := req.Step.EffectiveTimeout(req.Settings)
	if req.Timing != nil {
		plan := req.Timing.Calculate("navigate_wait", timeout)
		timeout = plan.Timeout
		if plan.Strategy == timing.StrategyNetworkIdle && cond.Kind == "load_state" && cond.LoadState == "" {
			cond.LoadState = "networkidle"
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return req.Driver.WaitFor(waitCtx, cond)
}
