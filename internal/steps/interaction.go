package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Wayfinder/internal/domain"
	"github.com/shaiso/Wayfinder/internal/driver"
)

// Ключи options взаимодействия.
const (
	optTypingDelay = "typing_delay"
	optDeferChange = "defer_change"
)

// InteractionHandler — обработчик шагов взаимодействия с элементами.
//
// Все действия, кроме scroll без target (прокрутка страницы), проходят
// через self-healing разрешение элемента: сначала авторский локатор,
// затем ранжированные fallback-кандидаты.
type InteractionHandler struct{}

// NewInteractionHandler создаёт InteractionHandler.
func NewInteractionHandler() *InteractionHandler {
	return &InteractionHandler{}
}

// Type возвращает категорию шага.
func (h *InteractionHandler) Type() domain.StepType {
	return domain.StepTypeInteraction
}

// Validate проверяет определение шага взаимодействия.
func (h *InteractionHandler) Validate(step *domain.Step) error {
	if err := requireAction(step, "click", "type", "select", "hover", "scroll", "drag", "focus", "blur"); err != nil {
		return err
	}
	if step.Action != "scroll" {
		if err := requireTarget(step); err != nil {
			return err
		}
	}
	switch step.Action {
	case "type", "select":
		if step.Value == nil {
			return fmt.Errorf("%w: action %q requires a value", ErrInvalidStep, step.Action)
		}
	}
	return nil
}

// Execute выполняет взаимодействие.
func (h *InteractionHandler) Execute(ctx context.Context, req *Request) (*Response, error) {
	if req.Driver == nil {
		return nil, ErrMissingDriver
	}

	opts := driver.ActionOptions{
		Value:       req.SubstitutedValue(),
		TypingDelay: OptionInt(req.Step.Options, optTypingDelay),
		DeferChange: OptionBool(req.Step.Options, optDeferChange, false),
	}

	// Прокрутка страницы — действие без элемента
	if req.Step.Action == "scroll" && req.Step.Target == "" {
		outcome, err := req.Driver.Act(ctx, nil, req.Step.Action, opts)
		if err != nil {
			return nil, err
		}
		return &Response{Result: outcome.Detail}, nil
	}

	res, err := resolveElement(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	outcome, err := req.Driver.Act(ctx, res.Element, req.Step.Action, opts)
	if req.Timing != nil {
		req.Timing.Record(req.Step.Action, time.Since(start), err == nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%s on %q: %w", req.Step.Action, res.Outcome.Used.Selector, err)
	}

	return &Response{
		Target: res.Outcome.Used.Selector,
		Healed: res.Outcome.Healed,
		Result: outcome.Detail,
	}, nil
}
