package steps

import (
	"context"
	"fmt"

	"github.com/shaiso/Wayfinder/internal/domain"
	"github.com/shaiso/Wayfinder/internal/engine"
)

// VariableHandler — обработчик операций над переменными контекста.
// Target шага — имя переменной.
type VariableHandler struct{}

// NewVariableHandler создаёт VariableHandler.
func NewVariableHandler() *VariableHandler {
	return &VariableHandler{}
}

// Type возвращает категорию шага.
func (h *VariableHandler) Type() domain.StepType {
	return domain.StepTypeVariable
}

// Validate проверяет определение шага.
func (h *VariableHandler) Validate(step *domain.Step) error {
	if err := requireAction(step, "set", "increment", "append", "delete"); err != nil {
		return err
	}
	if err := requireTarget(step); err != nil {
		return err
	}
	if step.Action == "set" && step.Value == nil {
		return fmt.Errorf("%w: set requires a value", ErrInvalidStep)
	}
	return nil
}

// Execute выполняет операцию над переменной.
func (h *VariableHandler) Execute(ctx context.Context, req *Request) (*Response, error) {
	name := req.Step.Target

	switch req.Step.Action {
	case "set":
		value := domain.FromAny(req.SubstitutedValue())
		req.Exec.SetVariable(name, value)
		return &Response{Target: name, Result: value.Any()}, nil

	case "increment":
		current := req.Exec.GetVariableOr(name, domain.NumberValue(0))
		base, ok := current.AsNumber()
		if !ok {
			return nil, fmt.Errorf("%w: variable %q is not numeric", ErrInvalidStep, name)
		}
		delta := 1.0
		if req.Step.Value != nil {
			d, ok := domain.FromAny(req.SubstitutedValue()).AsNumber()
			if !ok {
				return nil, fmt.Errorf("%w: increment value is not numeric", ErrInvalidStep)
			}
			delta = d
		}
		next := domain.NumberValue(base + delta)
		req.Exec.SetVariable(name, next)
		return &Response{Target: name, Result: next.Any()}, nil

	case "append":
		current, ok := req.Exec.GetVariable(name)
		if ok && current.Kind() != domain.KindList {
			return nil, fmt.Errorf("%w: variable %q is not a list", ErrInvalidStep, name)
		}
		var items []domain.Value
		if ok {
			items = current.Items()
		}
		items = append(items, domain.FromAny(req.SubstitutedValue()))
		next := domain.ListValue(items)
		req.Exec.SetVariable(name, next)
		return &Response{Target: name, Result: map[string]any{"length": len(items)}}, nil

	case "delete":
		if _, ok := req.Exec.GetVariable(name); !ok {
			return nil, fmt.Errorf("%w: %q", engine.ErrUnknownVariable, name)
		}
		req.Exec.DeleteVariable(name)
		return &Response{Target: name}, nil
	}

	return nil, fmt.Errorf("%w: unknown action %q for type %q", ErrInvalidStep, req.Step.Action, req.Step.Type)
}
