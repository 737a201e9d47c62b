package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Wayfinder/internal/domain"
	"github.com/shaiso/Wayfinder/internal/driver"
	"github.com/shaiso/Wayfinder/internal/engine"
	"github.com/shaiso/Wayfinder/internal/selector"
)

// Ключи options валидации.
const (
	optOperator    = "operator"
	optFailOnError = "fail_on_error"
)

// ValidationHandler — обработчик проверочных шагов.
//
// Каждая проверка возвращает запись {valid, expected, actual, message}.
// Непройденная проверка завершается ErrValidationFailed, если
// fail_on_error не выключен явно.
type ValidationHandler struct{}

// NewValidationHandler создаёт ValidationHandler.
func NewValidationHandler() *ValidationHandler {
	return &ValidationHandler{}
}

// Type возвращает категорию шага.
func (h *ValidationHandler) Type() domain.StepType {
	return domain.StepTypeValidation
}

// Validate проверяет определение проверочного шага.
func (h *ValidationHandler) Validate(step *domain.Step) error {
	if err := requireAction(step,
		"checkExists", "checkText", "checkAttribute", "checkUrl",
		"checkVisible", "checkEnabled", "checkValue", "checkCount",
		"checkCondition"); err != nil {
		return err
	}
	switch step.Action {
	case "checkUrl":
		if step.Value == nil {
			return fmt.Errorf("%w: checkUrl requires a value", ErrInvalidStep)
		}
	case "checkCondition":
		if step.Condition == nil {
			return fmt.Errorf("%w: checkCondition requires a condition", ErrInvalidStep)
		}
	case "checkAttribute":
		if OptionString(step.Options, "attribute") == "" {
			return fmt.Errorf("%w: checkAttribute requires options.attribute", ErrInvalidStep)
		}
		fallthrough
	default:
		return requireTarget(step)
	}
	return nil
}

// Execute выполняет проверку.
func (h *ValidationHandler) Execute(ctx context.Context, req *Request) (*Response, error) {
	record, healed, err := h.check(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &Response{Result: record, Healed: healed}
	if !record["valid"].(bool) && OptionBool(req.Step.Options, optFailOnError, true) {
		return resp, fmt.Errorf("%w: %s", ErrValidationFailed, record["message"])
	}
	return resp, nil
}

// check выполняет конкретную проверку и строит её запись.
func (h *ValidationHandler) check(ctx context.Context, req *Request) (map[string]any, bool, error) {
	if req.Step.Action == "checkCondition" {
		ok, err := engine.EvaluateCondition(req.Step.Condition, req.Vars())
		if err != nil {
			return nil, false, err
		}
		return validationRecord(ok, true, ok, "condition"), false, nil
	}

	if req.Driver == nil {
		return nil, false, ErrMissingDriver
	}

	operator := OptionString(req.Step.Options, optOperator)
	if operator == "" {
		operator = "equals"
	}
	expected := req.SubstitutedValue()

	switch req.Step.Action {
	case "checkExists":
		res, err := resolveElement(ctx, req)
		if err != nil {
			var nre *selector.NotResolvableError
			if errors.As(err, &nre) {
				want := expectedBool(expected, true)
				return validationRecord(!want, want, false, "element existence"), false, nil
			}
			return nil, false, err
		}
		want := expectedBool(expected, true)
		return validationRecord(want, want, true, "element existence"), res.Outcome.Healed, nil

	case "checkVisible", "checkEnabled":
		res, err := resolveElement(ctx, req)
		if err != nil {
			return nil, false, err
		}
		actual := res.Element.Visible
		if req.Step.Action == "checkEnabled" {
			actual = res.Element.Enabled
		}
		want := expectedBool(expected, true)
		return validationRecord(actual == want, want, actual, req.Step.Action), res.Outcome.Healed, nil

	case "checkUrl":
		actual, err := req.Driver.CurrentURL(ctx)
		if err != nil {
			return nil, false, err
		}
		ok, err := engine.Compare(operator, domain.StringValue(actual), domain.FromAny(expected))
		if err != nil {
			return nil, false, err
		}
		return validationRecord(ok, expected, actual, "page url"), false, nil

	case "checkCount":
		count, err := req.Driver.MatchCount(ctx, req.SubstitutedTarget())
		if err != nil {
			return nil, false, err
		}
		ok, err := engine.Compare(operator, domain.NumberValue(float64(count)), domain.FromAny(expected))
		if err != nil {
			return nil, false, err
		}
		return validationRecord(ok, expected, count, "element count"), false, nil

	case "checkText", "checkAttribute", "checkValue":
		res, err := resolveElement(ctx, req)
		if err != nil {
			return nil, false, err
		}
		extractReq := driver.ExtractRequest{Mode: driver.ExtractText, Element: res.Element}
		switch req.Step.Action {
		case "checkAttribute":
			extractReq.Mode = driver.ExtractAttribute
			extractReq.Attribute = OptionString(req.Step.Options, "attribute")
		case "checkValue":
			extractReq.Mode = driver.ExtractAttribute
			extractReq.Attribute = "value"
		}
		raw, err := req.Driver.Extract(ctx, extractReq)
		if err != nil {
			return nil, false, err
		}
		ok, err := engine.Compare(operator, domain.FromAny(raw), domain.FromAny(expected))
		if err != nil {
			return nil, false, err
		}
		return validationRecord(ok, expected, raw, req.Step.Action), res.Outcome.Healed, nil
	}

	return nil, false, fmt.Errorf("%w: unknown action %q for type %q", ErrInvalidStep, req.Step.Action, req.Step.Type)
}

// validationRecord строит запись результата проверки.
func validationRecord(valid bool, expected, actual any, subject string) map[string]any {
	message := fmt.Sprintf("%s: expected %v, got %v", subject, expected, actual)
	if valid {
		message = fmt.Sprintf("%s: ok", subject)
	}
	return map[string]any{
		"valid":    valid,
		"expected": expected,
		"actual":   actual,
		"message":  message,
	}
}

// expectedBool трактует ожидаемое значение булевой проверки.
func expectedBool(expected any, defaultVal bool) bool {
	if b, ok := expected.(bool); ok {
		return b
	}
	return defaultVal
}
