package steps

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shaiso/Wayfinder/internal/domain"
	"github.com/shaiso/Wayfinder/internal/driver"
)

// extractionModes — соответствие действий извлечения режимам драйвера.
var extractionModes = map[string]driver.ExtractMode{
	"getText":         driver.ExtractText,
	"getAttribute":    driver.ExtractAttribute,
	"getMultiple":     driver.ExtractMultiple,
	"getHtml":         driver.ExtractHTML,
	"screenshot":      driver.ExtractScreenshot,
	"getUrl":          driver.ExtractURL,
	"getCookies":      driver.ExtractCookies,
	"getLocalStorage": driver.ExtractLocalStorage,
}

// pageLevelExtraction — действия, которым не нужен целевой элемент.
var pageLevelExtraction = map[string]bool{
	"getUrl":          true,
	"getCookies":      true,
	"getLocalStorage": true,
}

// ExtractionHandler — обработчик шагов извлечения данных.
//
// Результат проходит через конвейер пост-обработки (trim, case,
// replace, regex) и возвращается оркестратору для сохранения
// под store_as.
type ExtractionHandler struct{}

// NewExtractionHandler создаёт ExtractionHandler.
func NewExtractionHandler() *ExtractionHandler {
	return &ExtractionHandler{}
}

// Type возвращает категорию шага.
func (h *ExtractionHandler) Type() domain.StepType {
	return domain.StepTypeExtraction
}

// Validate проверяет определение шага извлечения.
func (h *ExtractionHandler) Validate(step *domain.Step) error {
	if _, ok := extractionModes[step.Action]; !ok {
		return fmt.Errorf("%w: unknown action %q for type %q", ErrInvalidStep, step.Action, step.Type)
	}
	if step.Action == "getAttribute" && OptionString(step.Options, "attribute") == "" {
		return fmt.Errorf("%w: getAttribute requires options.attribute", ErrInvalidStep)
	}
	if !pageLevelExtraction[step.Action] && step.Action != "screenshot" {
		return requireTarget(step)
	}
	return nil
}

// Execute выполняет извлечение данных.
func (h *ExtractionHandler) Execute(ctx context.Context, req *Request) (*Response, error) {
	if req.Driver == nil {
		return nil, ErrMissingDriver
	}

	extractReq := driver.ExtractRequest{
		Mode:      extractionModes[req.Step.Action],
		Attribute: OptionString(req.Step.Options, "attribute"),
	}

	healed := false
	usedSelector := ""

	switch {
	case pageLevelExtraction[req.Step.Action]:
		// Извлечение уровня страницы — без элемента

	case req.Step.Action == "screenshot" && req.Step.Target == "":
		// Скриншот всей страницы

	case req.Step.Action == "getMultiple":
		// Все совпадения первичного локатора, без self-healing
		extractReq.Selector = req.SubstitutedTarget()

	default:
		res, err := resolveElement(ctx, req)
		if err != nil {
			return nil, err
		}
		extractReq.Element = res.Element
		healed = res.Outcome.Healed
		usedSelector = res.Outcome.Used.Selector
	}

	start := time.Now()
	raw, err := req.Driver.Extract(ctx, extractReq)
	if req.Timing != nil {
		req.Timing.Record(req.Step.Action, time.Since(start), err == nil)
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", req.Step.Action, err)
	}

	result, err := applyPostProcessing(raw, req.Step.Options)
	if err != nil {
		return nil, err
	}

	return &Response{
		Target: usedSelector,
		Healed: healed,
		Result: result,
	}, nil
}

// applyPostProcessing применяет конвейер пост-обработки к извлечённому
// значению: trim, case, replace, regex. Нестроковые значения проходят
// без изменений.
func applyPostProcessing(raw any, options map[string]any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return raw, nil
	}

	if OptionBool(options, "trim", false) {
		s = strings.TrimSpace(s)
	}

	switch OptionString(options, "case") {
	case "upper":
		s = strings.ToUpper(s)
	case "lower":
		s = strings.ToLower(s)
	}

	if repl := OptionMap(options, "replace"); repl != nil {
		s = strings.ReplaceAll(s, stringField(repl, "from"), stringField(repl, "to"))
	}

	if pattern := OptionString(options, "regex"); pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid regex %q: %v", ErrInvalidStep, pattern, err)
		}
		match := re.FindStringSubmatch(s)
		switch {
		case match == nil:
			s = ""
		case len(match) > 1:
			s = match[1]
		default:
			s = match[0]
		}
	}

	return s, nil
}
