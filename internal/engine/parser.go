package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Wayfinder/internal/domain"
)

// Значения по умолчанию для определения workflow.
const (
	defaultStepTimeout       = 30 * time.Second
	defaultMaxLoopIterations = 1000
	defaultMaxConcurrency    = 4
)

// supportedActions — таблица поддерживаемых пар категория/действие.
var supportedActions = map[domain.StepType]map[string]bool{
	domain.StepTypeNavigation: {
		"goto": true, "back": true, "forward": true, "refresh": true, "close": true,
	},
	domain.StepTypeInteraction: {
		"click": true, "type": true, "select": true, "hover": true,
		"scroll": true, "drag": true, "focus": true, "blur": true,
	},
	domain.StepTypeExtraction: {
		"getText": true, "getAttribute": true, "getMultiple": true,
		"screenshot": true, "getHtml": true, "getUrl": true,
		"getCookies": true, "getLocalStorage": true,
	},
	domain.StepTypeValidation: {
		"checkExists": true, "checkText": true, "checkAttribute": true,
		"checkUrl": true, "checkVisible": true, "checkEnabled": true,
		"checkValue": true, "checkCount": true, "checkCondition": true,
	},
	domain.StepTypeControl: {
		"if": true, "loop": true, "parallel": true, "delay": true,
		"checkpoint": true, "break": true, "continue": true, "return": true,
	},
	domain.StepTypeVariable: {
		"set": true, "increment": true, "append": true, "delete": true,
	},
	domain.StepTypeWait: {
		"duration": true, "selector": true, "url": true, "loadState": true,
	},
}

// targetlessActions — действия, которым target не требуется.
var targetlessActions = map[string]bool{
	"back": true, "forward": true, "refresh": true, "close": true,
	"scroll": true, "screenshot": true, "getUrl": true,
	"getCookies": true, "getLocalStorage": true,
	"checkUrl": true, "checkCondition": true,
	"if": true, "loop": true, "parallel": true, "delay": true,
	"checkpoint": true, "break": true, "continue": true, "return": true,
	"duration": true, "url": true, "loadState": true,
}

// rawStep — шаг до нормализации. Поддерживает авторские алиасы:
// "selector" → target, "text" → value.
type rawStep struct {
	ID              string               `json:"id"`
	Type            string               `json:"type"`
	Action          string               `json:"action"`
	Target          string               `json:"target"`
	Selector        string               `json:"selector"`
	Value           any                  `json:"value"`
	Text            any                  `json:"text"`
	TimeoutMs       int                  `json:"timeout_ms"`
	Retry           *domain.RetryOptions `json:"retry"`
	Condition       *domain.Condition    `json:"condition"`
	ContinueOnError bool                 `json:"continue_on_error"`
	StoreAs         string               `json:"store_as"`
	Options         map[string]any       `json:"options"`
	Then            []rawStep            `json:"then"`
	Else            []rawStep            `json:"else"`
	Body            []rawStep            `json:"body"`
}

// rawWorkflow — определение до нормализации.
type rawWorkflow struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Steps       []rawStep        `json:"steps"`
	Variables   map[string]any   `json:"variables"`
	Settings    *domain.Settings `json:"settings"`
}

// Parse разбирает и валидирует определение workflow из JSON.
//
// Неизвестные поля игнорируются; отсутствующие обязательные поля
// и прочие проблемы накапливаются в *ValidationError со всеми
// найденными нарушениями сразу.
func Parse(raw []byte) (*domain.Workflow, error) {
	var rw rawWorkflow
	if err := json.Unmarshal(raw, &rw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}

	wf := normalize(&rw)

	issues := Validate(wf)
	if hasErrors(issues) {
		return nil, &ValidationError{Issues: errorsOnly(issues)}
	}

	return wf, nil
}

// normalize приводит сырое определение к каноничной форме:
// разворачивает алиасы, присваивает id и таймауты по умолчанию.
func normalize(rw *rawWorkflow) *domain.Workflow {
	id := uuid.Nil
	if rw.ID != "" {
		if parsed, err := uuid.Parse(rw.ID); err == nil {
			id = parsed
		}
	}
	if id == uuid.Nil {
		id = uuid.New()
	}

	settings := domain.Settings{}
	if rw.Settings != nil {
		settings = *rw.Settings
	}
	if settings.TimeoutMs <= 0 {
		settings.TimeoutMs = int(defaultStepTimeout / time.Millisecond)
	}
	if settings.MaxLoopIterations <= 0 {
		settings.MaxLoopIterations = defaultMaxLoopIterations
	}
	if settings.MaxConcurrency <= 0 {
		settings.MaxConcurrency = defaultMaxConcurrency
	}

	variables := make(map[string]domain.Value, len(rw.Variables))
	for name, v := range rw.Variables {
		variables[name] = domain.FromAny(v)
	}

	seq := 0
	steps := normalizeSteps(rw.Steps, &seq)

	return &domain.Workflow{
		ID:          id,
		Name:        rw.Name,
		Description: rw.Description,
		Steps:       steps,
		Variables:   variables,
		Settings:    settings,
		CreatedAt:   time.Now().UTC(),
	}
}

// normalizeSteps нормализует список шагов, рекурсивно обходя
// вложенные ветки. seq — сквозной счётчик для id по умолчанию.
func normalizeSteps(raw []rawStep, seq *int) []domain.Step {
	steps := make([]domain.Step, 0, len(raw))
	for i := range raw {
		steps = append(steps, normalizeStep(&raw[i], seq))
	}
	return steps
}

func normalizeStep(rs *rawStep, seq *int) domain.Step {
	*seq++

	step := domain.Step{
		ID:              rs.ID,
		Type:            domain.StepType(rs.Type),
		Action:          rs.Action,
		Target:          rs.Target,
		Value:           rs.Value,
		TimeoutMs:       rs.TimeoutMs,
		Retry:           rs.Retry,
		Condition:       rs.Condition,
		ContinueOnError: rs.ContinueOnError,
		StoreAs:         rs.StoreAs,
		Options:         rs.Options,
	}

	// Алиасы: "selector" → target, "text" → value
	if step.Target == "" && rs.Selector != "" {
		step.Target = rs.Selector
	}
	if step.Value == nil && rs.Text != nil {
		step.Value = rs.Text
	}

	if step.ID == "" {
		step.ID = fmt.Sprintf("step_%d", *seq)
	}

	step.Then = normalizeSteps(rs.Then, seq)
	step.Else = normalizeSteps(rs.Else, seq)
	step.Body = normalizeSteps(rs.Body, seq)

	return step
}

// Validate выполняет полную валидацию определения workflow.
//
// Возвращает все найденные проблемы (errors и warnings) за один проход.
// Пустой список означает валидное определение.
func Validate(wf *domain.Workflow) []ValidationIssue {
	var issues []ValidationIssue

	if wf == nil || len(wf.Steps) == 0 {
		issues = append(issues, ValidationIssue{
			Field:    "steps",
			Message:  "workflow has no steps",
			Severity: SeverityError,
			Err:      ErrEmptySteps,
		})
		return issues
	}

	stepIDs := make(map[string]bool)
	issues = append(issues, validateSteps(wf.Steps, stepIDs)...)

	return issues
}

// validateSteps валидирует шаги, рекурсивно обходя вложенные ветки.
// stepIDs — уже встреченные ID (уникальность в рамках всего workflow).
func validateSteps(steps []domain.Step, stepIDs map[string]bool) []ValidationIssue {
	var issues []ValidationIssue

	for i := range steps {
		step := &steps[i]
		issues = append(issues, validateStep(step, stepIDs)...)

		for _, nested := range [][]domain.Step{step.Then, step.Else, step.Body} {
			issues = append(issues, validateSteps(nested, stepIDs)...)
		}
	}

	return issues
}

// validateStep валидирует один шаг.
func validateStep(step *domain.Step, stepIDs map[string]bool) []ValidationIssue {
	var issues []ValidationIssue

	if step.ID == "" {
		issues = append(issues, ValidationIssue{
			Field:    "id",
			Message:  "step has empty ID",
			Severity: SeverityError,
			Err:      ErrEmptyStepID,
		})
	} else if stepIDs[step.ID] {
		issues = append(issues, ValidationIssue{
			StepID:   step.ID,
			Field:    "id",
			Message:  fmt.Sprintf("duplicate step ID: %s", step.ID),
			Severity: SeverityError,
			Err:      ErrDuplicateStepID,
		})
	} else {
		stepIDs[step.ID] = true
	}

	actions, knownType := supportedActions[step.Type]
	if !knownType {
		issues = append(issues, ValidationIssue{
			StepID:   step.ID,
			Field:    "type",
			Message:  fmt.Sprintf("unknown step type: %q", step.Type),
			Severity: SeverityError,
			Err:      ErrUnknownStepType,
		})
		return issues
	}

	if step.Action == "" || !actions[step.Action] {
		issues = append(issues, ValidationIssue{
			StepID:   step.ID,
			Field:    "action",
			Message:  fmt.Sprintf("action %q is not supported for type %q", step.Action, step.Type),
			Severity: SeverityError,
			Err:      ErrUnknownAction,
		})
		return issues
	}

	if step.Target == "" && !targetlessActions[step.Action] {
		issues = append(issues, ValidationIssue{
			StepID:   step.ID,
			Field:    "target",
			Message:  fmt.Sprintf("action %q requires a target", step.Action),
			Severity: SeverityError,
			Err:      ErrMissingTarget,
		})
	}

	issues = append(issues, validateControlStep(step)...)

	// Извлечённый результат без store_as теряется — предупреждаем.
	if step.Type == domain.StepTypeExtraction && step.StoreAs == "" {
		issues = append(issues, ValidationIssue{
			StepID:   step.ID,
			Field:    "store_as",
			Message:  "extraction result is not stored anywhere",
			Severity: SeverityWarning,
		})
	}

	return issues
}

// validateControlStep проверяет структуру control шагов.
func validateControlStep(step *domain.Step) []ValidationIssue {
	if step.Type != domain.StepTypeControl {
		return nil
	}

	var issues []ValidationIssue

	switch step.Action {
	case "if":
		if step.Condition == nil {
			issues = append(issues, ValidationIssue{
				StepID:   step.ID,
				Field:    "condition",
				Message:  "if step requires a condition",
				Severity: SeverityError,
				Err:      ErrUnknownAction,
			})
		}
		if len(step.Then) == 0 && len(step.Else) == 0 {
			issues = append(issues, ValidationIssue{
				StepID:   step.ID,
				Field:    "then",
				Message:  "if step has no branches",
				Severity: SeverityWarning,
			})
		}
	case "loop", "parallel":
		if len(step.Body) == 0 {
			issues = append(issues, ValidationIssue{
				StepID:   step.ID,
				Field:    "body",
				Message:  fmt.Sprintf("%s step has empty body", step.Action),
				Severity: SeverityWarning,
			})
		}
	}

	return issues
}

// hasErrors возвращает true, если среди проблем есть уровень error.
func hasErrors(issues []ValidationIssue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// errorsOnly отфильтровывает warnings.
func errorsOnly(issues []ValidationIssue) []ValidationIssue {
	out := make([]ValidationIssue, 0, len(issues))
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			out = append(out, issue)
		}
	}
	return out
}
