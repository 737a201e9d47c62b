package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Wayfinder/internal/domain"
	"github.com/shaiso/Wayfinder/internal/driver"
	"github.com/shaiso/Wayfinder/internal/engine"
	"github.com/shaiso/Wayfinder/internal/selector"
	"github.com/shaiso/Wayfinder/internal/timing"
)

// Ошибки обработчиков шагов.
var (
	// ErrHandlerNotFound — категория шага не найдена в реестре.
	ErrHandlerNotFound = errors.New("step handler not found")

	// ErrInvalidStep — определение шага не проходит Validate.
	ErrInvalidStep = errors.New("invalid step definition")

	// ErrStepCancelled — выполнение шага отменено.
	ErrStepCancelled = errors.New("step execution cancelled")

	// ErrValidationFailed — validation шаг обнаружил несоответствие.
	ErrValidationFailed = errors.New("validation failed")

	// ErrMissingDriver — шагу нужен Target Driver, а он не подключён.
	ErrMissingDriver = errors.New("target driver is not configured")
)

// Handler — обработчик одной категории шагов.
type Handler interface {
	// Type возвращает категорию шага.
	Type() domain.StepType

	// Validate синхронно проверяет определение шага.
	// Вызывается при парсинге и перед выполнением.
	Validate(step *domain.Step) error

	// Execute выполняет шаг. Может блокироваться на вызовах драйвера;
	// обязан учитывать ctx.Done().
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Dispatcher — узкая способность выполнить вложенный шаг.
//
// Оркестратор передаёт себя в Request под этим интерфейсом:
// control шаги выполняют вложенные шаги через единственную
// таблицу диспетчеризации, без циклического импорта.
type Dispatcher interface {
	// DispatchStep выполняет шаг с полной политикой retry
	// и записью результата в контекст.
	DispatchStep(ctx context.Context, step *domain.Step, ec *engine.ExecutionContext) (*domain.StepResult, error)
}

// Request — окружение выполнения шага.
type Request struct {
	// Step — выполняемый шаг.
	Step *domain.Step

	// Exec — контекст выполнения (переменные, прогресс, checkpoints).
	Exec *engine.ExecutionContext

	// Settings — настройки workflow (лимиты циклов, параллельности).
	Settings domain.Settings

	// Driver — граница к управляемой поверхности.
	Driver driver.Driver

	// Resolver — self-healing разрешение элементов.
	Resolver *selector.Resolver

	// Timing — адаптивный расчёт таймаутов.
	Timing *timing.Adaptive

	// Dispatch — выполнение вложенных шагов (для control).
	Dispatch Dispatcher

	// Logger — логгер с контекстом execution.
	Logger *slog.Logger
}

// Response — результат выполнения шага.
type Response struct {
	// Result — полезный результат (извлечённые данные, итог
	// валидации, сводка control шага).
	Result any

	// Target — фактическая цель после подстановки переменных.
	Target string

	// Healed — true, если элемент разрешён fallback-локатором.
	Healed bool

	// Signal — сигнал управления потоком (break/continue/return).
	Signal domain.ControlSignal
}

// Lookup возвращает функцию разрешения переменных текущего контекста.
func (r *Request) Lookup() engine.Lookup {
	return r.Exec.Lookup()
}

// Vars возвращает снимок переменных контекста для вычисления условий.
func (r *Request) Vars() map[string]domain.Value {
	return r.Exec.AllVariables()
}

// SubstitutedTarget возвращает target шага после подстановки переменных.
func (r *Request) SubstitutedTarget() string {
	return engine.Substitute(r.Step.Target, r.Lookup())
}

// SubstitutedValue возвращает value шага после подстановки переменных.
func (r *Request) SubstitutedValue() any {
	return engine.SubstituteAny(r.Step.Value, r.Lookup())
}

// ElementTarget строит описание целевого элемента из шага:
// первичный локатор плюс подсказки из options.hints.
func (r *Request) ElementTarget() domain.ElementTarget {
	target := domain.ElementTarget{
		Primary: r.SubstitutedTarget(),
	}

	hints := OptionMap(r.Step.Options, "hints")
	if hints == nil {
		return target
	}

	target.ID = stringField(hints, "id")
	target.Name = stringField(hints, "name")
	target.Text = stringField(hints, "text")
	target.TagName = stringField(hints, "tag")
	target.Role = stringField(hints, "role")
	target.AccessibleName = stringField(hints, "accessible_name")
	target.StructuralPath = stringField(hints, "structural_path")
	target.VisualFingerprint = stringField(hints, "visual_fingerprint")
	target.DataAttributes = stringMapField(hints, "data_attributes")
	target.Attributes = stringMapField(hints, "attributes")

	if classes, ok := hints["classes"].([]any); ok {
		for _, c := range classes {
			if s, ok := c.(string); ok {
				target.Classes = append(target.Classes, s)
			}
		}
	}

	return target
}

// resolveElement разрешает целевой элемент шага через self-healing поиск.
func resolveElement(ctx context.Context, req *Request) (*selector.Resolution, error) {
	if req.Driver == nil {
		return nil, ErrMissingDriver
	}
	return req.Resolver.Resolve(ctx, req.Driver, req.ElementTarget())
}

// requireTarget возвращает ErrInvalidStep, если у шага нет target.
func requireTarget(step *domain.Step) error {
	if step.Target == "" {
		return fmt.Errorf("%w: action %q requires a target", ErrInvalidStep, step.Action)
	}
	return nil
}

// requireAction возвращает ErrInvalidStep для действия вне списка.
func requireAction(step *domain.Step, actions ...string) error {
	for _, a := range actions {
		if step.Action == a {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown action %q for type %q", ErrInvalidStep, step.Action, step.Type)
}

// OptionString извлекает строковое значение из options.
func OptionString(options map[string]any, key string) string {
	if v, ok := options[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// OptionInt извлекает числовое значение из options.
func OptionInt(options map[string]any, key string) int {
	if v, ok := options[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// OptionBool извлекает булево значение из options.
func OptionBool(options map[string]any, key string, defaultVal bool) bool {
	if v, ok := options[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// OptionMap извлекает map из options.
func OptionMap(options map[string]any, key string) map[string]any {
	if v, ok := options[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}

// OptionList извлекает список из options.
func OptionList(options map[string]any, key string) []any {
	if v, ok := options[key]; ok {
		if l, ok := v.([]any); ok {
			return l
		}
	}
	return nil
}

// OptionStrings извлекает список строк из options.
// Нестроковые элементы пропускаются; JSON-декодер отдаёт списки
// как []any, поэтому принимаются обе формы.
func OptionStrings(options map[string]any, key string) []string {
	if v, ok := options[key].([]string); ok {
		return v
	}
	raw := OptionList(options, key)
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func stringMapField(m map[string]any, key string) map[string]string {
	raw, ok := m[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
