package steps

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/shaiso/Wayfinder/internal/domain"
	"github.com/shaiso/Wayfinder/internal/engine"
)

// Ошибки control шагов.
var (
	// ErrMissingDispatcher — control шагу нужен Dispatcher для
	// выполнения вложенных шагов, а он не подключён.
	ErrMissingDispatcher = errors.New("step dispatcher is not configured")

	// ErrLoopLimitExceeded — цикл превысил лимит итераций.
	ErrLoopLimitExceeded = errors.New("loop iteration limit exceeded")
)

// Ключи options control шагов.
const (
	optLoopMode  = "mode"
	optLoopCount = "count"
	optLoopItems = "items"
	optLoopOver  = "over"
	optItemVar   = "item_variable"
	optIndexVar  = "index_variable"
	optDelayMin  = "min_ms"
	optDelayMax  = "max_ms"

	// Подмножество переменных для снимка checkpoint.
	optCheckpointVars = "variables"
)

// ControlHandler — обработчик шагов управления потоком.
//
// Вложенные шаги выполняются через Dispatcher с полной политикой
// retry и записью результатов, тем же путём, что и шаги верхнего
// уровня. Сигналы break/continue/return всплывают до ближайшего
// цикла или до оркестратора.
type ControlHandler struct{}

// NewControlHandler создаёт ControlHandler.
func NewControlHandler() *ControlHandler {
	return &ControlHandler{}
}

// Type возвращает категорию шага.
func (h *ControlHandler) Type() domain.StepType {
	return domain.StepTypeControl
}

// Validate проверяет определение control шага.
func (h *ControlHandler) Validate(step *domain.Step) error {
	if err := requireAction(step, "if", "loop", "parallel", "delay", "checkpoint", "break", "continue", "return"); err != nil {
		return err
	}
	switch step.Action {
	case "if":
		if step.Condition == nil {
			return fmt.Errorf("%w: if requires a condition", ErrInvalidStep)
		}
	case "loop":
		switch OptionString(step.Options, optLoopMode) {
		case "while":
			if step.Condition == nil {
				return fmt.Errorf("%w: loop mode=while requires a condition", ErrInvalidStep)
			}
		case "for":
			if OptionInt(step.Options, optLoopCount) <= 0 {
				return fmt.Errorf("%w: loop mode=for requires a positive count", ErrInvalidStep)
			}
		case "forEach":
			if OptionString(step.Options, optLoopOver) == "" && OptionList(step.Options, optLoopItems) == nil {
				return fmt.Errorf("%w: loop mode=forEach requires options.over or options.items", ErrInvalidStep)
			}
		default:
			return fmt.Errorf("%w: loop requires options.mode (while, for, forEach)", ErrInvalidStep)
		}
	}
	return nil
}

// Execute выполняет control шаг.
func (h *ControlHandler) Execute(ctx context.Context, req *Request) (*Response, error) {
	switch req.Step.Action {
	case "break":
		return &Response{Signal: domain.SignalBreak}, nil
	case "continue":
		return &Response{Signal: domain.SignalContinue}, nil
	case "return":
		return &Response{Signal: domain.SignalReturn, Result: req.SubstitutedValue()}, nil
	case "checkpoint":
		cp := req.Exec.CreateCheckpoint(req.SubstitutedTarget(),
			OptionStrings(req.Step.Options, optCheckpointVars)...)
		return &Response{Result: map[string]any{
			"checkpoint_id": cp.ID.String(),
			"step_index":    cp.StepIndex,
		}}, nil
	case "delay":
		return h.executeDelay(ctx, req)
	case "if":
		return h.executeIf(ctx, req)
	case "loop":
		return h.executeLoop(ctx, req)
	case "parallel":
		return h.executeParallel(ctx, req)
	}
	return nil, fmt.Errorf("%w: unknown action %q for type %q", ErrInvalidStep, req.Step.Action, req.Step.Type)
}

// executeDelay приостанавливает выполнение: фиксированная длительность
// из value, случайная из диапазона min_ms/max_ms, либо значение
// переменной через подстановку.
func (h *ControlHandler) executeDelay(ctx context.Context, req *Request) (*Response, error) {
	ms := delayMillis(req)
	if ms <= 0 {
		return nil, fmt.Errorf("%w: delay requires a positive duration", ErrInvalidStep)
	}

	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return &Response{Result: map[string]any{"delayed_ms": ms}}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
	}
}

func delayMillis(req *Request) int {
	if lo, hi := OptionInt(req.Step.Options, optDelayMin), OptionInt(req.Step.Options, optDelayMax); hi > lo && lo >= 0 {
		return lo + rand.Intn(hi-lo+1)
	}
	switch v := req.SubstitutedValue().(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

// executeIf выполняет одну из ветвей по условию.
func (h *ControlHandler) executeIf(ctx context.Context, req *Request) (*Response, error) {
	ok, err := engine.EvaluateCondition(req.Step.Condition, req.Vars())
	if err != nil {
		return nil, err
	}

	branch := req.Step.Then
	if !ok {
		branch = req.Step.Else
	}

	signal, err := h.runSequence(ctx, req, branch)
	if err != nil {
		return nil, err
	}

	return &Response{
		Signal: signal,
		Result: map[string]any{"condition": ok, "steps_executed": len(branch)},
	}, nil
}

// executeLoop выполняет тело цикла в режиме while, for или forEach.
// Лимит итераций берётся из настроек workflow и защищает от
// бесконечных while-циклов.
func (h *ControlHandler) executeLoop(ctx context.Context, req *Request) (*Response, error) {
	if req.Dispatch == nil {
		return nil, ErrMissingDispatcher
	}

	limit := req.Settings.MaxLoopIterations
	indexVar := OptionString(req.Step.Options, optIndexVar)
	mode := OptionString(req.Step.Options, optLoopMode)

	iterations := 0
	run := func(i int) (domain.ControlSignal, error) {
		if indexVar != "" {
			req.Exec.SetVariable(indexVar, domain.NumberValue(float64(i)))
		}
		return h.runSequence(ctx, req, req.Step.Body)
	}

	switch mode {
	case "while":
		for {
			if iterations >= limit {
				return nil, fmt.Errorf("%w: %d iterations", ErrLoopLimitExceeded, limit)
			}
			ok, err := engine.EvaluateCondition(req.Step.Condition, req.Vars())
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			signal, err := run(iterations)
			if err != nil {
				return nil, err
			}
			iterations++
			if signal == domain.SignalBreak {
				break
			}
			if signal == domain.SignalReturn {
				return loopResponse(iterations, domain.SignalReturn), nil
			}
		}

	case "for":
		count := OptionInt(req.Step.Options, optLoopCount)
		if count > limit {
			return nil, fmt.Errorf("%w: %d iterations requested, limit %d", ErrLoopLimitExceeded, count, limit)
		}
		// Счётчик итераций для index_variable — 1-based: 1..count.
		for i := 1; i <= count; i++ {
			signal, err := run(i)
			if err != nil {
				return nil, err
			}
			iterations++
			if signal == domain.SignalBreak {
				break
			}
			if signal == domain.SignalReturn {
				return loopResponse(iterations, domain.SignalReturn), nil
			}
		}

	case "forEach":
		items, err := h.forEachItems(req)
		if err != nil {
			return nil, err
		}
		if len(items) > limit {
			return nil, fmt.Errorf("%w: %d items, limit %d", ErrLoopLimitExceeded, len(items), limit)
		}
		itemVar := OptionString(req.Step.Options, optItemVar)
		if itemVar == "" {
			itemVar = "item"
		}
		for i, item := range items {
			req.Exec.SetVariable(itemVar, item)
			signal, err := run(i)
			if err != nil {
				return nil, err
			}
			iterations++
			if signal == domain.SignalBreak {
				break
			}
			if signal == domain.SignalReturn {
				return loopResponse(iterations, domain.SignalReturn), nil
			}
		}
	}

	return loopResponse(iterations, domain.SignalNone), nil
}

func loopResponse(iterations int, signal domain.ControlSignal) *Response {
	return &Response{
		Signal: signal,
		Result: map[string]any{"iterations": iterations},
	}
}

// forEachItems возвращает элементы forEach цикла: список из options.items
// либо значение переменной options.over.
func (h *ControlHandler) forEachItems(req *Request) ([]domain.Value, error) {
	if over := OptionString(req.Step.Options, optLoopOver); over != "" {
		v, ok := req.Exec.GetVariable(over)
		if !ok {
			return nil, fmt.Errorf("%w: %q", engine.ErrUnknownVariable, over)
		}
		if v.Kind() != domain.KindList {
			return nil, fmt.Errorf("%w: variable %q is not a list", ErrInvalidStep, over)
		}
		return v.Items(), nil
	}

	raw := OptionList(req.Step.Options, optLoopItems)
	items := make([]domain.Value, 0, len(raw))
	for _, it := range raw {
		items = append(items, domain.FromAny(engine.SubstituteAny(it, req.Lookup())))
	}
	return items, nil
}

// runSequence выполняет вложенные шаги последовательно через Dispatcher.
// Возвращает первый всплывший сигнал управления потоком.
func (h *ControlHandler) runSequence(ctx context.Context, req *Request, body []domain.Step) (domain.ControlSignal, error) {
	if len(body) == 0 {
		return domain.SignalNone, nil
	}
	if req.Dispatch == nil {
		return domain.SignalNone, ErrMissingDispatcher
	}

	for i := range body {
		select {
		case <-ctx.Done():
			return domain.SignalNone, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
		default:
		}

		result, err := req.Dispatch.DispatchStep(ctx, &body[i], req.Exec)
		if err != nil {
			if body[i].ContinueOnError {
				continue
			}
			return domain.SignalNone, err
		}
		if result.Signal != domain.SignalNone {
			return result.Signal, nil
		}
	}
	return domain.SignalNone, nil
}

// executeParallel выполняет вложенные шаги конкурентно с ограничением
// параллельности. Результаты собираются в исходном порядке шагов.
// Сигналы управления потоком внутри parallel игнорируются.
func (h *ControlHandler) executeParallel(ctx context.Context, req *Request) (*Response, error) {
	if req.Dispatch == nil {
		return nil, ErrMissingDispatcher
	}

	limit := OptionInt(req.Step.Options, "max_concurrency")
	if limit <= 0 {
		limit = req.Settings.MaxConcurrency
	}
	if limit <= 0 {
		limit = 1
	}

	type slot struct {
		result *domain.StepResult
		err    error
	}

	slots := make([]slot, len(req.Step.Body))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i := range req.Step.Body {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				slots[i].err = fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
				return
			}
			slots[i].result, slots[i].err = req.Dispatch.DispatchStep(ctx, &req.Step.Body[i], req.Exec)
		}(i)
	}
	wg.Wait()

	results := make([]any, len(slots))
	succeeded := 0
	var firstErr error
	for i, s := range slots {
		if s.err != nil {
			results[i] = map[string]any{"error": s.err.Error()}
			if firstErr == nil {
				firstErr = s.err
			}
			continue
		}
		results[i] = s.result.Result
		succeeded++
	}

	resp := &Response{Result: map[string]any{
		"results":   results,
		"succeeded": succeeded,
		"total":     len(slots),
	}}

	if firstErr != nil && !req.Step.ContinueOnError {
		return resp, fmt.Errorf("parallel branch failed: %w", firstErr)
	}
	return resp, nil
}
