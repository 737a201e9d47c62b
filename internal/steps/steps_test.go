package steps

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Wayfinder/internal/domain"
	"github.com/shaiso/Wayfinder/internal/driver"
	"github.com/shaiso/Wayfinder/internal/driver/sim"
	"github.com/shaiso/Wayfinder/internal/engine"
	"github.com/shaiso/Wayfinder/internal/selector"
)

// fakeDispatcher — Dispatcher для тестов control шагов.
//
// Variable шаги выполняются по-настоящему (циклы мутируют контекст),
// остальные записываются. Ошибки и результаты скриптуются по step ID.
type fakeDispatcher struct {
	mu       sync.Mutex
	executed []string
	scripted map[string]*domain.StepResult
	errs     map[string]error
}

func (d *fakeDispatcher) DispatchStep(ctx context.Context, step *domain.Step, ec *engine.ExecutionContext) (*domain.StepResult, error) {
	d.mu.Lock()
	d.executed = append(d.executed, step.ID)
	d.mu.Unlock()

	if err := d.errs[step.ID]; err != nil {
		return nil, err
	}
	if result, ok := d.scripted[step.ID]; ok {
		return result, nil
	}

	if step.Type == domain.StepTypeVariable {
		resp, err := NewVariableHandler().Execute(ctx, &Request{Step: step, Exec: ec})
		if err != nil {
			return nil, err
		}
		return &domain.StepResult{StepID: step.ID, Success: true, Result: resp.Result}, nil
	}

	return &domain.StepResult{StepID: step.ID, Success: true}, nil
}

func (d *fakeDispatcher) calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.executed))
	copy(out, d.executed)
	return out
}

func testSettings() domain.Settings {
	return domain.Settings{
		TimeoutMs:         5000,
		MaxLoopIterations: 100,
		MaxConcurrency:    4,
	}
}

func newRequest(step *domain.Step, d driver.Driver, dispatch Dispatcher) *Request {
	return &Request{
		Step:     step,
		Exec:     engine.NewExecutionContext(uuid.New(), uuid.New(), 1, nil),
		Settings: testSettings(),
		Driver:   d,
		Resolver: selector.NewResolver(selector.Config{}),
		Dispatch: dispatch,
	}
}

func formPage() *sim.Page {
	return &sim.Page{
		URL:   "https://example.com/form",
		Title: "Form",
		HTML:  "<form></form>",
		Elements: []*sim.Element{
			{ID: "email-1", Tag: "input", Visible: true, Enabled: true,
				Attributes: map[string]string{"type": "email"},
				Selectors:  []string{"#email", `[name="email"]`}},
			{ID: "submit-1", Tag: "button", Text: "  Sign In  ", Visible: true, Enabled: true,
				Selectors: []string{"#submit"}},
			{ID: "banner-1", Tag: "div", Text: "Welcome", Visible: false, Enabled: true,
				Selectors: []string{"#banner"}},
		},
	}
}

// Registry

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	expected := []domain.StepType{
		domain.StepTypeNavigation,
		domain.StepTypeInteraction,
		domain.StepTypeExtraction,
		domain.StepTypeValidation,
		domain.StepTypeControl,
		domain.StepTypeVariable,
		domain.StepTypeWait,
	}
	for _, typ := range expected {
		if !r.Has(typ) {
			t.Errorf("default registry should have %s", typ)
		}
	}
	if len(r.Types()) != len(expected) {
		t.Errorf("expected %d types, got %d", len(expected), len(r.Types()))
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("unknown")
	if !errors.Is(err, ErrHandlerNotFound) {
		t.Errorf("expected ErrHandlerNotFound, got %v", err)
	}
}

// Navigation

func TestNavigationHandler_Goto(t *testing.T) {
	d := sim.New(formPage())
	h := NewNavigationHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeNavigation, Action: "goto",
		Target: "https://example.com/{{page}}"}
	req := newRequest(step, d, nil)
	req.Exec.SetVariable("page", domain.StringValue("form"))

	resp, err := h.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Target != "https://example.com/form" {
		t.Errorf("variables must be substituted in the target, got %q", resp.Target)
	}
	result := resp.Result.(map[string]any)
	if result["status"] != 200 {
		t.Errorf("expected status 200, got %v", result["status"])
	}
	if url, _ := d.CurrentURL(context.Background()); url != "https://example.com/form" {
		t.Errorf("driver must be on the target page, got %s", url)
	}
}

func TestNavigationHandler_Back(t *testing.T) {
	d := sim.New(formPage())
	if _, err := d.Navigate(context.Background(), "https://example.com/next", driver.NavigateOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := NewNavigationHandler()
	step := &domain.Step{ID: "s1", Type: domain.StepTypeNavigation, Action: "back"}

	if _, err := h.Execute(context.Background(), newRequest(step, d, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url, _ := d.CurrentURL(context.Background()); url != "https://example.com/form" {
		t.Errorf("expected the previous page, got %s", url)
	}
}

func TestNavigationHandler_Validate(t *testing.T) {
	h := NewNavigationHandler()

	err := h.Validate(&domain.Step{ID: "s1", Type: domain.StepTypeNavigation, Action: "goto"})
	if !errors.Is(err, ErrInvalidStep) {
		t.Errorf("goto without target must fail validation, got %v", err)
	}

	if err := h.Validate(&domain.Step{ID: "s1", Type: domain.StepTypeNavigation, Action: "refresh"}); err != nil {
		t.Errorf("refresh needs no target: %v", err)
	}
}

func TestNavigationHandler_MissingDriver(t *testing.T) {
	h := NewNavigationHandler()
	step := &domain.Step{ID: "s1", Type: domain.StepTypeNavigation, Action: "goto", Target: "https://x"}

	_, err := h.Execute(context.Background(), newRequest(step, nil, nil))
	if !errors.Is(err, ErrMissingDriver) {
		t.Errorf("expected ErrMissingDriver, got %v", err)
	}
}

// Interaction

func TestInteractionHandler_Type(t *testing.T) {
	d := sim.New(formPage())
	h := NewInteractionHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeInteraction, Action: "type",
		Target: "#email", Value: "{{user}}@example.com"}
	req := newRequest(step, d, nil)
	req.Exec.SetVariable("user", domain.StringValue("admin"))

	resp, err := h.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Healed {
		t.Error("direct hit must not be healed")
	}

	el, err := d.Locate(context.Background(), domain.SelectorCandidate{Selector: "#email"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := d.Extract(context.Background(), driver.ExtractRequest{
		Mode: driver.ExtractAttribute, Element: el, Attribute: "value",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "admin@example.com" {
		t.Errorf("expected substituted value typed in, got %v", got)
	}
}

func TestInteractionHandler_HealsStaleSelector(t *testing.T) {
	d := sim.New(formPage())
	h := NewInteractionHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeInteraction, Action: "click",
		Target: "#email-old",
		Options: map[string]any{
			"hints": map[string]any{"name": "email"},
		}}

	resp, err := h.Execute(context.Background(), newRequest(step, d, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Healed {
		t.Error("stale selector with live hints must heal")
	}
	if resp.Target != `[name="email"]` {
		t.Errorf("expected the fallback locator, got %q", resp.Target)
	}
}

func TestInteractionHandler_NotResolvable(t *testing.T) {
	d := sim.New(formPage())
	h := NewInteractionHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeInteraction, Action: "click", Target: "#missing"}

	_, err := h.Execute(context.Background(), newRequest(step, d, nil))
	if !errors.Is(err, selector.ErrElementNotResolvable) {
		t.Errorf("expected ErrElementNotResolvable, got %v", err)
	}
}

func TestInteractionHandler_Validate(t *testing.T) {
	h := NewInteractionHandler()

	tests := []struct {
		name    string
		step    *domain.Step
		wantErr bool
	}{
		{
			name:    "type without value",
			step:    &domain.Step{Type: domain.StepTypeInteraction, Action: "type", Target: "#x"},
			wantErr: true,
		},
		{
			name:    "click without target",
			step:    &domain.Step{Type: domain.StepTypeInteraction, Action: "click"},
			wantErr: true,
		},
		{
			name: "page scroll without target",
			step: &domain.Step{Type: domain.StepTypeInteraction, Action: "scroll"},
		},
		{
			name: "valid type",
			step: &domain.Step{Type: domain.StepTypeInteraction, Action: "type", Target: "#x", Value: "v"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Validate(tt.step)
			if tt.wantErr && !errors.Is(err, ErrInvalidStep) {
				t.Errorf("expected ErrInvalidStep, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// Extraction

func TestExtractionHandler_GetTextWithPostProcessing(t *testing.T) {
	d := sim.New(formPage())
	h := NewExtractionHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeExtraction, Action: "getText",
		Target: "#submit", StoreAs: "label",
		Options: map[string]any{"trim": true, "case": "lower"}}

	resp, err := h.Execute(context.Background(), newRequest(step, d, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Result != "sign in" {
		t.Errorf("expected trimmed lowercase text, got %v", resp.Result)
	}
}

func TestExtractionHandler_RegexCaptureGroup(t *testing.T) {
	page := &sim.Page{
		URL: "https://example.com/order",
		Elements: []*sim.Element{
			{ID: "t-1", Tag: "span", Text: "Order #4211 confirmed", Visible: true, Enabled: true,
				Selectors: []string{"#status"}},
		},
	}
	d := sim.New(page)
	h := NewExtractionHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeExtraction, Action: "getText",
		Target: "#status", StoreAs: "order",
		Options: map[string]any{"regex": `#(\d+)`}}

	resp, err := h.Execute(context.Background(), newRequest(step, d, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Result != "4211" {
		t.Errorf("expected the capture group, got %v", resp.Result)
	}
}

func TestExtractionHandler_GetMultiple(t *testing.T) {
	page := &sim.Page{
		URL: "https://example.com/list",
		Elements: []*sim.Element{
			{ID: "i1", Tag: "li", Text: "Widget", Visible: true, Enabled: true, Selectors: []string{".item"}},
			{ID: "i2", Tag: "li", Text: "Gadget", Visible: true, Enabled: true, Selectors: []string{".item"}},
		},
	}
	d := sim.New(page)
	h := NewExtractionHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeExtraction, Action: "getMultiple",
		Target: ".item", StoreAs: "items"}

	resp, err := h.Execute(context.Background(), newRequest(step, d, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(resp.Result, []any{"Widget", "Gadget"}) {
		t.Errorf("expected all matches, got %v", resp.Result)
	}
}

func TestExtractionHandler_PageLevel(t *testing.T) {
	d := sim.New(formPage())
	d.SetCookie("session", "abc")
	h := NewExtractionHandler()

	t.Run("getUrl", func(t *testing.T) {
		step := &domain.Step{ID: "s1", Type: domain.StepTypeExtraction, Action: "getUrl", StoreAs: "u"}
		resp, err := h.Execute(context.Background(), newRequest(step, d, nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Result != "https://example.com/form" {
			t.Errorf("unexpected url: %v", resp.Result)
		}
	})

	t.Run("getCookies", func(t *testing.T) {
		step := &domain.Step{ID: "s1", Type: domain.StepTypeExtraction, Action: "getCookies", StoreAs: "c"}
		resp, err := h.Execute(context.Background(), newRequest(step, d, nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(resp.Result, map[string]any{"session": "abc"}) {
			t.Errorf("unexpected cookies: %v", resp.Result)
		}
	})
}

func TestExtractionHandler_Validate(t *testing.T) {
	h := NewExtractionHandler()

	err := h.Validate(&domain.Step{Type: domain.StepTypeExtraction, Action: "getAttribute", Target: "#x"})
	if !errors.Is(err, ErrInvalidStep) {
		t.Errorf("getAttribute without options.attribute must fail, got %v", err)
	}

	if err := h.Validate(&domain.Step{Type: domain.StepTypeExtraction, Action: "screenshot"}); err != nil {
		t.Errorf("page screenshot needs no target: %v", err)
	}
}

// Validation

func TestValidationHandler_CheckExists(t *testing.T) {
	d := sim.New(formPage())
	h := NewValidationHandler()

	t.Run("present element passes", func(t *testing.T) {
		step := &domain.Step{ID: "s1", Type: domain.StepTypeValidation, Action: "checkExists", Target: "#email"}
		resp, err := h.Execute(context.Background(), newRequest(step, d, nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		record := resp.Result.(map[string]any)
		if record["valid"] != true {
			t.Errorf("expected valid record, got %v", record)
		}
	})

	t.Run("missing element fails the step", func(t *testing.T) {
		step := &domain.Step{ID: "s1", Type: domain.StepTypeValidation, Action: "checkExists", Target: "#missing"}
		_, err := h.Execute(context.Background(), newRequest(step, d, nil))
		if !errors.Is(err, ErrValidationFailed) {
			t.Errorf("expected ErrValidationFailed, got %v", err)
		}
	})

	t.Run("fail_on_error off records without failing", func(t *testing.T) {
		step := &domain.Step{ID: "s1", Type: domain.StepTypeValidation, Action: "checkExists",
			Target: "#missing", Options: map[string]any{"fail_on_error": false}}
		resp, err := h.Execute(context.Background(), newRequest(step, d, nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		record := resp.Result.(map[string]any)
		if record["valid"] != false {
			t.Errorf("expected invalid record, got %v", record)
		}
	})

	t.Run("expected absence", func(t *testing.T) {
		step := &domain.Step{ID: "s1", Type: domain.StepTypeValidation, Action: "checkExists",
			Target: "#missing", Value: false}
		resp, err := h.Execute(context.Background(), newRequest(step, d, nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Result.(map[string]any)["valid"] != true {
			t.Error("absence expectation must pass for a missing element")
		}
	})
}

func TestValidationHandler_CheckText(t *testing.T) {
	d := sim.New(formPage())
	h := NewValidationHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeValidation, Action: "checkText",
		Target: "#submit", Value: "Sign",
		Options: map[string]any{"operator": "contains"}}

	resp, err := h.Execute(context.Background(), newRequest(step, d, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Result.(map[string]any)["valid"] != true {
		t.Errorf("expected contains match, got %v", resp.Result)
	}
}

func TestValidationHandler_CheckVisible(t *testing.T) {
	d := sim.New(formPage())
	h := NewValidationHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeValidation, Action: "checkVisible",
		Target: "#banner"}

	_, err := h.Execute(context.Background(), newRequest(step, d, nil))
	if !errors.Is(err, ErrValidationFailed) {
		t.Errorf("hidden element must fail checkVisible, got %v", err)
	}
}

func TestValidationHandler_CheckCount(t *testing.T) {
	page := &sim.Page{
		URL: "https://example.com/list",
		Elements: []*sim.Element{
			{ID: "i1", Tag: "li", Visible: true, Enabled: true, Selectors: []string{".item"}},
			{ID: "i2", Tag: "li", Visible: true, Enabled: true, Selectors: []string{".item"}},
			{ID: "i3", Tag: "li", Visible: true, Enabled: true, Selectors: []string{".item"}},
		},
	}
	d := sim.New(page)
	h := NewValidationHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeValidation, Action: "checkCount",
		Target: ".item", Value: 2,
		Options: map[string]any{"operator": "greaterThan"}}

	resp, err := h.Execute(context.Background(), newRequest(step, d, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Result.(map[string]any)["valid"] != true {
		t.Errorf("expected 3 > 2, got %v", resp.Result)
	}
}

func TestValidationHandler_CheckURL(t *testing.T) {
	d := sim.New(formPage())
	h := NewValidationHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeValidation, Action: "checkUrl",
		Value: "example.com",
		Options: map[string]any{"operator": "contains"}}

	resp, err := h.Execute(context.Background(), newRequest(step, d, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Result.(map[string]any)["valid"] != true {
		t.Errorf("expected url match, got %v", resp.Result)
	}
}

func TestValidationHandler_CheckCondition(t *testing.T) {
	h := NewValidationHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeValidation, Action: "checkCondition",
		Condition: &domain.Condition{Expression: "attempts < 3"}}
	req := newRequest(step, nil, nil)
	req.Exec.SetVariable("attempts", domain.NumberValue(1))

	resp, err := h.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Result.(map[string]any)["valid"] != true {
		t.Errorf("expected condition to hold, got %v", resp.Result)
	}
}

// Control

func TestControlHandler_Signals(t *testing.T) {
	h := NewControlHandler()

	tests := []struct {
		action string
		want   domain.ControlSignal
	}{
		{action: "break", want: domain.SignalBreak},
		{action: "continue", want: domain.SignalContinue},
		{action: "return", want: domain.SignalReturn},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			step := &domain.Step{ID: "s1", Type: domain.StepTypeControl, Action: tt.action}
			resp, err := h.Execute(context.Background(), newRequest(step, nil, nil))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Signal != tt.want {
				t.Errorf("expected signal %s, got %s", tt.want, resp.Signal)
			}
		})
	}
}

func TestControlHandler_Checkpoint(t *testing.T) {
	h := NewControlHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeControl, Action: "checkpoint",
		Target: "after {{phase}}"}
	req := newRequest(step, nil, nil)
	req.Exec.SetVariable("phase", domain.StringValue("login"))

	if _, err := h.Execute(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cps := req.Exec.Checkpoints()
	if len(cps) != 1 {
		t.Fatalf("expected 1 checkpoint, got %d", len(cps))
	}
	if cps[0].Description != "after login" {
		t.Errorf("description must be substituted, got %q", cps[0].Description)
	}
}

func TestControlHandler_CheckpointVariableSubset(t *testing.T) {
	h := NewControlHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeControl, Action: "checkpoint",
		Target:  "before purge",
		Options: map[string]any{"variables": []any{"session", "missing"}}}
	req := newRequest(step, nil, nil)
	req.Exec.SetVariable("session", domain.StringValue("abc"))
	req.Exec.SetVariable("scratch", domain.NumberValue(42))

	if _, err := h.Execute(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cps := req.Exec.Checkpoints()
	if len(cps) != 1 {
		t.Fatalf("expected 1 checkpoint, got %d", len(cps))
	}
	vars := cps[0].Variables
	if len(vars) != 1 {
		t.Fatalf("snapshot must hold only the named variables, got %v", vars)
	}
	if v, ok := vars["session"]; !ok || v.Text() != "abc" {
		t.Errorf("expected session in the snapshot, got %v", vars)
	}
}

func TestControlHandler_If(t *testing.T) {
	h := NewControlHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeControl, Action: "if",
		Condition: &domain.Condition{Variable: "logged_in"},
		Then:      []domain.Step{{ID: "then-1", Type: domain.StepTypeNavigation, Action: "refresh"}},
		Else:      []domain.Step{{ID: "else-1", Type: domain.StepTypeNavigation, Action: "back"}},
	}

	t.Run("then branch", func(t *testing.T) {
		dispatch := &fakeDispatcher{}
		req := newRequest(step, nil, dispatch)
		req.Exec.SetVariable("logged_in", domain.BoolValue(true))

		if _, err := h.Execute(context.Background(), req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(dispatch.calls(), []string{"then-1"}) {
			t.Errorf("expected then branch, got %v", dispatch.calls())
		}
	})

	t.Run("else branch", func(t *testing.T) {
		dispatch := &fakeDispatcher{}
		req := newRequest(step, nil, dispatch)
		req.Exec.SetVariable("logged_in", domain.BoolValue(false))

		if _, err := h.Execute(context.Background(), req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(dispatch.calls(), []string{"else-1"}) {
			t.Errorf("expected else branch, got %v", dispatch.calls())
		}
	})
}

func TestControlHandler_LoopFor(t *testing.T) {
	h := NewControlHandler()
	dispatch := &fakeDispatcher{}

	step := &domain.Step{ID: "s1", Type: domain.StepTypeControl, Action: "loop",
		Options: map[string]any{"mode": "for", "count": 3, "index_variable": "i"},
		Body: []domain.Step{
			{ID: "body-1", Type: domain.StepTypeVariable, Action: "increment", Target: "total"},
			{ID: "body-2", Type: domain.StepTypeVariable, Action: "append",
				Target: "indices", Value: "{{i}}"},
		}}

	req := newRequest(step, nil, dispatch)
	req.Exec.SetVariable("total", domain.NumberValue(0))

	resp, err := h.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Result.(map[string]any)["iterations"] != 3 {
		t.Errorf("expected 3 iterations, got %v", resp.Result)
	}
	if v, _ := req.Exec.GetVariable("total"); v.Any() != 3.0 {
		t.Errorf("body must run 3 times, total=%v", v)
	}
	// Счётчик итераций 1-based: 1, 2, 3.
	indices, _ := req.Exec.GetVariable("indices")
	if !reflect.DeepEqual(indices.Any(), []any{1.0, 2.0, 3.0}) {
		t.Errorf("index variable must count from 1, got %v", indices.Any())
	}
	if v, _ := req.Exec.GetVariable("i"); v.Any() != 3.0 {
		t.Errorf("index variable must hold the last index, got %v", v)
	}
}

func TestControlHandler_LoopWhile(t *testing.T) {
	h := NewControlHandler()
	dispatch := &fakeDispatcher{}

	step := &domain.Step{ID: "s1", Type: domain.StepTypeControl, Action: "loop",
		Condition: &domain.Condition{Expression: "counter < 3"},
		Options:   map[string]any{"mode": "while"},
		Body: []domain.Step{
			{ID: "body-1", Type: domain.StepTypeVariable, Action: "increment", Target: "counter"},
		}}

	req := newRequest(step, nil, dispatch)
	req.Exec.SetVariable("counter", domain.NumberValue(0))

	resp, err := h.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Result.(map[string]any)["iterations"] != 3 {
		t.Errorf("expected 3 iterations, got %v", resp.Result)
	}
}

func TestControlHandler_LoopWhileLimit(t *testing.T) {
	h := NewControlHandler()
	dispatch := &fakeDispatcher{}

	step := &domain.Step{ID: "s1", Type: domain.StepTypeControl, Action: "loop",
		Condition: &domain.Condition{Literal: truePtr()},
		Options:   map[string]any{"mode": "while"},
		Body: []domain.Step{
			{ID: "body-1", Type: domain.StepTypeNavigation, Action: "refresh"},
		}}

	req := newRequest(step, nil, dispatch)
	req.Settings.MaxLoopIterations = 5

	_, err := h.Execute(context.Background(), req)
	if !errors.Is(err, ErrLoopLimitExceeded) {
		t.Errorf("expected ErrLoopLimitExceeded, got %v", err)
	}
	if got := len(dispatch.calls()); got != 5 {
		t.Errorf("expected exactly 5 iterations before the limit, got %d", got)
	}
}

func TestControlHandler_LoopForEach(t *testing.T) {
	h := NewControlHandler()
	dispatch := &fakeDispatcher{}

	step := &domain.Step{ID: "s1", Type: domain.StepTypeControl, Action: "loop",
		Options: map[string]any{
			"mode":          "forEach",
			"over":          "names",
			"item_variable": "name",
		},
		Body: []domain.Step{
			{ID: "body-1", Type: domain.StepTypeVariable, Action: "append",
				Target: "seen", Value: "{{name}}"},
		}}

	req := newRequest(step, nil, dispatch)
	req.Exec.SetVariable("names", domain.ListValue([]domain.Value{
		domain.StringValue("alice"),
		domain.StringValue("bob"),
	}))

	resp, err := h.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Result.(map[string]any)["iterations"] != 2 {
		t.Errorf("expected 2 iterations, got %v", resp.Result)
	}

	seen, _ := req.Exec.GetVariable("seen")
	if !reflect.DeepEqual(seen.Any(), []any{"alice", "bob"}) {
		t.Errorf("expected each item substituted into the body, got %v", seen.Any())
	}
}

func TestControlHandler_LoopForEachOverNonList(t *testing.T) {
	h := NewControlHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeControl, Action: "loop",
		Options: map[string]any{"mode": "forEach", "over": "name"},
		Body:    []domain.Step{{ID: "b", Type: domain.StepTypeNavigation, Action: "refresh"}}}

	req := newRequest(step, nil, &fakeDispatcher{})
	req.Exec.SetVariable("name", domain.StringValue("not-a-list"))

	_, err := h.Execute(context.Background(), req)
	if !errors.Is(err, ErrInvalidStep) {
		t.Errorf("expected ErrInvalidStep, got %v", err)
	}
}

func TestControlHandler_LoopBreak(t *testing.T) {
	h := NewControlHandler()
	dispatch := &fakeDispatcher{
		scripted: map[string]*domain.StepResult{
			"stop": {StepID: "stop", Success: true, Signal: domain.SignalBreak},
		},
	}

	step := &domain.Step{ID: "s1", Type: domain.StepTypeControl, Action: "loop",
		Options: map[string]any{"mode": "for", "count": 10},
		Body: []domain.Step{
			{ID: "stop", Type: domain.StepTypeControl, Action: "break"},
			{ID: "never", Type: domain.StepTypeNavigation, Action: "refresh"},
		}}

	resp, err := h.Execute(context.Background(), newRequest(step, nil, dispatch))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Result.(map[string]any)["iterations"] != 1 {
		t.Errorf("break must stop after the first iteration, got %v", resp.Result)
	}
	if !reflect.DeepEqual(dispatch.calls(), []string{"stop"}) {
		t.Errorf("steps after break must not run, got %v", dispatch.calls())
	}
}

func TestControlHandler_LoopReturnBubblesUp(t *testing.T) {
	h := NewControlHandler()
	dispatch := &fakeDispatcher{
		scripted: map[string]*domain.StepResult{
			"ret": {StepID: "ret", Success: true, Signal: domain.SignalReturn},
		},
	}

	step := &domain.Step{ID: "s1", Type: domain.StepTypeControl, Action: "loop",
		Options: map[string]any{"mode": "for", "count": 10},
		Body:    []domain.Step{{ID: "ret", Type: domain.StepTypeControl, Action: "return"}}}

	resp, err := h.Execute(context.Background(), newRequest(step, nil, dispatch))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Signal != domain.SignalReturn {
		t.Errorf("return must bubble out of the loop, got %s", resp.Signal)
	}
}

func TestControlHandler_Parallel(t *testing.T) {
	h := NewControlHandler()
	dispatch := &fakeDispatcher{
		scripted: map[string]*domain.StepResult{
			"p1": {StepID: "p1", Success: true, Result: "r1"},
			"p2": {StepID: "p2", Success: true, Result: "r2"},
			"p3": {StepID: "p3", Success: true, Result: "r3"},
		},
	}

	step := &domain.Step{ID: "s1", Type: domain.StepTypeControl, Action: "parallel",
		Options: map[string]any{"max_concurrency": 2},
		Body: []domain.Step{
			{ID: "p1", Type: domain.StepTypeNavigation, Action: "refresh"},
			{ID: "p2", Type: domain.StepTypeNavigation, Action: "refresh"},
			{ID: "p3", Type: domain.StepTypeNavigation, Action: "refresh"},
		}}

	resp, err := h.Execute(context.Background(), newRequest(step, nil, dispatch))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := resp.Result.(map[string]any)
	if result["succeeded"] != 3 || result["total"] != 3 {
		t.Errorf("expected 3/3, got %v", result)
	}
	// Результаты — в порядке шагов, не в порядке завершения.
	if !reflect.DeepEqual(result["results"], []any{"r1", "r2", "r3"}) {
		t.Errorf("results must keep step order, got %v", result["results"])
	}
	if len(dispatch.calls()) != 3 {
		t.Errorf("all branches must run, got %v", dispatch.calls())
	}
}

// slowDispatcher задерживает каждый вызов и замеряет пик
// одновременных DispatchStep.
type slowDispatcher struct {
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (d *slowDispatcher) DispatchStep(_ context.Context, step *domain.Step, _ *engine.ExecutionContext) (*domain.StepResult, error) {
	d.mu.Lock()
	d.inFlight++
	if d.inFlight > d.peak {
		d.peak = d.inFlight
	}
	d.mu.Unlock()

	time.Sleep(25 * time.Millisecond)

	d.mu.Lock()
	d.inFlight--
	d.mu.Unlock()

	return &domain.StepResult{StepID: step.ID, Success: true, Result: step.ID}, nil
}

func TestControlHandler_ParallelConcurrencyBound(t *testing.T) {
	h := NewControlHandler()
	dispatch := &slowDispatcher{}

	step := &domain.Step{ID: "s1", Type: domain.StepTypeControl, Action: "parallel",
		Options: map[string]any{"max_concurrency": 2},
		Body: []domain.Step{
			{ID: "p1", Type: domain.StepTypeNavigation, Action: "refresh"},
			{ID: "p2", Type: domain.StepTypeNavigation, Action: "refresh"},
			{ID: "p3", Type: domain.StepTypeNavigation, Action: "refresh"},
			{ID: "p4", Type: domain.StepTypeNavigation, Action: "refresh"},
			{ID: "p5", Type: domain.StepTypeNavigation, Action: "refresh"},
		}}

	resp, err := h.Execute(context.Background(), newRequest(step, nil, dispatch))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := resp.Result.(map[string]any)
	if result["succeeded"] != 5 || result["total"] != 5 {
		t.Errorf("expected 5/5, got %v", result)
	}
	if !reflect.DeepEqual(result["results"], []any{"p1", "p2", "p3", "p4", "p5"}) {
		t.Errorf("results must keep step order, got %v", result["results"])
	}
	if dispatch.peak > 2 {
		t.Errorf("max_concurrency=2 must bound in-flight branches, peak=%d", dispatch.peak)
	}
	if dispatch.peak < 2 {
		t.Errorf("branches must overlap up to the window, peak=%d", dispatch.peak)
	}
}

func TestControlHandler_ParallelBranchFailure(t *testing.T) {
	h := NewControlHandler()
	boom := errors.New("branch failed")
	dispatch := &fakeDispatcher{errs: map[string]error{"p2": boom}}

	step := &domain.Step{ID: "s1", Type: domain.StepTypeControl, Action: "parallel",
		Body: []domain.Step{
			{ID: "p1", Type: domain.StepTypeNavigation, Action: "refresh"},
			{ID: "p2", Type: domain.StepTypeNavigation, Action: "refresh"},
		}}

	t.Run("fails by default", func(t *testing.T) {
		_, err := h.Execute(context.Background(), newRequest(step, nil, dispatch))
		if !errors.Is(err, boom) {
			t.Errorf("expected branch error, got %v", err)
		}
	})

	t.Run("continue_on_error keeps partial results", func(t *testing.T) {
		tolerant := *step
		tolerant.ContinueOnError = true

		resp, err := h.Execute(context.Background(), newRequest(&tolerant, nil, dispatch))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		result := resp.Result.(map[string]any)
		if result["succeeded"] != 1 {
			t.Errorf("expected 1 succeeded branch, got %v", result)
		}
	})
}

func TestControlHandler_Delay(t *testing.T) {
	h := NewControlHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeControl, Action: "delay", Value: 30}

	start := time.Now()
	resp, err := h.Execute(context.Background(), newRequest(step, nil, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Error("delay returned too early")
	}
	if resp.Result.(map[string]any)["delayed_ms"] != 30 {
		t.Errorf("unexpected result: %v", resp.Result)
	}
}

func TestControlHandler_DelayCancelled(t *testing.T) {
	h := NewControlHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeControl, Action: "delay", Value: 5000}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := h.Execute(ctx, newRequest(step, nil, nil))
	if !errors.Is(err, ErrStepCancelled) {
		t.Errorf("expected ErrStepCancelled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cancellation took too long")
	}
}

func TestControlHandler_Validate(t *testing.T) {
	h := NewControlHandler()

	tests := []struct {
		name    string
		step    *domain.Step
		wantErr bool
	}{
		{
			name:    "if without condition",
			step:    &domain.Step{Type: domain.StepTypeControl, Action: "if"},
			wantErr: true,
		},
		{
			name:    "loop without mode",
			step:    &domain.Step{Type: domain.StepTypeControl, Action: "loop"},
			wantErr: true,
		},
		{
			name:    "while without condition",
			step:    &domain.Step{Type: domain.StepTypeControl, Action: "loop", Options: map[string]any{"mode": "while"}},
			wantErr: true,
		},
		{
			name:    "for without count",
			step:    &domain.Step{Type: domain.StepTypeControl, Action: "loop", Options: map[string]any{"mode": "for"}},
			wantErr: true,
		},
		{
			name: "valid forEach",
			step: &domain.Step{Type: domain.StepTypeControl, Action: "loop",
				Options: map[string]any{"mode": "forEach", "items": []any{"a"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Validate(tt.step)
			if tt.wantErr && !errors.Is(err, ErrInvalidStep) {
				t.Errorf("expected ErrInvalidStep, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// Variable

func TestVariableHandler(t *testing.T) {
	h := NewVariableHandler()

	t.Run("set", func(t *testing.T) {
		step := &domain.Step{ID: "s1", Type: domain.StepTypeVariable, Action: "set",
			Target: "greeting", Value: "hello {{user}}"}
		req := newRequest(step, nil, nil)
		req.Exec.SetVariable("user", domain.StringValue("admin"))

		if _, err := h.Execute(context.Background(), req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v, _ := req.Exec.GetVariable("greeting"); v.Text() != "hello admin" {
			t.Errorf("unexpected value: %v", v)
		}
	})

	t.Run("increment with delta", func(t *testing.T) {
		step := &domain.Step{ID: "s1", Type: domain.StepTypeVariable, Action: "increment",
			Target: "count", Value: 5}
		req := newRequest(step, nil, nil)
		req.Exec.SetVariable("count", domain.NumberValue(10))

		if _, err := h.Execute(context.Background(), req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v, _ := req.Exec.GetVariable("count"); v.Any() != 15.0 {
			t.Errorf("expected 15, got %v", v.Any())
		}
	})

	t.Run("increment unset starts at zero", func(t *testing.T) {
		step := &domain.Step{ID: "s1", Type: domain.StepTypeVariable, Action: "increment", Target: "fresh"}
		req := newRequest(step, nil, nil)

		if _, err := h.Execute(context.Background(), req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v, _ := req.Exec.GetVariable("fresh"); v.Any() != 1.0 {
			t.Errorf("expected 1, got %v", v.Any())
		}
	})

	t.Run("increment non-numeric", func(t *testing.T) {
		step := &domain.Step{ID: "s1", Type: domain.StepTypeVariable, Action: "increment", Target: "name"}
		req := newRequest(step, nil, nil)
		req.Exec.SetVariable("name", domain.ListValue(nil))

		_, err := h.Execute(context.Background(), req)
		if !errors.Is(err, ErrInvalidStep) {
			t.Errorf("expected ErrInvalidStep, got %v", err)
		}
	})

	t.Run("append creates the list", func(t *testing.T) {
		step := &domain.Step{ID: "s1", Type: domain.StepTypeVariable, Action: "append",
			Target: "log", Value: "entry"}
		req := newRequest(step, nil, nil)

		if _, err := h.Execute(context.Background(), req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v, _ := req.Exec.GetVariable("log"); len(v.Items()) != 1 {
			t.Errorf("expected a single-item list, got %v", v.Any())
		}
	})

	t.Run("delete", func(t *testing.T) {
		step := &domain.Step{ID: "s1", Type: domain.StepTypeVariable, Action: "delete", Target: "tmp"}
		req := newRequest(step, nil, nil)
		req.Exec.SetVariable("tmp", domain.BoolValue(true))

		if _, err := h.Execute(context.Background(), req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := req.Exec.GetVariable("tmp"); ok {
			t.Error("variable must be gone")
		}
	})

	t.Run("delete unknown", func(t *testing.T) {
		step := &domain.Step{ID: "s1", Type: domain.StepTypeVariable, Action: "delete", Target: "missing"}
		_, err := h.Execute(context.Background(), newRequest(step, nil, nil))
		if !errors.Is(err, engine.ErrUnknownVariable) {
			t.Errorf("expected ErrUnknownVariable, got %v", err)
		}
	})
}

// Wait

func TestWaitHandler_Duration(t *testing.T) {
	h := NewWaitHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeWait, Action: "duration", Value: 20}

	start := time.Now()
	resp, err := h.Execute(context.Background(), newRequest(step, nil, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("wait returned too early")
	}
	if resp.Result.(map[string]any)["waited_ms"] != 20 {
		t.Errorf("unexpected result: %v", resp.Result)
	}
}

func TestWaitHandler_Selector(t *testing.T) {
	d := sim.New(formPage())
	h := NewWaitHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeWait, Action: "selector", Target: "#email"}

	if _, err := h.Execute(context.Background(), newRequest(step, d, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitHandler_Timeout(t *testing.T) {
	d := sim.New(formPage())
	h := NewWaitHandler()

	step := &domain.Step{ID: "s1", Type: domain.StepTypeWait, Action: "selector",
		Target: "#never", TimeoutMs: 30}

	_, err := h.Execute(context.Background(), newRequest(step, d, nil))
	if !errors.Is(err, driver.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestWaitHandler_Validate(t *testing.T) {
	h := NewWaitHandler()

	if err := h.Validate(&domain.Step{Type: domain.StepTypeWait, Action: "duration"}); !errors.Is(err, ErrInvalidStep) {
		t.Errorf("duration without value must fail, got %v", err)
	}
	if err := h.Validate(&domain.Step{Type: domain.StepTypeWait, Action: "selector"}); !errors.Is(err, ErrInvalidStep) {
		t.Errorf("selector without target must fail, got %v", err)
	}
	if err := h.Validate(&domain.Step{Type: domain.StepTypeWait, Action: "loadState"}); err != nil {
		t.Errorf("loadState needs no target: %v", err)
	}
}

func truePtr() *bool {
	b := true
	return &b
}
