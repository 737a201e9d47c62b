package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Wayfinder/internal/domain"
)

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse([]byte("{not json"))
	if !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("expected ErrInvalidDefinition, got %v", err)
	}
}

func TestParse_Aliases(t *testing.T) {
	raw := []byte(`{
		"name": "aliases",
		"steps": [
			{"id": "s1", "type": "interaction", "action": "type", "selector": "#login", "text": "admin"}
		]
	}`)

	wf, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	step := wf.Steps[0]
	if step.Target != "#login" {
		t.Errorf("selector alias: expected target #login, got %q", step.Target)
	}
	if step.Value != "admin" {
		t.Errorf("text alias: expected value admin, got %v", step.Value)
	}
}

func TestParse_ExplicitFieldsWinOverAliases(t *testing.T) {
	raw := []byte(`{
		"name": "precedence",
		"steps": [
			{"id": "s1", "type": "interaction", "action": "type",
			 "target": "#explicit", "selector": "#alias",
			 "value": "v1", "text": "v2"}
		]
	}`)

	wf, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	step := wf.Steps[0]
	if step.Target != "#explicit" {
		t.Errorf("expected target #explicit, got %q", step.Target)
	}
	if step.Value != "v1" {
		t.Errorf("expected value v1, got %v", step.Value)
	}
}

func TestParse_AutoStepIDs(t *testing.T) {
	raw := []byte(`{
		"name": "auto ids",
		"steps": [
			{"type": "navigation", "action": "goto", "target": "https://example.com"},
			{"type": "control", "action": "if",
			 "condition": {"literal": true},
			 "then": [{"type": "navigation", "action": "refresh"}],
			 "else": [{"type": "navigation", "action": "back"}]},
			{"type": "navigation", "action": "close"}
		]
	}`)

	wf, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Счётчик сквозной и depth-first: ветки if нумеруются
	// до следующего шага верхнего уровня.
	if wf.Steps[0].ID != "step_1" {
		t.Errorf("expected step_1, got %q", wf.Steps[0].ID)
	}
	if wf.Steps[1].ID != "step_2" {
		t.Errorf("expected step_2, got %q", wf.Steps[1].ID)
	}
	if wf.Steps[1].Then[0].ID != "step_3" {
		t.Errorf("expected step_3 in then branch, got %q", wf.Steps[1].Then[0].ID)
	}
	if wf.Steps[1].Else[0].ID != "step_4" {
		t.Errorf("expected step_4 in else branch, got %q", wf.Steps[1].Else[0].ID)
	}
	if wf.Steps[2].ID != "step_5" {
		t.Errorf("expected step_5, got %q", wf.Steps[2].ID)
	}
}

func TestParse_DefaultSettings(t *testing.T) {
	raw := []byte(`{
		"name": "defaults",
		"steps": [{"id": "s1", "type": "navigation", "action": "goto", "target": "https://example.com"}]
	}`)

	wf, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if wf.Settings.TimeoutMs != 30000 {
		t.Errorf("expected default timeout 30000, got %d", wf.Settings.TimeoutMs)
	}
	if wf.Settings.MaxLoopIterations != 1000 {
		t.Errorf("expected default loop limit 1000, got %d", wf.Settings.MaxLoopIterations)
	}
	if wf.Settings.MaxConcurrency != 4 {
		t.Errorf("expected default concurrency 4, got %d", wf.Settings.MaxConcurrency)
	}
}

func TestParse_ExplicitSettingsKept(t *testing.T) {
	raw := []byte(`{
		"name": "settings",
		"settings": {"timeout_ms": 5000, "max_loop_iterations": 10, "max_concurrency": 2},
		"steps": [{"id": "s1", "type": "navigation", "action": "goto", "target": "https://example.com"}]
	}`)

	wf, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if wf.Settings.TimeoutMs != 5000 {
		t.Errorf("expected timeout 5000, got %d", wf.Settings.TimeoutMs)
	}
	if wf.Settings.MaxLoopIterations != 10 {
		t.Errorf("expected loop limit 10, got %d", wf.Settings.MaxLoopIterations)
	}
	if wf.Settings.MaxConcurrency != 2 {
		t.Errorf("expected concurrency 2, got %d", wf.Settings.MaxConcurrency)
	}
}

func TestParse_Variables(t *testing.T) {
	raw := []byte(`{
		"name": "vars",
		"variables": {"user": "admin", "attempts": 3, "done": false},
		"steps": [{"id": "s1", "type": "navigation", "action": "goto", "target": "https://example.com"}]
	}`)

	wf, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v := wf.Variables["user"]; v.Text() != "admin" {
		t.Errorf("expected user=admin, got %v", v)
	}
	if v := wf.Variables["attempts"]; v.Kind() != domain.KindNumber {
		t.Errorf("expected attempts to be a number, got %s", v.Kind())
	}
	if v := wf.Variables["done"]; v.Truthy() {
		t.Error("expected done to be false")
	}
}

func TestValidate_EmptySteps(t *testing.T) {
	tests := []struct {
		name string
		wf   *domain.Workflow
	}{
		{
			name: "nil workflow",
			wf:   nil,
		},
		{
			name: "empty steps",
			wf:   &domain.Workflow{Steps: []domain.Step{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := Validate(tt.wf)
			if len(issues) != 1 {
				t.Fatalf("expected 1 issue, got %d", len(issues))
			}
			if !errors.Is(issues[0].Err, ErrEmptySteps) {
				t.Errorf("expected ErrEmptySteps, got %v", issues[0].Err)
			}
		})
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{
			name: "no steps",
			raw:  `{"name": "empty", "steps": []}`,
			want: ErrEmptySteps,
		},
		{
			name: "duplicate step id",
			raw: `{"steps": [
				{"id": "dup", "type": "navigation", "action": "refresh"},
				{"id": "dup", "type": "navigation", "action": "back"}
			]}`,
			want: ErrDuplicateStepID,
		},
		{
			name: "duplicate id in nested branch",
			raw: `{"steps": [
				{"id": "outer", "type": "control", "action": "if",
				 "condition": {"literal": true},
				 "then": [{"id": "outer", "type": "navigation", "action": "refresh"}]}
			]}`,
			want: ErrDuplicateStepID,
		},
		{
			name: "unknown step type",
			raw:  `{"steps": [{"id": "s1", "type": "teleport", "action": "go"}]}`,
			want: ErrUnknownStepType,
		},
		{
			name: "unknown action for type",
			raw:  `{"steps": [{"id": "s1", "type": "navigation", "action": "click", "target": "#x"}]}`,
			want: ErrUnknownAction,
		},
		{
			name: "missing action",
			raw:  `{"steps": [{"id": "s1", "type": "navigation"}]}`,
			want: ErrUnknownAction,
		},
		{
			name: "missing target",
			raw:  `{"steps": [{"id": "s1", "type": "interaction", "action": "click"}]}`,
			want: ErrMissingTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if !errors.Is(vErr, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, vErr)
			}
		})
	}
}

func TestParse_CollectsAllErrors(t *testing.T) {
	raw := []byte(`{"steps": [
		{"id": "s1", "type": "teleport", "action": "go"},
		{"id": "s2", "type": "interaction", "action": "click"},
		{"id": "s2", "type": "navigation", "action": "refresh"}
	]}`)

	_, err := Parse(raw)

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(vErr.Issues) != 3 {
		t.Fatalf("expected 3 issues, got %d: %v", len(vErr.Issues), vErr)
	}
	if !errors.Is(vErr, ErrUnknownStepType) {
		t.Error("expected ErrUnknownStepType among issues")
	}
	if !errors.Is(vErr, ErrMissingTarget) {
		t.Error("expected ErrMissingTarget among issues")
	}
	if !errors.Is(vErr, ErrDuplicateStepID) {
		t.Error("expected ErrDuplicateStepID among issues")
	}
}

func TestValidate_TargetlessActions(t *testing.T) {
	tests := []struct {
		name     string
		stepType string
		action   string
	}{
		{name: "navigation back", stepType: "navigation", action: "back"},
		{name: "navigation refresh", stepType: "navigation", action: "refresh"},
		{name: "interaction scroll", stepType: "interaction", action: "scroll"},
		{name: "extraction getUrl", stepType: "extraction", action: "getUrl"},
		{name: "extraction screenshot", stepType: "extraction", action: "screenshot"},
		{name: "control break", stepType: "control", action: "break"},
		{name: "wait loadState", stepType: "wait", action: "loadState"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := &domain.Workflow{
				Steps: []domain.Step{
					{ID: "s1", Type: domain.StepType(tt.stepType), Action: tt.action},
				},
			}
			for _, issue := range Validate(wf) {
				if issue.Severity == SeverityError {
					t.Errorf("unexpected error issue: %v", issue)
				}
			}
		})
	}
}

func TestValidate_Warnings(t *testing.T) {
	tests := []struct {
		name  string
		wf    *domain.Workflow
		field string
	}{
		{
			name: "extraction without store_as",
			wf: &domain.Workflow{
				Steps: []domain.Step{
					{ID: "s1", Type: domain.StepTypeExtraction, Action: "getText", Target: "#title"},
				},
			},
			field: "store_as",
		},
		{
			name: "if without branches",
			wf: &domain.Workflow{
				Steps: []domain.Step{
					{ID: "s1", Type: domain.StepTypeControl, Action: "if",
						Condition: &domain.Condition{Literal: boolPtr(true)}},
				},
			},
			field: "then",
		},
		{
			name: "loop with empty body",
			wf: &domain.Workflow{
				Steps: []domain.Step{
					{ID: "s1", Type: domain.StepTypeControl, Action: "loop"},
				},
			},
			field: "body",
		},
		{
			name: "parallel with empty body",
			wf: &domain.Workflow{
				Steps: []domain.Step{
					{ID: "s1", Type: domain.StepTypeControl, Action: "parallel"},
				},
			},
			field: "body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := Validate(tt.wf)

			found := false
			for _, issue := range issues {
				if issue.Severity == SeverityError {
					t.Fatalf("unexpected error issue: %v", issue)
				}
				if issue.Severity == SeverityWarning && issue.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected warning for field %q, got %v", tt.field, issues)
			}
		})
	}
}

func boolPtr(b bool) *bool { return &b }

func TestParse_WarningsDoNotFail(t *testing.T) {
	raw := []byte(`{"steps": [
		{"id": "s1", "type": "extraction", "action": "getText", "target": "#title"}
	]}`)

	wf, err := Parse(raw)
	if err != nil {
		t.Fatalf("warnings must not fail parsing: %v", err)
	}
	if wf == nil {
		t.Fatal("expected workflow")
	}
}
