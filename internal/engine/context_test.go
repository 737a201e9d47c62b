package engine

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/Wayfinder/internal/domain"
)

func newTestContext(totalSteps int, initial map[string]domain.Value) *ExecutionContext {
	return NewExecutionContext(uuid.New(), uuid.New(), totalSteps, initial)
}

func TestNewExecutionContext(t *testing.T) {
	execID := uuid.New()
	wfID := uuid.New()
	ec := NewExecutionContext(execID, wfID, 3, map[string]domain.Value{
		"user": domain.StringValue("admin"),
	})

	if ec.ExecutionID() != execID {
		t.Error("execution ID should be caller-supplied")
	}
	if ec.WorkflowID() != wfID {
		t.Error("workflow ID should be set")
	}
	if ec.State() != domain.StatePending {
		t.Errorf("expected PENDING, got %s", ec.State())
	}
	if v, ok := ec.GetVariable("user"); !ok || v.Text() != "admin" {
		t.Error("initial variables should be available")
	}
	if ec.CurrentStepIndex() != 0 {
		t.Error("step index should start at 0")
	}
}

func TestExecutionContext_InitialVariablesAreCopied(t *testing.T) {
	initial := map[string]domain.Value{"k": domain.StringValue("v")}
	ec := newTestContext(1, initial)

	initial["k"] = domain.StringValue("mutated")

	if v, _ := ec.GetVariable("k"); v.Text() != "v" {
		t.Error("context must not share the caller's variable map")
	}
}

func TestExecutionContext_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []domain.ExecutionState
		wantErr bool
	}{
		{
			name: "full happy path",
			path: []domain.ExecutionState{
				domain.StateRunning, domain.StatePaused,
				domain.StateRunning, domain.StateCompleted,
			},
		},
		{
			name: "cancel while pending",
			path: []domain.ExecutionState{domain.StateCancelled},
		},
		{
			name: "cancel while paused",
			path: []domain.ExecutionState{
				domain.StateRunning, domain.StatePaused, domain.StateCancelled,
			},
		},
		{
			name:    "pending to completed",
			path:    []domain.ExecutionState{domain.StateCompleted},
			wantErr: true,
		},
		{
			name: "completed is terminal",
			path: []domain.ExecutionState{
				domain.StateRunning, domain.StateCompleted, domain.StateRunning,
			},
			wantErr: true,
		},
		{
			name: "paused cannot fail directly",
			path: []domain.ExecutionState{
				domain.StateRunning, domain.StatePaused, domain.StateFailed,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := newTestContext(1, nil)

			var err error
			for _, next := range tt.path {
				if err = ec.TransitionTo(next); err != nil {
					break
				}
			}

			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("expected ErrInvalidTransition, got %v", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestExecutionContext_Variables(t *testing.T) {
	ec := newTestContext(1, nil)

	ec.SetVariable("count", domain.NumberValue(2))
	if v, ok := ec.GetVariable("count"); !ok || v.Any() != 2.0 {
		t.Error("SetVariable/GetVariable round-trip failed")
	}

	if v := ec.GetVariableOr("missing", domain.StringValue("def")); v.Text() != "def" {
		t.Error("GetVariableOr should return the default for unknown names")
	}

	ec.DeleteVariable("count")
	if _, ok := ec.GetVariable("count"); ok {
		t.Error("variable should be gone after delete")
	}

	ec.SetVariable("a", domain.StringValue("x"))
	all := ec.AllVariables()
	all["a"] = domain.StringValue("mutated")
	if v, _ := ec.GetVariable("a"); v.Text() != "x" {
		t.Error("AllVariables must return a copy")
	}
}

func TestExecutionContext_Progress(t *testing.T) {
	ec := newTestContext(4, nil)

	p := ec.Progress()
	if p.Current != 0 || p.Total != 4 || p.Percentage != 0 {
		t.Errorf("unexpected initial progress: %+v", p)
	}

	ec.AdvanceStep()
	ec.AdvanceStep()

	p = ec.Progress()
	if p.Current != 2 || p.Percentage != 50 {
		t.Errorf("expected 2/4 (50%%), got %+v", p)
	}

	// Указатель не выходит за последний шаг.
	for i := 0; i < 10; i++ {
		ec.AdvanceStep()
	}
	if p := ec.Progress(); p.Current != 4 || p.Percentage != 100 {
		t.Errorf("expected 4/4 (100%%), got %+v", p)
	}
}

func TestExecutionContext_ResultsAndErrors(t *testing.T) {
	ec := newTestContext(2, nil)

	ec.RecordResult(domain.StepResult{StepID: "s1", Success: true})
	ec.RecordResult(domain.StepResult{StepID: "s2", Success: false})

	results := ec.Results()
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].StepID != "s1" || results[1].StepID != "s2" {
		t.Error("results must keep execution order")
	}

	if ec.HasErrors() {
		t.Error("no errors recorded yet")
	}
	ec.RecordError(domain.ExecutionError{StepID: "s2", Type: "timeout"})
	if !ec.HasErrors() {
		t.Error("error journal should be non-empty")
	}
	if got := ec.Errors(); len(got) != 1 || got[0].StepID != "s2" {
		t.Errorf("unexpected error journal: %v", got)
	}
}

func TestExecutionContext_CheckpointRestore(t *testing.T) {
	ec := newTestContext(5, map[string]domain.Value{
		"user": domain.StringValue("admin"),
	})

	ec.AdvanceStep()
	ec.AdvanceStep()
	cp := ec.CreateCheckpoint("after login")

	if cp.StepIndex != 2 {
		t.Errorf("expected checkpoint at step 2, got %d", cp.StepIndex)
	}
	if cp.Description != "after login" {
		t.Errorf("unexpected description: %q", cp.Description)
	}

	// Мутации после снимка откатываются.
	ec.SetVariable("user", domain.StringValue("other"))
	ec.SetVariable("extra", domain.BoolValue(true))
	ec.AdvanceStep()

	if err := ec.RestoreFromCheckpoint(cp.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ec.CurrentStepIndex() != 2 {
		t.Errorf("expected step index 2 after restore, got %d", ec.CurrentStepIndex())
	}
	if v, _ := ec.GetVariable("user"); v.Text() != "admin" {
		t.Error("variables should roll back to the snapshot")
	}
	if _, ok := ec.GetVariable("extra"); ok {
		t.Error("variables created after the snapshot should be dropped")
	}
}

func TestExecutionContext_CheckpointSnapshotIsImmutable(t *testing.T) {
	ec := newTestContext(3, map[string]domain.Value{
		"items": domain.ListValue([]domain.Value{domain.StringValue("a")}),
	})

	cp := ec.CreateCheckpoint("")
	ec.SetVariable("items", domain.ListValue(nil))

	if len(cp.Variables["items"].Items()) != 1 {
		t.Error("checkpoint variables must be deep-copied")
	}
}

func TestExecutionContext_RestoreUnknownCheckpoint(t *testing.T) {
	ec := newTestContext(1, map[string]domain.Value{"k": domain.StringValue("v")})
	ec.CreateCheckpoint("known")

	err := ec.RestoreFromCheckpoint(uuid.New())
	if !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("expected ErrCheckpointNotFound, got %v", err)
	}

	// Состояние не изменилось.
	if v, _ := ec.GetVariable("k"); v.Text() != "v" {
		t.Error("failed restore must not mutate the context")
	}
}

func TestExecutionContext_SerializeRoundTrip(t *testing.T) {
	ec := newTestContext(3, map[string]domain.Value{
		"user":  domain.StringValue("admin"),
		"count": domain.NumberValue(7),
	})
	if err := ec.TransitionTo(domain.StateRunning); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ec.AdvanceStep()
	ec.RecordResult(domain.StepResult{StepID: "s1", Success: true})
	cp := ec.CreateCheckpoint("mid")
	if err := ec.TransitionTo(domain.StatePaused); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := ec.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	restored, err := Deserialize(data)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}

	if restored.ExecutionID() != ec.ExecutionID() {
		t.Error("execution ID must survive the round-trip")
	}
	if restored.WorkflowID() != ec.WorkflowID() {
		t.Error("workflow ID must survive the round-trip")
	}
	if restored.State() != domain.StatePaused {
		t.Errorf("expected PAUSED, got %s", restored.State())
	}
	if restored.CurrentStepIndex() != 1 {
		t.Errorf("expected step index 1, got %d", restored.CurrentStepIndex())
	}
	if v, ok := restored.GetVariable("user"); !ok || v.Text() != "admin" {
		t.Error("variables must survive the round-trip")
	}
	if v, ok := restored.GetVariable("count"); !ok || v.Any() != 7.0 {
		t.Error("numeric variables must keep their type")
	}
	if len(restored.Results()) != 1 {
		t.Error("results must survive the round-trip")
	}
	if cps := restored.Checkpoints(); len(cps) != 1 || cps[0].ID != cp.ID {
		t.Error("checkpoints must survive the round-trip")
	}

	// Возобновление из снимка: PAUSED → RUNNING разрешён.
	if err := restored.TransitionTo(domain.StateRunning); err != nil {
		t.Errorf("resumed snapshot must transition to RUNNING: %v", err)
	}
}

func TestDeserialize_InvalidPayload(t *testing.T) {
	if _, err := Deserialize([]byte("{broken")); err == nil {
		t.Error("expected error for malformed snapshot")
	}
}

func TestExecutionContext_AddCheckpoint(t *testing.T) {
	ec := newTestContext(2, nil)

	external := domain.NewCheckpoint(1, map[string]domain.Value{
		"k": domain.StringValue("v"),
	}, "external")
	ec.AddCheckpoint(external)

	if err := ec.RestoreFromCheckpoint(external.ID); err != nil {
		t.Fatalf("registered checkpoint should be restorable: %v", err)
	}
	if ec.CurrentStepIndex() != 1 {
		t.Errorf("expected step index 1, got %d", ec.CurrentStepIndex())
	}
}
