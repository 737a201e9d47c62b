package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Wayfinder/internal/domain"
)

func lookupFrom(vars map[string]domain.Value) Lookup {
	return func(name string) (domain.Value, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		operator string
		actual   domain.Value
		expected domain.Value
		want     bool
		wantErr  bool
	}{
		{name: "equals strings", operator: "equals", actual: domain.StringValue("a"), expected: domain.StringValue("a"), want: true},
		{name: "equals numbers", operator: "equals", actual: domain.NumberValue(3), expected: domain.NumberValue(3), want: true},
		{name: "equals mismatch", operator: "equals", actual: domain.StringValue("a"), expected: domain.StringValue("b"), want: false},
		{name: "notEquals", operator: "notEquals", actual: domain.StringValue("a"), expected: domain.StringValue("b"), want: true},
		{name: "contains", operator: "contains", actual: domain.StringValue("welcome back"), expected: domain.StringValue("come"), want: true},
		{name: "contains miss", operator: "contains", actual: domain.StringValue("welcome"), expected: domain.StringValue("bye"), want: false},
		{name: "startsWith", operator: "startsWith", actual: domain.StringValue("https://example.com"), expected: domain.StringValue("https://"), want: true},
		{name: "endsWith", operator: "endsWith", actual: domain.StringValue("report.pdf"), expected: domain.StringValue(".pdf"), want: true},
		{name: "regex match", operator: "regex", actual: domain.StringValue("order-1234"), expected: domain.StringValue(`^order-\d+$`), want: true},
		{name: "regex invalid", operator: "regex", actual: domain.StringValue("x"), expected: domain.StringValue("("), wantErr: true},
		{name: "greaterThan", operator: "greaterThan", actual: domain.NumberValue(5), expected: domain.NumberValue(3), want: true},
		{name: "lessThan", operator: "lessThan", actual: domain.NumberValue(2), expected: domain.NumberValue(3), want: true},
		{name: "greaterThan non-numeric", operator: "greaterThan", actual: domain.StringValue("abc"), expected: domain.NumberValue(1), wantErr: true},
		{name: "unknown operator", operator: "near", actual: domain.NumberValue(1), expected: domain.NumberValue(1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.operator, tt.actual, tt.expected)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEvaluateCondition(t *testing.T) {
	vars := map[string]domain.Value{
		"attempts": domain.NumberValue(2),
		"done":     domain.BoolValue(false),
		"user":     domain.StringValue("admin"),
	}

	tests := []struct {
		name string
		cond *domain.Condition
		want bool
	}{
		{name: "nil condition is true", cond: nil, want: true},
		{name: "empty condition is true", cond: &domain.Condition{}, want: true},
		{name: "literal true", cond: &domain.Condition{Literal: boolPtr(true)}, want: true},
		{name: "literal false", cond: &domain.Condition{Literal: boolPtr(false)}, want: false},
		{name: "expression", cond: &domain.Condition{Expression: "attempts < 3 && !done"}, want: true},
		{
			name: "structural comparison",
			cond: &domain.Condition{Variable: "user", Operator: "equals", Value: "admin"},
			want: true,
		},
		{
			name: "variable truthiness",
			cond: &domain.Condition{Variable: "done"},
			want: false,
		},
		{
			name: "unknown variable truthiness is false",
			cond: &domain.Condition{Variable: "missing"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateCondition(tt.cond, vars)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEvaluateCondition_UnknownVariableWithOperator(t *testing.T) {
	cond := &domain.Condition{Variable: "missing", Operator: "equals", Value: "x"}

	_, err := EvaluateCondition(cond, nil)
	if !errors.Is(err, ErrUnknownVariable) {
		t.Errorf("expected ErrUnknownVariable, got %v", err)
	}
}

func TestEvaluateExpression(t *testing.T) {
	vars := map[string]domain.Value{
		"attempts": domain.NumberValue(2),
		"limit":    domain.NumberValue(3),
		"done":     domain.BoolValue(false),
		"status":   domain.StringValue("active"),
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{name: "numeric comparison", expr: "attempts < 3", want: true},
		{name: "variable to variable", expr: "attempts < limit", want: true},
		{name: "equality with string literal", expr: `status == "active"`, want: true},
		{name: "inequality", expr: `status != "closed"`, want: true},
		{name: "negation", expr: "!done", want: true},
		{name: "conjunction", expr: "attempts < 3 && !done", want: true},
		{name: "disjunction short-circuit", expr: "done || attempts >= 2", want: true},
		{name: "parentheses", expr: "(attempts >= 3 || attempts < 3) && !done", want: true},
		{name: "boolean literal", expr: "true", want: true},
		{name: "false overall", expr: "done && attempts < 3", want: false},
		{name: "gte boundary", expr: "attempts >= 2", want: true},
		{name: "lte boundary", expr: "attempts <= 2", want: true},
		{name: "membership", expr: `status in ["active", "archived"]`, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateExpression(tt.expr, vars)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEvaluateExpression_Invalid(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{name: "dangling operator", expr: "attempts <"},
		{name: "unbalanced paren", expr: "(attempts < 3"},
		{name: "non-boolean result", expr: "attempts + 1"},
		{name: "empty", expr: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EvaluateExpression(tt.expr, map[string]domain.Value{
				"attempts": domain.NumberValue(1),
			})
			if err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
