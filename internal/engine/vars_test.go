package engine

import (
	"reflect"
	"testing"

	"github.com/shaiso/Wayfinder/internal/domain"
)

func TestSubstitute(t *testing.T) {
	lookup := lookupFrom(map[string]domain.Value{
		"user":  domain.StringValue("admin"),
		"count": domain.NumberValue(3),
	})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "no placeholders", in: "plain text", want: "plain text"},
		{name: "single placeholder", in: "hello {{user}}", want: "hello admin"},
		{name: "spaces inside braces", in: "hello {{ user }}", want: "hello admin"},
		{name: "multiple placeholders", in: "{{user}}: {{count}}", want: "admin: 3"},
		{name: "unknown stays verbatim", in: "hello {{missing}}", want: "hello {{missing}}"},
		{name: "unclosed braces", in: "hello {{user", want: "hello {{user"},
		{name: "number renders as text", in: "total={{count}}", want: "total=3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Substitute(tt.in, lookup); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSubstituteAny(t *testing.T) {
	lookup := lookupFrom(map[string]domain.Value{
		"user":  domain.StringValue("admin"),
		"count": domain.NumberValue(3),
		"items": domain.ListValue([]domain.Value{domain.StringValue("a"), domain.StringValue("b")}),
	})

	tests := []struct {
		name string
		in   any
		want any
	}{
		{
			name: "sole placeholder keeps the type",
			in:   "{{count}}",
			want: 3.0,
		},
		{
			name: "sole placeholder list",
			in:   "{{items}}",
			want: []any{"a", "b"},
		},
		{
			name: "embedded placeholder renders text",
			in:   "count={{count}}",
			want: "count=3",
		},
		{
			name: "unknown sole placeholder stays verbatim",
			in:   "{{missing}}",
			want: "{{missing}}",
		},
		{
			name: "map recurses",
			in:   map[string]any{"who": "{{user}}", "n": 1},
			want: map[string]any{"who": "admin", "n": 1},
		},
		{
			name: "list recurses",
			in:   []any{"{{user}}", 2},
			want: []any{"admin", 2},
		},
		{
			name: "non-string passes through",
			in:   42,
			want: 42,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SubstituteAny(tt.in, lookup)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}
