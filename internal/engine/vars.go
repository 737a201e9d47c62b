package engine

import (
	"strings"

	"github.com/shaiso/Wayfinder/internal/domain"
)

// Lookup — функция разрешения имени переменной в значение.
type Lookup func(name string) (domain.Value, bool)

// Substitute подставляет значения переменных в строку.
//
// Плейсхолдеры имеют вид {{name}}; пробелы вокруг имени допускаются
// ({{ name }}). Неизвестные переменные остаются в тексте как есть —
// так опечатка видна в результате, а не молча превращается в пустоту.
func Substitute(s string, lookup Lookup) string {
	if !strings.Contains(s, "{{") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			b.WriteString(s)
			break
		}
		end += start

		b.WriteString(s[:start])

		name := strings.TrimSpace(s[start+2 : end])
		if v, ok := lookup(name); ok {
			b.WriteString(v.Text())
		} else {
			// Неизвестная переменная — оставляем плейсхолдер
			b.WriteString(s[start : end+2])
		}

		s = s[end+2:]
	}

	return b.String()
}

// SubstituteAny подставляет переменные в произвольное значение:
// строки обрабатываются через Substitute, карты и списки — рекурсивно.
// Если строка целиком является одним плейсхолдером, подставляется
// само значение переменной с сохранением типа (не текст).
func SubstituteAny(v any, lookup Lookup) any {
	switch t := v.(type) {
	case string:
		if name, ok := solePlaceholder(t); ok {
			if value, found := lookup(name); found {
				return value.Any()
			}
			return t
		}
		return Substitute(t, lookup)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = SubstituteAny(item, lookup)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = SubstituteAny(item, lookup)
		}
		return out
	default:
		return v
	}
}

// solePlaceholder возвращает имя переменной, если строка целиком
// состоит из одного плейсхолдера {{name}}.
func solePlaceholder(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{{") || !strings.HasSuffix(trimmed, "}}") {
		return "", false
	}
	inner := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
	if inner == "" || strings.Contains(inner, "{{") || strings.Contains(inner, "}}") {
		return "", false
	}
	return inner, true
}
