package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// ValueKind — тип значения переменной.
type ValueKind string

// Поддерживаемые типы значений.
const (
	KindNull   ValueKind = "null"
	KindString ValueKind = "string"
	KindNumber ValueKind = "number"
	KindBool   ValueKind = "bool"
	KindList   ValueKind = "list"
	KindObject ValueKind = "object"
)

// Value — типизированное значение переменной execution.
//
// Вместо "сырых" map[string]any используется явное хранилище
// с тегированными вариантами: несовпадение типов обнаруживается
// в момент сравнения, а не через неявное приведение.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	list []Value
	obj  map[string]Value
}

// Null возвращает пустое значение.
func Null() Value {
	return Value{kind: KindNull}
}

// StringValue создаёт строковое значение.
func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

// NumberValue создаёт числовое значение.
func NumberValue(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

// BoolValue создаёт булево значение.
func BoolValue(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// ListValue создаёт значение-список.
func ListValue(items []Value) Value {
	return Value{kind: KindList, list: items}
}

// ObjectValue создаёт значение-объект.
func ObjectValue(fields map[string]Value) Value {
	return Value{kind: KindObject, obj: fields}
}

// FromAny преобразует произвольное значение (например, из JSON
// или результата драйвера) в Value.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return StringValue(t)
	case bool:
		return BoolValue(t)
	case float64:
		return NumberValue(t)
	case float32:
		return NumberValue(float64(t))
	case int:
		return NumberValue(float64(t))
	case int32:
		return NumberValue(float64(t))
	case int64:
		return NumberValue(float64(t))
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}
		return ListValue(items)
	case []string:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = StringValue(item)
		}
		return ListValue(items)
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = FromAny(item)
		}
		return ObjectValue(fields)
	default:
		// Неизвестный тип — сериализуем в строку
		return StringValue(fmt.Sprintf("%v", t))
	}
}

// Kind возвращает тип значения.
func (v Value) Kind() ValueKind {
	return v.kind
}

// IsNull возвращает true для пустого значения.
func (v Value) IsNull() bool {
	return v.kind == KindNull || v.kind == ""
}

// Any возвращает значение как нетипизированный any (для JSON и шаблонов).
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		items := make([]any, len(v.list))
		for i, item := range v.list {
			items[i] = item.Any()
		}
		return items
	case KindObject:
		fields := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			fields[k] = item.Any()
		}
		return fields
	default:
		return nil
	}
}

// Text возвращает строковое представление значения.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNull, "":
		return ""
	default:
		b, err := json.Marshal(v.Any())
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// AsNumber возвращает числовое представление.
// Строки, содержащие число, приводятся; остальное — false.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		n, err := strconv.ParseFloat(v.str, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Truthy возвращает "истинность" значения:
// false, 0, "", null, пустой список/объект — ложь, остальное — истина.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num != 0
	case KindString:
		return v.str != ""
	case KindList:
		return len(v.list) > 0
	case KindObject:
		return len(v.obj) > 0
	default:
		return false
	}
}

// Items возвращает элементы списка (nil, если значение не список).
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.list
}

// Field возвращает поле объекта.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindObject {
		return Null(), false
	}
	item, ok := v.obj[name]
	return item, ok
}

// Equal сравнивает два значения.
// Значения разных типов не равны, за исключением пары число/строка-число.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		// Разрешаем сравнение число ↔ числовая строка
		vn, vok := v.AsNumber()
		on, ook := other.AsNumber()
		if vok && ook && (v.kind == KindNumber || other.kind == KindNumber) {
			return vn == on
		}
		return false
	}

	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num
	case KindBool:
		return v.b == other.b
	case KindNull, "":
		return true
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(other.obj) {
			return false
		}
		for k, item := range v.obj {
			o, ok := other.obj[k]
			if !ok || !item.Equal(o) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Clone возвращает глубокую копию значения.
// Используется при создании checkpoint'ов: snapshot не должен
// делить вложенные структуры с живыми переменными.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.Clone()
		}
		return ListValue(items)
	case KindObject:
		fields := make(map[string]Value, len(v.obj))
		for k, item := range v.obj {
			fields[k] = item.Clone()
		}
		return ObjectValue(fields)
	default:
		return v
	}
}

// MarshalJSON сериализует значение в его естественную JSON форму.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON восстанавливает тегированное значение из JSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// CloneVariables возвращает глубокую копию карты переменных.
func CloneVariables(vars map[string]Value) map[string]Value {
	if vars == nil {
		return nil
	}
	clone := make(map[string]Value, len(vars))
	for k, v := range vars {
		clone[k] = v.Clone()
	}
	return clone
}

// VariableNames возвращает отсортированный список имён переменных.
func VariableNames(vars map[string]Value) []string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
