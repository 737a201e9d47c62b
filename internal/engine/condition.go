package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/shaiso/Wayfinder/internal/domain"
)

// EvaluateCondition вычисляет декларативное условие над снимком
// переменных.
//
// Формы проверяются в порядке: Literal, Expression,
// Variable+Operator+Value, истинность Variable.
// Пустое условие считается истинным.
func EvaluateCondition(cond *domain.Condition, vars map[string]domain.Value) (bool, error) {
	if cond == nil {
		return true, nil
	}

	if cond.Literal != nil {
		return *cond.Literal, nil
	}

	if cond.Expression != "" {
		return EvaluateExpression(cond.Expression, vars)
	}

	if cond.Variable != "" && cond.Operator != "" {
		actual, ok := vars[cond.Variable]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrUnknownVariable, cond.Variable)
		}
		return Compare(cond.Operator, actual, domain.FromAny(cond.Value))
	}

	if cond.Variable != "" {
		actual, ok := vars[cond.Variable]
		if !ok {
			return false, nil
		}
		return actual.Truthy(), nil
	}

	return true, nil
}

// Compare сравнивает два значения заданным оператором.
//
// Операторы greaterThan/lessThan требуют числовых значений;
// строковые операторы работают с текстовым представлением.
// Несовместимые типы — ошибка, а не неявное приведение.
func Compare(operator string, actual, expected domain.Value) (bool, error) {
	switch operator {
	case "equals":
		return actual.Equal(expected), nil
	case "notEquals":
		return !actual.Equal(expected), nil
	case "contains":
		return strings.Contains(actual.Text(), expected.Text()), nil
	case "startsWith":
		return strings.HasPrefix(actual.Text(), expected.Text()), nil
	case "endsWith":
		return strings.HasSuffix(actual.Text(), expected.Text()), nil
	case "regex":
		re, err := regexp.Compile(expected.Text())
		if err != nil {
			return false, fmt.Errorf("invalid regex %q: %w", expected.Text(), err)
		}
		return re.MatchString(actual.Text()), nil
	case "greaterThan", "lessThan":
		an, aok := actual.AsNumber()
		en, eok := expected.AsNumber()
		if !aok || !eok {
			return false, fmt.Errorf("operator %q requires numeric values, got %s and %s",
				operator, actual.Kind(), expected.Kind())
		}
		if operator == "greaterThan" {
			return an > en, nil
		}
		return an < en, nil
	default:
		return false, fmt.Errorf("unknown comparison operator: %q", operator)
	}
}

// EvaluateExpression вычисляет булево выражение над переменными
// через expr-lang: сравнения, логические связки, скобки, строковые
// и числовые литералы. Выражение компилируется в изолированной
// среде из одних переменных — произвольный код не выполняется.
//
// Выражение обязано давать bool; другой тип результата — ошибка.
// Неизвестные переменные вычисляются в nil, сравнения с ним ложны.
func EvaluateExpression(expression string, vars map[string]domain.Value) (bool, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return false, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}

	env := make(map[string]any, len(vars))
	for name, v := range vars {
		env[name] = v.Any()
	}

	program, err := expr.Compile(expression,
		expr.Env(env),
		expr.AsBool(),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return false, fmt.Errorf("%w: compile %q: %v", ErrInvalidExpression, expression, err)
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("%w: evaluate %q: %v", ErrInvalidExpression, expression, err)
	}

	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q returned %T, want bool", ErrInvalidExpression, expression, out)
	}
	return result, nil
}
