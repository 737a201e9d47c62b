package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Output печатает результаты команд: таблицы для людей,
// JSON для скриптов. Данные идут в stdout, сообщения — в stderr,
// чтобы вывод можно было передавать по конвейеру.
type Output struct {
	jsonMode bool
	data     io.Writer
	messages io.Writer
}

// NewOutput создаёт Output. jsonMode переключает вывод данных на JSON.
func NewOutput(jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		data:     os.Stdout,
		messages: os.Stderr,
	}
}

// Print выводит результат в активном режиме.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		enc := json.NewEncoder(o.data)
		enc.SetIndent("", "  ")
		enc.Encode(jsonData)
		return
	}
	o.printTable(headers, rows)
}

// Success выводит сообщение о выполненной операции.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.messages, msg)
}

// Error выводит сообщение об ошибке.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.messages, "Error: "+msg)
}

func (o *Output) printTable(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.data, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	rule := make([]string, len(headers))
	for i, h := range headers {
		rule[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(rule, "\t"))

	for _, row := range rows {
		// Строка короче заголовка не должна ломать выравнивание.
		for len(row) < len(headers) {
			row = append(row, "")
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
}
