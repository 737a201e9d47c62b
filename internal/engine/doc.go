// Package engine содержит парсинг workflow и состояние выполнения.
//
// Включает:
//   - parser.go    — парсинг и валидация определения workflow из JSON
//   - context.go   — ExecutionContext: переменные, прогресс, checkpoints
//   - vars.go      — подстановка переменных {{name}}
//   - condition.go — ограниченный evaluator условий (без выполнения кода)
//
// Engine отвечает за понимание структуры workflow и за изменяемое
// состояние одного запуска; сам цикл выполнения — в пакете orchestrator.
package engine
