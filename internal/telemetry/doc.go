// Package telemetry — логирование и метрики Wayfinder.
//
// logging.go настраивает структурный slog-логгер процесса и даёт
// хелперы привязки execution_id / workflow_id / step_id к записям.
// metrics.go определяет Prometheus метрики движка и HTTP слоя;
// сервер экспортирует их на /metrics.
package telemetry
