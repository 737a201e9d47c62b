package telemetry

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// LogLevel читает уровень логирования из LOG_LEVEL.
// Поддерживаются DEBUG, INFO, WARN, ERROR; по умолчанию INFO.
func LogLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger создаёт логгер процесса и делает его глобальным.
//
// LOG_FORMAT=text включает человекочитаемый вывод для разработки,
// иначе пишется JSON. На уровне DEBUG к записям добавляется источник.
func SetupLogger() *slog.Logger {
	level := LogLevel()
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// WithExecutionID возвращает логгер с привязанным execution_id.
func WithExecutionID(logger *slog.Logger, executionID uuid.UUID) *slog.Logger {
	return logger.With("execution_id", executionID)
}

// WithWorkflowID возвращает логгер с привязанным workflow_id.
func WithWorkflowID(logger *slog.Logger, workflowID uuid.UUID) *slog.Logger {
	return logger.With("workflow_id", workflowID)
}

// WithStepID возвращает логгер с привязанным step_id.
func WithStepID(logger *slog.Logger, stepID string) *slog.Logger {
	return logger.With("step_id", stepID)
}
