package api

import (
	"log/slog"

	"github.com/shaiso/Wayfinder/internal/driver"
	"github.com/shaiso/Wayfinder/internal/orchestrator"
	"github.com/shaiso/Wayfinder/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	workflowRepo   *repo.WorkflowRepo
	executionRepo  *repo.ExecutionRepo
	checkpointRepo *repo.CheckpointRepo
	scheduleRepo   *repo.ScheduleRepo
	engine         *orchestrator.Orchestrator
	newDriver      func() driver.Driver
	logger         *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	WorkflowRepo   *repo.WorkflowRepo
	ExecutionRepo  *repo.ExecutionRepo
	CheckpointRepo *repo.CheckpointRepo
	ScheduleRepo   *repo.ScheduleRepo
	Engine         *orchestrator.Orchestrator

	// NewDriver — фабрика драйверов: каждый execution получает
	// собственную поверхность.
	NewDriver func() driver.Driver

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		workflowRepo:   cfg.WorkflowRepo,
		executionRepo:  cfg.ExecutionRepo,
		checkpointRepo: cfg.CheckpointRepo,
		scheduleRepo:   cfg.ScheduleRepo,
		engine:         cfg.Engine,
		newDriver:      cfg.NewDriver,
		logger:         cfg.Logger,
	}
}
