// Wayfinder Server — API и движок выполнения workflow.
//
// Server:
//   - Отдаёт REST API: workflows, versions, executions, schedules
//   - Выполняет executions in-process через оркестратор
//   - Персистирует снимки контекста и checkpoints в PostgreSQL
//   - Публикует события жизненного цикла в RabbitMQ
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Wayfinder/internal/api"
	"github.com/shaiso/Wayfinder/internal/driver"
	"github.com/shaiso/Wayfinder/internal/driver/sim"
	"github.com/shaiso/Wayfinder/internal/mq"
	"github.com/shaiso/Wayfinder/internal/orchestrator"
	"github.com/shaiso/Wayfinder/internal/repo"
	"github.com/shaiso/Wayfinder/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wayfinder_server_http_requests_total",
		Help: "Total HTTP requests handled by wayfinder_server",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting wayfinder-server")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	// Создаём репозитории
	workflowRepo := repo.NewWorkflowRepo(pool)
	executionRepo := repo.NewExecutionRepo(pool)
	checkpointRepo := repo.NewCheckpointRepo(pool)
	scheduleRepo := repo.NewScheduleRepo(pool)

	// Наблюдатели: метрики всегда, события в RabbitMQ — если доступен
	observers := orchestrator.MultiObserver{orchestrator.NewMetricsObserver()}

	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL
	}
	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, lifecycle events disabled", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher := mq.NewPublisher(mqConn, logger)
		observers = append(observers, mq.NewEventObserver(ctx, publisher, logger))
	}

	// Создаём движок выполнения
	engine := orchestrator.New(orchestrator.Config{
		Store:    repo.NewStateStore(executionRepo, checkpointRepo),
		Observer: observers,
		Logger:   logger,
	})

	// Создаём API handler
	handler := api.NewHandler(api.Config{
		WorkflowRepo:   workflowRepo,
		ExecutionRepo:  executionRepo,
		CheckpointRepo: checkpointRepo,
		ScheduleRepo:   scheduleRepo,
		Engine:         engine,
		NewDriver:      newDriver(logger),
		Logger:         logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("SERVER_PORT"); v != "" {
		addr = ":" + v
	}

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}

// newDriver возвращает фабрику драйверов для executions.
// Поддерживается только in-memory поверхность; WAYFINDER_DRIVER
// зарезервирован для будущих реализаций (CDP, WebDriver).
func newDriver(logger *slog.Logger) func() driver.Driver {
	if name := os.Getenv("WAYFINDER_DRIVER"); name != "" && name != "sim" {
		logger.Warn("unknown driver, falling back to sim", "driver", name)
	}
	return func() driver.Driver { return sim.New() }
}
