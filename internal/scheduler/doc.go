// Package scheduler запускает workflow по расписанию.
//
// Каждый тик Scheduler выбирает включённые schedules с истекшим
// next_due_at, создаёт для них PENDING executions и сдвигает
// next_due_at по cron-выражению или интервалу (cron.go). События
// execution.finished из RabbitMQ обновляют статистику расписания.
//
//	sched := scheduler.New(scheduler.Config{
//	    ScheduleRepo:  scheduleRepo,
//	    ExecutionRepo: executionRepo,
//	    WorkflowRepo:  workflowRepo,
//	    Logger:        logger,
//	})
//	err := sched.Tick(ctx) // периодически, только на лидере
//
// Несколько экземпляров wayfinder-scheduler разводятся через
// pg_try_advisory_lock в main.go; сам пакет о выборах лидера
// ничего не знает.
package scheduler
