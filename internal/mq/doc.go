// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//   - observer.go   — адаптер событий движка в очередь
//
// Типы сообщений:
//   - execution.finished — execution достиг терминального состояния
//   - lifecycle.event    — событие жизненного цикла (workflow.*, step.*)
//
// Exchanges:
//   - wayfinder.executions — терминальные события executions
//   - wayfinder.events     — поток событий жизненного цикла
//   - wayfinder.dlq        — dead letter queue
package mq
