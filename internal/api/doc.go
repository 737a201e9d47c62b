// Package api — HTTP API сервера Wayfinder.
//
// REST-интерфейс поверх стандартного net/http с паттерн-маршрутизацией
// ServeMux (Go 1.22+). Даёт CRUD для workflows и их версий,
// жизненный цикл executions (запуск, пауза, возобновление, отмена,
// checkpoints) и управление расписаниями.
//
// Executions выполняются in-process: запуск создаёт запись в БД и
// отдаёт управление оркестратору в фоновой горутине.
package api
