// Package orchestrator содержит движок выполнения workflow.
//
// Движок ведёт реестр активных executions, выполняет шаги через
// реестр обработчиков с политикой retry, поддерживает паузу и
// возобновление на границах шагов, отмену, checkpoints и раннее
// завершение по сигналу return. Жизненный цикл execution публикуется
// наблюдателям (логи, метрики, очередь событий).
package orchestrator
