// Package selector реализует self-healing разрешение элементов.
//
// Включает:
//   - strategy.go — генерация кандидатов-локаторов по стратегиям
//   - score.go    — взвешенная оценка confidence кандидатов
//   - resolver.go — ranked-fallback поиск элемента
//
// Одно авторское описание цели превращается в ранжированный список
// структурно независимых локаторов; при дрейфе разметки движок
// подставляет следующий кандидат вместо падения шага.
package selector
