// Package timing вычисляет адаптивные таймауты операций.
//
// Движок масштабирует базовый таймаут шага ограниченным множителем,
// выведенным из недавних латентностей, доли неуспехов, сложности
// страницы и состояния сети, и подбирает подходящую стратегию ожидания.
package timing
