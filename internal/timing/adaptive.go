package timing

import (
	"sync"
	"time"
)

// WaitStrategy — стратегия ожидания для операции.
type WaitStrategy string

// Стратегии ожидания.
const (
	// StrategyFixed — обычное ожидание с фиксированным таймаутом.
	StrategyFixed WaitStrategy = "fixed"

	// StrategyDOMStable — ждать стабилизации DOM (для сложных страниц).
	StrategyDOMStable WaitStrategy = "dom_stable"

	// StrategyNetworkIdle — ждать затишья сети (для медленной сети).
	StrategyNetworkIdle WaitStrategy = "network_idle"

	// StrategyLoadThenElement — дождаться load-state, затем элемента.
	StrategyLoadThenElement WaitStrategy = "load_then_element"
)

// Границы адаптации.
const (
	// maxMultiplier — множитель таймаута никогда не превышает 3× базы.
	maxMultiplier = 3.0

	// defaultAlpha — коэффициент экспоненциального сглаживания.
	defaultAlpha = 0.3

	// defaultWindow — количество последних выборок, влияющих на оценку.
	defaultWindow = 20

	// complexityThreshold — порог сложности страницы для DOM-стратегии.
	complexityThreshold = 0.6
)

// Plan — рассчитанный таймаут и стратегия ожидания для операции.
type Plan struct {
	// Timeout — итоговый таймаут.
	Timeout time.Duration

	// Strategy — рекомендуемая стратегия ожидания.
	Strategy WaitStrategy
}

// sample — сглаженная статистика по одному действию.
type sample struct {
	// avg — экспоненциально сглаженная средняя длительность.
	avg float64

	// failRate — сглаженная доля неуспешных операций.
	failRate float64

	// n — количество учтённых выборок (ограничено окном).
	n int
}

// Adaptive вычисляет таймауты операций из недавних сигналов.
//
// Каждый вызов Record обновляет экспоненциально сглаженную среднюю
// по последним выборкам — полная история не хранится и не
// перепроигрывается. Calculate масштабирует базовый таймаут
// ограниченным множителем и выбирает стратегию ожидания
// по предсказанному состоянию страницы/сети.
type Adaptive struct {
	mu      sync.Mutex
	samples map[string]*sample
	alpha   float64
	window  int

	// pageComplexity — сигнал сложности страницы [0, 1].
	pageComplexity float64

	// slowNetwork — флаг деградировавшей сети.
	slowNetwork bool
}

// New создаёт Adaptive с настройками по умолчанию.
func New() *Adaptive {
	return &Adaptive{
		samples: make(map[string]*sample),
		alpha:   defaultAlpha,
		window:  defaultWindow,
	}
}

// SetPageComplexity обновляет сигнал сложности страницы [0, 1].
func (a *Adaptive) SetPageComplexity(score float64) {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	a.mu.Lock()
	a.pageComplexity = score
	a.mu.Unlock()
}

// SetNetworkCondition обновляет флаг медленной сети.
func (a *Adaptive) SetNetworkCondition(slow bool) {
	a.mu.Lock()
	a.slowNetwork = slow
	a.mu.Unlock()
}

// Record учитывает результат операции для уточнения будущих множителей.
func (a *Adaptive) Record(action string, duration time.Duration, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, exists := a.samples[action]
	if !exists {
		s = &sample{avg: float64(duration)}
		a.samples[action] = s
	}

	s.avg = a.alpha*float64(duration) + (1-a.alpha)*s.avg

	failed := 0.0
	if !ok {
		failed = 1.0
	}
	s.failRate = a.alpha*failed + (1-a.alpha)*s.failRate

	if s.n < a.window {
		s.n++
	}
}

// Calculate возвращает таймаут и стратегию ожидания для действия.
//
// Множитель складывается из отношения недавней средней длительности
// к базовому таймауту, доли неуспехов, сложности страницы и состояния
// сети; итог зажимается в [1, maxMultiplier].
func (a *Adaptive) Calculate(action string, base time.Duration) Plan {
	if base <= 0 {
		base = 30 * time.Second
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	multiplier := 1.0

	if s, ok := a.samples[action]; ok && s.n > 0 {
		// Операции, стабильно занимающие заметную долю базы,
		// получают запас.
		ratio := s.avg / float64(base)
		if ratio > 0.5 {
			multiplier += ratio
		}
		// Недавние неуспехи — признак деградации, добавляем запас.
		multiplier += s.failRate
	}

	if a.slowNetwork {
		multiplier += 0.5
	}
	multiplier += a.pageComplexity * 0.5

	if multiplier > maxMultiplier {
		multiplier = maxMultiplier
	}
	if multiplier < 1 {
		multiplier = 1
	}

	return Plan{
		Timeout:  time.Duration(float64(base) * multiplier),
		Strategy: a.strategyLocked(action),
	}
}

// strategyLocked выбирает стратегию ожидания. Вызывается под мьютексом.
func (a *Adaptive) strategyLocked(action string) WaitStrategy {
	if a.slowNetwork {
		return StrategyNetworkIdle
	}
	if a.pageComplexity >= complexityThreshold {
		return StrategyDOMStable
	}
	if s, ok := a.samples[action]; ok && s.failRate > 0.3 {
		return StrategyLoadThenElement
	}
	return StrategyFixed
}
