package selector

import "github.com/shaiso/Wayfinder/internal/domain"

// ScoringPolicy — настраиваемая политика оценки кандидатов.
//
// Веса и таблицы по стратегиям вынесены в отдельную структуру,
// чтобы оценку можно было подстраивать без изменения движка.
type ScoringPolicy struct {
	// UniquenessWeight — вес уникальности (сколько элементов
	// кандидат находит прямо сейчас).
	UniquenessWeight float64

	// StabilityWeight — вес стабильности типа локатора.
	StabilityWeight float64

	// ReadabilityWeight — вес читаемости выражения.
	ReadabilityWeight float64

	// CostWeight — вес стоимости запроса (дешёвый запрос — выше балл).
	CostWeight float64

	// Stability — стабильность по стратегиям: id и data-атрибуты
	// переживают дрейф разметки, абсолютные структурные пути — нет.
	Stability map[domain.StrategyType]float64

	// Readability — читаемость по стратегиям.
	Readability map[domain.StrategyType]float64

	// QueryScore — балл стоимости запроса по стратегиям
	// (1.0 — самый дешёвый).
	QueryScore map[domain.StrategyType]float64
}

// DefaultScoringPolicy возвращает политику по умолчанию.
//
// Таблицы подобраны так, что детерминированный порядок предпочтения
// кандидатов: id > data-attribute > name > accessibility >
// class/attribute > text > structural > visual.
func DefaultScoringPolicy() *ScoringPolicy {
	return &ScoringPolicy{
		UniquenessWeight:  0.35,
		StabilityWeight:   0.45,
		ReadabilityWeight: 0.10,
		CostWeight:        0.10,
		Stability: map[domain.StrategyType]float64{
			domain.StrategyID:            1.00,
			domain.StrategyDataAttribute: 0.95,
			domain.StrategyName:          0.85,
			domain.StrategyAccessibility: 0.80,
			domain.StrategyClass:         0.55,
			domain.StrategyAttribute:     0.60,
			domain.StrategyText:          0.45,
			domain.StrategyStructural:    0.20,
			domain.StrategyVisual:        0.15,
		},
		Readability: map[domain.StrategyType]float64{
			domain.StrategyID:            0.95,
			domain.StrategyDataAttribute: 0.90,
			domain.StrategyName:          0.85,
			domain.StrategyAccessibility: 0.85,
			domain.StrategyClass:         0.70,
			domain.StrategyAttribute:     0.65,
			domain.StrategyText:          0.80,
			domain.StrategyStructural:    0.20,
			domain.StrategyVisual:        0.10,
		},
		QueryScore: map[domain.StrategyType]float64{
			domain.StrategyID:            1.00,
			domain.StrategyDataAttribute: 0.90,
			domain.StrategyName:          0.90,
			domain.StrategyAccessibility: 0.70,
			domain.StrategyClass:         0.85,
			domain.StrategyAttribute:     0.80,
			domain.StrategyText:          0.50,
			domain.StrategyStructural:    0.60,
			domain.StrategyVisual:        0.20,
		},
	}
}

// UniquenessScore переводит количество совпадений в балл [0, 1].
// Ровно одно совпадение — 1.0, ноль — 0.0, далее монотонно убывает
// с ростом количества совпадений.
func UniquenessScore(matches int) float64 {
	switch {
	case matches <= 0:
		return 0.0
	case matches == 1:
		return 1.0
	default:
		return 1.0 / float64(matches)
	}
}

// Score вычисляет итоговый confidence кандидата.
// uniqueness — балл уникальности [0, 1]. Результат зажимается в [0, 1].
func (p *ScoringPolicy) Score(strategy domain.StrategyType, uniqueness float64) float64 {
	score := p.UniquenessWeight*uniqueness +
		p.StabilityWeight*p.Stability[strategy] +
		p.ReadabilityWeight*p.Readability[strategy] +
		p.CostWeight*p.QueryScore[strategy]

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
