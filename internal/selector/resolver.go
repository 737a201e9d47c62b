package selector

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shaiso/Wayfinder/internal/domain"
	"github.com/shaiso/Wayfinder/internal/driver"
)

// Resolution — итог успешного разрешения элемента.
type Resolution struct {
	// Element — найденный элемент.
	Element *driver.ElementHandle

	// Outcome — детали разрешения: кандидаты, использованный
	// локатор и флаг healed.
	Outcome domain.ElementResolution
}

// Resolver выполняет self-healing разрешение элементов.
//
// Сначала пробуется авторский локатор дословно. Если он не разрешается
// в единственный доступный элемент, Resolver идёт по ранжированному
// списку кандидатов (fallbackOrder) до первого успеха, помечая результат
// healed. Каждый fallback структурно независим — это ranked-fallback
// поиск, а не повтор одного и того же локатора.
type Resolver struct {
	generator *Generator
	logger    *slog.Logger
}

// Config — конфигурация Resolver.
type Config struct {
	// Policy — политика оценки кандидатов (nil — по умолчанию).
	Policy *ScoringPolicy

	// Logger — логгер (nil — slog.Default()).
	Logger *slog.Logger
}

// NewResolver создаёт Resolver.
func NewResolver(cfg Config) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		generator: NewGenerator(cfg.Policy),
		logger:    logger,
	}
}

// Candidates возвращает ранжированный список кандидатов для цели
// без попытки разрешения. Используется для диагностики и тестов.
func (r *Resolver) Candidates(ctx context.Context, d driver.Driver, target domain.ElementTarget) []domain.SelectorCandidate {
	return r.generator.Generate(ctx, d, target)
}

// Resolve разрешает цель в элемент.
//
// Возвращает *NotResolvableError (оборачивающий ErrElementNotResolvable)
// со списком испробованных кандидатов, если ни один не сработал.
func (r *Resolver) Resolve(ctx context.Context, d driver.Driver, target domain.ElementTarget) (*Resolution, error) {
	candidates := r.generator.Generate(ctx, d, target)
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	// 1. Первичный локатор, дословно.
	if target.Primary != "" {
		primary := primaryCandidate(target.Primary, candidates)
		element, err := d.Locate(ctx, primary)
		if err == nil {
			return &Resolution{
				Element: element,
				Outcome: domain.ElementResolution{
					Candidates: candidates,
					Used:       primary,
					Healed:     false,
				},
			}, nil
		}
		if !isResolutionFailure(err) {
			// Инфраструктурная ошибка драйвера — fallback не поможет
			return nil, err
		}
		r.logger.Debug("primary locator failed, starting fallback search",
			"target", target.Primary,
			"error", err,
			"candidates", len(candidates),
		)
	}

	// 2. Fallback-поиск по убыванию confidence.
	attempted := make([]domain.SelectorCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.Selector == target.Primary {
			// Первичный уже испробован
			attempted = append(attempted, candidate)
			continue
		}

		element, err := d.Locate(ctx, candidate)
		if err == nil {
			healed := target.Primary != ""
			if healed {
				r.logger.Info("element healed by fallback locator",
					"target", target.Primary,
					"used", candidate.Selector,
					"strategy", candidate.Strategy,
					"confidence", candidate.Confidence,
				)
			}
			return &Resolution{
				Element: element,
				Outcome: domain.ElementResolution{
					Candidates: candidates,
					Used:       candidate,
					Healed:     healed,
				},
			}, nil
		}
		attempted = append(attempted, candidate)
		if !isResolutionFailure(err) {
			return nil, err
		}
	}

	return nil, &NotResolvableError{
		Target:    target.Primary,
		Attempted: attempted,
	}
}

// primaryCandidate находит кандидата, соответствующего первичному
// локатору, либо строит его на лету.
func primaryCandidate(primary string, candidates []domain.SelectorCandidate) domain.SelectorCandidate {
	for _, c := range candidates {
		if c.Selector == primary {
			return c
		}
	}
	return domain.SelectorCandidate{
		Selector: primary,
		Strategy: classifySelector(primary),
	}
}

// isResolutionFailure возвращает true для ошибок, при которых
// имеет смысл пробовать следующий кандидат.
func isResolutionFailure(err error) bool {
	return errors.Is(err, driver.ErrNotFound) ||
		errors.Is(err, driver.ErrAmbiguous) ||
		errors.Is(err, driver.ErrNotInteractable)
}
