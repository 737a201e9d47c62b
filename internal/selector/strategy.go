package selector

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shaiso/Wayfinder/internal/domain"
)

// Generator строит кандидатов-локаторов по описанию цели.
type Generator struct {
	policy *ScoringPolicy
}

// NewGenerator создаёт Generator с указанной политикой оценки.
// policy == nil — используется DefaultScoringPolicy.
func NewGenerator(policy *ScoringPolicy) *Generator {
	if policy == nil {
		policy = DefaultScoringPolicy()
	}
	return &Generator{policy: policy}
}

// matchCounter — минимальная способность драйвера, нужная для
// оценки уникальности. Полный driver.Driver здесь не требуется.
type matchCounter interface {
	MatchCount(ctx context.Context, selector string) (int, error)
}

// rawCandidate — кандидат до оценки.
type rawCandidate struct {
	selector string
	strategy domain.StrategyType
}

// Generate строит полный набор кандидатов по всем применимым стратегиям
// и возвращает их по убыванию confidence. Список является порядком
// fallback-поиска.
//
// counter используется для живой оценки уникальности; при nil counter
// или ошибке запроса уникальность считается нейтральной (0.5).
func (g *Generator) Generate(ctx context.Context, counter matchCounter, target domain.ElementTarget) []domain.SelectorCandidate {
	raw := collectCandidates(target)

	candidates := make([]domain.SelectorCandidate, 0, len(raw))
	seen := make(map[string]bool, len(raw))

	for _, rc := range raw {
		if rc.selector == "" || seen[rc.selector] {
			continue
		}
		seen[rc.selector] = true

		uniqueness := 0.5
		if counter != nil {
			if n, err := counter.MatchCount(ctx, rc.selector); err == nil {
				uniqueness = UniquenessScore(n)
			}
		}

		candidates = append(candidates, domain.SelectorCandidate{
			Selector:   rc.selector,
			Strategy:   rc.strategy,
			Confidence: g.policy.Score(rc.strategy, uniqueness),
		})
	}

	// Сортировка по убыванию confidence; при равенстве — по селектору,
	// чтобы порядок fallback был детерминированным.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Selector < candidates[j].Selector
	})

	return candidates
}

// collectCandidates перечисляет кандидатов по всем стратегиям,
// применимым к описанию цели.
func collectCandidates(target domain.ElementTarget) []rawCandidate {
	var raw []rawCandidate

	if target.ID != "" {
		raw = append(raw, rawCandidate{"#" + target.ID, domain.StrategyID})
	}

	for _, attr := range sortedKeys(target.DataAttributes) {
		raw = append(raw, rawCandidate{
			fmt.Sprintf("[%s=%q]", attr, target.DataAttributes[attr]),
			domain.StrategyDataAttribute,
		})
	}

	if target.Name != "" {
		raw = append(raw, rawCandidate{
			fmt.Sprintf("[name=%q]", target.Name),
			domain.StrategyName,
		})
	}

	if target.Role != "" && target.AccessibleName != "" {
		raw = append(raw, rawCandidate{
			fmt.Sprintf("role=%s[name=%q]", target.Role, target.AccessibleName),
			domain.StrategyAccessibility,
		})
	} else if target.AccessibleName != "" {
		raw = append(raw, rawCandidate{
			fmt.Sprintf("aria[name=%q]", target.AccessibleName),
			domain.StrategyAccessibility,
		})
	}

	for _, class := range target.Classes {
		if class == "" {
			continue
		}
		raw = append(raw, rawCandidate{"." + class, domain.StrategyClass})
	}

	for _, attr := range sortedKeys(target.Attributes) {
		raw = append(raw, rawCandidate{
			fmt.Sprintf("[%s=%q]", attr, target.Attributes[attr]),
			domain.StrategyAttribute,
		})
	}

	if target.Text != "" {
		tag := target.TagName
		if tag == "" {
			tag = "*"
		}
		raw = append(raw, rawCandidate{
			fmt.Sprintf("%s:has-text(%q)", tag, target.Text),
			domain.StrategyText,
		})
	}

	if target.StructuralPath != "" {
		raw = append(raw, rawCandidate{target.StructuralPath, domain.StrategyStructural})
	}

	if target.VisualFingerprint != "" {
		raw = append(raw, rawCandidate{
			"visual=" + target.VisualFingerprint,
			domain.StrategyVisual,
		})
	}

	// Первичный локатор тоже участвует в наборе: если подсказок нет,
	// это единственный кандидат.
	if target.Primary != "" {
		raw = append(raw, rawCandidate{target.Primary, classifySelector(target.Primary)})
	}

	return raw
}

// classifySelector определяет стратегию авторского локатора по его форме.
func classifySelector(sel string) domain.StrategyType {
	switch {
	case strings.HasPrefix(sel, "#"):
		return domain.StrategyID
	case strings.HasPrefix(sel, "[data-"):
		return domain.StrategyDataAttribute
	case strings.HasPrefix(sel, "[name="):
		return domain.StrategyName
	case strings.HasPrefix(sel, "role=") || strings.HasPrefix(sel, "aria["):
		return domain.StrategyAccessibility
	case strings.HasPrefix(sel, "."):
		return domain.StrategyClass
	case strings.HasPrefix(sel, "["):
		return domain.StrategyAttribute
	case strings.Contains(sel, ":has-text("):
		return domain.StrategyText
	case strings.HasPrefix(sel, "/") || strings.Contains(sel, " > "):
		return domain.StrategyStructural
	case strings.HasPrefix(sel, "visual="):
		return domain.StrategyVisual
	default:
		return domain.StrategyAttribute
	}
}

// sortedKeys возвращает отсортированные ключи карты
// для детерминированного порядка кандидатов.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
