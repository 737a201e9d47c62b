package domain

// StrategyType — тип стратегии локатора.
type StrategyType string

// Стратегии локаторов в порядке убывания предпочтения.
const (
	// StrategyID — локатор по id элемента ("#submit").
	StrategyID StrategyType = "id"

	// StrategyDataAttribute — локатор по data-атрибуту ("[data-testid=x]").
	StrategyDataAttribute StrategyType = "data-attribute"

	// StrategyName — локатор по атрибуту name.
	StrategyName StrategyType = "name"

	// StrategyAccessibility — локатор по accessible name/role.
	StrategyAccessibility StrategyType = "accessibility"

	// StrategyClass — локатор по CSS классу.
	StrategyClass StrategyType = "class"

	// StrategyAttribute — локатор по произвольному атрибуту.
	StrategyAttribute StrategyType = "attribute"

	// StrategyText — локатор по содержимому текста.
	StrategyText StrategyType = "text"

	// StrategyStructural — локатор по структурной позиции (абсолютный путь).
	StrategyStructural StrategyType = "structural"

	// StrategyVisual — локатор по визуальному отпечатку.
	StrategyVisual StrategyType = "visual"
)

// SelectorCandidate — кандидат-локатор со стратегией и оценкой надёжности.
type SelectorCandidate struct {
	// Selector — выражение локатора.
	Selector string `json:"selector"`

	// Strategy — тип стратегии.
	Strategy StrategyType `json:"strategy"`

	// Confidence — оценка надёжности в диапазоне [0, 1].
	// Взвешенная комбинация уникальности, стабильности,
	// читаемости и стоимости запроса.
	Confidence float64 `json:"confidence"`
}

// ElementTarget — описание целевого элемента для генерации кандидатов.
//
// Primary — авторский локатор из определения шага; остальные поля —
// подсказки (hints), позволяющие построить структурно независимые
// fallback-локаторы на случай дрейфа разметки.
type ElementTarget struct {
	// Primary — авторский локатор (используется первым, дословно).
	Primary string `json:"primary"`

	// ID — значение атрибута id элемента.
	ID string `json:"id,omitempty"`

	// DataAttributes — data-атрибуты элемента (имя → значение).
	DataAttributes map[string]string `json:"data_attributes,omitempty"`

	// Name — значение атрибута name.
	Name string `json:"name,omitempty"`

	// Classes — CSS классы элемента.
	Classes []string `json:"classes,omitempty"`

	// Attributes — прочие атрибуты (имя → значение).
	Attributes map[string]string `json:"attributes,omitempty"`

	// Text — видимый текст элемента.
	Text string `json:"text,omitempty"`

	// TagName — имя тега (для text и structural локаторов).
	TagName string `json:"tag_name,omitempty"`

	// Role — ARIA роль элемента.
	Role string `json:"role,omitempty"`

	// AccessibleName — accessible name элемента.
	AccessibleName string `json:"accessible_name,omitempty"`

	// StructuralPath — абсолютный структурный путь (CSS/XPath).
	StructuralPath string `json:"structural_path,omitempty"`

	// VisualFingerprint — визуальный отпечаток элемента.
	VisualFingerprint string `json:"visual_fingerprint,omitempty"`
}

// ElementResolution — итог разрешения элемента.
type ElementResolution struct {
	// Candidates — полный список кандидатов по убыванию confidence.
	// Является порядком fallback-поиска.
	Candidates []SelectorCandidate `json:"candidates"`

	// Used — кандидат, которым элемент был фактически разрешён.
	Used SelectorCandidate `json:"used"`

	// Healed — true, если первичный локатор не сработал
	// и элемент найден fallback-кандидатом.
	Healed bool `json:"healed"`
}
