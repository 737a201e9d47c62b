// Package sim — in-memory реализация driver.Driver.
//
// Драйвер моделирует набор страниц с элементами и историю навигации.
// Используется как поверхность по умолчанию для локальной разработки
// и как управляемый фейк в тестах: страницы и элементы описываются
// декларативно, ошибки инжектируются скриптом.
package sim

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shaiso/Wayfinder/internal/domain"
	"github.com/shaiso/Wayfinder/internal/driver"
)

// Element — элемент страницы.
type Element struct {
	// ID — идентификатор элемента.
	ID string

	// Tag — имя тега.
	Tag string

	// Text — текстовое содержимое.
	Text string

	// Attributes — атрибуты элемента (включая "value").
	Attributes map[string]string

	// Selectors — все локаторы, по которым элемент находится.
	Selectors []string

	// Visible и Enabled — доступность элемента.
	Visible bool
	Enabled bool
}

func (e *Element) matches(selector string) bool {
	for _, s := range e.Selectors {
		if s == selector {
			return true
		}
	}
	return false
}

// Page — страница с элементами.
type Page struct {
	// URL — адрес страницы.
	URL string

	// Title — заголовок.
	Title string

	// HTML — разметка, возвращаемая при извлечении html.
	HTML string

	// Elements — элементы страницы.
	Elements []*Element
}

// Driver — in-memory поверхность.
type Driver struct {
	mu sync.Mutex

	pages   map[string]*Page
	history []string
	cursor  int
	cookies map[string]string
	storage map[string]string
	closed  bool

	// errs — заскриптованные ошибки: операция → очередь.
	errs map[string][]error
}

// New создаёт драйвер с набором страниц. Текущей становится
// первая страница списка (или пустая, если список пуст).
func New(pages ...*Page) *Driver {
	d := &Driver{
		pages:   make(map[string]*Page, len(pages)),
		cookies: make(map[string]string),
		storage: make(map[string]string),
		errs:    make(map[string][]error),
		cursor:  -1,
	}
	for _, p := range pages {
		d.pages[p.URL] = p
	}
	if len(pages) > 0 {
		d.history = []string{pages[0].URL}
		d.cursor = 0
	}
	return d
}

// AddPage регистрирует страницу.
func (d *Driver) AddPage(p *Page) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages[p.URL] = p
}

// SetCookie задаёт cookie.
func (d *Driver) SetCookie(name, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cookies[name] = value
}

// SetStorageItem задаёт запись local storage.
func (d *Driver) SetStorageItem(key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.storage[key] = value
}

// InjectError ставит ошибку в очередь операции op ("navigate",
// "locate", "act", "extract", "wait"). Каждый вызов операции
// снимает одну ошибку из очереди.
func (d *Driver) InjectError(op string, err error, times int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < times; i++ {
		d.errs[op] = append(d.errs[op], err)
	}
}

// Closed возвращает true после действия close.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Driver) takeErr(op string) error {
	queue := d.errs[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	d.errs[op] = queue[1:]
	return err
}

func (d *Driver) current() *Page {
	if d.cursor < 0 || d.cursor >= len(d.history) {
		return nil
	}
	return d.pages[d.history[d.cursor]]
}

// Navigate переходит по URL. Незарегистрированный адрес ведёт
// на пустую страницу со статусом 404.
func (d *Driver) Navigate(ctx context.Context, url string, opts driver.NavigateOptions) (*driver.NavigateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.takeErr("navigate"); err != nil {
		return nil, err
	}

	status := 200
	if _, ok := d.pages[url]; !ok {
		d.pages[url] = &Page{URL: url, Title: url}
		status = 404
	}

	// Переход обрезает forward-ветку истории.
	d.history = append(d.history[:d.cursor+1], url)
	d.cursor = len(d.history) - 1

	return &driver.NavigateResult{Status: status, FinalURL: url}, nil
}

// Locate ищет единственный элемент по кандидату.
func (d *Driver) Locate(ctx context.Context, candidate domain.SelectorCandidate) (*driver.ElementHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.takeErr("locate"); err != nil {
		return nil, err
	}

	page := d.current()
	if page == nil {
		return nil, driver.ErrNotFound
	}

	var found []*Element
	for _, el := range page.Elements {
		if el.matches(candidate.Selector) {
			found = append(found, el)
		}
	}

	switch len(found) {
	case 0:
		return nil, driver.ErrNotFound
	case 1:
		el := found[0]
		return &driver.ElementHandle{
			ID:       el.ID,
			Selector: candidate.Selector,
			Tag:      el.Tag,
			Visible:  el.Visible,
			Enabled:  el.Enabled,
		}, nil
	default:
		return nil, driver.ErrAmbiguous
	}
}

// MatchCount возвращает число элементов, соответствующих локатору.
func (d *Driver) MatchCount(ctx context.Context, selector string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	page := d.current()
	if page == nil {
		return 0, nil
	}

	count := 0
	for _, el := range page.Elements {
		if el.matches(selector) {
			count++
		}
	}
	return count, nil
}

// Act выполняет действие над элементом или страницей.
func (d *Driver) Act(ctx context.Context, element *driver.ElementHandle, action string, opts driver.ActionOptions) (*driver.ActionOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.takeErr("act"); err != nil {
		return nil, err
	}

	if element == nil {
		return d.actPage(action)
	}

	el := d.findByID(element.ID)
	if el == nil {
		return nil, driver.ErrNotFound
	}
	if !el.Visible || !el.Enabled {
		return nil, fmt.Errorf("%w: %s", driver.ErrNotInteractable, action)
	}

	switch action {
	case "click", "hover", "scroll", "focus", "blur", "drag":
		// Состояние страницы не моделируется глубже атрибутов.
	case "type":
		if el.Attributes == nil {
			el.Attributes = make(map[string]string)
		}
		el.Attributes["value"] = fmt.Sprint(opts.Value)
	case "select":
		if el.Attributes == nil {
			el.Attributes = make(map[string]string)
		}
		el.Attributes["value"] = fmt.Sprint(opts.Value)
	default:
		return nil, fmt.Errorf("%w: %s", driver.ErrUnsupportedAction, action)
	}

	return &driver.ActionOutcome{Performed: action}, nil
}

func (d *Driver) actPage(action string) (*driver.ActionOutcome, error) {
	switch action {
	case "back":
		if d.cursor > 0 {
			d.cursor--
		}
	case "forward":
		if d.cursor < len(d.history)-1 {
			d.cursor++
		}
	case "refresh":
		// Страницы статичны, перезагрузка — no-op.
	case "close":
		d.closed = true
	case "scroll":
		// Позиция прокрутки не моделируется.
	default:
		return nil, fmt.Errorf("%w: %s", driver.ErrUnsupportedAction, action)
	}
	return &driver.ActionOutcome{Performed: action}, nil
}

// Extract извлекает данные из элемента или страницы.
func (d *Driver) Extract(ctx context.Context, req driver.ExtractRequest) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.takeErr("extract"); err != nil {
		return nil, err
	}

	page := d.current()

	switch req.Mode {
	case driver.ExtractURL:
		if page == nil {
			return "", nil
		}
		return page.URL, nil

	case driver.ExtractCookies:
		out := make(map[string]any, len(d.cookies))
		for k, v := range d.cookies {
			out[k] = v
		}
		return out, nil

	case driver.ExtractLocalStorage:
		out := make(map[string]any, len(d.storage))
		for k, v := range d.storage {
			out[k] = v
		}
		return out, nil

	case driver.ExtractScreenshot:
		name := "page"
		if req.Element != nil {
			name = req.Element.ID
		}
		return []byte("screenshot:" + name), nil

	case driver.ExtractMultiple:
		if page == nil {
			return []any{}, nil
		}
		var out []any
		for _, el := range page.Elements {
			if el.matches(req.Selector) {
				out = append(out, el.Text)
			}
		}
		return out, nil

	case driver.ExtractHTML:
		if req.Element == nil {
			if page == nil {
				return "", nil
			}
			return page.HTML, nil
		}
		el := d.findByID(req.Element.ID)
		if el == nil {
			return nil, driver.ErrNotFound
		}
		return "<" + el.Tag + ">" + el.Text + "</" + el.Tag + ">", nil

	case driver.ExtractText:
		el := d.findByID(req.Element.ID)
		if el == nil {
			return nil, driver.ErrNotFound
		}
		return el.Text, nil

	case driver.ExtractAttribute:
		el := d.findByID(req.Element.ID)
		if el == nil {
			return nil, driver.ErrNotFound
		}
		return el.Attributes[req.Attribute], nil

	default:
		return nil, fmt.Errorf("unknown extract mode: %s", req.Mode)
	}
}

// CurrentURL возвращает URL текущей страницы.
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	page := d.current()
	if page == nil {
		return "", nil
	}
	return page.URL, nil
}

// CurrentTitle возвращает заголовок текущей страницы.
func (d *Driver) CurrentTitle(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	page := d.current()
	if page == nil {
		return "", nil
	}
	return page.Title, nil
}

// WaitFor блокируется до выполнения условия. Условие по селектору
// и URL опрашивается с коротким интервалом; load_state выполняется
// немедленно — загрузка страниц не моделируется.
func (d *Driver) WaitFor(ctx context.Context, cond driver.WaitCondition) error {
	d.mu.Lock()
	if err := d.takeErr("wait"); err != nil {
		d.mu.Unlock()
		return err
	}
	d.mu.Unlock()

	switch cond.Kind {
	case "load_state":
		return ctx.Err()

	case "selector", "url":
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			if d.conditionMet(cond) {
				return nil
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: wait %s", driver.ErrTimeout, cond.Kind)
			case <-ticker.C:
			}
		}

	default:
		return fmt.Errorf("unknown wait condition: %s", cond.Kind)
	}
}

func (d *Driver) conditionMet(cond driver.WaitCondition) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	page := d.current()
	if page == nil {
		return false
	}

	switch cond.Kind {
	case "selector":
		for _, el := range page.Elements {
			if el.matches(cond.Selector) {
				return true
			}
		}
		return false
	case "url":
		return matchURL(page.URL, cond.URLPattern)
	default:
		return false
	}
}

func (d *Driver) findByID(id string) *Element {
	page := d.current()
	if page == nil {
		return nil
	}
	for _, el := range page.Elements {
		if el.ID == id {
			return el
		}
	}
	return nil
}

// matchURL сопоставляет URL с шаблоном: "*" — произвольный фрагмент,
// шаблон без "*" — подстрока.
func matchURL(url, pattern string) bool {
	if pattern == "" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return strings.Contains(url, pattern)
	}

	parts := strings.Split(pattern, "*")
	rest := url
	for i, part := range parts {
		if part == "" {
			continue
		}
		idx := strings.Index(rest, part)
		if idx < 0 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		rest = rest[idx+len(part):]
	}
	if last := parts[len(parts)-1]; last != "" && !strings.HasSuffix(url, last) {
		return false
	}
	return true
}
