package driver

import (
	"context"
	"errors"

	"github.com/shaiso/Wayfinder/internal/domain"
)

// Ошибки драйвера.
var (
	// ErrNotFound — локатор не нашёл ни одного элемента.
	ErrNotFound = errors.New("element not found")

	// ErrAmbiguous — локатор нашёл несколько элементов.
	ErrAmbiguous = errors.New("element not unique")

	// ErrNotInteractable — элемент найден, но недоступен для действия.
	ErrNotInteractable = errors.New("element not interactable")

	// ErrTimeout — операция драйвера превысила таймаут.
	ErrTimeout = errors.New("driver operation timeout")

	// ErrUnsupportedAction — драйвер не поддерживает действие.
	ErrUnsupportedAction = errors.New("unsupported action")
)

// NavigateOptions — параметры навигации.
type NavigateOptions struct {
	// WaitUntil — политика ожидания загрузки: "load", "domcontentloaded",
	// "networkidle". Пустая строка — политика драйвера по умолчанию.
	WaitUntil string
}

// NavigateResult — результат навигации.
type NavigateResult struct {
	// Status — HTTP статус ответа.
	Status int

	// FinalURL — итоговый URL после редиректов.
	FinalURL string
}

// ElementHandle — ссылка на найденный элемент.
type ElementHandle struct {
	// ID — идентификатор элемента внутри драйвера.
	ID string

	// Selector — локатор, которым элемент был найден.
	Selector string

	// Tag — имя тега элемента.
	Tag string

	// Visible — видим ли элемент.
	Visible bool

	// Enabled — доступен ли элемент для взаимодействия.
	Enabled bool
}

// ActionOptions — параметры действия над элементом.
type ActionOptions struct {
	// Value — значение действия (текст для type, option для select,
	// координаты/цель для scroll и drag).
	Value any

	// TypingDelay — задержка между вводимыми символами (для type).
	TypingDelay int

	// DeferChange — отложить эмиссию события "change" до конца ввода.
	DeferChange bool
}

// ActionOutcome — результат действия над элементом.
type ActionOutcome struct {
	// Performed — действие, которое было выполнено.
	Performed string

	// Detail — дополнительная информация от драйвера.
	Detail map[string]any
}

// ExtractMode — режим извлечения данных.
type ExtractMode string

// Режимы извлечения.
const (
	ExtractText         ExtractMode = "text"
	ExtractAttribute    ExtractMode = "attribute"
	ExtractMultiple     ExtractMode = "multiple"
	ExtractHTML         ExtractMode = "html"
	ExtractScreenshot   ExtractMode = "screenshot"
	ExtractURL          ExtractMode = "url"
	ExtractCookies      ExtractMode = "cookies"
	ExtractLocalStorage ExtractMode = "local_storage"
)

// ExtractRequest — запрос на извлечение данных.
type ExtractRequest struct {
	// Mode — режим извлечения.
	Mode ExtractMode

	// Element — целевой элемент (nil для page-level извлечения:
	// url, cookies, local_storage, screenshot страницы).
	Element *ElementHandle

	// Attribute — имя атрибута для ExtractAttribute.
	Attribute string

	// Selector — локатор для ExtractMultiple (все совпадения).
	Selector string
}

// WaitCondition — условие ожидания.
type WaitCondition struct {
	// Kind — вид условия: "selector", "url", "load_state", "duration".
	Kind string

	// Selector — локатор для Kind="selector".
	Selector string

	// URLPattern — шаблон URL для Kind="url".
	URLPattern string

	// LoadState — состояние загрузки для Kind="load_state":
	// "load", "domcontentloaded", "networkidle".
	LoadState string
}

// Driver — граница к управляемой поверхности (странице браузера).
//
// Через этот интерфейс ядро выполняет все физические операции:
// навигацию, поиск элементов, действия и извлечение данных.
// Реализация (CDP, WebDriver, ...) живёт за пределами ядра;
// тесты используют in-memory фейки.
type Driver interface {
	// Navigate переходит по URL.
	Navigate(ctx context.Context, url string, opts NavigateOptions) (*NavigateResult, error)

	// Locate ищет элемент по локатору-кандидату.
	// Возвращает ErrNotFound / ErrAmbiguous / ErrNotInteractable,
	// если кандидат не разрешается в единственный доступный элемент.
	Locate(ctx context.Context, candidate domain.SelectorCandidate) (*ElementHandle, error)

	// MatchCount возвращает количество элементов, которые
	// сейчас соответствуют локатору. Используется selector-движком
	// для оценки уникальности кандидатов.
	MatchCount(ctx context.Context, selector string) (int, error)

	// Act выполняет действие над элементом.
	// element == nil означает действие уровня страницы
	// (back, forward, refresh, close, scroll страницы).
	Act(ctx context.Context, element *ElementHandle, action string, opts ActionOptions) (*ActionOutcome, error)

	// Extract извлекает данные из элемента или страницы.
	Extract(ctx context.Context, req ExtractRequest) (any, error)

	// CurrentURL возвращает текущий URL страницы.
	CurrentURL(ctx context.Context) (string, error)

	// CurrentTitle возвращает заголовок текущей страницы.
	CurrentTitle(ctx context.Context) (string, error)

	// WaitFor блокируется до выполнения условия или истечения таймаута.
	WaitFor(ctx context.Context, cond WaitCondition) error
}
