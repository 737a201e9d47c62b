// Package steps содержит обработчики категорий шагов workflow.
//
// # Обзор
//
// Каждая категория шага (navigation, interaction, extraction,
// validation, control, variable, wait) реализована отдельным
// обработчиком с общим контрактом validate/execute:
//
//	type Handler interface {
//	    Type() domain.StepType
//	    Validate(step *domain.Step) error
//	    Execute(ctx context.Context, req *Request) (*Response, error)
//	}
//
// Validate — синхронная проверка определения шага; вызывается и при
// парсинге, и перед выполнением. Execute может блокироваться на вызовах
// Target Driver.
//
// Request несёт всё окружение шага: контекст выполнения, драйвер,
// selector-резолвер, адаптивный тайминг и Dispatcher для вложенных
// шагов. Побочные эффекты ограничены тем, что шаг объявляет явно:
// запись переменной через store_as, мутации контекста.
//
// # Dispatcher
//
// Control шаги (if/loop/parallel) выполняют вложенные шаги не сами,
// а через узкую способность Dispatcher, которую оркестратор передаёт
// в Request. Таблица диспетчеризации тип→обработчик остаётся
// единственной, циклического импорта нет.
//
// # Self-healing
//
// Interaction и element-извлечения разрешают цель через пакет selector:
// при отказе первичного локатора выполняется ranked-fallback поиск,
// результат помечается healed.
//
// # Файлы пакета
//
//   - step.go       — контракт Handler, Request, Response, ошибки
//   - registry.go   — реестр обработчиков по категории
//   - navigation.go — goto, back, forward, refresh, close
//   - interaction.go — click, type, select, hover, scroll, drag, focus, blur
//   - extraction.go — getText, getAttribute, getMultiple, screenshot, ...
//   - validation.go — checkExists, checkText, checkUrl, ...
//   - control.go    — if, loop, parallel, delay, checkpoint, break, ...
//   - variable.go   — set, increment, append, delete
//   - wait.go       — duration, selector, url, loadState
package steps
