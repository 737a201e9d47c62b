package steps

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Wayfinder/internal/domain"
)

// Registry — реестр обработчиков по категории шага.
//
// Единственная таблица диспетчеризации тип→обработчик.
// Потокобезопасен.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.StepType]Handler
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[domain.StepType]Handler),
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными обработчиками.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(NewNavigationHandler())
	r.Register(NewInteractionHandler())
	r.Register(NewExtractionHandler())
	r.Register(NewValidationHandler())
	r.Register(NewControlHandler())
	r.Register(NewVariableHandler())
	r.Register(NewWaitHandler())

	return r
}

// Register регистрирует обработчик.
// Обработчик той же категории перезаписывается.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Type()] = h
}

// Get возвращает обработчик категории.
// Возвращает ErrHandlerNotFound, если категория не зарегистрирована.
func (r *Registry) Get(stepType domain.StepType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, exists := r.handlers[stepType]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, stepType)
	}
	return h, nil
}

// Has проверяет, зарегистрирована ли категория.
func (r *Registry) Has(stepType domain.StepType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[stepType]
	return exists
}

// Types возвращает отсортированный список категорий.
func (r *Registry) Types() []domain.StepType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]domain.StepType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
