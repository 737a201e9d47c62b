package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Wayfinder/internal/domain"
	"github.com/shaiso/Wayfinder/internal/driver"
	"github.com/shaiso/Wayfinder/internal/engine"
	"github.com/shaiso/Wayfinder/internal/timing"
)

// runState — состояние одного активного execution в памяти.
//
// Создаётся при старте execution и удаляется при достижении
// терминального состояния. Содержит контекст выполнения, драйвер,
// адаптивный расчёт таймаутов и счётчики retry по шагам.
type runState struct {
	workflow *domain.Workflow
	exec     *engine.ExecutionContext
	driver   driver.Driver
	timing   *timing.Adaptive

	// retryCounts — использованные повторные попытки по step ID.
	// Лимит retry действует на шаг в пределах всего execution,
	// а не одной итерации цикла.
	retryCounts map[string]int

	// pauseRequested — запрошена пауза; наблюдается на границе шага.
	pauseRequested bool

	// resumeCh пересоздаётся на каждую паузу; закрытие будит цикл.
	resumeCh chan struct{}

	// cancelFunc отменяет контекст выполнения.
	cancelFunc context.CancelFunc

	mu sync.Mutex
}

func newRunState(wf *domain.Workflow, exec *engine.ExecutionContext, d driver.Driver, adaptive *timing.Adaptive) *runState {
	return &runState{
		workflow:    wf,
		exec:        exec,
		driver:      d,
		timing:      adaptive,
		retryCounts: make(map[string]int),
	}
}

func (r *runState) executionID() uuid.UUID {
	return r.exec.ExecutionID()
}

// requestPause взводит флаг паузы.
func (r *runState) requestPause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauseRequested = true
}

// beginPause сбрасывает флаг и возвращает канал возобновления.
func (r *runState) beginPause() chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauseRequested = false
	r.resumeCh = make(chan struct{})
	return r.resumeCh
}

// resume будит приостановленный цикл выполнения.
func (r *runState) resume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resumeCh == nil {
		return false
	}
	close(r.resumeCh)
	r.resumeCh = nil
	return true
}

// pausePending сообщает, запрошена ли пауза.
func (r *runState) pausePending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pauseRequested
}

// usedRetries возвращает использованные попытки шага.
func (r *runState) usedRetries(stepID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retryCounts[stepID]
}

// consumeRetry учитывает одну повторную попытку шага.
func (r *runState) consumeRetry(stepID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryCounts[stepID]++
	return r.retryCounts[stepID]
}

// cancel отменяет контекст выполнения и будит паузу.
func (r *runState) cancel() {
	r.mu.Lock()
	cancelFunc := r.cancelFunc
	resumeCh := r.resumeCh
	r.resumeCh = nil
	r.mu.Unlock()

	if resumeCh != nil {
		close(resumeCh)
	}
	if cancelFunc != nil {
		cancelFunc()
	}
}
