package selector

import (
	"errors"
	"fmt"

	"github.com/shaiso/Wayfinder/internal/domain"
)

// Ошибки разрешения элементов.
var (
	// ErrNoCandidates — по описанию цели не удалось построить ни одного кандидата.
	ErrNoCandidates = errors.New("no selector candidates for target")

	// ErrElementNotResolvable — все кандидаты исчерпаны, элемент не найден.
	ErrElementNotResolvable = errors.New("element not resolvable")
)

// NotResolvableError — ошибка исчерпания fallback-поиска.
//
// Несёт полный список испробованных кандидатов для диагностики:
// по нему видно, какие стратегии были доступны и в каком порядке
// движок их пробовал.
type NotResolvableError struct {
	// Target — первичный локатор цели.
	Target string

	// Attempted — кандидаты в порядке, в котором они были испробованы.
	Attempted []domain.SelectorCandidate
}

// Error реализует интерфейс error.
func (e *NotResolvableError) Error() string {
	return fmt.Sprintf("element not resolvable: %s (tried %d candidates)",
		e.Target, len(e.Attempted))
}

// Unwrap возвращает базовую ошибку.
func (e *NotResolvableError) Unwrap() error {
	return ErrElementNotResolvable
}
