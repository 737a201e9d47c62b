package repo

import "errors"

// Сентинельные ошибки слоя хранения. API слой отображает их в
// HTTP статусы через HandleRepoError.
var (
	// ErrNotFound — записи с таким идентификатором нет.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — нарушение уникальности.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState — переход недопустим из текущего состояния записи.
	ErrInvalidState = errors.New("invalid state")
)
