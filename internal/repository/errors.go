package repository

import "errors"

var (
	// ErrNotFound запись не найдена в хранилище
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate нарушение уникальности (например, повторный email)
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidData неверные данные для операции с хранилищем
	ErrInvalidData = errors.New("invalid data")
)
