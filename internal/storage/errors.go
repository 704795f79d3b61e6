// Package storage определяет ошибки слоя хранения, общие для репозитория
// и сервисов. Конкретная реализация на PostgreSQL находится в storage/repository.
package storage

import "errors"

var (
	// ErrNotFound - запись не найдена.
	ErrNotFound = errors.New("record not found")
	// ErrConflict - нарушено ограничение уникальности. Разрешается вызывающим через upsert.
	ErrConflict = errors.New("unique constraint violated")
	// ErrReferential - запись ссылается на несуществующий внешний ключ. Фатальна для одного события.
	ErrReferential = errors.New("referenced record does not exist")
	// ErrUnavailable - хранилище временно недоступно (соединение, пул, дедлайн). Повторяемая ошибка.
	ErrUnavailable = errors.New("storage unavailable")
)
