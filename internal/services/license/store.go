package license

import (
	"context"
	"database/sql"

	"github.com/magabrotheeeer/entitlement-service/internal/storage/repository"
)

// readOnlySnapshot - проверка лицензии читает подписку и устройство из одного снимка.
var readOnlySnapshot = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

// PgStore реализует Store поверх repository.Storage.
type PgStore struct {
	*repository.Storage
}

// NewPgStore создаёт PgStore.
func NewPgStore(storage *repository.Storage) *PgStore {
	return &PgStore{Storage: storage}
}

// WithinReadTx выполняет fn в read-only транзакции REPEATABLE READ.
func (s *PgStore) WithinReadTx(ctx context.Context, fn func(r Reader) error) error {
	return s.InTx(ctx, readOnlySnapshot, func(q *repository.Queries) error {
		return fn(q)
	})
}

// WithinTx выполняет fn в транзакции на запись.
func (s *PgStore) WithinTx(ctx context.Context, fn func(w Writer) error) error {
	return s.InTx(ctx, nil, func(q *repository.Queries) error {
		return fn(q)
	})
}
