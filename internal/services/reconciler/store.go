package reconciler

import (
	"context"

	"github.com/magabrotheeeer/entitlement-service/internal/storage/repository"
)

// TxStorage открывает транзакции READ COMMITTED поверх repository.Storage.
type TxStorage struct {
	storage *repository.Storage
}

// NewTxStorage создаёт TxStorage.
func NewTxStorage(storage *repository.Storage) *TxStorage {
	return &TxStorage{storage: storage}
}

// WithinTx выполняет fn в одной транзакции.
func (s *TxStorage) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.storage.InTx(ctx, nil, func(q *repository.Queries) error {
		return fn(q)
	})
}
