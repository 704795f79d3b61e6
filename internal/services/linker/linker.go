// Package linker связывает checkout-сессию провайдера с пользователем,
// который её инициировал, и позднее с подпиской, созданной по этой сессии.
package linker

import (
	"context"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/storage"
)

// Store описывает операции хранилища, нужные Linker.
// Реализуется как пулом соединений, так и транзакцией.
type Store interface {
	UpsertCheckoutLink(ctx context.Context, sessionID, userID, subscriptionID string) (*models.CheckoutLink, error)
	FindLinkBySubscription(ctx context.Context, processorSubscriptionID string) (*models.CheckoutLink, error)
}

// Linker реализует record-pending и resolve-by-subscription.
type Linker struct {
	store Store
}

// New создаёт Linker поверх store.
func New(store Store) *Linker {
	return &Linker{store: store}
}

// RecordPending запоминает, что сессию sessionID инициировал userID.
// Повторный вызов для той же сессии ничего не меняет.
func (l *Linker) RecordPending(ctx context.Context, sessionID, userID string) error {
	const op = "linker.RecordPending"
	if sessionID == "" || userID == "" {
		return fmt.Errorf("%s: empty session or user id", op)
	}
	if _, err := l.store.UpsertCheckoutLink(ctx, sessionID, userID, ""); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ResolveBySubscription возвращает пользователя, оплатившего подписку.
// found == false означает, что checkout.session.completed для неё ещё не пришёл.
func (l *Linker) ResolveBySubscription(ctx context.Context, processorSubscriptionID string) (string, bool, error) {
	const op = "linker.ResolveBySubscription"
	link, err := l.store.FindLinkBySubscription(ctx, processorSubscriptionID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	return link.UserID, true, nil
}
