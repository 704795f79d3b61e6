package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// UpsertCheckoutLink записывает связь checkout-сессии с пользователем.
// Владелец сессии не меняется; идентификатор подписки заполняется один раз
// и пустым значением не затирается.
func (s *Queries) UpsertCheckoutLink(ctx context.Context, sessionID, userID, subscriptionID string) (*models.CheckoutLink, error) {
	const op = "storage.UpsertCheckoutLink"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `INSERT INTO checkout_session_links (session_id, user_id, subscription_id)
			  VALUES ($1, $2, NULLIF($3, ''))
			  ON CONFLICT (session_id) DO UPDATE SET
			      subscription_id = COALESCE(EXCLUDED.subscription_id, checkout_session_links.subscription_id)
			  RETURNING session_id, user_id, subscription_id, created_at`
	link, err := scanLink(s.q.QueryRowContext(ctx, query, sessionID, userID, subscriptionID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return link, nil
}

// FindLinkBySession возвращает связь по идентификатору checkout-сессии.
func (s *Queries) FindLinkBySession(ctx context.Context, sessionID string) (*models.CheckoutLink, error) {
	const op = "storage.FindLinkBySession"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT session_id, user_id, subscription_id, created_at
			  FROM checkout_session_links
			  WHERE session_id = $1`
	link, err := scanLink(s.q.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return link, nil
}

// FindLinkBySubscription возвращает самую свежую связь, в которой уже
// известен идентификатор подписки провайдера.
func (s *Queries) FindLinkBySubscription(ctx context.Context, processorSubscriptionID string) (*models.CheckoutLink, error) {
	const op = "storage.FindLinkBySubscription"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT session_id, user_id, subscription_id, created_at
			  FROM checkout_session_links
			  WHERE subscription_id = $1
			  ORDER BY created_at DESC
			  LIMIT 1`
	link, err := scanLink(s.q.QueryRowContext(ctx, query, processorSubscriptionID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return link, nil
}

func scanLink(row scanner) (*models.CheckoutLink, error) {
	link := &models.CheckoutLink{}
	var subID sql.NullString
	if err := row.Scan(&link.SessionID, &link.UserID, &subID, &link.CreatedAt); err != nil {
		return nil, err
	}
	link.SubscriptionID = subID.String
	return link, nil
}
