package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

const subscriptionColumns = `id, user_id, processor_subscription_id, plan_type, status,
			      current_period_start, current_period_end, last_event_at, created_at`

// UpsertSubscription вставляет или обновляет подписку по processor_subscription_id.
// Событие старше уже применённого, как и попытка вывести подписку из статуса canceled,
// игнорируется: тогда applied == false. Возвращает владельца строки.
func (s *Queries) UpsertSubscription(ctx context.Context, userID string, snap models.SubscriptionSnapshot) (string, bool, error) {
	const op = "storage.UpsertSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return "", false, err
	}

	query := `INSERT INTO subscriptions (
			      user_id, processor_subscription_id, plan_type, status,
			      current_period_start, current_period_end, last_event_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  ON CONFLICT (processor_subscription_id) DO UPDATE SET
			      plan_type = EXCLUDED.plan_type,
			      status = EXCLUDED.status,
			      current_period_start = EXCLUDED.current_period_start,
			      current_period_end = EXCLUDED.current_period_end,
			      last_event_at = EXCLUDED.last_event_at,
			      updated_at = NOW()
			  WHERE subscriptions.last_event_at <= EXCLUDED.last_event_at
			      AND (subscriptions.status <> 'canceled' OR EXCLUDED.status = 'canceled')
			  RETURNING user_id`
	var owner string
	err := s.q.QueryRowContext(ctx, query,
		userID, snap.ProcessorSubscriptionID, snap.PlanType, snap.Status,
		snap.CurrentPeriodStart, snap.CurrentPeriodEnd, snap.EventCreatedAt).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, classify(err))
	}
	return owner, true, nil
}

// FindSubscriptionOwner возвращает владельца подписки, если строка уже существует.
func (s *Queries) FindSubscriptionOwner(ctx context.Context, processorSubscriptionID string) (string, bool, error) {
	const op = "storage.FindSubscriptionOwner"
	if err := checkCtx(ctx, op); err != nil {
		return "", false, err
	}

	var owner string
	err := s.q.QueryRowContext(ctx,
		`SELECT user_id FROM subscriptions WHERE processor_subscription_id = $1`,
		processorSubscriptionID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, classify(err))
	}
	return owner, true, nil
}

// GetSubscription возвращает подписку по идентификатору провайдера.
func (s *Queries) GetSubscription(ctx context.Context, processorSubscriptionID string) (*models.Subscription, error) {
	const op = "storage.GetSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE processor_subscription_id = $1`,
		processorSubscriptionID)
	sub, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return sub, nil
}

// FindEntitledSubscription возвращает самую позднюю по созданию подписку пользователя
// со статусом active и неистёкшим оплаченным периодом на момент now.
func (s *Queries) FindEntitledSubscription(ctx context.Context, userID string, now time.Time) (*models.Subscription, error) {
	const op = "storage.FindEntitledSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_id = $1
			      AND status = 'active'
			      AND current_period_end > $2
			  ORDER BY created_at DESC
			  LIMIT 1`
	sub, err := scanSubscription(s.q.QueryRowContext(ctx, query, userID, now))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return sub, nil
}

// ListSubscriptions возвращает историю подписок пользователя, новые первыми.
func (s *Queries) ListSubscriptions(ctx context.Context, userID string) ([]*models.Subscription, error) {
	const op = "storage.ListSubscriptions"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, classify(err))
		}
		result = append(result, sub)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row scanner) (*models.Subscription, error) {
	sub := &models.Subscription{}
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.ProcessorSubscriptionID, &sub.PlanType, &sub.Status,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.LastEventAt, &sub.CreatedAt); err != nil {
		return nil, err
	}
	return sub, nil
}
