package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// StagePendingSubscription сохраняет снимок подписки, для которой владелец ещё не известен.
// Строка pending_subscriptions остаётся заблокированной до конца транзакции,
// даже если более свежий снимок уже записан и текущий отброшен.
func (s *Queries) StagePendingSubscription(ctx context.Context, snap models.SubscriptionSnapshot) error {
	const op = "storage.StagePendingSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	query := `INSERT INTO pending_subscriptions (
			      processor_subscription_id, status, plan_type, price_id,
			      current_period_start, current_period_end, event_created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  ON CONFLICT (processor_subscription_id) DO UPDATE SET
			      status = EXCLUDED.status,
			      plan_type = EXCLUDED.plan_type,
			      price_id = EXCLUDED.price_id,
			      current_period_start = EXCLUDED.current_period_start,
			      current_period_end = EXCLUDED.current_period_end,
			      event_created_at = EXCLUDED.event_created_at,
			      staged_at = NOW()
			  WHERE pending_subscriptions.event_created_at IS NULL
			      OR pending_subscriptions.event_created_at <= EXCLUDED.event_created_at`
	if _, err := s.q.ExecContext(ctx, query,
		snap.ProcessorSubscriptionID, snap.Status, snap.PlanType, snap.PriceID,
		snap.CurrentPeriodStart, snap.CurrentPeriodEnd, snap.EventCreatedAt); err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	return nil
}

// TakePendingSubscription забирает отложенный снимок подписки и удаляет его.
// Перед удалением строка захватывается upsert-ом, поэтому конкурентная
// транзакция, которая откладывает снимок той же подписки, ждёт её завершения.
// Возвращает nil, если снимка не было.
func (s *Queries) TakePendingSubscription(ctx context.Context, processorSubscriptionID string) (*models.SubscriptionSnapshot, error) {
	const op = "storage.TakePendingSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	claim := `INSERT INTO pending_subscriptions (processor_subscription_id)
			  VALUES ($1)
			  ON CONFLICT (processor_subscription_id) DO UPDATE SET staged_at = pending_subscriptions.staged_at`
	if _, err := s.q.ExecContext(ctx, claim, processorSubscriptionID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	take := `DELETE FROM pending_subscriptions
			 WHERE processor_subscription_id = $1
			 RETURNING status, plan_type, price_id, current_period_start, current_period_end, event_created_at`
	var (
		status, planType, priceID sql.NullString
		start, end, eventAt       sql.NullTime
	)
	if err := s.q.QueryRowContext(ctx, take, processorSubscriptionID).Scan(
		&status, &planType, &priceID, &start, &end, &eventAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	if !status.Valid {
		return nil, nil
	}

	return &models.SubscriptionSnapshot{
		ProcessorSubscriptionID: processorSubscriptionID,
		Status:                  status.String,
		PlanType:                planType.String,
		PriceID:                 priceID.String,
		CurrentPeriodStart:      start.Time,
		CurrentPeriodEnd:        end.Time,
		EventCreatedAt:          eventAt.Time,
	}, nil
}
