// Package reconciler применяет события платежного провайдера к хранилищу прав доступа.
//
// События могут приходить повторно и в произвольном порядке. Каждое событие
// применяется в одной транзакции; сериализация событий одной подписки
// обеспечивается upsert-ом строки pending_subscriptions с её идентификатором.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/paymentprovider"
	"github.com/magabrotheeeer/entitlement-service/internal/services/linker"
	"github.com/magabrotheeeer/entitlement-service/internal/storage"
)

var (
	// ErrAuthenticity - подпись события не подтверждена, событие не обрабатывалось.
	ErrAuthenticity = errors.New("event authenticity not verified")
	// ErrMalformedEvent - подписанное событие не соответствует контракту своего типа.
	ErrMalformedEvent = errors.New("malformed event")
)

// Результаты применения события.
const (
	ResultApplied  = "applied"
	ResultDeferred = "deferred"
	ResultStale    = "stale"
	ResultIgnored  = "ignored"
)

// Outcome описывает результат обработки одного события.
type Outcome struct {
	EventID   string
	EventType string
	Result    string
	// Changes содержит смены кэшированного статуса, закоммиченные этим событием.
	Changes []models.StatusChange
}

// Tx - операции хранилища, доступные внутри транзакции применения события.
type Tx interface {
	linker.Store
	FindLinkBySession(ctx context.Context, sessionID string) (*models.CheckoutLink, error)
	FindSubscriptionOwner(ctx context.Context, processorSubscriptionID string) (string, bool, error)
	UpsertSubscription(ctx context.Context, userID string, snap models.SubscriptionSnapshot) (string, bool, error)
	LockUser(ctx context.Context, userID string) error
	RefreshSubscriptionStatus(ctx context.Context, userID string) (string, string, error)
	StagePendingSubscription(ctx context.Context, snap models.SubscriptionSnapshot) error
	TakePendingSubscription(ctx context.Context, processorSubscriptionID string) (*models.SubscriptionSnapshot, error)
}

// Store открывает транзакции. Ошибка fn откатывает транзакцию.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// EventParser проверяет подпись и разбирает событие.
type EventParser interface {
	Parse(payload []byte, sigHeader string) (*models.Event, error)
}

// Reconciler применяет события провайдера.
type Reconciler struct {
	log    *slog.Logger
	parser EventParser
	store  Store
	now    func() time.Time
}

// New создаёт Reconciler.
func New(log *slog.Logger, parser EventParser, store Store) *Reconciler {
	return &Reconciler{
		log:    log,
		parser: parser,
		store:  store,
		now:    time.Now,
	}
}

// WithClock подменяет источник времени для меток StatusChange.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Verify проверяет подпись и разбирает событие, не обращаясь к хранилищу.
func (r *Reconciler) Verify(payload []byte, sigHeader string) (*models.Event, error) {
	const op = "reconciler.Verify"
	event, err := r.parser.Parse(payload, sigHeader)
	switch {
	case errors.Is(err, paymentprovider.ErrInvalidSignature):
		return nil, fmt.Errorf("%s: %w: %w", op, ErrAuthenticity, err)
	case errors.Is(err, paymentprovider.ErrInvalidPayload):
		return nil, fmt.Errorf("%s: %w: %w", op, ErrMalformedEvent, err)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return event, nil
}

// Process проверяет подпись события и применяет его.
// storage.ErrReferential и ErrMalformedEvent фатальны только для этого события.
func (r *Reconciler) Process(ctx context.Context, payload []byte, sigHeader string) (*Outcome, error) {
	event, err := r.Verify(payload, sigHeader)
	if err != nil {
		return nil, err
	}
	return r.Apply(ctx, event)
}

// Apply применяет уже проверенное событие.
func (r *Reconciler) Apply(ctx context.Context, event *models.Event) (*Outcome, error) {
	const op = "reconciler.Apply"
	log := r.log.With(
		slog.String("op", op),
		slog.String("event_id", event.ID),
		slog.String("event_type", event.Type),
	)

	outcome := &Outcome{EventID: event.ID, EventType: event.Type, Result: ResultIgnored}

	var err error
	switch {
	case event.Checkout != nil:
		err = r.store.WithinTx(ctx, func(tx Tx) error {
			return r.applyCheckout(ctx, tx, event.Checkout, outcome)
		})
	case event.Subscription != nil:
		err = r.store.WithinTx(ctx, func(tx Tx) error {
			return r.applySubscription(ctx, tx, *event.Subscription, outcome)
		})
	case event.Invoice != nil:
		log.Info("invoice paid",
			slog.String("invoice_id", event.Invoice.InvoiceID),
			slog.String("subscription_id", event.Invoice.SubscriptionID),
			slog.Int64("amount_paid", event.Invoice.AmountPaid),
			slog.String("currency", event.Invoice.Currency),
		)
		return outcome, nil
	default:
		log.Info("unhandled event type")
		return outcome, nil
	}
	if err != nil {
		outcome.Changes = nil
		if errors.Is(err, storage.ErrReferential) || errors.Is(err, ErrMalformedEvent) {
			log.Warn("event dropped", sl.Err(err))
		} else {
			log.Error("failed to apply event", sl.Err(err))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("event reconciled", slog.String("result", outcome.Result), slog.Int("status_changes", len(outcome.Changes)))
	return outcome, nil
}

func (r *Reconciler) applyCheckout(ctx context.Context, tx Tx, c *models.CheckoutCompleted, outcome *Outcome) error {
	const op = "reconciler.applyCheckout"
	outcome.Changes = nil

	userID := c.UserID
	if userID == "" {
		link, err := tx.FindLinkBySession(ctx, c.SessionID)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: session %s has no user: %w", op, c.SessionID, ErrMalformedEvent)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		userID = link.UserID
	}

	if _, err := tx.UpsertCheckoutLink(ctx, c.SessionID, userID, c.SubscriptionID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	outcome.Result = ResultApplied
	if c.SubscriptionID == "" {
		return nil
	}

	pending, err := tx.TakePendingSubscription(ctx, c.SubscriptionID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if pending == nil {
		return nil
	}
	return r.applySnapshot(ctx, tx, userID, *pending, outcome)
}

func (r *Reconciler) applySubscription(ctx context.Context, tx Tx, snap models.SubscriptionSnapshot, outcome *Outcome) error {
	const op = "reconciler.applySubscription"
	outcome.Changes = nil

	// Захватывает ключ подписки: конкурентная транзакция checkout ждёт здесь.
	if err := tx.StagePendingSubscription(ctx, snap); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	owner, found, err := tx.FindSubscriptionOwner(ctx, snap.ProcessorSubscriptionID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		owner, found, err = linker.New(tx).ResolveBySubscription(ctx, snap.ProcessorSubscriptionID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if !found && snap.UserID != "" {
		owner, found = snap.UserID, true
	}
	if !found {
		outcome.Result = ResultDeferred
		r.log.Info("subscription owner not known yet, snapshot staged",
			slog.String("op", op),
			slog.String("subscription_id", snap.ProcessorSubscriptionID),
			slog.String("status", snap.Status),
		)
		return nil
	}

	pending, err := tx.TakePendingSubscription(ctx, snap.ProcessorSubscriptionID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if pending == nil {
		pending = &snap
	}
	return r.applySnapshot(ctx, tx, owner, *pending, outcome)
}

// applySnapshot записывает снимок подписки и пересчитывает кэш статуса владельца.
func (r *Reconciler) applySnapshot(ctx context.Context, tx Tx, userID string, snap models.SubscriptionSnapshot, outcome *Outcome) error {
	const op = "reconciler.applySnapshot"

	if err := tx.LockUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: user %s: %w", op, userID, storage.ErrReferential)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	owner, applied, err := tx.UpsertSubscription(ctx, userID, snap)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !applied {
		outcome.Result = ResultStale
		r.log.Info("stale subscription snapshot ignored",
			slog.String("op", op),
			slog.String("subscription_id", snap.ProcessorSubscriptionID),
			slog.String("status", snap.Status),
		)
		return nil
	}
	if owner != userID {
		// Подписка уже принадлежит другому пользователю: кэш пересчитывается ему.
		if err := tx.LockUser(ctx, owner); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	previous, current, err := tx.RefreshSubscriptionStatus(ctx, owner)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	outcome.Result = ResultApplied

	change := models.StatusChange{
		UserID:                  owner,
		ProcessorSubscriptionID: snap.ProcessorSubscriptionID,
		Previous:                previous,
		Current:                 current,
		OccurredAt:              r.now().UTC(),
	}
	if change.Changed() {
		outcome.Changes = append(outcome.Changes, change)
	}
	return nil
}
