// Package paymentwebhook принимает вебхуки платежного провайдера.
//
// Ответ 2xx означает, что событие обработано или сознательно отброшено,
// и провайдеру не нужно его повторять. Неподтверждённая подпись и временная
// недоступность хранилища отвечают кодами, при которых провайдер повторит доставку.
package paymentwebhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-service/internal/http/response"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/metrics"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/services/reconciler"
	"github.com/magabrotheeeer/entitlement-service/internal/storage"
)

// SignatureHeader - заголовок с подписью Stripe.
const SignatureHeader = "Stripe-Signature"

// maxBodyBytes ограничивает размер тела события.
const maxBodyBytes = 1 << 20

// Reconciler проверяет и применяет события.
type Reconciler interface {
	Verify(payload []byte, sigHeader string) (*models.Event, error)
	Apply(ctx context.Context, event *models.Event) (*reconciler.Outcome, error)
}

// EventCache помнит идентификаторы обработанных событий.
type EventCache interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

// Publisher публикует смены статуса подписки.
type Publisher interface {
	PublishStatusChange(ctx context.Context, change models.StatusChange) error
}

// Handler обрабатывает POST /webhook.
type Handler struct {
	log        *slog.Logger
	reconciler Reconciler
	events     EventCache // nil отключает кэш
	publisher  Publisher  // nil отключает публикацию
	metrics    *metrics.Metrics
}

// New создает Handler. events и publisher могут быть nil.
func New(log *slog.Logger, rec Reconciler, events EventCache, publisher Publisher, m *metrics.Metrics) *Handler {
	return &Handler{
		log:        log,
		reconciler: rec,
		events:     events,
		publisher:  publisher,
		metrics:    m,
	}
}

// ServeHTTP godoc
// @Summary Вебхук платежного провайдера
// @Tags Payment
// @Accept  json
// @Produce  json
// @Param Stripe-Signature header string true "Подпись события"
// @Success 200 {object} response.Response "Событие обработано или отброшено"
// @Failure 400 {object} response.ErrorResponse "Подпись не подтверждена"
// @Failure 503 {object} response.ErrorResponse "Хранилище недоступно"
// @Router /webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		h.metrics.Webhook("", metrics.OutcomeRejected)
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to read body"))
		return
	}

	event, err := h.reconciler.Verify(body, r.Header.Get(SignatureHeader))
	switch {
	case errors.Is(err, reconciler.ErrAuthenticity):
		log.Warn("webhook signature verification failed", sl.Err(err))
		h.metrics.Webhook("", metrics.OutcomeRejected)
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	case errors.Is(err, reconciler.ErrMalformedEvent):
		log.Warn("malformed webhook event dropped", sl.Err(err))
		h.metrics.Webhook("", metrics.OutcomeDropped)
		h.acknowledge(w, r, metrics.OutcomeDropped)
		return
	case err != nil:
		log.Error("failed to verify webhook", sl.Err(err))
		h.metrics.Webhook("", metrics.OutcomeFailed)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log = log.With(slog.String("event_id", event.ID), slog.String("event_type", event.Type))

	if h.seen(r.Context(), log, event.ID) {
		log.Info("duplicate webhook event acknowledged")
		h.metrics.Webhook(event.Type, metrics.OutcomeDuplicate)
		h.acknowledge(w, r, metrics.OutcomeDuplicate)
		return
	}

	outcome, err := h.reconciler.Apply(r.Context(), event)
	switch {
	case errors.Is(err, storage.ErrReferential), errors.Is(err, reconciler.ErrMalformedEvent):
		h.metrics.Webhook(event.Type, metrics.OutcomeDropped)
		h.markProcessed(r.Context(), log, event.ID)
		h.acknowledge(w, r, metrics.OutcomeDropped)
		return
	case errors.Is(err, storage.ErrUnavailable):
		h.metrics.Webhook(event.Type, metrics.OutcomeFailed)
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("storage unavailable"))
		return
	case err != nil:
		h.metrics.Webhook(event.Type, metrics.OutcomeFailed)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	h.markProcessed(r.Context(), log, event.ID)
	h.publish(r.Context(), log, outcome.Changes)
	h.metrics.Webhook(event.Type, outcome.Result)
	h.acknowledge(w, r, outcome.Result)
}

func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request, result string) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response.OKWithData(map[string]any{
		"received": true,
		"result":   result,
	}))
}

// seen сообщает, что событие уже обработано. Ошибка кэша не мешает обработке.
func (h *Handler) seen(ctx context.Context, log *slog.Logger, eventID string) bool {
	if h.events == nil {
		return false
	}
	seen, err := h.events.Seen(ctx, eventID)
	if err != nil {
		log.Warn("event cache lookup failed", sl.Err(err))
		return false
	}
	return seen
}

func (h *Handler) markProcessed(ctx context.Context, log *slog.Logger, eventID string) {
	if h.events == nil {
		return
	}
	if err := h.events.MarkProcessed(ctx, eventID); err != nil {
		log.Warn("failed to remember processed event", sl.Err(err))
	}
}

func (h *Handler) publish(ctx context.Context, log *slog.Logger, changes []models.StatusChange) {
	if h.publisher == nil {
		return
	}
	for _, change := range changes {
		if err := h.publisher.PublishStatusChange(ctx, change); err != nil {
			log.Warn("failed to publish status change",
				slog.String("user_id", change.UserID),
				slog.String("status", change.Current),
				sl.Err(err),
			)
		}
	}
}
