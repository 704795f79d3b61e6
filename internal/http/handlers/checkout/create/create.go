// Package create реализует HTTP-обработчик создания checkout-сессии подписки.
package create

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/entitlement-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-service/internal/http/response"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/paymentprovider"
)

// Request - тело запроса создания сессии.
type Request struct {
	PriceID string `json:"price_id" validate:"required,max=255"`
}

// Provider создаёт сессию оплаты у платежного провайдера.
type Provider interface {
	CreateCheckout(ctx context.Context, userID, priceID string) (*paymentprovider.CheckoutSession, error)
}

// Linker запоминает, какой пользователь открыл сессию.
type Linker interface {
	RecordPending(ctx context.Context, sessionID, userID string) error
}

// Handler обрабатывает POST /subscriptions/checkout.
type Handler struct {
	log      *slog.Logger
	provider Provider
	linker   Linker
	validate *validator.Validate
}

// New создает Handler.
func New(log *slog.Logger, provider Provider, linker Linker) *Handler {
	return &Handler{
		log:      log,
		provider: provider,
		linker:   linker,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создание checkout-сессии
// @Tags Subscriptions
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Цена плана"
// @Success 200 {object} response.Response
// @Failure 422 {object} response.Response
// @Failure 503 {object} response.ErrorResponse "Оплата не настроена"
// @Router /subscriptions/checkout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.checkout.create"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, ok := middlewarectx.UserIDFrom(r.Context())
	if !ok {
		log.Error("user identification missing")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("user identification missing"))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		var validateErr validator.ValidationErrors
		errors.As(err, &validateErr)
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(validateErr))
		return
	}

	sess, err := h.provider.CreateCheckout(r.Context(), userID, req.PriceID)
	if err != nil {
		if errors.Is(err, paymentprovider.ErrCheckoutUnavailable) {
			log.Warn("checkout requested but not configured")
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error("checkout is not configured"))
			return
		}
		log.Error("failed to create checkout session", sl.Err(err))
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, response.Error("failed to create checkout session"))
		return
	}

	// Без связи сессия всё равно разрешится по metadata.userId в событии.
	if err := h.linker.RecordPending(r.Context(), sess.ID, userID); err != nil {
		log.Error("failed to record checkout link", slog.String("session_id", sess.ID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("checkout session created", slog.String("user_id", userID), slog.String("session_id", sess.ID))
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response.OKWithData(sess))
}
