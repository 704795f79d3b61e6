// Package validate реализует HTTP-обработчик проверки лицензии устройства.
package validate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/entitlement-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/metrics"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/services/license"
	"github.com/magabrotheeeer/entitlement-service/internal/storage"
)

// Коды причин отказа.
const (
	ReasonNoSubscription    = "no_subscription"
	ReasonDeviceNotLicensed = "device_not_licensed"
)

// Request - тело запроса проверки.
type Request struct {
	HWID string `json:"hwid" validate:"required,max=512"`
}

// Response - ответ проверки, понятный клиентскому приложению.
type Response struct {
	Valid     bool       `json:"valid"`
	Plan      string     `json:"plan,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Validator проверяет право устройства на работу.
type Validator interface {
	Validate(ctx context.Context, userID, hwid string) (*models.Entitlement, error)
}

// Handler обрабатывает POST /licenses/validate.
type Handler struct {
	log      *slog.Logger
	service  Validator
	metrics  *metrics.Metrics
	validate *validator.Validate
}

// New создает Handler.
func New(log *slog.Logger, service Validator, m *metrics.Metrics) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		metrics:  m,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Проверка лицензии устройства
// @Tags Licenses
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "HWID устройства"
// @Success 200 {object} Response
// @Failure 403 {object} Response "no_subscription или device_not_licensed"
// @Failure 422 {object} Response
// @Failure 503 {object} Response
// @Router /licenses/validate [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.license.validate"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, ok := middlewarectx.UserIDFrom(r.Context())
	if !ok {
		log.Error("user identification missing")
		h.reply(w, r, http.StatusUnauthorized, Response{Error: "user identification missing"})
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		h.reply(w, r, http.StatusBadRequest, Response{Error: "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		h.reply(w, r, http.StatusUnprocessableEntity, Response{Error: "hwid is required"})
		return
	}

	ent, err := h.service.Validate(r.Context(), userID, req.HWID)
	switch {
	case errors.Is(err, license.ErrNotEntitled):
		log.Info("validation rejected", slog.String("user_id", userID), slog.String("reason", ReasonNoSubscription))
		h.metrics.Validation(metrics.OutcomeNoPlan)
		h.reply(w, r, http.StatusForbidden, Response{Reason: ReasonNoSubscription, Error: "no active subscription"})
		return
	case errors.Is(err, license.ErrDeviceNotLicensed):
		log.Info("validation rejected", slog.String("user_id", userID), slog.String("reason", ReasonDeviceNotLicensed))
		h.metrics.Validation(metrics.OutcomeNoDevice)
		h.reply(w, r, http.StatusForbidden, Response{Reason: ReasonDeviceNotLicensed, Error: "device is not licensed"})
		return
	case errors.Is(err, license.ErrInvalidHWID):
		h.metrics.Validation(metrics.OutcomeRejected)
		h.reply(w, r, http.StatusUnprocessableEntity, Response{Error: "hwid is required"})
		return
	case errors.Is(err, storage.ErrUnavailable):
		log.Error("storage unavailable", sl.Err(err))
		h.metrics.Validation(metrics.OutcomeFailed)
		h.reply(w, r, http.StatusServiceUnavailable, Response{Error: "service temporarily unavailable"})
		return
	case err != nil:
		log.Error("validation failed", sl.Err(err))
		h.metrics.Validation(metrics.OutcomeFailed)
		h.reply(w, r, http.StatusInternalServerError, Response{Error: "internal error"})
		return
	}

	h.metrics.Validation(metrics.OutcomeValid)
	expires := ent.ExpiresAt.UTC()
	h.reply(w, r, http.StatusOK, Response{Valid: true, Plan: ent.PlanType, ExpiresAt: &expires})
}

func (h *Handler) reply(w http.ResponseWriter, r *http.Request, status int, resp Response) {
	render.Status(r, status)
	render.JSON(w, r, resp)
}
