// Package register реализует HTTP-обработчик регистрации устройства за пользователем.
package register

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
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/services/license"
	"github.com/magabrotheeeer/entitlement-service/internal/storage"
)

// Request - тело запроса регистрации устройства.
type Request struct {
	HWID       string `json:"hwid" validate:"required,max=512"`
	DeviceName string `json:"device_name" validate:"max=100"`
}

// Service регистрирует устройство. created=false, если устройство уже было активно.
type Service interface {
	Register(ctx context.Context, userID, hwid, deviceName string) (*models.License, bool, error)
}

// Handler обрабатывает POST /licenses.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Регистрация устройства
// @Tags Licenses
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Устройство"
// @Success 201 {object} response.Response "Устройство зарегистрировано"
// @Success 200 {object} response.Response "Устройство уже зарегистрировано"
// @Failure 403 {object} response.ErrorResponse "Нет активной подписки"
// @Failure 409 {object} response.ErrorResponse "Достигнут предел устройств"
// @Failure 422 {object} response.Response
// @Router /licenses [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.license.register"

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

	lic, created, err := h.service.Register(r.Context(), userID, req.HWID, req.DeviceName)
	switch {
	case errors.Is(err, license.ErrNotEntitled):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.Rejected("no active subscription", "no_subscription"))
		return
	case errors.Is(err, license.ErrDeviceLimit):
		log.Info("device limit reached", slog.String("user_id", userID))
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, response.Error("device limit reached"))
		return
	case errors.Is(err, license.ErrInvalidHWID):
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("hwid is required"))
		return
	case errors.Is(err, storage.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	case errors.Is(err, storage.ErrUnavailable):
		log.Error("storage unavailable", sl.Err(err))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("service temporarily unavailable"))
		return
	case err != nil:
		log.Error("failed to register device", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		log.Info("device registered", slog.String("user_id", userID), slog.String("license_id", lic.ID))
	}
	render.Status(r, status)
	render.JSON(w, r, response.OKWithData(lic))
}
