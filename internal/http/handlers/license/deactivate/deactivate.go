// Package deactivate реализует HTTP-обработчик отвязки устройства.
package deactivate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/entitlement-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-service/internal/http/response"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/storage"
)

// Service отвязывает устройство пользователя.
type Service interface {
	Deactivate(ctx context.Context, userID, licenseID string) error
}

// Handler обрабатывает DELETE /licenses/{id}.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Отвязка устройства
// @Tags Licenses
// @Produce  json
// @Security BearerAuth
// @Param id path string true "ID лицензии"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /licenses/{id} [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.license.deactivate"

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

	licenseID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(licenseID); err != nil {
		log.Error("invalid license id", slog.String("license_id", licenseID), sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid license id"))
		return
	}

	err := h.service.Deactivate(r.Context(), userID, licenseID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("license not found"))
		return
	case err != nil:
		log.Error("failed to deactivate license", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("license deactivated", slog.String("user_id", userID), slog.String("license_id", licenseID))
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response.OK())
}
