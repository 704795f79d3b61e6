package entitlement

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/entitlement-service/internal/config"
	"github.com/magabrotheeeer/entitlement-service/internal/http/middlewarectx"
)

// Handlers - HTTP-обработчики приложения.
type Handlers struct {
	Register      http.Handler
	Login         http.Handler
	Profile       http.Handler
	Webhook       http.Handler
	Health        http.Handler
	Checkout      http.Handler
	Subscriptions http.Handler
	Validate      http.Handler
	RegisterHWID  http.Handler
	Licenses      http.Handler
	Deactivate    http.Handler
	Metrics       http.Handler
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, h Handlers, tokens middlewarectx.TokenValidator, limits config.Licensing) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/register", h.Register.ServeHTTP)
		r.Post("/login", h.Login.ServeHTTP)
		r.Get("/health", h.Health.ServeHTTP)

		// Вебхук аутентифицируется подписью, а не JWT
		r.Post("/webhook", h.Webhook.ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(tokens, logger))
			r.Get("/user/profile", h.Profile.ServeHTTP)
			r.Post("/subscriptions/checkout", h.Checkout.ServeHTTP)
			r.Get("/subscriptions", h.Subscriptions.ServeHTTP)
			r.Post("/licenses", h.RegisterHWID.ServeHTTP)
			r.Get("/licenses", h.Licenses.ServeHTTP)
			r.Delete("/licenses/{id}", h.Deactivate.ServeHTTP)
			r.With(middlewarectx.RateLimitMiddleware(logger, limits.ValidateRPS, limits.ValidateBurst)).
				Post("/licenses/validate", h.Validate.ServeHTTP)
		})
	})

	r.Handle("/metrics", h.Metrics)
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
