// Package entitlement собирает сервис прав доступа: хранилище, сверку вебхуков,
// проверку лицензий, HTTP API и gRPC health.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/entitlement-service/internal/cache"
	"github.com/magabrotheeeer/entitlement-service/internal/config"
	grpchealth "github.com/magabrotheeeer/entitlement-service/internal/grpc/health"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/auth/profile"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/checkout/create"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/license/deactivate"
	licenselist "github.com/magabrotheeeer/entitlement-service/internal/http/handlers/license/list"
	licenseregister "github.com/magabrotheeeer/entitlement-service/internal/http/handlers/license/register"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/license/validate"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/payment/paymentwebhook"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/subscription/health"
	subscriptionlist "github.com/magabrotheeeer/entitlement-service/internal/http/handlers/subscription/list"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/hwid"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/jwt"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/metrics"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/migrations"
	"github.com/magabrotheeeer/entitlement-service/internal/paymentprovider"
	"github.com/magabrotheeeer/entitlement-service/internal/services/auth"
	"github.com/magabrotheeeer/entitlement-service/internal/services/license"
	"github.com/magabrotheeeer/entitlement-service/internal/services/linker"
	"github.com/magabrotheeeer/entitlement-service/internal/services/reconciler"
	"github.com/magabrotheeeer/entitlement-service/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	server    *http.Server
	health    *grpchealth.Server
	logger    *slog.Logger
	db        *repository.Storage
	cache     *cache.Cache
	amqpConn  *amqp.Connection
	publisher *rabbitmq.Publisher
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.entitlement.New"

	db, err := repository.New(cfg.StorageConnectionString, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	app := &App{logger: logger, db: db}

	var events paymentwebhook.EventCache
	if cfg.AddressRedis != "" {
		app.cache, err = cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		events = app.cache
	} else {
		logger.Warn("redis is not configured, webhook redelivery goes to the store")
	}

	var publisher paymentwebhook.Publisher
	if cfg.RabbitMQURL != "" {
		app.amqpConn, err = rabbitmq.Connect(ctx, cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ch, err := rabbitmq.SetupChannel(app.amqpConn, rabbitmq.GetEntitlementQueues())
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.publisher = rabbitmq.NewPublisher(ch)
		publisher = app.publisher
	} else {
		logger.Warn("rabbitmq is not configured, status changes are not published")
	}

	hasher, err := hwid.New(cfg.HWIDKey)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	authService := auth.NewAuthService(db, jwtMaker)
	rec := reconciler.New(logger, paymentprovider.NewParser(cfg.WebhookSecret, cfg.PricePlans), reconciler.NewTxStorage(db))
	licenseService := license.New(logger, license.NewPgStore(db), hasher, cfg.MaxDevices)
	checkoutClient := paymentprovider.NewClient(cfg.SecretKey, cfg.SuccessURL, cfg.CancelURL)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Handlers{
		Register:      register.New(logger, authService),
		Login:         login.New(logger, authService),
		Profile:       profile.New(logger, authService),
		Webhook:       paymentwebhook.New(logger, rec, events, publisher, m),
		Health:        health.New(logger, db),
		Checkout:      create.New(logger, checkoutClient, linker.New(db)),
		Subscriptions: subscriptionlist.New(logger, db),
		Validate:      validate.New(logger, licenseService, m),
		RegisterHWID:  licenseregister.New(logger, licenseService),
		Licenses:      licenselist.New(logger, licenseService),
		Deactivate:    deactivate.New(logger, licenseService),
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, authService, cfg.Licensing)

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	app.health = grpchealth.New(logger, cfg.AddressGRPC)

	return app, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	grpcErr := make(chan error, 1)
	go func() {
		grpcErr <- a.health.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()
	a.health.SetServing(true)

	var runErr error
	select {
	case runErr = <-errCh:
	case runErr = <-grpcErr:
		if runErr == nil {
			runErr = errors.New("gRPC health server stopped")
		}
	case <-ctx.Done():
	}

	a.health.SetServing(false)
	timeoutCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	a.logger.Info("shutting down HTTP server gracefully")
	if err := a.server.Shutdown(timeoutCtx); err != nil && runErr == nil {
		runErr = err
	}
	cancel()
	a.close()
	return runErr
}

func (a *App) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq channel", sl.Err(err))
		}
	}
	if a.amqpConn != nil {
		if err := a.amqpConn.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("failed to close redis", sl.Err(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", sl.Err(err))
	}
}
