// Package health поднимает gRPC-сервис проверки состояния (grpc.health.v1)
// для оркестратора. Статус SERVING выставляется, пока работает HTTP-сервер.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
)

// ServiceName - имя сервиса в ответах health.
const ServiceName = "entitlement"

// Server обслуживает grpc.health.v1.Health.
type Server struct {
	log    *slog.Logger
	grpc   *grpc.Server
	health *grpchealth.Server
	addr   string
}

// New создает Server на адресе addr. Оба статуса изначально NOT_SERVING.
func New(log *slog.Logger, addr string) *Server {
	h := grpchealth.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, h)

	return &Server{log: log, grpc: srv, health: h, addr: addr}
}

// SetServing переключает статус сервиса.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Run слушает addr до отмены ctx.
func (s *Server) Run(ctx context.Context) error {
	const op = "grpc.health.Run"

	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return s.Serve(ctx, lis)
}

// Serve обслуживает уже открытый listener до отмены ctx.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	const op = "grpc.health.Serve"

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("gRPC health server starting", slog.String("address", lis.Addr().String()))
		errCh <- s.grpc.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.log.Error("gRPC health server failed", sl.Err(err))
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		return nil
	}
}
