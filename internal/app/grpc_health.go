package app

import (
	"context"
	"errors"
	"net"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/camisetas/internal/health"
)

const healthSyncInterval = 5 * time.Second

// startGRPCHealthServer поднимает grpc.health.v1 с состоянием из реестра проверок.
// Пустой addr отключает сервер.
func startGRPCHealthServer(ctx context.Context, addr string, checks *health.Registry, logger *log.Entry) (*grpc.Server, error) {
	if addr == "" {
		return nil, nil
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	grpcMetrics := registerGRPCMetrics(logger)
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, healthServer)
	grpcMetrics.InitializeMetrics(srv)
	reflection.Register(srv)

	syncServingStatus(ctx, healthServer, checks)
	go func() {
		ticker := time.NewTicker(healthSyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				healthServer.Shutdown()
				return
			case <-ticker.C:
				syncServingStatus(ctx, healthServer, checks)
			}
		}
	}()

	go func() {
		logger.Infof("gRPC health слушает %s", lis.Addr())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.WithError(err).Warn("grpc health server failed")
		}
	}()

	return srv, nil
}

func syncServingStatus(ctx context.Context, server *grpchealth.Server, checks *health.Registry) {
	status := healthpb.HealthCheckResponse_SERVING
	if !checks.Ready(ctx) {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	server.SetServingStatus("", status)
	server.SetServingStatus(serviceName, status)
}

// registerGRPCMetrics регистрирует метрики gRPC, переиспользуя уже зарегистрированные.
func registerGRPCMetrics(logger *log.Entry) *promgrpc.ServerMetrics {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("failed to register grpc metrics")
	}
	return grpcMetrics
}

// stopGRPC останавливает сервер, не дожидаясь зависших стримов дольше shutdownTimeout.
func stopGRPC(srv *grpc.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}
