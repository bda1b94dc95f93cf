package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/vladislavdragonenkov/camisetas/internal/health"
	"github.com/vladislavdragonenkov/camisetas/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/camisetas/internal/metrics"
	"github.com/vladislavdragonenkov/camisetas/internal/service/catalog"
	"github.com/vladislavdragonenkov/camisetas/internal/service/orders"
	"github.com/vladislavdragonenkov/camisetas/internal/service/outbox"
	"github.com/vladislavdragonenkov/camisetas/internal/telemetry"
	"github.com/vladislavdragonenkov/camisetas/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/camisetas/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run поднимает HTTP API, сервер метрик, опциональный gRPC health и outbox worker
// и блокируется до отмены ctx или падения HTTP-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Tracing.ServiceVersion == "" {
		cfg.Tracing.ServiceVersion = version.Version()
	}
	shutdownTracing, err := telemetry.Setup(runCtx, cfg.Tracing)
	if err != nil {
		logger.WithError(err).Warn("трассировка отключена")
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.WithError(err).Warn("tracer shutdown with error")
		}
	}()

	store, err := initStorage(runCtx, cfg.Storage, logger.WithField("layer", "storage"))
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer closeCancel()
		if err := store.close(closeCtx); err != nil {
			logger.WithError(err).Warn("storage close with error")
		}
	}()

	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(producer, logger)

	checks := health.NewRegistry(version.Version())
	checks.Register("storage", health.Critical("storage", store.ping))
	if len(cfg.KafkaBrokers) > 0 {
		checks.Register("kafka", health.Optional("kafka", func(context.Context) error {
			if producer == nil {
				return errors.New("kafka producer is not available")
			}
			return nil
		}))
	}

	orderOpts := []orders.Option{
		orders.WithMetrics(metrics.NewOrderMetrics()),
		orders.WithTracer(otel.Tracer(serviceName + "/orders")),
	}
	var worker *outbox.Worker
	if producer != nil {
		orderOpts = append(orderOpts, orders.WithOutbox(store.outbox))
		worker = outbox.NewWorker(
			store.outbox,
			kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
			cfg.Outbox,
			outbox.WithLogger(logger.WithField("layer", "outbox")),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
			outbox.WithMetrics(metrics.NewOutboxMetrics()),
		)
	}

	orderService := orders.NewService(store.orders, cfg.Orders, logger.WithField("layer", "orders"), orderOpts...)
	catalogService := catalog.NewService(store.products, store.coupons, logger.WithField("layer", "catalog"))

	router := httpapi.NewRouter(httpapi.Config{
		Orders:      orderService,
		Catalog:     catalogService,
		Logger:      logger.WithField("layer", "http"),
		Metrics:     metrics.NewHTTPMetrics(),
		CORSOrigins: cfg.CORSOrigins,
		ServiceName: serviceName,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := startMetricsServer(runCtx, cfg.MetricsAddr, logger, checks)

	grpcSrv, err := startGRPCHealthServer(runCtx, cfg.GRPCAddr, checks, logger)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		return fmt.Errorf("start grpc health server: %w", err)
	}

	var wg sync.WaitGroup
	if worker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(runCtx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(log.Fields{
			"addr":    cfg.HTTPAddr,
			"storage": store.driver,
			"version": version.Version(),
		}).Info("HTTP API слушает")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-runCtx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case runErr = <-errCh:
		logger.WithError(runErr).Error("HTTP сервер упал")
	}

	shutdownHTTP(httpSrv, logger)
	stopGRPC(grpcSrv, logger)
	shutdownHTTP(metricsSrv, logger)
	cancel()
	wg.Wait()
	return runErr
}

// startMetricsServer запускает служебный HTTP-сервер: /metrics, /healthz, /livez, /readyz.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, checks *health.Registry) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", checks)
	mux.HandleFunc("/livez", health.LivenessHandler)
	mux.HandleFunc("/readyz", checks.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).WithField("addr", srv.Addr).Warn("http shutdown with error")
	}
}
