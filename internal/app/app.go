package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/warehouse/internal/health"
	"github.com/vladislavdragonenkov/warehouse/internal/httpapi"
	"github.com/vladislavdragonenkov/warehouse/internal/metrics"
	"github.com/vladislavdragonenkov/warehouse/internal/service/outbox"
	"github.com/vladislavdragonenkov/warehouse/internal/service/warehouse"
	"github.com/vladislavdragonenkov/warehouse/internal/version"
)

const (
	shutdownTimeout        = 5 * time.Second
	grpcHealthSyncInterval = 5 * time.Second
)

// Run поднимает HTTP API, gRPC health и outbox worker и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	facade := warehouse.NewFacade(
		deps.uow,
		warehouse.WithLogger(logger.WithField("layer", "warehouse")),
		warehouse.WithMetrics(metrics.NewWarehouseMetrics()),
	)

	brokers := connectBrokers(ctx, cfg, logger)
	defer brokers.close(logger)

	publisher, dlqPublisher := brokers.publishers(logger)
	logger.WithField("broker", brokers.name()).Info("outbox publisher selected")
	stopWorker := startOutboxWorker(ctx, cfg, deps, publisher, dlqPublisher, logger)
	defer stopWorker()

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	healthHandler.RegisterChecker("outbox", healthcheck.NewThresholdChecker("outbox", cfg.OutboxMaxPending,
		func(ctx context.Context) (int, error) {
			stats, err := deps.outbox.Stats(ctx)
			return stats.PendingCount, err
		}))

	httpSrv, err := startHTTPServer(ctx, cfg.HTTPAddr, newHTTPHandler(facade, healthHandler, logger), logger)
	if err != nil {
		return err
	}
	defer shutdownHTTP(httpSrv, logger)

	grpcServer, healthServer := newGRPCServer(logger)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	go syncGRPCHealth(ctx, healthServer, healthHandler, grpcHealthSyncInterval)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC health сервер слушает %s", lis.Addr())
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		healthServer.Shutdown()
		stopGRPC(grpcServer, logger)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// newHTTPHandler собирает API склада и служебные эндпоинты в один mux.
func newHTTPHandler(facade *warehouse.Facade, healthHandler *healthcheck.Handler, logger *log.Entry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	api := httpapi.NewRouter(facade, logger.WithField("layer", "http"))
	mux.Handle("/v1/", api)
	return mux
}

// startHTTPServer слушает addr и обслуживает handler до отмены ctx.
func startHTTPServer(ctx context.Context, addr string, handler http.Handler, logger *log.Entry) (*http.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen http %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("HTTP API и метрики доступны на %s", lis.Addr())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("http server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv, nil
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

// newGRPCServer создаёт gRPC-сервер со стандартным health-сервисом и reflection.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	return grpcServer, healthServer
}

// syncGRPCHealth переносит результат HTTP health-проверок в gRPC health статус.
func syncGRPCHealth(ctx context.Context, healthServer *health.Server, checks *healthcheck.Handler, interval time.Duration) {
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if checks.Run(ctx).Status == healthcheck.StatusUnhealthy {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		healthServer.SetServingStatus("", status)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	update()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

func stopGRPC(grpcServer *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		grpcServer.Stop()
	}
}

// startOutboxWorker запускает воркеры публикации и очистки outbox
// и возвращает функцию их остановки.
func startOutboxWorker(ctx context.Context, cfg Config, deps *runtimeDependencies, publisher, dlq domain.OutboxPublisher, logger *log.Entry) func() {
	worker := outbox.NewWorker(
		deps.outbox,
		publisher,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithDLQPublisher(dlq),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(workerCtx)
	}()

	cleanup := outbox.NewCleanupWorker(
		deps.outbox,
		outbox.WithCleanupLogger(logger.WithField("component", "outbox-cleanup-worker")),
		outbox.WithCleanupInterval(cfg.OutboxCleanupInterval),
		outbox.WithRetention(cfg.OutboxRetention),
	)
	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		cleanup.Run(workerCtx)
	}()

	return func() {
		cancel()
		deadline := time.After(shutdownTimeout)
		for _, ch := range []<-chan struct{}{done, cleanupDone} {
			select {
			case <-ch:
			case <-deadline:
				logger.Warn("outbox workers did not stop in time")
				return
			}
		}
	}
}
