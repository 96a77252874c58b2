package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/marketplace/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run поднимает HTTP API, gRPC ops-сервер, сервер метрик и фоновые воркеры
// и блокируется до отмены ctx или ошибки одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close runtime dependencies")
		}
	}()

	producer, err := initKafkaProducer(cfg.KafkaBrokers, cfg.KafkaClientID, logger)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		producer = nil
	}
	defer closeKafkaProducer(producer, logger)

	svc := buildServices(cfg, deps, producer,
		metrics.NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer), logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	for name, checker := range deps.checkers {
		healthHandler.RegisterChecker(name, checker)
	}

	workersCtx, stopWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		svc.worker.Run(workersCtx)
	}()
	go func() {
		defer workers.Done()
		svc.reconciler.Run(workersCtx)
	}()
	defer func() {
		stopWorkers()
		workers.Wait()
		logger.Info("background workers stopped")
	}()

	grpcServer, grpcHealth := newGRPCServer(logger)
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(svc.api,
		httpapi.WithLogger(logger.WithField("component", "http-api")),
		httpapi.WithMetrics(metrics.NewHTTPMetricsWithRegisterer(prometheus.DefaultRegisterer)),
		httpapi.WithAllowOrigins(cfg.CORSAllowedOrigins...),
		httpapi.WithCartTTL(cfg.CartTTL),
	)
	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           newMetricsMux(healthHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 3)
	go func() {
		logger.Infof("gRPC ops server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		logger.Infof("HTTP API listening on %s", cfg.HTTPAddr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Infof("metrics available at %s/metrics, health checks at /healthz, /livez, /readyz", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping servers")
		runErr = ctx.Err()
	case runErr = <-errCh:
		logger.WithError(runErr).Error("server failed, shutting down")
	}

	grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownHTTP(apiSrv, logger)
	stopGRPC(grpcServer, logger)
	shutdownHTTP(metricsSrv, logger)

	return runErr
}

// newGRPCServer создаёт ops-сервер с grpc.health.v1, reflection и метриками go-grpc-prometheus.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
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
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	return grpcServer, healthServer
}

// newMetricsMux отдаёт /metrics и health-пробы.
func newMetricsMux(healthHandler *healthcheck.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

// stopGRPC пытается остановить сервер мягко, затем принудительно.
func stopGRPC(srv *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop timed out, forcing grpc server stop")
		srv.Stop()
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).WithField("addr", srv.Addr).Warn("http server shutdown with error")
	}
}
