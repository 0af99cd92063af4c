package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/nutshop/internal/health"
	"github.com/vladislavdragonenkov/nutshop/internal/metrics"
	"github.com/vladislavdragonenkov/nutshop/internal/service/idempotency"
	"github.com/vladislavdragonenkov/nutshop/internal/service/order"
	outboxworker "github.com/vladislavdragonenkov/nutshop/internal/service/outbox"
	"github.com/vladislavdragonenkov/nutshop/internal/service/rest"
	"github.com/vladislavdragonenkov/nutshop/internal/version"
)

// Run поднимает сервис заказов: API, служебный сервер метрик и фоновые
// воркеры. Блокируется до отмены ctx или фатальной ошибки сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	orderMetrics := metrics.NewOrderMetrics()
	orderService := order.NewService(
		deps.Orders,
		deps.Timeline,
		deps.Outbox,
		deps.Cache,
		orderMetrics,
		logger.WithField("component", "order-service"),
	)

	// Kafka опционален: без брокера события копятся в outbox и могут быть
	// опубликованы после его появления.
	transport := newEventTransport(cfg.KafkaBrokers, logger)
	defer transport.Close(logger)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	if transport != nil {
		worker := outboxworker.NewWorker(
			deps.Outbox,
			transport.Events,
			outboxworker.WithDLQPublisher(transport.DeadLetter),
			outboxworker.WithLogger(logger.WithField("component", "outbox-worker")),
		)
		go worker.Run(workerCtx)
	}

	cleanup := idempotency.NewCleanupWorker(
		deps.Idempotency,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
	)
	go cleanup.Run(workerCtx)

	healthHandler := healthcheck.NewHandler(version.Short())
	if deps.Store != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewPingChecker("postgres", deps.Store.Ping))
	}
	healthHandler.RegisterChecker("cache", healthcheck.NewPingChecker("cache", deps.Cache.Ping))

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiHandler := rest.NewRouter(rest.RouterConfig{
		Orders:      rest.NewHandler(orderService, logger.WithField("component", "http-api")),
		Idempotency: deps.Idempotency,
		Metrics:     orderMetrics,
		Logger:      logger.WithField("component", "http-api"),
		JWTSecret:   cfg.JWTSecret,
	})
	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: apiHandler}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		stopWorkers()
		shutdownHTTP(apiSrv, cfg.ShutdownTimeout, logger)
		shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)
		return ctx.Err()
	case err := <-errCh:
		stopWorkers()
		shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает служебный HTTP-сервер с /metrics и
// health-пробами.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, 5*time.Second, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
