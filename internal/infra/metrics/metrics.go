package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	SyncRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_runs_total",
		Help: "Количество проходов синхронизации по результату",
	}, []string{"status"})

	SyncRunSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_run_seconds",
		Help:    "Длительность одного прохода синхронизации",
		Buckets: prometheus.DefBuckets,
	})

	SyncRowsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_rows_processed_total",
		Help: "Количество обработанных строк по таблицам-источникам",
	}, []string{"source"})

	SyncRowsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_rows_skipped_total",
		Help: "Строки, пропущенные из-за отсутствия данных в кэше",
	}, []string{"source"})

	SyncEvictedChallenges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_evicted_challenges_total",
		Help: "Количество челленджей, вытесненных из индекса",
	})

	RecommendRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recommend_requests_total",
		Help: "Количество запросов рекомендаций",
	})

	RecommendBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "recommend_build_seconds",
		Help:    "Время сборки списка рекомендаций",
		Buckets: prometheus.DefBuckets,
	})

	RecommendPoolSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recommend_pool_size",
		Help:    "Размер пула кандидатов по стратегиям",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 200},
	}, []string{"pool"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		SyncRunsTotal,
		SyncRunSeconds,
		SyncRowsProcessed,
		SyncRowsSkipped,
		SyncEvictedChallenges,
		RecommendRequestsTotal,
		RecommendBuildSeconds,
		RecommendPoolSize,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveSyncRun записывает результат и длительность прохода синхронизации.
func ObserveSyncRun(start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SyncRunsTotal.WithLabelValues(status).Inc()
	SyncRunSeconds.Observe(time.Since(start).Seconds())
}
