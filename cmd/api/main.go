package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Mill89757/Stay-Mobile-Backend/internal/adapters/repo"
	"github.com/Mill89757/Stay-Mobile-Backend/internal/domain"
	"github.com/Mill89757/Stay-Mobile-Backend/internal/infra/cache"
	"github.com/Mill89757/Stay-Mobile-Backend/internal/infra/config"
	"github.com/Mill89757/Stay-Mobile-Backend/internal/infra/db"
	httpinfra "github.com/Mill89757/Stay-Mobile-Backend/internal/infra/http"
	applog "github.com/Mill89757/Stay-Mobile-Backend/internal/infra/log"
	"github.com/Mill89757/Stay-Mobile-Backend/internal/infra/metrics"
	"github.com/Mill89757/Stay-Mobile-Backend/internal/infra/queue"
	"github.com/Mill89757/Stay-Mobile-Backend/internal/usecase/recommend"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "api")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PG.DSN, cfg.PG.MaxConns, cfg.PG.ConnectTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	indexCache := cache.NewRedis(redisClient)

	repoAdapter := repo.NewPostgres(pool)
	recommender := recommend.NewService(indexCache, repoAdapter, recommend.Config{
		CategoryCount:       cfg.Recommend.CategoryCount,
		TopCategories:       cfg.Recommend.TopCategories,
		CategorySampleMax:   cfg.Recommend.CategorySampleMax,
		ChallengeSampleMax:  cfg.Recommend.ChallengeSampleMax,
		ChallengeCandidates: cfg.Recommend.ChallengeCandidates,
		PopularLimit:        cfg.Recommend.PopularLimit,
		PopularPad:          cfg.Recommend.PopularPad,
		PoolTarget:          cfg.Recommend.PoolTarget,
	}, logger.With().Str("component", "recommend").Logger())

	var syncQueue domain.SyncQueue
	if cfg.AMQP.URL != "" {
		rabbit, err := queue.NewRabbitSyncQueue(cfg.AMQP.URL, cfg.AMQP.Queue, logger.With().Str("component", "queue").Logger())
		if err != nil {
			log.Fatal().Err(err).Msg("api: нет подключения к очереди")
		}
		defer rabbit.Close()
		syncQueue = rabbit
	}

	server := httpinfra.NewServer(logger)
	server.Router.Get("/api/v1/recommendations/{userID}", func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		posts, err := recommender.Recommend(r.Context(), userID)
		if err != nil {
			logger.Error().Err(err).Int64("user", userID).Msg("api: рекомендации недоступны")
			writeError(w, http.StatusInternalServerError, "recommendations unavailable")
			return
		}
		if posts == nil {
			posts = []int64{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"post_ids": posts})
	})

	server.Router.Post("/api/v1/sync", func(w http.ResponseWriter, r *http.Request) {
		if syncQueue == nil {
			writeError(w, http.StatusServiceUnavailable, "sync queue is not configured")
			return
		}
		job := domain.SyncJob{ID: uuid.NewString(), Reason: "manual", RequestedAt: time.Now().UTC()}
		if err := syncQueue.Publish(r.Context(), job); err != nil {
			logger.Error().Err(err).Msg("api: не удалось поставить задание синхронизации")
			writeError(w, http.StatusInternalServerError, "enqueue failed")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api: ошибка остановки сервера")
		}
	}()

	if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("api: сервер остановился с ошибкой")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	// Заголовки выставляются до статусной строки, после неё они теряются.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
