package main

import (
	"context"
	"errors"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Mill89757/Stay-Mobile-Backend/internal/adapters/repo"
	"github.com/Mill89757/Stay-Mobile-Backend/internal/domain"
	"github.com/Mill89757/Stay-Mobile-Backend/internal/infra/cache"
	"github.com/Mill89757/Stay-Mobile-Backend/internal/infra/config"
	"github.com/Mill89757/Stay-Mobile-Backend/internal/infra/db"
	applog "github.com/Mill89757/Stay-Mobile-Backend/internal/infra/log"
	"github.com/Mill89757/Stay-Mobile-Backend/internal/infra/metrics"
	"github.com/Mill89757/Stay-Mobile-Backend/internal/infra/queue"
	syncusecase "github.com/Mill89757/Stay-Mobile-Backend/internal/usecase/sync"
)

// Ключ блокировки, защищающей от повторного запуска прохода при
// продублированном задании.
const syncLockKey = "sync:run:lock"

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "syncworker")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	location, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		log.Fatal().Err(err).Str("tz", cfg.TZ).Msg("syncworker: неизвестный часовой пояс")
	}

	pool, err := db.Connect(cfg.PG.DSN, cfg.PG.MaxConns, cfg.PG.ConnectTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("syncworker: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	indexCache := cache.NewRedis(redisClient)

	syncService := syncusecase.NewService(repo.NewPostgres(pool), indexCache, syncusecase.Config{
		WindowDays:    cfg.Recommend.WindowDays,
		CategoryCount: cfg.Recommend.CategoryCount,
		CancelWeight:  cfg.Recommend.CancelWeight,
		Location:      location,
	}, logger.With().Str("component", "sync").Logger())

	syncQueue, err := queue.NewRabbitSyncQueue(cfg.AMQP.URL, cfg.AMQP.Queue, logger.With().Str("component", "queue").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("syncworker: нет подключения к очереди")
	}
	defer syncQueue.Close()

	metrics.StartServer(ctx, logger, ":"+strconv.Itoa(cfg.Port))

	logger.Info().Msg("syncworker: запущен")
	err = syncQueue.Consume(ctx, func(ctx context.Context, job domain.SyncJob) error {
		logger.Info().Str("job", job.ID).Str("reason", job.Reason).Msg("syncworker: получено задание")
		return indexCache.Once(syncLockKey, cfg.Sync.LockTTL, func() error {
			return syncService.Run(ctx)
		})
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("syncworker: потребитель остановился с ошибкой")
	}
	logger.Info().Msg("syncworker: остановлен")
}
