package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Mill89757/Stay-Mobile-Backend/internal/domain"
	"github.com/Mill89757/Stay-Mobile-Backend/internal/infra/config"
	applog "github.com/Mill89757/Stay-Mobile-Backend/internal/infra/log"
	"github.com/Mill89757/Stay-Mobile-Backend/internal/infra/queue"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "scheduler")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	syncQueue, err := queue.NewRabbitSyncQueue(cfg.AMQP.URL, cfg.AMQP.Queue, logger.With().Str("component", "queue").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler: нет подключения к очереди")
	}
	defer syncQueue.Close()

	ticker := time.NewTicker(cfg.Sync.Interval)
	defer ticker.Stop()

	logger.Info().Dur("interval", cfg.Sync.Interval).Msg("scheduler: запущен")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler: остановлен")
			return
		case <-ticker.C:
			job := domain.SyncJob{ID: uuid.NewString(), Reason: "schedule", RequestedAt: time.Now().UTC()}
			if err := syncQueue.Publish(ctx, job); err != nil {
				log.Error().Err(err).Msg("scheduler: не удалось поставить задание синхронизации")
				continue
			}
			logger.Info().Str("job", job.ID).Msg("scheduler: задание синхронизации поставлено")
		}
	}
}
