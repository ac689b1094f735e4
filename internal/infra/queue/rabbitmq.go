package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/Mill89757/Stay-Mobile-Backend/internal/domain"
	"github.com/Mill89757/Stay-Mobile-Backend/internal/infra/metrics"
)

// RabbitSyncQueue реализует очередь заданий синхронизации поверх AMQP.
// Prefetch равен 1, поэтому в обработке всегда не более одного задания.
type RabbitSyncQueue struct {
	conn  *amqp.Connection
	queue string
	log   zerolog.Logger
}

var _ domain.SyncQueue = (*RabbitSyncQueue)(nil)

// NewRabbitSyncQueue подключается к RabbitMQ и объявляет очередь.
func NewRabbitSyncQueue(amqpURL, queueName string, logger zerolog.Logger) (*RabbitSyncQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queueName == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("подключение к rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("открытие канала: %w", err)
	}
	defer ch.Close()
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("объявление очереди %s: %w", queueName, err)
	}
	return &RabbitSyncQueue{conn: conn, queue: queueName, log: logger}, nil
}

// Publish публикует задание в очередь.
func (q *RabbitSyncQueue) Publish(ctx context.Context, job domain.SyncJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("открытие канала: %w", err)
	}
	defer ch.Close()

	start := time.Now()
	err = ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    job.RequestedAt,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("публикация задания: %w", err)
	}
	return nil
}

// Consume читает задания по одному и передаёт их обработчику.
// nil от обработчика подтверждает задание, ошибка отклоняет его без повтора:
// следующий тик планировщика всё равно принесёт новое задание.
func (q *RabbitSyncQueue) Consume(ctx context.Context, handle func(context.Context, domain.SyncJob) error) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("открытие канала: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("установка prefetch: %w", err)
	}
	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("подписка на очередь %s: %w", q.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("канал доставки закрыт")
			}
			var job domain.SyncJob
			if err := json.Unmarshal(delivery.Body, &job); err != nil {
				q.log.Error().Err(err).Msg("queue: не удалось разобрать задание")
				_ = delivery.Nack(false, false)
				continue
			}
			if err := handle(ctx, job); err != nil {
				q.log.Error().Err(err).Str("job", job.ID).Msg("queue: задание завершилось ошибкой")
				_ = delivery.Nack(false, false)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

// Close закрывает подключение к брокеру.
func (q *RabbitSyncQueue) Close() error {
	return q.conn.Close()
}
