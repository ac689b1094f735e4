package domain

import (
	"context"
	"time"
)

// SyncSource отдаёт новые строки реляционной БД начиная с указанного смещения.
// Порядок строк стабилен (первичный ключ), поэтому смещение однозначно
// отсекает уже обработанные записи.
type SyncSource interface {
	ListChallenges(ctx context.Context, offset int64) ([]Challenge, error)
	ListMembers(ctx context.Context, offset int64) ([]ChallengeMember, error)
	ListPosts(ctx context.Context, offset int64) ([]Post, error)
	ListReactions(ctx context.Context, offset int64) ([]ReactionLog, error)
}

// PopularitySource отдаёт посты, отсортированные по суммарному числу реакций.
type PopularitySource interface {
	TopPostsByReactions(ctx context.Context, limit int) ([]int64, error)
}

// IndexCache — типизированный доступ к примитивам кэша. Отсутствующий ключ
// всегда означает значение по умолчанию, а не ошибку.
type IndexCache interface {
	GetInt(ctx context.Context, key string, def int64) (int64, error)
	SetInt(ctx context.Context, key string, value int64) error

	HGet(ctx context.Context, key, field string) (string, bool, error)
	HSet(ctx context.Context, key, field, value string) error
	HDel(ctx context.Context, key string, fields ...string) error
	HIncrBy(ctx context.Context, key, field string, delta int64) error

	SAdd(ctx context.Context, key string, members ...int64) error
	SMembers(ctx context.Context, key string) (map[int64]struct{}, error)

	ZAdd(ctx context.Context, key string, member int64, score float64) error
	ZIncrBy(ctx context.Context, key string, member int64, delta float64) error
	ZRange(ctx context.Context, key string) ([]int64, error)
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]int64, error)
	ZRem(ctx context.Context, key string, member int64) error
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) error

	LPush(ctx context.Context, key string, value int64) error
	LRange(ctx context.Context, key string) ([]int64, error)

	Del(ctx context.Context, keys ...string) error
}

// SyncRunner выполняет один проход синхронизации кэша с БД.
type SyncRunner interface {
	Run(ctx context.Context) error
}

// Recommender строит список кандидатов для пользователя.
type Recommender interface {
	Recommend(ctx context.Context, userID int64) ([]int64, error)
}

// SyncQueue — очередь заданий на синхронизацию. Consume обрабатывает задания
// по одному: nil от обработчика подтверждает задание, ошибка отклоняет его.
type SyncQueue interface {
	Publish(ctx context.Context, job SyncJob) error
	Consume(ctx context.Context, handle func(context.Context, SyncJob) error) error
}

// Locker гарантирует, что функция под ключом выполняется не чаще TTL.
type Locker interface {
	Once(key string, ttl time.Duration, fn func() error) error
}
