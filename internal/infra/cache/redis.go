package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mill89757/Stay-Mobile-Backend/internal/domain"
)

// Redis реализует domain.IndexCache поверх go-redis. Ожидаемый тип значения
// фиксируется в точке вызова, отсутствующий ключ отдаёт значение по умолчанию.
type Redis struct {
	client *redis.Client
}

var _ domain.IndexCache = (*Redis)(nil)
var _ domain.Locker = (*Redis)(nil)

// NewRedis создаёт типизированный доступ к кэшу.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// GetInt возвращает целое значение ключа либо def, если ключа нет.
func (c *Redis) GetInt(ctx context.Context, key string, def int64) (int64, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return def, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

// SetInt записывает целое значение без TTL.
func (c *Redis) SetInt(ctx context.Context, key string, value int64) error {
	return c.client.Set(ctx, key, value, 0).Err()
}

// HGet возвращает поле hash-таблицы и признак его существования.
func (c *Redis) HGet(ctx context.Context, key, field string) (string, bool, error) {
	raw, err := c.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return raw, true, nil
}

// HSet записывает поле hash-таблицы.
func (c *Redis) HSet(ctx context.Context, key, field, value string) error {
	return c.client.HSet(ctx, key, field, value).Err()
}

// HDel удаляет поля hash-таблицы.
func (c *Redis) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return c.client.HDel(ctx, key, fields...).Err()
}

// HIncrBy атомарно увеличивает числовое поле hash-таблицы.
func (c *Redis) HIncrBy(ctx context.Context, key, field string, delta int64) error {
	return c.client.HIncrBy(ctx, key, field, delta).Err()
}

// SAdd добавляет идентификаторы в набор.
func (c *Redis) SAdd(ctx context.Context, key string, members ...int64) error {
	if len(members) == 0 {
		return nil
	}
	values := make([]interface{}, len(members))
	for i, m := range members {
		values[i] = m
	}
	return c.client.SAdd(ctx, key, values...).Err()
}

// SMembers возвращает набор идентификаторов; отсутствующий ключ — пустой набор.
func (c *Redis) SMembers(ctx context.Context, key string) (map[int64]struct{}, error) {
	raw, err := c.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[int64]struct{}, len(raw))
	for _, item := range raw {
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, nil
}

// ZAdd записывает элемент сортированного множества.
func (c *Redis) ZAdd(ctx context.Context, key string, member int64, score float64) error {
	return c.client.ZAdd(ctx, key, redis.Z{Member: member, Score: score}).Err()
}

// ZIncrBy атомарно сдвигает score элемента.
func (c *Redis) ZIncrBy(ctx context.Context, key string, member int64, delta float64) error {
	return c.client.ZIncrBy(ctx, key, delta, strconv.FormatInt(member, 10)).Err()
}

// ZRange возвращает все элементы в порядке возрастания score.
func (c *Redis) ZRange(ctx context.Context, key string) ([]int64, error) {
	raw, err := c.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return parseIDs(raw)
}

// ZRangeByScore возвращает элементы со score в диапазоне [min, max].
func (c *Redis) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]int64, error) {
	raw, err := c.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}).Result()
	if err != nil {
		return nil, err
	}
	return parseIDs(raw)
}

// ZRem удаляет элемент сортированного множества.
func (c *Redis) ZRem(ctx context.Context, key string, member int64) error {
	return c.client.ZRem(ctx, key, member).Err()
}

// ZRemRangeByScore удаляет элементы со score в диапазоне [min, max].
func (c *Redis) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	return c.client.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Err()
}

// LPush добавляет идентификатор в начало списка.
func (c *Redis) LPush(ctx context.Context, key string, value int64) error {
	return c.client.LPush(ctx, key, value).Err()
}

// LRange возвращает весь список; отсутствующий ключ — пустой список.
func (c *Redis) LRange(ctx context.Context, key string) ([]int64, error) {
	raw, err := c.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return parseIDs(raw)
}

// Del удаляет ключи целиком.
func (c *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Once выполняет функцию, если ключ ещё не задан.
func (c *Redis) Once(key string, ttl time.Duration, fn func() error) error {
	ctx := context.Background()
	ok, err := c.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := fn(); err != nil {
		_ = c.client.Del(ctx, key).Err()
		return err
	}
	return nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseIDs(raw []string) ([]int64, error) {
	out := make([]int64, 0, len(raw))
	for _, item := range raw {
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
