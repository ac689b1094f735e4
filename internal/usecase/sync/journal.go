package sync

import (
	"context"
	"fmt"

	"github.com/Mill89757/Stay-Mobile-Backend/internal/domain"
)

// journal — упреждающий список ключей, затронутых текущим проходом.
// Ключ регистрируется в кэше до первой записи, поэтому при сбое прохода
// все частично записанные ключи можно удалить и начать заново.
type journal struct {
	cache   domain.IndexCache
	key     string
	touched []string
	seen    map[string]struct{}
}

func newJournal(cache domain.IndexCache, runID string) *journal {
	return &journal{
		cache: cache,
		key:   fmt.Sprintf("sync:journal:%s", runID),
		seen:  make(map[string]struct{}),
	}
}

// touch регистрирует ключи перед их первой записью.
func (j *journal) touch(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, ok := j.seen[key]; ok {
			continue
		}
		if err := j.cache.HSet(ctx, j.key, key, "1"); err != nil {
			return fmt.Errorf("запись в журнал прохода: %w", err)
		}
		j.seen[key] = struct{}{}
		j.touched = append(j.touched, key)
	}
	return nil
}

// discard удаляет все затронутые ключи вместе с журналом.
// Значения не восстанавливаются: следующий проход перечитает тот же
// диапазон строк и перезапишет индексы заново.
func (j *journal) discard(ctx context.Context) error {
	if len(j.touched) > 0 {
		if err := j.cache.Del(ctx, j.touched...); err != nil {
			return fmt.Errorf("удаление затронутых ключей: %w", err)
		}
	}
	return j.cache.Del(ctx, j.key)
}

// close удаляет журнал после успешного прохода.
func (j *journal) close(ctx context.Context) error {
	return j.cache.Del(ctx, j.key)
}
