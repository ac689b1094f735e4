package sync

import (
	"context"
	"sort"
	"strconv"

	"github.com/Mill89757/Stay-Mobile-Backend/internal/domain"
)

// memCache — кэш в памяти для тестов пайплайна.
type memCache struct {
	ints   map[string]int64
	hashes map[string]map[string]string
	sets   map[string]map[int64]struct{}
	zsets  map[string]map[int64]float64
	lists  map[string][]int64
}

var _ domain.IndexCache = (*memCache)(nil)

func newMemCache() *memCache {
	return &memCache{
		ints:   map[string]int64{},
		hashes: map[string]map[string]string{},
		sets:   map[string]map[int64]struct{}{},
		zsets:  map[string]map[int64]float64{},
		lists:  map[string][]int64{},
	}
}

func (m *memCache) GetInt(_ context.Context, key string, def int64) (int64, error) {
	if v, ok := m.ints[key]; ok {
		return v, nil
	}
	return def, nil
}

func (m *memCache) SetInt(_ context.Context, key string, value int64) error {
	m.ints[key] = value
	return nil
}

func (m *memCache) HGet(_ context.Context, key, field string) (string, bool, error) {
	v, ok := m.hashes[key][field]
	return v, ok, nil
}

func (m *memCache) HSet(_ context.Context, key, field, value string) error {
	if m.hashes[key] == nil {
		m.hashes[key] = map[string]string{}
	}
	m.hashes[key][field] = value
	return nil
}

func (m *memCache) HDel(_ context.Context, key string, fields ...string) error {
	for _, field := range fields {
		delete(m.hashes[key], field)
	}
	return nil
}

func (m *memCache) HIncrBy(ctx context.Context, key, field string, delta int64) error {
	var current int64
	if raw, ok, _ := m.HGet(ctx, key, field); ok {
		current, _ = strconv.ParseInt(raw, 10, 64)
	}
	return m.HSet(ctx, key, field, strconv.FormatInt(current+delta, 10))
}

func (m *memCache) SAdd(_ context.Context, key string, members ...int64) error {
	if m.sets[key] == nil {
		m.sets[key] = map[int64]struct{}{}
	}
	for _, member := range members {
		m.sets[key][member] = struct{}{}
	}
	return nil
}

func (m *memCache) SMembers(_ context.Context, key string) (map[int64]struct{}, error) {
	out := map[int64]struct{}{}
	for member := range m.sets[key] {
		out[member] = struct{}{}
	}
	return out, nil
}

func (m *memCache) ZAdd(_ context.Context, key string, member int64, score float64) error {
	if m.zsets[key] == nil {
		m.zsets[key] = map[int64]float64{}
	}
	m.zsets[key][member] = score
	return nil
}

func (m *memCache) ZIncrBy(_ context.Context, key string, member int64, delta float64) error {
	if m.zsets[key] == nil {
		m.zsets[key] = map[int64]float64{}
	}
	m.zsets[key][member] += delta
	return nil
}

func (m *memCache) ZRange(_ context.Context, key string) ([]int64, error) {
	return m.zrange(key, func(float64) bool { return true }), nil
}

func (m *memCache) ZRangeByScore(_ context.Context, key string, min, max float64) ([]int64, error) {
	return m.zrange(key, func(score float64) bool { return score >= min && score <= max }), nil
}

func (m *memCache) ZRem(_ context.Context, key string, member int64) error {
	delete(m.zsets[key], member)
	return nil
}

func (m *memCache) ZRemRangeByScore(_ context.Context, key string, min, max float64) error {
	for member, score := range m.zsets[key] {
		if score >= min && score <= max {
			delete(m.zsets[key], member)
		}
	}
	return nil
}

func (m *memCache) LPush(_ context.Context, key string, value int64) error {
	m.lists[key] = append([]int64{value}, m.lists[key]...)
	return nil
}

func (m *memCache) LRange(_ context.Context, key string) ([]int64, error) {
	return append([]int64(nil), m.lists[key]...), nil
}

func (m *memCache) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.ints, key)
		delete(m.hashes, key)
		delete(m.sets, key)
		delete(m.zsets, key)
		delete(m.lists, key)
	}
	return nil
}

func (m *memCache) zrange(key string, keep func(float64) bool) []int64 {
	members := make([]int64, 0, len(m.zsets[key]))
	for member, score := range m.zsets[key] {
		if keep(score) {
			members = append(members, member)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		a, b := m.zsets[key][members[i]], m.zsets[key][members[j]]
		if a == b {
			return members[i] < members[j]
		}
		return a < b
	})
	return members
}

// snapshot делает глубокую копию состояния для сравнения до и после прохода.
func (m *memCache) snapshot() *memCache {
	out := newMemCache()
	for k, v := range m.ints {
		out.ints[k] = v
	}
	for k, fields := range m.hashes {
		copied := map[string]string{}
		for f, v := range fields {
			copied[f] = v
		}
		out.hashes[k] = copied
	}
	for k, members := range m.sets {
		copied := map[int64]struct{}{}
		for member := range members {
			copied[member] = struct{}{}
		}
		out.sets[k] = copied
	}
	for k, members := range m.zsets {
		copied := map[int64]float64{}
		for member, score := range members {
			copied[member] = score
		}
		out.zsets[k] = copied
	}
	for k, items := range m.lists {
		out.lists[k] = append([]int64(nil), items...)
	}
	return out
}
