package recommend

import (
	"context"
	"math/rand"
	"sort"
	"strconv"

	"github.com/Mill89757/Stay-Mobile-Backend/internal/domain"
)

// topCategories возвращает ровно k различных категорий для пользователя:
// сначала категории с наибольшим положительным вкладом, затем случайное
// дополнение из оставшихся. Равные вклады упорядочиваются случайно —
// перемешивание кандидатов до сортировки сохранено как осознанное решение,
// детерминированного tie-break у рекомендаций нет.
func (s *Service) topCategories(ctx context.Context, userID int64) ([]int, error) {
	raw, _, err := s.cache.HGet(ctx, domain.KeyContribution, strconv.FormatInt(userID, 10))
	if err != nil {
		return nil, err
	}
	contribution, err := domain.ParseContribution(raw, s.cfg.CategoryCount)
	if err != nil {
		return nil, err
	}

	k := s.cfg.TopCategories
	if k > s.cfg.CategoryCount {
		k = s.cfg.CategoryCount
	}

	categories := rand.Perm(s.cfg.CategoryCount)
	sort.SliceStable(categories, func(i, j int) bool {
		return contribution[categories[i]] > contribution[categories[j]]
	})

	top := make([]int, 0, k)
	for _, category := range categories {
		if len(top) == k || contribution[category] <= 0 {
			break
		}
		top = append(top, category)
	}
	// Холодный старт и редкие вклады добиваются случайными категориями,
	// чтобы пользователь всегда получал ровно k предложений.
	for _, category := range categories {
		if len(top) == k {
			break
		}
		if contribution[category] <= 0 {
			top = append(top, category)
		}
	}
	return top, nil
}
