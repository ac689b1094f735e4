package recommend

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/Mill89757/Stay-Mobile-Backend/internal/domain"
	"github.com/Mill89757/Stay-Mobile-Backend/internal/infra/metrics"
)

// Config задаёт границы выборок композера.
type Config struct {
	CategoryCount       int
	TopCategories       int
	CategorySampleMax   int
	ChallengeSampleMax  int
	ChallengeCandidates int
	PopularLimit        int
	PopularPad          int
	PoolTarget          int
}

// Количество предпочитаемых челленджей, попадающих в кандидаты без жребия.
const preferredSeed = 10

// Service собирает кандидатов рекомендаций из трёх стратегий: категорийной
// близости, близости по реакциям и глобальной популярности. Сервис только
// читает: индексы кэша принадлежат пайплайну синхронизации, а в БД уходит
// единственный запрос популярности. Пользователь без истории не ошибка —
// он получает кандидатов только из пула популярности.
type Service struct {
	cache   domain.IndexCache
	popular domain.PopularitySource
	cfg     Config
	log     zerolog.Logger
}

var _ domain.Recommender = (*Service)(nil)

// NewService создаёт композер рекомендаций.
func NewService(cache domain.IndexCache, popular domain.PopularitySource, cfg Config, logger zerolog.Logger) *Service {
	return &Service{cache: cache, popular: popular, cfg: cfg, log: logger}
}

// Recommend возвращает неупорядоченный список постов, на которые пользователь
// ещё не реагировал. Повторные вызовы могут отдавать разные наборы: выборки
// внутри пулов случайные.
func (s *Service) Recommend(ctx context.Context, userID int64) ([]int64, error) {
	metrics.RecommendRequestsTotal.Inc()
	start := time.Now()
	defer func() {
		metrics.RecommendBuildSeconds.Observe(time.Since(start).Seconds())
	}()

	// Без набора просмотренных постов инвариант исключения не гарантировать,
	// поэтому только эта ошибка фатальна для запроса.
	reacted, err := s.cache.SMembers(ctx, domain.KeyUserReacted(userID))
	if err != nil {
		return nil, fmt.Errorf("набор реакций пользователя %d: %w", userID, err)
	}

	pool := make(map[int64]struct{})
	s.collectCategoryPool(ctx, userID, reacted, pool)
	s.collectInteractionPool(ctx, userID, reacted, pool)
	s.collectPopularPool(ctx, userID, reacted, pool)

	out := make([]int64, 0, len(pool))
	for postID := range pool {
		out = append(out, postID)
	}
	return out, nil
}

// collectCategoryPool добавляет случайные выборки недавних постов из
// предпочитаемых категорий пользователя.
func (s *Service) collectCategoryPool(ctx context.Context, userID int64, reacted map[int64]struct{}, pool map[int64]struct{}) {
	top, err := s.topCategories(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Int64("user", userID).Msg("recommend: категории пользователя недоступны, пул пропущен")
		return
	}

	added := 0
	for _, category := range top {
		posts, err := s.cache.ZRange(ctx, domain.KeyCategoryPosts(category))
		if err != nil {
			s.log.Warn().Err(err).Int("category", category).Msg("recommend: индекс категории недоступен")
			continue
		}
		if len(posts) == 0 {
			continue
		}
		size := len(posts)/5 + 1
		if size > s.cfg.CategorySampleMax {
			size = s.cfg.CategorySampleMax
		}
		for _, postID := range sampleIDs(posts, size) {
			if _, ok := reacted[postID]; ok {
				continue
			}
			pool[postID] = struct{}{}
			added++
		}
	}
	metrics.RecommendPoolSize.WithLabelValues("category").Observe(float64(added))
}

// collectInteractionPool добавляет посты челленджей, с которыми пользователь
// недавно взаимодействовал, начиная с самых предпочитаемых.
func (s *Service) collectInteractionPool(ctx context.Context, userID int64, reacted map[int64]struct{}, pool map[int64]struct{}) {
	preferences, err := s.cache.ZRange(ctx, domain.KeyUserPreference(userID))
	if err != nil {
		s.log.Warn().Err(err).Int64("user", userID).Msg("recommend: предпочтения пользователя недоступны, пул пропущен")
		return
	}

	candidates := make([]int64, 0, s.cfg.ChallengeCandidates)
	for i := len(preferences) - 1; i >= 0; i-- {
		if len(candidates) == s.cfg.ChallengeCandidates {
			break
		}
		challengeID := preferences[i]
		_, ok, err := s.cache.HGet(ctx, domain.KeyChallengeInfo, strconv.FormatInt(challengeID, 10))
		if err != nil {
			s.log.Warn().Err(err).Int64("challenge", challengeID).Msg("recommend: карточка челленджа недоступна")
			continue
		}
		if !ok {
			// Челлендж уже вытеснен; запись в предпочтениях остаётся,
			// композер индексы не правит.
			continue
		}
		// Самые предпочитаемые челленджи берутся всегда, дальше по жребию.
		if len(candidates) >= preferredSeed && rand.Intn(11) > 4 {
			continue
		}
		candidates = append(candidates, challengeID)
	}

	added := 0
	for _, challengeID := range candidates {
		posts, err := s.cache.LRange(ctx, domain.KeyChallengePosts(challengeID))
		if err != nil {
			s.log.Warn().Err(err).Int64("challenge", challengeID).Msg("recommend: список постов челленджа недоступен")
			continue
		}
		if len(posts) == 0 {
			continue
		}
		size := len(posts)/10 + 1
		if size > s.cfg.ChallengeSampleMax {
			size = s.cfg.ChallengeSampleMax
		}
		for _, postID := range sampleIDs(posts, size) {
			if _, ok := reacted[postID]; ok {
				continue
			}
			pool[postID] = struct{}{}
			added++
		}
	}
	metrics.RecommendPoolSize.WithLabelValues("interaction").Observe(float64(added))
}

// collectPopularPool добивает пул глобально популярными постами из БД.
// Единственная стратегия, которая ходит в реляционное хранилище на чтении.
func (s *Service) collectPopularPool(ctx context.Context, userID int64, reacted map[int64]struct{}, pool map[int64]struct{}) {
	need := s.cfg.PopularPad
	if remaining := s.cfg.PoolTarget - len(pool); remaining < need {
		need = remaining
	}
	if need <= 0 {
		metrics.RecommendPoolSize.WithLabelValues("popular").Observe(0)
		return
	}

	popular, err := s.popular.TopPostsByReactions(ctx, s.cfg.PopularLimit)
	if err != nil {
		s.log.Warn().Err(err).Int64("user", userID).Msg("recommend: пул популярности недоступен")
		return
	}

	fresh := make([]int64, 0, len(popular))
	for _, postID := range popular {
		if _, ok := reacted[postID]; ok {
			continue
		}
		fresh = append(fresh, postID)
	}

	added := 0
	for _, postID := range sampleIDs(fresh, need) {
		pool[postID] = struct{}{}
		added++
	}
	metrics.RecommendPoolSize.WithLabelValues("popular").Observe(float64(added))
}

// sampleIDs возвращает случайную выборку без повторов размера не больше n.
func sampleIDs(ids []int64, n int) []int64 {
	if n >= len(ids) {
		return ids
	}
	shuffled := append([]int64(nil), ids...)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:n]
}
