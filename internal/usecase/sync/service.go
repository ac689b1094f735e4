package sync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Mill89757/Stay-Mobile-Backend/internal/domain"
	"github.com/Mill89757/Stay-Mobile-Backend/internal/infra/metrics"
)

const dateLayout = "2006-01-02"

// Config задаёт параметры пайплайна синхронизации.
type Config struct {
	WindowDays    int
	CategoryCount int
	CancelWeight  float64
	Location      *time.Location
}

// Service делает кэш согласованным с реляционной БД, обрабатывая только
// строки, добавленные после предыдущего прохода. Один вызов Run — один
// атомарный батч: при любой ошибке все затронутые ключи удаляются,
// смещения не сдвигаются, и следующий проход начинает тот же диапазон
// строк заново. Параллельные вызовы Run не допускаются — единственность
// запуска обеспечивает внешний планировщик.
type Service struct {
	source domain.SyncSource
	cache  domain.IndexCache
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time
}

var _ domain.SyncRunner = (*Service)(nil)

// NewService создаёт пайплайн синхронизации.
func NewService(source domain.SyncSource, cache domain.IndexCache, cfg Config, logger zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{source: source, cache: cache, cfg: cfg, log: logger, now: time.Now}
}

// Run выполняет один проход синхронизации.
func (s *Service) Run(ctx context.Context) error {
	start := time.Now()
	err := s.run(ctx)
	metrics.ObserveSyncRun(start, err)
	return err
}

func (s *Service) run(ctx context.Context) error {
	prevSlot, err := s.cache.GetInt(ctx, domain.KeyDayIndex, -1)
	if err != nil {
		return fmt.Errorf("чтение слота окна: %w", err)
	}
	clock := WindowClock{Size: s.cfg.WindowDays, Slot: prevSlot}.Advance()
	if err := s.cache.SetInt(ctx, domain.KeyDayIndex, clock.Slot); err != nil {
		return fmt.Errorf("сдвиг слота окна: %w", err)
	}

	runID := uuid.NewString()
	j := newJournal(s.cache, runID)
	processed := map[string]int64{}

	runErr := s.runSteps(ctx, j, clock, processed)
	if runErr == nil {
		runErr = s.commitOffsets(ctx, processed)
	}
	if runErr != nil {
		s.log.Error().Err(runErr).Str("run", runID).Msg("sync: проход завершился ошибкой, откатываем ключи")
		if err := j.discard(ctx); err != nil {
			s.log.Error().Err(err).Str("run", runID).Msg("sync: не удалось удалить затронутые ключи")
		}
		if err := s.cache.SetInt(ctx, domain.KeyDayIndex, prevSlot); err != nil {
			s.log.Error().Err(err).Str("run", runID).Msg("sync: не удалось вернуть слот окна")
		}
		return runErr
	}
	if err := j.close(ctx); err != nil {
		s.log.Warn().Err(err).Str("run", runID).Msg("sync: не удалось удалить журнал прохода")
	}

	s.log.Info().
		Str("run", runID).
		Int64("slot", clock.Slot).
		Int64("challenges", processed[domain.SourceChallenges]).
		Int64("members", processed[domain.SourceMembers]).
		Int64("posts", processed[domain.SourcePosts]).
		Int64("reactions", processed[domain.SourceReactions]).
		Msg("sync: проход завершён")
	return nil
}

func (s *Service) runSteps(ctx context.Context, j *journal, clock WindowClock, processed map[string]int64) error {
	if err := s.evictCompleted(ctx, j, clock); err != nil {
		return fmt.Errorf("вытеснение завершённых челленджей: %w", err)
	}
	count, err := s.mirrorChallenges(ctx, j)
	if err != nil {
		return fmt.Errorf("зеркалирование челленджей: %w", err)
	}
	processed[domain.SourceChallenges] = count

	count, err = s.updateContributions(ctx, j)
	if err != nil {
		return fmt.Errorf("обновление векторов вклада: %w", err)
	}
	processed[domain.SourceMembers] = count

	count, err = s.classifyPosts(ctx, j, clock)
	if err != nil {
		return fmt.Errorf("классификация постов: %w", err)
	}
	processed[domain.SourcePosts] = count

	count, err = s.applyReactions(ctx, j)
	if err != nil {
		return fmt.Errorf("обработка реакций: %w", err)
	}
	processed[domain.SourceReactions] = count
	return nil
}

// commitOffsets сдвигает смещения только после полностью применённого батча,
// ровно на число фактически обработанных строк. Сбой здесь фатален для всего
// прохода: записанные батчем ключи удаляются как при любой другой ошибке,
// иначе следующий проход перечитал бы несдвинутые источники и засчитал
// вклады и предпочтения дважды.
func (s *Service) commitOffsets(ctx context.Context, processed map[string]int64) error {
	for _, source := range []string{domain.SourceChallenges, domain.SourceMembers, domain.SourcePosts, domain.SourceReactions} {
		count := processed[source]
		if count == 0 {
			continue
		}
		if err := s.cache.HIncrBy(ctx, domain.KeyOffsets, source, count); err != nil {
			return fmt.Errorf("сдвиг смещения %s: %w", source, err)
		}
		metrics.SyncRowsProcessed.WithLabelValues(source).Add(float64(count))
	}
	return nil
}

// evictCompleted удаляет челленджи, чей слот вытеснения наступил, вместе
// со всеми их постами во вторичных индексах.
func (s *Service) evictCompleted(ctx context.Context, j *journal, clock WindowClock) error {
	due, err := s.cache.ZRangeByScore(ctx, domain.KeyPendingCompletion, float64(clock.Slot), float64(clock.Slot))
	if err != nil {
		return fmt.Errorf("чтение очереди вытеснения: %w", err)
	}
	for _, challengeID := range due {
		field := strconv.FormatInt(challengeID, 10)
		raw, ok, err := s.cache.HGet(ctx, domain.KeyChallengeInfo, field)
		if err != nil {
			return err
		}
		if err := j.touch(ctx, domain.KeyPendingCompletion); err != nil {
			return err
		}
		if !ok {
			s.log.Warn().Int64("challenge", challengeID).Msg("sync: челлендж в очереди вытеснения не найден в кэше")
			if err := s.cache.ZRem(ctx, domain.KeyPendingCompletion, challengeID); err != nil {
				return err
			}
			continue
		}
		summary, err := domain.ParseChallengeSummary(raw)
		if err != nil {
			return fmt.Errorf("карточка челленджа %d: %w", challengeID, err)
		}

		postsKey := domain.KeyChallengePosts(challengeID)
		posts, err := s.cache.LRange(ctx, postsKey)
		if err != nil {
			return err
		}
		categoryKey := domain.KeyCategoryPosts(summary.Category)
		if err := j.touch(ctx, categoryKey, domain.KeyPostChallenge, postsKey, domain.KeyChallengeInfo); err != nil {
			return err
		}
		for _, postID := range posts {
			if err := s.cache.ZRem(ctx, categoryKey, postID); err != nil {
				return err
			}
			if err := s.cache.HDel(ctx, domain.KeyPostChallenge, strconv.FormatInt(postID, 10)); err != nil {
				return err
			}
		}
		if err := s.cache.Del(ctx, postsKey); err != nil {
			return err
		}
		if err := s.cache.HDel(ctx, domain.KeyChallengeInfo, field); err != nil {
			return err
		}
		if err := s.cache.ZRem(ctx, domain.KeyPendingCompletion, challengeID); err != nil {
			return err
		}
		metrics.SyncEvictedChallenges.Inc()
	}
	return nil
}

// mirrorChallenges переносит карточки новых челленджей в кэш.
func (s *Service) mirrorChallenges(ctx context.Context, j *journal) (int64, error) {
	offset, err := s.offset(ctx, domain.SourceChallenges)
	if err != nil {
		return 0, err
	}
	challenges, err := s.source.ListChallenges(ctx, offset)
	if err != nil {
		return 0, err
	}
	for _, challenge := range challenges {
		summary := domain.ChallengeSummary{
			Category: challenge.Category,
			IsPublic: challenge.IsPublic,
			Duration: challenge.Duration,
			DoneBy:   challenge.DoneBy(),
		}
		if err := j.touch(ctx, domain.KeyChallengeInfo); err != nil {
			return 0, err
		}
		if err := s.cache.HSet(ctx, domain.KeyChallengeInfo, strconv.FormatInt(challenge.ID, 10), summary.Encode()); err != nil {
			return 0, err
		}
	}
	return int64(len(challenges)), nil
}

// updateContributions увеличивает вклад пользователя в категорию нового
// челленджа на его длительность. Участие в уже вытесненном челлендже
// пропускается: это ожидаемая ситуация, а не ошибка.
func (s *Service) updateContributions(ctx context.Context, j *journal) (int64, error) {
	offset, err := s.offset(ctx, domain.SourceMembers)
	if err != nil {
		return 0, err
	}
	members, err := s.source.ListMembers(ctx, offset)
	if err != nil {
		return 0, err
	}
	for _, member := range members {
		summary, ok, err := s.challengeSummary(ctx, member.ChallengeID)
		if err != nil {
			return 0, err
		}
		if !ok {
			metrics.SyncRowsSkipped.WithLabelValues(domain.SourceMembers).Inc()
			continue
		}
		if err := s.adjustContribution(ctx, j, member.UserID, summary.Category, int64(summary.Duration)); err != nil {
			return 0, err
		}
	}
	return int64(len(members)), nil
}

// classifyPosts раскладывает новые посты по индексам рекомендаций.
// Перед этим из каждого категорийного индекса вытесняется слот,
// который переиспользуется в этом проходе.
func (s *Service) classifyPosts(ctx context.Context, j *journal, clock WindowClock) (int64, error) {
	for category := 0; category < s.cfg.CategoryCount; category++ {
		key := domain.KeyCategoryPosts(category)
		if err := j.touch(ctx, key); err != nil {
			return 0, err
		}
		if err := s.cache.ZRemRangeByScore(ctx, key, float64(clock.Slot), float64(clock.Slot)); err != nil {
			return 0, err
		}
	}

	offset, err := s.offset(ctx, domain.SourcePosts)
	if err != nil {
		return 0, err
	}
	posts, err := s.source.ListPosts(ctx, offset)
	if err != nil {
		return 0, err
	}

	today := s.now().In(s.cfg.Location).Format(dateLayout)
	for _, post := range posts {
		summary, ok, err := s.challengeSummary(ctx, post.ChallengeID)
		if err != nil {
			return 0, err
		}
		if !ok {
			s.log.Warn().Int64("post", post.ID).Int64("challenge", post.ChallengeID).Msg("sync: пост ссылается на неактивный челлендж")
			metrics.SyncRowsSkipped.WithLabelValues(domain.SourcePosts).Inc()
			continue
		}

		// День перерыва не индексируется и уменьшает вклад автора на единицу.
		if post.IsRestDay() {
			if err := s.adjustContribution(ctx, j, post.UserID, summary.Category, -1); err != nil {
				return 0, err
			}
			continue
		}

		if summary.IsPublic {
			categoryKey := domain.KeyCategoryPosts(summary.Category)
			postsKey := domain.KeyChallengePosts(post.ChallengeID)
			if err := j.touch(ctx, categoryKey, domain.KeyPostChallenge, postsKey); err != nil {
				return 0, err
			}
			if err := s.cache.ZAdd(ctx, categoryKey, post.ID, float64(clock.Slot)); err != nil {
				return 0, err
			}
			if err := s.cache.HSet(ctx, domain.KeyPostChallenge, strconv.FormatInt(post.ID, 10), strconv.FormatInt(post.ChallengeID, 10)); err != nil {
				return 0, err
			}
			if err := s.cache.LPush(ctx, postsKey, post.ID); err != nil {
				return 0, err
			}
		}

		if summary.DoneBy.Format(dateLayout) == today {
			if err := j.touch(ctx, domain.KeyPendingCompletion); err != nil {
				return 0, err
			}
			if err := s.cache.ZAdd(ctx, domain.KeyPendingCompletion, post.ChallengeID, float64(clock.DueSlot(summary.Duration))); err != nil {
				return 0, err
			}
		}
	}
	return int64(len(posts)), nil
}

// applyReactions переносит журнал реакций в предпочтения пользователей.
// Отмена реакции — более слабый отрицательный сигнал, чем новая реакция
// положительный, поэтому веса несимметричны.
func (s *Service) applyReactions(ctx context.Context, j *journal) (int64, error) {
	offset, err := s.offset(ctx, domain.SourceReactions)
	if err != nil {
		return 0, err
	}
	reactions, err := s.source.ListReactions(ctx, offset)
	if err != nil {
		return 0, err
	}
	for _, reaction := range reactions {
		raw, ok, err := s.cache.HGet(ctx, domain.KeyPostChallenge, strconv.FormatInt(reaction.PostID, 10))
		if err != nil {
			return 0, err
		}
		if !ok {
			// Пост не индексирован: приватный либо уже вытесненный челлендж.
			metrics.SyncRowsSkipped.WithLabelValues(domain.SourceReactions).Inc()
			continue
		}
		challengeID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("пара пост-челлендж %d: %w", reaction.PostID, err)
		}

		prefKey := domain.KeyUserPreference(reaction.UserID)
		if reaction.IsCancelled {
			if err := j.touch(ctx, prefKey); err != nil {
				return 0, err
			}
			if err := s.cache.ZIncrBy(ctx, prefKey, challengeID, -s.cfg.CancelWeight); err != nil {
				return 0, err
			}
			continue
		}

		reactedKey := domain.KeyUserReacted(reaction.UserID)
		if err := j.touch(ctx, reactedKey, prefKey); err != nil {
			return 0, err
		}
		if err := s.cache.SAdd(ctx, reactedKey, reaction.PostID); err != nil {
			return 0, err
		}
		if err := s.cache.ZIncrBy(ctx, prefKey, challengeID, 1); err != nil {
			return 0, err
		}
	}
	return int64(len(reactions)), nil
}

func (s *Service) offset(ctx context.Context, source string) (int64, error) {
	raw, ok, err := s.cache.HGet(ctx, domain.KeyOffsets, source)
	if err != nil {
		return 0, fmt.Errorf("чтение смещения %s: %w", source, err)
	}
	if !ok {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("смещение %s: %w", source, err)
	}
	return value, nil
}

func (s *Service) challengeSummary(ctx context.Context, challengeID int64) (domain.ChallengeSummary, bool, error) {
	raw, ok, err := s.cache.HGet(ctx, domain.KeyChallengeInfo, strconv.FormatInt(challengeID, 10))
	if err != nil || !ok {
		return domain.ChallengeSummary{}, false, err
	}
	summary, err := domain.ParseChallengeSummary(raw)
	if err != nil {
		return domain.ChallengeSummary{}, false, fmt.Errorf("карточка челленджа %d: %w", challengeID, err)
	}
	return summary, true, nil
}

func (s *Service) adjustContribution(ctx context.Context, j *journal, userID int64, category int, delta int64) error {
	if category < 0 || category >= s.cfg.CategoryCount {
		s.log.Warn().Int64("user", userID).Int("category", category).Msg("sync: категория вне диапазона, вклад не изменён")
		return nil
	}
	field := strconv.FormatInt(userID, 10)
	raw, _, err := s.cache.HGet(ctx, domain.KeyContribution, field)
	if err != nil {
		return err
	}
	contribution, err := domain.ParseContribution(raw, s.cfg.CategoryCount)
	if err != nil {
		return fmt.Errorf("вклад пользователя %d: %w", userID, err)
	}
	contribution[category] += delta
	if err := j.touch(ctx, domain.KeyContribution); err != nil {
		return err
	}
	return s.cache.HSet(ctx, domain.KeyContribution, field, contribution.Encode())
}
