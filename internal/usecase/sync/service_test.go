package sync

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Mill89757/Stay-Mobile-Backend/internal/domain"
)

type stubSource struct {
	challenges   []domain.Challenge
	members      []domain.ChallengeMember
	posts        []domain.Post
	reactions    []domain.ReactionLog
	reactionsErr error
}

func (s *stubSource) ListChallenges(_ context.Context, offset int64) ([]domain.Challenge, error) {
	return tail(s.challenges, offset), nil
}

func (s *stubSource) ListMembers(_ context.Context, offset int64) ([]domain.ChallengeMember, error) {
	return tail(s.members, offset), nil
}

func (s *stubSource) ListPosts(_ context.Context, offset int64) ([]domain.Post, error) {
	return tail(s.posts, offset), nil
}

func (s *stubSource) ListReactions(_ context.Context, offset int64) ([]domain.ReactionLog, error) {
	if s.reactionsErr != nil {
		return nil, s.reactionsErr
	}
	return tail(s.reactions, offset), nil
}

func tail[T any](rows []T, offset int64) []T {
	if offset >= int64(len(rows)) {
		return nil
	}
	return rows[offset:]
}

func newTestService(source *stubSource, cache *memCache, windowDays int) *Service {
	svc := NewService(source, cache, Config{
		WindowDays:    windowDays,
		CategoryCount: 5,
		CancelWeight:  0.6,
		Location:      time.UTC,
	}, zerolog.Nop())
	return svc
}

func TestRunMirrorsNewRows(t *testing.T) {
	source := &stubSource{
		challenges: []domain.Challenge{{ID: 7, Category: 2, IsPublic: true, Duration: 10, CreatedTime: time.Now().UTC()}},
		members:    []domain.ChallengeMember{{ChallengeID: 7, UserID: 42}},
		posts:      []domain.Post{{ID: 101, UserID: 42, ChallengeID: 7, WrittenText: "день 1"}},
		reactions:  []domain.ReactionLog{{LogID: 1, PostID: 101, UserID: 99}},
	}
	cache := newMemCache()
	svc := newTestService(source, cache, 30)

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if cache.ints[domain.KeyDayIndex] != 0 {
		t.Fatalf("ожидали слот 0, получили %d", cache.ints[domain.KeyDayIndex])
	}
	raw, ok := cache.hashes[domain.KeyChallengeInfo]["7"]
	if !ok {
		t.Fatalf("ожидали карточку челленджа 7")
	}
	summary, err := domain.ParseChallengeSummary(raw)
	if err != nil {
		t.Fatalf("карточка не разбирается: %v", err)
	}
	if summary.Category != 2 || !summary.IsPublic || summary.Duration != 10 {
		t.Fatalf("карточка искажена: %+v", summary)
	}
	if got := cache.hashes[domain.KeyContribution]["42"]; got != "0,0,10,0,0" {
		t.Fatalf("ожидали вклад 0,0,10,0,0, получили %q", got)
	}
	posts, _ := cache.ZRangeByScore(context.Background(), domain.KeyCategoryPosts(2), 0, 0)
	if len(posts) != 1 || posts[0] != 101 {
		t.Fatalf("ожидали пост 101 в индексе категории, получили %v", posts)
	}
	if got := cache.hashes[domain.KeyPostChallenge]["101"]; got != "7" {
		t.Fatalf("ожидали пару пост-челлендж 101->7, получили %q", got)
	}
	if list := cache.lists[domain.KeyChallengePosts(7)]; len(list) != 1 || list[0] != 101 {
		t.Fatalf("ожидали список постов челленджа [101], получили %v", list)
	}
	if _, ok := cache.sets[domain.KeyUserReacted(99)][101]; !ok {
		t.Fatalf("ожидали пост 101 в наборе реакций пользователя 99")
	}
	if score := cache.zsets[domain.KeyUserPreference(99)][7]; score != 1 {
		t.Fatalf("ожидали предпочтение 1, получили %f", score)
	}
	offsets := cache.hashes[domain.KeyOffsets]
	for source, want := range map[string]string{
		domain.SourceChallenges: "1",
		domain.SourceMembers:    "1",
		domain.SourcePosts:      "1",
		domain.SourceReactions:  "1",
	} {
		if offsets[source] != want {
			t.Fatalf("смещение %s: ожидали %s, получили %q", source, want, offsets[source])
		}
	}
}

func TestRunIdempotentWithoutNewRows(t *testing.T) {
	source := &stubSource{
		challenges: []domain.Challenge{{ID: 7, Category: 2, IsPublic: true, Duration: 10, CreatedTime: time.Now().UTC()}},
		members:    []domain.ChallengeMember{{ChallengeID: 7, UserID: 42}},
		posts:      []domain.Post{{ID: 101, UserID: 42, ChallengeID: 7, WrittenText: "день 1"}},
		reactions:  []domain.ReactionLog{{LogID: 1, PostID: 101, UserID: 99}},
	}
	cache := newMemCache()
	svc := newTestService(source, cache, 30)

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку первого прохода: %v", err)
	}
	before := cache.snapshot()

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку второго прохода: %v", err)
	}

	// Слот окна сдвигается каждым проходом, остальное меняться не должно.
	before.ints[domain.KeyDayIndex] = 1
	if !reflect.DeepEqual(before.ints, cache.ints) {
		t.Fatalf("строковые ключи изменились: %v != %v", before.ints, cache.ints)
	}
	if !reflect.DeepEqual(before.hashes, cache.hashes) {
		t.Fatalf("hash-таблицы изменились: %v != %v", before.hashes, cache.hashes)
	}
	if !reflect.DeepEqual(before.zsets, cache.zsets) {
		t.Fatalf("сортированные множества изменились: %v != %v", before.zsets, cache.zsets)
	}
	if !reflect.DeepEqual(before.sets, cache.sets) {
		t.Fatalf("наборы изменились: %v != %v", before.sets, cache.sets)
	}
	if !reflect.DeepEqual(before.lists, cache.lists) {
		t.Fatalf("списки изменились: %v != %v", before.lists, cache.lists)
	}
}

func TestRunSlidingWindowEviction(t *testing.T) {
	source := &stubSource{
		challenges: []domain.Challenge{{ID: 7, Category: 2, IsPublic: true, Duration: 100, CreatedTime: time.Now().UTC()}},
	}
	cache := newMemCache()
	svc := newTestService(source, cache, 3)

	// Один пост на проход, четыре прохода при окне в три слота.
	for i, postID := range []int64{101, 102, 103, 104} {
		source.posts = append(source.posts, domain.Post{ID: postID, UserID: 42, ChallengeID: 7, WrittenText: "запись"})
		if err := svc.Run(context.Background()); err != nil {
			t.Fatalf("проход %d: не ожидали ошибку: %v", i+1, err)
		}
	}

	got, _ := cache.ZRange(context.Background(), domain.KeyCategoryPosts(2))
	want := map[int64]struct{}{102: {}, 103: {}, 104: {}}
	if len(got) != len(want) {
		t.Fatalf("ожидали посты 102,103,104, получили %v", got)
	}
	for _, postID := range got {
		if _, ok := want[postID]; !ok {
			t.Fatalf("пост %d не должен оставаться в окне, индекс: %v", postID, got)
		}
	}
}

func TestRunRollbackOnFailure(t *testing.T) {
	source := &stubSource{
		challenges:   []domain.Challenge{{ID: 7, Category: 2, IsPublic: true, Duration: 10, CreatedTime: time.Now().UTC()}},
		members:      []domain.ChallengeMember{{ChallengeID: 7, UserID: 42}},
		posts:        []domain.Post{{ID: 101, UserID: 42, ChallengeID: 7, WrittenText: "день 1"}},
		reactionsErr: errors.New("обрыв соединения"),
	}
	cache := newMemCache()
	svc := newTestService(source, cache, 30)

	if err := svc.Run(context.Background()); err == nil {
		t.Fatalf("ожидали ошибку прохода")
	}

	if got := cache.ints[domain.KeyDayIndex]; got != -1 {
		t.Fatalf("слот окна должен вернуться к -1, получили %d", got)
	}
	if len(cache.hashes) != 0 {
		t.Fatalf("hash-таблицы должны быть удалены, остались %v", cache.hashes)
	}
	if len(cache.zsets) != 0 {
		t.Fatalf("сортированные множества должны быть удалены, остались %v", cache.zsets)
	}
	if len(cache.sets) != 0 {
		t.Fatalf("наборы должны быть удалены, остались %v", cache.sets)
	}
	if len(cache.lists) != 0 {
		t.Fatalf("списки должны быть удалены, остались %v", cache.lists)
	}
}

// offsetFailCache ломает сдвиг смещения одного источника.
type offsetFailCache struct {
	*memCache
	failSource string
}

func (c *offsetFailCache) HIncrBy(ctx context.Context, key, field string, delta int64) error {
	if key == domain.KeyOffsets && field == c.failSource {
		return errors.New("обрыв соединения")
	}
	return c.memCache.HIncrBy(ctx, key, field, delta)
}

func TestRunRollsBackWhenOffsetCommitFails(t *testing.T) {
	source := &stubSource{
		challenges: []domain.Challenge{{ID: 7, Category: 2, IsPublic: true, Duration: 10, CreatedTime: time.Now().UTC()}},
		members:    []domain.ChallengeMember{{ChallengeID: 7, UserID: 42}},
	}
	base := newMemCache()
	cache := &offsetFailCache{memCache: base, failSource: domain.SourceMembers}
	svc := NewService(source, cache, Config{
		WindowDays:    30,
		CategoryCount: 5,
		CancelWeight:  0.6,
		Location:      time.UTC,
	}, zerolog.Nop())

	if err := svc.Run(context.Background()); err == nil {
		t.Fatalf("ожидали ошибку сдвига смещений")
	}

	if got := base.ints[domain.KeyDayIndex]; got != -1 {
		t.Fatalf("слот окна должен вернуться к -1, получили %d", got)
	}
	if got, ok := base.hashes[domain.KeyContribution]; ok {
		t.Fatalf("вклад должен быть удалён при откате, остался %v", got)
	}
	if got, ok := base.hashes[domain.KeyOffsets][domain.SourceMembers]; ok {
		t.Fatalf("смещение участников не должно сдвигаться, получили %q", got)
	}
	for key := range base.hashes {
		if strings.HasPrefix(key, "sync:journal:") {
			t.Fatalf("журнал прохода должен быть удалён, остался %s", key)
		}
	}

	// Повторный проход после восстановления связи не должен засчитать
	// длительность челленджа дважды.
	cache.failSource = ""
	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку повторного прохода: %v", err)
	}
	if got := base.hashes[domain.KeyContribution]["42"]; got == "0,0,20,0,0" {
		t.Fatalf("вклад засчитан дважды: %q", got)
	}
	if got := base.hashes[domain.KeyOffsets][domain.SourceMembers]; got != "1" {
		t.Fatalf("ожидали смещение участников 1, получили %q", got)
	}
}

func TestRunEvictsCompletedChallenge(t *testing.T) {
	created := time.Now().UTC().AddDate(0, 0, -10)
	source := &stubSource{
		challenges: []domain.Challenge{{ID: 7, Category: 1, IsPublic: true, Duration: 10, CreatedTime: created}},
		posts:      []domain.Post{{ID: 101, UserID: 42, ChallengeID: 7, WrittenText: "финал"}},
	}
	cache := newMemCache()
	svc := newTestService(source, cache, 5)

	// Первый проход индексирует пост и ставит челлендж в очередь вытеснения
	// на слот 1 (длительность 10 дней, лаг W/5 = 1).
	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку первого прохода: %v", err)
	}
	if pending, _ := cache.ZRangeByScore(context.Background(), domain.KeyPendingCompletion, 1, 1); len(pending) != 1 || pending[0] != 7 {
		t.Fatalf("ожидали челлендж 7 в очереди вытеснения на слоте 1, получили %v", pending)
	}

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку второго прохода: %v", err)
	}

	if _, ok := cache.hashes[domain.KeyChallengeInfo]["7"]; ok {
		t.Fatalf("карточка завершённого челленджа должна быть удалена")
	}
	if posts, _ := cache.ZRange(context.Background(), domain.KeyCategoryPosts(1)); len(posts) != 0 {
		t.Fatalf("посты завершённого челленджа должны покинуть индекс, остались %v", posts)
	}
	if _, ok := cache.hashes[domain.KeyPostChallenge]["101"]; ok {
		t.Fatalf("пара пост-челлендж должна быть удалена")
	}
	if list := cache.lists[domain.KeyChallengePosts(7)]; len(list) != 0 {
		t.Fatalf("список постов челленджа должен быть удалён, остался %v", list)
	}
	if pending, _ := cache.ZRange(context.Background(), domain.KeyPendingCompletion); len(pending) != 0 {
		t.Fatalf("очередь вытеснения должна опустеть, осталась %v", pending)
	}
}

func TestRunSkipsMembershipOfUnknownChallenge(t *testing.T) {
	source := &stubSource{
		members: []domain.ChallengeMember{{ChallengeID: 999, UserID: 42}},
	}
	cache := newMemCache()
	svc := newTestService(source, cache, 30)

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("пропуск строки не должен быть ошибкой: %v", err)
	}
	if _, ok := cache.hashes[domain.KeyContribution]["42"]; ok {
		t.Fatalf("вклад не должен меняться для неизвестного челленджа")
	}
	if got := cache.hashes[domain.KeyOffsets][domain.SourceMembers]; got != "1" {
		t.Fatalf("пропущенная строка всё равно обработана, ожидали смещение 1, получили %q", got)
	}
}

func TestRunRestDayDecrementsContribution(t *testing.T) {
	source := &stubSource{
		challenges: []domain.Challenge{{ID: 7, Category: 0, IsPublic: true, Duration: 5, CreatedTime: time.Now().UTC()}},
		members:    []domain.ChallengeMember{{ChallengeID: 7, UserID: 42}},
		posts:      []domain.Post{{ID: 101, UserID: 42, ChallengeID: 7, WrittenText: domain.RestDayText}},
	}
	cache := newMemCache()
	svc := newTestService(source, cache, 30)

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if got := cache.hashes[domain.KeyContribution]["42"]; got != "4,0,0,0,0" {
		t.Fatalf("ожидали вклад 4,0,0,0,0, получили %q", got)
	}
	if posts, _ := cache.ZRange(context.Background(), domain.KeyCategoryPosts(0)); len(posts) != 0 {
		t.Fatalf("день перерыва не индексируется, получили %v", posts)
	}
}
