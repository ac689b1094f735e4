package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Mill89757/Stay-Mobile-Backend/internal/domain"
	"github.com/Mill89757/Stay-Mobile-Backend/internal/infra/metrics"
)

// Postgres реализует источники данных синхронизации на основе pgxpool.
// Все запросы только читают: подсистема рекомендаций ничего не пишет в БД.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.SyncSource = (*Postgres)(nil)
var _ domain.PopularitySource = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 30*time.Second)
}

// ListChallenges возвращает челленджи начиная с указанного смещения.
func (p *Postgres) ListChallenges(ctx context.Context, offset int64) ([]domain.Challenge, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, COALESCE(category, '0')::int, COALESCE(is_public, false), COALESCE(duration, 0), created_time
FROM challenge
ORDER BY id
OFFSET $1
`, offset)
	metrics.ObserveNetworkRequest("postgres", "challenges_list", "challenge", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка челленджей: %w", err)
	}
	defer rows.Close()

	var out []domain.Challenge
	for rows.Next() {
		var c domain.Challenge
		if err := rows.Scan(&c.ID, &c.Category, &c.IsPublic, &c.Duration, &c.CreatedTime); err != nil {
			return nil, fmt.Errorf("чтение челленджа: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход челленджей: %w", err)
	}
	return out, nil
}

// ListMembers возвращает участия в групповых челленджах начиная со смещения.
func (p *Postgres) ListMembers(ctx context.Context, offset int64) ([]domain.ChallengeMember, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT challenge_id, user_id
FROM groupchallengemembers
ORDER BY challenge_id, user_id
OFFSET $1
`, offset)
	metrics.ObserveNetworkRequest("postgres", "members_list", "groupchallengemembers", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка участников: %w", err)
	}
	defer rows.Close()

	var out []domain.ChallengeMember
	for rows.Next() {
		var m domain.ChallengeMember
		if err := rows.Scan(&m.ChallengeID, &m.UserID); err != nil {
			return nil, fmt.Errorf("чтение участника: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход участников: %w", err)
	}
	return out, nil
}

// ListPosts возвращает посты начиная с указанного смещения.
func (p *Postgres) ListPosts(ctx context.Context, offset int64) ([]domain.Post, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, challenge_id, COALESCE(written_text, ''), created_time
FROM post
ORDER BY id
OFFSET $1
`, offset)
	metrics.ObserveNetworkRequest("postgres", "posts_list", "post", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка постов: %w", err)
	}
	defer rows.Close()

	var out []domain.Post
	for rows.Next() {
		var post domain.Post
		if err := rows.Scan(&post.ID, &post.UserID, &post.ChallengeID, &post.WrittenText, &post.CreatedTime); err != nil {
			return nil, fmt.Errorf("чтение поста: %w", err)
		}
		out = append(out, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход постов: %w", err)
	}
	return out, nil
}

// ListReactions возвращает записи журнала реакций начиная со смещения.
func (p *Postgres) ListReactions(ctx context.Context, offset int64) ([]domain.ReactionLog, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT log_id, post_id, user_id, is_cancelled
FROM user_reaction_log
ORDER BY log_id
OFFSET $1
`, offset)
	metrics.ObserveNetworkRequest("postgres", "reactions_list", "user_reaction_log", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка реакций: %w", err)
	}
	defer rows.Close()

	var out []domain.ReactionLog
	for rows.Next() {
		var r domain.ReactionLog
		if err := rows.Scan(&r.LogID, &r.PostID, &r.UserID, &r.IsCancelled); err != nil {
			return nil, fmt.Errorf("чтение реакции: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход реакций: %w", err)
	}
	return out, nil
}

// TopPostsByReactions возвращает посты по убыванию суммарного числа реакций.
func (p *Postgres) TopPostsByReactions(ctx context.Context, limit int) ([]int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT post_id, SUM(count) AS total_count
FROM post_reaction
GROUP BY post_id
ORDER BY total_count DESC
LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("postgres", "popular_posts", "post_reaction", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка популярных постов: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var postID int64
		var total int64
		if err := rows.Scan(&postID, &total); err != nil {
			return nil, fmt.Errorf("чтение популярного поста: %w", err)
		}
		out = append(out, postID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход популярных постов: %w", err)
	}
	return out, nil
}
