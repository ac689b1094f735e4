package domain

import "fmt"

// Раскладка ключей кэша. Имена совпадают с теми, что уже живут в проде,
// поэтому менять их без миграции нельзя.
const (
	// KeyDayIndex — текущий слот скользящего окна.
	KeyDayIndex = "day_index"
	// KeyOffsets — hash со смещениями по таблицам-источникам.
	KeyOffsets = "db_len"
	// KeyChallengeInfo — hash с карточками активных челленджей.
	KeyChallengeInfo = "on_clg_info"
	// KeyContribution — hash с векторами вклада пользователей.
	KeyContribution = "user_contribution"
	// KeyPostChallenge — hash пост → челлендж.
	KeyPostChallenge = "post_clg_pair"
	// KeyPendingCompletion — zset челленджей, ожидающих вытеснения.
	KeyPendingCompletion = "completed_clg"
)

// Поля hash-таблицы db_len, по одному на таблицу-источник.
const (
	SourceChallenges = "clg"
	SourceMembers    = "mmbr"
	SourcePosts      = "post"
	SourceReactions  = "reaction"
)

// KeyCategoryPosts возвращает ключ zset недавних постов категории.
func KeyCategoryPosts(category int) string {
	return fmt.Sprintf("category%dpost", category)
}

// KeyChallengePosts возвращает ключ списка постов челленджа.
func KeyChallengePosts(challengeID int64) string {
	return fmt.Sprintf("clg%dposts", challengeID)
}

// KeyUserPreference возвращает ключ zset предпочтений пользователя.
func KeyUserPreference(userID int64) string {
	return fmt.Sprintf("%d_clgs_preference", userID)
}

// KeyUserReacted возвращает ключ набора постов, на которые пользователь
// уже отреагировал.
func KeyUserReacted(userID int64) string {
	return fmt.Sprintf("%d_reacted_post_pool", userID)
}
