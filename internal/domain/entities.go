package domain

import "time"

// Challenge описывает строку таблицы challenge в реляционной БД.
type Challenge struct {
	ID          int64
	Category    int
	IsPublic    bool
	Duration    int
	CreatedTime time.Time
}

// ChallengeMember описывает участие пользователя в групповом челлендже.
type ChallengeMember struct {
	ChallengeID int64
	UserID      int64
}

// Post представляет запись пользователя в рамках челленджа.
type Post struct {
	ID          int64
	UserID      int64
	ChallengeID int64
	WrittenText string
	CreatedTime time.Time
}

// ReactionLog описывает строку журнала реакций user_reaction_log.
type ReactionLog struct {
	LogID       int64
	PostID      int64
	UserID      int64
	IsCancelled bool
}

// RestDayText — текст поста, которым пользователь отмечает день перерыва.
// Такие посты не индексируются и уменьшают вклад пользователя в категорию.
const RestDayText = "I have a break today."

// IsRestDay сообщает, является ли пост отметкой дня перерыва.
func (p Post) IsRestDay() bool {
	return p.WrittenText == RestDayText
}

// DoneBy возвращает расчётную дату завершения челленджа.
func (c Challenge) DoneBy() time.Time {
	return c.CreatedTime.AddDate(0, 0, c.Duration)
}
