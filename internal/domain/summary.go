package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// doneByLayout — формат даты завершения в кэше.
const doneByLayout = "2006-01-02"

// ChallengeSummary — денормализованная карточка челленджа в кэше.
// Хранится как поле hash-таблицы on_clg_info в виде
// "category,is_public,duration,YYYY-MM-DD".
type ChallengeSummary struct {
	Category int
	IsPublic bool
	Duration int
	DoneBy   time.Time
}

// Encode сериализует карточку в строковый формат кэша.
func (s ChallengeSummary) Encode() string {
	public := 0
	if s.IsPublic {
		public = 1
	}
	return fmt.Sprintf("%d,%d,%d,%s", s.Category, public, s.Duration, s.DoneBy.Format(doneByLayout))
}

// ParseChallengeSummary разбирает строковое представление карточки.
func ParseChallengeSummary(raw string) (ChallengeSummary, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return ChallengeSummary{}, fmt.Errorf("карточка челленджа: ожидали 4 поля, получили %q", raw)
	}
	category, err := strconv.Atoi(parts[0])
	if err != nil {
		return ChallengeSummary{}, fmt.Errorf("категория челленджа: %w", err)
	}
	public, err := strconv.Atoi(parts[1])
	if err != nil {
		return ChallengeSummary{}, fmt.Errorf("признак публичности: %w", err)
	}
	duration, err := strconv.Atoi(parts[2])
	if err != nil {
		return ChallengeSummary{}, fmt.Errorf("длительность челленджа: %w", err)
	}
	doneBy, err := time.Parse(doneByLayout, parts[3])
	if err != nil {
		return ChallengeSummary{}, fmt.Errorf("дата завершения: %w", err)
	}
	return ChallengeSummary{Category: category, IsPublic: public != 0, Duration: duration, DoneBy: doneBy}, nil
}

// Contribution — вектор накопленного вклада пользователя по категориям.
// Хранится как поле hash-таблицы user_contribution в виде "a,b,c,d,e".
type Contribution []int64

// NewContribution возвращает нулевой вектор на указанное число категорий.
func NewContribution(categories int) Contribution {
	return make(Contribution, categories)
}

// Encode сериализует вектор в строковый формат кэша.
func (c Contribution) Encode() string {
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ",")
}

// ParseContribution разбирает вектор вклада; пустая строка даёт нулевой вектор.
func ParseContribution(raw string, categories int) (Contribution, error) {
	if raw == "" {
		return NewContribution(categories), nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) != categories {
		return nil, fmt.Errorf("вектор вклада: ожидали %d категорий, получили %q", categories, raw)
	}
	out := make(Contribution, categories)
	for i, part := range parts {
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("вектор вклада: %w", err)
		}
		out[i] = v
	}
	return out, nil
}
