package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// StatisticsRepository runs the read-only batch aggregations. Nothing here
// mutates attempts or answers; read-committed staleness is acceptable.
type StatisticsRepository interface {
	// Per-template aggregates
	GetTemplateStats(ctx context.Context, tx *gorm.DB, templateID uint) (*TemplateStats, error)
	GetQuestionWrongRates(ctx context.Context, tx *gorm.DB, templateID uint) ([]*QuestionWrongRate, error)

	// Per-user aggregates
	GetUserStats(ctx context.Context, tx *gorm.DB, userID string, recentWindow time.Duration) (*UserStats, error)
	GetWrongQuestions(ctx context.Context, tx *gorm.DB, userID string, filters WrongQuestionFilters) ([]*WrongQuestionEntry, int64, error)
	GetAnsweredQuestionIDs(ctx context.Context, tx *gorm.DB, userID string) ([]uint, error)

	// Export support
	GetAttemptRoster(ctx context.Context, tx *gorm.DB, templateID uint) ([]*AttemptRosterRow, error)
}
