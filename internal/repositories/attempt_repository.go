package repositories

import (
	"context"

	"github.com/eduforge/assessment-engine/internal/models"
	"gorm.io/gorm"
)

// AttemptRepository persists the attempt state machine. Create relies on
// the partial unique index over (user, template, active status); callers
// check IsDuplicateKeyError to detect the already-active case.
type AttemptRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error)
	Update(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// Active-attempt queries
	GetActiveAttempt(ctx context.Context, tx *gorm.DB, userID string, templateID uint) (*models.Attempt, error)
	HasActiveAttempt(ctx context.Context, tx *gorm.DB, userID string, templateID uint) (bool, error)

	// Attempt numbering
	CountByUserAndTemplate(ctx context.Context, tx *gorm.DB, userID string, templateID uint) (int64, error)
	GetNextAttemptNumber(ctx context.Context, tx *gorm.DB, userID string, templateID uint) (int, error)

	// Query operations
	List(ctx context.Context, tx *gorm.DB, filters AttemptFilters) ([]*models.Attempt, int64, error)
	GetByUser(ctx context.Context, tx *gorm.DB, userID string, filters AttemptFilters) ([]*models.Attempt, int64, error)
	GetByTemplate(ctx context.Context, tx *gorm.DB, templateID uint, filters AttemptFilters) ([]*models.Attempt, int64, error)

	// Counter updates after answer submission, scoped to one attempt.
	UpdateProgress(ctx context.Context, tx *gorm.DB, attemptID uint) error
}

// AnswerRepository persists per-question answers with upsert semantics:
// one row per (attempt, question), last write wins while the attempt is
// active.
type AnswerRepository interface {
	Upsert(ctx context.Context, tx *gorm.DB, answer *models.Answer) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Answer, error)
	GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.Answer, error)
	GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.Answer, error)
	HasAnswer(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (bool, error)
	Update(ctx context.Context, tx *gorm.DB, answer *models.Answer) error

	// Aggregates used to refresh attempt counters and scores.
	CountAnswered(ctx context.Context, tx *gorm.DB, attemptID uint) (int64, error)
	CountCorrect(ctx context.Context, tx *gorm.DB, attemptID uint) (int64, error)
	SumAutoScore(ctx context.Context, tx *gorm.DB, attemptID uint) (float64, error)
	SumManualScore(ctx context.Context, tx *gorm.DB, attemptID uint) (float64, error)
	HasUngraded(ctx context.Context, tx *gorm.DB, attemptID uint) (bool, error)

	// Grading queues
	ListUngraded(ctx context.Context, tx *gorm.DB, templateID uint, filters AnswerFilters) ([]*models.Answer, int64, error)
	GetGradingStats(ctx context.Context, tx *gorm.DB, templateID uint) (*GradingStats, error)
}
