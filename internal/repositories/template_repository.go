package repositories

import (
	"context"

	"github.com/eduforge/assessment-engine/internal/models"
	"gorm.io/gorm"
)

// TemplateRepository reads assessment templates and applies the few status
// transitions this engine owns. Structural CRUD happens in another service;
// the engine only enforces the edit lock once non-draft attempts exist.
type TemplateRepository interface {
	Create(ctx context.Context, tx *gorm.DB, template *models.AssessmentTemplate) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AssessmentTemplate, error)
	GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.AssessmentTemplate, error)
	Update(ctx context.Context, tx *gorm.DB, template *models.AssessmentTemplate) error
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.TemplateStatus) error
	List(ctx context.Context, tx *gorm.DB, filters TemplateFilters) ([]*models.AssessmentTemplate, int64, error)

	// Question bindings, always in template order.
	ReplaceQuestions(ctx context.Context, tx *gorm.DB, templateID uint, bindings []*models.TemplateQuestion) error
	GetQuestions(ctx context.Context, tx *gorm.DB, templateID uint) ([]*models.TemplateQuestion, error)
	GetQuestionBinding(ctx context.Context, tx *gorm.DB, templateID, questionID uint) (*models.TemplateQuestion, error)
	CountQuestions(ctx context.Context, tx *gorm.DB, templateID uint) (int64, error)

	// Edit-lock checks.
	HasNonDraftAttempts(ctx context.Context, tx *gorm.DB, templateID uint) (bool, error)
}

// QuestionRepository provides read-only access to the question bank.
type QuestionRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error)
	GetByTemplate(ctx context.Context, tx *gorm.DB, templateID uint) ([]*models.Question, error)
	GetRandom(ctx context.Context, tx *gorm.DB, filters RandomQuestionFilters) ([]*models.Question, error)
	ExistsByID(ctx context.Context, tx *gorm.DB, id uint) (bool, error)
}
