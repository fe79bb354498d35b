package postgres

import (
	"context"
	"fmt"

	"github.com/eduforge/assessment-engine/internal/cache"
	"github.com/eduforge/assessment-engine/internal/models"
	"github.com/eduforge/assessment-engine/internal/repositories"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type TemplatePostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewTemplatePostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.TemplateRepository {
	return &TemplatePostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (t *TemplatePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return t.db
}

func (t *TemplatePostgreSQL) Create(ctx context.Context, tx *gorm.DB, template *models.AssessmentTemplate) error {
	db := t.getDB(tx)
	return db.WithContext(ctx).Create(template).Error
}

func (t *TemplatePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AssessmentTemplate, error) {
	db := t.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var template models.AssessmentTemplate

	err := t.cacheManager.Template.CacheOrExecute(ctx, cacheKey, &template, cache.TemplateCacheConfig.TTL, func() (interface{}, error) {
		var dbTemplate models.AssessmentTemplate
		if err := db.WithContext(ctx).First(&dbTemplate, id).Error; err != nil {
			return nil, err
		}
		return &dbTemplate, nil
	})
	if err != nil {
		return nil, err
	}

	return &template, nil
}

func (t *TemplatePostgreSQL) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.AssessmentTemplate, error) {
	db := t.getDB(tx)
	var template models.AssessmentTemplate
	if err := db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("template_questions.order_index ASC")
		}).
		Preload("Questions.Question").
		First(&template, id).Error; err != nil {
		return nil, err
	}
	return &template, nil
}

func (t *TemplatePostgreSQL) Update(ctx context.Context, tx *gorm.DB, template *models.AssessmentTemplate) error {
	db := t.getDB(tx)
	if err := db.WithContext(ctx).Save(template).Error; err != nil {
		return err
	}
	cache.InvalidateTemplateCache(ctx, t.cacheManager, template.ID)
	return nil
}

func (t *TemplatePostgreSQL) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.TemplateStatus) error {
	db := t.getDB(tx)
	if err := db.WithContext(ctx).
		Model(&models.AssessmentTemplate{}).
		Where("id = ?", id).
		Update("status", status).Error; err != nil {
		return err
	}
	cache.InvalidateTemplateCache(ctx, t.cacheManager, id)
	return nil
}

func (t *TemplatePostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.TemplateFilters) ([]*models.AssessmentTemplate, int64, error) {
	db := t.getDB(tx)
	var templates []*models.AssessmentTemplate
	var total int64

	query := db.WithContext(ctx).Model(&models.AssessmentTemplate{})
	query = t.helpers.ApplyTemplateFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = t.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&templates).Error; err != nil {
		return nil, 0, err
	}

	return templates, total, nil
}

func (t *TemplatePostgreSQL) GetQuestions(ctx context.Context, tx *gorm.DB, templateID uint) ([]*models.TemplateQuestion, error) {
	db := t.getDB(tx)
	var bindings []*models.TemplateQuestion
	if err := db.WithContext(ctx).
		Where("template_id = ?", templateID).
		Order("order_index ASC").
		Preload("Question").
		Find(&bindings).Error; err != nil {
		return nil, fmt.Errorf("failed to get template questions: %w", err)
	}
	return bindings, nil
}

func (t *TemplatePostgreSQL) GetQuestionBinding(ctx context.Context, tx *gorm.DB, templateID, questionID uint) (*models.TemplateQuestion, error) {
	db := t.getDB(tx)
	var binding models.TemplateQuestion
	if err := db.WithContext(ctx).
		Where("template_id = ? AND question_id = ?", templateID, questionID).
		Preload("Question").
		First(&binding).Error; err != nil {
		return nil, err
	}
	return &binding, nil
}

// ReplaceQuestions swaps the full binding set in one shot. Callers run it
// inside a transaction so a failed insert never leaves the template empty.
func (t *TemplatePostgreSQL) ReplaceQuestions(ctx context.Context, tx *gorm.DB, templateID uint, bindings []*models.TemplateQuestion) error {
	db := t.getDB(tx)
	if err := db.WithContext(ctx).
		Where("template_id = ?", templateID).
		Delete(&models.TemplateQuestion{}).Error; err != nil {
		return err
	}
	if len(bindings) == 0 {
		return nil
	}
	for _, b := range bindings {
		b.TemplateID = templateID
	}
	if err := db.WithContext(ctx).Create(&bindings).Error; err != nil {
		return err
	}
	cache.InvalidateTemplateCache(ctx, t.cacheManager, templateID)
	return nil
}

func (t *TemplatePostgreSQL) CountQuestions(ctx context.Context, tx *gorm.DB, templateID uint) (int64, error) {
	db := t.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.TemplateQuestion{}).
		Where("template_id = ?", templateID).
		Count(&count).Error
	return count, err
}

// HasNonDraftAttempts backs the structural edit lock: once any attempt
// exists beyond draft-time testing, scoring-relevant fields are frozen.
func (t *TemplatePostgreSQL) HasNonDraftAttempts(ctx context.Context, tx *gorm.DB, templateID uint) (bool, error) {
	db := t.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("template_id = ?", templateID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
