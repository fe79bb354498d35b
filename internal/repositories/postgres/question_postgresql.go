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

type QuestionPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuestionPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.QuestionRepository {
	return &QuestionPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (q *QuestionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

func (q *QuestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	db := q.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var question models.Question

	err := q.cacheManager.Question.CacheOrExecute(ctx, cacheKey, &question, cache.QuestionCacheConfig.TTL, func() (interface{}, error) {
		var dbQuestion models.Question
		if err := db.WithContext(ctx).First(&dbQuestion, id).Error; err != nil {
			return nil, err
		}
		return &dbQuestion, nil
	})
	if err != nil {
		return nil, err
	}

	return &question, nil
}

func (q *QuestionPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db := q.getDB(tx)
	var questions []*models.Question
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to get questions by ids: %w", err)
	}
	return questions, nil
}

func (q *QuestionPostgreSQL) GetByTemplate(ctx context.Context, tx *gorm.DB, templateID uint) ([]*models.Question, error) {
	db := q.getDB(tx)
	var questions []*models.Question
	if err := db.WithContext(ctx).
		Joins("JOIN template_questions tq ON tq.question_id = questions.id").
		Where("tq.template_id = ?", templateID).
		Order("tq.order_index ASC").
		Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to get questions by template: %w", err)
	}
	return questions, nil
}

// GetRandom selects filler questions for review sets. Ordering is delegated
// to the database; the caller supplies exclusions for already-seen and
// already-picked questions.
func (q *QuestionPostgreSQL) GetRandom(ctx context.Context, tx *gorm.DB, filters repositories.RandomQuestionFilters) ([]*models.Question, error) {
	db := q.getDB(tx)
	query := db.WithContext(ctx).Model(&models.Question{}).Where("is_active = ?", true)

	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}
	if filters.Difficulty != nil {
		query = query.Where("difficulty = ?", *filters.Difficulty)
	}
	if filters.CourseID != nil {
		query = query.Where(
			"id IN (SELECT tq.question_id FROM template_questions tq JOIN assessment_templates at ON at.id = tq.template_id WHERE at.course_id = ?)",
			*filters.CourseID)
	}
	if len(filters.ExcludeIDs) > 0 {
		query = query.Where("id NOT IN ?", filters.ExcludeIDs)
	}

	count := filters.Count
	if count <= 0 {
		count = 10
	}

	var questions []*models.Question
	if err := query.Order("RANDOM()").Limit(count).Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to get random questions: %w", err)
	}
	return questions, nil
}

func (q *QuestionPostgreSQL) ExistsByID(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	db := q.getDB(tx)
	cacheKey := fmt.Sprintf("question:%d", id)

	var exists bool
	err := q.cacheManager.Exists.CacheOrExecute(ctx, cacheKey, &exists, cache.ExistsCacheConfig.TTL, func() (interface{}, error) {
		var count int64
		if err := db.WithContext(ctx).
			Model(&models.Question{}).
			Where("id = ?", id).
			Count(&count).Error; err != nil {
			return nil, err
		}
		return count > 0, nil
	})
	if err != nil {
		return false, err
	}

	return exists, nil
}
