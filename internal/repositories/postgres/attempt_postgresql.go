package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/eduforge/assessment-engine/internal/cache"
	"github.com/eduforge/assessment-engine/internal/models"
	"github.com/eduforge/assessment-engine/internal/repositories"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewAttemptPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

// Create inserts the attempt row. The partial unique index over
// (user_id, template_id) for active statuses makes this the atomic
// single-active-attempt check; a duplicate-key error here means another
// request won the race.
func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Create(attempt).Error; err != nil {
		return err
	}
	cache.InvalidateAttemptCache(ctx, a.cacheManager, attempt.ID, attempt.UserID, attempt.TemplateID)
	return nil
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error) {
	db := a.getDB(tx)
	var attempt models.Attempt
	if err := db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Save(attempt).Error; err != nil {
		return fmt.Errorf("failed to update attempt: %w", err)
	}
	cache.InvalidateAttemptCache(ctx, a.cacheManager, attempt.ID, attempt.UserID, attempt.TemplateID)
	return nil
}

// Delete removes an attempt and, through the FK cascade, its answers.
// Administrative cleanup only; lifecycle transitions never delete.
func (a *AttemptPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := a.getDB(tx)
	attempt, err := a.GetByID(ctx, tx, id)
	if err != nil {
		return err
	}

	if err := db.WithContext(ctx).
		Where("attempt_id = ?", id).
		Delete(&models.Answer{}).Error; err != nil {
		return fmt.Errorf("failed to delete attempt answers: %w", err)
	}
	if err := db.WithContext(ctx).Delete(&models.Attempt{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete attempt: %w", err)
	}

	cache.InvalidateAttemptCache(ctx, a.cacheManager, id, attempt.UserID, attempt.TemplateID)
	return nil
}

func (a *AttemptPostgreSQL) GetActiveAttempt(ctx context.Context, tx *gorm.DB, userID string, templateID uint) (*models.Attempt, error) {
	db := a.getDB(tx)
	var attempt models.Attempt
	if err := db.WithContext(ctx).
		Where("user_id = ? AND template_id = ? AND status IN ?",
			userID, templateID, []models.AttemptStatus{models.AttemptInProgress, models.AttemptPaused}).
		First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) HasActiveAttempt(ctx context.Context, tx *gorm.DB, userID string, templateID uint) (bool, error) {
	db := a.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("user_id = ? AND template_id = ? AND status IN ?",
			userID, templateID, []models.AttemptStatus{models.AttemptInProgress, models.AttemptPaused}).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (a *AttemptPostgreSQL) CountByUserAndTemplate(ctx context.Context, tx *gorm.DB, userID string, templateID uint) (int64, error) {
	db := a.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("user_id = ? AND template_id = ?", userID, templateID).
		Count(&count).Error
	return count, err
}

func (a *AttemptPostgreSQL) GetNextAttemptNumber(ctx context.Context, tx *gorm.DB, userID string, templateID uint) (int, error) {
	count, err := a.CountByUserAndTemplate(ctx, tx, userID, templateID)
	if err != nil {
		return 0, err
	}
	return int(count) + 1, nil
}

func (a *AttemptPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	db := a.getDB(tx)
	var attempts []*models.Attempt
	var total int64

	query := db.WithContext(ctx).Model(&models.Attempt{})
	query = a.helpers.ApplyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Preload("Template").Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (a *AttemptPostgreSQL) GetByUser(ctx context.Context, tx *gorm.DB, userID string, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	filters.UserID = &userID
	return a.List(ctx, tx, filters)
}

func (a *AttemptPostgreSQL) GetByTemplate(ctx context.Context, tx *gorm.DB, templateID uint, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	filters.TemplateID = &templateID
	return a.List(ctx, tx, filters)
}

// UpdateProgress refreshes the denormalized counters from the answers
// table in one statement. Skipped sentinels count as answered but never
// as correct.
func (a *AttemptPostgreSQL) UpdateProgress(ctx context.Context, tx *gorm.DB, attemptID uint) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Exec(`
		UPDATE attempts SET
			answered_questions = (SELECT COUNT(*) FROM answers WHERE attempt_id = ?),
			correct_answers    = (SELECT COUNT(*) FROM answers WHERE attempt_id = ? AND is_correct = TRUE),
			last_activity_at   = NOW(),
			updated_at         = NOW()
		WHERE id = ?`,
		attemptID, attemptID, attemptID).Error
}

// ===== ANSWER REPOSITORY IMPLEMENTATION =====

type AnswerPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewAnswerPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AnswerRepository {
	return &AnswerPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (ar *AnswerPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return ar.db
}

// Upsert writes the answer with last-write-wins semantics on the
// (attempt_id, question_id) unique index.
func (ar *AnswerPostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	db := ar.getDB(tx)
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"content", "answer_data", "is_correct", "score", "max_score",
			"is_auto_graded", "time_spent", "submitted_at", "updated_at",
		}),
	}).Create(answer).Error
	if err != nil {
		return fmt.Errorf("failed to upsert answer: %w", err)
	}

	ar.cacheManager.Fast.Delete(ctx,
		fmt.Sprintf("attempt:%d:answers", answer.AttemptID),
		fmt.Sprintf("attempt:%d:question:%d", answer.AttemptID, answer.QuestionID),
	)
	return nil
}

func (ar *AnswerPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Answer, error) {
	db := ar.getDB(tx)
	var answer models.Answer
	if err := db.WithContext(ctx).Preload("Question").First(&answer, id).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

func (ar *AnswerPostgreSQL) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.Answer, error) {
	db := ar.getDB(tx)
	var answers []*models.Answer
	if err := db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Preload("Question").
		Order("question_id ASC").
		Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("failed to get answers by attempt: %w", err)
	}
	return answers, nil
}

func (ar *AnswerPostgreSQL) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.Answer, error) {
	db := ar.getDB(tx)
	var answer models.Answer
	if err := db.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&answer).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

func (ar *AnswerPostgreSQL) HasAnswer(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (bool, error) {
	_, err := ar.GetByAttemptAndQuestion(ctx, tx, attemptID, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (ar *AnswerPostgreSQL) Update(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	db := ar.getDB(tx)
	if err := db.WithContext(ctx).Save(answer).Error; err != nil {
		return fmt.Errorf("failed to update answer: %w", err)
	}

	ar.cacheManager.Fast.Delete(ctx,
		fmt.Sprintf("attempt:%d:answers", answer.AttemptID),
		fmt.Sprintf("attempt:%d:question:%d", answer.AttemptID, answer.QuestionID),
	)
	return nil
}

func (ar *AnswerPostgreSQL) CountAnswered(ctx context.Context, tx *gorm.DB, attemptID uint) (int64, error) {
	db := ar.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.Answer{}).
		Where("attempt_id = ?", attemptID).
		Count(&count).Error
	return count, err
}

func (ar *AnswerPostgreSQL) CountCorrect(ctx context.Context, tx *gorm.DB, attemptID uint) (int64, error) {
	db := ar.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.Answer{}).
		Where("attempt_id = ? AND is_correct = ?", attemptID, true).
		Count(&count).Error
	return count, err
}

func (ar *AnswerPostgreSQL) SumAutoScore(ctx context.Context, tx *gorm.DB, attemptID uint) (float64, error) {
	db := ar.getDB(tx)
	var sum float64
	err := db.WithContext(ctx).
		Model(&models.Answer{}).
		Select("COALESCE(SUM(score), 0)").
		Where("attempt_id = ? AND is_auto_graded = ?", attemptID, true).
		Scan(&sum).Error
	return sum, err
}

func (ar *AnswerPostgreSQL) SumManualScore(ctx context.Context, tx *gorm.DB, attemptID uint) (float64, error) {
	db := ar.getDB(tx)
	var sum float64
	err := db.WithContext(ctx).
		Model(&models.Answer{}).
		Select("COALESCE(SUM(score), 0)").
		Where("attempt_id = ? AND is_auto_graded = ? AND graded_by IS NOT NULL", attemptID, false).
		Scan(&sum).Error
	return sum, err
}

// HasUngraded reports whether any non-skipped answer still lacks a
// correctness verdict.
func (ar *AnswerPostgreSQL) HasUngraded(ctx context.Context, tx *gorm.DB, attemptID uint) (bool, error) {
	db := ar.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.Answer{}).
		Where("attempt_id = ? AND is_correct IS NULL AND content <> ?", attemptID, models.SkippedSentinel).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (ar *AnswerPostgreSQL) ListUngraded(ctx context.Context, tx *gorm.DB, templateID uint, filters repositories.AnswerFilters) ([]*models.Answer, int64, error) {
	db := ar.getDB(tx)
	var answers []*models.Answer
	var total int64

	query := db.WithContext(ctx).
		Model(&models.Answer{}).
		Joins("JOIN attempts ON attempts.id = answers.attempt_id").
		Where("attempts.template_id = ? AND answers.is_correct IS NULL AND answers.content <> ?",
			templateID, models.SkippedSentinel)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Preload("Question").Order("answers.submitted_at ASC").Find(&answers).Error; err != nil {
		return nil, 0, err
	}

	return answers, total, nil
}

func (ar *AnswerPostgreSQL) GetGradingStats(ctx context.Context, tx *gorm.DB, templateID uint) (*repositories.GradingStats, error) {
	db := ar.getDB(tx)
	var stats repositories.GradingStats

	err := db.WithContext(ctx).
		Model(&models.Answer{}).
		Joins("JOIN attempts ON attempts.id = answers.attempt_id").
		Where("attempts.template_id = ?", templateID).
		Select(`
			COUNT(*) AS total_answers,
			COUNT(*) FILTER (WHERE answers.is_correct IS NOT NULL) AS graded_answers,
			COUNT(*) FILTER (WHERE answers.is_correct IS NULL AND answers.content <> 'SKIPPED') AS pending_answers,
			COUNT(*) FILTER (WHERE answers.is_auto_graded) AS auto_graded,
			COUNT(*) FILTER (WHERE NOT answers.is_auto_graded AND answers.graded_by IS NOT NULL) AS manual_graded,
			COALESCE(AVG(answers.score), 0) AS average_score`).
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get grading stats: %w", err)
	}

	return &stats, nil
}
