package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/eduforge/assessment-engine/internal/cache"
	"github.com/eduforge/assessment-engine/internal/models"
	"github.com/eduforge/assessment-engine/internal/repositories"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type StatisticsPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewStatisticsPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.StatisticsRepository {
	return &StatisticsPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (s *StatisticsPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// GetTemplateStats aggregates one template's attempts. Terminal statuses
// other than expired/abandoned count as completed for the completion rate.
func (s *StatisticsPostgreSQL) GetTemplateStats(ctx context.Context, tx *gorm.DB, templateID uint) (*repositories.TemplateStats, error) {
	db := s.getDB(tx)
	cacheKey := fmt.Sprintf("template:%d:stats", templateID)
	var stats repositories.TemplateStats

	err := s.cacheManager.Stats.CacheOrExecute(ctx, cacheKey, &stats, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		var dbStats repositories.TemplateStats
		err := db.WithContext(ctx).
			Model(&models.Attempt{}).
			Where("template_id = ?", templateID).
			Select(`
				COUNT(*) AS total_attempts,
				COUNT(*) FILTER (WHERE status IN ('completed', 'submitted', 'graded')) AS completed_attempts,
				COUNT(DISTINCT user_id) AS participants,
				COALESCE(AVG(CASE WHEN status IN ('completed', 'submitted', 'graded') AND total_questions > 0
					THEN correct_answers * 100.0 / total_questions END), 0) AS average_accuracy,
				COALESCE(AVG(CASE WHEN status IN ('completed', 'submitted', 'graded')
					THEN total_score END), 0) AS average_score,
				COALESCE(MAX(CASE WHEN status IN ('completed', 'submitted', 'graded')
					THEN total_score END), 0) AS max_score,
				COALESCE(MIN(CASE WHEN status IN ('completed', 'submitted', 'graded')
					THEN total_score END), 0) AS min_score,
				COALESCE(AVG(CASE WHEN status IN ('completed', 'submitted', 'graded') AND passed THEN 100.0
					WHEN status IN ('completed', 'submitted', 'graded') THEN 0.0 END), 0) AS pass_rate,
				COALESCE(AVG(CASE WHEN status IN ('completed', 'submitted', 'graded')
					THEN EXTRACT(EPOCH FROM COALESCE(completed_at, submitted_at) - started_at) - total_paused_seconds
					END), 0) AS average_time_spent`).
			Scan(&dbStats).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get template stats: %w", err)
		}

		if dbStats.TotalAttempts > 0 {
			dbStats.CompletionRate = round2(float64(dbStats.CompletedAttempts) * 100 / float64(dbStats.TotalAttempts))
		}
		dbStats.AverageAccuracy = round2(dbStats.AverageAccuracy)
		dbStats.AverageScore = round2(dbStats.AverageScore)
		dbStats.PassRate = round2(dbStats.PassRate)
		return &dbStats, nil
	})
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

// GetQuestionWrongRates groups graded answers per question for one
// template. Skipped sentinels are excluded from both counts.
func (s *StatisticsPostgreSQL) GetQuestionWrongRates(ctx context.Context, tx *gorm.DB, templateID uint) ([]*repositories.QuestionWrongRate, error) {
	db := s.getDB(tx)
	var rates []*repositories.QuestionWrongRate

	err := db.WithContext(ctx).
		Model(&models.Answer{}).
		Joins("JOIN attempts ON attempts.id = answers.attempt_id").
		Joins("JOIN questions ON questions.id = answers.question_id").
		Where("attempts.template_id = ? AND answers.is_correct IS NOT NULL AND answers.content <> ?",
			templateID, models.SkippedSentinel).
		Group("answers.question_id, questions.title, questions.type").
		Select(`
			answers.question_id AS question_id,
			questions.title AS title,
			questions.type AS type,
			COUNT(*) AS total_answers,
			COUNT(*) FILTER (WHERE NOT answers.is_correct) AS wrong_answers`).
		Order("wrong_answers DESC").
		Scan(&rates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get question wrong rates: %w", err)
	}

	for _, r := range rates {
		if r.TotalAnswers > 0 {
			r.WrongRate = round2(float64(r.WrongAnswers) * 100 / float64(r.TotalAnswers))
		}
	}
	return rates, nil
}

func (s *StatisticsPostgreSQL) GetUserStats(ctx context.Context, tx *gorm.DB, userID string, recentWindow time.Duration) (*repositories.UserStats, error) {
	db := s.getDB(tx)
	cacheKey := fmt.Sprintf("user:%s:stats", userID)
	var stats repositories.UserStats

	since := time.Now().Add(-recentWindow)
	err := s.cacheManager.Stats.CacheOrExecute(ctx, cacheKey, &stats, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		var dbStats repositories.UserStats
		err := db.WithContext(ctx).
			Model(&models.Attempt{}).
			Where("user_id = ?", userID).
			Select(`
				COUNT(*) AS total_attempts,
				COUNT(*) FILTER (WHERE status IN ('completed', 'submitted', 'graded')) AS completed_attempts,
				COALESCE(AVG(CASE WHEN status IN ('completed', 'submitted', 'graded') AND total_questions > 0
					THEN correct_answers * 100.0 / total_questions END), 0) AS average_accuracy,
				COALESCE(AVG(CASE WHEN status IN ('completed', 'submitted', 'graded')
					THEN EXTRACT(EPOCH FROM COALESCE(completed_at, submitted_at) - started_at) - total_paused_seconds
					END), 0) AS average_time_spent,
				COUNT(*) FILTER (WHERE last_activity_at >= ?) AS recent_attempts,
				MAX(last_activity_at) AS last_activity_at`, since).
			Scan(&dbStats).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get user stats: %w", err)
		}

		if dbStats.TotalAttempts > 0 {
			dbStats.CompletionRate = round2(float64(dbStats.CompletedAttempts) * 100 / float64(dbStats.TotalAttempts))
		}
		dbStats.AverageAccuracy = round2(dbStats.AverageAccuracy)
		return &dbStats, nil
	})
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

// GetWrongQuestions builds the user's wrong-question collection: every
// question answered incorrectly, deduplicated, ordered by miss frequency
// then recency so review generation samples the worst misses first.
func (s *StatisticsPostgreSQL) GetWrongQuestions(ctx context.Context, tx *gorm.DB, userID string, filters repositories.WrongQuestionFilters) ([]*repositories.WrongQuestionEntry, int64, error) {
	db := s.getDB(tx)

	base := db.WithContext(ctx).
		Model(&models.Answer{}).
		Joins("JOIN attempts ON attempts.id = answers.attempt_id").
		Joins("JOIN questions ON questions.id = answers.question_id").
		Where("attempts.user_id = ? AND answers.is_correct = ?", userID, false)

	if filters.CourseID != nil {
		base = base.Joins("JOIN assessment_templates at ON at.id = attempts.template_id").
			Where("at.course_id = ?", *filters.CourseID)
	}
	if filters.Type != nil {
		base = base.Where("questions.type = ?", *filters.Type)
	}
	if filters.Difficulty != nil {
		base = base.Where("questions.difficulty = ?", *filters.Difficulty)
	}
	if filters.Since != nil {
		base = base.Where("answers.submitted_at >= ?", *filters.Since)
	}

	query := base.
		Group("answers.question_id, questions.title, questions.type, questions.difficulty").
		Select(`
			answers.question_id AS question_id,
			questions.title AS title,
			questions.type AS type,
			questions.difficulty AS difficulty,
			COUNT(*) AS miss_count,
			MAX(answers.submitted_at) AS last_missed_at`).
		Order("miss_count DESC, last_missed_at DESC")

	var total int64
	countQuery := db.WithContext(ctx).Table("(?) AS wrong", query)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count wrong questions: %w", err)
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var entries []*repositories.WrongQuestionEntry
	if err := query.Scan(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to get wrong questions: %w", err)
	}

	return entries, total, nil
}

func (s *StatisticsPostgreSQL) GetAnsweredQuestionIDs(ctx context.Context, tx *gorm.DB, userID string) ([]uint, error) {
	db := s.getDB(tx)
	var ids []uint
	if err := db.WithContext(ctx).
		Model(&models.Answer{}).
		Joins("JOIN attempts ON attempts.id = answers.attempt_id").
		Where("attempts.user_id = ?", userID).
		Distinct("answers.question_id").
		Pluck("answers.question_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to get answered question ids: %w", err)
	}
	return ids, nil
}

func (s *StatisticsPostgreSQL) GetAttemptRoster(ctx context.Context, tx *gorm.DB, templateID uint) ([]*repositories.AttemptRosterRow, error) {
	db := s.getDB(tx)
	var rows []*repositories.AttemptRosterRow

	err := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Joins("LEFT JOIN users ON users.id = attempts.user_id").
		Where("attempts.template_id = ?", templateID).
		Select(`
			attempts.id AS attempt_id,
			attempts.user_id AS user_id,
			COALESCE(users.full_name, attempts.user_id) AS user_name,
			attempts.status AS status,
			attempts.attempt_number AS attempt_number,
			attempts.auto_score AS auto_score,
			attempts.manual_score AS manual_score,
			attempts.total_score AS total_score,
			attempts.percentage AS percentage,
			attempts.passed AS passed,
			attempts.started_at AS started_at,
			COALESCE(attempts.completed_at, attempts.submitted_at) AS finished_at,
			GREATEST(COALESCE(EXTRACT(EPOCH FROM COALESCE(attempts.completed_at, attempts.submitted_at) - attempts.started_at), 0) - attempts.total_paused_seconds, 0) AS time_spent`).
		Order("attempts.started_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt roster: %w", err)
	}

	return rows, nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
