package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eduforge/assessment-engine/internal/models"
	"github.com/eduforge/assessment-engine/internal/repositories"
	"github.com/eduforge/assessment-engine/internal/validator"
	"gorm.io/gorm"
)

const (
	// defaultReviewSetSize bounds generated review sets.
	defaultReviewSetSize = 10
	maxReviewSetSize     = 20

	// recentActivityWindow scopes the "recent attempts" figure in user stats.
	recentActivityWindow = 7 * 24 * time.Hour
)

type statisticsService struct {
	db        *gorm.DB
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator

	attempts *attemptService
}

func NewStatisticsService(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator) StatisticsService {
	return &statisticsService{
		db:        db,
		repo:      repo,
		logger:    logger,
		validator: validator,
		attempts: &attemptService{
			repo:      repo,
			db:        db,
			logger:    logger,
			validator: validator,
		},
	}
}

// ===== TEMPLATE STATISTICS =====

func (s *statisticsService) GetTemplateStats(ctx context.Context, templateID uint, userID string) (*TemplateStatsResponse, error) {
	template, err := s.repo.Template().GetByID(ctx, nil, templateID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if err := s.attempts.requireTemplateAccess(ctx, templateID, userID, "view statistics"); err != nil {
		return nil, err
	}

	stats, err := s.repo.Statistics().GetTemplateStats(ctx, nil, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate template stats: %w", err)
	}

	wrongRates, err := s.repo.Statistics().GetQuestionWrongRates(ctx, nil, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate question wrong rates: %w", err)
	}

	return &TemplateStatsResponse{
		TemplateID: template.ID,
		Title:      template.Title,
		Stats:      stats,
		Questions:  wrongRates,
	}, nil
}

// ===== USER STATISTICS =====

func (s *statisticsService) GetUserStats(ctx context.Context, userID, requesterID string) (*UserStatsResponse, error) {
	if userID != requesterID {
		allowed, err := s.attempts.canViewOthers(ctx, requesterID)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, NewPermissionError(requesterID, 0, "user_stats", "view", "can only view own statistics")
		}
	}

	stats, err := s.repo.Statistics().GetUserStats(ctx, nil, userID, recentActivityWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate user stats: %w", err)
	}

	return &UserStatsResponse{
		UserID: userID,
		Stats:  stats,
	}, nil
}

func (s *statisticsService) GetWrongQuestions(ctx context.Context, userID string, filters repositories.WrongQuestionFilters) (*WrongQuestionListResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	}
	if filters.Limit > 100 {
		filters.Limit = 100
	}

	entries, total, err := s.repo.Statistics().GetWrongQuestions(ctx, nil, userID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list wrong questions: %w", err)
	}

	return &WrongQuestionListResponse{
		Questions: entries,
		Total:     total,
		Page:      filters.Offset/filters.Limit + 1,
		Size:      filters.Limit,
	}, nil
}

// ===== REVIEW SET GENERATION =====

// GenerateReviewSet builds a personalized practice set: half of it comes
// from the user's most-missed questions, the rest from questions the user
// has never answered.
func (s *statisticsService) GenerateReviewSet(ctx context.Context, userID string, req *ReviewSetRequest) (*ReviewSetResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	count := req.Count
	if count <= 0 {
		count = defaultReviewSetSize
	}
	if count > maxReviewSetSize {
		count = maxReviewSetSize
	}

	s.logger.Info("Generating review set",
		"user_id", userID,
		"count", count)

	wrongEntries, _, err := s.repo.Statistics().GetWrongQuestions(ctx, nil, userID, repositories.WrongQuestionFilters{
		CourseID:   req.CourseID,
		Type:       req.Type,
		Difficulty: req.Difficulty,
		Limit:      count / 2,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect wrong questions: %w", err)
	}

	wrongIDs := make([]uint, 0, len(wrongEntries))
	for _, entry := range wrongEntries {
		wrongIDs = append(wrongIDs, entry.QuestionID)
	}

	wrongQuestions, err := s.repo.Question().GetByIDs(ctx, nil, wrongIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load wrong questions: %w", err)
	}

	// Unseen questions fill the remainder. Exclude everything the user has
	// already answered plus the wrong picks themselves.
	answeredIDs, err := s.repo.Statistics().GetAnsweredQuestionIDs(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get answered question ids: %w", err)
	}

	excludeIDs := append(answeredIDs, wrongIDs...)
	fresh, err := s.repo.Question().GetRandom(ctx, nil, repositories.RandomQuestionFilters{
		CourseID:   req.CourseID,
		Type:       req.Type,
		Difficulty: req.Difficulty,
		ExcludeIDs: excludeIDs,
		Count:      count - len(wrongQuestions),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pick fresh questions: %w", err)
	}

	questions := make([]*models.Question, 0, len(wrongQuestions)+len(fresh))
	for _, q := range wrongQuestions {
		questions = append(questions, q.Sanitized())
	}
	for _, q := range fresh {
		questions = append(questions, q.Sanitized())
	}

	return &ReviewSetResponse{
		Questions:  questions,
		WrongCount: len(wrongQuestions),
		NewCount:   len(fresh),
	}, nil
}
