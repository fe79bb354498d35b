package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eduforge/assessment-engine/internal/events"
	"github.com/eduforge/assessment-engine/internal/models"
	"github.com/eduforge/assessment-engine/internal/repositories"
	"github.com/eduforge/assessment-engine/internal/validator"
	"gorm.io/gorm"
)

type gradingService struct {
	db        *gorm.DB
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	events    events.EventPublisher

	// shares ownership and expiry helpers with the attempt lifecycle
	attempts *attemptService
}

func NewGradingService(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher) GradingService {
	return &gradingService{
		db:        db,
		repo:      repo,
		logger:    logger,
		validator: validator,
		events:    publisher,
		attempts: &attemptService{
			repo:      repo,
			db:        db,
			logger:    logger,
			validator: validator,
			events:    publisher,
		},
	}
}

// ===== ANSWER SUBMISSION =====

// SubmitAnswer records one answer, auto-grades it when the type allows,
// and echoes feedback honoring the template's show-results setting.
func (s *gradingService) SubmitAnswer(ctx context.Context, attemptID uint, req *SubmitAnswerRequest, userID string) (*AnswerFeedback, error) {
	s.logger.Info("Submitting answer",
		"attempt_id", attemptID,
		"question_id", req.QuestionID,
		"user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	attempt, err := s.attempts.getOwnedAttempt(ctx, attemptID, userID, "answer")
	if err != nil {
		return nil, err
	}

	// Paused practice attempts still accept answers; only terminal
	// attempts refuse them.
	if !attempt.Status.IsActive() {
		if attempt.Status.IsTerminal() {
			return nil, ErrAttemptAlreadySubmitted
		}
		return nil, ErrAttemptNotActive
	}

	now := time.Now()
	if err := s.attempts.ensureNotExpired(ctx, attempt, now); err != nil {
		return nil, err
	}

	var answer *models.Answer
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		answer, err = persistGradedAnswer(ctx, txRepo, nil, attempt, req)
		if err != nil {
			return err
		}

		attempt.LastActivityAt = now
		if attempt.CurrentQuestionIndex < attempt.TotalQuestions-1 {
			attempt.CurrentQuestionIndex++
		}
		if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
			return fmt.Errorf("failed to touch attempt: %w", err)
		}
		return txRepo.Attempt().UpdateProgress(ctx, nil, attempt.ID)
	})
	if err != nil {
		return nil, err
	}

	return s.buildFeedback(ctx, attempt, answer)
}

// buildFeedback reveals the canonical answer only for wrong submissions
// on templates that show results.
func (s *gradingService) buildFeedback(ctx context.Context, attempt *models.Attempt, answer *models.Answer) (*AnswerFeedback, error) {
	feedback := &AnswerFeedback{
		QuestionID:   answer.QuestionID,
		IsCorrect:    answer.IsCorrect,
		Score:        answer.Score,
		MaxScore:     answer.MaxScore,
		NeedsGrading: !answer.IsAutoGraded,
	}

	settings := sessionSettings(attempt)
	if !settings.ShowResults {
		// Exams with hidden results get no verdict mid-attempt.
		feedback.IsCorrect = nil
		feedback.Score = 0
		return feedback, nil
	}

	if answer.IsCorrect != nil && !*answer.IsCorrect {
		question, err := s.repo.Question().GetByID(ctx, nil, answer.QuestionID)
		if err != nil {
			return nil, fmt.Errorf("failed to get question: %w", err)
		}
		feedback.CorrectAnswer = question.CorrectAnswer
		feedback.Explanation = question.Explanation
	}
	return feedback, nil
}

// ===== MANUAL GRADING =====

func (s *gradingService) GradeAnswer(ctx context.Context, answerID uint, req *GradeAnswerRequest, graderID string) (*GradingResult, error) {
	s.logger.Info("Manually grading answer",
		"answer_id", answerID,
		"score", req.Score,
		"grader_id", graderID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	answer, err := s.repo.Answer().GetByID(ctx, nil, answerID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAnswerNotFound
		}
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, nil, answer.AttemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if err := s.attempts.requireTemplateAccess(ctx, attempt.TemplateID, graderID, "grade"); err != nil {
		return nil, err
	}

	if !attempt.Status.IsTerminal() || attempt.Status == models.AttemptAbandoned {
		return nil, ErrGradingNotAllowed
	}
	if answer.IsAutoGraded {
		return nil, ErrAnswerAutoGraded
	}
	if answer.IsSkipped() {
		return nil, NewBusinessRuleError(ErrGradingNotAllowed, "skipped answers are not graded")
	}
	if req.Score < 0 || req.Score > answer.MaxScore {
		return nil, NewBusinessRuleError(ErrScoreOutOfRange, "score %.2f outside [0, %.2f]", req.Score, answer.MaxScore)
	}

	now := time.Now()
	answer.Score = req.Score
	answer.IsCorrect = boolPtr(req.Score >= answer.MaxScore)
	answer.GradedBy = &graderID
	answer.GradedAt = &now
	answer.GradingNotes = req.Notes

	var result *AttemptGradingResult
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Answer().Update(ctx, nil, answer); err != nil {
			return fmt.Errorf("failed to store grade: %w", err)
		}
		result, err = recalculateAttemptScore(ctx, txRepo, nil, attempt)
		if err != nil {
			return err
		}
		if result.IsFinal && attempt.Kind == models.KindExam && attempt.Status == models.AttemptSubmitted {
			attempt.Status = models.AttemptGraded
			attempt.GradedAt = &now
			attempt.GradedBy = &graderID
			if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
				return fmt.Errorf("failed to finalize attempt grade: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.IsFinal {
		s.attempts.publishAttemptEvent(ctx, events.EventAttemptGraded, attempt)
	}

	s.logger.Info("Answer graded",
		"answer_id", answerID,
		"score", req.Score,
		"attempt_final", result.IsFinal)

	grading := gradingResultFor(answer)
	return &grading, nil
}

// GradeAttempt finishes grading one attempt: every auto-gradeable answer
// gets its verdict refreshed and the totals are rebuilt.
func (s *gradingService) GradeAttempt(ctx context.Context, attemptID uint, graderID string) (*AttemptGradingResult, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if err := s.attempts.requireTemplateAccess(ctx, attempt.TemplateID, graderID, "grade"); err != nil {
		return nil, err
	}
	if !attempt.Status.IsTerminal() || attempt.Status == models.AttemptAbandoned {
		return nil, ErrGradingNotAllowed
	}

	result, err := s.autoGrade(ctx, attempt)
	if err != nil {
		return nil, err
	}

	if result.IsFinal && attempt.Kind == models.KindExam && attempt.Status == models.AttemptSubmitted {
		now := time.Now()
		attempt.Status = models.AttemptGraded
		attempt.GradedAt = &now
		attempt.GradedBy = &graderID
		if err := s.repo.Attempt().Update(ctx, nil, attempt); err != nil {
			return nil, fmt.Errorf("failed to finalize attempt grade: %w", err)
		}
		s.attempts.publishAttemptEvent(ctx, events.EventAttemptGraded, attempt)
	}

	return result, nil
}

func (s *gradingService) ListUngraded(ctx context.Context, templateID uint, filters repositories.AnswerFilters, userID string) ([]*models.Answer, int64, error) {
	if err := s.attempts.requireTemplateAccess(ctx, templateID, userID, "grade"); err != nil {
		return nil, 0, err
	}

	answers, total, err := s.repo.Answer().ListUngraded(ctx, nil, templateID, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list ungraded answers: %w", err)
	}
	return answers, total, nil
}

// ===== AUTO GRADING =====

func (s *gradingService) AutoGradeAttempt(ctx context.Context, attemptID uint) (*AttemptGradingResult, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return s.autoGrade(ctx, attempt)
}

// autoGrade re-applies deterministic grading rules to every answer that
// has one, then rebuilds the attempt totals.
func (s *gradingService) autoGrade(ctx context.Context, attempt *models.Attempt) (*AttemptGradingResult, error) {
	var result *AttemptGradingResult
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		answers, err := txRepo.Answer().GetByAttempt(ctx, nil, attempt.ID)
		if err != nil {
			return fmt.Errorf("failed to get answers: %w", err)
		}

		graded := make([]GradingResult, 0, len(answers))
		for _, answer := range answers {
			if answer.IsSkipped() {
				continue
			}

			question, err := txRepo.Question().GetByID(ctx, nil, answer.QuestionID)
			if err != nil {
				return fmt.Errorf("failed to get question %d: %w", answer.QuestionID, err)
			}

			if question.Type.IsAutoGradeable() {
				isCorrect, score, _ := gradeSubmission(question, answer.MaxScore, answer.Content)
				answer.IsCorrect = isCorrect
				answer.Score = score
				answer.IsAutoGraded = true
				if err := txRepo.Answer().Update(ctx, nil, answer); err != nil {
					return fmt.Errorf("failed to update answer %d: %w", answer.ID, err)
				}
			}
			graded = append(graded, gradingResultFor(answer))
		}

		result, err = recalculateAttemptScore(ctx, txRepo, nil, attempt)
		if err != nil {
			return err
		}
		result.Answers = graded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Attempt auto-graded",
		"attempt_id", attempt.ID,
		"auto_score", result.AutoScore,
		"is_final", result.IsFinal)
	return result, nil
}

func (s *gradingService) RecalculateScore(ctx context.Context, attemptID uint) (*AttemptGradingResult, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	var result *AttemptGradingResult
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		result, err = recalculateAttemptScore(ctx, txRepo, nil, attempt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ===== STATISTICS =====

func (s *gradingService) GetGradingOverview(ctx context.Context, templateID uint, userID string) (*repositories.GradingStats, error) {
	if err := s.attempts.requireTemplateAccess(ctx, templateID, userID, "grade"); err != nil {
		return nil, err
	}

	stats, err := s.repo.Answer().GetGradingStats(ctx, nil, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get grading stats: %w", err)
	}
	return stats, nil
}
