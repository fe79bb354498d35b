package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eduforge/assessment-engine/internal/events"
	"github.com/eduforge/assessment-engine/internal/models"
	"github.com/eduforge/assessment-engine/internal/repositories"
	"github.com/eduforge/assessment-engine/internal/validator"
	"gorm.io/gorm"
)

type attemptService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	events    events.EventPublisher
}

func NewAttemptService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher) AttemptService {
	return &attemptService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		events:    publisher,
	}
}

// ===== LIFECYCLE =====

func (s *attemptService) Start(ctx context.Context, req *StartAttemptRequest, userID string) (*AttemptResponse, error) {
	s.logger.Info("Starting attempt",
		"template_id", req.TemplateID,
		"user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	template, err := s.repo.Template().GetByIDWithQuestions(ctx, nil, req.TemplateID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	now := time.Now()
	if err := s.checkTemplateOpen(template, now); err != nil {
		return nil, err
	}

	if len(template.Questions) == 0 {
		return nil, ErrTemplateNoQuestions
	}

	// One active attempt per user and template. Clients resume the
	// existing session through GetCurrentAttempt, not by starting again.
	active, err := s.repo.Attempt().HasActiveAttempt(ctx, nil, userID, req.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active attempt: %w", err)
	}
	if active {
		return nil, ErrActiveAttemptExists
	}

	count, err := s.repo.Attempt().CountByUserAndTemplate(ctx, nil, userID, req.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	if template.MaxAttempts > 0 && int(count) >= template.MaxAttempts {
		return nil, ErrAttemptLimitExceeded
	}

	var attempt *models.Attempt
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		number, err := txRepo.Attempt().GetNextAttemptNumber(ctx, nil, userID, req.TemplateID)
		if err != nil {
			return fmt.Errorf("failed to get attempt number: %w", err)
		}

		order, err := buildQuestionOrder(template)
		if err != nil {
			return fmt.Errorf("failed to build question order: %w", err)
		}

		sessionData, err := encodeSessionData(template.SnapshotSettings())
		if err != nil {
			return fmt.Errorf("failed to snapshot settings: %w", err)
		}

		attempt = &models.Attempt{
			TemplateID:     req.TemplateID,
			UserID:         userID,
			Kind:           template.Kind,
			Status:         models.AttemptInProgress,
			AttemptNumber:  number,
			StartedAt:      now,
			LastActivityAt: now,
			TotalQuestions: len(template.Questions),
			QuestionOrder:  order,
			SessionData:    sessionData,
		}
		attempt.Deadline = computeDeadline(template, now)

		if err := txRepo.Attempt().Create(ctx, nil, attempt); err != nil {
			// The partial unique index rejects a second active attempt;
			// a duplicate key here means we lost a concurrent race.
			if repositories.IsDuplicateKeyError(err) {
				return ErrActiveAttemptExists
			}
			return fmt.Errorf("failed to create attempt: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrActiveAttemptExists) {
			return nil, ErrActiveAttemptExists
		}
		return nil, err
	}

	s.publishAttemptEvent(ctx, events.EventAttemptStarted, attempt)

	s.logger.Info("Attempt started",
		"attempt_id", attempt.ID,
		"template_id", req.TemplateID,
		"user_id", userID,
		"attempt_number", attempt.AttemptNumber)

	return s.GetByIDWithDetails(ctx, attempt.ID, userID)
}

func (s *attemptService) Pause(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, userID, "pause")
	if err != nil {
		return nil, err
	}

	if attempt.Kind != models.KindPractice {
		return nil, NewBusinessRuleError(ErrInvalidStateTransition, "exam attempts cannot be paused")
	}
	if attempt.Status != models.AttemptInProgress {
		return nil, ErrAttemptNotActive
	}

	now := time.Now()
	if err := s.ensureNotExpired(ctx, attempt, now); err != nil {
		return nil, err
	}

	attempt.Status = models.AttemptPaused
	attempt.PausedAt = &now
	attempt.LastActivityAt = now

	if err := s.repo.Attempt().Update(ctx, nil, attempt); err != nil {
		return nil, fmt.Errorf("failed to pause attempt: %w", err)
	}

	s.publishAttemptEvent(ctx, events.EventAttemptPaused, attempt)
	s.logger.Info("Attempt paused", "attempt_id", attemptID, "user_id", userID)

	return s.buildAttemptResponse(ctx, attempt, false)
}

func (s *attemptService) Resume(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, userID, "resume")
	if err != nil {
		return nil, err
	}

	if attempt.Status != models.AttemptPaused {
		return nil, ErrAttemptNotPaused
	}

	now := time.Now()
	if attempt.PausedAt != nil {
		attempt.TotalPausedSeconds += int(now.Sub(*attempt.PausedAt).Seconds())
	}
	attempt.PausedAt = nil
	attempt.Status = models.AttemptInProgress
	attempt.LastActivityAt = now

	if err := s.repo.Attempt().Update(ctx, nil, attempt); err != nil {
		return nil, fmt.Errorf("failed to resume attempt: %w", err)
	}

	// The paused stretch never counted against the time limit, but the
	// attempt may still have run out of active time before pausing.
	if err := s.ensureNotExpired(ctx, attempt, now); err != nil {
		return nil, err
	}

	s.publishAttemptEvent(ctx, events.EventAttemptResumed, attempt)
	s.logger.Info("Attempt resumed", "attempt_id", attemptID, "user_id", userID)

	return s.GetByIDWithDetails(ctx, attemptID, userID)
}

func (s *attemptService) Complete(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, userID, "complete")
	if err != nil {
		return nil, err
	}

	if attempt.Kind != models.KindPractice {
		return nil, NewBusinessRuleError(ErrInvalidStateTransition, "exam attempts are submitted, not completed")
	}
	if !attempt.Status.IsActive() {
		return nil, ErrAttemptNotActive
	}

	now := time.Now()
	if err := s.ensureNotExpired(ctx, attempt, now); err != nil {
		return nil, err
	}

	if attempt.Status == models.AttemptPaused && attempt.PausedAt != nil {
		attempt.TotalPausedSeconds += int(now.Sub(*attempt.PausedAt).Seconds())
		attempt.PausedAt = nil
	}

	attempt.Status = models.AttemptCompleted
	attempt.CompletedAt = &now
	attempt.LastActivityAt = now

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
			return fmt.Errorf("failed to complete attempt: %w", err)
		}
		if _, err := recalculateAttemptScore(ctx, txRepo, nil, attempt); err != nil {
			return fmt.Errorf("failed to score attempt: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishAttemptEvent(ctx, events.EventAttemptCompleted, attempt)
	s.logger.Info("Attempt completed",
		"attempt_id", attemptID,
		"user_id", userID,
		"total_score", attempt.TotalScore)

	return s.GetByIDWithDetails(ctx, attemptID, userID)
}

func (s *attemptService) Submit(ctx context.Context, attemptID uint, req *SubmitAttemptRequest, userID string) (*AttemptResponse, error) {
	if req == nil {
		req = &SubmitAttemptRequest{}
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	attempt, err := s.getOwnedAttempt(ctx, attemptID, userID, "submit")
	if err != nil {
		return nil, err
	}

	if attempt.Kind != models.KindExam {
		return nil, NewBusinessRuleError(ErrInvalidStateTransition, "practice attempts are completed, not submitted")
	}
	switch attempt.Status {
	case models.AttemptInProgress:
	case models.AttemptSubmitted, models.AttemptGraded:
		return nil, ErrAttemptAlreadySubmitted
	case models.AttemptExpired:
		return nil, ErrAttemptExpired
	default:
		return nil, ErrAttemptNotActive
	}

	now := time.Now()
	if attempt.DeadlinePassed(now) {
		// Too late: the attempt expires with its clock stopped at the
		// deadline, keeping whatever answers made it in on time.
		if err := s.expireAttempt(ctx, attempt); err != nil {
			return nil, err
		}
		return nil, ErrAttemptExpired
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		for _, answerReq := range req.Answers {
			if _, err := persistGradedAnswer(ctx, txRepo, nil, attempt, &answerReq); err != nil {
				return fmt.Errorf("failed to record answer for question %d: %w", answerReq.QuestionID, err)
			}
		}
		if err := txRepo.Attempt().UpdateProgress(ctx, nil, attempt.ID); err != nil {
			return fmt.Errorf("failed to refresh progress: %w", err)
		}

		attempt.Status = models.AttemptSubmitted
		attempt.SubmittedAt = &now
		attempt.LastActivityAt = now
		if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
			return fmt.Errorf("failed to submit attempt: %w", err)
		}

		result, err := recalculateAttemptScore(ctx, txRepo, nil, attempt)
		if err != nil {
			return fmt.Errorf("failed to score attempt: %w", err)
		}
		if result.IsFinal {
			attempt.Status = models.AttemptGraded
			attempt.GradedAt = &now
			if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
				return fmt.Errorf("failed to finalize grade: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishAttemptEvent(ctx, events.EventAttemptSubmitted, attempt)
	if attempt.Status == models.AttemptGraded {
		s.publishAttemptEvent(ctx, events.EventAttemptGraded, attempt)
	}

	s.logger.Info("Attempt submitted",
		"attempt_id", attemptID,
		"user_id", userID,
		"status", attempt.Status,
		"auto_score", attempt.AutoScore)

	return s.GetByIDWithDetails(ctx, attemptID, userID)
}

func (s *attemptService) Abandon(ctx context.Context, attemptID uint, userID string) error {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, userID, "abandon")
	if err != nil {
		return err
	}

	if attempt.Kind != models.KindPractice {
		return NewBusinessRuleError(ErrInvalidStateTransition, "exam attempts cannot be abandoned")
	}
	if !attempt.Status.IsActive() {
		return ErrAttemptNotActive
	}

	now := time.Now()
	attempt.Status = models.AttemptAbandoned
	attempt.CompletedAt = &now
	attempt.LastActivityAt = now
	attempt.PausedAt = nil

	if err := s.repo.Attempt().Update(ctx, nil, attempt); err != nil {
		return fmt.Errorf("failed to abandon attempt: %w", err)
	}

	s.logger.Info("Attempt abandoned", "attempt_id", attemptID, "user_id", userID)
	return nil
}

// ===== IN-ATTEMPT OPERATIONS =====

func (s *attemptService) SkipQuestion(ctx context.Context, attemptID, questionID uint, userID string) (*SkipResponse, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, userID, "skip")
	if err != nil {
		return nil, err
	}

	if attempt.Status != models.AttemptInProgress {
		return nil, ErrAttemptNotActive
	}
	if err := s.ensureNotExpired(ctx, attempt, time.Now()); err != nil {
		return nil, err
	}

	binding, err := s.questionBinding(ctx, attempt, questionID)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.Answer().HasAnswer(ctx, nil, attemptID, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check answer: %w", err)
	}
	if exists {
		return nil, ErrAlreadyAnswered
	}

	now := time.Now()
	answer := &models.Answer{
		AttemptID:   attemptID,
		QuestionID:  questionID,
		Content:     models.SkippedSentinel,
		MaxScore:    binding.Points,
		SubmittedAt: now,
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Answer().Upsert(ctx, nil, answer); err != nil {
			return fmt.Errorf("failed to record skip: %w", err)
		}

		// Advance but never past the last question.
		if attempt.CurrentQuestionIndex < attempt.TotalQuestions-1 {
			attempt.CurrentQuestionIndex++
		}
		attempt.LastActivityAt = now
		if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
			return fmt.Errorf("failed to advance attempt: %w", err)
		}
		return txRepo.Attempt().UpdateProgress(ctx, nil, attempt.ID)
	})
	if err != nil {
		return nil, err
	}

	refreshed, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload attempt: %w", err)
	}

	return &SkipResponse{
		QuestionID:           questionID,
		CurrentQuestionIndex: refreshed.CurrentQuestionIndex,
		AnsweredQuestions:    refreshed.AnsweredQuestions,
	}, nil
}

// questionHints maps question types to static guidance shown on request.
var questionHints = map[models.QuestionType]string{
	models.MultipleChoice: "Eliminate the options you know are wrong first, then compare what remains.",
	models.TrueFalse:      "Watch for absolute words like 'always' and 'never'; they often mark false statements.",
	models.FillBlank:      "Read the full sentence aloud and think about what word class fits the gap.",
	models.Essay:          "Outline two or three key points before writing, then support each with an example.",
	models.Listening:      "Play the audio once for gist, then again for the specific detail being asked.",
	models.Speaking:       "Structure your response: state your point, give a reason, then an example.",
}

func (s *attemptService) GetHint(ctx context.Context, attemptID, questionID uint, userID string) (*HintResponse, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, userID, "hint")
	if err != nil {
		return nil, err
	}

	if attempt.Status != models.AttemptInProgress {
		return nil, ErrAttemptNotActive
	}
	if err := s.ensureNotExpired(ctx, attempt, time.Now()); err != nil {
		return nil, err
	}

	if _, err := s.questionBinding(ctx, attempt, questionID); err != nil {
		return nil, err
	}

	answered, err := s.repo.Answer().HasAnswer(ctx, nil, attemptID, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check answer: %w", err)
	}
	if answered {
		return nil, ErrAlreadyAnswered
	}

	question, err := s.repo.Question().GetByID(ctx, nil, questionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	hint, ok := questionHints[question.Type]
	if !ok {
		hint = "Take your time and re-read the question carefully."
	}

	return &HintResponse{QuestionID: questionID, Hint: hint}, nil
}

func (s *attemptService) GetTimeRemaining(ctx context.Context, attemptID uint, userID string) (*TimeRemainingResponse, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, userID, "read")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if attempt.Status.IsActive() && s.isExpired(attempt, now) {
		if err := s.finalizeExpired(ctx, attempt); err != nil {
			return nil, err
		}
		return &TimeRemainingResponse{AttemptID: attemptID, TimeRemaining: intPtr(0), Expired: true}, nil
	}

	remaining := s.timeRemaining(attempt, now)
	return &TimeRemainingResponse{
		AttemptID:     attemptID,
		TimeRemaining: remaining,
		Expired:       !attempt.Status.IsActive() && attempt.Status == models.AttemptExpired,
	}, nil
}

// ===== READS =====

func (s *attemptService) GetByID(ctx context.Context, id uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.getViewableAttempt(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return s.buildAttemptResponse(ctx, attempt, false)
}

func (s *attemptService) GetByIDWithDetails(ctx context.Context, id uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.getViewableAttempt(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return s.buildAttemptResponse(ctx, attempt, true)
}

func (s *attemptService) GetCurrentAttempt(ctx context.Context, templateID uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.repo.Attempt().GetActiveAttempt(ctx, nil, userID, templateID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get active attempt: %w", err)
	}
	return s.buildAttemptResponse(ctx, attempt, true)
}

// ===== LISTS =====

func (s *attemptService) List(ctx context.Context, filters repositories.AttemptFilters, userID string) (*AttemptListResponse, error) {
	canViewOthers, err := s.canViewOthers(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !canViewOthers {
		filters.UserID = &userID
	}

	attempts, total, err := s.repo.Attempt().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return s.buildListResponse(ctx, attempts, total, filters.Limit, filters.Offset)
}

func (s *attemptService) GetByUser(ctx context.Context, userID string, filters repositories.AttemptFilters) (*AttemptListResponse, error) {
	attempts, total, err := s.repo.Attempt().GetByUser(ctx, nil, userID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list user attempts: %w", err)
	}
	return s.buildListResponse(ctx, attempts, total, filters.Limit, filters.Offset)
}

func (s *attemptService) GetByTemplate(ctx context.Context, templateID uint, filters repositories.AttemptFilters, userID string) (*AttemptListResponse, error) {
	if err := s.requireTemplateAccess(ctx, templateID, userID, "list attempts"); err != nil {
		return nil, err
	}

	attempts, total, err := s.repo.Attempt().GetByTemplate(ctx, nil, templateID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list template attempts: %w", err)
	}
	return s.buildListResponse(ctx, attempts, total, filters.Limit, filters.Offset)
}

func intPtr(v int) *int {
	return &v
}
