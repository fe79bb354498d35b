package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/eduforge/assessment-engine/internal/events"
	"github.com/eduforge/assessment-engine/internal/models"
	"github.com/eduforge/assessment-engine/internal/repositories"
	"gorm.io/datatypes"
)

// ===== START HELPERS =====

func (s *attemptService) checkTemplateOpen(template *models.AssessmentTemplate, now time.Time) error {
	switch template.Status {
	case models.TemplatePublished, models.TemplateInProgress:
	default:
		return ErrTemplateNotPublished
	}

	if template.Kind == models.KindExam {
		if template.StartTime != nil && now.Before(*template.StartTime) {
			return ErrWindowNotOpen
		}
		if template.EndTime != nil && now.After(*template.EndTime) {
			return ErrWindowClosed
		}
	}
	return nil
}

// buildQuestionOrder fixes the per-attempt question sequence. Shuffled
// templates get a random permutation; the persisted order is what every
// later read uses, so reloads stay stable.
func buildQuestionOrder(template *models.AssessmentTemplate) (datatypes.JSON, error) {
	ids := make([]uint, len(template.Questions))
	for i, tq := range template.Questions {
		ids[i] = tq.QuestionID
	}

	if template.ShuffleQuestions {
		rand.Shuffle(len(ids), func(i, j int) {
			ids[i], ids[j] = ids[j], ids[i]
		})
	}

	raw, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func encodeSessionData(settings models.TemplateSettings) (datatypes.JSON, error) {
	raw, err := json.Marshal(settings)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// sessionSettings decodes the settings snapshot taken at start. Attempts
// created before a template edit keep scoring against the old values.
func sessionSettings(attempt *models.Attempt) models.TemplateSettings {
	var settings models.TemplateSettings
	if len(attempt.SessionData) > 0 {
		_ = json.Unmarshal(attempt.SessionData, &settings)
	}
	return settings
}

// computeDeadline fixes the hard wall-clock deadline for exam attempts:
// start plus the time limit, clamped to the window's end. Practice
// attempts have no wall-clock deadline; their limit runs on active time.
func computeDeadline(template *models.AssessmentTemplate, start time.Time) *time.Time {
	if template.Kind != models.KindExam {
		return nil
	}

	var deadline *time.Time
	if template.TimeLimit > 0 {
		d := start.Add(time.Duration(template.TimeLimit) * time.Minute)
		deadline = &d
	}
	if template.EndTime != nil && (deadline == nil || template.EndTime.Before(*deadline)) {
		deadline = template.EndTime
	}
	return deadline
}

// ===== ACCESS HELPERS =====

func (s *attemptService) getOwnedAttempt(ctx context.Context, attemptID uint, userID, action string) (*models.Attempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.UserID != userID {
		return nil, NewPermissionError(userID, attemptID, "attempt", action, "not owned by user")
	}
	return attempt, nil
}

func (s *attemptService) getViewableAttempt(ctx context.Context, attemptID uint, userID string) (*models.Attempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.UserID == userID {
		return attempt, nil
	}

	canView, err := s.canViewOthers(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !canView {
		return nil, NewPermissionError(userID, attemptID, "attempt", "read", "not owner and not an instructor")
	}
	return attempt, nil
}

func (s *attemptService) canViewOthers(ctx context.Context, userID string) (bool, error) {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve user role: %w", err)
	}
	return user.Role.CanViewOthers(), nil
}

func (s *attemptService) requireTemplateAccess(ctx context.Context, templateID uint, userID, action string) error {
	template, err := s.repo.Template().GetByID(ctx, nil, templateID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrTemplateNotFound
		}
		return fmt.Errorf("failed to get template: %w", err)
	}

	if template.CreatedBy == userID {
		return nil
	}

	canView, err := s.canViewOthers(ctx, userID)
	if err != nil {
		return err
	}
	if !canView {
		return NewPermissionError(userID, templateID, "template", action, "not creator and not an instructor")
	}
	return nil
}

func (s *attemptService) questionBinding(ctx context.Context, attempt *models.Attempt, questionID uint) (*models.TemplateQuestion, error) {
	binding, err := s.repo.Template().GetQuestionBinding(ctx, nil, attempt.TemplateID, questionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotInAttempt
		}
		return nil, fmt.Errorf("failed to get question binding: %w", err)
	}
	return binding, nil
}

// ===== EXPIRY =====

// isExpired reports whether an active attempt ran out of time. Exams run
// against their wall-clock deadline; practice attempts run against the
// time limit over active (non-paused) seconds.
func (s *attemptService) isExpired(attempt *models.Attempt, now time.Time) bool {
	if !attempt.Status.IsActive() {
		return false
	}

	if attempt.Kind == models.KindExam {
		return attempt.DeadlinePassed(now)
	}

	settings := sessionSettings(attempt)
	if settings.TimeLimit <= 0 {
		return false
	}
	return attempt.ElapsedSeconds(now) >= settings.TimeLimit*60
}

// ensureNotExpired lazily finalizes an attempt whose time ran out and
// reports the expiry to the caller. There is no background sweeper; every
// lifecycle operation passes through here first.
func (s *attemptService) ensureNotExpired(ctx context.Context, attempt *models.Attempt, now time.Time) error {
	if !s.isExpired(attempt, now) {
		return nil
	}
	if err := s.finalizeExpired(ctx, attempt); err != nil {
		return err
	}
	return ErrAttemptExpired
}

func (s *attemptService) finalizeExpired(ctx context.Context, attempt *models.Attempt) error {
	if attempt.Kind == models.KindExam {
		return s.expireAttempt(ctx, attempt)
	}
	return s.completeExpiredPractice(ctx, attempt)
}

// expireAttempt transitions an exam attempt to expired with its clock
// stopped at the deadline, so recorded duration never exceeds the limit.
func (s *attemptService) expireAttempt(ctx context.Context, attempt *models.Attempt) error {
	submittedAt := time.Now()
	if attempt.Deadline != nil && attempt.Deadline.Before(submittedAt) {
		submittedAt = *attempt.Deadline
	}

	attempt.Status = models.AttemptExpired
	attempt.SubmittedAt = &submittedAt
	attempt.LastActivityAt = submittedAt
	attempt.PausedAt = nil

	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
			return fmt.Errorf("failed to expire attempt: %w", err)
		}
		if _, err := recalculateAttemptScore(ctx, txRepo, nil, attempt); err != nil {
			return fmt.Errorf("failed to score expired attempt: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publishAttemptEvent(ctx, events.EventAttemptExpired, attempt)
	s.logger.Info("Attempt expired", "attempt_id", attempt.ID, "user_id", attempt.UserID)
	return nil
}

// completeExpiredPractice closes a practice attempt whose active time ran
// out, with the completion timestamp set to the moment the limit was hit.
func (s *attemptService) completeExpiredPractice(ctx context.Context, attempt *models.Attempt) error {
	settings := sessionSettings(attempt)
	completedAt := time.Now()
	if settings.TimeLimit > 0 {
		cutoff := attempt.StartedAt.Add(time.Duration(settings.TimeLimit*60+attempt.TotalPausedSeconds) * time.Second)
		if cutoff.Before(completedAt) {
			completedAt = cutoff
		}
	}

	attempt.Status = models.AttemptCompleted
	attempt.CompletedAt = &completedAt
	attempt.LastActivityAt = completedAt
	attempt.PausedAt = nil

	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
			return fmt.Errorf("failed to close timed-out attempt: %w", err)
		}
		if _, err := recalculateAttemptScore(ctx, txRepo, nil, attempt); err != nil {
			return fmt.Errorf("failed to score timed-out attempt: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publishAttemptEvent(ctx, events.EventAttemptCompleted, attempt)
	s.logger.Info("Practice attempt timed out",
		"attempt_id", attempt.ID,
		"user_id", attempt.UserID)
	return nil
}

// timeRemaining returns the seconds left, nil when unlimited.
func (s *attemptService) timeRemaining(attempt *models.Attempt, now time.Time) *int {
	if attempt.Kind == models.KindExam {
		if attempt.Deadline == nil {
			return nil
		}
		remaining := int(attempt.Deadline.Sub(now).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		return &remaining
	}

	settings := sessionSettings(attempt)
	if settings.TimeLimit <= 0 {
		return nil
	}
	remaining := settings.TimeLimit*60 - attempt.ElapsedSeconds(now)
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// ===== RESPONSE BUILDING =====

func (s *attemptService) buildAttemptResponse(ctx context.Context, attempt *models.Attempt, withQuestions bool) (*AttemptResponse, error) {
	resp := &AttemptResponse{
		Attempt:        attempt,
		CanPause:       attempt.Kind == models.KindPractice && attempt.Status == models.AttemptInProgress,
		CanResume:      attempt.Status == models.AttemptPaused,
		CanSubmit:      attempt.Kind == models.KindExam && attempt.Status == models.AttemptInProgress,
		IsPendingGrade: attempt.Status.IsTerminal() && attempt.Status != models.AttemptAbandoned && !attempt.IsGraded,
	}

	if attempt.Status.IsActive() {
		resp.TimeRemaining = s.timeRemaining(attempt, time.Now())
	}

	if !withQuestions {
		return resp, nil
	}

	questions, err := s.buildQuestionViews(ctx, attempt)
	if err != nil {
		return nil, err
	}
	resp.Questions = questions
	return resp, nil
}

// buildQuestionViews assembles sanitized questions in the persisted
// attempt order with per-question answer state.
func (s *attemptService) buildQuestionViews(ctx context.Context, attempt *models.Attempt) ([]QuestionForAttempt, error) {
	bindings, err := s.repo.Template().GetQuestions(ctx, nil, attempt.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get template questions: %w", err)
	}

	answers, err := s.repo.Answer().GetByAttempt(ctx, nil, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get answers: %w", err)
	}
	answerByQuestion := make(map[uint]*models.Answer, len(answers))
	for _, a := range answers {
		answerByQuestion[a.QuestionID] = a
	}

	bindingByQuestion := make(map[uint]*models.TemplateQuestion, len(bindings))
	for _, b := range bindings {
		bindingByQuestion[b.QuestionID] = b
	}

	orderedIDs, err := attempt.OrderedQuestionIDs()
	if err != nil {
		return nil, fmt.Errorf("failed to decode question order: %w", err)
	}
	if len(orderedIDs) == 0 {
		for _, b := range bindings {
			orderedIDs = append(orderedIDs, b.QuestionID)
		}
	}

	// Graded terminal attempts see the full question; everything else
	// gets the sanitized view.
	revealAnswers := attempt.Status.IsTerminal() && attempt.IsGraded

	views := make([]QuestionForAttempt, 0, len(orderedIDs))
	for i, qid := range orderedIDs {
		binding, ok := bindingByQuestion[qid]
		if !ok || binding == nil {
			continue
		}
		question := &binding.Question
		if !revealAnswers {
			question = question.Sanitized()
		}

		answer := answerByQuestion[qid]
		views = append(views, QuestionForAttempt{
			Question: question,
			Order:    i + 1,
			Points:   binding.Points,
			Answered: answer != nil && !answer.IsSkipped(),
			Skipped:  answer != nil && answer.IsSkipped(),
			IsFirst:  i == 0,
			IsLast:   i == len(orderedIDs)-1,
		})
	}
	return views, nil
}

func (s *attemptService) buildListResponse(ctx context.Context, attempts []*models.Attempt, total int64, limit, offset int) (*AttemptListResponse, error) {
	responses := make([]*AttemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		resp, err := s.buildAttemptResponse(ctx, attempt, false)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}

	page := 1
	if limit > 0 {
		page = offset/limit + 1
	}
	return &AttemptListResponse{
		Attempts: responses,
		Total:    total,
		Page:     page,
		Size:     len(responses),
	}, nil
}

// ===== EVENTS =====

func (s *attemptService) publishAttemptEvent(ctx context.Context, eventType string, attempt *models.Attempt) {
	if s.events == nil {
		return
	}

	payload := &events.AttemptEvent{
		AttemptID:  attempt.ID,
		TemplateID: attempt.TemplateID,
		UserID:     attempt.UserID,
		Kind:       string(attempt.Kind),
		Status:     string(attempt.Status),
		TotalScore: attempt.TotalScore,
		Percentage: attempt.Percentage,
	}
	if attempt.IsGraded {
		passed := attempt.Passed
		payload.Passed = &passed
	}

	if err := s.events.Publish(ctx, events.NewEvent(eventType, payload)); err != nil {
		s.logger.Error("Failed to publish event",
			"event_type", eventType,
			"attempt_id", attempt.ID,
			"error", err)
	}
}
