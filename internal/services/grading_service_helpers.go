package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/eduforge/assessment-engine/internal/models"
	"github.com/eduforge/assessment-engine/internal/repositories"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ===== GRADING RULES =====

// gradeSubmission applies the deterministic grading rule for the question
// type. The returned verdict is nil for types that need an instructor;
// those answers score zero until manually graded.
func gradeSubmission(question *models.Question, maxScore float64, content string) (isCorrect *bool, score float64, isAutoGraded bool) {
	switch question.Type {
	case models.MultipleChoice:
		correct := gradeMultipleChoice(question.CorrectAnswer, content)
		return boolPtr(correct), scoreFor(correct, maxScore), true
	case models.TrueFalse:
		correct := normalizeAnswer(content) == normalizeAnswer(question.CorrectAnswer)
		return boolPtr(correct), scoreFor(correct, maxScore), true
	case models.FillBlank:
		correct := gradeFillBlank(question, content)
		return boolPtr(correct), scoreFor(correct, maxScore), true
	case models.Essay, models.Listening, models.Speaking:
		return nil, 0, false
	}
	return nil, 0, false
}

// gradeMultipleChoice compares answers as sets so multi-answer questions
// accept any ordering of the selected option keys.
func gradeMultipleChoice(correctAnswer, content string) bool {
	return answerSet(content).equals(answerSet(correctAnswer))
}

// gradeFillBlank accepts any of the '|'-separated canonical alternatives.
func gradeFillBlank(question *models.Question, content string) bool {
	submitted := normalizeAnswer(content)
	for _, accepted := range question.AcceptedAnswers() {
		if submitted == accepted {
			return true
		}
	}
	return false
}

func normalizeAnswer(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

type stringSet map[string]struct{}

func answerSet(v string) stringSet {
	set := make(stringSet)
	for _, part := range strings.Split(v, ",") {
		if p := normalizeAnswer(part); p != "" {
			set[p] = struct{}{}
		}
	}
	return set
}

func (s stringSet) equals(other stringSet) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if _, ok := other[k]; !ok {
			return false
		}
	}
	return true
}

func scoreFor(correct bool, maxScore float64) float64 {
	if correct {
		return maxScore
	}
	return 0
}

func boolPtr(v bool) *bool {
	return &v
}

// ===== ANSWER PERSISTENCE =====

// persistGradedAnswer grades one submission and upserts its answer row.
// The unique index on (attempt, question) makes resubmission overwrite in
// place.
func persistGradedAnswer(ctx context.Context, repo repositories.Repository, tx *gorm.DB, attempt *models.Attempt, req *SubmitAnswerRequest) (*models.Answer, error) {
	binding, err := repo.Template().GetQuestionBinding(ctx, tx, attempt.TemplateID, req.QuestionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotInAttempt
		}
		return nil, fmt.Errorf("failed to get question binding: %w", err)
	}

	question, err := repo.Question().GetByID(ctx, tx, req.QuestionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	isCorrect, score, autoGraded := gradeSubmission(question, binding.Points, req.Content)

	var answerData []byte
	if req.AnswerData != nil {
		answerData, err = json.Marshal(req.AnswerData)
		if err != nil {
			return nil, fmt.Errorf("failed to encode answer data: %w", err)
		}
	}

	answer := &models.Answer{
		AttemptID:    attempt.ID,
		QuestionID:   req.QuestionID,
		Content:      req.Content,
		AnswerData:   datatypes.JSON(answerData),
		IsCorrect:    isCorrect,
		Score:        score,
		MaxScore:     binding.Points,
		IsAutoGraded: autoGraded,
		SubmittedAt:  time.Now(),
	}
	if req.TimeSpent != nil {
		answer.TimeSpent = *req.TimeSpent
	}

	if err := repo.Answer().Upsert(ctx, tx, answer); err != nil {
		return nil, fmt.Errorf("failed to save answer: %w", err)
	}
	return answer, nil
}

// ===== SCORE AGGREGATION =====

// recalculateAttemptScore rebuilds the attempt's scores from its answer
// rows. Total is always auto plus manual; the operation is idempotent so
// regrading an answer and recalculating converges.
func recalculateAttemptScore(ctx context.Context, repo repositories.Repository, tx *gorm.DB, attempt *models.Attempt) (*AttemptGradingResult, error) {
	autoScore, err := repo.Answer().SumAutoScore(ctx, tx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum auto score: %w", err)
	}
	manualScore, err := repo.Answer().SumManualScore(ctx, tx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum manual score: %w", err)
	}
	hasUngraded, err := repo.Answer().HasUngraded(ctx, tx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check ungraded answers: %w", err)
	}
	answered, err := repo.Answer().CountAnswered(ctx, tx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count answers: %w", err)
	}
	correct, err := repo.Answer().CountCorrect(ctx, tx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count correct answers: %w", err)
	}

	settings := sessionSettings(attempt)
	maxScore := settings.TotalPoints

	totalScore := round2f(autoScore + manualScore)
	percentage := 0.0
	if maxScore > 0 {
		percentage = round2f(totalScore / maxScore * 100)
	}

	attempt.AutoScore = round2f(autoScore)
	attempt.ManualScore = round2f(manualScore)
	attempt.TotalScore = totalScore
	attempt.Percentage = percentage
	attempt.Passed = totalScore >= settings.PassingScore
	attempt.IsGraded = !hasUngraded && attempt.Status.IsTerminal()
	// Refresh the denormalized counters on the struct before the save so
	// the full-row update never writes stale values back.
	attempt.AnsweredQuestions = int(answered)
	attempt.CorrectAnswers = int(correct)

	if err := repo.Attempt().Update(ctx, tx, attempt); err != nil {
		return nil, fmt.Errorf("failed to store scores: %w", err)
	}

	return &AttemptGradingResult{
		AttemptID:   attempt.ID,
		AutoScore:   attempt.AutoScore,
		ManualScore: attempt.ManualScore,
		TotalScore:  attempt.TotalScore,
		MaxScore:    maxScore,
		Percentage:  attempt.Percentage,
		IsPassing:   attempt.Passed,
		IsFinal:     !hasUngraded,
		GradedAt:    time.Now(),
	}, nil
}

func round2f(v float64) float64 {
	return math.Round(v*100) / 100
}

func gradingResultFor(answer *models.Answer) GradingResult {
	result := GradingResult{
		AnswerID:   answer.ID,
		QuestionID: answer.QuestionID,
		Score:      answer.Score,
		MaxScore:   answer.MaxScore,
		GradedBy:   answer.GradedBy,
	}
	if answer.IsCorrect != nil {
		result.IsCorrect = *answer.IsCorrect
	}
	if answer.GradedAt != nil {
		result.GradedAt = *answer.GradedAt
	} else {
		result.GradedAt = answer.UpdatedAt
	}
	return result
}
