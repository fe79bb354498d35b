package validator

import (
	"fmt"
	"time"

	"github.com/eduforge/assessment-engine/internal/models"
)

// BusinessValidator handles business rule validation
type BusinessValidator struct {
	validator *Validator
}

// NewBusinessValidator creates a new business validator
func NewBusinessValidator() *BusinessValidator {
	return &BusinessValidator{validator: New()}
}

// Validate validates struct tags for any request
func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	if err := bv.validator.validate.Struct(s); err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// ValidateTemplateCreate validates template creation business rules
func (bv *BusinessValidator) ValidateTemplateCreate(req *TemplateCreateRequest) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)
	errors = append(errors, bv.validateWindow(req.Kind, req.StartTime, req.EndTime)...)
	errors = append(errors, bv.validateQuestionOrders(req.Questions)...)

	return errors
}

// ValidateTemplateUpdate validates template update business rules
func (bv *BusinessValidator) ValidateTemplateUpdate(req *TemplateUpdateRequest, existing *models.AssessmentTemplate) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)

	start := existing.StartTime
	end := existing.EndTime
	if req.StartTime != nil {
		start = req.StartTime
	}
	if req.EndTime != nil {
		end = req.EndTime
	}
	errors = append(errors, bv.validateWindow(existing.Kind, start, end)...)
	errors = append(errors, bv.validateQuestionOrders(req.Questions)...)

	// Scoring changes are frozen once the template left draft
	if existing.Status != models.TemplateDraft {
		if req.PassingScore != nil && *req.PassingScore != existing.PassingScore {
			errors = append(errors, ValidationError{
				Field:   "passing_score",
				Message: "cannot be changed after publication",
				Value:   *req.PassingScore,
				Rule:    "business_logic",
			})
		}
		if req.TimeLimit != nil && *req.TimeLimit != existing.TimeLimit {
			errors = append(errors, ValidationError{
				Field:   "time_limit",
				Message: "cannot be changed after publication",
				Value:   *req.TimeLimit,
				Rule:    "business_logic",
			})
		}
	}

	return errors
}

// ValidateAttemptStart validates attempt start conditions. The attempt
// count gate is advisory; the persistence layer still enforces the
// one-active-attempt invariant under concurrency.
func (bv *BusinessValidator) ValidateAttemptStart(template *models.AssessmentTemplate, attemptCount int, now time.Time) ValidationErrors {
	var errors ValidationErrors

	if template.Status != models.TemplatePublished && template.Status != models.TemplateInProgress {
		errors = append(errors, ValidationError{
			Field:   "template_status",
			Message: "template is not open for attempts",
			Value:   template.Status,
			Rule:    "business_logic",
		})
	}

	if template.Kind == models.KindExam && !template.WindowContains(now) {
		errors = append(errors, ValidationError{
			Field:   "window",
			Message: "exam window is not open",
			Value:   now,
			Rule:    "business_logic",
		})
	}

	if template.MaxAttempts > 0 && attemptCount >= template.MaxAttempts {
		errors = append(errors, ValidationError{
			Field:   "attempts",
			Message: "maximum attempts exceeded",
			Value:   attemptCount,
			Rule:    "business_logic",
		})
	}

	return errors
}

// ValidateStatusTransition validates template status transitions
func (bv *BusinessValidator) ValidateStatusTransition(kind models.TemplateKind, currentStatus, newStatus models.TemplateStatus, questionCount int) ValidationErrors {
	var errors ValidationErrors

	allowedTransitions := map[models.TemplateStatus][]models.TemplateStatus{
		models.TemplateDraft:     {models.TemplatePublished, models.TemplateArchived},
		models.TemplatePublished: {models.TemplateArchived},
		models.TemplateArchived:  {},
	}
	if kind == models.KindExam {
		allowedTransitions[models.TemplatePublished] = []models.TemplateStatus{models.TemplateInProgress, models.TemplateArchived}
		allowedTransitions[models.TemplateInProgress] = []models.TemplateStatus{models.TemplateEnded}
		allowedTransitions[models.TemplateEnded] = []models.TemplateStatus{models.TemplateGraded}
		allowedTransitions[models.TemplateGraded] = []models.TemplateStatus{}
	}

	allowed := false
	for _, allowedStatus := range allowedTransitions[currentStatus] {
		if newStatus == allowedStatus {
			allowed = true
			break
		}
	}

	if !allowed {
		errors = append(errors, ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("cannot transition from %s to %s", currentStatus, newStatus),
			Value:   newStatus,
			Rule:    "status_transition",
		})
	}

	if newStatus == models.TemplatePublished && questionCount == 0 {
		errors = append(errors, ValidationError{
			Field:   "questions",
			Message: "template must have at least one question before publishing",
			Value:   questionCount,
			Rule:    "business_logic",
		})
	}

	return errors
}

// ValidateManualScore validates an instructor-assigned score against the
// answer's maximum.
func (bv *BusinessValidator) ValidateManualScore(score, maxScore float64) ValidationErrors {
	var errors ValidationErrors

	if score < 0 || score > maxScore {
		errors = append(errors, ValidationError{
			Field:   "score",
			Message: fmt.Sprintf("must be between 0 and %.2f", maxScore),
			Value:   score,
			Rule:    "business_logic",
		})
	}

	return errors
}

func (bv *BusinessValidator) validateWindow(kind models.TemplateKind, start, end *time.Time) ValidationErrors {
	var errors ValidationErrors

	if start != nil && end != nil && !end.After(*start) {
		errors = append(errors, ValidationError{
			Field:   "end_time",
			Message: "must be after start_time",
			Value:   end,
			Rule:    "business_logic",
		})
	}

	if kind == models.KindExam && (start == nil || end == nil) {
		errors = append(errors, ValidationError{
			Field:   "window",
			Message: "exams require both start_time and end_time",
			Rule:    "business_logic",
		})
	}

	return errors
}

func (bv *BusinessValidator) validateQuestionOrders(questions []TemplateQuestionRequest) ValidationErrors {
	var errors ValidationErrors

	seenOrder := make(map[int]bool, len(questions))
	seenQuestion := make(map[uint]bool, len(questions))
	for i, q := range questions {
		if seenOrder[q.Order] {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("questions[%d].order", i),
				Message: "duplicate order position",
				Value:   q.Order,
				Rule:    "business_logic",
			})
		}
		if seenQuestion[q.QuestionID] {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("questions[%d].question_id", i),
				Message: "duplicate question",
				Value:   q.QuestionID,
				Rule:    "business_logic",
			})
		}
		seenOrder[q.Order] = true
		seenQuestion[q.QuestionID] = true
	}

	return errors
}
