package validator

import (
	"time"

	"github.com/eduforge/assessment-engine/internal/models"
)

// TemplateCreateRequest is the request body for creating templates.
type TemplateCreateRequest struct {
	Kind         models.TemplateKind       `json:"kind" validate:"required,oneof=practice exam"`
	Title        string                    `json:"title" validate:"required,template_title"`
	Description  *string                   `json:"description" validate:"omitempty,max=1000"`
	CourseID     *uint                     `json:"course_id"`
	TimeLimit    int                       `json:"time_limit" validate:"time_limit"`
	StartTime    *time.Time                `json:"start_time"`
	EndTime      *time.Time                `json:"end_time" validate:"omitempty,future_date"`
	TotalPoints  float64                   `json:"total_points" validate:"omitempty,min=0"`
	PassingScore float64                   `json:"passing_score" validate:"passing_score"`
	MaxAttempts  int                       `json:"max_attempts" validate:"required,max_attempts"`
	Shuffle      bool                      `json:"shuffle_questions"`
	ShowResults  *bool                     `json:"show_results"`
	Questions    []TemplateQuestionRequest `json:"questions" validate:"omitempty,dive"`
}

// TemplateUpdateRequest is the request body for updating templates. All
// fields are optional; structural fields are refused once attempts exist.
type TemplateUpdateRequest struct {
	Title        *string                   `json:"title" validate:"omitempty,template_title"`
	Description  *string                   `json:"description" validate:"omitempty,max=1000"`
	TimeLimit    *int                      `json:"time_limit" validate:"omitempty,time_limit"`
	StartTime    *time.Time                `json:"start_time"`
	EndTime      *time.Time                `json:"end_time"`
	TotalPoints  *float64                  `json:"total_points" validate:"omitempty,min=0"`
	PassingScore *float64                  `json:"passing_score" validate:"omitempty,passing_score"`
	MaxAttempts  *int                      `json:"max_attempts" validate:"omitempty,max_attempts"`
	Shuffle      *bool                     `json:"shuffle_questions"`
	ShowResults  *bool                     `json:"show_results"`
	Questions    []TemplateQuestionRequest `json:"questions" validate:"omitempty,dive"`
}

// TemplateQuestionRequest binds one question into a template.
type TemplateQuestionRequest struct {
	QuestionID uint    `json:"question_id" validate:"required"`
	Order      int     `json:"order" validate:"required,min=1"`
	Points     float64 `json:"points" validate:"required,min=0"`
	Required   *bool   `json:"required"`
}
