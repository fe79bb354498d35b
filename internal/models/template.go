package models

import (
	"time"

	"gorm.io/gorm"
)

// TemplateKind separates formative practice templates from summative exams.
// Practice attempts are pausable and have no hard wall-clock window; exams
// run inside [StartTime, EndTime] and expire lazily once the window closes.
type TemplateKind string

const (
	KindPractice TemplateKind = "practice"
	KindExam     TemplateKind = "exam"
)

type TemplateStatus string

const (
	TemplateDraft      TemplateStatus = "draft"
	TemplatePublished  TemplateStatus = "published"
	TemplateArchived   TemplateStatus = "archived"
	TemplateInProgress TemplateStatus = "in_progress"
	TemplateEnded      TemplateStatus = "ended"
	TemplateGraded     TemplateStatus = "graded"
)

type AssessmentTemplate struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	Kind        TemplateKind   `json:"kind" gorm:"not null;index;default:practice" validate:"required,oneof=practice exam"`
	Title       string         `json:"title" gorm:"not null;size:255" validate:"required,max=255"`
	Description *string        `json:"description" gorm:"type:text"`
	Status      TemplateStatus `json:"status" gorm:"default:draft;index" validate:"oneof=draft published archived in_progress ended graded"`
	CourseID    *uint          `json:"course_id" gorm:"index"`

	// Timing. TimeLimit is in minutes; zero means no per-attempt limit.
	// StartTime/EndTime bound the exam window and are nil for practice
	// templates unless the instructor sets a window explicitly.
	TimeLimit int        `json:"time_limit" gorm:"default:0" validate:"min=0,max=600"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`

	// Scoring
	TotalPoints  float64 `json:"total_points" gorm:"default:100"`
	PassingScore float64 `json:"passing_score" gorm:"default:60" validate:"min=0"`
	MaxAttempts  int     `json:"max_attempts" gorm:"default:1" validate:"min=1,max=50"`

	ShuffleQuestions bool `json:"shuffle_questions" gorm:"default:false"`
	ShowResults      bool `json:"show_results" gorm:"default:true"`

	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Questions []TemplateQuestion `json:"questions,omitempty" gorm:"foreignKey:TemplateID"`
	Attempts  []Attempt          `json:"-" gorm:"foreignKey:TemplateID"`

	// Computed
	QuestionCount int `json:"question_count" gorm:"-"`
	AttemptCount  int `json:"attempt_count" gorm:"-"`
}

func (AssessmentTemplate) TableName() string {
	return "assessment_templates"
}

// IsTerminalStatus reports whether no further status transitions are allowed.
func (t *AssessmentTemplate) IsTerminalStatus() bool {
	return t.Status == TemplateArchived || t.Status == TemplateGraded
}

// WindowContains reports whether now falls inside the template's wall-clock
// window. Both bounds are inclusive; a missing bound is unbounded.
func (t *AssessmentTemplate) WindowContains(now time.Time) bool {
	if t.StartTime != nil && now.Before(*t.StartTime) {
		return false
	}
	if t.EndTime != nil && now.After(*t.EndTime) {
		return false
	}
	return true
}

// TemplateQuestion binds a question into a template with the point value and
// position it carries there. Points here override Question.Points.
type TemplateQuestion struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	TemplateID uint `json:"template_id" gorm:"not null;index;uniqueIndex:idx_template_question"`
	QuestionID uint `json:"question_id" gorm:"not null;index;uniqueIndex:idx_template_question"`

	Order    int     `json:"order" gorm:"not null;column:order_index"`
	Points   float64 `json:"points" gorm:"not null" validate:"min=0"`
	Required bool    `json:"required" gorm:"default:true"`

	CreatedAt time.Time `json:"created_at"`

	// Relations
	Template AssessmentTemplate `json:"-" gorm:"foreignKey:TemplateID"`
	Question Question           `json:"question" gorm:"foreignKey:QuestionID"`
}

func (TemplateQuestion) TableName() string {
	return "template_questions"
}

// TemplateSettings is the JSONB blob attached to session snapshots; it
// records the scoring-relevant configuration in effect when an attempt
// started so later template edits never change historical attempts.
type TemplateSettings struct {
	TimeLimit        int     `json:"time_limit"`
	TotalPoints      float64 `json:"total_points"`
	PassingScore     float64 `json:"passing_score"`
	ShuffleQuestions bool    `json:"shuffle_questions"`
	ShowResults      bool    `json:"show_results"`
}

// SnapshotSettings captures the current scoring configuration.
func (t *AssessmentTemplate) SnapshotSettings() TemplateSettings {
	return TemplateSettings{
		TimeLimit:        t.TimeLimit,
		TotalPoints:      t.TotalPoints,
		PassingScore:     t.PassingScore,
		ShuffleQuestions: t.ShuffleQuestions,
		ShowResults:      t.ShowResults,
	}
}
