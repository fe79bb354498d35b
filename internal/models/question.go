package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	FillBlank      QuestionType = "fill_blank"
	Essay          QuestionType = "essay"
	Listening      QuestionType = "listening"
	Speaking       QuestionType = "speaking"
)

// AllQuestionTypes is the closed set of supported types. The grading
// service dispatches over this set exhaustively.
var AllQuestionTypes = []QuestionType{
	MultipleChoice, TrueFalse, FillBlank, Essay, Listening, Speaking,
}

type DifficultyLevel string

const (
	DifficultyBeginner     DifficultyLevel = "beginner"
	DifficultyIntermediate DifficultyLevel = "intermediate"
	DifficultyAdvanced     DifficultyLevel = "advanced"
)

// Question is a read-only collaborator entity here. Content and canonical
// answers are authored by the question-management subsystem; this engine
// only reads them to grade and to build sanitized question views.
type Question struct {
	ID    uint         `json:"id" gorm:"primaryKey"`
	Type  QuestionType `json:"type" gorm:"not null;index" validate:"required,oneof=multiple_choice true_false fill_blank essay listening speaking"`
	Title string       `json:"title" gorm:"not null;size:500" validate:"required,max=500"`
	Text  string       `json:"text" gorm:"type:text;not null" validate:"required"`

	// Options for choice questions, stored as JSONB ([]ChoiceOption).
	Options datatypes.JSON `json:"options,omitempty" gorm:"type:jsonb"`

	// CorrectAnswer is the canonical answer. For fill_blank it may hold
	// several acceptable values separated by '|' (e.g. "cat|feline").
	// Empty for manually graded types.
	CorrectAnswer string  `json:"correct_answer,omitempty" gorm:"type:text"`
	Explanation   *string `json:"explanation,omitempty" gorm:"type:text"`

	Points     float64         `json:"points" gorm:"default:1" validate:"min=0"`
	Difficulty DifficultyLevel `json:"difficulty" gorm:"default:intermediate;index"`
	Tags       datatypes.JSON  `json:"tags,omitempty" gorm:"type:jsonb"` // []string

	// Media for listening/speaking questions.
	AudioFile *string `json:"audio_file,omitempty" gorm:"size:500"`
	ImageFile *string `json:"image_file,omitempty" gorm:"size:500"`

	CreatedBy string    `json:"created_by" gorm:"not null;index;size:255"`
	IsActive  bool      `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Question) TableName() string {
	return "questions"
}

type ChoiceOption struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// AcceptedAnswers splits the canonical answer into its acceptable values,
// trimmed and lower-cased. Only fill_blank questions carry more than one.
func (q *Question) AcceptedAnswers() []string {
	if q.CorrectAnswer == "" {
		return nil
	}
	parts := strings.Split(q.CorrectAnswer, "|")
	accepted := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.ToLower(strings.TrimSpace(p)); v != "" {
			accepted = append(accepted, v)
		}
	}
	return accepted
}

// IsAutoGradeable reports whether the type has a deterministic grading rule.
// Essay, listening and speaking answers stay ungraded until an instructor
// scores them.
func (t QuestionType) IsAutoGradeable() bool {
	switch t {
	case MultipleChoice, TrueFalse, FillBlank:
		return true
	case Essay, Listening, Speaking:
		return false
	}
	return false
}

// Sanitized returns a copy safe to hand to a student mid-attempt: the
// canonical answer and explanation are stripped.
func (q *Question) Sanitized() *Question {
	sanitized := *q
	sanitized.CorrectAnswer = ""
	sanitized.Explanation = nil
	return &sanitized
}
