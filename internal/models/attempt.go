package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	// Shared initial state.
	AttemptInProgress AttemptStatus = "in_progress"

	// Practice lifecycle.
	AttemptPaused    AttemptStatus = "paused"
	AttemptCompleted AttemptStatus = "completed"
	AttemptAbandoned AttemptStatus = "abandoned"

	// Exam lifecycle.
	AttemptSubmitted AttemptStatus = "submitted"
	AttemptGraded    AttemptStatus = "graded"
	AttemptExpired   AttemptStatus = "expired"
)

// IsActive reports whether the attempt still accepts lifecycle operations.
// The one-active-attempt invariant is defined over exactly these states.
func (s AttemptStatus) IsActive() bool {
	return s == AttemptInProgress || s == AttemptPaused
}

// IsTerminal reports whether the status admits no further transitions
// other than submitted -> graded.
func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case AttemptCompleted, AttemptAbandoned, AttemptSubmitted, AttemptGraded, AttemptExpired:
		return true
	}
	return false
}

// SkippedSentinel marks an answer record created by the skip operation.
// It never scores and is excluded from correctness aggregation.
const SkippedSentinel = "SKIPPED"

// Attempt is one user's run through an assessment template: a practice
// session or an exam submission, depending on the template kind.
//
// The partial unique index idx_one_active_attempt is the concurrency
// guard: the database, not application memory, rejects a second active
// attempt for the same (user, template) pair.
type Attempt struct {
	ID         uint          `json:"id" gorm:"primaryKey"`
	TemplateID uint          `json:"template_id" gorm:"not null;index;uniqueIndex:idx_one_active_attempt,where:status IN ('in_progress','paused')"`
	UserID     string        `json:"user_id" gorm:"not null;index;size:255;uniqueIndex:idx_one_active_attempt,where:status IN ('in_progress','paused')"`
	Kind       TemplateKind  `json:"kind" gorm:"not null;index"`
	Status     AttemptStatus `json:"status" gorm:"default:in_progress;index"`

	AttemptNumber int `json:"attempt_number" gorm:"not null;default:1"`

	// Timing. Deadline is fixed at start: started_at + time limit, clamped
	// to the exam window's end when one exists. Nil means no hard deadline.
	StartedAt          time.Time  `json:"started_at" gorm:"not null"`
	LastActivityAt     time.Time  `json:"last_activity_at" gorm:"not null"`
	PausedAt           *time.Time `json:"paused_at"`
	CompletedAt        *time.Time `json:"completed_at"`
	SubmittedAt        *time.Time `json:"submitted_at"`
	GradedAt           *time.Time `json:"graded_at"`
	Deadline           *time.Time `json:"deadline"`
	TotalPausedSeconds int        `json:"total_paused_seconds"`

	// Progress
	CurrentQuestionIndex int `json:"current_question_index"`
	TotalQuestions       int `json:"total_questions" gorm:"not null"`
	AnsweredQuestions    int `json:"answered_questions"`
	CorrectAnswers       int `json:"correct_answers"`

	// Scoring. TotalScore is always AutoScore + ManualScore.
	AutoScore   float64 `json:"auto_score"`
	ManualScore float64 `json:"manual_score"`
	TotalScore  float64 `json:"total_score"`
	Percentage  float64 `json:"percentage"`
	Passed      bool    `json:"passed"`
	IsGraded    bool    `json:"is_graded"`

	// QuestionOrder persists the per-attempt question sequence ([]uint of
	// question IDs) so a shuffled attempt reads back in a stable order.
	QuestionOrder datatypes.JSON `json:"question_order" gorm:"type:jsonb"`

	// SessionData snapshots the template's scoring configuration at start
	// (TemplateSettings) so later template edits never rescore history.
	SessionData datatypes.JSON `json:"session_data,omitempty" gorm:"type:jsonb"`

	GradedBy     *string `json:"graded_by" gorm:"size:255"`
	GradingNotes *string `json:"grading_notes" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Template AssessmentTemplate `json:"-" gorm:"foreignKey:TemplateID"`
	Answers  []Answer           `json:"answers,omitempty" gorm:"foreignKey:AttemptID;constraint:OnDelete:CASCADE"`
}

func (Attempt) TableName() string {
	return "attempts"
}

// ElapsedSeconds is wall-clock time since start excluding paused stretches.
// For a paused attempt the clock stops at PausedAt; for a terminal attempt
// it stops at the terminal timestamp.
func (a *Attempt) ElapsedSeconds(now time.Time) int {
	end := now
	switch {
	case a.Status == AttemptPaused && a.PausedAt != nil:
		end = *a.PausedAt
	case a.CompletedAt != nil:
		end = *a.CompletedAt
	case a.SubmittedAt != nil:
		end = *a.SubmittedAt
	}
	elapsed := int(end.Sub(a.StartedAt).Seconds()) - a.TotalPausedSeconds
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// DeadlinePassed reports whether the attempt's hard deadline is behind now.
// The deadline itself is inclusive.
func (a *Attempt) DeadlinePassed(now time.Time) bool {
	return a.Deadline != nil && now.After(*a.Deadline)
}

// OrderedQuestionIDs decodes the persisted question order.
func (a *Attempt) OrderedQuestionIDs() ([]uint, error) {
	if len(a.QuestionOrder) == 0 {
		return nil, nil
	}
	var ids []uint
	if err := json.Unmarshal(a.QuestionOrder, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// ProgressPercentage is answered questions over total, rounded to 2dp.
func (a *Attempt) ProgressPercentage() float64 {
	if a.TotalQuestions == 0 {
		return 0
	}
	return round2(float64(a.AnsweredQuestions) / float64(a.TotalQuestions) * 100)
}

// AccuracyPercentage is correct answers over total questions, rounded to 2dp.
func (a *Attempt) AccuracyPercentage() float64 {
	if a.TotalQuestions == 0 {
		return 0
	}
	return round2(float64(a.CorrectAnswers) / float64(a.TotalQuestions) * 100)
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// Answer is one user answer inside an attempt. Exactly one row exists per
// (attempt, question); resubmission overwrites in place while the attempt
// is active and is refused once it reaches a terminal status.
type Answer struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	AttemptID  uint `json:"attempt_id" gorm:"not null;index;uniqueIndex:idx_attempt_question"`
	QuestionID uint `json:"question_id" gorm:"not null;index;uniqueIndex:idx_attempt_question"`

	// Content is the submitted answer text; AnswerData keeps the raw
	// submission (e.g. selected option keys) for audit and review.
	Content    string         `json:"content" gorm:"type:text;not null"`
	AnswerData datatypes.JSON `json:"answer_data,omitempty" gorm:"type:jsonb"`

	// Grading. IsCorrect stays nil for answers awaiting manual grading.
	IsCorrect    *bool   `json:"is_correct"`
	Score        float64 `json:"score"`
	MaxScore     float64 `json:"max_score" gorm:"not null"`
	IsAutoGraded bool    `json:"is_auto_graded"`

	TimeSpent   int       `json:"time_spent"` // seconds
	SubmittedAt time.Time `json:"submitted_at" gorm:"not null"`

	// Manual grading trail.
	GradedBy     *string    `json:"graded_by" gorm:"size:255"`
	GradingNotes *string    `json:"grading_notes" gorm:"type:text"`
	GradedAt     *time.Time `json:"graded_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Attempt  Attempt  `json:"-" gorm:"foreignKey:AttemptID"`
	Question Question `json:"question,omitempty" gorm:"foreignKey:QuestionID"`
}

func (Answer) TableName() string {
	return "answers"
}

// IsSkipped reports whether this row is the skip sentinel.
func (ans *Answer) IsSkipped() bool {
	return ans.Content == SkippedSentinel
}

// IsGraded reports whether a correctness verdict exists.
func (ans *Answer) IsGraded() bool {
	return ans.IsCorrect != nil
}
