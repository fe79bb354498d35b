package repositories

import (
	"time"

	"github.com/eduforge/assessment-engine/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type TemplateFilters struct {
	Kind      *models.TemplateKind   `json:"kind"`
	Status    *models.TemplateStatus `json:"status"`
	CourseID  *uint                  `json:"course_id"`
	CreatedBy *string                `json:"created_by"`
	DateFrom  *time.Time             `json:"date_from"`
	DateTo    *time.Time             `json:"date_to"`
	Limit     int                    `json:"limit"`
	Offset    int                    `json:"offset"`
	SortBy    string                 `json:"sort_by"`    // "created_at", "title", "status"
	SortOrder string                 `json:"sort_order"` // "asc", "desc"
}

type AttemptFilters struct {
	Status     *models.AttemptStatus `json:"status"`
	Kind       *models.TemplateKind  `json:"kind"`
	UserID     *string               `json:"user_id"`
	TemplateID *uint                 `json:"template_id"`
	DateFrom   *time.Time            `json:"date_from"`
	DateTo     *time.Time            `json:"date_to"`
	Limit      int                   `json:"limit"`
	Offset     int                   `json:"offset"`
	SortBy     string                `json:"sort_by"`
	SortOrder  string                `json:"sort_order"`
}

type AnswerFilters struct {
	IsGraded     *bool      `json:"is_graded"`
	IsAutoGraded *bool      `json:"is_auto_graded"`
	GradedBy     *string    `json:"graded_by"`
	DateFrom     *time.Time `json:"date_from"`
	DateTo       *time.Time `json:"date_to"`
	Limit        int        `json:"limit"`
	Offset       int        `json:"offset"`
}

// WrongQuestionFilters narrows a user's wrong-question collection.
type WrongQuestionFilters struct {
	CourseID   *uint                   `json:"course_id"`
	Type       *models.QuestionType    `json:"type"`
	Difficulty *models.DifficultyLevel `json:"difficulty"`
	Since      *time.Time              `json:"since"`
	Limit      int                     `json:"limit"`
	Offset     int                     `json:"offset"`
}

// RandomQuestionFilters selects filler questions for review sets.
type RandomQuestionFilters struct {
	CourseID   *uint                   `json:"course_id"`
	Type       *models.QuestionType    `json:"type"`
	Difficulty *models.DifficultyLevel `json:"difficulty"`
	ExcludeIDs []uint                  `json:"exclude_ids"`
	Count      int                     `json:"count"`
}

// ===== SHARED STATISTICS STRUCTS =====

type TemplateStats struct {
	TotalAttempts     int     `json:"total_attempts"`
	CompletedAttempts int     `json:"completed_attempts"`
	Participants      int     `json:"participants"`
	CompletionRate    float64 `json:"completion_rate"`
	AverageAccuracy   float64 `json:"average_accuracy"`
	AverageScore      float64 `json:"average_score"`
	MaxScore          float64 `json:"max_score"`
	MinScore          float64 `json:"min_score"`
	PassRate          float64 `json:"pass_rate"`
	AverageTimeSpent  int     `json:"average_time_spent"` // seconds
}

type QuestionWrongRate struct {
	QuestionID   uint                `json:"question_id"`
	Title        string              `json:"title"`
	Type         models.QuestionType `json:"type"`
	TotalAnswers int                 `json:"total_answers"`
	WrongAnswers int                 `json:"wrong_answers"`
	WrongRate    float64             `json:"wrong_rate"`
}

type UserStats struct {
	TotalAttempts     int        `json:"total_attempts"`
	CompletedAttempts int        `json:"completed_attempts"`
	CompletionRate    float64    `json:"completion_rate"`
	AverageAccuracy   float64    `json:"average_accuracy"`
	AverageTimeSpent  int        `json:"average_time_spent"` // seconds
	RecentAttempts    int        `json:"recent_attempts"`    // inside the recent-activity window
	LastActivityAt    *time.Time `json:"last_activity_at"`
}

// WrongQuestionEntry is one row of a user's wrong-question collection,
// ordered by miss frequency then recency for review generation.
type WrongQuestionEntry struct {
	QuestionID   uint                   `json:"question_id"`
	Title        string                 `json:"title"`
	Type         models.QuestionType    `json:"type"`
	Difficulty   models.DifficultyLevel `json:"difficulty"`
	MissCount    int                    `json:"miss_count"`
	LastMissedAt time.Time              `json:"last_missed_at"`
}

type GradingStats struct {
	TotalAnswers   int     `json:"total_answers"`
	GradedAnswers  int     `json:"graded_answers"`
	PendingAnswers int     `json:"pending_answers"`
	AutoGraded     int     `json:"auto_graded"`
	ManualGraded   int     `json:"manual_graded"`
	AverageScore   float64 `json:"average_score"`
}

// AttemptRosterRow is one attempt in the instructor-facing results export.
type AttemptRosterRow struct {
	AttemptID     uint                 `json:"attempt_id"`
	UserID        string               `json:"user_id"`
	UserName      string               `json:"user_name"`
	Status        models.AttemptStatus `json:"status"`
	AttemptNumber int                  `json:"attempt_number"`
	AutoScore     float64              `json:"auto_score"`
	ManualScore   float64              `json:"manual_score"`
	TotalScore    float64              `json:"total_score"`
	Percentage    float64              `json:"percentage"`
	Passed        bool                 `json:"passed"`
	StartedAt     time.Time            `json:"started_at"`
	FinishedAt    *time.Time           `json:"finished_at"`
	TimeSpent     int                  `json:"time_spent"` // seconds
}
