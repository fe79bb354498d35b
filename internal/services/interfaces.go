package services

import (
	"context"
	"time"

	"github.com/eduforge/assessment-engine/internal/models"
	"github.com/eduforge/assessment-engine/internal/repositories"
	"github.com/eduforge/assessment-engine/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type CreateTemplateRequest = validator.TemplateCreateRequest
type UpdateTemplateRequest = validator.TemplateUpdateRequest
type TemplateQuestionRequest = validator.TemplateQuestionRequest

type TemplateResponse struct {
	*models.AssessmentTemplate
	CanEdit bool `json:"can_edit"`
	CanTake bool `json:"can_take"`
	Stats   *repositories.TemplateStats `json:"stats,omitempty"`
}

type TemplateListResponse struct {
	Templates []*TemplateResponse `json:"templates"`
	Total     int64               `json:"total"`
	Page      int                 `json:"page"`
	Size      int                 `json:"size"`
}

type UpdateStatusRequest struct {
	Status models.TemplateStatus `json:"status" validate:"required,oneof=draft published archived in_progress ended graded"`
	Reason *string               `json:"reason" validate:"omitempty,max=500"`
}

// ===== ATTEMPT RELATED DTOs =====

type StartAttemptRequest struct {
	TemplateID uint `json:"template_id" validate:"required"`
}

type SubmitAnswerRequest struct {
	QuestionID uint        `json:"question_id" validate:"required"`
	Content    string      `json:"content" validate:"required"`
	AnswerData interface{} `json:"answer_data"`
	TimeSpent  *int        `json:"time_spent" validate:"omitempty,min=0"`
}

type SubmitAttemptRequest struct {
	Answers []SubmitAnswerRequest `json:"answers" validate:"omitempty,dive"`
}

type AttemptResponse struct {
	*models.Attempt
	CanSubmit      bool                 `json:"can_submit"`
	CanResume      bool                 `json:"can_resume"`
	CanPause       bool                 `json:"can_pause"`
	IsPendingGrade bool                 `json:"is_pending_grade"`
	TimeRemaining  *int                 `json:"time_remaining,omitempty"` // seconds
	Questions      []QuestionForAttempt `json:"questions,omitempty"`
}

// QuestionForAttempt is a sanitized question in attempt order: the
// canonical answer never leaves the server while the attempt is active.
type QuestionForAttempt struct {
	*models.Question
	Order    int     `json:"order"`
	Points   float64 `json:"points"`
	Answered bool    `json:"answered"`
	Skipped  bool    `json:"skipped"`
	IsFirst  bool    `json:"is_first"`
	IsLast   bool    `json:"is_last"`
}

type AttemptListResponse struct {
	Attempts []*AttemptResponse `json:"attempts"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	Size     int                `json:"size"`
}

// AnswerFeedback is the per-answer grading echo. CorrectAnswer and
// Explanation are filled only when the template shows results and the
// submission was wrong.
type AnswerFeedback struct {
	QuestionID    uint    `json:"question_id"`
	IsCorrect     *bool   `json:"is_correct"`
	Score         float64 `json:"score"`
	MaxScore      float64 `json:"max_score"`
	NeedsGrading  bool    `json:"needs_grading"`
	CorrectAnswer string  `json:"correct_answer,omitempty"`
	Explanation   *string `json:"explanation,omitempty"`
}

type HintResponse struct {
	QuestionID uint   `json:"question_id"`
	Hint       string `json:"hint"`
}

type SkipResponse struct {
	QuestionID           uint `json:"question_id"`
	CurrentQuestionIndex int  `json:"current_question_index"`
	AnsweredQuestions    int  `json:"answered_questions"`
}

type TimeRemainingResponse struct {
	AttemptID     uint `json:"attempt_id"`
	TimeRemaining *int `json:"time_remaining"` // seconds, nil when unlimited
	Expired       bool `json:"expired"`
}

// ===== GRADING RELATED DTOs =====

type GradeAnswerRequest struct {
	Score float64 `json:"score" validate:"min=0"`
	Notes *string `json:"notes" validate:"omitempty,max=1000"`
}

type GradingResult struct {
	AnswerID   uint      `json:"answer_id"`
	QuestionID uint      `json:"question_id"`
	Score      float64   `json:"score"`
	MaxScore   float64   `json:"max_score"`
	IsCorrect  bool      `json:"is_correct"`
	GradedAt   time.Time `json:"graded_at"`
	GradedBy   *string   `json:"graded_by"`
}

type AttemptGradingResult struct {
	AttemptID   uint            `json:"attempt_id"`
	AutoScore   float64         `json:"auto_score"`
	ManualScore float64         `json:"manual_score"`
	TotalScore  float64         `json:"total_score"`
	MaxScore    float64         `json:"max_score"`
	Percentage  float64         `json:"percentage"`
	IsPassing   bool            `json:"is_passing"`
	IsFinal     bool            `json:"is_final"` // false while manual grading is pending
	Answers     []GradingResult `json:"answers"`
	GradedAt    time.Time       `json:"graded_at"`
}

// ===== STATISTICS RELATED DTOs =====

type TemplateStatsResponse struct {
	TemplateID uint                              `json:"template_id"`
	Title      string                            `json:"title"`
	Stats      *repositories.TemplateStats       `json:"stats"`
	Questions  []*repositories.QuestionWrongRate `json:"questions,omitempty"`
}

type UserStatsResponse struct {
	UserID string                  `json:"user_id"`
	Stats  *repositories.UserStats `json:"stats"`
}

type WrongQuestionListResponse struct {
	Questions []*repositories.WrongQuestionEntry `json:"questions"`
	Total     int64                              `json:"total"`
	Page      int                                `json:"page"`
	Size      int                                `json:"size"`
}

// ReviewSetResponse is a generated practice set: roughly half past
// misses, the rest unseen questions, capped at twenty.
type ReviewSetResponse struct {
	Questions  []*models.Question `json:"questions"`
	WrongCount int                `json:"wrong_count"`
	NewCount   int                `json:"new_count"`
}

type ReviewSetRequest struct {
	Count      int                     `json:"count" validate:"omitempty,min=1,max=20"`
	CourseID   *uint                   `json:"course_id"`
	Type       *models.QuestionType    `json:"type"`
	Difficulty *models.DifficultyLevel `json:"difficulty"`
}

// ===== EXPORT RELATED DTOs =====

type ExportResult struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// ===== SERVICE INTERFACES =====

type TemplateService interface {
	Create(ctx context.Context, req *CreateTemplateRequest, creatorID string) (*TemplateResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*TemplateResponse, error)
	GetByIDWithQuestions(ctx context.Context, id uint, userID string) (*TemplateResponse, error)
	Update(ctx context.Context, id uint, req *UpdateTemplateRequest, userID string) (*TemplateResponse, error)
	List(ctx context.Context, filters repositories.TemplateFilters, userID string) (*TemplateListResponse, error)

	// Status management
	UpdateStatus(ctx context.Context, id uint, req *UpdateStatusRequest, userID string) error
	Publish(ctx context.Context, id uint, userID string) error
	Archive(ctx context.Context, id uint, userID string) error

	// Permission checks
	CanEdit(ctx context.Context, templateID uint, userID string) (bool, error)
	CanTake(ctx context.Context, templateID uint, userID string) (bool, error)
}

type AttemptService interface {
	// Lifecycle
	Start(ctx context.Context, req *StartAttemptRequest, userID string) (*AttemptResponse, error)
	Pause(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error)
	Resume(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error)
	Complete(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error)
	Submit(ctx context.Context, attemptID uint, req *SubmitAttemptRequest, userID string) (*AttemptResponse, error)
	Abandon(ctx context.Context, attemptID uint, userID string) error

	// In-attempt operations
	SkipQuestion(ctx context.Context, attemptID, questionID uint, userID string) (*SkipResponse, error)
	GetHint(ctx context.Context, attemptID, questionID uint, userID string) (*HintResponse, error)
	GetTimeRemaining(ctx context.Context, attemptID uint, userID string) (*TimeRemainingResponse, error)

	// Reads
	GetByID(ctx context.Context, id uint, userID string) (*AttemptResponse, error)
	GetByIDWithDetails(ctx context.Context, id uint, userID string) (*AttemptResponse, error)
	GetCurrentAttempt(ctx context.Context, templateID uint, userID string) (*AttemptResponse, error)

	// Lists
	List(ctx context.Context, filters repositories.AttemptFilters, userID string) (*AttemptListResponse, error)
	GetByUser(ctx context.Context, userID string, filters repositories.AttemptFilters) (*AttemptListResponse, error)
	GetByTemplate(ctx context.Context, templateID uint, filters repositories.AttemptFilters, userID string) (*AttemptListResponse, error)
}

type GradingService interface {
	// Answer submission with immediate auto-grading
	SubmitAnswer(ctx context.Context, attemptID uint, req *SubmitAnswerRequest, userID string) (*AnswerFeedback, error)

	// Manual grading
	GradeAnswer(ctx context.Context, answerID uint, req *GradeAnswerRequest, graderID string) (*GradingResult, error)
	GradeAttempt(ctx context.Context, attemptID uint, graderID string) (*AttemptGradingResult, error)
	ListUngraded(ctx context.Context, templateID uint, filters repositories.AnswerFilters, userID string) ([]*models.Answer, int64, error)

	// Auto grading and score aggregation
	AutoGradeAttempt(ctx context.Context, attemptID uint) (*AttemptGradingResult, error)
	RecalculateScore(ctx context.Context, attemptID uint) (*AttemptGradingResult, error)

	// Statistics
	GetGradingOverview(ctx context.Context, templateID uint, userID string) (*repositories.GradingStats, error)
}

type StatisticsService interface {
	GetTemplateStats(ctx context.Context, templateID uint, userID string) (*TemplateStatsResponse, error)
	GetUserStats(ctx context.Context, userID, requesterID string) (*UserStatsResponse, error)
	GetWrongQuestions(ctx context.Context, userID string, filters repositories.WrongQuestionFilters) (*WrongQuestionListResponse, error)
	GenerateReviewSet(ctx context.Context, userID string, req *ReviewSetRequest) (*ReviewSetResponse, error)
}

type ExportService interface {
	ExportTemplateResults(ctx context.Context, templateID uint, userID string) (*ExportResult, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Template() TemplateService
	Attempt() AttemptService
	Grading() GradingService
	Statistics() StatisticsService
	Export() ExportService

	// Health and lifecycle
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
