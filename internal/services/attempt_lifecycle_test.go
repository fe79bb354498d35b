package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/eduforge/assessment-engine/internal/models"
	"github.com/eduforge/assessment-engine/internal/repositories"
	"github.com/eduforge/assessment-engine/internal/validator"
	"gorm.io/gorm"
)

// ===== STUB REPOSITORIES =====

type stubTemplateRepo struct {
	template *models.AssessmentTemplate
	binding  *models.TemplateQuestion
}

func (r *stubTemplateRepo) Create(ctx context.Context, tx *gorm.DB, template *models.AssessmentTemplate) error {
	return nil
}
func (r *stubTemplateRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AssessmentTemplate, error) {
	if r.template != nil && r.template.ID == id {
		return r.template, nil
	}
	return nil, gorm.ErrRecordNotFound
}
func (r *stubTemplateRepo) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.AssessmentTemplate, error) {
	return r.GetByID(ctx, tx, id)
}
func (r *stubTemplateRepo) Update(ctx context.Context, tx *gorm.DB, template *models.AssessmentTemplate) error {
	return nil
}
func (r *stubTemplateRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.TemplateStatus) error {
	return nil
}
func (r *stubTemplateRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.TemplateFilters) ([]*models.AssessmentTemplate, int64, error) {
	return nil, 0, nil
}
func (r *stubTemplateRepo) ReplaceQuestions(ctx context.Context, tx *gorm.DB, templateID uint, bindings []*models.TemplateQuestion) error {
	return nil
}
func (r *stubTemplateRepo) GetQuestions(ctx context.Context, tx *gorm.DB, templateID uint) ([]*models.TemplateQuestion, error) {
	if r.binding != nil {
		return []*models.TemplateQuestion{r.binding}, nil
	}
	return nil, nil
}
func (r *stubTemplateRepo) GetQuestionBinding(ctx context.Context, tx *gorm.DB, templateID, questionID uint) (*models.TemplateQuestion, error) {
	if r.binding != nil && r.binding.QuestionID == questionID {
		return r.binding, nil
	}
	return nil, gorm.ErrRecordNotFound
}
func (r *stubTemplateRepo) CountQuestions(ctx context.Context, tx *gorm.DB, templateID uint) (int64, error) {
	return 0, nil
}
func (r *stubTemplateRepo) HasNonDraftAttempts(ctx context.Context, tx *gorm.DB, templateID uint) (bool, error) {
	return false, nil
}

type stubQuestionRepo struct {
	question *models.Question
}

func (r *stubQuestionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	if r.question != nil && r.question.ID == id {
		return r.question, nil
	}
	return nil, gorm.ErrRecordNotFound
}
func (r *stubQuestionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	return nil, nil
}
func (r *stubQuestionRepo) GetByTemplate(ctx context.Context, tx *gorm.DB, templateID uint) ([]*models.Question, error) {
	return nil, nil
}
func (r *stubQuestionRepo) GetRandom(ctx context.Context, tx *gorm.DB, filters repositories.RandomQuestionFilters) ([]*models.Question, error) {
	return nil, nil
}
func (r *stubQuestionRepo) ExistsByID(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	return r.question != nil && r.question.ID == id, nil
}

type stubAttemptRepo struct {
	attempt *models.Attempt
	active  bool
	created *models.Attempt
}

func (r *stubAttemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	attempt.ID = 99
	r.created = attempt
	r.attempt = attempt
	return nil
}
func (r *stubAttemptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error) {
	if r.attempt != nil && r.attempt.ID == id {
		return r.attempt, nil
	}
	return nil, gorm.ErrRecordNotFound
}
func (r *stubAttemptRepo) Update(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	return nil
}
func (r *stubAttemptRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error { return nil }
func (r *stubAttemptRepo) GetActiveAttempt(ctx context.Context, tx *gorm.DB, userID string, templateID uint) (*models.Attempt, error) {
	if r.active && r.attempt != nil {
		return r.attempt, nil
	}
	return nil, gorm.ErrRecordNotFound
}
func (r *stubAttemptRepo) HasActiveAttempt(ctx context.Context, tx *gorm.DB, userID string, templateID uint) (bool, error) {
	return r.active, nil
}
func (r *stubAttemptRepo) CountByUserAndTemplate(ctx context.Context, tx *gorm.DB, userID string, templateID uint) (int64, error) {
	return 0, nil
}
func (r *stubAttemptRepo) GetNextAttemptNumber(ctx context.Context, tx *gorm.DB, userID string, templateID uint) (int, error) {
	return 1, nil
}
func (r *stubAttemptRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	return nil, 0, nil
}
func (r *stubAttemptRepo) GetByUser(ctx context.Context, tx *gorm.DB, userID string, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	return nil, 0, nil
}
func (r *stubAttemptRepo) GetByTemplate(ctx context.Context, tx *gorm.DB, templateID uint, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	return nil, 0, nil
}
func (r *stubAttemptRepo) UpdateProgress(ctx context.Context, tx *gorm.DB, attemptID uint) error {
	return nil
}

type stubAnswerRepo struct {
	upserted *models.Answer
}

func (r *stubAnswerRepo) Upsert(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	r.upserted = answer
	return nil
}
func (r *stubAnswerRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Answer, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *stubAnswerRepo) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.Answer, error) {
	return nil, nil
}
func (r *stubAnswerRepo) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.Answer, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *stubAnswerRepo) HasAnswer(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (bool, error) {
	return false, nil
}
func (r *stubAnswerRepo) Update(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	return nil
}
func (r *stubAnswerRepo) CountAnswered(ctx context.Context, tx *gorm.DB, attemptID uint) (int64, error) {
	return 0, nil
}
func (r *stubAnswerRepo) CountCorrect(ctx context.Context, tx *gorm.DB, attemptID uint) (int64, error) {
	return 0, nil
}
func (r *stubAnswerRepo) SumAutoScore(ctx context.Context, tx *gorm.DB, attemptID uint) (float64, error) {
	return 0, nil
}
func (r *stubAnswerRepo) SumManualScore(ctx context.Context, tx *gorm.DB, attemptID uint) (float64, error) {
	return 0, nil
}
func (r *stubAnswerRepo) HasUngraded(ctx context.Context, tx *gorm.DB, attemptID uint) (bool, error) {
	return false, nil
}
func (r *stubAnswerRepo) ListUngraded(ctx context.Context, tx *gorm.DB, templateID uint, filters repositories.AnswerFilters) ([]*models.Answer, int64, error) {
	return nil, 0, nil
}
func (r *stubAnswerRepo) GetGradingStats(ctx context.Context, tx *gorm.DB, templateID uint) (*repositories.GradingStats, error) {
	return &repositories.GradingStats{}, nil
}

type stubRepository struct {
	templates *stubTemplateRepo
	questions *stubQuestionRepo
	attempts  *stubAttemptRepo
	answers   *stubAnswerRepo
}

func newStubRepository() *stubRepository {
	return &stubRepository{
		templates: &stubTemplateRepo{},
		questions: &stubQuestionRepo{},
		attempts:  &stubAttemptRepo{},
		answers:   &stubAnswerRepo{},
	}
}

func (r *stubRepository) Template() repositories.TemplateRepository     { return r.templates }
func (r *stubRepository) Question() repositories.QuestionRepository     { return r.questions }
func (r *stubRepository) Attempt() repositories.AttemptRepository       { return r.attempts }
func (r *stubRepository) Answer() repositories.AnswerRepository         { return r.answers }
func (r *stubRepository) Statistics() repositories.StatisticsRepository { return nil }
func (r *stubRepository) User() repositories.UserRepository             { return nil }
func (r *stubRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(r)
}
func (r *stubRepository) Ping(ctx context.Context) error { return nil }
func (r *stubRepository) Close() error                   { return nil }

// ===== FIXTURES =====

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func publishedPracticeTemplate() *models.AssessmentTemplate {
	return &models.AssessmentTemplate{
		ID:           7,
		Kind:         models.KindPractice,
		Status:       models.TemplatePublished,
		Title:        "Arithmetic drill",
		TotalPoints:  10,
		PassingScore: 6,
		ShowResults:  true,
		Questions: []models.TemplateQuestion{
			{TemplateID: 7, QuestionID: 11, Order: 1, Points: 10},
		},
	}
}

// ===== START =====

func TestStartRejectsSecondActiveAttempt(t *testing.T) {
	repo := newStubRepository()
	repo.templates.template = publishedPracticeTemplate()
	repo.attempts.active = true
	repo.attempts.attempt = &models.Attempt{
		ID:         42,
		TemplateID: 7,
		UserID:     "student-1",
		Kind:       models.KindPractice,
		Status:     models.AttemptInProgress,
		StartedAt:  time.Now(),
	}

	svc := NewAttemptService(repo, nil, discardLogger(), validator.New(), nil)

	_, err := svc.Start(context.Background(), &StartAttemptRequest{TemplateID: 7}, "student-1")
	if !errors.Is(err, ErrActiveAttemptExists) {
		t.Fatalf("got %v, want ErrActiveAttemptExists", err)
	}
	if repo.attempts.created != nil {
		t.Error("no new attempt may be created while one is active")
	}
}

func TestStartCreatesAttemptWhenNoneActive(t *testing.T) {
	repo := newStubRepository()
	template := publishedPracticeTemplate()
	repo.templates.template = template
	repo.templates.binding = &template.Questions[0]
	repo.questions.question = &models.Question{
		ID:    11,
		Type:  models.MultipleChoice,
		Title: "2+2",
	}

	svc := NewAttemptService(repo, nil, discardLogger(), validator.New(), nil)

	resp, err := svc.Start(context.Background(), &StartAttemptRequest{TemplateID: 7}, "student-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if repo.attempts.created == nil {
		t.Fatal("expected an attempt row")
	}
	if resp.Status != models.AttemptInProgress {
		t.Errorf("got status %q, want in_progress", resp.Status)
	}
	if resp.AttemptNumber != 1 {
		t.Errorf("got attempt number %d, want 1", resp.AttemptNumber)
	}
}

// ===== ANSWER SUBMISSION =====

func submissionFixture(t *testing.T, status models.AttemptStatus) (*stubRepository, *models.Attempt) {
	t.Helper()

	repo := newStubRepository()
	template := publishedPracticeTemplate()
	repo.templates.template = template
	repo.templates.binding = &template.Questions[0]
	repo.questions.question = &models.Question{
		ID:            11,
		Type:          models.MultipleChoice,
		Title:         "2+2",
		CorrectAnswer: "b",
	}

	sessionData, err := encodeSessionData(template.SnapshotSettings())
	if err != nil {
		t.Fatalf("encodeSessionData: %v", err)
	}
	attempt := &models.Attempt{
		ID:             42,
		TemplateID:     7,
		UserID:         "student-1",
		Kind:           models.KindPractice,
		Status:         status,
		StartedAt:      time.Now().Add(-5 * time.Minute),
		TotalQuestions: 1,
		SessionData:    sessionData,
	}
	if status == models.AttemptPaused {
		pausedAt := time.Now().Add(-time.Minute)
		attempt.PausedAt = &pausedAt
	}
	repo.attempts.attempt = attempt
	return repo, attempt
}

func TestSubmitAnswerAcceptsPausedAttempt(t *testing.T) {
	repo, _ := submissionFixture(t, models.AttemptPaused)
	svc := NewGradingService(nil, repo, discardLogger(), validator.New(), nil)

	feedback, err := svc.SubmitAnswer(context.Background(), 42, &SubmitAnswerRequest{
		QuestionID: 11,
		Content:    "b",
	}, "student-1")
	if err != nil {
		t.Fatalf("paused attempts accept answers, got %v", err)
	}
	if repo.answers.upserted == nil {
		t.Fatal("expected an answer row")
	}
	if feedback.IsCorrect == nil || !*feedback.IsCorrect {
		t.Errorf("got feedback %+v, want a correct verdict", feedback)
	}
	if feedback.Score != 10 {
		t.Errorf("got score %v, want 10", feedback.Score)
	}
}

func TestSubmitAnswerRefusesTerminalAttempt(t *testing.T) {
	repo, _ := submissionFixture(t, models.AttemptSubmitted)
	svc := NewGradingService(nil, repo, discardLogger(), validator.New(), nil)

	_, err := svc.SubmitAnswer(context.Background(), 42, &SubmitAnswerRequest{
		QuestionID: 11,
		Content:    "b",
	}, "student-1")
	if !errors.Is(err, ErrAttemptAlreadySubmitted) {
		t.Fatalf("got %v, want ErrAttemptAlreadySubmitted", err)
	}
	if repo.answers.upserted != nil {
		t.Error("terminal attempts must not accept answers")
	}
}
