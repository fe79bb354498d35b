package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eduforge/assessment-engine/internal/events"
	"github.com/eduforge/assessment-engine/internal/models"
	"github.com/eduforge/assessment-engine/internal/repositories"
	"github.com/eduforge/assessment-engine/internal/validator"
	"gorm.io/gorm"
)

type templateService struct {
	db        *gorm.DB
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	events    events.EventPublisher

	attempts *attemptService
}

func NewTemplateService(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher) TemplateService {
	return &templateService{
		db:        db,
		repo:      repo,
		logger:    logger,
		validator: validator,
		events:    publisher,
		attempts: &attemptService{
			repo:      repo,
			db:        db,
			logger:    logger,
			validator: validator,
			events:    publisher,
		},
	}
}

// ===== CRUD =====

func (s *templateService) Create(ctx context.Context, req *CreateTemplateRequest, creatorID string) (*TemplateResponse, error) {
	s.logger.Info("Creating template",
		"kind", req.Kind,
		"title", req.Title,
		"creator_id", creatorID)

	if errs := s.validator.GetBusinessValidator().ValidateTemplateCreate(req); len(errs) > 0 {
		return nil, fmt.Errorf("validation failed: %w", errs)
	}

	if err := s.checkQuestionsExist(ctx, req.Questions); err != nil {
		return nil, err
	}

	showResults := true
	if req.ShowResults != nil {
		showResults = *req.ShowResults
	}

	template := &models.AssessmentTemplate{
		Kind:             req.Kind,
		Title:            req.Title,
		Description:      req.Description,
		Status:           models.TemplateDraft,
		CourseID:         req.CourseID,
		TimeLimit:        req.TimeLimit,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		TotalPoints:      req.TotalPoints,
		PassingScore:     req.PassingScore,
		MaxAttempts:      req.MaxAttempts,
		ShuffleQuestions: req.Shuffle,
		ShowResults:      showResults,
		CreatedBy:        creatorID,
	}
	if template.TotalPoints == 0 {
		template.TotalPoints = totalPointsOf(req.Questions)
	}

	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Template().Create(ctx, nil, template); err != nil {
			return fmt.Errorf("failed to create template: %w", err)
		}
		if len(req.Questions) > 0 {
			bindings := buildBindings(req.Questions)
			if err := txRepo.Template().ReplaceQuestions(ctx, nil, template.ID, bindings); err != nil {
				return fmt.Errorf("failed to bind questions: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Template created", "template_id", template.ID)
	return s.GetByIDWithQuestions(ctx, template.ID, creatorID)
}

func (s *templateService) GetByID(ctx context.Context, id uint, userID string) (*TemplateResponse, error) {
	template, err := s.repo.Template().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return s.buildResponse(ctx, template, userID)
}

func (s *templateService) GetByIDWithQuestions(ctx context.Context, id uint, userID string) (*TemplateResponse, error) {
	template, err := s.repo.Template().GetByIDWithQuestions(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	template.QuestionCount = len(template.Questions)
	return s.buildResponse(ctx, template, userID)
}

// Update edits a template. Scoring-relevant fields freeze once any attempt
// exists so historical scores stay comparable.
func (s *templateService) Update(ctx context.Context, id uint, req *UpdateTemplateRequest, userID string) (*TemplateResponse, error) {
	template, err := s.repo.Template().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if template.CreatedBy != userID {
		allowed, err := s.attempts.canViewOthers(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, NewPermissionError(userID, id, "template", "update", "only the creator or an instructor may edit")
		}
	}

	if errs := s.validator.GetBusinessValidator().ValidateTemplateUpdate(req, template); len(errs) > 0 {
		return nil, fmt.Errorf("validation failed: %w", errs)
	}

	locked, err := s.repo.Template().HasNonDraftAttempts(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("failed to check edit lock: %w", err)
	}
	if locked && touchesStructure(req) {
		return nil, ErrTemplateNotEditable
	}

	applyUpdate(template, req)

	if err := s.checkQuestionsExist(ctx, req.Questions); err != nil {
		return nil, err
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Template().Update(ctx, nil, template); err != nil {
			return fmt.Errorf("failed to update template: %w", err)
		}
		if req.Questions != nil {
			bindings := buildBindings(req.Questions)
			if err := txRepo.Template().ReplaceQuestions(ctx, nil, template.ID, bindings); err != nil {
				return fmt.Errorf("failed to rebind questions: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Template updated", "template_id", id)
	return s.GetByIDWithQuestions(ctx, id, userID)
}

func (s *templateService) List(ctx context.Context, filters repositories.TemplateFilters, userID string) (*TemplateListResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	}
	if filters.Limit > 100 {
		filters.Limit = 100
	}

	// Non-privileged users only see published work or their own drafts.
	allowed, err := s.attempts.canViewOthers(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !allowed && filters.Status == nil && (filters.CreatedBy == nil || *filters.CreatedBy != userID) {
		published := models.TemplatePublished
		filters.Status = &published
	}

	templates, total, err := s.repo.Template().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	responses := make([]*TemplateResponse, 0, len(templates))
	for _, t := range templates {
		resp, err := s.buildResponse(ctx, t, userID)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}

	return &TemplateListResponse{
		Templates: responses,
		Total:     total,
		Page:      filters.Offset/filters.Limit + 1,
		Size:      filters.Limit,
	}, nil
}

// ===== STATUS MANAGEMENT =====

func (s *templateService) UpdateStatus(ctx context.Context, id uint, req *UpdateStatusRequest, userID string) error {
	if err := s.validator.Validate(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	template, err := s.repo.Template().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrTemplateNotFound
		}
		return fmt.Errorf("failed to get template: %w", err)
	}

	if err := s.attempts.requireTemplateAccess(ctx, id, userID, "change status"); err != nil {
		return err
	}

	questionCount, err := s.repo.Template().CountQuestions(ctx, nil, id)
	if err != nil {
		return fmt.Errorf("failed to count questions: %w", err)
	}

	if errs := s.validator.GetBusinessValidator().ValidateStatusTransition(template.Kind, template.Status, req.Status, int(questionCount)); len(errs) > 0 {
		return fmt.Errorf("validation failed: %w", errs)
	}

	if err := s.repo.Template().UpdateStatus(ctx, nil, id, req.Status); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	s.logger.Info("Template status changed",
		"template_id", id,
		"from", template.Status,
		"to", req.Status)

	if req.Status == models.TemplatePublished {
		s.publishTemplateEvent(ctx, template)
	}
	return nil
}

func (s *templateService) Publish(ctx context.Context, id uint, userID string) error {
	return s.UpdateStatus(ctx, id, &UpdateStatusRequest{Status: models.TemplatePublished}, userID)
}

func (s *templateService) Archive(ctx context.Context, id uint, userID string) error {
	return s.UpdateStatus(ctx, id, &UpdateStatusRequest{Status: models.TemplateArchived}, userID)
}

// ===== PERMISSIONS =====

func (s *templateService) CanEdit(ctx context.Context, templateID uint, userID string) (bool, error) {
	template, err := s.repo.Template().GetByID(ctx, nil, templateID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, ErrTemplateNotFound
		}
		return false, fmt.Errorf("failed to get template: %w", err)
	}

	if template.CreatedBy != userID {
		allowed, err := s.attempts.canViewOthers(ctx, userID)
		if err != nil || !allowed {
			return false, err
		}
	}

	locked, err := s.repo.Template().HasNonDraftAttempts(ctx, nil, templateID)
	if err != nil {
		return false, fmt.Errorf("failed to check edit lock: %w", err)
	}
	return !locked, nil
}

func (s *templateService) CanTake(ctx context.Context, templateID uint, userID string) (bool, error) {
	template, err := s.repo.Template().GetByID(ctx, nil, templateID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, ErrTemplateNotFound
		}
		return false, fmt.Errorf("failed to get template: %w", err)
	}

	if err := s.attempts.checkTemplateOpen(template, time.Now()); err != nil {
		return false, nil
	}

	count, err := s.repo.Attempt().CountByUserAndTemplate(ctx, nil, userID, templateID)
	if err != nil {
		return false, fmt.Errorf("failed to count attempts: %w", err)
	}
	if template.MaxAttempts > 0 && int(count) >= template.MaxAttempts {
		return false, nil
	}
	return true, nil
}

// ===== HELPERS =====

func (s *templateService) buildResponse(ctx context.Context, template *models.AssessmentTemplate, userID string) (*TemplateResponse, error) {
	resp := &TemplateResponse{AssessmentTemplate: template}

	if template.CreatedBy == userID {
		locked, err := s.repo.Template().HasNonDraftAttempts(ctx, nil, template.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check edit lock: %w", err)
		}
		resp.CanEdit = !locked
	}

	if err := s.attempts.checkTemplateOpen(template, time.Now()); err == nil {
		resp.CanTake = true
	}
	return resp, nil
}

// checkQuestionsExist refuses bindings that point at missing questions.
func (s *templateService) checkQuestionsExist(ctx context.Context, questions []TemplateQuestionRequest) error {
	for _, q := range questions {
		exists, err := s.repo.Question().ExistsByID(ctx, nil, q.QuestionID)
		if err != nil {
			return fmt.Errorf("failed to check question %d: %w", q.QuestionID, err)
		}
		if !exists {
			return NewBusinessRuleError(ErrQuestionNotFound, "question %d does not exist", q.QuestionID)
		}
	}
	return nil
}

func (s *templateService) publishTemplateEvent(ctx context.Context, template *models.AssessmentTemplate) {
	if s.events == nil {
		return
	}
	event := events.NewEvent(events.EventTemplatePublished, &events.TemplateEvent{
		TemplateID: template.ID,
		Kind:       string(template.Kind),
		Title:      template.Title,
		CreatedBy:  template.CreatedBy,
	})
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish template event",
			"template_id", template.ID,
			"error", err)
	}
}

func buildBindings(questions []TemplateQuestionRequest) []*models.TemplateQuestion {
	bindings := make([]*models.TemplateQuestion, 0, len(questions))
	for _, q := range questions {
		required := true
		if q.Required != nil {
			required = *q.Required
		}
		bindings = append(bindings, &models.TemplateQuestion{
			QuestionID: q.QuestionID,
			Order:      q.Order,
			Points:     q.Points,
			Required:   required,
		})
	}
	return bindings
}

func totalPointsOf(questions []TemplateQuestionRequest) float64 {
	var total float64
	for _, q := range questions {
		total += q.Points
	}
	if total == 0 {
		total = 100
	}
	return total
}

// touchesStructure reports whether an update hits a frozen field.
func touchesStructure(req *UpdateTemplateRequest) bool {
	return req.Questions != nil ||
		req.TotalPoints != nil ||
		req.PassingScore != nil ||
		req.TimeLimit != nil ||
		req.MaxAttempts != nil
}

func applyUpdate(template *models.AssessmentTemplate, req *UpdateTemplateRequest) {
	if req.Title != nil {
		template.Title = *req.Title
	}
	if req.Description != nil {
		template.Description = req.Description
	}
	if req.TimeLimit != nil {
		template.TimeLimit = *req.TimeLimit
	}
	if req.StartTime != nil {
		template.StartTime = req.StartTime
	}
	if req.EndTime != nil {
		template.EndTime = req.EndTime
	}
	if req.TotalPoints != nil {
		template.TotalPoints = *req.TotalPoints
	}
	if req.PassingScore != nil {
		template.PassingScore = *req.PassingScore
	}
	if req.MaxAttempts != nil {
		template.MaxAttempts = *req.MaxAttempts
	}
	if req.Shuffle != nil {
		template.ShuffleQuestions = *req.Shuffle
	}
	if req.ShowResults != nil {
		template.ShowResults = *req.ShowResults
	}
}
