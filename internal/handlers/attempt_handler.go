package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/eduforge/assessment-engine/internal/models"
	"github.com/eduforge/assessment-engine/internal/repositories"
	"github.com/eduforge/assessment-engine/internal/services"
	"github.com/eduforge/assessment-engine/internal/utils"
	"github.com/eduforge/assessment-engine/internal/validator"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
	validator      *validator.Validator
}

func NewAttemptHandler(
	attemptService services.AttemptService,
	validator *validator.Validator,
	logger utils.Logger,
) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
		validator:      validator,
	}
}

// StartAttempt starts a new attempt or returns the caller's active one
// @Summary Start attempt
// @Tags attempts
// @Accept json
// @Produce json
// @Param attempt body services.StartAttemptRequest true "Start attempt data"
// @Success 201 {object} services.AttemptResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /attempts/start [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	h.LogRequest(c, "Starting attempt")

	var req services.StartAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, attempt)
}

// PauseAttempt pauses a practice attempt
// @Summary Pause attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptResponse
// @Router /attempts/{id}/pause [put]
func (h *AttemptHandler) PauseAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	h.LogRequest(c, "Pausing attempt", "attempt_id", id)

	attempt, err := h.attemptService.Pause(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// ResumeAttempt resumes a paused practice attempt
// @Summary Resume attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptResponse
// @Router /attempts/{id}/resume [put]
func (h *AttemptHandler) ResumeAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	h.LogRequest(c, "Resuming attempt", "attempt_id", id)

	attempt, err := h.attemptService.Resume(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// CompleteAttempt finishes a practice attempt
// @Summary Complete attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptResponse
// @Router /attempts/{id}/complete [put]
func (h *AttemptHandler) CompleteAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	h.LogRequest(c, "Completing attempt", "attempt_id", id)

	attempt, err := h.attemptService.Complete(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// SubmitAttempt submits an exam attempt with any final answers
// @Summary Submit attempt
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param attempt body services.SubmitAttemptRequest true "Final answers"
// @Success 200 {object} services.AttemptResponse
// @Failure 410 {object} ErrorResponse
// @Router /attempts/{id}/submit [put]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	var req services.SubmitAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Submitting attempt", "attempt_id", id, "final_answers", len(req.Answers))

	attempt, err := h.attemptService.Submit(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// AbandonAttempt abandons a practice attempt
// @Summary Abandon attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 204
// @Router /attempts/{id}/abandon [put]
func (h *AttemptHandler) AbandonAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	h.LogRequest(c, "Abandoning attempt", "attempt_id", id)

	if err := h.attemptService.Abandon(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// SkipQuestion marks a question as skipped and advances the cursor
// @Summary Skip question
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param question_id path uint true "Question ID"
// @Success 200 {object} services.SkipResponse
// @Failure 409 {object} ErrorResponse
// @Router /attempts/{id}/questions/{question_id}/skip [post]
func (h *AttemptHandler) SkipQuestion(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	questionID := h.parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	h.LogRequest(c, "Skipping question", "attempt_id", id, "question_id", questionID)

	resp, err := h.attemptService.SkipQuestion(c.Request.Context(), id, questionID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetHint returns the static hint for a question type
// @Summary Get question hint
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param question_id path uint true "Question ID"
// @Success 200 {object} services.HintResponse
// @Failure 409 {object} ErrorResponse
// @Router /attempts/{id}/questions/{question_id}/hint [get]
func (h *AttemptHandler) GetHint(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	questionID := h.parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	hint, err := h.attemptService.GetHint(c.Request.Context(), id, questionID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, hint)
}

// GetTimeRemaining reports seconds left, finalizing expired attempts
// @Summary Get time remaining
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.TimeRemainingResponse
// @Router /attempts/{id}/time-remaining [get]
func (h *AttemptHandler) GetTimeRemaining(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	remaining, err := h.attemptService.GetTimeRemaining(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, remaining)
}

// GetAttempt retrieves one attempt
// @Summary Get attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptResponse
// @Router /attempts/{id} [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	attempt, err := h.attemptService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// GetAttemptWithDetails retrieves an attempt with its question views
// @Summary Get attempt with details
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptResponse
// @Router /attempts/{id}/details [get]
func (h *AttemptHandler) GetAttemptWithDetails(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	attempt, err := h.attemptService.GetByIDWithDetails(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// GetCurrentAttempt returns the caller's active attempt on a template
// @Summary Get current attempt
// @Tags attempts
// @Produce json
// @Param template_id path uint true "Template ID"
// @Success 200 {object} services.AttemptResponse
// @Router /attempts/current/{template_id} [get]
func (h *AttemptHandler) GetCurrentAttempt(c *gin.Context) {
	templateID := h.parseIDParam(c, "template_id")
	if templateID == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	attempt, err := h.attemptService.GetCurrentAttempt(c.Request.Context(), templateID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// ListAttempts lists attempts with filters
// @Summary List attempts
// @Tags attempts
// @Produce json
// @Success 200 {object} services.AttemptListResponse
// @Router /attempts [get]
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	filters := h.parseAttemptFilters(c)
	attempts, err := h.attemptService.List(c.Request.Context(), filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempts)
}

// GetMyAttempts lists the caller's own attempts
// @Summary List own attempts
// @Tags attempts
// @Produce json
// @Success 200 {object} services.AttemptListResponse
// @Router /attempts/me [get]
func (h *AttemptHandler) GetMyAttempts(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	filters := h.parseAttemptFilters(c)
	attempts, err := h.attemptService.GetByUser(c.Request.Context(), userID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempts)
}

// GetAttemptsByTemplate lists attempts on one template
// @Summary List attempts by template
// @Tags attempts
// @Produce json
// @Param template_id path uint true "Template ID"
// @Success 200 {object} services.AttemptListResponse
// @Router /attempts/template/{template_id} [get]
func (h *AttemptHandler) GetAttemptsByTemplate(c *gin.Context) {
	templateID := h.parseIDParam(c, "template_id")
	if templateID == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	filters := h.parseAttemptFilters(c)
	attempts, err := h.attemptService.GetByTemplate(c.Request.Context(), templateID, filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempts)
}

func (h *AttemptHandler) parseAttemptFilters(c *gin.Context) repositories.AttemptFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 10)

	filters := repositories.AttemptFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.DefaultQuery("sort_by", "started_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}

	if status := c.Query("status"); status != "" {
		attemptStatus := models.AttemptStatus(status)
		filters.Status = &attemptStatus
	}

	if kind := c.Query("kind"); kind != "" {
		templateKind := models.TemplateKind(kind)
		filters.Kind = &templateKind
	}

	if userIDStr := strings.TrimSpace(c.Query("user_id")); userIDStr != "" {
		filters.UserID = &userIDStr
	}

	if templateID := h.parseIntQuery(c, "template_id", 0); templateID > 0 {
		id := uint(templateID)
		filters.TemplateID = &id
	}

	return filters
}
