package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/eduforge/assessment-engine/internal/repositories"
	"github.com/eduforge/assessment-engine/internal/services"
	"github.com/eduforge/assessment-engine/internal/utils"
	"github.com/eduforge/assessment-engine/internal/validator"
)

type GradingHandler struct {
	BaseHandler
	gradingService services.GradingService
	validator      *validator.Validator
}

func NewGradingHandler(
	gradingService services.GradingService,
	validator *validator.Validator,
	logger utils.Logger,
) *GradingHandler {
	return &GradingHandler{
		BaseHandler:    NewBaseHandler(logger),
		gradingService: gradingService,
		validator:      validator,
	}
}

// SubmitAnswer records an answer and returns immediate grading feedback
// @Summary Submit answer
// @Tags grading
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param answer body services.SubmitAnswerRequest true "Answer data"
// @Success 200 {object} services.AnswerFeedback
// @Failure 409 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /attempts/{id}/answers [post]
func (h *GradingHandler) SubmitAnswer(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	var req services.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Submitting answer", "attempt_id", id, "question_id", req.QuestionID)

	feedback, err := h.gradingService.SubmitAnswer(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, feedback)
}

// GradeAnswer applies a manual grade to one answer
// @Summary Grade answer
// @Tags grading
// @Accept json
// @Produce json
// @Param answer_id path uint true "Answer ID"
// @Param grade body services.GradeAnswerRequest true "Grade data"
// @Success 200 {object} services.GradingResult
// @Failure 422 {object} ErrorResponse
// @Router /grading/answers/{answer_id} [post]
func (h *GradingHandler) GradeAnswer(c *gin.Context) {
	answerID := h.parseIDParam(c, "answer_id")
	if answerID == 0 {
		return
	}
	graderID := h.getUserID(c)
	if graderID == "" {
		return
	}

	var req services.GradeAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Grading answer", "answer_id", answerID, "score", req.Score)

	result, err := h.gradingService.GradeAnswer(c.Request.Context(), answerID, &req, graderID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GradeAttempt finishes grading an attempt
// @Summary Grade attempt
// @Tags grading
// @Produce json
// @Param attempt_id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptGradingResult
// @Router /grading/attempts/{attempt_id} [post]
func (h *GradingHandler) GradeAttempt(c *gin.Context) {
	attemptID := h.parseIDParam(c, "attempt_id")
	if attemptID == 0 {
		return
	}
	graderID := h.getUserID(c)
	if graderID == "" {
		return
	}

	h.LogRequest(c, "Grading attempt", "attempt_id", attemptID)

	result, err := h.gradingService.GradeAttempt(c.Request.Context(), attemptID, graderID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// AutoGradeAttempt re-applies the deterministic grading rules
// @Summary Auto-grade attempt
// @Tags grading
// @Produce json
// @Param attempt_id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptGradingResult
// @Router /grading/attempts/{attempt_id}/auto [post]
func (h *GradingHandler) AutoGradeAttempt(c *gin.Context) {
	attemptID := h.parseIDParam(c, "attempt_id")
	if attemptID == 0 {
		return
	}

	h.LogRequest(c, "Auto-grading attempt", "attempt_id", attemptID)

	result, err := h.gradingService.AutoGradeAttempt(c.Request.Context(), attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RecalculateScore rebuilds an attempt's aggregate scores
// @Summary Recalculate score
// @Tags grading
// @Produce json
// @Param attempt_id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptGradingResult
// @Router /grading/attempts/{attempt_id}/recalculate [post]
func (h *GradingHandler) RecalculateScore(c *gin.Context) {
	attemptID := h.parseIDParam(c, "attempt_id")
	if attemptID == 0 {
		return
	}

	result, err := h.gradingService.RecalculateScore(c.Request.Context(), attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListUngraded lists answers awaiting manual grading on a template
// @Summary List ungraded answers
// @Tags grading
// @Produce json
// @Param template_id path uint true "Template ID"
// @Success 200 {object} SuccessResponse
// @Router /grading/templates/{template_id}/ungraded [get]
func (h *GradingHandler) ListUngraded(c *gin.Context) {
	templateID := h.parseIDParam(c, "template_id")
	if templateID == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	filters := h.parseAnswerFilters(c)
	answers, total, err := h.gradingService.ListUngraded(c.Request.Context(), templateID, filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Ungraded answers retrieved successfully",
		Data: gin.H{
			"answers": answers,
			"total":   total,
		},
	})
}

// GetGradingOverview reports grading progress for a template
// @Summary Grading overview
// @Tags grading
// @Produce json
// @Param template_id path uint true "Template ID"
// @Success 200 {object} repositories.GradingStats
// @Router /grading/templates/{template_id}/overview [get]
func (h *GradingHandler) GetGradingOverview(c *gin.Context) {
	templateID := h.parseIDParam(c, "template_id")
	if templateID == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	stats, err := h.gradingService.GetGradingOverview(c.Request.Context(), templateID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *GradingHandler) parseAnswerFilters(c *gin.Context) repositories.AnswerFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 20)

	filters := repositories.AnswerFilters{
		Limit:  size,
		Offset: (page - 1) * size,
	}

	if gradedBy := strings.TrimSpace(c.Query("graded_by")); gradedBy != "" {
		filters.GradedBy = &gradedBy
	}

	return filters
}
