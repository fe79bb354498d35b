package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eduforge/assessment-engine/internal/models"
	"github.com/eduforge/assessment-engine/internal/repositories"
	"github.com/eduforge/assessment-engine/internal/services"
	"github.com/eduforge/assessment-engine/internal/utils"
)

type StatisticsHandler struct {
	BaseHandler
	statisticsService services.StatisticsService
	exportService     services.ExportService
}

func NewStatisticsHandler(
	statisticsService services.StatisticsService,
	exportService services.ExportService,
	logger utils.Logger,
) *StatisticsHandler {
	return &StatisticsHandler{
		BaseHandler:       NewBaseHandler(logger),
		statisticsService: statisticsService,
		exportService:     exportService,
	}
}

// GetTemplateStats retrieves aggregates for one template
// @Summary Get template statistics
// @Tags statistics
// @Produce json
// @Param id path uint true "Template ID"
// @Success 200 {object} services.TemplateStatsResponse
// @Router /templates/{id}/stats [get]
func (h *StatisticsHandler) GetTemplateStats(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	stats, err := h.statisticsService.GetTemplateStats(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetMyStats retrieves the caller's own statistics
// @Summary Get own statistics
// @Tags statistics
// @Produce json
// @Success 200 {object} services.UserStatsResponse
// @Router /statistics/me [get]
func (h *StatisticsHandler) GetMyStats(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	stats, err := h.statisticsService.GetUserStats(c.Request.Context(), userID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetUserStats retrieves another user's statistics
// @Summary Get user statistics
// @Tags statistics
// @Produce json
// @Param user_id path string true "User ID"
// @Success 200 {object} services.UserStatsResponse
// @Failure 403 {object} ErrorResponse
// @Router /statistics/users/{user_id} [get]
func (h *StatisticsHandler) GetUserStats(c *gin.Context) {
	targetID := c.Param("user_id")
	if targetID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid user_id",
		})
		return
	}
	requesterID := h.getUserID(c)
	if requesterID == "" {
		return
	}

	stats, err := h.statisticsService.GetUserStats(c.Request.Context(), targetID, requesterID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetWrongQuestions lists the caller's wrong-question collection
// @Summary Get wrong questions
// @Tags statistics
// @Produce json
// @Success 200 {object} services.WrongQuestionListResponse
// @Router /statistics/me/wrong-questions [get]
func (h *StatisticsHandler) GetWrongQuestions(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	filters := h.parseWrongQuestionFilters(c)
	questions, err := h.statisticsService.GetWrongQuestions(c.Request.Context(), userID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, questions)
}

// GenerateReviewSet builds a personalized review set
// @Summary Generate review set
// @Tags statistics
// @Accept json
// @Produce json
// @Param request body services.ReviewSetRequest true "Review set parameters"
// @Success 200 {object} services.ReviewSetResponse
// @Router /statistics/me/review-set [post]
func (h *StatisticsHandler) GenerateReviewSet(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	var req services.ReviewSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Generating review set", "count", req.Count)

	reviewSet, err := h.statisticsService.GenerateReviewSet(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, reviewSet)
}

// ExportTemplateResults streams the xlsx results workbook
// @Summary Export template results
// @Tags statistics
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path uint true "Template ID"
// @Success 200 {file} binary
// @Router /templates/{id}/export [get]
func (h *StatisticsHandler) ExportTemplateResults(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	h.LogRequest(c, "Exporting template results", "template_id", id)

	result, err := h.exportService.ExportTemplateResults(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+result.FileName)
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

func (h *StatisticsHandler) parseWrongQuestionFilters(c *gin.Context) repositories.WrongQuestionFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 20)

	filters := repositories.WrongQuestionFilters{
		Limit:  size,
		Offset: (page - 1) * size,
	}

	if courseID := h.parseIntQuery(c, "course_id", 0); courseID > 0 {
		id := uint(courseID)
		filters.CourseID = &id
	}

	if qType := c.Query("type"); qType != "" {
		questionType := models.QuestionType(qType)
		filters.Type = &questionType
	}

	if difficulty := c.Query("difficulty"); difficulty != "" {
		level := models.DifficultyLevel(difficulty)
		filters.Difficulty = &level
	}

	if days := h.parseIntQuery(c, "since_days", 0); days > 0 {
		since := time.Now().AddDate(0, 0, -days)
		filters.Since = &since
	}

	return filters
}
