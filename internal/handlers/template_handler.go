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

type TemplateHandler struct {
	BaseHandler
	templateService services.TemplateService
	validator       *validator.Validator
}

func NewTemplateHandler(
	templateService services.TemplateService,
	validator *validator.Validator,
	logger utils.Logger,
) *TemplateHandler {
	return &TemplateHandler{
		BaseHandler:     NewBaseHandler(logger),
		templateService: templateService,
		validator:       validator,
	}
}

// CreateTemplate creates a new assessment template
// @Summary Create template
// @Tags templates
// @Accept json
// @Produce json
// @Param template body services.CreateTemplateRequest true "Template data"
// @Success 201 {object} services.TemplateResponse
// @Failure 400 {object} ErrorResponse
// @Router /templates [post]
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	h.LogRequest(c, "Creating template")

	var req services.CreateTemplateRequest
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

	template, err := h.templateService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, template)
}

// GetTemplate retrieves one template
// @Summary Get template
// @Tags templates
// @Produce json
// @Param id path uint true "Template ID"
// @Success 200 {object} services.TemplateResponse
// @Router /templates/{id} [get]
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	template, err := h.templateService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, template)
}

// GetTemplateWithQuestions retrieves a template with its question bindings
// @Summary Get template with questions
// @Tags templates
// @Produce json
// @Param id path uint true "Template ID"
// @Success 200 {object} services.TemplateResponse
// @Router /templates/{id}/details [get]
func (h *TemplateHandler) GetTemplateWithQuestions(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	template, err := h.templateService.GetByIDWithQuestions(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, template)
}

// UpdateTemplate updates an existing template
// @Summary Update template
// @Tags templates
// @Accept json
// @Produce json
// @Param id path uint true "Template ID"
// @Param template body services.UpdateTemplateRequest true "Template data"
// @Success 200 {object} services.TemplateResponse
// @Failure 422 {object} ErrorResponse
// @Router /templates/{id} [put]
func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	var req services.UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Updating template", "template_id", id)

	template, err := h.templateService.Update(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, template)
}

// ListTemplates lists templates with filters
// @Summary List templates
// @Tags templates
// @Produce json
// @Success 200 {object} services.TemplateListResponse
// @Router /templates [get]
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	filters := h.parseTemplateFilters(c)
	templates, err := h.templateService.List(c.Request.Context(), filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, templates)
}

// UpdateTemplateStatus applies a status transition
// @Summary Update template status
// @Tags templates
// @Accept json
// @Produce json
// @Param id path uint true "Template ID"
// @Param status body services.UpdateStatusRequest true "New status"
// @Success 200 {object} SuccessResponse
// @Failure 422 {object} ErrorResponse
// @Router /templates/{id}/status [put]
func (h *TemplateHandler) UpdateTemplateStatus(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	var req services.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Updating template status", "template_id", id, "status", req.Status)

	if err := h.templateService.UpdateStatus(c.Request.Context(), id, &req, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Template status updated successfully",
	})
}

// PublishTemplate publishes a draft template
// @Summary Publish template
// @Tags templates
// @Produce json
// @Param id path uint true "Template ID"
// @Success 200 {object} SuccessResponse
// @Router /templates/{id}/publish [post]
func (h *TemplateHandler) PublishTemplate(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	h.LogRequest(c, "Publishing template", "template_id", id)

	if err := h.templateService.Publish(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Template published successfully",
	})
}

// ArchiveTemplate archives a template
// @Summary Archive template
// @Tags templates
// @Produce json
// @Param id path uint true "Template ID"
// @Success 200 {object} SuccessResponse
// @Router /templates/{id}/archive [post]
func (h *TemplateHandler) ArchiveTemplate(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	h.LogRequest(c, "Archiving template", "template_id", id)

	if err := h.templateService.Archive(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Template archived successfully",
	})
}

// CanTakeTemplate reports whether the caller may start an attempt
// @Summary Check template availability
// @Tags templates
// @Produce json
// @Param id path uint true "Template ID"
// @Success 200 {object} SuccessResponse{data=bool}
// @Router /templates/{id}/can-take [get]
func (h *TemplateHandler) CanTakeTemplate(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	canTake, err := h.templateService.CanTake(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Availability check completed",
		Data:    canTake,
	})
}

func (h *TemplateHandler) parseTemplateFilters(c *gin.Context) repositories.TemplateFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 10)

	filters := repositories.TemplateFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}

	if kind := c.Query("kind"); kind != "" {
		templateKind := models.TemplateKind(kind)
		filters.Kind = &templateKind
	}

	if status := c.Query("status"); status != "" {
		templateStatus := models.TemplateStatus(status)
		filters.Status = &templateStatus
	}

	if courseID := h.parseIntQuery(c, "course_id", 0); courseID > 0 {
		id := uint(courseID)
		filters.CourseID = &id
	}

	if createdBy := strings.TrimSpace(c.Query("created_by")); createdBy != "" {
		filters.CreatedBy = &createdBy
	}

	return filters
}
