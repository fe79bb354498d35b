package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eduforge/assessment-engine/internal/services"
	"github.com/eduforge/assessment-engine/internal/utils"
	"github.com/eduforge/assessment-engine/internal/validator"
)

// ErrorResponse is the uniform error body for every endpoint.
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// SuccessResponse wraps data payloads that need a message alongside.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// BaseHandler carries the shared request plumbing: logging, parameter
// parsing and the service-error to HTTP-status mapping.
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.LoggerFromContext(c, h.logger).Info(msg, args...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	args = append(args, "error", err)
	utils.LoggerFromContext(c, h.logger).Error(msg, args...)
}

// getUserID returns the authenticated user id or writes a 401.
func (h *BaseHandler) getUserID(c *gin.Context) string {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return ""
	}
	if id, ok := userID.(string); ok && id != "" {
		return id
	}
	c.JSON(http.StatusUnauthorized, ErrorResponse{
		Message: "User not authenticated",
	})
	return ""
}

// parseIDParam parses a uint path parameter, writing a 400 on failure.
// Zero means the response has already been written.
func (h *BaseHandler) parseIDParam(c *gin.Context, param string) uint {
	idStr := c.Param(param)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
		})
		return 0
	}
	return uint(id)
}

func (h *BaseHandler) parseIntQuery(c *gin.Context, param string, defaultValue int) int {
	valueStr := c.Query(param)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// handleServiceError maps service-layer errors onto HTTP statuses.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	switch {
	// Not found
	case errors.Is(err, services.ErrTemplateNotFound),
		errors.Is(err, services.ErrAttemptNotFound),
		errors.Is(err, services.ErrQuestionNotFound),
		errors.Is(err, services.ErrAnswerNotFound),
		errors.Is(err, services.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: err.Error(),
		})

	// Conflicts
	case errors.Is(err, services.ErrActiveAttemptExists),
		errors.Is(err, services.ErrAttemptLimitExceeded),
		errors.Is(err, services.ErrAttemptAlreadySubmitted),
		errors.Is(err, services.ErrAlreadyAnswered):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: err.Error(),
		})

	// Gone: the window or deadline has passed
	case errors.Is(err, services.ErrAttemptExpired),
		errors.Is(err, services.ErrWindowClosed):
		c.JSON(http.StatusGone, ErrorResponse{
			Message: err.Error(),
		})

	// Unprocessable states
	case errors.Is(err, services.ErrAttemptNotActive),
		errors.Is(err, services.ErrAttemptNotPaused),
		errors.Is(err, services.ErrInvalidStateTransition),
		errors.Is(err, services.ErrTemplateNotPublished),
		errors.Is(err, services.ErrTemplateNotEditable),
		errors.Is(err, services.ErrTemplateNoQuestions),
		errors.Is(err, services.ErrWindowNotOpen),
		errors.Is(err, services.ErrQuestionNotInAttempt),
		errors.Is(err, services.ErrGradingNotAllowed),
		errors.Is(err, services.ErrScoreOutOfRange),
		errors.Is(err, services.ErrAnswerAutoGraded),
		errors.Is(err, services.ErrNoUngradedAnswers):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: err.Error(),
		})

	// Generic
	case errors.Is(err, services.ErrValidationFailed):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "Unauthorized access",
		})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Forbidden - insufficient permissions",
		})

	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
