package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/eduforge/assessment-engine/internal/config"
	"github.com/eduforge/assessment-engine/internal/models"
	"github.com/eduforge/assessment-engine/internal/repositories"
	"github.com/eduforge/assessment-engine/internal/services"
	"github.com/eduforge/assessment-engine/internal/utils"
	"github.com/eduforge/assessment-engine/internal/validator"
)

type HandlerManager struct {
	templateHandler   *TemplateHandler
	attemptHandler    *AttemptHandler
	gradingHandler    *GradingHandler
	statisticsHandler *StatisticsHandler
	authMiddleware    *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	authMiddleware := NewCasdoorAuthMiddleware(casdoorConfig, userRepo)

	return &HandlerManager{
		templateHandler:   NewTemplateHandler(serviceManager.Template(), validator, logger),
		attemptHandler:    NewAttemptHandler(serviceManager.Attempt(), validator, logger),
		gradingHandler:    NewGradingHandler(serviceManager.Grading(), validator, logger),
		statisticsHandler: NewStatisticsHandler(serviceManager.Statistics(), serviceManager.Export(), logger),
		authMiddleware:    authMiddleware,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		// Template routes
		templates := v1.Group("/templates")
		{
			// Create/modify templates - Instructors and Admins only
			templates.POST("", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleAdmin), hm.templateHandler.CreateTemplate)
			templates.PUT("/:id", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleAdmin), hm.templateHandler.UpdateTemplate)
			templates.PUT("/:id/status", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleAdmin), hm.templateHandler.UpdateTemplateStatus)
			templates.POST("/:id/publish", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleAdmin), hm.templateHandler.PublishTemplate)
			templates.POST("/:id/archive", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleAdmin), hm.templateHandler.ArchiveTemplate)

			// View templates - All authenticated users
			templates.GET("", hm.templateHandler.ListTemplates)
			templates.GET("/:id", hm.templateHandler.GetTemplate)
			templates.GET("/:id/details", hm.templateHandler.GetTemplateWithQuestions)
			templates.GET("/:id/can-take", hm.templateHandler.CanTakeTemplate)

			// Stats and export - Instructors and Admins only
			templates.GET("/:id/stats", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleAdmin), hm.statisticsHandler.GetTemplateStats)
			templates.GET("/:id/export", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleAdmin), hm.statisticsHandler.ExportTemplateResults)
		}

		// Attempt routes
		attempts := v1.Group("/attempts")
		{
			// Lifecycle
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.PUT("/:id/pause", hm.attemptHandler.PauseAttempt)
			attempts.PUT("/:id/resume", hm.attemptHandler.ResumeAttempt)
			attempts.PUT("/:id/complete", hm.attemptHandler.CompleteAttempt)
			attempts.PUT("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.PUT("/:id/abandon", hm.attemptHandler.AbandonAttempt)

			// In-attempt operations
			attempts.POST("/:id/answers", hm.gradingHandler.SubmitAnswer)
			attempts.POST("/:id/questions/:question_id/skip", hm.attemptHandler.SkipQuestion)
			attempts.GET("/:id/questions/:question_id/hint", hm.attemptHandler.GetHint)
			attempts.GET("/:id/time-remaining", hm.attemptHandler.GetTimeRemaining)

			// Reads
			attempts.GET("", hm.attemptHandler.ListAttempts)
			attempts.GET("/me", hm.attemptHandler.GetMyAttempts)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.GET("/:id/details", hm.attemptHandler.GetAttemptWithDetails)
			attempts.GET("/current/:template_id", hm.attemptHandler.GetCurrentAttempt)
			attempts.GET("/template/:template_id", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleAdmin), hm.attemptHandler.GetAttemptsByTemplate)
		}

		// Grading routes - Instructors and Admins only
		grading := v1.Group("/grading")
		grading.Use(hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleAdmin))
		{
			grading.POST("/answers/:answer_id", hm.gradingHandler.GradeAnswer)
			grading.POST("/attempts/:attempt_id", hm.gradingHandler.GradeAttempt)
			grading.POST("/attempts/:attempt_id/auto", hm.gradingHandler.AutoGradeAttempt)
			grading.POST("/attempts/:attempt_id/recalculate", hm.gradingHandler.RecalculateScore)
			grading.GET("/templates/:template_id/ungraded", hm.gradingHandler.ListUngraded)
			grading.GET("/templates/:template_id/overview", hm.gradingHandler.GetGradingOverview)
		}

		// Statistics routes
		statistics := v1.Group("/statistics")
		{
			statistics.GET("/me", hm.statisticsHandler.GetMyStats)
			statistics.GET("/me/wrong-questions", hm.statisticsHandler.GetWrongQuestions)
			statistics.POST("/me/review-set", hm.statisticsHandler.GenerateReviewSet)
			statistics.GET("/users/:user_id", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleAdmin), hm.statisticsHandler.GetUserStats)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "assessment-engine",
		})
	})
}
