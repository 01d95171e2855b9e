package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/exam-session-service/internal/config"
	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"github.com/SAP-F-2025/exam-session-service/internal/services"
	"github.com/SAP-F-2025/exam-session-service/internal/utils"
)

type HandlerManager struct {
	examHandler    *ExamHandler
	sessionHandler *SessionHandler
	monitorHandler *MonitorHandler
	serviceManager services.ServiceManager
	authMiddleware gin.HandlerFunc
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	auth := NewCasdoorAuthMiddleware(casdoorConfig, userRepo, logger)
	return newHandlerManager(serviceManager, logger, auth.AuthMiddleware())
}

func newHandlerManager(serviceManager services.ServiceManager, logger utils.Logger, auth gin.HandlerFunc) *HandlerManager {
	return &HandlerManager{
		examHandler:    NewExamHandler(serviceManager.Exam(), serviceManager.Otp(), serviceManager.StudentExam(), logger),
		sessionHandler: NewSessionHandler(serviceManager.StudentExam(), serviceManager.Grading(), logger),
		monitorHandler: NewMonitorHandler(serviceManager.Monitoring(), logger),
		serviceManager: serviceManager,
		authMiddleware: auth,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", hm.HealthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware)

	staff := RequireRoleMiddleware(models.RoleTeacher, models.RoleProctor)
	authors := RequireRoleMiddleware(models.RoleTeacher)

	exams := v1.Group("/exams")
	{
		exams.POST("", authors, hm.examHandler.CreateExam)
		exams.GET("/:id", hm.examHandler.GetExam)
		exams.PUT("/:id/status", authors, hm.examHandler.ChangeStatus)
		exams.PUT("/:id/supervisors", authors, hm.examHandler.AssignSupervisors)

		exams.POST("/:id/otp", staff, hm.examHandler.IssueOtp)
		exams.GET("/:id/otp", staff, hm.examHandler.GetCurrentOtp)

		exams.POST("/:id/extra-time", staff, hm.examHandler.AddExtraTime)
		exams.POST("/:id/finish", staff, hm.examHandler.FinishExam)
	}

	sessions := v1.Group("/sessions")
	{
		sessions.POST("/access", RequireRoleMiddleware(models.RoleStudent), hm.sessionHandler.AccessExam)
		sessions.GET("/:id", hm.sessionHandler.GetSession)
		sessions.PUT("/:id/answers", hm.sessionHandler.SaveAnswers)
		sessions.POST("/:id/submit", hm.sessionHandler.Submit)

		sessions.POST("/:id/extra-time", staff, hm.sessionHandler.AddExtraTime)
		sessions.POST("/:id/grade", staff, hm.sessionHandler.MarkEssay)
	}

	monitor := v1.Group("/monitor", staff)
	{
		monitor.GET("/exams", hm.monitorHandler.GetOverview)
		monitor.GET("/exams/:id", hm.monitorHandler.GetDetail)
		monitor.GET("/exams/:id/events", hm.monitorHandler.Stream)
	}
}

func (hm *HandlerManager) HealthCheck(c *gin.Context) {
	if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "exam-session-service",
	})
}
