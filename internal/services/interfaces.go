package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-session-service/internal/events"
	"github.com/SAP-F-2025/exam-session-service/internal/models"
)

// ExamService owns exam authoring and the administrative state machine.
type ExamService interface {
	CreateExam(ctx context.Context, req *models.CreateExamRequest, creatorID string) (*models.ExamResponse, error)
	GetExam(ctx context.Context, examID uint) (*models.ExamResponse, error)
	ChangeStatus(ctx context.Context, examID uint, newStatus models.ExamStatus, actorID string) (*models.ExamResponse, error)
	AssignSupervisors(ctx context.Context, examID uint, req *models.AssignSupervisorsRequest, actorID string) ([]string, error)
}

// OtpService issues entry codes and validates them inside the caller's transaction.
type OtpService interface {
	IssueOtp(ctx context.Context, examID uint, validMinutes int, actorID string) (*models.ExamOtp, error)
	GetCurrentOtp(ctx context.Context, examID uint, actorID string) (*models.ExamOtp, error)
	Validate(ctx context.Context, tx *gorm.DB, examID uint, code string, now time.Time) (bool, error)
}

type StudentExamService interface {
	AccessExam(ctx context.Context, req *models.AccessExamRequest, studentID string, client models.ClientContext) (*models.StudentExamResponse, error)
	GetStudentExam(ctx context.Context, studentExamID uint, userID string) (*models.StudentExamResponse, error)
	SaveAnswerTemporary(ctx context.Context, req *models.SaveAnswersRequest, studentID string) error
	SubmitExam(ctx context.Context, req *models.SubmitExamRequest, studentID string, client models.ClientContext) (*models.StudentExamResponse, error)

	AddStudentExtraTime(ctx context.Context, studentExamID uint, extraMinutes int, actorID string) (*models.StudentExamResponse, error)
	AddExamExtraTime(ctx context.Context, examID uint, req *models.AddExamExtraTimeRequest, actorID string) (*models.ExtraTimeResult, error)
	FinishExam(ctx context.Context, examID uint, actorID string) (*models.FinishExamResult, error)

	// SweepExpired closes attempts whose effective deadline has passed.
	SweepExpired(ctx context.Context) (int, error)
}

type GradingService interface {
	MarkEssay(ctx context.Context, req *models.MarkEssayRequest, graderID string) (*models.StudentExamResponse, error)
}

type MonitoringService interface {
	GetExamOverview(ctx context.Context, actorID string) ([]models.ExamOverviewItem, error)
	GetExamMonitorDetail(ctx context.Context, examID uint, actorID string) (*models.ExamMonitorDetail, error)
	Subscribe(ctx context.Context, examID uint, actorID string) (*events.Subscription, error)

	// Run consumes the monitoring topic and fans events out until ctx ends.
	Run(ctx context.Context) error
}

type ServiceManager interface {
	Exam() ExamService
	Otp() OtpService
	StudentExam() StudentExamService
	Grading() GradingService
	Monitoring() MonitoringService

	Initialize(ctx context.Context) error
	// Start launches the broadcaster and the deadline sweeper.
	Start(ctx context.Context)
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
