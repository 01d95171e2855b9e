package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
)

// Every method takes an optional tx; nil runs against the base connection.
// Reads with a nil tx may be served from cache.

type ExamRepository interface {
	Create(ctx context.Context, tx *gorm.DB, exam *models.Exam) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Exam, error)
	ListPublished(ctx context.Context, tx *gorm.DB) ([]*models.Exam, error)
	ExistsByTitle(ctx context.Context, tx *gorm.DB, title string, creatorID string) (bool, error)

	// UpdateStatus writes only when the stored status still equals from.
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, from, to models.ExamStatus, actorID string, at time.Time) (int64, error)
}

type ExamQuestionRepository interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.ExamQuestion) error
	GetByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.ExamQuestion, error)
}

// QuestionRepository reads the question bank owned by another service.
type QuestionRepository interface {
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error)
}

type OtpRepository interface {
	Create(ctx context.Context, tx *gorm.DB, otp *models.ExamOtp) error
	GetLatest(ctx context.Context, tx *gorm.DB, examID uint) (*models.ExamOtp, error)
}

type StudentExamRepository interface {
	Create(ctx context.Context, tx *gorm.DB, se *models.StudentExam) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.StudentExam, error)
	GetForStudent(ctx context.Context, tx *gorm.DB, id, examID uint, studentID string) (*models.StudentExam, error)
	GetActive(ctx context.Context, tx *gorm.DB, examID uint, studentID string) (*models.StudentExam, error)
	GetLatest(ctx context.Context, tx *gorm.DB, examID uint, studentID string) (*models.StudentExam, error)
	// LockActive row-locks the attempt for the rest of tx; not found once it is closed.
	LockActive(ctx context.Context, tx *gorm.DB, id uint) (*models.StudentExam, error)
	ListByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.StudentExam, error)
	ListActiveByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.StudentExam, error)
	ListAllActive(ctx context.Context, tx *gorm.DB) ([]*models.StudentExam, error)
	CountByExamAndStatus(ctx context.Context, tx *gorm.DB, examIDs []uint) ([]models.StatusCount, error)

	// The writes below touch only rows still InProgress and report how many did.
	AddExtraTime(ctx context.Context, tx *gorm.DB, ids []uint, minutes int) (int64, error)
	Close(ctx context.Context, tx *gorm.DB, id uint, status models.StudentExamStatus, submitTime time.Time, score decimal.NullDecimal) (int64, error)

	// Grade moves a Submitted attempt to its graded outcome.
	Grade(ctx context.Context, tx *gorm.DB, id uint, status models.StudentExamStatus, score decimal.Decimal) (int64, error)
}

type StudentAnswerRepository interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, answers []*models.StudentAnswer) error
	// Upsert writes UserAnswer and TimeSpent keyed by (student_exam_id, question_id).
	Upsert(ctx context.Context, tx *gorm.DB, answers []*models.StudentAnswer) error
	GetByStudentExam(ctx context.Context, tx *gorm.DB, studentExamID uint) ([]*models.StudentAnswer, error)
	SaveGrades(ctx context.Context, tx *gorm.DB, answers []*models.StudentAnswer) error
	CountAnswered(ctx context.Context, tx *gorm.DB, studentExamIDs []uint) (map[uint]int64, error)
}

// RosterRepository answers the admission and supervision predicates.
type RosterRepository interface {
	IsRoomMember(ctx context.Context, tx *gorm.DB, roomID uint, userID string) (bool, error)
	IsExamSupervisor(ctx context.Context, tx *gorm.DB, examID uint, userID string) (bool, error)
	SupervisedExamIDs(ctx context.Context, tx *gorm.DB, userID string) ([]uint, error)
	ListSupervisors(ctx context.Context, tx *gorm.DB, examID uint) ([]string, error)
	AssignSupervisors(ctx context.Context, tx *gorm.DB, examID uint, userIDs []string, actorID string) error
}

type ActivityLogRepository interface {
	Create(ctx context.Context, tx *gorm.DB, entry *models.ActivityLog) error
}
