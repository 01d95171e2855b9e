package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type StudentExamStatus string

const (
	StudentExamNotStarted StudentExamStatus = "NotStarted"
	StudentExamInProgress StudentExamStatus = "InProgress"
	StudentExamSubmitted  StudentExamStatus = "Submitted"
	StudentExamPassed     StudentExamStatus = "Passed"
	StudentExamFailed     StudentExamStatus = "Failed"
)

// IsClosed reports whether the attempt has a submission outcome.
func (s StudentExamStatus) IsClosed() bool {
	return s == StudentExamSubmitted || s == StudentExamPassed || s == StudentExamFailed
}

type StudentExam struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	ExamID    uint   `json:"exam_id" gorm:"not null;index;uniqueIndex:idx_student_exam_active,where:status = 'InProgress'"`
	StudentID string `json:"student_id" gorm:"not null;size:255;index;uniqueIndex:idx_student_exam_active,where:status = 'InProgress'"`

	Status           StudentExamStatus   `json:"status" gorm:"not null;size:16;index"`
	StartTime        time.Time           `json:"start_time" gorm:"not null"`
	SubmitTime       *time.Time          `json:"submit_time"`
	ExtraTimeMinutes int                 `json:"extra_time_minutes" gorm:"not null;default:0"`
	Score            decimal.NullDecimal `json:"score" gorm:"type:numeric(10,2)"`
	TotalQuestions   int                 `json:"total_questions"`

	IPAddress     *string        `json:"ip_address" gorm:"size:45"`
	UserAgent     *string        `json:"user_agent" gorm:"type:text"`
	ClientContext datatypes.JSON `json:"client_context"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Exam    *Exam           `json:"exam,omitempty" gorm:"foreignKey:ExamID"`
	Answers []StudentAnswer `json:"answers,omitempty" gorm:"foreignKey:StudentExamID"`
}

func (StudentExam) TableName() string {
	return "student_exams"
}

// Deadline is StartTime + exam duration + granted extra time.
func (se *StudentExam) Deadline(duration time.Duration) time.Time {
	return se.StartTime.Add(duration).Add(time.Duration(se.ExtraTimeMinutes) * time.Minute)
}

type StudentAnswer struct {
	ID            uint   `json:"id" gorm:"primaryKey"`
	StudentExamID uint   `json:"student_exam_id" gorm:"not null;uniqueIndex:idx_student_answer"`
	QuestionID    uint   `json:"question_id" gorm:"not null;uniqueIndex:idx_student_answer"`
	UserAnswer    string `json:"user_answer" gorm:"type:text"`

	// Null until graded; essays stay null until MarkEssay.
	IsCorrect    *bool               `json:"is_correct"`
	PointsEarned decimal.NullDecimal `json:"points_earned" gorm:"type:numeric(10,2)"`
	GradedBy     *string             `json:"graded_by" gorm:"size:255"`
	GradedAt     *time.Time          `json:"graded_at"`

	TimeSpent int       `json:"time_spent"` // seconds
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (StudentAnswer) TableName() string {
	return "student_answers"
}

// ClientContext is captured on access and submission for audit.
type ClientContext struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ActivityLog struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	ActorID    string         `json:"actor_id" gorm:"not null;size:255;index"`
	Action     string         `json:"action" gorm:"not null;size:64"`
	TargetType string         `json:"target_type" gorm:"size:32"`
	TargetID   uint           `json:"target_id" gorm:"index"`
	Details    datatypes.JSON `json:"details"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}
