package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ExamStatus string

const (
	ExamDraft     ExamStatus = "Draft"
	ExamPublished ExamStatus = "Published"
	ExamFinished  ExamStatus = "Finished"
)

func (s ExamStatus) IsValid() bool {
	switch s {
	case ExamDraft, ExamPublished, ExamFinished:
		return true
	}
	return false
}

// LiveStatus is derived from Status and the exam window; it is never persisted.
type LiveStatus string

const (
	LiveInactive  LiveStatus = "Inactive"
	LiveUpcoming  LiveStatus = "Upcoming"
	LiveOngoing   LiveStatus = "Ongoing"
	LiveCompleted LiveStatus = "Completed"
)

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "MultipleChoice"
	QuestionTrueFalse      QuestionType = "TrueFalse"
	QuestionEssay          QuestionType = "Essay"
)

func (t QuestionType) IsValid() bool {
	switch t {
	case QuestionMultipleChoice, QuestionTrueFalse, QuestionEssay:
		return true
	}
	return false
}

type Exam struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	Title  string `json:"title" gorm:"not null;size:200;index"`
	RoomID uint   `json:"room_id" gorm:"not null;index"`

	QuestionType QuestionType `json:"question_type" gorm:"not null;size:32"`
	Status       ExamStatus   `json:"status" gorm:"not null;size:16;default:Draft;index"`

	StartTime time.Time `json:"start_time" gorm:"not null"`
	EndTime   time.Time `json:"end_time" gorm:"not null"`
	Duration  int       `json:"duration"` // minutes

	TotalQuestions int             `json:"total_questions"`
	TotalPoints    decimal.Decimal `json:"total_points" gorm:"type:numeric(10,2)"`
	PassingScore   int             `json:"passing_score" gorm:"default:50"` // percent of TotalPoints

	CreatedBy string    `json:"created_by" gorm:"not null;size:255;index"`
	UpdatedBy *string   `json:"updated_by" gorm:"size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Questions []ExamQuestion `json:"questions,omitempty" gorm:"foreignKey:ExamID"`
}

func (Exam) TableName() string {
	return "exams"
}

// LiveStatus derives the temporal state of the exam at now.
func (e *Exam) LiveStatus(now time.Time) LiveStatus {
	switch {
	case e.Status == ExamDraft:
		return LiveInactive
	case e.Status == ExamFinished:
		return LiveCompleted
	case now.Before(e.StartTime):
		return LiveUpcoming
	case now.After(e.EndTime):
		return LiveCompleted
	default:
		return LiveOngoing
	}
}

func (e *Exam) DurationValue() time.Duration {
	return time.Duration(e.Duration) * time.Minute
}

// Question is the read side of the question bank, owned by another service.
type Question struct {
	ID            uint         `json:"id" gorm:"primaryKey"`
	Type          QuestionType `json:"type" gorm:"not null;size:32"`
	Content       string       `json:"content" gorm:"type:text"`
	CorrectAnswer string       `json:"-" gorm:"type:text"`
}

func (Question) TableName() string {
	return "questions"
}

type ExamQuestion struct {
	ID         uint            `json:"id" gorm:"primaryKey"`
	ExamID     uint            `json:"exam_id" gorm:"not null;uniqueIndex:idx_exam_question"`
	QuestionID uint            `json:"question_id" gorm:"not null;uniqueIndex:idx_exam_question"`
	Points     decimal.Decimal `json:"points" gorm:"type:numeric(10,2);not null"`
	Order      int             `json:"order" gorm:"column:question_order"`

	Question *Question `json:"question,omitempty" gorm:"foreignKey:QuestionID"`
}

func (ExamQuestion) TableName() string {
	return "exam_questions"
}

type ExamOtp struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	ExamID       uint      `json:"exam_id" gorm:"not null;index"`
	Code         string    `json:"code" gorm:"not null;size:16"`
	ValidMinutes int       `json:"valid_minutes"`
	ExpiredAt    time.Time `json:"expired_at" gorm:"not null"`
	CreatedBy    string    `json:"created_by" gorm:"size:255"`
	CreatedAt    time.Time `json:"created_at"`
}

func (ExamOtp) TableName() string {
	return "exam_otps"
}

func (o *ExamOtp) IsValidAt(now time.Time) bool {
	return !now.After(o.ExpiredAt)
}

type ExamSupervisor struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ExamID    uint      `json:"exam_id" gorm:"not null;uniqueIndex:idx_exam_supervisor"`
	UserID    string    `json:"user_id" gorm:"not null;size:255;uniqueIndex:idx_exam_supervisor;index"`
	CreatedBy string    `json:"created_by" gorm:"size:255"`
	CreatedAt time.Time `json:"created_at"`
}

func (ExamSupervisor) TableName() string {
	return "exam_supervisors"
}

// RoomMember is maintained by room administration; read here for admission.
type RoomMember struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	RoomID uint   `json:"room_id" gorm:"not null;uniqueIndex:idx_room_member"`
	UserID string `json:"user_id" gorm:"not null;size:255;uniqueIndex:idx_room_member"`
}

func (RoomMember) TableName() string {
	return "room_members"
}
