package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ===== REQUESTS =====

type ExamQuestionInput struct {
	QuestionID uint            `json:"question_id" validate:"required"`
	Points     decimal.Decimal `json:"points"`
}

type CreateExamRequest struct {
	Title        string              `json:"title" validate:"required,min=1,max=200"`
	RoomID       uint                `json:"room_id" validate:"required"`
	QuestionType QuestionType        `json:"question_type" validate:"required,question_type"`
	StartTime    time.Time           `json:"start_time" validate:"required"`
	EndTime      time.Time           `json:"end_time" validate:"required"`
	Duration     int                 `json:"duration" validate:"required,min=1,max=600"`
	PassingScore *int                `json:"passing_score" validate:"omitempty,min=0,max=100"`
	Questions    []ExamQuestionInput `json:"questions" validate:"required,min=1,dive"`
}

type ChangeExamStatusRequest struct {
	Status ExamStatus `json:"status" validate:"required,exam_status"`
}

type IssueOtpRequest struct {
	ValidMinutes int `json:"valid_minutes" validate:"required,otp_validity"`
}

type AssignSupervisorsRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,dive,required"`
}

type AccessExamRequest struct {
	ExamID  uint   `json:"exam_id" validate:"required"`
	OtpCode string `json:"otp_code" validate:"required,otp_code"`
}

type AnswerInput struct {
	QuestionID uint   `json:"question_id" validate:"required"`
	UserAnswer string `json:"user_answer" validate:"max=20000"`
	TimeSpent  int    `json:"time_spent" validate:"min=0"`
}

type SaveAnswersRequest struct {
	StudentExamID uint          `json:"student_exam_id" validate:"required"`
	ExamID        uint          `json:"exam_id" validate:"required"`
	Answers       []AnswerInput `json:"answers" validate:"required,min=1,dive"`
}

type SubmitExamRequest struct {
	StudentExamID uint          `json:"student_exam_id" validate:"required"`
	ExamID        uint          `json:"exam_id" validate:"required"`
	Answers       []AnswerInput `json:"answers" validate:"omitempty,dive"`
}

type AddStudentExtraTimeRequest struct {
	ExtraMinutes int `json:"extra_minutes" validate:"required,extra_minutes"`
}

type AddExamExtraTimeRequest struct {
	RoomID       uint `json:"room_id" validate:"required"`
	ExtraMinutes int  `json:"extra_minutes" validate:"required,extra_minutes"`
}

type EssayScoreInput struct {
	QuestionID uint            `json:"question_id" validate:"required"`
	Points     decimal.Decimal `json:"points"`
}

type MarkEssayRequest struct {
	StudentExamID uint              `json:"student_exam_id" validate:"required"`
	ExamID        uint              `json:"exam_id" validate:"required"`
	Scores        []EssayScoreInput `json:"scores" validate:"required,min=1,dive"`
}

// ===== RESPONSES =====

type ExamResponse struct {
	*Exam
	LiveStatus LiveStatus `json:"live_status"`
}

type StudentExamResponse struct {
	ID               uint                `json:"id"`
	ExamID           uint                `json:"exam_id"`
	StudentID        string              `json:"student_id"`
	Status           StudentExamStatus   `json:"status"`
	StartTime        time.Time           `json:"start_time"`
	SubmitTime       *time.Time          `json:"submit_time"`
	ExtraTimeMinutes int                 `json:"extra_time_minutes"`
	Deadline         time.Time           `json:"deadline"`
	RemainingSeconds int64               `json:"remaining_seconds"`
	Score            decimal.NullDecimal `json:"score"`
	TotalQuestions   int                 `json:"total_questions"`
	Resumed          bool                `json:"resumed,omitempty"`
}

// NewStudentExamResponse snapshots an attempt against the exam duration at now.
func NewStudentExamResponse(se *StudentExam, duration time.Duration, now time.Time) *StudentExamResponse {
	deadline := se.Deadline(duration)
	var remaining int64
	if se.Status == StudentExamInProgress && deadline.After(now) {
		remaining = int64(deadline.Sub(now) / time.Second)
	}
	return &StudentExamResponse{
		ID:               se.ID,
		ExamID:           se.ExamID,
		StudentID:        se.StudentID,
		Status:           se.Status,
		StartTime:        se.StartTime,
		SubmitTime:       se.SubmitTime,
		ExtraTimeMinutes: se.ExtraTimeMinutes,
		Deadline:         deadline,
		RemainingSeconds: remaining,
		Score:            se.Score,
		TotalQuestions:   se.TotalQuestions,
	}
}

type ExtraTimeResult struct {
	ExamID         uint   `json:"exam_id"`
	ExtraMinutes   int    `json:"extra_minutes"`
	AffectedCount  int64  `json:"affected_count"`
	StudentExamIDs []uint `json:"student_exam_ids"`
}

type FinishExamResult struct {
	ExamID         uint   `json:"exam_id"`
	ClosedCount    int    `json:"closed_count"`
	StudentExamIDs []uint `json:"student_exam_ids"`
}

type ExamOverviewItem struct {
	ExamID          uint       `json:"exam_id"`
	Title           string     `json:"title"`
	RoomID          uint       `json:"room_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	LiveStatus      LiveStatus `json:"live_status"`
	InProgressCount int64      `json:"in_progress_count"`
	SubmittedCount  int64      `json:"submitted_count"`
}

type MonitorStudentRow struct {
	StudentExamID    uint                `json:"student_exam_id"`
	StudentID        string              `json:"student_id"`
	Status           StudentExamStatus   `json:"status"`
	StartTime        time.Time           `json:"start_time"`
	Deadline         time.Time           `json:"deadline"`
	ExtraTimeMinutes int                 `json:"extra_time_minutes"`
	RemainingSeconds int64               `json:"remaining_seconds"`
	AnsweredCount    int64               `json:"answered_count"`
	SubmitTime       *time.Time          `json:"submit_time"`
	Score            decimal.NullDecimal `json:"score"`
	IPAddress        *string             `json:"ip_address"`
}

type ExamMonitorDetail struct {
	ExamID     uint                `json:"exam_id"`
	Title      string              `json:"title"`
	LiveStatus LiveStatus          `json:"live_status"`
	Students   []MonitorStudentRow `json:"students"`
}

// StatusCount is a grouped attempt count used by the overview.
type StatusCount struct {
	ExamID uint
	Status StudentExamStatus
	Count  int64
}
