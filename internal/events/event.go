// Package events carries monitoring notifications from the session manager to
// supervisors watching an exam.
package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	Source  = "exam-session-service"
	Version = "1.0"

	TopicMonitoring = "exam.monitoring"
)

type EventType string

const (
	EventAccessGranted     EventType = "exam.access_granted"
	EventStudentExtraTime  EventType = "exam.student_extra_time"
	EventExamExtraTime     EventType = "exam.extra_time"
	EventExamFinished      EventType = "exam.finished"
	EventAttemptSubmitted  EventType = "exam.attempt_submitted"
	EventAttemptTimedOut   EventType = "exam.attempt_timed_out"
	EventExamStatusChanged EventType = "exam.status_changed"
	EventEssayGraded       EventType = "exam.essay_graded"
)

// Payload is the body delivered to a supervisor group.
type Payload struct {
	ExamID        uint           `json:"examId"`
	StudentExamID uint           `json:"studentExamId,omitempty"`
	EventType     EventType      `json:"eventType"`
	Data          map[string]any `json:"data,omitempty"`
}

type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Data      Payload   `json:"data"`
}

func NewEvent(eventType EventType, examID, studentExamID uint, data map[string]any, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    Source,
		Version:   Version,
		Timestamp: at,
		Data: Payload{
			ExamID:        examID,
			StudentExamID: studentExamID,
			EventType:     eventType,
			Data:          data,
		},
	}
}

// GroupName is the notification group supervisors of an exam join.
func GroupName(examID uint) string {
	return fmt.Sprintf("exam:%d", examID)
}

func (e Event) Group() string {
	return GroupName(e.Data.ExamID)
}
