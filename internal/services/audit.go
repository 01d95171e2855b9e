package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"gorm.io/datatypes"

	"github.com/SAP-F-2025/exam-session-service/internal/clock"
	"github.com/SAP-F-2025/exam-session-service/internal/events"
	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
)

type AuditEntry struct {
	ActorID    string
	Action     string
	TargetType string
	TargetID   uint
	Details    map[string]any
}

// AuditSink records activity. Record never fails the caller.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry)
}

type activityLogSink struct {
	repo   repositories.ActivityLogRepository
	clock  clock.Clock
	logger *slog.Logger
}

func NewActivityLogSink(repo repositories.ActivityLogRepository, clk clock.Clock, logger *slog.Logger) AuditSink {
	return &activityLogSink{repo: repo, clock: clk, logger: logger}
}

func (s *activityLogSink) Record(ctx context.Context, entry AuditEntry) {
	var details datatypes.JSON
	if len(entry.Details) > 0 {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			s.logger.Warn("Failed to encode activity details", "error", err, "action", entry.Action)
		} else {
			details = raw
		}
	}

	log := &models.ActivityLog{
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		TargetType: entry.TargetType,
		TargetID:   entry.TargetID,
		Details:    details,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.Create(ctx, nil, log); err != nil {
		s.logger.Warn("Failed to write activity log", "error", err, "action", entry.Action, "actor_id", entry.ActorID)
	}
}

const (
	actionExamCreate       = "exam.create"
	actionExamStatus       = "exam.change_status"
	actionExamSupervisors  = "exam.assign_supervisors"
	actionOtpIssue         = "exam.issue_otp"
	actionAccess           = "student_exam.access"
	actionSubmit           = "student_exam.submit"
	actionStudentExtraTime = "student_exam.extra_time"
	actionExamExtraTime    = "exam.extra_time"
	actionExamFinish       = "exam.finish"
	actionAttemptTimeout   = "student_exam.timeout"
	actionMarkEssay        = "student_exam.mark_essay"
)

// publishEvent hands an event to the monitoring queue. Failures are logged only.
func publishEvent(ctx context.Context, publisher events.EventPublisher, logger *slog.Logger, event events.Event) {
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish monitoring event", "error", err, "type", event.Type, "exam_id", event.Data.ExamID)
	}
}
