package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-session-service/internal/events"
	"github.com/SAP-F-2025/exam-session-service/internal/models"
)

const systemActor = "system"

// SweepExpired closes every InProgress attempt whose deadline has passed,
// each in its own transaction so one failure does not hold back the rest.
func (s *studentExamService) SweepExpired(ctx context.Context) (int, error) {
	active, err := s.repo.StudentExam().ListAllActive(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to list active attempts: %w", err)
	}

	now := s.clock.Now()
	questionsByExam := make(map[uint][]*models.ExamQuestion)
	closed := 0

	for _, se := range active {
		if se.Exam == nil || !now.After(se.Deadline(se.Exam.DurationValue())) {
			continue
		}

		questions, ok := questionsByExam[se.ExamID]
		if !ok {
			questions, err = s.repo.ExamQuestion().GetByExam(ctx, nil, se.ExamID)
			if err != nil {
				s.logger.Error("Failed to load exam questions for sweep", "exam_id", se.ExamID, "error", err)
				continue
			}
			questionsByExam[se.ExamID] = questions
		}

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.closeAttempt(ctx, tx, se.Exam, questions, se, now)
		})
		if errors.Is(err, errAttemptAlreadyClosed) {
			continue
		}
		if err != nil {
			s.logger.Error("Failed to close expired attempt", "student_exam_id", se.ID, "error", err)
			continue
		}
		closed++

		publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.EventAttemptTimedOut, se.ExamID, se.ID,
			map[string]any{"studentId": se.StudentID, "status": se.Status}, now))
		s.audit.Record(ctx, AuditEntry{
			ActorID:    systemActor,
			Action:     actionAttemptTimeout,
			TargetType: "student_exam",
			TargetID:   se.ID,
			Details:    map[string]any{"exam_id": se.ExamID, "status": se.Status},
		})
	}

	if closed > 0 {
		s.logger.Info("Expired attempts closed", "count", closed)
	}
	return closed, nil
}

// RunDeadlineSweeper calls SweepExpired every interval until ctx is done.
func RunDeadlineSweeper(ctx context.Context, svc StudentExamService, interval time.Duration, logger *slog.Logger) {
	logger.Info("Deadline sweeper started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Deadline sweeper stopped")
			return
		case <-ticker.C:
			if _, err := svc.SweepExpired(ctx); err != nil {
				logger.Error("Deadline sweep failed", "error", err)
			}
		}
	}
}
