package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/SAP-F-2025/exam-session-service/internal/clock"
	"github.com/SAP-F-2025/exam-session-service/internal/events"
	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
)

// monitoringService is read-only over attempts. Live updates arrive through
// the hub, fed from the monitoring topic by Run.
type monitoringService struct {
	repo       repositories.Repository
	logger     *slog.Logger
	clock      clock.Clock
	hub        *events.Hub
	subscriber message.Subscriber
	topic      string
	access     accessChecker
}

func NewMonitoringService(repo repositories.Repository, logger *slog.Logger, clk clock.Clock,
	hub *events.Hub, subscriber message.Subscriber, topic string) MonitoringService {
	return &monitoringService{
		repo:       repo,
		logger:     logger,
		clock:      clk,
		hub:        hub,
		subscriber: subscriber,
		topic:      topic,
		access:     accessChecker{repo: repo},
	}
}

func (s *monitoringService) GetExamOverview(ctx context.Context, actorID string) ([]models.ExamOverviewItem, error) {
	admin, err := s.access.isAdmin(ctx, actorID)
	if err != nil {
		return nil, err
	}

	var exams []*models.Exam
	if admin {
		exams, err = s.repo.Exam().ListPublished(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list exams: %w", err)
		}
	} else {
		ids, err := s.repo.Roster().SupervisedExamIDs(ctx, nil, actorID)
		if err != nil {
			return nil, fmt.Errorf("failed to list supervised exams: %w", err)
		}
		if len(ids) == 0 {
			return nil, NewPermissionError(actorID, 0, "exam", "monitor", msgCannotSuperviseAny)
		}
		exams, err = s.repo.Exam().GetByIDs(ctx, nil, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load exams: %w", err)
		}
	}

	examIDs := make([]uint, 0, len(exams))
	for _, e := range exams {
		examIDs = append(examIDs, e.ID)
	}
	counts, err := s.repo.StudentExam().CountByExamAndStatus(ctx, nil, examIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}

	type tally struct{ inProgress, submitted int64 }
	byExam := make(map[uint]*tally, len(exams))
	for _, c := range counts {
		t := byExam[c.ExamID]
		if t == nil {
			t = &tally{}
			byExam[c.ExamID] = t
		}
		switch {
		case c.Status == models.StudentExamInProgress:
			t.inProgress += c.Count
		case c.Status.IsClosed():
			t.submitted += c.Count
		}
	}

	now := s.clock.Now()
	items := make([]models.ExamOverviewItem, 0, len(exams))
	for _, e := range exams {
		item := models.ExamOverviewItem{
			ExamID:     e.ID,
			Title:      e.Title,
			RoomID:     e.RoomID,
			StartTime:  e.StartTime,
			EndTime:    e.EndTime,
			LiveStatus: e.LiveStatus(now),
		}
		if t := byExam[e.ID]; t != nil {
			item.InProgressCount = t.inProgress
			item.SubmittedCount = t.submitted
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *monitoringService) GetExamMonitorDetail(ctx context.Context, examID uint, actorID string) (*models.ExamMonitorDetail, error) {
	exam, err := s.supervisedExam(ctx, examID, actorID)
	if err != nil {
		return nil, err
	}

	attempts, err := s.repo.StudentExam().ListByExam(ctx, nil, examID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	ids := make([]uint, 0, len(attempts))
	for _, se := range attempts {
		ids = append(ids, se.ID)
	}
	answered, err := s.repo.StudentAnswer().CountAnswered(ctx, nil, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to count answers: %w", err)
	}

	now := s.clock.Now()
	duration := exam.DurationValue()
	rows := make([]models.MonitorStudentRow, 0, len(attempts))
	for _, se := range attempts {
		snap := models.NewStudentExamResponse(se, duration, now)
		rows = append(rows, models.MonitorStudentRow{
			StudentExamID:    se.ID,
			StudentID:        se.StudentID,
			Status:           se.Status,
			StartTime:        se.StartTime,
			Deadline:         snap.Deadline,
			ExtraTimeMinutes: se.ExtraTimeMinutes,
			RemainingSeconds: snap.RemainingSeconds,
			AnsweredCount:    answered[se.ID],
			SubmitTime:       se.SubmitTime,
			Score:            se.Score,
			IPAddress:        se.IPAddress,
		})
	}

	return &models.ExamMonitorDetail{
		ExamID:     exam.ID,
		Title:      exam.Title,
		LiveStatus: exam.LiveStatus(now),
		Students:   rows,
	}, nil
}

// Subscribe joins the caller to the exam's notification group. The caller
// must Close the subscription.
func (s *monitoringService) Subscribe(ctx context.Context, examID uint, actorID string) (*events.Subscription, error) {
	if _, err := s.supervisedExam(ctx, examID, actorID); err != nil {
		return nil, err
	}
	sub := s.hub.Subscribe(events.GroupName(examID))
	s.logger.Info("Supervisor subscribed", "exam_id", examID, "actor_id", actorID, "group_size", s.hub.GroupSize(sub.Group()))
	return sub, nil
}

func (s *monitoringService) Run(ctx context.Context) error {
	if s.subscriber == nil {
		<-ctx.Done()
		return nil
	}
	return s.hub.Run(ctx, s.subscriber, s.topic)
}

func (s *monitoringService) supervisedExam(ctx context.Context, examID uint, actorID string) (*models.Exam, error) {
	exam, err := s.repo.Exam().GetByID(ctx, nil, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, notFound("Exam not found")
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	ok, err := s.access.canSupervise(ctx, examID, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewPermissionError(actorID, examID, "exam", "monitor", msgCannotViewExam)
	}
	return exam, nil
}
