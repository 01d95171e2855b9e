package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-session-service/internal/clock"
	"github.com/SAP-F-2025/exam-session-service/internal/events"
	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"github.com/SAP-F-2025/exam-session-service/internal/validator"
)

type examService struct {
	db        *gorm.DB
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	clock     clock.Clock
	publisher events.EventPublisher
	audit     AuditSink
	access    accessChecker
}

func NewExamService(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator,
	clk clock.Clock, publisher events.EventPublisher, audit AuditSink) ExamService {
	return &examService{
		db:        db,
		repo:      repo,
		logger:    logger,
		validator: validator,
		clock:     clk,
		publisher: publisher,
		audit:     audit,
		access:    accessChecker{repo: repo},
	}
}

// ===== AUTHORING =====

func (s *examService) CreateExam(ctx context.Context, req *models.CreateExamRequest, creatorID string) (*models.ExamResponse, error) {
	s.logger.Info("Creating exam", "title", req.Title, "room_id", req.RoomID, "creator_id", creatorID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	ok, err := s.access.canAuthor(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewPermissionError(creatorID, 0, "exam", "create", "You do not have permission to create exams.")
	}

	if !req.EndTime.After(req.StartTime) {
		return nil, NewValidationError("end_time", "end time must be after start time", req.EndTime)
	}

	exists, err := s.repo.Exam().ExistsByTitle(ctx, nil, req.Title, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to check exam title: %w", err)
	}
	if exists {
		return nil, NewValidationError("title", "an exam with this title already exists", req.Title)
	}

	examQuestions, total, err := s.buildExamQuestions(ctx, req)
	if err != nil {
		return nil, err
	}

	passing := 50
	if req.PassingScore != nil {
		passing = *req.PassingScore
	}

	now := s.clock.Now()
	exam := &models.Exam{
		Title:          strings.TrimSpace(req.Title),
		RoomID:         req.RoomID,
		QuestionType:   req.QuestionType,
		Status:         models.ExamDraft,
		StartTime:      req.StartTime.UTC(),
		EndTime:        req.EndTime.UTC(),
		Duration:       req.Duration,
		TotalQuestions: len(examQuestions),
		TotalPoints:    total,
		PassingScore:   passing,
		CreatedBy:      creatorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Exam().Create(ctx, tx, exam); err != nil {
			return fmt.Errorf("failed to create exam: %w", err)
		}
		for _, q := range examQuestions {
			q.ExamID = exam.ID
		}
		if err := s.repo.ExamQuestion().CreateBatch(ctx, tx, examQuestions); err != nil {
			return fmt.Errorf("failed to create exam questions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:    creatorID,
		Action:     actionExamCreate,
		TargetType: "exam",
		TargetID:   exam.ID,
		Details:    map[string]any{"title": exam.Title, "room_id": exam.RoomID},
	})

	s.logger.Info("Exam created", "exam_id", exam.ID, "total_points", exam.TotalPoints.String())
	return &models.ExamResponse{Exam: exam, LiveStatus: exam.LiveStatus(now)}, nil
}

// buildExamQuestions checks the question set against the bank and the exam type.
func (s *examService) buildExamQuestions(ctx context.Context, req *models.CreateExamRequest) ([]*models.ExamQuestion, decimal.Decimal, error) {
	ids := make([]uint, 0, len(req.Questions))
	seen := make(map[uint]bool, len(req.Questions))
	for _, q := range req.Questions {
		if seen[q.QuestionID] {
			return nil, decimal.Zero, NewValidationError("questions", "duplicate question id", q.QuestionID)
		}
		if !q.Points.IsPositive() {
			return nil, decimal.Zero, NewValidationError("questions.points", "points must be greater than zero", q.QuestionID)
		}
		if !q.Points.Equal(q.Points.Round(2)) {
			return nil, decimal.Zero, NewValidationError("questions.points", "points allow at most two decimal places", q.QuestionID)
		}
		seen[q.QuestionID] = true
		ids = append(ids, q.QuestionID)
	}

	bank, err := s.repo.Question().GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to load questions: %w", err)
	}
	byID := make(map[uint]*models.Question, len(bank))
	for _, q := range bank {
		byID[q.ID] = q
	}

	var missing []uint
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		if q.Type != req.QuestionType {
			return nil, decimal.Zero, NewValidationError("questions", fmt.Sprintf("question %d is %s, exam is %s", id, q.Type, req.QuestionType), id)
		}
	}
	if len(missing) > 0 {
		return nil, decimal.Zero, NewValidationError("questions", "questions not found", missing)
	}

	total := decimal.Zero
	out := make([]*models.ExamQuestion, 0, len(req.Questions))
	for i, q := range req.Questions {
		total = total.Add(q.Points)
		out = append(out, &models.ExamQuestion{QuestionID: q.QuestionID, Points: q.Points, Order: i + 1})
	}
	if !total.IsPositive() {
		return nil, decimal.Zero, NewValidationError("questions", "total points must be greater than zero", total.String())
	}
	return out, total, nil
}

func (s *examService) GetExam(ctx context.Context, examID uint) (*models.ExamResponse, error) {
	exam, err := s.repo.Exam().GetByID(ctx, nil, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, notFound("Exam not found")
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	return &models.ExamResponse{Exam: exam, LiveStatus: exam.LiveStatus(s.clock.Now())}, nil
}

// ===== STATE MACHINE =====

func (s *examService) ChangeStatus(ctx context.Context, examID uint, newStatus models.ExamStatus, actorID string) (*models.ExamResponse, error) {
	s.logger.Info("Changing exam status", "exam_id", examID, "status", newStatus, "actor_id", actorID)

	if err := s.validator.Validate(&models.ChangeExamStatusRequest{Status: newStatus}); err != nil {
		return nil, err
	}

	ok, err := s.access.canAuthor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewPermissionError(actorID, examID, "exam", "change_status", "You do not have permission to change the status of this exam.")
	}

	exam, err := s.repo.Exam().GetByID(ctx, nil, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, notFound("Exam not found")
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	now := s.clock.Now()
	if exam.Status == newStatus {
		return nil, invalidTransition("Exam is already in status: %s", newStatus)
	}
	switch {
	case exam.LiveStatus(now) == models.LiveOngoing:
		return nil, invalidTransition(msgExamOngoing)
	case newStatus == models.ExamPublished && now.After(exam.EndTime):
		return nil, invalidTransition(msgPublishAfterEnd)
	}

	from := exam.Status
	affected, err := s.repo.Exam().UpdateStatus(ctx, nil, examID, from, newStatus, actorID, now)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Someone else moved it between our read and the write.
		return nil, invalidTransition("Exam status changed concurrently; reload and retry")
	}

	exam.Status = newStatus
	exam.UpdatedBy = &actorID
	exam.UpdatedAt = now

	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.EventExamStatusChanged, examID, 0,
		map[string]any{"from": from, "to": newStatus}, now))
	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     actionExamStatus,
		TargetType: "exam",
		TargetID:   examID,
		Details:    map[string]any{"from": from, "to": newStatus},
	})

	s.logger.Info("Exam status changed", "exam_id", examID, "from", from, "to", newStatus)
	return &models.ExamResponse{Exam: exam, LiveStatus: exam.LiveStatus(now)}, nil
}

// ===== SUPERVISION =====

func (s *examService) AssignSupervisors(ctx context.Context, examID uint, req *models.AssignSupervisorsRequest, actorID string) ([]string, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	exam, err := s.repo.Exam().GetByID(ctx, nil, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, notFound("Exam not found")
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	if exam.CreatedBy != actorID {
		admin, err := s.access.isAdmin(ctx, actorID)
		if err != nil {
			return nil, err
		}
		if !admin {
			return nil, NewPermissionError(actorID, examID, "exam", "assign_supervisors", "You do not have permission to assign supervisors to this exam.")
		}
	}

	ids := dedupeStrings(req.UserIDs)
	users, err := s.repo.User().GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve users: %w", err)
	}
	found := make(map[string]*models.User, len(users))
	for _, u := range users {
		found[u.ID] = u
	}
	for _, id := range ids {
		u, ok := found[id]
		if !ok {
			return nil, NewValidationError("user_ids", "user not found", id)
		}
		if u.Role == models.RoleStudent {
			return nil, NewValidationError("user_ids", "students cannot supervise exams", id)
		}
	}

	if err := s.repo.Roster().AssignSupervisors(ctx, nil, examID, ids, actorID); err != nil {
		return nil, fmt.Errorf("failed to assign supervisors: %w", err)
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     actionExamSupervisors,
		TargetType: "exam",
		TargetID:   examID,
		Details:    map[string]any{"user_ids": ids},
	})

	return s.repo.Roster().ListSupervisors(ctx, nil, examID)
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
