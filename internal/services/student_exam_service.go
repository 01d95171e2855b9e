package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-session-service/internal/clock"
	"github.com/SAP-F-2025/exam-session-service/internal/events"
	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"github.com/SAP-F-2025/exam-session-service/internal/validator"
)

type studentExamService struct {
	db        *gorm.DB
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	clock     clock.Clock
	otp       OtpService
	publisher events.EventPublisher
	audit     AuditSink
	access    accessChecker
}

func NewStudentExamService(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator,
	clk clock.Clock, otp OtpService, publisher events.EventPublisher, audit AuditSink) StudentExamService {
	return &studentExamService{
		db:        db,
		repo:      repo,
		logger:    logger,
		validator: validator,
		clock:     clk,
		otp:       otp,
		publisher: publisher,
		audit:     audit,
		access:    accessChecker{repo: repo},
	}
}

// ===== STUDENT OPERATIONS =====

func (s *studentExamService) AccessExam(ctx context.Context, req *models.AccessExamRequest, studentID string, client models.ClientContext) (*models.StudentExamResponse, error) {
	s.logger.Info("Student accessing exam", "exam_id", req.ExamID, "student_id", studentID, "ip", client.IPAddress)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	exam, err := s.repo.Exam().GetByID(ctx, nil, req.ExamID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, notFound(msgExamNotAvailable)
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	now := s.clock.Now()
	if exam.LiveStatus(now) != models.LiveOngoing {
		return nil, notFound(msgExamNotAvailable)
	}
	member, err := s.repo.Roster().IsRoomMember(ctx, nil, exam.RoomID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check room membership: %w", err)
	}
	if !member {
		return nil, notFound(msgExamNotAvailable)
	}

	var (
		attempt *models.StudentExam
		resumed bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		valid, err := s.otp.Validate(ctx, tx, exam.ID, req.OtpCode, now)
		if err != nil {
			return err
		}
		if !valid {
			return newServiceError(ErrInvalidOrExpiredOtp, msgInvalidOtp)
		}

		// One attempt per student: resume it while open, refuse once closed.
		existing, err := s.repo.StudentExam().GetLatest(ctx, tx, exam.ID, studentID)
		if err == nil {
			if existing.Status != models.StudentExamInProgress {
				return invalidTransition(msgAttemptClosed)
			}
			attempt, resumed = existing, true
			return nil
		}
		if !repositories.IsNotFoundError(err) {
			return fmt.Errorf("failed to check existing attempt: %w", err)
		}

		attempt, err = s.startAttempt(ctx, tx, exam, studentID, client, now)
		return err
	})
	if err != nil && repositories.IsDuplicateKeyError(err) {
		// A concurrent request created the attempt first; join it.
		existing, getErr := s.repo.StudentExam().GetActive(ctx, nil, exam.ID, studentID)
		if getErr != nil {
			return nil, fmt.Errorf("failed to resume attempt after conflict: %w", getErr)
		}
		attempt, resumed, err = existing, true, nil
	}
	if err != nil {
		return nil, err
	}

	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.EventAccessGranted, exam.ID, attempt.ID,
		map[string]any{"studentId": studentID, "resumed": resumed, "ipAddress": client.IPAddress}, now))
	s.audit.Record(ctx, AuditEntry{
		ActorID:    studentID,
		Action:     actionAccess,
		TargetType: "student_exam",
		TargetID:   attempt.ID,
		Details:    map[string]any{"exam_id": exam.ID, "resumed": resumed, "ip_address": client.IPAddress},
	})

	resp := models.NewStudentExamResponse(attempt, exam.DurationValue(), now)
	resp.Resumed = resumed
	return resp, nil
}

// startAttempt creates the attempt and one empty answer per exam question, so
// scoring always covers the whole question set.
func (s *studentExamService) startAttempt(ctx context.Context, tx *gorm.DB, exam *models.Exam, studentID string, client models.ClientContext, now time.Time) (*models.StudentExam, error) {
	questions, err := s.repo.ExamQuestion().GetByExam(ctx, tx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load exam questions: %w", err)
	}

	attempt := &models.StudentExam{
		ExamID:         exam.ID,
		StudentID:      studentID,
		Status:         models.StudentExamInProgress,
		StartTime:      now,
		TotalQuestions: len(questions),
		IPAddress:      stringPtr(client.IPAddress),
		UserAgent:      stringPtr(client.UserAgent),
		ClientContext:  clientContextJSON(client),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.StudentExam().Create(ctx, tx, attempt); err != nil {
		return nil, err
	}

	answers := make([]*models.StudentAnswer, 0, len(questions))
	for _, q := range questions {
		answers = append(answers, &models.StudentAnswer{
			StudentExamID: attempt.ID,
			QuestionID:    q.QuestionID,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	if err := s.repo.StudentAnswer().CreateBatch(ctx, tx, answers); err != nil {
		return nil, fmt.Errorf("failed to initialize answers: %w", err)
	}

	s.logger.Info("Attempt started", "student_exam_id", attempt.ID, "exam_id", exam.ID, "student_id", studentID)
	return attempt, nil
}

func (s *studentExamService) GetStudentExam(ctx context.Context, studentExamID uint, userID string) (*models.StudentExamResponse, error) {
	attempt, err := s.repo.StudentExam().GetByID(ctx, nil, studentExamID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, notFound("Student exam not found")
		}
		return nil, fmt.Errorf("failed to get student exam: %w", err)
	}

	exam, err := s.loadExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}

	if attempt.StudentID != userID {
		ok, err := s.access.canManage(ctx, exam, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, NewPermissionError(userID, studentExamID, "student_exam", "view", msgCannotViewExam)
		}
	}

	return models.NewStudentExamResponse(attempt, exam.DurationValue(), s.clock.Now()), nil
}

func (s *studentExamService) SaveAnswerTemporary(ctx context.Context, req *models.SaveAnswersRequest, studentID string) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}

	attempt, exam, err := s.activeAttempt(ctx, req.StudentExamID, req.ExamID, studentID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if now.After(attempt.Deadline(exam.DurationValue())) {
		return newServiceError(ErrDeadlinePassed, "Exam time is over")
	}

	questions, err := s.repo.ExamQuestion().GetByExam(ctx, nil, exam.ID)
	if err != nil {
		return fmt.Errorf("failed to load exam questions: %w", err)
	}
	answers, err := buildAnswers(attempt.ID, req.Answers, questions, now)
	if err != nil {
		return err
	}

	// A submit that won the row lock first leaves nothing to save into.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.StudentExam().LockActive(ctx, tx, attempt.ID); err != nil {
			if repositories.IsNotFoundError(err) {
				return notFound(msgNotStarted)
			}
			return fmt.Errorf("failed to lock attempt: %w", err)
		}
		if err := s.repo.StudentAnswer().Upsert(ctx, tx, answers); err != nil {
			return fmt.Errorf("failed to save answers: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("Answers saved", "student_exam_id", attempt.ID, "count", len(answers))
	return nil
}

func (s *studentExamService) SubmitExam(ctx context.Context, req *models.SubmitExamRequest, studentID string, client models.ClientContext) (*models.StudentExamResponse, error) {
	s.logger.Info("Submitting exam", "student_exam_id", req.StudentExamID, "exam_id", req.ExamID, "student_id", studentID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, err := s.repo.StudentExam().GetForStudent(ctx, nil, req.StudentExamID, req.ExamID, studentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, notFound(msgNotStarted)
		}
		return nil, fmt.Errorf("failed to get student exam: %w", err)
	}
	exam, err := s.loadExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if attempt.Status.IsClosed() {
		return models.NewStudentExamResponse(attempt, exam.DurationValue(), now), nil
	}
	if attempt.Status != models.StudentExamInProgress {
		return nil, notFound(msgNotStarted)
	}

	questions, err := s.repo.ExamQuestion().GetByExam(ctx, nil, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load exam questions: %w", err)
	}

	// Answers sent after the deadline are discarded; what was saved in time is scored.
	var final []*models.StudentAnswer
	inTime := !now.After(attempt.Deadline(exam.DurationValue()))
	if inTime && len(req.Answers) > 0 {
		final, err = buildAnswers(attempt.ID, req.Answers, questions, now)
		if err != nil {
			return nil, err
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.StudentAnswer().Upsert(ctx, tx, final); err != nil {
			return fmt.Errorf("failed to merge answers: %w", err)
		}
		return s.closeAttempt(ctx, tx, exam, questions, attempt, now)
	})
	if errors.Is(err, errAttemptAlreadyClosed) {
		return s.reloadResponse(ctx, attempt.ID, exam, now)
	}
	if err != nil {
		return nil, err
	}

	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.EventAttemptSubmitted, exam.ID, attempt.ID,
		map[string]any{"studentId": studentID, "status": attempt.Status, "late": !inTime}, now))
	s.audit.Record(ctx, AuditEntry{
		ActorID:    studentID,
		Action:     actionSubmit,
		TargetType: "student_exam",
		TargetID:   attempt.ID,
		Details:    map[string]any{"exam_id": exam.ID, "status": attempt.Status, "ip_address": client.IPAddress},
	})

	s.logger.Info("Exam submitted", "student_exam_id", attempt.ID, "status", attempt.Status, "score", attempt.Score)
	return models.NewStudentExamResponse(attempt, exam.DurationValue(), now), nil
}

// ===== SUPERVISOR OPERATIONS =====

func (s *studentExamService) AddStudentExtraTime(ctx context.Context, studentExamID uint, extraMinutes int, actorID string) (*models.StudentExamResponse, error) {
	if err := s.validator.Validate(&models.AddStudentExtraTimeRequest{ExtraMinutes: extraMinutes}); err != nil {
		return nil, err
	}

	attempt, err := s.repo.StudentExam().GetByID(ctx, nil, studentExamID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, notFound(msgNotTaking)
		}
		return nil, fmt.Errorf("failed to get student exam: %w", err)
	}
	if attempt.Status != models.StudentExamInProgress {
		return nil, notFound(msgNotTaking)
	}

	ok, err := s.access.canSupervise(ctx, attempt.ExamID, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewPermissionError(actorID, attempt.ExamID, "exam", "extra_time", msgCannotSuperviseExam)
	}

	affected, err := s.repo.StudentExam().AddExtraTime(ctx, nil, []uint{studentExamID}, extraMinutes)
	if err != nil {
		return nil, fmt.Errorf("failed to add extra time: %w", err)
	}
	if affected == 0 {
		return nil, notFound(msgNotTaking)
	}

	exam, err := s.loadExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	resp, err := s.reloadResponse(ctx, studentExamID, exam, now)
	if err != nil {
		return nil, err
	}

	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.EventStudentExtraTime, exam.ID, studentExamID,
		map[string]any{"studentId": resp.StudentID, "extraMinutes": extraMinutes, "totalExtraMinutes": resp.ExtraTimeMinutes, "deadline": resp.Deadline}, now))
	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     actionStudentExtraTime,
		TargetType: "student_exam",
		TargetID:   studentExamID,
		Details:    map[string]any{"extra_minutes": extraMinutes},
	})

	s.logger.Info("Extra time granted", "student_exam_id", studentExamID, "minutes", extraMinutes, "actor_id", actorID)
	return resp, nil
}

func (s *studentExamService) AddExamExtraTime(ctx context.Context, examID uint, req *models.AddExamExtraTimeRequest, actorID string) (*models.ExtraTimeResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.RoomID != req.RoomID {
		return nil, notFound("Exam not found in this room")
	}

	ok, err := s.access.canSupervise(ctx, examID, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewPermissionError(actorID, examID, "exam", "extra_time", msgCannotSuperviseExam)
	}

	result := &models.ExtraTimeResult{ExamID: examID, ExtraMinutes: req.ExtraMinutes}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active, err := s.repo.StudentExam().ListActiveByExam(ctx, tx, examID)
		if err != nil {
			return fmt.Errorf("failed to list active attempts: %w", err)
		}
		if len(active) == 0 {
			return newServiceError(ErrNoActiveStudents, msgNoActiveStudents)
		}

		ids := make([]uint, 0, len(active))
		for _, se := range active {
			ids = append(ids, se.ID)
		}
		affected, err := s.repo.StudentExam().AddExtraTime(ctx, tx, ids, req.ExtraMinutes)
		if err != nil {
			return fmt.Errorf("failed to add extra time: %w", err)
		}
		result.AffectedCount = affected
		result.StudentExamIDs = ids
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.EventExamExtraTime, examID, 0,
		map[string]any{"roomId": req.RoomID, "extraMinutes": req.ExtraMinutes, "affectedCount": result.AffectedCount, "studentExamIds": result.StudentExamIDs}, now))
	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     actionExamExtraTime,
		TargetType: "exam",
		TargetID:   examID,
		Details:    map[string]any{"extra_minutes": req.ExtraMinutes, "affected": result.AffectedCount},
	})

	s.logger.Info("Extra time granted to exam", "exam_id", examID, "minutes", req.ExtraMinutes, "affected", result.AffectedCount)
	return result, nil
}

func (s *studentExamService) FinishExam(ctx context.Context, examID uint, actorID string) (*models.FinishExamResult, error) {
	s.logger.Info("Finishing exam", "exam_id", examID, "actor_id", actorID)

	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	ok, err := s.access.canManage(ctx, exam, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewPermissionError(actorID, examID, "exam", "finish", msgCannotSuperviseExam)
	}

	questions, err := s.repo.ExamQuestion().GetByExam(ctx, nil, examID)
	if err != nil {
		return nil, fmt.Errorf("failed to load exam questions: %w", err)
	}

	now := s.clock.Now()
	result := &models.FinishExamResult{ExamID: examID, StudentExamIDs: []uint{}}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active, err := s.repo.StudentExam().ListActiveByExam(ctx, tx, examID)
		if err != nil {
			return fmt.Errorf("failed to list active attempts: %w", err)
		}
		for _, se := range active {
			err := s.closeAttempt(ctx, tx, exam, questions, se, now)
			if errors.Is(err, errAttemptAlreadyClosed) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to close attempt %d: %w", se.ID, err)
			}
			result.StudentExamIDs = append(result.StudentExamIDs, se.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.ClosedCount = len(result.StudentExamIDs)

	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.EventExamFinished, examID, 0,
		map[string]any{"closedCount": result.ClosedCount, "studentExamIds": result.StudentExamIDs}, now))
	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     actionExamFinish,
		TargetType: "exam",
		TargetID:   examID,
		Details:    map[string]any{"closed": result.ClosedCount},
	})

	s.logger.Info("Exam finished", "exam_id", examID, "closed", result.ClosedCount)
	return result, nil
}

// ===== HELPERS =====

func (s *studentExamService) loadExam(ctx context.Context, examID uint) (*models.Exam, error) {
	exam, err := s.repo.Exam().GetByID(ctx, nil, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, notFound("Exam not found")
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	return exam, nil
}

// activeAttempt resolves the (attempt, exam, student) triple to an InProgress attempt.
func (s *studentExamService) activeAttempt(ctx context.Context, studentExamID, examID uint, studentID string) (*models.StudentExam, *models.Exam, error) {
	attempt, err := s.repo.StudentExam().GetForStudent(ctx, nil, studentExamID, examID, studentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, notFound(msgNotStarted)
		}
		return nil, nil, fmt.Errorf("failed to get student exam: %w", err)
	}
	if attempt.Status != models.StudentExamInProgress {
		return nil, nil, notFound(msgNotStarted)
	}
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, nil, err
	}
	return attempt, exam, nil
}

func (s *studentExamService) reloadResponse(ctx context.Context, studentExamID uint, exam *models.Exam, now time.Time) (*models.StudentExamResponse, error) {
	attempt, err := s.repo.StudentExam().GetByID(ctx, nil, studentExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload student exam: %w", err)
	}
	return models.NewStudentExamResponse(attempt, exam.DurationValue(), now), nil
}

// buildAnswers maps request answers onto rows, rejecting ids outside the exam.
func buildAnswers(studentExamID uint, inputs []models.AnswerInput, questions []*models.ExamQuestion, now time.Time) ([]*models.StudentAnswer, error) {
	known := make(map[uint]bool, len(questions))
	for _, q := range questions {
		known[q.QuestionID] = true
	}

	seen := make(map[uint]bool, len(inputs))
	answers := make([]*models.StudentAnswer, 0, len(inputs))
	for _, in := range inputs {
		if !known[in.QuestionID] {
			return nil, NewValidationError("answers.question_id", "question is not part of this exam", in.QuestionID)
		}
		if seen[in.QuestionID] {
			return nil, NewValidationError("answers.question_id", "duplicate question id", in.QuestionID)
		}
		seen[in.QuestionID] = true
		answers = append(answers, &models.StudentAnswer{
			StudentExamID: studentExamID,
			QuestionID:    in.QuestionID,
			UserAnswer:    in.UserAnswer,
			TimeSpent:     in.TimeSpent,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return answers, nil
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func clientContextJSON(client models.ClientContext) datatypes.JSON {
	raw, err := json.Marshal(client)
	if err != nil {
		return nil
	}
	return raw
}
