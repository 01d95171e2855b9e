package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-session-service/internal/clock"
	"github.com/SAP-F-2025/exam-session-service/internal/events"
	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"github.com/SAP-F-2025/exam-session-service/internal/validator"
)

type gradingService struct {
	db        *gorm.DB
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	clock     clock.Clock
	publisher events.EventPublisher
	audit     AuditSink
	access    accessChecker
}

func NewGradingService(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator,
	clk clock.Clock, publisher events.EventPublisher, audit AuditSink) GradingService {
	return &gradingService{
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

// MarkEssay grades every question of a Submitted essay attempt at once and
// moves it to Passed or Failed.
func (s *gradingService) MarkEssay(ctx context.Context, req *models.MarkEssayRequest, graderID string) (*models.StudentExamResponse, error) {
	s.logger.Info("Marking essay", "student_exam_id", req.StudentExamID, "exam_id", req.ExamID, "grader_id", graderID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	exam, err := s.repo.Exam().GetByID(ctx, nil, req.ExamID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, notFound("Exam not found")
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	ok, err := s.access.canManage(ctx, exam, graderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewPermissionError(graderID, exam.ID, "exam", "grade", "You do not have permission to grade this exam.")
	}

	if !IsManuallyGraded(exam.QuestionType) {
		return nil, NewValidationError("exam_id", "exam is graded automatically", exam.QuestionType)
	}

	attempt, err := s.repo.StudentExam().GetByID(ctx, nil, req.StudentExamID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, notFound("Student exam not found")
		}
		return nil, fmt.Errorf("failed to get student exam: %w", err)
	}
	if attempt.ExamID != exam.ID {
		return nil, notFound("Student exam not found")
	}
	if attempt.Status != models.StudentExamSubmitted {
		return nil, invalidTransition("Student exam is not awaiting grading (status: %s)", attempt.Status)
	}

	questions, err := s.repo.ExamQuestion().GetByExam(ctx, nil, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load exam questions: %w", err)
	}
	points, err := validateEssayScores(req.Scores, questions)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	total := decimal.Zero
	for _, p := range points {
		total = total.Add(p)
	}
	status := PercentagePassPolicy(exam.PassingScore)(total, exam.TotalPoints)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		answers, err := s.repo.StudentAnswer().GetByStudentExam(ctx, tx, attempt.ID)
		if err != nil {
			return fmt.Errorf("failed to load answers: %w", err)
		}

		existing := make(map[uint]bool, len(answers))
		for _, a := range answers {
			existing[a.QuestionID] = true
			gradeAnswer(a, points[a.QuestionID], answerMax(questions, a.QuestionID), graderID, now)
		}
		var missing []*models.StudentAnswer
		for _, q := range questions {
			if existing[q.QuestionID] {
				continue
			}
			a := &models.StudentAnswer{StudentExamID: attempt.ID, QuestionID: q.QuestionID, CreatedAt: now, UpdatedAt: now}
			gradeAnswer(a, points[q.QuestionID], q.Points, graderID, now)
			missing = append(missing, a)
		}

		if err := s.repo.StudentAnswer().SaveGrades(ctx, tx, answers); err != nil {
			return fmt.Errorf("failed to save grades: %w", err)
		}
		if err := s.repo.StudentAnswer().CreateBatch(ctx, tx, missing); err != nil {
			return fmt.Errorf("failed to save grades: %w", err)
		}

		affected, err := s.repo.StudentExam().Grade(ctx, tx, attempt.ID, status, total)
		if err != nil {
			return fmt.Errorf("failed to grade attempt: %w", err)
		}
		if affected == 0 {
			return invalidTransition("Student exam was graded concurrently")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	attempt.Status = status
	attempt.Score = decimal.NewNullDecimal(total)

	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.EventEssayGraded, exam.ID, attempt.ID,
		map[string]any{"studentId": attempt.StudentID, "status": status, "score": total.String()}, now))
	s.audit.Record(ctx, AuditEntry{
		ActorID:    graderID,
		Action:     actionMarkEssay,
		TargetType: "student_exam",
		TargetID:   attempt.ID,
		Details:    map[string]any{"score": total.String(), "status": status},
	})

	s.logger.Info("Essay graded", "student_exam_id", attempt.ID, "score", total.String(), "status", status)
	return models.NewStudentExamResponse(attempt, exam.DurationValue(), now), nil
}

// validateEssayScores requires exactly one score per exam question, each
// within [0, points] and at most two decimal places.
func validateEssayScores(scores []models.EssayScoreInput, questions []*models.ExamQuestion) (map[uint]decimal.Decimal, error) {
	maxByID := make(map[uint]decimal.Decimal, len(questions))
	for _, q := range questions {
		maxByID[q.QuestionID] = q.Points
	}

	out := make(map[uint]decimal.Decimal, len(scores))
	for _, sc := range scores {
		limit, ok := maxByID[sc.QuestionID]
		if !ok {
			return nil, NewValidationError("scores.question_id", "question is not part of this exam", sc.QuestionID)
		}
		if _, dup := out[sc.QuestionID]; dup {
			return nil, NewValidationError("scores.question_id", "duplicate question id", sc.QuestionID)
		}
		if sc.Points.IsNegative() || sc.Points.GreaterThan(limit) {
			return nil, NewValidationError("scores.points", fmt.Sprintf("points must be between 0 and %s", limit.String()), sc.Points.String())
		}
		if !sc.Points.Equal(sc.Points.Round(2)) {
			return nil, NewValidationError("scores.points", "points allow at most two decimal places", sc.Points.String())
		}
		out[sc.QuestionID] = sc.Points
	}

	var missing []uint
	for _, q := range questions {
		if _, ok := out[q.QuestionID]; !ok {
			missing = append(missing, q.QuestionID)
		}
	}
	if len(missing) > 0 {
		return nil, NewValidationError("scores", "every question must be graded", missing)
	}
	return out, nil
}

func gradeAnswer(a *models.StudentAnswer, earned, limit decimal.Decimal, graderID string, at time.Time) {
	correct := earned.Equal(limit)
	a.IsCorrect = &correct
	a.PointsEarned = decimal.NewNullDecimal(earned)
	a.GradedBy = &graderID
	a.GradedAt = &at
}

func answerMax(questions []*models.ExamQuestion, questionID uint) decimal.Decimal {
	for _, q := range questions {
		if q.QuestionID == questionID {
			return q.Points
		}
	}
	return decimal.Zero
}
