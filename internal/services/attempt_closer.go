package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
)

// errAttemptAlreadyClosed means another path closed the attempt first.
var errAttemptAlreadyClosed = errors.New("attempt already closed")

// closeAttempt scores the attempt's stored answers and moves it out of
// InProgress. It is the only path that sets SubmitTime, and it writes only
// if the row is still InProgress inside tx.
func (s *studentExamService) closeAttempt(ctx context.Context, tx *gorm.DB, exam *models.Exam, questions []*models.ExamQuestion,
	attempt *models.StudentExam, now time.Time) error {
	strategy, err := NewScoringStrategy(exam)
	if err != nil {
		return err
	}

	// Autosaves take the same row lock, so the answers read below are final.
	if _, err := s.repo.StudentExam().LockActive(ctx, tx, attempt.ID); err != nil {
		if repositories.IsNotFoundError(err) {
			return errAttemptAlreadyClosed
		}
		return fmt.Errorf("failed to lock attempt: %w", err)
	}

	answers, err := s.repo.StudentAnswer().GetByStudentExam(ctx, tx, attempt.ID)
	if err != nil {
		return fmt.Errorf("failed to load answers: %w", err)
	}

	outcome := strategy.ScoreAnswers(answers, answerKeys(questions), now)

	affected, err := s.repo.StudentExam().Close(ctx, tx, attempt.ID, outcome.Status, now, outcome.Score)
	if err != nil {
		return fmt.Errorf("failed to close attempt: %w", err)
	}
	if affected == 0 {
		return errAttemptAlreadyClosed
	}

	if err := s.repo.StudentAnswer().SaveGrades(ctx, tx, answers); err != nil {
		return fmt.Errorf("failed to save grades: %w", err)
	}

	attempt.Status = outcome.Status
	attempt.SubmitTime = &now
	attempt.Score = outcome.Score
	return nil
}
