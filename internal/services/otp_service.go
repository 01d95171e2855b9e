package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-session-service/internal/clock"
	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"github.com/SAP-F-2025/exam-session-service/internal/validator"
)

const otpDigits = 6

type otpService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	clock     clock.Clock
	audit     AuditSink
	access    accessChecker
}

func NewOtpService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, clk clock.Clock, audit AuditSink) OtpService {
	return &otpService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		clock:     clk,
		audit:     audit,
		access:    accessChecker{repo: repo},
	}
}

func (s *otpService) IssueOtp(ctx context.Context, examID uint, validMinutes int, actorID string) (*models.ExamOtp, error) {
	if err := s.validator.Validate(&models.IssueOtpRequest{ValidMinutes: validMinutes}); err != nil {
		return nil, err
	}

	exam, err := s.managedExam(ctx, examID, actorID, "issue_otp")
	if err != nil {
		return nil, err
	}

	code, err := generateOtpCode(otpDigits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate otp: %w", err)
	}

	now := s.clock.Now()
	otp := &models.ExamOtp{
		ExamID:       exam.ID,
		Code:         code,
		ValidMinutes: validMinutes,
		ExpiredAt:    now.Add(time.Duration(validMinutes) * time.Minute),
		CreatedBy:    actorID,
		CreatedAt:    now,
	}
	if err := s.repo.Otp().Create(ctx, nil, otp); err != nil {
		return nil, fmt.Errorf("failed to store otp: %w", err)
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     actionOtpIssue,
		TargetType: "exam",
		TargetID:   examID,
		Details:    map[string]any{"valid_minutes": validMinutes, "expired_at": otp.ExpiredAt},
	})

	s.logger.Info("OTP issued", "exam_id", examID, "expired_at", otp.ExpiredAt, "actor_id", actorID)
	return otp, nil
}

func (s *otpService) GetCurrentOtp(ctx context.Context, examID uint, actorID string) (*models.ExamOtp, error) {
	if _, err := s.managedExam(ctx, examID, actorID, "view_otp"); err != nil {
		return nil, err
	}

	otp, err := s.repo.Otp().GetLatest(ctx, nil, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, notFound("No OTP has been issued for this exam")
		}
		return nil, fmt.Errorf("failed to get otp: %w", err)
	}
	if !otp.IsValidAt(s.clock.Now()) {
		return nil, notFound("The OTP for this exam has expired")
	}
	return otp, nil
}

// Validate checks code against the most recent OTP for the exam. Issuing a
// new code supersedes older ones even if they have not expired.
func (s *otpService) Validate(ctx context.Context, tx *gorm.DB, examID uint, code string, now time.Time) (bool, error) {
	otp, err := s.repo.Otp().GetLatest(ctx, tx, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load otp: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(otp.Code), []byte(code)) != 1 {
		return false, nil
	}
	return otp.IsValidAt(now), nil
}

func (s *otpService) managedExam(ctx context.Context, examID uint, actorID, action string) (*models.Exam, error) {
	exam, err := s.repo.Exam().GetByID(ctx, nil, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, notFound("Exam not found")
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	ok, err := s.access.canManage(ctx, exam, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewPermissionError(actorID, examID, "exam", action, msgCannotSuperviseExam)
	}
	return exam, nil
}

func generateOtpCode(digits int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}
