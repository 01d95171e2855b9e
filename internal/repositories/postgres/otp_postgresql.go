package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
)

type OtpPostgreSQL struct {
	baseRepo
}

func NewOtpPostgreSQL(db *gorm.DB) repositories.OtpRepository {
	return &OtpPostgreSQL{baseRepo{db: db}}
}

func (r *OtpPostgreSQL) Create(ctx context.Context, tx *gorm.DB, otp *models.ExamOtp) error {
	return r.getDB(tx).WithContext(ctx).Create(otp).Error
}

// GetLatest returns the most recently issued code; older codes are superseded.
func (r *OtpPostgreSQL) GetLatest(ctx context.Context, tx *gorm.DB, examID uint) (*models.ExamOtp, error) {
	var otp models.ExamOtp
	err := r.getDB(tx).WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("created_at DESC, id DESC").
		First(&otp).Error
	if err != nil {
		return nil, err
	}
	return &otp, nil
}
