package postgres

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
)

type StudentExamPostgreSQL struct {
	baseRepo
}

func NewStudentExamPostgreSQL(db *gorm.DB) repositories.StudentExamRepository {
	return &StudentExamPostgreSQL{baseRepo{db: db}}
}

func (r *StudentExamPostgreSQL) Create(ctx context.Context, tx *gorm.DB, se *models.StudentExam) error {
	return r.getDB(tx).WithContext(ctx).Create(se).Error
}

func (r *StudentExamPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.StudentExam, error) {
	var se models.StudentExam
	if err := r.getDB(tx).WithContext(ctx).First(&se, id).Error; err != nil {
		return nil, err
	}
	return &se, nil
}

func (r *StudentExamPostgreSQL) GetForStudent(ctx context.Context, tx *gorm.DB, id, examID uint, studentID string) (*models.StudentExam, error) {
	var se models.StudentExam
	err := r.getDB(tx).WithContext(ctx).
		Where("id = ? AND exam_id = ? AND student_id = ?", id, examID, studentID).
		First(&se).Error
	if err != nil {
		return nil, err
	}
	return &se, nil
}

func (r *StudentExamPostgreSQL) GetActive(ctx context.Context, tx *gorm.DB, examID uint, studentID string) (*models.StudentExam, error) {
	var se models.StudentExam
	err := r.getDB(tx).WithContext(ctx).
		Where("exam_id = ? AND student_id = ? AND status = ?", examID, studentID, models.StudentExamInProgress).
		First(&se).Error
	if err != nil {
		return nil, err
	}
	return &se, nil
}

// GetLatest returns the student's most recent attempt at the exam in any status.
func (r *StudentExamPostgreSQL) GetLatest(ctx context.Context, tx *gorm.DB, examID uint, studentID string) (*models.StudentExam, error) {
	var se models.StudentExam
	err := r.getDB(tx).WithContext(ctx).
		Where("exam_id = ? AND student_id = ?", examID, studentID).
		Order("id DESC").
		First(&se).Error
	if err != nil {
		return nil, err
	}
	return &se, nil
}

func (r *StudentExamPostgreSQL) LockActive(ctx context.Context, tx *gorm.DB, id uint) (*models.StudentExam, error) {
	var se models.StudentExam
	err := r.getDB(tx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND status = ?", id, models.StudentExamInProgress).
		First(&se).Error
	if err != nil {
		return nil, err
	}
	return &se, nil
}

func (r *StudentExamPostgreSQL) ListByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.StudentExam, error) {
	var list []*models.StudentExam
	err := r.getDB(tx).WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("start_time ASC, id ASC").
		Find(&list).Error
	return list, err
}

func (r *StudentExamPostgreSQL) ListActiveByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.StudentExam, error) {
	var list []*models.StudentExam
	err := r.getDB(tx).WithContext(ctx).
		Where("exam_id = ? AND status = ?", examID, models.StudentExamInProgress).
		Order("id ASC").
		Find(&list).Error
	return list, err
}

func (r *StudentExamPostgreSQL) ListAllActive(ctx context.Context, tx *gorm.DB) ([]*models.StudentExam, error) {
	var list []*models.StudentExam
	err := r.getDB(tx).WithContext(ctx).
		Preload("Exam").
		Where("status = ?", models.StudentExamInProgress).
		Order("id ASC").
		Find(&list).Error
	return list, err
}

func (r *StudentExamPostgreSQL) CountByExamAndStatus(ctx context.Context, tx *gorm.DB, examIDs []uint) ([]models.StatusCount, error) {
	var counts []models.StatusCount
	if len(examIDs) == 0 {
		return counts, nil
	}
	err := r.getDB(tx).WithContext(ctx).
		Model(&models.StudentExam{}).
		Select("exam_id, status, COUNT(*) AS count").
		Where("exam_id IN ?", examIDs).
		Group("exam_id, status").
		Scan(&counts).Error
	return counts, err
}

func (r *StudentExamPostgreSQL) AddExtraTime(ctx context.Context, tx *gorm.DB, ids []uint, minutes int) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.getDB(tx).WithContext(ctx).
		Model(&models.StudentExam{}).
		Where("id IN ? AND status = ?", ids, models.StudentExamInProgress).
		Update("extra_time_minutes", gorm.Expr("extra_time_minutes + ?", minutes))
	return result.RowsAffected, result.Error
}

func (r *StudentExamPostgreSQL) Close(ctx context.Context, tx *gorm.DB, id uint, status models.StudentExamStatus, submitTime time.Time, score decimal.NullDecimal) (int64, error) {
	result := r.getDB(tx).WithContext(ctx).
		Model(&models.StudentExam{}).
		Where("id = ? AND status = ?", id, models.StudentExamInProgress).
		Updates(map[string]interface{}{
			"status":      status,
			"submit_time": submitTime,
			"score":       score,
		})
	return result.RowsAffected, result.Error
}

func (r *StudentExamPostgreSQL) Grade(ctx context.Context, tx *gorm.DB, id uint, status models.StudentExamStatus, score decimal.Decimal) (int64, error) {
	result := r.getDB(tx).WithContext(ctx).
		Model(&models.StudentExam{}).
		Where("id = ? AND status = ?", id, models.StudentExamSubmitted).
		Updates(map[string]interface{}{
			"status": status,
			"score":  score,
		})
	return result.RowsAffected, result.Error
}
