package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-session-service/internal/cache"
	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
)

type ExamPostgreSQL struct {
	baseRepo
	cacheManager *cache.CacheManager
}

func NewExamPostgreSQL(db *gorm.DB, cm *cache.CacheManager) repositories.ExamRepository {
	return &ExamPostgreSQL{baseRepo: baseRepo{db: db}, cacheManager: cm}
}

func (r *ExamPostgreSQL) Create(ctx context.Context, tx *gorm.DB, exam *models.Exam) error {
	return r.getDB(tx).WithContext(ctx).Create(exam).Error
}

func (r *ExamPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	fetch := func() (*models.Exam, error) {
		var exam models.Exam
		if err := r.getDB(tx).WithContext(ctx).First(&exam, id).Error; err != nil {
			return nil, err
		}
		return &exam, nil
	}

	if !cacheable(tx) {
		return fetch()
	}
	return cache.CacheOrExecute(ctx, r.cacheManager.Exam, cache.ExamKey(id), fetch)
}

func (r *ExamPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Exam, error) {
	var exams []*models.Exam
	if len(ids) == 0 {
		return exams, nil
	}
	err := r.getDB(tx).WithContext(ctx).
		Where("id IN ?", ids).
		Order("start_time ASC, id ASC").
		Find(&exams).Error
	return exams, err
}

func (r *ExamPostgreSQL) ListPublished(ctx context.Context, tx *gorm.DB) ([]*models.Exam, error) {
	var exams []*models.Exam
	err := r.getDB(tx).WithContext(ctx).
		Where("status <> ?", models.ExamDraft).
		Order("start_time ASC, id ASC").
		Find(&exams).Error
	return exams, err
}

func (r *ExamPostgreSQL) ExistsByTitle(ctx context.Context, tx *gorm.DB, title string, creatorID string) (bool, error) {
	var count int64
	err := r.getDB(tx).WithContext(ctx).
		Model(&models.Exam{}).
		Where("LOWER(title) = LOWER(?) AND created_by = ?", title, creatorID).
		Count(&count).Error
	return count > 0, err
}

func (r *ExamPostgreSQL) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, from, to models.ExamStatus, actorID string, at time.Time) (int64, error) {
	result := r.getDB(tx).WithContext(ctx).
		Model(&models.Exam{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_by": actorID,
			"updated_at": at,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update exam status: %w", result.Error)
	}

	cache.InvalidateExam(ctx, r.cacheManager, id)
	return result.RowsAffected, nil
}
