package postgres

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/exam-session-service/internal/cache"
	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
)

type RosterPostgreSQL struct {
	baseRepo
	cacheManager *cache.CacheManager
}

func NewRosterPostgreSQL(db *gorm.DB, cm *cache.CacheManager) repositories.RosterRepository {
	return &RosterPostgreSQL{baseRepo: baseRepo{db: db}, cacheManager: cm}
}

func (r *RosterPostgreSQL) IsRoomMember(ctx context.Context, tx *gorm.DB, roomID uint, userID string) (bool, error) {
	fetch := func() (bool, error) {
		var count int64
		err := r.getDB(tx).WithContext(ctx).
			Model(&models.RoomMember{}).
			Where("room_id = ? AND user_id = ?", roomID, userID).
			Count(&count).Error
		return count > 0, err
	}

	if !cacheable(tx) {
		return fetch()
	}
	// Room rosters are edited elsewhere and never invalidate this key, so only
	// membership is cached.
	return cache.CacheOrExecuteWhen(ctx, r.cacheManager.Access, cache.RoomMemberKey(roomID, userID), fetch,
		func(member bool) bool { return member })
}

func (r *RosterPostgreSQL) IsExamSupervisor(ctx context.Context, tx *gorm.DB, examID uint, userID string) (bool, error) {
	fetch := func() (bool, error) {
		var count int64
		err := r.getDB(tx).WithContext(ctx).
			Model(&models.ExamSupervisor{}).
			Where("exam_id = ? AND user_id = ?", examID, userID).
			Count(&count).Error
		return count > 0, err
	}

	if !cacheable(tx) {
		return fetch()
	}
	return cache.CacheOrExecute(ctx, r.cacheManager.Access, cache.SupervisorKey(examID, userID), fetch)
}

func (r *RosterPostgreSQL) SupervisedExamIDs(ctx context.Context, tx *gorm.DB, userID string) ([]uint, error) {
	fetch := func() ([]uint, error) {
		ids := []uint{}
		err := r.getDB(tx).WithContext(ctx).
			Model(&models.ExamSupervisor{}).
			Where("user_id = ?", userID).
			Order("exam_id ASC").
			Pluck("exam_id", &ids).Error
		return ids, err
	}

	if !cacheable(tx) {
		return fetch()
	}
	return cache.CacheOrExecute(ctx, r.cacheManager.Access, cache.SupervisedExamsKey(userID), fetch)
}

func (r *RosterPostgreSQL) ListSupervisors(ctx context.Context, tx *gorm.DB, examID uint) ([]string, error) {
	var ids []string
	err := r.getDB(tx).WithContext(ctx).
		Model(&models.ExamSupervisor{}).
		Where("exam_id = ?", examID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// AssignSupervisors is idempotent; existing assignments are left untouched.
func (r *RosterPostgreSQL) AssignSupervisors(ctx context.Context, tx *gorm.DB, examID uint, userIDs []string, actorID string) error {
	if len(userIDs) == 0 {
		return nil
	}

	rows := make([]*models.ExamSupervisor, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, &models.ExamSupervisor{ExamID: examID, UserID: id, CreatedBy: actorID})
	}

	err := r.getDB(tx).WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return err
	}

	cache.InvalidateSupervisors(ctx, r.cacheManager, examID, userIDs)
	return nil
}
