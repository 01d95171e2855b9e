package postgres

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
)

type StudentAnswerPostgreSQL struct {
	baseRepo
}

func NewStudentAnswerPostgreSQL(db *gorm.DB) repositories.StudentAnswerRepository {
	return &StudentAnswerPostgreSQL{baseRepo{db: db}}
}

func (r *StudentAnswerPostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, answers []*models.StudentAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	return r.getDB(tx).WithContext(ctx).CreateInBatches(answers, 100).Error
}

func (r *StudentAnswerPostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, answers []*models.StudentAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	return r.getDB(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_exam_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_answer", "time_spent", "updated_at"}),
		}).
		Create(&answers).Error
}

func (r *StudentAnswerPostgreSQL) GetByStudentExam(ctx context.Context, tx *gorm.DB, studentExamID uint) ([]*models.StudentAnswer, error) {
	var answers []*models.StudentAnswer
	err := r.getDB(tx).WithContext(ctx).
		Where("student_exam_id = ?", studentExamID).
		Order("question_id ASC").
		Find(&answers).Error
	return answers, err
}

func (r *StudentAnswerPostgreSQL) SaveGrades(ctx context.Context, tx *gorm.DB, answers []*models.StudentAnswer) error {
	db := r.getDB(tx).WithContext(ctx)
	for _, a := range answers {
		err := db.Model(a).
			Select("is_correct", "points_earned", "graded_by", "graded_at").
			Updates(a).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *StudentAnswerPostgreSQL) CountAnswered(ctx context.Context, tx *gorm.DB, studentExamIDs []uint) (map[uint]int64, error) {
	out := make(map[uint]int64, len(studentExamIDs))
	if len(studentExamIDs) == 0 {
		return out, nil
	}

	var rows []struct {
		StudentExamID uint
		Count         int64
	}
	err := r.getDB(tx).WithContext(ctx).
		Model(&models.StudentAnswer{}).
		Select("student_exam_id, COUNT(*) AS count").
		Where("student_exam_id IN ? AND user_answer <> ''", studentExamIDs).
		Group("student_exam_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		out[row.StudentExamID] = row.Count
	}
	return out, nil
}
