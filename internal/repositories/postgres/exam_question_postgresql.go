package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
)

type ExamQuestionPostgreSQL struct {
	baseRepo
}

func NewExamQuestionPostgreSQL(db *gorm.DB) repositories.ExamQuestionRepository {
	return &ExamQuestionPostgreSQL{baseRepo{db: db}}
}

func (r *ExamQuestionPostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.ExamQuestion) error {
	if len(questions) == 0 {
		return nil
	}
	return r.getDB(tx).WithContext(ctx).CreateInBatches(questions, 100).Error
}

// GetByExam returns the exam's questions in order with the bank entry preloaded.
func (r *ExamQuestionPostgreSQL) GetByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.ExamQuestion, error) {
	var questions []*models.ExamQuestion
	err := r.getDB(tx).WithContext(ctx).
		Preload("Question").
		Where("exam_id = ?", examID).
		Order("question_order ASC, id ASC").
		Find(&questions).Error
	return questions, err
}

type QuestionPostgreSQL struct {
	baseRepo
}

func NewQuestionPostgreSQL(db *gorm.DB) repositories.QuestionRepository {
	return &QuestionPostgreSQL{baseRepo{db: db}}
}

func (r *QuestionPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	var questions []*models.Question
	if len(ids) == 0 {
		return questions, nil
	}
	err := r.getDB(tx).WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error
	return questions, err
}
