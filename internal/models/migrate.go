package models

import "gorm.io/gorm"

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Question{},
		&Exam{},
		&ExamQuestion{},
		&ExamOtp{},
		&ExamSupervisor{},
		&RoomMember{},
		&StudentExam{},
		&StudentAnswer{},
		&ActivityLog{},
	)
}
