package repositories

import "context"

// Repository aggregates the repositories the session services depend on.
type Repository interface {
	Exam() ExamRepository
	ExamQuestion() ExamQuestionRepository
	Question() QuestionRepository
	Otp() OtpRepository
	StudentExam() StudentExamRepository
	StudentAnswer() StudentAnswerRepository
	Roster() RosterRepository
	ActivityLog() ActivityLogRepository

	// User domain (read-only, backed by Casdoor)
	User() UserRepository

	Ping(ctx context.Context) error
	Close() error
}

type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
