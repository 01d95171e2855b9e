package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-session-service/internal/cache"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories/casdoor"
)

// PostgreSQLRepository implements repositories.Repository over gorm.
type PostgreSQLRepository struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cacheManager *cache.CacheManager

	exam          repositories.ExamRepository
	examQuestion  repositories.ExamQuestionRepository
	question      repositories.QuestionRepository
	otp           repositories.OtpRepository
	studentExam   repositories.StudentExamRepository
	studentAnswer repositories.StudentAnswerRepository
	roster        repositories.RosterRepository
	activityLog   repositories.ActivityLogRepository
	user          repositories.UserRepository
}

type RepositoryConfig struct {
	DB            *gorm.DB
	RedisClient   *redis.Client
	CasdoorConfig casdoor.CasdoorConfig

	// UserRepository overrides the Casdoor-backed user lookup.
	UserRepository repositories.UserRepository
}

func NewPostgreSQLRepository(config RepositoryConfig) *PostgreSQLRepository {
	cm := cache.NewCacheManager(config.RedisClient)

	repo := &PostgreSQLRepository{
		db:            config.DB,
		redisClient:   config.RedisClient,
		cacheManager:  cm,
		exam:          NewExamPostgreSQL(config.DB, cm),
		examQuestion:  NewExamQuestionPostgreSQL(config.DB),
		question:      NewQuestionPostgreSQL(config.DB),
		otp:           NewOtpPostgreSQL(config.DB),
		studentExam:   NewStudentExamPostgreSQL(config.DB),
		studentAnswer: NewStudentAnswerPostgreSQL(config.DB),
		roster:        NewRosterPostgreSQL(config.DB, cm),
		activityLog:   NewActivityLogPostgreSQL(config.DB),
		user:          config.UserRepository,
	}

	if repo.user == nil {
		repo.user = casdoor.NewUserCasdoor(config.CasdoorConfig, config.RedisClient)
	}

	return repo
}

func (r *PostgreSQLRepository) Exam() repositories.ExamRepository                   { return r.exam }
func (r *PostgreSQLRepository) ExamQuestion() repositories.ExamQuestionRepository   { return r.examQuestion }
func (r *PostgreSQLRepository) Question() repositories.QuestionRepository           { return r.question }
func (r *PostgreSQLRepository) Otp() repositories.OtpRepository                     { return r.otp }
func (r *PostgreSQLRepository) StudentExam() repositories.StudentExamRepository     { return r.studentExam }
func (r *PostgreSQLRepository) StudentAnswer() repositories.StudentAnswerRepository { return r.studentAnswer }
func (r *PostgreSQLRepository) Roster() repositories.RosterRepository               { return r.roster }
func (r *PostgreSQLRepository) ActivityLog() repositories.ActivityLogRepository     { return r.activityLog }
func (r *PostgreSQLRepository) User() repositories.UserRepository                   { return r.user }

func (r *PostgreSQLRepository) CacheManager() *cache.CacheManager {
	return r.cacheManager
}

// Ping checks the database and, when configured, redis.
func (r *PostgreSQLRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if r.cacheManager.Enabled() {
		if err := r.cacheManager.HealthCheck(ctx); err != nil {
			return fmt.Errorf("cache ping failed: %w", err)
		}
	}
	return nil
}

func (r *PostgreSQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			return fmt.Errorf("failed to close Redis: %w", err)
		}
	}
	return nil
}

type RepositoryManager struct {
	config RepositoryConfig
	repo   *PostgreSQLRepository
}

func NewRepositoryManager(config RepositoryConfig) *RepositoryManager {
	return &RepositoryManager{config: config}
}

func (rm *RepositoryManager) Initialize() error {
	if rm.config.DB == nil {
		return fmt.Errorf("database connection is required")
	}

	sqlDB, err := rm.config.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	if rm.config.RedisClient != nil {
		if err := rm.config.RedisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
	}

	rm.repo = NewPostgreSQLRepository(rm.config)
	return nil
}

func (rm *RepositoryManager) GetRepository() repositories.Repository {
	return rm.repo
}

func (rm *RepositoryManager) HealthCheck(ctx context.Context) error {
	if rm.repo == nil {
		return fmt.Errorf("repository not initialized")
	}
	return rm.repo.Ping(ctx)
}

func (rm *RepositoryManager) Shutdown(ctx context.Context) error {
	if rm.repo == nil {
		return nil
	}
	return rm.repo.Close()
}
