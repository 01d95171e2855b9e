package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-session-service/internal/clock"
	"github.com/SAP-F-2025/exam-session-service/internal/events"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"github.com/SAP-F-2025/exam-session-service/internal/validator"
)

type ServiceManagerConfig struct {
	Clock clock.Clock

	// Publisher receives monitoring events; Subscriber feeds the hub from Topic.
	// A nil Subscriber leaves the hub without a feed.
	Publisher  events.EventPublisher
	Subscriber message.Subscriber
	Topic      string
	HubBuffer  int

	// SweepInterval of zero disables the deadline sweeper.
	SweepInterval time.Duration
}

func DefaultServiceManagerConfig() ServiceManagerConfig {
	return ServiceManagerConfig{
		Clock:         clock.Real(),
		Topic:         events.TopicMonitoring,
		HubBuffer:     64,
		SweepInterval: 30 * time.Second,
	}
}

type serviceManager struct {
	// Dependencies
	db        *gorm.DB
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	config    ServiceManagerConfig

	// Service instances
	examService        ExamService
	otpService         OtpService
	studentExamService StudentExamService
	gradingService     GradingService
	monitoringService  MonitoringService
	hub                *events.Hub

	// Lifecycle management
	initialized bool
	started     bool
	shutdown    bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.RWMutex
}

func NewServiceManager(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, config ServiceManagerConfig) ServiceManager {
	defaults := DefaultServiceManagerConfig()
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}
	if config.Topic == "" {
		config.Topic = defaults.Topic
	}
	if config.HubBuffer <= 0 {
		config.HubBuffer = defaults.HubBuffer
	}
	if config.Publisher == nil {
		config.Publisher = events.NewMockEventPublisher(logger)
	}

	return &serviceManager{
		db:        db,
		repo:      repo,
		logger:    logger,
		validator: validator,
		config:    config,
	}
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	clk := sm.config.Clock
	pub := sm.config.Publisher
	audit := NewActivityLogSink(sm.repo.ActivityLog(), clk, sm.logger)

	sm.hub = events.NewHub(sm.config.HubBuffer, sm.logger)
	sm.examService = NewExamService(sm.db, sm.repo, sm.logger, sm.validator, clk, pub, audit)
	sm.otpService = NewOtpService(sm.repo, sm.logger, sm.validator, clk, audit)
	sm.studentExamService = NewStudentExamService(sm.db, sm.repo, sm.logger, sm.validator, clk, sm.otpService, pub, audit)
	sm.gradingService = NewGradingService(sm.db, sm.repo, sm.logger, sm.validator, clk, pub, audit)
	sm.monitoringService = NewMonitoringService(sm.repo, sm.logger, clk, sm.hub, sm.config.Subscriber, sm.config.Topic)

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")
	return nil
}

func (sm *serviceManager) Start(ctx context.Context) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.initialized || sm.started || sm.shutdown {
		return
	}
	sm.started = true

	runCtx, cancel := context.WithCancel(ctx)
	sm.cancel = cancel

	sm.wg.Add(1)
	go func() {
		defer sm.wg.Done()
		if err := sm.monitoringService.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			sm.logger.Error("Monitoring broadcaster stopped", "error", err)
		}
	}()

	if sm.config.SweepInterval > 0 {
		sm.wg.Add(1)
		go func() {
			defer sm.wg.Done()
			RunDeadlineSweeper(runCtx, sm.studentExamService, sm.config.SweepInterval, sm.logger)
		}()
	}
}

// Service getters
func (sm *serviceManager) Exam() ExamService {
	sm.mustBeInitialized()
	return sm.examService
}

func (sm *serviceManager) Otp() OtpService {
	sm.mustBeInitialized()
	return sm.otpService
}

func (sm *serviceManager) StudentExam() StudentExamService {
	sm.mustBeInitialized()
	return sm.studentExamService
}

func (sm *serviceManager) Grading() GradingService {
	sm.mustBeInitialized()
	return sm.gradingService
}

func (sm *serviceManager) Monitoring() MonitoringService {
	sm.mustBeInitialized()
	return sm.monitoringService
}

func (sm *serviceManager) mustBeInitialized() {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if !sm.initialized {
		panic("service manager not initialized")
	}
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}
	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}
	return nil
}

// Shutdown stops background work, drains the publisher and ends every
// monitoring subscription. The repository is owned by the caller.
func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	if sm.shutdown {
		sm.mu.Unlock()
		return nil
	}
	sm.shutdown = true
	cancel := sm.cancel
	sm.mu.Unlock()

	sm.logger.Info("Shutting down service manager")

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		sm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		sm.logger.Warn("Background tasks did not stop before shutdown deadline")
	}

	if err := sm.config.Publisher.Close(); err != nil {
		sm.logger.Error("Failed to close event publisher", "error", err)
	}
	if sm.hub != nil {
		sm.hub.Close()
	}

	sm.logger.Info("Service manager shut down completed")
	return nil
}
