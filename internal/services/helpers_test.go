package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/SAP-F-2025/exam-session-service/internal/clock"
	"github.com/SAP-F-2025/exam-session-service/internal/events"
	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/exam-session-service/internal/validator"
)

const (
	adminID        = "admin-1"
	teacherID      = "teacher-1"
	proctorID      = "proctor-1"
	studentID      = "student-1"
	otherStudentID = "student-2"

	testRoomID uint = 10
)

var baseTime = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fakeUserRepository struct {
	users map[string]*models.User
}

func newFakeUserRepository() *fakeUserRepository {
	f := &fakeUserRepository{users: map[string]*models.User{}}
	for id, role := range map[string]models.UserRole{
		adminID:        models.RoleAdmin,
		teacherID:      models.RoleTeacher,
		proctorID:      models.RoleProctor,
		studentID:      models.RoleStudent,
		otherStudentID: models.RoleStudent,
	} {
		f.users[id] = &models.User{ID: id, FullName: id, Role: role}
	}
	return f
}

func (f *fakeUserRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("%w: %s", repositories.ErrUserNotFound, id)
}

func (f *fakeUserRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	var out []*models.User
	for _, id := range ids {
		if u, err := f.GetByID(ctx, id); err == nil {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUserRepository) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	u, err := f.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return u.Role == role, nil
}

type testEnv struct {
	db        *gorm.DB
	repo      *postgres.PostgreSQLRepository
	clock     *clock.Mock
	publisher *events.MockEventPublisher
	hub       *events.Hub

	exams      ExamService
	otp        OtpService
	sessions   StudentExamService
	grading    GradingService
	monitoring MonitoringService

	seq int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clk := clock.NewMock(baseTime)
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc:        clk.Now,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))

	logger := discardLogger()
	repo := postgres.NewPostgreSQLRepository(postgres.RepositoryConfig{DB: db, UserRepository: newFakeUserRepository()})
	pub := events.NewMockEventPublisher(logger)
	hub := events.NewHub(16, logger)
	t.Cleanup(hub.Close)

	v := validator.New()
	audit := NewActivityLogSink(repo.ActivityLog(), clk, logger)
	otp := NewOtpService(repo, logger, v, clk, audit)

	return &testEnv{
		db:         db,
		repo:       repo,
		clock:      clk,
		publisher:  pub,
		hub:        hub,
		exams:      NewExamService(db, repo, logger, v, clk, pub, audit),
		otp:        otp,
		sessions:   NewStudentExamService(db, repo, logger, v, clk, otp, pub, audit),
		grading:    NewGradingService(db, repo, logger, v, clk, pub, audit),
		monitoring: NewMonitoringService(repo, logger, clk, hub, nil, events.TopicMonitoring),
	}
}

// seedQuestions stores one bank question per key and returns their ids.
func (e *testEnv) seedQuestions(t *testing.T, qType models.QuestionType, keys ...string) []uint {
	t.Helper()
	ids := make([]uint, 0, len(keys))
	for i, key := range keys {
		q := &models.Question{Type: qType, Content: fmt.Sprintf("question %d", i+1), CorrectAnswer: key}
		require.NoError(t, e.db.Create(q).Error)
		ids = append(ids, q.ID)
	}
	return ids
}

func (e *testEnv) seedRoomMembers(t *testing.T, roomID uint, userIDs ...string) {
	t.Helper()
	for _, id := range userIDs {
		require.NoError(t, e.db.Create(&models.RoomMember{RoomID: roomID, UserID: id}).Error)
	}
}

// createExam creates a draft exam opening in one hour, each question worth 5 points.
func (e *testEnv) createExam(t *testing.T, qType models.QuestionType, keys ...string) (*models.Exam, []uint) {
	t.Helper()
	ids := e.seedQuestions(t, qType, keys...)
	inputs := make([]models.ExamQuestionInput, 0, len(ids))
	for _, id := range ids {
		inputs = append(inputs, models.ExamQuestionInput{QuestionID: id, Points: decimal.NewFromInt(5)})
	}

	e.seq++
	now := e.clock.Now()
	resp, err := e.exams.CreateExam(context.Background(), &models.CreateExamRequest{
		Title:        fmt.Sprintf("Exam %d", e.seq),
		RoomID:       testRoomID,
		QuestionType: qType,
		StartTime:    now.Add(time.Hour),
		EndTime:      now.Add(4 * time.Hour),
		Duration:     60,
		Questions:    inputs,
	}, teacherID)
	require.NoError(t, err)
	return resp.Exam, ids
}

// openExam publishes a new exam, admits both students and moves the clock
// into its window.
func (e *testEnv) openExam(t *testing.T, qType models.QuestionType, keys ...string) (*models.Exam, []uint) {
	t.Helper()
	exam, ids := e.createExam(t, qType, keys...)
	_, err := e.exams.ChangeStatus(context.Background(), exam.ID, models.ExamPublished, teacherID)
	require.NoError(t, err)

	e.seedRoomMembers(t, exam.RoomID, studentID, otherStudentID)
	require.NoError(t, e.repo.Roster().AssignSupervisors(context.Background(), nil, exam.ID, []string{proctorID}, teacherID))

	e.clock.Set(exam.StartTime.Add(5 * time.Minute))
	return exam, ids
}

func (e *testEnv) issueOtp(t *testing.T, examID uint) string {
	t.Helper()
	otp, err := e.otp.IssueOtp(context.Background(), examID, 15, teacherID)
	require.NoError(t, err)
	return otp.Code
}

func (e *testEnv) startAttempt(t *testing.T, examID uint, student string) *models.StudentExamResponse {
	t.Helper()
	code := e.issueOtp(t, examID)
	resp, err := e.sessions.AccessExam(context.Background(), &models.AccessExamRequest{ExamID: examID, OtpCode: code}, student, models.ClientContext{IPAddress: "10.0.0.7", UserAgent: "test"})
	require.NoError(t, err)
	return resp
}

func (e *testEnv) storedAttempt(t *testing.T, id uint) *models.StudentExam {
	t.Helper()
	se, err := e.repo.StudentExam().GetByID(context.Background(), nil, id)
	require.NoError(t, err)
	return se
}

func (e *testEnv) storedAnswers(t *testing.T, id uint) []*models.StudentAnswer {
	t.Helper()
	answers, err := e.repo.StudentAnswer().GetByStudentExam(context.Background(), nil, id)
	require.NoError(t, err)
	return answers
}

func (e *testEnv) countAttempts(t *testing.T, examID uint, student string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.StudentExam{}).Where("exam_id = ? AND student_id = ?", examID, student).Count(&n).Error)
	return n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func uintString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
