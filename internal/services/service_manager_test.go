package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/exam-session-service/internal/events"
	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/validator"
)

func TestServiceManagerDeliversEventsToSupervisors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	logger := discardLogger()

	exam, _ := env.openExam(t, models.QuestionTrueFalse, "true")
	code := env.issueOtp(t, exam.ID)

	bus := events.NewGoChannelBus(32, logger)
	defer bus.Close()
	transport := events.NewWatermillPublisher(bus.Publisher, events.TopicMonitoring, logger)

	sm := NewServiceManager(env.db, env.repo, logger, validator.New(), ServiceManagerConfig{
		Clock:      env.clock,
		Publisher:  events.NewAsyncPublisher(transport, 16, logger),
		Subscriber: bus.Subscriber,
	})
	require.NoError(t, sm.Initialize(ctx))
	sm.Start(ctx)
	defer sm.Shutdown(ctx)

	require.NoError(t, sm.HealthCheck(ctx))

	sub, err := sm.Monitoring().Subscribe(ctx, exam.ID, proctorID)
	require.NoError(t, err)

	// the broadcaster subscribes to the bus asynchronously
	probe := events.NewEvent(events.EventExamStatusChanged, exam.ID, 0, nil, env.clock.Now())
	require.Eventually(t, func() bool {
		if err := transport.Publish(ctx, probe); err != nil {
			return false
		}
		select {
		case <-sub.C:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := sm.StudentExam().AccessExam(ctx, &models.AccessExamRequest{ExamID: exam.ID, OtpCode: code}, studentID, models.ClientContext{IPAddress: "10.0.0.9"})
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-sub.C:
			if e.Type != events.EventAccessGranted {
				continue
			}
			assert.Equal(t, resp.ID, e.Data.StudentExamID)
			assert.Equal(t, studentID, e.Data.Data["studentId"])
			return
		case <-deadline:
			t.Fatal("access event never reached the supervisor group")
		}
	}
}

func TestServiceManagerLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sm := NewServiceManager(env.db, env.repo, discardLogger(), validator.New(), ServiceManagerConfig{Clock: env.clock})
	assert.Error(t, sm.HealthCheck(ctx))
	assert.Panics(t, func() { sm.Exam() })

	require.NoError(t, sm.Initialize(ctx))
	require.NoError(t, sm.Initialize(ctx))
	sm.Start(ctx)

	require.NoError(t, sm.Shutdown(ctx))
	require.NoError(t, sm.Shutdown(ctx))
	assert.Error(t, sm.HealthCheck(ctx))
}
