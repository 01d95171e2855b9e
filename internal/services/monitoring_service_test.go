package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/exam-session-service/internal/events"
	"github.com/SAP-F-2025/exam-session-service/internal/models"
)

func TestExamOverviewRequiresSupervision(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.monitoring.GetExamOverview(context.Background(), proctorID)
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, "You do not have permission to supervise any exams.", err.Error())
}

func TestExamOverviewCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	draft, _ := env.createExam(t, models.QuestionTrueFalse, "true")
	exam, _ := env.openExam(t, models.QuestionTrueFalse, "true")
	env.startAttempt(t, exam.ID, studentID)
	b := env.startAttempt(t, exam.ID, otherStudentID)
	_, err := env.sessions.SubmitExam(ctx, &models.SubmitExamRequest{StudentExamID: b.ID, ExamID: exam.ID}, otherStudentID, models.ClientContext{})
	require.NoError(t, err)

	items, err := env.monitoring.GetExamOverview(ctx, proctorID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, exam.ID, items[0].ExamID)
	assert.Equal(t, models.LiveOngoing, items[0].LiveStatus)
	assert.Equal(t, int64(1), items[0].InProgressCount)
	assert.Equal(t, int64(1), items[0].SubmittedCount)

	items, err = env.monitoring.GetExamOverview(ctx, adminID)
	require.NoError(t, err)
	for _, item := range items {
		assert.NotEqual(t, draft.ID, item.ExamID, "drafts are not monitored")
	}
	assert.Len(t, items, 1)
}

func TestExamMonitorDetail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, ids := env.openExam(t, models.QuestionMultipleChoice, "A", "B")

	a := env.startAttempt(t, exam.ID, studentID)
	require.NoError(t, env.sessions.SaveAnswerTemporary(ctx, &models.SaveAnswersRequest{
		StudentExamID: a.ID, ExamID: exam.ID,
		Answers: []models.AnswerInput{{QuestionID: ids[0], UserAnswer: "A"}},
	}, studentID))
	_, err := env.sessions.AddStudentExtraTime(ctx, a.ID, 5, proctorID)
	require.NoError(t, err)
	env.clock.Advance(10 * time.Minute)

	_, err = env.monitoring.GetExamMonitorDetail(ctx, exam.ID, studentID)
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, "You do not have permission to view this exam.", err.Error())

	_, err = env.monitoring.GetExamMonitorDetail(ctx, 5150, adminID)
	assert.ErrorIs(t, err, ErrNotFound)

	detail, err := env.monitoring.GetExamMonitorDetail(ctx, exam.ID, proctorID)
	require.NoError(t, err)
	assert.Equal(t, exam.Title, detail.Title)
	require.Len(t, detail.Students, 1)

	row := detail.Students[0]
	assert.Equal(t, studentID, row.StudentID)
	assert.Equal(t, int64(1), row.AnsweredCount)
	assert.Equal(t, 5, row.ExtraTimeMinutes)
	assert.Equal(t, int64(55*60), row.RemainingSeconds)
	require.NotNil(t, row.IPAddress)
}

func TestSubscribeJoinsExamGroup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, _ := env.openExam(t, models.QuestionTrueFalse, "true")

	_, err := env.monitoring.Subscribe(ctx, exam.ID, studentID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	sub, err := env.monitoring.Subscribe(ctx, exam.ID, proctorID)
	require.NoError(t, err)
	defer sub.Close()
	assert.Equal(t, events.GroupName(exam.ID), sub.Group())

	env.hub.Broadcast(events.NewEvent(events.EventExamFinished, exam.ID, 0, nil, env.clock.Now()))
	select {
	case e := <-sub.C:
		assert.Equal(t, events.EventExamFinished, e.Type)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestMonitoringRunWithoutFeedWaitsForCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- env.monitoring.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
