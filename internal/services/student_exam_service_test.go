package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/exam-session-service/internal/events"
	"github.com/SAP-F-2025/exam-session-service/internal/models"
)

func TestAccessExamCreatesAttempt(t *testing.T) {
	env := newTestEnv(t)
	exam, ids := env.openExam(t, models.QuestionMultipleChoice, "A", "B")

	resp := env.startAttempt(t, exam.ID, studentID)

	assert.Equal(t, models.StudentExamInProgress, resp.Status)
	assert.False(t, resp.Resumed)
	assert.Equal(t, env.clock.Now(), resp.StartTime)
	assert.Equal(t, env.clock.Now().Add(time.Hour), resp.Deadline)
	assert.Equal(t, int64(3600), resp.RemainingSeconds)
	assert.Equal(t, 2, resp.TotalQuestions)

	stored := env.storedAttempt(t, resp.ID)
	require.NotNil(t, stored.IPAddress)
	assert.Equal(t, "10.0.0.7", *stored.IPAddress)
	assert.False(t, stored.Score.Valid)

	answers := env.storedAnswers(t, resp.ID)
	require.Len(t, answers, 2)
	assert.ElementsMatch(t, ids, []uint{answers[0].QuestionID, answers[1].QuestionID})

	granted := env.publisher.EventsOfType(events.EventAccessGranted)
	require.Len(t, granted, 1)
	assert.Equal(t, "exam:"+uintString(exam.ID), granted[0].Group())
	assert.Equal(t, resp.ID, granted[0].Data.StudentExamID)
}

func TestAccessExamRejectsInvalidOtp(t *testing.T) {
	env := newTestEnv(t)
	exam, _ := env.openExam(t, models.QuestionMultipleChoice, "A")

	_, err := env.sessions.AccessExam(context.Background(), &models.AccessExamRequest{ExamID: exam.ID, OtpCode: "000000"}, studentID, models.ClientContext{})
	require.ErrorIs(t, err, ErrInvalidOrExpiredOtp)
	assert.Zero(t, env.countAttempts(t, exam.ID, studentID))

	code := env.issueOtp(t, exam.ID)
	env.clock.Advance(16 * time.Minute)
	_, err = env.sessions.AccessExam(context.Background(), &models.AccessExamRequest{ExamID: exam.ID, OtpCode: code}, studentID, models.ClientContext{})
	require.ErrorIs(t, err, ErrInvalidOrExpiredOtp)
	assert.Zero(t, env.countAttempts(t, exam.ID, studentID))
	assert.Empty(t, env.publisher.EventsOfType(events.EventAccessGranted))
}

func TestAccessExamNotAvailable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, _ := env.openExam(t, models.QuestionMultipleChoice, "A")
	code := env.issueOtp(t, exam.ID)

	_, err := env.sessions.AccessExam(ctx, &models.AccessExamRequest{ExamID: exam.ID, OtpCode: code}, "outsider", models.ClientContext{})
	assert.ErrorIs(t, err, ErrNotFound, "not a room member")

	_, err = env.sessions.AccessExam(ctx, &models.AccessExamRequest{ExamID: 777, OtpCode: code}, studentID, models.ClientContext{})
	assert.ErrorIs(t, err, ErrNotFound)

	env.clock.Set(exam.EndTime.Add(time.Second))
	_, err = env.sessions.AccessExam(ctx, &models.AccessExamRequest{ExamID: exam.ID, OtpCode: code}, studentID, models.ClientContext{})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Exam not found or not available", err.Error())

	draft, _ := env.createExam(t, models.QuestionMultipleChoice, "A")
	env.clock.Set(draft.StartTime.Add(time.Minute))
	_, err = env.sessions.AccessExam(ctx, &models.AccessExamRequest{ExamID: draft.ID, OtpCode: code}, studentID, models.ClientContext{})
	assert.ErrorIs(t, err, ErrNotFound, "draft exams are never ongoing")
}

func TestAccessExamRejectsFinishedExam(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, _ := env.createExam(t, models.QuestionMultipleChoice, "A")
	env.seedRoomMembers(t, exam.RoomID, studentID)

	_, err := env.exams.ChangeStatus(ctx, exam.ID, models.ExamPublished, teacherID)
	require.NoError(t, err)
	_, err = env.exams.ChangeStatus(ctx, exam.ID, models.ExamFinished, teacherID)
	require.NoError(t, err)

	env.clock.Set(exam.StartTime.Add(10 * time.Minute))
	code := env.issueOtp(t, exam.ID)

	_, err = env.sessions.AccessExam(ctx, &models.AccessExamRequest{ExamID: exam.ID, OtpCode: code}, studentID, models.ClientContext{})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, env.countAttempts(t, exam.ID, studentID))
}

func TestAccessExamAfterSubmitIsRefused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, _ := env.openExam(t, models.QuestionMultipleChoice, "A")

	first := env.startAttempt(t, exam.ID, studentID)
	_, err := env.sessions.SubmitExam(ctx, &models.SubmitExamRequest{StudentExamID: first.ID, ExamID: exam.ID}, studentID, models.ClientContext{})
	require.NoError(t, err)

	code := env.issueOtp(t, exam.ID)
	_, err = env.sessions.AccessExam(ctx, &models.AccessExamRequest{ExamID: exam.ID, OtpCode: code}, studentID, models.ClientContext{})
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, "You have already completed this exam.", err.Error())
	assert.Equal(t, int64(1), env.countAttempts(t, exam.ID, studentID))
	assert.Len(t, env.publisher.EventsOfType(events.EventAccessGranted), 1)

	// Attempts closed by a supervisor count too.
	other := env.startAttempt(t, exam.ID, otherStudentID)
	_, err = env.sessions.FinishExam(ctx, exam.ID, proctorID)
	require.NoError(t, err)
	_, err = env.sessions.AccessExam(ctx, &models.AccessExamRequest{ExamID: exam.ID, OtpCode: code}, otherStudentID, models.ClientContext{})
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.NotEqual(t, models.StudentExamInProgress, env.storedAttempt(t, other.ID).Status)
}

func TestSaveAnswerTemporaryAfterSubmitLeavesGradedAnswers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, ids := env.openExam(t, models.QuestionMultipleChoice, "A")
	attempt := env.startAttempt(t, exam.ID, studentID)

	_, err := env.sessions.SubmitExam(ctx, &models.SubmitExamRequest{
		StudentExamID: attempt.ID,
		ExamID:        exam.ID,
		Answers:       []models.AnswerInput{{QuestionID: ids[0], UserAnswer: "A"}},
	}, studentID, models.ClientContext{})
	require.NoError(t, err)

	err = env.sessions.SaveAnswerTemporary(ctx, &models.SaveAnswersRequest{
		StudentExamID: attempt.ID,
		ExamID:        exam.ID,
		Answers:       []models.AnswerInput{{QuestionID: ids[0], UserAnswer: "B"}},
	}, studentID)
	require.ErrorIs(t, err, ErrNotFound)

	answers := env.storedAnswers(t, attempt.ID)
	require.Len(t, answers, 1)
	assert.Equal(t, "A", answers[0].UserAnswer)
	require.NotNil(t, answers[0].IsCorrect)
	assert.True(t, *answers[0].IsCorrect)
}

func TestAccessExamResumesActiveAttempt(t *testing.T) {
	env := newTestEnv(t)
	exam, _ := env.openExam(t, models.QuestionMultipleChoice, "A")

	first := env.startAttempt(t, exam.ID, studentID)
	env.clock.Advance(10 * time.Minute)
	second := env.startAttempt(t, exam.ID, studentID)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Resumed)
	assert.True(t, first.StartTime.Equal(second.StartTime))
	assert.Equal(t, int64(1), env.countAttempts(t, exam.ID, studentID))
}

func TestAccessExamConcurrentCallsCreateOneAttempt(t *testing.T) {
	env := newTestEnv(t)
	exam, _ := env.openExam(t, models.QuestionMultipleChoice, "A", "B")
	code := env.issueOtp(t, exam.ID)

	const callers = 8
	var wg sync.WaitGroup
	ids := make([]uint, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := env.sessions.AccessExam(context.Background(), &models.AccessExamRequest{ExamID: exam.ID, OtpCode: code}, studentID, models.ClientContext{})
			errs[i] = err
			if err == nil {
				ids[i] = resp.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, int64(1), env.countAttempts(t, exam.ID, studentID))
	assert.Len(t, env.storedAnswers(t, ids[0]), 2)
}

func TestSaveAnswerTemporary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, ids := env.openExam(t, models.QuestionMultipleChoice, "A", "B")
	attempt := env.startAttempt(t, exam.ID, studentID)

	save := func(answers ...models.AnswerInput) error {
		return env.sessions.SaveAnswerTemporary(ctx, &models.SaveAnswersRequest{StudentExamID: attempt.ID, ExamID: exam.ID, Answers: answers}, studentID)
	}

	require.NoError(t, save(models.AnswerInput{QuestionID: ids[0], UserAnswer: "C", TimeSpent: 20}))
	require.NoError(t, save(models.AnswerInput{QuestionID: ids[0], UserAnswer: "A", TimeSpent: 35}))

	answers := env.storedAnswers(t, attempt.ID)
	require.Len(t, answers, 2)
	assert.Equal(t, "A", answers[0].UserAnswer)
	assert.Equal(t, 35, answers[0].TimeSpent)
	assert.Nil(t, answers[0].IsCorrect, "autosave never grades")

	assert.ErrorIs(t, save(models.AnswerInput{QuestionID: 4040, UserAnswer: "A"}), ErrValidationFailed)
	assert.ErrorIs(t, save(
		models.AnswerInput{QuestionID: ids[1], UserAnswer: "A"},
		models.AnswerInput{QuestionID: ids[1], UserAnswer: "B"},
	), ErrValidationFailed)

	err := env.sessions.SaveAnswerTemporary(ctx, &models.SaveAnswersRequest{StudentExamID: attempt.ID, ExamID: exam.ID, Answers: []models.AnswerInput{{QuestionID: ids[0]}}}, otherStudentID)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Student has not started this exam", err.Error())

	env.clock.Advance(61 * time.Minute)
	assert.ErrorIs(t, save(models.AnswerInput{QuestionID: ids[1], UserAnswer: "B"}), ErrDeadlinePassed)
}

func TestSubmitExamScoresObjectiveAttempt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, ids := env.openExam(t, models.QuestionMultipleChoice, "A", "B")
	attempt := env.startAttempt(t, exam.ID, studentID)

	require.NoError(t, env.sessions.SaveAnswerTemporary(ctx, &models.SaveAnswersRequest{
		StudentExamID: attempt.ID, ExamID: exam.ID,
		Answers: []models.AnswerInput{{QuestionID: ids[0], UserAnswer: "a"}},
	}, studentID))

	env.clock.Advance(20 * time.Minute)
	resp, err := env.sessions.SubmitExam(ctx, &models.SubmitExamRequest{
		StudentExamID: attempt.ID, ExamID: exam.ID,
		Answers: []models.AnswerInput{{QuestionID: ids[1], UserAnswer: "D"}},
	}, studentID, models.ClientContext{})
	require.NoError(t, err)

	assert.Equal(t, models.StudentExamPassed, resp.Status)
	require.True(t, resp.Score.Valid)
	assert.True(t, resp.Score.Decimal.Equal(decimal.NewFromInt(5)))
	require.NotNil(t, resp.SubmitTime)
	assert.Equal(t, env.clock.Now(), *resp.SubmitTime)
	assert.Zero(t, resp.RemainingSeconds)

	stored := env.storedAttempt(t, attempt.ID)
	sum := decimal.Zero
	for _, a := range env.storedAnswers(t, attempt.ID) {
		require.True(t, a.PointsEarned.Valid)
		sum = sum.Add(a.PointsEarned.Decimal)
	}
	assert.True(t, sum.Equal(stored.Score.Decimal), "sum %s != score %s", sum, stored.Score.Decimal)
	assert.Len(t, env.publisher.EventsOfType(events.EventAttemptSubmitted), 1)
}

func TestSubmitExamIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, ids := env.openExam(t, models.QuestionTrueFalse, "true", "false")
	attempt := env.startAttempt(t, exam.ID, studentID)

	req := &models.SubmitExamRequest{StudentExamID: attempt.ID, ExamID: exam.ID, Answers: []models.AnswerInput{{QuestionID: ids[0], UserAnswer: "true"}}}
	first, err := env.sessions.SubmitExam(ctx, req, studentID, models.ClientContext{})
	require.NoError(t, err)

	env.clock.Advance(5 * time.Minute)
	req.Answers = []models.AnswerInput{{QuestionID: ids[1], UserAnswer: "false"}}
	second, err := env.sessions.SubmitExam(ctx, req, studentID, models.ClientContext{})
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.True(t, first.SubmitTime.Equal(*second.SubmitTime))
	assert.True(t, first.Score.Decimal.Equal(second.Score.Decimal))

	stored := env.storedAttempt(t, attempt.ID)
	assert.True(t, stored.Score.Decimal.Equal(decimal.NewFromInt(5)))
	assert.Len(t, env.publisher.EventsOfType(events.EventAttemptSubmitted), 1)
}

func TestSubmitExamAfterDeadlineDiscardsLateAnswers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, ids := env.openExam(t, models.QuestionTrueFalse, "true", "false")
	attempt := env.startAttempt(t, exam.ID, studentID)

	require.NoError(t, env.sessions.SaveAnswerTemporary(ctx, &models.SaveAnswersRequest{
		StudentExamID: attempt.ID, ExamID: exam.ID,
		Answers: []models.AnswerInput{{QuestionID: ids[0], UserAnswer: "true"}},
	}, studentID))

	env.clock.Advance(90 * time.Minute)
	resp, err := env.sessions.SubmitExam(ctx, &models.SubmitExamRequest{
		StudentExamID: attempt.ID, ExamID: exam.ID,
		Answers: []models.AnswerInput{{QuestionID: ids[1], UserAnswer: "false"}},
	}, studentID, models.ClientContext{})
	require.NoError(t, err)
	assert.True(t, resp.Score.Decimal.Equal(decimal.NewFromInt(5)))

	answers := env.storedAnswers(t, attempt.ID)
	assert.Equal(t, "", answers[1].UserAnswer)
}

func TestSubmitExamNotStarted(t *testing.T) {
	env := newTestEnv(t)
	exam, _ := env.openExam(t, models.QuestionTrueFalse, "true")
	attempt := env.startAttempt(t, exam.ID, studentID)

	_, err := env.sessions.SubmitExam(context.Background(), &models.SubmitExamRequest{StudentExamID: attempt.ID, ExamID: exam.ID}, otherStudentID, models.ClientContext{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.sessions.SubmitExam(context.Background(), &models.SubmitExamRequest{StudentExamID: attempt.ID, ExamID: exam.ID + 1}, studentID, models.ClientContext{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddStudentExtraTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, _ := env.openExam(t, models.QuestionTrueFalse, "true")
	attempt := env.startAttempt(t, exam.ID, studentID)
	env.clock.Advance(30 * time.Minute)

	resp, err := env.sessions.AddStudentExtraTime(ctx, attempt.ID, 10, proctorID)
	require.NoError(t, err)
	assert.Equal(t, 10, resp.ExtraTimeMinutes)
	assert.True(t, attempt.Deadline.Add(10*time.Minute).Equal(resp.Deadline))
	assert.Equal(t, int64(40*60), resp.RemainingSeconds)

	granted := env.publisher.EventsOfType(events.EventStudentExtraTime)
	require.Len(t, granted, 1)
	assert.Equal(t, 10, granted[0].Data.Data["extraMinutes"])

	_, err = env.sessions.AddStudentExtraTime(ctx, attempt.ID, 10, otherStudentID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = env.sessions.AddStudentExtraTime(ctx, attempt.ID, 0, proctorID)
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = env.sessions.SubmitExam(ctx, &models.SubmitExamRequest{StudentExamID: attempt.ID, ExamID: exam.ID}, studentID, models.ClientContext{})
	require.NoError(t, err)

	_, err = env.sessions.AddStudentExtraTime(ctx, attempt.ID, 10, proctorID)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Student is not taking in exam", err.Error())
	assert.Equal(t, 10, env.storedAttempt(t, attempt.ID).ExtraTimeMinutes)
}

func TestAddExamExtraTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, _ := env.openExam(t, models.QuestionTrueFalse, "true")

	req := &models.AddExamExtraTimeRequest{RoomID: exam.RoomID, ExtraMinutes: 15}
	_, err := env.sessions.AddExamExtraTime(ctx, exam.ID, req, proctorID)
	require.ErrorIs(t, err, ErrNoActiveStudents)

	a := env.startAttempt(t, exam.ID, studentID)
	b := env.startAttempt(t, exam.ID, otherStudentID)
	_, err = env.sessions.SubmitExam(ctx, &models.SubmitExamRequest{StudentExamID: b.ID, ExamID: exam.ID}, otherStudentID, models.ClientContext{})
	require.NoError(t, err)

	_, err = env.sessions.AddExamExtraTime(ctx, exam.ID, &models.AddExamExtraTimeRequest{RoomID: exam.RoomID + 1, ExtraMinutes: 15}, proctorID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.sessions.AddExamExtraTime(ctx, exam.ID, req, teacherID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	result, err := env.sessions.AddExamExtraTime(ctx, exam.ID, req, adminID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.AffectedCount)
	assert.Equal(t, []uint{a.ID}, result.StudentExamIDs)

	assert.Equal(t, 15, env.storedAttempt(t, a.ID).ExtraTimeMinutes)
	assert.Equal(t, 0, env.storedAttempt(t, b.ID).ExtraTimeMinutes)
	assert.Len(t, env.publisher.EventsOfType(events.EventExamExtraTime), 1)
}

func TestFinishExamClosesEveryActiveAttempt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, ids := env.openExam(t, models.QuestionMultipleChoice, "A", "B")

	a := env.startAttempt(t, exam.ID, studentID)
	b := env.startAttempt(t, exam.ID, otherStudentID)
	require.NoError(t, env.sessions.SaveAnswerTemporary(ctx, &models.SaveAnswersRequest{
		StudentExamID: a.ID, ExamID: exam.ID,
		Answers: []models.AnswerInput{{QuestionID: ids[0], UserAnswer: "A"}, {QuestionID: ids[1], UserAnswer: "B"}},
	}, studentID))

	_, err := env.sessions.FinishExam(ctx, exam.ID, studentID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	env.clock.Advance(10 * time.Minute)
	result, err := env.sessions.FinishExam(ctx, exam.ID, proctorID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ClosedCount)
	assert.ElementsMatch(t, []uint{a.ID, b.ID}, result.StudentExamIDs)

	sa := env.storedAttempt(t, a.ID)
	assert.Equal(t, models.StudentExamPassed, sa.Status)
	assert.True(t, sa.Score.Decimal.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, sa.SubmitTime)
	assert.True(t, sa.SubmitTime.Equal(env.clock.Now()))

	sb := env.storedAttempt(t, b.ID)
	assert.Equal(t, models.StudentExamFailed, sb.Status)
	assert.True(t, sb.Score.Decimal.IsZero())

	again, err := env.sessions.FinishExam(ctx, exam.ID, proctorID)
	require.NoError(t, err)
	assert.Zero(t, again.ClosedCount)

	finished := env.publisher.EventsOfType(events.EventExamFinished)
	require.Len(t, finished, 2)
	assert.Equal(t, 2, finished[0].Data.Data["closedCount"])
}

func TestEssayAttemptWaitsForMarking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, ids := env.openExam(t, models.QuestionEssay, "", "")
	attempt := env.startAttempt(t, exam.ID, studentID)

	result, err := env.sessions.FinishExam(ctx, exam.ID, adminID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ClosedCount)

	stored := env.storedAttempt(t, attempt.ID)
	assert.Equal(t, models.StudentExamSubmitted, stored.Status)
	assert.False(t, stored.Score.Valid)
	for _, a := range env.storedAnswers(t, attempt.ID) {
		assert.Nil(t, a.IsCorrect)
		assert.False(t, a.PointsEarned.Valid)
	}

	mark := func(scores ...models.EssayScoreInput) (*models.StudentExamResponse, error) {
		return env.grading.MarkEssay(ctx, &models.MarkEssayRequest{StudentExamID: attempt.ID, ExamID: exam.ID, Scores: scores}, teacherID)
	}

	_, err = mark(models.EssayScoreInput{QuestionID: ids[0], Points: decimal.NewFromInt(4)})
	assert.ErrorIs(t, err, ErrValidationFailed, "every question must be graded")

	_, err = mark(
		models.EssayScoreInput{QuestionID: ids[0], Points: decimal.NewFromInt(6)},
		models.EssayScoreInput{QuestionID: ids[1], Points: decimal.NewFromInt(1)},
	)
	assert.ErrorIs(t, err, ErrValidationFailed, "above question points")

	_, err = mark(
		models.EssayScoreInput{QuestionID: ids[0], Points: decimal.RequireFromString("2.125")},
		models.EssayScoreInput{QuestionID: ids[1], Points: decimal.NewFromInt(1)},
	)
	assert.ErrorIs(t, err, ErrValidationFailed, "too many decimals")

	_, err = env.grading.MarkEssay(ctx, &models.MarkEssayRequest{StudentExamID: attempt.ID, ExamID: exam.ID, Scores: []models.EssayScoreInput{
		{QuestionID: ids[0], Points: decimal.NewFromInt(5)},
		{QuestionID: ids[1], Points: decimal.NewFromInt(5)},
	}}, studentID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	resp, err := mark(
		models.EssayScoreInput{QuestionID: ids[0], Points: decimal.NewFromInt(5)},
		models.EssayScoreInput{QuestionID: ids[1], Points: decimal.RequireFromString("2.5")},
	)
	require.NoError(t, err)
	assert.Equal(t, models.StudentExamPassed, resp.Status)
	assert.True(t, resp.Score.Decimal.Equal(decimal.RequireFromString("7.5")))

	stored = env.storedAttempt(t, attempt.ID)
	assert.True(t, stored.Score.Decimal.Equal(decimal.RequireFromString("7.5")))
	sum := decimal.Zero
	for _, a := range env.storedAnswers(t, attempt.ID) {
		require.NotNil(t, a.GradedBy)
		assert.Equal(t, teacherID, *a.GradedBy)
		sum = sum.Add(a.PointsEarned.Decimal)
	}
	assert.True(t, sum.Equal(stored.Score.Decimal))

	_, err = mark(
		models.EssayScoreInput{QuestionID: ids[0], Points: decimal.NewFromInt(5)},
		models.EssayScoreInput{QuestionID: ids[1], Points: decimal.NewFromInt(5)},
	)
	assert.ErrorIs(t, err, ErrInvalidTransition, "already graded")
	assert.Len(t, env.publisher.EventsOfType(events.EventEssayGraded), 1)
}

func TestMarkEssayRejectsObjectiveExam(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, ids := env.openExam(t, models.QuestionTrueFalse, "true")
	attempt := env.startAttempt(t, exam.ID, studentID)
	_, err := env.sessions.SubmitExam(ctx, &models.SubmitExamRequest{StudentExamID: attempt.ID, ExamID: exam.ID}, studentID, models.ClientContext{})
	require.NoError(t, err)

	_, err = env.grading.MarkEssay(ctx, &models.MarkEssayRequest{
		StudentExamID: attempt.ID, ExamID: exam.ID,
		Scores: []models.EssayScoreInput{{QuestionID: ids[0], Points: decimal.NewFromInt(5)}},
	}, teacherID)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestSweepExpiredClosesOverdueAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, _ := env.openExam(t, models.QuestionTrueFalse, "true")

	early := env.startAttempt(t, exam.ID, studentID)
	env.clock.Advance(30 * time.Minute)
	late := env.startAttempt(t, exam.ID, otherStudentID)

	env.clock.Advance(31 * time.Minute)
	closed, err := env.sessions.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	assert.Equal(t, models.StudentExamFailed, env.storedAttempt(t, early.ID).Status)
	assert.Equal(t, models.StudentExamInProgress, env.storedAttempt(t, late.ID).Status)

	timedOut := env.publisher.EventsOfType(events.EventAttemptTimedOut)
	require.Len(t, timedOut, 1)
	assert.Equal(t, early.ID, timedOut[0].Data.StudentExamID)

	closed, err = env.sessions.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, closed)
}

func TestRunDeadlineSweeperStopsWithContext(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunDeadlineSweeper(ctx, env.sessions, 5*time.Millisecond, discardLogger())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	env := newTestEnv(t)
	exam, _ := env.openExam(t, models.QuestionTrueFalse, "true")
	env.publisher.FailWith(events.ErrQueueFull)

	resp := env.startAttempt(t, exam.ID, studentID)
	assert.Equal(t, models.StudentExamInProgress, resp.Status)
}

func TestGetStudentExamVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, _ := env.openExam(t, models.QuestionTrueFalse, "true")
	attempt := env.startAttempt(t, exam.ID, studentID)

	_, err := env.sessions.GetStudentExam(ctx, attempt.ID, studentID)
	assert.NoError(t, err)
	_, err = env.sessions.GetStudentExam(ctx, attempt.ID, proctorID)
	assert.NoError(t, err)
	_, err = env.sessions.GetStudentExam(ctx, attempt.ID, otherStudentID)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = env.sessions.GetStudentExam(ctx, 9090, studentID)
	assert.ErrorIs(t, err, ErrNotFound)
}
