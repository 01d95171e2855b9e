package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
)

// AnswerKey is what scoring needs to know about one exam question.
type AnswerKey struct {
	CorrectAnswer string
	Points        decimal.Decimal
}

type ScoreOutcome struct {
	Score  decimal.NullDecimal
	Status models.StudentExamStatus
}

// ScoringStrategy grades a closed attempt's answers in place and reports the outcome.
type ScoringStrategy interface {
	ScoreAnswers(answers []*models.StudentAnswer, keys map[uint]AnswerKey, submitTime time.Time) ScoreOutcome
}

// PassPolicy decides the terminal status for a score out of total.
type PassPolicy func(score, total decimal.Decimal) models.StudentExamStatus

// PercentagePassPolicy passes when score reaches percent of total.
func PercentagePassPolicy(percent int) PassPolicy {
	threshold := decimal.NewFromInt(int64(percent)).Div(decimal.NewFromInt(100))
	return func(score, total decimal.Decimal) models.StudentExamStatus {
		if score.GreaterThanOrEqual(total.Mul(threshold)) {
			return models.StudentExamPassed
		}
		return models.StudentExamFailed
	}
}

type strategyKind int

const (
	objectiveScoring strategyKind = iota + 1
	subjectiveScoring
)

var strategyKinds = map[models.QuestionType]strategyKind{
	models.QuestionMultipleChoice: objectiveScoring,
	models.QuestionTrueFalse:      objectiveScoring,
	models.QuestionEssay:          subjectiveScoring,
}

// NewScoringStrategy picks the strategy for the exam's question type.
func NewScoringStrategy(exam *models.Exam) (ScoringStrategy, error) {
	switch strategyKinds[exam.QuestionType] {
	case objectiveScoring:
		return objectiveStrategy{pass: PercentagePassPolicy(exam.PassingScore)}, nil
	case subjectiveScoring:
		return subjectiveStrategy{}, nil
	default:
		return nil, fmt.Errorf("no scoring strategy for question type %q", exam.QuestionType)
	}
}

// IsManuallyGraded reports whether attempts of this type wait for MarkEssay.
func IsManuallyGraded(t models.QuestionType) bool {
	return strategyKinds[t] == subjectiveScoring
}

type objectiveStrategy struct {
	pass PassPolicy
}

func (s objectiveStrategy) ScoreAnswers(answers []*models.StudentAnswer, keys map[uint]AnswerKey, submitTime time.Time) ScoreOutcome {
	score := decimal.Zero
	for _, a := range answers {
		key, ok := keys[a.QuestionID]
		correct := ok && a.UserAnswer != "" && normalizeAnswer(a.UserAnswer) == normalizeAnswer(key.CorrectAnswer)

		earned := decimal.Zero
		if correct {
			earned = key.Points
		}
		a.IsCorrect = &correct
		a.PointsEarned = decimal.NewNullDecimal(earned)
		a.GradedAt = &submitTime
		score = score.Add(earned)
	}

	total := decimal.Zero
	for _, key := range keys {
		total = total.Add(key.Points)
	}

	return ScoreOutcome{
		Score:  decimal.NewNullDecimal(score),
		Status: s.pass(score, total),
	}
}

type subjectiveStrategy struct{}

func (subjectiveStrategy) ScoreAnswers(answers []*models.StudentAnswer, _ map[uint]AnswerKey, _ time.Time) ScoreOutcome {
	for _, a := range answers {
		a.IsCorrect = nil
		a.PointsEarned = decimal.NullDecimal{}
		a.GradedAt = nil
	}
	return ScoreOutcome{Status: models.StudentExamSubmitted}
}

// normalizeAnswer makes comparison insensitive to case, padding and the
// order of comma-separated choices.
func normalizeAnswer(s string) string {
	parts := strings.Split(strings.ToLower(s), ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

func answerKeys(questions []*models.ExamQuestion) map[uint]AnswerKey {
	keys := make(map[uint]AnswerKey, len(questions))
	for _, q := range questions {
		key := AnswerKey{Points: q.Points}
		if q.Question != nil {
			key.CorrectAnswer = q.Question.CorrectAnswer
		}
		keys[q.QuestionID] = key
	}
	return keys
}
