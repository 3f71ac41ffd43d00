package app

import (
	"fmt"
	"strings"

	"timed-quiz-service/internal/domain"
)

// Score sums the points of every question whose answer matches exactly.
// It fails with domain.ErrIncompleteAnswers, before scoring, when any
// question has no answer.
func Score(questions []domain.Question, answers domain.Answers) (int, error) {
	if missing := MissingAnswers(questions, answers); len(missing) > 0 {
		return 0, fmt.Errorf("%w: unanswered %s", domain.ErrIncompleteAnswers, strings.Join(missing, ", "))
	}
	return ScoreExpired(questions, answers), nil
}

// ScoreExpired scores an attempt whose time ran out: unanswered questions
// count as incorrect.
func ScoreExpired(questions []domain.Question, answers domain.Answers) int {
	score := 0
	for _, q := range questions {
		if chosen, ok := answers[q.ID]; ok && chosen == q.CorrectAnswer {
			score += q.Points
		}
	}
	return score
}

// MissingAnswers lists the IDs of questions without an answer, in quiz order.
func MissingAnswers(questions []domain.Question, answers domain.Answers) []string {
	var missing []string
	for _, q := range questions {
		if _, ok := answers[q.ID]; !ok {
			missing = append(missing, q.ID)
		}
	}
	return missing
}
