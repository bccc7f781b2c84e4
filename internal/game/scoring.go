package game

import "quizshow-service/internal/domain"

const (
	pointsCorrect = 10
	pointsWrong   = -5
)

// Score grades a submitted answer index against the question. Flat scoring:
// +10 correct, -5 wrong; no time bonus, no partial credit, totals may go
// negative. Callers validate the index range before calling.
func Score(q domain.Question, answerIndex int) (correct bool, delta int) {
	if answerIndex == q.CorrectIndex {
		return true, pointsCorrect
	}
	return false, pointsWrong
}
