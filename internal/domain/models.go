package domain

import "time"

// Question is one multiple-choice question in a session. Immutable once the
// session starts.
type Question struct {
	Index            int      `json:"index"`
	Text             string   `json:"text"`
	Options          []string `json:"options"`
	CorrectIndex     int      `json:"correctIndex"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
	PointValue       int      `json:"pointValue"` // informational only; scoring is flat
}

// QuestionSet is the authored content a session is created from.
type QuestionSet struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// Player is created once at join time and never mutated afterwards. Score is
// derived from responses, never stored here.
type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Avatar   string    `json:"avatar,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Response is one player's scored submission for one question. At most one
// exists per (player, question) pair.
type Response struct {
	PlayerID    string    `json:"playerId"`
	Question    int       `json:"question"`
	AnswerIndex int       `json:"answerIndex"`
	Correct     bool      `json:"correct"`
	PointDelta  int       `json:"pointDelta"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Standing is one row of the final leaderboard.
type Standing struct {
	PlayerID        string `json:"playerId"`
	DisplayName     string `json:"displayName"`
	TotalScore      int    `json:"totalScore"`
	CorrectCount    int    `json:"correctCount"`
	TotalAnswered   int    `json:"totalAnswered"`
	AccuracyPercent int    `json:"accuracyPercent"`
}
