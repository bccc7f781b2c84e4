package domain

import "time"

// Phase is the stage a session is in. It only ever moves forward:
// Lobby -> Showing -> Answering -> Results -> (Showing | Finished).
type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseShowing   Phase = "showing"
	PhaseAnswering Phase = "answering"
	PhaseResults   Phase = "results"
	PhaseFinished  Phase = "finished"
)

// GameState is the authoritative phase triple the host publishes. All three
// fields live under a single store path so readers always see them together.
type GameState struct {
	Phase          Phase     `json:"phase"`
	QuestionIndex  int       `json:"questionIndex"` // -1 before start
	PhaseEnteredAt time.Time `json:"phaseEnteredAt"`
}

// NewGameState is the lobby state a freshly created session starts in.
func NewGameState(now time.Time) GameState {
	return GameState{Phase: PhaseLobby, QuestionIndex: -1, PhaseEnteredAt: now}
}
