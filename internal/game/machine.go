package game

import (
	"fmt"
	"time"

	"quizshow-service/internal/domain"
)

// Command is a host-issued phase transition request.
type Command string

const (
	CmdStartGame      Command = "StartGame"      // Lobby -> Showing(0)
	CmdRevealQuestion Command = "RevealQuestion" // Showing(q) -> Answering(q)
	CmdShowResults    Command = "ShowResults"    // Answering(q) -> Results(q)
	CmdAdvance        Command = "Advance"        // Results(q) -> Showing(q+1) | Finished
	CmdEndGame        Command = "EndGame"        // Results(q) -> Finished, skipping remaining questions
)

// Transition computes the successor state for cmd, or rejects it with
// domain.ErrPreconditionFailed. It is pure: the caller (the host, the only
// phase writer) persists the result as a single store write, so an invalid
// request never touches the store.
func Transition(s domain.GameState, cmd Command, questionCount, playerCount int, now time.Time) (domain.GameState, error) {
	switch cmd {
	case CmdStartGame:
		if s.Phase != domain.PhaseLobby {
			return s, rejected(cmd, s)
		}
		if questionCount == 0 {
			return s, fmt.Errorf("%w: cannot start with no questions", domain.ErrPreconditionFailed)
		}
		if playerCount == 0 {
			return s, fmt.Errorf("%w: cannot start with no players", domain.ErrPreconditionFailed)
		}
		return domain.GameState{Phase: domain.PhaseShowing, QuestionIndex: 0, PhaseEnteredAt: now}, nil

	case CmdRevealQuestion:
		if s.Phase != domain.PhaseShowing {
			return s, rejected(cmd, s)
		}
		return domain.GameState{Phase: domain.PhaseAnswering, QuestionIndex: s.QuestionIndex, PhaseEnteredAt: now}, nil

	case CmdShowResults:
		if s.Phase != domain.PhaseAnswering {
			return s, rejected(cmd, s)
		}
		return domain.GameState{Phase: domain.PhaseResults, QuestionIndex: s.QuestionIndex, PhaseEnteredAt: now}, nil

	case CmdAdvance:
		if s.Phase != domain.PhaseResults {
			return s, rejected(cmd, s)
		}
		// The only point where the question index moves.
		if next := s.QuestionIndex + 1; next < questionCount {
			return domain.GameState{Phase: domain.PhaseShowing, QuestionIndex: next, PhaseEnteredAt: now}, nil
		}
		return domain.GameState{Phase: domain.PhaseFinished, QuestionIndex: s.QuestionIndex, PhaseEnteredAt: now}, nil

	case CmdEndGame:
		if s.Phase != domain.PhaseResults {
			return s, rejected(cmd, s)
		}
		return domain.GameState{Phase: domain.PhaseFinished, QuestionIndex: s.QuestionIndex, PhaseEnteredAt: now}, nil

	default:
		return s, fmt.Errorf("%w: unknown command %q", domain.ErrPreconditionFailed, cmd)
	}
}

func rejected(cmd Command, s domain.GameState) error {
	return fmt.Errorf("%w: %s not allowed in phase %s (question %d)",
		domain.ErrPreconditionFailed, cmd, s.Phase, s.QuestionIndex)
}
