package game

import (
	"context"
	"fmt"
	"log"
	"time"

	"quizshow-service/internal/domain"
	"quizshow-service/internal/statestore"
)

type observerMsg interface{ isObserverMsg() }

type submitMsg struct {
	answerIndex int
	reply       chan error
}

type observerViewMsg struct{ reply chan ObserverView }

func (submitMsg) isObserverMsg()       {}
func (observerViewMsg) isObserverMsg() {}

// ObserverView is the player-facing snapshot a client UI renders.
type ObserverView struct {
	Phase          domain.Phase
	QuestionIndex  int
	HasAnswered    bool
	SelectedAnswer *int
	Countdown      int // seconds remaining, cosmetic only
	Correct        *bool
	Leaderboard    []domain.Standing
}

// Observer is the per-player reactive loop. It holds only a derived local view
// of the session, rebuilt from state notifications, and owns exactly one store
// path per question: its own response. The in-loop answer lock guarantees at
// most one submission per question even under rapid repeated submit calls.
type Observer struct {
	store     statestore.Store
	room      string
	player    domain.Player
	questions []domain.Question
	now       func() time.Time
	tick      time.Duration

	inbox chan observerMsg

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// observerLocal is the loop-owned derived state. questionIndex is the last
// index applied from the store; notifications for older indexes are stale and
// discarded. hasAnswered is only ever cleared by an index change.
type observerLocal struct {
	phase          domain.Phase
	questionIndex  int
	hasAnswered    bool
	selectedAnswer *int
	countdown      int
	correct        *bool
	leaderboard    []domain.Standing
}

// NewObserver registers the player in the session roster, loads the question
// list, primes its view from the current state snapshot, and starts the loop.
// Priming and re-subscribing go through the same path, so a reconnect replays
// into the same local state it left.
func NewObserver(parent context.Context, store statestore.Store, room string, player domain.Player) (*Observer, error) {
	ctx, cancel := context.WithCancel(parent)
	o := &Observer{
		store:  store,
		room:   room,
		player: player,
		now:    time.Now,
		tick:   time.Second,
		inbox:  make(chan observerMsg, 16),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if err := store.Get(ctx, statestore.QuestionsPath(room), &o.questions); err != nil {
		cancel()
		return nil, fmt.Errorf("load questions for room %s: %w", room, err)
	}
	if err := store.Set(ctx, statestore.PlayerPath(room, player.ID), player); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: join room %s: %v", domain.ErrStoreWrite, room, err)
	}

	events, cancelSub, err := store.Subscribe(ctx, statestore.StatePath(room))
	if err != nil {
		cancel()
		return nil, err
	}

	local := &observerLocal{phase: domain.PhaseLobby, questionIndex: -1}
	var initial domain.GameState
	if err := store.Get(ctx, statestore.StatePath(room), &initial); err == nil {
		o.applyState(local, initial)
	}

	go o.loop(local, events, cancelSub)
	return o, nil
}

// SubmitAnswer submits the player's answer for the current question. It is a
// silent no-op when the player already answered or the session is not in the
// answering phase; a duplicate click is never an error. Out-of-range indexes
// are rejected before scoring and write nothing. A failed store write rolls
// the local lock back so the player can retry.
func (o *Observer) SubmitAnswer(ctx context.Context, answerIndex int) error {
	reply := make(chan error, 1)
	select {
	case o.inbox <- submitMsg{answerIndex: answerIndex, reply: reply}:
	case <-o.ctx.Done():
		return o.ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View returns the current local snapshot.
func (o *Observer) View(ctx context.Context) (ObserverView, error) {
	reply := make(chan ObserverView, 1)
	select {
	case o.inbox <- observerViewMsg{reply: reply}:
	case <-o.ctx.Done():
		return ObserverView{}, o.ctx.Err()
	case <-ctx.Done():
		return ObserverView{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return ObserverView{}, ctx.Err()
	}
}

// Player returns the roster entry this observer joined as.
func (o *Observer) Player() domain.Player { return o.player }

// Close stops the observer loop.
func (o *Observer) Close() {
	o.cancel()
	<-o.done
}

func (o *Observer) loop(local *observerLocal, events <-chan statestore.Event, cancelSub func()) {
	defer close(o.done)
	defer cancelSub()

	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return

		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			var state domain.GameState
			if err := o.store.Get(o.ctx, statestore.StatePath(o.room), &state); err != nil {
				log.Printf("observer %s/%s: read state: %v", o.room, o.player.ID, err)
				continue
			}
			o.applyState(local, state)

		case <-ticker.C:
			// Cosmetic countdown; the host's Results transition is the
			// authority, not this timer.
			if local.phase == domain.PhaseAnswering && local.countdown > 0 {
				local.countdown--
			}
			// The leaderboard lands shortly after the finished state does;
			// keep retrying if the first read beat it.
			if local.phase == domain.PhaseFinished && local.leaderboard == nil {
				o.loadLeaderboard(local)
			}

		case m := <-o.inbox:
			switch msg := m.(type) {
			case submitMsg:
				msg.reply <- o.submit(local, msg.answerIndex)
			case observerViewMsg:
				msg.reply <- ObserverView{
					Phase:          local.phase,
					QuestionIndex:  local.questionIndex,
					HasAnswered:    local.hasAnswered,
					SelectedAnswer: local.selectedAnswer,
					Countdown:      local.countdown,
					Correct:        local.correct,
					Leaderboard:    local.leaderboard,
				}
			}
		}
	}
}

// applyState folds a state snapshot into the local view. Notifications are
// at-least-once with no ordering guarantee, so snapshots for an index the
// observer already advanced past are discarded as stale, and re-applying the
// current snapshot is a no-op.
func (o *Observer) applyState(local *observerLocal, state domain.GameState) {
	if state.QuestionIndex < local.questionIndex {
		return
	}
	if state.QuestionIndex > local.questionIndex {
		// The only thing allowed to clear the answer lock.
		local.hasAnswered = false
		local.selectedAnswer = nil
		local.correct = nil
		local.questionIndex = state.QuestionIndex
	}

	entered := state.Phase != local.phase
	local.phase = state.Phase

	switch state.Phase {
	case domain.PhaseAnswering:
		if entered {
			local.countdown = o.seedCountdown(state)
		}
	case domain.PhaseResults:
		if entered && local.selectedAnswer != nil {
			// Reveal from what we already know; no extra read.
			correct := *local.selectedAnswer == o.questions[local.questionIndex].CorrectIndex
			local.correct = &correct
		}
	case domain.PhaseFinished:
		if entered || local.leaderboard == nil {
			o.loadLeaderboard(local)
		}
	}
}

func (o *Observer) loadLeaderboard(local *observerLocal) {
	var standings []domain.Standing
	if err := o.store.Get(o.ctx, statestore.LeaderboardPath(o.room), &standings); err != nil {
		log.Printf("observer %s/%s: read leaderboard: %v", o.room, o.player.ID, err)
		return
	}
	local.leaderboard = standings
}

// seedCountdown reconciles the local countdown with the host-observed phase
// entry time, so a late or reconnecting client does not restart from the full
// limit.
func (o *Observer) seedCountdown(state domain.GameState) int {
	limit := o.questions[state.QuestionIndex].TimeLimitSeconds
	elapsed := int(o.now().Sub(state.PhaseEnteredAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	if remaining := limit - elapsed; remaining > 0 {
		return remaining
	}
	return 0
}

func (o *Observer) submit(local *observerLocal, answerIndex int) error {
	if local.hasAnswered || local.phase != domain.PhaseAnswering {
		// Duplicate clicks and out-of-phase submissions are absorbed silently.
		return nil
	}
	question := o.questions[local.questionIndex]
	if answerIndex < 0 || answerIndex >= len(question.Options) {
		return fmt.Errorf("%w: index %d with %d options", domain.ErrAnswerOutOfRange, answerIndex, len(question.Options))
	}

	// Lock before the store write so nothing can slip in a second submission.
	local.hasAnswered = true
	selected := answerIndex
	local.selectedAnswer = &selected

	correct, delta := Score(question, answerIndex)
	response := domain.Response{
		PlayerID:    o.player.ID,
		Question:    local.questionIndex,
		AnswerIndex: answerIndex,
		Correct:     correct,
		PointDelta:  delta,
		SubmittedAt: o.now(),
	}
	path := statestore.ResponsePath(o.room, local.questionIndex, o.player.ID)
	if err := o.store.Set(o.ctx, path, response); err != nil {
		// Roll the lock back so the player can retry.
		local.hasAnswered = false
		local.selectedAnswer = nil
		return fmt.Errorf("%w: submit answer: %v", domain.ErrStoreWrite, err)
	}
	return nil
}
