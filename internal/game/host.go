package game

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"quizshow-service/internal/domain"
	"quizshow-service/internal/statestore"
)

type hostMsg interface{ isHostMsg() }

type transitionMsg struct {
	cmd   Command
	reply chan error
}

type publishMsg struct{ reply chan error }

type hostViewMsg struct{ reply chan HostView }

func (transitionMsg) isHostMsg() {}
func (publishMsg) isHostMsg()    {}
func (hostViewMsg) isHostMsg()   {}

// HostView is the read-only display snapshot the host UI renders: the current
// state plus per-question answer counts. Counts never drive transitions; the
// game does not auto-advance when everyone has answered.
type HostView struct {
	State          domain.GameState
	PlayerCount    int
	ResponseCounts map[int]int
}

// Host drives a single session: it is the sole writer of the session's
// phase/question state and the sole timeout authority. It runs as one
// single-threaded loop fed by its command inbox, the answer deadline timer,
// and store notifications for the roster and response counters.
type Host struct {
	store     statestore.Store
	room      string
	questions []domain.Question
	now       func() time.Time

	inbox chan hostMsg

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHost creates the session document (question list plus lobby state) in the
// store and starts the host loop. The room code is assumed unique; issuing it
// belongs to the caller.
func NewHost(parent context.Context, store statestore.Store, room string, questions []domain.Question) (*Host, error) {
	ctx, cancel := context.WithCancel(parent)
	h := &Host{
		store:     store,
		room:      room,
		questions: questions,
		now:       time.Now,
		inbox:     make(chan hostMsg, 16),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	if err := store.Set(ctx, statestore.QuestionsPath(room), questions); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: publish questions: %v", domain.ErrStoreWrite, err)
	}
	initial := domain.NewGameState(h.now())
	if err := store.Set(ctx, statestore.StatePath(room), initial); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: publish state: %v", domain.ErrStoreWrite, err)
	}

	players, cancelPlayers, err := store.Subscribe(ctx, statestore.PlayersPrefix(room))
	if err != nil {
		cancel()
		return nil, err
	}
	responses, cancelResponses, err := store.Subscribe(ctx, statestore.ResponsesPrefix(room))
	if err != nil {
		cancelPlayers()
		cancel()
		return nil, err
	}

	go h.loop(initial, players, responses, func() {
		cancelPlayers()
		cancelResponses()
	})
	return h, nil
}

// StartGame begins the quiz: Lobby -> Showing(0).
func (h *Host) StartGame(ctx context.Context) error { return h.transition(ctx, CmdStartGame) }

// RevealQuestion opens the current question for answers and arms the deadline
// timer: Showing(q) -> Answering(q).
func (h *Host) RevealQuestion(ctx context.Context) error { return h.transition(ctx, CmdRevealQuestion) }

// ShowResults closes answering early: Answering(q) -> Results(q). It races
// harmlessly with the deadline timer; whichever loses finds the phase already
// moved and no-ops.
func (h *Host) ShowResults(ctx context.Context) error { return h.transition(ctx, CmdShowResults) }

// Advance moves past the current results screen: Showing(q+1), or Finished
// after the last question. Entering Finished publishes the leaderboard.
func (h *Host) Advance(ctx context.Context) error { return h.transition(ctx, CmdAdvance) }

// EndGame finishes the session from any results screen, skipping the
// remaining questions. The leaderboard is built from whatever was answered.
func (h *Host) EndGame(ctx context.Context) error { return h.transition(ctx, CmdEndGame) }

// PublishLeaderboard recomputes and republishes the final standings. Only
// valid once the session is finished; it exists so the host can retry a failed
// publish from Advance.
func (h *Host) PublishLeaderboard(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case h.inbox <- publishMsg{reply: reply}:
	case <-h.ctx.Done():
		return h.ctx.Err()
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

// View returns the current display snapshot.
func (h *Host) View(ctx context.Context) (HostView, error) {
	reply := make(chan HostView, 1)
	select {
	case h.inbox <- hostViewMsg{reply: reply}:
	case <-h.ctx.Done():
		return HostView{}, h.ctx.Err()
	case <-ctx.Done():
		return HostView{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return HostView{}, ctx.Err()
	}
}

// Close stops the host loop. The session document stays in the store at its
// last published phase; there is no host-liveness recovery.
func (h *Host) Close() {
	h.cancel()
	<-h.done
}

func (h *Host) transition(ctx context.Context, cmd Command) error {
	reply := make(chan error, 1)
	select {
	case h.inbox <- transitionMsg{cmd: cmd, reply: reply}:
	case <-h.ctx.Done():
		return h.ctx.Err()
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

// hostLocal is the loop-owned derived cache: a disposable projection of the
// store document, rebuilt from notifications, never the source of truth.
type hostLocal struct {
	state     domain.GameState
	players   map[string]domain.Player
	responses map[int]map[string]domain.Response
	published bool
}

func (h *Host) loop(initial domain.GameState, players, responses <-chan statestore.Event, cancelSubs func()) {
	defer close(h.done)
	defer cancelSubs()

	local := &hostLocal{
		state:     initial,
		players:   make(map[string]domain.Player),
		responses: make(map[int]map[string]domain.Response),
	}

	var deadline *time.Timer
	defer func() {
		if deadline != nil {
			deadline.Stop()
		}
	}()

	for {
		var deadlineC <-chan time.Time
		if deadline != nil {
			deadlineC = deadline.C
		}

		select {
		case <-h.ctx.Done():
			return

		case ev, ok := <-players:
			if !ok {
				players = nil
				continue
			}
			h.applyPlayerEvent(local, ev)

		case ev, ok := <-responses:
			if !ok {
				responses = nil
				continue
			}
			h.applyResponseEvent(local, ev)

		case <-deadlineC:
			deadline = nil
			// Losing the race against a manual ShowResults is expected.
			if err := h.applyTransition(local, CmdShowResults, &deadline); err != nil {
				log.Printf("host %s: deadline transition: %v", h.room, err)
			}

		case m := <-h.inbox:
			switch msg := m.(type) {
			case transitionMsg:
				msg.reply <- h.applyTransition(local, msg.cmd, &deadline)
			case publishMsg:
				if local.state.Phase != domain.PhaseFinished {
					msg.reply <- fmt.Errorf("%w: leaderboard publish before finish", domain.ErrPreconditionFailed)
					continue
				}
				msg.reply <- h.publishLeaderboard(local)
			case hostViewMsg:
				msg.reply <- snapshotView(local)
			}
		}
	}
}

func (h *Host) applyPlayerEvent(local *hostLocal, ev statestore.Event) {
	playerID, ok := strings.CutPrefix(ev.Path, statestore.PlayersPrefix(h.room))
	if !ok || playerID == "" {
		return
	}
	var p domain.Player
	if err := h.store.Get(h.ctx, ev.Path, &p); err != nil {
		log.Printf("host %s: read player %s: %v", h.room, playerID, err)
		return
	}
	local.players[playerID] = p
}

func (h *Host) applyResponseEvent(local *hostLocal, ev statestore.Event) {
	question, playerID, ok := statestore.SplitResponsePath(h.room, ev.Path)
	if !ok {
		return
	}
	var r domain.Response
	if err := h.store.Get(h.ctx, ev.Path, &r); err != nil {
		log.Printf("host %s: read response q%d/%s: %v", h.room, question, playerID, err)
		return
	}
	if local.responses[question] == nil {
		local.responses[question] = make(map[string]domain.Response)
	}
	local.responses[question][playerID] = r
}

func (h *Host) applyTransition(local *hostLocal, cmd Command, deadline **time.Timer) error {
	next, err := Transition(local.state, cmd, len(h.questions), len(local.players), h.now())
	if err != nil {
		return err
	}

	if err := h.store.Set(h.ctx, statestore.StatePath(h.room), next); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrStoreWrite, cmd, err)
	}
	local.state = next

	if *deadline != nil {
		(*deadline).Stop()
		*deadline = nil
	}
	switch next.Phase {
	case domain.PhaseAnswering:
		limit := time.Duration(h.questions[next.QuestionIndex].TimeLimitSeconds) * time.Second
		*deadline = time.NewTimer(limit)
	case domain.PhaseFinished:
		return h.publishLeaderboard(local)
	}
	return nil
}

func (h *Host) publishLeaderboard(local *hostLocal) error {
	standings := Aggregate(local.players, local.responses)
	if err := h.store.Set(h.ctx, statestore.LeaderboardPath(h.room), standings); err != nil {
		return fmt.Errorf("%w: publish leaderboard: %v", domain.ErrStoreWrite, err)
	}
	local.published = true
	return nil
}

func snapshotView(local *hostLocal) HostView {
	counts := make(map[int]int, len(local.responses))
	for q, byPlayer := range local.responses {
		counts[q] = len(byPlayer)
	}
	return HostView{
		State:          local.state,
		PlayerCount:    len(local.players),
		ResponseCounts: counts,
	}
}
