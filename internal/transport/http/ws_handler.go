package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quizshow-service/internal/domain"
	"quizshow-service/internal/game"
	"quizshow-service/internal/statestore"
)

// QuestionRepository provides the authored content rooms are created from.
type QuestionRepository interface {
	GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// GameServer exposes the host and player websocket endpoints. It also plays
// the roster-collaborator role the game core delegates: issuing room codes and
// player IDs.
type GameServer struct {
	store     statestore.Store
	questions QuestionRepository
	upgrader  websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*game.Host
	rnd   *rand.Rand
}

func NewGameServer(store statestore.Store, questions QuestionRepository) *GameServer {
	return &GameServer{
		store:     store,
		questions: questions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]*game.Host),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type roomCreatedPayload struct {
	RoomCode      string `json:"roomCode"`
	QuestionCount int    `json:"questionCount"`
}

type joinedPayload struct {
	PlayerID string `json:"playerId"`
	RoomCode string `json:"roomCode"`
}

type answerPayload struct {
	AnswerIndex int `json:"answerIndex"`
}

type hostViewPayload struct {
	Phase          domain.Phase `json:"phase"`
	QuestionIndex  int          `json:"questionIndex"`
	PlayerCount    int          `json:"playerCount"`
	ResponseCounts map[int]int  `json:"responseCounts"`
}

type playerViewPayload struct {
	Phase          domain.Phase      `json:"phase"`
	QuestionIndex  int               `json:"questionIndex"`
	HasAnswered    bool              `json:"hasAnswered"`
	SelectedAnswer *int              `json:"selectedAnswer,omitempty"`
	Countdown      int               `json:"countdown"`
	Correct        *bool             `json:"correct,omitempty"`
	Leaderboard    []domain.Standing `json:"leaderboard,omitempty"`
}

// ServeHost upgrades the host's connection. The room is created on connect
// from the requested question set; commands drive the phase machine.
func (s *GameServer) ServeHost(w http.ResponseWriter, r *http.Request) {
	setID := r.URL.Query().Get("setId")
	if setID == "" {
		http.Error(w, "missing setId", http.StatusBadRequest)
		return
	}

	set, err := s.questions.GetQuestionSet(r.Context(), setID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	room, host, err := s.createRoom(r.Context(), set.Questions)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer s.dropRoom(room, host)

	send, stopWriter := startWriter(conn)
	defer stopWriter()

	send <- outboundMessage[any]{Type: "roomCreated", Payload: roomCreatedPayload{
		RoomCode:      room,
		QuestionCount: len(set.Questions),
	}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}

		var cmdErr error
		switch inbound.Type {
		case "start":
			cmdErr = host.StartGame(r.Context())
		case "reveal":
			cmdErr = host.RevealQuestion(r.Context())
		case "results":
			cmdErr = host.ShowResults(r.Context())
		case "advance":
			cmdErr = host.Advance(r.Context())
		case "end":
			cmdErr = host.EndGame(r.Context())
		case "publishLeaderboard":
			cmdErr = host.PublishLeaderboard(r.Context())
		case "view":
			// fall through to the view push below
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
			continue
		}
		if cmdErr != nil {
			// Write failures require the host to re-issue the action manually.
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: cmdErr.Error()}}
			continue
		}

		view, err := host.View(r.Context())
		if err != nil {
			return
		}
		send <- outboundMessage[any]{Type: "view", Payload: hostViewPayload{
			Phase:          view.State.Phase,
			QuestionIndex:  view.State.QuestionIndex,
			PlayerCount:    view.PlayerCount,
			ResponseCounts: view.ResponseCounts,
		}}
	}
}

// ServePlay upgrades a student's connection, joins them into the room, and
// pushes a fresh view on every phase change. Players act only through answer
// submissions.
func (s *GameServer) ServePlay(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	name := r.URL.Query().Get("name")
	if room == "" || name == "" {
		http.Error(w, "missing room or name", http.StatusBadRequest)
		return
	}

	// The store, not the local registry, decides whether the room exists, so
	// players can reach rooms hosted by another instance.
	var state domain.GameState
	if err := s.store.Get(r.Context(), statestore.StatePath(room), &state); err != nil {
		http.Error(w, domain.ErrRoomNotFound.Error(), http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	player := domain.Player{
		ID:       uuid.NewString(),
		Name:     name,
		Avatar:   r.URL.Query().Get("avatar"),
		JoinedAt: time.Now(),
	}
	observer, err := game.NewObserver(r.Context(), s.store, room, player)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer observer.Close()

	send, stopWriter := startWriter(conn)
	defer stopWriter()

	send <- outboundMessage[any]{Type: "joined", Payload: joinedPayload{PlayerID: player.ID, RoomCode: room}}

	events, cancelSub, err := s.store.Subscribe(r.Context(), statestore.StatePath(room))
	if err != nil {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		return
	}
	defer cancelSub()

	pusherDone := make(chan struct{})
	stopPusher := make(chan struct{})
	go func() {
		defer close(pusherDone)
		for {
			select {
			case _, ok := <-events:
				if !ok {
					return
				}
				s.pushPlayerView(r.Context(), observer, send, stopPusher)
			case <-stopPusher:
				return
			}
		}
	}()
	defer func() {
		close(stopPusher)
		<-pusherDone
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			err := observer.SubmitAnswer(r.Context(), payload.AnswerIndex)
			switch {
			case errors.Is(err, domain.ErrAnswerOutOfRange):
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			case errors.Is(err, domain.ErrStoreWrite):
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "submission failed, please retry"}}
				continue
			case err != nil:
				return
			}
			// Duplicates land here too: the lock absorbed them and the view
			// simply shows the original answer.
			view, err := observer.View(r.Context())
			if err != nil {
				return
			}
			send <- outboundMessage[any]{Type: "view", Payload: toPlayerView(view)}
		case "view":
			view, err := observer.View(r.Context())
			if err != nil {
				return
			}
			send <- outboundMessage[any]{Type: "view", Payload: toPlayerView(view)}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}
}

func (s *GameServer) pushPlayerView(ctx context.Context, observer *game.Observer, send chan<- outboundMessage[any], stop <-chan struct{}) {
	view, err := observer.View(ctx)
	if err != nil {
		return
	}
	select {
	case send <- outboundMessage[any]{Type: "view", Payload: toPlayerView(view)}:
	case <-stop:
	}
}

func toPlayerView(v game.ObserverView) playerViewPayload {
	return playerViewPayload{
		Phase:          v.Phase,
		QuestionIndex:  v.QuestionIndex,
		HasAnswered:    v.HasAnswered,
		SelectedAnswer: v.SelectedAnswer,
		Countdown:      v.Countdown,
		Correct:        v.Correct,
		Leaderboard:    v.Leaderboard,
	}
}

// createRoom issues a 6-digit code unique within this instance and starts the
// host actor for it.
func (s *GameServer) createRoom(ctx context.Context, questions []domain.Question) (string, *game.Host, error) {
	s.mu.Lock()
	var code string
	for {
		code = fmt.Sprintf("%06d", s.rnd.Intn(1_000_000))
		if _, taken := s.rooms[code]; !taken {
			break
		}
	}
	s.rooms[code] = nil // reserve while the host starts
	s.mu.Unlock()

	host, err := game.NewHost(ctx, s.store, code, questions)
	if err != nil {
		s.mu.Lock()
		delete(s.rooms, code)
		s.mu.Unlock()
		return "", nil, err
	}

	s.mu.Lock()
	s.rooms[code] = host
	s.mu.Unlock()
	return code, host, nil
}

// dropRoom stops the host actor. The session document stays in the store at
// its last published phase; there is no host-liveness recovery for players.
func (s *GameServer) dropRoom(code string, host *game.Host) {
	s.mu.Lock()
	delete(s.rooms, code)
	s.mu.Unlock()
	host.Close()
}

// startWriter serializes all writes to conn through one goroutine.
func startWriter(conn *websocket.Conn) (chan<- outboundMessage[any], func()) {
	send := make(chan outboundMessage[any], 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				// Drain so senders never block on a dead connection.
				for range send {
				}
				return
			}
		}
	}()
	stop := func() {
		close(send)
		<-done
	}
	return send, stop
}
