package game

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"quizshow-service/internal/domain"
	"quizshow-service/internal/infra/memory"
	"quizshow-service/internal/statestore"
)

func testQuestions(limits ...int) []domain.Question {
	if len(limits) == 0 {
		limits = []int{30, 30}
	}
	questions := make([]domain.Question, len(limits))
	for i, limit := range limits {
		questions[i] = domain.Question{
			Index:            i,
			Text:             "question",
			Options:          []string{"a", "b", "c", "d"},
			CorrectIndex:     1,
			TimeLimitSeconds: limit,
			PointValue:       100,
		}
	}
	return questions
}

func newHostForTest(t *testing.T, store statestore.Store, room string, questions []domain.Question) *Host {
	t.Helper()
	host, err := NewHost(context.Background(), store, room, questions)
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	t.Cleanup(host.Close)
	return host
}

func newObserverForTest(t *testing.T, store statestore.Store, room, id, name string, joinedAt time.Time) *Observer {
	t.Helper()
	observer, err := NewObserver(context.Background(), store, room, domain.Player{ID: id, Name: name, JoinedAt: joinedAt})
	if err != nil {
		t.Fatalf("new observer %s: %v", id, err)
	}
	t.Cleanup(observer.Close)
	return observer
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitForPlayers(t *testing.T, host *Host, n int) {
	t.Helper()
	waitFor(t, 2*time.Second, "player count", func() bool {
		view, err := host.View(context.Background())
		return err == nil && view.PlayerCount == n
	})
}

func waitForPhase(t *testing.T, store statestore.Store, room string, phase domain.Phase) {
	t.Helper()
	waitFor(t, 3*time.Second, "phase "+string(phase), func() bool {
		var state domain.GameState
		if err := store.Get(context.Background(), statestore.StatePath(room), &state); err != nil {
			return false
		}
		return state.Phase == phase
	})
}

func waitForObserverPhase(t *testing.T, observer *Observer, phase domain.Phase) {
	t.Helper()
	waitFor(t, 3*time.Second, "observer phase "+string(phase), func() bool {
		view, err := observer.View(context.Background())
		return err == nil && view.Phase == phase
	})
}

var errInjected = errors.New("injected store fault")

// flakyStore wraps a real store and fails writes under a configured path
// prefix on demand.
type flakyStore struct {
	statestore.Store

	mu         sync.Mutex
	failPrefix string
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: memory.NewStore()}
}

func (f *flakyStore) failWrites(prefix string) {
	f.mu.Lock()
	f.failPrefix = prefix
	f.mu.Unlock()
}

func (f *flakyStore) heal() {
	f.mu.Lock()
	f.failPrefix = ""
	f.mu.Unlock()
}

func (f *flakyStore) Set(ctx context.Context, path string, value any) error {
	f.mu.Lock()
	prefix := f.failPrefix
	f.mu.Unlock()
	if prefix != "" && strings.HasPrefix(path, prefix) {
		return errInjected
	}
	return f.Store.Set(ctx, path, value)
}
