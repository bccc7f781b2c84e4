package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"quizshow-service/internal/domain"
	"quizshow-service/internal/statestore"
)

// Store is the in-process implementation of statestore.Store: one JSON value
// per path, with per-subscriber fanout goroutines so a slow reader never
// blocks a writer and every retained change is delivered at least once.
type Store struct {
	mu          sync.RWMutex
	values      map[string]json.RawMessage
	subscribers map[*subscriber]struct{}
}

func NewStore() *Store {
	return &Store{
		values:      make(map[string]json.RawMessage),
		subscribers: make(map[*subscriber]struct{}),
	}
}

func (s *Store) Get(_ context.Context, path string, out any) error {
	s.mu.RLock()
	raw, ok := s.values[path]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}
	return json.Unmarshal(raw, out)
}

func (s *Store) Set(_ context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	s.mu.Lock()
	s.values[path] = raw
	s.notifyLocked(path)
	s.mu.Unlock()
	return nil
}

func (s *Store) Update(_ context.Context, path string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make(map[string]json.RawMessage)
	if raw, ok := s.values[path]; ok {
		if err := json.Unmarshal(raw, &merged); err != nil {
			return fmt.Errorf("decode %s for update: %w", path, err)
		}
	}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode field %s of %s: %w", k, path, err)
		}
		merged[k] = raw
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	s.values[path] = raw
	s.notifyLocked(path)
	return nil
}

func (s *Store) Subscribe(ctx context.Context, prefix string) (<-chan statestore.Event, func(), error) {
	sub := newSubscriber(prefix)

	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	go sub.pump()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, sub)
			s.mu.Unlock()
			close(sub.stop)
		})
	}
	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return sub.ch, cancel, nil
}

func (s *Store) notifyLocked(path string) {
	for sub := range s.subscribers {
		if strings.HasPrefix(path, sub.prefix) {
			sub.enqueue(statestore.Event{Path: path})
		}
	}
}

// subscriber buffers events in an unbounded queue drained by its own pump
// goroutine, decoupling store writers from event consumers.
type subscriber struct {
	prefix string
	ch     chan statestore.Event
	stop   chan struct{}

	mu    sync.Mutex
	queue []statestore.Event
	wake  chan struct{}
}

func newSubscriber(prefix string) *subscriber {
	return &subscriber{
		prefix: prefix,
		ch:     make(chan statestore.Event, 16),
		stop:   make(chan struct{}),
		wake:   make(chan struct{}, 1),
	}
}

func (sub *subscriber) enqueue(ev statestore.Event) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, ev)
	sub.mu.Unlock()
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *subscriber) pump() {
	defer close(sub.ch)
	for {
		select {
		case <-sub.stop:
			return
		case <-sub.wake:
		}

		for {
			sub.mu.Lock()
			if len(sub.queue) == 0 {
				sub.mu.Unlock()
				break
			}
			ev := sub.queue[0]
			sub.queue = sub.queue[1:]
			sub.mu.Unlock()

			select {
			case sub.ch <- ev:
			case <-sub.stop:
				return
			}
		}
	}
}
