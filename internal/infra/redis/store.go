package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quizshow-service/internal/domain"
	"quizshow-service/internal/statestore"
)

const (
	keyPrefix     = "store:"
	channelPrefix = "store:events:"
)

// Store implements statestore.Store on Redis: one string key holding JSON per
// path, change notifications via pub/sub on a channel per path. Pub/sub gives
// at-least-once delivery to connected subscribers and no cross-path ordering,
// which is exactly the contract the game core is written against.
type Store struct {
	client *redis.Client
	ttl    time.Duration // 0 means keys never expire
}

// NewStore wraps client. ttl, when positive, bounds how long session documents
// outlive the last write to them.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) Get(ctx context.Context, path string, out any) error {
	raw, err := s.client.Get(ctx, keyPrefix+path).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return json.Unmarshal(raw, out)
}

func (s *Store) Set(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := s.client.Set(ctx, keyPrefix+path, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	if err := s.client.Publish(ctx, channelPrefix+path, "1").Err(); err != nil {
		return fmt.Errorf("notify %s: %w", path, err)
	}
	return nil
}

// Update merges fields into the JSON object at path. Every path has a single
// writer in the session document layout, so read-modify-write is conflict-free
// here.
func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	merged := make(map[string]json.RawMessage)
	raw, err := s.client.Get(ctx, keyPrefix+path).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		// treat missing as empty object
	case err != nil:
		return fmt.Errorf("get %s for update: %w", path, err)
	default:
		if err := json.Unmarshal(raw, &merged); err != nil {
			return fmt.Errorf("decode %s for update: %w", path, err)
		}
	}
	for k, v := range fields {
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode field %s of %s: %w", k, path, err)
		}
		merged[k] = encoded
	}
	return s.Set(ctx, path, merged)
}

func (s *Store) Subscribe(ctx context.Context, prefix string) (<-chan statestore.Event, func(), error) {
	pubsub := s.client.PSubscribe(ctx, channelPrefix+prefix+"*")
	// Force the subscription onto the wire before the caller relies on it.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", prefix, err)
	}

	out := make(chan statestore.Event, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			out <- statestore.Event{Path: strings.TrimPrefix(msg.Channel, channelPrefix)}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = pubsub.Close() })
	}
	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return out, cancel, nil
}
