package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizshow-service/internal/domain"
	"quizshow-service/internal/infra/memory"
)

// QuestionRepository caches question sets in Redis (one JSON blob per set) and
// falls back to a loader on cache miss, so several service instances share one
// warm copy of the authored content.
type QuestionRepository struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	key := r.key(setID)

	if set, ok, err := r.fromCache(ctx, key); err == nil && ok {
		return set, nil
	}

	result, err, _ := r.sf.Do(setID, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		if set, ok, err := r.fromCache(ctx, key); err == nil && ok {
			return set, nil
		}

		set, err := r.loader.LoadQuestionSet(ctx, setID)
		if err != nil {
			return domain.QuestionSet{}, err
		}

		raw, err := json.Marshal(set)
		if err != nil {
			return domain.QuestionSet{}, fmt.Errorf("encode question set %s: %w", setID, err)
		}
		_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err() // best-effort cache fill

		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

func (r *QuestionRepository) fromCache(ctx context.Context, key string) (domain.QuestionSet, bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.QuestionSet{}, false, nil
	}
	if err != nil {
		return domain.QuestionSet{}, false, err
	}
	var set domain.QuestionSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return domain.QuestionSet{}, false, err
	}
	return set, true, nil
}

func (r *QuestionRepository) key(setID string) string {
	return "questions:" + setID
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
