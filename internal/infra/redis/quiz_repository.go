package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz content from a backing store (e.g., postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, code string) (domain.Quiz, error)
}

// QuizRepository caches quiz content in Redis and falls back to a loader on cache miss.
// The whole quiz is stored as JSON: SET quiz:{code}:data {json} EX ttl
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, code string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, code); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(code, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.cached(ctx, code); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, code)
		if err != nil {
			return domain.Quiz{}, err
		}
		if quiz.Code == "" {
			quiz.Code = code
		}

		if raw, err := json.Marshal(quiz); err == nil {
			_ = r.client.Set(ctx, r.key(code), raw, r.ttlWithJitter()).Err()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) cached(ctx context.Context, code string) (domain.Quiz, bool) {
	raw, err := r.client.Get(ctx, r.key(code)).Bytes()
	if err != nil {
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		// corrupt entry; drop it and reload
		_ = r.client.Del(ctx, r.key(code)).Err()
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (r *QuizRepository) key(code string) string {
	return "quiz:" + code + ":data"
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
