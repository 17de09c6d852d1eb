package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz content by join code from a backing store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, code string) (domain.Quiz, error)
}

// QuizRepository caches quizzes with TTL to avoid repeated DB hits.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.Mutex
	rnd   *rand.Rand
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuiz),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, code string) (domain.Quiz, error) {
	if quiz, ok := r.cached(code); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(code, func() (interface{}, error) {
		if quiz, ok := r.cached(code); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, code)
		if err != nil {
			return domain.Quiz{}, err
		}

		r.mu.Lock()
		r.cache[code] = cachedQuiz{
			quiz:      quiz,
			expiresAt: r.clock().Add(r.ttlWithJitterLocked()),
		}
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate drops the cached copy of a quiz.
func (r *QuizRepository) Invalidate(code string) {
	r.mu.Lock()
	delete(r.cache, code)
	r.mu.Unlock()
}

func (r *QuizRepository) cached(code string) (domain.Quiz, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache[code]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

// StaticQuizLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticQuizLoader struct {
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes map[string]domain.Quiz) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, code string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[code]; ok {
		if quiz.Code == "" {
			quiz.Code = code
		}
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (r *QuizRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
