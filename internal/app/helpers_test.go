package app_test

import (
	"sync"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func newTestService(t *testing.T) (*app.QuizService, *memory.SessionStore) {
	t.Helper()
	store := memory.NewSessionStoreWithClock(newTestClock())
	return app.NewQuizService(store, testQuizRepo()), store
}

func testQuizRepo() *memory.QuizRepository {
	return memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"ABC123": sampleQuiz(),
	}), 5*time.Minute)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-abc",
		Code:  "ABC123",
		Title: "Warm-up",
		Questions: []domain.Question{
			{
				ID:   "Q1",
				Text: "Which planet is known as the red planet?",
				Options: []domain.Option{
					{ID: "O1", Text: "Mars", Correct: true},
					{ID: "O2", Text: "Venus"},
					{ID: "O3", Text: "Jupiter"},
					{ID: "O4", Text: "Saturn"},
				},
			},
			{
				ID:   "Q2",
				Text: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "P1", Text: "3"},
					{ID: "P2", Text: "4", Correct: true},
				},
			},
		},
	}
}

func participant(userID string) domain.ParticipantRef {
	return domain.ParticipantRef{
		UserID:       userID,
		DisplayName:  "name-" + userID,
		ConnectionID: "conn-" + userID,
	}
}

// newTestClock returns a clock that advances one second per reading.
func newTestClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

// recorder is a Subscriber that keeps every delivered event.
type recorder struct {
	mu     sync.Mutex
	events []domain.Event
	cursor int
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 1)}
}

func (r *recorder) Deliver(ev domain.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

// waitFor blocks until an event of type typ arrives past the cursor and moves the
// cursor beyond it.
func (r *recorder) waitFor(t *testing.T, typ domain.EventType) domain.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		r.mu.Lock()
		for i := r.cursor; i < len(r.events); i++ {
			if r.events[i].Type == typ {
				r.cursor = i + 1
				ev := r.events[i]
				r.mu.Unlock()
				return ev
			}
		}
		r.mu.Unlock()
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %s, have %v", typ, r.types())
		}
	}
}

// expectQuiet fails if anything arrives past the cursor within d.
func (r *recorder) expectQuiet(t *testing.T, d time.Duration) {
	t.Helper()
	time.Sleep(d)
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) > r.cursor {
		t.Fatalf("unexpected events %+v", r.events[r.cursor:])
	}
}

func (r *recorder) all() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

func (r *recorder) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}
