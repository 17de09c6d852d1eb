package memory

import (
	"context"
	"sort"
	"sync"

	"live-quiz-service/internal/domain"
)

// ResponseStore keeps the latest response per (quiz, question, user) in memory.
// It backs single-node deployments that run without Postgres.
type ResponseStore struct {
	mu        sync.RWMutex
	responses map[string]map[responseKey]domain.Response
}

type responseKey struct {
	questionID string
	userID     string
}

func NewResponseStore() *ResponseStore {
	return &ResponseStore{responses: make(map[string]map[responseKey]domain.Response)}
}

func (s *ResponseStore) SaveResponse(_ context.Context, quizID string, resp domain.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byKey, ok := s.responses[quizID]
	if !ok {
		byKey = make(map[responseKey]domain.Response)
		s.responses[quizID] = byKey
	}
	key := responseKey{questionID: resp.QuestionID, userID: resp.UserID}
	if prev, ok := byKey[key]; ok && resp.Timestamp.Before(prev.Timestamp) {
		return nil
	}
	byKey[key] = resp
	return nil
}

// FindResponses returns the quiz's responses ordered by time of answer.
func (s *ResponseStore) FindResponses(_ context.Context, quizID string) ([]domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Response, 0, len(s.responses[quizID]))
	for _, resp := range s.responses[quizID] {
		out = append(out, resp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		if out[i].QuestionID != out[j].QuestionID {
			return out[i].QuestionID < out[j].QuestionID
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}
