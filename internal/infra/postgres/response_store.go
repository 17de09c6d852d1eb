package postgres

import (
	"context"
	"fmt"

	"live-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ResponseStore persists the latest response per (quiz, question, user).
type ResponseStore struct {
	pool *pgxpool.Pool
}

func NewResponseStore(pool *pgxpool.Pool) *ResponseStore {
	return &ResponseStore{pool: pool}
}

// SaveResponse upserts a response. A row that already holds a newer answer is left alone.
func (s *ResponseStore) SaveResponse(ctx context.Context, quizID string, resp domain.Response) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quiz_responses (quiz_id, question_id, user_id, option_id, answered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (quiz_id, question_id, user_id) DO UPDATE
		SET option_id = EXCLUDED.option_id, answered_at = EXCLUDED.answered_at
		WHERE quiz_responses.answered_at <= EXCLUDED.answered_at`,
		quizID, resp.QuestionID, resp.UserID, resp.OptionID, resp.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("save response: %w", err)
	}
	return nil
}

func (s *ResponseStore) FindResponses(ctx context.Context, quizID string) ([]domain.Response, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, question_id, option_id, answered_at
		FROM quiz_responses
		WHERE quiz_id = $1
		ORDER BY answered_at, question_id, user_id`, quizID)
	if err != nil {
		return nil, fmt.Errorf("find responses: %w", err)
	}
	defer rows.Close()

	var out []domain.Response
	for rows.Next() {
		var resp domain.Response
		if err := rows.Scan(&resp.UserID, &resp.QuestionID, &resp.OptionID, &resp.Timestamp); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		out = append(out, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find responses: %w", err)
	}
	return out, nil
}
