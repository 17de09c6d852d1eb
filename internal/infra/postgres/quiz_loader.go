package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"live-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizLoader loads quiz JSONB from Postgres by join code.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, code string) (domain.Quiz, error) {
	var (
		id  string
		raw []byte
	)
	err := l.pool.QueryRow(ctx, `SELECT id, data FROM quizzes WHERE code=$1`, code).Scan(&id, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	quiz.ID = id
	quiz.Code = code
	return quiz, nil
}

// SaveQuiz inserts or replaces a quiz definition.
func (l *QuizLoader) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO quizzes (id, code, data) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, data = EXCLUDED.data`,
		quiz.ID, quiz.Code, string(data))
	if err != nil {
		return fmt.Errorf("save quiz: %w", err)
	}
	return nil
}
