package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-session-service/internal/domain"
)

// QuizLoader reads the question bank: one JSONB document per quiz.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizID)
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	if quiz.ID == "" {
		quiz.ID = quizID
	}
	return quiz, nil
}

// SaveQuiz upserts a quiz document.
func (l *QuizLoader) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO quizzes (id, data) VALUES ($1, $2::jsonb)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		quiz.ID, string(data))
	if err != nil {
		return fmt.Errorf("save quiz %s: %w", quiz.ID, err)
	}
	return nil
}
