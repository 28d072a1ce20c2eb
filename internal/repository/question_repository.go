package repository

import (
	"context"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuestionRepository handles session question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// Add inserts a question into a session.
func (r *QuestionRepository) Add(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (session_id, question_text, question_type, options, correct_option, order_num)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		q.SessionID, q.QuestionText, q.QuestionType, q.Options, q.CorrectOption, q.OrderNum,
	).Scan(&q.ID)
}

// ListBySession returns a session's questions including correct answers.
// Admin and scoring paths only.
func (r *QuestionRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, question_text, question_type, options, COALESCE(correct_option, ''), order_num
		 FROM questions
		 WHERE session_id = $1
		 ORDER BY order_num ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.SessionID, &q.QuestionText, &q.QuestionType,
			&q.Options, &q.CorrectOption, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListForCandidate returns a session's questions without correct answers.
func (r *QuestionRepository) ListForCandidate(ctx context.Context, sessionID uuid.UUID) ([]model.QuestionForCandidate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, question_text, question_type, options, order_num
		 FROM questions
		 WHERE session_id = $1
		 ORDER BY order_num ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.QuestionForCandidate
	for rows.Next() {
		var q model.QuestionForCandidate
		if err := rows.Scan(&q.ID, &q.QuestionText, &q.QuestionType, &q.Options, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
