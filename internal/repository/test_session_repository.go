package repository

import (
	"context"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TestSessionRepository handles test session template data access.
type TestSessionRepository struct {
	pool *pgxpool.Pool
}

// NewTestSessionRepository creates a new TestSessionRepository.
func NewTestSessionRepository(pool *pgxpool.Pool) *TestSessionRepository {
	return &TestSessionRepository{pool: pool}
}

const sessionColumns = `id, name, modality, duration_minutes, status, created_by, created_at, updated_at`

// Create inserts a new DRAFT session.
func (r *TestSessionRepository) Create(ctx context.Context, s *model.TestSession) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO test_sessions (name, modality, duration_minutes, status, created_by)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		s.Name, s.Modality, s.DurationMinutes, model.SessionStatusDraft, s.CreatedBy,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// GetByID retrieves a session by ID.
func (r *TestSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.TestSession, error) {
	s := &model.TestSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM test_sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.Modality, &s.DurationMinutes, &s.Status,
		&s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Update changes name/duration on a session. The service layer guards
// against mutating a session that already has started attempts.
func (r *TestSessionRepository) Update(ctx context.Context, s *model.TestSession) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE test_sessions
		 SET name = $2, duration_minutes = $3, updated_at = NOW()
		 WHERE id = $1`,
		s.ID, s.Name, s.DurationMinutes)
	return err
}

// SetStatus transitions the session template status.
func (r *TestSessionRepository) SetStatus(ctx context.Context, id uuid.UUID, status model.SessionStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE test_sessions SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status)
	return err
}

// List retrieves all sessions, newest first.
func (r *TestSessionRepository) List(ctx context.Context) ([]model.TestSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM test_sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.TestSession
	for rows.Next() {
		var s model.TestSession
		if err := rows.Scan(&s.ID, &s.Name, &s.Modality, &s.DurationMinutes,
			&s.Status, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// AttachProgram links a program to a coding session.
func (r *TestSessionRepository) AttachProgram(ctx context.Context, sessionID, programID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_programs (session_id, program_id)
		 VALUES ($1, $2)
		 ON CONFLICT (session_id, program_id) DO NOTHING`,
		sessionID, programID)
	return err
}

// ListProgramIDs returns the ids of programs attached to a coding session.
func (r *TestSessionRepository) ListProgramIDs(ctx context.Context, sessionID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT program_id FROM session_programs WHERE session_id = $1 ORDER BY program_id`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
