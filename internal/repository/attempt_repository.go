package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AttemptResult combines candidate data with attempt details for admin views.
type AttemptResult struct {
	AttemptID        uuid.UUID           `json:"attempt_id"`
	CandidateID      int                 `json:"candidate_id"`
	Name             string              `json:"name"`
	Email            string              `json:"email"`
	Status           model.AttemptStatus `json:"status"`
	IntegrityStrikes int                 `json:"integrity_strikes"`
	FinalizeReason   string              `json:"finalize_reason,omitempty"`
	FinalScore       *float64            `json:"final_score,omitempty"`
	StartedAt        *time.Time          `json:"started_at,omitempty"`
	FinishedAt       *time.Time          `json:"finished_at,omitempty"`
}

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, session_id, candidate_id, status, started_at, duration_minutes,
	 program_id, integrity_strikes, tab_switch_count, finalized,
	 COALESCE(finalize_reason, ''), final_score, finished_at, created_at`

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.SessionID, &a.CandidateID, &a.Status, &a.StartedAt,
		&a.DurationMinutes, &a.ProgramID, &a.IntegrityStrikes, &a.TabSwitchCount,
		&a.Finalized, &a.FinalizeReason, &a.FinalScore, &a.FinishedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new NOT_STARTED attempt (the assignment). The partial
// unique index on (candidate_id) WHERE status <> 'COMPLETED' rejects a second
// active assignment; ON CONFLICT DO NOTHING turns that race into pgx.ErrNoRows.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (session_id, candidate_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (candidate_id) WHERE status <> 'COMPLETED' DO NOTHING
		 RETURNING id, created_at`,
		a.SessionID, a.CandidateID, model.AttemptStatusNotStarted,
	).Scan(&a.ID, &a.CreatedAt)
}

// GetByID retrieves an attempt by its ID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

// GetActiveByCandidate retrieves the candidate's current non-completed attempt.
func (r *AttemptRepository) GetActiveByCandidate(ctx context.Context, candidateID int) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE candidate_id = $1 AND status <> 'COMPLETED'
		 ORDER BY created_at DESC
		 LIMIT 1`, candidateID))
}

// GetLatestByCandidate retrieves the candidate's most recent attempt of any status.
func (r *AttemptRepository) GetLatestByCandidate(ctx context.Context, candidateID int) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE candidate_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`, candidateID))
}

// Start transitions NOT_STARTED → IN_PROGRESS, stamping started_at and
// snapshotting the duration, and pins the coding program in the same
// conditional update. Zero rows means the attempt already left NOT_STARTED;
// the caller maps that to an invalid-state error and must not re-roll the pin.
func (r *AttemptRepository) Start(ctx context.Context, id uuid.UUID, durationMinutes int, programID *uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`UPDATE attempts
		 SET status = $2, started_at = NOW(), duration_minutes = $3, program_id = $4
		 WHERE id = $1 AND status = $5
		 RETURNING `+attemptColumns,
		id, model.AttemptStatusInProgress, durationMinutes, programID, model.AttemptStatusNotStarted))
}

// IncrementStrikes bumps the strike and tab-switch counters for a live
// attempt. Returns the new strike count, or pgx.ErrNoRows if the attempt is
// no longer in progress (strikes are monotonic and stop at finalize).
func (r *AttemptRepository) IncrementStrikes(ctx context.Context, id uuid.UUID) (int, error) {
	var strikes int
	err := r.pool.QueryRow(ctx,
		`UPDATE attempts
		 SET integrity_strikes = integrity_strikes + 1,
		     tab_switch_count = tab_switch_count + 1
		 WHERE id = $1 AND status = $2 AND finalized = FALSE
		 RETURNING integrity_strikes`,
		id, model.AttemptStatusInProgress).Scan(&strikes)
	return strikes, err
}

// Finalize performs the atomic check-and-set on the finalized latch and
// creates the Submission in the same transaction. Exactly one caller wins;
// losers get won=false with no side effects. If the submission insert fails
// the latch flip rolls back, so the operation stays retryable from any
// trigger (no partial finalize).
func (r *AttemptRepository) Finalize(ctx context.Context, id uuid.UUID, reason model.FinalizeReason, score *float64, sub *model.Submission) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin finalize tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var tabSwitches int
	err = tx.QueryRow(ctx,
		`UPDATE attempts
		 SET finalized = TRUE,
		     status = $2,
		     finalize_reason = $3,
		     final_score = COALESCE($4, final_score),
		     finished_at = NOW()
		 WHERE id = $1 AND finalized = FALSE
		 RETURNING tab_switch_count`,
		id, model.AttemptStatusCompleted, reason, score).Scan(&tabSwitches)
	if err != nil {
		if err == pgx.ErrNoRows {
			// Race loser: another trigger finalized first.
			return false, nil
		}
		return false, fmt.Errorf("finalize latch update: %w", err)
	}

	sub.AttemptID = id
	sub.Reason = reason
	sub.TabSwitchCount = tabSwitches

	var answers any
	if len(sub.Answers) > 0 {
		answers = sub.Answers
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO submissions
		   (attempt_id, modality, code, language, answers, tab_switch_count, reason, grading_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		sub.AttemptID, sub.Modality, sub.Code, sub.Language, answers,
		sub.TabSwitchCount, sub.Reason, sub.GradingStatus,
	).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert submission: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit finalize: %w", err)
	}
	return true, nil
}

// SetFinalScore records the graded score on a completed attempt. Used by the
// grading pipeline once Stage B resolves, independent of candidate presence.
func (r *AttemptRepository) SetFinalScore(ctx context.Context, id uuid.UUID, score float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts SET final_score = $2 WHERE id = $1`, id, score)
	return err
}

// ListBySession retrieves paginated candidate results for a session.
func (r *AttemptRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, page, perPage int) ([]AttemptResult, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE session_id = $1`, sessionID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT a.id, c.id, c.name, c.email, a.status, a.integrity_strikes,
		        COALESCE(a.finalize_reason, ''), a.final_score, a.started_at, a.finished_at
		 FROM attempts a
		 JOIN candidates c ON a.candidate_id = c.id
		 WHERE a.session_id = $1
		 ORDER BY c.name ASC
		 LIMIT $2 OFFSET $3`, sessionID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []AttemptResult
	for rows.Next() {
		var res AttemptResult
		if err := rows.Scan(&res.AttemptID, &res.CandidateID, &res.Name, &res.Email,
			&res.Status, &res.IntegrityStrikes, &res.FinalizeReason,
			&res.FinalScore, &res.StartedAt, &res.FinishedAt); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}

	return results, total, rows.Err()
}

// HasStartedAttempts reports whether any attempt against the session has left
// NOT_STARTED. Sessions with started attempts are locked against mutation.
func (r *AttemptRepository) HasStartedAttempts(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM attempts
		   WHERE session_id = $1 AND status <> 'NOT_STARTED'
		 )`, sessionID).Scan(&exists)
	return exists, err
}
