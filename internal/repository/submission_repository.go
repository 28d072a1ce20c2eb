package repository

import (
	"context"
	"encoding/json"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubmissionRepository handles submission data access. Submissions are
// append-only; only the grading fields mutate after insert.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

const submissionColumns = `id, attempt_id, modality, COALESCE(code, ''), COALESCE(language, ''),
	 answers, tab_switch_count, reason, grading_status, test_results, ai_evaluation, created_at`

func scanSubmission(row pgx.Row) (*model.Submission, error) {
	s := &model.Submission{}
	err := row.Scan(&s.ID, &s.AttemptID, &s.Modality, &s.Code, &s.Language,
		&s.Answers, &s.TabSwitchCount, &s.Reason, &s.GradingStatus,
		&s.TestResults, &s.AIEvaluation, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByID retrieves a submission by ID.
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	return scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
}

// GetByAttempt retrieves the submission for an attempt. At most one exists.
func (r *SubmissionRepository) GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*model.Submission, error) {
	return scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE attempt_id = $1`, attemptID))
}

// MarkRunning flips PENDING → RUNNING so a crash mid-grade is detectable.
// Returns pgx.ErrNoRows when another worker claimed the job first.
func (r *SubmissionRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	var claimed uuid.UUID
	return r.pool.QueryRow(ctx,
		`UPDATE submissions SET grading_status = $2
		 WHERE id = $1 AND grading_status = $3
		 RETURNING id`,
		id, model.GradingStatusRunning, model.GradingStatusPending).Scan(&claimed)
}

// SetTestResults persists the Stage A report. Written at most once.
func (r *SubmissionRepository) SetTestResults(ctx context.Context, id uuid.UUID, report json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE submissions SET test_results = $2 WHERE id = $1 AND test_results IS NULL`,
		id, report)
	return err
}

// SetEvaluation persists the Stage B evaluation and the terminal grading
// status. Written at most once.
func (r *SubmissionRepository) SetEvaluation(ctx context.Context, id uuid.UUID, evaluation json.RawMessage, status model.GradingStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE submissions SET ai_evaluation = $2, grading_status = $3
		 WHERE id = $1 AND ai_evaluation IS NULL`,
		id, evaluation, status)
	return err
}

// ResetStuckRunning returns RUNNING submissions to PENDING. Called once at
// worker startup: a RUNNING row with no live worker means the process died
// mid-grade.
func (r *SubmissionRepository) ResetStuckRunning(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE submissions SET grading_status = $1 WHERE grading_status = $2`,
		model.GradingStatusPending, model.GradingStatusRunning)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListUnfinishedGrading returns coding submissions whose grading never reached
// a terminal state (process died mid-grade, or enqueue was lost). The grading
// worker requeues these at startup.
func (r *SubmissionRepository) ListUnfinishedGrading(ctx context.Context) ([]model.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+`
		 FROM submissions
		 WHERE grading_status IN ($1, $2)
		 ORDER BY created_at ASC`,
		model.GradingStatusPending, model.GradingStatusRunning)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}
