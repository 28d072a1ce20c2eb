package worker

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/assessly/assessly-backend/internal/config"
	"github.com/assessly/assessly-backend/internal/evaluator"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/sandbox"
	"github.com/assessly/assessly-backend/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// GradingSubmissionStore is the submission access the grading worker needs.
type GradingSubmissionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	SetTestResults(ctx context.Context, id uuid.UUID, report json.RawMessage) error
	SetEvaluation(ctx context.Context, id uuid.UUID, evaluation json.RawMessage, status model.GradingStatus) error
	ResetStuckRunning(ctx context.Context) (int64, error)
	ListUnfinishedGrading(ctx context.Context) ([]model.Submission, error)
}

// GradingAttemptStore is the attempt access the grading worker needs.
type GradingAttemptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	SetFinalScore(ctx context.Context, id uuid.UUID, score float64) error
}

// GradingProgramStore resolves the pinned program and its hidden test cases.
type GradingProgramStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Program, error)
	ListTestCases(ctx context.Context, programID uuid.UUID) ([]model.ProgramTestCase, error)
}

// GradingWorker drives the two-stage grading pipeline for coding
// submissions. Stage A runs hidden test cases through the sandbox, Stage B
// asks the model evaluator for a qualitative verdict. Both stages write
// their output at most once, so a crashed run resumes cleanly after requeue.
type GradingWorker struct {
	submissions GradingSubmissionStore
	attempts    GradingAttemptStore
	programs    GradingProgramStore
	executor    sandbox.Executor
	evaluator   evaluator.Evaluator // nil when no API key is configured
	rdb         *redis.Client
	log         zerolog.Logger

	callDelay time.Duration
}

// NewGradingWorker creates a new GradingWorker. eval may be nil; every
// submission then gets the deterministic fallback verdict.
func NewGradingWorker(
	submissions GradingSubmissionStore,
	attempts GradingAttemptStore,
	programs GradingProgramStore,
	executor sandbox.Executor,
	eval evaluator.Evaluator,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *GradingWorker {
	return &GradingWorker{
		submissions: submissions,
		attempts:    attempts,
		programs:    programs,
		executor:    executor,
		evaluator:   eval,
		rdb:         rdb,
		log:         log.With().Str("component", "grading_worker").Logger(),
		callDelay:   cfg.SandboxCallDelay,
	}
}

// Start recovers interrupted work, then consumes the grading queue until the
// context is cancelled. Call in a goroutine.
func (w *GradingWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	if err := w.Recover(ctx); err != nil {
		w.log.Error().Err(err).Msg("Recovery failed, continuing with live queue")
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.GradingQueue).Result()
		if err != nil {
			if err != redis.Nil && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("BLPop error")
				time.Sleep(3 * time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job service.GradingJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		if err := w.Process(ctx, job); err != nil {
			w.log.Error().Err(err).Str("submission_id", job.SubmissionID).Msg("Grading failed, requeueing")
			w.rdb.RPush(ctx, config.WorkerKey.GradingQueue, result[1])
			time.Sleep(5 * time.Second)
		}
	}
}

// Recover resets submissions stuck in RUNNING from a previous crash back to
// PENDING and requeues everything not yet finished. The queue entry is only
// a wakeup; all progress lives in the submission row, so a duplicate queue
// entry is harmless.
func (w *GradingWorker) Recover(ctx context.Context) error {
	reset, err := w.submissions.ResetStuckRunning(ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		w.log.Warn().Int64("count", reset).Msg("Reset submissions stuck in RUNNING")
	}

	pending, err := w.submissions.ListUnfinishedGrading(ctx)
	if err != nil {
		return err
	}
	for _, sub := range pending {
		job, _ := json.Marshal(service.GradingJob{
			SubmissionID: sub.ID.String(),
			AttemptID:    sub.AttemptID.String(),
		})
		if err := w.rdb.RPush(ctx, config.WorkerKey.GradingQueue, job).Err(); err != nil {
			return err
		}
	}
	if len(pending) > 0 {
		w.log.Info().Int("count", len(pending)).Msg("Requeued unfinished grading jobs")
	}
	return nil
}

// Process grades one submission end to end.
func (w *GradingWorker) Process(ctx context.Context, job service.GradingJob) error {
	submissionID, err := uuid.Parse(job.SubmissionID)
	if err != nil {
		w.log.Error().Str("submission_id", job.SubmissionID).Msg("Dropping job with invalid UUID")
		return nil
	}

	if err := w.submissions.MarkRunning(ctx, submissionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Not PENDING: already graded, or another worker claimed it.
			return nil
		}
		return err
	}

	submission, err := w.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return err
	}

	attempt, err := w.attempts.GetByID(ctx, submission.AttemptID)
	if err != nil {
		return err
	}

	// Stage A: hidden test execution. Skipped when a previous interrupted
	// run already persisted its report.
	report, err := w.stageResults(ctx, submission, attempt)
	if err != nil {
		return err
	}

	// Stage B: qualitative verdict, falling back to the deterministic one so
	// the pipeline always terminates.
	evaluation := w.evaluate(ctx, submission, attempt, report)
	evalJSON, err := json.Marshal(evaluation)
	if err != nil {
		return err
	}
	// An aborted test run is terminal: the submission is marked FAILED so
	// admins can spot it, and no retry happens without manual intervention.
	status := model.GradingStatusCompleted
	if report.InfraError != "" {
		status = model.GradingStatusFailed
	}
	if err := w.submissions.SetEvaluation(ctx, submissionID, evalJSON, status); err != nil {
		return err
	}

	// The model's overall score wins over the raw test score when present.
	finalScore := float64(evaluation.OverallScore)
	if err := w.attempts.SetFinalScore(ctx, submission.AttemptID, finalScore); err != nil {
		return err
	}

	w.log.Info().
		Str("submission_id", submissionID.String()).
		Int("test_score", report.Score).
		Float64("final_score", finalScore).
		Bool("fallback", evaluation.Fallback).
		Msg("Submission graded")
	return nil
}

// stageResults returns the Stage A report, running the tests only if no
// persisted report exists yet.
func (w *GradingWorker) stageResults(ctx context.Context, submission *model.Submission, attempt *model.Attempt) (*model.TestRunReport, error) {
	if len(submission.TestResults) > 0 {
		var report model.TestRunReport
		if err := json.Unmarshal(submission.TestResults, &report); err == nil {
			return &report, nil
		}
		// Unreadable report: regenerate. SetTestResults will no-op, which is
		// fine; the in-memory report still feeds Stage B.
	}

	report := w.runTests(ctx, submission, attempt)
	data, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	if err := w.submissions.SetTestResults(ctx, submission.ID, data); err != nil {
		return nil, err
	}
	return report, nil
}

// runTests executes the hidden test cases sequentially. A sandbox failure
// aborts the run: remaining cases are marked failed and never retried, the
// score drops to zero regardless of what passed before the outage, and the
// report records the infrastructure error for the admin view.
func (w *GradingWorker) runTests(ctx context.Context, submission *model.Submission, attempt *model.Attempt) *model.TestRunReport {
	report := &model.TestRunReport{FinishedAt: time.Now()}

	if attempt.ProgramID == nil {
		report.InfraError = "attempt has no pinned program"
		return report
	}
	cases, err := w.programs.ListTestCases(ctx, *attempt.ProgramID)
	if err != nil {
		report.InfraError = "load test cases: " + err.Error()
		return report
	}

	report.Total = len(cases)
	report.Cases = make([]model.TestRunCase, 0, len(cases))

	infraFailed := false
	for i, tc := range cases {
		if infraFailed {
			report.Cases = append(report.Cases, model.TestRunCase{
				OrderNum: tc.OrderNum,
				Passed:   false,
				Error:    "not executed: sandbox unavailable",
			})
			continue
		}
		if i > 0 && w.callDelay > 0 {
			// Pace sandbox calls to stay under its rate limit.
			time.Sleep(w.callDelay)
		}

		result, err := w.executor.Execute(ctx, submission.Code, submission.Language, tc.Stdin)
		if err != nil {
			infraFailed = true
			report.InfraError = err.Error()
			report.Cases = append(report.Cases, model.TestRunCase{
				OrderNum: tc.OrderNum,
				Passed:   false,
				Error:    "sandbox failure: " + err.Error(),
			})
			continue
		}

		passed := result.ExitStatus == 0 && !result.TimedOut &&
			strings.TrimSpace(result.Stdout) == strings.TrimSpace(tc.ExpectedStdout)
		if passed {
			report.Passed++
		}
		report.Cases = append(report.Cases, model.TestRunCase{
			OrderNum: tc.OrderNum,
			Passed:   passed,
			Stdout:   result.Stdout,
			Expected: tc.ExpectedStdout,
			Error:    caseError(result),
		})
	}

	if report.InfraError != "" {
		// A cut-short run never yields a partial pass rate.
		report.Score = 0
	} else if report.Total > 0 {
		report.Score = int(math.Round(float64(report.Passed) / float64(report.Total) * 100))
	}
	report.FinishedAt = time.Now()
	return report
}

func caseError(result *sandbox.ExecutionResult) string {
	if result.TimedOut {
		return "time limit exceeded"
	}
	if result.CompileOutput != "" {
		return result.CompileOutput
	}
	if result.ExitStatus != 0 {
		return result.Stderr
	}
	return ""
}

// evaluate runs Stage B, degrading to the deterministic fallback on any
// model failure.
func (w *GradingWorker) evaluate(ctx context.Context, submission *model.Submission, attempt *model.Attempt, report *model.TestRunReport) *evaluator.Evaluation {
	input := evaluator.Input{
		Language:    submission.Language,
		Code:        submission.Code,
		TestScore:   report.Score,
		TestsPassed: report.Passed,
		TestsTotal:  report.Total,
		InfraError:  report.InfraError,
	}
	if attempt.ProgramID != nil {
		if program, err := w.programs.GetByID(ctx, *attempt.ProgramID); err == nil {
			input.ProblemTitle = program.Title
			input.ProblemStatement = program.Statement
		}
	}

	// The model is never consulted after an infrastructure failure; the
	// zero-score fallback verdict is recorded instead.
	if report.InfraError != "" || w.evaluator == nil {
		return evaluator.FallbackEvaluation(input)
	}
	evaluation, err := w.evaluator.Evaluate(ctx, input)
	if err != nil {
		w.log.Warn().Err(err).Str("submission_id", submission.ID.String()).Msg("Evaluator unavailable, using fallback")
		return evaluator.FallbackEvaluation(input)
	}
	return evaluation
}
