package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/assessly/assessly-backend/internal/config"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// GradingJob is the queue payload handed to the grading worker for coding
// submissions.
type GradingJob struct {
	SubmissionID string `json:"submission_id"`
	AttemptID    string `json:"attempt_id"`
}

// SubmissionCoordinator is the single entry point for finalizing an attempt.
// Every trigger (manual submit, timer expiry, integrity violation, logout)
// funnels through Finalize, which is idempotent per attempt: the first caller
// to flip the finalized latch performs all side effects exactly once; every
// other caller gets the winner's recorded outcome back.
type SubmissionCoordinator struct {
	attempts    AttemptStore
	submissions SubmissionStore
	sessions    SessionStore
	questions   QuestionStore
	drafts      *DraftService
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewSubmissionCoordinator creates a new SubmissionCoordinator.
func NewSubmissionCoordinator(
	attempts AttemptStore,
	submissions SubmissionStore,
	sessions SessionStore,
	questions QuestionStore,
	drafts *DraftService,
	rdb *redis.Client,
	log zerolog.Logger,
) *SubmissionCoordinator {
	return &SubmissionCoordinator{
		attempts:    attempts,
		submissions: submissions,
		sessions:    sessions,
		questions:   questions,
		drafts:      drafts,
		rdb:         rdb,
		log:         log.With().Str("component", "submission_coordinator").Logger(),
	}
}

// Finalize transitions the attempt to COMPLETED and records its Submission.
//
// A nil or partial payload is completed from the most recently persisted
// draft, never from caller memory: the expiry and integrity triggers carry
// no payload at all and still must not lose the last saved keystrokes.
//
// Losers of the finalize race receive the existing Submission with a nil
// error: a duplicate finalize is not an error to the end user.
func (c *SubmissionCoordinator) Finalize(ctx context.Context, attempt *model.Attempt, payload *model.SubmissionPayload, reason model.FinalizeReason) (*model.Submission, error) {
	if attempt.Status == model.AttemptStatusNotStarted {
		return nil, ErrInvalidState
	}
	if attempt.Finalized {
		return c.existingOutcome(ctx, attempt)
	}

	session, err := c.sessions.GetByID(ctx, attempt.SessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	sub, score, err := c.buildSubmission(ctx, attempt, session, payload)
	if err != nil {
		return nil, err
	}

	won, err := c.attempts.Finalize(ctx, attempt.ID, reason, score, sub)
	if err != nil {
		// The latch did not flip; the operation is retryable from any trigger.
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}
	if !won {
		return c.existingOutcome(ctx, attempt)
	}

	// Winner-only side effects.
	c.drafts.Clear(ctx, attempt.CandidateID, attempt.ID)
	c.rdb.Del(ctx, config.CacheKey.AttemptStartKey(attempt.ID.String()))

	if session.Modality == model.ModalityCoding {
		c.enqueueGrading(ctx, sub)
	}

	c.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Int("candidate_id", attempt.CandidateID).
		Str("reason", string(reason)).
		Msg("Attempt finalized")

	return sub, nil
}

// existingOutcome fetches the winner's recorded submission for race losers
// and late duplicate calls.
func (c *SubmissionCoordinator) existingOutcome(ctx context.Context, attempt *model.Attempt) (*model.Submission, error) {
	sub, err := c.submissions.GetByAttempt(ctx, attempt.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Latch observed set but submission not visible yet; the caller
			// can simply retry the read.
			return nil, ErrAlreadyCompleted
		}
		return nil, fmt.Errorf("fetch existing submission: %w", err)
	}
	return sub, nil
}

// buildSubmission renders the draft/payload into a modality-specific
// Submission and computes any synchronous score (MCQ only).
func (c *SubmissionCoordinator) buildSubmission(ctx context.Context, attempt *model.Attempt, session *model.TestSession, payload *model.SubmissionPayload) (*model.Submission, *float64, error) {
	draft := c.drafts.Get(ctx, attempt.CandidateID, attempt.ID)

	sub := &model.Submission{
		AttemptID:     attempt.ID,
		Modality:      session.Modality,
		GradingStatus: model.GradingStatusNone,
	}

	switch session.Modality {
	case model.ModalityCoding:
		sub.Code = draft[DraftFieldCode]
		sub.Language = draft[DraftFieldLanguage]
		if payload != nil && payload.Code != "" {
			sub.Code = payload.Code
		}
		if payload != nil && payload.Language != "" {
			sub.Language = payload.Language
		}
		sub.GradingStatus = model.GradingStatusPending
		return sub, nil, nil

	case model.ModalityMCQ:
		answers := collectAnswers(draft, payload)
		raw, err := json.Marshal(answers)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal answers: %w", err)
		}
		sub.Answers = raw

		score, err := c.scoreMCQ(ctx, session.ID, answers)
		if err != nil {
			// Losing the candidate's answers is the worst outcome; record the
			// submission unscored rather than failing finalize.
			c.log.Error().Err(err).Str("attempt_id", attempt.ID.String()).Msg("MCQ scoring failed, submitting unscored")
			return sub, nil, nil
		}
		return sub, &score, nil

	default: // Explanation
		answers := collectAnswers(draft, payload)
		raw, err := json.Marshal(answers)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal answers: %w", err)
		}
		sub.Answers = raw
		return sub, nil, nil
	}
}

// collectAnswers merges the persisted draft with any explicit payload, the
// payload winning per item.
func collectAnswers(draft map[string]string, payload *model.SubmissionPayload) map[string]string {
	answers := make(map[string]string, len(draft))
	for k, v := range draft {
		answers[k] = v
	}
	if payload != nil {
		for k, v := range payload.Answers {
			answers[k] = v
		}
	}
	return answers
}

// scoreMCQ computes round(100 * correct / total) on exact option matches.
// No partial credit, no negative marking.
func (c *SubmissionCoordinator) scoreMCQ(ctx context.Context, sessionID uuid.UUID, answers map[string]string) (float64, error) {
	questions, err := c.questions.ListBySession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("list questions: %w", err)
	}

	correct, total := 0, 0
	for _, q := range questions {
		if q.QuestionType != model.QuestionTypeMultipleChoice {
			continue
		}
		total++
		if ans, ok := answers[q.ID.String()]; ok && ans == q.CorrectOption {
			correct++
		}
	}
	return roundScore(correct, total), nil
}

// enqueueGrading fires the coding submission into the grading queue. Best
// effort: the durable PENDING marker means a lost enqueue is recovered at
// the next worker startup.
func (c *SubmissionCoordinator) enqueueGrading(ctx context.Context, sub *model.Submission) {
	job, _ := json.Marshal(GradingJob{
		SubmissionID: sub.ID.String(),
		AttemptID:    sub.AttemptID.String(),
	})
	if err := c.rdb.RPush(ctx, config.WorkerKey.GradingQueue, job).Err(); err != nil {
		c.log.Error().Err(err).Str("submission_id", sub.ID.String()).Msg("Grading enqueue failed, worker will recover from PENDING marker")
	}
}

func roundScore(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(100 * float64(correct) / float64(total))
}
