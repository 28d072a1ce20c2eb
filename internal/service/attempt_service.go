package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/assessly/assessly-backend/internal/clock"
	"github.com/assessly/assessly-backend/internal/config"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// AttemptService governs the attempt state machine shared by all three
// modalities: assignment → start → in-progress → completed. Modalities only
// differ in what content they carry and how a draft renders into a
// submission; start, observe and finalize logic is common.
type AttemptService struct {
	attempts    AttemptStore
	sessions    SessionStore
	programs    ProgramStore
	questions   QuestionStore
	drafts      *DraftService
	coordinator *SubmissionCoordinator
	rdb         *redis.Client
	log         zerolog.Logger

	// now is injectable so deadline behavior is testable.
	now func() time.Time
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attempts AttemptStore,
	sessions SessionStore,
	programs ProgramStore,
	questions QuestionStore,
	drafts *DraftService,
	coordinator *SubmissionCoordinator,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attempts:    attempts,
		sessions:    sessions,
		programs:    programs,
		questions:   questions,
		drafts:      drafts,
		coordinator: coordinator,
		rdb:         rdb,
		log:         log.With().Str("component", "attempt_service").Logger(),
		now:         time.Now,
	}
}

// Assign creates a NOT_STARTED attempt binding a candidate to a session.
// Idempotent when re-assigning the same session before start; fails with
// ErrAlreadyAssigned when a different active assignment exists.
func (s *AttemptService) Assign(ctx context.Context, candidateID int, sessionID uuid.UUID) (*model.Attempt, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.Status != model.SessionStatusPublished {
		return nil, ErrSessionNotReady
	}

	existing, err := s.attempts.GetActiveByCandidate(ctx, candidateID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing assignment: %w", err)
	}
	if existing != nil {
		if existing.SessionID == sessionID && existing.Status == model.AttemptStatusNotStarted {
			return existing, nil
		}
		return nil, ErrAlreadyAssigned
	}

	attempt := &model.Attempt{
		SessionID:   sessionID,
		CandidateID: candidateID,
		Status:      model.AttemptStatusNotStarted,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent assign hit the partial unique index; re-resolve.
			existing, fetchErr := s.attempts.GetActiveByCandidate(ctx, candidateID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent assign, fetch failed: %w", fetchErr)
			}
			if existing.SessionID == sessionID && existing.Status == model.AttemptStatusNotStarted {
				return existing, nil
			}
			return nil, ErrAlreadyAssigned
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	return attempt, nil
}

// Start transitions the candidate's attempt to IN_PROGRESS: stamps startedAt
// once, snapshots the session duration, and for coding pins a randomly chosen
// program. The pin happens inside the same conditional update that guards the
// NOT_STARTED precondition, so a second start can never re-roll it; it gets
// ErrInvalidState and the handler surfaces the current (already pinned) state.
func (s *AttemptService) Start(ctx context.Context, candidateID int) (*model.AttemptState, error) {
	attempt, err := s.activeAttempt(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptStatusNotStarted {
		return nil, ErrInvalidState
	}

	session, err := s.sessions.GetByID(ctx, attempt.SessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var programID *uuid.UUID
	if session.Modality == model.ModalityCoding {
		ids, err := s.sessions.ListProgramIDs(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("list session programs: %w", err)
		}
		if len(ids) == 0 {
			return nil, ErrNoContent
		}
		picked := ids[rand.Intn(len(ids))]
		programID = &picked
	}

	started, err := s.attempts.Start(ctx, attempt.ID, session.DurationMinutes, programID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("start attempt: %w", err)
	}

	// Cache the start timestamp; Observe self-heals from PostgreSQL on a miss.
	if started.StartedAt != nil {
		key := config.CacheKey.AttemptStartKey(started.ID.String())
		if err := s.rdb.Set(ctx, key, started.StartedAt.Unix(), 0).Err(); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", started.ID.String()).Msg("Failed to cache start time")
		}
	}

	s.log.Info().
		Str("attempt_id", started.ID.String()).
		Int("candidate_id", candidateID).
		Str("modality", string(session.Modality)).
		Msg("Attempt started")

	return s.buildState(ctx, started, session)
}

// Observe returns the candidate's current attempt state. Read-only except
// for lazy expiry: observing an in-progress attempt past its deadline forces
// finalize from the persisted draft, so the attempt reaches COMPLETED even
// when the client vanished and reloaded arbitrarily late.
func (s *AttemptService) Observe(ctx context.Context, candidateID int) (*model.AttemptState, error) {
	attempt, err := s.attempts.GetActiveByCandidate(ctx, candidateID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get attempt: %w", err)
		}
		// Completed attempts stay observable in their frozen final state.
		attempt, err = s.attempts.GetLatestByCandidate(ctx, candidateID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrNotAssigned
			}
			return nil, fmt.Errorf("get attempt: %w", err)
		}
	}

	session, err := s.sessions.GetByID(ctx, attempt.SessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if attempt.Status == model.AttemptStatusInProgress && attempt.StartedAt != nil &&
		clock.Expired(*attempt.StartedAt, attempt.DurationMinutes, s.now()) {
		if _, err := s.coordinator.Finalize(ctx, attempt, nil, model.ReasonExpired); err != nil && !errors.Is(err, ErrAlreadyCompleted) {
			return nil, fmt.Errorf("forced finalize on expiry: %w", err)
		}
		attempt, err = s.attempts.GetByID(ctx, attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("reload attempt: %w", err)
		}
	}

	return s.buildState(ctx, attempt, session)
}

// SubmitManual finalizes the attempt on the candidate's explicit action.
// Whatever the request carries is merged over the persisted draft.
func (s *AttemptService) SubmitManual(ctx context.Context, candidateID int, payload *model.SubmissionPayload) (*model.Submission, error) {
	attempt, err := s.activeAttempt(ctx, candidateID)
	if err != nil {
		if errors.Is(err, ErrNotAssigned) {
			// A finalize race (timer vs. submit click) may have completed the
			// attempt between the click and this call; surface the outcome.
			if latest, lerr := s.attempts.GetLatestByCandidate(ctx, candidateID); lerr == nil && latest.Finalized {
				return s.coordinator.Finalize(ctx, latest, nil, model.ReasonManual)
			}
		}
		return nil, err
	}
	return s.coordinator.Finalize(ctx, attempt, payload, model.ReasonManual)
}

// FinalizeOnLogout force-submits an in-progress attempt when the candidate
// logs out. No-op when nothing is in progress.
func (s *AttemptService) FinalizeOnLogout(ctx context.Context, candidateID int) error {
	attempt, err := s.attempts.GetActiveByCandidate(ctx, candidateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("get attempt: %w", err)
	}
	if attempt.Status != model.AttemptStatusInProgress {
		return nil
	}
	if _, err := s.coordinator.Finalize(ctx, attempt, nil, model.ReasonLogout); err != nil && !errors.Is(err, ErrAlreadyCompleted) {
		return err
	}
	return nil
}

// VerifyInProgress checks that the candidate has a live attempt. Used by the
// draft and websocket paths before accepting writes.
func (s *AttemptService) VerifyInProgress(ctx context.Context, candidateID int) (*model.Attempt, error) {
	attempt, err := s.activeAttempt(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptStatusInProgress {
		return nil, ErrInvalidState
	}
	if attempt.StartedAt != nil && clock.Expired(*attempt.StartedAt, attempt.DurationMinutes, s.now()) {
		return nil, ErrInvalidState
	}
	return attempt, nil
}

// GradingStatus returns the submission's grading progress for the
// candidate's latest attempt.
func (s *AttemptService) GradingStatus(ctx context.Context, candidateID int) (*model.Submission, error) {
	attempt, err := s.attempts.GetLatestByCandidate(ctx, candidateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotAssigned
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if !attempt.Finalized {
		return nil, ErrInvalidState
	}
	sub, err := s.coordinator.existingOutcome(ctx, attempt)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *AttemptService) activeAttempt(ctx context.Context, candidateID int) (*model.Attempt, error) {
	attempt, err := s.attempts.GetActiveByCandidate(ctx, candidateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotAssigned
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return attempt, nil
}

/// buildState assembles the observe() view: status, server-computed remaining
// time, assigned content and current draft.
func (s *AttemptService) buildState(ctx context.Context, attempt *model.Attempt, session *model.TestSession) (*model.AttemptState, error) {
	state := &model.AttemptState{
		AttemptID:        attempt.ID,
		SessionID:        session.ID,
		SessionName:      session.Name,
		Modality:         session.Modality,
		Status:           attempt.Status,
		IntegrityStrikes: attempt.IntegrityStrikes,
		FinalScore:       attempt.FinalScore,
	}

	switch attempt.Status {
	case model.AttemptStatusNotStarted:
		state.RemainingSeconds = session.DurationMinutes * 60
	case model.AttemptStatusInProgress:
		if attempt.StartedAt != nil {
			state.RemainingSeconds = clock.Remaining(*attempt.StartedAt, attempt.DurationMinutes, s.now())
		}
		state.Draft = s.drafts.Get(ctx, attempt.CandidateID, attempt.ID)
	default:
		state.RemainingSeconds = 0
	}

	if session.Modality == model.ModalityCoding {
		if attempt.ProgramID != nil {
			program, err := s.programs.GetByID(ctx, *attempt.ProgramID)
			if err != nil {
				return nil, fmt.Errorf("get pinned program: %w", err)
			}
			state.AssignedProgram = &model.ProgramForCandidate{
				ID:        program.ID,
				Title:     program.Title,
				Statement: program.Statement,
				Language:  program.Language,
			}
		}
	} else if attempt.Status != model.AttemptStatusNotStarted {
		questions, err := s.questions.ListForCandidate(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("list questions: %w", err)
		}
		state.Questions = questions
	}

	return state, nil
}
