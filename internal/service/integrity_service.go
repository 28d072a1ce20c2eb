package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/assessly/assessly-backend/internal/config"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// IntegrityOutcome reports what a violation report did to the attempt.
type IntegrityOutcome struct {
	Strikes    int               `json:"strikes"`
	Warned     bool              `json:"warned"`
	Terminated bool              `json:"terminated"`
	Debounced  bool              `json:"debounced"`
	Submission *model.Submission `json:"-"`
}

// IntegrityService enforces the strike policy for focus-loss events.
// Strike accounting is strictly server-side; the client only reports that a
// violation happened and renders whatever the server decided.
type IntegrityService struct {
	attempts    AttemptStore
	coordinator *SubmissionCoordinator
	rdb         *redis.Client
	log         zerolog.Logger

	debounce   time.Duration
	maxStrikes int
}

// NewIntegrityService creates a new IntegrityService.
func NewIntegrityService(
	attempts AttemptStore,
	coordinator *SubmissionCoordinator,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *IntegrityService {
	return &IntegrityService{
		attempts:    attempts,
		coordinator: coordinator,
		rdb:         rdb,
		log:         log.With().Str("component", "integrity_service").Logger(),
		debounce:    cfg.IntegrityDebounce,
		maxStrikes:  cfg.IntegrityMaxStrike,
	}
}

type integrityEventPayload struct {
	CandidateID int    `json:"candidate_id"`
	AttemptID   string `json:"attempt_id"`
	EventType   string `json:"event_type"`
	Timestamp   int64  `json:"timestamp"`
	Payload     string `json:"payload"`
}

// ReportViolation records a focus-loss event against an in-progress attempt.
// Bursts within the debounce window count as one strike: blur + visibility
// change from a single alt-tab must not consume both strikes. The first
// effective strike warns; the strike at the limit force-submits the attempt
// from the persisted draft.
func (s *IntegrityService) ReportViolation(ctx context.Context, attempt *model.Attempt, eventType, detail string) (*IntegrityOutcome, error) {
	if attempt.Status != model.AttemptStatusInProgress || attempt.Finalized {
		return nil, ErrInvalidState
	}

	// Audit trail first: every report is queued for persistence even when the
	// strike itself gets debounced.
	s.enqueueAudit(ctx, attempt, eventType, detail)

	key := config.CacheKey.AttemptDebounceKey(attempt.ID.String())
	acquired, err := s.rdb.SetNX(ctx, key, 1, s.debounce).Result()
	if err != nil {
		// Redis trouble must not let violations pass uncounted; count the
		// strike rather than debounce it.
		s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Debounce check failed, counting strike")
		acquired = true
	}
	if !acquired {
		return &IntegrityOutcome{Strikes: attempt.IntegrityStrikes, Debounced: true}, nil
	}

	strikes, err := s.attempts.IncrementStrikes(ctx, attempt.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Attempt finalized between the handler's check and now.
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("increment strikes: %w", err)
	}

	outcome := &IntegrityOutcome{Strikes: strikes}

	if strikes >= s.maxStrikes {
		attempt.IntegrityStrikes = strikes
		sub, err := s.coordinator.Finalize(ctx, attempt, nil, model.ReasonIntegrityViolation)
		if err != nil && !errors.Is(err, ErrAlreadyCompleted) {
			return nil, fmt.Errorf("finalize on violation: %w", err)
		}
		outcome.Terminated = true
		outcome.Submission = sub
		s.log.Warn().
			Str("attempt_id", attempt.ID.String()).
			Int("candidate_id", attempt.CandidateID).
			Int("strikes", strikes).
			Msg("Attempt terminated for integrity violation")
	} else {
		outcome.Warned = true
		s.log.Info().
			Str("attempt_id", attempt.ID.String()).
			Int("strikes", strikes).
			Msg("Integrity warning issued")
	}

	return outcome, nil
}

func (s *IntegrityService) enqueueAudit(ctx context.Context, attempt *model.Attempt, eventType, detail string) {
	event := integrityEventPayload{
		CandidateID: attempt.CandidateID,
		AttemptID:   attempt.ID.String(),
		EventType:   eventType,
		Timestamp:   time.Now().Unix(),
		Payload:     detail,
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal integrity event")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistIntegrityQueue, data).Err(); err != nil {
		s.log.Error().Err(err).Msg("Failed to enqueue integrity event")
	}
}
