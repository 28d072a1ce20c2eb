package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/assessly/assessly-backend/internal/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Reserved draft hash fields for the coding modality. All other fields are
// question-id → answer pairs.
const (
	DraftFieldCode     = "code"
	DraftFieldLanguage = "language"
)

// DraftService is the durable answer store: every change is written through
// to a Redis hash keyed by (candidate, attempt) so a reload mid-test restores
// prior input, and mirrored to PostgreSQL by the autosave worker.
type DraftService struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewDraftService creates a new DraftService.
func NewDraftService(rdb *redis.Client, log zerolog.Logger) *DraftService {
	return &DraftService{
		rdb: rdb,
		log: log.With().Str("component", "draft_service").Logger(),
	}
}

// SaveEntry writes a single draft field through to Redis and queues the
// change for PostgreSQL mirroring.
func (s *DraftService) SaveEntry(ctx context.Context, candidateID int, attemptID uuid.UUID, itemID, answer string) error {
	key := config.CacheKey.AttemptDraftKey(candidateID, attemptID.String())
	if err := s.rdb.HSet(ctx, key, itemID, answer).Err(); err != nil {
		return fmt.Errorf("save draft entry: %w", err)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"candidate_id": candidateID,
		"attempt_id":   attemptID.String(),
		"item_id":      itemID,
		"answer":       answer,
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload).Err(); err != nil {
		// The Redis hash already holds the value; the mirror is best effort.
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to queue draft mirror")
	}
	return nil
}

// SaveAll writes a full draft mapping in one round trip.
func (s *DraftService) SaveAll(ctx context.Context, candidateID int, attemptID uuid.UUID, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}
	key := config.CacheKey.AttemptDraftKey(candidateID, attemptID.String())
	flat := make([]interface{}, 0, len(entries)*2)
	for field, value := range entries {
		flat = append(flat, field, value)
	}
	if err := s.rdb.HSet(ctx, key, flat...).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}

	for field, value := range entries {
		payload, _ := json.Marshal(map[string]interface{}{
			"candidate_id": candidateID,
			"attempt_id":   attemptID.String(),
			"item_id":      field,
			"answer":       value,
		})
		if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload).Err(); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to queue draft mirror")
			break
		}
	}
	return nil
}

// Get returns the persisted draft for an attempt. Fails soft: missing or
// unreadable data logs a warning and yields an empty draft; a corrupt draft
// must never take down the test flow.
func (s *DraftService) Get(ctx context.Context, candidateID int, attemptID uuid.UUID) map[string]string {
	key := config.CacheKey.AttemptDraftKey(candidateID, attemptID.String())
	entries, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Draft read failed, returning empty draft")
		return map[string]string{}
	}
	if entries == nil {
		return map[string]string{}
	}
	return entries
}

// Clear removes the draft after a successful finalize so stale data cannot
// leak into a future attempt.
func (s *DraftService) Clear(ctx context.Context, candidateID int, attemptID uuid.UUID) {
	key := config.CacheKey.AttemptDraftKey(candidateID, attemptID.String())
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Draft clear failed")
	}
}
