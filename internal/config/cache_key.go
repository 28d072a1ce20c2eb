package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// CandidateSessionKey returns the cache key for a candidate's login session.
func (r *CacheKeyStruct) CandidateSessionKey(candidateID int) string {
	return fmt.Sprintf("login:%d", candidateID)
}

// AttemptStartKey returns the cache key for an attempt's start timestamp.
func (r *CacheKeyStruct) AttemptStartKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:session_start", attemptID)
}

// AttemptDraftKey returns the cache key for an attempt's draft answers hash.
func (r *CacheKeyStruct) AttemptDraftKey(candidateID int, attemptID string) string {
	return fmt.Sprintf("candidate:%d:attempt:%s:draft", candidateID, attemptID)
}

// AttemptDebounceKey returns the cache key that collapses near-simultaneous
// focus-loss events for an attempt into a single strike.
func (r *CacheKeyStruct) AttemptDebounceKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:integrity_debounce", attemptID)
}

// SessionPayloadKey returns the cache key for a test session's candidate-facing payload.
func (r *CacheKeyStruct) SessionPayloadKey(sessionID string) string {
	return fmt.Sprintf("session:%s:payload", sessionID)
}

// SessionDurationKey returns the cache key for a test session's duration.
func (r *CacheKeyStruct) SessionDurationKey(sessionID string) string {
	return fmt.Sprintf("session:%s:duration", sessionID)
}

var CacheKey = NewCacheKeyStruct()
