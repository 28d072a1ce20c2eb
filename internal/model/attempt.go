package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states. Transitions are
// monotonic: NOT_STARTED → IN_PROGRESS → COMPLETED, no other edges.
type AttemptStatus string

const (
	AttemptStatusNotStarted AttemptStatus = "NOT_STARTED"
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
)

// FinalizeReason records which trigger won the finalize race.
type FinalizeReason string

const (
	ReasonManual             FinalizeReason = "manual"
	ReasonExpired            FinalizeReason = "expired"
	ReasonIntegrityViolation FinalizeReason = "integrity-violation"
	ReasonLogout             FinalizeReason = "logout"
)

// Attempt is a candidate's run against a test session.
//
// StartedAt is set exactly once; DurationMinutes is snapshotted at start so a
// later template change cannot move a running deadline. ProgramID is the
// coding-modality content pin, chosen once at start and never re-rolled.
// Finalized is the latch the submission coordinator CASes on.
type Attempt struct {
	ID               uuid.UUID      `json:"id"`
	SessionID        uuid.UUID      `json:"session_id"`
	CandidateID      int            `json:"candidate_id"`
	Status           AttemptStatus  `json:"status"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	DurationMinutes  int            `json:"duration_minutes"`
	ProgramID        *uuid.UUID     `json:"program_id,omitempty"`
	IntegrityStrikes int            `json:"integrity_strikes"`
	TabSwitchCount   int            `json:"tab_switch_count"`
	Finalized        bool           `json:"finalized"`
	FinalizeReason   FinalizeReason `json:"finalize_reason,omitempty"`
	FinalScore       *float64       `json:"final_score,omitempty"`
	FinishedAt       *time.Time     `json:"finished_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// AttemptState is the observe() view returned to candidates: frozen final
// state once completed, live remaining time otherwise.
type AttemptState struct {
	AttemptID        uuid.UUID              `json:"attempt_id"`
	SessionID        uuid.UUID              `json:"session_id"`
	SessionName      string                 `json:"session_name"`
	Modality         Modality               `json:"modality"`
	Status           AttemptStatus          `json:"status"`
	RemainingSeconds int                    `json:"remaining_seconds"`
	IntegrityStrikes int                    `json:"integrity_strikes"`
	AssignedProgram  *ProgramForCandidate   `json:"assigned_program,omitempty"`
	Questions        []QuestionForCandidate `json:"questions,omitempty"`
	Draft            map[string]string      `json:"draft,omitempty"`
	FinalScore       *float64               `json:"final_score,omitempty"`
}
