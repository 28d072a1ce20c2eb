package service

import (
	"context"
	"errors"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/google/uuid"
)

// Attempt lifecycle errors surfaced to handlers.
var (
	ErrNotAssigned      = errors.New("no active test assignment")
	ErrInvalidState     = errors.New("operation not allowed in current attempt state")
	ErrAlreadyAssigned  = errors.New("candidate already has a different active assignment")
	ErrAlreadyCompleted = errors.New("attempt already completed")
	ErrSessionNotReady  = errors.New("session is not published")
	ErrNoContent        = errors.New("session has no content")
	ErrSessionLocked    = errors.New("session has started attempts and cannot be modified")
)

// AttemptStore is the persistence contract for attempts. The production
// implementation is repository.AttemptRepository over pgx; tests inject an
// in-memory fake, keeping the state machine testable without a datastore.
//
// Store implementations must honour two atomicity contracts:
//   - Start succeeds only from NOT_STARTED (not-found error otherwise), so a
//     pinned program can never be re-rolled.
//   - Finalize is a single atomic unit: latch check-and-set plus submission
//     creation, all or nothing, returning won=false to race losers.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	GetActiveByCandidate(ctx context.Context, candidateID int) (*model.Attempt, error)
	GetLatestByCandidate(ctx context.Context, candidateID int) (*model.Attempt, error)
	Start(ctx context.Context, id uuid.UUID, durationMinutes int, programID *uuid.UUID) (*model.Attempt, error)
	IncrementStrikes(ctx context.Context, id uuid.UUID) (int, error)
	Finalize(ctx context.Context, id uuid.UUID, reason model.FinalizeReason, score *float64, sub *model.Submission) (bool, error)
	SetFinalScore(ctx context.Context, id uuid.UUID, score float64) error
}

// SessionStore is the read contract for test session templates.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.TestSession, error)
	ListProgramIDs(ctx context.Context, sessionID uuid.UUID) ([]uuid.UUID, error)
}

// ProgramStore is the read contract for coding programs.
type ProgramStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Program, error)
}

// QuestionStore is the read contract for session questions.
type QuestionStore interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Question, error)
	ListForCandidate(ctx context.Context, sessionID uuid.UUID) ([]model.QuestionForCandidate, error)
}

// SubmissionStore is the read contract for submissions created at finalize.
type SubmissionStore interface {
	GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*model.Submission, error)
}
