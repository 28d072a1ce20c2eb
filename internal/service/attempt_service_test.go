package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/assessly/assessly-backend/internal/config"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestAssignIsIdempotentPerSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.addSession(t, model.ModalityMCQ, 30)

	first, err := env.attempts.Assign(ctx, 1, session.ID)
	require.NoError(t, err)
	require.Equal(t, model.AttemptStatusNotStarted, first.Status)

	again, err := env.attempts.Assign(ctx, 1, session.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)

	other := env.addSession(t, model.ModalityMCQ, 30)
	_, err = env.attempts.Assign(ctx, 1, other.ID)
	require.ErrorIs(t, err, ErrAlreadyAssigned)
}

func TestAssignRequiresPublishedSession(t *testing.T) {
	env := newTestEnv(t)
	session := env.addSession(t, model.ModalityMCQ, 30)
	env.store.mu.Lock()
	env.store.sessions[session.ID].Status = model.SessionStatusDraft
	env.store.mu.Unlock()

	_, err := env.attempts.Assign(context.Background(), 1, session.ID)
	require.ErrorIs(t, err, ErrSessionNotReady)
}

func TestStartTransitionsOnceAndPinsProgram(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.addSession(t, model.ModalityCoding, 45)
	env.addProgram(t, session.ID, "FizzBuzz")
	env.addProgram(t, session.ID, "Two Sum")
	env.addProgram(t, session.ID, "Anagrams")

	_, err := env.attempts.Assign(ctx, 1, session.ID)
	require.NoError(t, err)

	state, err := env.attempts.Start(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, model.AttemptStatusInProgress, state.Status)
	require.Equal(t, 45*60, state.RemainingSeconds)
	require.NotNil(t, state.AssignedProgram)

	pinned := state.AssignedProgram.ID

	// A second start must not re-roll the pinned program.
	_, err = env.attempts.Start(ctx, 1)
	require.ErrorIs(t, err, ErrInvalidState)

	observed, err := env.attempts.Observe(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, observed.AssignedProgram)
	require.Equal(t, pinned, observed.AssignedProgram.ID)

	// Start timestamp is cached for the websocket clock.
	cached, err := env.rdb.Get(ctx, config.CacheKey.AttemptStartKey(state.AttemptID.String())).Result()
	require.NoError(t, err)
	require.NotEmpty(t, cached)
}

func TestStartCodingWithoutProgramsFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.addSession(t, model.ModalityCoding, 45)

	_, err := env.attempts.Assign(ctx, 1, session.ID)
	require.NoError(t, err)

	_, err = env.attempts.Start(ctx, 1)
	require.ErrorIs(t, err, ErrNoContent)
}

func TestObserveForcesExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.addSession(t, model.ModalityMCQ, 30)
	q := env.addMCQ(t, session.ID, "B")

	state := env.assignAndStart(t, 1, session.ID)
	require.NoError(t, env.drafts.SaveEntry(ctx, 1, state.AttemptID, q.ID.String(), "B"))

	// Jump the service clock past the deadline.
	env.attempts.now = func() time.Time { return time.Now().Add(31 * time.Minute) }

	observed, err := env.attempts.Observe(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, model.AttemptStatusCompleted, observed.Status)
	require.Equal(t, 0, observed.RemainingSeconds)

	// The forced finalize submitted the persisted draft, and scored it.
	attempt, err := env.store.GetByID(ctx, state.AttemptID)
	require.NoError(t, err)
	require.True(t, attempt.Finalized)
	require.Equal(t, model.ReasonExpired, attempt.FinalizeReason)
	require.NotNil(t, attempt.FinalScore)
	require.Equal(t, float64(100), *attempt.FinalScore)

	// Observing again keeps returning the frozen final state.
	again, err := env.attempts.Observe(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, model.AttemptStatusCompleted, again.Status)
}

func TestSubmitManualPayloadWinsOverDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.addSession(t, model.ModalityMCQ, 30)
	q1 := env.addMCQ(t, session.ID, "A")
	q2 := env.addMCQ(t, session.ID, "C")

	state := env.assignAndStart(t, 1, session.ID)
	require.NoError(t, env.drafts.SaveEntry(ctx, 1, state.AttemptID, q1.ID.String(), "A"))
	require.NoError(t, env.drafts.SaveEntry(ctx, 1, state.AttemptID, q2.ID.String(), "D"))

	// The explicit payload corrects q2; the draft still supplies q1.
	sub, err := env.attempts.SubmitManual(ctx, 1, &model.SubmissionPayload{
		Answers: map[string]string{q2.ID.String(): "C"},
	})
	require.NoError(t, err)
	require.Equal(t, model.ReasonManual, sub.Reason)

	var answers map[string]string
	require.NoError(t, json.Unmarshal(sub.Answers, &answers))
	require.Equal(t, "A", answers[q1.ID.String()])
	require.Equal(t, "C", answers[q2.ID.String()])

	attempt, err := env.store.GetByID(ctx, state.AttemptID)
	require.NoError(t, err)
	require.NotNil(t, attempt.FinalScore)
	require.Equal(t, float64(100), *attempt.FinalScore)

	// The draft is cleared after a successful finalize.
	require.Empty(t, env.drafts.Get(ctx, 1, state.AttemptID))
}

func TestFinalizeRaceSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.addSession(t, model.ModalityCoding, 30)
	env.addProgram(t, session.ID, "FizzBuzz")

	state := env.assignAndStart(t, 1, session.ID)
	require.NoError(t, env.drafts.SaveEntry(ctx, 1, state.AttemptID, DraftFieldCode, "print(1)"))
	require.NoError(t, env.drafts.SaveEntry(ctx, 1, state.AttemptID, DraftFieldLanguage, "python"))

	reasons := []model.FinalizeReason{
		model.ReasonManual, model.ReasonExpired, model.ReasonIntegrityViolation, model.ReasonLogout,
	}

	var wg sync.WaitGroup
	results := make([]*model.Submission, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			attempt, err := env.store.GetByID(ctx, state.AttemptID)
			if err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = env.coordinator.Finalize(ctx, attempt, nil, reasons[i%len(reasons)])
		}(i)
	}
	wg.Wait()

	// Every caller lands on the same recorded outcome.
	winner := results[0]
	require.NotNil(t, winner)
	for i := 0; i < 10; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, winner.ID, results[i].ID)
		require.Equal(t, winner.Reason, results[i].Reason)
	}
	require.Equal(t, "print(1)", winner.Code)
	require.Equal(t, model.GradingStatusPending, winner.GradingStatus)

	// Exactly one submission recorded, exactly one grading job enqueued.
	env.store.mu.Lock()
	require.Len(t, env.store.submissions, 1)
	env.store.mu.Unlock()

	queued, err := env.rdb.LLen(ctx, config.WorkerKey.GradingQueue).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), queued)
}

func TestSubmitManualAfterRaceReturnsExistingOutcome(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.addSession(t, model.ModalityExplanation, 30)
	env.store.mu.Lock()
	env.store.questions[session.ID] = append(env.store.questions[session.ID], model.Question{
		ID: uuid.New(), SessionID: session.ID, QuestionText: "Explain GC", QuestionType: model.QuestionTypeExplanation,
	})
	env.store.mu.Unlock()

	state := env.assignAndStart(t, 1, session.ID)

	attempt, err := env.store.GetByID(ctx, state.AttemptID)
	require.NoError(t, err)
	first, err := env.coordinator.Finalize(ctx, attempt, nil, model.ReasonExpired)
	require.NoError(t, err)

	// The candidate's submit arrives after the timer already won.
	second, err := env.attempts.SubmitManual(ctx, 1, nil)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, model.ReasonExpired, second.Reason)
}

func TestVerifyInProgressRejectsExpiredClock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.addSession(t, model.ModalityMCQ, 30)
	env.addMCQ(t, session.ID, "A")

	env.assignAndStart(t, 1, session.ID)

	_, err := env.attempts.VerifyInProgress(ctx, 1)
	require.NoError(t, err)

	env.attempts.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	_, err = env.attempts.VerifyInProgress(ctx, 1)
	require.ErrorIs(t, err, ErrInvalidState)
}

// TestLifecycleNeverRegressesUnderRandomSequences hammers one attempt with
// random start/observe/submit/finalize interleavings, including a clock jump
// past the deadline, and checks the invariants that must hold under any
// ordering: the status only ever moves forward, and at most one submission
// with one frozen reason is ever recorded.
func TestLifecycleNeverRegressesUnderRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 25; round++ {
		env := newTestEnv(t)
		ctx := context.Background()
		session := env.addSession(t, model.ModalityMCQ, 30)
		env.addMCQ(t, session.ID, "A")

		created, err := env.attempts.Assign(ctx, 1, session.ID)
		require.NoError(t, err)

		rank := statusRank(model.AttemptStatusNotStarted)
		var frozenReason model.FinalizeReason
		var frozenSubID uuid.UUID

		for step := 0; step < 40; step++ {
			var opErr error
			switch rng.Intn(5) {
			case 0:
				_, opErr = env.attempts.Start(ctx, 1)
			case 1:
				_, opErr = env.attempts.Observe(ctx, 1)
			case 2:
				_, opErr = env.attempts.SubmitManual(ctx, 1, nil)
			case 3:
				stale, gerr := env.store.GetByID(ctx, created.ID)
				require.NoError(t, gerr)
				_, opErr = env.coordinator.Finalize(ctx, stale, nil, model.ReasonExpired)
			case 4:
				// Time only moves forward; the next observe forces expiry.
				env.attempts.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
			}
			if opErr != nil && !errors.Is(opErr, ErrInvalidState) && !errors.Is(opErr, ErrAlreadyCompleted) {
				t.Fatalf("round %d step %d: unexpected error: %v", round, step, opErr)
			}

			attempt, gerr := env.store.GetByID(ctx, created.ID)
			require.NoError(t, gerr)
			next := statusRank(attempt.Status)
			require.GreaterOrEqual(t, next, rank, "round %d step %d: status regressed", round, step)
			rank = next

			env.store.mu.Lock()
			sub, recorded := env.store.submissions[created.ID]
			env.store.mu.Unlock()
			require.Equal(t, attempt.Finalized, recorded, "finalize and submission must appear together")
			if recorded {
				if frozenSubID == uuid.Nil {
					frozenReason = sub.Reason
					frozenSubID = sub.ID
				}
				require.Equal(t, frozenSubID, sub.ID, "round %d: submission replaced after finalize", round)
				require.Equal(t, frozenReason, sub.Reason, "round %d: reason rewritten after finalize", round)
			}
		}
	}
}

func statusRank(s model.AttemptStatus) int {
	switch s {
	case model.AttemptStatusNotStarted:
		return 0
	case model.AttemptStatusInProgress:
		return 1
	case model.AttemptStatusCompleted:
		return 2
	}
	return -1
}

func TestGradingStatusRequiresFinalizedAttempt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.addSession(t, model.ModalityCoding, 30)
	env.addProgram(t, session.ID, "FizzBuzz")

	state := env.assignAndStart(t, 1, session.ID)

	_, err := env.attempts.GradingStatus(ctx, 1)
	require.ErrorIs(t, err, ErrInvalidState)

	sub, err := env.attempts.SubmitManual(ctx, 1, &model.SubmissionPayload{Code: "print(1)", Language: "python"})
	require.NoError(t, err)

	status, err := env.attempts.GradingStatus(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, sub.ID, status.ID)
	require.Equal(t, model.GradingStatusPending, status.GradingStatus)
	require.Equal(t, state.AttemptID, status.AttemptID)
}
