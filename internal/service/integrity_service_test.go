package service

import (
	"context"
	"testing"
	"time"

	"github.com/assessly/assessly-backend/internal/config"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newIntegrityService(env *testEnv) *IntegrityService {
	cfg := &config.Config{
		IntegrityDebounce:  time.Second,
		IntegrityMaxStrike: 2,
	}
	return NewIntegrityService(env.store, env.coordinator, env.rdb, cfg, zerolog.Nop())
}

func TestTwoStrikesTerminate(t *testing.T) {
	env := newTestEnv(t)
	svc := newIntegrityService(env)
	ctx := context.Background()

	session := env.addSession(t, model.ModalityMCQ, 30)
	q := env.addMCQ(t, session.ID, "A")
	state := env.assignAndStart(t, 1, session.ID)
	require.NoError(t, env.drafts.SaveEntry(ctx, 1, state.AttemptID, q.ID.String(), "A"))

	attempt, err := env.store.GetByID(ctx, state.AttemptID)
	require.NoError(t, err)

	first, err := svc.ReportViolation(ctx, attempt, "tab_switch", "")
	require.NoError(t, err)
	require.True(t, first.Warned)
	require.False(t, first.Terminated)
	require.Equal(t, 1, first.Strikes)

	// Let the debounce window lapse before the next distinct violation.
	env.mr.FastForward(2 * time.Second)

	attempt, err = env.store.GetByID(ctx, state.AttemptID)
	require.NoError(t, err)
	second, err := svc.ReportViolation(ctx, attempt, "window_blur", "")
	require.NoError(t, err)
	require.True(t, second.Terminated)
	require.Equal(t, 2, second.Strikes)
	require.NotNil(t, second.Submission)
	require.Equal(t, model.ReasonIntegrityViolation, second.Submission.Reason)

	// The attempt reached its frozen final state with the draft scored.
	final, err := env.store.GetByID(ctx, state.AttemptID)
	require.NoError(t, err)
	require.True(t, final.Finalized)
	require.Equal(t, model.AttemptStatusCompleted, final.Status)
	require.NotNil(t, final.FinalScore)
	require.Equal(t, float64(100), *final.FinalScore)
}

func TestBurstWithinDebounceCountsOnce(t *testing.T) {
	env := newTestEnv(t)
	svc := newIntegrityService(env)
	ctx := context.Background()

	session := env.addSession(t, model.ModalityMCQ, 30)
	env.addMCQ(t, session.ID, "A")
	state := env.assignAndStart(t, 1, session.ID)

	attempt, err := env.store.GetByID(ctx, state.AttemptID)
	require.NoError(t, err)

	// An alt-tab fires blur + visibility change nearly simultaneously.
	first, err := svc.ReportViolation(ctx, attempt, "window_blur", "")
	require.NoError(t, err)
	require.True(t, first.Warned)
	require.Equal(t, 1, first.Strikes)

	attempt, err = env.store.GetByID(ctx, state.AttemptID)
	require.NoError(t, err)
	second, err := svc.ReportViolation(ctx, attempt, "visibility_change", "")
	require.NoError(t, err)
	require.True(t, second.Debounced)
	require.False(t, second.Terminated)
	require.Equal(t, 1, second.Strikes)

	// Debounced or not, every report lands on the audit queue.
	queued, err := env.rdb.LLen(ctx, config.WorkerKey.PersistIntegrityQueue).Result()
	require.NoError(t, err)
	require.Equal(t, int64(2), queued)

	live, err := env.store.GetByID(ctx, state.AttemptID)
	require.NoError(t, err)
	require.False(t, live.Finalized)
	require.Equal(t, 1, live.IntegrityStrikes)
}

func TestReportViolationRejectsFinishedAttempt(t *testing.T) {
	env := newTestEnv(t)
	svc := newIntegrityService(env)
	ctx := context.Background()

	session := env.addSession(t, model.ModalityMCQ, 30)
	env.addMCQ(t, session.ID, "A")
	state := env.assignAndStart(t, 1, session.ID)

	_, err := env.attempts.SubmitManual(ctx, 1, nil)
	require.NoError(t, err)

	attempt, err := env.store.GetByID(ctx, state.AttemptID)
	require.NoError(t, err)
	_, err = svc.ReportViolation(ctx, attempt, "tab_switch", "")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestStrikeRaceWithFinalize(t *testing.T) {
	env := newTestEnv(t)
	svc := newIntegrityService(env)
	ctx := context.Background()

	session := env.addSession(t, model.ModalityMCQ, 30)
	env.addMCQ(t, session.ID, "A")
	state := env.assignAndStart(t, 1, session.ID)

	// Handler read the attempt while it was live, finalize won in between.
	stale, err := env.store.GetByID(ctx, state.AttemptID)
	require.NoError(t, err)
	_, err = env.attempts.SubmitManual(ctx, 1, nil)
	require.NoError(t, err)

	_, err = svc.ReportViolation(ctx, stale, "tab_switch", "")
	require.ErrorIs(t, err, ErrInvalidState)
}
