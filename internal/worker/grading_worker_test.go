package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/assessly/assessly-backend/internal/config"
	"github.com/assessly/assessly-backend/internal/evaluator"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/sandbox"
	"github.com/assessly/assessly-backend/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeGradingStore backs all three grading store interfaces in memory.
type fakeGradingStore struct {
	mu          sync.Mutex
	submissions map[uuid.UUID]*model.Submission
	attempts    map[uuid.UUID]*model.Attempt
	programs    map[uuid.UUID]*model.Program
	cases       map[uuid.UUID][]model.ProgramTestCase
}

func newFakeGradingStore() *fakeGradingStore {
	return &fakeGradingStore{
		submissions: make(map[uuid.UUID]*model.Submission),
		attempts:    make(map[uuid.UUID]*model.Attempt),
		programs:    make(map[uuid.UUID]*model.Program),
		cases:       make(map[uuid.UUID][]model.ProgramTestCase),
	}
}

func (f *fakeGradingStore) GetByID(_ context.Context, id uuid.UUID) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.submissions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *s
	return &clone, nil
}

func (f *fakeGradingStore) MarkRunning(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.submissions[id]
	if !ok || (s.GradingStatus != model.GradingStatusPending) {
		return pgx.ErrNoRows
	}
	s.GradingStatus = model.GradingStatusRunning
	return nil
}

func (f *fakeGradingStore) SetTestResults(_ context.Context, id uuid.UUID, report json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.submissions[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if len(s.TestResults) == 0 {
		s.TestResults = report
	}
	return nil
}

func (f *fakeGradingStore) SetEvaluation(_ context.Context, id uuid.UUID, evaluation json.RawMessage, status model.GradingStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.submissions[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if len(s.AIEvaluation) == 0 {
		s.AIEvaluation = evaluation
	}
	s.GradingStatus = status
	return nil
}

func (f *fakeGradingStore) ResetStuckRunning(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, s := range f.submissions {
		if s.GradingStatus == model.GradingStatusRunning {
			s.GradingStatus = model.GradingStatusPending
			n++
		}
	}
	return n, nil
}

func (f *fakeGradingStore) ListUnfinishedGrading(_ context.Context) ([]model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Submission
	for _, s := range f.submissions {
		if s.GradingStatus == model.GradingStatusPending || s.GradingStatus == model.GradingStatusRunning {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeGradingStore) GetAttemptByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *a
	return &clone, nil
}

func (f *fakeGradingStore) SetFinalScore(_ context.Context, id uuid.UUID, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.FinalScore = &score
	return nil
}

// attemptView narrows fakeGradingStore to GradingAttemptStore, since its
// GetByID collides with the submission one.
type attemptView struct{ *fakeGradingStore }

func (v attemptView) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return v.fakeGradingStore.GetAttemptByID(ctx, id)
}

type programView struct{ *fakeGradingStore }

func (v programView) GetByID(_ context.Context, id uuid.UUID) (*model.Program, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.programs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *p
	return &clone, nil
}

func (v programView) ListTestCases(_ context.Context, programID uuid.UUID) ([]model.ProgramTestCase, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]model.ProgramTestCase(nil), v.cases[programID]...), nil
}

// fakeExecutor replays scripted results and records every call. A nil entry
// simulates a sandbox outage.
type fakeExecutor struct {
	mu      sync.Mutex
	results []*sandbox.ExecutionResult
	calls   int
}

func (e *fakeExecutor) Execute(_ context.Context, _, _, _ string) (*sandbox.ExecutionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.calls
	e.calls++
	if idx >= len(e.results) || e.results[idx] == nil {
		return nil, errors.New("sandbox: connection refused")
	}
	return e.results[idx], nil
}

func (e *fakeExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeEvaluator struct {
	evaluation *evaluator.Evaluation
	err        error
	calls      int
}

func (e *fakeEvaluator) Evaluate(_ context.Context, _ evaluator.Input) (*evaluator.Evaluation, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.evaluation, nil
}

func echoResult(stdout string) *sandbox.ExecutionResult {
	return &sandbox.ExecutionResult{Stdout: stdout, ExitStatus: 0}
}

func newGradingWorker(t *testing.T, store *fakeGradingStore, exec sandbox.Executor, eval evaluator.Evaluator) (*GradingWorker, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{SandboxCallDelay: 0}
	w := NewGradingWorker(store, attemptView{store}, programView{store}, exec, eval, rdb, cfg, zerolog.Nop())
	return w, rdb, mr
}

func seedCodingSubmission(store *fakeGradingStore, code string, cases []model.ProgramTestCase) (*model.Submission, *model.Attempt) {
	programID := uuid.New()
	store.programs[programID] = &model.Program{
		ID:        programID,
		Title:     "Echo",
		Statement: "Echo stdin to stdout.",
		Language:  "python",
	}
	for i := range cases {
		cases[i].ProgramID = programID
	}
	store.cases[programID] = cases

	attempt := &model.Attempt{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		Status:    model.AttemptStatusCompleted,
		Finalized: true,
		ProgramID: &programID,
	}
	store.attempts[attempt.ID] = attempt

	sub := &model.Submission{
		ID:            uuid.New(),
		AttemptID:     attempt.ID,
		Modality:      model.ModalityCoding,
		Code:          code,
		Language:      "python",
		GradingStatus: model.GradingStatusPending,
		CreatedAt:     time.Now(),
	}
	store.submissions[sub.ID] = sub
	return sub, attempt
}

func TestProcessEvaluatorScoreWins(t *testing.T) {
	store := newFakeGradingStore()
	sub, attempt := seedCodingSubmission(store, "print(input())", []model.ProgramTestCase{
		{Stdin: "a", ExpectedStdout: "a", OrderNum: 1},
		{Stdin: "b", ExpectedStdout: "b", OrderNum: 2},
		{Stdin: "c", ExpectedStdout: "WRONG", OrderNum: 3},
	})
	exec := &fakeExecutor{results: []*sandbox.ExecutionResult{
		echoResult("a"), echoResult("b"), echoResult("c"),
	}}
	eval := &fakeEvaluator{evaluation: &evaluator.Evaluation{
		OverallScore: 85, Correctness: 67, CodeQuality: 90, Summary: "solid",
	}}
	w, _, _ := newGradingWorker(t, store, exec, eval)

	err := w.Process(context.Background(), service.GradingJob{
		SubmissionID: sub.ID.String(), AttemptID: attempt.ID.String(),
	})
	require.NoError(t, err)
	require.Equal(t, 3, exec.callCount())

	graded, err := store.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, model.GradingStatusCompleted, graded.GradingStatus)

	var report model.TestRunReport
	require.NoError(t, json.Unmarshal(graded.TestResults, &report))
	require.Equal(t, 2, report.Passed)
	require.Equal(t, 3, report.Total)
	require.Equal(t, 67, report.Score, "pass rate rounds half up, not truncates")
	require.Empty(t, report.InfraError)

	var verdict evaluator.Evaluation
	require.NoError(t, json.Unmarshal(graded.AIEvaluation, &verdict))
	require.False(t, verdict.Fallback)

	// The qualitative overall score, not the raw test score, becomes final.
	final := store.attempts[attempt.ID].FinalScore
	require.NotNil(t, final)
	require.Equal(t, float64(85), *final)
}

func TestProcessFallsBackWhenEvaluatorFails(t *testing.T) {
	store := newFakeGradingStore()
	sub, attempt := seedCodingSubmission(store, "print(input())", []model.ProgramTestCase{
		{Stdin: "a", ExpectedStdout: "a", OrderNum: 1},
		{Stdin: "b", ExpectedStdout: "WRONG", OrderNum: 2},
	})
	exec := &fakeExecutor{results: []*sandbox.ExecutionResult{
		echoResult("a"), echoResult("b"),
	}}
	eval := &fakeEvaluator{err: errors.New("rate limited")}
	w, _, _ := newGradingWorker(t, store, exec, eval)

	err := w.Process(context.Background(), service.GradingJob{
		SubmissionID: sub.ID.String(), AttemptID: attempt.ID.String(),
	})
	require.NoError(t, err)

	graded, _ := store.GetByID(context.Background(), sub.ID)
	require.Equal(t, model.GradingStatusCompleted, graded.GradingStatus)

	var verdict evaluator.Evaluation
	require.NoError(t, json.Unmarshal(graded.AIEvaluation, &verdict))
	require.True(t, verdict.Fallback)
	require.Equal(t, 50, verdict.OverallScore)

	final := store.attempts[attempt.ID].FinalScore
	require.NotNil(t, final)
	require.Equal(t, float64(50), *final)
}

func TestRunAbortsOnSandboxFailure(t *testing.T) {
	store := newFakeGradingStore()
	sub, attempt := seedCodingSubmission(store, "print(input())", []model.ProgramTestCase{
		{Stdin: "a", ExpectedStdout: "a", OrderNum: 1},
		{Stdin: "b", ExpectedStdout: "b", OrderNum: 2},
		{Stdin: "c", ExpectedStdout: "c", OrderNum: 3},
		{Stdin: "d", ExpectedStdout: "d", OrderNum: 4},
	})
	// First case passes, second call hits an outage; the rest never run.
	exec := &fakeExecutor{results: []*sandbox.ExecutionResult{echoResult("a"), nil}}
	// A configured evaluator must still be bypassed after the outage.
	eval := &fakeEvaluator{evaluation: &evaluator.Evaluation{OverallScore: 85, Summary: "solid"}}
	w, _, _ := newGradingWorker(t, store, exec, eval)

	err := w.Process(context.Background(), service.GradingJob{
		SubmissionID: sub.ID.String(), AttemptID: attempt.ID.String(),
	})
	require.NoError(t, err)
	require.Equal(t, 2, exec.callCount())
	require.Zero(t, eval.calls, "qualitative evaluation must not run after an infrastructure failure")

	graded, _ := store.GetByID(context.Background(), sub.ID)
	require.Equal(t, model.GradingStatusFailed, graded.GradingStatus)

	var report model.TestRunReport
	require.NoError(t, json.Unmarshal(graded.TestResults, &report))
	require.Equal(t, 1, report.Passed)
	require.Equal(t, 4, report.Total)
	require.Zero(t, report.Score, "an interrupted run is terminal at zero, partial passes do not count")
	require.NotEmpty(t, report.InfraError)
	require.Len(t, report.Cases, 4)
	require.True(t, report.Cases[0].Passed)
	require.Contains(t, report.Cases[1].Error, "sandbox failure")
	require.Equal(t, "not executed: sandbox unavailable", report.Cases[2].Error)
	require.Equal(t, "not executed: sandbox unavailable", report.Cases[3].Error)

	var verdict evaluator.Evaluation
	require.NoError(t, json.Unmarshal(graded.AIEvaluation, &verdict))
	require.True(t, verdict.Fallback)
	require.Zero(t, verdict.OverallScore)

	final := store.attempts[attempt.ID].FinalScore
	require.NotNil(t, final)
	require.Zero(t, *final)
}

func TestProcessSkipsAlreadyClaimed(t *testing.T) {
	store := newFakeGradingStore()
	sub, attempt := seedCodingSubmission(store, "print(1)", []model.ProgramTestCase{
		{Stdin: "", ExpectedStdout: "1", OrderNum: 1},
	})
	store.submissions[sub.ID].GradingStatus = model.GradingStatusCompleted

	exec := &fakeExecutor{}
	w, _, _ := newGradingWorker(t, store, exec, nil)

	err := w.Process(context.Background(), service.GradingJob{
		SubmissionID: sub.ID.String(), AttemptID: attempt.ID.String(),
	})
	require.NoError(t, err)
	require.Zero(t, exec.callCount())
}

func TestProcessDropsMalformedJob(t *testing.T) {
	w, _, _ := newGradingWorker(t, newFakeGradingStore(), &fakeExecutor{}, nil)
	err := w.Process(context.Background(), service.GradingJob{SubmissionID: "not-a-uuid"})
	require.NoError(t, err)
}

func TestStageResultsReusesPersistedReport(t *testing.T) {
	store := newFakeGradingStore()
	sub, attempt := seedCodingSubmission(store, "print(input())", []model.ProgramTestCase{
		{Stdin: "a", ExpectedStdout: "a", OrderNum: 1},
	})
	// A previous interrupted run already finished Stage A.
	persisted, _ := json.Marshal(model.TestRunReport{Score: 100, Passed: 1, Total: 1, FinishedAt: time.Now()})
	store.submissions[sub.ID].TestResults = persisted

	exec := &fakeExecutor{}
	w, _, _ := newGradingWorker(t, store, exec, nil)

	err := w.Process(context.Background(), service.GradingJob{
		SubmissionID: sub.ID.String(), AttemptID: attempt.ID.String(),
	})
	require.NoError(t, err)
	require.Zero(t, exec.callCount(), "persisted report must short-circuit test execution")

	final := store.attempts[attempt.ID].FinalScore
	require.NotNil(t, final)
	require.Equal(t, float64(100), *final)
}

func TestRecoverResetsAndRequeues(t *testing.T) {
	store := newFakeGradingStore()
	pending, _ := seedCodingSubmission(store, "a", []model.ProgramTestCase{{Stdin: "", ExpectedStdout: "a", OrderNum: 1}})
	stuck, _ := seedCodingSubmission(store, "b", []model.ProgramTestCase{{Stdin: "", ExpectedStdout: "b", OrderNum: 1}})
	store.submissions[stuck.ID].GradingStatus = model.GradingStatusRunning

	w, rdb, _ := newGradingWorker(t, store, &fakeExecutor{}, nil)
	require.NoError(t, w.Recover(context.Background()))

	require.Equal(t, model.GradingStatusPending, store.submissions[stuck.ID].GradingStatus)
	require.Equal(t, model.GradingStatusPending, store.submissions[pending.ID].GradingStatus)

	queued, err := rdb.LLen(context.Background(), config.WorkerKey.GradingQueue).Result()
	require.NoError(t, err)
	require.Equal(t, int64(2), queued)
}
