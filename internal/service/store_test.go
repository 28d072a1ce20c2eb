package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// In-memory store fakes honouring the AttemptStore atomicity contracts, so
// the state machine and coordinator are exercised without PostgreSQL.

type fakeStore struct {
	mu          sync.Mutex
	attempts    map[uuid.UUID]*model.Attempt
	submissions map[uuid.UUID]*model.Submission // keyed by attempt ID
	sessions    map[uuid.UUID]*model.TestSession
	programs    map[uuid.UUID]*model.Program
	sessionPrgs map[uuid.UUID][]uuid.UUID
	questions   map[uuid.UUID][]model.Question
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		attempts:    make(map[uuid.UUID]*model.Attempt),
		submissions: make(map[uuid.UUID]*model.Submission),
		sessions:    make(map[uuid.UUID]*model.TestSession),
		programs:    make(map[uuid.UUID]*model.Program),
		sessionPrgs: make(map[uuid.UUID][]uuid.UUID),
		questions:   make(map[uuid.UUID][]model.Question),
	}
}

func (f *fakeStore) Create(_ context.Context, a *model.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.attempts {
		if existing.CandidateID == a.CandidateID && existing.Status != model.AttemptStatusCompleted {
			return pgx.ErrNoRows
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	clone := *a
	f.attempts[a.ID] = &clone
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *a
	return &clone, nil
}

func (f *fakeStore) GetActiveByCandidate(_ context.Context, candidateID int) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attempts {
		if a.CandidateID == candidateID && a.Status != model.AttemptStatusCompleted {
			clone := *a
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeStore) GetLatestByCandidate(_ context.Context, candidateID int) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *model.Attempt
	for _, a := range f.attempts {
		if a.CandidateID != candidateID {
			continue
		}
		if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	clone := *latest
	return &clone, nil
}

func (f *fakeStore) Start(_ context.Context, id uuid.UUID, durationMinutes int, programID *uuid.UUID) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok || a.Status != model.AttemptStatusNotStarted {
		return nil, pgx.ErrNoRows
	}
	now := time.Now()
	a.Status = model.AttemptStatusInProgress
	a.StartedAt = &now
	a.DurationMinutes = durationMinutes
	a.ProgramID = programID
	clone := *a
	return &clone, nil
}

func (f *fakeStore) IncrementStrikes(_ context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok || a.Status != model.AttemptStatusInProgress || a.Finalized {
		return 0, pgx.ErrNoRows
	}
	a.IntegrityStrikes++
	a.TabSwitchCount++
	return a.IntegrityStrikes, nil
}

func (f *fakeStore) Finalize(_ context.Context, id uuid.UUID, reason model.FinalizeReason, score *float64, sub *model.Submission) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if a.Finalized {
		return false, nil
	}
	a.Finalized = true
	a.Status = model.AttemptStatusCompleted
	a.FinalizeReason = reason
	if score != nil {
		a.FinalScore = score
	}
	now := time.Now()
	a.FinishedAt = &now

	sub.ID = uuid.New()
	sub.AttemptID = id
	sub.Reason = reason
	sub.TabSwitchCount = a.TabSwitchCount
	sub.CreatedAt = now
	clone := *sub
	f.submissions[id] = &clone
	return true, nil
}

func (f *fakeStore) SetFinalScore(_ context.Context, id uuid.UUID, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.FinalScore = &score
	return nil
}

func (f *fakeStore) getSession(_ context.Context, id uuid.UUID) (*model.TestSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *s
	return &clone, nil
}

func (f *fakeStore) ListProgramIDs(_ context.Context, sessionID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.sessionPrgs[sessionID]...), nil
}

type fakeSessionStore struct{ *fakeStore }

func (f fakeSessionStore) GetByID(ctx context.Context, id uuid.UUID) (*model.TestSession, error) {
	return f.fakeStore.getSession(ctx, id)
}

type fakeProgramStore struct{ *fakeStore }

func (f fakeProgramStore) GetByID(_ context.Context, id uuid.UUID) (*model.Program, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.programs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *p
	return &clone, nil
}

type fakeQuestionStore struct{ *fakeStore }

func (f fakeQuestionStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Question(nil), f.questions[sessionID]...), nil
}

func (f fakeQuestionStore) ListForCandidate(ctx context.Context, sessionID uuid.UUID) ([]model.QuestionForCandidate, error) {
	full, err := f.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]model.QuestionForCandidate, 0, len(full))
	for _, q := range full {
		out = append(out, model.QuestionForCandidate{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			QuestionType: q.QuestionType,
			Options:      q.Options,
			OrderNum:     q.OrderNum,
		})
	}
	return out, nil
}

type fakeSubmissionStore struct{ *fakeStore }

func (f fakeSubmissionStore) GetByAttempt(_ context.Context, attemptID uuid.UUID) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.submissions[attemptID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *s
	return &clone, nil
}

// testEnv wires the service graph over the fakes and a miniredis instance.
type testEnv struct {
	store       *fakeStore
	rdb         *redis.Client
	mr          *miniredis.Miniredis
	drafts      *DraftService
	coordinator *SubmissionCoordinator
	attempts    *AttemptService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := newFakeStore()
	log := zerolog.Nop()

	drafts := NewDraftService(rdb, log)
	coordinator := NewSubmissionCoordinator(
		store, fakeSubmissionStore{store}, fakeSessionStore{store}, fakeQuestionStore{store}, drafts, rdb, log)
	attempts := NewAttemptService(
		store, fakeSessionStore{store}, fakeProgramStore{store}, fakeQuestionStore{store},
		drafts, coordinator, rdb, log)

	return &testEnv{
		store:       store,
		rdb:         rdb,
		mr:          mr,
		drafts:      drafts,
		coordinator: coordinator,
		attempts:    attempts,
	}
}

func (e *testEnv) addSession(t *testing.T, modality model.Modality, durationMinutes int) *model.TestSession {
	t.Helper()
	session := &model.TestSession{
		ID:              uuid.New(),
		Name:            "Backend Screening",
		Modality:        modality,
		DurationMinutes: durationMinutes,
		Status:          model.SessionStatusPublished,
		CreatedAt:       time.Now(),
	}
	e.store.mu.Lock()
	e.store.sessions[session.ID] = session
	e.store.mu.Unlock()
	return session
}

func (e *testEnv) addProgram(t *testing.T, sessionID uuid.UUID, title string) *model.Program {
	t.Helper()
	program := &model.Program{
		ID:        uuid.New(),
		Title:     title,
		Statement: "Read stdin, write the answer to stdout.",
		Language:  "python",
	}
	e.store.mu.Lock()
	e.store.programs[program.ID] = program
	e.store.sessionPrgs[sessionID] = append(e.store.sessionPrgs[sessionID], program.ID)
	e.store.mu.Unlock()
	return program
}

func (e *testEnv) addMCQ(t *testing.T, sessionID uuid.UUID, correct string) *model.Question {
	t.Helper()
	q := &model.Question{
		ID:            uuid.New(),
		SessionID:     sessionID,
		QuestionText:  "Pick one",
		QuestionType:  model.QuestionTypeMultipleChoice,
		CorrectOption: correct,
	}
	e.store.mu.Lock()
	e.store.questions[sessionID] = append(e.store.questions[sessionID], *q)
	e.store.mu.Unlock()
	return q
}

func (e *testEnv) assignAndStart(t *testing.T, candidateID int, sessionID uuid.UUID) *model.AttemptState {
	t.Helper()
	_, err := e.attempts.Assign(context.Background(), candidateID, sessionID)
	require.NoError(t, err)
	state, err := e.attempts.Start(context.Background(), candidateID)
	require.NoError(t, err)
	return state
}
