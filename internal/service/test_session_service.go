package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// TestSessionService handles admin-side session authoring and reporting.
type TestSessionService struct {
	sessions  *repository.TestSessionRepository
	attempts  *repository.AttemptRepository
	programs  *repository.ProgramRepository
	questions *repository.QuestionRepository
	log       zerolog.Logger
}

// NewTestSessionService creates a new TestSessionService.
func NewTestSessionService(
	sessions *repository.TestSessionRepository,
	attempts *repository.AttemptRepository,
	programs *repository.ProgramRepository,
	questions *repository.QuestionRepository,
	log zerolog.Logger,
) *TestSessionService {
	return &TestSessionService{
		sessions:  sessions,
		attempts:  attempts,
		programs:  programs,
		questions: questions,
		log:       log.With().Str("component", "test_session_service").Logger(),
	}
}

// Create creates a new session in DRAFT.
func (s *TestSessionService) Create(ctx context.Context, adminID int, req *model.CreateTestSessionRequest) (*model.TestSession, error) {
	session := &model.TestSession{
		Name:            req.Name,
		Modality:        model.Modality(req.Modality),
		DurationMinutes: req.DurationMinutes,
		Status:          model.SessionStatusDraft,
		CreatedBy:       adminID,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// Get returns a session by ID.
func (s *TestSessionService) Get(ctx context.Context, id uuid.UUID) (*model.TestSession, error) {
	return s.sessions.GetByID(ctx, id)
}

// List returns all sessions.
func (s *TestSessionService) List(ctx context.Context) ([]model.TestSession, error) {
	return s.sessions.List(ctx)
}

// Update edits a session's name or duration. Sessions with started attempts
// are locked: a duration change would silently move the deadline under
// candidates already racing the clock, and attempts snapshot the duration at
// start precisely so that cannot happen.
func (s *TestSessionService) Update(ctx context.Context, id uuid.UUID, req *model.UpdateTestSessionRequest) (*model.TestSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.ensureUnlocked(ctx, id); err != nil {
		return nil, err
	}

	if req.Name != "" {
		session.Name = req.Name
	}
	if req.DurationMinutes > 0 {
		session.DurationMinutes = req.DurationMinutes
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	return session, nil
}

// Publish moves a DRAFT session to PUBLISHED, making it assignable.
// Publishing requires the session to carry content for its modality.
func (s *TestSessionService) Publish(ctx context.Context, id uuid.UUID) (*model.TestSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionStatusDraft {
		return nil, ErrInvalidState
	}

	if session.Modality == model.ModalityCoding {
		ids, err := s.sessions.ListProgramIDs(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list programs: %w", err)
		}
		if len(ids) == 0 {
			return nil, ErrNoContent
		}
	} else {
		questions, err := s.questions.ListBySession(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list questions: %w", err)
		}
		if len(questions) == 0 {
			return nil, ErrNoContent
		}
	}

	if err := s.sessions.SetStatus(ctx, id, model.SessionStatusPublished); err != nil {
		return nil, fmt.Errorf("publish session: %w", err)
	}
	session.Status = model.SessionStatusPublished
	s.log.Info().Str("session_id", id.String()).Msg("Session published")
	return session, nil
}

// Archive retires a session. Archived sessions keep their results but accept
// no new assignments.
func (s *TestSessionService) Archive(ctx context.Context, id uuid.UUID) error {
	if _, err := s.sessions.GetByID(ctx, id); err != nil {
		return err
	}
	return s.sessions.SetStatus(ctx, id, model.SessionStatusArchived)
}

// AttachProgram links a program to a coding session's rotation pool.
func (s *TestSessionService) AttachProgram(ctx context.Context, sessionID, programID uuid.UUID) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Modality != model.ModalityCoding {
		return ErrInvalidState
	}
	if err := s.ensureUnlocked(ctx, sessionID); err != nil {
		return err
	}
	if _, err := s.programs.GetByID(ctx, programID); err != nil {
		return err
	}
	return s.sessions.AttachProgram(ctx, sessionID, programID)
}

// AddQuestion appends a question to an MCQ or explanation session.
func (s *TestSessionService) AddQuestion(ctx context.Context, sessionID uuid.UUID, req *model.AddQuestionRequest) (*model.Question, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Modality == model.ModalityCoding {
		return nil, ErrInvalidState
	}
	if err := s.ensureUnlocked(ctx, sessionID); err != nil {
		return nil, err
	}

	qType := model.QuestionType(req.QuestionType)
	if session.Modality == model.ModalityMCQ && qType != model.QuestionTypeMultipleChoice {
		return nil, ErrInvalidState
	}
	if qType == model.QuestionTypeMultipleChoice && (len(req.Options) == 0 || req.CorrectOption == "") {
		return nil, errors.New("multiple choice questions require options and a correct option")
	}

	question := &model.Question{
		SessionID:     sessionID,
		QuestionText:  req.QuestionText,
		QuestionType:  qType,
		Options:       req.Options,
		CorrectOption: req.CorrectOption,
		OrderNum:      req.OrderNum,
	}
	if err := s.questions.Add(ctx, question); err != nil {
		return nil, fmt.Errorf("add question: %w", err)
	}
	return question, nil
}

// ListQuestions returns a session's questions including answer keys.
func (s *TestSessionService) ListQuestions(ctx context.Context, sessionID uuid.UUID) ([]model.Question, error) {
	if _, err := s.sessions.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.questions.ListBySession(ctx, sessionID)
}

// Results returns the paginated per-candidate outcomes for a session.
func (s *TestSessionService) Results(ctx context.Context, sessionID uuid.UUID, page, perPage int) ([]repository.AttemptResult, int64, error) {
	if _, err := s.sessions.GetByID(ctx, sessionID); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return s.attempts.ListBySession(ctx, sessionID, page, perPage)
}

func (s *TestSessionService) ensureUnlocked(ctx context.Context, sessionID uuid.UUID) error {
	started, err := s.attempts.HasStartedAttempts(ctx, sessionID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("check started attempts: %w", err)
	}
	if started {
		return ErrSessionLocked
	}
	return nil
}
