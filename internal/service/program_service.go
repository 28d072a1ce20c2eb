package service

import (
	"context"
	"fmt"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ProgramService handles admin-side program authoring.
type ProgramService struct {
	programs *repository.ProgramRepository
	log      zerolog.Logger
}

// NewProgramService creates a new ProgramService.
func NewProgramService(programs *repository.ProgramRepository, log zerolog.Logger) *ProgramService {
	return &ProgramService{
		programs: programs,
		log:      log.With().Str("component", "program_service").Logger(),
	}
}

// Create creates a new coding program.
func (s *ProgramService) Create(ctx context.Context, req *model.CreateProgramRequest) (*model.Program, error) {
	program := &model.Program{
		Title:     req.Title,
		Statement: req.Statement,
		Language:  req.Language,
	}
	if err := s.programs.Create(ctx, program); err != nil {
		return nil, fmt.Errorf("create program: %w", err)
	}
	return program, nil
}

// Get returns a program by ID.
func (s *ProgramService) Get(ctx context.Context, id uuid.UUID) (*model.Program, error) {
	return s.programs.GetByID(ctx, id)
}

// List returns all programs.
func (s *ProgramService) List(ctx context.Context) ([]model.Program, error) {
	return s.programs.List(ctx)
}

// AddTestCase attaches a hidden test case to a program.
func (s *ProgramService) AddTestCase(ctx context.Context, programID uuid.UUID, req *model.AddTestCaseRequest) (*model.ProgramTestCase, error) {
	if _, err := s.programs.GetByID(ctx, programID); err != nil {
		return nil, err
	}
	tc := &model.ProgramTestCase{
		ProgramID:      programID,
		Stdin:          req.Stdin,
		ExpectedStdout: req.ExpectedStdout,
		OrderNum:       req.OrderNum,
	}
	if err := s.programs.AddTestCase(ctx, tc); err != nil {
		return nil, fmt.Errorf("add test case: %w", err)
	}
	return tc, nil
}

// ListTestCases returns a program's hidden test cases, ordered.
func (s *ProgramService) ListTestCases(ctx context.Context, programID uuid.UUID) ([]model.ProgramTestCase, error) {
	if _, err := s.programs.GetByID(ctx, programID); err != nil {
		return nil, err
	}
	return s.programs.ListTestCases(ctx, programID)
}
