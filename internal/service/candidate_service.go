package service

import (
	"context"
	"fmt"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/repository"
	"github.com/rs/zerolog"
)

// CandidateService handles admin-side candidate management.
type CandidateService struct {
	candidates *repository.CandidateRepository
	auth       *AuthService
	log        zerolog.Logger
}

// NewCandidateService creates a new CandidateService.
func NewCandidateService(candidates *repository.CandidateRepository, auth *AuthService, log zerolog.Logger) *CandidateService {
	return &CandidateService{
		candidates: candidates,
		auth:       auth,
		log:        log.With().Str("component", "candidate_service").Logger(),
	}
}

// Create registers a candidate account.
func (s *CandidateService) Create(ctx context.Context, req *model.CreateCandidateRequest) (*model.Candidate, error) {
	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	candidate := &model.Candidate{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
	}
	if err := s.candidates.Create(ctx, candidate); err != nil {
		return nil, fmt.Errorf("create candidate: %w", err)
	}
	return candidate, nil
}

// List returns all candidates.
func (s *CandidateService) List(ctx context.Context) ([]model.Candidate, error) {
	return s.candidates.List(ctx)
}

// Get returns a candidate by ID.
func (s *CandidateService) Get(ctx context.Context, id int) (*model.Candidate, error) {
	return s.candidates.GetByID(ctx, id)
}
