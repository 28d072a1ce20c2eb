package handler

import (
	"errors"
	"net/http"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/response"
	"github.com/assessly/assessly-backend/internal/service"
	"github.com/assessly/assessly-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// AdminCandidateHandler handles candidate account management endpoints.
type AdminCandidateHandler struct {
	candidateService *service.CandidateService
}

// NewAdminCandidateHandler creates a new AdminCandidateHandler.
func NewAdminCandidateHandler(candidateService *service.CandidateService) *AdminCandidateHandler {
	return &AdminCandidateHandler{candidateService: candidateService}
}

// CreateCandidate godoc
// POST /api/v1/admin/candidates
func (h *AdminCandidateHandler) CreateCandidate(c *gin.Context) {
	var req model.CreateCandidateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	candidate, err := h.candidateService.Create(c.Request.Context(), &req)
	if err != nil {
		// Unique violation on email surfaces as a generic conflict.
		response.Fail(c, http.StatusConflict, response.ErrConflict)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"candidate": candidate})
}

// ListCandidates godoc
// GET /api/v1/admin/candidates
func (h *AdminCandidateHandler) ListCandidates(c *gin.Context) {
	candidates, err := h.candidateService.List(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"candidates": candidates})
}

// GetCandidate godoc
// GET /api/v1/admin/candidates/:id
func (h *AdminCandidateHandler) GetCandidate(c *gin.Context) {
	id, ok := parseIntParam(c, "id")
	if !ok {
		return
	}

	candidate, err := h.candidateService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"candidate": candidate})
}
