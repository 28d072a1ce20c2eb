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

// AdminProgramHandler handles coding program authoring endpoints.
type AdminProgramHandler struct {
	programService *service.ProgramService
}

// NewAdminProgramHandler creates a new AdminProgramHandler.
func NewAdminProgramHandler(programService *service.ProgramService) *AdminProgramHandler {
	return &AdminProgramHandler{programService: programService}
}

// CreateProgram godoc
// POST /api/v1/admin/programs
func (h *AdminProgramHandler) CreateProgram(c *gin.Context) {
	var req model.CreateProgramRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	program, err := h.programService.Create(c.Request.Context(), &req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"program": program})
}

// ListPrograms godoc
// GET /api/v1/admin/programs
func (h *AdminProgramHandler) ListPrograms(c *gin.Context) {
	programs, err := h.programService.List(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"programs": programs})
}

// GetProgram godoc
// GET /api/v1/admin/programs/:id
func (h *AdminProgramHandler) GetProgram(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	program, err := h.programService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"program": program})
}

// AddTestCase godoc
// POST /api/v1/admin/programs/:id/test-cases
func (h *AdminProgramHandler) AddTestCase(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req model.AddTestCaseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	tc, err := h.programService.AddTestCase(c.Request.Context(), id, &req)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"test_case": tc})
}

// ListTestCases godoc
// GET /api/v1/admin/programs/:id/test-cases
// Hidden test cases; admin only.
func (h *AdminProgramHandler) ListTestCases(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	cases, err := h.programService.ListTestCases(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test_cases": cases})
}
