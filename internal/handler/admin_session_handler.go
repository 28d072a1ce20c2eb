package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/assessly/assessly-backend/internal/middleware"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/response"
	"github.com/assessly/assessly-backend/internal/service"
	"github.com/assessly/assessly-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// AdminSessionHandler handles session authoring and reporting endpoints.
type AdminSessionHandler struct {
	sessionService *service.TestSessionService
	attemptService *service.AttemptService
}

// NewAdminSessionHandler creates a new AdminSessionHandler.
func NewAdminSessionHandler(sessionService *service.TestSessionService, attemptService *service.AttemptService) *AdminSessionHandler {
	return &AdminSessionHandler{
		sessionService: sessionService,
		attemptService: attemptService,
	}
}

// CreateSession godoc
// POST /api/v1/admin/sessions
func (h *AdminSessionHandler) CreateSession(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.CreateTestSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.sessionService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": session})
}

// ListSessions godoc
// GET /api/v1/admin/sessions
func (h *AdminSessionHandler) ListSessions(c *gin.Context) {
	sessions, err := h.sessionService.List(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// GetSession godoc
// GET /api/v1/admin/sessions/:id
func (h *AdminSessionHandler) GetSession(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	session, err := h.sessionService.Get(c.Request.Context(), id)
	if err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// UpdateSession godoc
// PUT /api/v1/admin/sessions/:id
// Rejected with SESSION_LOCKED once any candidate has started an attempt.
func (h *AdminSessionHandler) UpdateSession(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req model.UpdateTestSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.sessionService.Update(c.Request.Context(), id, &req)
	if err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// PublishSession godoc
// POST /api/v1/admin/sessions/:id/publish
func (h *AdminSessionHandler) PublishSession(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	session, err := h.sessionService.Publish(c.Request.Context(), id)
	if err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// ArchiveSession godoc
// POST /api/v1/admin/sessions/:id/archive
func (h *AdminSessionHandler) ArchiveSession(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.sessionService.Archive(c.Request.Context(), id); err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// AttachProgram godoc
// POST /api/v1/admin/sessions/:id/programs/:programId
// Adds a program to a coding session's rotation pool.
func (h *AdminSessionHandler) AttachProgram(c *gin.Context) {
	sessionID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	programID, ok := parseUUIDParam(c, "programId")
	if !ok {
		return
	}

	if err := h.sessionService.AttachProgram(c.Request.Context(), sessionID, programID); err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// AddQuestion godoc
// POST /api/v1/admin/sessions/:id/questions
func (h *AdminSessionHandler) AddQuestion(c *gin.Context) {
	sessionID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question, err := h.sessionService.AddQuestion(c.Request.Context(), sessionID, &req)
	if err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"question": question})
}

// ListQuestions godoc
// GET /api/v1/admin/sessions/:id/questions
// Includes answer keys; admin only.
func (h *AdminSessionHandler) ListQuestions(c *gin.Context) {
	sessionID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	questions, err := h.sessionService.ListQuestions(c.Request.Context(), sessionID)
	if err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// AssignCandidate godoc
// POST /api/v1/admin/sessions/:id/assign
func (h *AdminSessionHandler) AssignCandidate(c *gin.Context) {
	sessionID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req model.AssignCandidateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.Assign(c.Request.Context(), req.CandidateID, sessionID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"attempt": attempt})
}

// GetResults godoc
// GET /api/v1/admin/sessions/:id/results?page=1&per_page=20
func (h *AdminSessionHandler) GetResults(c *gin.Context) {
	sessionID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	results, total, err := h.sessionService.Results(c.Request.Context(), sessionID, page, perPage)
	if err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"results": results,
		"pagination": gin.H{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}

// failSessionError maps session service errors onto API error codes.
func failSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrSessionLocked):
		response.Fail(c, http.StatusConflict, response.ErrSessionLocked)
	case errors.Is(err, service.ErrInvalidState):
		response.Fail(c, http.StatusConflict, response.ErrInvalidState)
	case errors.Is(err, service.ErrNoContent):
		response.Fail(c, http.StatusConflict, response.ErrNoContent)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
