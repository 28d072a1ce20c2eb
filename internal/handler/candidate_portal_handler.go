package handler

import (
	"errors"
	"net/http"

	"github.com/assessly/assessly-backend/internal/middleware"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/response"
	"github.com/assessly/assessly-backend/internal/service"
	"github.com/assessly/assessly-backend/internal/validator"
	"github.com/gin-gonic/gin"
)

// CandidatePortalHandler exposes the candidate-facing attempt lifecycle:
// observe, start, draft autosave, integrity reporting and submission.
type CandidatePortalHandler struct {
	attemptService   *service.AttemptService
	integrityService *service.IntegrityService
	draftService     *service.DraftService
}

// NewCandidatePortalHandler creates a new CandidatePortalHandler.
func NewCandidatePortalHandler(
	attemptService *service.AttemptService,
	integrityService *service.IntegrityService,
	draftService *service.DraftService,
) *CandidatePortalHandler {
	return &CandidatePortalHandler{
		attemptService:   attemptService,
		integrityService: integrityService,
		draftService:     draftService,
	}
}

// GetAttempt godoc
// GET /api/v1/portal/attempt
// Returns the candidate's current attempt state. Observing an expired
// in-progress attempt finalizes it first.
func (h *CandidatePortalHandler) GetAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)

	state, err := h.attemptService.Observe(c.Request.Context(), claims.UserID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": state})
}

// StartAttempt godoc
// POST /api/v1/portal/attempt/start
// Transitions the assigned attempt to IN_PROGRESS and returns its content.
func (h *CandidatePortalHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)

	state, err := h.attemptService.Start(c.Request.Context(), claims.UserID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": state})
}

type draftRequest struct {
	ItemID  string            `json:"item_id" binding:"omitempty,max=64"`
	Answer  string            `json:"answer" binding:"omitempty,max=262144"`
	Entries map[string]string `json:"entries" binding:"omitempty"`
}

// SaveDraft godoc
// PUT /api/v1/portal/attempt/draft
// Saves either a single entry or a full draft map. HTTP fallback for clients
// without a WebSocket connection.
func (h *CandidatePortalHandler) SaveDraft(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req draftRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.VerifyInProgress(c.Request.Context(), claims.UserID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	if req.ItemID != "" {
		err = h.draftService.SaveEntry(c.Request.Context(), claims.UserID, attempt.ID, req.ItemID, req.Answer)
	} else {
		err = h.draftService.SaveAll(c.Request.Context(), claims.UserID, attempt.ID, req.Entries)
	}
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// SubmitAttempt godoc
// POST /api/v1/portal/attempt/submit
// Finalizes the attempt. Body fields are optional; anything missing is
// recovered from the persisted draft.
func (h *CandidatePortalHandler) SubmitAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.SubmitManualRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	payload := &model.SubmissionPayload{
		Code:     req.Code,
		Language: req.Language,
		Answers:  req.Answers,
	}

	submission, err := h.attemptService.SubmitManual(c.Request.Context(), claims.UserID, payload)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"submission": gin.H{
			"id":             submission.ID,
			"grading_status": submission.GradingStatus,
			"reason":         submission.Reason,
		},
	})
}

type integrityRequest struct {
	EventType string `json:"event_type" binding:"required,oneof=tab_switch window_blur visibility_change fullscreen_exit"`
	Detail    string `json:"detail" binding:"omitempty,max=4096"`
}

// ReportIntegrity godoc
// POST /api/v1/portal/attempt/integrity
// Reports a focus-loss event. The response tells the client whether this
// was a warning or a termination.
func (h *CandidatePortalHandler) ReportIntegrity(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req integrityRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.VerifyInProgress(c.Request.Context(), claims.UserID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	outcome, err := h.integrityService.ReportViolation(c.Request.Context(), attempt, req.EventType, req.Detail)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"integrity": outcome})
}

// GetGradingStatus godoc
// GET /api/v1/portal/attempt/grading
// Returns grading progress for the candidate's finalized attempt.
func (h *CandidatePortalHandler) GetGradingStatus(c *gin.Context) {
	claims := middleware.GetClaims(c)

	submission, err := h.attemptService.GradingStatus(c.Request.Context(), claims.UserID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"submission": gin.H{
			"id":             submission.ID,
			"grading_status": submission.GradingStatus,
			"ai_evaluation":  submission.AIEvaluation,
		},
	})
}

// failAttemptError maps service sentinel errors onto API error codes.
func failAttemptError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotAssigned):
		response.Fail(c, http.StatusNotFound, response.ErrNotAssigned)
	case errors.Is(err, service.ErrInvalidState):
		response.Fail(c, http.StatusConflict, response.ErrInvalidState)
	case errors.Is(err, service.ErrAlreadyCompleted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadyCompleted)
	case errors.Is(err, service.ErrAlreadyAssigned):
		response.Fail(c, http.StatusConflict, response.ErrConflict)
	case errors.Is(err, service.ErrSessionNotReady):
		response.Fail(c, http.StatusConflict, response.ErrSessionNotReady)
	case errors.Is(err, service.ErrNoContent):
		response.Fail(c, http.StatusConflict, response.ErrNoContent)
	case errors.Is(err, service.ErrSessionLocked):
		response.Fail(c, http.StatusConflict, response.ErrSessionLocked)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
