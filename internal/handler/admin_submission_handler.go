package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/repository"
	"github.com/assessly/assessly-backend/internal/response"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// AdminSubmissionHandler exposes full submission detail for review,
// including hidden test output and the AI verdict.
type AdminSubmissionHandler struct {
	attempts    *repository.AttemptRepository
	submissions *repository.SubmissionRepository
}

// NewAdminSubmissionHandler creates a new AdminSubmissionHandler.
func NewAdminSubmissionHandler(attempts *repository.AttemptRepository, submissions *repository.SubmissionRepository) *AdminSubmissionHandler {
	return &AdminSubmissionHandler{
		attempts:    attempts,
		submissions: submissions,
	}
}

// GetAttemptSubmission godoc
// GET /api/v1/admin/attempts/:id/submission
func (h *AdminSubmissionHandler) GetAttemptSubmission(c *gin.Context) {
	attemptID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	attempt, err := h.attempts.GetByID(c.Request.Context(), attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	submission, err := h.submissions.GetByAttempt(c.Request.Context(), attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	body := gin.H{
		"attempt":    attempt,
		"submission": submission,
	}
	if code := gradingProblem(submission); code != "" {
		body["grading_error"] = gin.H{
			"code":    code,
			"message": response.GetMessage(code),
		}
	}
	response.Success(c, http.StatusOK, body)
}

// gradingProblem maps a submission's grading outcome to the error code shown
// to reviewers. Empty when grading went through normally.
func gradingProblem(sub *model.Submission) response.ErrCode {
	switch sub.GradingStatus {
	case model.GradingStatusFailed:
		return response.ErrExecutionInfraFailure
	case model.GradingStatusCompleted:
		var verdict struct {
			Fallback bool `json:"fallback"`
		}
		if json.Unmarshal(sub.AIEvaluation, &verdict) == nil && verdict.Fallback {
			return response.ErrEvaluationUnavailable
		}
	}
	return ""
}
