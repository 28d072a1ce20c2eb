package handler

import (
	"net/http"
	"strconv"

	"github.com/assessly/assessly-backend/internal/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// parseIntParam reads an integer path parameter, failing the request with
// 400 INVALID_ID when malformed.
func parseIntParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}

// parseUUIDParam reads a UUID path parameter, failing the request with
// 400 INVALID_ID when malformed.
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
