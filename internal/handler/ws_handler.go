package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/assessly/assessly-backend/internal/clock"
	"github.com/assessly/assessly-backend/internal/middleware"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/service"
	ws "github.com/assessly/assessly-backend/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams the attempt over WebSocket: autosave, integrity
// reporting and submit without per-request HTTP overhead.
type WSHandler struct {
	attemptService   *service.AttemptService
	integrityService *service.IntegrityService
	draftService     *service.DraftService
	log              zerolog.Logger
	upgrader         websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	attemptService *service.AttemptService,
	integrityService *service.IntegrityService,
	draftService *service.DraftService,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		attemptService:   attemptService,
		integrityService: integrityService,
		draftService:     draftService,
		log:              log.With().Str("component", "ws_handler").Logger(),
		upgrader:         buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/portal/attempt/stream
// Upgrades to WebSocket for real-time autosave and integrity reporting.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	candidateID := claims.UserID

	// Verify the attempt before paying for the upgrade.
	if _, err := h.attemptService.VerifyInProgress(c.Request.Context(), candidateID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no attempt in progress"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Int("candidate_id", candidateID).Logger()
	wsLog.Info().Msg("Candidate connected")

	for {
		raw, err := ws.ReadRaw(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			ws.WriteError(conn, "malformed message")
			continue
		}

		// Every action revalidates the attempt: a finalize from another
		// trigger (timer, second strike) must immediately stop this stream
		// from accepting writes.
		attempt, err := h.attemptService.VerifyInProgress(context.Background(), candidateID)
		if err != nil {
			ws.WriteError(conn, "attempt is no longer in progress")
			break
		}

		switch envelope.Action {
		case ws.ActionAutosave:
			h.handleAutosave(conn, candidateID, attempt, raw)
		case ws.ActionIntegrity:
			h.handleIntegrity(conn, wsLog, attempt, raw)
		case ws.ActionSubmit:
			h.handleSubmit(conn, wsLog, candidateID)
			return
		case ws.ActionPing:
			h.handlePing(conn, attempt)
		default:
			ws.WriteError(conn, "unknown action")
		}
	}
}

func (h *WSHandler) handleAutosave(conn *websocket.Conn, candidateID int, attempt *model.Attempt, raw []byte) {
	var req ws.AutosaveRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.ItemID == "" {
		ws.WriteError(conn, "malformed autosave")
		return
	}

	if err := h.draftService.SaveEntry(context.Background(), candidateID, attempt.ID, req.ItemID, req.Answer); err != nil {
		ws.WriteError(conn, "autosave failed")
		return
	}

	ws.WriteTyped(conn, ws.AutosaveResponse{Event: ws.EventSuccess, Status: "saved"})
}

func (h *WSHandler) handleIntegrity(conn *websocket.Conn, wsLog zerolog.Logger, attempt *model.Attempt, raw []byte) {
	var req ws.IntegrityRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.EventType == "" {
		ws.WriteError(conn, "malformed integrity report")
		return
	}

	outcome, err := h.integrityService.ReportViolation(context.Background(), attempt, req.EventType, req.Detail)
	if err != nil {
		ws.WriteError(conn, "integrity report failed")
		return
	}

	if outcome.Terminated {
		wsLog.Warn().Int("strikes", outcome.Strikes).Msg("Attempt terminated over stream")
		ws.WriteTyped(conn, ws.IntegrityResponse{Event: ws.EventTerminated, Strikes: outcome.Strikes})
		return
	}
	ws.WriteTyped(conn, ws.IntegrityResponse{Event: ws.EventWarning, Strikes: outcome.Strikes})
}

func (h *WSHandler) handleSubmit(conn *websocket.Conn, wsLog zerolog.Logger, candidateID int) {
	// Nil payload: the submission is built from the persisted draft.
	submission, err := h.attemptService.SubmitManual(context.Background(), candidateID, nil)
	if err != nil {
		ws.WriteError(conn, "submit failed")
		return
	}

	wsLog.Info().Str("submission_id", submission.ID.String()).Msg("Submitted over stream")
	ws.WriteTyped(conn, ws.SubmittedResponse{Event: ws.EventSubmitted, Status: string(submission.GradingStatus)})
}

func (h *WSHandler) handlePing(conn *websocket.Conn, attempt *model.Attempt) {
	remaining := 0
	if attempt.StartedAt != nil {
		remaining = clock.Remaining(*attempt.StartedAt, attempt.DurationMinutes, time.Now())
	}
	ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong, RemainingSeconds: remaining})
}
