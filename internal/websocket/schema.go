package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave  Action = "autosave"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
	ActionIntegrity Action = "integrity"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AutosaveRequest is sent by the client to save a single draft entry.
// ItemID is a question ID for MCQ and explanation sessions, or the
// reserved "code"/"language" fields for coding sessions.
type AutosaveRequest struct {
	Action Action `json:"action"`
	ItemID string `json:"item_id"`
	Answer string `json:"answer"`
}

// IntegrityRequest is sent by the client to report a focus-loss event.
type IntegrityRequest struct {
	Action    Action `json:"action"`
	EventType string `json:"event_type"`
	Detail    string `json:"detail"` // Raw JSON string from the client
}

// SubmitRequest is sent by the client to finish the attempt.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError      Event = "error"
	EventSuccess    Event = "success"
	EventWarning    Event = "warning"
	EventTerminated Event = "terminated"
	EventSubmitted  Event = "submitted"
	EventPong       Event = "pong"
)

type AutosaveResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

// IntegrityResponse reports the server's strike decision back to the client.
type IntegrityResponse struct {
	Event   Event `json:"event"`
	Strikes int   `json:"strikes"`
}

type SubmittedResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}
