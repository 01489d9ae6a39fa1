package websocket

import "encoding/json"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave  Action = "autosave"
	ActionViolation Action = "violation"
	ActionPing      Action = "ping"
)

// RequestPayload carries every client action. Answer stays raw JSON so
// the scalar-vs-array convention survives untouched to persistence.
type RequestPayload struct {
	Action Action `json:"action"`

	// autosave
	QID    string          `json:"q_id,omitempty"`
	Answer json.RawMessage `json:"ans,omitempty"`

	// violation
	Type string `json:"type,omitempty"`
	Seq  int    `json:"seq,omitempty"`
	At   int64  `json:"at,omitempty"` // unix seconds
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError    Event = "error"
	EventSuccess  Event = "success"
	EventRecorded Event = "recorded"
	EventPong     Event = "pong"
)

type AutosaveResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

type ViolationResponse struct {
	Event Event `json:"event"`
	Seq   int   `json:"seq"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
