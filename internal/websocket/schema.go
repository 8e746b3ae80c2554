package websocket

import "github.com/stemsi/exstem-portal/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing   Action = "ping"
	ActionSelect Action = "select"
	ActionNext   Action = "next"
	ActionPrev   Action = "prev"
	ActionGoTo   Action = "goto"
	ActionSubmit Action = "submit"
)

// RequestPayload carries every client action; fields not used by the
// action are ignored.
type RequestPayload struct {
	Action      Action `json:"action"`
	OptionIndex *int   `json:"option_index,omitempty"`
	Index       *int   `json:"index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError  Event = "error"
	EventState  Event = "state"
	EventTick   Event = "tick"
	EventReport Event = "report"
	EventPong   Event = "pong"
)

// SnapshotResponse pushes a session snapshot after a change.
type SnapshotResponse struct {
	Event    Event                 `json:"event"`
	Snapshot model.SessionSnapshot `json:"snapshot"`
}

// TickResponse is the slim countdown update.
type TickResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
	TimeExpired      bool  `json:"time_expired"`
}

// ReportResponse delivers the final report after submission.
type ReportResponse struct {
	Event  Event             `json:"event"`
	Report *model.ExamReport `json:"report"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
