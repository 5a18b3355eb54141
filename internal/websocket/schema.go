package websocket

import (
	"github.com/hummingbirdtestai/mocktest-engine/internal/engine"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

// The stream is one-directional outside of ping: every state change the
// engine publishes is forwarded, and the client renders from those plus
// the snapshot endpoint.

type Event string

const (
	EventTick    Event = "tick"
	EventSection Event = "section"
	EventPalette Event = "palette"
	EventTimeUp  Event = "time_up"
	EventError   Event = "error"
	EventPong    Event = "pong"
)

// SessionEvent wraps an engine event for the wire.
type SessionEvent struct {
	Event   Event        `json:"event"`
	Payload engine.Event `json:"payload"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
