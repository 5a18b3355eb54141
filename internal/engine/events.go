package engine

import (
	"github.com/hummingbirdtestai/mocktest-engine/internal/model"
)

// EventType enumerates the push events a session emits to subscribers
// (the WebSocket stream forwards these verbatim to the rendering layer).
type EventType string

const (
	// EventTick is emitted once per second while a section is in progress.
	EventTick EventType = "tick"
	// EventSection is emitted on every section status transition.
	EventSection EventType = "section"
	// EventPalette is emitted when derived statuses may have changed.
	EventPalette EventType = "palette"
	// EventTimeUp is the timer's terminal event, emitted exactly once per
	// section before the forced completion.
	EventTimeUp EventType = "time_up"
)

// Event is one push notification from a session.
type Event struct {
	Type          EventType            `json:"type"`
	SectionID     string               `json:"section_id,omitempty"`
	SectionStatus model.SectionStatus  `json:"section_status,omitempty"`
	RemainingSec  int                  `json:"remaining_sec,omitempty"`
	Palette       []model.PaletteEntry `json:"palette,omitempty"`
}
