package models

import (
	"github.com/google/uuid"
)

// LogEntry is one immutable line of the room's append-only game log. The log
// is for audit and spectator replay; game logic never reads it back.
type LogEntry struct {
	Type      string    `json:"type"`
	Actor     uuid.UUID `json:"actor,omitempty"`
	Message   string    `json:"message"`
	Timestamp int64     `json:"timestamp"`
}
