package models

import (
	"github.com/google/uuid"
)

// PlayerStatus tracks where a player is in the jail/vacation lifecycle.
type PlayerStatus string

const (
	StatusNormal   PlayerStatus = "normal"
	StatusJail     PlayerStatus = "jail"
	StatusVacation PlayerStatus = "vacation"
)

// Player is the per-player authoritative state for one room. The engine keys
// everything off the stable ID; connections live entirely in the transport
// layer.
type Player struct {
	ID        uuid.UUID    `json:"id"`
	Name      string       `json:"name"`
	Color     string       `json:"color"`
	Cash      int          `json:"cash"`
	IsBot     bool         `json:"isBot"`
	Connected bool         `json:"connected"`
	Ordinal   int          `json:"ordinal"`
	Position  int          `json:"position"`
	Status    PlayerStatus `json:"status"`

	// VacationStartRound is the round the player landed on the rest space;
	// they sit out until the rotation next reaches them.
	VacationStartRound int `json:"vacationStartRound,omitempty"`

	ConsecutiveDoubles int `json:"consecutiveDoubles"`
	JailRounds         int `json:"jailRounds"`
	PardonCards        int `json:"pardonCards"`

	Bankrupt bool `json:"bankrupt"`
}

// Active reports whether the player still participates in the turn rotation.
func (p *Player) Active() bool {
	return !p.Bankrupt
}
