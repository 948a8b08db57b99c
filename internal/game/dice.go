// internal/game/dice.go
package game

import (
	"math/rand"

	"github.com/jason-s-yu/landlord/internal/models"
)

// Roll is a single two-die result.
type Roll struct {
	D1 int `json:"d1"`
	D2 int `json:"d2"`
}

// Total returns the combined pip count.
func (r Roll) Total() int {
	return r.D1 + r.D2
}

// IsDoubles reports whether both dice show the same value.
func (r Roll) IsDoubles() bool {
	return r.D1 == r.D2
}

// Roller produces dice rolls from a per-room seeded source, so a room's
// sequence is reproducible from its seed.
type Roller struct {
	rng *rand.Rand
}

// NewRoller creates a roller seeded for one room.
func NewRoller(seed int64) *Roller {
	return &Roller{rng: rand.New(rand.NewSource(seed))}
}

// Roll returns the next two-die roll, honoring a dev override when present
// and in range.
func (r *Roller) Roll(override *models.DiceOverride) Roll {
	if override != nil &&
		override.D1 >= 1 && override.D1 <= 6 &&
		override.D2 >= 1 && override.D2 <= 6 {
		return Roll{D1: override.D1, D2: override.D2}
	}
	return Roll{
		D1: r.rng.Intn(6) + 1,
		D2: r.rng.Intn(6) + 1,
	}
}

// ResolveMove computes the new position after moving total spaces on a board
// of boardSize spaces, and whether the move landed exactly on or passed the
// start space.
func ResolveMove(currentPosition, total, boardSize int) (newPosition int, passedStart, landedStart bool) {
	newPosition = (currentPosition + total) % boardSize
	wrapped := currentPosition+total >= boardSize
	landedStart = wrapped && newPosition == 0
	passedStart = wrapped && newPosition != 0
	return newPosition, passedStart, landedStart
}

// SpecialAction classifies the outcome of one roll. Exactly one applies per
// roll, in the priority order the resolver enforces.
type SpecialAction string

const (
	ActionNone     SpecialAction = "none"
	ActionDoubles  SpecialAction = "doubles"
	ActionJail     SpecialAction = "jail"
	ActionVacation SpecialAction = "vacation"
	ActionGoToJail SpecialAction = "go_to_jail"
)
