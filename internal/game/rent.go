// internal/game/rent.go
package game

import (
	"github.com/jason-s-yu/landlord/internal/board"
	"github.com/jason-s-yu/landlord/internal/models"
)

// ComputeRent is the pure rent function: (property, ownership, dice total,
// settings, owner status, ledger) -> amount owed by a player landing there.
// The caller guarantees the lander is not the owner.
func ComputeRent(def *board.Definition, own *Ownership, diceTotal int, settings Settings, ownerStatus models.PlayerStatus, led *Ledger) int {
	if own == nil || own.Mortgaged {
		return 0
	}
	if settings.NoRentInPrison && ownerStatus == models.StatusJail {
		return 0
	}

	switch def.Type {
	case board.SpaceStreet:
		tier := own.Tier()
		if tier >= len(def.Rent) {
			tier = len(def.Rent) - 1
		}
		rent := def.Rent[tier]
		if tier == 0 && settings.DoubleRentOnFullSet &&
			led.OwnsFullSet(own.Owner, def.Set) && !led.SetHasBuildings(def.Set) {
			rent *= 2
		}
		return rent

	case board.SpaceAirport:
		count := led.CountOwnedOfType(own.Owner, board.SpaceAirport)
		if count < 1 {
			count = 1
		}
		if count > len(def.Rent) {
			count = len(def.Rent)
		}
		return def.Rent[count-1]

	case board.SpaceUtility:
		count := led.CountOwnedOfType(own.Owner, board.SpaceUtility)
		if count < 1 {
			count = 1
		}
		if count > len(def.Rent) {
			count = len(def.Rent)
		}
		return diceTotal * def.Rent[count-1]
	}
	return 0
}
