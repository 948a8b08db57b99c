// internal/game/jail.go
package game

import (
	"github.com/jason-s-yu/landlord/internal/board"
	"github.com/jason-s-yu/landlord/internal/models"
)

// jailOutcome is the result of a jailed player's escape roll.
type jailOutcome int

const (
	jailStay jailOutcome = iota
	jailEscapeDoubles
	jailAutoRelease
)

// recordDoublesRoll updates the player's consecutive-doubles counter for a
// roll taken during a normal (non-jailed) turn. Returns true when the roll
// is the third consecutive doubles and the player must be jailed.
func recordDoublesRoll(p *models.Player, roll Roll) bool {
	if !roll.IsDoubles() {
		p.ConsecutiveDoubles = 0
		return false
	}
	p.ConsecutiveDoubles++
	return p.ConsecutiveDoubles >= 3
}

// sendToJail moves the player to the prison space and resets the counters
// the jail rules track.
func sendToJail(p *models.Player) {
	p.Position = board.JailPosition
	p.Status = models.StatusJail
	p.ConsecutiveDoubles = 0
	p.JailRounds = 0
}

// releaseFromJail restores normal status without moving the player.
func releaseFromJail(p *models.Player) {
	p.Status = models.StatusNormal
	p.JailRounds = 0
}

// resolveJailRoll applies one escape attempt. Doubles escape immediately;
// otherwise the jail-round counter advances and, once it reaches maxRounds,
// the player is released unconditionally.
func resolveJailRoll(p *models.Player, roll Roll, maxRounds int) jailOutcome {
	if roll.IsDoubles() {
		releaseFromJail(p)
		return jailEscapeDoubles
	}
	p.JailRounds++
	if p.JailRounds >= maxRounds {
		releaseFromJail(p)
		return jailAutoRelease
	}
	return jailStay
}
