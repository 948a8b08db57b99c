// internal/game/settings.go
package game

import "fmt"

// Settings defines the per-room rule toggles and amounts, snapshotted into
// GameState at room creation. Clients may override any field at room create
// time; everything has a sensible default.
type Settings struct {
	StartingCash        int  `json:"startingCash"`        // cash issued to each player on join
	AuctionsEnabled     bool `json:"auctionsEnabled"`     // declined properties go to auction
	DoubleRentOnFullSet bool `json:"doubleRentOnFullSet"` // unbuilt full sets charge double base rent
	NoRentInPrison      bool `json:"noRentInPrison"`      // jailed owners collect no rent
	CollectVacationCash bool `json:"collectVacationCash"` // taxes/fees accumulate for the next vacation lander
	EvenBuild           bool `json:"evenBuild"`           // houses must be spread evenly across a set
	JailFine            int  `json:"jailFine"`            // fixed fine to leave prison early
	StartLandingBonus   int  `json:"startLandingBonus"`   // bonus for landing exactly on Start
	StartPassBonus      int  `json:"startPassBonus"`      // bonus for passing Start
	AuctionTimerSec     int  `json:"auctionTimerSec"`     // countdown reset on each accepted bid
	MaxJailRounds       int  `json:"maxJailRounds"`       // forced release after this many failed escape rounds
}

// DefaultSettings returns the standard rule set.
func DefaultSettings() Settings {
	return Settings{
		StartingCash:        1500,
		AuctionsEnabled:     true,
		DoubleRentOnFullSet: true,
		NoRentInPrison:      false,
		CollectVacationCash: true,
		EvenBuild:           true,
		JailFine:            50,
		StartLandingBonus:   300,
		StartPassBonus:      200,
		AuctionTimerSec:     15,
		MaxJailRounds:       3,
	}
}

// Update applies the provided overrides onto the settings. Keys that are
// absent or nil are ignored and the old value persists.
func (s *Settings) Update(overrides map[string]interface{}) error {
	var ok bool

	assignBool := func(field *bool, key string) error {
		if val, exists := overrides[key]; exists && val != nil {
			*field, ok = val.(bool)
			if !ok {
				return fmt.Errorf("invalid type for %s", key)
			}
		}
		return nil
	}

	assignInt := func(field *int, key string, minVal int) error {
		if val, exists := overrides[key]; exists && val != nil {
			// JSON numbers arrive as float64
			var floatVal float64
			floatVal, ok = val.(float64)
			if !ok {
				var intVal int
				intVal, ok = val.(int)
				if !ok {
					return fmt.Errorf("invalid type for %s", key)
				}
				*field = intVal
			} else {
				*field = int(floatVal)
			}
			if *field < minVal {
				return fmt.Errorf("%s must be at least %d", key, minVal)
			}
		}
		return nil
	}

	if err := assignInt(&s.StartingCash, "startingCash", 1); err != nil {
		return err
	}
	if err := assignBool(&s.AuctionsEnabled, "auctionsEnabled"); err != nil {
		return err
	}
	if err := assignBool(&s.DoubleRentOnFullSet, "doubleRentOnFullSet"); err != nil {
		return err
	}
	if err := assignBool(&s.NoRentInPrison, "noRentInPrison"); err != nil {
		return err
	}
	if err := assignBool(&s.CollectVacationCash, "collectVacationCash"); err != nil {
		return err
	}
	if err := assignBool(&s.EvenBuild, "evenBuild"); err != nil {
		return err
	}
	if err := assignInt(&s.JailFine, "jailFine", 0); err != nil {
		return err
	}
	if err := assignInt(&s.StartLandingBonus, "startLandingBonus", 0); err != nil {
		return err
	}
	if err := assignInt(&s.StartPassBonus, "startPassBonus", 0); err != nil {
		return err
	}
	if err := assignInt(&s.AuctionTimerSec, "auctionTimerSec", 1); err != nil {
		return err
	}
	if err := assignInt(&s.MaxJailRounds, "maxJailRounds", 1); err != nil {
		return err
	}
	return nil
}

// ParseSettings builds a Settings from client-supplied overrides on top of
// the current values, validating types along the way.
func ParseSettings(overrides map[string]interface{}, current Settings) (Settings, error) {
	settings := current
	err := settings.Update(overrides)
	return settings, err
}
