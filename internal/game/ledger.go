// internal/game/ledger.go
package game

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jason-s-yu/landlord/internal/board"
)

// Bank is the counterparty for purchases, taxes and fines. Transfers to the
// bank are sinks; transfers from the bank are issuance (start bonuses).
var Bank = uuid.Nil

// MaxHouses is the highest house tier before a hotel.
const MaxHouses = 4

// Ownership is the mutable record for one owned property. Houses and Hotel
// are mutually exclusive tiers: Hotel implies Houses == 0.
type Ownership struct {
	Owner     uuid.UUID `json:"owner"`
	Houses    int       `json:"houses"`
	Hotel     bool      `json:"hotel"`
	Mortgaged bool      `json:"mortgaged"`
}

// Tier returns the build tier 0..5 (0-4 houses, 5 = hotel).
func (o *Ownership) Tier() int {
	if o.Hotel {
		return MaxHouses + 1
	}
	return o.Houses
}

// Ledger holds money balances and property ownership for one room. It is
// mutated only from the room's single worker goroutine.
type Ledger struct {
	board *board.Map
	cash  map[uuid.UUID]int
	owned map[string]*Ownership
}

// NewLedger creates an empty ledger over the given board.
func NewLedger(m *board.Map) *Ledger {
	return &Ledger{
		board: m,
		cash:  make(map[uuid.UUID]int),
		owned: make(map[string]*Ownership),
	}
}

// AddAccount registers a player balance. Issued from the bank, so total cash
// in play grows by amount.
func (l *Ledger) AddAccount(playerID uuid.UUID, amount int) {
	l.cash[playerID] = amount
}

// Cash returns the player's current balance.
func (l *Ledger) Cash(playerID uuid.UUID) int {
	return l.cash[playerID]
}

// HasNegativeBalance reports whether the player currently owes money.
func (l *Ledger) HasNegativeBalance(playerID uuid.UUID) bool {
	return l.cash[playerID] < 0
}

// Transfer moves amount between two parties; either side may be the Bank.
// A negative resulting balance is allowed — the turn machine blocks end_turn
// until it is restored — so Transfer only rejects nonsensical amounts.
func (l *Ledger) Transfer(from, to uuid.UUID, amount int) error {
	if amount < 0 {
		return fmt.Errorf("transfer amount must be non-negative, got %d", amount)
	}
	if from == to {
		return nil
	}
	if from != Bank {
		if _, ok := l.cash[from]; !ok {
			return fmt.Errorf("unknown payer %s", from)
		}
		l.cash[from] -= amount
	}
	if to != Bank {
		if _, ok := l.cash[to]; !ok {
			return fmt.Errorf("unknown payee %s", to)
		}
		l.cash[to] += amount
	}
	return nil
}

// Ownership returns the ownership record for a property, if any.
func (l *Ledger) Ownership(property string) (*Ownership, bool) {
	o, ok := l.owned[property]
	return o, ok
}

// SetOwnership assigns a property to an owner. Fails if any other player
// already holds it; reassigning to the same owner is a no-op.
func (l *Ledger) SetOwnership(property string, owner uuid.UUID) error {
	if _, ok := l.board.ByName(property); !ok {
		return fmt.Errorf("unknown property %q", property)
	}
	if cur, ok := l.owned[property]; ok {
		if cur.Owner == owner {
			return nil
		}
		return fmt.Errorf("property %q already owned by %s", property, cur.Owner)
	}
	l.owned[property] = &Ownership{Owner: owner}
	return nil
}

// ClearOwnership returns a property to the bank, discarding buildings.
func (l *Ledger) ClearOwnership(property string) {
	delete(l.owned, property)
}

// ClearAllOwnedBy returns every property held by the player to the bank.
// Returns the cleared property names in board order.
func (l *Ledger) ClearAllOwnedBy(owner uuid.UUID) []string {
	names := l.OwnedBy(owner)
	for _, n := range names {
		delete(l.owned, n)
	}
	return names
}

// OwnedBy lists the property names held by a player, in stable board order.
func (l *Ledger) OwnedBy(owner uuid.UUID) []string {
	var names []string
	for name, o := range l.owned {
		if o.Owner == owner {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		a, _ := l.board.ByName(names[i])
		b, _ := l.board.ByName(names[j])
		return a.Position < b.Position
	})
	return names
}

// CountOwnedOfType counts how many spaces of the given type a player holds.
// Drives airport and utility rent tiers.
func (l *Ledger) CountOwnedOfType(owner uuid.UUID, t board.SpaceType) int {
	n := 0
	for name, o := range l.owned {
		if o.Owner != owner {
			continue
		}
		if def, ok := l.board.ByName(name); ok && def.Type == t {
			n++
		}
	}
	return n
}

// OwnsFullSet reports whether the player holds every street in the set.
func (l *Ledger) OwnsFullSet(owner uuid.UUID, set string) bool {
	members := l.board.SetMembers(set)
	if len(members) == 0 {
		return false
	}
	for _, def := range members {
		o, ok := l.owned[def.Name]
		if !ok || o.Owner != owner {
			return false
		}
	}
	return true
}

// SetHasBuildings reports whether any street in the set carries houses or a
// hotel. The full-set rent doubling only applies to unbuilt sets.
func (l *Ledger) SetHasBuildings(set string) bool {
	for _, def := range l.board.SetMembers(set) {
		if o, ok := l.owned[def.Name]; ok && (o.Houses > 0 || o.Hotel) {
			return true
		}
	}
	return false
}

// UpdateBuild adds or removes one building tier on a street. delta must be
// +1 or -1; +1 from four houses promotes to a hotel, -1 from a hotel demotes
// to four houses.
func (l *Ledger) UpdateBuild(property string, delta int) error {
	if delta != 1 && delta != -1 {
		return fmt.Errorf("build delta must be +1 or -1, got %d", delta)
	}
	o, ok := l.owned[property]
	if !ok {
		return fmt.Errorf("property %q is unowned", property)
	}
	def, _ := l.board.ByName(property)
	if def.Type != board.SpaceStreet {
		return fmt.Errorf("property %q is not a street", property)
	}
	if o.Mortgaged {
		return fmt.Errorf("property %q is mortgaged", property)
	}
	if delta == 1 {
		switch {
		case o.Hotel:
			return fmt.Errorf("property %q already has a hotel", property)
		case o.Houses == MaxHouses:
			o.Houses = 0
			o.Hotel = true
		default:
			o.Houses++
		}
		return nil
	}
	switch {
	case o.Hotel:
		o.Hotel = false
		o.Houses = MaxHouses
	case o.Houses == 0:
		return fmt.Errorf("property %q has no buildings", property)
	default:
		o.Houses--
	}
	return nil
}

// SetMortgaged flips the mortgage flag. Mortgaging requires the street to be
// clear of buildings.
func (l *Ledger) SetMortgaged(property string, mortgaged bool) error {
	o, ok := l.owned[property]
	if !ok {
		return fmt.Errorf("property %q is unowned", property)
	}
	if mortgaged && (o.Houses > 0 || o.Hotel) {
		return fmt.Errorf("property %q carries buildings", property)
	}
	if o.Mortgaged == mortgaged {
		return fmt.Errorf("property %q mortgage state unchanged", property)
	}
	o.Mortgaged = mortgaged
	return nil
}

// NetWorth is the player's cash plus the face value of unmortgaged holdings
// and the build cost of standing buildings. Reported in final results.
func (l *Ledger) NetWorth(playerID uuid.UUID) int {
	total := l.cash[playerID]
	for name, o := range l.owned {
		if o.Owner != playerID {
			continue
		}
		def, _ := l.board.ByName(name)
		if !o.Mortgaged {
			total += def.Price
		}
		buildings := o.Houses
		if o.Hotel {
			buildings = MaxHouses + 1
		}
		total += buildings * def.BuildCost
	}
	return total
}

// LiquidationValue is the most cash the player could still raise by
// destroying buildings (half build cost), mortgaging (half price) and
// selling back to the bank (half price). Used to detect hopeless debt.
func (l *Ledger) LiquidationValue(playerID uuid.UUID) int {
	total := 0
	for name, o := range l.owned {
		if o.Owner != playerID {
			continue
		}
		def, _ := l.board.ByName(name)
		buildings := o.Houses
		if o.Hotel {
			buildings = MaxHouses + 1
		}
		total += buildings * def.BuildCost / 2
		if !o.Mortgaged {
			total += def.Price / 2
		}
	}
	return total
}

// CheckInvariants validates structural ledger invariants: tier bounds,
// house/hotel exclusivity, no buildings on mortgaged streets, and ownership
// only over purchasable spaces. A failure is fatal for the room.
func (l *Ledger) CheckInvariants() error {
	for name, o := range l.owned {
		def, ok := l.board.ByName(name)
		if !ok {
			return fmt.Errorf("ledger references unknown property %q", name)
		}
		if !def.Purchasable() {
			return fmt.Errorf("non-purchasable space %q has an owner", name)
		}
		if o.Houses < 0 || o.Houses > MaxHouses {
			return fmt.Errorf("property %q has invalid house count %d", name, o.Houses)
		}
		if o.Hotel && o.Houses != 0 {
			return fmt.Errorf("property %q has both hotel and %d houses", name, o.Houses)
		}
		if o.Mortgaged && (o.Houses > 0 || o.Hotel) {
			return fmt.Errorf("mortgaged property %q carries buildings", name)
		}
		if (o.Houses > 0 || o.Hotel) && def.Type != board.SpaceStreet {
			return fmt.Errorf("non-street %q carries buildings", name)
		}
	}
	return nil
}

// Ownerships returns a copy of the full ownership table for snapshots.
func (l *Ledger) Ownerships() map[string]Ownership {
	out := make(map[string]Ownership, len(l.owned))
	for name, o := range l.owned {
		out[name] = *o
	}
	return out
}
