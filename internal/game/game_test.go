// internal/game/game_test.go
package game

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/landlord/internal/board"
	"github.com/jason-s-yu/landlord/internal/models"
)

// mockBroadcaster collects events instead of sending them over WS.
type mockBroadcaster struct {
	mu           sync.Mutex
	allEvents    []Event
	playerEvents map[uuid.UUID][]Event
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{
		playerEvents: make(map[uuid.UUID][]Event),
	}
}

func (mb *mockBroadcaster) broadcastFn(ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = append(mb.allEvents, ev)
}

func (mb *mockBroadcaster) broadcastToPlayerFn(playerID uuid.UUID, ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.playerEvents[playerID] = append(mb.playerEvents[playerID], ev)
}

func (mb *mockBroadcaster) clear() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = nil
	mb.playerEvents = make(map[uuid.UUID][]Event)
}

func (mb *mockBroadcaster) lastEvent() *Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.allEvents) == 0 {
		return nil
	}
	return &mb.allEvents[len(mb.allEvents)-1]
}

// lastRejection returns the most recent rejection delivered privately to the
// player, or nil.
func (mb *mockBroadcaster) lastRejection(playerID uuid.UUID) *Rejection {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	events := mb.playerEvents[playerID]
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == EventActionRejected {
			return events[i].Rejection
		}
	}
	return nil
}

// setupTestGame initializes a started game with players and mock broadcasters.
func setupTestGame(t *testing.T, numPlayers int, settings *Settings) (*Game, []*models.Player, *mockBroadcaster) {
	t.Helper()
	s := DefaultSettings()
	if settings != nil {
		s = *settings
	}
	g := NewGame(uuid.New(), board.Classic(), s, 1)
	mb := newMockBroadcaster()
	g.BroadcastFn = mb.broadcastFn
	g.BroadcastToPlayerFn = mb.broadcastToPlayerFn

	players := make([]*models.Player, numPlayers)
	for i := 0; i < numPlayers; i++ {
		p, err := g.AddPlayer("P"+string(rune('1'+i)), false)
		require.NoError(t, err)
		players[i] = p
	}
	require.NoError(t, g.Start())
	require.True(t, g.Started)
	mb.clear()
	return g, players, mb
}

// roll issues a rollDice command with forced dice.
func roll(g *Game, p *models.Player, d1, d2 int) {
	g.HandleCommand(p.ID, models.Command{
		Type: models.CmdRollDice,
		Dice: &models.DiceOverride{D1: d1, D2: d2},
	})
}

func send(g *Game, p *models.Player, typ models.CommandType, property string) {
	g.HandleCommand(p.ID, models.Command{Type: typ, Property: property})
}

func noAuctions() *Settings {
	s := DefaultSettings()
	s.AuctionsEnabled = false
	return &s
}

func TestStartRequiresTwoPlayers(t *testing.T) {
	g := NewGame(uuid.New(), board.Classic(), DefaultSettings(), 1)
	_, err := g.AddPlayer("solo", false)
	require.NoError(t, err)
	assert.Error(t, g.Start())

	_, err = g.AddPlayer("second", false)
	require.NoError(t, err)
	assert.NoError(t, g.Start())
	assert.Error(t, g.Start(), "double start")
	assert.Equal(t, StateAwaitingRoll, g.State)
	assert.Equal(t, 1, g.Round)
}

func TestAddPlayerAssignsColorsAndOrdinals(t *testing.T) {
	g := NewGame(uuid.New(), board.Classic(), DefaultSettings(), 1)
	for i := 0; i < MaxPlayers; i++ {
		p, err := g.AddPlayer("p", false)
		require.NoError(t, err)
		assert.Equal(t, playerColors[i], p.Color)
		assert.Equal(t, i, p.Ordinal)
		assert.Equal(t, board.StartPosition, p.Position)
	}
	_, err := g.AddPlayer("overflow", false)
	assert.Error(t, err)
}

func TestBuyPropertyAndPayRent(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	p1, p2 := players[0], players[1]

	// P1 lands on Rio (position 3, price 60).
	roll(g, p1, 1, 2)
	assert.Equal(t, StateAwaitingPropertyDecision, g.State)
	require.NotNil(t, g.Pending)
	assert.Equal(t, "Rio", g.Pending.Property)
	assert.Equal(t, p1.ID, g.Pending.PlayerID)

	// Rolling during the decision is refused and changes nothing.
	roll(g, p1, 1, 2)
	rej := mb.lastRejection(p1.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindInvalidStateTransition, rej.Kind)
	assert.Equal(t, 3, p1.Position)

	send(g, p1, models.CmdBuyProperty, "Rio")
	assert.Equal(t, 1440, g.Ledger.Cash(p1.ID))
	own, ok := g.Ledger.Ownership("Rio")
	require.True(t, ok)
	assert.Equal(t, p1.ID, own.Owner)
	assert.Equal(t, StateAwaitingEndTurn, g.State)

	send(g, p1, models.CmdEndTurn, "")
	assert.Equal(t, p2.ID, g.Players[g.TurnIndex].ID)

	// P2 lands on the same space and pays base rent.
	roll(g, p2, 1, 2)
	assert.Equal(t, 1496, g.Ledger.Cash(p2.ID))
	assert.Equal(t, 1444, g.Ledger.Cash(p1.ID))
	assert.Equal(t, StateAwaitingEndTurn, g.State)

	ev := mb.lastEvent()
	require.NotNil(t, ev)
	assert.Equal(t, EventStateSnapshot, ev.Type)
}

func TestBuyAgainAfterPurchaseIsRejected(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	p1 := players[0]

	roll(g, p1, 1, 2)
	send(g, p1, models.CmdBuyProperty, "Rio")
	require.Equal(t, 1440, g.Ledger.Cash(p1.ID))

	// The decision is consumed; a duplicate buy cannot double-charge.
	send(g, p1, models.CmdBuyProperty, "Rio")
	rej := mb.lastRejection(p1.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindInvalidStateTransition, rej.Kind)
	assert.Equal(t, 1440, g.Ledger.Cash(p1.ID))
}

func TestBuyPropertyInsufficientFunds(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, noAuctions())
	p1 := players[0]
	require.NoError(t, g.Ledger.Transfer(p1.ID, Bank, 1460)) // leaves 40

	roll(g, p1, 1, 2)
	send(g, p1, models.CmdBuyProperty, "Rio")
	rej := mb.lastRejection(p1.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindInsufficientFunds, rej.Kind)
	assert.Equal(t, 40, rej.Detail["balance"])

	// The decision stays open; declining resolves it.
	assert.Equal(t, StateAwaitingPropertyDecision, g.State)
	send(g, p1, models.CmdDeclineProperty, "")
	assert.Equal(t, StateAwaitingEndTurn, g.State)
	_, owned := g.Ledger.Ownership("Rio")
	assert.False(t, owned)
}

func TestDoublesGrantAnotherRoll(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	p1 := players[0]

	// Doubles onto a surprise space: effect applies, then roll-again.
	roll(g, p1, 1, 1)
	assert.Equal(t, 2, p1.Position)
	assert.Equal(t, 1600, g.Ledger.Cash(p1.ID), "surprise payout")
	assert.Equal(t, StateAwaitingRollAgain, g.State)
	assert.Equal(t, 1, p1.ConsecutiveDoubles)

	// Second doubles onto the prison corner: just visiting.
	roll(g, p1, 4, 4)
	assert.Equal(t, board.JailPosition, p1.Position)
	assert.Equal(t, models.StatusNormal, p1.Status)
	assert.Equal(t, StateAwaitingRollAgain, g.State)
	assert.Equal(t, 2, p1.ConsecutiveDoubles)

	// Ending the roll loops back to awaiting-roll for the same player.
	send(g, p1, models.CmdEndTurn, "")
	assert.Equal(t, StateAwaitingRoll, g.State)
	assert.Equal(t, p1.ID, g.Players[g.TurnIndex].ID)
	assert.Equal(t, 2, p1.ConsecutiveDoubles, "counter survives the loop-back")
}

func TestDoublesOntoPropertyKeepsRollAgain(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	p1 := players[0]

	// Doubles onto an unowned street opens the decision first; the extra
	// roll waits behind it.
	roll(g, p1, 3, 3)
	require.Equal(t, StateAwaitingPropertyDecision, g.State)
	send(g, p1, models.CmdBuyProperty, "Tel Aviv")
	require.Equal(t, StateAwaitingEndTurn, g.State)

	send(g, p1, models.CmdEndTurn, "")
	assert.Equal(t, StateAwaitingRoll, g.State)
	assert.Equal(t, p1.ID, g.Players[g.TurnIndex].ID, "doubles keep the turn")
	assert.Equal(t, 1, p1.ConsecutiveDoubles)
}

func TestNonDoublesAfterDoublesEndsTurn(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, noAuctions())
	p1, p2 := players[0], players[1]

	roll(g, p1, 1, 1) // doubles onto the surprise space
	require.Equal(t, StateAwaitingRollAgain, g.State)

	// The follow-up roll is not doubles; resolving the property decision it
	// opens must not revive the earlier roll-again.
	roll(g, p1, 1, 2)
	require.Equal(t, StateAwaitingPropertyDecision, g.State)
	send(g, p1, models.CmdDeclineProperty, "")
	require.Equal(t, StateAwaitingEndTurn, g.State)

	send(g, p1, models.CmdEndTurn, "")
	assert.Equal(t, p2.ID, g.Players[g.TurnIndex].ID, "turn advances after a non-doubles roll")
	assert.Equal(t, StateAwaitingRoll, g.State)
}

func TestThreeConsecutiveDoublesJail(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	p1, p2 := players[0], players[1]

	roll(g, p1, 1, 1)
	roll(g, p1, 4, 4)
	roll(g, p1, 2, 2)

	// The third doubles jails the player without moving the token.
	assert.Equal(t, board.JailPosition, p1.Position)
	assert.Equal(t, models.StatusJail, p1.Status)
	assert.Equal(t, 0, p1.ConsecutiveDoubles)

	// The turn ends outright even though doubles were rolled.
	assert.Equal(t, p2.ID, g.Players[g.TurnIndex].ID)
	assert.Equal(t, StateAwaitingRoll, g.State)
}

func TestGoToJailCorner(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	p1, p2 := players[0], players[1]
	p1.Position = 27

	roll(g, p1, 1, 2) // lands on Go To Prison at 30
	assert.Equal(t, board.JailPosition, p1.Position)
	assert.Equal(t, models.StatusJail, p1.Status)
	assert.Equal(t, p2.ID, g.Players[g.TurnIndex].ID)
}

func TestJailEscapeByDoubles(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, noAuctions())
	p1 := players[0]
	sendToJail(p1)

	// Doubles escape and move, but grant no extra roll.
	roll(g, p1, 3, 3)
	assert.Equal(t, models.StatusNormal, p1.Status)
	assert.Equal(t, 16, p1.Position)

	// Landed on an unowned street; decline to finish the check.
	require.Equal(t, StateAwaitingPropertyDecision, g.State)
	send(g, p1, models.CmdDeclineProperty, "")
	assert.Equal(t, StateAwaitingEndTurn, g.State)
	send(g, p1, models.CmdEndTurn, "")
	assert.NotEqual(t, p1.ID, g.Players[g.TurnIndex].ID, "no roll-again after a jail escape")
}

func TestJailFullSentenceRelease(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, noAuctions())
	p1, p2 := players[0], players[1]
	sendToJail(p1)

	passTurnBack := func() {
		send(g, p1, models.CmdEndTurn, "")
		roll(g, p2, 1, 2)
		if g.State == StateAwaitingPropertyDecision {
			send(g, p2, models.CmdDeclineProperty, "")
		}
		send(g, p2, models.CmdEndTurn, "")
	}

	roll(g, p1, 1, 2)
	assert.Equal(t, models.StatusJail, p1.Status)
	assert.Equal(t, 1, p1.JailRounds)
	passTurnBack()

	roll(g, p1, 1, 2)
	assert.Equal(t, 2, p1.JailRounds)
	passTurnBack()

	// Third failed escape: released unconditionally and the roll moves.
	roll(g, p1, 1, 2)
	assert.Equal(t, models.StatusNormal, p1.Status)
	assert.Equal(t, 0, p1.JailRounds)
	assert.Equal(t, 13, p1.Position)
}

func TestPayJailFine(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	p1 := players[0]
	sendToJail(p1)

	send(g, p1, models.CmdPayJailFine, "")
	assert.Equal(t, models.StatusNormal, p1.Status)
	assert.Equal(t, 1450, g.Ledger.Cash(p1.ID))
	assert.Equal(t, board.JailPosition, p1.Position, "paying does not move the token")
	assert.Equal(t, StateAwaitingRoll, g.State, "the player still rolls this turn")
	assert.Equal(t, 50, g.VacationPool, "fines feed the vacation pool")
}

func TestPayJailFineInsufficientFunds(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	p1 := players[0]
	sendToJail(p1)
	require.NoError(t, g.Ledger.Transfer(p1.ID, Bank, 1460))

	send(g, p1, models.CmdPayJailFine, "")
	rej := mb.lastRejection(p1.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindInsufficientFunds, rej.Kind)
	assert.Equal(t, models.StatusJail, p1.Status)
}

func TestUseJailCard(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	p1 := players[0]
	sendToJail(p1)

	// Without a card the command is refused.
	send(g, p1, models.CmdUseJailCard, "")
	rej := mb.lastRejection(p1.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindRuleViolation, rej.Kind)

	p1.PardonCards = 1
	send(g, p1, models.CmdUseJailCard, "")
	assert.Equal(t, models.StatusNormal, p1.Status)
	assert.Equal(t, 0, p1.PardonCards)
	assert.Equal(t, 1500, g.Ledger.Cash(p1.ID))
	assert.Equal(t, StateAwaitingRoll, g.State)
}

func TestJailEscapeOnlyBeforeRolling(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	p1 := players[0]
	sendToJail(p1)

	roll(g, p1, 1, 2) // failed escape, now awaiting-end-turn
	send(g, p1, models.CmdPayJailFine, "")
	rej := mb.lastRejection(p1.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindInvalidStateTransition, rej.Kind)
}

func TestVacationLandingAndSkip(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, noAuctions())
	p1, p2 := players[0], players[1]
	p1.Position = 12
	g.VacationPool = 120

	roll(g, p1, 3, 5)
	assert.Equal(t, board.VacationPosition, p1.Position)
	assert.Equal(t, models.StatusVacation, p1.Status)
	assert.Equal(t, 1620, g.Ledger.Cash(p1.ID), "pool paid out on landing")
	assert.Equal(t, 0, g.VacationPool)
	assert.Equal(t, p2.ID, g.Players[g.TurnIndex].ID, "vacation ends the turn")

	// P2 plays; when the rotation reaches P1 they are released but skipped.
	roll(g, p2, 1, 2)
	send(g, p2, models.CmdDeclineProperty, "")
	send(g, p2, models.CmdEndTurn, "")

	assert.Equal(t, p2.ID, g.Players[g.TurnIndex].ID, "vacationer skipped once")
	assert.Equal(t, models.StatusNormal, p1.Status)
	assert.Equal(t, 2, g.Round)
}

func TestStartBonuses(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, noAuctions())
	p1 := players[0]

	// Passing start pays the pass bonus.
	p1.Position = 38
	roll(g, p1, 1, 2)
	assert.Equal(t, 1, p1.Position)
	assert.Equal(t, 1700, g.Ledger.Cash(p1.ID))
	send(g, p1, models.CmdDeclineProperty, "")
	send(g, p1, models.CmdEndTurn, "")

	// Landing exactly on start pays the larger landing bonus.
	p2 := players[1]
	p2.Position = 36
	roll(g, p2, 1, 3)
	assert.Equal(t, 0, p2.Position)
	assert.Equal(t, 1800, g.Ledger.Cash(p2.ID))
	assert.Equal(t, StateAwaitingEndTurn, g.State)
}

func TestTaxFeedsVacationPool(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	p1 := players[0]
	p1.Position = 1

	roll(g, p1, 1, 2) // Income Tax at 4
	assert.Equal(t, 1300, g.Ledger.Cash(p1.ID))
	assert.Equal(t, 200, g.VacationPool)
	assert.Equal(t, StateAwaitingEndTurn, g.State)
}

func TestTaxWithoutVacationCashRule(t *testing.T) {
	s := DefaultSettings()
	s.CollectVacationCash = false
	g, players, _ := setupTestGame(t, 2, &s)
	p1 := players[0]
	p1.Position = 1

	roll(g, p1, 1, 2)
	assert.Equal(t, 1300, g.Ledger.Cash(p1.ID))
	assert.Equal(t, 0, g.VacationPool)
}

func TestSurpriseEffectsCycleDeterministically(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	p1, p2 := players[0], players[1]

	roll(g, p1, 1, 1) // Surprise I: +100
	assert.Equal(t, 1600, g.Ledger.Cash(p1.ID))
	roll(g, p1, 1, 4) // Surprise II at 7: +50
	assert.Equal(t, 1650, g.Ledger.Cash(p1.ID))
	send(g, p1, models.CmdEndTurn, "")

	roll(g, p2, 3, 4) // Surprise II: third effect, -100 into the pool
	assert.Equal(t, 1400, g.Ledger.Cash(p2.ID))
	assert.Equal(t, 100, g.VacationPool)
	send(g, p2, models.CmdEndTurn, "")

	roll(g, p1, 5, 5) // Surprise III at 17: fourth effect, a pardon card
	assert.Equal(t, 1, p1.PardonCards)
	assert.Equal(t, 1650, g.Ledger.Cash(p1.ID))
}

func TestBuildRequiresFullSet(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	p1 := players[0]
	require.NoError(t, g.Ledger.SetOwnership("Salvador", p1.ID))

	send(g, p1, models.CmdBuildHouse, "Salvador")
	rej := mb.lastRejection(p1.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindRuleViolation, rej.Kind)
}

func TestEvenBuildAcrossSet(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	p1 := players[0]
	require.NoError(t, g.Ledger.SetOwnership("Salvador", p1.ID))
	require.NoError(t, g.Ledger.SetOwnership("Rio", p1.ID))

	send(g, p1, models.CmdBuildHouse, "Salvador")
	assert.Equal(t, 1450, g.Ledger.Cash(p1.ID))

	// A second house on Salvador would outpace Rio.
	send(g, p1, models.CmdBuildHouse, "Salvador")
	rej := mb.lastRejection(p1.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindRuleViolation, rej.Kind)
	assert.Equal(t, 1450, g.Ledger.Cash(p1.ID))

	send(g, p1, models.CmdBuildHouse, "Rio")
	assert.Equal(t, 1400, g.Ledger.Cash(p1.ID))

	// Now Salvador may take its second house.
	send(g, p1, models.CmdBuildHouse, "Salvador")
	own, _ := g.Ledger.Ownership("Salvador")
	assert.Equal(t, 2, own.Houses)

	// Destruction must come off the tallest member first.
	send(g, p1, models.CmdDestroyHouse, "Rio")
	rej = mb.lastRejection(p1.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindRuleViolation, rej.Kind)

	send(g, p1, models.CmdDestroyHouse, "Salvador")
	own, _ = g.Ledger.Ownership("Salvador")
	assert.Equal(t, 1, own.Houses)
	assert.Equal(t, 1375, g.Ledger.Cash(p1.ID), "half build cost refunded")
}

func TestHotelRequiresWholeSetAtFourHouses(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	p1 := players[0]
	require.NoError(t, g.Ledger.SetOwnership("Salvador", p1.ID))
	require.NoError(t, g.Ledger.SetOwnership("Rio", p1.ID))

	for i := 0; i < MaxHouses; i++ {
		require.NoError(t, g.Ledger.UpdateBuild("Salvador", 1))
	}
	for i := 0; i < MaxHouses-1; i++ {
		require.NoError(t, g.Ledger.UpdateBuild("Rio", 1))
	}

	// Rio sits at three houses, so no hotel on Salvador yet.
	send(g, p1, models.CmdBuildHouse, "Salvador")
	rej := mb.lastRejection(p1.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindRuleViolation, rej.Kind)

	require.NoError(t, g.Ledger.UpdateBuild("Rio", 1))
	send(g, p1, models.CmdBuildHouse, "Salvador")
	own, _ := g.Ledger.Ownership("Salvador")
	assert.True(t, own.Hotel)
	assert.Equal(t, 0, own.Houses)
}

func TestMortgageAndUnmortgage(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	p1 := players[0]
	require.NoError(t, g.Ledger.SetOwnership("Rio", p1.ID))

	send(g, p1, models.CmdMortgage, "Rio")
	assert.Equal(t, 1530, g.Ledger.Cash(p1.ID), "half price advanced")
	own, _ := g.Ledger.Ownership("Rio")
	assert.True(t, own.Mortgaged)

	// Lifting costs the principal plus 10% interest: 30 + 3.
	send(g, p1, models.CmdUnmortgage, "Rio")
	assert.Equal(t, 1497, g.Ledger.Cash(p1.ID))
	own, _ = g.Ledger.Ownership("Rio")
	assert.False(t, own.Mortgaged)

	send(g, p1, models.CmdUnmortgage, "Rio")
	rej := mb.lastRejection(p1.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindRuleViolation, rej.Kind)
}

func TestSellPropertyBackToBank(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	p1 := players[0]
	require.NoError(t, g.Ledger.SetOwnership("Rio", p1.ID))
	require.NoError(t, g.Ledger.SetOwnership("Salvador", p1.ID))
	require.NoError(t, g.Ledger.UpdateBuild("Rio", 1))

	// A built street must be cleared before sale.
	send(g, p1, models.CmdSellProperty, "Rio")
	rej := mb.lastRejection(p1.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindRuleViolation, rej.Kind)

	send(g, p1, models.CmdSellProperty, "Salvador")
	assert.Equal(t, 1530, g.Ledger.Cash(p1.ID))
	_, owned := g.Ledger.Ownership("Salvador")
	assert.False(t, owned)
}

func TestAssetCommandsBlockedDuringDecision(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	p1 := players[0]
	require.NoError(t, g.Ledger.SetOwnership("Venice", p1.ID))

	roll(g, p1, 1, 2) // Rio decision pending
	require.Equal(t, StateAwaitingPropertyDecision, g.State)

	send(g, p1, models.CmdMortgage, "Venice")
	rej := mb.lastRejection(p1.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindInvalidStateTransition, rej.Kind)
}

func TestEndTurnBlockedOnNegativeBalance(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	p1, p2 := players[0], players[1]
	require.NoError(t, g.Ledger.SetOwnership("Rio", p1.ID))
	require.NoError(t, g.Ledger.Transfer(p1.ID, Bank, 1520)) // balance -20

	roll(g, p1, 1, 2) // own property, nothing to resolve
	require.Equal(t, StateAwaitingEndTurn, g.State)

	send(g, p1, models.CmdEndTurn, "")
	rej := mb.lastRejection(p1.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindInsufficientFunds, rej.Kind)
	assert.Equal(t, -20, rej.Detail["balance"])
	assert.Equal(t, p1.ID, g.Players[g.TurnIndex].ID)

	// Mortgaging restores solvency and unblocks the turn boundary.
	send(g, p1, models.CmdMortgage, "Rio")
	assert.Equal(t, 10, g.Ledger.Cash(p1.ID))
	send(g, p1, models.CmdEndTurn, "")
	assert.Equal(t, p2.ID, g.Players[g.TurnIndex].ID)
}

func TestRecoverableDebtIsNotBankruptcy(t *testing.T) {
	g, players, _ := setupTestGame(t, 3, nil)
	p1 := players[0]
	require.NoError(t, g.Ledger.SetOwnership("Salvador", p1.ID))
	require.NoError(t, g.Ledger.SetOwnership("Rio", p1.ID))
	require.NoError(t, g.Ledger.Transfer(p1.ID, Bank, 1460)) // leaves 40
	p1.Position = 35

	roll(g, p1, 1, 2) // Luxury Tax at 38: -100
	assert.Equal(t, -60, g.Ledger.Cash(p1.ID))
	assert.False(t, p1.Bankrupt, "liquidation could still cover the debt")
	assert.Equal(t, StateAwaitingEndTurn, g.State)
}

func TestHopelessDebtAutoBankruptcy(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	p1, p2 := players[0], players[1]

	var endedWinner uuid.UUID
	var endedWorth map[uuid.UUID]int
	g.OnGameEnd = func(winnerID uuid.UUID, netWorth map[uuid.UUID]int) {
		endedWinner = winnerID
		endedWorth = netWorth
	}

	require.NoError(t, g.Ledger.SetOwnership("Rio", p1.ID))
	require.NoError(t, g.Ledger.Transfer(p1.ID, Bank, 1460)) // leaves 40
	p1.Position = 35

	// Luxury Tax drops the balance to -60; Rio can raise only 30.
	roll(g, p1, 1, 2)
	assert.True(t, p1.Bankrupt)
	_, owned := g.Ledger.Ownership("Rio")
	assert.False(t, owned, "holdings return to the bank")

	assert.True(t, g.GameOver)
	assert.Equal(t, p2.ID, g.WinnerID)
	assert.Equal(t, p2.ID, endedWinner)
	require.NotNil(t, endedWorth)
	assert.Equal(t, 1500, endedWorth[p2.ID])
}

func TestBankruptPlayerCannotAct(t *testing.T) {
	g, players, mb := setupTestGame(t, 3, nil)
	p1 := players[0]
	p1.Bankrupt = true
	g.advanceTurn()
	mb.clear()

	roll(g, p1, 1, 2)
	rej := mb.lastRejection(p1.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindRuleViolation, rej.Kind)
}

func TestVoluntaryBankruptcyUnblocksTurn(t *testing.T) {
	g, players, mb := setupTestGame(t, 3, nil)
	p1, p2 := players[0], players[1]
	require.NoError(t, g.Ledger.SetOwnership("Rio", p1.ID))
	require.NoError(t, g.Ledger.Transfer(p1.ID, Bank, 1520)) // balance -20

	roll(g, p1, 1, 2) // own property, nothing to resolve
	require.Equal(t, StateAwaitingEndTurn, g.State)

	// end_turn stays blocked while the balance is negative.
	send(g, p1, models.CmdEndTurn, "")
	rej := mb.lastRejection(p1.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindInsufficientFunds, rej.Kind)

	// Resigning instead of liquidating hands the turn on.
	send(g, p1, models.CmdBankrupt, "")
	assert.True(t, p1.Bankrupt)
	_, owned := g.Ledger.Ownership("Rio")
	assert.False(t, owned, "holdings return to the bank")
	assert.Equal(t, p2.ID, g.Players[g.TurnIndex].ID)
	assert.Equal(t, StateAwaitingRoll, g.State)
	assert.False(t, g.GameOver, "two players remain")
}

func TestVoluntaryBankruptcyDuringDecision(t *testing.T) {
	g, players, mb := setupTestGame(t, 3, noAuctions())
	p1, p2 := players[0], players[1]

	roll(g, p1, 1, 2)
	require.Equal(t, StateAwaitingPropertyDecision, g.State)

	send(g, p1, models.CmdBankrupt, "")
	assert.True(t, p1.Bankrupt)
	assert.Nil(t, g.Pending, "the open decision dies with the player")
	assert.Equal(t, p2.ID, g.Players[g.TurnIndex].ID)
	assert.Equal(t, StateAwaitingRoll, g.State)

	// A bankrupt player cannot resign twice.
	send(g, p1, models.CmdBankrupt, "")
	rej := mb.lastRejection(p1.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindRuleViolation, rej.Kind)
}

func TestAuctionAfterDecline(t *testing.T) {
	g, players, _ := setupTestGame(t, 3, nil)
	p1, p2, p3 := players[0], players[1], players[2]

	var scheduled []models.Command
	g.ScheduleFn = func(d time.Duration, cmd models.Command) {
		scheduled = append(scheduled, cmd)
	}

	roll(g, p1, 1, 2)
	send(g, p1, models.CmdDeclineProperty, "")
	require.NotNil(t, g.Auction)
	assert.Equal(t, StateAwaitingAuction, g.State)
	assert.Equal(t, []uuid.UUID{p1.ID, p2.ID, p3.ID}, g.Auction.Order,
		"bidding starts with the declining player")
	require.Len(t, scheduled, 1)
	assert.Equal(t, models.CmdAuctionTimeout, scheduled[0].Type)

	g.HandleCommand(p1.ID, models.Command{Type: models.CmdAuctionBid, Increment: 2})
	send(g, p2, models.CmdAuctionPass, "")
	send(g, p3, models.CmdAuctionPass, "")

	// P1 stands alone and wins at the high bid.
	assert.Nil(t, g.Auction)
	own, ok := g.Ledger.Ownership("Rio")
	require.True(t, ok)
	assert.Equal(t, p1.ID, own.Owner)
	assert.Equal(t, 1498, g.Ledger.Cash(p1.ID))

	// The turn returns to the player who triggered the auction.
	assert.Equal(t, StateAwaitingEndTurn, g.State)
	assert.Equal(t, p1.ID, g.Players[g.TurnIndex].ID)
}

func TestAuctionAllPassLeavesUnowned(t *testing.T) {
	g, players, _ := setupTestGame(t, 3, nil)
	p1, p2, p3 := players[0], players[1], players[2]
	g.ScheduleFn = func(d time.Duration, cmd models.Command) {}

	roll(g, p1, 1, 2)
	send(g, p1, models.CmdDeclineProperty, "")
	send(g, p1, models.CmdAuctionPass, "")
	send(g, p2, models.CmdAuctionPass, "")
	send(g, p3, models.CmdAuctionPass, "")

	assert.Nil(t, g.Auction)
	_, owned := g.Ledger.Ownership("Rio")
	assert.False(t, owned)
	assert.Equal(t, StateAwaitingEndTurn, g.State)
}

func TestAuctionTimeoutAwardsHighBidder(t *testing.T) {
	g, players, _ := setupTestGame(t, 3, nil)
	p1, p2 := players[0], players[1]

	var scheduled []models.Command
	g.ScheduleFn = func(d time.Duration, cmd models.Command) {
		scheduled = append(scheduled, cmd)
	}

	roll(g, p1, 1, 2)
	send(g, p1, models.CmdDeclineProperty, "")
	g.HandleCommand(p1.ID, models.Command{Type: models.CmdAuctionBid, Increment: 2})
	g.HandleCommand(p2.ID, models.Command{Type: models.CmdAuctionBid, Increment: 10})

	// A timeout arriving while the deadline is still ahead only re-arms.
	timeout := scheduled[0]
	before := len(scheduled)
	g.HandleCommand(uuid.Nil, timeout)
	require.NotNil(t, g.Auction)
	assert.Equal(t, before+1, len(scheduled), "timer re-armed for the remaining time")

	// Force expiry and deliver the timeout again.
	g.Auction.Deadline = time.Now().Add(-time.Second)
	g.HandleCommand(uuid.Nil, timeout)

	assert.Nil(t, g.Auction)
	own, ok := g.Ledger.Ownership("Rio")
	require.True(t, ok)
	assert.Equal(t, p2.ID, own.Owner)
	assert.Equal(t, 1488, g.Ledger.Cash(p2.ID))
	assert.Equal(t, StateAwaitingEndTurn, g.State)
	assert.Equal(t, p1.ID, g.Players[g.TurnIndex].ID)

	// A stale timeout for the finished auction is ignored.
	g.HandleCommand(uuid.Nil, timeout)
	assert.Equal(t, StateAwaitingEndTurn, g.State)
}

func TestAuctionTimeoutWithNoBids(t *testing.T) {
	g, players, _ := setupTestGame(t, 3, nil)
	p1 := players[0]

	var scheduled []models.Command
	g.ScheduleFn = func(d time.Duration, cmd models.Command) {
		scheduled = append(scheduled, cmd)
	}

	roll(g, p1, 1, 2)
	send(g, p1, models.CmdDeclineProperty, "")
	g.Auction.Deadline = time.Now().Add(-time.Second)
	g.HandleCommand(uuid.Nil, scheduled[0])

	assert.Nil(t, g.Auction)
	_, owned := g.Ledger.Ownership("Rio")
	assert.False(t, owned)
	assert.Equal(t, StateAwaitingEndTurn, g.State)
}

func TestAuctionBidOutOfTurn(t *testing.T) {
	g, players, mb := setupTestGame(t, 3, nil)
	p1, p3 := players[0], players[2]
	g.ScheduleFn = func(d time.Duration, cmd models.Command) {}

	roll(g, p1, 1, 2)
	send(g, p1, models.CmdDeclineProperty, "")

	g.HandleCommand(p3.ID, models.Command{Type: models.CmdAuctionBid, Increment: 2})
	rej := mb.lastRejection(p3.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindNotYourTurn, rej.Kind)
}

func TestRollOutOfTurnRejected(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	p2 := players[1]

	roll(g, p2, 1, 2)
	rej := mb.lastRejection(p2.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindNotYourTurn, rej.Kind)
	assert.Equal(t, 0, p2.Position)
}

func TestUnknownPlayerRejected(t *testing.T) {
	g, _, mb := setupTestGame(t, 2, nil)
	ghost := uuid.New()

	g.HandleCommand(ghost, models.Command{Type: models.CmdRollDice})
	rej := mb.lastRejection(ghost)
	require.NotNil(t, rej)
	assert.Equal(t, KindNotFound, rej.Kind)
}

func TestRemovePlayerBeforeStartReordersSeats(t *testing.T) {
	g := NewGame(uuid.New(), board.Classic(), DefaultSettings(), 1)
	a, _ := g.AddPlayer("a", false)
	b, _ := g.AddPlayer("b", false)
	c, _ := g.AddPlayer("c", false)

	g.RemovePlayer(b.ID)
	require.Len(t, g.Players, 2)
	assert.Equal(t, a.ID, g.Players[0].ID)
	assert.Equal(t, c.ID, g.Players[1].ID)
	assert.Equal(t, 1, c.Ordinal)
	assert.Equal(t, playerColors[1], c.Color)
}

func TestRemovePlayerAfterStartIsBankruptcy(t *testing.T) {
	g, players, _ := setupTestGame(t, 3, nil)
	p1, p2 := players[0], players[1]
	require.NoError(t, g.Ledger.SetOwnership("Rio", p1.ID))

	g.RemovePlayer(p1.ID)
	assert.True(t, p1.Bankrupt)
	_, owned := g.Ledger.Ownership("Rio")
	assert.False(t, owned)
	assert.False(t, g.GameOver, "two players remain")
	assert.Equal(t, p2.ID, g.Players[g.TurnIndex].ID, "the leaver's turn passes on")
}

func TestInvariantFailureHaltsRoom(t *testing.T) {
	g, players, mb := setupTestGame(t, 2, nil)
	p1 := players[0]

	// Corrupt the ledger behind the engine's back: a tax space cannot be
	// owned, so the post-command sweep must trip.
	g.Ledger.owned["Income Tax"] = &Ownership{Owner: p1.ID}

	roll(g, p1, 1, 2)
	assert.True(t, g.Halted)
	ev := mb.lastEvent()
	require.NotNil(t, ev)
	assert.Equal(t, EventActionRejected, ev.Type)

	mb.clear()
	send(g, p1, models.CmdBuyProperty, "Rio")
	rej := mb.lastRejection(p1.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindRuleViolation, rej.Kind)
}

func TestCommandsRejectedBeforeStart(t *testing.T) {
	g := NewGame(uuid.New(), board.Classic(), DefaultSettings(), 1)
	mb := newMockBroadcaster()
	g.BroadcastFn = mb.broadcastFn
	g.BroadcastToPlayerFn = mb.broadcastToPlayerFn
	p, _ := g.AddPlayer("early", false)

	roll(g, p, 1, 2)
	rej := mb.lastRejection(p.ID)
	require.NotNil(t, rej)
	assert.Equal(t, KindInvalidStateTransition, rej.Kind)
}

func TestSnapshotReflectsState(t *testing.T) {
	g, players, _ := setupTestGame(t, 2, nil)
	p1 := players[0]

	roll(g, p1, 1, 2)
	send(g, p1, models.CmdBuyProperty, "Rio")

	snap := g.BuildSnapshot()
	assert.Equal(t, g.ID, snap.RoomID)
	assert.Equal(t, "classic", snap.BoardMap)
	assert.Equal(t, StateAwaitingEndTurn, snap.State)
	assert.Equal(t, p1.ID, snap.CurrentPlayerID)
	require.Len(t, snap.Players, 2)
	assert.Equal(t, 1440, snap.Players[0].Cash)
	assert.True(t, snap.Players[0].IsCurrentTurn)
	assert.False(t, snap.Players[1].IsCurrentTurn)
	own, ok := snap.Ownerships["Rio"]
	require.True(t, ok)
	assert.Equal(t, p1.ID, own.Owner)
	require.NotNil(t, snap.LastRoll)
	assert.Equal(t, 3, snap.LastRoll.Total())
}
