// internal/game/game.go
package game

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/landlord/internal/board"
	"github.com/jason-s-yu/landlord/internal/models"
)

// TurnState is the single canonical turn-machine state broadcast to clients.
// Clients derive all button visibility from it; there are no parallel flags.
type TurnState string

const (
	StateAwaitingRoll             TurnState = "awaiting-roll"
	StateAwaitingRollAgain        TurnState = "awaiting-roll-again"
	StateAwaitingPropertyDecision TurnState = "awaiting-property-decision"
	StateAwaitingAuction          TurnState = "awaiting-auction"
	StateAwaitingEndTurn          TurnState = "awaiting-end-turn"
)

// EventType is an enum-like type for events broadcast to room members.
type EventType string

const (
	EventStateSnapshot  EventType = "stateSnapshot"
	EventLogAppended    EventType = "logAppended"
	EventActionRejected EventType = "actionRejected"
)

// Event is the single envelope for all engine-to-client traffic.
type Event struct {
	Type      EventType        `json:"type"`
	State     *Snapshot        `json:"state,omitempty"`
	Log       *models.LogEntry `json:"log,omitempty"`
	Rejection *Rejection       `json:"rejection,omitempty"`
}

// OnGameEndFunc receives the final outcome for persistence or lobby cleanup.
type OnGameEndFunc func(winnerID uuid.UUID, netWorth map[uuid.UUID]int)

// PendingDecision records a landing on an unowned purchasable space that the
// landing player must buy or decline.
type PendingDecision struct {
	Property string    `json:"property"`
	PlayerID uuid.UUID `json:"playerId"`
}

// playerColors is the palette assigned by join order; unique per room.
var playerColors = []string{"red", "blue", "green", "yellow", "purple", "orange", "cyan", "pink"}

// MaxPlayers caps room membership at the color palette size.
var MaxPlayers = len(playerColors)

type surpriseEffect struct {
	message string
	cash    int // positive: bank pays player; negative: player pays (a fee)
	pardon  bool
}

// surpriseEffects cycle deterministically per room as card spaces are hit.
var surpriseEffects = []surpriseEffect{
	{message: "found a lost wallet", cash: 100},
	{message: "received an airline refund", cash: 50},
	{message: "got a speeding ticket", cash: -100},
	{message: "was granted a pardon card", pardon: true},
	{message: "received a tax refund", cash: 150},
	{message: "paid a repair bill", cash: -50},
}

// Game is the authoritative engine state for one room. It has no internal
// locking: the room session feeds it commands from a single worker
// goroutine, which is the only caller.
type Game struct {
	ID       uuid.UUID
	Board    *board.Map
	Settings Settings

	Players []*models.Player
	Ledger  *Ledger
	Roller  *Roller

	Started  bool
	GameOver bool
	WinnerID uuid.UUID

	// Halted is set when a ledger invariant check fails; the room refuses
	// all further commands but the process keeps serving other rooms.
	Halted bool

	State      TurnState
	Round      int
	TurnIndex  int
	LastRoll   *Roll
	LastAction SpecialAction

	// doublesPending means the current player resolved a doubles roll with
	// no overriding special action and may roll again after ending this
	// roll's business.
	doublesPending bool

	VacationPool int
	Pending      *PendingDecision
	Auction      *Auction
	auctionGen   int
	surpriseIdx  int

	// BroadcastFn sends an event to every room member. If nil, no broadcast.
	BroadcastFn func(ev Event)

	// BroadcastToPlayerFn sends an event to a single member (rejections).
	BroadcastToPlayerFn func(playerID uuid.UUID, ev Event)

	// ScheduleFn asks the room session to inject a synthetic command into
	// the room queue after a delay. Timers never touch the engine directly.
	ScheduleFn func(d time.Duration, cmd models.Command)

	// LogFn receives every appended log entry for async persistence.
	LogFn func(entry models.LogEntry)

	// OnGameEnd is invoked once when the game resolves.
	OnGameEnd OnGameEndFunc
}

// NewGame builds an engine instance for one room over the given board.
func NewGame(id uuid.UUID, m *board.Map, settings Settings, seed int64) *Game {
	return &Game{
		ID:         id,
		Board:      m,
		Settings:   settings,
		Ledger:     NewLedger(m),
		Roller:     NewRoller(seed),
		State:      StateAwaitingRoll,
		LastAction: ActionNone,
	}
}

// AddPlayer registers a player before the game starts. Color and ordinal
// follow join order.
func (g *Game) AddPlayer(name string, isBot bool) (*models.Player, error) {
	if g.Started {
		return nil, fmt.Errorf("game already started")
	}
	if len(g.Players) >= MaxPlayers {
		return nil, fmt.Errorf("room is full (%d players)", MaxPlayers)
	}
	id, _ := uuid.NewRandom()
	p := &models.Player{
		ID:        id,
		Name:      name,
		Color:     playerColors[len(g.Players)],
		Cash:      g.Settings.StartingCash,
		IsBot:     isBot,
		Connected: true,
		Ordinal:   len(g.Players),
		Position:  board.StartPosition,
		Status:    models.StatusNormal,
	}
	g.Players = append(g.Players, p)
	g.Ledger.AddAccount(p.ID, g.Settings.StartingCash)
	g.logf(p.ID, "player_join", "%s joined the room", name)
	return p, nil
}

// RemovePlayer handles an explicit leave or kick. After the game starts this
// is treated as bankruptcy so the rotation stays consistent.
func (g *Game) RemovePlayer(playerID uuid.UUID) {
	p := g.getPlayerByID(playerID)
	if p == nil {
		return
	}
	if !g.Started {
		for i, pl := range g.Players {
			if pl.ID == playerID {
				g.Players = append(g.Players[:i], g.Players[i+1:]...)
				break
			}
		}
		for i, pl := range g.Players {
			pl.Ordinal = i
			pl.Color = playerColors[i]
		}
		g.logf(playerID, "player_leave", "%s left the room", p.Name)
		return
	}
	if !p.Bankrupt {
		g.logf(playerID, "player_leave", "%s left the game", p.Name)
		g.declareBankrupt(p)
	}
}

// Start begins the turn cycle once at least two players have joined.
func (g *Game) Start() error {
	if g.Started {
		return fmt.Errorf("game already started")
	}
	if len(g.Players) < 2 {
		return fmt.Errorf("need at least 2 players, have %d", len(g.Players))
	}
	g.Started = true
	g.Round = 1
	g.TurnIndex = 0
	g.State = StateAwaitingRoll
	g.logf(uuid.Nil, "game_start", "game started with %d players", len(g.Players))
	g.broadcastSnapshot()
	return nil
}

// HandleCommand validates and applies a single player command. It is the
// only entry point for state mutation after Start.
func (g *Game) HandleCommand(playerID uuid.UUID, cmd models.Command) {
	if cmd.Type == models.CmdAuctionTimeout {
		// Synthetic; ignored silently when stale.
		g.handleAuctionTimeout(cmd)
		return
	}

	if g.Halted {
		g.rejectTo(playerID, reject(cmd.Type, KindRuleViolation, "room halted after a state consistency failure"))
		return
	}
	if !g.Started || g.GameOver {
		g.rejectTo(playerID, reject(cmd.Type, KindInvalidStateTransition, "game is not in progress"))
		return
	}
	p := g.getPlayerByID(playerID)
	if p == nil {
		g.rejectTo(playerID, reject(cmd.Type, KindNotFound, "unknown player"))
		return
	}
	if p.Bankrupt {
		g.rejectTo(playerID, reject(cmd.Type, KindRuleViolation, "bankrupt players cannot act"))
		return
	}

	var rej *Rejection
	switch cmd.Type {
	case models.CmdRollDice:
		rej = g.handleRollDice(p, cmd)
	case models.CmdBuyProperty:
		rej = g.handleBuyProperty(p, cmd)
	case models.CmdDeclineProperty:
		rej = g.handleDeclineProperty(p, cmd)
	case models.CmdAuctionBid:
		rej = g.handleAuctionBid(p, cmd)
	case models.CmdAuctionPass:
		rej = g.handleAuctionPass(p, cmd)
	case models.CmdPayJailFine:
		rej = g.handlePayJailFine(p, cmd)
	case models.CmdUseJailCard:
		rej = g.handleUseJailCard(p, cmd)
	case models.CmdBuildHouse:
		rej = g.handleBuild(p, cmd)
	case models.CmdDestroyHouse:
		rej = g.handleDestroy(p, cmd)
	case models.CmdMortgage:
		rej = g.handleMortgage(p, cmd)
	case models.CmdUnmortgage:
		rej = g.handleUnmortgage(p, cmd)
	case models.CmdSellProperty:
		rej = g.handleSell(p, cmd)
	case models.CmdEndTurn:
		rej = g.handleEndTurn(p, cmd)
	case models.CmdBankrupt:
		rej = g.handleBankrupt(p, cmd)
	default:
		rej = reject(cmd.Type, KindNotFound, "unknown command type")
	}

	if rej != nil {
		g.rejectTo(playerID, rej)
		return
	}

	if err := g.Ledger.CheckInvariants(); err != nil {
		g.halt(err)
		return
	}
	g.broadcastSnapshot()
}

// --- dice & movement ---

func (g *Game) handleRollDice(p *models.Player, cmd models.Command) *Rejection {
	if rej := g.requireTurn(p, cmd.Type); rej != nil {
		return rej
	}
	if g.State != StateAwaitingRoll && g.State != StateAwaitingRollAgain {
		return reject(cmd.Type, KindInvalidStateTransition, "cannot roll in state %s", g.State)
	}

	roll := g.Roller.Roll(cmd.Dice)
	g.LastRoll = &roll
	g.logf(p.ID, "dice_roll", "%s rolled %d and %d", p.Name, roll.D1, roll.D2)

	if p.Status == models.StatusJail {
		return g.resolveJailTurn(p, roll)
	}

	// Priority 1: three consecutive doubles overrides any space action.
	if recordDoublesRoll(p, roll) {
		g.LastAction = ActionJail
		sendToJail(p)
		g.logf(p.ID, "go_to_jail", "%s rolled three consecutive doubles and was sent to prison", p.Name)
		g.finishTurn(true)
		return nil
	}

	g.movePlayer(p, roll.Total())

	def, _ := g.Board.ByPosition(p.Position)
	switch p.Position {
	case board.GoToJailPosition:
		g.LastAction = ActionGoToJail
		sendToJail(p)
		g.logf(p.ID, "go_to_jail", "%s was sent to prison", p.Name)
		g.finishTurn(true)
		return nil
	case board.VacationPosition:
		g.LastAction = ActionVacation
		p.Status = models.StatusVacation
		p.VacationStartRound = g.Round
		g.logf(p.ID, "vacation", "%s is going on vacation", p.Name)
		if g.Settings.CollectVacationCash && g.VacationPool > 0 {
			payout := g.VacationPool
			g.VacationPool = 0
			g.mustTransfer(Bank, p.ID, payout)
			g.logf(p.ID, "vacation_cash", "%s collected %d from the vacation pool", p.Name, payout)
		}
		g.finishTurn(true)
		return nil
	}

	// Priority 5/6: record the doubles outcome before space resolution so a
	// pending property decision carries the roll-again state to end_turn.
	g.doublesPending = roll.IsDoubles()

	g.resolveSpaceLanding(p, def, roll)
	if g.State == StateAwaitingPropertyDecision || g.GameOver || p.Bankrupt {
		return nil
	}

	if g.doublesPending {
		g.LastAction = ActionDoubles
		g.State = StateAwaitingRollAgain
	} else {
		g.LastAction = ActionNone
		g.State = StateAwaitingEndTurn
	}
	return nil
}

// resolveJailTurn applies an escape roll for a jailed player. Escaping on
// doubles does not grant another roll.
func (g *Game) resolveJailTurn(p *models.Player, roll Roll) *Rejection {
	g.LastAction = ActionJail
	g.doublesPending = false
	switch resolveJailRoll(p, roll, g.Settings.MaxJailRounds) {
	case jailStay:
		g.logf(p.ID, "jail_stay", "%s failed to roll doubles and stays in prison (round %d)", p.Name, p.JailRounds)
		g.State = StateAwaitingEndTurn
		return nil
	case jailEscapeDoubles:
		g.logf(p.ID, "jail_escape", "%s rolled doubles and escaped prison", p.Name)
	case jailAutoRelease:
		g.logf(p.ID, "jail_release", "%s served the full sentence and was released", p.Name)
	}

	g.movePlayer(p, roll.Total())
	def, _ := g.Board.ByPosition(p.Position)
	g.resolveSpaceLanding(p, def, roll)
	if g.State != StateAwaitingPropertyDecision && !g.GameOver {
		g.State = StateAwaitingEndTurn
	}
	return nil
}

// movePlayer advances the token and credits start bonuses. Bonuses are
// issued by the bank directly to the player, never the vacation pool.
func (g *Game) movePlayer(p *models.Player, total int) {
	newPos, passedStart, landedStart := ResolveMove(p.Position, total, g.Board.Size())
	p.Position = newPos
	if landedStart && g.Settings.StartLandingBonus > 0 {
		g.mustTransfer(Bank, p.ID, g.Settings.StartLandingBonus)
		g.logf(p.ID, "start_bonus", "%s landed on Start and collected %d", p.Name, g.Settings.StartLandingBonus)
	} else if passedStart && g.Settings.StartPassBonus > 0 {
		g.mustTransfer(Bank, p.ID, g.Settings.StartPassBonus)
		g.logf(p.ID, "start_bonus", "%s passed Start and collected %d", p.Name, g.Settings.StartPassBonus)
	}
}

// resolveSpaceLanding handles tax, card and property spaces. Corner specials
// are resolved by the caller before this point.
func (g *Game) resolveSpaceLanding(p *models.Player, def *board.Definition, roll Roll) {
	if def == nil {
		return
	}
	switch def.Type {
	case board.SpaceTax:
		g.chargeFee(p, def.Tax, fmt.Sprintf("%s paid %d %s", p.Name, def.Tax, def.Name))
	case board.SpaceCard:
		g.drawSurprise(p)
	case board.SpaceStreet, board.SpaceAirport, board.SpaceUtility:
		own, owned := g.Ledger.Ownership(def.Name)
		if !owned {
			g.Pending = &PendingDecision{Property: def.Name, PlayerID: p.ID}
			g.State = StateAwaitingPropertyDecision
			g.logf(p.ID, "property_landing", "%s landed on unowned %s (price %d)", p.Name, def.Name, def.Price)
			return
		}
		if own.Owner == p.ID {
			return
		}
		owner := g.getPlayerByID(own.Owner)
		ownerStatus := models.StatusNormal
		ownerName := "the bank"
		if owner != nil {
			ownerStatus = owner.Status
			ownerName = owner.Name
		}
		rent := ComputeRent(def, own, roll.Total(), g.Settings, ownerStatus, g.Ledger)
		if rent == 0 {
			return
		}
		g.mustTransfer(p.ID, own.Owner, rent)
		g.logf(p.ID, "rent_paid", "%s paid %d rent to %s for %s", p.Name, rent, ownerName, def.Name)
		g.checkDebt(p)
	}
}

// chargeFee debits the player to the bank, feeding the vacation pool when
// that rule is enabled.
func (g *Game) chargeFee(p *models.Player, amount int, message string) {
	if amount <= 0 {
		return
	}
	g.mustTransfer(p.ID, Bank, amount)
	if g.Settings.CollectVacationCash {
		g.VacationPool += amount
	}
	g.logf(p.ID, "fee_paid", "%s", message)
	g.checkDebt(p)
}

func (g *Game) drawSurprise(p *models.Player) {
	eff := surpriseEffects[g.surpriseIdx%len(surpriseEffects)]
	g.surpriseIdx++
	switch {
	case eff.pardon:
		p.PardonCards++
		g.logf(p.ID, "surprise", "%s %s", p.Name, eff.message)
	case eff.cash >= 0:
		g.mustTransfer(Bank, p.ID, eff.cash)
		g.logf(p.ID, "surprise", "%s %s (+%d)", p.Name, eff.message, eff.cash)
	default:
		g.chargeFee(p, -eff.cash, fmt.Sprintf("%s %s (-%d)", p.Name, eff.message, -eff.cash))
	}
}

// --- property decision & auction ---

func (g *Game) handleBuyProperty(p *models.Player, cmd models.Command) *Rejection {
	if g.State != StateAwaitingPropertyDecision || g.Pending == nil {
		return reject(cmd.Type, KindInvalidStateTransition, "no property decision pending")
	}
	if g.Pending.PlayerID != p.ID {
		return reject(cmd.Type, KindNotYourTurn, "the decision belongs to another player")
	}
	if cmd.Property != "" && cmd.Property != g.Pending.Property {
		return reject(cmd.Type, KindNotFound, "pending decision is for %s, not %s", g.Pending.Property, cmd.Property)
	}
	def, _ := g.Board.ByName(g.Pending.Property)
	if g.Ledger.Cash(p.ID) < def.Price {
		return reject(cmd.Type, KindInsufficientFunds, "%s costs %d, you have %d", def.Name, def.Price, g.Ledger.Cash(p.ID)).
			withDetail("balance", g.Ledger.Cash(p.ID))
	}
	g.mustTransfer(p.ID, Bank, def.Price)
	if err := g.Ledger.SetOwnership(def.Name, p.ID); err != nil {
		return reject(cmd.Type, KindAlreadyOwned, "%v", err)
	}
	g.logf(p.ID, "property_bought", "%s bought %s for %d", p.Name, def.Name, def.Price)
	g.Pending = nil
	g.State = StateAwaitingEndTurn
	return nil
}

func (g *Game) handleDeclineProperty(p *models.Player, cmd models.Command) *Rejection {
	if g.State != StateAwaitingPropertyDecision || g.Pending == nil {
		return reject(cmd.Type, KindInvalidStateTransition, "no property decision pending")
	}
	if g.Pending.PlayerID != p.ID {
		return reject(cmd.Type, KindNotYourTurn, "the decision belongs to another player")
	}
	property := g.Pending.Property
	g.Pending = nil
	g.logf(p.ID, "property_declined", "%s declined to buy %s", p.Name, property)

	if !g.Settings.AuctionsEnabled {
		g.State = StateAwaitingEndTurn
		return nil
	}

	// Participants: everyone still solvent at auction start, in turn order
	// beginning with the declining player.
	var bidders []uuid.UUID
	n := len(g.Players)
	for i := 0; i < n; i++ {
		pl := g.Players[(g.TurnIndex+i)%n]
		if pl.Active() && g.Ledger.Cash(pl.ID) > 0 {
			bidders = append(bidders, pl.ID)
		}
	}
	if len(bidders) == 0 {
		g.State = StateAwaitingEndTurn
		return nil
	}

	g.auctionGen++
	timer := time.Duration(g.Settings.AuctionTimerSec) * time.Second
	g.Auction = newAuction(property, p.ID, bidders, g.auctionGen, timer)
	g.State = StateAwaitingAuction
	g.logf(uuid.Nil, "auction_start", "auction started for %s with %d bidders", property, len(bidders))
	g.scheduleAuctionTimeout(timer)
	return nil
}

func (g *Game) scheduleAuctionTimeout(d time.Duration) {
	if g.ScheduleFn == nil {
		return
	}
	g.ScheduleFn(d, models.Command{Type: models.CmdAuctionTimeout, Generation: g.auctionGen})
}

func (g *Game) handleAuctionBid(p *models.Player, cmd models.Command) *Rejection {
	if g.State != StateAwaitingAuction || g.Auction == nil {
		return reject(cmd.Type, KindInvalidStateTransition, "no auction in progress")
	}
	if g.Auction.CurrentBidder() != p.ID {
		return reject(cmd.Type, KindNotYourTurn, "it is not your turn to bid")
	}
	timer := time.Duration(g.Settings.AuctionTimerSec) * time.Second
	amount, err := g.Auction.placeBid(p.ID, cmd.Increment, g.Ledger.Cash(p.ID), timer)
	if err != nil {
		return reject(cmd.Type, KindRuleViolation, "%v", err)
	}
	g.logf(p.ID, "auction_bid", "%s bid %d for %s", p.Name, amount, g.Auction.Property)
	return nil
}

func (g *Game) handleAuctionPass(p *models.Player, cmd models.Command) *Rejection {
	if g.State != StateAwaitingAuction || g.Auction == nil {
		return reject(cmd.Type, KindInvalidStateTransition, "no auction in progress")
	}
	if g.Auction.CurrentBidder() != p.ID {
		return reject(cmd.Type, KindNotYourTurn, "it is not your turn to bid")
	}
	last, err := g.Auction.pass(p.ID)
	if err != nil {
		return reject(cmd.Type, KindRuleViolation, "%v", err)
	}
	g.logf(p.ID, "auction_pass", "%s passed", p.Name)
	if last != uuid.Nil {
		g.resolveAuction(last, g.Auction.HighBid)
	} else if g.Auction != nil && g.Auction.remaining() == 0 {
		g.resolveAuction(uuid.Nil, 0)
	}
	return nil
}

func (g *Game) handleAuctionTimeout(cmd models.Command) {
	if g.Halted || g.GameOver || g.Auction == nil || cmd.Generation != g.Auction.Generation {
		return
	}
	if remaining := time.Until(g.Auction.Deadline); remaining > 0 {
		// A bid reset the deadline since this timer was armed.
		g.scheduleAuctionTimeout(remaining)
		return
	}
	g.logf(uuid.Nil, "auction_timeout", "auction countdown for %s expired", g.Auction.Property)
	g.resolveAuction(g.Auction.HighBidder, g.Auction.HighBid)
	if err := g.Ledger.CheckInvariants(); err != nil {
		g.halt(err)
		return
	}
	g.broadcastSnapshot()
}

// resolveAuction closes the auction, debiting and assigning ownership to the
// winner if any, then returns the turn to the player who triggered it.
func (g *Game) resolveAuction(winner uuid.UUID, amount int) {
	a := g.Auction
	g.Auction = nil
	if winner == uuid.Nil {
		g.logf(uuid.Nil, "auction_unsold", "no bids for %s; the bank keeps it", a.Property)
	} else {
		g.mustTransfer(winner, Bank, amount)
		if err := g.Ledger.SetOwnership(a.Property, winner); err != nil {
			g.halt(err)
			return
		}
		winnerName := a.Property
		if pl := g.getPlayerByID(winner); pl != nil {
			winnerName = pl.Name
		}
		g.logf(winner, "auction_won", "%s won the auction for %s at %d", winnerName, a.Property, amount)
	}
	// The triggering player's turn resumes regardless of who won, unless
	// they went bankrupt while the auction ran.
	g.State = StateAwaitingEndTurn
	if cur := g.currentPlayer(); cur == nil || cur.Bankrupt {
		g.doublesPending = false
		g.advanceTurn()
	}
}

// --- jail escape commands ---

func (g *Game) handlePayJailFine(p *models.Player, cmd models.Command) *Rejection {
	if rej := g.requireJailEscape(p, cmd.Type); rej != nil {
		return rej
	}
	fine := g.Settings.JailFine
	if g.Ledger.Cash(p.ID) < fine {
		return reject(cmd.Type, KindInsufficientFunds, "the fine is %d, you have %d", fine, g.Ledger.Cash(p.ID)).
			withDetail("balance", g.Ledger.Cash(p.ID))
	}
	releaseFromJail(p)
	g.chargeFee(p, fine, fmt.Sprintf("%s paid the %d fine and left prison", p.Name, fine))
	// Paying does not end the turn; the player still rolls.
	g.State = StateAwaitingRoll
	return nil
}

func (g *Game) handleUseJailCard(p *models.Player, cmd models.Command) *Rejection {
	if rej := g.requireJailEscape(p, cmd.Type); rej != nil {
		return rej
	}
	if p.PardonCards <= 0 {
		return reject(cmd.Type, KindRuleViolation, "you hold no pardon cards")
	}
	p.PardonCards--
	releaseFromJail(p)
	g.logf(p.ID, "jail_card", "%s used a pardon card and left prison", p.Name)
	g.State = StateAwaitingRoll
	return nil
}

func (g *Game) requireJailEscape(p *models.Player, cmd models.CommandType) *Rejection {
	if rej := g.requireTurn(p, cmd); rej != nil {
		return rej
	}
	if p.Status != models.StatusJail {
		return reject(cmd, KindRuleViolation, "you are not in prison")
	}
	if g.State != StateAwaitingRoll {
		return reject(cmd, KindInvalidStateTransition, "escape options are only available before rolling")
	}
	return nil
}

// --- asset management ---

// requireAssetWindow gates build/mortgage/sell commands: only on your turn
// and never while an auction or property decision is open.
func (g *Game) requireAssetWindow(p *models.Player, cmd models.CommandType) *Rejection {
	if rej := g.requireTurn(p, cmd); rej != nil {
		return rej
	}
	switch g.State {
	case StateAwaitingRoll, StateAwaitingRollAgain, StateAwaitingEndTurn:
		return nil
	}
	return reject(cmd, KindInvalidStateTransition, "cannot manage assets in state %s", g.State)
}

func (g *Game) ownedStreet(p *models.Player, cmd models.CommandType, property string) (*board.Definition, *Ownership, *Rejection) {
	def, ok := g.Board.ByName(property)
	if !ok {
		return nil, nil, reject(cmd, KindNotFound, "unknown property %q", property)
	}
	own, owned := g.Ledger.Ownership(property)
	if !owned || own.Owner != p.ID {
		return nil, nil, reject(cmd, KindRuleViolation, "you do not own %s", property)
	}
	return def, own, nil
}

// setTierBounds returns the min and max build tier across the owned set.
func (g *Game) setTierBounds(set string) (minTier, maxTier int) {
	minTier, maxTier = MaxHouses+1, 0
	for _, def := range g.Board.SetMembers(set) {
		o, ok := g.Ledger.Ownership(def.Name)
		tier := 0
		if ok {
			tier = o.Tier()
		}
		if tier < minTier {
			minTier = tier
		}
		if tier > maxTier {
			maxTier = tier
		}
	}
	return minTier, maxTier
}

func (g *Game) handleBuild(p *models.Player, cmd models.Command) *Rejection {
	if rej := g.requireAssetWindow(p, cmd.Type); rej != nil {
		return rej
	}
	def, own, rej := g.ownedStreet(p, cmd.Type, cmd.Property)
	if rej != nil {
		return rej
	}
	if def.Type != board.SpaceStreet {
		return reject(cmd.Type, KindRuleViolation, "%s cannot carry buildings", def.Name)
	}
	if own.Mortgaged {
		return reject(cmd.Type, KindRuleViolation, "%s is mortgaged", def.Name)
	}
	if own.Hotel {
		return reject(cmd.Type, KindRuleViolation, "%s already has a hotel", def.Name)
	}
	if !g.Ledger.OwnsFullSet(p.ID, def.Set) {
		return reject(cmd.Type, KindRuleViolation, "you must own the full %s set to build", def.Set)
	}
	if g.Settings.EvenBuild {
		minTier, _ := g.setTierBounds(def.Set)
		if own.Tier() > minTier {
			return reject(cmd.Type, KindRuleViolation, "even building: %s is ahead of the rest of the %s set", def.Name, def.Set)
		}
		if own.Houses == MaxHouses {
			// Hotel requires every member at four houses or hotel.
			minTier, _ := g.setTierBounds(def.Set)
			if minTier < MaxHouses {
				return reject(cmd.Type, KindRuleViolation, "even building: the whole %s set must reach four houses before a hotel", def.Set)
			}
		}
	}
	if g.Ledger.Cash(p.ID) < def.BuildCost {
		return reject(cmd.Type, KindInsufficientFunds, "building on %s costs %d, you have %d", def.Name, def.BuildCost, g.Ledger.Cash(p.ID)).
			withDetail("balance", g.Ledger.Cash(p.ID))
	}
	g.mustTransfer(p.ID, Bank, def.BuildCost)
	if err := g.Ledger.UpdateBuild(def.Name, 1); err != nil {
		return reject(cmd.Type, KindRuleViolation, "%v", err)
	}
	if own.Hotel {
		g.logf(p.ID, "hotel_built", "%s built a hotel on %s", p.Name, def.Name)
	} else {
		g.logf(p.ID, "house_built", "%s built a house on %s (now %d)", p.Name, def.Name, own.Houses)
	}
	return nil
}

func (g *Game) handleDestroy(p *models.Player, cmd models.Command) *Rejection {
	if rej := g.requireAssetWindow(p, cmd.Type); rej != nil {
		return rej
	}
	def, own, rej := g.ownedStreet(p, cmd.Type, cmd.Property)
	if rej != nil {
		return rej
	}
	if own.Tier() == 0 {
		return reject(cmd.Type, KindRuleViolation, "%s has no buildings", def.Name)
	}
	if g.Settings.EvenBuild {
		_, maxTier := g.setTierBounds(def.Set)
		if own.Tier() < maxTier {
			return reject(cmd.Type, KindRuleViolation, "even building: destroy from the tallest property in the %s set first", def.Set)
		}
	}
	if err := g.Ledger.UpdateBuild(def.Name, -1); err != nil {
		return reject(cmd.Type, KindRuleViolation, "%v", err)
	}
	refund := def.BuildCost / 2
	g.mustTransfer(Bank, p.ID, refund)
	g.logf(p.ID, "building_destroyed", "%s destroyed a building on %s for %d", p.Name, def.Name, refund)
	return nil
}

func (g *Game) handleMortgage(p *models.Player, cmd models.Command) *Rejection {
	if rej := g.requireAssetWindow(p, cmd.Type); rej != nil {
		return rej
	}
	def, own, rej := g.ownedStreet(p, cmd.Type, cmd.Property)
	if rej != nil {
		return rej
	}
	if own.Mortgaged {
		return reject(cmd.Type, KindRuleViolation, "%s is already mortgaged", def.Name)
	}
	if err := g.Ledger.SetMortgaged(def.Name, true); err != nil {
		return reject(cmd.Type, KindRuleViolation, "%v", err)
	}
	value := def.Price / 2
	g.mustTransfer(Bank, p.ID, value)
	g.logf(p.ID, "property_mortgaged", "%s mortgaged %s for %d", p.Name, def.Name, value)
	return nil
}

func (g *Game) handleUnmortgage(p *models.Player, cmd models.Command) *Rejection {
	if rej := g.requireAssetWindow(p, cmd.Type); rej != nil {
		return rej
	}
	def, own, rej := g.ownedStreet(p, cmd.Type, cmd.Property)
	if rej != nil {
		return rej
	}
	if !own.Mortgaged {
		return reject(cmd.Type, KindRuleViolation, "%s is not mortgaged", def.Name)
	}
	// Repay the mortgage value plus 10% interest.
	cost := def.Price/2 + def.Price/20
	if g.Ledger.Cash(p.ID) < cost {
		return reject(cmd.Type, KindInsufficientFunds, "lifting the mortgage on %s costs %d, you have %d", def.Name, cost, g.Ledger.Cash(p.ID)).
			withDetail("balance", g.Ledger.Cash(p.ID))
	}
	if err := g.Ledger.SetMortgaged(def.Name, false); err != nil {
		return reject(cmd.Type, KindRuleViolation, "%v", err)
	}
	g.mustTransfer(p.ID, Bank, cost)
	g.logf(p.ID, "property_unmortgaged", "%s lifted the mortgage on %s for %d", p.Name, def.Name, cost)
	return nil
}

func (g *Game) handleSell(p *models.Player, cmd models.Command) *Rejection {
	if rej := g.requireAssetWindow(p, cmd.Type); rej != nil {
		return rej
	}
	def, own, rej := g.ownedStreet(p, cmd.Type, cmd.Property)
	if rej != nil {
		return rej
	}
	if own.Tier() > 0 {
		return reject(cmd.Type, KindRuleViolation, "destroy the buildings on %s before selling", def.Name)
	}
	if own.Mortgaged {
		return reject(cmd.Type, KindRuleViolation, "%s is mortgaged and cannot be sold", def.Name)
	}
	refund := def.Price / 2
	g.Ledger.ClearOwnership(def.Name)
	g.mustTransfer(Bank, p.ID, refund)
	g.logf(p.ID, "property_sold", "%s sold %s back to the bank for %d", p.Name, def.Name, refund)
	return nil
}

// --- turn boundary ---

func (g *Game) handleEndTurn(p *models.Player, cmd models.Command) *Rejection {
	if rej := g.requireTurn(p, cmd.Type); rej != nil {
		return rej
	}
	if g.State != StateAwaitingEndTurn && g.State != StateAwaitingRollAgain {
		return reject(cmd.Type, KindInvalidStateTransition, "cannot end turn in state %s", g.State)
	}
	if g.Ledger.HasNegativeBalance(p.ID) {
		return reject(cmd.Type, KindInsufficientFunds, "restore a non-negative balance before ending your turn").
			withDetail("balance", g.Ledger.Cash(p.ID))
	}
	g.finishTurn(false)
	return nil
}

// finishTurn closes out the current roll. A player who resolved doubles with
// no overriding special action keeps the turn and returns to awaiting-roll;
// otherwise the rotation advances. forced skips the doubles loop (jail and
// vacation always end the turn outright).
func (g *Game) finishTurn(forced bool) {
	g.Pending = nil
	p := g.currentPlayer()

	if !forced && g.doublesPending && p != nil && p.Status == models.StatusNormal && !p.Bankrupt {
		g.doublesPending = false
		g.LastRoll = nil
		g.LastAction = ActionNone
		g.State = StateAwaitingRoll
		g.logf(p.ID, "roll_again", "%s rolled doubles and rolls again", p.Name)
		return
	}

	g.doublesPending = false
	if p != nil {
		p.ConsecutiveDoubles = 0
	}
	g.advanceTurn()
}

// advanceTurn moves to the next active player, skipping vacationers (who are
// released as their turn passes) and incrementing the round on wrap.
func (g *Game) advanceTurn() {
	if g.maybeEndGame() {
		return
	}
	n := len(g.Players)
	idx := g.TurnIndex
	for hops := 0; hops < 2*n; hops++ {
		next := (idx + 1) % n
		if next <= idx {
			g.Round++
		}
		idx = next
		pl := g.Players[idx]
		if pl.Bankrupt {
			continue
		}
		if pl.Status == models.StatusVacation {
			releasedRound := pl.VacationStartRound
			pl.Status = models.StatusNormal
			pl.VacationStartRound = 0
			g.logf(pl.ID, "vacation_skip", "%s is on vacation and skips the turn (since round %d)", pl.Name, releasedRound)
			continue
		}
		g.TurnIndex = idx
		g.LastRoll = nil
		g.LastAction = ActionNone
		g.State = StateAwaitingRoll
		g.logf(pl.ID, "turn_start", "round %d: it is %s's turn", g.Round, pl.Name)
		return
	}
	// No playable player found; the game cannot continue.
	g.endGame(uuid.Nil)
}

// --- bankruptcy & game end ---

// handleBankrupt is the voluntary resignation path. Any seated player may
// declare at any point after the start, which is also the escape hatch for a
// recoverable debt the player does not want to liquidate out of.
func (g *Game) handleBankrupt(p *models.Player, cmd models.Command) *Rejection {
	g.logf(p.ID, "resign", "%s declared bankruptcy", p.Name)
	g.declareBankrupt(p)
	return nil
}

// checkDebt auto-declares bankruptcy when a debt is hopeless: even
// liquidating every asset could not restore a non-negative balance. A
// recoverable negative balance is left to the player to resolve.
func (g *Game) checkDebt(p *models.Player) {
	if !g.Ledger.HasNegativeBalance(p.ID) {
		return
	}
	if g.Ledger.Cash(p.ID)+g.Ledger.LiquidationValue(p.ID) >= 0 {
		g.logf(p.ID, "negative_balance", "%s owes %d and must liquidate before ending the turn", p.Name, -g.Ledger.Cash(p.ID))
		return
	}
	g.declareBankrupt(p)
}

// declareBankrupt removes the player from the rotation and returns their
// properties to the bank. One-way.
func (g *Game) declareBankrupt(p *models.Player) {
	if p.Bankrupt {
		return
	}
	p.Bankrupt = true
	p.Status = models.StatusNormal
	p.ConsecutiveDoubles = 0
	if g.Pending != nil && g.Pending.PlayerID == p.ID {
		g.Pending = nil
	}
	returned := g.Ledger.ClearAllOwnedBy(p.ID)
	g.logf(p.ID, "bankruptcy", "%s went bankrupt; %d properties returned to the bank", p.Name, len(returned))

	if g.Auction != nil {
		if last := g.Auction.removeParticipant(p.ID); last != uuid.Nil {
			g.resolveAuction(last, g.Auction.HighBid)
		} else if len(g.Auction.Order) == 0 {
			g.resolveAuction(uuid.Nil, 0)
		}
	}

	if g.maybeEndGame() {
		return
	}
	// A live auction owns the turn state; resolveAuction advances past a
	// bankrupt turn holder when it closes.
	if cur := g.currentPlayer(); cur != nil && cur.ID == p.ID && g.Auction == nil {
		g.doublesPending = false
		g.advanceTurn()
	}
}

func (g *Game) maybeEndGame() bool {
	if g.GameOver {
		return true
	}
	var survivor *models.Player
	active := 0
	for _, pl := range g.Players {
		if pl.Active() {
			active++
			survivor = pl
		}
	}
	if active > 1 {
		return false
	}
	if survivor != nil {
		g.endGame(survivor.ID)
	} else {
		g.endGame(uuid.Nil)
	}
	return true
}

func (g *Game) endGame(winnerID uuid.UUID) {
	if g.GameOver {
		return
	}
	g.GameOver = true
	g.WinnerID = winnerID
	if pl := g.getPlayerByID(winnerID); pl != nil {
		g.logf(winnerID, "game_end", "%s wins the game", pl.Name)
	} else {
		g.logf(uuid.Nil, "game_end", "game ended with no winner")
	}
	if g.OnGameEnd != nil {
		netWorth := make(map[uuid.UUID]int, len(g.Players))
		for _, pl := range g.Players {
			netWorth[pl.ID] = g.Ledger.NetWorth(pl.ID)
		}
		g.OnGameEnd(winnerID, netWorth)
	}
}

// halt freezes the room after an invariant failure and tells every member.
func (g *Game) halt(err error) {
	g.Halted = true
	rej := &Rejection{
		Kind:   KindRuleViolation,
		Reason: fmt.Sprintf("state consistency failure, room halted: %v", err),
	}
	g.logf(uuid.Nil, "room_halted", "%s", rej.Reason)
	if g.BroadcastFn != nil {
		g.BroadcastFn(Event{Type: EventActionRejected, Rejection: rej})
	}
}

// --- helpers ---

func (g *Game) currentPlayer() *models.Player {
	if len(g.Players) == 0 || g.TurnIndex < 0 || g.TurnIndex >= len(g.Players) {
		return nil
	}
	return g.Players[g.TurnIndex]
}

func (g *Game) getPlayerByID(id uuid.UUID) *models.Player {
	for _, p := range g.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (g *Game) requireTurn(p *models.Player, cmd models.CommandType) *Rejection {
	cur := g.currentPlayer()
	if cur == nil || cur.ID != p.ID {
		return reject(cmd, KindNotYourTurn, "it is not your turn")
	}
	return nil
}

// mustTransfer wraps Ledger.Transfer for amounts the engine computed itself;
// a failure there is an invariant breach, not a user error.
func (g *Game) mustTransfer(from, to uuid.UUID, amount int) {
	if err := g.Ledger.Transfer(from, to, amount); err != nil {
		g.halt(err)
	}
}

func (g *Game) rejectTo(playerID uuid.UUID, rej *Rejection) {
	g.logf(playerID, "action_rejected", "command %s rejected: %s", rej.Command, rej.Reason)
	if g.BroadcastToPlayerFn != nil && playerID != uuid.Nil {
		g.BroadcastToPlayerFn(playerID, Event{Type: EventActionRejected, Rejection: rej})
	}
}

func (g *Game) logf(actor uuid.UUID, typ, format string, args ...interface{}) {
	entry := models.LogEntry{
		Type:      typ,
		Actor:     actor,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now().UnixMilli(),
	}
	if g.LogFn != nil {
		g.LogFn(entry)
	}
	if g.BroadcastFn != nil {
		g.BroadcastFn(Event{Type: EventLogAppended, Log: &entry})
	}
}

func (g *Game) broadcastSnapshot() {
	if g.BroadcastFn != nil {
		snap := g.BuildSnapshot()
		g.BroadcastFn(Event{Type: EventStateSnapshot, State: snap})
	}
}
