// internal/room/bot.go
package room

import (
	"github.com/google/uuid"

	"github.com/jason-s-yu/landlord/internal/game"
	"github.com/jason-s-yu/landlord/internal/models"
)

// nextBotCommand inspects the engine and decides the next command a bot
// should issue, if any. Bots are ordinary actors: they buy nothing, always
// pass auctions, and liquidate only to clear debt. Must be called from the
// room worker goroutine.
func nextBotCommand(g *game.Game) (uuid.UUID, models.Command, bool) {
	if !g.Started || g.GameOver || g.Halted {
		return uuid.Nil, models.Command{}, false
	}

	if g.Auction != nil {
		bidder := g.Auction.CurrentBidder()
		for _, p := range g.Players {
			if p.ID == bidder && p.IsBot {
				return bidder, models.Command{Type: models.CmdAuctionPass}, true
			}
		}
		return uuid.Nil, models.Command{}, false
	}

	var cur *models.Player
	for i, p := range g.Players {
		if i == g.TurnIndex {
			cur = p
			break
		}
	}
	if cur == nil || !cur.IsBot || cur.Bankrupt {
		return uuid.Nil, models.Command{}, false
	}

	switch g.State {
	case game.StateAwaitingRoll:
		if cur.Status == models.StatusJail && cur.PardonCards > 0 {
			return cur.ID, models.Command{Type: models.CmdUseJailCard}, true
		}
		return cur.ID, models.Command{Type: models.CmdRollDice}, true

	case game.StateAwaitingRollAgain:
		return cur.ID, models.Command{Type: models.CmdRollDice}, true

	case game.StateAwaitingPropertyDecision:
		if g.Pending != nil && g.Pending.PlayerID == cur.ID {
			return cur.ID, models.Command{Type: models.CmdDeclineProperty}, true
		}

	case game.StateAwaitingEndTurn:
		if g.Ledger.HasNegativeBalance(cur.ID) {
			if cmd, ok := botLiquidation(g, cur); ok {
				return cur.ID, cmd, true
			}
		}
		return cur.ID, models.Command{Type: models.CmdEndTurn}, true
	}
	return uuid.Nil, models.Command{}, false
}

// botLiquidation picks the next asset move to raise cash: tear down
// buildings first, then mortgage, then sell outright.
func botLiquidation(g *game.Game, p *models.Player) (models.Command, bool) {
	owned := g.Ledger.OwnedBy(p.ID)
	// Tear down from the tallest tier so the even-build rule never rejects.
	best, bestTier := "", 0
	for _, name := range owned {
		if o, ok := g.Ledger.Ownership(name); ok && o.Tier() > bestTier {
			best, bestTier = name, o.Tier()
		}
	}
	if best != "" {
		return models.Command{Type: models.CmdDestroyHouse, Property: best}, true
	}
	for _, name := range owned {
		if o, ok := g.Ledger.Ownership(name); ok && !o.Mortgaged {
			return models.Command{Type: models.CmdMortgage, Property: name}, true
		}
	}
	return models.Command{}, false
}
