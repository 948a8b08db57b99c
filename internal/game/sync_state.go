// internal/game/sync_state.go
package game

import (
	"github.com/google/uuid"
)

// PlayerState is one player's slice of the snapshot. There is no hidden
// information in this game, so one snapshot serves every room member.
type PlayerState struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Color              string    `json:"color"`
	Cash               int       `json:"cash"`
	Position           int       `json:"position"`
	Status             string    `json:"status"`
	IsBot              bool      `json:"isBot"`
	Connected          bool      `json:"connected"`
	IsCurrentTurn      bool      `json:"isCurrentTurn"`
	ConsecutiveDoubles int       `json:"consecutiveDoubles"`
	JailRounds         int       `json:"jailRounds"`
	PardonCards        int       `json:"pardonCards"`
	Bankrupt           bool      `json:"bankrupt"`
}

// AuctionView is the client-facing auction state.
type AuctionView struct {
	Property      string      `json:"property"`
	CurrentBidder uuid.UUID   `json:"currentBidder"`
	HighBid       int         `json:"highBid"`
	HighBidder    uuid.UUID   `json:"highBidder,omitempty"`
	History       []Bid       `json:"history,omitempty"`
	DeadlineMs    int64       `json:"deadlineMs"`
	Order         []uuid.UUID `json:"order"`
}

// Snapshot is the full authoritative GameState broadcast after every
// accepted command; clients render from it and hold no rule logic.
type Snapshot struct {
	RoomID          uuid.UUID            `json:"roomId"`
	BoardMap        string               `json:"boardMap"`
	Started         bool                 `json:"started"`
	GameOver        bool                 `json:"gameOver"`
	Halted          bool                 `json:"halted"`
	WinnerID        uuid.UUID            `json:"winnerId,omitempty"`
	State           TurnState            `json:"state"`
	Round           int                  `json:"round"`
	TurnIndex       int                  `json:"turnIndex"`
	CurrentPlayerID uuid.UUID            `json:"currentPlayerId,omitempty"`
	LastRoll        *Roll                `json:"lastRoll,omitempty"`
	SpecialAction   SpecialAction        `json:"specialAction"`
	Players         []PlayerState        `json:"players"`
	Ownerships      map[string]Ownership `json:"ownerships"`
	VacationPool    int                  `json:"vacationPool"`
	Pending         *PendingDecision     `json:"pendingDecision,omitempty"`
	Auction         *AuctionView         `json:"auction,omitempty"`
	Settings        Settings             `json:"settings"`
}

// BuildSnapshot assembles the broadcastable state from the live engine.
func (g *Game) BuildSnapshot() *Snapshot {
	snap := &Snapshot{
		RoomID:        g.ID,
		BoardMap:      g.Board.Name,
		Started:       g.Started,
		GameOver:      g.GameOver,
		Halted:        g.Halted,
		WinnerID:      g.WinnerID,
		State:         g.State,
		Round:         g.Round,
		TurnIndex:     g.TurnIndex,
		LastRoll:      g.LastRoll,
		SpecialAction: g.LastAction,
		Ownerships:    g.Ledger.Ownerships(),
		VacationPool:  g.VacationPool,
		Pending:       g.Pending,
		Settings:      g.Settings,
	}
	if cur := g.currentPlayer(); cur != nil {
		snap.CurrentPlayerID = cur.ID
	}
	for i, p := range g.Players {
		snap.Players = append(snap.Players, PlayerState{
			ID:                 p.ID,
			Name:               p.Name,
			Color:              p.Color,
			Cash:               g.Ledger.Cash(p.ID),
			Position:           p.Position,
			Status:             string(p.Status),
			IsBot:              p.IsBot,
			Connected:          p.Connected,
			IsCurrentTurn:      i == g.TurnIndex && !g.GameOver,
			ConsecutiveDoubles: p.ConsecutiveDoubles,
			JailRounds:         p.JailRounds,
			PardonCards:        p.PardonCards,
			Bankrupt:           p.Bankrupt,
		})
	}
	if g.Auction != nil {
		snap.Auction = &AuctionView{
			Property:      g.Auction.Property,
			CurrentBidder: g.Auction.CurrentBidder(),
			HighBid:       g.Auction.HighBid,
			HighBidder:    g.Auction.HighBidder,
			History:       g.Auction.History,
			DeadlineMs:    g.Auction.Deadline.UnixMilli(),
			Order:         g.Auction.Order,
		}
	}
	return snap
}
