// internal/game/auction.go
package game

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BidIncrements are the only legal amounts a bid may raise the current high
// bid by.
var BidIncrements = []int{2, 10, 100}

// Bid is one accepted bid in the auction history log.
type Bid struct {
	Bidder uuid.UUID `json:"bidder"`
	Amount int       `json:"amount"`
}

// Auction runs timed round-robin bidding for a single declined property.
// Participants are fixed at start (players with cash > 0); a pass removes a
// participant from the current bidding round, and any accepted bid resets
// the countdown and re-opens the round for everyone still in the order.
type Auction struct {
	Property    string              `json:"property"`
	TriggeredBy uuid.UUID           `json:"triggeredBy"` // whose turn started the auction
	Order       []uuid.UUID         `json:"order"`
	Passed      map[uuid.UUID]bool  `json:"passed"`
	CurrentIdx  int                 `json:"currentIdx"`
	HighBid     int                 `json:"highBid"`
	HighBidder  uuid.UUID           `json:"highBidder"`
	History     []Bid               `json:"history"`
	Deadline    time.Time           `json:"deadline"`

	// Generation distinguishes this auction's countdown from stale timers of
	// earlier auctions in the same room.
	Generation int `json:"-"`
}

func newAuction(property string, triggeredBy uuid.UUID, bidders []uuid.UUID, generation int, timer time.Duration) *Auction {
	return &Auction{
		Property:    property,
		TriggeredBy: triggeredBy,
		Order:       bidders,
		Passed:      make(map[uuid.UUID]bool),
		Generation:  generation,
		Deadline:    time.Now().Add(timer),
	}
}

// CurrentBidder returns the participant whose turn it is to bid or pass.
func (a *Auction) CurrentBidder() uuid.UUID {
	if len(a.Order) == 0 {
		return uuid.Nil
	}
	return a.Order[a.CurrentIdx]
}

// remaining counts participants who have not passed this round.
func (a *Auction) remaining() int {
	n := 0
	for _, id := range a.Order {
		if !a.Passed[id] {
			n++
		}
	}
	return n
}

// lastStanding returns the single non-passed participant, or Nil if more or
// fewer than one remain.
func (a *Auction) lastStanding() uuid.UUID {
	var last uuid.UUID
	count := 0
	for _, id := range a.Order {
		if !a.Passed[id] {
			last = id
			count++
		}
	}
	if count != 1 {
		return uuid.Nil
	}
	return last
}

// advance moves the bidding turn to the next non-passed participant.
func (a *Auction) advance() {
	if a.remaining() == 0 {
		return
	}
	for {
		a.CurrentIdx = (a.CurrentIdx + 1) % len(a.Order)
		if !a.Passed[a.Order[a.CurrentIdx]] {
			return
		}
	}
}

// validIncrement reports whether inc is one of the fixed increments.
func validIncrement(inc int) bool {
	for _, v := range BidIncrements {
		if v == inc {
			return true
		}
	}
	return false
}

// placeBid validates and records a bid by the current bidder, resetting the
// countdown and re-opening the round for passed participants.
func (a *Auction) placeBid(bidder uuid.UUID, increment, bidderCash int, timer time.Duration) (int, error) {
	if a.CurrentBidder() != bidder {
		return 0, fmt.Errorf("not %s's turn to bid", bidder)
	}
	if !validIncrement(increment) {
		return 0, fmt.Errorf("bid increment must be one of %v", BidIncrements)
	}
	amount := a.HighBid + increment
	if amount > bidderCash {
		return 0, fmt.Errorf("bid %d exceeds available cash %d", amount, bidderCash)
	}
	a.HighBid = amount
	a.HighBidder = bidder
	a.History = append(a.History, Bid{Bidder: bidder, Amount: amount})
	a.Passed = make(map[uuid.UUID]bool)
	a.Deadline = time.Now().Add(timer)
	a.advance()
	return amount, nil
}

// pass marks the current bidder out of this round and advances the turn.
// Once a bid exists, the sole remaining participant is returned as the
// winner; with no bids the last player still has to bid or pass like
// everyone else, and the property stays with the bank when they do.
func (a *Auction) pass(bidder uuid.UUID) (uuid.UUID, error) {
	if a.CurrentBidder() != bidder {
		return uuid.Nil, fmt.Errorf("not %s's turn to bid", bidder)
	}
	a.Passed[bidder] = true
	if a.HighBidder != uuid.Nil {
		if last := a.lastStanding(); last != uuid.Nil {
			return last, nil
		}
	}
	if a.remaining() == 0 {
		return uuid.Nil, nil
	}
	a.advance()
	return uuid.Nil, nil
}

// removeParticipant drops a player who left the room mid-auction. If a bid
// exists and the removal reduces the field to one, that participant is
// returned as the winner; with no bids the survivor keeps bidding.
func (a *Auction) removeParticipant(playerID uuid.UUID) uuid.UUID {
	idx := -1
	for i, id := range a.Order {
		if id == playerID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return uuid.Nil
	}
	current := a.CurrentBidder()
	a.Order = append(a.Order[:idx], a.Order[idx+1:]...)
	delete(a.Passed, playerID)
	if len(a.Order) == 0 {
		return uuid.Nil
	}
	if idx < a.CurrentIdx || a.CurrentIdx >= len(a.Order) {
		a.CurrentIdx = a.CurrentIdx % len(a.Order)
	}
	if current == playerID && a.Passed[a.Order[a.CurrentIdx]] {
		a.advance()
	}
	if a.HighBidder == uuid.Nil {
		return uuid.Nil
	}
	return a.lastStanding()
}
