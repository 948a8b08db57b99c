package models

// CommandType identifies a player command routed through a room's queue.
type CommandType string

const (
	CmdRollDice        CommandType = "roll_dice"
	CmdBuyProperty     CommandType = "buy_property"
	CmdDeclineProperty CommandType = "decline_property"
	CmdAuctionBid      CommandType = "auction_bid"
	CmdAuctionPass     CommandType = "auction_pass"
	CmdPayJailFine     CommandType = "pay_jail_fine"
	CmdUseJailCard     CommandType = "use_jail_card"
	CmdBuildHouse      CommandType = "build_house"
	CmdDestroyHouse    CommandType = "destroy_house"
	CmdMortgage        CommandType = "mortgage_property"
	CmdUnmortgage      CommandType = "unmortgage_property"
	CmdSellProperty    CommandType = "sell_property"
	CmdEndTurn         CommandType = "end_turn"
	CmdBankrupt        CommandType = "bankrupt"

	// CmdAuctionTimeout is synthetic: the room session injects it into the
	// command queue when the auction countdown expires, so timer expiry is
	// ordered with ordinary commands.
	CmdAuctionTimeout CommandType = "auction_timeout"
)

// DiceOverride lets dev tooling force a specific roll.
type DiceOverride struct {
	D1 int `json:"d1"`
	D2 int `json:"d2"`
}

// Command captures one player move. Property and Increment are only
// meaningful for the command types that use them.
type Command struct {
	Type      CommandType   `json:"type"`
	Property  string        `json:"property,omitempty"`
	Increment int           `json:"increment,omitempty"`
	Dice      *DiceOverride `json:"dice,omitempty"`

	// Generation guards synthetic timer commands against firing for an
	// auction that already resolved.
	Generation int `json:"-"`
}
