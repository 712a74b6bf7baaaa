package trade

import (
	"github.com/shopspring/decimal"

	"signal-trader/pkg/venue"
)

// Source tags where a trading request originated.
type Source string

const (
	SourceManual Source = "MANUAL"
	SourceBot    Source = "BOT"
)

// SignalAction is the intent carried by a webhook signal.
type SignalAction string

const (
	ActionEnterLong  SignalAction = "ENTER_LONG"
	ActionExitLong   SignalAction = "EXIT_LONG"
	ActionEnterShort SignalAction = "ENTER_SHORT"
	ActionExitShort  SignalAction = "EXIT_SHORT"
)

// IsExit reports whether the action closes an existing position.
func (a SignalAction) IsExit() bool {
	return a == ActionExitLong || a == ActionExitShort
}

// Position sides derived from entries.
const (
	PositionLong  = "LONG"
	PositionShort = "SHORT"
)

// OrderSpec describes the order portion of a trading request. Quantity and
// QuoteAmount are alternatives: exactly one should be set.
type OrderSpec struct {
	Symbol        string
	AccountMode   venue.AccountMode
	Kind          venue.OrderKind
	Side          venue.Side   // explicit side (manual requests)
	Action        SignalAction // signal action (bot requests)
	Quantity      decimal.Decimal
	QuoteAmount   decimal.Decimal
	Price         decimal.Decimal     // required for LIMIT
	StopLossPct   decimal.NullDecimal // percent distance from entry
	TakeProfitPct decimal.NullDecimal // percent distance from entry
	SideEffect    venue.SideEffect    // margin borrow/repay mode
}

// TradingRequest is the canonical pipeline input. It is treated as immutable:
// normalization returns a new value rather than mutating in place.
type TradingRequest struct {
	UserID         string
	PortfolioID    string
	Source         Source
	BotID          string
	CredentialsRef string
	Order          OrderSpec
}

// NormalizedRequest is a TradingRequest with Side always populated. It is
// derived once by Normalize and never re-derived.
type NormalizedRequest struct {
	TradingRequest
	Side venue.Side
}

// PositionSide maps the request onto the side of the position it opens.
func (r NormalizedRequest) PositionSide() string {
	switch r.Order.Action {
	case ActionEnterLong:
		return PositionLong
	case ActionEnterShort:
		return PositionShort
	}
	if r.Side == venue.SideSell {
		return PositionShort
	}
	return PositionLong
}
