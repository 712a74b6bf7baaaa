package db

import (
	"strings"
	"time"
)

// Position lifecycle statuses.
const (
	PositionPending = "PENDING"
	PositionOpen    = "OPEN"
	PositionClosed  = "CLOSED"
)

// Position sides.
const (
	PositionLong  = "LONG"
	PositionShort = "SHORT"
)

// Order kinds (the role of an order leg within a position).
const (
	OrderKindEntry      = "ENTRY"
	OrderKindExit       = "EXIT"
	OrderKindStopLoss   = "STOP_LOSS"
	OrderKindTakeProfit = "TAKE_PROFIT"
)

// Portfolio groups positions under one owner.
type Portfolio struct {
	ID          string
	UserID      string
	Name        string
	OpenValue   float64
	RealizedPnL float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Bot is a signal bot configuration consumed by the trading pipeline.
// Bot CRUD lives upstream; this is the read model plus the seed loader's
// upsert target.
type Bot struct {
	ID             string
	PortfolioID    string
	Name           string
	IsActive       bool
	Symbols        []string // allowlist; empty means any symbol
	StopLossPct    float64  // 0 means unset
	TakeProfitPct  float64  // 0 means unset
	CredentialsRef string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AllowsSymbol reports whether the bot may trade the symbol.
func (b *Bot) AllowsSymbol(symbol string) bool {
	if len(b.Symbols) == 0 {
		return true
	}
	for _, s := range b.Symbols {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}

// Position is a locally tracked trading position. A PENDING row is a
// provisional record created before the venue call and must never be treated
// as live.
type Position struct {
	ID                string
	PortfolioID       string
	BotID             string
	Symbol            string
	Side              string // LONG/SHORT
	AccountMode       string // SPOT/MARGIN
	Status            string // PENDING/OPEN/CLOSED
	Quantity          float64
	EntryPrice        float64
	EntryValue        float64
	ExitPrice         float64
	ExitValue         float64
	RealizedPnL       float64
	StopLossOrderID   string
	StopLossStatus    string
	TakeProfitOrderID string
	TakeProfitStatus  string
	OCOListID         string
	CreatedAt         time.Time
	OpenedAt          time.Time
	ClosedAt          time.Time
}

// Order records one venue order leg belonging to a position.
type Order struct {
	ID             string
	PositionID     string
	VenueOrderID   string
	Kind           string // ENTRY/EXIT/STOP_LOSS/TAKE_PROFIT
	Symbol         string
	Side           string // BUY/SELL
	Type           string // MARKET/LIMIT/STOP_LOSS_LIMIT/...
	RequestedQty   float64
	ExecutedQty    float64
	RequestedValue float64
	ExecutedValue  float64
	Price          float64
	Status         string
	CreatedAt      time.Time
}
