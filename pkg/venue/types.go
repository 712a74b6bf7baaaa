package venue

import "github.com/shopspring/decimal"

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side for an order placed with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderKind denotes the order types the pipeline produces.
type OrderKind string

const (
	OrderKindMarket OrderKind = "MARKET"
	OrderKindLimit  OrderKind = "LIMIT"
)

// AccountMode selects the venue account an order trades against.
type AccountMode string

const (
	AccountSpot   AccountMode = "SPOT"
	AccountMargin AccountMode = "MARGIN"
)

// SideEffect controls auto-borrow/auto-repay behavior for margin orders.
type SideEffect string

const (
	SideEffectNone      SideEffect = "NO_SIDE_EFFECT"
	SideEffectMarginBuy SideEffect = "MARGIN_BUY"
	SideEffectAutoRepay SideEffect = "AUTO_REPAY"
)

// TimeInForce captures TIF semantics.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
	TIFFOK TimeInForce = "FOK"
)

// OrderStatus normalizes venue status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusPartial  OrderStatus = "PARTIALLY_FILLED"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
	StatusExpired  OrderStatus = "EXPIRED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// IsTerminalDead reports whether the status means the order can never fill.
func (s OrderStatus) IsTerminalDead() bool {
	return s == StatusCanceled || s == StatusRejected || s == StatusExpired
}

// SymbolFilters holds the venue trading filters for one symbol.
type SymbolFilters struct {
	MinPrice    decimal.Decimal
	MaxPrice    decimal.Decimal
	TickSize    decimal.Decimal
	MinQty      decimal.Decimal
	MaxQty      decimal.Decimal
	StepSize    decimal.Decimal
	MinNotional decimal.Decimal
}

// SymbolInfo describes a tradeable symbol and its constraints.
type SymbolInfo struct {
	Symbol               string
	Status               string
	BaseAsset            string
	QuoteAsset           string
	SpotTradingAllowed   bool
	MarginTradingAllowed bool
	Filters              SymbolFilters
}

// Balance represents a single asset balance.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// MarginAccount holds the cross-margin account snapshot.
type MarginAccount struct {
	BorrowEnabled bool
	TradeEnabled  bool
	MarginLevel   decimal.Decimal
	Assets        []MarginAsset
}

// MarginAsset is one asset inside a margin account.
type MarginAsset struct {
	Asset    string
	Free     decimal.Decimal
	Locked   decimal.Decimal
	Borrowed decimal.Decimal
	NetAsset decimal.Decimal
}

// Fill is one execution inside an order response.
type Fill struct {
	Price           decimal.Decimal
	Qty             decimal.Decimal
	Commission      decimal.Decimal
	CommissionAsset string
}

// OrderResponse is the decoded ack for a plain (single-leg) order.
type OrderResponse struct {
	OrderID             string
	ClientOrderID       string
	Symbol              string
	Status              OrderStatus
	ExecutedQty         decimal.Decimal
	CummulativeQuoteQty decimal.Decimal
	Fills               []Fill
}

// AvgFillPrice returns cummulativeQuoteQty/executedQty, the actual average
// execution price, or zero when nothing executed.
func (r *OrderResponse) AvgFillPrice() decimal.Decimal {
	if r.ExecutedQty.IsZero() {
		return decimal.Zero
	}
	return r.CummulativeQuoteQty.Div(r.ExecutedQty)
}

// BaseCommission sums commissions charged in the given base asset. Commission
// paid in the quote asset or a fee token does not reduce the base quantity.
func (r *OrderResponse) BaseCommission(baseAsset string) decimal.Decimal {
	total := decimal.Zero
	for _, f := range r.Fills {
		if f.CommissionAsset == baseAsset {
			total = total.Add(f.Commission)
		}
	}
	return total
}

// OCOLeg is one leg of a one-cancels-other order list.
type OCOLeg struct {
	OrderID string
	Type    string
	Status  OrderStatus
}

// OCOResponse is the decoded ack for a one-cancels-other order list.
type OCOResponse struct {
	OrderListID string
	Symbol      string
	Legs        []OCOLeg
}

// OrderRequest captures one order to be sent to the venue. Quantity and
// QuoteAmount are mutually exclusive for MARKET orders; QuoteAmount selects
// the quote-denominated market order variant.
type OrderRequest struct {
	Symbol      string
	Side        Side
	Kind        OrderKind
	Quantity    decimal.Decimal
	QuoteAmount decimal.Decimal
	Price       decimal.Decimal
	StopPrice   decimal.Decimal
	TimeInForce TimeInForce
	SideEffect  SideEffect
	ClientID    string
}

// OCORequest captures a paired take-profit + stop-loss order list.
type OCORequest struct {
	Symbol          string
	Side            Side
	Quantity        decimal.Decimal
	TakeProfitPrice decimal.Decimal
	StopPrice       decimal.Decimal
	StopLimitPrice  decimal.Decimal
	SideEffect      SideEffect
}
