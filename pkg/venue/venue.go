package venue

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrOrderGone is returned by cancel operations when the venue reports the
// order no longer exists (already filled, canceled or expired). Callers that
// only need the order to be off the book can treat it as success.
var ErrOrderGone = errors.New("venue: order already gone")

// Venue abstracts the remote exchange consumed by the trading pipeline.
type Venue interface {
	GetSymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error)
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetSpotBalances(ctx context.Context) ([]Balance, error)
	GetMarginAccount(ctx context.Context) (*MarginAccount, error)
	GetMaxBorrowable(ctx context.Context, asset string) (decimal.Decimal, error)

	PlaceSpotOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)
	PlaceMarginOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)
	PlaceStopLoss(ctx context.Context, req OrderRequest) (*OrderResponse, error)
	PlaceTakeProfit(ctx context.Context, req OrderRequest) (*OrderResponse, error)
	PlaceOCO(ctx context.Context, req OCORequest) (*OCOResponse, error)
	CancelOCO(ctx context.Context, symbol, orderListID string) error
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOrder(ctx context.Context, symbol, orderID string) (*OrderResponse, error)
}
