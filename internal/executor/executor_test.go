package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"signal-trader/internal/trade"
	"signal-trader/pkg/venue"
)

// routeVenue records which placement endpoints were hit.
type routeVenue struct {
	spot, margin, sl, tp, oco int
	lastOrder                 venue.OrderRequest
	lastOCO                   venue.OCORequest
	cancelErr                 error
	canceled                  []string
}

func (r *routeVenue) GetSymbolInfo(ctx context.Context, symbol string) (*venue.SymbolInfo, error) {
	return nil, nil
}
func (r *routeVenue) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (r *routeVenue) GetSpotBalances(ctx context.Context) ([]venue.Balance, error) { return nil, nil }
func (r *routeVenue) GetMarginAccount(ctx context.Context) (*venue.MarginAccount, error) {
	return nil, nil
}
func (r *routeVenue) GetMaxBorrowable(ctx context.Context, asset string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (r *routeVenue) PlaceSpotOrder(ctx context.Context, req venue.OrderRequest) (*venue.OrderResponse, error) {
	r.spot++
	r.lastOrder = req
	return &venue.OrderResponse{OrderID: "1", Status: venue.StatusFilled}, nil
}

func (r *routeVenue) PlaceMarginOrder(ctx context.Context, req venue.OrderRequest) (*venue.OrderResponse, error) {
	r.margin++
	r.lastOrder = req
	return &venue.OrderResponse{OrderID: "2", Status: venue.StatusFilled}, nil
}

func (r *routeVenue) PlaceStopLoss(ctx context.Context, req venue.OrderRequest) (*venue.OrderResponse, error) {
	r.sl++
	return &venue.OrderResponse{OrderID: "sl", Status: venue.StatusNew}, nil
}

func (r *routeVenue) PlaceTakeProfit(ctx context.Context, req venue.OrderRequest) (*venue.OrderResponse, error) {
	r.tp++
	return &venue.OrderResponse{OrderID: "tp", Status: venue.StatusNew}, nil
}

func (r *routeVenue) PlaceOCO(ctx context.Context, req venue.OCORequest) (*venue.OCOResponse, error) {
	r.oco++
	r.lastOCO = req
	return &venue.OCOResponse{OrderListID: "oco"}, nil
}

func (r *routeVenue) CancelOCO(ctx context.Context, symbol, orderListID string) error {
	r.canceled = append(r.canceled, "oco:"+orderListID)
	return r.cancelErr
}

func (r *routeVenue) CancelOrder(ctx context.Context, symbol, orderID string) error {
	r.canceled = append(r.canceled, "order:"+orderID)
	return r.cancelErr
}

func (r *routeVenue) GetOrder(ctx context.Context, symbol, orderID string) (*venue.OrderResponse, error) {
	return nil, nil
}

func request(mode venue.AccountMode) trade.NormalizedRequest {
	return trade.NormalizedRequest{
		TradingRequest: trade.TradingRequest{
			Order: trade.OrderSpec{
				Symbol:      "BTCUSDT",
				AccountMode: mode,
				Kind:        venue.OrderKindMarket,
			},
		},
		Side: venue.SideBuy,
	}
}

func TestExecuteEntryRouting(t *testing.T) {
	qty := decimal.RequireFromString("0.002")

	t.Run("spot", func(t *testing.T) {
		fake := &routeVenue{}
		_, err := New(fake).ExecuteEntry(context.Background(), request(venue.AccountSpot), trade.TradeParams{Quantity: qty})
		if err != nil {
			t.Fatalf("ExecuteEntry failed: %v", err)
		}
		if fake.spot != 1 || fake.margin != 0 {
			t.Errorf("expected spot endpoint, got spot=%d margin=%d", fake.spot, fake.margin)
		}
	})

	t.Run("margin defaults to MARGIN_BUY", func(t *testing.T) {
		fake := &routeVenue{}
		_, err := New(fake).ExecuteEntry(context.Background(), request(venue.AccountMargin), trade.TradeParams{Quantity: qty})
		if err != nil {
			t.Fatalf("ExecuteEntry failed: %v", err)
		}
		if fake.margin != 1 {
			t.Errorf("expected margin endpoint, got margin=%d", fake.margin)
		}
		if fake.lastOrder.SideEffect != venue.SideEffectMarginBuy {
			t.Errorf("expected MARGIN_BUY, got %s", fake.lastOrder.SideEffect)
		}
	})
}

func TestExecuteProtectiveRouting(t *testing.T) {
	qty := decimal.RequireFromString("0.002")
	sl := decimal.NullDecimal{Decimal: decimal.RequireFromString("49000"), Valid: true}
	tp := decimal.NullDecimal{Decimal: decimal.RequireFromString("52000"), Valid: true}

	t.Run("margin with both triggers uses OCO", func(t *testing.T) {
		fake := &routeVenue{}
		res, err := New(fake).ExecuteProtective(context.Background(), request(venue.AccountMargin),
			trade.TradeParams{StopLossPrice: sl, TakeProfitPrice: tp}, qty)
		if err != nil {
			t.Fatalf("ExecuteProtective failed: %v", err)
		}
		if fake.oco != 1 || fake.sl != 0 || fake.tp != 0 {
			t.Errorf("expected single OCO call, got oco=%d sl=%d tp=%d", fake.oco, fake.sl, fake.tp)
		}
		if res.OCO == nil {
			t.Error("expected OCO response recorded")
		}
		// The legs close a long entry, so they sell and auto-repay.
		if fake.lastOCO.Side != venue.SideSell || fake.lastOCO.SideEffect != venue.SideEffectAutoRepay {
			t.Errorf("unexpected OCO request: %+v", fake.lastOCO)
		}
	})

	t.Run("single trigger places a standalone leg", func(t *testing.T) {
		fake := &routeVenue{}
		res, err := New(fake).ExecuteProtective(context.Background(), request(venue.AccountMargin),
			trade.TradeParams{StopLossPrice: sl}, qty)
		if err != nil {
			t.Fatalf("ExecuteProtective failed: %v", err)
		}
		if fake.oco != 0 || fake.sl != 1 {
			t.Errorf("expected standalone stop-loss, got oco=%d sl=%d", fake.oco, fake.sl)
		}
		if res.StopLoss == nil || res.TakeProfit != nil {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("spot positions get no protective legs", func(t *testing.T) {
		fake := &routeVenue{}
		res, err := New(fake).ExecuteProtective(context.Background(), request(venue.AccountSpot),
			trade.TradeParams{StopLossPrice: sl, TakeProfitPrice: tp}, qty)
		if err != nil {
			t.Fatalf("ExecuteProtective failed: %v", err)
		}
		if fake.oco != 0 || fake.sl != 0 || fake.tp != 0 {
			t.Errorf("expected no placements, got oco=%d sl=%d tp=%d", fake.oco, fake.sl, fake.tp)
		}
		if res.HasAny() {
			t.Error("expected empty result")
		}
	})

	t.Run("no triggers is a no-op", func(t *testing.T) {
		fake := &routeVenue{}
		res, err := New(fake).ExecuteProtective(context.Background(), request(venue.AccountSpot), trade.TradeParams{}, qty)
		if err != nil {
			t.Fatalf("ExecuteProtective failed: %v", err)
		}
		if res.HasAny() {
			t.Error("expected empty result")
		}
	})
}

func TestCancelProtective(t *testing.T) {
	t.Run("oco takes precedence", func(t *testing.T) {
		fake := &routeVenue{}
		err := New(fake).CancelProtective(context.Background(), "BTCUSDT", "oco-1", "sl-1", "tp-1")
		if err != nil {
			t.Fatalf("CancelProtective failed: %v", err)
		}
		if len(fake.canceled) != 1 || fake.canceled[0] != "oco:oco-1" {
			t.Errorf("expected one OCO cancel, got %v", fake.canceled)
		}
	})

	t.Run("standalone legs are canceled individually", func(t *testing.T) {
		fake := &routeVenue{}
		err := New(fake).CancelProtective(context.Background(), "BTCUSDT", "", "sl-1", "tp-1")
		if err != nil {
			t.Fatalf("CancelProtective failed: %v", err)
		}
		if len(fake.canceled) != 2 {
			t.Errorf("expected two cancels, got %v", fake.canceled)
		}
	})

	t.Run("gone orders count as canceled", func(t *testing.T) {
		fake := &routeVenue{cancelErr: venue.ErrOrderGone}
		if err := New(fake).CancelProtective(context.Background(), "BTCUSDT", "oco-1", "", ""); err != nil {
			t.Errorf("expected success for gone order, got %v", err)
		}
	})

	t.Run("real cancel failures propagate", func(t *testing.T) {
		fake := &routeVenue{cancelErr: errors.New("network")}
		err := New(fake).CancelProtective(context.Background(), "BTCUSDT", "oco-1", "", "")
		if !errors.Is(err, trade.ErrVenueExecution) {
			t.Errorf("expected ErrVenueExecution, got %v", err)
		}
	})
}

func TestExecuteClose(t *testing.T) {
	qty := decimal.RequireFromString("0.002")

	t.Run("margin close auto-repays", func(t *testing.T) {
		fake := &routeVenue{}
		_, err := New(fake).ExecuteClose(context.Background(), "BTCUSDT", venue.SideBuy, venue.AccountMargin, qty)
		if err != nil {
			t.Fatalf("ExecuteClose failed: %v", err)
		}
		if fake.margin != 1 {
			t.Errorf("expected margin endpoint")
		}
		if fake.lastOrder.Side != venue.SideSell || fake.lastOrder.SideEffect != venue.SideEffectAutoRepay {
			t.Errorf("unexpected close order: %+v", fake.lastOrder)
		}
	})

	t.Run("short close buys back", func(t *testing.T) {
		fake := &routeVenue{}
		_, err := New(fake).ExecuteClose(context.Background(), "BTCUSDT", venue.SideSell, venue.AccountSpot, qty)
		if err != nil {
			t.Fatalf("ExecuteClose failed: %v", err)
		}
		if fake.lastOrder.Side != venue.SideBuy {
			t.Errorf("expected BUY to flatten a short, got %s", fake.lastOrder.Side)
		}
	})
}
