package executor

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"signal-trader/internal/trade"
	"signal-trader/pkg/venue"
)

// ProtectiveResult records which protective legs were actually placed.
// When both triggers are present the legs are sent as one OCO list;
// otherwise a standalone stop-loss or take-profit order.
type ProtectiveResult struct {
	OCO        *venue.OCOResponse
	StopLoss   *venue.OrderResponse
	TakeProfit *venue.OrderResponse
}

// HasAny reports whether at least one protective leg exists.
func (r *ProtectiveResult) HasAny() bool {
	return r != nil && (r.OCO != nil || r.StopLoss != nil || r.TakeProfit != nil)
}

// Executor translates calculated trade parameters into venue calls. It is
// the only component that places or cancels orders; everything above it is
// pure bookkeeping.
type Executor struct {
	Venue venue.Venue

	// DefaultSideEffect applies to margin entries that do not pick one.
	DefaultSideEffect venue.SideEffect
}

func New(v venue.Venue) *Executor {
	return &Executor{Venue: v, DefaultSideEffect: venue.SideEffectMarginBuy}
}

// ExecuteEntry places the entry order on the account the request targets.
// Margin entries carry the configured side effect so borrowing happens as
// part of the order instead of a separate transfer.
func (e *Executor) ExecuteEntry(ctx context.Context, req trade.NormalizedRequest, params trade.TradeParams) (*venue.OrderResponse, error) {
	order := venue.OrderRequest{
		Symbol:      req.Order.Symbol,
		Side:        req.Side,
		Kind:        req.Order.Kind,
		Quantity:    params.Quantity,
		QuoteAmount: params.QuoteAmount,
		Price:       params.Price,
	}
	if req.Order.Kind == venue.OrderKindLimit {
		order.TimeInForce = venue.TIFGTC
	}

	var (
		resp *venue.OrderResponse
		err  error
	)
	switch req.Order.AccountMode {
	case venue.AccountMargin:
		order.SideEffect = req.Order.SideEffect
		if order.SideEffect == "" {
			order.SideEffect = e.DefaultSideEffect
		}
		if order.SideEffect == "" {
			order.SideEffect = venue.SideEffectMarginBuy
		}
		resp, err = e.Venue.PlaceMarginOrder(ctx, order)
	default:
		resp, err = e.Venue.PlaceSpotOrder(ctx, order)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", trade.ErrVenueExecution, err)
	}
	return resp, nil
}

// ExecuteProtective places stop-loss/take-profit legs for an open margin
// position. Both triggers present means one OCO list so the legs cannot
// both execute; a single trigger becomes a standalone protective order.
// Spot positions get no protective legs; the venue endpoints used here are
// margin-side.
func (e *Executor) ExecuteProtective(ctx context.Context, req trade.NormalizedRequest, params trade.TradeParams, qty decimal.Decimal) (*ProtectiveResult, error) {
	if !params.StopLossPrice.Valid && !params.TakeProfitPrice.Valid {
		return &ProtectiveResult{}, nil
	}
	if req.Order.AccountMode != venue.AccountMargin {
		log.Printf("[EXECUTOR] skipping protective legs for spot position on %s", req.Order.Symbol)
		return &ProtectiveResult{}, nil
	}

	closeSide := req.Side.Opposite()
	res := &ProtectiveResult{}

	if params.StopLossPrice.Valid && params.TakeProfitPrice.Valid {
		oco, err := e.Venue.PlaceOCO(ctx, venue.OCORequest{
			Symbol:          req.Order.Symbol,
			Side:            closeSide,
			Quantity:        qty,
			TakeProfitPrice: params.TakeProfitPrice.Decimal,
			StopPrice:       params.StopLossPrice.Decimal,
			StopLimitPrice:  params.StopLossPrice.Decimal,
			SideEffect:      venue.SideEffectAutoRepay,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: oco: %v", trade.ErrVenueExecution, err)
		}
		res.OCO = oco
		return res, nil
	}

	if params.StopLossPrice.Valid {
		sl, err := e.Venue.PlaceStopLoss(ctx, venue.OrderRequest{
			Symbol:      req.Order.Symbol,
			Side:        closeSide,
			Quantity:    qty,
			StopPrice:   params.StopLossPrice.Decimal,
			TimeInForce: venue.TIFGTC,
			SideEffect:  venue.SideEffectAutoRepay,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: stop-loss: %v", trade.ErrVenueExecution, err)
		}
		res.StopLoss = sl
	}
	if params.TakeProfitPrice.Valid {
		tp, err := e.Venue.PlaceTakeProfit(ctx, venue.OrderRequest{
			Symbol:      req.Order.Symbol,
			Side:        closeSide,
			Quantity:    qty,
			StopPrice:   params.TakeProfitPrice.Decimal,
			TimeInForce: venue.TIFGTC,
			SideEffect:  venue.SideEffectAutoRepay,
		})
		if err != nil {
			// A dangling stop-loss without its paired take-profit is still
			// protection; report the partial placement instead of failing.
			log.Printf("[EXECUTOR] take-profit for %s failed after stop-loss placed: %v", req.Order.Symbol, err)
			return res, fmt.Errorf("%w: take-profit: %v", trade.ErrVenueExecution, err)
		}
		res.TakeProfit = tp
	}
	return res, nil
}

// CancelProtective cancels the protective legs referenced by a position
// before closing it. An "order already gone" response from the venue counts
// as success since the goal is only that nothing is left resting.
func (e *Executor) CancelProtective(ctx context.Context, symbol, ocoListID, slOrderID, tpOrderID string) error {
	if ocoListID != "" {
		if err := e.Venue.CancelOCO(ctx, symbol, ocoListID); err != nil && !errors.Is(err, venue.ErrOrderGone) {
			return fmt.Errorf("%w: cancel oco %s: %v", trade.ErrVenueExecution, ocoListID, err)
		}
		return nil
	}
	for _, id := range []string{slOrderID, tpOrderID} {
		if id == "" {
			continue
		}
		if err := e.Venue.CancelOrder(ctx, symbol, id); err != nil && !errors.Is(err, venue.ErrOrderGone) {
			return fmt.Errorf("%w: cancel order %s: %v", trade.ErrVenueExecution, id, err)
		}
	}
	return nil
}

// ExecuteClose places the opposite-side market order that flattens a
// position. Margin closes auto-repay the loan taken at entry.
func (e *Executor) ExecuteClose(ctx context.Context, symbol string, entrySide venue.Side, accountMode venue.AccountMode, qty decimal.Decimal) (*venue.OrderResponse, error) {
	order := venue.OrderRequest{
		Symbol:   symbol,
		Side:     entrySide.Opposite(),
		Kind:     venue.OrderKindMarket,
		Quantity: qty,
	}

	var (
		resp *venue.OrderResponse
		err  error
	)
	if accountMode == venue.AccountMargin {
		order.SideEffect = venue.SideEffectAutoRepay
		resp, err = e.Venue.PlaceMarginOrder(ctx, order)
	} else {
		resp, err = e.Venue.PlaceSpotOrder(ctx, order)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: close %s: %v", trade.ErrVenueExecution, symbol, err)
	}
	return resp, nil
}
