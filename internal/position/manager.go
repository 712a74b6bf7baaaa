package position

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"signal-trader/internal/events"
	"signal-trader/internal/executor"
	"signal-trader/internal/trade"
	"signal-trader/pkg/db"
	"signal-trader/pkg/venue"
)

// Manager owns the position lifecycle: PENDING -> OPEN -> CLOSED, plus the
// rollback of PENDING rows whose venue call failed. The provisional record
// is always written before the venue is touched, so a crash between the two
// leaves a PENDING row the reconciler can resolve rather than an untracked
// live order.
type Manager struct {
	DB       *db.Database
	Executor *executor.Executor
	Bus      *events.Bus

	// CloseAllLimiter paces venue calls during bulk closes so a panic
	// button does not burn the request weight budget. Nil means unpaced.
	CloseAllLimiter *rate.Limiter
}

func NewManager(database *db.Database, exec *executor.Executor, bus *events.Bus) *Manager {
	return &Manager{
		DB:              database,
		Executor:        exec,
		Bus:             bus,
		CloseAllLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Open runs the entry saga: provisional PENDING row, venue entry order,
// promotion to OPEN on fill, then protective legs. Protective placement
// failure does not undo the entry; the position is live either way and the
// failure is surfaced in logs and the returned position's empty leg fields.
func (m *Manager) Open(ctx context.Context, req trade.NormalizedRequest, params trade.TradeParams, data trade.ValidationData) (*db.Position, error) {
	pos := db.Position{
		ID:          uuid.NewString(),
		PortfolioID: req.PortfolioID,
		BotID:       req.BotID,
		Symbol:      req.Order.Symbol,
		Side:        req.PositionSide(),
		AccountMode: string(req.Order.AccountMode),
		Status:      db.PositionPending,
	}
	if err := m.DB.CreatePosition(ctx, pos); err != nil {
		return nil, fmt.Errorf("%w: create position: %v", trade.ErrPersistence, err)
	}

	resp, err := m.Executor.ExecuteEntry(ctx, req, params)
	if err != nil {
		m.rollback(ctx, pos.ID, err)
		return nil, err
	}
	if resp == nil || resp.OrderID == "" {
		err := fmt.Errorf("%w: venue returned no order id", trade.ErrVenueExecution)
		m.rollback(ctx, pos.ID, err)
		return nil, err
	}

	requestedQty, _ := params.Quantity.Float64()
	requestedValue, _ := params.QuoteAmount.Float64()
	limitPrice, _ := params.Price.Float64()
	entryOrder := db.Order{
		ID:             uuid.NewString(),
		PositionID:     pos.ID,
		VenueOrderID:   resp.OrderID,
		Kind:           db.OrderKindEntry,
		Symbol:         req.Order.Symbol,
		Side:           string(req.Side),
		Type:           string(req.Order.Kind),
		RequestedQty:   requestedQty,
		RequestedValue: requestedValue,
		Price:          limitPrice,
		Status:         string(resp.Status),
	}
	if err := m.DB.CreateOrder(ctx, entryOrder); err != nil {
		// The venue order exists; never roll back past this point. The
		// position stays PENDING for the reconciler.
		log.Printf("[POSITION] record entry order for %s failed: %v", pos.ID, err)
		return nil, fmt.Errorf("%w: record entry order: %v", trade.ErrPersistence, err)
	}

	if resp.Status != venue.StatusFilled {
		// Resting limit order: leave the position PENDING until the
		// reconciler (or a later fill) promotes it.
		log.Printf("[POSITION] %s entry %s resting with status %s", pos.Symbol, resp.OrderID, resp.Status)
		created, err := m.DB.GetPosition(ctx, pos.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: reload position: %v", trade.ErrPersistence, err)
		}
		return created, nil
	}

	return m.promote(ctx, pos.ID, entryOrder.ID, req, params, data, resp)
}

// promote applies fill data to a PENDING position and places protective
// legs. actual quantity is the executed quantity minus commission charged in
// the base asset; entry price is the volume-weighted average of the fills.
func (m *Manager) promote(ctx context.Context, positionID, entryOrderID string, req trade.NormalizedRequest, params trade.TradeParams, data trade.ValidationData, resp *venue.OrderResponse) (*db.Position, error) {
	base := ""
	if data.Symbol != nil {
		base = data.Symbol.BaseAsset
	}
	actualQty := resp.ExecutedQty.Sub(resp.BaseCommission(base))
	entryPrice := resp.AvgFillPrice()
	entryValue := resp.CummulativeQuoteQty

	qtyF, _ := actualQty.Float64()
	priceF, _ := entryPrice.Float64()
	valueF, _ := entryValue.Float64()
	if err := m.DB.MarkPositionOpen(ctx, positionID, qtyF, priceF, valueF, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("%w: mark open: %v", trade.ErrPersistence, err)
	}
	if err := m.DB.UpdateOrderFill(ctx, entryOrderID, string(resp.Status), qtyF, valueF); err != nil {
		log.Printf("[POSITION] update entry order fill for %s failed: %v", positionID, err)
	} else if m.Bus != nil {
		m.Bus.Publish(events.EventOrderUpdate, entryOrderID)
	}

	m.placeProtective(ctx, positionID, req, params, actualQty)

	if err := m.DB.RefreshPortfolioStats(ctx, req.PortfolioID); err != nil {
		log.Printf("[POSITION] refresh portfolio %s stats failed: %v", req.PortfolioID, err)
	}

	created, err := m.DB.GetPosition(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("%w: reload position: %v", trade.ErrPersistence, err)
	}
	if m.Bus != nil {
		m.Bus.Publish(events.EventPositionOpened, created)
	}
	log.Printf("[POSITION] opened %s %s %s qty=%s entry=%s", positionID, created.Side, created.Symbol, actualQty, entryPrice)
	return created, nil
}

// placeProtective places SL/TP legs and records their references. The
// position is already live, so a failure here is logged and the legs simply
// stay unset rather than undoing the entry.
func (m *Manager) placeProtective(ctx context.Context, positionID string, req trade.NormalizedRequest, params trade.TradeParams, qty decimal.Decimal) {
	if !params.StopLossPrice.Valid && !params.TakeProfitPrice.Valid {
		return
	}
	res, err := m.Executor.ExecuteProtective(ctx, req, params, qty)
	if err != nil {
		log.Printf("[POSITION] protective legs for %s failed: %v", positionID, err)
		if !res.HasAny() {
			return
		}
	}

	var slID, slStatus, tpID, tpStatus, ocoID string
	switch {
	case res.OCO != nil:
		ocoID = res.OCO.OrderListID
		for _, leg := range res.OCO.Legs {
			switch leg.Type {
			case "STOP_LOSS_LIMIT", "STOP_LOSS":
				slID, slStatus = leg.OrderID, string(leg.Status)
			case "LIMIT_MAKER", "TAKE_PROFIT_LIMIT", "TAKE_PROFIT":
				tpID, tpStatus = leg.OrderID, string(leg.Status)
			}
		}
	default:
		if res.StopLoss != nil {
			slID, slStatus = res.StopLoss.OrderID, string(res.StopLoss.Status)
		}
		if res.TakeProfit != nil {
			tpID, tpStatus = res.TakeProfit.OrderID, string(res.TakeProfit.Status)
		}
	}
	if err := m.DB.SetProtectiveOrders(ctx, positionID, slID, slStatus, tpID, tpStatus, ocoID); err != nil {
		log.Printf("[POSITION] record protective orders for %s failed: %v", positionID, err)
	}

	closeSide := string(req.Side.Opposite())
	qtyF, _ := qty.Float64()
	if slID != "" {
		priceF, _ := params.StopLossPrice.Decimal.Float64()
		m.recordLeg(ctx, db.Order{
			ID: uuid.NewString(), PositionID: positionID, VenueOrderID: slID,
			Kind: db.OrderKindStopLoss, Symbol: req.Order.Symbol, Side: closeSide,
			Type: "STOP_LOSS_LIMIT", RequestedQty: qtyF, Price: priceF, Status: slStatus,
		})
	}
	if tpID != "" {
		priceF, _ := params.TakeProfitPrice.Decimal.Float64()
		m.recordLeg(ctx, db.Order{
			ID: uuid.NewString(), PositionID: positionID, VenueOrderID: tpID,
			Kind: db.OrderKindTakeProfit, Symbol: req.Order.Symbol, Side: closeSide,
			Type: "TAKE_PROFIT_LIMIT", RequestedQty: qtyF, Price: priceF, Status: tpStatus,
		})
	}
}

func (m *Manager) recordLeg(ctx context.Context, o db.Order) {
	if err := m.DB.CreateOrder(ctx, o); err != nil {
		log.Printf("[POSITION] record %s leg for %s failed: %v", o.Kind, o.PositionID, err)
		return
	}
	if m.Bus != nil {
		m.Bus.Publish(events.EventOrderUpdate, o)
	}
}

// rollback deletes a PENDING row after a failed venue call so no phantom
// position survives. A delete failure is logged, not returned; the original
// venue error is what the caller reports.
func (m *Manager) rollback(ctx context.Context, positionID string, cause error) {
	if err := m.DB.DeletePosition(ctx, positionID); err != nil {
		log.Printf("[POSITION] rollback of %s failed: %v (original: %v)", positionID, err, cause)
		return
	}
	if m.Bus != nil {
		m.Bus.Publish(events.EventPositionRolledBack, positionID)
	}
	log.Printf("[POSITION] rolled back %s: %v", positionID, cause)
}

// ErrNotOpen is returned when a close is requested for a position that is
// not in the OPEN state.
var ErrNotOpen = errors.New("position is not open")

// Close flattens an OPEN position: cancel protective legs first (tolerating
// legs the venue already removed), then place the opposite-side market
// order, then persist exit data and realized PnL.
func (m *Manager) Close(ctx context.Context, positionID string, filters venue.SymbolFilters) (*db.Position, error) {
	pos, err := m.DB.GetPosition(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("%w: load position: %v", trade.ErrPersistence, err)
	}
	if pos == nil {
		return nil, fmt.Errorf("%w: position %s not found", trade.ErrInvalidRequest, positionID)
	}
	if pos.Status != db.PositionOpen {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotOpen, positionID, pos.Status)
	}

	if err := m.Executor.CancelProtective(ctx, pos.Symbol, pos.OCOListID, pos.StopLossOrderID, pos.TakeProfitOrderID); err != nil {
		return nil, err
	}
	if pos.OCOListID != "" || pos.StopLossOrderID != "" || pos.TakeProfitOrderID != "" {
		if err := m.DB.UpdateProtectiveStatuses(ctx, pos.ID, string(venue.StatusCanceled), string(venue.StatusCanceled)); err != nil {
			log.Printf("[POSITION] mark protective legs canceled for %s failed: %v", pos.ID, err)
		}
		if err := m.DB.CancelProtectiveOrderRows(ctx, pos.ID); err != nil {
			log.Printf("[POSITION] mark protective order rows canceled for %s failed: %v", pos.ID, err)
		}
	}

	entrySide := venue.SideBuy
	if pos.Side == db.PositionShort {
		entrySide = venue.SideSell
	}

	// Re-floor to the current step size; the filter may have changed since
	// entry and commission already shaved the holdable quantity.
	qty := floorToStep(decimal.NewFromFloat(pos.Quantity), filters.StepSize)
	if qty.IsZero() {
		return nil, fmt.Errorf("%w: quantity of %s rounds to zero", trade.ErrConstraintViolation, positionID)
	}

	resp, err := m.Executor.ExecuteClose(ctx, pos.Symbol, entrySide, venue.AccountMode(pos.AccountMode), qty)
	if err != nil {
		return nil, err
	}

	exitValue := resp.CummulativeQuoteQty
	exitPrice := resp.AvgFillPrice()
	entryValue := decimal.NewFromFloat(pos.EntryValue)
	pnl := exitValue.Sub(entryValue)
	if pos.Side == db.PositionShort {
		pnl = entryValue.Sub(exitValue)
	}

	exitPriceF, _ := exitPrice.Float64()
	exitValueF, _ := exitValue.Float64()
	pnlF, _ := pnl.Float64()
	if err := m.DB.ClosePosition(ctx, pos.ID, exitPriceF, exitValueF, pnlF, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("%w: close position: %v", trade.ErrPersistence, err)
	}

	execQtyF, _ := resp.ExecutedQty.Float64()
	reqQtyF, _ := qty.Float64()
	exitOrder := db.Order{
		ID:            uuid.NewString(),
		PositionID:    pos.ID,
		VenueOrderID:  resp.OrderID,
		Kind:          db.OrderKindExit,
		Symbol:        pos.Symbol,
		Side:          string(entrySide.Opposite()),
		Type:          string(venue.OrderKindMarket),
		RequestedQty:  reqQtyF,
		ExecutedQty:   execQtyF,
		ExecutedValue: exitValueF,
		Status:        string(resp.Status),
	}
	if err := m.DB.CreateOrder(ctx, exitOrder); err != nil {
		log.Printf("[POSITION] record exit order for %s failed: %v", pos.ID, err)
	} else if m.Bus != nil {
		m.Bus.Publish(events.EventOrderUpdate, exitOrder)
	}

	if err := m.DB.RefreshPortfolioStats(ctx, pos.PortfolioID); err != nil {
		log.Printf("[POSITION] refresh portfolio %s stats failed: %v", pos.PortfolioID, err)
	}

	closed, err := m.DB.GetPosition(ctx, pos.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: reload position: %v", trade.ErrPersistence, err)
	}
	if m.Bus != nil {
		m.Bus.Publish(events.EventPositionClosed, closed)
	}
	log.Printf("[POSITION] closed %s %s pnl=%s", pos.ID, pos.Symbol, pnl)
	return closed, nil
}

// CloseAllResult reports the outcome of a bulk close.
type CloseAllResult struct {
	Closed []string
	Failed map[string]error
}

// CloseAll flattens every OPEN position in a portfolio, paced by the
// manager's limiter. Failures do not abort the sweep; each position is
// attempted and errors are collected per position.
func (m *Manager) CloseAll(ctx context.Context, portfolioID string, filtersFor func(ctx context.Context, symbol string) (venue.SymbolFilters, error)) (*CloseAllResult, error) {
	positions, err := m.DB.ListOpenPositionsByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("%w: list open positions: %v", trade.ErrPersistence, err)
	}

	res := &CloseAllResult{Failed: make(map[string]error)}
	for _, pos := range positions {
		if m.CloseAllLimiter != nil {
			if err := m.CloseAllLimiter.Wait(ctx); err != nil {
				return res, err
			}
		}
		filters, err := filtersFor(ctx, pos.Symbol)
		if err != nil {
			res.Failed[pos.ID] = err
			continue
		}
		if _, err := m.Close(ctx, pos.ID, filters); err != nil {
			res.Failed[pos.ID] = err
			continue
		}
		res.Closed = append(res.Closed, pos.ID)
	}
	return res, nil
}

func floorToStep(v, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}
