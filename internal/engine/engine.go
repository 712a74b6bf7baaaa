package engine

import (
	"context"
	"fmt"
	"log"

	"signal-trader/internal/events"
	"signal-trader/internal/position"
	"signal-trader/internal/trade"
	"signal-trader/pkg/db"
	"signal-trader/pkg/venue"
)

// Report statuses returned to API clients.
const (
	StatusExecuted = "EXECUTED"
	StatusRejected = "REJECTED"
	StatusFailed   = "FAILED"
)

// TradeReport is the outcome of one trading request.
type TradeReport struct {
	Status     string                 `json:"status"`
	Message    string                 `json:"message,omitempty"`
	Violations trade.ValidationErrors `json:"violations,omitempty"`
	Position   *db.Position           `json:"position,omitempty"`
}

// Engine drives the trading pipeline end to end: normalize, validate,
// calculate, then hand off to the position manager. Each request runs the
// stages strictly in order and stops at the first failing stage.
type Engine struct {
	DB        *db.Database
	Venue     venue.Venue
	Validator *trade.Validator
	Calc      trade.Calculator
	Positions *position.Manager
	Bus       *events.Bus
}

func New(database *db.Database, v venue.Venue, positions *position.Manager, bus *events.Bus) *Engine {
	return &Engine{
		DB:        database,
		Venue:     v,
		Validator: &trade.Validator{Venue: v},
		Positions: positions,
		Bus:       bus,
	}
}

// Trade executes one trading request. Exit signal actions route to the
// close flow against the matching open position; everything else opens a
// new position through the full pipeline.
func (e *Engine) Trade(ctx context.Context, req trade.TradingRequest) (*TradeReport, error) {
	normalized, err := trade.Normalize(req)
	if err != nil {
		return e.reject(err.Error(), nil), nil
	}

	if req.Order.Action.IsExit() {
		return e.closeForSignal(ctx, normalized)
	}

	var bot *db.Bot
	if req.Source == trade.SourceBot {
		bot, err = e.DB.GetBot(ctx, req.BotID)
		if err != nil {
			return nil, fmt.Errorf("%w: load bot: %v", trade.ErrPersistence, err)
		}
	}

	result, err := e.Validator.Validate(ctx, normalized, bot)
	if err != nil {
		return nil, err
	}
	if !result.OK {
		return e.reject("request failed validation", result.Errors), nil
	}

	params, err := e.Calc.Calc(normalized, *result.Data, bot)
	if err != nil {
		return e.reject(err.Error(), nil), nil
	}

	pos, err := e.Positions.Open(ctx, normalized, params, *result.Data)
	if err != nil {
		log.Printf("[ENGINE] open %s failed: %v", req.Order.Symbol, err)
		return &TradeReport{Status: StatusFailed, Message: err.Error()}, nil
	}
	return &TradeReport{Status: StatusExecuted, Position: pos}, nil
}

// closeForSignal resolves an EXIT_* action to the oldest matching open
// position and closes it. No matching position is a rejection, not an
// error: the signal may be a duplicate or arrive after a manual close.
func (e *Engine) closeForSignal(ctx context.Context, req trade.NormalizedRequest) (*TradeReport, error) {
	pos, err := e.DB.FindOpenPosition(ctx, req.PortfolioID, req.BotID, req.Order.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: find open position: %v", trade.ErrPersistence, err)
	}
	if pos == nil {
		return e.reject(fmt.Sprintf("no open %s position to exit", req.Order.Symbol), nil), nil
	}
	return e.ClosePosition(ctx, pos.ID)
}

// ClosePosition closes one position by id.
func (e *Engine) ClosePosition(ctx context.Context, positionID string) (*TradeReport, error) {
	pos, err := e.DB.GetPosition(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("%w: load position: %v", trade.ErrPersistence, err)
	}
	if pos == nil {
		return e.reject(fmt.Sprintf("position %s not found", positionID), nil), nil
	}

	filters, err := e.filtersFor(ctx, pos.Symbol)
	if err != nil {
		return &TradeReport{Status: StatusFailed, Message: err.Error()}, nil
	}
	closed, err := e.Positions.Close(ctx, positionID, filters)
	if err != nil {
		log.Printf("[ENGINE] close %s failed: %v", positionID, err)
		return &TradeReport{Status: StatusFailed, Message: err.Error()}, nil
	}
	return &TradeReport{Status: StatusExecuted, Position: closed}, nil
}

// CloseAll closes every open position in a portfolio.
func (e *Engine) CloseAll(ctx context.Context, portfolioID string) (*position.CloseAllResult, error) {
	return e.Positions.CloseAll(ctx, portfolioID, e.filtersFor)
}

func (e *Engine) filtersFor(ctx context.Context, symbol string) (venue.SymbolFilters, error) {
	info, err := e.Venue.GetSymbolInfo(ctx, symbol)
	if err != nil {
		return venue.SymbolFilters{}, fmt.Errorf("symbol info for %s: %w", symbol, err)
	}
	if info == nil {
		return venue.SymbolFilters{}, fmt.Errorf("symbol %s not found", symbol)
	}
	return info.Filters, nil
}

func (e *Engine) reject(message string, violations trade.ValidationErrors) *TradeReport {
	if e.Bus != nil {
		e.Bus.Publish(events.EventTradeRejected, message)
	}
	return &TradeReport{Status: StatusRejected, Message: message, Violations: violations}
}
