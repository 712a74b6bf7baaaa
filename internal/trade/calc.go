package trade

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"signal-trader/pkg/db"
	"signal-trader/pkg/venue"
)

var oneHundred = decimal.NewFromInt(100)

// TradeParams is the deterministic output of the calculation stage. For
// MARKET orders funded by a quote amount, Quantity stays empty and
// QuoteAmount is set instead; the executor uses that to pick the
// quote-denominated venue call. The two are never both populated.
type TradeParams struct {
	Quantity        decimal.Decimal
	QuoteAmount     decimal.Decimal
	Price           decimal.Decimal // limit price, zero for market orders
	ExpectedPrice   decimal.Decimal // price the fill is estimated at
	StopLossPrice   decimal.NullDecimal
	TakeProfitPrice decimal.NullDecimal
}

// Calculator derives venue-compliant order parameters from a validated
// request. Pure computation; all failures are ErrConstraintViolation.
type Calculator struct{}

// Calc computes quantity/price values obeying the symbol's step, tick and
// notional filters, and resolves stop-loss/take-profit trigger prices.
// bot supplies fallback percentages and may be nil.
func (Calculator) Calc(req NormalizedRequest, data ValidationData, bot *db.Bot) (TradeParams, error) {
	filters := data.Symbol.Filters
	params := TradeParams{ExpectedPrice: data.Price}

	if req.Order.Kind == venue.OrderKindLimit {
		if req.Order.Price.IsZero() {
			return TradeParams{}, fmt.Errorf("%w: limit order requires a price", ErrConstraintViolation)
		}
		price := roundToTick(req.Order.Price, filters.TickSize)
		if !filters.MinPrice.IsZero() && price.LessThan(filters.MinPrice) {
			return TradeParams{}, fmt.Errorf("%w: price %s below minimum %s", ErrConstraintViolation, price, filters.MinPrice)
		}
		if !filters.MaxPrice.IsZero() && price.GreaterThan(filters.MaxPrice) {
			return TradeParams{}, fmt.Errorf("%w: price %s above maximum %s", ErrConstraintViolation, price, filters.MaxPrice)
		}
		params.Price = price
		params.ExpectedPrice = price
	}

	// Quantity is floored to the step size. When funded by a quote amount,
	// division happens before flooring so the base quantity never exceeds
	// what the quote amount can actually purchase.
	var qty decimal.Decimal
	switch {
	case !req.Order.Quantity.IsZero():
		qty = floorToStep(req.Order.Quantity, filters.StepSize)
	case !req.Order.QuoteAmount.IsZero():
		qty = floorToStep(req.Order.QuoteAmount.Div(params.ExpectedPrice), filters.StepSize)
	default:
		return TradeParams{}, fmt.Errorf("%w: quantity or quote amount required", ErrConstraintViolation)
	}

	if qty.IsZero() || (!filters.MinQty.IsZero() && qty.LessThan(filters.MinQty)) {
		return TradeParams{}, fmt.Errorf("%w: quantity %s below minimum %s", ErrConstraintViolation, qty, filters.MinQty)
	}
	if !filters.MaxQty.IsZero() && qty.GreaterThan(filters.MaxQty) {
		return TradeParams{}, fmt.Errorf("%w: quantity %s above maximum %s", ErrConstraintViolation, qty, filters.MaxQty)
	}

	notional := qty.Mul(params.ExpectedPrice)
	if !req.Order.QuoteAmount.IsZero() {
		notional = req.Order.QuoteAmount
	}
	if !filters.MinNotional.IsZero() && notional.LessThan(filters.MinNotional) {
		return TradeParams{}, fmt.Errorf("%w: notional %s below minimum %s", ErrConstraintViolation, notional, filters.MinNotional)
	}

	if req.Order.Kind == venue.OrderKindMarket && !req.Order.QuoteAmount.IsZero() {
		params.QuoteAmount = req.Order.QuoteAmount
	} else {
		params.Quantity = qty
	}

	long := req.PositionSide() == PositionLong
	entry := params.ExpectedPrice

	slPct := resolvePct(req.Order.StopLossPct, botStopLoss(bot))
	if slPct.Valid {
		if !slPct.Decimal.IsPositive() {
			return TradeParams{}, fmt.Errorf("%w: stop-loss percentage must be positive", ErrConstraintViolation)
		}
		params.StopLossPrice = trigger(entry, slPct.Decimal, filters.TickSize, long, true)
	}
	tpPct := resolvePct(req.Order.TakeProfitPct, botTakeProfit(bot))
	if tpPct.Valid {
		if !tpPct.Decimal.IsPositive() {
			return TradeParams{}, fmt.Errorf("%w: take-profit percentage must be positive", ErrConstraintViolation)
		}
		params.TakeProfitPrice = trigger(entry, tpPct.Decimal, filters.TickSize, long, false)
	}

	return params, nil
}

// resolvePct picks the first configured value: explicit request value, then
// the bot default, then none. No implicit fallback anywhere else.
func resolvePct(reqPct decimal.NullDecimal, botPct float64) decimal.NullDecimal {
	if reqPct.Valid {
		return reqPct
	}
	if botPct > 0 {
		return decimal.NullDecimal{Decimal: decimal.NewFromFloat(botPct), Valid: true}
	}
	return decimal.NullDecimal{}
}

func botStopLoss(bot *db.Bot) float64 {
	if bot == nil {
		return 0
	}
	return bot.StopLossPct
}

func botTakeProfit(bot *db.Bot) float64 {
	if bot == nil {
		return 0
	}
	return bot.TakeProfitPct
}

// trigger computes a protective trigger price at pct percent from entry.
// Long stop-loss sits below entry and take-profit above; shorts mirror.
func trigger(entry, pct, tick decimal.Decimal, long, isStopLoss bool) decimal.NullDecimal {
	frac := pct.Div(oneHundred)
	below := long == isStopLoss // long SL and short TP sit below entry
	var price decimal.Decimal
	if below {
		price = entry.Mul(decimal.NewFromInt(1).Sub(frac))
	} else {
		price = entry.Mul(decimal.NewFromInt(1).Add(frac))
	}
	return decimal.NullDecimal{Decimal: roundToTick(price, tick), Valid: true}
}

// floorToStep floors v to the nearest multiple of step. Reapplying the
// operation is a no-op.
func floorToStep(v, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

// roundToTick rounds p to the number of decimal places implied by the tick
// size magnitude.
func roundToTick(p, tick decimal.Decimal) decimal.Decimal {
	if tick.IsZero() {
		return p
	}
	return p.Round(decimalPlaces(tick))
}

// decimalPlaces counts significant fractional digits of a step/tick size
// (0.01000000 has two).
func decimalPlaces(step decimal.Decimal) int32 {
	s := step.String()
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return int32(len(strings.TrimRight(s[i+1:], "0")))
}
