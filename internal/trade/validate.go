package trade

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"signal-trader/pkg/db"
	"signal-trader/pkg/venue"
)

// ValidationData is the read-only market snapshot handed to the calculator.
// It is fetched fresh per request; nothing here is cached across requests.
type ValidationData struct {
	Price         decimal.Decimal
	Available     decimal.Decimal // free balance; for margin: free + max borrowable
	MaxBorrowable decimal.NullDecimal
	Symbol        *venue.SymbolInfo
}

// ValidationResult reports either a usable snapshot or every violated
// constraint found in one pass.
type ValidationResult struct {
	OK     bool
	Errors ValidationErrors
	Data   *ValidationData
}

// Validator checks a normalized request against venue metadata, bot
// constraints and account balances. It has no side effects.
type Validator struct {
	Venue venue.Venue
}

// Validate runs every check and accumulates failures instead of stopping at
// the first one, so the caller can report all actionable issues together.
// bot may be nil for manual requests.
func (v *Validator) Validate(ctx context.Context, req NormalizedRequest, bot *db.Bot) (*ValidationResult, error) {
	var errs ValidationErrors
	data := &ValidationData{}

	info := v.checkSymbol(ctx, req, &errs)
	data.Symbol = info

	price, priceOK := v.checkPrice(ctx, req, &errs)
	data.Price = price

	if req.Source == SourceBot {
		checkBot(req, bot, &errs)
	}

	// Balance checks need symbol metadata and a price to size the request.
	if info != nil && priceOK {
		v.checkBalance(ctx, req, info, price, data, &errs)
	}

	if len(errs) > 0 {
		return &ValidationResult{OK: false, Errors: errs}, nil
	}
	return &ValidationResult{OK: true, Data: data}, nil
}

func (v *Validator) checkSymbol(ctx context.Context, req NormalizedRequest, errs *ValidationErrors) *venue.SymbolInfo {
	info, err := v.Venue.GetSymbolInfo(ctx, req.Order.Symbol)
	if err != nil || info == nil {
		*errs = append(*errs, FieldError{
			Code:    CodeSymbolUnavailable,
			Field:   "symbol",
			Message: fmt.Sprintf("symbol %s is not available: %v", req.Order.Symbol, err),
		})
		return nil
	}
	if info.Status != "TRADING" {
		*errs = append(*errs, FieldError{
			Code:    CodeSymbolUnavailable,
			Field:   "symbol",
			Message: fmt.Sprintf("symbol %s is not trading (status %s)", req.Order.Symbol, info.Status),
		})
	}
	switch req.Order.AccountMode {
	case venue.AccountSpot:
		if !info.SpotTradingAllowed {
			*errs = append(*errs, FieldError{
				Code:    CodeSymbolUnavailable,
				Field:   "accountMode",
				Message: fmt.Sprintf("spot trading is not permitted for %s", req.Order.Symbol),
			})
		}
	case venue.AccountMargin:
		if !info.MarginTradingAllowed {
			*errs = append(*errs, FieldError{
				Code:    CodeSymbolUnavailable,
				Field:   "accountMode",
				Message: fmt.Sprintf("margin trading is not permitted for %s", req.Order.Symbol),
			})
		}
	default:
		*errs = append(*errs, FieldError{
			Code:    CodeSymbolUnavailable,
			Field:   "accountMode",
			Message: fmt.Sprintf("unrecognized account mode %q", req.Order.AccountMode),
		})
	}
	return info
}

func (v *Validator) checkPrice(ctx context.Context, req NormalizedRequest, errs *ValidationErrors) (decimal.Decimal, bool) {
	price, err := v.Venue.GetPrice(ctx, req.Order.Symbol)
	if err != nil || price.IsZero() {
		msg := fmt.Sprintf("no current price for %s", req.Order.Symbol)
		if err != nil {
			msg = fmt.Sprintf("%s: %v", msg, err)
		}
		*errs = append(*errs, FieldError{
			Code:    CodePriceUnavailable,
			Field:   "symbol",
			Message: msg,
		})
		return decimal.Zero, false
	}
	return price, true
}

func checkBot(req NormalizedRequest, bot *db.Bot, errs *ValidationErrors) {
	if bot == nil {
		*errs = append(*errs, FieldError{
			Code:    CodeBotConstraint,
			Field:   "botId",
			Message: fmt.Sprintf("bot %s not found", req.BotID),
		})
		return
	}
	if !bot.IsActive {
		*errs = append(*errs, FieldError{
			Code:    CodeBotConstraint,
			Field:   "botId",
			Message: fmt.Sprintf("bot %s is not active", bot.ID),
		})
	}
	if !bot.AllowsSymbol(req.Order.Symbol) {
		*errs = append(*errs, FieldError{
			Code:    CodeBotConstraint,
			Field:   "symbol",
			Message: fmt.Sprintf("symbol %s is not in the allowlist of bot %s", req.Order.Symbol, bot.ID),
		})
	}
}

// checkBalance compares the request size against what the account can spend.
// Buying spends the quote asset; selling spends the base asset. Margin
// requests count free balance plus max borrowable, since borrowing may cover
// the gap.
func (v *Validator) checkBalance(ctx context.Context, req NormalizedRequest, info *venue.SymbolInfo, price decimal.Decimal, data *ValidationData, errs *ValidationErrors) {
	asset := info.QuoteAsset
	required := req.Order.QuoteAmount
	if required.IsZero() {
		required = req.Order.Quantity.Mul(price)
	}
	if req.Side == venue.SideSell {
		asset = info.BaseAsset
		required = req.Order.Quantity
		if required.IsZero() && !req.Order.QuoteAmount.IsZero() {
			required = req.Order.QuoteAmount.Div(price)
		}
	}

	switch req.Order.AccountMode {
	case venue.AccountMargin:
		account, err := v.Venue.GetMarginAccount(ctx)
		if err != nil {
			*errs = append(*errs, FieldError{
				Code:    CodeBalanceUnavailable,
				Message: fmt.Sprintf("margin account unavailable: %v", err),
			})
			return
		}
		free := decimal.Zero
		for _, a := range account.Assets {
			if a.Asset == asset {
				free = a.Free
				break
			}
		}
		borrowable, err := v.Venue.GetMaxBorrowable(ctx, asset)
		if err != nil {
			// Borrow limit is advisory here; fall back to own balance only.
			borrowable = decimal.Zero
		} else {
			data.MaxBorrowable = decimal.NullDecimal{Decimal: borrowable, Valid: true}
		}
		combined := free.Add(borrowable)
		data.Available = combined
		if combined.LessThan(required) {
			*errs = append(*errs, FieldError{
				Code:    CodeInsufficientBalance,
				Field:   "quantity",
				Message: fmt.Sprintf("need %s %s but only %s available including borrow limit", required, asset, combined),
			})
		}
	default:
		balances, err := v.Venue.GetSpotBalances(ctx)
		if err != nil {
			*errs = append(*errs, FieldError{
				Code:    CodeBalanceUnavailable,
				Message: fmt.Sprintf("spot balances unavailable: %v", err),
			})
			return
		}
		free := decimal.Zero
		for _, b := range balances {
			if b.Asset == asset {
				free = b.Free
				break
			}
		}
		data.Available = free
		if free.LessThan(required) {
			*errs = append(*errs, FieldError{
				Code:    CodeInsufficientBalance,
				Field:   "quantity",
				Message: fmt.Sprintf("need %s %s but only %s free", required, asset, free),
			})
		}
	}
}
