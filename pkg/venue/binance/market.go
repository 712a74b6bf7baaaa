package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"signal-trader/pkg/venue"
)

type exchangeInfoResponse struct {
	Symbols []symbolInfoJSON `json:"symbols"`
}

type symbolInfoJSON struct {
	Symbol               string           `json:"symbol"`
	Status               string           `json:"status"`
	BaseAsset            string           `json:"baseAsset"`
	QuoteAsset           string           `json:"quoteAsset"`
	IsSpotTradingAllowed bool             `json:"isSpotTradingAllowed"`
	IsMarginAllowed      bool             `json:"isMarginTradingAllowed"`
	Filters              []map[string]any `json:"filters"`
}

// GetSymbolInfo fetches symbol metadata and trading filters.
func (c *Client) GetSymbolInfo(ctx context.Context, symbol string) (*venue.SymbolInfo, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.doPublic(ctx, "/api/v3/exchangeInfo", params)
	if err != nil {
		return nil, err
	}

	var resp exchangeInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode exchange info: %w", err)
	}
	if len(resp.Symbols) == 0 {
		return nil, fmt.Errorf("binance: symbol %s not found", symbol)
	}

	s := resp.Symbols[0]
	info := &venue.SymbolInfo{
		Symbol:               s.Symbol,
		Status:               s.Status,
		BaseAsset:            s.BaseAsset,
		QuoteAsset:           s.QuoteAsset,
		SpotTradingAllowed:   s.IsSpotTradingAllowed,
		MarginTradingAllowed: s.IsMarginAllowed,
		Filters:              parseFilters(s.Filters),
	}
	return info, nil
}

// parseFilters extracts the filters the pipeline cares about. Unknown filter
// types are ignored.
func parseFilters(raw []map[string]any) venue.SymbolFilters {
	var f venue.SymbolFilters
	for _, entry := range raw {
		typ, _ := entry["filterType"].(string)
		switch typ {
		case "PRICE_FILTER":
			f.MinPrice = filterDecimal(entry, "minPrice")
			f.MaxPrice = filterDecimal(entry, "maxPrice")
			f.TickSize = filterDecimal(entry, "tickSize")
		case "LOT_SIZE":
			f.MinQty = filterDecimal(entry, "minQty")
			f.MaxQty = filterDecimal(entry, "maxQty")
			f.StepSize = filterDecimal(entry, "stepSize")
		case "MIN_NOTIONAL", "NOTIONAL":
			f.MinNotional = filterDecimal(entry, "minNotional")
		}
	}
	return f
}

func filterDecimal(entry map[string]any, key string) decimal.Decimal {
	s, _ := entry[key].(string)
	return parseDecimal(s)
}

// GetPrice fetches the latest traded price for a symbol.
func (c *Client) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.doPublic(ctx, "/api/v3/ticker/price", params)
	if err != nil {
		return decimal.Zero, err
	}
	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("decode ticker price: %w", err)
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse ticker price %q: %w", resp.Price, err)
	}
	return price, nil
}
