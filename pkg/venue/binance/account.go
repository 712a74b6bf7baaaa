package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"signal-trader/pkg/venue"
)

// GetSpotBalances returns the spot account balances.
func (c *Client) GetSpotBalances(ctx context.Context) ([]venue.Balance, error) {
	body, err := c.doSigned(ctx, http.MethodGet, "/api/v3/account", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode account info: %w", err)
	}

	balances := make([]venue.Balance, 0, len(resp.Balances))
	for _, b := range resp.Balances {
		balances = append(balances, venue.Balance{
			Asset:  b.Asset,
			Free:   parseDecimal(b.Free),
			Locked: parseDecimal(b.Locked),
		})
	}
	return balances, nil
}

// GetMarginAccount returns the cross-margin account snapshot.
func (c *Client) GetMarginAccount(ctx context.Context) (*venue.MarginAccount, error) {
	body, err := c.doSigned(ctx, http.MethodGet, "/sapi/v1/margin/account", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		BorrowEnabled bool   `json:"borrowEnabled"`
		TradeEnabled  bool   `json:"tradeEnabled"`
		MarginLevel   string `json:"marginLevel"`
		UserAssets    []struct {
			Asset    string `json:"asset"`
			Free     string `json:"free"`
			Locked   string `json:"locked"`
			Borrowed string `json:"borrowed"`
			NetAsset string `json:"netAsset"`
		} `json:"userAssets"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode margin account: %w", err)
	}

	account := &venue.MarginAccount{
		BorrowEnabled: resp.BorrowEnabled,
		TradeEnabled:  resp.TradeEnabled,
		MarginLevel:   parseDecimal(resp.MarginLevel),
	}
	for _, a := range resp.UserAssets {
		account.Assets = append(account.Assets, venue.MarginAsset{
			Asset:    a.Asset,
			Free:     parseDecimal(a.Free),
			Locked:   parseDecimal(a.Locked),
			Borrowed: parseDecimal(a.Borrowed),
			NetAsset: parseDecimal(a.NetAsset),
		})
	}
	return account, nil
}

// GetMaxBorrowable returns the maximum amount of an asset the account may
// borrow on cross margin.
func (c *Client) GetMaxBorrowable(ctx context.Context, asset string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("asset", asset)
	body, err := c.doSigned(ctx, http.MethodGet, "/sapi/v1/margin/maxBorrowable", params)
	if err != nil {
		return decimal.Zero, err
	}
	var resp struct {
		Amount string `json:"amount"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("decode max borrowable: %w", err)
	}
	return parseDecimal(resp.Amount), nil
}
