package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"signal-trader/pkg/venue"
)

func TestSign(t *testing.T) {
	// Example from the Binance API docs.
	got := sign("symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559",
		"NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j")
	want := "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71"
	if got != want {
		t.Errorf("sign mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestParseFilters(t *testing.T) {
	raw := []map[string]any{
		{"filterType": "PRICE_FILTER", "minPrice": "0.01000000", "maxPrice": "1000000.00000000", "tickSize": "0.01000000"},
		{"filterType": "LOT_SIZE", "minQty": "0.00001000", "maxQty": "9000.00000000", "stepSize": "0.00001000"},
		{"filterType": "NOTIONAL", "minNotional": "10.00000000"},
		{"filterType": "ICEBERG_PARTS", "limit": float64(10)}, // ignored
	}
	f := parseFilters(raw)
	if !f.TickSize.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("tick size: got %s", f.TickSize)
	}
	if !f.StepSize.Equal(decimal.RequireFromString("0.00001")) {
		t.Errorf("step size: got %s", f.StepSize)
	}
	if !f.MinNotional.Equal(decimal.RequireFromString("10")) {
		t.Errorf("min notional: got %s", f.MinNotional)
	}
}

func TestParseFiltersLegacyMinNotional(t *testing.T) {
	raw := []map[string]any{
		{"filterType": "MIN_NOTIONAL", "minNotional": "5.00000000"},
	}
	f := parseFilters(raw)
	if !f.MinNotional.Equal(decimal.RequireFromString("5")) {
		t.Errorf("min notional: got %s", f.MinNotional)
	}
}

func TestOrderParams(t *testing.T) {
	t.Run("market with quote amount", func(t *testing.T) {
		params, err := orderParams(venue.OrderRequest{
			Symbol:      "BTCUSDT",
			Side:        venue.SideBuy,
			Kind:        venue.OrderKindMarket,
			QuoteAmount: decimal.RequireFromString("100"),
		})
		if err != nil {
			t.Fatalf("orderParams failed: %v", err)
		}
		if params.Get("quoteOrderQty") != "100" {
			t.Errorf("expected quoteOrderQty=100, got %q", params.Get("quoteOrderQty"))
		}
		if params.Get("quantity") != "" {
			t.Errorf("quantity must not be set alongside quoteOrderQty")
		}
	})

	t.Run("market with quantity", func(t *testing.T) {
		params, err := orderParams(venue.OrderRequest{
			Symbol:   "BTCUSDT",
			Side:     venue.SideSell,
			Kind:     venue.OrderKindMarket,
			Quantity: decimal.RequireFromString("0.002"),
		})
		if err != nil {
			t.Fatalf("orderParams failed: %v", err)
		}
		if params.Get("quantity") != "0.002" {
			t.Errorf("expected quantity=0.002, got %q", params.Get("quantity"))
		}
	})

	t.Run("limit defaults to GTC", func(t *testing.T) {
		params, err := orderParams(venue.OrderRequest{
			Symbol:   "BTCUSDT",
			Side:     venue.SideBuy,
			Kind:     venue.OrderKindLimit,
			Quantity: decimal.RequireFromString("0.002"),
			Price:    decimal.RequireFromString("49000"),
		})
		if err != nil {
			t.Fatalf("orderParams failed: %v", err)
		}
		if params.Get("timeInForce") != "GTC" {
			t.Errorf("expected GTC, got %q", params.Get("timeInForce"))
		}
	})

	t.Run("market without size is rejected", func(t *testing.T) {
		_, err := orderParams(venue.OrderRequest{Symbol: "BTCUSDT", Side: venue.SideBuy, Kind: venue.OrderKindMarket})
		if err == nil {
			t.Error("expected error")
		}
	})
}

func TestDecodeOrderResponse(t *testing.T) {
	body := []byte(`{
		"symbol": "BTCUSDT",
		"orderId": 28,
		"clientOrderId": "x-1",
		"status": "FILLED",
		"executedQty": "0.00200000",
		"cummulativeQuoteQty": "100.00000000",
		"fills": [
			{"price": "50000.00000000", "qty": "0.00200000", "commission": "0.00000200", "commissionAsset": "BTC"}
		]
	}`)
	res, err := decodeOrderResponse(body)
	if err != nil {
		t.Fatalf("decodeOrderResponse failed: %v", err)
	}
	if res.OrderID != "28" || res.Status != venue.StatusFilled {
		t.Errorf("unexpected response: %+v", res)
	}
	if !res.AvgFillPrice().Equal(decimal.RequireFromString("50000")) {
		t.Errorf("avg fill price: got %s", res.AvgFillPrice())
	}
	if !res.BaseCommission("BTC").Equal(decimal.RequireFromString("0.000002")) {
		t.Errorf("base commission: got %s", res.BaseCommission("BTC"))
	}
	if !res.BaseCommission("BNB").IsZero() {
		t.Error("commission in another asset must not count")
	}
}

func TestCancelMapsUnknownOrderToErrOrderGone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code": -2011, "msg": "Unknown order sent."}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", APISecret: "s"})
	c.baseURL = srv.URL

	err := c.CancelOrder(context.Background(), "BTCUSDT", "123")
	if !errors.Is(err, venue.ErrOrderGone) {
		t.Errorf("expected ErrOrderGone, got %v", err)
	}
}

func TestAPIErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code": -1013, "msg": "Filter failure: LOT_SIZE"}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", APISecret: "s"})
	c.baseURL = srv.URL

	_, err := c.PlaceSpotOrder(context.Background(), venue.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     venue.SideBuy,
		Kind:     venue.OrderKindMarket,
		Quantity: decimal.RequireFromString("0.002"),
	})
	var apiErr *apiError
	if !errors.As(err, &apiErr) || apiErr.Code != -1013 {
		t.Errorf("expected apiError -1013, got %v", err)
	}
}

func TestMapStatus(t *testing.T) {
	cases := map[string]venue.OrderStatus{
		"NEW":              venue.StatusNew,
		"FILLED":           venue.StatusFilled,
		"EXPIRED_IN_MATCH": venue.StatusExpired,
		"whatever":         venue.StatusUnknown,
	}
	for in, want := range cases {
		if got := mapStatus(in); got != want {
			t.Errorf("mapStatus(%s) = %s, want %s", in, got, want)
		}
	}
}
