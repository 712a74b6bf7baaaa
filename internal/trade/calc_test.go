package trade

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"signal-trader/pkg/db"
	"signal-trader/pkg/venue"
)

func btcData() ValidationData {
	return ValidationData{
		Price: decimal.RequireFromString("50000"),
		Symbol: &venue.SymbolInfo{
			Symbol:     "BTCUSDT",
			BaseAsset:  "BTC",
			QuoteAsset: "USDT",
			Filters: venue.SymbolFilters{
				MinPrice:    decimal.RequireFromString("0.01"),
				MaxPrice:    decimal.RequireFromString("1000000"),
				TickSize:    decimal.RequireFromString("0.01"),
				MinQty:      decimal.RequireFromString("0.00001"),
				MaxQty:      decimal.RequireFromString("9000"),
				StepSize:    decimal.RequireFromString("0.00001"),
				MinNotional: decimal.RequireFromString("10"),
			},
		},
	}
}

func marketBuy(spec OrderSpec) NormalizedRequest {
	spec.Symbol = "BTCUSDT"
	if spec.Kind == "" {
		spec.Kind = venue.OrderKindMarket
	}
	return NormalizedRequest{
		TradingRequest: TradingRequest{Order: spec},
		Side:           venue.SideBuy,
	}
}

func TestCalcQuoteAmountMarketOrder(t *testing.T) {
	req := marketBuy(OrderSpec{QuoteAmount: decimal.RequireFromString("100")})

	params, err := Calculator{}.Calc(req, btcData(), nil)
	if err != nil {
		t.Fatalf("Calc failed: %v", err)
	}
	// Quote-funded market order keeps the quote amount and leaves quantity
	// to the venue.
	if !params.Quantity.IsZero() {
		t.Errorf("expected empty quantity, got %s", params.Quantity)
	}
	if !params.QuoteAmount.Equal(decimal.RequireFromString("100")) {
		t.Errorf("expected quote amount 100, got %s", params.QuoteAmount)
	}
	if !params.ExpectedPrice.Equal(decimal.RequireFromString("50000")) {
		t.Errorf("expected price 50000, got %s", params.ExpectedPrice)
	}
}

func TestCalcQuantityFlooredToStep(t *testing.T) {
	req := marketBuy(OrderSpec{Quantity: decimal.RequireFromString("0.123456789")})

	params, err := Calculator{}.Calc(req, btcData(), nil)
	if err != nil {
		t.Fatalf("Calc failed: %v", err)
	}
	want := decimal.RequireFromString("0.12345")
	if !params.Quantity.Equal(want) {
		t.Errorf("expected %s, got %s", want, params.Quantity)
	}

	// Flooring is idempotent: feeding the result back changes nothing.
	again := floorToStep(params.Quantity, btcData().Symbol.Filters.StepSize)
	if !again.Equal(params.Quantity) {
		t.Errorf("floorToStep not idempotent: %s vs %s", again, params.Quantity)
	}
}

func TestCalcQuoteDividedBeforeFlooring(t *testing.T) {
	// 100 USDT at 50000 is exactly 0.002 BTC; a coarser step floors it down.
	data := btcData()
	data.Symbol.Filters.StepSize = decimal.RequireFromString("0.0015")
	data.Symbol.Filters.MinQty = decimal.RequireFromString("0.0015")
	req := marketBuy(OrderSpec{Kind: venue.OrderKindLimit, QuoteAmount: decimal.RequireFromString("100"), Price: decimal.RequireFromString("50000")})

	params, err := Calculator{}.Calc(req, data, nil)
	if err != nil {
		t.Fatalf("Calc failed: %v", err)
	}
	want := decimal.RequireFromString("0.0015")
	if !params.Quantity.Equal(want) {
		t.Errorf("expected %s, got %s", want, params.Quantity)
	}
}

func TestCalcLimitRequiresPrice(t *testing.T) {
	req := marketBuy(OrderSpec{Kind: venue.OrderKindLimit, Quantity: decimal.RequireFromString("0.01")})
	_, err := Calculator{}.Calc(req, btcData(), nil)
	if !errors.Is(err, ErrConstraintViolation) {
		t.Errorf("expected ErrConstraintViolation, got %v", err)
	}
}

func TestCalcLimitPriceRoundedToTick(t *testing.T) {
	req := marketBuy(OrderSpec{
		Kind:     venue.OrderKindLimit,
		Quantity: decimal.RequireFromString("0.01"),
		Price:    decimal.RequireFromString("50000.123"),
	})
	params, err := Calculator{}.Calc(req, btcData(), nil)
	if err != nil {
		t.Fatalf("Calc failed: %v", err)
	}
	want := decimal.RequireFromString("50000.12")
	if !params.Price.Equal(want) {
		t.Errorf("expected %s, got %s", want, params.Price)
	}
	if !params.ExpectedPrice.Equal(want) {
		t.Errorf("limit orders should estimate at the limit price, got %s", params.ExpectedPrice)
	}
}

func TestCalcRejectsBelowMinNotional(t *testing.T) {
	req := marketBuy(OrderSpec{Quantity: decimal.RequireFromString("0.0001")}) // 5 USDT < 10
	_, err := Calculator{}.Calc(req, btcData(), nil)
	if !errors.Is(err, ErrConstraintViolation) {
		t.Errorf("expected ErrConstraintViolation, got %v", err)
	}
}

func TestCalcRejectsBelowMinQty(t *testing.T) {
	data := btcData()
	data.Symbol.Filters.MinQty = decimal.RequireFromString("0.01")
	req := marketBuy(OrderSpec{Quantity: decimal.RequireFromString("0.001")})
	_, err := Calculator{}.Calc(req, data, nil)
	if !errors.Is(err, ErrConstraintViolation) {
		t.Errorf("expected ErrConstraintViolation, got %v", err)
	}
}

func TestCalcStopLossTakeProfitResolution(t *testing.T) {
	two := decimal.RequireFromString("2")

	t.Run("request value wins over bot default", func(t *testing.T) {
		req := marketBuy(OrderSpec{
			Quantity:    decimal.RequireFromString("0.01"),
			StopLossPct: decimal.NullDecimal{Decimal: two, Valid: true},
		})
		bot := &db.Bot{StopLossPct: 5}
		params, err := Calculator{}.Calc(req, btcData(), bot)
		if err != nil {
			t.Fatalf("Calc failed: %v", err)
		}
		if !params.StopLossPrice.Valid {
			t.Fatal("expected stop-loss price")
		}
		// 50000 * (1 - 0.02) = 49000 for a long position
		if want := decimal.RequireFromString("49000"); !params.StopLossPrice.Decimal.Equal(want) {
			t.Errorf("expected %s, got %s", want, params.StopLossPrice.Decimal)
		}
	})

	t.Run("bot default applies when request is silent", func(t *testing.T) {
		req := marketBuy(OrderSpec{Quantity: decimal.RequireFromString("0.01")})
		bot := &db.Bot{StopLossPct: 2, TakeProfitPct: 4}
		params, err := Calculator{}.Calc(req, btcData(), bot)
		if err != nil {
			t.Fatalf("Calc failed: %v", err)
		}
		if want := decimal.RequireFromString("49000"); !params.StopLossPrice.Decimal.Equal(want) {
			t.Errorf("stop-loss: expected %s, got %s", want, params.StopLossPrice.Decimal)
		}
		if want := decimal.RequireFromString("52000"); !params.TakeProfitPrice.Decimal.Equal(want) {
			t.Errorf("take-profit: expected %s, got %s", want, params.TakeProfitPrice.Decimal)
		}
	})

	t.Run("no value anywhere means no trigger", func(t *testing.T) {
		req := marketBuy(OrderSpec{Quantity: decimal.RequireFromString("0.01")})
		params, err := Calculator{}.Calc(req, btcData(), nil)
		if err != nil {
			t.Fatalf("Calc failed: %v", err)
		}
		if params.StopLossPrice.Valid || params.TakeProfitPrice.Valid {
			t.Error("expected no protective triggers")
		}
	})

	t.Run("short position mirrors trigger directions", func(t *testing.T) {
		req := NormalizedRequest{
			TradingRequest: TradingRequest{Order: OrderSpec{
				Symbol:        "BTCUSDT",
				Kind:          venue.OrderKindMarket,
				Action:        ActionEnterShort,
				Quantity:      decimal.RequireFromString("0.01"),
				StopLossPct:   decimal.NullDecimal{Decimal: two, Valid: true},
				TakeProfitPct: decimal.NullDecimal{Decimal: two, Valid: true},
			}},
			Side: venue.SideSell,
		}
		params, err := Calculator{}.Calc(req, btcData(), nil)
		if err != nil {
			t.Fatalf("Calc failed: %v", err)
		}
		// Short: stop-loss above entry, take-profit below.
		if want := decimal.RequireFromString("51000"); !params.StopLossPrice.Decimal.Equal(want) {
			t.Errorf("stop-loss: expected %s, got %s", want, params.StopLossPrice.Decimal)
		}
		if want := decimal.RequireFromString("49000"); !params.TakeProfitPrice.Decimal.Equal(want) {
			t.Errorf("take-profit: expected %s, got %s", want, params.TakeProfitPrice.Decimal)
		}
	})

	t.Run("negative percentage is rejected", func(t *testing.T) {
		req := marketBuy(OrderSpec{
			Quantity:    decimal.RequireFromString("0.01"),
			StopLossPct: decimal.NullDecimal{Decimal: decimal.RequireFromString("-1"), Valid: true},
		})
		_, err := Calculator{}.Calc(req, btcData(), nil)
		if !errors.Is(err, ErrConstraintViolation) {
			t.Errorf("expected ErrConstraintViolation, got %v", err)
		}
	})
}

func TestDecimalPlaces(t *testing.T) {
	cases := []struct {
		in   string
		want int32
	}{
		{"0.01", 2},
		{"0.00001", 5},
		{"1", 0},
		{"0.1", 1},
	}
	for _, tc := range cases {
		got := decimalPlaces(decimal.RequireFromString(tc.in))
		if got != tc.want {
			t.Errorf("decimalPlaces(%s) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
