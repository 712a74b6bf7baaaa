package db

import (
	"context"
	"testing"
	"time"
)

func testDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func TestPositionLifecycle(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	if err := database.CreatePortfolio(ctx, Portfolio{ID: "pf-1", UserID: "u-1", Name: "main"}); err != nil {
		t.Fatalf("CreatePortfolio failed: %v", err)
	}

	pos := Position{
		ID:          "pos-1",
		PortfolioID: "pf-1",
		Symbol:      "BTCUSDT",
		Side:        PositionLong,
		AccountMode: "SPOT",
		Status:      PositionPending,
	}
	if err := database.CreatePosition(ctx, pos); err != nil {
		t.Fatalf("CreatePosition failed: %v", err)
	}

	t.Run("pending is not listed as open", func(t *testing.T) {
		open, err := database.ListOpenPositionsByPortfolio(ctx, "pf-1")
		if err != nil {
			t.Fatalf("ListOpenPositionsByPortfolio failed: %v", err)
		}
		if len(open) != 0 {
			t.Errorf("PENDING must not appear as open, got %d", len(open))
		}
	})

	t.Run("mark open", func(t *testing.T) {
		if err := database.MarkPositionOpen(ctx, "pos-1", 0.002, 50000, 100, time.Now()); err != nil {
			t.Fatalf("MarkPositionOpen failed: %v", err)
		}
		got, err := database.GetPosition(ctx, "pos-1")
		if err != nil || got == nil {
			t.Fatalf("GetPosition failed: %v", err)
		}
		if got.Status != PositionOpen || got.Quantity != 0.002 || got.EntryPrice != 50000 {
			t.Errorf("unexpected position: %+v", got)
		}
	})

	t.Run("protective references", func(t *testing.T) {
		if err := database.SetProtectiveOrders(ctx, "pos-1", "sl-1", "NEW", "tp-1", "NEW", "oco-1"); err != nil {
			t.Fatalf("SetProtectiveOrders failed: %v", err)
		}
		got, _ := database.GetPosition(ctx, "pos-1")
		if got.StopLossOrderID != "sl-1" || got.TakeProfitOrderID != "tp-1" || got.OCOListID != "oco-1" {
			t.Errorf("unexpected protective refs: %+v", got)
		}
	})

	t.Run("close records pnl", func(t *testing.T) {
		if err := database.ClosePosition(ctx, "pos-1", 52500, 105, 5, time.Now()); err != nil {
			t.Fatalf("ClosePosition failed: %v", err)
		}
		got, _ := database.GetPosition(ctx, "pos-1")
		if got.Status != PositionClosed || got.RealizedPnL != 5 {
			t.Errorf("unexpected closed position: %+v", got)
		}
	})

	t.Run("portfolio stats pick up realized pnl", func(t *testing.T) {
		if err := database.RefreshPortfolioStats(ctx, "pf-1"); err != nil {
			t.Fatalf("RefreshPortfolioStats failed: %v", err)
		}
		pf, err := database.GetPortfolio(ctx, "pf-1")
		if err != nil || pf == nil {
			t.Fatalf("GetPortfolio failed: %v", err)
		}
		if pf.RealizedPnL != 5 || pf.OpenValue != 0 {
			t.Errorf("unexpected stats: %+v", pf)
		}
	})
}

func TestGetPositionWithNullTimestamps(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	// A fresh PENDING row has NULL opened_at/closed_at and a created_at
	// written by the CURRENT_TIMESTAMP default. Reading it back must not
	// trip on the nullable time columns.
	pos := Position{ID: "pos-t", PortfolioID: "pf-1", Symbol: "BTCUSDT", Side: PositionLong, AccountMode: "SPOT", Status: PositionPending}
	if err := database.CreatePosition(ctx, pos); err != nil {
		t.Fatalf("CreatePosition failed: %v", err)
	}

	got, err := database.GetPosition(ctx, "pos-t")
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected position, got nil")
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at to be populated")
	}
	if !got.OpenedAt.Equal(got.CreatedAt) || !got.ClosedAt.Equal(got.CreatedAt) {
		t.Errorf("NULL timestamps should fall back to created_at, got opened=%v closed=%v created=%v",
			got.OpenedAt, got.ClosedAt, got.CreatedAt)
	}

	pending, err := database.ListPendingPositionsBefore(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ListPendingPositionsBefore failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected the pending row in the sweep list, got %d", len(pending))
	}
}

func TestDeletePositionRollsBackPending(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	pos := Position{ID: "pos-rb", PortfolioID: "pf-1", Symbol: "ETHUSDT", Side: PositionLong, AccountMode: "SPOT", Status: PositionPending}
	if err := database.CreatePosition(ctx, pos); err != nil {
		t.Fatalf("CreatePosition failed: %v", err)
	}
	if err := database.DeletePosition(ctx, "pos-rb"); err != nil {
		t.Fatalf("DeletePosition failed: %v", err)
	}
	got, err := database.GetPosition(ctx, "pos-rb")
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil after delete, got %+v", got)
	}
}

func TestFindOpenPosition(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	older := Position{
		ID: "p-old", PortfolioID: "pf-1", BotID: "bot-1", Symbol: "BTCUSDT",
		Side: PositionLong, AccountMode: "SPOT", Status: PositionOpen,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	newer := older
	newer.ID = "p-new"
	newer.CreatedAt = time.Now()
	other := older
	other.ID = "p-other"
	other.BotID = "bot-2"

	for _, p := range []Position{older, newer, other} {
		if err := database.CreatePosition(ctx, p); err != nil {
			t.Fatalf("CreatePosition %s failed: %v", p.ID, err)
		}
	}

	t.Run("oldest match wins", func(t *testing.T) {
		got, err := database.FindOpenPosition(ctx, "pf-1", "bot-1", "BTCUSDT")
		if err != nil || got == nil {
			t.Fatalf("FindOpenPosition failed: %v", err)
		}
		if got.ID != "p-old" {
			t.Errorf("expected oldest position, got %s", got.ID)
		}
	})

	t.Run("empty bot id matches any bot", func(t *testing.T) {
		got, err := database.FindOpenPosition(ctx, "pf-1", "", "BTCUSDT")
		if err != nil || got == nil {
			t.Fatalf("FindOpenPosition failed: %v", err)
		}
	})

	t.Run("no match returns nil", func(t *testing.T) {
		got, err := database.FindOpenPosition(ctx, "pf-1", "bot-1", "SOLUSDT")
		if err != nil {
			t.Fatalf("FindOpenPosition failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})
}

func TestBotUpsertAndAllowlist(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	b := Bot{
		ID: "bot-1", PortfolioID: "pf-1", Name: "momentum", IsActive: true,
		Symbols: []string{"BTCUSDT", "ETHUSDT"}, StopLossPct: 2, TakeProfitPct: 4,
	}
	if err := database.UpsertBot(ctx, b); err != nil {
		t.Fatalf("UpsertBot failed: %v", err)
	}

	got, err := database.GetBot(ctx, "bot-1")
	if err != nil || got == nil {
		t.Fatalf("GetBot failed: %v", err)
	}
	if len(got.Symbols) != 2 || got.StopLossPct != 2 {
		t.Errorf("unexpected bot: %+v", got)
	}
	if !got.AllowsSymbol("btcusdt") {
		t.Error("allowlist match should be case-insensitive")
	}
	if got.AllowsSymbol("SOLUSDT") {
		t.Error("symbol outside allowlist must be refused")
	}

	// Upsert with the same id updates in place.
	b.Name = "momentum-v2"
	b.IsActive = false
	if err := database.UpsertBot(ctx, b); err != nil {
		t.Fatalf("second UpsertBot failed: %v", err)
	}
	got, _ = database.GetBot(ctx, "bot-1")
	if got.Name != "momentum-v2" || got.IsActive {
		t.Errorf("expected updated bot, got %+v", got)
	}

	// Empty allowlist allows anything.
	empty := &Bot{ID: "bot-2"}
	if !empty.AllowsSymbol("ANYUSDT") {
		t.Error("empty allowlist should allow any symbol")
	}
}

func TestOrderRows(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	pos := Position{ID: "pos-1", PortfolioID: "pf-1", Symbol: "BTCUSDT", Side: PositionLong, AccountMode: "SPOT", Status: PositionOpen}
	if err := database.CreatePosition(ctx, pos); err != nil {
		t.Fatalf("CreatePosition failed: %v", err)
	}

	entry := Order{
		ID: "ord-1", PositionID: "pos-1", VenueOrderID: "111", Kind: OrderKindEntry,
		Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET", RequestedValue: 100, Status: "NEW",
	}
	exit := Order{
		ID: "ord-2", PositionID: "pos-1", VenueOrderID: "222", Kind: OrderKindExit,
		Symbol: "BTCUSDT", Side: "SELL", Type: "MARKET", Status: "FILLED",
		CreatedAt: time.Now().Add(time.Minute),
	}
	if err := database.CreateOrder(ctx, entry); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if err := database.CreateOrder(ctx, exit); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	got, err := database.GetEntryOrder(ctx, "pos-1")
	if err != nil || got == nil {
		t.Fatalf("GetEntryOrder failed: %v", err)
	}
	if got.ID != "ord-1" {
		t.Errorf("expected entry order, got %s", got.ID)
	}

	if err := database.UpdateOrderFill(ctx, "ord-1", "FILLED", 0.002, 100); err != nil {
		t.Fatalf("UpdateOrderFill failed: %v", err)
	}
	all, err := database.ListOrdersByPosition(ctx, "pos-1")
	if err != nil {
		t.Fatalf("ListOrdersByPosition failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(all))
	}
	if all[0].ExecutedQty != 0.002 || all[0].Status != "FILLED" {
		t.Errorf("fill not recorded: %+v", all[0])
	}
}
