package db

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// --- portfolios ---

// CreatePortfolio inserts a new portfolio row.
func (d *Database) CreatePortfolio(ctx context.Context, p Portfolio) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO portfolios (id, user_id, name, open_value, realized_pnl, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), CURRENT_TIMESTAMP)
	`, p.ID, p.UserID, p.Name, p.OpenValue, p.RealizedPnL, nullTime(p.CreatedAt))
	return err
}

// GetPortfolio returns a portfolio by id, or nil when not found.
func (d *Database) GetPortfolio(ctx context.Context, id string) (*Portfolio, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, user_id, name, open_value, realized_pnl, created_at, updated_at
		FROM portfolios WHERE id = ?
	`, id)
	var p Portfolio
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.OpenValue, &p.RealizedPnL, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// RefreshPortfolioStats recomputes open exposure and realized PnL from the
// positions table. Best-effort bookkeeping; callers log failures.
func (d *Database) RefreshPortfolioStats(ctx context.Context, portfolioID string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE portfolios SET
			open_value = COALESCE((
				SELECT SUM(entry_value) FROM positions
				WHERE portfolio_id = ? AND status = 'OPEN'
			), 0),
			realized_pnl = COALESCE((
				SELECT SUM(realized_pnl) FROM positions
				WHERE portfolio_id = ? AND status = 'CLOSED'
			), 0),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, portfolioID, portfolioID, portfolioID)
	return err
}

// --- bots ---

// UpsertBot inserts or updates a bot row (used by the seed loader).
func (d *Database) UpsertBot(ctx context.Context, b Bot) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO bots (id, portfolio_id, name, is_active, symbols, stop_loss_pct, take_profit_pct, credentials_ref, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			portfolio_id = excluded.portfolio_id,
			name = excluded.name,
			is_active = excluded.is_active,
			symbols = excluded.symbols,
			stop_loss_pct = excluded.stop_loss_pct,
			take_profit_pct = excluded.take_profit_pct,
			credentials_ref = excluded.credentials_ref,
			updated_at = CURRENT_TIMESTAMP
	`, b.ID, b.PortfolioID, b.Name, b.IsActive, strings.Join(b.Symbols, ","), b.StopLossPct, b.TakeProfitPct, b.CredentialsRef)
	return err
}

// GetBot returns a bot by id, or nil when not found.
func (d *Database) GetBot(ctx context.Context, id string) (*Bot, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, portfolio_id, name, is_active, symbols,
		       COALESCE(stop_loss_pct, 0), COALESCE(take_profit_pct, 0),
		       credentials_ref, created_at, updated_at
		FROM bots WHERE id = ?
	`, id)
	var (
		b       Bot
		symbols string
	)
	if err := row.Scan(&b.ID, &b.PortfolioID, &b.Name, &b.IsActive, &symbols,
		&b.StopLossPct, &b.TakeProfitPct, &b.CredentialsRef, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	b.Symbols = splitSymbols(symbols)
	return &b, nil
}

func splitSymbols(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// --- positions ---

// CreatePosition inserts a new position row.
func (d *Database) CreatePosition(ctx context.Context, p Position) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO positions (
			id, portfolio_id, bot_id, symbol, side, account_mode, status,
			quantity, entry_price, entry_value, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`, p.ID, p.PortfolioID, p.BotID, p.Symbol, p.Side, p.AccountMode, p.Status,
		p.Quantity, p.EntryPrice, p.EntryValue, nullTime(p.CreatedAt))
	return err
}

// GetPosition returns a position by id, or nil when not found.
func (d *Database) GetPosition(ctx context.Context, id string) (*Position, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT `+positionColumns+`
		FROM positions WHERE id = ?
	`, id)
	p, err := scanPosition(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*Position, error) {
	// opened_at/closed_at are NULL until promotion/close, and an expression
	// like COALESCE(opened_at, created_at) would lose the column's declared
	// type, so the driver could no longer hand back a time.Time. Scan the raw
	// nullable columns and fall back in Go instead.
	var (
		p        Position
		openedAt sql.NullTime
		closedAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.PortfolioID, &p.BotID, &p.Symbol, &p.Side, &p.AccountMode, &p.Status,
		&p.Quantity, &p.EntryPrice, &p.EntryValue,
		&p.ExitPrice, &p.ExitValue, &p.RealizedPnL,
		&p.StopLossOrderID, &p.StopLossStatus,
		&p.TakeProfitOrderID, &p.TakeProfitStatus, &p.OCOListID,
		&p.CreatedAt, &openedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	p.OpenedAt = p.CreatedAt
	if openedAt.Valid {
		p.OpenedAt = openedAt.Time
	}
	p.ClosedAt = p.CreatedAt
	if closedAt.Valid {
		p.ClosedAt = closedAt.Time
	}
	return &p, nil
}

const positionColumns = `
	id, portfolio_id, bot_id, symbol, side, account_mode, status,
	quantity, entry_price, entry_value,
	COALESCE(exit_price, 0), COALESCE(exit_value, 0), COALESCE(realized_pnl, 0),
	stop_loss_order_id, stop_loss_status,
	take_profit_order_id, take_profit_status, oco_list_id,
	created_at, opened_at, closed_at`

// MarkPositionOpen promotes a position to OPEN with the actual fill data.
func (d *Database) MarkPositionOpen(ctx context.Context, id string, quantity, entryPrice, entryValue float64, openedAt time.Time) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE positions
		SET status = ?, quantity = ?, entry_price = ?, entry_value = ?, opened_at = ?
		WHERE id = ?
	`, PositionOpen, quantity, entryPrice, entryValue, openedAt, id)
	return err
}

// DeletePosition removes a position row entirely. Used only to roll back
// provisional PENDING records whose venue call failed.
func (d *Database) DeletePosition(ctx context.Context, id string) error {
	_, err := d.DB.ExecContext(ctx, `DELETE FROM positions WHERE id = ?`, id)
	return err
}

// ClosePosition marks a position CLOSED with exit price/value/PnL.
func (d *Database) ClosePosition(ctx context.Context, id string, exitPrice, exitValue, realizedPnL float64, closedAt time.Time) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE positions
		SET status = ?, exit_price = ?, exit_value = ?, realized_pnl = ?, closed_at = ?
		WHERE id = ?
	`, PositionClosed, exitPrice, exitValue, realizedPnL, closedAt, id)
	return err
}

// SetProtectiveOrders records protective leg references on a position.
func (d *Database) SetProtectiveOrders(ctx context.Context, id, slOrderID, slStatus, tpOrderID, tpStatus, ocoListID string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE positions
		SET stop_loss_order_id = ?, stop_loss_status = ?,
		    take_profit_order_id = ?, take_profit_status = ?, oco_list_id = ?
		WHERE id = ?
	`, slOrderID, slStatus, tpOrderID, tpStatus, ocoListID, id)
	return err
}

// UpdateProtectiveStatuses sets protective leg statuses (e.g. CANCELED after
// the close flow cancels them).
func (d *Database) UpdateProtectiveStatuses(ctx context.Context, id, slStatus, tpStatus string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE positions SET stop_loss_status = ?, take_profit_status = ? WHERE id = ?
	`, slStatus, tpStatus, id)
	return err
}

// ListOpenPositionsByPortfolio returns all OPEN positions for a portfolio.
func (d *Database) ListOpenPositionsByPortfolio(ctx context.Context, portfolioID string) ([]Position, error) {
	return d.listPositions(ctx, `
		SELECT `+positionColumns+`
		FROM positions WHERE portfolio_id = ? AND status = ?
		ORDER BY created_at ASC
	`, portfolioID, PositionOpen)
}

// FindOpenPosition returns the oldest OPEN position matching portfolio and
// symbol (and bot when botID is non-empty), or nil.
func (d *Database) FindOpenPosition(ctx context.Context, portfolioID, botID, symbol string) (*Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE portfolio_id = ? AND symbol = ? AND status = ?`
	args := []any{portfolioID, symbol, PositionOpen}
	if botID != "" {
		query += ` AND bot_id = ?`
		args = append(args, botID)
	}
	query += ` ORDER BY created_at ASC LIMIT 1`

	row := d.DB.QueryRowContext(ctx, query, args...)
	p, err := scanPosition(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// ListPendingPositionsBefore returns PENDING positions created before cutoff,
// for the reconciliation sweep.
func (d *Database) ListPendingPositionsBefore(ctx context.Context, cutoff time.Time) ([]Position, error) {
	return d.listPositions(ctx, `
		SELECT `+positionColumns+`
		FROM positions WHERE status = ? AND created_at < ?
		ORDER BY created_at ASC
	`, PositionPending, cutoff)
}

func (d *Database) listPositions(ctx context.Context, query string, args ...any) ([]Position, error) {
	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *p)
	}
	return res, rows.Err()
}

// --- orders ---

// CreateOrder inserts a new order row.
func (d *Database) CreateOrder(ctx context.Context, o Order) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (
			id, position_id, venue_order_id, kind, symbol, side, type,
			requested_qty, executed_qty, requested_value, executed_value,
			price, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`, o.ID, o.PositionID, o.VenueOrderID, o.Kind, o.Symbol, o.Side, o.Type,
		o.RequestedQty, o.ExecutedQty, o.RequestedValue, o.ExecutedValue,
		o.Price, o.Status, nullTime(o.CreatedAt))
	return err
}

// UpdateOrderStatus sets the status of an order.
func (d *Database) UpdateOrderStatus(ctx context.Context, id, status string) error {
	_, err := d.DB.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, status, id)
	return err
}

// CancelProtectiveOrderRows marks a position's stop-loss/take-profit order
// rows CANCELED. Rows already in a terminal state keep it.
func (d *Database) CancelProtectiveOrderRows(ctx context.Context, positionID string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE orders SET status = 'CANCELED'
		WHERE position_id = ? AND kind IN (?, ?) AND status NOT IN ('FILLED', 'CANCELED')
	`, positionID, OrderKindStopLoss, OrderKindTakeProfit)
	return err
}

// UpdateOrderFill sets status, executed quantity and value after a fill.
func (d *Database) UpdateOrderFill(ctx context.Context, id, status string, executedQty, executedValue float64) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE orders SET status = ?, executed_qty = ?, executed_value = ? WHERE id = ?
	`, status, executedQty, executedValue, id)
	return err
}

// GetEntryOrder returns the ENTRY order for a position, or nil.
func (d *Database) GetEntryOrder(ctx context.Context, positionID string) (*Order, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, position_id, venue_order_id, kind, symbol, side, type,
		       requested_qty, executed_qty, requested_value, executed_value,
		       price, status, created_at
		FROM orders WHERE position_id = ? AND kind = ?
		ORDER BY created_at ASC LIMIT 1
	`, positionID, OrderKindEntry)
	var o Order
	err := row.Scan(&o.ID, &o.PositionID, &o.VenueOrderID, &o.Kind, &o.Symbol, &o.Side, &o.Type,
		&o.RequestedQty, &o.ExecutedQty, &o.RequestedValue, &o.ExecutedValue,
		&o.Price, &o.Status, &o.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// ListOrdersByPosition returns all order legs for a position.
func (d *Database) ListOrdersByPosition(ctx context.Context, positionID string) ([]Order, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, position_id, venue_order_id, kind, symbol, side, type,
		       requested_qty, executed_qty, requested_value, executed_value,
		       price, status, created_at
		FROM orders WHERE position_id = ?
		ORDER BY created_at ASC
	`, positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.PositionID, &o.VenueOrderID, &o.Kind, &o.Symbol, &o.Side, &o.Type,
			&o.RequestedQty, &o.ExecutedQty, &o.RequestedValue, &o.ExecutedValue,
			&o.Price, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// nullTime maps the zero time to NULL so CURRENT_TIMESTAMP defaults apply.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
