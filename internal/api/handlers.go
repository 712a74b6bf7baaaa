package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"signal-trader/internal/engine"
	"signal-trader/internal/trade"
	"signal-trader/pkg/venue"
)

// tradeRequest is the wire form of a trading request. Numeric fields accept
// both JSON numbers and strings; webhook senders differ on which they emit.
type tradeRequest struct {
	PortfolioID string `json:"portfolio_id" binding:"required"`
	Source      string `json:"source"`
	BotID       string `json:"bot_id"`
	Order       struct {
		Symbol        string           `json:"symbol" binding:"required"`
		AccountMode   string           `json:"account_mode"`
		Kind          string           `json:"kind"`
		Side          string           `json:"side"`
		Action        string           `json:"action"`
		Quantity      decimal.Decimal  `json:"quantity"`
		QuoteAmount   decimal.Decimal  `json:"quote_amount"`
		Price         decimal.Decimal  `json:"price"`
		StopLossPct   *decimal.Decimal `json:"stop_loss_pct"`
		TakeProfitPct *decimal.Decimal `json:"take_profit_pct"`
		SideEffect    string           `json:"side_effect"`
	} `json:"order" binding:"required"`
}

func (r *tradeRequest) toDomain(userID string) trade.TradingRequest {
	req := trade.TradingRequest{
		UserID:      userID,
		PortfolioID: r.PortfolioID,
		Source:      trade.Source(r.Source),
		BotID:       r.BotID,
	}
	if req.Source == "" {
		req.Source = trade.SourceManual
	}

	req.Order = trade.OrderSpec{
		Symbol:      r.Order.Symbol,
		AccountMode: venue.AccountMode(r.Order.AccountMode),
		Kind:        venue.OrderKind(r.Order.Kind),
		Side:        venue.Side(r.Order.Side),
		Action:      trade.SignalAction(r.Order.Action),
		Quantity:    r.Order.Quantity,
		QuoteAmount: r.Order.QuoteAmount,
		Price:       r.Order.Price,
		SideEffect:  venue.SideEffect(r.Order.SideEffect),
	}
	if req.Order.AccountMode == "" {
		req.Order.AccountMode = venue.AccountSpot
	}
	if req.Order.Kind == "" {
		req.Order.Kind = venue.OrderKindMarket
	}
	if r.Order.StopLossPct != nil {
		req.Order.StopLossPct = decimal.NullDecimal{Decimal: *r.Order.StopLossPct, Valid: true}
	}
	if r.Order.TakeProfitPct != nil {
		req.Order.TakeProfitPct = decimal.NullDecimal{Decimal: *r.Order.TakeProfitPct, Valid: true}
	}
	return req
}

// postTrade runs one trading request through the pipeline.
func (s *Server) postTrade(c *gin.Context) {
	var req tradeRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": err.Error(),
		})
		return
	}

	report, err := s.Engine.Trade(c.Request.Context(), req.toDomain(CurrentUserID(c)))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(statusFor(report), report)
}

// closePosition flattens one open position.
func (s *Server) closePosition(c *gin.Context) {
	report, err := s.Engine.ClosePosition(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(statusFor(report), report)
}

// closeAllPositions flattens every open position in a portfolio.
func (s *Server) closeAllPositions(c *gin.Context) {
	var req struct {
		PortfolioID string `json:"portfolio_id" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "portfolio_id is required",
		})
		return
	}

	result, err := s.Engine.CloseAll(c.Request.Context(), req.PortfolioID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}

	failed := make(map[string]string, len(result.Failed))
	for id, ferr := range result.Failed {
		failed[id] = ferr.Error()
	}
	c.JSON(http.StatusOK, gin.H{
		"closed": result.Closed,
		"failed": failed,
	})
}

// getPositions lists OPEN positions for a portfolio.
func (s *Server) getPositions(c *gin.Context) {
	portfolioID := c.Query("portfolio_id")
	if portfolioID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "portfolio_id query parameter is required",
		})
		return
	}
	positions, err := s.DB.ListOpenPositionsByPortfolio(c.Request.Context(), portfolioID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

// getPosition returns one position by id.
func (s *Server) getPosition(c *gin.Context) {
	pos, err := s.DB.GetPosition(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	if pos == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "NOT_FOUND",
			"error": "position not found",
		})
		return
	}
	c.JSON(http.StatusOK, pos)
}

// getPositionOrders returns all order legs recorded for a position.
func (s *Server) getPositionOrders(c *gin.Context) {
	orders, err := s.DB.ListOrdersByPosition(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// streamEvents pushes bus traffic to the caller as server-sent events.
// Dashboards and webhook senders use this to watch fills and rollbacks
// without polling the position endpoints.
func (s *Server) streamEvents(c *gin.Context) {
	ch, unsub := s.Bus.SubscribeAll(64)
	defer unsub()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent(string(msg.Topic), msg.Payload)
			c.Writer.Flush()
		}
	}
}

// statusFor maps a report status onto an HTTP status code.
func statusFor(r *engine.TradeReport) int {
	switch r.Status {
	case engine.StatusExecuted:
		return http.StatusOK
	case engine.StatusRejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
