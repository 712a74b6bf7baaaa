package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"signal-trader/pkg/venue"
)

// orderResponseJSON is the FULL response for a single-leg order.
type orderResponseJSON struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	Status              string `json:"status"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Fills               []struct {
		Price           string `json:"price"`
		Qty             string `json:"qty"`
		Commission      string `json:"commission"`
		CommissionAsset string `json:"commissionAsset"`
	} `json:"fills"`
}

func decodeOrderResponse(body []byte) (*venue.OrderResponse, error) {
	var raw orderResponseJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	res := &venue.OrderResponse{
		OrderID:             strconv.FormatInt(raw.OrderID, 10),
		ClientOrderID:       raw.ClientOrderID,
		Symbol:              raw.Symbol,
		Status:              mapStatus(raw.Status),
		ExecutedQty:         parseDecimal(raw.ExecutedQty),
		CummulativeQuoteQty: parseDecimal(raw.CummulativeQuoteQty),
	}
	for _, f := range raw.Fills {
		res.Fills = append(res.Fills, venue.Fill{
			Price:           parseDecimal(f.Price),
			Qty:             parseDecimal(f.Qty),
			Commission:      parseDecimal(f.Commission),
			CommissionAsset: f.CommissionAsset,
		})
	}
	return res, nil
}

// orderParams translates an OrderRequest into wire parameters.
func orderParams(req venue.OrderRequest) (url.Values, error) {
	if req.Symbol == "" {
		return nil, errors.New("binance: symbol required")
	}
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("newOrderRespType", "FULL")

	switch req.Kind {
	case venue.OrderKindMarket:
		params.Set("type", "MARKET")
		switch {
		case !req.QuoteAmount.IsZero():
			params.Set("quoteOrderQty", formatDecimal(req.QuoteAmount))
		case !req.Quantity.IsZero():
			params.Set("quantity", formatDecimal(req.Quantity))
		default:
			return nil, errors.New("binance: market order needs quantity or quoteOrderQty")
		}
	case venue.OrderKindLimit:
		if req.Price.IsZero() || req.Quantity.IsZero() {
			return nil, errors.New("binance: limit order needs price and quantity")
		}
		params.Set("type", "LIMIT")
		params.Set("quantity", formatDecimal(req.Quantity))
		params.Set("price", formatDecimal(req.Price))
		tif := req.TimeInForce
		if tif == "" {
			tif = venue.TIFGTC
		}
		params.Set("timeInForce", string(tif))
	default:
		return nil, fmt.Errorf("binance: unsupported order kind %q", req.Kind)
	}

	if req.ClientID != "" {
		params.Set("newClientOrderId", req.ClientID)
	}
	return params, nil
}

// PlaceSpotOrder submits a spot market or limit order.
func (c *Client) PlaceSpotOrder(ctx context.Context, req venue.OrderRequest) (*venue.OrderResponse, error) {
	params, err := orderParams(req)
	if err != nil {
		return nil, err
	}
	body, err := c.doSigned(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, err
	}
	return decodeOrderResponse(body)
}

// PlaceMarginOrder submits a cross-margin market or limit order with the
// requested borrow/repay side effect.
func (c *Client) PlaceMarginOrder(ctx context.Context, req venue.OrderRequest) (*venue.OrderResponse, error) {
	params, err := orderParams(req)
	if err != nil {
		return nil, err
	}
	if req.SideEffect != "" {
		params.Set("sideEffectType", string(req.SideEffect))
	}
	body, err := c.doSigned(ctx, http.MethodPost, "/sapi/v1/margin/order", params)
	if err != nil {
		return nil, err
	}
	return decodeOrderResponse(body)
}

// placeProtective submits a margin stop-loss-limit or take-profit-limit leg.
func (c *Client) placeProtective(ctx context.Context, req venue.OrderRequest, orderType string) (*venue.OrderResponse, error) {
	if req.Symbol == "" || req.Quantity.IsZero() || req.StopPrice.IsZero() {
		return nil, errors.New("binance: protective order needs symbol, quantity and stopPrice")
	}
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", orderType)
	params.Set("quantity", formatDecimal(req.Quantity))
	params.Set("stopPrice", formatDecimal(req.StopPrice))
	// The limit leg is priced at the trigger; slippage control beyond that is
	// left to the venue.
	price := req.Price
	if price.IsZero() {
		price = req.StopPrice
	}
	params.Set("price", formatDecimal(price))
	params.Set("timeInForce", string(venue.TIFGTC))
	params.Set("newOrderRespType", "FULL")
	if req.SideEffect != "" {
		params.Set("sideEffectType", string(req.SideEffect))
	}

	body, err := c.doSigned(ctx, http.MethodPost, "/sapi/v1/margin/order", params)
	if err != nil {
		return nil, err
	}
	return decodeOrderResponse(body)
}

// PlaceStopLoss submits a margin stop-loss leg.
func (c *Client) PlaceStopLoss(ctx context.Context, req venue.OrderRequest) (*venue.OrderResponse, error) {
	return c.placeProtective(ctx, req, "STOP_LOSS_LIMIT")
}

// PlaceTakeProfit submits a margin take-profit leg.
func (c *Client) PlaceTakeProfit(ctx context.Context, req venue.OrderRequest) (*venue.OrderResponse, error) {
	return c.placeProtective(ctx, req, "TAKE_PROFIT_LIMIT")
}

// PlaceOCO submits a margin one-cancels-other order list pairing a
// take-profit limit leg with a stop-loss leg.
func (c *Client) PlaceOCO(ctx context.Context, req venue.OCORequest) (*venue.OCOResponse, error) {
	if req.Symbol == "" || req.Quantity.IsZero() {
		return nil, errors.New("binance: OCO needs symbol and quantity")
	}
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("quantity", formatDecimal(req.Quantity))
	params.Set("price", formatDecimal(req.TakeProfitPrice))
	params.Set("stopPrice", formatDecimal(req.StopPrice))
	stopLimit := req.StopLimitPrice
	if stopLimit.IsZero() {
		stopLimit = req.StopPrice
	}
	params.Set("stopLimitPrice", formatDecimal(stopLimit))
	params.Set("stopLimitTimeInForce", string(venue.TIFGTC))
	if req.SideEffect != "" {
		params.Set("sideEffectType", string(req.SideEffect))
	}

	body, err := c.doSigned(ctx, http.MethodPost, "/sapi/v1/margin/order/oco", params)
	if err != nil {
		return nil, err
	}

	var raw struct {
		OrderListID int64  `json:"orderListId"`
		Symbol      string `json:"symbol"`
		Orders      []struct {
			OrderID int64 `json:"orderId"`
		} `json:"orders"`
		OrderReports []struct {
			OrderID int64  `json:"orderId"`
			Type    string `json:"type"`
			Status  string `json:"status"`
		} `json:"orderReports"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode OCO response: %w", err)
	}

	res := &venue.OCOResponse{
		OrderListID: strconv.FormatInt(raw.OrderListID, 10),
		Symbol:      raw.Symbol,
	}
	if len(raw.OrderReports) > 0 {
		for _, r := range raw.OrderReports {
			res.Legs = append(res.Legs, venue.OCOLeg{
				OrderID: strconv.FormatInt(r.OrderID, 10),
				Type:    r.Type,
				Status:  mapStatus(r.Status),
			})
		}
	} else {
		for _, o := range raw.Orders {
			res.Legs = append(res.Legs, venue.OCOLeg{
				OrderID: strconv.FormatInt(o.OrderID, 10),
				Status:  venue.StatusNew,
			})
		}
	}
	return res, nil
}

// CancelOCO cancels a margin order list. venue.ErrOrderGone is returned when
// the list is already filled or canceled.
func (c *Client) CancelOCO(ctx context.Context, symbol, orderListID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderListId", orderListID)
	_, err := c.doSigned(ctx, http.MethodDelete, "/sapi/v1/margin/orderList", params)
	return err
}

// CancelOrder cancels a single margin order. venue.ErrOrderGone is returned
// when the order is already gone.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	_, err := c.doSigned(ctx, http.MethodDelete, "/sapi/v1/margin/order", params)
	return err
}

// GetOrder fetches a single order by venue order id.
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (*venue.OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	body, err := c.doSigned(ctx, http.MethodGet, "/api/v3/order", params)
	if err != nil {
		return nil, err
	}
	return decodeOrderResponse(body)
}
