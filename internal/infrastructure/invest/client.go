// Package invest adapts the Tinkoff Invest API to the trader's brokerage and feed contracts.
package invest

import (
	"context"
	"errors"
	"fmt"

	marketdata "dip-trader/internal/domain/entity/marketdata"
	orders "dip-trader/internal/domain/entity/orders"
	interfaces "dip-trader/internal/domain/interfaces"

	"github.com/google/uuid"
	investgo "github.com/russianinvestments/invest-api-go-sdk/investgo"
	pb "github.com/russianinvestments/invest-api-go-sdk/proto"
	"github.com/sirupsen/logrus"
)

// Client implements interfaces.Brokerage. Market and limit placements carry a
// fresh client order id so a transport-level resend cannot create a second
// order. Stop orders are posted without one.
type Client struct {
	api      API
	resolver *Resolver
	logger   *logrus.Entry
}

var _ interfaces.Brokerage = (*Client)(nil)

func NewClient(api API, resolver *Resolver, logger *logrus.Logger) *Client {
	return &Client{
		api:      api,
		resolver: resolver,
		logger:   logger.WithField("component", "invest_client"),
	}
}

// EstimateAffordableQuantity returns how many lots the account can buy at referencePrice.
func (c *Client) EstimateAffordableQuantity(ctx context.Context, symbol string, referencePrice float64, accountID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	inst, err := c.resolver.Resolve(ctx, symbol)
	if err != nil {
		return 0, err
	}
	resp, err := c.api.GetMaxLots(accountID, inst.UID, referencePrice)
	if err != nil {
		return 0, fmt.Errorf("get max lots %s: %w", symbol, err)
	}
	return resp.GetBuyLimits().GetBuyMaxLots(), nil
}

func (c *Client) PlaceMarketOrder(ctx context.Context, intent orders.Intent) (orders.Result, error) {
	inst, err := c.prepare(ctx, intent)
	if err != nil {
		return orders.Result{}, err
	}
	req := &investgo.PostOrderRequestShort{
		InstrumentId: inst.UID,
		Quantity:     intent.Quantity,
		AccountId:    intent.AccountID,
		OrderType:    pb.OrderType_ORDER_TYPE_MARKET,
		OrderId:      uuid.NewString(),
	}
	return c.postOrder(pb.OrderDirection_ORDER_DIRECTION_BUY, req)
}

func (c *Client) PlaceLimitOrder(ctx context.Context, intent orders.Intent) (orders.Result, error) {
	inst, err := c.prepare(ctx, intent)
	if err != nil {
		return orders.Result{}, err
	}
	req := &investgo.PostOrderRequestShort{
		InstrumentId: inst.UID,
		Quantity:     intent.Quantity,
		Price:        priceToQuotation(intent.Price, inst.MinPriceIncrement),
		AccountId:    intent.AccountID,
		OrderType:    pb.OrderType_ORDER_TYPE_LIMIT,
		OrderId:      uuid.NewString(),
	}
	return c.postOrder(pb.OrderDirection_ORDER_DIRECTION_SELL, req)
}

// PlaceStopOrder posts a good-till-cancel stop-loss that sells once the price falls to intent.Price.
func (c *Client) PlaceStopOrder(ctx context.Context, intent orders.Intent) (orders.Result, error) {
	inst, err := c.prepare(ctx, intent)
	if err != nil {
		return orders.Result{}, err
	}
	req := &investgo.PostStopOrderRequest{
		InstrumentId:   inst.UID,
		Quantity:       intent.Quantity,
		StopPrice:      priceToQuotation(intent.Price, inst.MinPriceIncrement),
		Direction:      pb.StopOrderDirection_STOP_ORDER_DIRECTION_SELL,
		AccountId:      intent.AccountID,
		ExpirationType: pb.StopOrderExpirationType_STOP_ORDER_EXPIRATION_TYPE_GOOD_TILL_CANCEL,
		StopOrderType:  pb.StopOrderType_STOP_ORDER_TYPE_STOP_LOSS,
	}
	id, err := c.api.PostStopOrder(req)
	if err != nil {
		return orders.Result{}, fmt.Errorf("post stop order: %w", err)
	}
	return orders.Result{OrderID: id}, nil
}

func (c *Client) GetOrderBook(ctx context.Context, symbol string, depth int32) (*marketdata.OrderBookSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inst, err := c.resolver.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}
	resp, err := c.api.GetOrderBook(inst.UID, depth)
	if err != nil {
		return nil, fmt.Errorf("get order book %s: %w", symbol, err)
	}
	return convertOrderBook(resp, symbol, depth), nil
}

func (c *Client) prepare(ctx context.Context, intent orders.Intent) (Instrument, error) {
	if err := ctx.Err(); err != nil {
		return Instrument{}, err
	}
	if err := intent.Validate(); err != nil {
		return Instrument{}, err
	}
	if intent.AccountID == "" {
		return Instrument{}, errors.New("account id is empty")
	}
	return c.resolver.Resolve(ctx, intent.Symbol)
}

func (c *Client) postOrder(direction pb.OrderDirection, req *investgo.PostOrderRequestShort) (orders.Result, error) {
	id, err := c.api.PostOrder(direction, req)
	if err != nil {
		return orders.Result{}, fmt.Errorf("post %s order: %w", req.OrderType, err)
	}
	c.logger.WithFields(logrus.Fields{
		"instrument_uid":  req.InstrumentId,
		"client_order_id": req.OrderId,
		"order_id":        id,
	}).Debug("order posted")
	return orders.Result{OrderID: id}, nil
}
