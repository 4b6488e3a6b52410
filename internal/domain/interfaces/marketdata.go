package interfaces

import (
	"context"

	marketdata "dip-trader/internal/domain/entity/marketdata"
)

// CandleFeed opens one candle subscription per symbol. The returned channel is
// closed when the subscription ends and yields candles in arrival order.
type CandleFeed interface {
	SubscribeCandles(ctx context.Context, symbol string) (<-chan marketdata.Candle, error)
}

type OrderBookSource interface {
	GetOrderBook(ctx context.Context, symbol string, depth int32) (*marketdata.OrderBookSnapshot, error)
}
