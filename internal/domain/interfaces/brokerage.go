package interfaces

import (
	"context"

	orders "dip-trader/internal/domain/entity/orders"
)

// Brokerage is everything the execution engine needs from the broker.
// Calls are made at most once; implementations must not retry placements.
type Brokerage interface {
	OrderBookSource

	EstimateAffordableQuantity(ctx context.Context, symbol string, referencePrice float64, accountID string) (int64, error)
	PlaceMarketOrder(ctx context.Context, intent orders.Intent) (orders.Result, error)
	PlaceLimitOrder(ctx context.Context, intent orders.Intent) (orders.Result, error)
	PlaceStopOrder(ctx context.Context, intent orders.Intent) (orders.Result, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event orders.Event) error
}
