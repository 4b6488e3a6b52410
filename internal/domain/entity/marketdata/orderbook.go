package marketdata

import "time"

// OrderBookLevel holds price/quantity pair for bids/asks within a snapshot.
type OrderBookLevel struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// OrderBookSnapshot is the book of one instrument at one instant. Bids keep feed order.
type OrderBookSnapshot struct {
	Symbol     string           `json:"symbol"`
	SnapshotAt time.Time        `json:"snapshot_at"`
	Depth      int32            `json:"depth"`
	Bids       []OrderBookLevel `json:"bids"`
	Asks       []OrderBookLevel `json:"asks"`
}
