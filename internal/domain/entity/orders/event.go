package orders

import "time"

type EventType string

const (
	EventSignal        EventType = "signal"
	EventOrderPlaced   EventType = "order_placed"
	EventOrderFailed   EventType = "order_failed"
	EventPipelineAbort EventType = "pipeline_aborted"
)

// Event is a notification emitted by the execution engine for downstream consumers.
type Event struct {
	Type      EventType `json:"type"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side,omitempty"`
	Quantity  int64     `json:"quantity,omitempty"`
	Price     float64   `json:"price,omitempty"`
	Ratio     float64   `json:"ratio,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
