package broker

import orders "dip-trader/internal/domain/entity/orders"

type EventMessage struct {
	Event *orders.Event `json:"event,omitempty"`
}
