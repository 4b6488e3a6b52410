package orders

import (
	"errors"
	"fmt"
)

var ErrInvalidQuantity = errors.New("quantity must be a positive integer")

// Side distinguishes the three legs the engine places.
type Side string

const (
	SideBuy       Side = "BUY"
	SideSellLimit Side = "SELL_LIMIT"
	SideSellStop  Side = "SELL_STOP"
)

// Intent is an order the engine wants placed. Price is the limit price or the stop trigger.
type Intent struct {
	Symbol    string
	AccountID string
	Side      Side
	Quantity  int64
	Price     float64
}

func (i Intent) Validate() error {
	if i.Quantity < 1 {
		return fmt.Errorf("%s %s: %w", i.Side, i.Symbol, ErrInvalidQuantity)
	}
	if i.Symbol == "" {
		return errors.New("intent symbol is empty")
	}
	if i.Side != SideBuy && i.Price <= 0 {
		return fmt.Errorf("%s %s: price must be positive", i.Side, i.Symbol)
	}
	return nil
}

// Result is the brokerage confirmation of a placement. An empty OrderID means the order was not accepted.
type Result struct {
	OrderID string
}

func (r Result) Accepted() bool { return r.OrderID != "" }
