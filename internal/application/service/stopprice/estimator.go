// Package stopprice picks a stop-loss trigger from live order book depth.
package stopprice

import (
	"context"
	"errors"
	"sort"

	marketdata "dip-trader/internal/domain/entity/marketdata"
	interfaces "dip-trader/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

const DefaultDepth int32 = 50

var (
	ErrEmptyBook     = errors.New("order book has no bids")
	ErrNoBidBelowRef = errors.New("no bid below reference price")
)

type Estimator struct {
	books  interfaces.OrderBookSource
	depth  int32
	logger *logrus.Entry
}

func NewEstimator(books interfaces.OrderBookSource, depth int32, logger *logrus.Logger) *Estimator {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Estimator{
		books:  books,
		depth:  depth,
		logger: logger.WithField("component", "stop_price"),
	}
}

// StopPrice returns the most liquid bid strictly below reference.
// Book failures are logged and reported as no price.
func (e *Estimator) StopPrice(ctx context.Context, symbol string, reference float64) (float64, bool) {
	log := e.logger.WithField("symbol", symbol)

	book, err := e.books.GetOrderBook(ctx, symbol, e.depth)
	if err != nil {
		log.WithError(err).Warn("order book unavailable")
		return 0, false
	}
	if book == nil {
		log.WithError(ErrEmptyBook).Warn("order book unavailable")
		return 0, false
	}

	price, err := Select(book.Bids, reference)
	if err != nil {
		log.WithError(err).WithField("reference", reference).Info("no stop price")
		return 0, false
	}
	return price, true
}

// Select orders bids by descending volume and returns the first one priced below reference.
// Equal volumes keep feed order.
func Select(bids []marketdata.OrderBookLevel, reference float64) (float64, error) {
	if len(bids) == 0 {
		return 0, ErrEmptyBook
	}

	sorted := make([]marketdata.OrderBookLevel, len(bids))
	copy(sorted, bids)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Quantity > sorted[j].Quantity
	})

	for _, level := range sorted {
		if level.Price < reference {
			return level.Price, nil
		}
	}
	return 0, ErrNoBidBelowRef
}
