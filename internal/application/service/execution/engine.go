// Package execution turns a dip signal into an entry order and its two exit legs.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dip-trader/internal/application/service/signal"
	instruments "dip-trader/internal/domain/entity/instruments"
	marketdata "dip-trader/internal/domain/entity/marketdata"
	orders "dip-trader/internal/domain/entity/orders"
	interfaces "dip-trader/internal/domain/interfaces"
	"dip-trader/internal/observability"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// State is the position of one candle's pipeline run.
type State string

const (
	StateIdle           State = "idle"
	StateSignalDetected State = "signal_detected"
	StateSizing         State = "sizing"
	StateEntryPlaced    State = "entry_placed"
	StateExitsPlaced    State = "exits_placed"
	StateAborted        State = "aborted"
)

const defaultPublishTimeout = 2 * time.Second

var (
	ErrEstimateFailed   = errors.New("order estimate failed")
	ErrQuantityTooSmall = errors.New("affordable quantity below one lot")
	ErrEntryRejected    = errors.New("entry order not accepted")
)

// StopPricer derives the stop-loss trigger for a freshly entered position.
type StopPricer interface {
	StopPrice(ctx context.Context, symbol string, reference float64) (float64, bool)
}

type Options struct {
	Broker     interfaces.Brokerage
	StopPricer StopPricer
	Publisher  interfaces.EventPublisher
	Metrics    *observability.Metrics
	Logger     *logrus.Logger
	AccountID  string
	// SerializeEntries holds a single capital slot across sizing and entry so two
	// instruments cannot size against the same free cash.
	SerializeEntries bool
	// PublishTimeout bounds the delivery of one run's events. Defaults to 2s.
	PublishTimeout time.Duration
	Now            func() time.Time
}

// Outcome reports how far the pipeline of one candle got.
type Outcome struct {
	Symbol            string
	State             State
	Ratio             float64
	Quantity          int64
	EntryOrderID      string
	TakeProfitOrderID string
	StopOrderID       string
	StopPrice         float64
	Err               error
}

type Engine struct {
	broker    interfaces.Brokerage
	stops     StopPricer
	publisher interfaces.EventPublisher
	metrics   *observability.Metrics
	logger    *logrus.Entry
	accountID string
	capital   *semaphore.Weighted
	now       func() time.Time

	publishTimeout time.Duration
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Broker == nil {
		return nil, errors.New("broker is required")
	}
	if opts.StopPricer == nil {
		return nil, errors.New("stop pricer is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.AccountID == "" {
		return nil, errors.New("account id is required")
	}
	e := &Engine{
		broker:    opts.Broker,
		stops:     opts.StopPricer,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		logger:    opts.Logger.WithField("component", "execution"),
		accountID: opts.AccountID,
		now:       opts.Now,

		publishTimeout: opts.PublishTimeout,
	}
	if e.publishTimeout <= 0 {
		e.publishTimeout = defaultPublishTimeout
	}
	if opts.SerializeEntries {
		e.capital = semaphore.NewWeighted(1)
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Process evaluates one candle and, on a dip, runs sizing, entry and exits.
// Every brokerage call is made at most once. The exits are sized with the requested
// entry quantity; the actual fill is not confirmed. Events are published only
// after the last brokerage call of the run.
func (e *Engine) Process(ctx context.Context, inst instruments.Instrument, threshold float64, candle marketdata.Candle) Outcome {
	out := Outcome{Symbol: inst.Symbol, State: StateIdle}
	log := e.logger.WithField("symbol", inst.Symbol)

	var pending []orders.Event
	defer func() {
		e.flush(ctx, pending)
	}()

	if e.metrics != nil {
		e.metrics.CandlesProcessed.WithLabelValues(inst.Symbol).Inc()
	}

	sig, ok, err := signal.Detect(candle, threshold)
	if err != nil {
		log.WithError(err).Warn("skip degenerate candle")
		if e.metrics != nil {
			e.metrics.CandleErrors.WithLabelValues(inst.Symbol).Inc()
		}
		return e.abort(&pending, out, err)
	}
	if !ok {
		return out
	}

	out.State = StateSignalDetected
	out.Ratio = sig.Ratio
	log.WithFields(logrus.Fields{
		"ratio":     sig.Ratio,
		"threshold": threshold,
		"open":      candle.Open,
		"close":     candle.Close,
	}).Info("dip detected")
	if e.metrics != nil {
		e.metrics.SignalsDetected.WithLabelValues(inst.Symbol, inst.Tier.String()).Inc()
	}
	e.queue(&pending, orders.Event{Type: orders.EventSignal, Symbol: inst.Symbol, Ratio: sig.Ratio, Price: candle.Close})

	release, err := e.reserveCapital(ctx)
	if err != nil {
		return e.abort(&pending, out, err)
	}
	defer release()

	out.State = StateSizing
	quantity, err := e.estimate(ctx, inst.Symbol, candle.Close)
	if err != nil {
		log.WithError(err).Error("estimate order")
		return e.abort(&pending, out, fmt.Errorf("%w: %v", ErrEstimateFailed, err))
	}
	out.Quantity = quantity
	if quantity < 1 {
		log.WithField("quantity", quantity).Info("nothing affordable")
		return e.abort(&pending, out, ErrQuantityTooSmall)
	}

	entry := e.place(ctx, &pending, observability.LegEntry, orders.Intent{
		Symbol:    inst.Symbol,
		AccountID: e.accountID,
		Side:      orders.SideBuy,
		Quantity:  quantity,
		Price:     candle.Close,
	}, e.broker.PlaceMarketOrder)
	release()
	if !entry.Accepted() {
		return e.abort(&pending, out, ErrEntryRejected)
	}
	out.State = StateEntryPlaced
	out.EntryOrderID = entry.OrderID
	log.WithFields(logrus.Fields{
		"quantity": quantity,
		"price":    candle.Close,
		"order_id": entry.OrderID,
	}).Info("bought")

	// Take-profit targets the pre-dip price.
	tp := e.place(ctx, &pending, observability.LegTakeProfit, orders.Intent{
		Symbol:    inst.Symbol,
		AccountID: e.accountID,
		Side:      orders.SideSellLimit,
		Quantity:  quantity,
		Price:     candle.Open,
	}, e.broker.PlaceLimitOrder)
	if tp.Accepted() {
		out.TakeProfitOrderID = tp.OrderID
		log.WithField("price", candle.Open).Info("take-profit placed")
	}

	if stopPrice, ok := e.stops.StopPrice(ctx, inst.Symbol, candle.Close); ok {
		out.StopPrice = stopPrice
		sl := e.place(ctx, &pending, observability.LegStopLoss, orders.Intent{
			Symbol:    inst.Symbol,
			AccountID: e.accountID,
			Side:      orders.SideSellStop,
			Quantity:  quantity,
			Price:     stopPrice,
		}, e.broker.PlaceStopOrder)
		if sl.Accepted() {
			out.StopOrderID = sl.OrderID
			log.WithField("trigger_price", stopPrice).Info("stop-loss placed")
		}
	} else {
		log.Info("stop-loss skipped")
	}

	out.State = StateExitsPlaced
	e.recordOutcome(out.State)
	return out
}

func (e *Engine) reserveCapital(ctx context.Context) (func(), error) {
	if e.capital == nil {
		return func() {}, nil
	}
	if err := e.capital.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("reserve capital: %w", err)
	}
	released := false
	return func() {
		if !released {
			released = true
			e.capital.Release(1)
		}
	}, nil
}

func (e *Engine) estimate(ctx context.Context, symbol string, price float64) (int64, error) {
	start := e.now()
	quantity, err := e.broker.EstimateAffordableQuantity(ctx, symbol, price, e.accountID)
	e.observe("estimate", start)
	return quantity, err
}

// place makes one guarded placement call. Errors and empty ids come back as an empty Result.
func (e *Engine) place(ctx context.Context, pending *[]orders.Event, leg string, intent orders.Intent, call func(context.Context, orders.Intent) (orders.Result, error)) orders.Result {
	log := e.logger.WithFields(logrus.Fields{
		"symbol":   intent.Symbol,
		"leg":      leg,
		"quantity": intent.Quantity,
		"price":    intent.Price,
	})
	if err := intent.Validate(); err != nil {
		log.WithError(err).Warn("order intent dropped")
		return orders.Result{}
	}

	start := e.now()
	res, err := call(ctx, intent)
	e.observe(leg, start)
	if err == nil && !res.Accepted() {
		err = errors.New("empty order id")
	}
	if err != nil {
		log.WithError(err).Error("order placement failed")
		if e.metrics != nil {
			e.metrics.OrdersFailed.WithLabelValues(intent.Symbol, leg).Inc()
		}
		e.queue(pending, orders.Event{
			Type:     orders.EventOrderFailed,
			Symbol:   intent.Symbol,
			Side:     intent.Side,
			Quantity: intent.Quantity,
			Price:    intent.Price,
			Reason:   err.Error(),
		})
		return orders.Result{}
	}

	if e.metrics != nil {
		e.metrics.OrdersPlaced.WithLabelValues(intent.Symbol, leg).Inc()
	}
	e.queue(pending, orders.Event{
		Type:     orders.EventOrderPlaced,
		Symbol:   intent.Symbol,
		Side:     intent.Side,
		Quantity: intent.Quantity,
		Price:    intent.Price,
		OrderID:  res.OrderID,
	})
	return res
}

func (e *Engine) abort(pending *[]orders.Event, out Outcome, err error) Outcome {
	out.State = StateAborted
	out.Err = err
	e.recordOutcome(out.State)
	if out.Ratio > 0 {
		e.queue(pending, orders.Event{
			Type:     orders.EventPipelineAbort,
			Symbol:   out.Symbol,
			Ratio:    out.Ratio,
			Quantity: out.Quantity,
			Reason:   err.Error(),
		})
	}
	return out
}

func (e *Engine) queue(pending *[]orders.Event, event orders.Event) {
	if e.publisher == nil {
		return
	}
	event.CreatedAt = e.now().UTC()
	*pending = append(*pending, event)
}

// flush publishes one run's events in order, giving up once publishTimeout expires.
func (e *Engine) flush(ctx context.Context, events []orders.Event) {
	if e.publisher == nil || len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, e.publishTimeout)
	defer cancel()
	for i, event := range events {
		if err := e.publisher.Publish(ctx, event); err != nil {
			e.logger.WithError(err).WithField("event", event.Type).Warn("publish event")
		}
		if ctx.Err() != nil {
			if rest := len(events) - i - 1; rest > 0 {
				e.logger.WithField("dropped", rest).Warn("event publishing timed out")
			}
			return
		}
	}
}

func (e *Engine) recordOutcome(state State) {
	if e.metrics != nil {
		e.metrics.PipelineOutcomes.WithLabelValues(string(state)).Inc()
	}
}

func (e *Engine) observe(call string, start time.Time) {
	if e.metrics != nil {
		e.metrics.BrokerageDuration.WithLabelValues(call).Observe(e.now().Sub(start).Seconds())
	}
}
