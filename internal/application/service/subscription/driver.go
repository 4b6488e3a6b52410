// Package subscription runs one candle subscription per catalog instrument.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dip-trader/internal/application/service/execution"
	instruments "dip-trader/internal/domain/entity/instruments"
	marketdata "dip-trader/internal/domain/entity/marketdata"
	interfaces "dip-trader/internal/domain/interfaces"
	"dip-trader/internal/observability"

	"github.com/sirupsen/logrus"
)

type Processor interface {
	Process(ctx context.Context, inst instruments.Instrument, threshold float64, candle marketdata.Candle) execution.Outcome
}

type State string

const (
	StatePending State = "pending"
	StateActive  State = "active"
	StateFailed  State = "failed"
	StateClosed  State = "closed"
)

var errPipelinePanic = errors.New("pipeline panic")

// Status is a point-in-time view of one instrument's subscription. Error
// describes the subscription itself. LastError is the most recent pipeline
// failure and stays set after later candles succeed.
type Status struct {
	Symbol       string     `json:"symbol"`
	Tier         string     `json:"tier"`
	Threshold    float64    `json:"threshold"`
	State        State      `json:"state"`
	Error        string     `json:"error,omitempty"`
	Candles      int64      `json:"candles"`
	Signals      int64      `json:"signals"`
	LastCandleAt *time.Time `json:"last_candle_at,omitempty"`
	LastOutcome  string     `json:"last_outcome,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	LastErrorAt  *time.Time `json:"last_error_at,omitempty"`
}

type Driver struct {
	catalog   *instruments.Catalog
	feed      interfaces.CandleFeed
	processor Processor
	metrics   *observability.Metrics
	logger    *logrus.Entry

	wg       sync.WaitGroup
	mu       sync.RWMutex
	statuses map[string]*Status
}

func NewDriver(catalog *instruments.Catalog, feed interfaces.CandleFeed, processor Processor, metrics *observability.Metrics, logger *logrus.Logger) *Driver {
	d := &Driver{
		catalog:   catalog,
		feed:      feed,
		processor: processor,
		metrics:   metrics,
		logger:    logger.WithField("component", "subscription_driver"),
		statuses:  make(map[string]*Status, catalog.Len()),
	}
	policy := catalog.Policy()
	for _, inst := range catalog.Instruments() {
		d.statuses[inst.Symbol] = &Status{
			Symbol:    inst.Symbol,
			Tier:      inst.Tier.String(),
			Threshold: policy.For(inst.Tier),
			State:     StatePending,
		}
	}
	return d
}

// Start subscribes every instrument in catalog order, one at a time. A failed
// subscription is logged and skipped. It returns the number of active subscriptions.
func (d *Driver) Start(ctx context.Context) int {
	policy := d.catalog.Policy()
	active := 0
	for _, inst := range d.catalog.Instruments() {
		if ctx.Err() != nil {
			break
		}
		log := d.logger.WithFields(logrus.Fields{"symbol": inst.Symbol, "tier": inst.Tier.String()})

		candles, err := d.feed.SubscribeCandles(ctx, inst.Symbol)
		if err != nil {
			log.WithError(err).Error("subscribe candles")
			d.setState(inst.Symbol, StateFailed, err)
			continue
		}
		d.setState(inst.Symbol, StateActive, nil)
		active++
		log.Info("receiving candles")

		d.wg.Add(1)
		go d.run(ctx, inst, policy.For(inst.Tier), candles)
	}
	d.refreshGauges()
	d.logger.WithFields(logrus.Fields{
		"active": active,
		"total":  d.catalog.Len(),
	}).Info("subscriptions established")
	return active
}

// Wait blocks until every subscription loop has returned.
func (d *Driver) Wait() {
	d.wg.Wait()
}

func (d *Driver) Statuses() []Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Status, 0, len(d.statuses))
	for _, symbol := range d.catalog.AllSymbols() {
		if st, ok := d.statuses[symbol]; ok {
			out = append(out, *st)
		}
	}
	return out
}

func (d *Driver) Status(symbol string) (Status, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	st, ok := d.statuses[symbol]
	if !ok {
		return Status{}, false
	}
	return *st, true
}

func (d *Driver) run(ctx context.Context, inst instruments.Instrument, threshold float64, candles <-chan marketdata.Candle) {
	defer d.wg.Done()
	defer func() {
		d.setState(inst.Symbol, StateClosed, nil)
		d.refreshGauges()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case candle, ok := <-candles:
			if !ok {
				d.logger.WithField("symbol", inst.Symbol).Warn("candle stream closed")
				return
			}
			d.handle(ctx, inst, threshold, candle)
		}
	}
}

// handle runs the pipeline for one candle. A panic is contained to that candle.
func (d *Driver) handle(ctx context.Context, inst instruments.Instrument, threshold float64, candle marketdata.Candle) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", errPipelinePanic, r)
			d.logger.WithField("symbol", inst.Symbol).WithError(err).Error("candle pipeline crashed")
			d.record(inst.Symbol, candle, execution.Outcome{State: execution.StateAborted, Err: err})
		}
	}()
	out := d.processor.Process(ctx, inst, threshold, candle)
	d.record(inst.Symbol, candle, out)
}

func (d *Driver) record(symbol string, candle marketdata.Candle, out execution.Outcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.statuses[symbol]
	if !ok {
		return
	}
	st.Candles++
	if out.Ratio > 0 {
		st.Signals++
	}
	at := candle.PeriodStart
	st.LastCandleAt = &at
	st.LastOutcome = string(out.State)
	if out.Err != nil {
		now := time.Now().UTC()
		st.LastError = out.Err.Error()
		st.LastErrorAt = &now
	}
}

func (d *Driver) setState(symbol string, state State, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.statuses[symbol]
	if !ok {
		return
	}
	st.State = state
	if err != nil {
		st.Error = err.Error()
	}
}

func (d *Driver) refreshGauges() {
	if d.metrics == nil {
		return
	}
	counts := map[State]int{}
	d.mu.RLock()
	for _, st := range d.statuses {
		counts[st.State]++
	}
	d.mu.RUnlock()
	for _, state := range []State{StatePending, StateActive, StateFailed, StateClosed} {
		d.metrics.Subscriptions.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}
