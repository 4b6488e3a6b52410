package subscription

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dip-trader/internal/application/service/execution"
	instruments "dip-trader/internal/domain/entity/instruments"
	marketdata "dip-trader/internal/domain/entity/marketdata"
	"dip-trader/internal/observability"
)

type fakeFeed struct {
	mu       sync.Mutex
	failing  map[string]error
	channels map[string]chan marketdata.Candle
	order    []string
}

func newFakeFeed(failing map[string]error) *fakeFeed {
	return &fakeFeed{failing: failing, channels: map[string]chan marketdata.Candle{}}
}

func (f *fakeFeed) SubscribeCandles(_ context.Context, symbol string) (<-chan marketdata.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, symbol)
	if err, ok := f.failing[symbol]; ok {
		return nil, err
	}
	ch := make(chan marketdata.Candle, 16)
	f.channels[symbol] = ch
	return ch, nil
}

func (f *fakeFeed) channel(symbol string) chan marketdata.Candle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[symbol]
}

type call struct {
	symbol    string
	threshold float64
	open      float64
}

type fakeProcessor struct {
	mu      sync.Mutex
	calls   []call
	panicOn float64
}

func (p *fakeProcessor) Process(_ context.Context, inst instruments.Instrument, threshold float64, candle marketdata.Candle) execution.Outcome {
	if p.panicOn != 0 && candle.Open == p.panicOn {
		panic("boom")
	}
	p.mu.Lock()
	p.calls = append(p.calls, call{symbol: inst.Symbol, threshold: threshold, open: candle.Open})
	p.mu.Unlock()

	if candle.Close < candle.Open {
		return execution.Outcome{Symbol: inst.Symbol, State: execution.StateExitsPlaced, Ratio: (candle.Open - candle.Close) / candle.Open}
	}
	return execution.Outcome{Symbol: inst.Symbol, State: execution.StateIdle}
}

func (p *fakeProcessor) opensFor(symbol string) []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []float64
	for _, c := range p.calls {
		if c.symbol == symbol {
			out = append(out, c.open)
		}
	}
	return out
}

func (p *fakeProcessor) thresholdFor(symbol string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.calls {
		if c.symbol == symbol {
			return c.threshold
		}
	}
	return 0
}

func testCatalog(t *testing.T) *instruments.Catalog {
	t.Helper()
	c, err := instruments.NewCatalog(instruments.DefaultThresholdPolicy(),
		instruments.Membership{Tier: instruments.Tier1, Symbols: "SBER GAZP"},
		instruments.Membership{Tier: instruments.Tier2, Symbols: "AFLT"},
		instruments.Membership{Tier: instruments.Tier3, Symbols: "AQUA"},
	)
	require.NoError(t, err)
	return c
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestDriver_FailureDoesNotBlockLaterInstruments(t *testing.T) {
	feed := newFakeFeed(map[string]error{"GAZP": errors.New("instrument not found")})
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	d := NewDriver(testCatalog(t), feed, &fakeProcessor{}, metrics, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	active := d.Start(ctx)

	assert.Equal(t, 3, active)
	assert.Equal(t, []string{"SBER", "GAZP", "AFLT", "AQUA"}, feed.order)

	st, ok := d.Status("GAZP")
	require.True(t, ok)
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, "instrument not found", st.Error)

	st, _ = d.Status("AQUA")
	assert.Equal(t, StateActive, st.State)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Subscriptions.WithLabelValues(string(StateFailed))))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Subscriptions.WithLabelValues(string(StateActive))))

	cancel()
	d.Wait()
}

func TestDriver_PerInstrumentOrderAndThreshold(t *testing.T) {
	feed := newFakeFeed(nil)
	proc := &fakeProcessor{}
	d := NewDriver(testCatalog(t), feed, proc, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.Equal(t, 4, d.Start(ctx))

	for i := 1; i <= 5; i++ {
		feed.channel("SBER") <- marketdata.Candle{Symbol: "SBER", Open: float64(i), Close: float64(i)}
		feed.channel("AFLT") <- marketdata.Candle{Symbol: "AFLT", Open: float64(10 + i), Close: float64(10 + i)}
	}
	close(feed.channel("SBER"))
	close(feed.channel("AFLT"))
	close(feed.channel("GAZP"))
	close(feed.channel("AQUA"))
	d.Wait()

	assert.Equal(t, []float64{1, 2, 3, 4, 5}, proc.opensFor("SBER"))
	assert.Equal(t, []float64{11, 12, 13, 14, 15}, proc.opensFor("AFLT"))
	assert.Equal(t, 0.006, proc.thresholdFor("SBER"))
	assert.Equal(t, 0.015, proc.thresholdFor("AFLT"))

	st, _ := d.Status("SBER")
	assert.Equal(t, StateClosed, st.State)
	assert.Equal(t, int64(5), st.Candles)
}

func TestDriver_PanicIsContainedToOneCandle(t *testing.T) {
	feed := newFakeFeed(nil)
	proc := &fakeProcessor{panicOn: 2}
	d := NewDriver(testCatalog(t), feed, proc, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	ch := feed.channel("SBER")
	ch <- marketdata.Candle{Symbol: "SBER", Open: 1, Close: 1}
	ch <- marketdata.Candle{Symbol: "SBER", Open: 2, Close: 1}
	ch <- marketdata.Candle{Symbol: "SBER", Open: 3, Close: 2.9}
	close(ch)

	require.Eventually(t, func() bool {
		st, _ := d.Status("SBER")
		return st.State == StateClosed
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []float64{1, 3}, proc.opensFor("SBER"))
	st, _ := d.Status("SBER")
	assert.Equal(t, int64(3), st.Candles)
	assert.Equal(t, int64(1), st.Signals)
	assert.Empty(t, st.Error)
	assert.Equal(t, StateClosed, st.State)
	assert.Contains(t, st.LastError, "pipeline panic")
	require.NotNil(t, st.LastErrorAt)
	assert.Equal(t, string(execution.StateExitsPlaced), st.LastOutcome)

	cancel()
	d.Wait()
}

func TestDriver_StatusTracksLastCandleAndError(t *testing.T) {
	feed := newFakeFeed(nil)
	d := NewDriver(testCatalog(t), feed, &fakeProcessor{panicOn: 5}, nil, quietLogger())

	st, _ := d.Status("SBER")
	assert.Nil(t, st.LastCandleAt)
	assert.Nil(t, st.LastErrorAt)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	first := time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)
	ch := feed.channel("SBER")
	ch <- marketdata.Candle{Symbol: "SBER", Open: 5, Close: 5, PeriodStart: first}
	ch <- marketdata.Candle{Symbol: "SBER", Open: 6, Close: 6, PeriodStart: first.Add(time.Minute)}

	require.Eventually(t, func() bool {
		st, _ := d.Status("SBER")
		return st.Candles == 2
	}, time.Second, 5*time.Millisecond)

	st, _ = d.Status("SBER")
	require.NotNil(t, st.LastCandleAt)
	assert.Equal(t, first.Add(time.Minute), *st.LastCandleAt)
	assert.Equal(t, string(execution.StateIdle), st.LastOutcome)
	assert.Equal(t, StateActive, st.State)
	assert.Empty(t, st.Error)
	assert.Contains(t, st.LastError, "pipeline panic")
	require.NotNil(t, st.LastErrorAt)
	assert.WithinDuration(t, time.Now(), *st.LastErrorAt, time.Minute)

	cancel()
	d.Wait()
}

func TestDriver_StatusesFollowCatalogOrder(t *testing.T) {
	d := NewDriver(testCatalog(t), newFakeFeed(nil), &fakeProcessor{}, nil, quietLogger())

	statuses := d.Statuses()
	require.Len(t, statuses, 4)
	assert.Equal(t, "SBER", statuses[0].Symbol)
	assert.Equal(t, "tier1", statuses[0].Tier)
	assert.Equal(t, StatePending, statuses[0].State)
	assert.Equal(t, "AQUA", statuses[3].Symbol)
	assert.Equal(t, 0.015, statuses[3].Threshold)
}

func TestDriver_StartStopsOnCancelledContext(t *testing.T) {
	feed := newFakeFeed(nil)
	d := NewDriver(testCatalog(t), feed, &fakeProcessor{}, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Zero(t, d.Start(ctx))
	assert.Empty(t, feed.order)
	d.Wait()
}
