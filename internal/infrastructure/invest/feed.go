package invest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	marketdata "dip-trader/internal/domain/entity/marketdata"
	interfaces "dip-trader/internal/domain/interfaces"
	"dip-trader/internal/observability"

	pb "github.com/russianinvestments/invest-api-go-sdk/proto"
	"github.com/sirupsen/logrus"
)

var ErrAlreadySubscribed = errors.New("candles already subscribed")

// CandleStream is the subscribe side of an investgo market data stream.
type CandleStream interface {
	SubscribeCandle(ids []string, interval pb.SubscriptionInterval, waitingClose bool, candleSource *pb.GetCandlesRequest_CandleSource) (<-chan *pb.Candle, error)
}

type FeedConfig struct {
	Interval     pb.SubscriptionInterval
	WaitingClose bool
	Buffer       int
	Metrics      *observability.Metrics
}

// CandleFeed fans a single market data stream out into one ordered channel per
// instrument. Delivery never blocks: when an instrument's channel is full its
// oldest buffered candle is discarded to make room for the newest one.
type CandleFeed struct {
	stream   CandleStream
	resolver *Resolver
	cfg      FeedConfig
	logger   *logrus.Entry

	mu   sync.Mutex
	subs map[string]chan marketdata.Candle
	once sync.Once
}

var _ interfaces.CandleFeed = (*CandleFeed)(nil)

func NewCandleFeed(stream CandleStream, resolver *Resolver, cfg FeedConfig, logger *logrus.Logger) *CandleFeed {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1
	}
	return &CandleFeed{
		stream:   stream,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger.WithField("component", "candle_feed"),
		subs:     make(map[string]chan marketdata.Candle),
	}
}

// SubscribeCandles subscribes one ticker. The first call starts dispatching,
// bounded by its ctx.
func (f *CandleFeed) SubscribeCandles(ctx context.Context, symbol string) (<-chan marketdata.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inst, err := f.resolver.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}

	ch := make(chan marketdata.Candle, f.cfg.Buffer)
	f.mu.Lock()
	if _, ok := f.subs[inst.UID]; ok {
		f.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", symbol, ErrAlreadySubscribed)
	}
	f.subs[inst.UID] = ch
	f.mu.Unlock()

	source, err := f.stream.SubscribeCandle([]string{inst.UID}, f.cfg.Interval, f.cfg.WaitingClose, nil)
	if err != nil {
		f.mu.Lock()
		delete(f.subs, inst.UID)
		f.mu.Unlock()
		return nil, fmt.Errorf("subscribe candles %s: %w", symbol, err)
	}

	f.once.Do(func() {
		go f.dispatch(ctx, source)
	})
	return ch, nil
}

func (f *CandleFeed) dispatch(ctx context.Context, source <-chan *pb.Candle) {
	defer f.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-source:
			if !ok {
				f.logger.Warn("market data stream closed")
				return
			}
			f.route(msg)
		}
	}
}

func (f *CandleFeed) route(msg *pb.Candle) {
	uid := msg.GetInstrumentUid()
	f.mu.Lock()
	ch, ok := f.subs[uid]
	f.mu.Unlock()
	if !ok {
		f.logger.WithField("instrument_uid", uid).Debug("candle for unknown instrument")
		return
	}

	ticker, _ := f.resolver.TickerFor(uid)
	candle, err := convertCandle(msg, ticker)
	if err != nil {
		f.logger.WithError(err).Warn("skip candle")
		return
	}

	if f.deliver(ch, candle) {
		return
	}
	f.logger.WithFields(logrus.Fields{
		"symbol":       ticker,
		"period_start": candle.PeriodStart,
	}).Warn("instrument pipeline behind, dropped oldest buffered candle")
	if f.cfg.Metrics != nil {
		f.cfg.Metrics.CandlesDropped.WithLabelValues(ticker).Inc()
	}
}

// deliver sends candle without blocking. It reports false when a stale candle
// had to be discarded.
func (f *CandleFeed) deliver(ch chan marketdata.Candle, candle marketdata.Candle) bool {
	select {
	case ch <- candle:
		return true
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- candle:
	default:
	}
	return false
}

func (f *CandleFeed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for uid, ch := range f.subs {
		close(ch)
		delete(f.subs, uid)
	}
}
