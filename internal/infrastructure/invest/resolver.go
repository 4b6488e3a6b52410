package invest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pb "github.com/russianinvestments/invest-api-go-sdk/proto"
	"github.com/sirupsen/logrus"
)

var ErrInstrumentNotFound = errors.New("instrument not found")

// Instrument is the broker-side identity of a ticker.
type Instrument struct {
	Ticker            string
	UID               string
	Figi              string
	Lot               int32
	MinPriceIncrement *pb.Quotation
}

// InstrumentStore persists resolved instruments between runs.
type InstrumentStore interface {
	LoadInstrument(ctx context.Context, classCode, ticker string) (Instrument, bool, error)
	SaveInstrument(ctx context.Context, classCode string, inst Instrument) error
}

// Resolver maps exchange tickers to broker instrument ids and caches the answer.
type Resolver struct {
	api       API
	classCode string
	store     InstrumentStore
	logger    *logrus.Entry

	mu       sync.RWMutex
	byTicker map[string]Instrument
	byUID    map[string]string
}

func NewResolver(api API, classCode string) *Resolver {
	return &Resolver{
		api:       api,
		classCode: classCode,
		byTicker:  make(map[string]Instrument),
		byUID:     make(map[string]string),
	}
}

// WithStore makes the resolver consult store before the API. Store errors are
// logged and the API is used instead.
func (r *Resolver) WithStore(store InstrumentStore, logger *logrus.Logger) *Resolver {
	r.store = store
	r.logger = logger.WithField("component", "instrument_resolver")
	return r
}

func (r *Resolver) Resolve(ctx context.Context, ticker string) (Instrument, error) {
	r.mu.RLock()
	inst, ok := r.byTicker[ticker]
	r.mu.RUnlock()
	if ok {
		return inst, nil
	}

	if r.store != nil {
		cached, found, err := r.store.LoadInstrument(ctx, r.classCode, ticker)
		if err != nil {
			r.logger.WithError(err).WithField("symbol", ticker).Warn("instrument store lookup failed")
		} else if found && cached.UID != "" {
			r.remember(cached)
			return cached, nil
		}
	}

	share, err := r.api.ShareByTicker(ticker, r.classCode)
	if err != nil {
		return Instrument{}, fmt.Errorf("share by ticker %s/%s: %w", ticker, r.classCode, err)
	}
	uid := strings.TrimSpace(share.GetUid())
	if uid == "" {
		return Instrument{}, fmt.Errorf("%s/%s: %w", ticker, r.classCode, ErrInstrumentNotFound)
	}

	inst = Instrument{
		Ticker:            ticker,
		UID:               uid,
		Figi:              share.GetFigi(),
		Lot:               share.GetLot(),
		MinPriceIncrement: share.GetMinPriceIncrement(),
	}
	r.remember(inst)

	if r.store != nil {
		if err := r.store.SaveInstrument(ctx, r.classCode, inst); err != nil {
			r.logger.WithError(err).WithField("symbol", ticker).Warn("instrument store write failed")
		}
	}
	return inst, nil
}

func (r *Resolver) remember(inst Instrument) {
	r.mu.Lock()
	r.byTicker[inst.Ticker] = inst
	r.byUID[inst.UID] = inst.Ticker
	r.mu.Unlock()
}

// TickerFor returns the ticker previously resolved to uid.
func (r *Resolver) TickerFor(uid string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticker, ok := r.byUID[uid]
	return ticker, ok
}
