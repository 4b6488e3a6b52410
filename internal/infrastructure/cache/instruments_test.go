package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"dip-trader/internal/infrastructure/invest"

	"github.com/redis/go-redis/v9"
	pb "github.com/russianinvestments/invest-api-go-sdk/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestInstrumentCache_SaveAndLoad(t *testing.T) {
	kv := newFakeKV()
	c := NewInstrumentCache(kv, time.Hour)
	ctx := context.Background()

	inst := invest.Instrument{
		Ticker:            "SBER",
		UID:               "e6123145-9665-43e0-8413-cd61b8aa9b13",
		Figi:              "BBG004730N88",
		Lot:               10,
		MinPriceIncrement: &pb.Quotation{Units: 0, Nano: 10000000},
	}
	require.NoError(t, c.SaveInstrument(ctx, "TQBR", inst))
	assert.Equal(t, time.Hour, kv.ttls["dip-trader:instrument:TQBR:SBER"])

	got, found, err := c.LoadInstrument(ctx, "TQBR", "SBER")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, inst.UID, got.UID)
	assert.Equal(t, inst.Lot, got.Lot)
	assert.Equal(t, int32(10000000), got.MinPriceIncrement.GetNano())
}

func TestInstrumentCache_Miss(t *testing.T) {
	c := NewInstrumentCache(newFakeKV(), time.Hour)

	_, found, err := c.LoadInstrument(context.Background(), "TQBR", "GAZP")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInstrumentCache_Errors(t *testing.T) {
	kv := newFakeKV()
	kv.getErr = errors.New("dial tcp: connection refused")
	c := NewInstrumentCache(kv, time.Hour)

	_, _, err := c.LoadInstrument(context.Background(), "TQBR", "GAZP")
	require.Error(t, err)

	kv.getErr = nil
	kv.data["dip-trader:instrument:TQBR:GAZP"] = "{not json"
	_, _, err = c.LoadInstrument(context.Background(), "TQBR", "GAZP")
	require.Error(t, err)
}
