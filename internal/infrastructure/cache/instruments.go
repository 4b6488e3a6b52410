// Package cache keeps resolved broker instruments in Redis between restarts.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dip-trader/internal/infrastructure/invest"

	"github.com/redis/go-redis/v9"
	pb "github.com/russianinvestments/invest-api-go-sdk/proto"
)

const keyPrefix = "dip-trader:instrument:"

type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// InstrumentCache implements invest.InstrumentStore on top of Redis.
type InstrumentCache struct {
	client kv
	ttl    time.Duration
}

var _ invest.InstrumentStore = (*InstrumentCache)(nil)

func NewInstrumentCache(client kv, ttl time.Duration) *InstrumentCache {
	return &InstrumentCache{client: client, ttl: ttl}
}

func (c *InstrumentCache) LoadInstrument(ctx context.Context, classCode, ticker string) (invest.Instrument, bool, error) {
	raw, err := c.client.Get(ctx, instrumentKey(classCode, ticker)).Bytes()
	if errors.Is(err, redis.Nil) {
		return invest.Instrument{}, false, nil
	}
	if err != nil {
		return invest.Instrument{}, false, fmt.Errorf("get instrument %s: %w", ticker, err)
	}
	inst, err := decodeInstrument(raw)
	if err != nil {
		return invest.Instrument{}, false, err
	}
	return inst, true, nil
}

func (c *InstrumentCache) SaveInstrument(ctx context.Context, classCode string, inst invest.Instrument) error {
	body, err := encodeInstrument(inst)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, instrumentKey(classCode, inst.Ticker), body, c.ttl).Err(); err != nil {
		return fmt.Errorf("set instrument %s: %w", inst.Ticker, err)
	}
	return nil
}

func instrumentKey(classCode, ticker string) string {
	return keyPrefix + classCode + ":" + ticker
}

type instrumentRecord struct {
	Ticker         string `json:"ticker"`
	UID            string `json:"uid"`
	Figi           string `json:"figi,omitempty"`
	Lot            int32  `json:"lot"`
	IncrementUnits int64  `json:"increment_units"`
	IncrementNano  int32  `json:"increment_nano"`
}

func encodeInstrument(inst invest.Instrument) ([]byte, error) {
	rec := instrumentRecord{
		Ticker:         inst.Ticker,
		UID:            inst.UID,
		Figi:           inst.Figi,
		Lot:            inst.Lot,
		IncrementUnits: inst.MinPriceIncrement.GetUnits(),
		IncrementNano:  inst.MinPriceIncrement.GetNano(),
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode instrument: %w", err)
	}
	return body, nil
}

func decodeInstrument(raw []byte) (invest.Instrument, error) {
	var rec instrumentRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return invest.Instrument{}, fmt.Errorf("decode instrument: %w", err)
	}
	inst := invest.Instrument{
		Ticker: rec.Ticker,
		UID:    rec.UID,
		Figi:   rec.Figi,
		Lot:    rec.Lot,
	}
	if rec.IncrementUnits != 0 || rec.IncrementNano != 0 {
		inst.MinPriceIncrement = &pb.Quotation{Units: rec.IncrementUnits, Nano: rec.IncrementNano}
	}
	return inst, nil
}
