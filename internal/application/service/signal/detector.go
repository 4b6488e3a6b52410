// Package signal evaluates candles against the dip rule.
package signal

import (
	"errors"
	"fmt"

	marketdata "dip-trader/internal/domain/entity/marketdata"
)

var ErrInvalidOpenPrice = errors.New("candle open price must be positive")

// Signal is a detected dip. It lives only for the pipeline run of its candle.
type Signal struct {
	Symbol    string
	Ratio     float64
	Threshold float64
	Candle    marketdata.Candle
}

// Ratio is the fractional drop from open to close, positive when the price fell.
func Ratio(candle marketdata.Candle) (float64, error) {
	if candle.Open <= 0 {
		return 0, fmt.Errorf("%s open=%v: %w", candle.Symbol, candle.Open, ErrInvalidOpenPrice)
	}
	return (candle.Open - candle.Close) / candle.Open, nil
}

// Detect fires when the candle dropped by at least threshold.
// A degenerate candle is reported as an error and never fires.
func Detect(candle marketdata.Candle, threshold float64) (Signal, bool, error) {
	ratio, err := Ratio(candle)
	if err != nil {
		return Signal{}, false, err
	}
	if ratio <= 0 || ratio < threshold {
		return Signal{}, false, nil
	}
	return Signal{
		Symbol:    candle.Symbol,
		Ratio:     ratio,
		Threshold: threshold,
		Candle:    candle,
	}, true, nil
}
