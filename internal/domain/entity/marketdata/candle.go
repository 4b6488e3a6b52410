package marketdata

import "time"

// Candle is one OHLC bar received from the market data stream.
type Candle struct {
	Symbol          string    `json:"symbol"`
	InstrumentUID   string    `json:"instrument_uid,omitempty"`
	IntervalSeconds int64     `json:"interval_seconds"`
	PeriodStart     time.Time `json:"period_start"`
	Open            float64   `json:"open"`
	High            float64   `json:"high"`
	Low             float64   `json:"low"`
	Close           float64   `json:"close"`
	VolumeLots      int64     `json:"volume_lots"`
}
