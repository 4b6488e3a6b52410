// Package observability provides Prometheus metrics for the trading pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultNamespace = "dip_trader"

// Order leg labels.
const (
	LegEntry      = "entry"
	LegTakeProfit = "take_profit"
	LegStopLoss   = "stop_loss"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	CandlesProcessed  *prometheus.CounterVec
	CandleErrors      *prometheus.CounterVec
	CandlesDropped    *prometheus.CounterVec
	EventsDropped     *prometheus.CounterVec
	SignalsDetected   *prometheus.CounterVec
	PipelineOutcomes  *prometheus.CounterVec
	OrdersPlaced      *prometheus.CounterVec
	OrdersFailed      *prometheus.CounterVec
	Subscriptions     *prometheus.GaugeVec
	BrokerageDuration *prometheus.HistogramVec
}

// NewMetrics registers the metrics on reg. A nil reg uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CandlesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "candles_processed_total",
			Help:      "Candles evaluated by the dip detector",
		}, []string{"symbol"}),
		CandleErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "candle_errors_total",
			Help:      "Degenerate candles rejected by the detector",
		}, []string{"symbol"}),
		CandlesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "candles_dropped_total",
			Help:      "Stale candles replaced because the instrument pipeline fell behind",
		}, []string{"symbol"}),
		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Trading events not delivered to the event bus",
		}, []string{"reason"}),
		SignalsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "detected_total",
			Help:      "Dip signals fired",
		}, []string{"symbol", "tier"}),
		PipelineOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "pipeline_outcomes_total",
			Help:      "Final state of every signal pipeline run",
		}, []string{"state"}),
		OrdersPlaced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "orders_placed_total",
			Help:      "Orders accepted by the broker",
		}, []string{"symbol", "leg"}),
		OrdersFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "orders_failed_total",
			Help:      "Orders rejected or lost",
		}, []string{"symbol", "leg"}),
		Subscriptions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscriptions",
			Help:      "Candle subscriptions by state",
		}, []string{"state"}),
		BrokerageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "brokerage",
			Name:      "call_duration_seconds",
			Help:      "Latency of brokerage calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call"}),
	}
}
