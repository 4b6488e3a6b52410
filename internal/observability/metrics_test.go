package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("", reg)

	m.OrdersPlaced.WithLabelValues("SBER", LegEntry).Inc()
	m.OrdersPlaced.WithLabelValues("SBER", LegEntry).Inc()
	m.Subscriptions.WithLabelValues("active").Set(3)
	m.CandlesDropped.WithLabelValues("SBER").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OrdersPlaced.WithLabelValues("SBER", LegEntry)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Subscriptions.WithLabelValues("active")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "dip_trader_execution_orders_placed_total")
	assert.Contains(t, names, "dip_trader_feed_subscriptions")
	assert.Contains(t, names, "dip_trader_feed_candles_dropped_total")
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics("a", prometheus.NewRegistry())
		NewMetrics("a", prometheus.NewRegistry())
	})
}
