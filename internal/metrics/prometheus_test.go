package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"marketwatch/internal/provider"
)

func TestRecorder_CountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveRequest(provider.ExchangeRate, provider.Success, time.Second, 200*time.Millisecond)
	r.ObserveRequest(provider.ExchangeRate, provider.Throttled, 0, 100*time.Millisecond)
	r.ObserveRequest(provider.ExchangeRate, provider.Throttled, 0, 100*time.Millisecond)

	require.InDelta(t, 1.0, testutil.ToFloat64(r.responses.WithLabelValues("exchange_rate", "success")), 1e-9)
	require.InDelta(t, 2.0, testutil.ToFloat64(r.responses.WithLabelValues("exchange_rate", "throttled")), 1e-9)
}

func TestRecorder_QuoteGauges(t *testing.T) {
	r := New(prometheus.NewRegistry())
	inst := provider.NewInstrument("BTC", "USD")

	r.RecordQuote(inst, 101, 2)
	r.RecordQuote(inst, 102, math.NaN())

	require.InDelta(t, 102.0, testutil.ToFloat64(r.lastPrice.WithLabelValues("BTC/USD")), 1e-9)
	require.InDelta(t, 2.0, testutil.ToFloat64(r.spreadPct.WithLabelValues("BTC/USD")), 1e-9)
}

func TestRecorder_Skips(t *testing.T) {
	r := New(nil)
	r.RecordSkip("throttled")
	r.RecordCycle()
	require.InDelta(t, 1.0, testutil.ToFloat64(r.cycleSkips.WithLabelValues("throttled")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(r.cycles), 1e-9)
}
