package metrics

import (
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"marketwatch/internal/provider"
)

// Recorder exports pipeline activity to Prometheus.
type Recorder struct {
	responses  *prometheus.CounterVec
	gateWait   prometheus.Histogram
	latency    *prometheus.HistogramVec
	lastPrice  *prometheus.GaugeVec
	spreadPct  *prometheus.GaugeVec
	cycles     prometheus.Counter
	cycleSkips *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketwatch_provider_responses_total",
				Help: "Provider responses by endpoint and classified outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		gateWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "marketwatch_gate_wait_seconds",
				Help:    "Time spent blocked on the request pacing gate",
				Buckets: []float64{0, 0.05, 0.1, 0.25, 0.5, 1, 1.5, 2, 5},
			},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketwatch_provider_request_duration_seconds",
				Help:    "Round-trip time of provider requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		lastPrice: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketwatch_last_price",
				Help: "Last accepted price per instrument",
			},
			[]string{"instrument"},
		),
		spreadPct: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketwatch_spread_percentage",
				Help: "Last bid/ask spread as a percentage of bid",
			},
			[]string{"instrument"},
		),
		cycles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "marketwatch_cycles_total",
				Help: "Completed acquisition cycles",
			},
		),
		cycleSkips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketwatch_instrument_skips_total",
				Help: "Instruments skipped in a cycle, by reason",
			},
			[]string{"reason"},
		),
	}
	if reg != nil {
		reg.MustRegister(r.responses, r.gateWait, r.latency, r.lastPrice, r.spreadPct, r.cycles, r.cycleSkips)
	}
	return r
}

// ObserveRequest records one classified provider round trip.
func (r *Recorder) ObserveRequest(kind provider.EndpointKind, outcome provider.Outcome, wait, latency time.Duration) {
	r.responses.WithLabelValues(kind.String(), outcome.String()).Inc()
	r.gateWait.Observe(wait.Seconds())
	r.latency.WithLabelValues(kind.String()).Observe(latency.Seconds())
}

// RecordQuote updates the per-instrument gauges. A NaN spread is not exported.
func (r *Recorder) RecordQuote(inst provider.Instrument, price, spreadPct float64) {
	r.lastPrice.WithLabelValues(inst.String()).Set(price)
	if !math.IsNaN(spreadPct) {
		r.spreadPct.WithLabelValues(inst.String()).Set(spreadPct)
	}
}

// RecordSkip counts an instrument dropped from a cycle.
func (r *Recorder) RecordSkip(reason string) { r.cycleSkips.WithLabelValues(reason).Inc() }

// RecordCycle counts a finished cycle.
func (r *Recorder) RecordCycle() { r.cycles.Inc() }
