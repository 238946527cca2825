// Package indicator derives spread, mid price, spread trend and change
// percentage from a normalized quote. Everything here is pure and recomputed
// from its inputs on every call.
package indicator

import (
	"encoding/json"
	"fmt"
	"math"

	"marketwatch/internal/provider"
)

// ErrDivisionUndefined is returned when a denominator is zero.
var ErrDivisionUndefined = provider.ErrDivisionUndefined

// Spread-percentage bands, in percent.
const (
	TightBelow  = 0.01
	NormalBelow = 0.05
)

// Trend classifies a bid/ask spread percentage.
type Trend int

const (
	TrendUndefined Trend = iota
	Tight
	Normal
	Wide
)

func (t Trend) String() string {
	switch t {
	case Tight:
		return "tight"
	case Normal:
		return "normal"
	case Wide:
		return "wide"
	default:
		return "undefined"
	}
}

// MarshalText renders the trend by name in JSON and YAML.
func (t Trend) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Spread is ask − bid. It may be negative; nothing here enforces bid <= ask.
func Spread(bid, ask float64) float64 { return ask - bid }

// SpreadPercentage is (ask − bid) / bid × 100. A zero bid yields NaN and
// ErrDivisionUndefined.
func SpreadPercentage(bid, ask float64) (float64, error) {
	if bid == 0 {
		return math.NaN(), fmt.Errorf("spread percentage with zero bid: %w", ErrDivisionUndefined)
	}
	return (ask - bid) / bid * 100, nil
}

// MidPrice is the arithmetic mean of bid and ask.
func MidPrice(bid, ask float64) float64 { return (bid + ask) / 2 }

// Classify maps a spread percentage onto a trend band. Bands are half-open:
// exactly 0.01 is Normal and exactly 0.05 is Wide.
func Classify(pct float64) Trend {
	switch {
	case math.IsNaN(pct):
		return TrendUndefined
	case pct < TightBelow:
		return Tight
	case pct < NormalBelow:
		return Normal
	default:
		return Wide
	}
}

// TrendOf classifies the spread between bid and ask.
func TrendOf(bid, ask float64) Trend {
	pct, err := SpreadPercentage(bid, ask)
	if err != nil {
		return TrendUndefined
	}
	return Classify(pct)
}

// ChangePercentage is (current − previous) / previous × 100, and 0 when
// there is no previous value to compare against.
func ChangePercentage(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

// Metrics bundles the derived values for one quote.
type Metrics struct {
	Spread           float64 `json:"spread"`
	SpreadPercentage float64 `json:"spread_pct"`
	MidPrice         float64 `json:"mid_price"`
	Trend            Trend   `json:"trend"`
	ChangePercentage float64 `json:"change_pct"`
	// SpreadDefined is false when the bid was zero and SpreadPercentage is NaN.
	SpreadDefined bool `json:"spread_defined"`
}

// MarshalJSON writes an undefined spread percentage as null; encoding/json
// rejects NaN.
func (m Metrics) MarshalJSON() ([]byte, error) {
	type plain Metrics
	out := struct {
		plain
		SpreadPercentage *float64 `json:"spread_pct"`
	}{plain: plain(m)}
	if m.SpreadDefined {
		pct := m.SpreadPercentage
		out.SpreadPercentage = &pct
	}
	return json.Marshal(out)
}

// Compute derives every metric for q against a previous price (0 when unknown).
func Compute(q provider.Quote, previous float64) Metrics {
	m := Metrics{
		Spread:           Spread(q.Bid, q.Ask),
		MidPrice:         MidPrice(q.Bid, q.Ask),
		ChangePercentage: ChangePercentage(q.Price, previous),
	}
	pct, err := SpreadPercentage(q.Bid, q.Ask)
	m.SpreadPercentage = pct
	if err == nil {
		m.SpreadDefined = true
		m.Trend = Classify(pct)
	}
	return m
}
