// Package betting computes implied probability and expected value for
// sports-betting markets and ranks them.
package betting

import (
	"fmt"
	"sort"

	"marketwatch/internal/provider"
)

// EV thresholds. An EV of exactly HighValueAbove is Value, not HighValue.
const (
	ValueAbove     = 0.0
	HighValueAbove = 0.05
)

// ImpliedProbability converts decimal odds into the bookmaker's implied probability.
func ImpliedProbability(odds float64) (float64, error) {
	if odds == 0 {
		return 0, fmt.Errorf("implied probability with zero odds: %w", provider.ErrDivisionUndefined)
	}
	return 1 / odds, nil
}

// ExpectedValue is the return per unit staked: p × odds − 1.
func ExpectedValue(modelProbability, odds float64) float64 {
	return modelProbability*odds - 1
}

// IsValue reports a positive expected value.
func IsValue(ev float64) bool { return ev > ValueAbove }

// IsHighValue reports an expected value strictly above 5%.
func IsHighValue(ev float64) bool { return ev > HighValueAbove }

// Rating buckets a market by expected value.
type Rating int

const (
	NoValue Rating = iota
	Value
	HighValue
)

func (r Rating) String() string {
	switch r {
	case HighValue:
		return "high_value"
	case Value:
		return "value"
	default:
		return "no_value"
	}
}

// Rate maps an expected value onto a Rating.
func Rate(ev float64) Rating {
	switch {
	case IsHighValue(ev):
		return HighValue
	case IsValue(ev):
		return Value
	default:
		return NoValue
	}
}

// Valuation is derived from a Market on demand and never stored on it.
type Valuation struct {
	ImpliedProbability float64
	ExpectedValue      float64
	Rating             Rating
}

// Market is one priced outcome of a fixture.
type Market struct {
	Home             string
	Away             string
	League           string
	Market           string
	ModelProbability float64
	Odds             float64
	Bookmaker        string
	HomeXG           float64
	AwayXG           float64
	// HoursToKickoff is the time until the event starts.
	HoursToKickoff int
}

// Match renders the fixture as "Home vs Away".
func (m Market) Match() string { return m.Home + " vs " + m.Away }

// EV is the expected value of backing this market at its odds.
func (m Market) EV() float64 { return ExpectedValue(m.ModelProbability, m.Odds) }

// Evaluate derives the market's valuation. Zero odds leave the implied
// probability at 0 and surface ErrDivisionUndefined.
func (m Market) Evaluate() (Valuation, error) {
	ev := m.EV()
	v := Valuation{ExpectedValue: ev, Rating: Rate(ev)}
	implied, err := ImpliedProbability(m.Odds)
	if err != nil {
		return v, err
	}
	v.ImpliedProbability = implied
	return v, nil
}

// SortByEV orders markets by expected value, highest first. Ties keep input order.
func SortByEV(markets []Market) {
	sort.SliceStable(markets, func(i, j int) bool { return markets[i].EV() > markets[j].EV() })
}

// FilterValue returns the markets whose EV is at least minEV, in input order.
func FilterValue(markets []Market, minEV float64) []Market {
	out := make([]Market, 0, len(markets))
	for _, m := range markets {
		if m.EV() >= minEV {
			out = append(out, m)
		}
	}
	return out
}

// Board is the header summary of a set of markets.
type Board struct {
	Count     int
	Positive  int
	HighValue int
	AverageEV float64
}

// Summarize counts positive and high-value markets and averages EV.
// An empty set averages to 0.
func Summarize(markets []Market) Board {
	b := Board{Count: len(markets)}
	if b.Count == 0 {
		return b
	}
	var total float64
	for _, m := range markets {
		ev := m.EV()
		total += ev
		if IsValue(ev) {
			b.Positive++
		}
		if IsHighValue(ev) {
			b.HighValue++
		}
	}
	b.AverageEV = total / float64(b.Count)
	return b
}
