package betting

import (
	"math"
	"math/rand/v2"
)

// DefaultSeed reproduces the same board on every run.
const DefaultSeed = 42

var (
	fixtures = [][2]string{
		{"Arsenal", "Man City"}, {"Real Madrid", "Barcelona"},
		{"Inter Milan", "AC Milan"}, {"Bayern", "Dortmund"},
		{"PSG", "Marseille"}, {"Liverpool", "Chelsea"},
		{"Atletico", "Sevilla"}, {"Napoli", "Juventus"},
		{"Leipzig", "Leverkusen"}, {"Monaco", "Lyon"},
	}
	leagues    = []string{"EPL", "LaLiga", "SerieA", "Bund", "L1"}
	markets    = []string{"Home Win", "Draw", "Away Win", "Over 2.5", "BTTS Yes"}
	bookmakers = []string{"Bet365", "Pinnacle", "Betfair"}
)

// Generate builds n synthetic markets from seed, sorted by EV descending.
// The same seed always yields the same markets.
func Generate(seed uint64, n int) []Market {
	if n <= 0 {
		return []Market{}
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	uniform := func(lo, hi float64) float64 { return lo + rng.Float64()*(hi-lo) }
	pick := func(xs []string) string { return xs[rng.IntN(len(xs))] }

	out := make([]Market, 0, n)
	for range n {
		pair := fixtures[rng.IntN(len(fixtures))]
		model := uniform(0.25, 0.75)
		implied := clamp(model+uniform(-0.15, 0.15), 0.1, 0.9)
		out = append(out, Market{
			Home:             pair[0],
			Away:             pair[1],
			ModelProbability: model,
			Odds:             round(1/implied, 2),
			HomeXG:           round(uniform(0.8, 2.8), 1),
			AwayXG:           round(uniform(0.8, 2.8), 1),
			HoursToKickoff:   1 + rng.IntN(72),
			League:           pick(leagues),
			Market:           pick(markets),
			Bookmaker:        pick(bookmakers),
		})
	}
	SortByEV(out)
	return out
}

func clamp(v, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, v)) }

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
