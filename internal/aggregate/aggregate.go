package aggregate

import (
	"time"

	"marketwatch/internal/indicator"
	"marketwatch/internal/provider"
)

// Summary totals the prices of a set of quotes.
type Summary struct {
	Count   int     `json:"count"`
	Total   float64 `json:"total"`
	Average float64 `json:"average"`
}

// Summarize adds up quote prices. An empty input yields a zero Summary,
// never a division by zero.
func Summarize(quotes []provider.Quote) Summary {
	s := Summary{Count: len(quotes)}
	if s.Count == 0 {
		return s
	}
	for _, q := range quotes {
		s.Total += q.Price
	}
	s.Average = s.Total / float64(s.Count)
	return s
}

// Row is one line of the comparison table.
type Row struct {
	Instrument provider.Instrument `json:"instrument"`
	Name       string              `json:"name"`
	Price      float64             `json:"price"`
	Bid        float64             `json:"bid"`
	Ask        float64             `json:"ask"`
	Metrics    indicator.Metrics   `json:"metrics"`
	Refreshed  time.Time           `json:"last_refreshed"`
	TimeZone   string              `json:"timezone"`
}

// Compare builds comparison rows in input order. previous holds the last
// known price per instrument; a missing entry means no change baseline.
func Compare(quotes []provider.Quote, previous map[provider.Instrument]float64) []Row {
	rows := make([]Row, 0, len(quotes))
	for _, q := range quotes {
		inst := q.Instrument()
		rows = append(rows, Row{
			Instrument: inst,
			Name:       q.BaseName,
			Price:      q.Price,
			Bid:        q.Bid,
			Ask:        q.Ask,
			Metrics:    indicator.Compute(q, previous[inst]),
			Refreshed:  q.LastRefreshed,
			TimeZone:   q.TimeZone,
		})
	}
	return rows
}

// LatestByInstrument keeps the most recently refreshed quote per instrument.
// For equal timestamps the later input wins. Output follows first appearance.
func LatestByInstrument(quotes []provider.Quote) []provider.Quote {
	index := make(map[provider.Instrument]int, len(quotes))
	out := make([]provider.Quote, 0, len(quotes))
	for _, q := range quotes {
		inst := q.Instrument()
		i, ok := index[inst]
		if !ok {
			index[inst] = len(out)
			out = append(out, q)
			continue
		}
		if !q.LastRefreshed.Before(out[i].LastRefreshed) {
			out[i] = q
		}
	}
	return out
}
