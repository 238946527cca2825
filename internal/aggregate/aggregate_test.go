package aggregate

import (
	"testing"
	"time"

	"marketwatch/internal/indicator"
	"marketwatch/internal/provider"
)

func TestSummarize_EmptyIsZero(t *testing.T) {
	got := Summarize(nil)
	if got != (Summary{}) {
		t.Fatalf("want zero summary, got %+v", got)
	}
}

func TestSummarize_TotalsAndAverage(t *testing.T) {
	in := []provider.Quote{
		{BaseSymbol: "BTC", QuoteSymbol: "USD", Price: 100},
		{BaseSymbol: "ETH", QuoteSymbol: "USD", Price: 50},
		{BaseSymbol: "SOL", QuoteSymbol: "USD", Price: 30},
	}

	got := Summarize(in)
	if got.Count != 3 || got.Total != 180 || got.Average != 60 {
		t.Fatalf("unexpected summary: %+v", got)
	}
}

func TestCompare_OrderAndBaseline(t *testing.T) {
	btc := provider.Quote{BaseSymbol: "BTC", BaseName: "Bitcoin", QuoteSymbol: "USD", Price: 110, Bid: 100, Ask: 102}
	eth := provider.Quote{BaseSymbol: "ETH", BaseName: "Ethereum", QuoteSymbol: "USD", Price: 90, Bid: 0, Ask: 1}
	previous := map[provider.Instrument]float64{provider.NewInstrument("BTC", "USD"): 100}

	rows := Compare([]provider.Quote{eth, btc}, previous)
	if len(rows) != 2 {
		t.Fatalf("want 2 rows, got %d", len(rows))
	}
	if rows[0].Instrument.Base != "ETH" || rows[1].Instrument.Base != "BTC" {
		t.Fatalf("input order not preserved: %+v", rows)
	}
	if rows[0].Metrics.ChangePercentage != 0 || rows[0].Metrics.Trend != indicator.TrendUndefined {
		t.Fatalf("unexpected ETH metrics: %+v", rows[0].Metrics)
	}
	if d := rows[1].Metrics.ChangePercentage - 10; d > 1e-9 || d < -1e-9 {
		t.Fatalf("want +10%% change for BTC, got %v", rows[1].Metrics.ChangePercentage)
	}
	if rows[1].Name != "Bitcoin" || rows[1].Metrics.MidPrice != 101 {
		t.Fatalf("unexpected BTC row: %+v", rows[1])
	}
}

func TestLatestByInstrument_NewestWins(t *testing.T) {
	t1 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	in := []provider.Quote{
		{BaseSymbol: "BTC", QuoteSymbol: "USD", Price: 10, LastRefreshed: t2},
		{BaseSymbol: "ETH", QuoteSymbol: "USD", Price: 5, LastRefreshed: t1},
		{BaseSymbol: "BTC", QuoteSymbol: "USD", Price: 9, LastRefreshed: t1},
		{BaseSymbol: "ETH", QuoteSymbol: "USD", Price: 6, LastRefreshed: t1},
	}

	out := LatestByInstrument(in)
	if len(out) != 2 {
		t.Fatalf("want 2, got %d: %+v", len(out), out)
	}
	if out[0].BaseSymbol != "BTC" || out[0].Price != 10 {
		t.Fatalf("older BTC quote replaced newer one: %+v", out[0])
	}
	if out[1].BaseSymbol != "ETH" || out[1].Price != 6 {
		t.Fatalf("equal timestamps should let later input win: %+v", out[1])
	}
}
