// Package report renders quotes, series and betting boards as plain-text
// console tables.
package report

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"marketwatch/internal/aggregate"
	"marketwatch/internal/betting"
	"marketwatch/internal/indicator"
	"marketwatch/internal/provider"
)

const (
	ruleWidth   = 70
	cardWidth   = 68
	tableWidth  = 90
	noDataShown = "No data available."
)

// Renderer writes report sections to w.
type Renderer struct {
	w   io.Writer
	now func() time.Time
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithClock sets the time source used for "as of" stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a Renderer writing to w.
func New(w io.Writer, opts ...Option) *Renderer {
	r := &Renderer{w: w, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Price formats a monetary value with thousands separators and two decimals.
func Price(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	if v < 0 {
		return "-$" + humanize.FormatFloat("#,###.##", -v)
	}
	return "$" + humanize.FormatFloat("#,###.##", v)
}

// Percent formats a percentage with the given number of decimals, or n/a when undefined.
func Percent(v float64, decimals int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.*f%%", decimals, v)
}

// Signed formats a fraction as a signed percentage, e.g. 0.1 -> "+10.0%".
func Signed(fraction float64) string {
	sign := ""
	if fraction > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.1f%%", sign, fraction*100)
}

// Header prints a titled banner with the current time.
func (r *Renderer) Header(title string) {
	r.rule('=', ruleWidth)
	fmt.Fprintln(r.w, title)
	r.rule('=', ruleWidth)
	fmt.Fprintf(r.w, "As of: %s\n", r.now().Format(time.DateTime))
	r.rule('=', ruleWidth)
}

// Cards prints one detail card per row. An empty input prints a notice.
func (r *Renderer) Cards(rows []aggregate.Row) {
	if len(rows) == 0 {
		fmt.Fprintln(r.w, noDataShown)
		return
	}
	for i, row := range rows {
		if i > 0 {
			fmt.Fprintln(r.w)
		}
		r.card(row)
	}
}

func (r *Renderer) card(row aggregate.Row) {
	border := strings.Repeat("-", cardWidth)
	line := func(label, value string) {
		fmt.Fprintf(r.w, "| %-18s %-*s |\n", label, cardWidth-22, value)
	}
	fmt.Fprintf(r.w, "+%s+\n", border)
	fmt.Fprintf(r.w, "| %-10s %-*s |\n", row.Instrument.Base, cardWidth-13, row.Name)
	fmt.Fprintf(r.w, "+%s+\n", border)
	line("Price:", Price(row.Price))
	line("Bid:", Price(row.Bid))
	line("Ask:", Price(row.Ask))
	line("Mid price:", Price(row.Metrics.MidPrice))
	fmt.Fprintf(r.w, "+%s+\n", border)
	line("Spread:", fmt.Sprintf("%s (%s)", Price(row.Metrics.Spread), Percent(row.Metrics.SpreadPercentage, 4)))
	line("Trend:", TrendLabel(row.Metrics.Trend))
	if row.Metrics.ChangePercentage != 0 {
		line("Change:", Percent(row.Metrics.ChangePercentage, 2))
	}
	fmt.Fprintf(r.w, "+%s+\n", border)
	line("Updated:", strings.TrimSpace(row.Refreshed.Format(time.DateTime)+" "+row.TimeZone))
	fmt.Fprintf(r.w, "+%s+\n", border)
}

// Comparison prints the side-by-side comparison table.
func (r *Renderer) Comparison(rows []aggregate.Row) {
	fmt.Fprintln(r.w)
	r.rule('=', tableWidth)
	fmt.Fprintln(r.w, "COMPARISON")
	r.rule('=', tableWidth)
	if len(rows) == 0 {
		fmt.Fprintln(r.w, noDataShown)
		r.rule('=', tableWidth)
		return
	}
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Symbol\tName\tPrice\tBid\tAsk\tSpread %\tTrend\t")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			row.Instrument.Base, row.Name, Price(row.Price), Price(row.Bid), Price(row.Ask),
			Percent(row.Metrics.SpreadPercentage, 4), TrendLabel(row.Metrics.Trend))
	}
	tw.Flush()
	r.rule('=', tableWidth)
}

// Summary prints the market summary block.
func (r *Renderer) Summary(s aggregate.Summary) {
	fmt.Fprintln(r.w)
	r.rule('=', ruleWidth)
	fmt.Fprintln(r.w, "MARKET SUMMARY")
	r.rule('=', ruleWidth)
	fmt.Fprintf(r.w, "Instruments tracked: %d\n", s.Count)
	fmt.Fprintf(r.w, "Combined value:      %s\n", Price(s.Total))
	fmt.Fprintf(r.w, "Average price:       %s\n", Price(s.Average))
	fmt.Fprintf(r.w, "Queried at:          %s\n", r.now().Format(time.DateTime))
	r.rule('=', ruleWidth)
}

// Series prints up to limit bars in provider order.
func (r *Renderer) Series(s provider.Series, limit int) {
	bars := s.First(limit)
	fmt.Fprintln(r.w)
	r.rule('=', ruleWidth)
	fmt.Fprintf(r.w, "%s %s (latest %d)\n", s.Instrument, strings.ToUpper(s.Kind.String()), len(bars))
	r.rule('=', ruleWidth)
	if s.Interval != "" {
		fmt.Fprintf(r.w, "Interval: %s\n", s.Interval)
	}
	fmt.Fprintf(r.w, "Last refreshed: %s\n", orNA(s.LastRefreshed))
	r.rule('-', ruleWidth)
	if len(bars) == 0 {
		fmt.Fprintln(r.w, noDataShown)
		r.rule('=', ruleWidth)
		return
	}
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Time\tOpen\tHigh\tLow\tClose\tVolume\t")
	for _, b := range bars {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			b.Timestamp.Format(time.DateTime), Price(b.Open), Price(b.High), Price(b.Low), Price(b.Close),
			humanize.FormatFloat("#,###.##", b.Volume))
	}
	tw.Flush()
	r.rule('=', ruleWidth)
}

// Extraction prints what a fetch cycle produced.
func (r *Renderer) Extraction(quotes, wanted int, series []string, files []string) {
	fmt.Fprintln(r.w)
	r.rule('=', ruleWidth)
	fmt.Fprintln(r.w, "EXTRACTION SUMMARY")
	r.rule('=', ruleWidth)
	fmt.Fprintf(r.w, "Exchange rates fetched: %d/%d\n", quotes, wanted)
	if len(series) == 0 {
		fmt.Fprintln(r.w, "Series fetched: none")
	} else {
		fmt.Fprintf(r.w, "Series fetched: %s\n", strings.Join(series, ", "))
	}
	if len(files) > 0 {
		fmt.Fprintln(r.w, "\nFiles written:")
		for _, f := range files {
			fmt.Fprintf(r.w, "  - %s\n", f)
		}
	}
	r.rule('=', ruleWidth)
}

// Board prints the betting header stats.
func (r *Renderer) Board(b betting.Board) {
	r.rule('=', tableWidth)
	fmt.Fprintln(r.w, "LIVE MARKET WATCH")
	fmt.Fprintf(r.w, "Markets: %d | +EV: %d | High Value: %d | Avg EV: %s\n",
		b.Count, b.Positive, b.HighValue, Signed(b.AverageEV))
	r.rule('=', tableWidth)
}

// Markets prints the full market table in the order given.
func (r *Renderer) Markets(markets []betting.Market) {
	if len(markets) == 0 {
		fmt.Fprintln(r.w, noDataShown)
		return
	}
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tMatch\tLeague\tMarket\tModel\tOdds\tEV\txG\tKickoff\t")
	for _, m := range markets {
		ev := m.EV()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f%%\t%.2f\t%s\t%.1f-%.1f\t%s\t\n",
			marker(ev), m.Match(), m.League, m.Market, m.ModelProbability*100, m.Odds,
			Signed(ev), m.HomeXG, m.AwayXG, kickoff(m.HoursToKickoff))
	}
	tw.Flush()
	fmt.Fprintln(r.w, "Legend: * high value (>5%)  + positive EV  . negative EV")
}

// ValueBets prints the markets whose EV is at least minEV.
func (r *Renderer) ValueBets(markets []betting.Market, minEV float64) {
	value := betting.FilterValue(markets, minEV)
	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "VALUE BETS (EV >= %.0f%%)\n", minEV*100)
	r.rule('-', ruleWidth)
	if len(value) == 0 {
		fmt.Fprintln(r.w, "No value bets found")
		return
	}
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Match\tMarket\tModel\tOdds\tEV\t")
	for _, m := range value {
		fmt.Fprintf(tw, "%s v %s\t%s\t%.1f%%\t%.2f\t%s\t\n",
			truncate(m.Home, 8), truncate(m.Away, 8), m.Market, m.ModelProbability*100, m.Odds, Signed(m.EV()))
	}
	tw.Flush()
}

func (r *Renderer) rule(ch byte, n int) {
	fmt.Fprintln(r.w, strings.Repeat(string(ch), n))
}

func marker(ev float64) string {
	switch betting.Rate(ev) {
	case betting.HighValue:
		return "*"
	case betting.Value:
		return "+"
	default:
		return "."
	}
}

func kickoff(hours int) string {
	if hours < 12 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dd", hours/24)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// TrendLabel renders a trend for human readers.
func TrendLabel(t indicator.Trend) string {
	switch t {
	case indicator.Tight:
		return "Very tight"
	case indicator.Normal:
		return "Normal"
	case indicator.Wide:
		return "Wide"
	default:
		return "Undefined"
	}
}
