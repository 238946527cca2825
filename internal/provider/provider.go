package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Instrument identifies a market by base symbol and quote currency, e.g. BTC/USD.
type Instrument struct {
	Base  string `json:"base" yaml:"base"`
	Quote string `json:"quote" yaml:"quote"`
}

// NewInstrument upper-cases and trims both symbols.
func NewInstrument(base, quote string) Instrument {
	return Instrument{
		Base:  strings.ToUpper(strings.TrimSpace(base)),
		Quote: strings.ToUpper(strings.TrimSpace(quote)),
	}
}

// ParseInstrument accepts "BTC/USD", "BTC-USD" or a bare "BTC" (quoted in defaultQuote).
func ParseInstrument(s, defaultQuote string) (Instrument, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Instrument{}, fmt.Errorf("empty instrument")
	}
	sep := strings.IndexAny(s, "/-")
	if sep < 0 {
		if strings.TrimSpace(defaultQuote) == "" {
			return Instrument{}, fmt.Errorf("instrument %q has no quote currency", s)
		}
		return NewInstrument(s, defaultQuote), nil
	}
	base, quote := s[:sep], s[sep+1:]
	if strings.TrimSpace(base) == "" || strings.TrimSpace(quote) == "" {
		return Instrument{}, fmt.Errorf("malformed instrument %q", s)
	}
	return NewInstrument(base, quote), nil
}

func (i Instrument) String() string { return i.Base + "/" + i.Quote }

// EndpointKind selects which provider endpoint a query hits.
type EndpointKind int

const (
	ExchangeRate EndpointKind = iota + 1
	Intraday
	Daily
)

// Function is the provider's "function" query parameter for the endpoint.
func (k EndpointKind) Function() string {
	switch k {
	case ExchangeRate:
		return "CURRENCY_EXCHANGE_RATE"
	case Intraday:
		return "CRYPTO_INTRADAY"
	case Daily:
		return "DIGITAL_CURRENCY_DAILY"
	}
	return ""
}

// SuccessKey is the top-level key present in a successful payload.
// Exact, case- and spacing-sensitive.
func (k EndpointKind) SuccessKey() string {
	switch k {
	case ExchangeRate:
		return "Realtime Currency Exchange Rate"
	case Intraday:
		return "Time Series Crypto"
	case Daily:
		return "Time Series (Digital Currency Daily)"
	}
	return ""
}

// FileSuffix names the endpoint in persisted artifacts ({symbol}_{suffix}.json).
func (k EndpointKind) FileSuffix(p Params) string {
	switch k {
	case ExchangeRate:
		return "exchange_rate"
	case Intraday:
		if p.Interval != "" {
			return "intraday_" + p.Interval
		}
		return "intraday"
	case Daily:
		return "daily"
	}
	return "unknown"
}

func (k EndpointKind) String() string {
	switch k {
	case ExchangeRate:
		return "exchange_rate"
	case Intraday:
		return "intraday"
	case Daily:
		return "daily"
	}
	return fmt.Sprintf("EndpointKind(%d)", int(k))
}

// Params carries endpoint-specific query parameters.
type Params struct {
	// Interval is the intraday bar granularity, e.g. "5min".
	Interval string
}

// Payload is the loosely-typed JSON object returned by the provider.
type Payload map[string]any

// Outcome classifies a provider response.
type Outcome int

const (
	MalformedOrMissing Outcome = iota
	Success
	Throttled
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Throttled:
		return "throttled"
	default:
		return "malformed_or_missing"
	}
}

// Response is the classified result of exactly one provider call.
// Payload and Raw are set only when Outcome is Success; Raw keeps the body
// bytes so key order survives for series and persistence. Message carries
// the provider's advisory text for throttled or error envelopes.
type Response struct {
	Kind       EndpointKind
	Instrument Instrument
	Params     Params
	Outcome    Outcome
	Payload    Payload
	Raw        json.RawMessage
	Message    string
	Err        error
}

// Quote is a normalized point-in-time record for one instrument.
// bid <= price <= ask is not guaranteed by the provider.
type Quote struct {
	BaseSymbol    string    `json:"base_symbol"`
	BaseName      string    `json:"base_name"`
	QuoteSymbol   string    `json:"quote_symbol"`
	QuoteName     string    `json:"quote_name"`
	Price         float64   `json:"price"`
	Bid           float64   `json:"bid"`
	Ask           float64   `json:"ask"`
	LastRefreshed time.Time `json:"last_refreshed"`
	TimeZone      string    `json:"timezone"`
}

// Instrument returns the pair the quote was issued for.
func (q Quote) Instrument() Instrument { return NewInstrument(q.BaseSymbol, q.QuoteSymbol) }

// Bar is one OHLCV entry of a time series.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Series is an ordered run of bars, kept in provider order (most recent first).
type Series struct {
	Instrument    Instrument   `json:"instrument"`
	Kind          EndpointKind `json:"-"`
	Interval      string       `json:"interval,omitempty"`
	LastRefreshed string       `json:"last_refreshed,omitempty"`
	TimeZone      string       `json:"timezone,omitempty"`
	Bars          []Bar        `json:"bars"`
}

// First returns a copy of the first n bars in provider order.
func (s Series) First(n int) []Bar {
	if n <= 0 {
		return []Bar{}
	}
	if n > len(s.Bars) {
		n = len(s.Bars)
	}
	out := make([]Bar, n)
	copy(out, s.Bars[:n])
	return out
}

// Provider issues one classified query per call. Implementations must not
// return Go errors past this boundary; failures are reported in Response.
type Provider interface {
	Name() string
	Query(ctx context.Context, kind EndpointKind, inst Instrument, params Params) Response
}
