package alphavantage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"marketwatch/internal/provider"
)

// Exchange-rate envelope fields.
const (
	fieldFromCode      = "1. From_Currency Code"
	fieldFromName      = "2. From_Currency Name"
	fieldToCode        = "3. To_Currency Code"
	fieldToName        = "4. To_Currency Name"
	fieldRate          = "5. Exchange Rate"
	fieldLastRefreshed = "6. Last Refreshed"
	fieldTimeZone      = "7. Time Zone"
	fieldBid           = "8. Bid Price"
	fieldAsk           = "9. Ask Price"
)

const (
	metaKey        = "Meta Data"
	timestampLong  = "2006-01-02 15:04:05"
	timestampShort = "2006-01-02"
)

// NormalizeQuote extracts a Quote from a successful exchange-rate payload.
// Every field is required; an absent, mistyped or unparsable field is an
// ErrSchemaMismatch, never a zero value.
func NormalizeQuote(p provider.Payload) (provider.Quote, error) {
	raw, ok := p[provider.ExchangeRate.SuccessKey()]
	if !ok || raw == nil {
		return provider.Quote{}, fmt.Errorf("%w: missing %q", provider.ErrSchemaMismatch, provider.ExchangeRate.SuccessKey())
	}
	rate, ok := raw.(map[string]any)
	if !ok {
		return provider.Quote{}, fmt.Errorf("%w: %q is %T, not an object", provider.ErrSchemaMismatch, provider.ExchangeRate.SuccessKey(), raw)
	}

	var (
		q   provider.Quote
		err error
	)
	if q.BaseSymbol, err = requireValue[string](rate, fieldFromCode); err != nil {
		return provider.Quote{}, err
	}
	if q.BaseName, err = requireValue[string](rate, fieldFromName); err != nil {
		return provider.Quote{}, err
	}
	if q.QuoteSymbol, err = requireValue[string](rate, fieldToCode); err != nil {
		return provider.Quote{}, err
	}
	if q.QuoteName, err = requireValue[string](rate, fieldToName); err != nil {
		return provider.Quote{}, err
	}
	if q.Price, err = requireNumber(rate, fieldRate); err != nil {
		return provider.Quote{}, err
	}
	if q.Bid, err = requireNumber(rate, fieldBid); err != nil {
		return provider.Quote{}, err
	}
	if q.Ask, err = requireNumber(rate, fieldAsk); err != nil {
		return provider.Quote{}, err
	}
	if q.TimeZone, err = requireValue[string](rate, fieldTimeZone); err != nil {
		return provider.Quote{}, err
	}
	refreshed, err := requireValue[string](rate, fieldLastRefreshed)
	if err != nil {
		return provider.Quote{}, err
	}
	if q.LastRefreshed, err = parseTimestamp(refreshed, q.TimeZone); err != nil {
		return provider.Quote{}, fmt.Errorf("%w: %q: %v", provider.ErrSchemaMismatch, fieldLastRefreshed, err)
	}
	return q, nil
}

// NormalizeSeries extracts an intraday or daily series from the raw success
// body. Bars keep the order the provider wrote them in (most recent first);
// nothing is re-sorted.
func NormalizeSeries(kind provider.EndpointKind, inst provider.Instrument, raw []byte) (provider.Series, error) {
	if kind != provider.Intraday && kind != provider.Daily {
		return provider.Series{}, fmt.Errorf("%w: %s is not a series endpoint", provider.ErrSchemaMismatch, kind)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return provider.Series{}, fmt.Errorf("%w: decoding series: %v", provider.ErrSchemaMismatch, err)
	}
	seriesRaw, ok := top[kind.SuccessKey()]
	if !ok {
		return provider.Series{}, fmt.Errorf("%w: missing %q", provider.ErrSchemaMismatch, kind.SuccessKey())
	}

	s := provider.Series{Instrument: inst, Kind: kind}
	if metaRaw, ok := top[metaKey]; ok {
		var meta map[string]any
		if err := json.Unmarshal(metaRaw, &meta); err == nil {
			s.Interval = metaValue(meta, "Interval")
			s.LastRefreshed = metaValue(meta, "Last Refreshed")
			s.TimeZone = metaValue(meta, "Time Zone")
			if code, market := metaValue(meta, "Digital Currency Code"), metaValue(meta, "Market Code"); code != "" && market != "" {
				s.Instrument = provider.NewInstrument(code, market)
			}
		}
	}

	keys, values, err := orderedObject(seriesRaw)
	if err != nil {
		return provider.Series{}, fmt.Errorf("%w: %q: %v", provider.ErrSchemaMismatch, kind.SuccessKey(), err)
	}

	loc := location(s.TimeZone)
	s.Bars = make([]provider.Bar, 0, len(keys))
	for _, ts := range keys {
		var fields map[string]any
		if err := json.Unmarshal(values[ts], &fields); err != nil {
			return provider.Series{}, fmt.Errorf("%w: bar %s: %v", provider.ErrSchemaMismatch, ts, err)
		}
		bar, err := normalizeBar(fields, s.Instrument.Quote)
		if err != nil {
			return provider.Series{}, fmt.Errorf("bar %s: %w", ts, err)
		}
		if bar.Timestamp, err = parseTimestampIn(ts, loc); err != nil {
			return provider.Series{}, fmt.Errorf("%w: bar timestamp %q: %v", provider.ErrSchemaMismatch, ts, err)
		}
		s.Bars = append(s.Bars, bar)
	}
	return s, nil
}

func normalizeBar(fields map[string]any, market string) (provider.Bar, error) {
	var (
		b   provider.Bar
		err error
	)
	if b.Open, err = barNumber(fields, "1. open", "1a. open ("+market+")"); err != nil {
		return b, err
	}
	if b.High, err = barNumber(fields, "2. high", "2a. high ("+market+")"); err != nil {
		return b, err
	}
	if b.Low, err = barNumber(fields, "3. low", "3a. low ("+market+")"); err != nil {
		return b, err
	}
	if b.Close, err = barNumber(fields, "4. close", "4a. close ("+market+")"); err != nil {
		return b, err
	}
	if b.Volume, err = barNumber(fields, "5. volume"); err != nil {
		return b, err
	}
	return b, nil
}

// barNumber reads the first key present; the daily endpoint has used
// market-suffixed names ("1a. open (USD)") alongside the plain ones.
func barNumber(fields map[string]any, keys ...string) (float64, error) {
	for _, k := range keys {
		if _, ok := fields[k]; ok {
			return requireNumber(fields, k)
		}
	}
	return 0, fmt.Errorf("%w: missing %q", provider.ErrSchemaMismatch, keys[0])
}

// requireValue reads a required value of type T.
func requireValue[T any](data map[string]any, key string) (T, error) {
	var zero T
	v, ok := data[key]
	if !ok || v == nil {
		return zero, fmt.Errorf("%w: missing %q", provider.ErrSchemaMismatch, key)
	}
	if v, ok := v.(T); ok {
		return v, nil
	}
	return zero, fmt.Errorf("%w: %q has unexpected type %T", provider.ErrSchemaMismatch, key, v)
}

// requireNumber accepts the provider's quoted decimals as well as bare JSON numbers.
func requireNumber(data map[string]any, key string) (float64, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: missing %q", provider.ErrSchemaMismatch, key)
	}
	var (
		f   float64
		err error
	)
	switch x := v.(type) {
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
	case json.Number:
		f, err = x.Float64()
	case float64:
		f = x
	default:
		return 0, fmt.Errorf("%w: %q has unexpected type %T", provider.ErrSchemaMismatch, key, v)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", provider.ErrSchemaMismatch, key, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", provider.ErrSchemaMismatch, key)
	}
	return f, nil
}

// metaValue finds a "Meta Data" entry by its label, ignoring the numeric prefix.
func metaValue(meta map[string]any, label string) string {
	for k, v := range meta {
		name := k
		if i := strings.Index(k, ". "); i >= 0 {
			name = k[i+2:]
		}
		if name == label {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// orderedObject walks a JSON object keeping the key order of the document.
func orderedObject(raw json.RawMessage) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}
	var (
		keys   []string
		values = map[string]json.RawMessage{}
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected key, got %v", tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		if _, dup := values[key]; !dup {
			keys = append(keys, key)
		}
		values[key] = v
	}
	return keys, values, nil
}

func location(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseTimestamp(s, tz string) (time.Time, error) {
	return parseTimestampIn(s, location(tz))
}

func parseTimestampIn(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(timestampLong, s, loc); err == nil {
		return t, nil
	}
	return time.ParseInLocation(timestampShort, s, loc)
}
