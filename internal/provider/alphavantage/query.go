package alphavantage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"marketwatch/internal/logger"
	"marketwatch/internal/provider"
)

// Advisory keys the provider uses to signal overuse with a 200 status.
var throttleKeys = []string{"Information", "Note"}

const errorKey = "Error Message"

// Intervals accepted by the intraday endpoint.
var Intervals = map[string]struct{}{
	"1min": {}, "5min": {}, "15min": {}, "30min": {}, "60min": {},
}

// Observer receives per-request telemetry.
type Observer interface {
	ObserveRequest(kind provider.EndpointKind, outcome provider.Outcome, wait, latency time.Duration)
}

var _ provider.Provider = (*Client)(nil)

// ExchangeRate queries the realtime exchange rate for inst.
func (c *Client) ExchangeRate(ctx context.Context, inst provider.Instrument) provider.Response {
	return c.Query(ctx, provider.ExchangeRate, inst, provider.Params{})
}

// Intraday queries the intraday series for inst at interval.
func (c *Client) Intraday(ctx context.Context, inst provider.Instrument, interval string) provider.Response {
	return c.Query(ctx, provider.Intraday, inst, provider.Params{Interval: interval})
}

// Daily queries the daily series for inst.
func (c *Client) Daily(ctx context.Context, inst provider.Instrument) provider.Response {
	return c.Query(ctx, provider.Daily, inst, provider.Params{})
}

// Query issues exactly one request, after acquiring the limiter, and
// classifies the result. It never returns a Go error: transport, status and
// decode failures come back as MalformedOrMissing with Err set.
func (c *Client) Query(ctx context.Context, kind provider.EndpointKind, inst provider.Instrument, params provider.Params) provider.Response {
	res := provider.Response{Kind: kind, Instrument: inst, Params: params, Outcome: provider.MalformedOrMissing}

	if kind == provider.Intraday && params.Interval == "" {
		params.Interval = defaultInterval
		res.Params = params
	}
	query, err := c.buildQuery(kind, inst, params)
	if err != nil {
		res.Err = fmt.Errorf("%w: %v", provider.ErrMalformed, err)
		c.report(res, 0, 0)
		return res
	}

	var waited time.Duration
	if c.limiter != nil {
		start := time.Now()
		if err := c.limiter.Acquire(ctx); err != nil {
			res.Err = fmt.Errorf("%w: waiting for rate limiter: %v", provider.ErrMalformed, err)
			c.report(res, time.Since(start), 0)
			return res
		}
		waited = time.Since(start)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	res = c.roundTrip(ctx, res, query)
	c.report(res, waited, time.Since(started))
	return res
}

func (c *Client) buildQuery(kind provider.EndpointKind, inst provider.Instrument, params provider.Params) (url.Values, error) {
	if inst.Base == "" || inst.Quote == "" {
		return nil, fmt.Errorf("incomplete instrument %q", inst.String())
	}
	query := url.Values{}
	query.Set("function", kind.Function())
	switch kind {
	case provider.ExchangeRate:
		query.Set("from_currency", inst.Base)
		query.Set("to_currency", inst.Quote)
	case provider.Intraday:
		if _, ok := Intervals[params.Interval]; !ok {
			return nil, fmt.Errorf("unsupported interval %q", params.Interval)
		}
		query.Set("symbol", inst.Base)
		query.Set("market", inst.Quote)
		query.Set("interval", params.Interval)
	case provider.Daily:
		query.Set("symbol", inst.Base)
		query.Set("market", inst.Quote)
	default:
		return nil, fmt.Errorf("unknown endpoint kind %d", int(kind))
	}
	if c.key != "" {
		query.Set("apikey", c.key)
	}
	return query, nil
}

func (c *Client) roundTrip(ctx context.Context, res provider.Response, query url.Values) provider.Response {
	u := *c.baseURL
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		res.Err = fmt.Errorf("%w: creating request: %v", provider.ErrMalformed, err)
		return res
	}
	req.Header = c.header.Clone()

	httpRes, err := c.httpClient.Do(req)
	if err != nil {
		res.Err = fmt.Errorf("%w: performing request: %v", provider.ErrMalformed, err)
		return res
	}
	defer httpRes.Body.Close()

	if httpRes.StatusCode < 200 || httpRes.StatusCode >= 300 {
		res.Err = fmt.Errorf("%w: unexpected status code: %d", provider.ErrMalformed, httpRes.StatusCode)
		return res
	}

	body, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes))
	if err != nil {
		res.Err = fmt.Errorf("%w: reading body: %v", provider.ErrMalformed, err)
		return res
	}
	return Classify(res, body)
}

// Classify inspects a 2xx body and fills Outcome, Payload and Message.
// The provider signals overuse in the body, so the status code alone
// says nothing about success.
func Classify(res provider.Response, body []byte) provider.Response {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		res.Outcome = provider.MalformedOrMissing
		res.Err = fmt.Errorf("%w: decoding response: %v", provider.ErrMalformed, err)
		return res
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		res.Outcome = provider.MalformedOrMissing
		res.Err = fmt.Errorf("%w: response is %T, not an object", provider.ErrMalformed, decoded)
		return res
	}

	if _, ok := obj[res.Kind.SuccessKey()]; ok {
		res.Outcome = provider.Success
		res.Payload = provider.Payload(obj)
		res.Raw = json.RawMessage(append([]byte(nil), body...))
		return res
	}
	for _, k := range throttleKeys {
		if v, ok := obj[k]; ok {
			res.Outcome = provider.Throttled
			res.Message = fmt.Sprint(v)
			res.Err = provider.ErrThrottled
			return res
		}
	}
	if v, ok := obj[errorKey]; ok {
		res.Outcome = provider.MalformedOrMissing
		res.Message = fmt.Sprint(v)
		res.Err = fmt.Errorf("%w: provider error: %v", provider.ErrMalformed, v)
		return res
	}
	res.Outcome = provider.MalformedOrMissing
	res.Err = fmt.Errorf("%w: missing %q", provider.ErrMalformed, res.Kind.SuccessKey())
	return res
}

func (c *Client) report(res provider.Response, wait, latency time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(res.Kind, res.Outcome, wait, latency)
	}
	fields := []logger.Field{
		logger.String("endpoint", res.Kind.String()),
		logger.String("instrument", res.Instrument.String()),
		logger.String("outcome", res.Outcome.String()),
		logger.Duration("wait_ms", wait),
		logger.Duration("latency_ms", latency),
	}
	switch res.Outcome {
	case provider.Success:
		c.log.Debug("provider response", fields...)
	case provider.Throttled:
		c.log.Warn("provider throttled", append(fields, logger.String("note", res.Message))...)
	default:
		c.log.Warn("provider response rejected", append(fields, logger.Error(res.Err))...)
	}
}
