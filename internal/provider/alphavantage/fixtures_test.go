package alphavantage_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"marketwatch/internal/provider"
)

const exchangeRateBody = `{
    "Realtime Currency Exchange Rate": {
        "1. From_Currency Code": "BTC",
        "2. From_Currency Name": "Bitcoin",
        "3. To_Currency Code": "USD",
        "4. To_Currency Name": "United States Dollar",
        "5. Exchange Rate": "101.00000000",
        "6. Last Refreshed": "2025-01-02 03:04:05",
        "7. Time Zone": "UTC",
        "8. Bid Price": "100.00000000",
        "9. Ask Price": "102.00000000"
    }
}`

const intradayBody = `{
    "Meta Data": {
        "1. Information": "Crypto Intraday (5min) Time Series",
        "2. Digital Currency Code": "BTC",
        "3. Digital Currency Name": "Bitcoin",
        "4. Market Code": "USD",
        "5. Market Name": "United States Dollar",
        "6. Last Refreshed": "2025-01-02 03:05:00",
        "7. Interval": "5min",
        "8. Output Size": "Compact",
        "9. Time Zone": "UTC"
    },
    "Time Series Crypto": {
        "2025-01-02 03:05:00": {"1. open": "10", "2. high": "12", "3. low": "9", "4. close": "11", "5. volume": "100"},
        "2025-01-02 03:00:00": {"1. open": "9", "2. high": "10", "3. low": "8", "4. close": "10", "5. volume": "50"},
        "2025-01-02 03:10:00": {"1. open": "11", "2. high": "13", "3. low": "10", "4. close": "12", "5. volume": "75"}
    }
}`

const dailyLegacyBody = `{
    "Meta Data": {
        "1. Information": "Daily Prices and Volumes for Digital Currency",
        "2. Digital Currency Code": "ETH",
        "3. Digital Currency Name": "Ethereum",
        "4. Market Code": "EUR",
        "5. Market Name": "Euro",
        "6. Last Refreshed": "2025-01-02 00:00:00",
        "7. Time Zone": "UTC"
    },
    "Time Series (Digital Currency Daily)": {
        "2025-01-02": {"1a. open (EUR)": "3000", "2a. high (EUR)": "3100", "3a. low (EUR)": "2900", "4a. close (EUR)": "3050", "5. volume": "1234.5"},
        "2025-01-01": {"1a. open (EUR)": "2950", "2a. high (EUR)": "3010", "3a. low (EUR)": "2940", "4a. close (EUR)": "3000", "5. volume": "999"}
    }
}`

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

// countingLimiter records Acquire calls.
type countingLimiter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (l *countingLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.err
}

func (l *countingLimiter) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type observed struct {
	kind    provider.EndpointKind
	outcome provider.Outcome
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observed
}

func (o *recordingObserver) ObserveRequest(kind provider.EndpointKind, outcome provider.Outcome, _, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observed{kind: kind, outcome: outcome})
}
