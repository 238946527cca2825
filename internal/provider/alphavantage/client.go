package alphavantage

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"marketwatch/internal/httpx"
	"marketwatch/internal/logger"
	"marketwatch/internal/provider/ratelimit"
)

const (
	defaultBaseURL  = "https://www.alphavantage.co/query"
	defaultInterval = "5min"
	maxBodyBytes    = 16 << 20
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=alphavantage_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a paced client for the AlphaVantage digital currency endpoints.
type Client struct {
	// baseURL is the query endpoint; every call is a GET with query parameters.
	baseURL *url.URL
	rawBase string
	// httpClient is the HTTP httpClient.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// key is passed through verbatim as the apikey parameter.
	key string
	// limiter gates every outbound request; nil means unpaced.
	limiter ratelimit.Limiter
	// timeout bounds one round trip, including body read.
	timeout time.Duration

	log      *logger.Logger
	observer Observer
}

// Option is a configuration option for the client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.rawBase = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithLimiter paces requests through l, typically a *ratelimit.Gate shared
// by every client talking to the same key.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithObserver receives one callback per classified request.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// New creates a new client. The key is sent as-is.
func New(key string, options ...Option) (*Client, error) {
	var client = &Client{
		rawBase:    defaultBaseURL,
		httpClient: httpx.New(httpx.DefaultTimeout),
		header:     http.Header{},
		key:        key,
		timeout:    httpx.DefaultTimeout,
		log:        logger.Nop(),
	}
	for _, option := range options {
		option(client)
	}

	u, err := url.Parse(client.rawBase)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	client.baseURL = u
	return client, nil
}

// Name identifies the provider in logs and reports.
func (c *Client) Name() string { return "AlphaVantage" }
