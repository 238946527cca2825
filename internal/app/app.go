// Package app wires configuration into a ready pipeline for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketwatch/internal/config"
	"marketwatch/internal/httpx"
	"marketwatch/internal/logger"
	"marketwatch/internal/metrics"
	"marketwatch/internal/pipeline"
	"marketwatch/internal/provider"
	"marketwatch/internal/provider/alphavantage"
	"marketwatch/internal/provider/cache"
	"marketwatch/internal/provider/ratelimit"
	"marketwatch/internal/store"
)

// App holds the long-lived pieces of one process.
type App struct {
	Pipeline *pipeline.Pipeline
	Client   *alphavantage.Client
	Files    *store.JSONFiles
	History  *store.History
	Latest   cache.Store

	closers []func() error
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg config.Log) (*logger.Logger, error) {
	return logger.New(&logger.Config{Level: cfg.Level, Format: cfg.Format})
}

// NewLimiter combines the interval gate with an optional per-minute bucket.
func NewLimiter(cfg config.Provider) ratelimit.Limiter {
	chain := ratelimit.Chain{ratelimit.NewGate(cfg.MinInterval)}
	if cfg.MaxRequestsPerMinute > 0 {
		chain = append(chain, ratelimit.PerMinute(cfg.MaxRequestsPerMinute, cfg.Burst))
	}
	return chain
}

// NewLatest opens the configured latest-quote store; nil when disabled.
func NewLatest(ctx context.Context, cfg config.Cache) (cache.Store, func() error, error) {
	switch cfg.Backend {
	case "redis":
		r, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	case "none":
		return nil, nil, nil
	default:
		return cache.NewMemory(cfg.TTL, cfg.MaxItems), nil, nil
	}
}

// Build wires client, storage and pipeline from cfg. rec may be nil.
func Build(ctx context.Context, cfg config.Config, log *logger.Logger, rec *metrics.Recorder) (*App, error) {
	insts, err := cfg.ParsedInstruments()
	if err != nil {
		return nil, err
	}
	if cfg.Provider.APIKey == "" {
		log.Warn("ALPHAVANTAGE_API_KEY not set; requests are sent without a key")
	}

	a := &App{Files: store.NewJSONFiles(cfg.Store.Dir)}

	clientOpts := []alphavantage.Option{
		alphavantage.WithBaseURL(cfg.Provider.BaseURL),
		alphavantage.WithHTTPClient(httpx.New(cfg.Provider.Timeout)),
		alphavantage.WithLimiter(NewLimiter(cfg.Provider)),
		alphavantage.WithTimeout(cfg.Provider.Timeout),
		alphavantage.WithLogger(log),
	}
	if rec != nil {
		clientOpts = append(clientOpts, alphavantage.WithObserver(rec))
	}
	a.Client, err = alphavantage.New(cfg.Provider.APIKey, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("alphavantage client: %w", err)
	}

	opts := []pipeline.Option{
		pipeline.WithInstruments(insts...),
		pipeline.WithArtifacts(a.Files),
		pipeline.WithLogger(log),
		pipeline.WithThrottleRetries(cfg.Provider.ThrottleRetries, cfg.Provider.ThrottleBackoff),
	}
	jobs, err := SeriesJobs(cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, pipeline.WithSeries(jobs...))

	if cfg.Store.History {
		a.History, err = store.OpenHistory(cfg.Store.HistoryPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.History.Close)
		opts = append(opts, pipeline.WithHistory(a.History))
	}

	latest, closeLatest, err := NewLatest(ctx, cfg.Cache)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if latest != nil {
		a.Latest = latest
		opts = append(opts, pipeline.WithLatest(latest))
	}
	if closeLatest != nil {
		a.closers = append(a.closers, closeLatest)
	}
	if rec != nil {
		opts = append(opts, pipeline.WithRecorder(rec))
	}

	a.Pipeline = pipeline.New(a.Client, opts...)
	return a, nil
}

// SeriesJobs expands the series section into one job per instrument and endpoint.
func SeriesJobs(cfg config.Config) ([]pipeline.Job, error) {
	insts, err := cfg.SeriesInstruments()
	if err != nil {
		return nil, err
	}
	var jobs []pipeline.Job
	for _, inst := range insts {
		if cfg.Series.Intraday {
			jobs = append(jobs, pipeline.Job{
				Kind:       provider.Intraday,
				Instrument: inst,
				Params:     provider.Params{Interval: cfg.Series.Interval},
			})
		}
		if cfg.Series.Daily {
			jobs = append(jobs, pipeline.Job{Kind: provider.Daily, Instrument: inst})
		}
	}
	return jobs, nil
}

// CycleBudget is the longest one cycle can take when every request runs to
// its timeout: each job pays the gate spacing and the timeout per attempt,
// plus the backoff before every retry. A per-minute quota adds the refill
// wait for requests beyond the burst.
func CycleBudget(cfg config.Config) time.Duration {
	jobs := len(cfg.Instruments)
	perSeries := 0
	if cfg.Series.Intraday {
		perSeries++
	}
	if cfg.Series.Daily {
		perSeries++
	}
	jobs += perSeries * len(cfg.Series.Instruments)

	p := cfg.Provider
	attempts := p.ThrottleRetries + 1
	perJob := time.Duration(attempts)*(p.Timeout+p.MinInterval) + time.Duration(p.ThrottleRetries)*p.ThrottleBackoff
	budget := time.Duration(jobs) * perJob

	if requests := jobs * attempts; p.MaxRequestsPerMinute > 0 && requests > p.Burst {
		budget += time.Duration(requests-p.Burst) * time.Minute / time.Duration(p.MaxRequestsPerMinute)
	}
	return budget
}

// Close releases storage handles.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
