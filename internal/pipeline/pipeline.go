// Package pipeline runs one acquisition cycle: paced queries per instrument,
// normalization, derived metrics and persistence, strictly one request at a
// time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"marketwatch/internal/indicator"
	"marketwatch/internal/logger"
	"marketwatch/internal/provider"
	"marketwatch/internal/provider/alphavantage"
	"marketwatch/internal/provider/cache"
)

// ErrNothingAccepted marks a cycle in which every exchange-rate query failed.
var ErrNothingAccepted = errors.New("no quotes accepted")

// Status is the per-instrument verdict of a cycle.
type Status string

const (
	StatusOK        Status = "ok"
	StatusThrottled Status = "throttled"
	StatusFailed    Status = "failed"
)

// Job is one series query.
type Job struct {
	Kind       provider.EndpointKind
	Instrument provider.Instrument
	Params     provider.Params
}

// Result records what happened to one query in a cycle.
type Result struct {
	Job
	Status   Status
	Outcome  provider.Outcome
	Attempts int
	Reason   string
	File     string

	// Set for accepted exchange-rate queries.
	Quote    *provider.Quote
	Metrics  *indicator.Metrics
	Previous float64
	// Set for accepted series queries.
	Series *provider.Series
}

// Report is the outcome of one Run.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Quotes   []Result
	Series   []Result
}

// Accepted returns the quotes that passed normalization, in request order.
func (r Report) Accepted() []provider.Quote {
	out := make([]provider.Quote, 0, len(r.Quotes))
	for _, res := range r.Quotes {
		if res.Quote != nil {
			out = append(out, *res.Quote)
		}
	}
	return out
}

// Baselines maps each accepted instrument to the previous price used for its change percentage.
func (r Report) Baselines() map[provider.Instrument]float64 {
	out := make(map[provider.Instrument]float64, len(r.Quotes))
	for _, res := range r.Quotes {
		if res.Quote != nil && res.Previous != 0 {
			out[res.Instrument] = res.Previous
		}
	}
	return out
}

// Files lists every artifact written during the cycle.
func (r Report) Files() []string {
	var out []string
	for _, res := range append(append([]Result(nil), r.Quotes...), r.Series...) {
		if res.File != "" {
			out = append(out, res.File)
		}
	}
	return out
}

// Err reports ErrNothingAccepted when instruments were requested but none
// produced a quote.
func (r Report) Err() error {
	if len(r.Quotes) > 0 && len(r.Accepted()) == 0 {
		return fmt.Errorf("run %s: %w", r.RunID, ErrNothingAccepted)
	}
	return nil
}

// Artifacts persists successful responses.
type Artifacts interface {
	Save(res provider.Response) (string, error)
}

// History supplies change baselines and records accepted quotes.
type History interface {
	Previous(ctx context.Context, inst provider.Instrument) (float64, bool, error)
	Record(ctx context.Context, runID string, inst provider.Instrument, q provider.Quote) error
}

// Recorder receives per-quote and per-cycle telemetry.
type Recorder interface {
	RecordQuote(inst provider.Instrument, price, spreadPct float64)
	RecordSkip(reason string)
	RecordCycle()
}

// Pipeline drives a provider over a fixed instrument list.
type Pipeline struct {
	provider    provider.Provider
	instruments []provider.Instrument
	jobs        []Job

	artifacts Artifacts
	history   History
	latest    cache.Store
	recorder  Recorder
	log       *logger.Logger

	retries int
	backoff time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	newID   func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithInstruments sets the exchange-rate instruments, queried in order.
func WithInstruments(insts ...provider.Instrument) Option {
	return func(p *Pipeline) { p.instruments = append(p.instruments, insts...) }
}

// WithSeries adds series queries, run after every exchange rate.
func WithSeries(jobs ...Job) Option {
	return func(p *Pipeline) { p.jobs = append(p.jobs, jobs...) }
}

// WithArtifacts writes successful bodies through a.
func WithArtifacts(a Artifacts) Option {
	return func(p *Pipeline) { p.artifacts = a }
}

// WithHistory reads baselines from and appends accepted quotes to h.
func WithHistory(h History) Option {
	return func(p *Pipeline) { p.history = h }
}

// WithLatest publishes accepted quotes to s.
func WithLatest(s cache.Store) Option {
	return func(p *Pipeline) { p.latest = s }
}

// WithRecorder exports telemetry through r.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithThrottleRetries re-queries a throttled instrument up to n times,
// sleeping backoff before each retry. Every retry still passes the gate.
func WithThrottleRetries(n int, backoff time.Duration) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.retries = n
		}
		if backoff > 0 {
			p.backoff = backoff
		}
	}
}

// New creates a pipeline over prov.
func New(prov provider.Provider, opts ...Option) *Pipeline {
	p := &Pipeline{
		provider: prov,
		log:      logger.Nop(),
		sleep:    sleepContext,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one cycle. It never aborts early on a per-instrument
// failure; each query gets exactly one Result. A canceled ctx marks the
// remaining queries failed without issuing them.
func (p *Pipeline) Run(ctx context.Context) Report {
	rep := Report{RunID: p.newID(), Started: time.Now()}
	log := p.log.With(logger.String("run_id", rep.RunID))
	log.Info("cycle started",
		logger.Int("instruments", len(p.instruments)),
		logger.Int("series", len(p.jobs)),
	)

	for _, inst := range p.instruments {
		rep.Quotes = append(rep.Quotes, p.runQuote(ctx, log, rep.RunID, inst))
	}
	for _, job := range p.jobs {
		rep.Series = append(rep.Series, p.runSeries(ctx, log, job))
	}

	rep.Finished = time.Now()
	if p.recorder != nil {
		p.recorder.RecordCycle()
	}
	log.Info("cycle finished",
		logger.Int("accepted", len(rep.Accepted())),
		logger.Int("requested", len(p.instruments)),
		logger.Duration("elapsed_ms", rep.Finished.Sub(rep.Started)),
		logger.Strings("files", rep.Files()),
	)
	return rep
}

func (p *Pipeline) runQuote(ctx context.Context, log *logger.Logger, runID string, inst provider.Instrument) Result {
	res, resp := p.query(ctx, Job{Kind: provider.ExchangeRate, Instrument: inst})
	if res.Status != StatusOK {
		p.skip(log, res)
		return res
	}

	q, err := alphavantage.NormalizeQuote(resp.Payload)
	if err != nil {
		res.Status, res.Reason = StatusFailed, err.Error()
		p.skip(log, res)
		return res
	}

	var previous float64
	if p.history != nil {
		prev, ok, err := p.history.Previous(ctx, inst)
		if err != nil {
			log.Warn("history lookup failed", logger.String("instrument", inst.String()), logger.Error(err))
		} else if ok {
			previous = prev
		}
	}
	m := indicator.Compute(q, previous)
	res.Quote, res.Metrics, res.Previous = &q, &m, previous

	res.File = p.persist(log, resp)
	if p.history != nil {
		if err := p.history.Record(ctx, runID, inst, q); err != nil {
			log.Warn("history record failed", logger.String("instrument", inst.String()), logger.Error(err))
		}
	}
	if p.latest != nil {
		if err := p.latest.Put(ctx, q); err != nil {
			log.Warn("latest quote cache write failed", logger.String("instrument", inst.String()), logger.Error(err))
		}
	}
	if p.recorder != nil {
		p.recorder.RecordQuote(inst, q.Price, m.SpreadPercentage)
	}

	log.Info("quote accepted",
		logger.String("instrument", inst.String()),
		logger.Float("price", q.Price),
		logger.Float("change_pct", m.ChangePercentage),
		logger.String("trend", m.Trend.String()),
	)
	return res
}

func (p *Pipeline) runSeries(ctx context.Context, log *logger.Logger, job Job) Result {
	res, resp := p.query(ctx, job)
	if res.Status != StatusOK {
		p.skip(log, res)
		return res
	}
	s, err := alphavantage.NormalizeSeries(job.Kind, job.Instrument, resp.Raw)
	if err != nil {
		res.Status, res.Reason = StatusFailed, err.Error()
		p.skip(log, res)
		return res
	}
	res.Series = &s
	res.File = p.persist(log, resp)
	log.Info("series accepted",
		logger.String("instrument", job.Instrument.String()),
		logger.String("endpoint", job.Kind.FileSuffix(resp.Params)),
		logger.Int("bars", len(s.Bars)),
	)
	return res
}

// query issues the job, retrying throttled responses when configured.
func (p *Pipeline) query(ctx context.Context, job Job) (Result, provider.Response) {
	res := Result{Job: job, Status: StatusFailed}
	if err := ctx.Err(); err != nil {
		res.Reason = err.Error()
		return res, provider.Response{}
	}

	var resp provider.Response
	for {
		res.Attempts++
		resp = p.provider.Query(ctx, job.Kind, job.Instrument, job.Params)
		if resp.Outcome != provider.Throttled || res.Attempts > p.retries {
			break
		}
		if err := p.sleep(ctx, p.backoff); err != nil {
			break
		}
	}

	res.Params = resp.Params
	res.Outcome = resp.Outcome
	switch resp.Outcome {
	case provider.Success:
		res.Status = StatusOK
	case provider.Throttled:
		res.Status = StatusThrottled
		res.Reason = resp.Message
	default:
		res.Status = StatusFailed
		if resp.Err != nil {
			res.Reason = resp.Err.Error()
		}
	}
	return res, resp
}

func (p *Pipeline) persist(log *logger.Logger, resp provider.Response) string {
	if p.artifacts == nil {
		return ""
	}
	path, err := p.artifacts.Save(resp)
	if err != nil {
		log.Error("saving artifact failed",
			logger.String("instrument", resp.Instrument.String()),
			logger.String("endpoint", resp.Kind.String()),
			logger.Error(err),
		)
		return ""
	}
	log.Debug("artifact saved", logger.String("path", path))
	return path
}

func (p *Pipeline) skip(log *logger.Logger, res Result) {
	if p.recorder != nil {
		p.recorder.RecordSkip(string(res.Status))
	}
	log.Warn("instrument skipped",
		logger.String("instrument", res.Instrument.String()),
		logger.String("endpoint", res.Kind.String()),
		logger.String("status", string(res.Status)),
		logger.Int("attempts", res.Attempts),
		logger.String("reason", res.Reason),
	)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
