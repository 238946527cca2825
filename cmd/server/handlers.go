package main

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/singleflight"

	"marketwatch/internal/aggregate"
	"marketwatch/internal/logger"
	"marketwatch/internal/pipeline"
	"marketwatch/internal/provider"
	"marketwatch/internal/provider/cache"
)

type quotesResponse struct {
	RunID     string          `json:"run_id,omitempty"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
	Quotes    []aggregate.Row `json:"quotes"`
}

type refreshResponse struct {
	RunID     string          `json:"run_id"`
	Shared    bool            `json:"shared"`
	Accepted  int             `json:"accepted"`
	Requested int             `json:"requested"`
	Results   []refreshResult `json:"results"`
}

type refreshResult struct {
	Instrument provider.Instrument `json:"instrument"`
	Endpoint   string              `json:"endpoint"`
	Status     pipeline.Status     `json:"status"`
	Attempts   int                 `json:"attempts"`
	Reason     string              `json:"reason,omitempty"`
}

// server serves the latest accepted quotes and remembers the last cycle so
// change percentages use that cycle's baselines.
type server struct {
	latest       cache.Store
	defaultQuote string
	log          *logger.Logger
	// run executes one pipeline cycle; nil disables refreshes.
	run func() pipeline.Report
	// refreshTimeout replaces the server write deadline for refreshes, which
	// answer only after a whole cycle; 0 keeps the server default.
	refreshTimeout time.Duration

	runs singleflight.Group
	mu   sync.RWMutex
	last *pipeline.Report
}

// cycle runs the pipeline once. Concurrent callers join the cycle already
// in flight instead of starting another.
func (s *server) cycle() (pipeline.Report, bool) {
	v, _, shared := s.runs.Do("cycle", func() (any, error) {
		rep := s.run()
		s.setReport(rep)
		if err := rep.Err(); err != nil {
			s.log.Warn("cycle produced no quotes", logger.Error(err))
		}
		return rep, nil
	})
	return v.(pipeline.Report), shared
}

func (s *server) setReport(rep pipeline.Report) {
	s.mu.Lock()
	s.last = &rep
	s.mu.Unlock()
}

func (s *server) lastReport() (pipeline.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return pipeline.Report{}, false
	}
	return *s.last, true
}

func (s *server) routes(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{DisableCompression: true}))
	mux.Handle("/api/quotes", withJSONHeaders(http.HandlerFunc(s.handleQuotes)))
	mux.Handle("/api/refresh", withJSONHeaders(http.HandlerFunc(s.handleRefresh)))
	return withGzip(recoverPanic(s.log, mux))
}

func (s *server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.latest == nil {
		writeError(w, http.StatusServiceUnavailable, "latest-quote cache disabled")
		return
	}

	want, err := parseInstruments(r.URL.Query().Get("instruments"), s.defaultQuote)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	quotes, err := s.latest.All(r.Context())
	if err != nil {
		s.log.Error("reading latest quotes", logger.Error(err))
		writeError(w, http.StatusBadGateway, "latest quotes unavailable")
		return
	}
	if len(want) > 0 {
		quotes = filterQuotes(quotes, want)
	}

	resp := quotesResponse{Quotes: []aggregate.Row{}}
	var baselines map[provider.Instrument]float64
	if rep, ok := s.lastReport(); ok {
		resp.RunID = rep.RunID
		resp.UpdatedAt = &rep.Finished
		baselines = rep.Baselines()
	}
	resp.Quotes = append(resp.Quotes, aggregate.Compare(quotes, baselines)...)

	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(resp); err != nil {
		s.log.Warn("encoding quotes", logger.Error(err))
	}
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.run == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh disabled")
		return
	}
	if s.refreshTimeout > 0 {
		rc := http.NewResponseController(w)
		if err := rc.SetWriteDeadline(time.Now().Add(s.refreshTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			s.log.Warn("extending refresh write deadline", logger.Error(err))
		}
	}

	rep, shared := s.cycle()
	resp := refreshResponse{
		RunID:     rep.RunID,
		Shared:    shared,
		Accepted:  len(rep.Accepted()),
		Requested: len(rep.Quotes),
		Results:   make([]refreshResult, 0, len(rep.Quotes)+len(rep.Series)),
	}
	for _, res := range append(append([]pipeline.Result(nil), rep.Quotes...), rep.Series...) {
		resp.Results = append(resp.Results, refreshResult{
			Instrument: res.Instrument,
			Endpoint:   res.Kind.String(),
			Status:     res.Status,
			Attempts:   res.Attempts,
			Reason:     res.Reason,
		})
	}

	code := http.StatusOK
	if rep.Err() != nil {
		code = http.StatusBadGateway
	}
	s.log.Info("refresh served",
		logger.String("run_id", rep.RunID),
		logger.Bool("shared", shared),
		logger.Int("accepted", resp.Accepted),
	)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Warn("encoding refresh", logger.Error(err))
	}
}

func parseInstruments(csv, defaultQuote string) ([]provider.Instrument, error) {
	if strings.TrimSpace(csv) == "" {
		return nil, nil
	}
	var out []provider.Instrument
	for _, part := range strings.Split(csv, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		inst, err := provider.ParseInstrument(part, defaultQuote)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	if len(out) == 0 {
		return nil, errors.New("instruments cannot be empty")
	}
	return out, nil
}

func filterQuotes(quotes []provider.Quote, want []provider.Instrument) []provider.Quote {
	keep := make(map[provider.Instrument]struct{}, len(want))
	for _, inst := range want {
		keep[inst] = struct{}{}
	}
	out := quotes[:0:0]
	for _, q := range quotes {
		if _, ok := keep[q.Instrument()]; ok {
			out = append(out, q)
		}
	}
	return out
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses the response when the client accepts gzip.
func withGzip(next http.Handler) http.Handler {
	gzPool := sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		w.Header().Del("Content-Length")
		next.ServeHTTP(gzipResponseWriter{ResponseWriter: w, Writer: gz}, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (g gzipResponseWriter) Unwrap() http.ResponseWriter {
	return g.ResponseWriter
}

func recoverPanic(log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("handler panic", logger.Any("panic", rec), logger.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
