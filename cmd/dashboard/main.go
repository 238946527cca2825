package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"marketwatch/internal/aggregate"
	"marketwatch/internal/app"
	"marketwatch/internal/config"
	"marketwatch/internal/logger"
	"marketwatch/internal/provider"
	"marketwatch/internal/provider/alphavantage"
	"marketwatch/internal/report"
	"marketwatch/internal/store"
)

// dashboard renders the last persisted cycle without touching the network.
func main() {
	var (
		configPath string
		dataDir    string
	)
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.yaml (optional)")
	flag.StringVar(&dataDir, "data-dir", "", "directory holding fetched JSON artifacts (overrides config)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if dataDir != "" {
		cfg.Store.Dir = dataDir
	}
	log, err := app.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("dashboard failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	files := store.NewJSONFiles(cfg.Store.Dir)
	insts, err := cfg.ParsedInstruments()
	if err != nil {
		return err
	}

	quotes := loadQuotes(files, insts, log)
	baselines := loadBaselines(ctx, cfg.Store, quotes, log)
	rows := aggregate.Compare(quotes, baselines)

	out := report.New(os.Stdout)
	out.Header("CRYPTOCURRENCY DASHBOARD")
	out.Cards(rows)
	if len(rows) > 0 {
		out.Comparison(rows)
		out.Summary(aggregate.Summarize(quotes))
	}

	jobs, err := app.SeriesJobs(cfg)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		body, err := files.Load(job.Instrument.Base, job.Kind, job.Params)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			log.Warn("reading series", logger.String("instrument", job.Instrument.String()), logger.Error(err))
			continue
		}
		s, err := alphavantage.NormalizeSeries(job.Kind, job.Instrument, body)
		if err != nil {
			log.Warn("series unreadable", logger.String("instrument", job.Instrument.String()), logger.Error(err))
			continue
		}
		out.Series(s, cfg.Series.Limit)
	}
	return nil
}

// loadQuotes reads and normalizes every persisted exchange rate; missing
// instruments are omitted.
func loadQuotes(files *store.JSONFiles, insts []provider.Instrument, log *logger.Logger) []provider.Quote {
	quotes := make([]provider.Quote, 0, len(insts))
	for _, inst := range insts {
		body, err := files.Load(inst.Base, provider.ExchangeRate, provider.Params{})
		if errors.Is(err, store.ErrNotFound) {
			log.Debug("no data file", logger.String("instrument", inst.String()))
			continue
		}
		if err != nil {
			log.Warn("reading exchange rate", logger.String("instrument", inst.String()), logger.Error(err))
			continue
		}
		res := alphavantage.Classify(provider.Response{Kind: provider.ExchangeRate, Instrument: inst}, body)
		if res.Outcome != provider.Success {
			log.Warn("stored exchange rate unusable",
				logger.String("instrument", inst.String()),
				logger.String("outcome", res.Outcome.String()),
			)
			continue
		}
		q, err := alphavantage.NormalizeQuote(res.Payload)
		if err != nil {
			log.Warn("stored exchange rate unusable", logger.String("instrument", inst.String()), logger.Error(err))
			continue
		}
		quotes = append(quotes, q)
	}
	return aggregate.LatestByInstrument(quotes)
}

// loadBaselines uses the snapshot recorded before the latest one, if a
// history database exists.
func loadBaselines(ctx context.Context, cfg config.Store, quotes []provider.Quote, log *logger.Logger) map[provider.Instrument]float64 {
	out := map[provider.Instrument]float64{}
	if !cfg.History {
		return out
	}
	if _, err := os.Stat(cfg.HistoryPath); err != nil {
		return out
	}
	h, err := store.OpenHistory(cfg.HistoryPath)
	if err != nil {
		log.Warn("opening history", logger.Error(err))
		return out
	}
	defer h.Close()

	for _, q := range quotes {
		snaps, err := h.Recent(ctx, q.Instrument(), 2)
		if err != nil {
			log.Warn("reading history", logger.String("instrument", q.Instrument().String()), logger.Error(err))
			continue
		}
		if len(snaps) == 2 {
			out[q.Instrument()] = snaps[1].Price
		}
	}
	return out
}
