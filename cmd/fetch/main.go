package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"marketwatch/internal/aggregate"
	"marketwatch/internal/app"
	"marketwatch/internal/config"
	"marketwatch/internal/logger"
	"marketwatch/internal/report"
)

func main() {
	var (
		configPath  string
		instruments string
		dataDir     string
		noSeries    bool
		noHistory   bool
	)
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.yaml (optional)")
	flag.StringVar(&instruments, "instruments", "", "comma-separated instruments, e.g. BTC,ETH/EUR (overrides config)")
	flag.StringVar(&dataDir, "data-dir", "", "directory for JSON artifacts (overrides config)")
	flag.BoolVar(&noSeries, "no-series", false, "skip intraday and daily series")
	flag.BoolVar(&noHistory, "no-history", false, "do not read or write the SQLite history")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if instruments != "" {
		cfg.Instruments = strings.Split(instruments, ",")
	}
	if dataDir != "" {
		cfg.Store.Dir = dataDir
	}
	if noSeries {
		cfg.Series.Intraday, cfg.Series.Daily = false, false
	}
	if noHistory {
		cfg.Store.History = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := app.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("fetch failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	a, err := app.Build(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("closing storage", logger.Error(err))
		}
	}()

	rep := a.Pipeline.Run(ctx)

	accepted := rep.Accepted()
	rows := aggregate.Compare(accepted, rep.Baselines())

	out := report.New(os.Stdout)
	out.Header("CRYPTOCURRENCY MARKET DATA")
	out.Cards(rows)
	if len(rows) > 0 {
		out.Comparison(rows)
		out.Summary(aggregate.Summarize(accepted))
	}

	var fetched []string
	for _, res := range rep.Series {
		if res.Series == nil {
			continue
		}
		out.Series(*res.Series, cfg.Series.Limit)
		fetched = append(fetched, res.Instrument.Base+" "+res.Kind.FileSuffix(res.Params))
	}
	out.Extraction(len(accepted), len(rep.Quotes), fetched, rep.Files())

	return rep.Err()
}
