package main

import (
	"flag"
	"fmt"
	"os"

	"marketwatch/internal/app"
	"marketwatch/internal/betting"
	"marketwatch/internal/config"
	"marketwatch/internal/logger"
	"marketwatch/internal/report"
)

// marketwatch prints the betting-market board built from generated markets.
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	var (
		seed  uint64
		count int
		minEV float64
	)
	flag.Uint64Var(&seed, "seed", cfg.Betting.Seed, "generator seed")
	flag.IntVar(&count, "count", cfg.Betting.Count, "number of markets to generate")
	flag.Float64Var(&minEV, "min-ev", cfg.Betting.MinEV, "minimum EV for the value-bets table, as a fraction")
	flag.Parse()

	log, err := app.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	markets := betting.Generate(seed, count)
	board := betting.Summarize(markets)
	log.Debug("markets generated",
		logger.Any("seed", seed),
		logger.Int("markets", board.Count),
		logger.Int("positive", board.Positive),
	)

	out := report.New(os.Stdout)
	out.Board(board)
	out.Markets(markets)
	out.ValueBets(markets, minEV)
}
