package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"

	"marketwatch/internal/app"
	"marketwatch/internal/config"
	"marketwatch/internal/logger"
	"marketwatch/internal/metrics"
	"marketwatch/internal/pipeline"
)

// refreshMargin covers artifact writes and encoding on top of the cycle budget.
const refreshMargin = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
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

	if err := serve(ctx, cfg, log); err != nil {
		log.Error("server stopped", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	a, err := app.Build(ctx, cfg, log, rec)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("closing storage", logger.Error(err))
		}
	}()

	srv := &server{
		latest:         a.Latest,
		defaultQuote:   cfg.DefaultQuote,
		log:            log,
		run:            func() pipeline.Report { return a.Pipeline.Run(ctx) },
		refreshTimeout: app.CycleBudget(cfg) + refreshMargin,
	}

	// The startup run and every tick share one wrapped job; manual refreshes
	// join whatever cycle is in flight.
	cl := cronLogger{log: log}
	job := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() { srv.cycle() }))
	sched := cron.New(cron.WithLogger(cl))
	if _, err := sched.AddJob(cfg.Server.Schedule, job); err != nil {
		return fmt.Errorf("schedule %q: %w", cfg.Server.Schedule, err)
	}

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.routes(reg),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			logger.String("addr", httpSrv.Addr),
			logger.String("schedule", cfg.Server.Schedule),
			logger.Duration("refresh_timeout_ms", srv.refreshTimeout),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sched.Start()
	go job.Run()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		<-sched.Stop().Done()
		return fmt.Errorf("listen: %w", err)
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("running cycle did not finish before shutdown timeout")
	}
	return httpSrv.Shutdown(shutdownCtx)
}

// cronLogger adapts the process logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug("cron: "+msg, logger.Any("details", keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error("cron: "+msg, logger.Error(err), logger.Any("details", keysAndValues))
}
