package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ganttmailer/internal/app"
	"github.com/ganttmailer/internal/config"
	"github.com/ganttmailer/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("ganttmailer failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer a.Close()

	switch cfg.Mode {
	case config.ModeServe:
		return a.Serve(ctx)
	case config.ModeSchedule:
		return a.Schedule(ctx)
	}

	sum, err := a.RunFromSource(ctx, pipeline.Options{Date: cfg.Date, Simulate: cfg.Simulate})
	if err != nil {
		return err
	}
	slog.Info("done",
		"run_id", sum.RunID,
		"date", sum.Date,
		"logged", sum.Count(pipeline.Logged),
		"simulated", sum.Count(pipeline.Simulated),
		"already_sent", sum.Count(pipeline.SkippedAlreadySent),
	)
	return nil
}
