package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/ganttmailer/internal/accounts"
	"github.com/ganttmailer/internal/config"
	"github.com/ganttmailer/internal/db/migrations"
	"github.com/ganttmailer/internal/mailer"
	"github.com/ganttmailer/internal/model"
	"github.com/ganttmailer/internal/notify"
	"github.com/ganttmailer/internal/pipeline"
	"github.com/ganttmailer/internal/sentlog"
	"github.com/ganttmailer/internal/session"
	"github.com/ganttmailer/internal/teamgantt"
)

// ErrShuttingDown is returned by Start once the server has begun to stop.
var ErrShuttingDown = errors.New("app: shutting down")

type pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	config   *config.Config
	logger   *slog.Logger
	source   accounts.Source
	health   pinger
	reporter pipeline.Reporter
	pipeline *pipeline.Pipeline
	closers  []func()

	// runMu serializes whole runs so no two touch the sent log at once.
	runMu sync.Mutex

	stateMu  sync.Mutex
	closing  bool
	runs     sync.WaitGroup
	runCtx   context.Context
	stopRuns context.CancelFunc
}

func (app *App) Close() {
	app.stopRuns()
	for i := len(app.closers) - 1; i >= 0; i-- {
		app.closers[i]()
	}
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := newLogger(cfg)

	app := &App{config: cfg, logger: logger}
	app.runCtx, app.stopRuns = context.WithCancel(context.Background())

	app.reporter = notify.NewTeams(cfg.TeamsWebhookURL, logger)
	app.source = openSource(cfg)

	log, err := app.openSentLog(ctx)
	if err != nil {
		app.report(ctx, cfg.Simulate, err)
		app.Close()
		return nil, err
	}

	var exporter *teamgantt.Exporter
	exportCfg := teamgantt.ExporterConfig{
		ExportURL:      cfg.ExportURL,
		ReportsDir:     cfg.ReportsDir,
		Options:        cfg.ExportOptions,
		CollapseGroups: cfg.CollapseGroups,
	}
	if cfg.CollapseGroups {
		client := teamgantt.NewClient("", "", teamgantt.Credentials{
			ClientID:     cfg.TeamGanttClientID,
			ClientSecret: cfg.TeamGanttClientSecret,
			Username:     cfg.TeamGanttUser,
			Password:     cfg.TeamGanttPassword,
		})
		exporter = teamgantt.NewExporter(client, exportCfg, logger)
	} else {
		exporter = teamgantt.NewExporter(nil, exportCfg, logger)
	}

	browser := session.NewBrowserProvider(session.Config{
		LoginURL:     cfg.LoginURL,
		Username:     cfg.TeamGanttUser,
		Password:     cfg.TeamGanttPassword,
		LoginTimeout: cfg.LoginTimeout,
	}, logger)

	m := mailer.New(&mailer.Config{
		Host:           cfg.EmailHost,
		Port:           cfg.EmailPort,
		Username:       cfg.EmailUser,
		Password:       cfg.EmailPassword,
		FromAddress:    cfg.EmailFrom,
		FromName:       cfg.EmailFromName,
		AttachmentName: cfg.EmailAttachmentName,
	})

	app.pipeline = pipeline.New(pipeline.Deps{
		Session:  browser,
		Exporter: exporter,
		SentLog:  log,
		Notifier: m,
		Reporter: app.reporter,
	}, cfg.SendFailurePolicy, logger)

	return app, nil
}

func openSource(cfg *config.Config) accounts.Source {
	if cfg.AccountsSource == config.SourceSheets {
		return accounts.NewSheetsSource(cfg.GoogleServiceAccountFile, cfg.SpreadsheetID, cfg.SpreadsheetRange)
	}
	return accounts.NewFileSource(cfg.AccountsFile)
}

func (app *App) openSentLog(ctx context.Context) (pipeline.SentLog, error) {
	cfg := app.config

	switch cfg.SentLogBackend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		app.closers = append(app.closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping database: %w", err)
		}
		if _, err := sentlog.Migrate(ctx, pool, migrations.FS, app.logger); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		l := sentlog.NewPostgresLog(pool)
		app.health = l
		return l, nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		app.closers = append(app.closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		l := sentlog.NewRedisLog(rdb, cfg.RedisKey)
		app.health = l
		return l, nil

	default:
		return sentlog.NewCSVLog(cfg.SentLogPath), nil
	}
}

// RunFromSource loads the account list and runs the pipeline over it.
func (app *App) RunFromSource(ctx context.Context, opts pipeline.Options) (*pipeline.Summary, error) {
	app.runMu.Lock()
	defer app.runMu.Unlock()

	list, err := app.source.List(ctx)
	if err != nil {
		app.report(ctx, opts.Simulate, err)
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	return app.pipeline.Run(ctx, list, opts)
}

// RunAccounts runs the pipeline over accounts supplied by the caller.
func (app *App) RunAccounts(ctx context.Context, list []model.Account, opts pipeline.Options) (*pipeline.Summary, error) {
	app.runMu.Lock()
	defer app.runMu.Unlock()

	return app.pipeline.Run(ctx, list, opts)
}

// Start queues a run in the background. It satisfies handler.Runner.
func (app *App) Start(list []model.Account, opts pipeline.Options) error {
	app.stateMu.Lock()
	defer app.stateMu.Unlock()

	if app.closing {
		return ErrShuttingDown
	}

	app.runs.Add(1)
	go func() {
		defer app.runs.Done()
		sum, err := app.RunAccounts(app.runCtx, list, opts)
		app.logRun(sum, err)
	}()
	return nil
}

// drainRuns stops accepting runs and waits for queued ones. Runs still going
// after timeout are cancelled.
func (app *App) drainRuns(timeout time.Duration) {
	app.stateMu.Lock()
	app.closing = true
	app.stateMu.Unlock()

	done := make(chan struct{})
	go func() {
		app.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		app.logger.Warn("cancelling unfinished runs")
		app.stopRuns()
		<-done
	}
}

func (app *App) logRun(sum *pipeline.Summary, err error) {
	if err != nil {
		app.logger.Error("run failed", "error", err)
		return
	}
	app.logger.Info("run complete", "run_id", sum.RunID, "accounts", len(sum.Results))
}

// report posts err to the failure reporter, or only logs it when simulating.
func (app *App) report(ctx context.Context, simulate bool, err error) {
	var r pipeline.Reporter = app.reporter
	if simulate {
		r = notify.Discard{Logger: app.logger}
	}
	if rerr := r.Report(ctx, err.Error()); rerr != nil {
		app.logger.Warn("failure report not delivered", "error", rerr)
	}
}

func (app *App) Serve(ctx context.Context) error {
	// Create an errgroup derived from the parent context
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", app.config.Port),
		Handler:      app.routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelError),
	}

	g.Go(func() error {
		app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done() // Wait for OS signal or parent context to fail

		app.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		app.drainRuns(30 * time.Second)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	app.logger.Info("stopped server")
	return nil
}

// Schedule runs the account source on the configured cron schedule and serves
// the HTTP routes alongside it.
func (app *App) Schedule(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cron.PrintfLogger(slog.NewLogLogger(app.logger.Handler(), slog.LevelInfo))),
	)
	_, err := c.AddFunc(app.config.Schedule, func() {
		sum, err := app.RunFromSource(app.runCtx, pipeline.Options{Simulate: app.config.Simulate})
		app.logRun(sum, err)
	})
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", app.config.Schedule, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.Start()
		app.logger.Info("scheduler started", "schedule", app.config.Schedule)
		<-gctx.Done()
		<-c.Stop().Done()
		app.logger.Info("scheduler stopped")
		return nil
	})
	g.Go(func() error {
		return app.Serve(gctx)
	})
	return g.Wait()
}

func newLogger(cfg *config.Config) *slog.Logger {
	logLevel := slog.LevelInfo

	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.IsProduction() {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}
