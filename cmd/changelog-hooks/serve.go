package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/pflag"

	hooks "github.com/goliatone/go-changelog-hooks"
	"github.com/goliatone/go-changelog-hooks/core"
)

const shutdownTimeout = 15 * time.Second

type serveOptions struct {
	addr           string
	path           string
	logLevel       string
	logFormat      string
	environment    string
	classifierMode string
	ledgerDriver   string
	ledgerDSN      string
	async          bool
	workers        int
}

func (o *serveOptions) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&o.addr, "addr", envOr("CHANGELOG_HOOKS_ADDR", ":8080"), "HTTP listen address")
	flagSet.StringVar(&o.path, "path", "/webhooks/github", "webhook endpoint path")
	flagSet.StringVar(&o.logLevel, "log-level", envOr("CHANGELOG_HOOKS_LOG_LEVEL", "info"), "log level: trace, debug, info, warn or error")
	flagSet.StringVar(&o.logFormat, "log-format", "json", "log format: json or text")
	flagSet.StringVar(&o.environment, "environment", "", "override environment (production or development)")
	flagSet.StringVar(&o.classifierMode, "classifier-mode", "", "override classifier.mode (llm or rules)")
	flagSet.StringVar(&o.ledgerDriver, "ledger-driver", "", "override ledger.driver (memory, sqlite3 or postgres)")
	flagSet.StringVar(&o.ledgerDSN, "ledger-dsn", "", "override ledger.dsn")
	flagSet.BoolVar(&o.async, "async", false, "queue deliveries and process them with background workers")
	flagSet.IntVar(&o.workers, "workers", 0, "override intake.workers")
}

// runtimeConfig holds only flags the operator actually set, so unset flags
// never mask environment values.
func (o *serveOptions) runtimeConfig(flagSet *pflag.FlagSet) core.Config {
	var runtime core.Config
	if flagSet.Changed("environment") {
		runtime.Environment = o.environment
	}
	if flagSet.Changed("classifier-mode") {
		runtime.Classifier.Mode = o.classifierMode
	}
	if flagSet.Changed("ledger-driver") {
		runtime.Ledger.Driver = o.ledgerDriver
	}
	if flagSet.Changed("ledger-dsn") {
		runtime.Ledger.DSN = o.ledgerDSN
	}
	if flagSet.Changed("async") {
		runtime.Intake.Async = o.async
	}
	if flagSet.Changed("workers") {
		runtime.Intake.Workers = o.workers
	}
	return runtime
}

func serve(ctx context.Context, cfg core.Config, opts serveOptions, logOut io.Writer) error {
	logger := newSlogLogger(logOut, opts.logFormat, opts.logLevel)
	buildOpts := []hooks.Option{
		hooks.WithLogger(logger),
		hooks.WithLoggerProvider(slogProvider{root: logger}),
	}

	client, err := openLedgerDB(ctx, cfg.Ledger)
	if err != nil {
		return err
	}
	if client != nil {
		defer func() { _ = client.Close() }()
		buildOpts = append(buildOpts, hooks.WithPersistenceClient(client))
	}

	app, err := hooks.New(ctx, cfg, buildOpts...)
	if err != nil {
		return err
	}
	subs, err := app.SubscribeCommands()
	if err != nil {
		return err
	}
	defer subs.Unsubscribe()

	mux := http.NewServeMux()
	mux.Handle(opts.path, app.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "service": cfg.ServiceName})
	})
	server := &http.Server{
		Addr:              opts.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	workersDone := make(chan error, 1)
	go func() {
		workersDone <- app.RunWorkers(ctx)
	}()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.ListenAndServe()
	}()
	logger.Info("changelog hooks listening",
		"address", opts.addr,
		"path", opts.path,
		"environment", cfg.Environment,
		"classifier_mode", cfg.Classifier.Mode,
		"ledger_driver", cfg.Ledger.Driver,
		"async_intake", cfg.Intake.Async,
	)

	select {
	case err := <-serverDone:
		app.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("changelog hooks shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err.Error())
	}
	app.Close()
	return <-workersDone
}
