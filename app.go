// Package main is the entry point for the perimeter API server.
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

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/thirukguru/perimeter-api/model"
	"github.com/thirukguru/perimeter-api/service/crypto"
	"github.com/thirukguru/perimeter-api/service/dashboard"
	"github.com/thirukguru/perimeter-api/service/jobs"
	"github.com/thirukguru/perimeter-api/service/scanapi"
	"github.com/thirukguru/perimeter-api/service/scanner"
	"github.com/thirukguru/perimeter-api/service/scanstore"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	DBPath          string        `env:"DB_PATH" envDefault:"./data/scans.db"`
	EncryptionKey   string        `env:"CREDENTIAL_ENCRYPTION_KEY,required"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	ScanWorkers     int           `env:"SCAN_WORKERS" envDefault:"4"`
	ScanQueueSize   int           `env:"SCAN_QUEUE_SIZE" envDefault:"64"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	showVersion := pflag.BoolP("version", "v", false, "print version and exit")
	port := pflag.String("port", "", "listen port (overrides PORT)")
	dbPath := pflag.String("db-path", "", "sqlite database path (overrides DB_PATH)")
	logLevel := pflag.String("log-level", "", "log level (overrides LOG_LEVEL)")
	pflag.Parse()

	if *showVersion {
		info := model.VersionInfo{Version: version, Commit: commit, Date: date}
		fmt.Printf("perimeter-api %s (commit %s, built %s)\n", info.Version, info.Commit, info.Date)
		return nil
	}

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := scanstore.NewService(cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("failed to open scan store: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	cryptoSvc, err := crypto.NewService(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to init credential crypto: %w", err)
	}

	jobsSvc := jobs.NewService(cfg.ScanWorkers, cfg.ScanQueueSize, logger)
	scanSvc := scanner.NewService(logger)
	dashSvc := dashboard.NewService(store, logger)

	handler := scanapi.NewRouter(store, dashSvc, cryptoSvc, scanSvc, jobsSvc, logger)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", server.Addr),
			zap.String("version", version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	if err := jobsSvc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("job runner shutdown incomplete", zap.Error(err))
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	parsed, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = parsed
	return cfg.Build()
}
