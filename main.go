package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	clts "whalewatch/clients"
	"whalewatch/config"
	"whalewatch/internal/app"
	"whalewatch/internal/storage"
	"whalewatch/internal/storage/memory"
	"whalewatch/internal/storage/postgres"
)

const connectTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting whalewatch",
		zap.String("env", cfg.App.Env),
		zap.Bool("dryRun", cfg.App.DryRun),
	)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	stores, cleanup, err := buildStores(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer cleanup()

	clients := clts.NewClients(logger, cfg)
	defer clients.Close()

	runner := app.NewRunner(clients, stores, cfg)
	if err := runner.Run(ctx); err != nil {
		logger.Fatal("runner failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.App.LogLevel, err)
	}

	zcfg := zap.NewDevelopmentConfig()
	if cfg.App.IsProd() {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = level

	return zcfg.Build()
}

// buildStores opens Postgres, or the in-memory suite in dry-run mode.
func buildStores(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*storage.Stores, func(), error) {
	if cfg.App.DryRun {
		logger.Warn("dry run: using in-memory stores, nothing is persisted")
		return memory.NewStores(), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	db, err := postgres.Open(connectCtx, cfg.Postgres.DSN(), cfg.Postgres.MaxConns)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.EnsureSchema(connectCtx, db); err != nil {
		db.Close()
		return nil, nil, err
	}

	logger.Info("postgres connected",
		zap.String("host", cfg.Postgres.Host),
		zap.String("database", cfg.Postgres.Database),
	)

	return postgres.NewStores(db), func() { _ = db.Close() }, nil
}
