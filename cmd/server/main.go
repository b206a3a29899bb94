package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	rediscache "github.com/ogurasousui/hr-analytics/internal/adapters/cache/redis"
	"github.com/ogurasousui/hr-analytics/internal/adapters/repository/postgres"
	"github.com/ogurasousui/hr-analytics/internal/adapters/spreadsheet"
	"github.com/ogurasousui/hr-analytics/internal/core/roster"
	"github.com/ogurasousui/hr-analytics/internal/platform/config"
	pg "github.com/ogurasousui/hr-analytics/internal/platform/db/postgres"
	"github.com/ogurasousui/hr-analytics/internal/platform/logger"
	"github.com/ogurasousui/hr-analytics/internal/platform/server"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to CONFIG_PATH env or assets/local.yaml)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(effectiveConfigPath(*configPath))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	var (
		store roster.Store
		tx    roster.TransactionManager
	)

	switch cfg.Source.Kind {
	case config.SourcePostgres:
		dbPool, err := pg.NewPool(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("initialize database pool: %w", err)
		}
		defer dbPool.Close()
		store = postgres.NewRecordRepository(dbPool)
		tx = pg.NewTransactionManager(dbPool)
	default:
		fileStore, err := spreadsheet.NewStore(cfg.Source.Path, cfg.Source.Sheet)
		if err != nil {
			return fmt.Errorf("initialize spreadsheet source: %w", err)
		}
		store = fileStore
	}

	opts := []roster.Option{roster.WithLogger(zl)}
	if cfg.Pipeline.AsOf != nil {
		opts = append(opts, roster.WithAsOf(*cfg.Pipeline.AsOf))
	}
	if cfg.Cache.Kind == config.CacheRedis {
		rdb, err := rediscache.Dial(ctx, cfg.Cache, zl)
		if err != nil {
			return fmt.Errorf("initialize redis cache: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		opts = append(opts, roster.WithViewCache(rediscache.New(rdb, cfg.Cache.Prefix, cfg.Cache.TTL)))
	}

	svc := roster.NewService(store, nil, tx, opts...)
	zl.Info("analytics service configured",
		zap.String("source", cfg.Source.Kind),
		zap.String("cache", cfg.Cache.Kind),
	)

	return server.New(cfg.Server.ListenAddr, svc, zl).Run(ctx)
}

func effectiveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return "assets/local.yaml"
}
