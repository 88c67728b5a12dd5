package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/atelierops/fulfillment/internal/coverage"
	"github.com/atelierops/fulfillment/internal/orchestrator"
	"github.com/atelierops/fulfillment/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "fulfillment",
	Short:   "Shipment fulfillment orchestrator - carrier labels and Shopify fulfillments",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE:  runMigrate,
}

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Manage carrier coverage reference data",
}

var coverageImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an organization's coverage table from a YAML file",
	RunE:  runCoverageImport,
}

func init() {
	coverageImportCmd.Flags().String("org", "", "organization id")
	coverageImportCmd.Flags().String("file", "", "path to the coverage YAML file")
	_ = coverageImportCmd.MarkFlagRequired("org")
	_ = coverageImportCmd.MarkFlagRequired("file")

	coverageCmd.AddCommand(coverageImportCmd)
	rootCmd.AddCommand(serveCmd, migrateCmd, coverageCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(context.Background())
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	checks := map[string]server.HealthCheck{"postgres": store.Ping}

	cache := initCache(cfg, logger)
	if cache != nil {
		defer cache.Close()
		checks["redis"] = cache.Ping
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []orchestrator.Option{
		orchestrator.WithMetrics(initMetrics(registry)),
		orchestrator.WithTracer(otel.Tracer(cfg.ServiceName)),
	}
	if producer, publisher := initEvents(cfg, logger); publisher != nil {
		defer producer.Close()
		opts = append(opts, orchestrator.WithPublisher(publisher))
	}

	orch := orchestrator.New(
		store,
		initResolver(cfg, store, cache, logger),
		initLabelProvider(cfg, logger),
		initPlatform(cfg, logger),
		logger,
		opts...,
	)

	logger.Info("Starting fulfillment orchestrator",
		zap.Int("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.Bool("carrier_mock", cfg.CarrierUseMock),
		zap.Bool("shopify_mock", cfg.ShopifyUseMock),
	)

	srv := server.New(server.Config{
		Port:     cfg.Port,
		Gatherer: registry,
		Checks:   checks,
	}, orch, logger)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("Schema applied")
	return nil
}

func runCoverageImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	orgID, _ := cmd.Flags().GetString("org")
	path, _ := cmd.Flags().GetString("file")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	rows, err := coverage.LoadFile(path, orgID)
	if err != nil {
		return err
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.UpsertCoverage(ctx, rows); err != nil {
		return fmt.Errorf("import coverage: %w", err)
	}

	if cache := initCache(cfg, logger); cache != nil {
		defer cache.Close()
		if err := initResolver(cfg, store, cache, logger).Invalidate(ctx, orgID); err != nil {
			logger.Warn("Failed to invalidate coverage cache", zap.String("org_id", orgID), zap.Error(err))
		}
	}

	logger.Info("Coverage imported", zap.String("org_id", orgID), zap.Int("rows", len(rows)))
	return nil
}
