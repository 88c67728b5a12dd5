package main

import (
	"context"

	"github.com/atelierops/fulfillment/internal/cache/rediscache"
	"github.com/atelierops/fulfillment/internal/config"
	"github.com/atelierops/fulfillment/internal/coverage"
	"github.com/atelierops/fulfillment/internal/events"
	"github.com/atelierops/fulfillment/internal/storage/pgstore"
	"github.com/atelierops/fulfillment/internal/telemetry"
	"github.com/atelierops/fulfillment/pkg/shipping/aggregator"
	"github.com/atelierops/fulfillment/pkg/shipping/shopify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(cfg *config.Config) (*otelzap.Logger, error) {
	return telemetry.NewLogger(cfg.LogLevel,
		zap.String("service", cfg.ServiceName),
		zap.String("version", cfg.Version),
	)
}

func initTracer(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return func(context.Context) error { return nil }, nil
	}

	_, shutdown, err := telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version, cfg.Attributes()...)
	return shutdown, err
}

func initMetrics(reg prometheus.Registerer) *telemetry.Metrics {
	return telemetry.NewMetrics(reg)
}

// initStorage connects to Postgres and applies the schema.
func initStorage(ctx context.Context, cfg *config.Config) (*pgstore.Storage, error) {
	return pgstore.New(ctx, cfg.DatabaseURL)
}

func openStorage(ctx context.Context, cfg *config.Config) (*pgstore.Storage, error) {
	return pgstore.Open(ctx, cfg.DatabaseURL)
}

// initCache returns nil when Redis is not configured.
func initCache(cfg *config.Config, logger *otelzap.Logger) *rediscache.RedisCache {
	if cfg.RedisAddr == "" {
		logger.Info("Redis not configured, coverage tables are read from Postgres on every label")
		return nil
	}
	return rediscache.New(cfg.RedisAddr)
}

func initResolver(cfg *config.Config, store coverage.Source, cache *rediscache.RedisCache, logger *otelzap.Logger) *coverage.Resolver {
	var c coverage.Cache
	if cache != nil {
		c = cache
	}
	return coverage.NewResolver(store, c, cfg.CoverageCacheTTL, logger)
}

// initEvents returns nil values when no Kafka brokers are configured.
func initEvents(cfg *config.Config, logger *otelzap.Logger) (*events.Producer, *events.Publisher) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("Kafka not configured, shipment events are disabled")
		return nil, nil
	}
	producer := events.NewProducer(cfg.KafkaBrokers)
	return producer, events.NewPublisher(producer, cfg.KafkaTopic)
}

func initLabelProvider(cfg *config.Config, logger *otelzap.Logger) *aggregator.Client {
	return aggregator.New(aggregator.Config{
		APIKey:         cfg.CarrierAPIKey,
		BaseURL:        cfg.CarrierBaseURL,
		Timeout:        cfg.CarrierTimeout,
		UseMock:        cfg.CarrierUseMock,
		DefaultService: cfg.CarrierDefaultService,
		Currency:       cfg.CarrierCurrency,
		Origin:         cfg.Origin(),
		DefaultPackage: cfg.DefaultPackage(),
		Breaker:        cfg.Breaker("aggregator"),
	}, logger, otel.Tracer("aggregator"))
}

func initPlatform(cfg *config.Config, logger *otelzap.Logger) *shopify.Client {
	return shopify.New(shopify.Config{
		ShopDomain:  cfg.ShopifyShopDomain,
		AccessToken: cfg.ShopifyAccessToken,
		APIVersion:  cfg.ShopifyAPIVersion,
		UseGraphQL:  cfg.ShopifyUseGraphQL,
		UseMock:     cfg.ShopifyUseMock,
		Timeout:     cfg.ShopifyTimeout,
		Breaker:     cfg.Breaker("shopify"),
	}, logger, otel.Tracer("shopify"))
}
