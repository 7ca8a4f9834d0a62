package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/config"
	"github.com/fjod/go_cart/cart-service/internal/coupon"
	carthttp "github.com/fjod/go_cart/cart-service/internal/http"
	"github.com/fjod/go_cart/cart-service/internal/logger"
	"github.com/fjod/go_cart/cart-service/internal/notify"
	"github.com/fjod/go_cart/cart-service/internal/poller"
	"github.com/fjod/go_cart/cart-service/internal/pricing"
	"github.com/fjod/go_cart/cart-service/internal/session"
	"github.com/fjod/go_cart/cart-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "cart-service"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(os.Stdout, cfg.LogLevel, serviceName)
	zlog.Logger = log

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Mongo is shared by the mongo storage backend and the mongo coupon source.
	var mongoDB *mongo.Database
	if cfg.Storage.Backend == "mongo" || cfg.Coupons.Source == "mongo" {
		conn, err := storage.OpenMongo(ctx, storage.MongoOptions{
			URI:         cfg.Storage.Mongo.URI,
			Database:    cfg.Storage.Mongo.Database,
			MaxPoolSize: cfg.Storage.Mongo.MaxPoolSize,
			MinPoolSize: cfg.Storage.Mongo.MinPoolSize,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to MongoDB")
		}
		defer func() {
			if err := conn.Close(context.Background()); err != nil {
				log.Warn().Err(err).Msg("mongo disconnect")
			}
		}()
		mongoDB = conn.DB
		log.Info().Str("database", cfg.Storage.Mongo.Database).Uint64("max_pool", cfg.Storage.Mongo.MaxPoolSize).Msg("connected to MongoDB")
	}

	backend, closeBackend := openBackend(ctx, cfg, mongoDB, log)
	defer closeBackend()

	catalog := coupon.NewStaticCatalog()
	source := couponSource(cfg, mongoDB)
	if err := coupon.Refresh(ctx, catalog, source); err != nil {
		log.Fatal().Err(err).Msg("failed to load coupon catalog")
	}
	log.Info().Int("coupons", len(catalog.All())).Msg("coupon catalog loaded")
	if cfg.Coupons.RefreshInterval > 0 {
		go coupon.Watch(ctx, catalog, source, cfg.Coupons.RefreshInterval, log)
	}

	sessionCfg := session.Config{
		Backend: backend,
		Catalog: catalog,
		Pricing: pricing.Config{
			BaseShipping:          decimal.NewFromFloat(cfg.Pricing.BaseShipping),
			FreeShippingThreshold: decimal.NewFromFloat(cfg.Pricing.FreeShippingThreshold),
		},
		StalenessWindow: cfg.Cart.StalenessWindow,
		WriteTimeout:    cfg.Cart.WriteTimeout,
		NoticeLimit:     cfg.Cart.NoticeLimit,
		IdleTimeout:     cfg.Cart.IdleTimeout,
		Logger:          log,
	}

	var checkoutPoller *poller.Poller
	if cfg.Kafka.Enabled() {
		writer := notify.NewKafkaWriter(cfg.Kafka.NotificationTopic, cfg.Kafka.Brokers...)
		defer writer.Close()
		sessionCfg.Sink = notify.NewKafkaPublisher(writer, log).ForSession
	}

	registry := session.NewRegistry(sessionCfg)
	if cfg.Cart.EvictionInterval > 0 {
		go registry.RunEviction(ctx, cfg.Cart.EvictionInterval)
	}

	if cfg.Kafka.Enabled() {
		reader := poller.NewKafkaReader(cfg.Kafka.CheckoutTopic, cfg.Kafka.CheckoutGroup, cfg.Kafka.Brokers...)
		checkoutPoller = poller.NewPoller(registry, reader, log)
		go checkoutPoller.Run(ctx)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.CheckoutTopic).Msg("checkout poller started")
	}

	router := carthttp.NewRouter(carthttp.NewCartHandler(registry, cfg.RequestTimeout), log, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("backend", cfg.Storage.Backend).Msg("cart service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down cart service...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	cancel()
	if checkoutPoller != nil {
		checkoutPoller.Close()
	}
	if err := registry.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("pending cart writes lost on shutdown")
	}

	log.Info().Msg("cart service stopped")
}

func openBackend(ctx context.Context, cfg *config.Config, mongoDB *mongo.Database, log zerolog.Logger) (storage.Store, func()) {
	breaker := storage.BreakerSettings{
		Name:             cfg.Storage.Backend,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
	}

	switch cfg.Storage.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		log.Info().Str("addr", cfg.Storage.Redis.Addr).Msg("redis ping succeeded")
		store := storage.NewRedisStore(client, cfg.Storage.Redis.TTL)
		return storage.NewBreakerStore(store, breaker, log), func() { _ = client.Close() }

	case "mongo":
		store := storage.NewMongoStore(mongoDB)
		if err := store.CreateIndexes(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to create cart record indexes")
		}
		return storage.NewBreakerStore(store, breaker, log), func() {}

	default:
		log.Warn().Msg("using in-memory storage; carts do not survive a restart")
		return storage.NewMemoryStore(), func() {}
	}
}

func couponSource(cfg *config.Config, mongoDB *mongo.Database) coupon.Source {
	if cfg.Coupons.Source == "mongo" {
		return coupon.NewMongoSource(mongoDB)
	}
	return coupon.FileSource{Path: cfg.Coupons.File}
}
