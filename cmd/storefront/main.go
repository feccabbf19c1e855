package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tgsps/coffee-sub000/gateway"
	"github.com/Tgsps/coffee-sub000/pkg/auth"
	"github.com/Tgsps/coffee-sub000/pkg/config"
	"github.com/Tgsps/coffee-sub000/pkg/discovery"
	"github.com/Tgsps/coffee-sub000/pkg/events"
	grpcserver "github.com/Tgsps/coffee-sub000/pkg/grpc"
	"github.com/Tgsps/coffee-sub000/pkg/logger"
	"github.com/Tgsps/coffee-sub000/pkg/metrics"
	"github.com/Tgsps/coffee-sub000/pkg/repository"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// @title Coffee Storefront API
// @version 1.0
// @description Catalog, accounts and checkout for the coffee storefront.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.New(&cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()

	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT secret is not configured, set JWT_SECRET")
	}

	log.Info("Starting storefront",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port))

	ctx := context.Background()
	hasher := auth.NewHasher(cfg.Auth.BcryptCost)
	store := repository.Open(ctx, &cfg.MongoDB, hasher, log)

	m := metrics.New()
	m.SetBackend(store.Backend())

	deps := gateway.Deps{
		Products: store,
		Users:    store,
		Orders:   store,
		Audit:    store,
		Ping:     store.Ping,
		Backend:  store.Backend(),
		Hasher:   hasher,
		Tokens:   auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Metrics:  m,
	}

	var cache *repository.RedisRepository
	if cfg.Redis.Addr != "" {
		cache = repository.NewRedisRepository(&cfg.Redis)
		if err := cache.Ping(ctx); err != nil {
			log.Warn("Failed to connect to Redis, continuing without cache", zap.Error(err))
			_ = cache.Close()
			cache = nil
		} else {
			deps.Products = repository.NewCachedProducts(store, cache, cfg.Redis.CacheTTL, log)
			deps.Limiter = cache
		}
	}

	var publisher events.Publisher = events.NewLogPublisher(log)
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Warn("Failed to connect to Kafka, order events will only be logged", zap.Error(err))
		} else {
			publisher = kp
		}
	}

	dispatcher, err := events.NewDispatcher(publisher, store, log)
	if err != nil {
		log.Fatal("Failed to start order event dispatcher", zap.Error(err))
	}
	deps.Events = dispatcher

	var health *grpcserver.HealthServer
	if cfg.GRPC.Port > 0 {
		health = grpcserver.NewHealthServer(&cfg.GRPC, cfg.Server.Name, log)
		go func() {
			if err := health.Start(); err != nil {
				log.Error("gRPC health server stopped", zap.Error(err))
			}
		}()
	}

	var sd *discovery.ServiceDiscovery
	instance := &discovery.ServiceInstance{
		Name:    cfg.Server.Name,
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Backend: store.Backend(),
	}
	if len(cfg.Etcd.Endpoints) > 0 {
		sd, err = discovery.NewServiceDiscovery(&cfg.Etcd, log)
		if err != nil {
			log.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
		} else if err := sd.Register(ctx, instance); err != nil {
			log.Warn("Failed to register with etcd", zap.Error(err))
		}
	}

	gw := gateway.NewGateway(cfg, log, deps)

	gwErr := make(chan error, 1)
	go func() {
		if err := gw.Start(); err != nil {
			gwErr <- err
		}
	}()

	if health != nil {
		health.SetServing(true)
	}
	log.Info("Storefront started successfully", zap.String("backend", store.Backend()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("Received shutdown signal")
	case err := <-gwErr:
		log.Error("Gateway error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if health != nil {
		health.SetServing(false)
	}
	if sd != nil {
		if err := sd.Deregister(shutdownCtx, instance); err != nil {
			log.Warn("Failed to deregister from etcd", zap.Error(err))
		}
		sd.Close()
	}
	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.Error("Gateway shutdown failed", zap.Error(err))
	}
	if err := dispatcher.Stop(); err != nil {
		log.Warn("Order event publisher did not close cleanly", zap.Error(err))
	}
	if health != nil {
		health.Stop()
	}
	if cache != nil {
		_ = cache.Close()
	}
	if err := store.Close(shutdownCtx); err != nil {
		log.Warn("Failed to close store", zap.Error(err))
	}

	log.Info("Storefront stopped")
}
