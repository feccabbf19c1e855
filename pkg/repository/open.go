package repository

import (
	"context"

	"github.com/Tgsps/coffee-sub000/pkg/auth"
	"github.com/Tgsps/coffee-sub000/pkg/config"
	"go.uber.org/zap"
)

// Open picks the backend once. An empty URI or a failed connection selects
// the in-memory store; the durable backend is not retried afterwards.
func Open(ctx context.Context, cfg *config.MongoDBConfig, hasher *auth.Hasher, logger *zap.Logger) Store {
	if cfg.URI == "" {
		logger.Info("No MongoDB URI configured, using in-memory store")
		return NewMemoryStore(hasher)
	}

	store, err := NewMongoStore(ctx, cfg, hasher)
	if err != nil {
		logger.Warn("MongoDB unavailable, falling back to in-memory store", zap.Error(err))
		return NewMemoryStore(hasher)
	}

	logger.Info("Connected to MongoDB", zap.String("database", cfg.Database))
	return store
}
