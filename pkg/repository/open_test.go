package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Tgsps/coffee-sub000/pkg/auth"
	"github.com/Tgsps/coffee-sub000/pkg/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestOpenWithoutURIUsesMemory(t *testing.T) {
	store := Open(context.Background(), &config.MongoDBConfig{}, auth.NewHasher(4), zap.NewNop())
	assert.Equal(t, BackendMemory, store.Backend())
}

func TestOpenFallsBackWhenMongoUnreachable(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := &config.MongoDBConfig{
		URI:             "mongodb://127.0.0.1:1/?directConnection=true",
		Database:        "unreachable",
		AuditCollection: "audit_logs",
		ConnectTimeout:  300 * time.Millisecond,
	}

	store := Open(context.Background(), cfg, auth.NewHasher(4), zap.New(core))

	assert.Equal(t, BackendMemory, store.Backend())
	assert.Equal(t, 1, logs.FilterMessage("MongoDB unavailable, falling back to in-memory store").Len())
}
