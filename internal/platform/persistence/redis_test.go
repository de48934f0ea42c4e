package persistence

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/resident-trust-ledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisDB_Unreachable(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	cfg := &config.RedisConfig{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
	}

	db, err := NewRedisDB(context.Background(), logger, cfg)
	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}
