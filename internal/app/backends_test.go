package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/resident-trust-ledger/internal/config"
	"github.com/resident-trust-ledger/internal/platform/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestOpen_Memory(t *testing.T) {
	tests := []struct {
		name      string
		cacheType string
		want      interface{}
	}{
		{name: "MemoryCache", cacheType: config.CacheDriverMemory, want: &cache.MemoryCache{}},
		{name: "NoCache", cacheType: config.CacheDriverNone, want: cache.Noop{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Store: config.StoreConfig{Driver: config.StoreDriverMemory},
				Cache: config.CacheConfig{Driver: tt.cacheType, TTL: time.Minute},
			}

			b, err := Open(context.Background(), testLogger(), cfg)
			require.NoError(t, err)
			defer b.Close(context.Background())

			assert.False(t, b.Durable())
			assert.IsType(t, tt.want, b.Cache)
			assert.NotNil(t, b.Repos.Residents)
			assert.NotNil(t, b.Repos.Withdrawals)
			assert.NotNil(t, b.Outbox)
		})
	}
}

func TestOpen_Rejected(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
	}{
		{
			name: "UnknownStore",
			cfg:  config.Config{Store: config.StoreConfig{Driver: "sqlite"}},
		},
		{
			name: "UnknownCache",
			cfg: config.Config{
				Store: config.StoreConfig{Driver: config.StoreDriverMemory},
				Cache: config.CacheConfig{Driver: "memcached"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Open(context.Background(), testLogger(), &tt.cfg)
			assert.Error(t, err)
			assert.Nil(t, b)
		})
	}
}
