//go:build integration

package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"claimstack/internal/lookup/service"
	platformredis "claimstack/internal/platform/redis"
	"claimstack/pkg/testutil/containers"
)

func TestRedisCacheRoundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := service.NewRedisCache(&platformredis.Client{Client: rc.Client}, logger)

	_, ok := cache.Get(ctx, "lookup:v1:test")
	require.False(t, ok)

	cache.Set(ctx, "lookup:v1:test", []byte(`[{"id":"a"}]`), time.Minute)
	raw, ok := cache.Get(ctx, "lookup:v1:test")
	require.True(t, ok)
	require.JSONEq(t, `[{"id":"a"}]`, string(raw))

	// Expired entries read as misses.
	cache.Set(ctx, "lookup:v1:ttl", []byte(`[]`), 50*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	_, ok = cache.Get(ctx, "lookup:v1:ttl")
	require.False(t, ok)
}
