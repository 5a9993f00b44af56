//go:build integration

package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/city-data-fetch/pkg/cache"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// TestFullRequestFlow runs windows through Fetcher → Transport → Redis cache → Writer,
// then re-runs after deleting the artifacts so every page is served from Redis.
func TestFullRequestFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	rig := newRequestsRig(t, cache.NewRedisStore(redisClient))
	ctx := context.Background()

	summary, err := rig.driver.Run(ctx, rig.params)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if summary.Processed != 3 {
		t.Errorf("first run processed %d windows, want 3", summary.Processed)
	}

	upstream := rig.mock.GetRequestCount()
	if upstream != 10 {
		t.Errorf("upstream requests = %d, want 10", upstream)
	}

	keys, err := redisClient.Keys(ctx, cache.KeyPrefix+":*").Result()
	if err != nil {
		t.Fatalf("list cache keys: %v", err)
	}
	if len(keys) != upstream {
		t.Errorf("cached responses = %d, want %d", len(keys), upstream)
	}

	entries, err := os.ReadDir(rig.dir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	for _, e := range entries {
		os.Remove(filepath.Join(rig.dir, e.Name()))
	}

	summary, err = rig.driver.Run(ctx, rig.params)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if summary.Rows != 40 {
		t.Errorf("second run wrote %d rows, want 40", summary.Rows)
	}
	if got := rig.mock.GetRequestCount(); got != upstream {
		t.Errorf("second run made %d upstream requests, want 0", got-upstream)
	}
}
