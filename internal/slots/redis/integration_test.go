package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-reviews/internal/common"
	"ms-reviews/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	defer client.Close()

	r := NewRedis(client, time.Second, time.Minute, logger.Nop())

	release, err := r.Acquire(ctx, "user-1")
	require.NoError(t, err)

	_, err = r.Acquire(ctx, "user-1")
	assert.True(t, errors.Is(err, common.ErrClaimInProgress))

	release()
	again, err := r.Acquire(ctx, "user-1")
	require.NoError(t, err)
	again()

	first, err := r.MarkSynchronized(ctx, 1, "2026-03-10")
	require.NoError(t, err)
	assert.True(t, first)
}
