//go:build integration

package cartstore

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/susutoys/storefront/cart"
)

func TestRedisKV_Integration(t *testing.T) {
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	addr, err := c.Endpoint(ctx, "")
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	s := New(NewRedisKV(client, 0), zerolog.Nop())
	_, err = s.Add(ctx, "v1", cart.Entry{ID: 1, Name: "A", Price: 10})
	require.NoError(t, err)
	_, err = s.Add(ctx, "v1", cart.Entry{ID: 1, Name: "A", Price: 10})
	require.NoError(t, err)

	entries, err := s.Load(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Quantity)

	require.NoError(t, s.Clear(ctx, "v1"))
	entries, err = s.Load(ctx, "v1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
