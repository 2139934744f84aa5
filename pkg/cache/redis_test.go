package cache

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rc-quote-api/pkg/config"
)

func TestNewRedisConnects(t *testing.T) {
	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	require.NoError(t, err)

	client, err := NewRedis(context.Background(), config.RedisConfig{Host: srv.Host(), Port: port})
	require.NoError(t, err)
	defer client.Close() //nolint:errcheck

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	srv.CheckGet(t, "k", "v")
}

func TestNewRedisFailsWhenUnreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	require.NoError(t, err)
	srv.Close()

	_, err = NewRedis(context.Background(), config.RedisConfig{Host: "127.0.0.1", Port: port})
	require.Error(t, err)
}

func TestAddr(t *testing.T) {
	require.Equal(t, "localhost:6379", Addr(config.RedisConfig{Host: "localhost", Port: 6379}))
	require.Equal(t, "[::1]:6380", Addr(config.RedisConfig{Host: "::1", Port: 6380}))
}
