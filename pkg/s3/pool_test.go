package s3

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poolConfig() Config {
	cfg := *NewDefaultConfig()
	cfg.AccKey = "ak"
	cfg.SecKey = "sk"
	return cfg
}

func TestPoolRejectsBadConfig(t *testing.T) {
	_, err := NewConnectionPool(2, Config{})
	assert.Error(t, err)
}

func TestPoolCreatesLazily(t *testing.T) {
	pool, err := NewConnectionPool(2, poolConfig())
	require.NoError(t, err)
	defer pool.Close()

	stats := pool.Stats()
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 2, stats.MaxSize)

	conn, err := pool.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, conn)

	stats = pool.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 0, stats.Idle)
	assert.Equal(t, int64(1), stats.Created)
	assert.Equal(t, int64(1), stats.Misses)

	pool.Put(conn)
	stats = pool.Stats()
	assert.Equal(t, 1, stats.Idle)
}

func TestPoolReusesReturnedConnection(t *testing.T) {
	pool, err := NewConnectionPool(2, poolConfig())
	require.NoError(t, err)
	defer pool.Close()

	conn, err := pool.Get(context.Background())
	require.NoError(t, err)
	pool.Put(conn)

	again, err := pool.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, conn, again)
	assert.Equal(t, int64(1), pool.Stats().Hits)
	pool.Put(again)
}

func TestPoolBlocksWhenExhausted(t *testing.T) {
	pool, err := NewConnectionPool(1, poolConfig())
	require.NoError(t, err)
	defer pool.Close()

	conn, err := pool.Get(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Get(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out waiting for a connection")
	assert.Equal(t, int64(1), pool.Stats().Timeouts)

	pool.Put(conn)
	again, err := pool.Get(context.Background())
	require.NoError(t, err)
	pool.Put(again)
}

func TestPoolUnblocksOnPut(t *testing.T) {
	pool, err := NewConnectionPool(1, poolConfig())
	require.NoError(t, err)
	defer pool.Close()

	conn, err := pool.Get(context.Background())
	require.NoError(t, err)

	done := make(chan *Connection, 1)
	go func() {
		c, err := pool.Get(context.Background())
		if err == nil {
			done <- c
		}
	}()

	time.Sleep(10 * time.Millisecond)
	pool.Put(conn)

	select {
	case c := <-done:
		pool.Put(c)
	case <-time.After(time.Second):
		t.Fatal("waiter was not handed the returned connection")
	}
}

func TestPoolClosed(t *testing.T) {
	pool, err := NewConnectionPool(1, poolConfig())
	require.NoError(t, err)

	conn, err := pool.Get(context.Background())
	require.NoError(t, err)

	pool.Close()
	_, err = pool.Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool is closed")

	// Returning after close disposes of the connection.
	pool.Put(conn)
	assert.Equal(t, 0, pool.Stats().Total)
}

func TestPoolDefaultSize(t *testing.T) {
	pool, err := NewConnectionPool(0, poolConfig())
	require.NoError(t, err)
	defer pool.Close()
	assert.Equal(t, 8, pool.Stats().MaxSize)
}
