package main

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/streamchat/internal/config"
	"github.com/zhouzirui/streamchat/internal/service/cache"
)

func TestRunServerStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := &http.Server{Addr: addr, Handler: http.NotFoundHandler()}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- runServer(ctx, srv) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNewStorePicksBackend(t *testing.T) {
	sugar := zap.NewNop().Sugar()
	ctx := context.Background()

	store, closeFn := newStore(ctx, config.CacheConfig{TTL: time.Hour}, sugar)
	defer closeFn()
	require.IsType(t, &cache.MemoryStore{}, store)

	mr := miniredis.RunT(t)
	store, closeFn = newStore(ctx, config.CacheConfig{TTL: time.Hour, RedisURI: "redis://" + mr.Addr()}, sugar)
	defer closeFn()
	require.IsType(t, &cache.RedisStore{}, store)

	store, closeFn = newStore(ctx, config.CacheConfig{TTL: time.Hour, RedisURI: "redis://127.0.0.1:1"}, sugar)
	defer closeFn()
	require.IsType(t, &cache.MemoryStore{}, store)
}
