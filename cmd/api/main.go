package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/streamchat/internal/config"
	"github.com/zhouzirui/streamchat/internal/handler"
	"github.com/zhouzirui/streamchat/internal/service/cache"
	"github.com/zhouzirui/streamchat/internal/service/upstream"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zlogger := newLogger(cfg.Server)
	defer func() { _ = zlogger.Sync() }()
	undo := zap.ReplaceGlobals(zlogger)
	defer undo()
	sugar := zlogger.Sugar()

	if envErr != nil {
		sugar.Infow("no .env file loaded, continuing with system environment only", "err", envErr)
	}

	if !cfg.Upstream.Enabled() {
		sugar.Warn("GEMINI_API_KEY not set, /api/chat will answer 500 until it is configured")
	}
	upstreamClient := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Model, cfg.Upstream.APIKey, nil)

	store, closeStore := newStore(ctx, cfg.Cache, sugar)
	defer closeStore()
	go cache.RunSweeper(ctx, store, cfg.Cache.SweepInterval)

	router := handler.NewRouter(upstreamClient, store, cfg.Server.HandlerTimeout)

	startServer(ctx, cfg.Server, router, sugar)
}

func newLogger(serverCfg config.ServerConfig) *zap.Logger {
	var (
		zlogger *zap.Logger
		err     error
	)
	if serverCfg.Development() {
		zlogger, err = zap.NewDevelopment()
	} else {
		zlogger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	return zlogger
}

func newStore(ctx context.Context, cacheCfg config.CacheConfig, sugar *zap.SugaredLogger) (cache.Store, func()) {
	if cacheCfg.RedisURI == "" {
		sugar.Infow("conversation cache in memory", "ttl", cacheCfg.TTL)
		return cache.NewMemoryStore(cacheCfg.TTL), func() {}
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	store, err := cache.DialRedis(dialCtx, cacheCfg.RedisURI, cacheCfg.TTL)
	if err != nil {
		sugar.Warnw("redis cache unavailable, falling back to memory", "err", err)
		return cache.NewMemoryStore(cacheCfg.TTL), func() {}
	}
	sugar.Infow("conversation cache in redis", "ttl", cacheCfg.TTL)
	return store, func() { _ = store.Close() }
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, sugar *zap.SugaredLogger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sugar.Infow("streamchat relay listening", "addr", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		sugar.Fatalw("server error", "err", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
