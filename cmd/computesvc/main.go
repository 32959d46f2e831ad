package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"chartlinkv1/config"
	"chartlinkv1/internal/logger"
	"chartlinkv1/internal/service"
	"chartlinkv1/internal/store/redis"
	"chartlinkv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("computesvc", slog.LevelInfo)

	cfg := config.Load()

	store, err := sqlite.New(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[computesvc] sqlite init failed: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hot cache is best-effort: the service runs degraded without Redis.
	var hot *redis.BufferedCache
	if cfg.RedisAddr != "" {
		cache, err := redis.New(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Printf("[computesvc] redis unavailable, running without hot cache: %v", err)
		} else {
			defer cache.Close()
			cb := redis.NewCircuitBreaker(5, 10*time.Second)
			cb.OnStateChange = func(from, to redis.State) {
				log.Printf("[computesvc] redis circuit breaker: %s -> %s", from, to)
			}
			hot = redis.NewBufferedCache(ctx, cache, cb, 0)
		}
	}

	srv, err := service.New(service.Config{
		RequestAddr: ":" + strconv.Itoa(cfg.RequestPort),
		PushAddr:    ":" + strconv.Itoa(cfg.PushPort),
		ReplyAddr:   ":" + strconv.Itoa(cfg.ReplyPort),
		TOTPSecret:  cfg.LinkTOTPSecret,
		Store:       store,
		Hot:         hot,
	})
	if err != nil {
		log.Fatalf("[computesvc] init failed: %v", err)
	}
	srv.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("[computesvc] shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Stop(shutdownCtx)
}
