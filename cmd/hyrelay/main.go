package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hyrelay/hyrelay/internal/config"
	"github.com/hyrelay/hyrelay/internal/mcwire"
	"github.com/hyrelay/hyrelay/internal/obslog"
	"github.com/hyrelay/hyrelay/internal/relay"
	"github.com/hyrelay/hyrelay/internal/statcache"
	"github.com/hyrelay/hyrelay/internal/stats"
	"github.com/hyrelay/hyrelay/internal/upstream"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	env, err := config.LoadEnv()
	if err != nil {
		log.Fatalf("environment error: %v", err)
	}
	cfg, err := config.Load(env.ConfigFile)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	api := stats.NewClient(env.APIKey)
	pinger := upstream.NewHTTPPinger(env.PingURL)

	var rdb *redis.Client
	if env.RedisURL != "" {
		opts, err := redis.ParseURL(env.RedisURL)
		if err != nil {
			log.Fatalf("redis url error: %v", err)
		}
		rdb = redis.NewClient(opts)
	}

	// one session at a time; a second client is turned away
	var active atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		if !active.CompareAndSwap(false, true) {
			http.Error(w, "session already active", http.StatusConflict)
			return
		}
		defer active.Store(false)

		client, err := mcwire.Accept(w, r)
		if err != nil {
			obslog.L().Error("client accept failed", zap.Error(err))
			return
		}
		obslog.L().Info("client connected to relay")

		target, err := mcwire.Dial(r.Context(), env.TargetURL)
		if err != nil {
			obslog.L().Error("target dial failed", zap.String("url", env.TargetURL), zap.Error(err))
			_ = client.Close()
			return
		}

		id := uuid.NewString()
		var cache statcache.Cache = statcache.NewMemory()
		if rdb != nil {
			cache = statcache.NewRedis(rdb, id)
		}

		s := relay.NewSession(relay.Params{
			ID:     id,
			Client: client,
			Target: target,
			Cfg:    cfg,
			API:    api,
			Cache:  cache,
			Pinger: pinger,
		})
		s.Run()
		<-s.Done()
	})

	srv := &http.Server{Addr: env.Listen, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()
	obslog.L().Info("relay listening", zap.String("addr", env.Listen), zap.String("target", env.TargetURL))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
