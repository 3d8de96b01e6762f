// Command arena-server runs the multiplayer session server: a websocket
// endpoint backed by the session registry and an optional Redis stat store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TamimC/VibeGameSpace/arena"
	"github.com/TamimC/VibeGameSpace/goldstore"
)

func main() {
	addr := flag.String("addr", getenvDefault("ARENA_ADDR", ":8080"), "listen address")
	redisAddr := flag.String("redis", getenvDefault("ARENA_REDIS", ""), "redis address for durable stats, empty for in-memory")
	logLevel := flag.String("log-level", getenvDefault("ARENA_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	flag.Parse()

	logger := buildLogger(*logLevel)

	if err := run(*addr, *redisAddr, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(addr string, redisAddr string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildStore(ctx, redisAddr, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := arena.NewHub(store, logger)
	defer hub.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", arena.Handler(hub, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok players=%d\n", hub.PlayerCount())
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("arena server listening", "addr", addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func buildStore(ctx context.Context, redisAddr string, logger *slog.Logger) (goldstore.Store, func(), error) {
	if redisAddr == "" {
		logger.Info("using in-memory stat store")
		return goldstore.NewMemoryStore(), func() {}, nil
	}
	store, err := goldstore.DialRedis(ctx, redisAddr)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using redis stat store", "addr", redisAddr)
	return store, func() { _ = store.Close() }, nil
}

func getenvDefault(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func buildLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
