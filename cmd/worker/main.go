package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beststore/accounts/internal/config"
	"github.com/beststore/accounts/internal/db"
	"github.com/beststore/accounts/internal/observability"
	"github.com/beststore/accounts/internal/repo/postgres"
	"github.com/beststore/accounts/internal/repo/redisstore"
	"github.com/beststore/accounts/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env).With("component", "reset-sweeper")
	slog.SetDefault(log)

	if cfg.Storage == "memory" {
		log.Error("the sweeper needs shared storage; STORAGE=memory is per process")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	var (
		purger worker.Purger
		deps   worker.ReadinessDeps
	)

	switch cfg.ResetStore {
	case "redis":
		rdb, err := redisstore.Connect(ctx, redisstore.ConnOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Error("redis connect failed", "err", err)
			os.Exit(1)
		}
		defer func() { _ = rdb.Close() }()

		store := redisstore.NewPasswordResetsRepo(rdb, cfg.ResetTokenTTL)
		purger = store
		deps = store

	default:
		pool, err := db.NewPool(ctx, cfg.DBURL, 2)
		if err != nil {
			log.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		purger = postgres.NewPasswordResetsRepo(pool, prom)
		deps = pool
	}

	sweeper, err := worker.New(worker.Config{
		Interval: cfg.ResetSweepInterval,
		TTL:      cfg.ResetTokenTTL,
	}, purger, log, prom)
	if errors.Is(err, worker.ErrNoTTL) {
		log.Info("RESET_TOKEN_TTL is 0; reset requests never expire and there is nothing to sweep")
		return
	}
	if err != nil {
		log.Error("sweeper init failed", "err", err)
		os.Exit(1)
	}

	healthSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port+1),
		Handler:           sweeper.HealthHandler(deps, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("worker health server starting", "addr", healthSrv.Addr)
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("worker health server failed", "err", err)
		}
	}()

	if err := sweeper.Run(ctx); err != nil {
		log.Error("worker stopped with error", "err", err)
	}

	shutdownCtx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	log.Info("worker shutdown complete")
}
