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

	"github.com/beststore/accounts/internal/account"
	"github.com/beststore/accounts/internal/auth"
	"github.com/beststore/accounts/internal/cache"
	"github.com/beststore/accounts/internal/config"
	"github.com/beststore/accounts/internal/db"
	"github.com/beststore/accounts/internal/domain/user"
	httpx "github.com/beststore/accounts/internal/http"
	"github.com/beststore/accounts/internal/http/handlers"
	"github.com/beststore/accounts/internal/observability"
	"github.com/beststore/accounts/internal/repo/memory"
	"github.com/beststore/accounts/internal/repo/postgres"
	"github.com/beststore/accounts/internal/repo/redisstore"
	"github.com/beststore/accounts/internal/security"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// directory is what both the service and admin provisioning need.
type directory interface {
	account.Directory
	db.AdminDirectory
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "err", err)
	os.Exit(1)
}

func main() {
	// Load the config set up
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName: "beststore-accounts",
		Env:         cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		fatal(log, "tracer init failed", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	tokens, err := auth.NewManager(auth.Settings{
		Key:      cfg.JWTKey,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		fatal(log, "token settings rejected", err)
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	ready := map[string]handlers.Pinger{}

	var (
		users  directory
		resets account.ResetStore
	)

	switch cfg.Storage {
	case "memory":
		log.Warn("using in-memory storage; accounts are lost on restart")
		users = memory.NewUsersRepo()
		resets = memory.NewPasswordResetsRepo()

	default:
		if err := db.Migrate(ctx, cfg.DBURL); err != nil {
			fatal(log, "migrations failed", err)
		}

		pool, err := db.NewPool(ctx, cfg.DBURL, 10)
		if err != nil {
			fatal(log, "db connect failed", err)
		}
		defer pool.Close()

		ready["db"] = pool.Ping
		users = postgres.NewUsersRepo(pool, prom)
		resets = postgres.NewPasswordResetsRepo(pool, prom)
	}

	if cfg.ResetStore == "redis" {
		rdb, err := redisstore.Connect(ctx, redisstore.ConnOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			fatal(log, "redis connect failed", err)
		}
		defer func() { _ = rdb.Close() }()

		store := redisstore.NewPasswordResetsRepo(rdb, cfg.ResetTokenTTL)
		ready["redis"] = store.Ping
		resets = store
	}

	seedCtx, cancelSeed := context.WithTimeout(ctx, 10*time.Second)
	err = db.EnsureAdminUser(seedCtx, users, hasher, cfg)
	cancelSeed()
	if err != nil {
		fatal(log, "admin provisioning failed", err)
	}

	svc := account.NewService(users, resets, hasher, tokens, log, account.Options{
		ResetTTL: cfg.ResetTokenTTL,
		Profiles: cache.New[int64, user.Profile](cfg.ProfileCacheTTL),
		Prom:     prom,
	})

	// set up routers with the log
	router := httpx.NewRouter(httpx.RouterDeps{
		Log:            log,
		Env:            cfg.Env,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Accounts:       svc,
		Tokens:         tokens,
		Prom:           prom,
		Gatherer:       reg,
		Ready:          ready,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env, "storage", cfg.Storage, "reset_store", cfg.ResetStore)
		err := srv.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			stop()
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	log.Info("server shutting down")

	shutdownCtx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
	}

	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("tracer shutdown failed", "err", err)
	}

	log.Info("shutdown complete")
}
