package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/psantos/driverauth"
	"github.com/psantos/driverauth/internal/config"
	"github.com/psantos/driverauth/internal/http/middleware"
	"github.com/psantos/driverauth/pkg/auth"
	"github.com/psantos/driverauth/pkg/store"
	"github.com/psantos/driverauth/pkg/store/bolt"
	"github.com/psantos/driverauth/pkg/store/memory"
	"github.com/psantos/driverauth/pkg/store/postgres"
)

func main() {
	// Load .env if present; real environments set variables directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users, sessions, limits, closeStore, err := openStores(ctx, cfg)
	if err != nil {
		logger.Error("opening store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	svc, err := driverauth.New(driverauth.Config{
		Users:            users,
		Sessions:         sessions,
		RateLimits:       limits,
		JWTSecret:        cfg.JWTSecret,
		JWTIssuer:        cfg.JWTIssuer,
		AccessTokenTTL:   cfg.AccessTokenTTL,
		SessionTTL:       cfg.SessionTTL,
		RotationInterval: cfg.RotationInterval,
		MaxLoginFailures: cfg.LoginMaxFailures,
		LoginCooldown:    cfg.LoginCooldown,
		DevMode:          cfg.IsDev(),
		CookieSecure:     cfg.CookieSecure,
		RateLimiters:     middleware.CreateRateLimiters(cfg.RateLimit, logger),
		Logger:           logger,
	})
	if err != nil {
		logger.Error("assembling service", "error", err)
		os.Exit(1)
	}

	if err := svc.Bootstrap(ctx); err != nil {
		logger.Error("bootstrapping accounts", "error", err)
		os.Exit(1)
	}

	if cfg.SweepInterval > 0 {
		go runSweep(ctx, svc.Sessions(), cfg, logger)
	}

	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", addr, "backend", cfg.StoreBackend, "env", cfg.AppEnv)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

// openStores wires the configured backend behind the store interfaces.
func openStores(ctx context.Context, cfg *config.Config) (store.UserStore, store.SessionStore, store.RateLimitStore, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := postgres.Open(postgres.Config{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		})
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, nil, nil, nil, err
		}
		return postgres.NewUserStore(db), postgres.NewSessionStore(db), postgres.NewRateLimitStore(db),
			func() { db.Close() }, nil

	case config.BackendBolt:
		db, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return bolt.NewUserStore(db), bolt.NewSessionStore(db), bolt.NewRateLimitStore(db),
			func() { db.Close() }, nil

	case config.BackendMemory:
		return memory.NewUserStore(), memory.NewSessionStore(), memory.NewRateLimitStore(),
			func() {}, nil
	}
	return nil, nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// runSweep periodically purges expired and long-revoked sessions.
func runSweep(ctx context.Context, sessions *auth.SessionManager, cfg *config.Config, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.PurgeExpired(ctx, cfg.SessionRetention)
			if err != nil {
				logger.Warn("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("session sweep", "purged", n)
			}
		}
	}
}
