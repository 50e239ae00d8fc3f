package main

// @title project-tracker API
// @version 1.0
// @description Matriz de permisos multi-tenant con reglas por objeto y RLS en la base.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"project-tracker/internal/adapters/auth/introspect"
	"project-tracker/internal/adapters/auth/supabasejwt"
	"project-tracker/internal/adapters/capabilities/platform"
	pg "project-tracker/internal/adapters/storage/postgres"
	"project-tracker/internal/platform/cache"
	"project-tracker/internal/platform/config"
	"project-tracker/internal/platform/logger"
	"project-tracker/internal/ports/auth"
	"project-tracker/internal/router"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.Options{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: logger.ParseFormat(cfg.LogFormat),
		App:    cfg.AppName,
	})

	verifier, err := newVerifier(cfg)
	if err != nil {
		return err
	}
	if verifier == nil {
		log.Warn("auth mode dev: X-Debug-User-ID is trusted", nil)
	}

	caps, err := newCapabilities(cfg)
	if err != nil {
		return err
	}

	var db *sql.DB
	if cfg.DBDSN != "" {
		db, err = pg.Open(ctx, cfg.DBDSN, pg.PoolOptions{
			MaxOpenConns: cfg.DBMaxOpenConns,
			MaxIdleConns: cfg.DBMaxIdleConns,
		})
		if err != nil {
			return err
		}
		defer db.Close()
		log.Info("storage: postgres", nil)
	} else {
		log.Warn("storage: in-memory (DB_DSN not set)", nil)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	opts := router.Options{
		AuthVerifier:       verifier,
		DB:                 db,
		ProbeThreshold:     cfg.ProbeThreshold,
		ProbeWindow:        cfg.ProbeWindow,
		Logger:             log,
		Capabilities:       caps,
		PlatformAdminIDs:   cfg.PlatformAdminIDs,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		SSLRedirect:        cfg.SSLRedirect,
	}
	// un *redis.Client nil dentro de la interfaz no es nil
	if rdb != nil {
		opts.Redis = rdb
	}

	srv := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router.NewRouter(opts),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", map[string]any{"addr": cfg.AppAddr, "auth_mode": cfg.AuthMode})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down", nil)
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newVerifier(cfg *config.Config) (auth.AuthVerifier, error) {
	switch cfg.AuthMode {
	case config.AuthModeJWT:
		return supabasejwt.NewVerifier(supabasejwt.Options{
			Secret: cfg.AuthJWTSecret,
			Issuer: cfg.AuthJWTIssuer,
			Leeway: 30 * time.Second,
		})
	case config.AuthModeIntrospect:
		client, err := introspect.NewClient(introspect.Config{
			BaseURL: cfg.AuthIntrospectURL,
			APIKey:  cfg.AuthIntrospectAPIKey,
			Timeout: 5 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return introspect.NewVerifier(client), nil
	default:
		return nil, nil
	}
}

func newCapabilities(cfg *config.Config) (*platform.Resolver, error) {
	var client *platform.Client
	if cfg.CapabilitiesURL != "" {
		c, err := platform.NewClient(platform.Config{
			BaseURL: cfg.CapabilitiesURL,
			APIKey:  cfg.CapabilitiesAPIKey,
			Timeout: 5 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		client = c
	}
	return platform.NewResolver(client, cfg.PlatformAdminIDs), nil
}
