package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"gagyebu/internal/amqp"
	"gagyebu/internal/auth"
	"gagyebu/internal/backend"
	"gagyebu/internal/cache"
	"gagyebu/internal/cli"
	"gagyebu/internal/config"
	"gagyebu/internal/core"
	apphttp "gagyebu/internal/http"
	"gagyebu/internal/live"
	"gagyebu/internal/log"
	"gagyebu/internal/middleware/ratelimit"
	"gagyebu/internal/services"
	"gagyebu/internal/session"
)

const (
	shutdownTimeout = 30 * time.Second
	purgeInterval   = time.Hour
	cacheSweep      = time.Minute
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatalf("%v", err)
	}
	logger := cli.SetupLogger(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	startCtx := context.Background()

	tax := core.DefaultTaxonomy()
	if cfg.CategoriesFile != "" {
		loaded, err := core.LoadTaxonomy(cfg.CategoriesFile)
		if err != nil {
			return fmt.Errorf("load categories: %w", err)
		}
		tax = loaded
		logger.Info("Loaded category overrides", log.FieldPath, cfg.CategoriesFile)
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	handle, err := backend.NewFactory(logger).Open(startCtx, bcfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := handle.Close(); err != nil {
			logger.Warn("Store close failed", log.FieldError, err)
		}
	}()
	store := handle.Store

	sessions, err := session.Open(cfg.SessionDBPath, cfg.SessionTTL, logger)
	if err != nil {
		return fmt.Errorf("open sessions: %w", err)
	}
	defer sessions.Close()

	var provider auth.Provider
	switch cfg.AuthProvider {
	case "firebase":
		fp, err := auth.NewFirebaseProvider(startCtx, cfg.FirebaseAPIKey)
		if err != nil {
			return fmt.Errorf("firebase provider: %w", err)
		}
		provider = fp
	default:
		provider = auth.NewLocalProvider(store, bcrypt.DefaultCost)
	}

	loginLimiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.LoginAttemptsPerMinute})
	defer loginLimiter.Stop()
	authSvc := auth.NewService(provider, store, sessions, loginLimiter, logger)

	hub := live.NewHub(store, logger, cfg.QueryTimeout)
	defer hub.Close()

	origin := uuid.NewString()
	var (
		changes   *amqp.Client
		publisher services.ChangePublisher
	)
	if cfg.AMQPURL != "" {
		changes, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, origin, logger)
		if err != nil {
			return fmt.Errorf("amqp client: %w", err)
		}
		defer changes.Close()
		publisher = changes
		logger.Info("Change fan-out enabled", "exchange", cfg.AMQPExchange, "origin", origin)
	}

	txs := services.NewTransactionService(store, hub, publisher, logger, services.Options{
		Taxonomy:     tax,
		WriteTimeout: cfg.WriteTimeout,
		QueryTimeout: cfg.QueryTimeout,
		CacheTTL:     cfg.CacheTTL,
		Origin:       origin,
	})

	caches := cache.NewManager(logger)
	caches.Register(txs.Cache())
	caches.StartCleanup(cacheSweep)
	defer caches.Stop()

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Transactions:      txs,
		Auth:              authSvc,
		Hub:               hub,
		Notices:           store,
		Store:             store,
		Cache:             txs.Cache(),
		Logger:            logger,
		CookieSecure:      cfg.CookieSecure,
		TrustedProxies:    cfg.TrustedProxies,
		RequestsPerMinute: cfg.RequestsPerMinute,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.WriteTimeout + 5*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting gagyebu server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			log.FieldProvider, provider.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(purgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				n, err := sessions.Purge()
				if err != nil {
					logger.Warn("Session purge failed", log.FieldError, err)
					continue
				}
				if n > 0 {
					logger.Info("Purged expired sessions", "removed", n)
				}
			}
		}
	})

	if changes != nil {
		g.Go(func() error {
			err := changes.ConsumeChanges(gctx, txs.HandleRemoteChange)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	cli.WaitForShutdown(ctx, done)
	return nil
}
