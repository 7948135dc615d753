package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/token-lifecycle/internal/api/http"
	"github.com/spec-kit/token-lifecycle/internal/api/http/handlers"
	"github.com/spec-kit/token-lifecycle/internal/auth"
	"github.com/spec-kit/token-lifecycle/internal/config"
	"github.com/spec-kit/token-lifecycle/internal/events"
	"github.com/spec-kit/token-lifecycle/internal/observability"
	"github.com/spec-kit/token-lifecycle/internal/persistence"
	"github.com/spec-kit/token-lifecycle/internal/ratelimit"
	"github.com/spec-kit/token-lifecycle/internal/repository"
	"github.com/spec-kit/token-lifecycle/internal/service"
	"github.com/spec-kit/token-lifecycle/internal/session"
	"github.com/spec-kit/token-lifecycle/internal/worker"
)

var demoAccounts = []struct {
	email, password, name string
}{
	{"alice@example.com", "password", "Alice"},
	{"bob@example.com", "password", "Bob"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Auth.SecretsShared() {
		logger.Warn("access and refresh secrets are identical; token classes are separated only by the typ claim")
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger, metrics))

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var limiter ratelimit.LoginLimiter = ratelimit.Noop{}
	if cfg.LoginThrottle.Enabled {
		limiter = ratelimit.NewRedisLimiter(redis.Client, ratelimit.Config{
			MaxAttempts: cfg.LoginThrottle.MaxAttempts,
			Window:      cfg.LoginThrottle.Window(),
		})
	}

	authService, err := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		Accounts:   repository.NewAccountRepository(),
		Sessions:   session.NewMemoryRegistry(),
		Limiter:    limiter,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("failed to build auth service", zap.Error(err))
	}

	if cfg.Auth.SeedDemoAccounts {
		for _, acc := range demoAccounts {
			if err := authService.EnsureAccount(ctx, acc.email, acc.password, acc.name); err != nil {
				logger.Fatal("failed to seed demo account", zap.String("email", acc.email), zap.Error(err))
			}
		}
		logger.Info("demo accounts seeded", zap.Int("count", len(demoAccounts)))
	}

	sweeper := worker.NewSessionSweeper(authService, logger, cfg.Session.SweepInterval())
	sweeper.Start()
	defer sweeper.Stop()

	app := httptransport.NewServer(httptransport.ServerOptions{
		AppName:        cfg.App.Name,
		Logger:         logger,
		Metrics:        metrics,
		RequestTimeout: cfg.App.RequestTimeout(),
		Routes: httptransport.RouteConfig{
			Health: handlers.NewHealthHandler(handlers.HealthOptions{
				ServiceName:    cfg.App.Name,
				Version:        cfg.App.Version,
				Redis:          redis,
				RedisRequired:  cfg.Redis.Required,
				Metrics:        metrics,
				ActiveSessions: authService.ActiveSessions,
			}),
			Auth:        handlers.NewAuthHandler(authService),
			Users:       handlers.NewUserHandler(authService, logger),
			AccessGuard: auth.NewAccessGuard(authService.Signer(), logger),
		},
	})

	go func() {
		logger.Info("issuer listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
