package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veloticket/stagegate/internal/config"
	"github.com/veloticket/stagegate/internal/notifier"
	"github.com/veloticket/stagegate/internal/postgres"
	"github.com/veloticket/stagegate/internal/redis"
	postgresrepo "github.com/veloticket/stagegate/internal/repository/postgres"
	redisrepo "github.com/veloticket/stagegate/internal/repository/redis"
	"github.com/veloticket/stagegate/internal/service"
	"github.com/veloticket/stagegate/internal/service/auth"
	"github.com/veloticket/stagegate/internal/signature"
	httpgin "github.com/veloticket/stagegate/internal/transport/http/gin"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redis.New(context.Background(), redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Initialize repositories
	cipher := signature.NewKeyCipher(cfg.Keys.Secret)
	store := postgresrepo.NewStore(pgxPool, cipher)
	cache := redisrepo.NewCache(rdb)
	queue := redisrepo.NewRefundQueue(rdb, cfg.Refunds.PendingTTL, cfg.Refunds.ProcessedTTL)
	limiter := redisrepo.NewLoginLimiter(rdb,
		redisrepo.WindowConfig{
			Window:  cfg.Limiter.ShortWindow,
			Max:     cfg.Limiter.ShortMax,
			Lockout: cfg.Limiter.ShortLockout,
		},
		redisrepo.WindowConfig{
			Window:  cfg.Limiter.LongWindow,
			Max:     cfg.Limiter.LongMax,
			Lockout: cfg.Limiter.LongLockout,
		},
	)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)
	notify := notifier.NewPubSubNotifier(rdb)

	// Initialize services
	services := service.NewServices(store, cache, queue, limiter, notify, logger, service.Config{
		Auth: auth.Config{
			JWTSecret: cfg.Auth.JWTSecret,
			TokenTTL:  cfg.Auth.TokenTTL,
		},
	})

	// Initialize Gin router
	router := httpgin.NewRouter(services, idempotencyStore, logger)

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
