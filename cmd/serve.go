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

	"ordersvc/internal/caching"
	"ordersvc/internal/config"
	"ordersvc/internal/events"
	"ordersvc/internal/handlers"
	"ordersvc/internal/jobs"
	"ordersvc/internal/middleware"
	"ordersvc/internal/repositories"
	"ordersvc/internal/services"
	"ordersvc/pkg/database"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/random"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a .yaml or .toml config file")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := cfg.Log.NewLogger()
	slog.SetDefault(logger)

	pool, err := database.NewPool(ctx, cfg.Database.URL, database.Options{
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
		AcquireTimeout:    cfg.Database.AcquireTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	var (
		cache     caching.OrderCache
		cachePing handlers.Pinger
		publisher events.Publisher
	)
	if cfg.Redis.Addr != "" {
		cache = caching.NewRedisCacheService(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL, logger)
		cachePing = cache
	} else {
		logger.Info("REDIS_ADDR not set, order cache disabled")
		cache = caching.NewNopCache()
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), cfg.Kafka.Buffer, logger)
	} else {
		logger.Info("KAFKA_BROKERS not set, order events disabled")
		publisher = events.NewNopPublisher()
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("failed to close event publisher", "error", err)
		}
	}()

	orderRepo := repositories.NewOrderRepository(pool)
	productRepo := repositories.NewProductRepository()
	orderSvc := services.NewOrderService(pool, orderRepo, productRepo, cache, publisher, logger)

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" && cfg.Auth.JWKSURL == "" {
		jwtSecret = random.String(32) // development only
		logger.Warn("JWT_SECRET not set, using a generated secret; tokens will not survive a restart")
	}
	auth, err := middleware.NewAuthenticator(middleware.JWTConfig{
		Secret:  jwtSecret,
		JWKSURL: cfg.Auth.JWKSURL,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer auth.Close()

	scheduler, err := jobs.NewJobScheduler(pool.Stats, cfg.Jobs.PoolMonitorInterval, logger)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Stop(); err != nil {
			logger.Error("failed to stop scheduler", "error", err)
		}
	}()

	e := newServer(
		handlers.NewOrderHandlers(orderSvc),
		handlers.NewHealthHandlers(pool, cachePing, pool.Stats, version),
		auth.Middleware(),
	)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ordersvc starting", "version", version, "port", cfg.Server.Port)
		if err := e.Start(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// newServer builds the echo instance with its middleware and routes.
func newServer(orderHandlers *handlers.OrderHandlers, healthHandlers *handlers.HealthHandlers, authMiddleware echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Pre(echoMiddleware.RemoveTrailingSlash())

	versionMiddleware := middleware.NewVersionMiddleware()
	e.Use(versionMiddleware.APIVersionResolver())

	// Health endpoints (no auth required)
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)

	v1 := e.Group("/v1")
	v1.Use(versionMiddleware.VersionHeader("v1"))

	protected := v1.Group("")
	protected.Use(authMiddleware)

	protected.GET("/orders", orderHandlers.GetOrders)
	protected.POST("/orders", orderHandlers.CreateOrder)
	protected.GET("/orders/:id", orderHandlers.GetOrder)
	protected.PATCH("/orders/:id/status", orderHandlers.UpdateOrderStatus)
	protected.DELETE("/orders/:id", orderHandlers.DeleteOrder)

	return e
}
