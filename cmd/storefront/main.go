package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/farmstand/internal/cache"
	"github.com/fjod/farmstand/internal/config"
	"github.com/fjod/farmstand/internal/gateway"
	h "github.com/fjod/farmstand/internal/http"
	"github.com/fjod/farmstand/internal/poller"
	"github.com/fjod/farmstand/internal/pricing"
	"github.com/fjod/farmstand/internal/publisher"
	"github.com/fjod/farmstand/internal/repository"
	"github.com/fjod/farmstand/internal/service"
	"github.com/fjod/farmstand/pkg/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel)
	slog.Info("storefront starting", "port", cfg.HTTPPort, "gateway_mode", cfg.GatewayMode, "currency", cfg.CurrencyCode())

	creds := &repository.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	repo, err := repository.NewRepository(creds)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.RunMigrations(creds); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations completed")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		// the cart cache is optional; reads fall through to postgres
		slog.Warn("redis unavailable, cart cache degraded", "addr", cfg.RedisAddr, "error", err)
	}

	signer := gateway.NewSigner(cfg.GatewayKeySecret)
	var (
		gw      gateway.Client
		sandbox h.SandboxPayer
	)
	switch cfg.GatewayMode {
	case config.GatewayModeLive:
		gw = gateway.NewHTTPClient(gateway.HTTPConfig{
			BaseURL:   cfg.GatewayBaseURL,
			KeyID:     cfg.GatewayKeyID,
			KeySecret: cfg.GatewayKeySecret,
			Timeout:   cfg.GatewayTimeout,
		})
	default:
		sb := gateway.NewSandbox(cfg.GatewayKeyID, signer, cfg.SandboxFailurePercent)
		gw, sandbox = sb, sb
		slog.Warn("using sandbox payment gateway")
	}

	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET is empty, every bearer token will be rejected")
	}

	engine := pricing.NewEngine(cfg.FlatFee())
	currency := cfg.CurrencyCode()

	cartCache := cache.NewRedisCache(redisClient)
	cartService := service.NewCartService(repo, repo, cartCache, engine, currency)
	checkoutService := service.NewCheckoutService(repo, repo, engine, currency)
	paymentService := service.NewPaymentService(repo, gw, signer, cartService)
	orderService := service.NewOrderService(repo)
	reviewService := service.NewReviewService(repo, repo)
	catalogService := service.NewCatalogService(repo, repo)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	outbox := publisher.NewOutboxPoller(repo, cfg.OrderEventsTopic, cfg.OutboxRetention, cfg.Brokers()...)
	defer outbox.Close()
	go outbox.Run(ctx)
	slog.Info("outbox poller started", "topic", cfg.OrderEventsTopic, "brokers", cfg.Brokers())

	cartPoller := poller.NewCartCachePoller(cartCache, cfg.OrderEventsTopic, cfg.CartCacheGroup, cfg.Brokers()...)
	defer cartPoller.Close()
	go cartPoller.Run(ctx)

	router := h.NewRouter(h.Handlers{
		Products: h.NewProductHandler(catalogService, cfg.RequestTimeout),
		Reviews:  h.NewReviewHandler(reviewService, cfg.RequestTimeout),
		Cart:     h.NewCartHandler(cartService, cfg.RequestTimeout),
		Checkout: h.NewCheckoutHandler(checkoutService, cfg.RequestTimeout),
		Payments: h.NewPaymentHandler(paymentService, sandbox, cfg.RequestTimeout),
		Orders:   h.NewOrdersHandler(orderService, cfg.RequestTimeout),
	}, h.RouterConfig{
		JWTSecret:      []byte(cfg.JWTSecret),
		RequestTimeout: cfg.RequestTimeout,
		Ready: func(r *http.Request) error {
			return repo.Ping(r.Context())
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server exited")
}
