package main

import (
	"context"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/afribook/afribook-backend/api/routes"
	"github.com/afribook/afribook-backend/internal/books"
	checkoutsvc "github.com/afribook/afribook-backend/internal/checkout"
	"github.com/afribook/afribook-backend/internal/commission"
	"github.com/afribook/afribook-backend/internal/notifications"
	"github.com/afribook/afribook-backend/internal/orders"
	"github.com/afribook/afribook-backend/internal/payments"
	subscriptionsvc "github.com/afribook/afribook-backend/internal/subscriptions"
	"github.com/afribook/afribook-backend/internal/wallet"
	webhooksvc "github.com/afribook/afribook-backend/internal/webhooks"
	"github.com/afribook/afribook-backend/pkg/config"
	"github.com/afribook/afribook-backend/pkg/db"
	"github.com/afribook/afribook-backend/pkg/enums"
	"github.com/afribook/afribook-backend/pkg/logger"
	"github.com/afribook/afribook-backend/pkg/metrics"
	"github.com/afribook/afribook-backend/pkg/migrate"
	"github.com/afribook/afribook-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	currency := enums.Currency(cfg.Marketplace.Currency)
	platformUserID, err := uuid.Parse(cfg.Marketplace.PlatformUserID)
	if err != nil {
		logg.Error(context.Background(), "invalid platform user id", err)
		os.Exit(1)
	}

	calc, err := commission.NewCalculator(cfg.Marketplace.Rate(), currency)
	if err != nil {
		logg.Error(context.Background(), "failed to build commission calculator", err)
		os.Exit(1)
	}

	mtnClient, err := payments.NewMTNClient(cfg.MTN, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build mtn client", err)
		os.Exit(1)
	}
	moovClient, err := payments.NewMoovClient(cfg.Moov, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build moov client", err)
		os.Exit(1)
	}
	gateways, err := payments.NewResolver(mtnClient, moovClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build gateway resolver", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	settlementMetrics := metrics.NewSettlementMetrics(registry)

	gdb := dbClient.DB()
	booksRepo := books.NewRepository(gdb)
	ordersRepo := orders.NewRepository(gdb)
	walletRepo := wallet.NewRepository(gdb)

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(gdb), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	walletSvc, err := wallet.NewService(walletRepo, dbClient, gateways, notificationsSvc, logg, currency)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}

	ordersSvc, err := orders.NewService(ordersRepo, dbClient, walletSvc, booksRepo, notificationsSvc, logg, platformUserID)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	checkoutSvc, err := checkoutsvc.NewService(
		ordersRepo,
		booksRepo,
		walletRepo,
		walletSvc,
		dbClient,
		gateways,
		notificationsSvc,
		calc,
		logg,
		settlementMetrics,
		cfg.Marketplace.DeliveryFee,
		currency,
		platformUserID,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	subscriptionsSvc, err := subscriptionsvc.NewService(
		subscriptionsvc.NewRepository(gdb),
		walletRepo,
		dbClient,
		gateways,
		notificationsSvc,
		logg,
		nil,
		currency,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create subscriptions service", err)
		os.Exit(1)
	}

	webhooksSvc, err := webhooksvc.NewService(walletSvc, checkoutSvc, subscriptionsSvc, logg, settlementMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhooks service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Registry:      registry,
			Checkout:      checkoutSvc,
			Orders:        ordersSvc,
			Wallets:       walletSvc,
			Subscriptions: subscriptionsSvc,
			Notifications: notificationsSvc,
			Webhooks:      webhooksSvc,
			Books:         booksRepo,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
