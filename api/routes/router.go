package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/afribook/afribook-backend/api/controllers"
	webhookcontrollers "github.com/afribook/afribook-backend/api/controllers/webhooks"
	"github.com/afribook/afribook-backend/api/middleware"
	"github.com/afribook/afribook-backend/internal/books"
	checkoutsvc "github.com/afribook/afribook-backend/internal/checkout"
	"github.com/afribook/afribook-backend/internal/notifications"
	"github.com/afribook/afribook-backend/internal/orders"
	subscriptionsvc "github.com/afribook/afribook-backend/internal/subscriptions"
	"github.com/afribook/afribook-backend/internal/wallet"
	webhooksvc "github.com/afribook/afribook-backend/internal/webhooks"
	"github.com/afribook/afribook-backend/pkg/config"
	"github.com/afribook/afribook-backend/pkg/db"
	"github.com/afribook/afribook-backend/pkg/enums"
	"github.com/afribook/afribook-backend/pkg/logger"
	pkgredis "github.com/afribook/afribook-backend/pkg/redis"
)

// Deps bundles everything the router wires into handlers.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         *pkgredis.Client
	Registry      *prometheus.Registry
	Checkout      checkoutsvc.Service
	Orders        orders.Service
	Wallets       wallet.Service
	Subscriptions subscriptionsvc.Service
	Notifications notifications.Service
	Webhooks      webhooksvc.Service
	Books         books.Repository
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	logg := d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	var redisStore pkgredis.IdempotencyStore
	var redisPinger pkgredis.Pinger
	if d.Redis != nil {
		redisStore = d.Redis
		redisPinger = d.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.DB, redisPinger))
	})

	if d.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	}

	// Provider callbacks are unauthenticated; the provider reference is the
	// only credential.
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/mtn", webhookcontrollers.MTNWebhook(d.Webhooks, logg))
		r.Post("/moov", webhookcontrollers.MoovWebhook(d.Webhooks, logg))
	})

	currency := enums.Currency(cfg.Marketplace.Currency)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisStore, logg))

		r.Post("/checkout", controllers.Checkout(d.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(d.Orders, logg))
			r.Get("/{orderId}", controllers.OrderDetail(d.Orders, logg))
			r.Post("/{orderId}/ship", controllers.ShipOrder(d.Orders, logg))
			r.Post("/{orderId}/deliver", controllers.DeliverOrder(d.Orders, logg))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(d.Orders, logg))
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.WalletFetch(d.Wallets, logg))
			r.Get("/transactions", controllers.WalletTransactions(d.Wallets, logg))
			r.Post("/deposit", controllers.WalletDeposit(d.Wallets, logg))
			r.Post("/withdraw", controllers.WalletWithdraw(d.Wallets, logg))
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", controllers.SubscriptionCreate(d.Subscriptions, logg))
			r.Get("/", controllers.SubscriptionList(d.Subscriptions, logg))
			r.Post("/{subscriptionId}/cancel", controllers.SubscriptionCancel(d.Subscriptions, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(d.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(d.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(d.Notifications, logg))
		})

		r.Route("/books", func(r chi.Router) {
			r.Get("/", controllers.BookList(d.Books, logg))
			r.Post("/", controllers.BookCreate(d.Books, currency, logg))
		})
	})

	return r
}
