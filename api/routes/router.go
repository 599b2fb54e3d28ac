package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/buildmart/storefront/api/controllers"
	cartcontrollers "github.com/buildmart/storefront/api/controllers/cart"
	checkoutcontrollers "github.com/buildmart/storefront/api/controllers/checkout"
	"github.com/buildmart/storefront/api/middleware"
	"github.com/buildmart/storefront/internal/cart"
	checkoutsvc "github.com/buildmart/storefront/internal/checkout"
	"github.com/buildmart/storefront/pkg/config"
	"github.com/buildmart/storefront/pkg/logger"
	"github.com/buildmart/storefront/pkg/redis"
)

// Dependencies is everything the HTTP surface needs. Redis is optional;
// without it idempotency replay and checkout rate limiting are off.
type Dependencies struct {
	Config    *config.Config
	Logger    *logger.Logger
	Catalog   controllers.CatalogReader
	Cart      cart.Service
	Checkout  checkoutsvc.Service
	Redis     *redis.Client
	Readiness map[string]controllers.Pinger
	Gatherer  prometheus.Gatherer
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, deps.Readiness, logg))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/categories", controllers.ListCategories(deps.Catalog, logg))
		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ListProducts(deps.Catalog, logg))
			r.Get("/{productId}", controllers.GetProduct(deps.Catalog, logg))
			r.Get("/{productId}/price", controllers.QuoteProduct(deps.Catalog, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Session(logg, cfg.App.IsProd()))
			if deps.Redis != nil {
				r.Use(middleware.Idempotency(deps.Redis, logg))
			}

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.CartFetch(deps.Cart, logg))
				r.Put("/", cartcontrollers.CartReplace(deps.Cart, logg))
				r.Delete("/", cartcontrollers.CartClear(deps.Cart, logg))
				r.Post("/items", cartcontrollers.CartAddItem(deps.Cart, logg))
				r.Put("/items/{productId}", cartcontrollers.CartSetItem(deps.Cart, logg))
				r.Patch("/items/{productId}", cartcontrollers.CartUpdateQuantity(deps.Cart, logg))
				r.Delete("/items/{productId}", cartcontrollers.CartRemoveItem(deps.Cart, logg))
			})

			r.Route("/favorites", func(r chi.Router) {
				r.Get("/", cartcontrollers.FavoritesFetch(deps.Cart, logg))
				r.Put("/", cartcontrollers.FavoritesReplace(deps.Cart, logg))
				r.Post("/", cartcontrollers.FavoritesAdd(deps.Cart, logg))
				r.Delete("/{productId}", cartcontrollers.FavoritesRemove(deps.Cart, logg))
				r.Post("/{productId}/cart", cartcontrollers.FavoritesMoveToCart(deps.Cart, logg))
			})

			r.Route("/checkout", func(r chi.Router) {
				submit := checkoutcontrollers.Submit(deps.Checkout, logg)
				if deps.Redis != nil {
					policy := middleware.NewRateLimitPolicy("checkout", cfg.RateLimit.CheckoutWindow, cfg.RateLimit.CheckoutLimit)
					r.With(middleware.RateLimit(policy, deps.Redis, logg)).Post("/", submit)
				} else {
					r.Post("/", submit)
				}
				r.Get("/status", checkoutcontrollers.Status(deps.Checkout, logg))
			})
		})
	})

	return r
}
