package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tillpoint-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/tillpoint-backend/api/controllers/cart"
	salecontrollers "github.com/angelmondragon/tillpoint-backend/api/controllers/sales"
	"github.com/angelmondragon/tillpoint-backend/api/middleware"
	"github.com/angelmondragon/tillpoint-backend/pkg/config"
	"github.com/angelmondragon/tillpoint-backend/pkg/db"
	"github.com/angelmondragon/tillpoint-backend/pkg/logger"
	"github.com/angelmondragon/tillpoint-backend/pkg/redis"
)

// Engine is the write side of the till: checkout, void and stock adjustment.
type Engine interface {
	cartcontrollers.Committer
	salecontrollers.Voider
	controllers.InventoryAdjuster
}

// Deps are the services the HTTP surface is built on. Redis and Gatherer
// may be nil.
type Deps struct {
	DB       db.Pinger
	Redis    *redis.Client
	Gatherer prometheus.Gatherer
	Catalog  controllers.CatalogReader
	Sessions cartcontrollers.SessionStore
	Engine   Engine
	Sales    salecontrollers.Reader
	Reports  controllers.ReportService
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	readiness := map[string]controllers.Pinger{"database": deps.DB}
	var idempotency redis.IdempotencyStore
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
		idempotency = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})

	if cfg.Metrics.Enabled && deps.Gatherer != nil {
		r.Method(http.MethodGet, cfg.Metrics.Path, promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotency, logg))

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/products", controllers.CatalogSearch(deps.Catalog, logg))
			r.Get("/products/{productId}", controllers.CatalogProduct(deps.Catalog, logg))
			r.Get("/lookup/{code}", controllers.CatalogLookup(deps.Catalog, logg))
			r.Get("/categories", controllers.CatalogCategories(deps.Catalog, logg))
			r.Get("/low-stock", controllers.CatalogLowStock(deps.Catalog, logg))
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", cartcontrollers.OpenSession(deps.Sessions, logg))
			r.Route("/{sessionId}", func(r chi.Router) {
				r.Delete("/", cartcontrollers.CloseSession(deps.Sessions, logg))
				r.Post("/checkout", cartcontrollers.Checkout(deps.Sessions, deps.Engine, logg))
				r.Route("/cart", func(r chi.Router) {
					r.Get("/", cartcontrollers.GetCart(deps.Sessions, logg))
					r.Delete("/", cartcontrollers.ClearCart(deps.Sessions, logg))
					r.Put("/discount", cartcontrollers.SetDiscount(deps.Sessions, logg))
					r.Post("/lines", cartcontrollers.AddLine(deps.Sessions, deps.Catalog, logg))
					r.Put("/lines/{productId}", cartcontrollers.SetQuantity(deps.Sessions, logg))
					r.Put("/lines/{productId}/discount", cartcontrollers.SetLineDiscount(deps.Sessions, logg))
					r.Delete("/lines/{productId}", cartcontrollers.RemoveLine(deps.Sessions, logg))
				})
			})
		})

		r.Route("/sales", func(r chi.Router) {
			r.Get("/", salecontrollers.List(deps.Sales, logg))
			r.Get("/{saleId}", salecontrollers.Get(deps.Sales, logg))
			r.Post("/{saleId}/void", salecontrollers.Void(deps.Engine, logg))
		})

		r.Post("/inventory/{productId}/adjust", controllers.AdjustInventory(deps.Engine, logg))
		r.Get("/reports/summary", controllers.ReportSummary(deps.Reports, logg))
	})

	return r
}
