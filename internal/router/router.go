package router

import (
	"context"
	"net/http"
	"time"

	"orderflow/internal/handler"
	"orderflow/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config wires the handlers and cross-cutting settings into the router.
type Config struct {
	Products *handler.ProductHandler
	Orders   *handler.OrderHandler
	// Database is pinged by /health when set.
	Database Pinger
	APIKey   string
	Logger   zerolog.Logger
}

const healthTimeout = 2 * time.Second

// New creates a new HTTP router with all routes and middleware configured.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()

	// Recovery -> RequestID -> Logging -> Metrics -> CORS -> APIKeyAuth -> Identity
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimw.RequestID)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS)
	r.Use(middleware.APIKeyAuth(cfg.APIKey, cfg.Logger))
	r.Use(middleware.Identity)

	r.Get("/health", health(cfg.Database))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/products/{id}", cfg.Products.GetByID)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", cfg.Orders.Create)
			r.Get("/", cfg.Orders.List)
			r.Get("/{id}", cfg.Orders.GetByID)
			r.Patch("/{id}", cfg.Orders.UpdateFields)
			r.Put("/{id}/status", cfg.Orders.UpdateStatus)
			r.Delete("/{id}", cfg.Orders.Delete)
		})

		r.Get("/customers/{customerID}/orders", cfg.Orders.ListForCustomer)
		r.Get("/me/orders", cfg.Orders.ListMine)
	})

	return r
}

func health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unhealthy"}`))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}
}
