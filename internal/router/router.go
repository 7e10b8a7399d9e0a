package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kiwari-pos/catering/internal/catalog"
	"github.com/kiwari-pos/catering/internal/config"
	"github.com/kiwari-pos/catering/internal/database"
	"github.com/kiwari-pos/catering/internal/enum"
	"github.com/kiwari-pos/catering/internal/handler"
	mw "github.com/kiwari-pos/catering/internal/middleware"
	"github.com/kiwari-pos/catering/internal/pricing"
	"github.com/kiwari-pos/catering/internal/service"
	"github.com/kiwari-pos/catering/internal/session"
	"github.com/kiwari-pos/catering/internal/ws"
	"go.uber.org/zap"
)

// Pinger reports database reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the long-lived components the routes are built from.
type Deps struct {
	Queries   *database.Queries
	Pool      service.TxBeginner
	DB        Pinger
	Catalog   *catalog.Catalog
	Flows     *session.Registry
	Hub       *ws.Hub
	Publisher service.Publisher // nil disables order events
	Log       *zap.Logger
}

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, d Deps) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.RequestLogger(d.Log))
	r.Use(mw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if d.DB != nil {
			if err := d.DB.Ping(r.Context()); err != nil {
				d.Log.Warn("health check", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ok"}`))
	})

	format := pricing.Formatter{Symbol: cfg.CurrencySymbol}

	// Menu
	menuHandler := handler.NewMenuHandler(d.Catalog, format, d.Log)
	menuHandler.RegisterRoutes(r)
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireLocation(knownLocations(cfg)))
		menuHandler.RegisterAdminRoutes(r)
	})

	// Orders
	orderService := service.NewOrderService(
		d.Pool,
		func(db database.DBTX) service.OrderStore { return database.New(db) },
		d.Queries,
		d.Publisher,
		d.Log,
	)
	orderHandler := handler.NewOrderHandler(orderService, format, d.Log)
	r.Route("/orders", orderHandler.RegisterRoutes)

	// Order flows
	flowHandler := handler.NewFlowHandler(d.Flows, orderService, d.Hub, format, d.Log)
	r.Route("/flows", flowHandler.RegisterRoutes)

	r.Get("/ws/flows/{id}", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(d.Hub, d.Flows, d.Log, w, r)
	})

	d.Log.Info("router initialized")
	return r
}

// knownLocations lists the locations with a configured delivery fee, plus the
// built-in ones.
func knownLocations(cfg *config.Config) []enum.Location {
	seen := make(map[enum.Location]bool)
	var out []enum.Location
	for _, l := range enum.Locations {
		seen[l] = true
		out = append(out, l)
	}
	for l := range cfg.DeliveryFees {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}
