package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/FLAMiNGPHYtON1/outlet-locator/app"
	"github.com/FLAMiNGPHYtON1/outlet-locator/auth"
	"github.com/FLAMiNGPHYtON1/outlet-locator/handlers"
	"github.com/FLAMiNGPHYtON1/outlet-locator/utils"
)

// ServiceName is reported by GET /
const ServiceName = "outlet-locator"

// Version is overridden at build time with -ldflags "-X ...routes.Version=..."
var Version = "dev"

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if timeout := deps.Config.Server.RequestTimeout; timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	outlets := handlers.NewOutletHandler(deps.OutletService, deps.Logger)
	search := handlers.NewSearchHandler(deps.OutletService, deps.Logger)
	rescrapes := handlers.NewRescrapeHandler(deps.RescrapeQueue, deps.Indexer, deps.Logger)

	health := handlers.NewHealthHandler(nil, deps.Logger)
	if deps.DB != nil {
		health = handlers.NewHealthHandler(deps.DB.DB, deps.Logger)
	}
	if deps.RedisHealth != nil {
		health.WithCheck("redis", deps.RedisHealth)
	}

	r.Get("/", handlers.RootHandler(handlers.ServiceInfo{
		Service:     ServiceName,
		Version:     Version,
		Environment: deps.Config.Environment,
		Endpoints:   endpoints,
	}))
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	r.Route("/api/v1", func(r chi.Router) {
		// Public reads and search
		r.Get("/outlets", outlets.HandleList)
		r.Get("/outlets/stats", outlets.HandleStats)
		r.Get("/outlets/{id}", outlets.HandleGet)
		r.Get("/outlets/search-terms", outlets.HandleSearchTerms)
		r.Post("/search", search.HandleSearch)
		r.Get("/scrape/jobs/stats", rescrapes.HandleStats)
		r.Get("/scrape/jobs/{id}", rescrapes.HandleGetJob)

		// Operations that hit the listing site, the provider or bulk storage
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Use(deps.AuthMiddleware.RequireRole(auth.RoleAdmin))
			r.Post("/scrape-outlets", outlets.HandleScrape)
			r.Post("/save-outlets", outlets.HandleSave)
			r.Delete("/outlets", outlets.HandleDeleteAll)
			r.Post("/scrape/rescrape-all", rescrapes.HandleRescrapeAll)
			r.Post("/reindex", rescrapes.HandleReindex)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}

var endpoints = []handlers.Endpoint{
	{Method: http.MethodGet, Path: "/healthz", Description: "Liveness probe"},
	{Method: http.MethodGet, Path: "/readyz", Description: "Readiness probe"},
	{Method: http.MethodGet, Path: "/api/v1/outlets", Description: "List stored outlets"},
	{Method: http.MethodGet, Path: "/api/v1/outlets/stats", Description: "Outlet statistics"},
	{Method: http.MethodGet, Path: "/api/v1/outlets/{id}", Description: "Get one outlet"},
	{Method: http.MethodGet, Path: "/api/v1/outlets/search-terms", Description: "Search terms scraped so far"},
	{Method: http.MethodPost, Path: "/api/v1/search", Description: "Semantic outlet search with an optional answer"},
	{Method: http.MethodGet, Path: "/api/v1/scrape/jobs/stats", Description: "Re-scrape queue statistics"},
	{Method: http.MethodGet, Path: "/api/v1/scrape/jobs/{id}", Description: "Re-scrape job status"},
	{Method: http.MethodPost, Path: "/api/v1/scrape-outlets", Description: "Scrape without saving", Admin: true},
	{Method: http.MethodPost, Path: "/api/v1/save-outlets", Description: "Scrape, save and index", Admin: true},
	{Method: http.MethodDelete, Path: "/api/v1/outlets", Description: "Delete every stored outlet", Admin: true},
	{Method: http.MethodPost, Path: "/api/v1/scrape/rescrape-all", Description: "Queue a re-scrape of every search term", Admin: true},
	{Method: http.MethodPost, Path: "/api/v1/reindex", Description: "Re-embed outlets whose text changed", Admin: true},
}
