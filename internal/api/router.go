package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/odpi/egeria-sub244/internal/ingestion"
	"github.com/odpi/egeria-sub244/internal/logging"
	"github.com/odpi/egeria-sub244/internal/middleware"
	"github.com/odpi/egeria-sub244/internal/service"
)

// RouterConfig carries what the router needs beyond the services.
type RouterConfig struct {
	AllowedOrigins []string
	Metrics        *service.Metrics
	Logger         logging.Logger
}

// NewRouter wires every endpoint behind CORS, request logging and the
// per-request entity loader.
func NewRouter(svc *service.SearchService, importer *ingestion.Service, cfg RouterConfig) http.Handler {
	h := &Handler{service: svc, importer: importer}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /entities", h.handleCreateEntity)
	mux.HandleFunc("GET /entities", h.handleGetEntities)
	mux.HandleFunc("POST /entities/import", h.handleImport)
	mux.HandleFunc("GET /entities/{id}", h.handleGetEntity)
	mux.HandleFunc("PUT /entities/{id}", h.handleUpdateEntity)
	mux.HandleFunc("DELETE /entities/{id}", h.handleDeleteEntity)
	mux.HandleFunc("POST /search/entities", h.handleFindEntities)
	mux.HandleFunc("POST /search/validate", h.handleValidate)
	mux.HandleFunc("POST /search/entities/export", h.handleExport)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{middleware.RequestIDHeader, "Content-Disposition", "X-Total-Count"},
	})

	return corsHandler.Handler(middleware.LoggingMiddleware(cfg.Logger)(
		middleware.DataLoaderMiddleware(svc)(mux),
	))
}
