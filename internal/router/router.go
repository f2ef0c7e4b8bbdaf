package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/SuperSchedules/superschedules/internal/api/locations"
	"github.com/SuperSchedules/superschedules/internal/api/rag"
)

// Config contains the handlers mounted by the router.
type Config struct {
	LocationsHandler *locations.HandlerImpl
	RAGHandler       *rag.HandlerImpl
	AllowedOrigins   []string
}

// SetupRouter builds the API routes. Server-wide middleware (request id,
// logging, recoverer) is applied by the caller before mounting it.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/locations", cfg.LocationsHandler.Routes)
		r.Route("/rag", cfg.RAGHandler.Routes)
	})

	return r
}
