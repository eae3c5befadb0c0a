package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/intraline/kbcore/internal/api"
	"github.com/intraline/kbcore/internal/api/handlers"
	"github.com/intraline/kbcore/internal/api/middleware"
)

type RouterConfig struct {
	DocumentsHandler *handlers.DocumentsHandler
	SearchHandler    *handlers.SearchHandler
	AdminHandler     *handlers.AdminHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", cfg.DocumentsHandler.Ingest)
		r.Get("/", cfg.DocumentsHandler.List)
		r.Delete("/", cfg.DocumentsHandler.Delete)
	})

	r.Post("/search", cfg.SearchHandler.Search)

	r.Post("/reconcile", cfg.AdminHandler.Reconcile)
	r.Get("/drift", cfg.AdminHandler.Drift)

	return r
}
