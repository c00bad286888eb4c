package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchgate/internal/metrics"
)

// NewRouter mounts every gateway route on a chi router with the standard middleware stack.
func NewRouter(s *Server, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(logger))
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.Healthz)
	r.Get("/readyz", s.Readyz)
	r.Get("/metrics", s.Metrics)

	r.Post("/mcp", s.HandleSessionPost)
	r.Get("/mcp", s.HandleSessionStream)
	r.Delete("/mcp", s.HandleSessionDelete)

	if s.ActionsEnabled() {
		r.Route("/gpt-actions", func(r chi.Router) {
			r.Get("/openapi.json", s.ActionOpenAPI)
			r.With(APIKeyMiddleware(s.actionsKey)).Post("/search", s.ActionSearch)
		})
	}

	return r
}
