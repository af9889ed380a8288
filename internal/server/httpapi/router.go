package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(chimiddleware.Recoverer)

	r.NotFound(h.notFound)
	r.MethodNotAllowed(h.methodNotAllowed)

	r.Get("/health", h.Health)

	r.Route("/api/evidence", func(r chi.Router) {
		r.Post("/upload", h.Upload)
		r.Post("/verify", h.Verify)
		r.Get("/verify/{recordId}", h.GetRecord)
		r.Get("/plate/{plate}", h.ByPlate)
		r.Get("/records", h.Records)
	})

	return r
}
