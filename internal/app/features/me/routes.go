// internal/app/features/me/routes.go
package me

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns a subrouter mounted at /api/me. tenantMW must resolve the
// tenant context.
func Routes(h *Handler, tenantMW func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(tenantMW)
	r.Get("/", h.ServeMe)
	return r
}
