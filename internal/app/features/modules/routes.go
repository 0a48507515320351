// internal/app/features/modules/routes.go
package modules

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the subrouter mounted at /api/modules.
func Routes(h *Handler, tenantMW func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(tenantMW)
	r.Get("/{id}/access", h.ServeAccess)
	return r
}
