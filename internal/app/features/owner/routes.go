// internal/app/features/owner/routes.go
package owner

import (
	"github.com/dalemusser/learnhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes returns a subrouter mounted at /api/owner.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireOwner)

	r.Post("/impersonate", h.HandleImpersonate)
	r.Delete("/impersonate", h.HandleStopImpersonate)

	r.Get("/tenants", h.ServeList)
	r.Post("/tenants", h.HandleCreate)
	r.Post("/tenants/{id}/archive", h.HandleArchive)
	r.Post("/tenants/{id}/restore", h.HandleRestore)
	r.Put("/tenants/{id}/plan", h.HandleUpdatePlan)
	r.Delete("/tenants/{id}", h.HandlePurge)
	return r
}
