// internal/app/features/grants/routes.go
package grants

import (
	"net/http"

	"github.com/dalemusser/learnhub/internal/app/system/permissions"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes returns the subrouter mounted at /api/grants.
func Routes(h *Handler, tenantMW func(http.Handler) http.Handler, checker *permissions.Checker) chi.Router {
	r := chi.NewRouter()
	r.Use(tenantMW)
	r.Use(checker.RequireCapability(models.CapManagePermissions, h.Log))

	r.Get("/", h.ServeList)
	r.Post("/", h.HandleCreate)
	r.Delete("/{id}", h.HandleRevoke)
	return r
}
