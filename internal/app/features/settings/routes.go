// internal/app/features/settings/routes.go
package settings

import (
	"net/http"

	"github.com/dalemusser/learnhub/internal/app/system/gates"
	"github.com/dalemusser/learnhub/internal/app/system/permissions"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes returns the subrouter mounted at /api/settings.
func Routes(h *Handler, tenantMW func(http.Handler) http.Handler, checker *permissions.Checker) chi.Router {
	r := chi.NewRouter()
	r.Use(tenantMW)
	r.Use(checker.RequireCapability(models.CapManageSettings, h.Log))

	r.Get("/", h.ServeSettings)
	r.Put("/features", h.HandleUpdateFeatures)
	r.Put("/gamification", h.HandleUpdateGamification)
	return r
}

// GamificationRoutes returns the subrouter mounted at /api/gamification. Any
// member may read it while the tenant has gamification enabled.
func GamificationRoutes(h *Handler, tenantMW func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(tenantMW)
	r.Use(gates.RequireFeature(gates.FeatureGamification, h.Log))

	r.Get("/xp", h.ServeXPTable)
	r.Get("/rank", h.ServeRank)
	return r
}
