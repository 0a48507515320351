// internal/app/features/members/routes.go
package members

import (
	"net/http"

	"github.com/dalemusser/learnhub/internal/app/system/auth"
	"github.com/dalemusser/learnhub/internal/app/system/permissions"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes returns the subrouter mounted at /api/members.
func Routes(h *Handler, tenantMW func(http.Handler) http.Handler, checker *permissions.Checker) chi.Router {
	r := chi.NewRouter()
	r.Use(tenantMW)
	r.Use(checker.RequireCapability(models.CapManageUsers, h.Log))

	r.Get("/", h.ServeList)
	r.Get("/invites", h.ServeInvites)
	r.Post("/invites", h.HandleCreateInvite)
	r.Delete("/invites/{inviteID}", h.HandleRevokeInvite)
	r.Patch("/{userID}", h.HandleChangeRole)
	r.Delete("/{userID}", h.HandleRemove)
	return r
}

// InviteRoutes returns the subrouter mounted at /api/invites. It needs a
// signed-in user but no tenant context.
func InviteRoutes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Post("/accept", h.HandleAcceptInvite)
	return r
}
