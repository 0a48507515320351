// internal/app/features/owner/impersonate.go
package owner

import (
	"context"
	"net/http"

	"github.com/dalemusser/learnhub/internal/app/system/apierr"
	"github.com/dalemusser/learnhub/internal/app/system/auth"
	"github.com/dalemusser/learnhub/internal/app/system/tenantcookie"
	"github.com/dalemusser/learnhub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type impersonateRequest struct {
	TenantID string `json:"tenant_id"`
}

// HandleImpersonate enters a tenant as the owner. The tenant must be
// resolvable; the cookie carries a short expiry.
func (h *Handler) HandleImpersonate(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	var req impersonateRequest
	if err := apierr.DecodeJSON(w, r, &req); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	tenantID, err := primitive.ObjectIDFromHex(req.TenantID)
	if err != nil {
		apierr.BadRequest(w, "tenant_id is not a valid id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	res, err := h.Resolver.Resolve(ctx, u, tenantcookie.Selection{ImpersonateID: &tenantID})
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	if err := h.Cookies.SetImpersonation(w, tenantID); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	h.AuditLog.ImpersonationStarted(ctx, r, res.Context.UserID, tenantID)
	h.Log.Info("owner impersonation started",
		zap.String("user_id", u.ID),
		zap.String("tenant_id", tenantID.Hex()))
	apierr.WriteJSON(w, http.StatusOK, res.Context.View())
}

// HandleStopImpersonate leaves impersonation. It succeeds even when no
// impersonation was active.
func (h *Handler) HandleStopImpersonate(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	sel := h.Cookies.Selection(r)
	h.Cookies.ClearImpersonation(w)

	if ownerID, err := primitive.ObjectIDFromHex(u.ID); err == nil {
		h.AuditLog.ImpersonationStopped(r.Context(), r, ownerID, sel.ImpersonateID)
	}
	w.WriteHeader(http.StatusNoContent)
}
