// internal/app/features/members/manage.go
package members

import (
	"context"
	"errors"
	"net/http"

	memberships "github.com/dalemusser/learnhub/internal/app/store/memberships"
	"github.com/dalemusser/learnhub/internal/app/system/accesserr"
	"github.com/dalemusser/learnhub/internal/app/system/apierr"
	"github.com/dalemusser/learnhub/internal/app/system/tenantctx"
	"github.com/dalemusser/learnhub/internal/app/system/timeouts"
	"github.com/dalemusser/learnhub/internal/app/system/txn"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/dalemusser/learnhub/internal/domain/roles"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const reasonOutranks = "cannot manage a member who outranks you"

type changeRoleRequest struct {
	Role string `json:"role"`
}

// loadTarget reads the {userID} membership in the context tenant and checks
// the actor may manage it.
func (h *Handler) loadTarget(ctx context.Context, tc *tenantctx.TenantContext, r *http.Request) (models.Membership, error) {
	userID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "userID"))
	if err != nil {
		return models.Membership{}, apierr.Invalid("invalid user id")
	}
	if userID == tc.UserID {
		return models.Membership{}, apierr.Invalid("you cannot change your own membership")
	}
	m, err := h.Memberships.Get(ctx, userID, tc.TenantID)
	if errors.Is(err, memberships.ErrNotFound) {
		return models.Membership{}, accesserr.New(accesserr.NotFound)
	}
	if err != nil {
		return models.Membership{}, err
	}
	if m.Role.Rank() > tc.EffectiveRole.Rank() {
		return models.Membership{}, accesserr.Deny(reasonOutranks)
	}
	return m, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| PATCH /api/members/{userID}                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

// HandleChangeRole sets a member's role. The new role may not exceed the
// actor's effective role, and OWNER is never assignable here.
func (h *Handler) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	tc, _ := tenantctx.FromRequest(r)

	var req changeRoleRequest
	if err := apierr.DecodeJSON(w, r, &req); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	role, err := roles.ParseTenantRole(req.Role)
	if err != nil {
		apierr.BadRequest(w, "unknown role")
		return
	}
	if role == roles.Owner {
		apierr.BadRequest(w, "the OWNER role cannot be assigned")
		return
	}
	if !roles.HasMinRole(tc.EffectiveRole, role) {
		apierr.Write(w, h.Log, accesserr.Deny("cannot grant a role above your own"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	m, err := h.loadTarget(ctx, tc, r)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	if m.Role == role {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.Memberships.UpdateRole(ctx, m.UserID, tc.TenantID, role); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	h.AuditLog.MembershipRoleChanged(ctx, r, tc.UserID, m.UserID, tc.TenantID, m.Role, role)
	h.Log.Info("membership role changed",
		zap.String("tenant_id", tc.TenantID.Hex()),
		zap.String("user_id", m.UserID.Hex()),
		zap.String("from", m.Role.String()),
		zap.String("to", role.String()))
	w.WriteHeader(http.StatusNoContent)
}

/*─────────────────────────────────────────────────────────────────────────────*
| DELETE /api/members/{userID}                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

// HandleRemove deletes a membership together with the user's group
// memberships and grants in the tenant.
func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	tc, _ := tenantctx.FromRequest(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	m, err := h.loadTarget(ctx, tc, r)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	err = txn.Run(ctx, h.Client, h.Log, func(ctx context.Context) error {
		if _, err := h.Groups.RemoveUserFromTenant(ctx, m.UserID, tc.TenantID); err != nil {
			return err
		}
		if _, err := h.Grants.DeleteByUser(ctx, m.UserID, tc.TenantID); err != nil {
			return err
		}
		err := h.Memberships.Delete(ctx, m.UserID, tc.TenantID)
		if errors.Is(err, memberships.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	h.AuditLog.MembershipRemoved(ctx, r, tc.UserID, m.UserID, tc.TenantID, m.Role)
	w.WriteHeader(http.StatusNoContent)
}
