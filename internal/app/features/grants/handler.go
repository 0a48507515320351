// internal/app/features/grants/handler.go
package grants

import (
	"context"
	"errors"
	"net/http"

	grantstore "github.com/dalemusser/learnhub/internal/app/store/grants"
	groups "github.com/dalemusser/learnhub/internal/app/store/groups"
	memberships "github.com/dalemusser/learnhub/internal/app/store/memberships"
	modules "github.com/dalemusser/learnhub/internal/app/store/modules"
	"github.com/dalemusser/learnhub/internal/app/system/accesserr"
	"github.com/dalemusser/learnhub/internal/app/system/apierr"
	"github.com/dalemusser/learnhub/internal/app/system/auditlog"
	"github.com/dalemusser/learnhub/internal/app/system/tenantctx"
	"github.com/dalemusser/learnhub/internal/app/system/timeouts"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/dalemusser/learnhub/internal/domain/roles"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler manages permission grants inside the context tenant.
type Handler struct {
	Grants      *grantstore.Store
	Memberships *memberships.Store
	Groups      *groups.Store
	Modules     *modules.Store
	AuditLog    *auditlog.Logger
	Log         *zap.Logger
}

func NewHandler(db *mongo.Database, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Grants:      grantstore.New(db),
		Memberships: memberships.New(db),
		Groups:      groups.New(db),
		Modules:     modules.New(db),
		AuditLog:    audit,
		Log:         logger,
	}
}

type createRequest struct {
	UserID     string       `json:"user_id"`
	Capability string       `json:"capability"`
	Scope      models.Scope `json:"scope"`
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /api/grants                                                              |
*─────────────────────────────────────────────────────────────────────────────*/

// ServeList lists the tenant's grants, optionally filtered by ?user_id=.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	tc, _ := tenantctx.FromRequest(r)

	var userID *primitive.ObjectID
	if raw := query.Get(r, "user_id"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			apierr.BadRequest(w, "invalid user id")
			return
		}
		userID = &id
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	gs, err := h.Grants.ListByTenant(ctx, tc.TenantID, userID)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	if gs == nil {
		gs = []models.PermissionGrant{}
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]any{"grants": gs})
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /api/grants                                                             |
*─────────────────────────────────────────────────────────────────────────────*/

// HandleCreate grants a capability to a member. Scope ids must name groups
// and modules of the context tenant.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	tc, _ := tenantctx.FromRequest(r)

	var req createRequest
	if err := apierr.DecodeJSON(w, r, &req); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	userID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		apierr.BadRequest(w, "invalid user id")
		return
	}
	capability, err := models.ParseCapability(req.Capability)
	if err != nil {
		apierr.BadRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	m, err := h.Memberships.Get(ctx, userID, tc.TenantID)
	if errors.Is(err, memberships.ErrNotFound) {
		apierr.BadRequest(w, "user is not a member of this tenant")
		return
	}
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	if roles.HasMinRole(m.Role, roles.SuperAdmin) {
		apierr.BadRequest(w, "grants only apply to roles below SUPER_ADMIN")
		return
	}

	if err := h.validateScope(ctx, tc.TenantID, req.Scope); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	g, err := h.Grants.Create(ctx, models.PermissionGrant{
		UserID:     userID,
		TenantID:   tc.TenantID,
		Capability: capability,
		Scope:      req.Scope,
		GrantedBy:  tc.UserID,
	})
	if errors.Is(err, grantstore.ErrDuplicateGrant) {
		apierr.Conflict(w, err.Error())
		return
	}
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	h.AuditLog.GrantCreated(ctx, r, tc.UserID, userID, tc.TenantID, string(capability), g.Scope.Kind().String())
	apierr.WriteJSON(w, http.StatusCreated, g)
}

func (h *Handler) validateScope(ctx context.Context, tenantID primitive.ObjectID, s models.Scope) error {
	if ids := s.GroupIDs(); len(ids) > 0 {
		n, err := h.Groups.CountInTenant(ctx, tenantID, ids)
		if err != nil {
			return err
		}
		if n != int64(len(ids)) {
			return apierr.Invalid("scope names a group outside this tenant")
		}
	}
	if ids := s.ModuleIDs(); len(ids) > 0 {
		n, err := h.Modules.CountInTenant(ctx, tenantID, ids)
		if err != nil {
			return err
		}
		if n != int64(len(ids)) {
			return apierr.Invalid("scope names a module outside this tenant")
		}
	}
	return nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| DELETE /api/grants/{id}                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	tc, _ := tenantctx.FromRequest(r)

	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		apierr.BadRequest(w, "invalid grant id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	g, err := h.Grants.GetByID(ctx, id, tc.TenantID)
	if errors.Is(err, grantstore.ErrNotFound) {
		apierr.Write(w, h.Log, accesserr.New(accesserr.NotFound))
		return
	}
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	if err := h.Grants.Revoke(ctx, g.ID, tc.TenantID); err != nil && !errors.Is(err, grantstore.ErrNotFound) {
		apierr.Write(w, h.Log, err)
		return
	}

	h.AuditLog.GrantRevoked(ctx, r, tc.UserID, g.UserID, tc.TenantID, string(g.Capability))
	w.WriteHeader(http.StatusNoContent)
}
