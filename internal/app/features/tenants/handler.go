// internal/app/features/tenants/handler.go
package tenants

import (
	"context"
	"net/http"
	"sort"

	membershipstore "github.com/dalemusser/learnhub/internal/app/store/memberships"
	tenantstore "github.com/dalemusser/learnhub/internal/app/store/tenants"
	"github.com/dalemusser/learnhub/internal/app/system/apierr"
	"github.com/dalemusser/learnhub/internal/app/system/auditlog"
	"github.com/dalemusser/learnhub/internal/app/system/auth"
	"github.com/dalemusser/learnhub/internal/app/system/tenantcookie"
	"github.com/dalemusser/learnhub/internal/app/system/tenantctx"
	"github.com/dalemusser/learnhub/internal/app/system/timeouts"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/dalemusser/learnhub/internal/domain/roles"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves the tenant picker. Its routes run without a resolved
// tenant context so a user facing TENANT_PICKER_REQUIRED can still choose.
type Handler struct {
	Memberships *membershipstore.Store
	Tenants     *tenantstore.Store
	Resolver    *tenantctx.Resolver
	Cookies     *tenantcookie.Codec
	AuditLog    *auditlog.Logger
	Log         *zap.Logger
}

func NewHandler(db *mongo.Database, resolver *tenantctx.Resolver, cookies *tenantcookie.Codec, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Memberships: membershipstore.New(db),
		Tenants:     tenantstore.New(db),
		Resolver:    resolver,
		Cookies:     cookies,
		AuditLog:    audit,
		Log:         logger,
	}
}

type tenantItem struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

type listResponse struct {
	Tenants  []tenantItem `json:"tenants"`
	Selected string       `json:"selected,omitempty"`
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /api/tenants                                                             |
*─────────────────────────────────────────────────────────────────────────────*/

// ServeList lists the tenants the caller may select. The global OWNER sees
// every active tenant; everyone else sees active tenants they belong to.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	userID, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		apierr.Unauthorized(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	ms, err := h.Memberships.ListByUser(ctx, userID)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	roleByTenant := make(map[primitive.ObjectID]roles.TenantRole, len(ms))
	ids := make([]primitive.ObjectID, 0, len(ms))
	for _, m := range ms {
		roleByTenant[m.TenantID] = m.Role
		ids = append(ids, m.TenantID)
	}

	var ts []models.Tenant
	if u.IsOwner() {
		ts, err = h.Tenants.List(ctx, false)
	} else {
		ts, err = h.Tenants.ListActiveByIDs(ctx, ids)
	}
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].NameCI < ts[j].NameCI })

	resp := listResponse{Tenants: make([]tenantItem, 0, len(ts))}
	for _, t := range ts {
		resp.Tenants = append(resp.Tenants, tenantItem{
			ID:   t.ID.Hex(),
			Slug: t.Slug,
			Name: t.Name,
			Role: roleByTenant[t.ID].String(),
		})
	}
	if sel := h.Cookies.Selection(r); sel.TenantID != nil {
		resp.Selected = sel.TenantID.Hex()
	}
	apierr.WriteJSON(w, http.StatusOK, resp)
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /api/tenants/select                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

type selectRequest struct {
	TenantID string `json:"tenant_id"`
}

// HandleSelect verifies the caller may enter the tenant, then stores the
// selector cookie. An owner's impersonation cookie is dropped so the
// explicit choice takes effect.
func (h *Handler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	var req selectRequest
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

	res, err := h.Resolver.Resolve(ctx, u, tenantcookie.Selection{TenantID: &tenantID})
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	if err := h.Cookies.SetTenant(w, tenantID); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	if u.IsOwner() {
		h.Cookies.ClearImpersonation(w)
	}

	h.AuditLog.TenantSelected(ctx, r, res.Context.UserID, tenantID)
	apierr.WriteJSON(w, http.StatusOK, res.Context.View())
}
