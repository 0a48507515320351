// internal/app/features/owner/tenants.go
package owner

import (
	"context"
	"errors"
	"net/http"

	tenantstore "github.com/dalemusser/learnhub/internal/app/store/tenants"
	"github.com/dalemusser/learnhub/internal/app/system/apierr"
	"github.com/dalemusser/learnhub/internal/app/system/auth"
	"github.com/dalemusser/learnhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/learnhub/internal/app/system/normalize"
	"github.com/dalemusser/learnhub/internal/app/system/timeouts"
	"github.com/dalemusser/learnhub/internal/app/system/txn"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

/*─────────────────────────────────────────────────────────────────────────────*
| GET /api/owner/tenants                                                       |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	ts, err := h.Tenants.List(ctx, true)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	if ts == nil {
		ts = []models.Tenant{}
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]any{"tenants": ts})
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /api/owner/tenants                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

type createRequest struct {
	Slug      string       `json:"slug"`
	Name      string       `json:"name"`
	Plan      models.Plan  `json:"plan"`
	SeatLimit int          `json:"seat_limit"`
	Locale    string       `json:"locale"`
	Theme     models.Theme `json:"theme"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := apierr.DecodeJSON(w, r, &req); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	if normalize.Name(htmlsanitize.PlainText(req.Name)) == "" {
		apierr.BadRequest(w, "name is required")
		return
	}
	if req.SeatLimit < 0 {
		apierr.BadRequest(w, "seat_limit must not be negative")
		return
	}
	if req.Plan != "" && !req.Plan.Valid() {
		apierr.BadRequest(w, "plan must be FREE, TEAM, BUSINESS or ENTERPRISE")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	t, err := h.Tenants.Create(ctx, models.Tenant{
		Slug:      req.Slug,
		Name:      req.Name,
		Plan:      req.Plan,
		SeatLimit: req.SeatLimit,
		Locale:    req.Locale,
		Theme:     req.Theme,
	})
	switch {
	case errors.Is(err, tenantstore.ErrDuplicateSlug):
		apierr.Conflict(w, err.Error())
		return
	case errors.Is(err, tenantstore.ErrInvalidSlug):
		apierr.BadRequest(w, err.Error())
		return
	case err != nil:
		apierr.Write(w, h.Log, err)
		return
	}

	h.AuditLog.TenantCreated(ctx, r, h.actorID(r), t.ID, t.Slug)
	apierr.WriteJSON(w, http.StatusCreated, t)
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /api/owner/tenants/{id}/archive|restore                                 |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, true)
}

func (h *Handler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, false)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request, archive bool) {
	t, ok := h.loadTenant(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	var err error
	if archive {
		err = h.Tenants.Archive(ctx, t.ID)
	} else {
		err = h.Tenants.Restore(ctx, t.ID)
	}
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	if archive {
		h.AuditLog.TenantArchived(ctx, r, h.actorID(r), t.ID, t.Slug)
	} else {
		h.AuditLog.TenantRestored(ctx, r, h.actorID(r), t.ID, t.Slug)
	}
	w.WriteHeader(http.StatusNoContent)
}

/*─────────────────────────────────────────────────────────────────────────────*
| PUT /api/owner/tenants/{id}/plan                                             |
*─────────────────────────────────────────────────────────────────────────────*/

type planRequest struct {
	Plan      string `json:"plan"`
	SeatLimit int    `json:"seat_limit"` // 0 = plan default
}

func (h *Handler) HandleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := apierr.DecodeJSON(w, r, &req); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	plan := models.Plan(req.Plan)
	if !plan.Valid() {
		apierr.BadRequest(w, "unknown plan")
		return
	}
	if req.SeatLimit < 0 {
		apierr.BadRequest(w, "seat_limit must not be negative")
		return
	}

	t, ok := h.loadTenant(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.Tenants.UpdatePlan(ctx, t.ID, plan, req.SeatLimit); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	h.AuditLog.SettingsUpdated(ctx, r, h.actorID(r), t.ID, "plan")
	h.Log.Info("tenant plan changed",
		zap.String("tenant_id", t.ID.Hex()),
		zap.String("plan", string(plan)),
		zap.Int("seat_limit", req.SeatLimit))
	w.WriteHeader(http.StatusNoContent)
}

/*─────────────────────────────────────────────────────────────────────────────*
| DELETE /api/owner/tenants/{id}                                               |
*─────────────────────────────────────────────────────────────────────────────*/

type purgeRequest struct {
	ConfirmSlug string `json:"confirm_slug"`
}

// HandlePurge irreversibly deletes an archived tenant together with its
// memberships, grants, groups and modules. The caller must echo the slug.
func (h *Handler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	t, ok := h.loadTenant(w, r)
	if !ok {
		return
	}

	var req purgeRequest
	if err := apierr.DecodeJSON(w, r, &req); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	if normalize.Slug(req.ConfirmSlug) != t.Slug {
		apierr.BadRequest(w, "confirm_slug does not match the tenant slug")
		return
	}
	if !t.IsArchived() {
		apierr.Conflict(w, "archive the tenant before purging it")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	err := txn.Run(ctx, h.Client, h.Log, func(ctx context.Context) error {
		if _, err := h.Memberships.DeleteByTenant(ctx, t.ID); err != nil {
			return err
		}
		if _, err := h.Grants.DeleteByTenant(ctx, t.ID); err != nil {
			return err
		}
		if _, err := h.Groups.DeleteByTenant(ctx, t.ID); err != nil {
			return err
		}
		if _, err := h.Modules.DeleteByTenant(ctx, t.ID); err != nil {
			return err
		}
		if _, err := h.Invites.DeleteByTenant(ctx, t.ID); err != nil {
			return err
		}
		_, err := h.Tenants.Delete(ctx, t.ID)
		return err
	})
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	h.AuditLog.TenantPurged(ctx, r, h.actorID(r), t.ID, t.Slug)
	h.Log.Warn("tenant purged", zap.String("tenant_id", t.ID.Hex()), zap.String("slug", t.Slug))
	w.WriteHeader(http.StatusNoContent)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Helpers                                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) loadTenant(w http.ResponseWriter, r *http.Request) (models.Tenant, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		apierr.BadRequest(w, "invalid tenant id")
		return models.Tenant{}, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	t, err := h.Tenants.GetByID(ctx, id)
	if errors.Is(err, tenantstore.ErrNotFound) {
		apierr.NotFound(w, "tenant not found")
		return models.Tenant{}, false
	}
	if err != nil {
		apierr.Write(w, h.Log, err)
		return models.Tenant{}, false
	}
	return t, true
}

func (h *Handler) actorID(r *http.Request) primitive.ObjectID {
	u, _ := auth.CurrentUser(r)
	id, _ := primitive.ObjectIDFromHex(u.ID)
	return id
}
