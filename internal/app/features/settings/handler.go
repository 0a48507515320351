// internal/app/features/settings/handler.go
package settings

import (
	"context"
	"net/http"
	"sort"
	"strconv"

	memberships "github.com/dalemusser/learnhub/internal/app/store/memberships"
	tenants "github.com/dalemusser/learnhub/internal/app/store/tenants"
	"github.com/dalemusser/learnhub/internal/app/system/apierr"
	"github.com/dalemusser/learnhub/internal/app/system/auditlog"
	"github.com/dalemusser/learnhub/internal/app/system/gates"
	"github.com/dalemusser/learnhub/internal/app/system/tenantctx"
	"github.com/dalemusser/learnhub/internal/app/system/timeouts"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves tenant settings: feature toggles, plan limits and
// gamification configuration.
type Handler struct {
	Tenants     *tenants.Store
	Memberships *memberships.Store
	AuditLog    *auditlog.Logger
	Log         *zap.Logger
}

func NewHandler(db *mongo.Database, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Tenants:     tenants.New(db),
		Memberships: memberships.New(db),
		AuditLog:    audit,
		Log:         logger,
	}
}

type settingsResponse struct {
	Plan         models.Plan         `json:"plan"`
	SeatLimit    int                 `json:"seat_limit"`
	SeatsUsed    int64               `json:"seats_used"`
	Features     map[string]bool     `json:"features"`
	Overrides    map[string]bool     `json:"overrides"`
	Gamification models.Gamification `json:"gamification"`
}

func (h *Handler) render(ctx context.Context, t models.Tenant) (settingsResponse, error) {
	used, err := h.Memberships.CountByTenant(ctx, t.ID)
	if err != nil {
		return settingsResponse{}, err
	}
	overrides := t.Features
	if overrides == nil {
		overrides = map[string]bool{}
	}
	return settingsResponse{
		Plan:         t.Plan,
		SeatLimit:    gates.SeatLimit(t),
		SeatsUsed:    used,
		Features:     gates.EffectiveFeatures(t),
		Overrides:    overrides,
		Gamification: t.Gamification,
	}, nil
}

// reload reads the tenant back after a write and renders it.
func (h *Handler) reload(ctx context.Context, w http.ResponseWriter, tc *tenantctx.TenantContext) {
	t, err := h.Tenants.GetByID(ctx, tc.TenantID)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	resp, err := h.render(ctx, t)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, resp)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /api/settings                                                            |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeSettings(w http.ResponseWriter, r *http.Request) {
	tc, _ := tenantctx.FromRequest(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	resp, err := h.render(ctx, tc.Tenant)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, resp)
}

/*─────────────────────────────────────────────────────────────────────────────*
| PUT /api/settings/features                                                   |
| A null value drops the override so the plan default applies again.          |
*─────────────────────────────────────────────────────────────────────────────*/

type featuresRequest struct {
	Features map[string]*bool `json:"features"`
}

func (h *Handler) HandleUpdateFeatures(w http.ResponseWriter, r *http.Request) {
	tc, _ := tenantctx.FromRequest(r)

	var req featuresRequest
	if err := apierr.DecodeJSON(w, r, &req); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	flags := make([]string, 0, len(req.Features))
	for f := range req.Features {
		flags = append(flags, f)
	}
	sort.Strings(flags)

	merged := make(map[string]bool, len(tc.Tenant.Features)+len(flags))
	for f, v := range tc.Tenant.Features {
		merged[f] = v
	}
	for _, f := range flags {
		if !gates.IsKnownFeature(f) {
			apierr.BadRequest(w, "unknown feature: "+f)
			return
		}
		if v := req.Features[f]; v == nil {
			delete(merged, f)
		} else {
			merged[f] = *v
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.Tenants.UpdateFeatures(ctx, tc.TenantID, merged); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	h.AuditLog.SettingsUpdated(ctx, r, tc.UserID, tc.TenantID, "features")
	h.reload(ctx, w, tc)
}

/*─────────────────────────────────────────────────────────────────────────────*
| PUT /api/settings/gamification                                               |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleUpdateGamification(w http.ResponseWriter, r *http.Request) {
	tc, _ := tenantctx.FromRequest(r)

	var g models.Gamification
	if err := apierr.DecodeJSON(w, r, &g); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	if err := gates.ValidateGamification(g); err != nil {
		apierr.BadRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.Tenants.UpdateGamification(ctx, tc.TenantID, g); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	h.AuditLog.SettingsUpdated(ctx, r, tc.UserID, tc.TenantID, "gamification")
	h.reload(ctx, w, tc)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /api/gamification                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

type xpRow struct {
	Action string `json:"action"`
	XP     int    `json:"xp"`
}

// ServeXPTable lists the XP each known action awards in the tenant.
func (h *Handler) ServeXPTable(w http.ResponseWriter, r *http.Request) {
	tc, _ := tenantctx.FromRequest(r)

	seen := map[string]struct{}{}
	actions := make([]string, 0, len(gates.DefaultXP)+len(tc.Tenant.Gamification.XPRules))
	for a := range gates.DefaultXP {
		seen[a] = struct{}{}
		actions = append(actions, a)
	}
	for a := range tc.Tenant.Gamification.XPRules {
		if _, ok := seen[a]; !ok {
			actions = append(actions, a)
		}
	}
	sort.Strings(actions)

	rows := make([]xpRow, 0, len(actions))
	for _, a := range actions {
		rows = append(rows, xpRow{Action: a, XP: gates.XPFor(tc.Tenant, a)})
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]any{"xp": rows})
}

// ServeRank returns the rank reached at ?xp=.
func (h *Handler) ServeRank(w http.ResponseWriter, r *http.Request) {
	tc, _ := tenantctx.FromRequest(r)

	xp, err := strconv.Atoi(query.Get(r, "xp"))
	if err != nil || xp < 0 {
		apierr.BadRequest(w, "xp must be a non-negative integer")
		return
	}
	rank, found := gates.RankFor(tc.Tenant, xp)
	if !found {
		apierr.WriteJSON(w, http.StatusOK, map[string]any{"xp": xp, "rank": nil})
		return
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]any{"xp": xp, "rank": rank})
}
