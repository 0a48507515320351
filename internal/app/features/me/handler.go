// internal/app/features/me/handler.go
package me

import (
	"context"
	"net/http"

	grantstore "github.com/dalemusser/learnhub/internal/app/store/grants"
	membershipstore "github.com/dalemusser/learnhub/internal/app/store/memberships"
	"github.com/dalemusser/learnhub/internal/app/system/apierr"
	"github.com/dalemusser/learnhub/internal/app/system/gates"
	"github.com/dalemusser/learnhub/internal/app/system/permissions"
	"github.com/dalemusser/learnhub/internal/app/system/tenantctx"
	"github.com/dalemusser/learnhub/internal/app/system/timeouts"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Handler serves GET /api/me: who the caller is inside the current tenant.
type Handler struct {
	Memberships *membershipstore.Store
	Grants      *grantstore.Store
	Checker     *permissions.Checker
	Log         *zap.Logger
}

func NewHandler(db *mongo.Database, checker *permissions.Checker, logger *zap.Logger) *Handler {
	return &Handler{
		Memberships: membershipstore.New(db),
		Grants:      grantstore.New(db),
		Checker:     checker,
		Log:         logger,
	}
}

type userView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	GlobalRole string `json:"global_role"`
}

type grantView struct {
	ID         string            `json:"id"`
	Capability models.Capability `json:"capability"`
	Scope      models.Scope      `json:"scope"`
}

type meResponse struct {
	User         userView            `json:"user"`
	Context      tenantctx.View      `json:"context"`
	TenantCount  int                 `json:"tenant_count"`
	Capabilities []models.Capability `json:"capabilities"`
	Grants       []grantView         `json:"grants"`
	Features     map[string]bool     `json:"features"`
	SeatLimit    int                 `json:"seat_limit"`
}

func (h *Handler) ServeMe(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantctx.FromRequest(r)
	if !ok {
		apierr.Unauthorized(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	resp := meResponse{
		User: userView{
			ID:         tc.User.ID,
			Name:       tc.User.Name,
			Email:      tc.User.Email,
			GlobalRole: tc.User.GlobalRole.String(),
		},
		Context:   tc.View(),
		Features:  gates.EffectiveFeatures(tc.Tenant),
		SeatLimit: gates.SeatLimit(tc.Tenant),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ms, err := h.Memberships.ListByUser(gctx, tc.UserID)
		if err != nil {
			return err
		}
		resp.TenantCount = len(ms)
		return nil
	})

	g.Go(func() error {
		gs, err := h.Grants.ListByTenant(gctx, tc.TenantID, &tc.UserID)
		if err != nil {
			return err
		}
		resp.Grants = make([]grantView, 0, len(gs))
		for _, gr := range gs {
			resp.Grants = append(resp.Grants, grantView{ID: gr.ID.Hex(), Capability: gr.Capability, Scope: gr.Scope})
		}
		return nil
	})

	g.Go(func() error {
		held := make([]models.Capability, 0, len(models.AllCapabilities))
		for _, c := range models.AllCapabilities {
			ok, err := h.Checker.Allowed(gctx, tc, c, permissions.Target{})
			if err != nil {
				return err
			}
			if ok {
				held = append(held, c)
			}
		}
		resp.Capabilities = held
		return nil
	})

	if err := g.Wait(); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, resp)
}
