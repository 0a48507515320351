// internal/app/features/modules/handler.go
package modules

import (
	"context"
	"errors"
	"net/http"

	modulestore "github.com/dalemusser/learnhub/internal/app/store/modules"
	"github.com/dalemusser/learnhub/internal/app/system/accesserr"
	"github.com/dalemusser/learnhub/internal/app/system/apierr"
	"github.com/dalemusser/learnhub/internal/app/system/moduleaccess"
	"github.com/dalemusser/learnhub/internal/app/system/permissions"
	"github.com/dalemusser/learnhub/internal/app/system/tenantctx"
	"github.com/dalemusser/learnhub/internal/app/system/timeouts"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler reports module access.
type Handler struct {
	Modules     *modulestore.Store
	Access      *moduleaccess.Checker
	Permissions *permissions.Checker
	Log         *zap.Logger
}

func NewHandler(db *mongo.Database, access *moduleaccess.Checker, perms *permissions.Checker, logger *zap.Logger) *Handler {
	return &Handler{
		Modules:     modulestore.New(db),
		Access:      access,
		Permissions: perms,
		Log:         logger,
	}
}

type accessResponse struct {
	ModuleID string `json:"module_id"`
	UserID   string `json:"user_id"`
	Title    string `json:"title"`
	Allowed  bool   `json:"allowed"`
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /api/modules/{id}/access                                                 |
| Reports whether the caller (or ?user_id=, with MANAGE_CONTENT on the         |
| module) may view the module in the context tenant.                           |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeAccess(w http.ResponseWriter, r *http.Request) {
	tc, _ := tenantctx.FromRequest(r)

	moduleID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		apierr.BadRequest(w, "invalid module id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	userID := tc.UserID
	if raw := query.Get(r, "user_id"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			apierr.BadRequest(w, "invalid user id")
			return
		}
		if id != tc.UserID {
			err := h.Permissions.Require(ctx, tc, models.CapManageContent, permissions.Target{ModuleID: &moduleID})
			if err != nil {
				apierr.Write(w, h.Log, err)
				return
			}
		}
		userID = id
	}

	mod, err := h.Modules.GetByID(ctx, moduleID, tc.TenantID)
	if errors.Is(err, modulestore.ErrNotFound) {
		apierr.Write(w, h.Log, accesserr.New(accesserr.NotFound))
		return
	}
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	ok, err := h.Access.Check(ctx, userID, mod.ID, tc.TenantID)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, accessResponse{
		ModuleID: mod.ID.Hex(),
		UserID:   userID.Hex(),
		Title:    mod.Title,
		Allowed:  ok,
	})
}
