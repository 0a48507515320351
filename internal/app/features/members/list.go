// internal/app/features/members/list.go
package members

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/dalemusser/learnhub/internal/app/system/apierr"
	"github.com/dalemusser/learnhub/internal/app/system/tenantctx"
	"github.com/dalemusser/learnhub/internal/app/system/timeouts"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type memberRow struct {
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// ServeList handles GET /api/members. Soft-deleted users are left out.
// Rows are ordered by role, highest first, then email.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	tc, _ := tenantctx.FromRequest(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	ms, err := h.Memberships.ListByTenant(ctx, tc.TenantID)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	ids := make([]primitive.ObjectID, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.UserID)
	}
	users, err := h.Users.ListByIDs(ctx, ids)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	byID := make(map[primitive.ObjectID]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	rows := make([]memberRow, 0, len(ms))
	ranks := make(map[string]int, len(ms))
	for _, m := range ms {
		u, ok := byID[m.UserID]
		if !ok || u.IsDeleted() {
			continue
		}
		rows = append(rows, memberRow{
			UserID:   u.ID.Hex(),
			Name:     u.FullName,
			Email:    u.Email,
			Role:     m.Role.String(),
			JoinedAt: m.CreatedAt,
		})
		ranks[u.ID.Hex()] = m.Role.Rank()
	}
	sort.SliceStable(rows, func(i, j int) bool {
		ri, rj := ranks[rows[i].UserID], ranks[rows[j].UserID]
		if ri != rj {
			return ri > rj
		}
		return rows[i].Email < rows[j].Email
	})

	apierr.WriteJSON(w, http.StatusOK, map[string]any{"members": rows})
}
