// internal/app/features/auditlog/handler.go
package auditlog

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/learnhub/internal/app/store/audit"
	userstore "github.com/dalemusser/learnhub/internal/app/store/users"
	"github.com/dalemusser/learnhub/internal/app/system/apierr"
	"github.com/dalemusser/learnhub/internal/app/system/paging"
	"github.com/dalemusser/learnhub/internal/app/system/tenantctx"
	"github.com/dalemusser/learnhub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler lists the audit trail of the context tenant.
type Handler struct {
	Audit *audit.Store
	Users *userstore.Store
	Log   *zap.Logger
}

func NewHandler(db *mongo.Database, logger *zap.Logger) *Handler {
	return &Handler{
		Audit: audit.New(db),
		Users: userstore.New(db),
		Log:   logger,
	}
}

type listResponse struct {
	Events   []audit.Event     `json:"events"`
	Users    map[string]string `json:"users"` // id -> email for user_id and actor_id
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// ServeList handles GET /api/audit. Filters: category, event_type, user_id,
// since (YYYY-MM-DD or RFC 3339) and page.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	tc, _ := tenantctx.FromRequest(r)

	page := paging.ParsePage(r)

	tenantID := tc.TenantID
	filter := audit.QueryFilter{
		TenantID:  &tenantID,
		Category:  strings.TrimSpace(query.Get(r, "category")),
		EventType: strings.TrimSpace(query.Get(r, "event_type")),
		Limit:     paging.PageSize,
		Offset:    paging.Offset(page, paging.PageSize),
	}
	if raw := query.Get(r, "user_id"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			apierr.BadRequest(w, "invalid user id")
			return
		}
		filter.UserID = &id
	}
	if raw := strings.TrimSpace(query.Get(r, "since")); raw != "" {
		since, err := parseSince(raw)
		if err != nil {
			apierr.BadRequest(w, "since must be YYYY-MM-DD or RFC 3339")
			return
		}
		filter.Since = &since
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	events, err := h.Audit.Query(ctx, filter)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	total, err := h.Audit.Count(ctx, filter)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	users, err := h.emails(ctx, events)
	if err != nil {
		// The list is still useful without the email column.
		h.Log.Warn("audit list: user lookup failed", zap.Error(err))
		users = map[string]string{}
	}

	apierr.WriteJSON(w, http.StatusOK, listResponse{
		Events:   events,
		Users:    users,
		Total:    total,
		Page:     page,
		PageSize: paging.PageSize,
	})
}

func (h *Handler) emails(ctx context.Context, events []audit.Event) (map[string]string, error) {
	seen := map[primitive.ObjectID]struct{}{}
	var ids []primitive.ObjectID
	add := func(id *primitive.ObjectID) {
		if id == nil {
			return
		}
		if _, ok := seen[*id]; ok {
			return
		}
		seen[*id] = struct{}{}
		ids = append(ids, *id)
	}
	for _, e := range events {
		add(e.UserID)
		add(e.ActorID)
	}

	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	us, err := h.Users.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, u := range us {
		out[u.ID.Hex()] = u.Email
	}
	return out, nil
}

func parseSince(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
