package settings_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/learnhub/internal/app/features/settings"
	tenantstore "github.com/dalemusser/learnhub/internal/app/store/tenants"
	"github.com/dalemusser/learnhub/internal/app/system/auth"
	"github.com/dalemusser/learnhub/internal/app/system/permissions"
	"github.com/dalemusser/learnhub/internal/app/system/tenantctx"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/dalemusser/learnhub/internal/domain/roles"
	"github.com/dalemusser/learnhub/internal/testutil"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// injector re-reads the tenant on every request the way the real
// middleware does.
func injector(db *mongo.Database, actor models.User, tenant models.Tenant, role roles.TenantRole) func(http.Handler) http.Handler {
	store := tenantstore.New(db)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t, err := store.GetByID(r.Context(), tenant.ID)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, tenantctx.WithTestContext(r, &tenantctx.TenantContext{
				User:           &auth.SessionUser{ID: actor.ID.Hex(), GlobalRole: actor.GlobalRole},
				UserID:         actor.ID,
				TenantID:       t.ID,
				Tenant:         t,
				EffectiveRole:  role,
				MembershipRole: role,
			}))
		})
	}
}

func send(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

type settingsBody struct {
	Plan         string              `json:"plan"`
	SeatLimit    int                 `json:"seat_limit"`
	SeatsUsed    int64               `json:"seats_used"`
	Features     map[string]bool     `json:"features"`
	Overrides    map[string]bool     `json:"overrides"`
	Gamification models.Gamification `json:"gamification"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) settingsBody {
	t.Helper()
	var b settingsBody
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode: %v (%s)", err, rec.Body.String())
	}
	return b
}

func TestSettings_ReadAndToggleFeatures(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	fx := testutil.NewFixtures(t, db)

	tenant := fx.CreateTenant(ctx, "acme")
	sa := fx.CreateUser(ctx, "sa@example.com", roles.GlobalEmployee)
	fx.CreateMembership(ctx, sa.ID, tenant.ID, roles.SuperAdmin)

	h := settings.Routes(settings.NewHandler(db, nil, zap.NewNop()),
		injector(db, sa, tenant, roles.SuperAdmin),
		permissions.NewChecker(permissions.NewStoreLookup(db), nil))

	rec := send(h, "GET", "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	b := decode(t, rec)
	if b.Plan != "TEAM" || b.SeatLimit != 50 || b.SeatsUsed != 1 {
		t.Errorf("unexpected plan info %+v", b)
	}
	if !b.Features["gamification"] || b.Features["radar"] {
		t.Errorf("expected TEAM defaults, got %v", b.Features)
	}

	rec = send(h, "PUT", "/features", `{"features":{"radar":true,"gamification":false}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	b = decode(t, rec)
	if !b.Features["radar"] || b.Features["gamification"] {
		t.Errorf("expected overrides applied, got %v", b.Features)
	}

	rec = send(h, "PUT", "/features", `{"features":{"gamification":null}}`)
	b = decode(t, rec)
	if !b.Features["gamification"] || !b.Features["radar"] {
		t.Errorf("expected gamification back to plan default and radar kept, got %v", b.Features)
	}
	if _, ok := b.Overrides["gamification"]; ok {
		t.Error("expected gamification override removed")
	}

	rec = send(h, "PUT", "/features", `{"features":{"teleport":true}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d for unknown flag, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestSettings_Gamification(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	fx := testutil.NewFixtures(t, db)

	tenant := fx.CreateTenant(ctx, "acme")
	sa := fx.CreateUser(ctx, "sa@example.com", roles.GlobalEmployee)
	emp := fx.CreateUser(ctx, "emp@example.com", roles.GlobalEmployee)
	fx.CreateMembership(ctx, sa.ID, tenant.ID, roles.SuperAdmin)
	fx.CreateMembership(ctx, emp.ID, tenant.ID, roles.Employee)

	handler := settings.NewHandler(db, nil, zap.NewNop())
	checker := permissions.NewChecker(permissions.NewStoreLookup(db), nil)
	admin := settings.Routes(handler, injector(db, sa, tenant, roles.SuperAdmin), checker)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"valid", `{"xp_rules":{"module_completed":200},"ranks":[{"name":"Bronze","min_xp":0},{"name":"Silver","min_xp":500}],"vote_thresholds":{}}`, http.StatusOK},
		{"ranks not ascending", `{"ranks":[{"name":"A","min_xp":10},{"name":"B","min_xp":10}],"vote_thresholds":{}}`, http.StatusBadRequest},
		{"negative xp", `{"xp_rules":{"quiz_passed":-1},"vote_thresholds":{}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := send(admin, "PUT", "/gamification", tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}

	if rec := send(settings.Routes(handler, injector(db, emp, tenant, roles.Employee), checker), "GET", "/", ""); rec.Code != http.StatusForbidden {
		t.Errorf("expected employee to get %d, got %d", http.StatusForbidden, rec.Code)
	}

	member := settings.GamificationRoutes(handler, injector(db, emp, tenant, roles.Employee))

	rec := send(member, "GET", "/rank?xp=600", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"Silver"`) {
		t.Errorf("expected Silver rank, got %d %s", rec.Code, rec.Body.String())
	}
	rec = send(member, "GET", "/xp", "")
	if !strings.Contains(rec.Body.String(), `{"action":"module_completed","xp":200}`) ||
		!strings.Contains(rec.Body.String(), `{"action":"quiz_passed","xp":50}`) {
		t.Errorf("expected tenant rule with defaults, got %s", rec.Body.String())
	}
	if rec := send(member, "GET", "/rank?xp=-5", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d for negative xp, got %d", http.StatusBadRequest, rec.Code)
	}

	if err := tenantstore.New(db).UpdateFeatures(ctx, tenant.ID, map[string]bool{"gamification": false}); err != nil {
		t.Fatalf("UpdateFeatures: %v", err)
	}
	if rec := send(member, "GET", "/xp", ""); rec.Code != http.StatusForbidden {
		t.Errorf("expected disabled feature to be %d, got %d", http.StatusForbidden, rec.Code)
	}
}
