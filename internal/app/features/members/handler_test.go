package members_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/learnhub/internal/app/features/members"
	grantstore "github.com/dalemusser/learnhub/internal/app/store/grants"
	invitestore "github.com/dalemusser/learnhub/internal/app/store/invites"
	membershipstore "github.com/dalemusser/learnhub/internal/app/store/memberships"
	tenantstore "github.com/dalemusser/learnhub/internal/app/store/tenants"
	"github.com/dalemusser/learnhub/internal/app/system/auth"
	"github.com/dalemusser/learnhub/internal/app/system/permissions"
	"github.com/dalemusser/learnhub/internal/app/system/tenantctx"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/dalemusser/learnhub/internal/domain/roles"
	"github.com/dalemusser/learnhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// asMember injects a resolved context for u acting in tenant with role.
func asMember(u models.User, tenant models.Tenant, role roles.TenantRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc := &tenantctx.TenantContext{
				User:           &auth.SessionUser{ID: u.ID.Hex(), GlobalRole: u.GlobalRole},
				UserID:         u.ID,
				TenantID:       tenant.ID,
				Tenant:         tenant,
				EffectiveRole:  role,
				MembershipRole: role,
			}
			next.ServeHTTP(w, tenantctx.WithTestContext(r, tc))
		})
	}
}

func router(db *mongo.Database, mw func(http.Handler) http.Handler) http.Handler {
	h := members.NewHandler(db, nil, zap.NewNop())
	checker := permissions.NewChecker(permissions.NewStoreLookup(db), nil)
	return members.Routes(h, mw, checker)
}

func send(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestServeList(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	fx := testutil.NewFixtures(t, db)

	tenant := fx.CreateTenant(ctx, "acme")
	other := fx.CreateTenant(ctx, "other")
	sa := fx.CreateUser(ctx, "sa@example.com", roles.GlobalEmployee)
	emp := fx.CreateUser(ctx, "emp@example.com", roles.GlobalEmployee)
	outsider := fx.CreateUser(ctx, "out@example.com", roles.GlobalEmployee)
	fx.CreateMembership(ctx, sa.ID, tenant.ID, roles.SuperAdmin)
	fx.CreateMembership(ctx, emp.ID, tenant.ID, roles.Employee)
	fx.CreateMembership(ctx, outsider.ID, other.ID, roles.Admin)

	rec := send(router(db, asMember(sa, tenant, roles.SuperAdmin)), "GET", "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if strings.Contains(body, "out@example.com") {
		t.Error("list leaked a member of another tenant")
	}
	if i, j := strings.Index(body, "sa@example.com"), strings.Index(body, "emp@example.com"); i < 0 || j < 0 || i > j {
		t.Errorf("expected both members ordered by role, got %s", body)
	}

	rec = send(router(db, asMember(emp, tenant, roles.Employee)), "GET", "/", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected employee to get %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestHandleChangeRole(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	fx := testutil.NewFixtures(t, db)

	tenant := fx.CreateTenant(ctx, "acme")
	actor := fx.CreateUser(ctx, "admin@example.com", roles.GlobalEmployee)
	emp := fx.CreateUser(ctx, "emp@example.com", roles.GlobalEmployee)
	boss := fx.CreateUser(ctx, "boss@example.com", roles.GlobalEmployee)
	fx.CreateMembership(ctx, actor.ID, tenant.ID, roles.Admin)
	fx.CreateMembership(ctx, emp.ID, tenant.ID, roles.Employee)
	fx.CreateMembership(ctx, boss.ID, tenant.ID, roles.SuperAdmin)
	fx.CreateGrant(ctx, actor.ID, tenant.ID, models.CapManageUsers, models.Unrestricted())

	h := router(db, asMember(actor, tenant, roles.Admin))

	tests := []struct {
		name string
		user string
		body string
		want int
	}{
		{"promote within rank", emp.ID.Hex(), `{"role":"hr"}`, http.StatusNoContent},
		{"above own role", emp.ID.Hex(), `{"role":"SUPER_ADMIN"}`, http.StatusForbidden},
		{"owner not assignable", emp.ID.Hex(), `{"role":"OWNER"}`, http.StatusBadRequest},
		{"unknown role", emp.ID.Hex(), `{"role":"CEO"}`, http.StatusBadRequest},
		{"target outranks actor", boss.ID.Hex(), `{"role":"VIEWER"}`, http.StatusForbidden},
		{"self", actor.ID.Hex(), `{"role":"VIEWER"}`, http.StatusBadRequest},
		{"not a member", fx.CreateUser(ctx, "x@example.com", roles.GlobalEmployee).ID.Hex(), `{"role":"VIEWER"}`, http.StatusNotFound},
		{"bad id", "nope", `{"role":"VIEWER"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := send(h, "PATCH", "/"+tt.user, tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}

	m, err := membershipstore.New(db).Get(ctx, emp.ID, tenant.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m.Role != roles.HR {
		t.Errorf("expected role HR, got %s", m.Role)
	}
}

func TestHandleRemove(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	fx := testutil.NewFixtures(t, db)

	tenant := fx.CreateTenant(ctx, "acme")
	other := fx.CreateTenant(ctx, "other")
	actor := fx.CreateUser(ctx, "sa@example.com", roles.GlobalEmployee)
	emp := fx.CreateUser(ctx, "emp@example.com", roles.GlobalEmployee)
	fx.CreateMembership(ctx, actor.ID, tenant.ID, roles.SuperAdmin)
	fx.CreateMembership(ctx, emp.ID, tenant.ID, roles.Employee)
	fx.CreateMembership(ctx, emp.ID, other.ID, roles.Employee)

	g := fx.CreateGroup(ctx, tenant.ID, "Sales")
	og := fx.CreateGroup(ctx, other.ID, "Sales")
	fx.AddGroupMember(ctx, g.ID, emp.ID, tenant.ID)
	fx.AddGroupMember(ctx, og.ID, emp.ID, other.ID)
	fx.CreateGrant(ctx, emp.ID, tenant.ID, models.CapViewReports, models.Unrestricted())
	fx.CreateGrant(ctx, emp.ID, other.ID, models.CapViewReports, models.Unrestricted())

	rec := send(router(db, asMember(actor, tenant, roles.SuperAdmin)), "DELETE", "/"+emp.ID.Hex(), "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d: %s", http.StatusNoContent, rec.Code, rec.Body.String())
	}

	if _, err := membershipstore.New(db).Get(ctx, emp.ID, tenant.ID); err != membershipstore.ErrNotFound {
		t.Errorf("expected membership removed, got %v", err)
	}
	if _, err := membershipstore.New(db).Get(ctx, emp.ID, other.ID); err != nil {
		t.Errorf("expected other membership kept, got %v", err)
	}
	n, err := db.Collection("group_members").CountDocuments(ctx, bson.M{"user_id": emp.ID})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected only the other tenant's group row, got %d", n)
	}
	gs, err := grantstore.New(db).ListByTenant(ctx, other.ID, &emp.ID)
	if err != nil {
		t.Fatalf("ListByTenant: %v", err)
	}
	if len(gs) != 1 {
		t.Errorf("expected other tenant's grant kept, got %d", len(gs))
	}
	gs, _ = grantstore.New(db).ListByTenant(ctx, tenant.ID, &emp.ID)
	if len(gs) != 0 {
		t.Errorf("expected grants removed, got %d", len(gs))
	}
}

func TestHandleAcceptInvite(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	fx := testutil.NewFixtures(t, db)

	sm, err := auth.NewSessionManager("test-session-key-must-be-32-chars-long", "", "", time.Hour, time.Minute, false, zap.NewNop())
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	h := members.InviteRoutes(members.NewHandler(db, nil, zap.NewNop()), sm)
	invites := invitestore.New(db)

	tenant := fx.CreateTenant(ctx, "acme")
	archived := fx.CreateTenantWithStatus(ctx, "old", models.TenantArchived)
	full := fx.CreateTenant(ctx, "full")
	if err := tenantstore.New(db).UpdatePlan(ctx, full.ID, models.PlanTeam, 1); err != nil {
		t.Fatalf("UpdatePlan: %v", err)
	}
	admin := fx.CreateUser(ctx, "admin@example.com", roles.GlobalEmployee)
	fx.CreateMembership(ctx, admin.ID, full.ID, roles.Admin)

	u := fx.CreateUser(ctx, "New@Example.com", roles.GlobalEmployee)
	invite := func(tenantID primitive.ObjectID, email string, role roles.TenantRole, ttl time.Duration) string {
		t.Helper()
		_, token, err := invites.Create(ctx, tenantID, email, role, admin.ID, time.Now().Add(ttl))
		if err != nil {
			t.Fatalf("create invite: %v", err)
		}
		return token
	}
	good := invite(tenant.ID, " new@example.COM ", roles.HR, time.Hour)
	elsewhere := invite(tenant.ID, "someone-else@example.com", roles.Employee, time.Hour)
	expired := invite(tenant.ID, "new@example.com", roles.Employee, -time.Minute)
	toArchived := invite(archived.ID, "new@example.com", roles.Employee, time.Hour)
	toFull := invite(full.ID, "new@example.com", roles.Employee, time.Hour)

	accept := func(body string, signedIn bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/accept", strings.NewReader(body))
		if signedIn {
			req = auth.WithTestUser(req, &auth.SessionUser{ID: u.ID.Hex(), GlobalRole: u.GlobalRole})
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	tokenBody := func(token string) string { return `{"token":"` + token + `"}` }

	tests := []struct {
		name     string
		body     string
		signedIn bool
		want     int
	}{
		{"anonymous", tokenBody(good), false, http.StatusUnauthorized},
		{"tenant id without an invite", `{"tenant_id":"` + tenant.ID.Hex() + `"}`, true, http.StatusBadRequest},
		{"empty token", tokenBody(""), true, http.StatusBadRequest},
		{"unknown token", tokenBody("not-a-real-token"), true, http.StatusNotFound},
		{"invite for another email", tokenBody(elsewhere), true, http.StatusForbidden},
		{"expired invite", tokenBody(expired), true, http.StatusGone},
		{"archived tenant", tokenBody(toArchived), true, http.StatusNotFound},
		{"no seats left", tokenBody(toFull), true, http.StatusForbidden},
		{"accepted", tokenBody(good), true, http.StatusCreated},
		{"token reused", tokenBody(good), true, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := accept(tt.body, tt.signedIn)
			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}

	ms := membershipstore.New(db)
	m, err := ms.Get(ctx, u.ID, tenant.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m.Role != roles.HR {
		t.Errorf("expected the invited role HR, got %s", m.Role)
	}
	if _, err := ms.Get(ctx, u.ID, full.ID); !errors.Is(err, membershipstore.ErrNotFound) {
		t.Errorf("expected no membership in the full tenant, got %v", err)
	}
	if inv, err := invites.GetByToken(ctx, toFull); err != nil || inv.AcceptedAt != nil {
		t.Errorf("expected the refused invite to stay pending, got %+v, %v", inv, err)
	}
	if inv, err := invites.GetByToken(ctx, good); err != nil || inv.AcceptedBy == nil || *inv.AcceptedBy != u.ID {
		t.Errorf("expected the invite to record its acceptor, got %+v, %v", inv, err)
	}
}

func TestHandleCreateInvite(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	fx := testutil.NewFixtures(t, db)

	tenant := fx.CreateTenant(ctx, "acme")
	admin := fx.CreateUser(ctx, "admin@example.com", roles.GlobalEmployee)
	emp := fx.CreateUser(ctx, "emp@example.com", roles.GlobalEmployee)
	fx.CreateMembership(ctx, admin.ID, tenant.ID, roles.Admin)
	fx.CreateMembership(ctx, emp.ID, tenant.ID, roles.Employee)
	fx.CreateGrant(ctx, admin.ID, tenant.ID, models.CapManageUsers, models.Unrestricted())

	h := router(db, asMember(admin, tenant, roles.Admin))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"default role", `{"email":"a@example.com"}`, http.StatusCreated},
		{"own role", `{"email":"b@example.com","role":"ADMIN"}`, http.StatusCreated},
		{"above own role", `{"email":"c@example.com","role":"SUPER_ADMIN"}`, http.StatusForbidden},
		{"owner", `{"email":"d@example.com","role":"OWNER"}`, http.StatusBadRequest},
		{"unknown role", `{"email":"e@example.com","role":"EMPEROR"}`, http.StatusBadRequest},
		{"bad email", `{"email":"nobody"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := send(h, "POST", "/invites", tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if tt.want == http.StatusCreated && !strings.Contains(rec.Body.String(), `"token":"`) {
				t.Errorf("expected the token in the response, got %s", rec.Body.String())
			}
		})
	}

	rec := send(h, "GET", "/invites", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "a@example.com") || !strings.Contains(body, "b@example.com") || strings.Contains(body, "c@example.com") {
		t.Errorf("unexpected pending invites: %s", body)
	}
	if strings.Contains(body, "token") {
		t.Errorf("listing exposed a token: %s", body)
	}

	rec = send(router(db, asMember(emp, tenant, roles.Employee)), "POST", "/invites", `{"email":"f@example.com"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected employee to get %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestHandleRevokeInvite(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	fx := testutil.NewFixtures(t, db)

	tenant := fx.CreateTenant(ctx, "acme")
	other := fx.CreateTenant(ctx, "other")
	admin := fx.CreateUser(ctx, "admin@example.com", roles.GlobalEmployee)
	fx.CreateMembership(ctx, admin.ID, tenant.ID, roles.Admin)
	fx.CreateGrant(ctx, admin.ID, tenant.ID, models.CapManageUsers, models.Unrestricted())

	invites := invitestore.New(db)
	mine, token, err := invites.Create(ctx, tenant.ID, "a@example.com", roles.Employee, admin.ID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}
	theirs, _, err := invites.Create(ctx, other.ID, "b@example.com", roles.Employee, admin.ID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}

	h := router(db, asMember(admin, tenant, roles.Admin))
	if rec := send(h, "DELETE", "/invites/"+theirs.ID.Hex(), ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected another tenant's invite to be %d, got %d", http.StatusNotFound, rec.Code)
	}
	if rec := send(h, "DELETE", "/invites/"+mine.ID.Hex(), ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d: %s", http.StatusNoContent, rec.Code, rec.Body.String())
	}
	if _, err := invites.GetByToken(ctx, token); !errors.Is(err, invitestore.ErrNotFound) {
		t.Errorf("expected revoked invite to be gone, got %v", err)
	}
	if rec := send(h, "DELETE", "/invites/"+mine.ID.Hex(), ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected second revoke to be %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestHandleAcceptInvite_ConcurrentAcceptsRespectSeatLimit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	fx := testutil.NewFixtures(t, db)

	sm, err := auth.NewSessionManager("test-session-key-must-be-32-chars-long", "", "", time.Hour, time.Minute, false, zap.NewNop())
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	h := members.InviteRoutes(members.NewHandler(db, nil, zap.NewNop()), sm)

	tenant := fx.CreateTenant(ctx, "acme")
	if err := tenantstore.New(db).UpdatePlan(ctx, tenant.ID, models.PlanTeam, 2); err != nil {
		t.Fatalf("UpdatePlan: %v", err)
	}
	admin := fx.CreateUser(ctx, "admin@example.com", roles.GlobalEmployee)
	fx.CreateMembership(ctx, admin.ID, tenant.ID, roles.Admin)

	const n = 6
	invites := invitestore.New(db)
	users := make([]models.User, n)
	tokens := make([]string, n)
	for i := range users {
		email := "user" + string(rune('a'+i)) + "@example.com"
		users[i] = fx.CreateUser(ctx, email, roles.GlobalEmployee)
		_, tokens[i], err = invites.Create(ctx, tenant.ID, email, roles.Employee, admin.ID, time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("create invite: %v", err)
		}
	}

	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest("POST", "/accept", strings.NewReader(`{"token":"`+tokens[i]+`"}`))
			req = auth.WithTestUser(req, &auth.SessionUser{ID: users[i].ID.Hex(), GlobalRole: users[i].GlobalRole})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusCreated && code != http.StatusForbidden {
			t.Errorf("accept %d: unexpected status %d", i, code)
		}
	}
	seats, err := membershipstore.New(db).CountByTenant(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("CountByTenant: %v", err)
	}
	if seats > 2 {
		t.Errorf("expected at most 2 seats in use, got %d", seats)
	}
	for i, code := range codes {
		if code != http.StatusForbidden {
			continue
		}
		if inv, err := invites.GetByToken(ctx, tokens[i]); err != nil || inv.AcceptedAt != nil {
			t.Errorf("accept %d: refused invite should stay pending, got %+v, %v", i, inv, err)
		}
	}
}
