package me_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/learnhub/internal/app/features/me"
	"github.com/dalemusser/learnhub/internal/app/system/auth"
	"github.com/dalemusser/learnhub/internal/app/system/permissions"
	"github.com/dalemusser/learnhub/internal/app/system/tenantctx"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/dalemusser/learnhub/internal/domain/roles"
	"github.com/dalemusser/learnhub/internal/testutil"
	"go.uber.org/zap"
)

type meBody struct {
	User struct {
		GlobalRole string `json:"global_role"`
	} `json:"user"`
	Context struct {
		EffectiveRole string `json:"effective_role"`
	} `json:"context"`
	TenantCount  int               `json:"tenant_count"`
	Capabilities []string          `json:"capabilities"`
	Grants       []json.RawMessage `json:"grants"`
	Features     map[string]bool   `json:"features"`
	SeatLimit    int               `json:"seat_limit"`
}

func TestServeMe_EmployeeWithGrant(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	fx := testutil.NewFixtures(t, db)

	user := fx.CreateUser(ctx, "e@example.com", roles.GlobalEmployee)
	tenant := fx.CreateTenant(ctx, "acme")
	other := fx.CreateTenant(ctx, "other")
	fx.CreateMembership(ctx, user.ID, tenant.ID, roles.Employee)
	fx.CreateMembership(ctx, user.ID, other.ID, roles.Viewer)
	fx.CreateGrant(ctx, user.ID, tenant.ID, models.CapViewReports, models.Unrestricted())
	fx.CreateGrant(ctx, user.ID, other.ID, models.CapManageUsers, models.Unrestricted())

	checker := permissions.NewChecker(permissions.NewStoreLookup(db), nil)
	h := me.NewHandler(db, checker, zap.NewNop())

	tc := &tenantctx.TenantContext{
		User:           &auth.SessionUser{ID: user.ID.Hex(), Email: user.Email, GlobalRole: roles.GlobalEmployee},
		UserID:         user.ID,
		TenantID:       tenant.ID,
		Tenant:         tenant,
		EffectiveRole:  roles.Employee,
		MembershipRole: roles.Employee,
		Locale:         "en",
	}
	req := tenantctx.WithTestContext(httptest.NewRequest("GET", "/api/me", nil), tc)
	rec := httptest.NewRecorder()
	h.ServeMe(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var body meBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Context.EffectiveRole != "EMPLOYEE" || body.User.GlobalRole != "EMPLOYEE" {
		t.Errorf("unexpected identity %+v", body)
	}
	if body.TenantCount != 2 {
		t.Errorf("expected 2 tenants, got %d", body.TenantCount)
	}
	if len(body.Grants) != 1 {
		t.Errorf("expected only this tenant's grant, got %d", len(body.Grants))
	}
	if len(body.Capabilities) != 1 || body.Capabilities[0] != "VIEW_REPORTS" {
		t.Errorf("expected only VIEW_REPORTS, got %v", body.Capabilities)
	}
	if !body.Features["gamification"] || body.SeatLimit != 50 {
		t.Errorf("expected TEAM plan defaults, got features=%v seats=%d", body.Features, body.SeatLimit)
	}
}

func TestServeMe_OwnerHoldsEverything(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	fx := testutil.NewFixtures(t, db)

	owner := fx.CreateUser(ctx, "owner@example.com", roles.GlobalOwner)
	tenant := fx.CreateTenant(ctx, "acme")

	h := me.NewHandler(db, permissions.NewChecker(permissions.NewStoreLookup(db), nil), zap.NewNop())
	tc := &tenantctx.TenantContext{
		User:          &auth.SessionUser{ID: owner.ID.Hex(), GlobalRole: roles.GlobalOwner},
		UserID:        owner.ID,
		TenantID:      tenant.ID,
		Tenant:        tenant,
		EffectiveRole: roles.Owner,
	}
	rec := httptest.NewRecorder()
	h.ServeMe(rec, tenantctx.WithTestContext(httptest.NewRequest("GET", "/api/me", nil), tc))

	var body meBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Capabilities) != len(models.AllCapabilities) {
		t.Errorf("expected every capability, got %v", body.Capabilities)
	}
	if body.TenantCount != 0 {
		t.Errorf("expected no memberships, got %d", body.TenantCount)
	}
}
