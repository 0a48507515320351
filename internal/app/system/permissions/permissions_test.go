package permissions_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/learnhub/internal/app/system/accesserr"
	"github.com/dalemusser/learnhub/internal/app/system/auth"
	"github.com/dalemusser/learnhub/internal/app/system/metrics"
	"github.com/dalemusser/learnhub/internal/app/system/permissions"
	"github.com/dalemusser/learnhub/internal/app/system/tenantctx"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/dalemusser/learnhub/internal/domain/roles"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type membershipKey struct{ user, tenant primitive.ObjectID }

type memLookup struct {
	roles  map[membershipKey]roles.TenantRole
	grants []models.PermissionGrant
	err    error
	calls  int
}

func newMemLookup() *memLookup {
	return &memLookup{roles: map[membershipKey]roles.TenantRole{}}
}

func (l *memLookup) MembershipRole(ctx context.Context, userID, tenantID primitive.ObjectID) (roles.TenantRole, bool, error) {
	l.calls++
	if l.err != nil {
		return roles.NoTenantRole, false, l.err
	}
	r, ok := l.roles[membershipKey{userID, tenantID}]
	return r, ok, nil
}

func (l *memLookup) FindGrant(ctx context.Context, userID primitive.ObjectID, capability models.Capability, tenantID *primitive.ObjectID) (*models.PermissionGrant, error) {
	if l.err != nil {
		return nil, l.err
	}
	for i, g := range l.grants {
		if g.UserID == userID && g.Capability == capability && (tenantID == nil || g.TenantID == *tenantID) {
			return &l.grants[i], nil
		}
	}
	return nil, nil
}

func (l *memLookup) grant(userID, tenantID primitive.ObjectID, c models.Capability, scope models.Scope) {
	l.grants = append(l.grants, models.PermissionGrant{
		ID: primitive.NewObjectID(), UserID: userID, TenantID: tenantID, Capability: c, Scope: scope,
	})
}

// context builds a resolved tenant context the way the resolver would.
func tenantContext(global roles.GlobalRole, tenantRole roles.TenantRole) *tenantctx.TenantContext {
	uid := primitive.NewObjectID()
	effective := tenantRole
	if global.IsOwner() {
		effective = roles.Owner
	}
	return &tenantctx.TenantContext{
		User:           &auth.SessionUser{ID: uid.Hex(), GlobalRole: global},
		UserID:         uid,
		TenantID:       primitive.NewObjectID(),
		EffectiveRole:  effective,
		MembershipRole: tenantRole,
	}
}

func ptr(id primitive.ObjectID) *primitive.ObjectID { return &id }

func expectForbidden(t *testing.T, err error, reason string) {
	t.Helper()
	fe, ok := accesserr.AsForbidden(err)
	if !ok {
		t.Fatalf("expected ForbiddenError %q, got %v", reason, err)
	}
	if fe.Reason != reason {
		t.Errorf("expected reason %q, got %q", reason, fe.Reason)
	}
}

func scopes() []models.Scope {
	g, m := primitive.NewObjectID(), primitive.NewObjectID()
	return []models.Scope{
		models.Unrestricted(),
		models.GroupScope(g),
		models.ModuleScope(m),
		models.GroupAndModuleScope([]primitive.ObjectID{g}, []primitive.ObjectID{m}),
		models.GroupScope(),
	}
}

func targets() []permissions.Target {
	return []permissions.Target{
		{},
		{GroupID: ptr(primitive.NewObjectID())},
		{ModuleID: ptr(primitive.NewObjectID())},
		{GroupID: ptr(primitive.NewObjectID()), ModuleID: ptr(primitive.NewObjectID())},
		{TenantID: ptr(primitive.NewObjectID())},
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Bypass rules                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

func TestRequire_GlobalOwnerNeverDenied(t *testing.T) {
	for _, tenantRole := range append(roles.AllTenantRoles(), roles.NoTenantRole) {
		tc := tenantContext(roles.GlobalOwner, tenantRole)
		l := newMemLookup()
		// A narrowly scoped grant must not get in the way.
		l.grant(tc.UserID, tc.TenantID, models.CapManageUsers, models.GroupScope(primitive.NewObjectID()))
		c := permissions.NewChecker(l, nil)

		for _, capability := range models.AllCapabilities {
			for _, target := range targets() {
				if err := c.Require(context.Background(), tc, capability, target); err != nil {
					t.Errorf("owner denied %s on %+v: %v", capability, target, err)
				}
			}
		}
		if l.calls != 0 {
			t.Errorf("owner check should short-circuit before any lookup, got %d", l.calls)
		}
	}
}

func TestRequire_SuperAdminOrAboveInTenantNeverDenied(t *testing.T) {
	for _, role := range []roles.TenantRole{roles.SuperAdmin, roles.Owner} {
		tc := tenantContext(roles.GlobalEmployee, role)
		l := newMemLookup()
		c := permissions.NewChecker(l, nil)

		for _, capability := range models.AllCapabilities {
			for _, target := range []permissions.Target{{}, {GroupID: ptr(primitive.NewObjectID())}, {ModuleID: ptr(primitive.NewObjectID())}} {
				if err := c.Require(context.Background(), tc, capability, target); err != nil {
					t.Errorf("%s denied %s: %v", role, capability, err)
				}
			}
		}
	}
}

func TestRequire_TenantRoleLoadedForExplicitTenant(t *testing.T) {
	tc := tenantContext(roles.GlobalEmployee, roles.Employee)
	other := primitive.NewObjectID()
	l := newMemLookup()
	l.roles[membershipKey{tc.UserID, other}] = roles.SuperAdmin
	c := permissions.NewChecker(l, nil)

	if err := c.Require(context.Background(), tc, models.CapManageSettings, permissions.Target{TenantID: &other}); err != nil {
		t.Errorf("expected SUPER_ADMIN membership in explicit tenant to allow, got %v", err)
	}
	err := c.Require(context.Background(), tc, models.CapManageSettings, permissions.Target{})
	expectForbidden(t, err, accesserr.ReasonInsufficient)
}

func TestRequire_AdminIsNotBypassed(t *testing.T) {
	tc := tenantContext(roles.GlobalEmployee, roles.Admin)
	c := permissions.NewChecker(newMemLookup(), nil)

	err := c.Require(context.Background(), tc, models.CapManagePermissions, permissions.Target{})
	expectForbidden(t, err, accesserr.ReasonInsufficient)
}

func TestRequireSubject_GlobalSuperAdminOnlyWithoutTenant(t *testing.T) {
	uid := primitive.NewObjectID()
	c := permissions.NewChecker(newMemLookup(), nil)
	s := permissions.Subject{UserID: uid, GlobalRole: roles.GlobalSuperAdmin}

	if err := c.RequireSubject(context.Background(), s, models.CapViewReports, permissions.Target{}); err != nil {
		t.Errorf("expected global SUPER_ADMIN bypass with no tenant, got %v", err)
	}

	// With a tenant in play the global role does not count.
	tenant := primitive.NewObjectID()
	err := c.RequireSubject(context.Background(), s, models.CapViewReports, permissions.Target{TenantID: &tenant})
	expectForbidden(t, err, accesserr.ReasonInsufficient)

	// Global ADMIN never bypasses.
	s.GlobalRole = roles.GlobalAdmin
	err = c.RequireSubject(context.Background(), s, models.CapViewReports, permissions.Target{})
	expectForbidden(t, err, accesserr.ReasonInsufficient)
}

func TestRequire_GlobalSuperAdminInContextWithoutExplicitTenant(t *testing.T) {
	tc := tenantContext(roles.GlobalSuperAdmin, roles.Employee)
	l := newMemLookup()
	l.roles[membershipKey{tc.UserID, tc.TenantID}] = roles.Employee
	c := permissions.NewChecker(l, nil)

	for _, capability := range models.AllCapabilities {
		if err := c.Require(context.Background(), tc, capability, permissions.Target{}); err != nil {
			t.Errorf("expected global SUPER_ADMIN bypass for %s, got %v", capability, err)
		}
	}

	// Naming the tenant explicitly makes the membership role decide.
	err := c.Require(context.Background(), tc, models.CapManageUsers, permissions.Target{TenantID: ptr(tc.TenantID)})
	expectForbidden(t, err, accesserr.ReasonInsufficient)

	tc.User.GlobalRole = roles.GlobalAdmin
	err = c.Require(context.Background(), tc, models.CapManageUsers, permissions.Target{})
	expectForbidden(t, err, accesserr.ReasonInsufficient)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Grants & scopes                                                              |
*─────────────────────────────────────────────────────────────────────────────*/

func TestRequire_EmployeeWithoutGrantDenied(t *testing.T) {
	tc := tenantContext(roles.GlobalEmployee, roles.Employee)
	c := permissions.NewChecker(newMemLookup(), nil)

	err := c.Require(context.Background(), tc, models.CapManageUsers, permissions.Target{})
	expectForbidden(t, err, accesserr.ReasonInsufficient)
}

func TestRequire_GroupScopedGrant(t *testing.T) {
	tc := tenantContext(roles.GlobalEmployee, roles.HR)
	g1, g2, g3 := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	l := newMemLookup()
	l.grant(tc.UserID, tc.TenantID, models.CapManageUsers, models.GroupScope(g1, g2))
	c := permissions.NewChecker(l, nil)
	ctx := context.Background()

	for _, g := range []primitive.ObjectID{g1, g2} {
		if err := c.Require(ctx, tc, models.CapManageUsers, permissions.Target{GroupID: ptr(g)}); err != nil {
			t.Errorf("expected group in scope to be allowed, got %v", err)
		}
	}
	err := c.Require(ctx, tc, models.CapManageUsers, permissions.Target{GroupID: ptr(g3)})
	expectForbidden(t, err, accesserr.ReasonNoGroup)

	// No group supplied: the group restriction does not apply.
	if err := c.Require(ctx, tc, models.CapManageUsers, permissions.Target{}); err != nil {
		t.Errorf("expected unscoped call to be allowed, got %v", err)
	}
	// Module ids are not restricted by a group-only scope.
	if err := c.Require(ctx, tc, models.CapManageUsers, permissions.Target{ModuleID: ptr(primitive.NewObjectID())}); err != nil {
		t.Errorf("expected module id to pass a group-only scope, got %v", err)
	}
}

func TestRequire_ModuleScopedGrant(t *testing.T) {
	tc := tenantContext(roles.GlobalEmployee, roles.Employee)
	m1 := primitive.NewObjectID()
	l := newMemLookup()
	l.grant(tc.UserID, tc.TenantID, models.CapManageContent, models.ModuleScope(m1))
	c := permissions.NewChecker(l, nil)

	if err := c.Require(context.Background(), tc, models.CapManageContent, permissions.Target{ModuleID: &m1}); err != nil {
		t.Errorf("expected module in scope to be allowed, got %v", err)
	}
	err := c.Require(context.Background(), tc, models.CapManageContent, permissions.Target{ModuleID: ptr(primitive.NewObjectID())})
	expectForbidden(t, err, accesserr.ReasonNoModule)
}

func TestRequire_GroupAndModuleScope_GroupCheckedFirst(t *testing.T) {
	tc := tenantContext(roles.GlobalEmployee, roles.Employee)
	g, m := primitive.NewObjectID(), primitive.NewObjectID()
	l := newMemLookup()
	l.grant(tc.UserID, tc.TenantID, models.CapManageEvents,
		models.GroupAndModuleScope([]primitive.ObjectID{g}, []primitive.ObjectID{m}))
	c := permissions.NewChecker(l, nil)

	err := c.Require(context.Background(), tc, models.CapManageEvents, permissions.Target{
		GroupID: ptr(primitive.NewObjectID()), ModuleID: ptr(primitive.NewObjectID()),
	})
	expectForbidden(t, err, accesserr.ReasonNoGroup)

	err = c.Require(context.Background(), tc, models.CapManageEvents, permissions.Target{
		GroupID: &g, ModuleID: ptr(primitive.NewObjectID()),
	})
	expectForbidden(t, err, accesserr.ReasonNoModule)

	if err := c.Require(context.Background(), tc, models.CapManageEvents, permissions.Target{GroupID: &g, ModuleID: &m}); err != nil {
		t.Errorf("expected both in scope to be allowed, got %v", err)
	}
}

func TestRequire_EmptyScopeSetRestricts(t *testing.T) {
	tc := tenantContext(roles.GlobalEmployee, roles.Employee)
	l := newMemLookup()
	l.grant(tc.UserID, tc.TenantID, models.CapManageGroups, models.GroupScope())
	c := permissions.NewChecker(l, nil)

	err := c.Require(context.Background(), tc, models.CapManageGroups, permissions.Target{GroupID: ptr(primitive.NewObjectID())})
	expectForbidden(t, err, accesserr.ReasonNoGroup)
}

func TestRequire_GrantInOtherTenantDoesNotCount(t *testing.T) {
	tc := tenantContext(roles.GlobalEmployee, roles.Employee)
	l := newMemLookup()
	l.grant(tc.UserID, primitive.NewObjectID(), models.CapManageUsers, models.Unrestricted())
	c := permissions.NewChecker(l, nil)

	err := c.Require(context.Background(), tc, models.CapManageUsers, permissions.Target{})
	expectForbidden(t, err, accesserr.ReasonInsufficient)
}

func TestRequire_FallbackIgnoresScope(t *testing.T) {
	tc := tenantContext(roles.GlobalEmployee, roles.Employee)
	l := newMemLookup()
	l.grant(tc.UserID, tc.TenantID, models.CapManageContent, models.GroupScope(primitive.NewObjectID()))
	c := permissions.NewChecker(l, nil)

	err := c.Require(context.Background(), tc, models.CapManageAttendance, permissions.Target{
		GroupID:  ptr(primitive.NewObjectID()),
		Fallback: models.CapManageContent,
	})
	if err != nil {
		t.Errorf("expected fallback grant to allow regardless of its scope, got %v", err)
	}

	err = c.Require(context.Background(), tc, models.CapManageAttendance, permissions.Target{Fallback: models.CapViewReports})
	expectForbidden(t, err, accesserr.ReasonInsufficient)
}

func TestRequire_UnknownCapabilityIsError(t *testing.T) {
	tc := tenantContext(roles.GlobalOwner, roles.NoTenantRole)
	err := permissions.NewChecker(newMemLookup(), nil).Require(context.Background(), tc, "FLY", permissions.Target{})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := accesserr.AsForbidden(err); ok {
		t.Error("unknown capability is a programming error, not a denial")
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Allowed                                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

func TestAllowed(t *testing.T) {
	tc := tenantContext(roles.GlobalEmployee, roles.Viewer)
	l := newMemLookup()
	l.grant(tc.UserID, tc.TenantID, models.CapViewReports, models.Unrestricted())
	c := permissions.NewChecker(l, nil)

	ok, err := c.Allowed(context.Background(), tc, models.CapViewReports, permissions.Target{})
	if err != nil || !ok {
		t.Errorf("expected allowed, got %v, %v", ok, err)
	}
	ok, err = c.Allowed(context.Background(), tc, models.CapViewAuditLog, permissions.Target{})
	if err != nil || ok {
		t.Errorf("expected denied without error, got %v, %v", ok, err)
	}
}

func TestAllowed_StoreFailureIsError(t *testing.T) {
	tc := tenantContext(roles.GlobalEmployee, roles.Viewer)
	l := newMemLookup()
	l.err = errors.New("mongo down")
	c := permissions.NewChecker(l, nil)

	ok, err := c.Allowed(context.Background(), tc, models.CapViewReports, permissions.Target{TenantID: ptr(primitive.NewObjectID())})
	if err == nil || ok {
		t.Errorf("expected store error to surface, got %v, %v", ok, err)
	}
}

func TestRequire_RecordsMetrics(t *testing.T) {
	m := metrics.New()
	tc := tenantContext(roles.GlobalEmployee, roles.Employee)
	c := permissions.NewChecker(newMemLookup(), m)

	c.Require(context.Background(), tc, models.CapManageUsers, permissions.Target{})
	got := testutil.ToFloat64(m.PermissionDecisions.WithLabelValues("MANAGE_USERS", "deny", "deny"))
	if got != 1 {
		t.Errorf("expected one recorded denial, got %v", got)
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Middleware                                                                   |
*─────────────────────────────────────────────────────────────────────────────*/

func TestRequireCapability(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	granted := tenantContext(roles.GlobalEmployee, roles.Employee)
	denied := tenantContext(roles.GlobalEmployee, roles.Employee)
	l := newMemLookup()
	l.grant(granted.UserID, granted.TenantID, models.CapViewAuditLog, models.Unrestricted())
	h := permissions.NewChecker(l, nil).RequireCapability(models.CapViewAuditLog, zap.NewNop())(okHandler)

	tests := []struct {
		name string
		tc   *tenantctx.TenantContext
		want int
	}{
		{"granted", granted, http.StatusOK},
		{"denied", denied, http.StatusForbidden},
		{"no context", nil, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/audit", nil)
			if tt.tc != nil {
				req = tenantctx.WithTestContext(req, tt.tc)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
