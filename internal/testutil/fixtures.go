package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/dalemusser/learnhub/internal/domain/roles"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures inserts test records directly, bypassing store validation.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

func (f *Fixtures) insert(ctx context.Context, coll string, doc interface{}) {
	f.t.Helper()
	if _, err := f.db.Collection(coll).InsertOne(ctx, doc); err != nil {
		f.t.Fatalf("failed to insert into %s: %v", coll, err)
	}
}

// CreateUser inserts a password user with the given global role.
func (f *Fixtures) CreateUser(ctx context.Context, email string, role roles.GlobalRole) models.User {
	f.t.Helper()
	now := time.Now().UTC()
	u := models.User{
		ID:         primitive.NewObjectID(),
		Email:      email,
		EmailCI:    text.Fold(email),
		FullName:   "Test " + email,
		AuthMethod: models.AuthMethodPassword,
		GlobalRole: role,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	f.insert(ctx, "users", u)
	return u
}

// CreateTenant inserts an active tenant.
func (f *Fixtures) CreateTenant(ctx context.Context, slug string) models.Tenant {
	f.t.Helper()
	return f.CreateTenantWithStatus(ctx, slug, models.TenantActive)
}

// CreateTenantWithStatus inserts a tenant with the given status.
func (f *Fixtures) CreateTenantWithStatus(ctx context.Context, slug, status string) models.Tenant {
	f.t.Helper()
	now := time.Now().UTC()
	t := models.Tenant{
		ID:        primitive.NewObjectID(),
		Slug:      slug,
		Name:      "Tenant " + slug,
		NameCI:    text.Fold("Tenant " + slug),
		Locale:    "en",
		Plan:      models.PlanTeam,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.insert(ctx, "tenants", t)
	return t
}

// CreateMembership inserts a membership.
func (f *Fixtures) CreateMembership(ctx context.Context, userID, tenantID primitive.ObjectID, role roles.TenantRole) models.Membership {
	f.t.Helper()
	now := time.Now().UTC()
	m := models.Membership{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		TenantID:  tenantID,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.insert(ctx, "memberships", m)
	return m
}

// CreateGrant inserts a permission grant.
func (f *Fixtures) CreateGrant(ctx context.Context, userID, tenantID primitive.ObjectID, capability models.Capability, scope models.Scope) models.PermissionGrant {
	f.t.Helper()
	g := models.PermissionGrant{
		ID:         primitive.NewObjectID(),
		UserID:     userID,
		TenantID:   tenantID,
		Capability: capability,
		Scope:      scope,
		CreatedAt:  time.Now().UTC(),
	}
	f.insert(ctx, "permission_grants", g)
	return g
}

// CreateGroup inserts a group.
func (f *Fixtures) CreateGroup(ctx context.Context, tenantID primitive.ObjectID, name string) models.Group {
	f.t.Helper()
	now := time.Now().UTC()
	g := models.Group{
		ID:        primitive.NewObjectID(),
		TenantID:  tenantID,
		Name:      name,
		NameCI:    text.Fold(name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.insert(ctx, "groups", g)
	return g
}

// AddGroupMember inserts a group_members row.
func (f *Fixtures) AddGroupMember(ctx context.Context, groupID, userID, tenantID primitive.ObjectID) {
	f.t.Helper()
	f.insert(ctx, "group_members", models.GroupMember{
		ID:        primitive.NewObjectID(),
		GroupID:   groupID,
		UserID:    userID,
		TenantID:  tenantID,
		CreatedAt: time.Now().UTC(),
	})
}

// CreateModule inserts a published module.
func (f *Fixtures) CreateModule(ctx context.Context, tenantID primitive.ObjectID, title string) models.Module {
	f.t.Helper()
	now := time.Now().UTC()
	m := models.Module{
		ID:        primitive.NewObjectID(),
		TenantID:  tenantID,
		Title:     title,
		Status:    models.ModulePublished,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.insert(ctx, "modules", m)
	return m
}

// AssignModule inserts a module_groups row.
func (f *Fixtures) AssignModule(ctx context.Context, moduleID, groupID, tenantID primitive.ObjectID) {
	f.t.Helper()
	f.insert(ctx, "module_groups", models.ModuleGroup{
		ID:        primitive.NewObjectID(),
		ModuleID:  moduleID,
		GroupID:   groupID,
		TenantID:  tenantID,
		CreatedAt: time.Now().UTC(),
	})
}
