// Package moduleaccess decides whether a user may view a module's content.
package moduleaccess

import (
	"context"
	"errors"
	"fmt"

	membershipstore "github.com/dalemusser/learnhub/internal/app/store/memberships"
	modulestore "github.com/dalemusser/learnhub/internal/app/store/modules"
	userstore "github.com/dalemusser/learnhub/internal/app/store/users"
	"github.com/dalemusser/learnhub/internal/app/system/metrics"
	"github.com/dalemusser/learnhub/internal/domain/roles"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Store is the read-only view the check needs.
type Store interface {
	// GlobalRole returns found=false for missing or soft-deleted users.
	GlobalRole(ctx context.Context, userID primitive.ObjectID) (roles.GlobalRole, bool, error)
	MembershipRole(ctx context.Context, userID, tenantID primitive.ObjectID) (roles.TenantRole, bool, error)
	// UserHasGroupAccess reports whether userID belongs to a group of
	// tenantID that moduleID is assigned to.
	UserHasGroupAccess(ctx context.Context, userID, moduleID, tenantID primitive.ObjectID) (bool, error)
}

// Checker runs module access checks.
type Checker struct {
	store   Store
	metrics *metrics.Metrics
}

func NewChecker(store Store, m *metrics.Metrics) *Checker {
	return &Checker{store: store, metrics: m}
}

// Check allows a global OWNER, any ADMIN-or-above member of the tenant, or
// a member of a group the module is assigned to within that tenant.
func (c *Checker) Check(ctx context.Context, userID, moduleID, tenantID primitive.ObjectID) (bool, error) {
	ok, rule, err := c.check(ctx, userID, moduleID, tenantID)
	if err != nil {
		return false, err
	}
	c.metrics.ModuleAccess(ok, rule)
	return ok, nil
}

func (c *Checker) check(ctx context.Context, userID, moduleID, tenantID primitive.ObjectID) (bool, string, error) {
	global, found, err := c.store.GlobalRole(ctx, userID)
	if err != nil {
		return false, "", fmt.Errorf("load user: %w", err)
	}
	if !found {
		return false, "no_user", nil
	}
	if global.IsOwner() {
		return true, "owner", nil
	}

	role, member, err := c.store.MembershipRole(ctx, userID, tenantID)
	if err != nil {
		return false, "", fmt.Errorf("load membership: %w", err)
	}
	if member && roles.HasMinRole(role, roles.Admin) {
		return true, "tenant_role", nil
	}

	ok, err := c.store.UserHasGroupAccess(ctx, userID, moduleID, tenantID)
	if err != nil {
		return false, "", fmt.Errorf("group access: %w", err)
	}
	if ok {
		return true, "group", nil
	}
	return false, "deny", nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Mongo-backed store                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

// MongoStore implements Store over the users, memberships and module stores.
type MongoStore struct {
	users       *userstore.Store
	memberships *membershipstore.Store
	modules     *modulestore.Store
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		users:       userstore.New(db),
		memberships: membershipstore.New(db),
		modules:     modulestore.New(db),
	}
}

func (s *MongoStore) GlobalRole(ctx context.Context, userID primitive.ObjectID) (roles.GlobalRole, bool, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, userstore.ErrNotFound) {
		return roles.NoGlobalRole, false, nil
	}
	if err != nil {
		return roles.NoGlobalRole, false, err
	}
	if u.IsDeleted() {
		return roles.NoGlobalRole, false, nil
	}
	return u.GlobalRole, true, nil
}

func (s *MongoStore) MembershipRole(ctx context.Context, userID, tenantID primitive.ObjectID) (roles.TenantRole, bool, error) {
	m, err := s.memberships.Get(ctx, userID, tenantID)
	if errors.Is(err, membershipstore.ErrNotFound) {
		return roles.NoTenantRole, false, nil
	}
	if err != nil {
		return roles.NoTenantRole, false, err
	}
	return m.Role, true, nil
}

func (s *MongoStore) UserHasGroupAccess(ctx context.Context, userID, moduleID, tenantID primitive.ObjectID) (bool, error) {
	return s.modules.UserHasGroupAccess(ctx, userID, moduleID, tenantID)
}
