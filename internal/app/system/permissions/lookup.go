package permissions

import (
	"context"
	"errors"

	grantstore "github.com/dalemusser/learnhub/internal/app/store/grants"
	membershipstore "github.com/dalemusser/learnhub/internal/app/store/memberships"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/dalemusser/learnhub/internal/domain/roles"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// StoreLookup is the Mongo-backed Lookup.
type StoreLookup struct {
	memberships *membershipstore.Store
	grants      *grantstore.Store
}

func NewStoreLookup(db *mongo.Database) *StoreLookup {
	return &StoreLookup{
		memberships: membershipstore.New(db),
		grants:      grantstore.New(db),
	}
}

func (l *StoreLookup) MembershipRole(ctx context.Context, userID, tenantID primitive.ObjectID) (roles.TenantRole, bool, error) {
	m, err := l.memberships.Get(ctx, userID, tenantID)
	if errors.Is(err, membershipstore.ErrNotFound) {
		return roles.NoTenantRole, false, nil
	}
	if err != nil {
		return roles.NoTenantRole, false, err
	}
	return m.Role, true, nil
}

func (l *StoreLookup) FindGrant(ctx context.Context, userID primitive.ObjectID, capability models.Capability, tenantID *primitive.ObjectID) (*models.PermissionGrant, error) {
	g, err := l.grants.Find(ctx, userID, capability, tenantID)
	if errors.Is(err, grantstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}
