package tenantctx

import (
	"context"
	"errors"

	membershipstore "github.com/dalemusser/learnhub/internal/app/store/memberships"
	tenantstore "github.com/dalemusser/learnhub/internal/app/store/tenants"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// StoreDirectory is the Mongo-backed Directory.
type StoreDirectory struct {
	memberships *membershipstore.Store
	tenants     *tenantstore.Store
}

func NewStoreDirectory(db *mongo.Database) *StoreDirectory {
	return &StoreDirectory{
		memberships: membershipstore.New(db),
		tenants:     tenantstore.New(db),
	}
}

func (d *StoreDirectory) ListMemberships(ctx context.Context, userID primitive.ObjectID) ([]models.Membership, error) {
	return d.memberships.ListByUser(ctx, userID)
}

func (d *StoreDirectory) GetMembership(ctx context.Context, userID, tenantID primitive.ObjectID) (models.Membership, bool, error) {
	m, err := d.memberships.Get(ctx, userID, tenantID)
	if errors.Is(err, membershipstore.ErrNotFound) {
		return models.Membership{}, false, nil
	}
	return m, err == nil, err
}

func (d *StoreDirectory) GetTenant(ctx context.Context, id primitive.ObjectID) (models.Tenant, bool, error) {
	t, err := d.tenants.GetByID(ctx, id)
	if errors.Is(err, tenantstore.ErrNotFound) {
		return models.Tenant{}, false, nil
	}
	return t, err == nil, err
}

func (d *StoreDirectory) FirstActiveTenant(ctx context.Context) (models.Tenant, bool, error) {
	t, err := d.tenants.FirstActive(ctx)
	if errors.Is(err, tenantstore.ErrNotFound) {
		return models.Tenant{}, false, nil
	}
	return t, err == nil, err
}
