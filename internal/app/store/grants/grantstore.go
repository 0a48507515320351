package grantstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/learnhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("permission_grants")}
}

var (
	ErrDuplicateGrant = errors.New("this capability is already granted to the user")
	ErrNotFound       = errors.New("permission grant not found")
	errBadCapability  = errors.New("capability is not valid")
)

// Create inserts a grant. One grant exists per (user, tenant, capability).
func (s *Store) Create(ctx context.Context, g models.PermissionGrant) (models.PermissionGrant, error) {
	if !g.Capability.Valid() {
		return models.PermissionGrant{}, errBadCapability
	}
	g.ID = primitive.NewObjectID()
	g.CreatedAt = time.Now().UTC()
	if _, err := s.c.InsertOne(ctx, g); err != nil {
		if wafflemongo.IsDup(err) {
			return models.PermissionGrant{}, ErrDuplicateGrant
		}
		return models.PermissionGrant{}, err
	}
	return g, nil
}

// Find returns the grant of capability to userID. When tenantID is nil any
// tenant's grant matches (the oldest is returned).
func (s *Store) Find(ctx context.Context, userID primitive.ObjectID, capability models.Capability, tenantID *primitive.ObjectID) (models.PermissionGrant, error) {
	filter := bson.M{"user_id": userID, "capability": capability}
	if tenantID != nil {
		filter["tenant_id"] = *tenantID
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})

	var g models.PermissionGrant
	if err := s.c.FindOne(ctx, filter, opts).Decode(&g); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.PermissionGrant{}, ErrNotFound
		}
		return models.PermissionGrant{}, err
	}
	return g, nil
}

// GetByID returns a grant inside tenantID.
func (s *Store) GetByID(ctx context.Context, id, tenantID primitive.ObjectID) (models.PermissionGrant, error) {
	var g models.PermissionGrant
	if err := s.c.FindOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}).Decode(&g); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.PermissionGrant{}, ErrNotFound
		}
		return models.PermissionGrant{}, err
	}
	return g, nil
}

// ListByTenant returns the tenant's grants, optionally for one user.
func (s *Store) ListByTenant(ctx context.Context, tenantID primitive.ObjectID, userID *primitive.ObjectID) ([]models.PermissionGrant, error) {
	filter := bson.M{"tenant_id": tenantID}
	if userID != nil {
		filter["user_id"] = *userID
	}
	opts := options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}, {Key: "capability", Value: 1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.PermissionGrant
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Revoke deletes a grant inside tenantID.
func (s *Store) Revoke(ctx context.Context, id, tenantID primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id, "tenant_id": tenantID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByUser removes all of a user's grants in a tenant (on membership removal).
func (s *Store) DeleteByUser(ctx context.Context, userID, tenantID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"user_id": userID, "tenant_id": tenantID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteByTenant removes all grants for a tenant.
func (s *Store) DeleteByTenant(ctx context.Context, tenantID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"tenant_id": tenantID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
