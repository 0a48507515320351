package groupstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/learnhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/learnhub/internal/app/system/normalize"
	"github.com/dalemusser/learnhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store covers groups and the group_members relation.
type Store struct {
	c       *mongo.Collection
	members *mongo.Collection
}

var (
	ErrDuplicateGroupName = errors.New("a group with this name already exists in the tenant")
	ErrDuplicateMember    = errors.New("user is already in this group")
	ErrNotFound           = errors.New("group not found")
	errNameRequired       = errors.New("group name is required")
)

func New(db *mongo.Database) *Store {
	return &Store{
		c:       db.Collection("groups"),
		members: db.Collection("group_members"),
	}
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error) {
	var g models.Group
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Group{}, ErrNotFound
		}
		return models.Group{}, err
	}
	return g, nil
}

func (s *Store) Create(ctx context.Context, g models.Group) (models.Group, error) {
	g.ID = primitive.NewObjectID()
	g.Name = normalize.Name(htmlsanitize.PlainText(g.Name))
	g.NameCI = text.Fold(g.Name)
	if g.Name == "" {
		return models.Group{}, errNameRequired
	}
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, g); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Group{}, ErrDuplicateGroupName
		}
		return models.Group{}, err
	}
	return g, nil
}

// ListByTenant returns the tenant's groups sorted by name.
func (s *Store) ListByTenant(ctx context.Context, tenantID primitive.ObjectID) ([]models.Group, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"tenant_id": tenantID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Group
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountInTenant returns how many of ids are groups of tenantID. Callers
// compare it with len(ids) to reject foreign ids.
func (s *Store) CountInTenant(ctx context.Context, tenantID primitive.ObjectID, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return s.c.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": ids}, "tenant_id": tenantID})
}

// AddMember puts userID in the group. The row carries the group's tenant.
func (s *Store) AddMember(ctx context.Context, groupID, userID primitive.ObjectID) error {
	g, err := s.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	_, err = s.members.InsertOne(ctx, models.GroupMember{
		ID:        primitive.NewObjectID(),
		GroupID:   groupID,
		UserID:    userID,
		TenantID:  g.TenantID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicateMember
		}
		return err
	}
	return nil
}

// RemoveMember deletes the (group, user) row.
func (s *Store) RemoveMember(ctx context.Context, groupID, userID primitive.ObjectID) error {
	_, err := s.members.DeleteOne(ctx, bson.M{"group_id": groupID, "user_id": userID})
	return err
}

// RemoveUserFromTenant drops userID from every group in tenantID.
func (s *Store) RemoveUserFromTenant(ctx context.Context, userID, tenantID primitive.ObjectID) (int64, error) {
	res, err := s.members.DeleteMany(ctx, bson.M{"user_id": userID, "tenant_id": tenantID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteByTenant removes all groups and group memberships of a tenant.
func (s *Store) DeleteByTenant(ctx context.Context, tenantID primitive.ObjectID) (int64, error) {
	if _, err := s.members.DeleteMany(ctx, bson.M{"tenant_id": tenantID}); err != nil {
		return 0, err
	}
	res, err := s.c.DeleteMany(ctx, bson.M{"tenant_id": tenantID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
