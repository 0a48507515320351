package modulestore

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

// Store covers modules and the module_groups assignment relation.
type Store struct {
	c            *mongo.Collection
	assignments  *mongo.Collection
	groups       *mongo.Collection
	groupMembers *mongo.Collection
}

var (
	ErrNotFound        = errors.New("module not found")
	ErrDuplicateAssign = errors.New("module is already assigned to this group")
	ErrTenantMismatch  = errors.New("module and group belong to different tenants")
	errTitleRequired   = errors.New("module title is required")
)

func New(db *mongo.Database) *Store {
	return &Store{
		c:            db.Collection("modules"),
		assignments:  db.Collection("module_groups"),
		groups:       db.Collection("groups"),
		groupMembers: db.Collection("group_members"),
	}
}

func (s *Store) Create(ctx context.Context, m models.Module) (models.Module, error) {
	if m.Title == "" {
		return models.Module{}, errTitleRequired
	}
	m.ID = primitive.NewObjectID()
	if m.Status == "" {
		m.Status = models.ModuleDraft
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, m); err != nil {
		return models.Module{}, err
	}
	return m, nil
}

// GetByID returns a module inside tenantID.
func (s *Store) GetByID(ctx context.Context, id, tenantID primitive.ObjectID) (models.Module, error) {
	var m models.Module
	if err := s.c.FindOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Module{}, ErrNotFound
		}
		return models.Module{}, err
	}
	return m, nil
}

// CountInTenant returns how many of ids are modules of tenantID.
func (s *Store) CountInTenant(ctx context.Context, tenantID primitive.ObjectID, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return s.c.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": ids}, "tenant_id": tenantID})
}

// AssignGroup makes the module visible to a group. Both must belong to tenantID.
func (s *Store) AssignGroup(ctx context.Context, moduleID, groupID, tenantID primitive.ObjectID) error {
	if _, err := s.GetByID(ctx, moduleID, tenantID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrTenantMismatch
		}
		return err
	}
	n, err := s.groups.CountDocuments(ctx, bson.M{"_id": groupID, "tenant_id": tenantID})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTenantMismatch
	}
	_, err = s.assignments.InsertOne(ctx, models.ModuleGroup{
		ID:        primitive.NewObjectID(),
		ModuleID:  moduleID,
		GroupID:   groupID,
		TenantID:  tenantID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicateAssign
		}
		return err
	}
	return nil
}

// UnassignGroup removes a module/group assignment.
func (s *Store) UnassignGroup(ctx context.Context, moduleID, groupID, tenantID primitive.ObjectID) error {
	_, err := s.assignments.DeleteOne(ctx, bson.M{"module_id": moduleID, "group_id": groupID, "tenant_id": tenantID})
	return err
}

// UserHasGroupAccess reports whether userID belongs to at least one group
// the module is assigned to. Both lookups are filtered by tenantID, so an
// assignment or group row from another tenant never matches.
func (s *Store) UserHasGroupAccess(ctx context.Context, userID, moduleID, tenantID primitive.ObjectID) (bool, error) {
	groupIDs, err := s.assignments.Distinct(ctx, "group_id", bson.M{"module_id": moduleID, "tenant_id": tenantID})
	if err != nil {
		return false, err
	}
	if len(groupIDs) == 0 {
		return false, nil
	}
	err = s.groupMembers.FindOne(ctx,
		bson.M{"user_id": userID, "tenant_id": tenantID, "group_id": bson.M{"$in": groupIDs}},
		options.FindOne().SetProjection(bson.M{"_id": 1}),
	).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteByTenant removes all modules and assignments of a tenant.
func (s *Store) DeleteByTenant(ctx context.Context, tenantID primitive.ObjectID) (int64, error) {
	if _, err := s.assignments.DeleteMany(ctx, bson.M{"tenant_id": tenantID}); err != nil {
		return 0, err
	}
	res, err := s.c.DeleteMany(ctx, bson.M{"tenant_id": tenantID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
