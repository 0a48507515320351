// internal/app/store/tenants/tenantstore.go
package tenantstore

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

type Store struct {
	c *mongo.Collection
}

var (
	ErrDuplicateSlug = errors.New("a tenant with this slug already exists")
	ErrNotFound      = errors.New("tenant not found")
	ErrInvalidSlug   = errors.New("slug must contain at least one letter or digit")
	errBadPlan       = errors.New("plan must be FREE, TEAM, BUSINESS or ENTERPRISE")
	errNameRequired  = errors.New("name is required")
)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("tenants")}
}

// Create inserts a new active tenant. The slug is folded before storage.
func (s *Store) Create(ctx context.Context, t models.Tenant) (models.Tenant, error) {
	now := time.Now().UTC()
	t.ID = primitive.NewObjectID()
	t.Name = normalize.Name(htmlsanitize.PlainText(t.Name))
	t.NameCI = text.Fold(t.Name)
	t.Slug = normalize.Slug(t.Slug)
	if t.Plan == "" {
		t.Plan = models.PlanFree
	}
	t.Status = models.TenantActive
	t.ArchivedAt = nil
	t.CreatedAt = now
	t.UpdatedAt = now

	if t.Name == "" {
		return models.Tenant{}, errNameRequired
	}
	if t.Slug == "" {
		return models.Tenant{}, ErrInvalidSlug
	}
	if !t.Plan.Valid() {
		return models.Tenant{}, errBadPlan
	}

	if _, err := s.c.InsertOne(ctx, t); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Tenant{}, ErrDuplicateSlug
		}
		return models.Tenant{}, err
	}
	return t, nil
}

// GetByID retrieves a tenant by its ID regardless of status.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Tenant, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetBySlug retrieves a tenant by its (folded) slug.
func (s *Store) GetBySlug(ctx context.Context, slug string) (models.Tenant, error) {
	return s.findOne(ctx, bson.M{"slug": normalize.Slug(slug)})
}

// FirstActive returns the oldest non-archived tenant.
// Returns ErrNotFound if there are none.
func (s *Store) FirstActive(ctx context.Context) (models.Tenant, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	var t models.Tenant
	err := s.c.FindOne(ctx, bson.M{"status": models.TenantActive}, opts).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Tenant{}, ErrNotFound
		}
		return models.Tenant{}, err
	}
	return t, nil
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (models.Tenant, error) {
	var t models.Tenant
	if err := s.c.FindOne(ctx, filter).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Tenant{}, ErrNotFound
		}
		return models.Tenant{}, err
	}
	return t, nil
}

// List returns tenants sorted by name. Archived tenants are included only
// when includeArchived is set.
func (s *Store) List(ctx context.Context, includeArchived bool) ([]models.Tenant, error) {
	filter := bson.M{}
	if !includeArchived {
		filter["status"] = models.TenantActive
	}
	return s.find(ctx, filter)
}

// ListActiveByIDs returns the active tenants among ids, sorted by name.
func (s *Store) ListActiveByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Tenant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.find(ctx, bson.M{"_id": bson.M{"$in": ids}, "status": models.TenantActive})
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.Tenant, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var tenants []models.Tenant
	if err := cur.All(ctx, &tenants); err != nil {
		return nil, err
	}
	return tenants, nil
}

// Archive makes a tenant unresolvable. Archiving an archived tenant is a no-op.
func (s *Store) Archive(ctx context.Context, id primitive.ObjectID) error {
	now := time.Now().UTC()
	return s.update(ctx, id, bson.M{"status": models.TenantArchived, "archived_at": now, "updated_at": now}, nil)
}

// Restore reactivates an archived tenant.
func (s *Store) Restore(ctx context.Context, id primitive.ObjectID) error {
	return s.update(ctx, id,
		bson.M{"status": models.TenantActive, "updated_at": time.Now().UTC()},
		bson.M{"archived_at": ""},
	)
}

// UpdateFeatures replaces the tenant's feature toggle map.
func (s *Store) UpdateFeatures(ctx context.Context, id primitive.ObjectID, features map[string]bool) error {
	return s.update(ctx, id, bson.M{"features": features, "updated_at": time.Now().UTC()}, nil)
}

// UpdateGamification replaces the tenant's gamification configuration.
func (s *Store) UpdateGamification(ctx context.Context, id primitive.ObjectID, g models.Gamification) error {
	return s.update(ctx, id, bson.M{"gamification": g, "updated_at": time.Now().UTC()}, nil)
}

// UpdatePlan changes the plan tier and explicit seat limit.
func (s *Store) UpdatePlan(ctx context.Context, id primitive.ObjectID, plan models.Plan, seatLimit int) error {
	if !plan.Valid() {
		return errBadPlan
	}
	return s.update(ctx, id, bson.M{"plan": plan, "seat_limit": seatLimit, "updated_at": time.Now().UTC()}, nil)
}

// TouchSeats bumps the tenant's seat counter. Two transactions that both
// call it on one tenant write-conflict, so seat checks made in them cannot
// interleave.
func (s *Store) TouchSeats(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.UpdateByID(ctx, id, bson.M{"$inc": bson.M{"seat_version": 1}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) update(ctx context.Context, id primitive.ObjectID, set, unset bson.M) error {
	upd := bson.M{"$set": set}
	if len(unset) > 0 {
		upd["$unset"] = unset
	}
	res, err := s.c.UpdateByID(ctx, id, upd)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a tenant document. Related records are removed by the caller.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
