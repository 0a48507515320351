// internal/app/store/invites/invitestore.go
package invitestore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/dalemusser/learnhub/internal/app/system/normalize"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/dalemusser/learnhub/internal/domain/roles"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store keeps tenant invites. Only a hash of each token is stored; the raw
// token is returned once, from Create.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("invites")}
}

var (
	ErrNotFound     = errors.New("invite not found")
	errBadRole      = errors.New("invite role is not valid")
	errEmailMissing = errors.New("invite email is required")
)

const tokenBytes = 32

// HashToken returns the stored form of a raw invite token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Create stores a pending invite and returns it with its raw token.
// The email is folded the same way user emails are, so MatchesEmail can
// compare the two.
func (s *Store) Create(ctx context.Context, tenantID primitive.ObjectID, email string, role roles.TenantRole, invitedBy primitive.ObjectID, expiresAt time.Time) (models.Invite, string, error) {
	if !role.Valid() {
		return models.Invite{}, "", errBadRole
	}
	email = normalize.Email(email)
	if email == "" {
		return models.Invite{}, "", errEmailMissing
	}
	token, err := newToken()
	if err != nil {
		return models.Invite{}, "", err
	}
	inv := models.Invite{
		ID:        primitive.NewObjectID(),
		TokenHash: HashToken(token),
		TenantID:  tenantID,
		Email:     email,
		EmailCI:   text.Fold(email),
		Role:      role,
		InvitedBy: invitedBy,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.c.InsertOne(ctx, inv); err != nil {
		if wafflemongo.IsDup(err) {
			// 256 random bits colliding means the generator is broken.
			return models.Invite{}, "", errors.New("invite token collision")
		}
		return models.Invite{}, "", err
	}
	return inv, token, nil
}

// MatchesEmail reports whether email is the address inv was sent to.
func MatchesEmail(inv models.Invite, email string) bool {
	return inv.EmailCI != "" && inv.EmailCI == text.Fold(normalize.Email(email))
}

// GetByToken looks an invite up by its raw token, whatever its state.
func (s *Store) GetByToken(ctx context.Context, token string) (models.Invite, error) {
	var inv models.Invite
	err := s.c.FindOne(ctx, bson.M{"token_hash": HashToken(token)}).Decode(&inv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Invite{}, ErrNotFound
	}
	return inv, err
}

// Consume marks a pending, unexpired invite accepted by userID. It returns
// ErrNotFound when the token is unknown, used or expired, so two accepts of
// one token cannot both succeed.
func (s *Store) Consume(ctx context.Context, token string, userID primitive.ObjectID) error {
	now := time.Now().UTC()
	res, err := s.c.UpdateOne(ctx,
		bson.M{
			"token_hash":  HashToken(token),
			"accepted_at": nil,
			"expires_at":  bson.M{"$gt": now},
		},
		bson.M{"$set": bson.M{"accepted_at": now, "accepted_by": userID}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Release returns a consumed invite to pending. It undoes Consume when the
// membership could not be created.
func (s *Store) Release(ctx context.Context, token string) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"token_hash": HashToken(token)},
		bson.M{"$unset": bson.M{"accepted_at": "", "accepted_by": ""}},
	)
	return err
}

// ListPending returns a tenant's open invites, newest first.
func (s *Store) ListPending(ctx context.Context, tenantID primitive.ObjectID) ([]models.Invite, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"tenant_id": tenantID, "accepted_at": nil, "expires_at": bson.M{"$gt": time.Now().UTC()}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Invite{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Revoke deletes a pending invite of the tenant.
func (s *Store) Revoke(ctx context.Context, tenantID, id primitive.ObjectID) (models.Invite, error) {
	var inv models.Invite
	err := s.c.FindOneAndDelete(ctx, bson.M{"_id": id, "tenant_id": tenantID, "accepted_at": nil}).Decode(&inv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Invite{}, ErrNotFound
	}
	return inv, err
}

// DeleteByTenant removes every invite of a tenant.
func (s *Store) DeleteByTenant(ctx context.Context, tenantID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"tenant_id": tenantID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// CleanupExpired removes invites that expired without being accepted.
// Accepted invites are kept as a record of who joined through them.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{
		"accepted_at": nil,
		"expires_at":  bson.M{"$lte": time.Now().UTC()},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
