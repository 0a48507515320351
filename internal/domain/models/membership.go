package models

import (
	"time"

	"github.com/dalemusser/learnhub/internal/domain/roles"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Membership ties a user to a tenant with a tenant-scoped role.
// There is at most one membership per (user, tenant).
type Membership struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID   primitive.ObjectID `bson:"user_id" json:"user_id"`
	TenantID primitive.ObjectID `bson:"tenant_id" json:"tenant_id"`
	Role     roles.TenantRole   `bson:"role" json:"role"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
