package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PermissionGrant gives one user an extra capability inside one tenant,
// optionally restricted by Scope. Grants only extend roles below
// SUPER_ADMIN; the role bypass always wins over a grant.
type PermissionGrant struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     primitive.ObjectID `bson:"user_id" json:"user_id"`
	TenantID   primitive.ObjectID `bson:"tenant_id" json:"tenant_id"`
	Capability Capability         `bson:"capability" json:"capability"`
	Scope      Scope              `bson:"scope" json:"scope"`
	GrantedBy  primitive.ObjectID `bson:"granted_by,omitempty" json:"granted_by,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
