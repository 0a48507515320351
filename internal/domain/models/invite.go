package models

import (
	"time"

	"github.com/dalemusser/learnhub/internal/domain/roles"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Invite is a one-time offer of a membership in a tenant, addressed to one
// email. Accepting it creates the membership with Role.
type Invite struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TokenHash string             `bson:"token_hash" json:"-"`
	TenantID  primitive.ObjectID `bson:"tenant_id" json:"tenant_id"`
	Email     string             `bson:"email" json:"email"`
	EmailCI   string             `bson:"email_ci" json:"-"`
	Role      roles.TenantRole   `bson:"role" json:"role"`
	InvitedBy primitive.ObjectID `bson:"invited_by" json:"invited_by"`

	ExpiresAt  time.Time           `bson:"expires_at" json:"expires_at"`
	AcceptedAt *time.Time          `bson:"accepted_at,omitempty" json:"accepted_at,omitempty"`
	AcceptedBy *primitive.ObjectID `bson:"accepted_by,omitempty" json:"accepted_by,omitempty"`
	CreatedAt  time.Time           `bson:"created_at" json:"created_at"`
}

// Pending reports whether the invite can still be accepted at now.
func (i Invite) Pending(now time.Time) bool {
	return i.AcceptedAt == nil && now.Before(i.ExpiresAt)
}
