// internal/domain/models/user.go
package models

import (
	"time"

	"github.com/dalemusser/learnhub/internal/domain/roles"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Auth methods a user may sign in with.
const (
	AuthMethodPassword = "password"
	AuthMethodGoogle   = "google"
)

// IsValidAuthMethod reports whether value names a supported auth method.
func IsValidAuthMethod(value string) bool {
	return value == AuthMethodPassword || value == AuthMethodGoogle
}

// User is an identity record. The global role is independent of any
// tenant membership role.
//
// NOTE:
//   - Tenant access is not embedded on User.
//     Use the memberships collection to discover a user's tenants.
type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email      string             `bson:"email" json:"email"`
	EmailCI    string             `bson:"email_ci" json:"-"` // folded for lookups
	FullName   string             `bson:"full_name" json:"full_name"`
	Title      string             `bson:"title,omitempty" json:"title,omitempty"`
	Department string             `bson:"department,omitempty" json:"department,omitempty"`
	AvatarURL  string             `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`

	PasswordHash string `bson:"password_hash,omitempty" json:"-"`
	AuthMethod   string `bson:"auth_method" json:"auth_method"`
	AuthReturnID string `bson:"auth_return_id,omitempty" json:"-"` // provider subject id

	GlobalRole roles.GlobalRole `bson:"global_role" json:"global_role"`

	// DeletedAt marks a soft-deleted identity. Soft-deleted users cannot sign in.
	DeletedAt *time.Time `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsDeleted reports whether the identity has been soft-deleted.
func (u User) IsDeleted() bool {
	return u.DeletedAt != nil
}
