package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Module status values.
const (
	ModuleDraft     = "draft"
	ModulePublished = "published"
)

// Module is a unit of training content. Only the fields access control
// needs are modeled here.
type Module struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID primitive.ObjectID `bson:"tenant_id" json:"tenant_id"`
	Title    string             `bson:"title" json:"title"`
	Status   string             `bson:"status" json:"status"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// ModuleGroup assigns a module to a group within a tenant. Members of the
// group may view the module.
type ModuleGroup struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ModuleID primitive.ObjectID `bson:"module_id" json:"module_id"`
	GroupID  primitive.ObjectID `bson:"group_id" json:"group_id"`
	TenantID primitive.ObjectID `bson:"tenant_id" json:"tenant_id"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
