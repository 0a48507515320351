package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Tenant status values. Archived tenants are never resolvable.
const (
	TenantActive   = "active"
	TenantArchived = "archived"
)

// Plan is a tenant's subscription tier.
type Plan string

const (
	PlanFree       Plan = "FREE"
	PlanTeam       Plan = "TEAM"
	PlanBusiness   Plan = "BUSINESS"
	PlanEnterprise Plan = "ENTERPRISE"
)

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanTeam, PlanBusiness, PlanEnterprise:
		return true
	}
	return false
}

// Theme holds tenant branding.
type Theme struct {
	PrimaryColor string `bson:"primary_color,omitempty" json:"primary_color,omitempty"`
	LogoURL      string `bson:"logo_url,omitempty" json:"logo_url,omitempty"`
}

// Tenant is an isolated organization. Every membership, grant, group and
// module belongs to exactly one tenant via its tenant_id field.
type Tenant struct {
	ID primitive.ObjectID `bson:"_id,omitempty" json:"id"`

	// Slug is unique across all tenants and stored folded.
	Slug   string `bson:"slug" json:"slug"`
	Name   string `bson:"name" json:"name"`
	NameCI string `bson:"name_ci" json:"-"`

	Theme  Theme  `bson:"theme" json:"theme"`
	Locale string `bson:"locale,omitempty" json:"locale,omitempty"`

	Plan      Plan `bson:"plan" json:"plan"`
	SeatLimit int  `bson:"seat_limit,omitempty" json:"seat_limit,omitempty"` // 0 = plan default

	Features     map[string]bool `bson:"features,omitempty" json:"features,omitempty"`
	Gamification Gamification    `bson:"gamification" json:"gamification"`

	// Status: "active" or "archived"
	Status     string     `bson:"status" json:"status"`
	ArchivedAt *time.Time `bson:"archived_at,omitempty" json:"archived_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsArchived reports whether the tenant has been archived.
func (t Tenant) IsArchived() bool {
	return t.Status == TenantArchived
}
