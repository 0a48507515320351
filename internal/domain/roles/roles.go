// Package roles defines the two closed role sets used by LearnHub.
//
// A user carries one GlobalRole on their identity record and, separately, one
// TenantRole per tenant membership. The two sets have different meanings: a
// global OWNER can enter every tenant, while a tenant-local SUPER_ADMIN only
// outranks other members of that one tenant.
package roles

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// ErrUnknownRole is returned when a role name is not part of the closed set.
var ErrUnknownRole = errors.New("unknown role")

/*─────────────────────────────────────────────────────────────────────────────*
| Tenant roles                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

// TenantRole is a role held within a single tenant. The numeric value is the
// rank: a higher value outranks every lower one.
type TenantRole int8

const (
	// NoTenantRole is the zero value; it satisfies no minimum.
	NoTenantRole TenantRole = 0

	Viewer     TenantRole = 1
	Employee   TenantRole = 2
	HR         TenantRole = 3
	Admin      TenantRole = 4
	SuperAdmin TenantRole = 5
	Owner      TenantRole = 6
)

var tenantRoleNames = [...]string{
	Viewer:     "VIEWER",
	Employee:   "EMPLOYEE",
	HR:         "HR",
	Admin:      "ADMIN",
	SuperAdmin: "SUPER_ADMIN",
	Owner:      "OWNER",
}

// AllTenantRoles lists the tenant roles from lowest to highest rank.
func AllTenantRoles() []TenantRole {
	return []TenantRole{Viewer, Employee, HR, Admin, SuperAdmin, Owner}
}

// Valid reports whether r is one of the six tenant roles.
func (r TenantRole) Valid() bool {
	return r >= Viewer && r <= Owner
}

// Rank returns the ordinal used for hierarchy comparisons (0 for invalid roles).
func (r TenantRole) Rank() int {
	if !r.Valid() {
		return 0
	}
	return int(r)
}

func (r TenantRole) String() string {
	if !r.Valid() {
		return ""
	}
	return tenantRoleNames[r]
}

// ParseTenantRole converts a role name (any case, surrounding space ignored)
// into a TenantRole.
func ParseTenantRole(s string) (TenantRole, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for _, r := range AllTenantRoles() {
		if tenantRoleNames[r] == name {
			return r, nil
		}
	}
	return NoTenantRole, fmt.Errorf("%w: tenant role %q", ErrUnknownRole, s)
}

// HasMinRole reports whether role ranks at or above min. Invalid roles never
// satisfy a minimum and are never satisfied.
func HasMinRole(role, min TenantRole) bool {
	return role.Valid() && min.Valid() && role.Rank() >= min.Rank()
}

// MarshalText implements encoding.TextMarshaler (JSON uses it for string output).
func (r TenantRole) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: tenant role %d", ErrUnknownRole, int8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *TenantRole) UnmarshalText(b []byte) error {
	parsed, err := ParseTenantRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// MarshalBSONValue stores the role as its canonical name.
func (r TenantRole) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if !r.Valid() {
		return 0, nil, fmt.Errorf("%w: tenant role %d", ErrUnknownRole, int8(r))
	}
	return bson.MarshalValue(r.String())
}

// UnmarshalBSONValue rejects anything that is not a known role name, so a
// corrupted document fails at the storage boundary rather than in a check.
func (r *TenantRole) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	s, ok := bson.RawValue{Type: t, Value: data}.StringValueOK()
	if !ok {
		return fmt.Errorf("%w: tenant role stored as %s", ErrUnknownRole, t)
	}
	return r.UnmarshalText([]byte(s))
}

/*─────────────────────────────────────────────────────────────────────────────*
| Global roles                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

// GlobalRole is the coarse role stored on the identity record.
type GlobalRole int8

const (
	NoGlobalRole     GlobalRole = 0
	GlobalEmployee   GlobalRole = 1
	GlobalAdmin      GlobalRole = 2
	GlobalSuperAdmin GlobalRole = 3
	GlobalOwner      GlobalRole = 4
)

var globalRoleNames = [...]string{
	GlobalEmployee:   "EMPLOYEE",
	GlobalAdmin:      "ADMIN",
	GlobalSuperAdmin: "SUPER_ADMIN",
	GlobalOwner:      "OWNER",
}

// AllGlobalRoles lists the global roles.
func AllGlobalRoles() []GlobalRole {
	return []GlobalRole{GlobalEmployee, GlobalAdmin, GlobalSuperAdmin, GlobalOwner}
}

// Valid reports whether r is one of the four global roles.
func (r GlobalRole) Valid() bool {
	return r >= GlobalEmployee && r <= GlobalOwner
}

func (r GlobalRole) String() string {
	if !r.Valid() {
		return ""
	}
	return globalRoleNames[r]
}

// IsOwner reports whether r is the platform owner role.
func (r GlobalRole) IsOwner() bool { return r == GlobalOwner }

// IsSuperAdminOrAbove is the global bypass used when a check has no tenant.
func (r GlobalRole) IsSuperAdminOrAbove() bool {
	return r == GlobalSuperAdmin || r == GlobalOwner
}

// ParseGlobalRole converts a role name into a GlobalRole.
func ParseGlobalRole(s string) (GlobalRole, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for _, r := range AllGlobalRoles() {
		if globalRoleNames[r] == name {
			return r, nil
		}
	}
	return NoGlobalRole, fmt.Errorf("%w: global role %q", ErrUnknownRole, s)
}

// MarshalText implements encoding.TextMarshaler.
func (r GlobalRole) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: global role %d", ErrUnknownRole, int8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *GlobalRole) UnmarshalText(b []byte) error {
	parsed, err := ParseGlobalRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// MarshalBSONValue stores the role as its canonical name.
func (r GlobalRole) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if !r.Valid() {
		return 0, nil, fmt.Errorf("%w: global role %d", ErrUnknownRole, int8(r))
	}
	return bson.MarshalValue(r.String())
}

// UnmarshalBSONValue parses the stored role name.
func (r *GlobalRole) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	s, ok := bson.RawValue{Type: t, Value: data}.StringValueOK()
	if !ok {
		return fmt.Errorf("%w: global role stored as %s", ErrUnknownRole, t)
	}
	return r.UnmarshalText([]byte(s))
}
