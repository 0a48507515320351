package models

import (
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ScopeKind identifies which restriction a Scope carries.
type ScopeKind uint8

const (
	ScopeUnrestricted ScopeKind = iota
	ScopeGroups
	ScopeModules
	ScopeGroupsAndModules
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeUnrestricted:
		return "unrestricted"
	case ScopeGroups:
		return "groups"
	case ScopeModules:
		return "modules"
	case ScopeGroupsAndModules:
		return "groups_and_modules"
	}
	return fmt.Sprintf("ScopeKind(%d)", uint8(k))
}

// Scope narrows a permission grant to a set of groups, a set of modules,
// or both. The zero value is Unrestricted.
//
// An explicitly empty set still restricts: a grant scoped to no groups
// allows no group-targeted call.
//
// Stored form: null (or absent) for Unrestricted, otherwise a document
// {group_ids: [...], module_ids: [...]} where an absent key means that
// dimension is unrestricted.
type Scope struct {
	kind    ScopeKind
	groups  []primitive.ObjectID
	modules []primitive.ObjectID
}

// Unrestricted returns a scope that allows every group and module.
func Unrestricted() Scope { return Scope{} }

// GroupScope restricts a grant to the given groups.
func GroupScope(ids ...primitive.ObjectID) Scope {
	return Scope{kind: ScopeGroups, groups: uniqueIDs(ids)}
}

// ModuleScope restricts a grant to the given modules.
func ModuleScope(ids ...primitive.ObjectID) Scope {
	return Scope{kind: ScopeModules, modules: uniqueIDs(ids)}
}

// GroupAndModuleScope restricts a grant on both dimensions.
func GroupAndModuleScope(groups, modules []primitive.ObjectID) Scope {
	return Scope{kind: ScopeGroupsAndModules, groups: uniqueIDs(groups), modules: uniqueIDs(modules)}
}

// Kind returns the variant tag.
func (s Scope) Kind() ScopeKind { return s.kind }

// IsUnrestricted reports whether the scope allows everything.
func (s Scope) IsUnrestricted() bool { return s.kind == ScopeUnrestricted }

// RestrictsGroups reports whether the scope carries a group set.
func (s Scope) RestrictsGroups() bool {
	return s.kind == ScopeGroups || s.kind == ScopeGroupsAndModules
}

// RestrictsModules reports whether the scope carries a module set.
func (s Scope) RestrictsModules() bool {
	return s.kind == ScopeModules || s.kind == ScopeGroupsAndModules
}

// AllowsGroup reports whether id passes the group restriction.
func (s Scope) AllowsGroup(id primitive.ObjectID) bool {
	return !s.RestrictsGroups() || containsID(s.groups, id)
}

// AllowsModule reports whether id passes the module restriction.
func (s Scope) AllowsModule(id primitive.ObjectID) bool {
	return !s.RestrictsModules() || containsID(s.modules, id)
}

// GroupIDs returns a copy of the group set (nil when groups are unrestricted).
func (s Scope) GroupIDs() []primitive.ObjectID {
	if !s.RestrictsGroups() {
		return nil
	}
	return append([]primitive.ObjectID{}, s.groups...)
}

// ModuleIDs returns a copy of the module set (nil when modules are unrestricted).
func (s Scope) ModuleIDs() []primitive.ObjectID {
	if !s.RestrictsModules() {
		return nil
	}
	return append([]primitive.ObjectID{}, s.modules...)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Storage and wire form                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// scopeDoc is the stored shape. Pointers distinguish an absent key from an
// empty list.
type scopeDoc struct {
	GroupIDs  *[]primitive.ObjectID `bson:"group_ids,omitempty" json:"group_ids,omitempty"`
	ModuleIDs *[]primitive.ObjectID `bson:"module_ids,omitempty" json:"module_ids,omitempty"`
}

func (s Scope) toDoc() scopeDoc {
	var d scopeDoc
	if s.RestrictsGroups() {
		g := s.GroupIDs()
		d.GroupIDs = &g
	}
	if s.RestrictsModules() {
		m := s.ModuleIDs()
		d.ModuleIDs = &m
	}
	return d
}

func scopeFromDoc(d scopeDoc) Scope {
	switch {
	case d.GroupIDs != nil && d.ModuleIDs != nil:
		return GroupAndModuleScope(*d.GroupIDs, *d.ModuleIDs)
	case d.GroupIDs != nil:
		return GroupScope(*d.GroupIDs...)
	case d.ModuleIDs != nil:
		return ModuleScope(*d.ModuleIDs...)
	}
	return Unrestricted()
}

// MarshalBSONValue stores Unrestricted as null.
func (s Scope) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if s.IsUnrestricted() {
		return bsontype.Null, nil, nil
	}
	b, err := bson.Marshal(s.toDoc())
	if err != nil {
		return 0, nil, err
	}
	return bsontype.EmbeddedDocument, b, nil
}

// UnmarshalBSONValue accepts null or a scope document; anything else is an
// invalid grant.
func (s *Scope) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.Null, bsontype.Undefined:
		*s = Unrestricted()
		return nil
	case bsontype.EmbeddedDocument:
		var d scopeDoc
		if err := bson.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("decode grant scope: %w", err)
		}
		*s = scopeFromDoc(d)
		return nil
	}
	return fmt.Errorf("decode grant scope: unexpected %s", t)
}

// MarshalJSON writes null for Unrestricted.
func (s Scope) MarshalJSON() ([]byte, error) {
	if s.IsUnrestricted() {
		return []byte("null"), nil
	}
	return json.Marshal(s.toDoc())
}

// UnmarshalJSON accepts null or {"group_ids": [...], "module_ids": [...]}.
func (s *Scope) UnmarshalJSON(b []byte) error {
	var d *scopeDoc
	if err := json.Unmarshal(b, &d); err != nil {
		return fmt.Errorf("decode grant scope: %w", err)
	}
	if d == nil {
		*s = Unrestricted()
		return nil
	}
	*s = scopeFromDoc(*d)
	return nil
}

func uniqueIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
