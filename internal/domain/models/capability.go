package models

import (
	"fmt"
	"strings"
)

// Capability names a checkable unit of authorization.
type Capability string

const (
	CapManageUsers       Capability = "MANAGE_USERS"
	CapManageGroups      Capability = "MANAGE_GROUPS"
	CapManageContent     Capability = "MANAGE_CONTENT"
	CapManageEvents      Capability = "MANAGE_EVENTS"
	CapManageRewards     Capability = "MANAGE_REWARDS"
	CapManagePermissions Capability = "MANAGE_PERMISSIONS"
	CapManageSettings    Capability = "MANAGE_SETTINGS"
	CapViewReports       Capability = "VIEW_REPORTS"
	CapViewAuditLog      Capability = "VIEW_AUDIT_LOG"
	CapManageAttendance  Capability = "MANAGE_ATTENDANCE"
)

// AllCapabilities lists every capability in display order.
var AllCapabilities = []Capability{
	CapManageUsers,
	CapManageGroups,
	CapManageContent,
	CapManageEvents,
	CapManageRewards,
	CapManagePermissions,
	CapManageSettings,
	CapViewReports,
	CapViewAuditLog,
	CapManageAttendance,
}

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	for _, known := range AllCapabilities {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCapability accepts any case and returns the canonical capability.
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown capability %q", s)
	}
	return c, nil
}
