// Package accesserr holds the two expected failure kinds of the
// access-control layer. Both are safe to show to an end user.
package accesserr

import (
	"errors"
	"fmt"
)

// Code is the machine-readable reason a tenant context could not be resolved.
type Code string

const (
	NoMembership         Code = "NO_MEMBERSHIP"
	NoTenants            Code = "NO_TENANTS"
	TenantPickerRequired Code = "TENANT_PICKER_REQUIRED"
	NotFound             Code = "NOT_FOUND"
	Forbidden            Code = "FORBIDDEN"
)

var defaultMessages = map[Code]string{
	NoMembership:         "You are not a member of any organization.",
	NoTenants:            "No organizations exist yet.",
	TenantPickerRequired: "Choose an organization to continue.",
	NotFound:             "Organization not found.",
	Forbidden:            "You do not have access to this organization.",
}

// AccessError is a tenant resolution failure.
type AccessError struct {
	Code    Code
	Message string

	// Candidates lists the tenant ids the caller may pick from. Only set
	// for TENANT_PICKER_REQUIRED.
	Candidates []string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New returns an AccessError with the default message for code.
func New(code Code) *AccessError {
	return &AccessError{Code: code, Message: defaultMessages[code]}
}

// PickerRequired returns a TENANT_PICKER_REQUIRED error listing candidates.
func PickerRequired(candidates []string) *AccessError {
	e := New(TenantPickerRequired)
	e.Candidates = candidates
	return e
}

// AsAccess unwraps err to an *AccessError.
func AsAccess(err error) (*AccessError, bool) {
	var ae *AccessError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsCode reports whether err is an AccessError with the given code.
func IsCode(err error, code Code) bool {
	ae, ok := AsAccess(err)
	return ok && ae.Code == code
}

/*─────────────────────────────────────────────────────────────────────────────*
| Forbidden                                                                    |
*─────────────────────────────────────────────────────────────────────────────*/

// Reasons returned by the permission checker.
const (
	ReasonInsufficient = "insufficient permissions"
	ReasonNoGroup      = "no access to this group"
	ReasonNoModule     = "no access to this module"
)

// ForbiddenError is a capability check denial.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string { return e.Reason }

// Deny returns a ForbiddenError with the given reason.
func Deny(reason string) *ForbiddenError {
	return &ForbiddenError{Reason: reason}
}

// AsForbidden unwraps err to a *ForbiddenError.
func AsForbidden(err error) (*ForbiddenError, bool) {
	var fe *ForbiddenError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
