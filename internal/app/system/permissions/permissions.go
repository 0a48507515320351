// Package permissions decides whether a caller holds a capability.
//
// The decision is an ordered chain; the first matching rule wins:
//
//  1. global OWNER
//  2. tenant role SUPER_ADMIN or above in an explicitly targeted tenant;
//     with no explicit tenant, the global SUPER_ADMIN bypass (or the
//     context's own SUPER_ADMIN-or-above membership)
//  3. an explicit grant for the capability, subject to its scope
//  4. an explicit grant for the fallback capability
//  5. deny
package permissions

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dalemusser/learnhub/internal/app/system/accesserr"
	"github.com/dalemusser/learnhub/internal/app/system/apierr"
	"github.com/dalemusser/learnhub/internal/app/system/metrics"
	"github.com/dalemusser/learnhub/internal/app/system/requestid"
	"github.com/dalemusser/learnhub/internal/app/system/tenantctx"
	"github.com/dalemusser/learnhub/internal/app/system/timeouts"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/dalemusser/learnhub/internal/domain/roles"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Lookup is the read-only store view the checker needs.
type Lookup interface {
	// MembershipRole returns the caller's role in tenantID; found=false if
	// there is no membership.
	MembershipRole(ctx context.Context, userID, tenantID primitive.ObjectID) (roles.TenantRole, bool, error)

	// FindGrant returns the grant for (user, capability) in tenantID, or in
	// any tenant when tenantID is nil. nil when there is none.
	FindGrant(ctx context.Context, userID primitive.ObjectID, capability models.Capability, tenantID *primitive.ObjectID) (*models.PermissionGrant, error)
}

// Target narrows a check. All fields are optional.
type Target struct {
	ModuleID *primitive.ObjectID
	GroupID  *primitive.ObjectID

	// TenantID overrides the tenant of the context.
	TenantID *primitive.ObjectID

	// Fallback is accepted when the caller holds any grant for it.
	Fallback models.Capability
}

// Subject is who a check is about.
type Subject struct {
	UserID     primitive.ObjectID
	GlobalRole roles.GlobalRole

	// TenantID and TenantRole come from a resolved tenant context; both are
	// zero for checks made outside one.
	TenantID   *primitive.ObjectID
	TenantRole roles.TenantRole
}

// SubjectOf builds the Subject for a resolved tenant context.
func SubjectOf(tc *tenantctx.TenantContext) Subject {
	s := Subject{UserID: tc.UserID, TenantRole: tc.MembershipRole}
	if tc.User != nil {
		s.GlobalRole = tc.User.GlobalRole
	}
	if !tc.TenantID.IsZero() {
		id := tc.TenantID
		s.TenantID = &id
	}
	return s
}

// Checker evaluates capability checks.
type Checker struct {
	lookup  Lookup
	metrics *metrics.Metrics
}

// NewChecker builds a Checker. m may be nil.
func NewChecker(lookup Lookup, m *metrics.Metrics) *Checker {
	return &Checker{lookup: lookup, metrics: m}
}

// Require returns nil when tc may use capability on target, a
// *accesserr.ForbiddenError when it may not, and any other error on store
// failure.
func (c *Checker) Require(ctx context.Context, tc *tenantctx.TenantContext, capability models.Capability, target Target) error {
	if tc == nil {
		return fmt.Errorf("permissions: check %s without tenant context", capability)
	}
	return c.RequireSubject(ctx, SubjectOf(tc), capability, target)
}

// Allowed is the soft variant of Require. Store failures are returned as
// errors, never folded into a denial.
func (c *Checker) Allowed(ctx context.Context, tc *tenantctx.TenantContext, capability models.Capability, target Target) (bool, error) {
	err := c.Require(ctx, tc, capability, target)
	if err == nil {
		return true, nil
	}
	if _, ok := accesserr.AsForbidden(err); ok {
		return false, nil
	}
	return false, err
}

// RequireSubject runs the decision chain for s.
func (c *Checker) RequireSubject(ctx context.Context, s Subject, capability models.Capability, target Target) error {
	rule, err := c.decide(ctx, s, capability, target)
	if err != nil {
		if _, ok := accesserr.AsForbidden(err); ok {
			c.metrics.Decision(string(capability), false, rule)
		}
		return err
	}
	c.metrics.Decision(string(capability), true, rule)
	return nil
}

func (c *Checker) decide(ctx context.Context, s Subject, capability models.Capability, target Target) (string, error) {
	if !capability.Valid() {
		return "invalid", fmt.Errorf("permissions: unknown capability %q", capability)
	}

	// 1. global owner
	if s.GlobalRole.IsOwner() {
		return "owner", nil
	}

	// 2. role bypass. Only an explicit target tenant counts as supplied;
	// without one the global role decides, and the role the context already
	// resolved for its own tenant still applies.
	if target.TenantID != nil {
		role, err := c.roleIn(ctx, s, *target.TenantID)
		if err != nil {
			return "error", err
		}
		if roles.HasMinRole(role, roles.SuperAdmin) {
			return "tenant_role", nil
		}
	} else {
		if s.GlobalRole.IsSuperAdminOrAbove() {
			return "global_role", nil
		}
		if s.TenantID != nil && roles.HasMinRole(s.TenantRole, roles.SuperAdmin) {
			return "tenant_role", nil
		}
	}

	// 3. explicit grant, looked up in the target tenant or else the
	// context's tenant
	tenantID := target.TenantID
	if tenantID == nil {
		tenantID = s.TenantID
	}
	g, err := c.lookup.FindGrant(ctx, s.UserID, capability, tenantID)
	if err != nil {
		return "error", fmt.Errorf("find grant %s: %w", capability, err)
	}
	if g != nil {
		scope := g.Scope
		if scope.RestrictsGroups() && target.GroupID != nil && !scope.AllowsGroup(*target.GroupID) {
			return "scope_group", accesserr.Deny(accesserr.ReasonNoGroup)
		}
		if scope.RestrictsModules() && target.ModuleID != nil && !scope.AllowsModule(*target.ModuleID) {
			return "scope_module", accesserr.Deny(accesserr.ReasonNoModule)
		}
		return "grant", nil
	}

	// 4. fallback; its scope is not consulted
	if target.Fallback != "" && target.Fallback != capability {
		fg, err := c.lookup.FindGrant(ctx, s.UserID, target.Fallback, tenantID)
		if err != nil {
			return "error", fmt.Errorf("find fallback grant %s: %w", target.Fallback, err)
		}
		if fg != nil {
			return "fallback", nil
		}
	}

	return "deny", accesserr.Deny(accesserr.ReasonInsufficient)
}

// roleIn uses the context's role when the check targets the context tenant.
func (c *Checker) roleIn(ctx context.Context, s Subject, tenantID primitive.ObjectID) (roles.TenantRole, error) {
	if s.TenantID != nil && *s.TenantID == tenantID && s.TenantRole.Valid() {
		return s.TenantRole, nil
	}
	role, found, err := c.lookup.MembershipRole(ctx, s.UserID, tenantID)
	if err != nil {
		return roles.NoTenantRole, fmt.Errorf("membership role: %w", err)
	}
	if !found {
		return roles.NoTenantRole, nil
	}
	return role, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| HTTP                                                                         |
*─────────────────────────────────────────────────────────────────────────────*/

// RequireCapability guards a route. It must sit behind tenantctx.Middleware.
func (c *Checker) RequireCapability(capability models.Capability, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, ok := tenantctx.FromRequest(r)
			if !ok {
				apierr.Write(w, logger, fmt.Errorf("permissions: %s route without tenant context", capability))
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
			defer cancel()
			if err := c.Require(ctx, tc, capability, Target{}); err != nil {
				if fe, ok := accesserr.AsForbidden(err); ok {
					logger.Info("capability denied",
						zap.String("capability", string(capability)),
						zap.String("user_id", tc.UserID.Hex()),
						zap.String("tenant_id", tc.TenantID.Hex()),
						zap.String("reason", fe.Reason),
						requestid.Field(r))
				}
				apierr.Write(w, logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
