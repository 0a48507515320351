// Package tenantctx resolves which tenant a request operates in and with
// what effective role.
//
// Resolution is a pure function of the signed-in identity, the decoded
// cookie selection and read-only store lookups. Cookies are only written by
// Middleware, never by the Resolver.
package tenantctx

import (
	"context"
	"fmt"

	"github.com/dalemusser/learnhub/internal/app/system/accesserr"
	"github.com/dalemusser/learnhub/internal/app/system/auth"
	"github.com/dalemusser/learnhub/internal/app/system/locale"
	"github.com/dalemusser/learnhub/internal/app/system/metrics"
	"github.com/dalemusser/learnhub/internal/app/system/tenantcookie"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/dalemusser/learnhub/internal/domain/roles"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TenantContext is the per-request access-control aggregate. It is built
// fresh for every request and never cached.
type TenantContext struct {
	User     *auth.SessionUser
	UserID   primitive.ObjectID
	TenantID primitive.ObjectID
	Tenant   models.Tenant

	// EffectiveRole is what authorization decisions use. It is always a
	// valid tenant role.
	EffectiveRole roles.TenantRole

	// MembershipRole is the stored membership role, kept for display when a
	// global OWNER is acting with OWNER. NoTenantRole if there is none.
	MembershipRole roles.TenantRole

	IsOwnerImpersonating bool
	Locale               string
}

// Resolution is the resolver output. PersistTenantID is set when the tenant
// was auto-selected and the boundary should store the selector cookie.
type Resolution struct {
	Context         *TenantContext
	PersistTenantID *primitive.ObjectID
}

// Directory is the read-only view of memberships and tenants the resolver
// needs. found=false means the row does not exist.
type Directory interface {
	ListMemberships(ctx context.Context, userID primitive.ObjectID) ([]models.Membership, error)
	GetMembership(ctx context.Context, userID, tenantID primitive.ObjectID) (models.Membership, bool, error)
	GetTenant(ctx context.Context, id primitive.ObjectID) (models.Tenant, bool, error)
	FirstActiveTenant(ctx context.Context) (models.Tenant, bool, error)
}

// Resolver computes tenant contexts.
type Resolver struct {
	dir     Directory
	locales *locale.Matcher
	metrics *metrics.Metrics
}

// NewResolver builds a Resolver. m may be nil.
func NewResolver(dir Directory, locales *locale.Matcher, m *metrics.Metrics) *Resolver {
	return &Resolver{dir: dir, locales: locales, metrics: m}
}

// Resolve produces the tenant context for user given sel. Expected failures
// are *accesserr.AccessError; anything else is a store failure.
func (rs *Resolver) Resolve(ctx context.Context, user *auth.SessionUser, sel tenantcookie.Selection) (Resolution, error) {
	res, err := rs.resolve(ctx, user, sel)
	switch ae, ok := accesserr.AsAccess(err); {
	case err == nil:
		rs.metrics.Resolution("ok")
	case ok:
		rs.metrics.Resolution(string(ae.Code))
	default:
		rs.metrics.Resolution("error")
	}
	return res, err
}

func (rs *Resolver) resolve(ctx context.Context, user *auth.SessionUser, sel tenantcookie.Selection) (Resolution, error) {
	if user == nil {
		return Resolution{}, fmt.Errorf("tenantctx: resolve without a user")
	}
	userID, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		return Resolution{}, fmt.Errorf("tenantctx: bad user id %q: %w", user.ID, err)
	}
	owner := user.IsOwner()

	var (
		target        *primitive.ObjectID
		persist       *primitive.ObjectID
		impersonating bool
		membership    *models.Membership
	)

	// 1-2. explicit selection
	switch {
	case owner && sel.ImpersonateID != nil:
		target = sel.ImpersonateID
		impersonating = true
	case sel.TenantID != nil:
		target = sel.TenantID
	}

	// 3. implicit selection
	if target == nil {
		ms, err := rs.dir.ListMemberships(ctx, userID)
		if err != nil {
			return Resolution{}, fmt.Errorf("list memberships: %w", err)
		}
		switch len(ms) {
		case 0:
			if !owner {
				return Resolution{}, accesserr.New(accesserr.NoMembership)
			}
			t, found, err := rs.dir.FirstActiveTenant(ctx)
			if err != nil {
				return Resolution{}, fmt.Errorf("first active tenant: %w", err)
			}
			if !found {
				return Resolution{}, accesserr.New(accesserr.NoTenants)
			}
			target = &t.ID
		case 1:
			id := ms[0].TenantID
			target = &id
			persist = &id
			membership = &ms[0]
		default:
			// Archived tenants are never offered; if only one remains it is
			// selected as if it were the only membership.
			active, err := rs.activeMemberships(ctx, ms)
			if err != nil {
				return Resolution{}, err
			}
			switch len(active) {
			case 0:
				return Resolution{}, accesserr.New(accesserr.NotFound)
			case 1:
				id := active[0].TenantID
				target = &id
				persist = &id
				membership = &active[0]
			default:
				candidates := make([]string, 0, len(active))
				for _, m := range active {
					candidates = append(candidates, m.TenantID.Hex())
				}
				return Resolution{}, accesserr.PickerRequired(candidates)
			}
		}
	}

	// 4. tenant must exist and be active
	tenant, found, err := rs.dir.GetTenant(ctx, *target)
	if err != nil {
		return Resolution{}, fmt.Errorf("get tenant: %w", err)
	}
	if !found || tenant.IsArchived() {
		return Resolution{}, accesserr.New(accesserr.NotFound)
	}

	// 5. effective role
	if membership == nil {
		m, found, err := rs.dir.GetMembership(ctx, userID, tenant.ID)
		if err != nil {
			return Resolution{}, fmt.Errorf("get membership: %w", err)
		}
		if found {
			membership = &m
		}
	}
	tc := &TenantContext{
		User:                 user,
		UserID:               userID,
		TenantID:             tenant.ID,
		Tenant:               tenant,
		IsOwnerImpersonating: impersonating,
	}
	if membership != nil && membership.Role.Valid() {
		tc.MembershipRole = membership.Role
	}
	switch {
	case owner:
		tc.EffectiveRole = roles.Owner
	case tc.MembershipRole.Valid():
		tc.EffectiveRole = tc.MembershipRole
	default:
		return Resolution{}, accesserr.New(accesserr.Forbidden)
	}

	// 6. locale
	if rs.locales != nil {
		tc.Locale = rs.locales.Resolve(tenant.Locale)
	} else {
		tc.Locale = tenant.Locale
	}

	return Resolution{Context: tc, PersistTenantID: persist}, nil
}

// activeMemberships drops memberships whose tenant is archived or gone.
func (rs *Resolver) activeMemberships(ctx context.Context, ms []models.Membership) ([]models.Membership, error) {
	active := make([]models.Membership, 0, len(ms))
	for _, m := range ms {
		t, found, err := rs.dir.GetTenant(ctx, m.TenantID)
		if err != nil {
			return nil, fmt.Errorf("get tenant: %w", err)
		}
		if found && !t.IsArchived() {
			active = append(active, m)
		}
	}
	return active, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Request context                                                              |
*─────────────────────────────────────────────────────────────────────────────*/

type ctxKey struct{}

// WithContext stores tc on ctx.
func WithContext(ctx context.Context, tc *TenantContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext returns the tenant context stored on ctx.
func FromContext(ctx context.Context) (*TenantContext, bool) {
	tc, ok := ctx.Value(ctxKey{}).(*TenantContext)
	return tc, ok && tc != nil
}
