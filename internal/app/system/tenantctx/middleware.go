package tenantctx

import (
	"context"
	"net/http"

	"github.com/dalemusser/learnhub/internal/app/system/accesserr"
	"github.com/dalemusser/learnhub/internal/app/system/apierr"
	"github.com/dalemusser/learnhub/internal/app/system/auth"
	"github.com/dalemusser/learnhub/internal/app/system/locale"
	"github.com/dalemusser/learnhub/internal/app/system/requestid"
	"github.com/dalemusser/learnhub/internal/app/system/tenantcookie"
	"github.com/dalemusser/learnhub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Middleware is the HTTP boundary around the Resolver. It decodes the
// selection cookies, persists auto-selected tenants and clears stale
// selectors.
type Middleware struct {
	Resolver *Resolver
	Cookies  *tenantcookie.Codec
	Log      *zap.Logger
}

func NewMiddleware(resolver *Resolver, cookies *tenantcookie.Codec, logger *zap.Logger) *Middleware {
	return &Middleware{Resolver: resolver, Cookies: cookies, Log: logger}
}

// ResolveTenantContext resolves the tenant context for r, applying cookie
// side effects to w. Requires a signed-in user.
func (m *Middleware) ResolveTenantContext(w http.ResponseWriter, r *http.Request) (*TenantContext, error) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		return nil, accesserr.New(accesserr.Forbidden)
	}
	sel := m.Cookies.Selection(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	res, err := m.Resolver.Resolve(ctx, user, sel)
	if err != nil {
		if accesserr.IsCode(err, accesserr.NotFound) || accesserr.IsCode(err, accesserr.Forbidden) {
			m.clearStale(w, user, sel)
		}
		return nil, err
	}

	if res.PersistTenantID != nil {
		if err := m.Cookies.SetTenant(w, *res.PersistTenantID); err != nil {
			m.Log.Warn("failed to persist tenant selection",
				zap.String("tenant_id", res.PersistTenantID.Hex()), zap.Error(err))
		}
	}
	return res.Context, nil
}

// clearStale drops whichever cookie pointed at the unusable tenant.
func (m *Middleware) clearStale(w http.ResponseWriter, user *auth.SessionUser, sel tenantcookie.Selection) {
	switch {
	case user.IsOwner() && sel.ImpersonateID != nil:
		m.Cookies.ClearImpersonation(w)
	case sel.TenantID != nil:
		m.Cookies.ClearTenant(w)
	}
}

// Handler requires a resolved tenant context for next. Must sit behind
// auth.LoadSessionUser and RequireSignedIn.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.CurrentUser(r); !ok {
			apierr.Unauthorized(w)
			return
		}
		tc, err := m.ResolveTenantContext(w, r)
		if err != nil {
			if _, ok := accesserr.AsAccess(err); ok {
				m.Log.Debug("tenant resolution refused", zap.Error(err), requestid.Field(r))
			}
			apierr.Write(w, m.Log, err)
			return
		}
		ctx := WithContext(r.Context(), tc)
		ctx = locale.WithLocale(ctx, tc.Locale)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromRequest returns the tenant context set by Handler.
func FromRequest(r *http.Request) (*TenantContext, bool) {
	return FromContext(r.Context())
}

// WithTestContext attaches tc to r. Intended for handler tests.
func WithTestContext(r *http.Request, tc *TenantContext) *http.Request {
	ctx := WithContext(r.Context(), tc)
	ctx = locale.WithLocale(ctx, tc.Locale)
	return r.WithContext(ctx)
}
