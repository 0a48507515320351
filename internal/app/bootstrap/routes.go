// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	auditlogfeature "github.com/dalemusser/learnhub/internal/app/features/auditlog"
	authgooglefeature "github.com/dalemusser/learnhub/internal/app/features/authgoogle"
	grantsfeature "github.com/dalemusser/learnhub/internal/app/features/grants"
	healthfeature "github.com/dalemusser/learnhub/internal/app/features/health"
	loginfeature "github.com/dalemusser/learnhub/internal/app/features/login"
	logoutfeature "github.com/dalemusser/learnhub/internal/app/features/logout"
	mefeature "github.com/dalemusser/learnhub/internal/app/features/me"
	membersfeature "github.com/dalemusser/learnhub/internal/app/features/members"
	modulesfeature "github.com/dalemusser/learnhub/internal/app/features/modules"
	ownerfeature "github.com/dalemusser/learnhub/internal/app/features/owner"
	settingsfeature "github.com/dalemusser/learnhub/internal/app/features/settings"
	tenantsfeature "github.com/dalemusser/learnhub/internal/app/features/tenants"
	auditstore "github.com/dalemusser/learnhub/internal/app/store/audit"
	userstore "github.com/dalemusser/learnhub/internal/app/store/users"
	"github.com/dalemusser/learnhub/internal/app/system/auditlog"
	"github.com/dalemusser/learnhub/internal/app/system/auth"
	"github.com/dalemusser/learnhub/internal/app/system/locale"
	"github.com/dalemusser/learnhub/internal/app/system/metrics"
	"github.com/dalemusser/learnhub/internal/app/system/moduleaccess"
	"github.com/dalemusser/learnhub/internal/app/system/permissions"
	"github.com/dalemusser/learnhub/internal/app/system/requestid"
	"github.com/dalemusser/learnhub/internal/app/system/tenantcookie"
	"github.com/dalemusser/learnhub/internal/app/system/tenantctx"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root router.
//
// Public and identity routes sit behind LoadSessionUser only. Routes under
// /api that act inside a tenant additionally sit behind the tenant context
// middleware, which resolves the tenant and effective role for every request,
// and then behind the capability or feature guard of each feature.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	db := deps.MongoDatabase
	secure := coreCfg.Env == "prod"

	sessionMgr, err := auth.NewSessionManager(
		appCfg.SessionKey,
		appCfg.SessionName,
		appCfg.SessionDomain,
		appCfg.SessionMaxAge,
		appCfg.SessionRefreshInterval,
		secure,
		logger,
	)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}
	// Role changes and deletions reach live sessions within the refresh
	// interval.
	sessionMgr.SetUserFetcher(userstore.NewFetcher(db))

	var blockKey []byte
	if appCfg.CookieBlockKey != "" {
		blockKey = []byte(appCfg.CookieBlockKey)
	}
	cookies, err := tenantcookie.New(
		[]byte(appCfg.CookieHashKey),
		blockKey,
		appCfg.TenantCookieMaxAge,
		appCfg.ImpersonationCookieMaxAge,
		secure,
	)
	if err != nil {
		logger.Error("tenant cookie codec init failed", zap.Error(err))
		return nil, err
	}

	m := metrics.New()
	audit := auditlog.New(auditstore.New(db), logger, auditlog.Config{
		Auth:  appCfg.AuditLogAuth,
		Admin: appCfg.AuditLogAdmin,
	})

	locales := locale.NewMatcher(appCfg.DefaultLocale, locale.ParseList(appCfg.SupportedLocales))
	resolver := tenantctx.NewResolver(tenantctx.NewStoreDirectory(db), locales, m)
	tenantMW := tenantctx.NewMiddleware(resolver, cookies, logger).Handler

	perms := permissions.NewChecker(permissions.NewStoreLookup(db), m)
	access := moduleaccess.NewChecker(moduleaccess.NewMongoStore(db), m)

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(m.Instrument)
	r.Use(sessionMgr.LoadSessionUser)

	// Operations
	healthHandler := healthfeature.NewHandler(deps.MongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	r.Handle("/metrics", m.Handler())

	// Authentication
	loginHandler := loginfeature.NewHandler(db, sessionMgr, deps.LoginLimiter, audit, m, logger)
	r.Mount("/login", loginfeature.Routes(loginHandler))

	logoutHandler := logoutfeature.NewHandler(sessionMgr, cookies, audit, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler, sessionMgr))

	googleHandler := authgooglefeature.NewHandler(db, sessionMgr, audit, m,
		appCfg.GoogleClientID, appCfg.GoogleClientSecret, appCfg.BaseURL, logger)
	r.Mount("/auth/google", authgooglefeature.Routes(googleHandler))

	// Identity-level API: no tenant context required
	tenantsHandler := tenantsfeature.NewHandler(db, resolver, cookies, audit, logger)
	r.Mount("/api/tenants", tenantsfeature.Routes(tenantsHandler, sessionMgr))

	ownerHandler := ownerfeature.NewHandler(db, resolver, cookies, audit, logger)
	r.Mount("/api/owner", ownerfeature.Routes(ownerHandler, sessionMgr))

	membersHandler := membersfeature.NewHandler(db, audit, logger)
	membersHandler.InviteTTL = appCfg.InviteMaxAge
	r.Mount("/api/invites", membersfeature.InviteRoutes(membersHandler, sessionMgr))

	// Tenant-scoped API
	meHandler := mefeature.NewHandler(db, perms, logger)
	r.Mount("/api/me", mefeature.Routes(meHandler, tenantMW))

	r.Mount("/api/members", membersfeature.Routes(membersHandler, tenantMW, perms))

	grantsHandler := grantsfeature.NewHandler(db, audit, logger)
	r.Mount("/api/grants", grantsfeature.Routes(grantsHandler, tenantMW, perms))

	modulesHandler := modulesfeature.NewHandler(db, access, perms, logger)
	r.Mount("/api/modules", modulesfeature.Routes(modulesHandler, tenantMW))

	settingsHandler := settingsfeature.NewHandler(db, audit, logger)
	r.Mount("/api/settings", settingsfeature.Routes(settingsHandler, tenantMW, perms))
	r.Mount("/api/gamification", settingsfeature.GamificationRoutes(settingsHandler, tenantMW))

	auditHandler := auditlogfeature.NewHandler(db, logger)
	r.Mount("/api/audit", auditlogfeature.Routes(auditHandler, tenantMW, perms))

	logger.Info("routes mounted",
		zap.Bool("google_oauth", googleHandler.IsConfigured()),
		zap.Bool("secure_cookies", secure))
	return r, nil
}
