// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/learnhub/internal/app/system/auditlog"
	"github.com/dalemusser/learnhub/internal/app/system/tenantcookie"
	"github.com/dalemusser/learnhub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// minSessionKeyLen is the shortest signing key accepted for the session and
// tenant cookies.
const minSessionKeyLen = 32

// appConfigKeys defines the configuration keys for LearnHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: LEARNHUB_MONGO_URI, LEARNHUB_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "learnhub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size"},

	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (at least 32 chars)"},
	{Name: "session_name", Default: "learnhub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "720h", Desc: "Session cookie lifetime"},
	{Name: "session_refresh_interval", Default: "5m", Desc: "How long a cached session identity is trusted before it is re-read"},

	// Tenant cookies
	{Name: "cookie_hash_key", Default: "dev-only-tenant-cookie-hash-key-0123456789", Desc: "HMAC key for tenant cookies (at least 32 bytes)"},
	{Name: "cookie_block_key", Default: "", Desc: "AES key for tenant cookies (16, 24 or 32 bytes; blank disables encryption)"},
	{Name: "tenant_cookie_max_age", Default: "8760h", Desc: "Lifetime of the tenant selector cookie"},
	{Name: "impersonation_cookie_max_age", Default: "4h", Desc: "Lifetime of the owner impersonation cookie"},

	// Locales
	{Name: "default_locale", Default: "en", Desc: "Locale used when a tenant's locale is unsupported"},
	{Name: "supported_locales", Default: "en,fr,de,es,pt", Desc: "Comma separated supported locales"},

	// Owner bootstrap
	{Name: "owner_email", Default: "", Desc: "Email of the platform owner (promotes/creates on startup)"},

	// Google OAuth configuration
	{Name: "google_client_id", Default: "", Desc: "Google OAuth2 client ID"},
	{Name: "google_client_secret", Default: "", Desc: "Google OAuth2 client secret"},
	{Name: "base_url", Default: "http://localhost:3000", Desc: "Public base URL used for OAuth callbacks"},

	{Name: "login_rate_limit", Default: 10, Desc: "Login attempts per minute per client IP"},
	{Name: "invite_max_age", Default: "168h", Desc: "How long a tenant invite stays acceptable"},

	// Store call deadlines
	{Name: "timeout_ping", Default: "2s", Desc: "Deadline for health-check pings"},
	{Name: "timeout_short", Default: "5s", Desc: "Deadline for single-document lookups"},
	{Name: "timeout_medium", Default: "10s", Desc: "Deadline for list queries and single writes"},
	{Name: "timeout_long", Default: "30s", Desc: "Deadline for multi-collection writes"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},
}

// LoadConfig loads WAFFLE core config and the LearnHub app config.
// Precedence is flags > env (WAFFLE_* core, LEARNHUB_* app) > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "LEARNHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		SessionKey:             appValues.String("session_key"),
		SessionName:            appValues.String("session_name"),
		SessionDomain:          appValues.String("session_domain"),
		SessionMaxAge:          appValues.Duration("session_max_age", 720*time.Hour),
		SessionRefreshInterval: appValues.Duration("session_refresh_interval", 5*time.Minute),

		CookieHashKey:             appValues.String("cookie_hash_key"),
		CookieBlockKey:            appValues.String("cookie_block_key"),
		TenantCookieMaxAge:        appValues.Duration("tenant_cookie_max_age", 8760*time.Hour),
		ImpersonationCookieMaxAge: appValues.Duration("impersonation_cookie_max_age", 4*time.Hour),

		DefaultLocale:    appValues.String("default_locale"),
		SupportedLocales: appValues.String("supported_locales"),

		OwnerEmail: appValues.String("owner_email"),

		GoogleClientID:     appValues.String("google_client_id"),
		GoogleClientSecret: appValues.String("google_client_secret"),
		BaseURL:            appValues.String("base_url"),

		LoginRateLimit: appValues.Int("login_rate_limit"),
		InviteMaxAge:   appValues.Duration("invite_max_age", 168*time.Hour),

		Timeouts: timeouts.Config{
			Ping:   appValues.Duration("timeout_ping", timeouts.DefaultPing),
			Short:  appValues.Duration("timeout_short", timeouts.DefaultShort),
			Medium: appValues.Duration("timeout_medium", timeouts.DefaultMedium),
			Long:   appValues.Duration("timeout_long", timeouts.DefaultLong),
		},

		AuditLogAuth:  appValues.String("audit_log_auth"),
		AuditLogAdmin: appValues.String("audit_log_admin"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig rejects configuration that would fail later at a worse
// moment: a malformed Mongo URI, weak or mis-sized cookie keys, or an
// unknown audit setting.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if len(appCfg.SessionKey) < minSessionKeyLen {
		return fmt.Errorf("session_key must be at least %d characters", minSessionKeyLen)
	}
	if len(appCfg.CookieHashKey) < minSessionKeyLen {
		return fmt.Errorf("cookie_hash_key must be at least %d bytes", minSessionKeyLen)
	}
	if n := len(appCfg.CookieBlockKey); !tenantcookie.ValidKeyLength(n) {
		return fmt.Errorf("cookie_block_key must be 16, 24 or 32 bytes, got %d", n)
	}
	if appCfg.LoginRateLimit < 1 {
		return fmt.Errorf("login_rate_limit must be positive")
	}
	if appCfg.InviteMaxAge <= 0 {
		return fmt.Errorf("invite_max_age must be positive")
	}
	for key, v := range map[string]string{
		"audit_log_auth":  appCfg.AuditLogAuth,
		"audit_log_admin": appCfg.AuditLogAdmin,
	} {
		if !auditlog.ValidSetting(v) {
			return fmt.Errorf("%s must be one of all, db, log, off; got %q", key, v)
		}
	}
	if coreCfg != nil && coreCfg.Env == "prod" && appCfg.SessionKey == "dev-only-change-me-please-0123456789ABCDEF" {
		logger.Warn("running in prod with the default session key")
	}
	return nil
}
