// internal/app/bootstrap/appconfig.go
package bootstrap

import (
	"time"

	"github.com/dalemusser/learnhub/internal/app/system/timeouts"
)

// AppConfig holds LearnHub-specific configuration. WAFFLE's CoreConfig
// covers ports, TLS, logging and CORS; everything the access-control core
// needs lives here.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string
	MongoDatabase    string
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session cookie
	SessionKey             string // signs the session cookie, at least 32 chars
	SessionName            string
	SessionDomain          string // blank means current host
	SessionMaxAge          time.Duration
	SessionRefreshInterval time.Duration // how stale the cached identity may get

	// Tenant selector and impersonation cookies
	CookieHashKey             string
	CookieBlockKey            string // optional; enables encryption
	TenantCookieMaxAge        time.Duration
	ImpersonationCookieMaxAge time.Duration

	DefaultLocale    string
	SupportedLocales string // comma separated BCP 47 tags

	// OwnerEmail is promoted (or created) as the global OWNER on startup.
	OwnerEmail string

	// Google OAuth
	GoogleClientID     string
	GoogleClientSecret string
	BaseURL            string // e.g. "https://learnhub.example.com"

	LoginRateLimit int // attempts per minute per IP

	InviteMaxAge time.Duration // how long a tenant invite can be accepted

	Timeouts timeouts.Config

	// Audit logging: all, db, log or off
	AuditLogAuth  string
	AuditLogAdmin string
}
