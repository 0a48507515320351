// internal/app/features/owner/handler.go
package owner

import (
	grantstore "github.com/dalemusser/learnhub/internal/app/store/grants"
	groupstore "github.com/dalemusser/learnhub/internal/app/store/groups"
	invitestore "github.com/dalemusser/learnhub/internal/app/store/invites"
	membershipstore "github.com/dalemusser/learnhub/internal/app/store/memberships"
	modulestore "github.com/dalemusser/learnhub/internal/app/store/modules"
	tenantstore "github.com/dalemusser/learnhub/internal/app/store/tenants"
	"github.com/dalemusser/learnhub/internal/app/system/auditlog"
	"github.com/dalemusser/learnhub/internal/app/system/tenantcookie"
	"github.com/dalemusser/learnhub/internal/app/system/tenantctx"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves the platform-owner console: impersonation and tenant
// lifecycle. Every route requires the global OWNER role.
type Handler struct {
	Client      *mongo.Client
	Tenants     *tenantstore.Store
	Memberships *membershipstore.Store
	Grants      *grantstore.Store
	Groups      *groupstore.Store
	Modules     *modulestore.Store
	Invites     *invitestore.Store
	Resolver    *tenantctx.Resolver
	Cookies     *tenantcookie.Codec
	AuditLog    *auditlog.Logger
	Log         *zap.Logger
}

func NewHandler(db *mongo.Database, resolver *tenantctx.Resolver, cookies *tenantcookie.Codec, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Client:      db.Client(),
		Tenants:     tenantstore.New(db),
		Memberships: membershipstore.New(db),
		Grants:      grantstore.New(db),
		Groups:      groupstore.New(db),
		Modules:     modulestore.New(db),
		Invites:     invitestore.New(db),
		Resolver:    resolver,
		Cookies:     cookies,
		AuditLog:    audit,
		Log:         logger,
	}
}
