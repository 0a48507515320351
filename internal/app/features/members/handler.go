// internal/app/features/members/handler.go
package members

import (
	"time"

	grants "github.com/dalemusser/learnhub/internal/app/store/grants"
	groups "github.com/dalemusser/learnhub/internal/app/store/groups"
	invitestore "github.com/dalemusser/learnhub/internal/app/store/invites"
	memberships "github.com/dalemusser/learnhub/internal/app/store/memberships"
	tenants "github.com/dalemusser/learnhub/internal/app/store/tenants"
	userstore "github.com/dalemusser/learnhub/internal/app/store/users"
	"github.com/dalemusser/learnhub/internal/app/system/auditlog"
	"github.com/dalemusser/learnhub/internal/app/system/gates"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler administers tenant memberships.
type Handler struct {
	Client      *mongo.Client
	Users       *userstore.Store
	Tenants     *tenants.Store
	Memberships *memberships.Store
	Groups      *groups.Store
	Grants      *grants.Store
	Invites     *invitestore.Store
	Gate        *gates.Gate
	AuditLog    *auditlog.Logger
	Log         *zap.Logger

	// InviteTTL is how long a new invite stays acceptable.
	InviteTTL time.Duration
}

// DefaultInviteTTL applies when no invite_max_age is configured.
const DefaultInviteTTL = 7 * 24 * time.Hour

func NewHandler(db *mongo.Database, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	ms := memberships.New(db)
	return &Handler{
		Client:      db.Client(),
		Users:       userstore.New(db),
		Tenants:     tenants.New(db),
		Memberships: ms,
		Groups:      groups.New(db),
		Grants:      grants.New(db),
		Invites:     invitestore.New(db),
		Gate:        gates.New(ms),
		AuditLog:    audit,
		Log:         logger,
		InviteTTL:   DefaultInviteTTL,
	}
}
