// Package auditlog records authentication and administrative events to the
// audit_events collection and to the structured log.
package auditlog

import (
	"context"
	"net/http"

	"github.com/dalemusser/learnhub/internal/app/store/audit"
	"github.com/dalemusser/learnhub/internal/app/system/ratelimit"
	"github.com/dalemusser/learnhub/internal/domain/roles"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Destination settings for a category.
const (
	All = "all"
	DB  = "db"
	Log = "log"
	Off = "off"
)

type sinks struct{ log, db bool }

var destinations = map[string]sinks{
	All: {log: true, db: true},
	DB:  {db: true},
	Log: {log: true},
	Off: {},
}

// ValidSetting reports whether s names a destination.
func ValidSetting(s string) bool {
	_, ok := destinations[s]
	return ok
}

// Config picks a destination per category. An empty value means All.
type Config struct {
	// Auth covers login, logout, impersonation and tenant selection.
	Auth string
	// Admin covers grants, memberships, tenants and settings.
	Admin string
}

// Logger writes audit events. A nil *Logger discards everything.
type Logger struct {
	store *audit.Store
	log   *zap.Logger
	auth  sinks
	admin sinks
}

// New builds a Logger. store may be nil when no category writes to the
// database.
func New(store *audit.Store, log *zap.Logger, cfg Config) *Logger {
	return &Logger{store: store, log: log, auth: resolve(cfg.Auth), admin: resolve(cfg.Admin)}
}

func resolve(setting string) sinks {
	if setting == "" {
		setting = All
	}
	return destinations[setting]
}

// Log sends event to its category's destinations. A failed insert is logged
// and otherwise ignored.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}
	to := destinations[All]
	switch event.Category {
	case audit.CategoryAuth:
		to = l.auth
	case audit.CategoryAdmin:
		to = l.admin
	}

	if to.log {
		l.mirror(event)
	}
	if to.db && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.log.Error("audit insert failed", zap.String("event_type", event.EventType), zap.Error(err))
		}
	}
}

func (l *Logger) mirror(e audit.Event) {
	fields := make([]zap.Field, 0, 8+len(e.Details))
	fields = append(fields,
		zap.Bool("audit", true),
		zap.String("category", e.Category),
		zap.String("event_type", e.EventType),
		zap.Bool("success", e.Success),
		zap.String("ip", e.IP),
	)
	for key, id := range map[string]*primitive.ObjectID{"tenant_id": e.TenantID, "user_id": e.UserID, "actor_id": e.ActorID} {
		if id != nil {
			fields = append(fields, zap.String(key, id.Hex()))
		}
	}
	if e.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", e.FailureReason))
	}
	for k, v := range e.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	level := zap.InfoLevel
	if !e.Success {
		level = zap.WarnLevel
	}
	l.log.Log(level, "audit event", fields...)
}

// stamp fills the request-derived fields shared by every event.
func stamp(r *http.Request, category, eventType string, e audit.Event) audit.Event {
	e.Category = category
	e.EventType = eventType
	e.IP = ratelimit.ClientIP(r)
	e.UserAgent = r.UserAgent()
	return e
}

func (l *Logger) authEvent(r *http.Request, eventType string, e audit.Event) audit.Event {
	return stamp(r, audit.CategoryAuth, eventType, e)
}

// adminEvent stamps an admin action, which always succeeded by the time it
// is recorded.
func (l *Logger) adminEvent(r *http.Request, eventType string, actorID, tenantID primitive.ObjectID, e audit.Event) audit.Event {
	e.ActorID = &actorID
	e.TenantID = &tenantID
	e.Success = true
	return stamp(r, audit.CategoryAdmin, eventType, e)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Authentication events                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// LoginSuccess logs a successful login.
func (l *Logger) LoginSuccess(ctx context.Context, r *http.Request, userID primitive.ObjectID, authMethod, email string) {
	l.Log(ctx, l.authEvent(r, audit.EventLoginSuccess, audit.Event{
		UserID:  &userID,
		Success: true,
		Details: map[string]string{"auth_method": authMethod, "email": email},
	}))
}

// LoginFailedUserNotFound logs a login for an unknown email.
func (l *Logger) LoginFailedUserNotFound(ctx context.Context, r *http.Request, attemptedEmail string) {
	l.Log(ctx, l.authEvent(r, audit.EventLoginFailedUserNotFound, audit.Event{
		FailureReason: "user not found",
		Details:       map[string]string{"attempted_email": attemptedEmail},
	}))
}

// LoginFailedWrongPassword logs a failed login due to wrong password.
func (l *Logger) LoginFailedWrongPassword(ctx context.Context, r *http.Request, userID primitive.ObjectID, email string) {
	l.Log(ctx, l.authEvent(r, audit.EventLoginFailedWrongPassword, audit.Event{
		UserID:        &userID,
		FailureReason: "wrong password",
		Details:       map[string]string{"email": email},
	}))
}

// LoginFailedUserDeleted logs a login attempt by a soft-deleted user.
func (l *Logger) LoginFailedUserDeleted(ctx context.Context, r *http.Request, userID primitive.ObjectID, email string) {
	l.Log(ctx, l.authEvent(r, audit.EventLoginFailedUserDeleted, audit.Event{
		UserID:        &userID,
		FailureReason: "user deleted",
		Details:       map[string]string{"email": email},
	}))
}

// LoginFailedRateLimit logs a login refused by the rate limiter.
func (l *Logger) LoginFailedRateLimit(ctx context.Context, r *http.Request, email, limitType string) {
	l.Log(ctx, l.authEvent(r, audit.EventLoginFailedRateLimit, audit.Event{
		FailureReason: "rate limit exceeded",
		Details:       map[string]string{"email": email, "limit_type": limitType},
	}))
}

// Logout logs a user logout. userIDStr comes from the session.
func (l *Logger) Logout(ctx context.Context, r *http.Request, userIDStr string) {
	var userID *primitive.ObjectID
	if oid, err := primitive.ObjectIDFromHex(userIDStr); err == nil {
		userID = &oid
	}
	l.Log(ctx, l.authEvent(r, audit.EventLogout, audit.Event{UserID: userID, Success: true}))
}

// ImpersonationStarted logs an owner entering a tenant.
func (l *Logger) ImpersonationStarted(ctx context.Context, r *http.Request, ownerID, tenantID primitive.ObjectID) {
	l.Log(ctx, l.authEvent(r, audit.EventImpersonationStarted, audit.Event{
		UserID: &ownerID, ActorID: &ownerID, TenantID: &tenantID, Success: true,
	}))
}

// ImpersonationStopped logs an owner leaving impersonation. tenantID may be
// nil when the cookie was already invalid.
func (l *Logger) ImpersonationStopped(ctx context.Context, r *http.Request, ownerID primitive.ObjectID, tenantID *primitive.ObjectID) {
	l.Log(ctx, l.authEvent(r, audit.EventImpersonationStopped, audit.Event{
		UserID: &ownerID, ActorID: &ownerID, TenantID: tenantID, Success: true,
	}))
}

// TenantSelected logs an explicit tenant switch.
func (l *Logger) TenantSelected(ctx context.Context, r *http.Request, userID, tenantID primitive.ObjectID) {
	l.Log(ctx, l.authEvent(r, audit.EventTenantSelected, audit.Event{
		UserID: &userID, TenantID: &tenantID, Success: true,
	}))
}

/*─────────────────────────────────────────────────────────────────────────────*
| Admin events                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

// GrantCreated logs a new permission grant.
func (l *Logger) GrantCreated(ctx context.Context, r *http.Request, actorID, userID, tenantID primitive.ObjectID, capability, scopeKind string) {
	l.Log(ctx, l.adminEvent(r, audit.EventGrantCreated, actorID, tenantID, audit.Event{
		UserID:  &userID,
		Details: map[string]string{"capability": capability, "scope": scopeKind},
	}))
}

// GrantRevoked logs a revoked permission grant.
func (l *Logger) GrantRevoked(ctx context.Context, r *http.Request, actorID, userID, tenantID primitive.ObjectID, capability string) {
	l.Log(ctx, l.adminEvent(r, audit.EventGrantRevoked, actorID, tenantID, audit.Event{
		UserID:  &userID,
		Details: map[string]string{"capability": capability},
	}))
}

// InviteCreated logs a new invite. The invitee may not have an account yet,
// so only the email is recorded.
func (l *Logger) InviteCreated(ctx context.Context, r *http.Request, actorID, tenantID primitive.ObjectID, email string, role roles.TenantRole) {
	l.Log(ctx, l.adminEvent(r, audit.EventInviteCreated, actorID, tenantID, audit.Event{
		Details: map[string]string{"email": email, "role": role.String()},
	}))
}

// InviteRevoked logs a withdrawn invite.
func (l *Logger) InviteRevoked(ctx context.Context, r *http.Request, actorID, tenantID primitive.ObjectID, email string) {
	l.Log(ctx, l.adminEvent(r, audit.EventInviteRevoked, actorID, tenantID, audit.Event{
		Details: map[string]string{"email": email},
	}))
}

// MembershipCreated logs an invite acceptance. The user is their own actor.
func (l *Logger) MembershipCreated(ctx context.Context, r *http.Request, userID, tenantID primitive.ObjectID, role roles.TenantRole) {
	l.Log(ctx, l.adminEvent(r, audit.EventMembershipCreated, userID, tenantID, audit.Event{
		UserID:  &userID,
		Details: map[string]string{"role": role.String()},
	}))
}

// MembershipRoleChanged logs a role change.
func (l *Logger) MembershipRoleChanged(ctx context.Context, r *http.Request, actorID, userID, tenantID primitive.ObjectID, from, to roles.TenantRole) {
	l.Log(ctx, l.adminEvent(r, audit.EventMembershipRoleChanged, actorID, tenantID, audit.Event{
		UserID:  &userID,
		Details: map[string]string{"from": from.String(), "to": to.String()},
	}))
}

// MembershipRemoved logs a member removal.
func (l *Logger) MembershipRemoved(ctx context.Context, r *http.Request, actorID, userID, tenantID primitive.ObjectID, role roles.TenantRole) {
	l.Log(ctx, l.adminEvent(r, audit.EventMembershipRemoved, actorID, tenantID, audit.Event{
		UserID:  &userID,
		Details: map[string]string{"role": role.String()},
	}))
}

// TenantCreated logs a new tenant.
func (l *Logger) TenantCreated(ctx context.Context, r *http.Request, actorID, tenantID primitive.ObjectID, slug string) {
	l.tenantEvent(ctx, r, audit.EventTenantCreated, actorID, tenantID, slug)
}

// TenantArchived logs a tenant being archived.
func (l *Logger) TenantArchived(ctx context.Context, r *http.Request, actorID, tenantID primitive.ObjectID, slug string) {
	l.tenantEvent(ctx, r, audit.EventTenantArchived, actorID, tenantID, slug)
}

// TenantRestored logs an archived tenant being restored.
func (l *Logger) TenantRestored(ctx context.Context, r *http.Request, actorID, tenantID primitive.ObjectID, slug string) {
	l.tenantEvent(ctx, r, audit.EventTenantRestored, actorID, tenantID, slug)
}

// TenantPurged logs an irreversible tenant deletion.
func (l *Logger) TenantPurged(ctx context.Context, r *http.Request, actorID, tenantID primitive.ObjectID, slug string) {
	l.tenantEvent(ctx, r, audit.EventTenantPurged, actorID, tenantID, slug)
}

func (l *Logger) tenantEvent(ctx context.Context, r *http.Request, eventType string, actorID, tenantID primitive.ObjectID, slug string) {
	l.Log(ctx, l.adminEvent(r, eventType, actorID, tenantID, audit.Event{
		Details: map[string]string{"slug": slug},
	}))
}

// SettingsUpdated logs a tenant settings change. section is "features" or
// "gamification".
func (l *Logger) SettingsUpdated(ctx context.Context, r *http.Request, actorID, tenantID primitive.ObjectID, section string) {
	l.Log(ctx, l.adminEvent(r, audit.EventSettingsUpdated, actorID, tenantID, audit.Event{
		Details: map[string]string{"section": section},
	}))
}
