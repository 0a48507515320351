// internal/app/features/members/invite.go
package members

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	invitestore "github.com/dalemusser/learnhub/internal/app/store/invites"
	memberships "github.com/dalemusser/learnhub/internal/app/store/memberships"
	tenants "github.com/dalemusser/learnhub/internal/app/store/tenants"
	userstore "github.com/dalemusser/learnhub/internal/app/store/users"
	"github.com/dalemusser/learnhub/internal/app/system/accesserr"
	"github.com/dalemusser/learnhub/internal/app/system/apierr"
	"github.com/dalemusser/learnhub/internal/app/system/auth"
	"github.com/dalemusser/learnhub/internal/app/system/gates"
	"github.com/dalemusser/learnhub/internal/app/system/tenantctx"
	"github.com/dalemusser/learnhub/internal/app/system/timeouts"
	"github.com/dalemusser/learnhub/internal/app/system/txn"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/dalemusser/learnhub/internal/domain/roles"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	codeInviteExpired = "INVITE_EXPIRED"
	codeSeatLimit     = "SEAT_LIMIT_REACHED"

	reasonWrongInvitee = "this invite was sent to a different email"
)

// errInviteUsed is returned from the accept transaction when the invite was
// consumed between the read and the update.
var errInviteUsed = errors.New("invite has already been used")

type createInviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type inviteRow struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// createInviteResponse carries the raw token. It is shown once; delivering
// it to the invitee is up to the caller.
type createInviteResponse struct {
	inviteRow
	Token string `json:"token"`
}

type acceptRequest struct {
	Token string `json:"token"`
}

type acceptResponse struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

func rowOf(inv models.Invite) inviteRow {
	return inviteRow{
		ID:        inv.ID.Hex(),
		Email:     inv.Email,
		Role:      inv.Role.String(),
		ExpiresAt: inv.ExpiresAt,
		CreatedAt: inv.CreatedAt,
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /api/members/invites                                                    |
*─────────────────────────────────────────────────────────────────────────────*/

// HandleCreateInvite invites an email into the context tenant. The role
// defaults to EMPLOYEE, may not exceed the actor's effective role and is
// never OWNER.
func (h *Handler) HandleCreateInvite(w http.ResponseWriter, r *http.Request) {
	tc, _ := tenantctx.FromRequest(r)

	var req createInviteRequest
	if err := apierr.DecodeJSON(w, r, &req); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	email := strings.TrimSpace(req.Email)
	if at := strings.Index(email, "@"); at <= 0 || at == len(email)-1 {
		apierr.BadRequest(w, "a valid email is required")
		return
	}
	role := roles.Employee
	if req.Role != "" {
		parsed, err := roles.ParseTenantRole(req.Role)
		if err != nil {
			apierr.BadRequest(w, "unknown role")
			return
		}
		role = parsed
	}
	if role == roles.Owner {
		apierr.BadRequest(w, "the OWNER role cannot be assigned")
		return
	}
	if !roles.HasMinRole(tc.EffectiveRole, role) {
		apierr.Write(w, h.Log, accesserr.Deny("cannot invite with a role above your own"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	inv, token, err := h.Invites.Create(ctx, tc.TenantID, email, role, tc.UserID, time.Now().Add(h.InviteTTL))
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	h.AuditLog.InviteCreated(ctx, r, tc.UserID, tc.TenantID, inv.Email, inv.Role)
	h.Log.Info("invite created",
		zap.String("tenant_id", tc.TenantID.Hex()),
		zap.String("invite_id", inv.ID.Hex()),
		zap.String("role", inv.Role.String()))
	apierr.WriteJSON(w, http.StatusCreated, createInviteResponse{inviteRow: rowOf(inv), Token: token})
}

// ServeInvites handles GET /api/members/invites: the tenant's open invites.
func (h *Handler) ServeInvites(w http.ResponseWriter, r *http.Request) {
	tc, _ := tenantctx.FromRequest(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	invs, err := h.Invites.ListPending(ctx, tc.TenantID)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	rows := make([]inviteRow, 0, len(invs))
	for _, inv := range invs {
		rows = append(rows, rowOf(inv))
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]any{"invites": rows})
}

// HandleRevokeInvite handles DELETE /api/members/invites/{inviteID}.
func (h *Handler) HandleRevokeInvite(w http.ResponseWriter, r *http.Request) {
	tc, _ := tenantctx.FromRequest(r)

	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "inviteID"))
	if err != nil {
		apierr.BadRequest(w, "invalid invite id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	inv, err := h.Invites.Revoke(ctx, tc.TenantID, id)
	if errors.Is(err, invitestore.ErrNotFound) {
		apierr.NotFound(w, err.Error())
		return
	}
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	h.AuditLog.InviteRevoked(ctx, r, tc.UserID, tc.TenantID, inv.Email)
	w.WriteHeader(http.StatusNoContent)
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /api/invites/accept                                                     |
| Redeems an invite token for the signed-in user.                              |
*─────────────────────────────────────────────────────────────────────────────*/

// HandleAcceptInvite joins the signed-in user to the invite's tenant with
// the invited role. The invite must be addressed to the user's email, be
// unexpired and unused, and the tenant must be active with a free seat.
func (h *Handler) HandleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		apierr.Unauthorized(w)
		return
	}
	userID, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		apierr.Unauthorized(w)
		return
	}

	var req acceptRequest
	if err := apierr.DecodeJSON(w, r, &req); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		apierr.BadRequest(w, "token is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	// The stored account, not the session, is authoritative for the email.
	user, err := h.Users.GetByID(ctx, userID)
	if errors.Is(err, userstore.ErrNotFound) || (err == nil && user.IsDeleted()) {
		apierr.Unauthorized(w)
		return
	}
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	inv, err := h.Invites.GetByToken(ctx, req.Token)
	if errors.Is(err, invitestore.ErrNotFound) {
		apierr.NotFound(w, err.Error())
		return
	}
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	if !invitestore.MatchesEmail(inv, user.Email) {
		h.Log.Info("invite refused",
			zap.String("user_id", u.ID),
			zap.String("invite_id", inv.ID.Hex()),
			zap.String("reason", "email mismatch"))
		apierr.Write(w, h.Log, accesserr.Deny(reasonWrongInvitee))
		return
	}
	if inv.AcceptedAt != nil {
		apierr.Conflict(w, errInviteUsed.Error())
		return
	}
	if !inv.Pending(time.Now()) {
		apierr.WriteJSON(w, http.StatusGone, apierr.Body{Error: "invite has expired", Code: codeInviteExpired})
		return
	}

	t, err := h.Tenants.GetByID(ctx, inv.TenantID)
	if errors.Is(err, tenants.ErrNotFound) || (err == nil && t.IsArchived()) {
		apierr.NotFound(w, "tenant not found")
		return
	}
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	m, err := h.redeem(ctx, req.Token, userID, t, inv.Role)
	switch {
	case err == nil:
	case errors.Is(err, errInviteUsed), errors.Is(err, memberships.ErrDuplicateMembership):
		apierr.Conflict(w, err.Error())
		return
	case errors.Is(err, gates.ErrSeatLimitReached):
		apierr.WriteJSON(w, http.StatusForbidden, apierr.Body{Error: err.Error(), Code: codeSeatLimit})
		return
	default:
		apierr.Write(w, h.Log, err)
		return
	}

	h.AuditLog.MembershipCreated(ctx, r, userID, t.ID, m.Role)
	h.Log.Info("invite accepted",
		zap.String("user_id", u.ID),
		zap.String("tenant_id", t.ID.Hex()),
		zap.String("invite_id", inv.ID.Hex()),
		zap.String("role", m.Role.String()))
	apierr.WriteJSON(w, http.StatusCreated, acceptResponse{TenantID: t.ID.Hex(), Role: m.Role.String()})
}

// redeem consumes the invite and creates the membership in one transaction.
// The tenant's seat counter is bumped first so concurrent redeems for the
// same tenant serialize. Without transactions each step is undone by hand
// when a later one fails, and the post-insert recount catches a race the
// pre-check missed.
func (h *Handler) redeem(ctx context.Context, token string, userID primitive.ObjectID, t models.Tenant, role roles.TenantRole) (models.Membership, error) {
	var m models.Membership
	err := txn.Run(ctx, h.Client, h.Log, func(ctx context.Context) error {
		if err := h.Invites.Consume(ctx, token, userID); err != nil {
			if errors.Is(err, invitestore.ErrNotFound) {
				return errInviteUsed
			}
			return err
		}
		release := func() {
			if err := h.Invites.Release(ctx, token); err != nil {
				h.Log.Warn("release invite failed", zap.Error(err))
			}
		}

		if err := h.Tenants.TouchSeats(ctx, t.ID); err != nil {
			release()
			return err
		}
		if err := h.Gate.CheckSeatLimit(ctx, t); err != nil {
			release()
			return err
		}
		created, err := h.Memberships.Create(ctx, userID, t.ID, role)
		if err != nil {
			release()
			return err
		}
		if err := h.Gate.ConfirmSeats(ctx, t); err != nil {
			if derr := h.Memberships.Delete(ctx, userID, t.ID); derr != nil && !errors.Is(derr, memberships.ErrNotFound) {
				h.Log.Warn("undo membership failed", zap.Error(derr))
			}
			release()
			return err
		}
		m = created
		return nil
	})
	return m, err
}
