// internal/app/features/login/handler.go
package login

import (
	"context"
	"errors"
	"net/http"

	userstore "github.com/dalemusser/learnhub/internal/app/store/users"
	"github.com/dalemusser/learnhub/internal/app/system/apierr"
	"github.com/dalemusser/learnhub/internal/app/system/auditlog"
	"github.com/dalemusser/learnhub/internal/app/system/auth"
	"github.com/dalemusser/learnhub/internal/app/system/metrics"
	"github.com/dalemusser/learnhub/internal/app/system/normalize"
	"github.com/dalemusser/learnhub/internal/app/system/ratelimit"
	"github.com/dalemusser/learnhub/internal/app/system/timeouts"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Handler serves password sign-in.
type Handler struct {
	Users      *userstore.Store
	SessionMgr *auth.SessionManager
	Limiter    *ratelimit.LoginLimiter
	AuditLog   *auditlog.Logger
	Metrics    *metrics.Metrics
	Log        *zap.Logger
}

func NewHandler(
	db *mongo.Database,
	sessionMgr *auth.SessionManager,
	limiter *ratelimit.LoginLimiter,
	audit *auditlog.Logger,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		Users:      userstore.New(db),
		SessionMgr: sessionMgr,
		Limiter:    limiter,
		AuditLog:   audit,
		Metrics:    m,
		Log:        logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the signed-in identity returned after login.
type UserResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	GlobalRole string `json:"global_role"`
}

// Unknown emails and wrong passwords share one message so the endpoint
// cannot be used to discover accounts.
const badCredentials = "invalid email or password"

/*─────────────────────────────────────────────────────────────────────────────*
| POST /login                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := apierr.DecodeJSON(w, r, &req); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	email := normalize.Email(req.Email)
	if email == "" || req.Password == "" {
		apierr.BadRequest(w, "email and password are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if h.Limiter != nil {
		if ok, msg := h.Limiter.Check(r, email); !ok {
			h.AuditLog.LoginFailedRateLimit(ctx, r, email, "login")
			h.Metrics.Login(models.AuthMethodPassword, "rate_limited")
			apierr.TooManyRequests(w, msg)
			return
		}
	}

	u, err := h.Users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, userstore.ErrNotFound):
		h.AuditLog.LoginFailedUserNotFound(ctx, r, email)
		h.Metrics.Login(models.AuthMethodPassword, "user_not_found")
		apierr.WriteJSON(w, http.StatusUnauthorized, apierr.Body{Error: badCredentials})
		return
	case err != nil:
		apierr.Write(w, h.Log, err)
		return
	}

	if u.IsDeleted() {
		h.AuditLog.LoginFailedUserDeleted(ctx, r, u.ID, email)
		h.Metrics.Login(models.AuthMethodPassword, "user_deleted")
		apierr.WriteJSON(w, http.StatusUnauthorized, apierr.Body{Error: badCredentials})
		return
	}

	if u.AuthMethod != models.AuthMethodPassword || u.PasswordHash == "" {
		h.Metrics.Login(models.AuthMethodPassword, "wrong_method")
		apierr.BadRequest(w, "this account signs in with "+u.AuthMethod)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		h.AuditLog.LoginFailedWrongPassword(ctx, r, u.ID, email)
		h.Metrics.Login(models.AuthMethodPassword, "wrong_password")
		apierr.WriteJSON(w, http.StatusUnauthorized, apierr.Body{Error: badCredentials})
		return
	}

	su := &auth.SessionUser{
		ID:         u.ID.Hex(),
		Name:       u.FullName,
		Email:      u.Email,
		GlobalRole: u.GlobalRole,
	}
	if err := h.SessionMgr.SignIn(w, r, su); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	if h.Limiter != nil {
		h.Limiter.ResetEmail(email)
	}

	h.AuditLog.LoginSuccess(ctx, r, u.ID, models.AuthMethodPassword, email)
	h.Metrics.Login(models.AuthMethodPassword, "success")
	h.Log.Info("user signed in", zap.String("user_id", su.ID))

	apierr.WriteJSON(w, http.StatusOK, UserResponse{
		ID:         su.ID,
		Name:       su.Name,
		Email:      su.Email,
		GlobalRole: su.GlobalRole.String(),
	})
}
