// internal/app/features/logout/handler.go
package logout

import (
	"net/http"

	"github.com/dalemusser/learnhub/internal/app/system/auditlog"
	"github.com/dalemusser/learnhub/internal/app/system/auth"
	"github.com/dalemusser/learnhub/internal/app/system/tenantcookie"
	"go.uber.org/zap"
)

type Handler struct {
	SessionMgr *auth.SessionManager
	Cookies    *tenantcookie.Codec
	AuditLog   *auditlog.Logger
	Log        *zap.Logger
}

func NewHandler(sessionMgr *auth.SessionManager, cookies *tenantcookie.Codec, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		SessionMgr: sessionMgr,
		Cookies:    cookies,
		AuditLog:   audit,
		Log:        logger,
	}
}

// HandleLogout ends the session and drops any tenant selection so the next
// sign-in on this browser starts clean.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var userID string
	if u, ok := auth.CurrentUser(r); ok {
		userID = u.ID
	}

	if err := h.SessionMgr.SignOut(w, r); err != nil {
		h.Log.Warn("logout: failed to clear session", zap.Error(err))
	}
	if h.Cookies != nil {
		h.Cookies.ClearTenant(w)
		h.Cookies.ClearImpersonation(w)
	}

	h.AuditLog.Logout(r.Context(), r, userID)
	w.WriteHeader(http.StatusNoContent)
}
