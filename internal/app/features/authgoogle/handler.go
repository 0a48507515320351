// internal/app/features/authgoogle/handler.go
package authgoogle

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/dalemusser/learnhub/internal/app/store/oauthstate"
	userstore "github.com/dalemusser/learnhub/internal/app/store/users"
	"github.com/dalemusser/learnhub/internal/app/system/auditlog"
	"github.com/dalemusser/learnhub/internal/app/system/auth"
	"github.com/dalemusser/learnhub/internal/app/system/metrics"
	"github.com/dalemusser/learnhub/internal/app/system/timeouts"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	callbackPath   = "/auth/google/callback"
	userInfoURL    = "https://www.googleapis.com/oauth2/v2/userinfo"
	stateTTL       = 10 * time.Minute
	stateByteCount = 32
)

var scopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// Handler signs users in with their Google account. Only accounts that
// already exist with auth_method=google can sign in this way.
type Handler struct {
	Users      *userstore.Store
	StateStore *oauthstate.Store
	SessionMgr *auth.SessionManager
	AuditLog   *auditlog.Logger
	Metrics    *metrics.Metrics
	Log        *zap.Logger

	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint and UserInfoURL default to Google's; tests point them at a
	// local server.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

func NewHandler(
	db *mongo.Database,
	sessionMgr *auth.SessionManager,
	audit *auditlog.Logger,
	m *metrics.Metrics,
	clientID, clientSecret, baseURL string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		Users:        userstore.New(db),
		StateStore:   oauthstate.New(db),
		SessionMgr:   sessionMgr,
		AuditLog:     audit,
		Metrics:      m,
		Log:          logger,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  baseURL + callbackPath,
		Endpoint:     google.Endpoint,
		UserInfoURL:  userInfoURL,
	}
}

// IsConfigured reports whether client credentials were supplied.
func (h *Handler) IsConfigured() bool {
	return h.ClientID != "" && h.ClientSecret != ""
}

func (h *Handler) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.ClientID,
		ClientSecret: h.ClientSecret,
		RedirectURL:  h.RedirectURL,
		Scopes:       scopes,
		Endpoint:     h.Endpoint,
	}
}

// failure is a callback outcome that sends the browser back to /login with
// an error code. err, when set, is logged.
type failure struct {
	code   string
	reason string
	err    error
}

func (f *failure) redirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login?error="+f.code, http.StatusSeeOther)
}

// GET /auth/google
func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	if !h.IsConfigured() {
		h.Log.Warn("google login requested but no client credentials are configured")
		(&failure{code: "google_not_configured"}).redirect(w, r)
		return
	}

	state, err := newState()
	if err != nil {
		h.Log.Error("state generation failed", zap.Error(err))
		(&failure{code: "internal"}).redirect(w, r)
		return
	}

	ret := query.Get(r, "return")
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()
	if err := h.StateStore.Save(ctx, state, ret, time.Now().UTC().Add(stateTTL)); err != nil {
		h.Log.Error("state save failed", zap.Error(err))
		(&failure{code: "internal"}).redirect(w, r)
		return
	}

	h.Log.Debug("redirecting to google consent", zap.String("return", ret))
	http.Redirect(w, r, h.config().AuthCodeURL(state, oauth2.AccessTypeOnline), http.StatusTemporaryRedirect)
}

// GET /auth/google/callback
func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	u, ret, f := h.authenticate(r)
	if f != nil {
		if f.err != nil {
			h.Log.Error("google callback failed", zap.String("code", f.code), zap.Error(f.err))
		} else if f.reason != "" {
			h.Log.Warn("google callback rejected", zap.String("code", f.code), zap.String("reason", f.reason))
		}
		f.redirect(w, r)
		return
	}

	su := &auth.SessionUser{
		ID:         u.ID.Hex(),
		Name:       u.FullName,
		Email:      u.Email,
		GlobalRole: u.GlobalRole,
	}
	if err := h.SessionMgr.SignIn(w, r, su); err != nil {
		h.Log.Error("session save failed", zap.String("user_id", su.ID), zap.Error(err))
		(&failure{code: "session"}).redirect(w, r)
		return
	}

	h.AuditLog.LoginSuccess(r.Context(), r, u.ID, models.AuthMethodGoogle, u.Email)
	h.Metrics.Login(models.AuthMethodGoogle, "success")
	h.Log.Info("google sign-in", zap.String("user_id", su.ID))
	http.Redirect(w, r, urlutil.SafeReturn(ret, "", "/"), http.StatusSeeOther)
}

// authenticate turns the callback request into an active user and the
// return URL stored with the state.
func (h *Handler) authenticate(r *http.Request) (models.User, string, *failure) {
	ctx := r.Context()

	if e := query.Get(r, "error"); e != "" {
		return models.User{}, "", &failure{code: "google_denied", reason: e + ": " + query.Get(r, "error_description")}
	}

	state := query.Get(r, "state")
	if state == "" {
		return models.User{}, "", &failure{code: "invalid_state", reason: "missing state"}
	}
	stateCtx, cancel := context.WithTimeout(ctx, timeouts.Short())
	ret, ok, err := h.StateStore.Consume(stateCtx, state)
	cancel()
	switch {
	case err != nil:
		return models.User{}, "", &failure{code: "internal", err: err}
	case !ok:
		return models.User{}, "", &failure{code: "invalid_state", reason: "unknown or expired state"}
	}

	code := query.Get(r, "code")
	if code == "" {
		return models.User{}, "", &failure{code: "invalid_code", reason: "missing code"}
	}
	tok, err := h.config().Exchange(ctx, code)
	if err != nil {
		return models.User{}, "", &failure{code: "token_exchange", err: err}
	}
	id, err := h.identity(ctx, tok)
	if err != nil {
		return models.User{}, "", &failure{code: "user_info", err: err}
	}

	lookupCtx, cancelLookup := context.WithTimeout(ctx, timeouts.Short())
	defer cancelLookup()
	u, err := h.match(lookupCtx, id)
	if errors.Is(err, errNoAccount) {
		h.AuditLog.LoginFailedUserNotFound(lookupCtx, r, id.Email)
		h.Metrics.Login(models.AuthMethodGoogle, "user_not_found")
		return models.User{}, "", &failure{code: "no_account"}
	}
	if err != nil {
		return models.User{}, "", &failure{code: "internal", err: err}
	}
	if u.IsDeleted() {
		h.AuditLog.LoginFailedUserDeleted(lookupCtx, r, u.ID, u.Email)
		h.Metrics.Login(models.AuthMethodGoogle, "user_deleted")
		return models.User{}, "", &failure{code: "no_account"}
	}
	return u, ret, nil
}

func newState() (string, error) {
	b := make([]byte, stateByteCount)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
