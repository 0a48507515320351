package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dalemusser/learnhub/internal/app/system/apierr"
	"github.com/dalemusser/learnhub/internal/domain/roles"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Session constants                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

const (
	DefaultSessionName = "learnhub-session"

	userIDKey      = "user_id"
	userNameKey    = "name"
	userEmailKey   = "email"
	globalRoleKey  = "global_role"
	refreshedAtKey = "refreshed_at"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Current-User helper                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionUser is what we cache in the session & inject into r.Context().
type SessionUser struct {
	ID         string
	Name       string
	Email      string
	GlobalRole roles.GlobalRole
}

// IsOwner reports whether the user holds the global OWNER role.
func (u *SessionUser) IsOwner() bool {
	return u != nil && u.GlobalRole.IsOwner()
}

// UserFetcher reloads an identity from the primary store. It returns nil
// with no error when the user no longer exists or has been soft-deleted.
type UserFetcher interface {
	FetchUser(ctx context.Context, userID string) (*SessionUser, error)
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user & “found?” flag.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok && u != nil
}

// WithTestUser attaches u to the request context. Intended for tests of
// handlers that sit behind LoadSessionUser.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

/*─────────────────────────────────────────────────────────────────────────────*
| Session manager                                                              |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionManager owns the signed session cookie.
type SessionManager struct {
	store   *sessions.CookieStore
	name    string
	refresh time.Duration
	fetcher UserFetcher
	logger  *zap.Logger
	now     func() time.Time
}

// NewSessionManager builds the cookie store. refresh is how stale the cached
// identity may get before LoadSessionUser re-reads it; zero re-reads on
// every request.
//
// In production (secure=true), cookies are Secure. SameSite is Lax in both
// modes since the API is same-origin.
func NewSessionManager(sessionKey, name, domain string, maxAge, refresh time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("session key is empty; provide ≥32 random chars")
	}
	if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}
	if name == "" {
		name = DefaultSessionName
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	store.Options = &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	logger.Info("session store initialized",
		zap.Bool("secure", secure),
		zap.String("domain", domain),
		zap.Duration("refresh", refresh))

	return &SessionManager{
		store:   store,
		name:    name,
		refresh: refresh,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// SetUserFetcher wires the store-backed identity refresh.
func (m *SessionManager) SetUserFetcher(f UserFetcher) {
	m.fetcher = f
}

// SignIn writes u into a fresh session.
func (m *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, u *SessionUser) error {
	if u == nil || u.ID == "" {
		return errors.New("auth: sign in without a user")
	}
	sess, _ := m.store.Get(r, m.name)
	sess.Values = map[interface{}]interface{}{}
	m.fill(sess, u)
	return sess.Save(r, w)
}

// SignOut expires the session cookie.
func (m *SessionManager) SignOut(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, m.name)
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

func (m *SessionManager) fill(sess *sessions.Session, u *SessionUser) {
	sess.Values[userIDKey] = u.ID
	sess.Values[userNameKey] = u.Name
	sess.Values[userEmailKey] = u.Email
	sess.Values[globalRoleKey] = u.GlobalRole.String()
	sess.Values[refreshedAtKey] = m.now().Unix()
}

// LoadSessionUser injects the user into context if they are signed in.
// A stale cached identity is re-read through the UserFetcher; a missing or
// soft-deleted identity ends the session.
func (m *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.store.Get(r, m.name)
		if err != nil {
			// Undecodable cookie (rotated key, tampering); treat as signed out.
			next.ServeHTTP(w, r)
			return
		}
		id := getString(sess, userIDKey)
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}

		role, _ := roles.ParseGlobalRole(getString(sess, globalRoleKey))
		u := &SessionUser{
			ID:         id,
			Name:       getString(sess, userNameKey),
			Email:      getString(sess, userEmailKey),
			GlobalRole: role,
		}

		if m.fetcher != nil && m.stale(sess) {
			fresh, err := m.fetcher.FetchUser(r.Context(), id)
			switch {
			case err != nil:
				// Keep serving the cached identity; the next request retries.
				m.logger.Warn("session refresh failed", zap.String("user_id", id), zap.Error(err))
			case fresh == nil:
				m.logger.Info("session ended: user missing or deleted", zap.String("user_id", id))
				if err := m.SignOut(w, r); err != nil {
					m.logger.Warn("failed to clear session", zap.Error(err))
				}
				next.ServeHTTP(w, r)
				return
			default:
				u = fresh
				m.fill(sess, u)
				if err := sess.Save(r, w); err != nil {
					m.logger.Warn("failed to save refreshed session", zap.Error(err))
				}
			}
		}

		if !u.GlobalRole.Valid() {
			m.logger.Warn("session carries no valid global role", zap.String("user_id", id))
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, withUser(r, u))
	})
}

func (m *SessionManager) stale(sess *sessions.Session) bool {
	at, _ := sess.Values[refreshedAtKey].(int64)
	if at == 0 || m.refresh <= 0 {
		return true
	}
	return m.now().Sub(time.Unix(at, 0)) >= m.refresh
}

// RequireSignedIn ensures there is a user in context (set by LoadSessionUser).
// API callers get a 401 JSON body.
func (m *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); !ok {
			apierr.Unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireOwner admits only the global OWNER.
func (m *SessionManager) RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := CurrentUser(r)
		if !ok {
			apierr.Unauthorized(w)
			return
		}
		if !u.IsOwner() {
			apierr.WriteJSON(w, http.StatusForbidden, apierr.Body{Error: "owner only", Code: "FORBIDDEN"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getString safely extracts a string from a session value.
func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}
