// Package tenantcookie reads and writes the two cookies that carry a
// caller's tenant selection: the plain selector and the owner impersonation
// override. Values are signed and encrypted with securecookie.
package tenantcookie

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	TenantCookie      = "learnhub_tenant"
	ImpersonateCookie = "learnhub_impersonate"
)

// Selection is the tenant choice decoded from the request. Either id may be
// nil. Invalid or tampered cookies decode as nil.
type Selection struct {
	TenantID      *primitive.ObjectID
	ImpersonateID *primitive.ObjectID
}

// Codec encodes and decodes tenant cookies. Each cookie has its own
// securecookie instance so a decoded value is never older than that
// cookie's lifetime, whatever the browser keeps.
type Codec struct {
	tenant         *securecookie.SecureCookie
	impersonate    *securecookie.SecureCookie
	tenantMaxAge   time.Duration
	impersonateAge time.Duration
	secure         bool
}

// New builds a Codec. blockKey may be empty to sign without encryption.
func New(hashKey, blockKey []byte, tenantMaxAge, impersonateMaxAge time.Duration, secure bool) (*Codec, error) {
	if len(hashKey) == 0 {
		return nil, errors.New("tenantcookie: hash key is empty")
	}
	var block []byte
	if len(blockKey) > 0 {
		block = blockKey
	}
	return &Codec{
		tenant:         bounded(hashKey, block, tenantMaxAge),
		impersonate:    bounded(hashKey, block, impersonateMaxAge),
		tenantMaxAge:   tenantMaxAge,
		impersonateAge: impersonateMaxAge,
		secure:         secure,
	}, nil
}

func bounded(hashKey, blockKey []byte, maxAge time.Duration) *securecookie.SecureCookie {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(maxAge.Seconds()))
	return sc
}

func (c *Codec) codecFor(name string) *securecookie.SecureCookie {
	if name == ImpersonateCookie {
		return c.impersonate
	}
	return c.tenant
}

// ValidKeyLength reports whether n is a usable securecookie block key length.
func ValidKeyLength(n int) bool {
	return n == 0 || n == 16 || n == 24 || n == 32
}

// Selection decodes both cookies from r.
func (c *Codec) Selection(r *http.Request) Selection {
	return Selection{
		TenantID:      c.read(r, TenantCookie),
		ImpersonateID: c.read(r, ImpersonateCookie),
	}
}

func (c *Codec) read(r *http.Request, name string) *primitive.ObjectID {
	ck, err := r.Cookie(name)
	if err != nil || ck.Value == "" {
		return nil
	}
	var hex string
	if err := c.codecFor(name).Decode(name, ck.Value, &hex); err != nil {
		return nil
	}
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return nil
	}
	return &id
}

// SetTenant persists the selector cookie.
func (c *Codec) SetTenant(w http.ResponseWriter, id primitive.ObjectID) error {
	return c.write(w, TenantCookie, id, c.tenantMaxAge)
}

// ClearTenant removes the selector cookie.
func (c *Codec) ClearTenant(w http.ResponseWriter) {
	c.clear(w, TenantCookie)
}

// SetImpersonation persists the impersonation cookie with its short expiry.
func (c *Codec) SetImpersonation(w http.ResponseWriter, id primitive.ObjectID) error {
	return c.write(w, ImpersonateCookie, id, c.impersonateAge)
}

// ClearImpersonation removes the impersonation cookie.
func (c *Codec) ClearImpersonation(w http.ResponseWriter) {
	c.clear(w, ImpersonateCookie)
}

func (c *Codec) write(w http.ResponseWriter, name string, id primitive.ObjectID, maxAge time.Duration) error {
	enc, err := c.codecFor(name).Encode(name, id.Hex())
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    enc,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Expires:  time.Now().Add(maxAge),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (c *Codec) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
