package tenantcookie_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dalemusser/learnhub/internal/app/system/tenantcookie"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newCodec(t *testing.T) *tenantcookie.Codec {
	t.Helper()
	c, err := tenantcookie.New(
		[]byte("0123456789abcdef0123456789abcdef"),
		[]byte("fedcba9876543210fedcba9876543210"),
		8760*time.Hour, 4*time.Hour, false,
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

// replay copies Set-Cookie headers from a recorder onto a new request.
func replay(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest("GET", "/", nil)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge >= 0 {
			req.AddCookie(ck)
		}
	}
	return req
}

func TestCodec_RoundTrip(t *testing.T) {
	c := newCodec(t)
	tenant, imp := primitive.NewObjectID(), primitive.NewObjectID()

	rec := httptest.NewRecorder()
	if err := c.SetTenant(rec, tenant); err != nil {
		t.Fatalf("SetTenant failed: %v", err)
	}
	if err := c.SetImpersonation(rec, imp); err != nil {
		t.Fatalf("SetImpersonation failed: %v", err)
	}

	sel := c.Selection(replay(rec))
	if sel.TenantID == nil || *sel.TenantID != tenant {
		t.Errorf("expected tenant %s, got %v", tenant.Hex(), sel.TenantID)
	}
	if sel.ImpersonateID == nil || *sel.ImpersonateID != imp {
		t.Errorf("expected impersonation %s, got %v", imp.Hex(), sel.ImpersonateID)
	}
}

func TestCodec_CookieAttributes(t *testing.T) {
	c := newCodec(t)
	rec := httptest.NewRecorder()
	c.SetTenant(rec, primitive.NewObjectID())
	c.SetImpersonation(rec, primitive.NewObjectID())

	byName := map[string]*http.Cookie{}
	for _, ck := range rec.Result().Cookies() {
		byName[ck.Name] = ck
	}
	tc, ic := byName[tenantcookie.TenantCookie], byName[tenantcookie.ImpersonateCookie]
	if tc == nil || ic == nil {
		t.Fatal("expected both cookies to be set")
	}
	for _, ck := range []*http.Cookie{tc, ic} {
		if !ck.HttpOnly || ck.SameSite != http.SameSiteLaxMode || ck.Path != "/" {
			t.Errorf("cookie %s has wrong attributes: %+v", ck.Name, ck)
		}
	}
	if tc.MaxAge != int((8760 * time.Hour).Seconds()) {
		t.Errorf("expected one-year tenant cookie, got %d", tc.MaxAge)
	}
	if ic.MaxAge != int((4 * time.Hour).Seconds()) {
		t.Errorf("expected 4h impersonation cookie, got %d", ic.MaxAge)
	}
}

func TestCodec_TamperedCookieIgnored(t *testing.T) {
	c := newCodec(t)
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: tenantcookie.TenantCookie, Value: primitive.NewObjectID().Hex()})

	if sel := c.Selection(req); sel.TenantID != nil {
		t.Error("expected unsigned cookie to be ignored")
	}
}

func TestCodec_ForeignKeyRejected(t *testing.T) {
	c := newCodec(t)
	other, _ := tenantcookie.New([]byte("another-hash-key-another-hash-key"), nil, time.Hour, time.Hour, false)

	rec := httptest.NewRecorder()
	other.SetTenant(rec, primitive.NewObjectID())
	if sel := c.Selection(replay(rec)); sel.TenantID != nil {
		t.Error("expected cookie signed with another key to be ignored")
	}
}

func TestCodec_Clear(t *testing.T) {
	c := newCodec(t)
	rec := httptest.NewRecorder()
	c.ClearTenant(rec)
	c.ClearImpersonation(rec)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge >= 0 {
			t.Errorf("expected %s to be expired, got MaxAge %d", ck.Name, ck.MaxAge)
		}
	}
}

func TestNew_RequiresHashKey(t *testing.T) {
	if _, err := tenantcookie.New(nil, nil, time.Hour, time.Hour, false); err == nil {
		t.Error("expected error for empty hash key")
	}
}

func TestValidKeyLength(t *testing.T) {
	for n, want := range map[int]bool{0: true, 16: true, 24: true, 32: true, 10: false, 64: false} {
		if got := tenantcookie.ValidKeyLength(n); got != want {
			t.Errorf("ValidKeyLength(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestCodec_ImpersonationExpiresOnItsOwnLifetime(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the impersonation lifetime to pass")
	}
	c, err := tenantcookie.New([]byte("0123456789abcdef0123456789abcdef"), nil, time.Hour, time.Second, false)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	tenant, imp := primitive.NewObjectID(), primitive.NewObjectID()
	rec := httptest.NewRecorder()
	if err := c.SetTenant(rec, tenant); err != nil {
		t.Fatalf("SetTenant: %v", err)
	}
	if err := c.SetImpersonation(rec, imp); err != nil {
		t.Fatalf("SetImpersonation: %v", err)
	}

	time.Sleep(2100 * time.Millisecond)

	// The browser may still send the cookie; the server must not honor it.
	sel := c.Selection(replay(rec))
	if sel.ImpersonateID != nil {
		t.Error("expected a replayed impersonation cookie past its lifetime to be ignored")
	}
	if sel.TenantID == nil || *sel.TenantID != tenant {
		t.Errorf("expected the selector cookie to still decode, got %v", sel.TenantID)
	}
}
