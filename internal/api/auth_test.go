package api

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nerrad567/foxbridge/internal/infrastructure/config"
)

const testSecret = "test-secret-at-least-32-bytes-long!!"

func withAuth(d *Deps) {
	d.Security = config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret}}
}

func bearer(t *testing.T, tenant string) http.Header {
	t.Helper()
	token, err := IssueToken(testSecret, "pos", tenant, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return http.Header{"Authorization": {"Bearer " + token}}
}

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken(testSecret, "pos-1", "r1", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	claims, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "pos-1" || claims.Tenant != "r1" {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := ParseToken("other-secret", token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret error = %v, want ErrInvalidToken", err)
	}
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	if _, err := IssueToken("", "pos", "", time.Minute); err == nil {
		t.Error("IssueToken() with empty secret should fail")
	}
}

func TestParseTokenRejects(t *testing.T) {
	expired, err := IssueToken(testSecret, "pos", "", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "pos"}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "pos",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	for name, token := range map[string]string{
		"expired":   expired,
		"no expiry": noExpiry,
		"wrong alg": wrongAlg,
		"garbage":   "not.a.token",
		"empty":     "",
	} {
		if _, err := ParseToken(testSecret, token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: error = %v, want ErrInvalidToken", name, err)
		}
	}
}

func TestAuthDisabledLeavesRoutesOpen(t *testing.T) {
	env := newTestEnv(t, nil)

	if rec := env.do(t, http.MethodGet, "/status/r1", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/tenants", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("tenants status = %d, want 200", rec.Code)
	}
}

func TestAuthEnabled(t *testing.T) {
	env := newTestEnv(t, withAuth)

	// Public routes stay open.
	for _, path := range []string{"/", "/status", "/api/v1/health", "/api/v1/metrics"} {
		if rec := env.do(t, http.MethodGet, path, nil, nil); rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, rec.Code)
		}
	}

	rec := env.do(t, http.MethodGet, "/status/r1", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", rec.Code)
	}
	if body := decode(t, rec); body["error"] == nil {
		t.Errorf("legacy 401 body = %v", body)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/tenants", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("v1 no token status = %d, want 401", rec.Code)
	}
	if body := decode(t, rec); body["code"] != ErrCodeUnauthorized {
		t.Errorf("v1 401 body = %v", body)
	}

	bad := http.Header{"Authorization": {"Bearer nope"}}
	if rec := env.do(t, http.MethodGet, "/status/r1", nil, bad); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", rec.Code)
	}

	if rec := env.do(t, http.MethodGet, "/status/r1", nil, bearer(t, "")); rec.Code != http.StatusOK {
		t.Errorf("unscoped token status = %d, want 200", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/status/r1", nil, bearer(t, "r1")); rec.Code != http.StatusOK {
		t.Errorf("scoped token status = %d, want 200", rec.Code)
	}
}

func TestScopedTokenCannotTouchOtherTenant(t *testing.T) {
	env := newTestEnv(t, withAuth)
	h := bearer(t, "r1")

	if rec := env.do(t, http.MethodGet, "/status/r2", nil, h); rec.Code != http.StatusForbidden {
		t.Errorf("status other tenant = %d, want 403", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/initialize/r2", nil, h); rec.Code != http.StatusForbidden {
		t.Errorf("initialize other tenant = %d, want 403", rec.Code)
	}
	if n := env.eng.Creates("r2"); n != 0 {
		t.Errorf("engine Create called %d times for forbidden tenant", n)
	}

	rec := env.do(t, http.MethodPost, "/send-bill", sendBillRequest{RestaurantID: "r2", Phone: "1", ImageURL: "http://x"}, h)
	if rec.Code != http.StatusForbidden {
		t.Errorf("send-bill other tenant = %d, want 403", rec.Code)
	}
}

func TestTicketStore(t *testing.T) {
	ts := newTicketStore()

	ticket := ts.issue("r1")
	if len(ticket) != ticketBytes*2 {
		t.Errorf("ticket length = %d", len(ticket))
	}

	entry, ok := ts.consume(ticket)
	if !ok || entry.tenant != "r1" {
		t.Fatalf("consume() = %+v, %v", entry, ok)
	}
	if _, ok := ts.consume(ticket); ok {
		t.Error("ticket consumed twice")
	}

	ts.mu.Lock()
	ts.tickets["stale"] = ticketEntry{expiresAt: time.Now().Add(-time.Second)}
	ts.mu.Unlock()
	ts.clean()
	if _, ok := ts.consume("stale"); ok {
		t.Error("expired ticket accepted")
	}
}
