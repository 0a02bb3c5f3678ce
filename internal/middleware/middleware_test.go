package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/getdatasurge/frostguard/internal/app/metrics"
)

var testSecret = []byte("test-secret")

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, nil)
	handler := m.Handler(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/orgs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthAcceptsValidToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, nil)

	var gotOrg, gotUser string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrg = GetOrgID(r.Context())
		gotUser = GetUserID(r.Context())
	}))

	token, err := IssueToken(testSecret, Claims{
		UserID: "user-1",
		OrgID:  "org-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/orgs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotOrg != "org-1" || gotUser != "user-1" {
		t.Fatalf("context not populated: org=%q user=%q", gotOrg, gotUser)
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, nil)
	handler := m.Handler(okHandler())

	token, err := IssueToken(testSecret, Claims{
		UserID: "user-1",
		OrgID:  "org-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/orgs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", rec.Code)
	}
}

func TestAuthSkipsConfiguredPaths(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, []string{"/healthz", "/webhooks/"})
	handler := m.Handler(okHandler())

	for _, path := range []string{"/healthz", "/webhooks/ttn"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("path %s should skip auth, got %d", path, rec.Code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	m := NewCORSMiddleware([]string{"https://app.frostguard.io"})
	handler := m.Handler(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/v1/orgs", nil)
	req.Header.Set("Origin", "https://app.frostguard.io")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.frostguard.io" {
		t.Fatalf("unexpected allow-origin: %q", got)
	}
}

func TestCORSDisallowedOrigin(t *testing.T) {
	m := NewCORSMiddleware([]string{"https://app.frostguard.io"})
	handler := m.Handler(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/orgs", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow-origin header, got %q", got)
	}
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	handler := rl.Handler(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/units", nil)
		req.RemoteAddr = "10.0.0.1:55000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("burst requests should pass: %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("third request should be limited: %v", codes)
	}
}

func TestMetricsMiddlewareRecordsRequests(t *testing.T) {
	m := metrics.New()
	mw := NewMetricsMiddleware(m)
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/orgs/org-1/units", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/orgs/:id/units", "201"))
	if got != 1 {
		t.Fatalf("expected 1 recorded request, got %v", got)
	}
}

func TestRouteLabelCollapsesIDs(t *testing.T) {
	cases := map[string]string{
		"/healthz":                  "/healthz",
		"/orgs":                     "/orgs",
		"/orgs/42":                  "/orgs/:id",
		"/orgs/42/units":            "/orgs/:id/units",
		"/orgs/42/units/7":          "/orgs/:id/units/:id",
		"/orgs/42/units/7/readings": "/orgs/:id/units/:id/readings",
		"/orgs/42/alerts/9/ack":     "/orgs/:id/alerts/:id/ack",
	}
	for path, want := range cases {
		if got := routeLabel(path); got != want {
			t.Fatalf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
