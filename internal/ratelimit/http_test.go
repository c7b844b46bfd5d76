package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/helpinghand/helpinghand/internal/auth"
	"github.com/helpinghand/helpinghand/internal/db"
)

func TestMiddlewareLimitsPerCaller(t *testing.T) {
	h := Middleware(NewInMemory(time.Minute), 1, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote string, p *auth.Principal) int {
		req := httptest.NewRequest("GET", "/api/requests", nil)
		req.RemoteAddr = remote
		if p != nil {
			req = req.WithContext(auth.WithPrincipal(req.Context(), *p))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do("10.0.0.1:1234", nil); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := do("10.0.0.1:5678", nil); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for same IP, got %d", code)
	}
	if code := do("10.0.0.2:1234", nil); code != http.StatusOK {
		t.Fatalf("expected 200 for other IP, got %d", code)
	}

	p := &auth.Principal{ID: "u1", Role: db.RoleVolunteer}
	if code := do("10.0.0.1:1", p); code != http.StatusOK {
		t.Fatalf("expected principal to have its own bucket, got %d", code)
	}
	if code := do("10.0.0.9:1", p); code != http.StatusTooManyRequests {
		t.Fatalf("expected principal bucket to follow across IPs, got %d", code)
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	h := Middleware(NewInMemory(time.Minute), 5, ByCaller)(http.NotFoundHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Header().Get("X-RateLimit-Limit") != "5" || rec.Header().Get("X-RateLimit-Remaining") != "4" {
		t.Fatalf("unexpected headers: %v", rec.Header())
	}
}

func TestByCaller(t *testing.T) {
	anon := httptest.NewRequest("POST", "/api/auth/login", nil)
	anon.RemoteAddr = "192.0.2.7:40000"
	if got := ByCaller(anon); got != "anon:192.0.2.7" {
		t.Errorf("anonymous key = %q", got)
	}
	anon.RemoteAddr = "192.0.2.7"
	if got := ByCaller(anon); got != "anon:192.0.2.7" {
		t.Errorf("portless key = %q", got)
	}

	p := auth.Principal{ID: "u1", Role: db.RoleHelpSeeker}
	signed := anon.WithContext(auth.WithPrincipal(anon.Context(), p))
	if got := ByCaller(signed); got != "help_seeker:u1" {
		t.Errorf("seeker key = %q", got)
	}
	p.Role = db.RoleVolunteer
	promoted := anon.WithContext(auth.WithPrincipal(anon.Context(), p))
	if got := ByCaller(promoted); got != "volunteer:u1" {
		t.Errorf("volunteer key = %q", got)
	}
}

func TestMiddlewareRetryAfter(t *testing.T) {
	perRoute := func(r *http.Request) string { return r.URL.Path }
	h := Middleware(NewInMemory(time.Minute), 1, perRoute)(http.NotFoundHandler())

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest("GET", "/a", nil))
	if first.Header().Get("Retry-After") != "" {
		t.Fatalf("admitted request carries Retry-After")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/a", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	secs, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || secs < 1 || secs > 60 {
		t.Fatalf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}

	other := httptest.NewRecorder()
	h.ServeHTTP(other, httptest.NewRequest("GET", "/b", nil))
	if other.Code != http.StatusNotFound {
		t.Fatalf("custom key should give /b its own budget, got %d", other.Code)
	}
}
