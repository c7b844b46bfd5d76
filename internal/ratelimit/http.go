package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/helpinghand/helpinghand/internal/auth"
	"github.com/helpinghand/helpinghand/internal/httpx"
)

const msgTooMany = "Too many requests, please try again later."

// KeyFunc names the budget a request is charged to.
type KeyFunc func(*http.Request) string

// ByCaller charges signed-in users to their account, whichever address
// they connect from. Anonymous traffic (register, login) is charged to the
// remote host. Role is part of the key, so a seeker promoted to volunteer
// starts on a fresh budget.
func ByCaller(r *http.Request) string {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok && p.ID != "" {
		return string(p.Role) + ":" + p.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "anon:" + host
}

// Middleware admits limit requests per window for each key. A nil key
// means ByCaller. Rejected requests get 429 with Retry-After.
func Middleware(l Limiter, limit int, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = ByCaller
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Allow(r.Context(), key(r), limit)
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Retry-After", strconv.Itoa(retryAfter(d.ResetAt)))
			httpx.Error(w, http.StatusTooManyRequests, msgTooMany)
		})
	}
}

// retryAfter is whole seconds until reset, at least one.
func retryAfter(reset time.Time) int {
	secs := int(math.Ceil(time.Until(reset).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
