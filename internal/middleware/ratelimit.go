package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// KeyByCaller keys the limiter on the authenticated user, falling back to the
// client IP for anonymous requests. Run Identify before it.
func KeyByCaller(r *http.Request) (string, error) {
	if id := IdentityFromContext(r.Context()); !id.IsZero() {
		return "user:" + id.ID.String(), nil
	}
	ip, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + ip, nil
}

// RateLimitPerCaller allows requests per window for each caller. A
// non-positive limit disables the middleware.
func RateLimitPerCaller(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(KeyByCaller),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeJSONError(w, http.StatusTooManyRequests, "Too many requests. Please slow down.")
		}),
	)
}
