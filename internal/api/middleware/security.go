package middleware

import (
	"net/http"

	"github.com/ridefinder/ridefinder/internal/api/models"
)

// SecurityHeaders adds standard security headers to all HTTP responses.
// Headers set:
//   - X-Content-Type-Options: nosniff
//   - X-Frame-Options: DENY
//   - Strict-Transport-Security: max-age=31536000; includeSubDomains
//   - Content-Security-Policy: default-src 'none'; frame-ancestors 'none'
//   - Referrer-Policy: no-referrer
//   - Permissions-Policy: geolocation=(), camera=(), microphone=()
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")

		next.ServeHTTP(w, r)
	})
}

// RequireTLS rejects plain-HTTP requests with 403 when enabled.
// Behind a load balancer the X-Forwarded-Proto header decides; requests
// without it are allowed through so local health probes keep working.
func RequireTLS(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.TLS == nil {
				if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" && proto != "https" {
					problem := models.NewProblem(
						models.ProblemTypeTLSRequired,
						"TLS required",
						http.StatusForbidden,
						GetRequestID(r.Context()),
					)
					problem.Detail = "This endpoint requires HTTPS"
					problem.Instance = r.URL.Path
					problem.Write(w)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
