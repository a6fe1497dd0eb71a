package security

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Directive is one Content-Security-Policy entry.
type Directive struct {
	Name    string
	Sources []string
}

// Policy is the header set every response carries.
type Policy struct {
	CSP []Directive
	// HSTS is sent only on TLS requests; zero disables it.
	HSTS time.Duration
	// Fixed holds the remaining headers verbatim.
	Fixed map[string]string
}

// DefaultPolicy fits the app's pages: htmx comes from unpkg, avatars are
// served from /static and the month list listens on a same-origin WebSocket.
func DefaultPolicy() Policy {
	return Policy{
		CSP: []Directive{
			{"default-src", []string{"'self'"}},
			{"script-src", []string{"'self'", "https://unpkg.com"}},
			{"style-src", []string{"'self'", "'unsafe-inline'"}},
			{"img-src", []string{"'self'", "data:"}},
			{"connect-src", []string{"'self'", "ws:", "wss:"}},
			{"font-src", []string{"'self'"}},
			{"object-src", []string{"'none'"}},
			{"frame-ancestors", []string{"'none'"}},
			{"base-uri", []string{"'self'"}},
			{"form-action", []string{"'self'"}},
		},
		HSTS: 365 * 24 * time.Hour,
		Fixed: map[string]string{
			"X-Content-Type-Options":       "nosniff",
			"X-Frame-Options":              "DENY",
			"Referrer-Policy":              "strict-origin-when-cross-origin",
			"Permissions-Policy":           "geolocation=(), microphone=(), camera=(), payment=()",
			"Cross-Origin-Opener-Policy":   "same-origin",
			"Cross-Origin-Resource-Policy": "same-origin",
		},
	}
}

// ContentSecurityPolicy renders the CSP directives in order.
func (p Policy) ContentSecurityPolicy() string {
	parts := make([]string, 0, len(p.CSP))
	for _, d := range p.CSP {
		parts = append(parts, d.Name+" "+strings.Join(d.Sources, " "))
	}
	return strings.Join(parts, "; ")
}

// Headers applies p to every response.
func Headers(p Policy) func(http.Handler) http.Handler {
	fixed := make(http.Header, len(p.Fixed)+1)
	for name, value := range p.Fixed {
		fixed.Set(name, value)
	}
	if len(p.CSP) > 0 {
		fixed.Set("Content-Security-Policy", p.ContentSecurityPolicy())
	}
	var hsts string
	if p.HSTS > 0 {
		hsts = "max-age=" + strconv.FormatInt(int64(p.HSTS/time.Second), 10) + "; includeSubDomains"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for name, values := range fixed {
				h[name] = values
			}
			if hsts != "" && r.TLS != nil {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CacheFor lets browsers keep static assets for maxAge.
func CacheFor(maxAge time.Duration) func(http.Handler) http.Handler {
	value := "public, max-age=" + strconv.Itoa(int(maxAge/time.Second))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", value)
			next.ServeHTTP(w, r)
		})
	}
}

// NoStore keeps signed-in pages out of shared caches.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
