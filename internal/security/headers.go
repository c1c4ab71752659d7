package security

import (
	"net/http"
	"strconv"
	"strings"
)

// Headers sets the response hardening headers for the storefront API.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	// NoStore marks responses uncacheable; prices and seat counts go stale quickly.
	NoStore bool
}

func (h Headers) static() [][2]string {
	set := [][2]string{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
		// Checkout pages call the Payment Request API against this origin.
		{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(self)"},
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
		{"Cross-Origin-Resource-Policy", "same-site"},
	}
	if h.NoStore {
		set = append(set, [2]string{"Cache-Control", "no-store"})
	}
	return set
}

func (h Headers) hsts() string {
	maxAge := h.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = 31536000
	}
	v := "max-age=" + strconv.Itoa(maxAge)
	if h.HSTSIncludeSubdomains {
		v += "; includeSubDomains"
	}
	return v
}

// Middleware applies the headers before the handler writes. HSTS is only
// sent on HTTPS, including TLS terminated at a proxy that sets
// X-Forwarded-Proto.
func (h Headers) Middleware(next http.Handler) http.Handler {
	if !h.Enable {
		return next
	}
	static := h.static()
	hsts := h.hsts()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		for _, kv := range static {
			headers.Set(kv[0], kv[1])
		}
		if h.EnableHSTS && isHTTPS(r) {
			headers.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}
