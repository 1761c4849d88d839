// Package security sets response security headers and inspects client
// addresses and request patterns.
package security

import (
	"fmt"
	"net/http"
	"strings"
)

// HeadersConfig lists the response headers set on every request. Empty
// values are skipped.
type HeadersConfig struct {
	CSP []string

	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	HSTSPreload           bool

	FrameOptions        string
	ContentTypeOptions  string
	ReferrerPolicy      string
	PermissionsPolicy   string
	CrossOriginOpener   string
	CrossOriginResource string
}

// DefaultHeadersConfig fits the bundled web client: scripts load from the
// same origin only and styles may be inline.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP: []string{
			"default-src 'self'",
			"script-src 'self'",
			"style-src 'self' 'unsafe-inline'",
			"img-src 'self' data:",
			"connect-src 'self'",
			"object-src 'none'",
			"frame-ancestors 'none'",
			"base-uri 'self'",
			"form-action 'self'",
		},
		HSTSMaxAge:            365 * 24 * 60 * 60,
		HSTSIncludeSubdomains: true,
		HSTSPreload:           true,

		FrameOptions:        "DENY",
		ContentTypeOptions:  "nosniff",
		ReferrerPolicy:      "strict-origin-when-cross-origin",
		PermissionsPolicy:   "geolocation=(), microphone=(), camera=(), payment=()",
		CrossOriginOpener:   "same-origin",
		CrossOriginResource: "cross-origin",
	}
}

type HeadersMiddleware struct {
	static http.Header
	hsts   string
}

// NewHeadersMiddleware renders cfg once; the middleware only copies values.
func NewHeadersMiddleware(cfg HeadersConfig) *HeadersMiddleware {
	static := http.Header{}
	set := func(name, value string) {
		if value != "" {
			static.Set(name, value)
		}
	}
	set("Content-Security-Policy", strings.Join(cfg.CSP, "; "))
	set("X-Frame-Options", cfg.FrameOptions)
	set("X-Content-Type-Options", cfg.ContentTypeOptions)
	set("Referrer-Policy", cfg.ReferrerPolicy)
	set("Permissions-Policy", cfg.PermissionsPolicy)
	set("Cross-Origin-Opener-Policy", cfg.CrossOriginOpener)
	set("Cross-Origin-Resource-Policy", cfg.CrossOriginResource)

	var hsts string
	if cfg.HSTSMaxAge > 0 {
		hsts = fmt.Sprintf("max-age=%d", cfg.HSTSMaxAge)
		if cfg.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
		if cfg.HSTSPreload {
			hsts += "; preload"
		}
	}
	return &HeadersMiddleware{static: static, hsts: hsts}
}

func (h *HeadersMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := w.Header()
		for name, values := range h.static {
			out[name] = append([]string(nil), values...)
		}
		// HSTS over plain HTTP is ignored by browsers.
		if r.TLS != nil && h.hsts != "" {
			out.Set("Strict-Transport-Security", h.hsts)
		}
		next.ServeHTTP(w, r)
	})
}

// StaticAssetMiddleware marks responses cacheable for maxAge seconds.
func StaticAssetMiddleware(maxAge int) func(http.Handler) http.Handler {
	value := fmt.Sprintf("public, max-age=%d", maxAge)
	return func(next http.Handler) http.Handler {
		if maxAge <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", value)
			next.ServeHTTP(w, r)
		})
	}
}
