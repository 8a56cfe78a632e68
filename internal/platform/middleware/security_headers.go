package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityHeadersConfig controls the response hardening headers.
type SecurityHeadersConfig struct {
	// HSTS adds Strict-Transport-Security. Only set it when this process
	// terminates TLS itself.
	HSTS bool
	// NoStorePrefixes lists route prefixes whose responses carry patient
	// results or import session contents and must never be cached.
	NoStorePrefixes []string
}

// DefaultSecurityHeadersConfig marks every /api/ response as uncacheable.
func DefaultSecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{NoStorePrefixes: []string{"/api/"}}
}

// SecurityHeaders returns middleware that sets security response headers on
// every request.
func SecurityHeaders(cfg SecurityHeadersConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cross-Origin-Resource-Policy", "same-origin")
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			path := c.Request().URL.Path
			for _, p := range cfg.NoStorePrefixes {
				if strings.HasPrefix(path, p) {
					h.Set("Cache-Control", "no-store")
					h.Set("Pragma", "no-cache")
					break
				}
			}

			return next(c)
		}
	}
}
