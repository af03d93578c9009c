// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, the global hardening headers, and
// NoStore, which the download and status routes add so that intermediaries
// never cache an authorization decision or a presigned URL.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	EnableHSTS   bool          // only when traffic is HTTPS end-to-end
	HSTSMaxAge   time.Duration // defaults to 180 days
	NoStore      bool          // Cache-Control: no-store on every response
	EnablePolicy bool          // Permissions-Policy and X-Permitted-Cross-Domain-Policies
	// ContentSecurityPolicy is sent verbatim when non-empty. Generated HTML
	// artifacts are served from this origin, so a restrictive policy keeps
	// them inert.
	ContentSecurityPolicy string
}

// SecurityHeaders returns a Gin middleware that adds conservative security
// headers to each response. HSTS is only sent for HTTPS requests.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.ContentSecurityPolicy != "" {
			h.Set("Content-Security-Policy", opt.ContentSecurityPolicy)
		}
		if opt.NoStore {
			setNoStore(h)
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		if rid := h.Get(requestIDHeader); rid != "" {
			const hdr = "Access-Control-Expose-Headers"
			cur := h.Get(hdr)
			if cur == "" {
				h.Set(hdr, requestIDHeader)
			} else if !strings.Contains(cur, requestIDHeader) {
				h.Set(hdr, cur+", "+requestIDHeader)
			}
		}
		c.Next()
	}
}

// NoStore marks responses of a route group as uncacheable.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		setNoStore(c.Writer.Header())
		c.Next()
	}
}

func setNoStore(h http.Header) {
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}

// isHTTPS reports whether the request used HTTPS directly or via a proxy
// that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
